// Package filter narrows a record set by exam type, booked date range and
// age group. Predicates are independent, so the order in which they are
// applied never changes the result.
package filter

import (
	"strings"
	"time"

	"github.com/okian/dosewatch/internal/domain/record"
)

// All is the sentinel choice that disables filtering on a dimension.
const All = "All"

// Criteria holds the user's filter choices. Empty Exam/Age behave like All.
// A nil bound leaves that side of the date range open.
type Criteria struct {
	Exam string     `json:"exam"`
	From *time.Time `json:"from,omitempty"`
	To   *time.Time `json:"to,omitempty"`
	Age  string     `json:"age"`
}

// Predicate decides whether a record is kept.
type Predicate func(record.Record) bool

// ByExam keeps records whose exam name equals exam.
func ByExam(exam string) Predicate {
	if isAll(exam) {
		return nil
	}
	return func(r record.Record) bool { return r.ExamName == exam }
}

// ByAgeGroup keeps records whose age group equals age.
func ByAgeGroup(age string) Predicate {
	if isAll(age) {
		return nil
	}
	return func(r record.Record) bool { return r.AgeGroup == age }
}

// ByDateRange keeps records booked within [from, to], compared by calendar
// day. Records without a booked date never match.
func ByDateRange(from, to *time.Time) Predicate {
	if from == nil && to == nil {
		return nil
	}
	var lo, hi time.Time
	if from != nil {
		lo = day(*from)
	}
	if to != nil {
		hi = day(*to)
	}
	return func(r record.Record) bool {
		if r.BookedDate == nil {
			return false
		}
		d := day(*r.BookedDate)
		if from != nil && d.Before(lo) {
			return false
		}
		if to != nil && d.After(hi) {
			return false
		}
		return true
	}
}

// Chain keeps records accepted by every non-nil predicate. It never mutates
// the input and always returns a fresh, non-nil slice.
func Chain(records []record.Record, preds ...Predicate) []record.Record {
	out := make([]record.Record, 0, len(records))
next:
	for _, r := range records {
		for _, p := range preds {
			if p != nil && !p(r) {
				continue next
			}
		}
		out = append(out, r)
	}
	return out
}

// Apply runs the three criteria predicates over records.
func Apply(records []record.Record, c Criteria) []record.Record {
	return Chain(records, ByExam(c.Exam), ByDateRange(c.From, c.To), ByAgeGroup(c.Age))
}

// IsZero reports whether c filters nothing.
func (c Criteria) IsZero() bool {
	return isAll(c.Exam) && isAll(c.Age) && c.From == nil && c.To == nil
}

func isAll(v string) bool {
	v = strings.TrimSpace(v)
	return v == "" || v == All
}

// day truncates t to its calendar date, keeping the date as written in t's
// own location.
func day(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
