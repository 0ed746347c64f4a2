package filter

import (
	"sort"
	"time"

	"github.com/okian/dosewatch/internal/domain/record"
)

// ExamChoices returns All followed by the observed exam names, most frequent
// first. Ties keep first-seen order.
func ExamChoices(records []record.Record) []string {
	counts := make(map[string]int)
	var order []string
	for _, r := range records {
		if _, ok := counts[r.ExamName]; !ok {
			order = append(order, r.ExamName)
		}
		counts[r.ExamName]++
	}
	sort.SliceStable(order, func(i, j int) bool {
		return counts[order[i]] > counts[order[j]]
	})
	return append([]string{All}, order...)
}

// AgeChoices returns All followed by the observed age groups in first-seen order.
func AgeChoices(records []record.Record) []string {
	seen := make(map[string]struct{})
	out := []string{All}
	for _, r := range records {
		if _, ok := seen[r.AgeGroup]; ok {
			continue
		}
		seen[r.AgeGroup] = struct{}{}
		out = append(out, r.AgeGroup)
	}
	return out
}

// DateBounds returns the earliest and latest booked dates. ok is false when
// no record carries a date.
func DateBounds(records []record.Record) (minDate, maxDate time.Time, ok bool) {
	for _, r := range records {
		if r.BookedDate == nil {
			continue
		}
		d := *r.BookedDate
		if !ok || d.Before(minDate) {
			minDate = d
		}
		if !ok || d.After(maxDate) {
			maxDate = d
		}
		ok = true
	}
	return minDate, maxDate, ok
}

// Default returns criteria spanning the whole dataset: All exams, All age
// groups and the dataset's date bounds.
func Default(records []record.Record) Criteria {
	c := Criteria{Exam: All, Age: All}
	if lo, hi, ok := DateBounds(records); ok {
		c.From, c.To = &lo, &hi
	}
	return c
}

// WithDateBounds fills the unset sides of c's date range from the dataset's
// date bounds. Records without a booked date then never match. c is returned
// unchanged when no record carries a date.
func WithDateBounds(c Criteria, records []record.Record) Criteria {
	lo, hi, ok := DateBounds(records)
	if !ok {
		return c
	}
	if c.From == nil {
		c.From = &lo
	}
	if c.To == nil {
		c.To = &hi
	}
	return c
}
