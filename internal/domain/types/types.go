// Package types contains the read shapes shared by the service, the HTTP API
// and the command line tool.
package types

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/okian/dosewatch/internal/domain/filter"
	"github.com/okian/dosewatch/internal/domain/outlier"
	"github.com/okian/dosewatch/internal/domain/record"
)

// DateLayout is the calendar date layout used in queries and JSON.
const DateLayout = "2006-01-02"

// NoDataMessage accompanies every empty result.
const NoDataMessage = "No data available for the selected filters."

// ErrInvalidDate is returned for dates not in YYYY-MM-DD form.
var ErrInvalidDate = errors.New("invalid date; must be YYYY-MM-DD")

// Date is a calendar date encoded as "YYYY-MM-DD".
type Date struct {
	time.Time
}

// NewDate returns nil for nil t.
func NewDate(t *time.Time) *Date {
	if t == nil {
		return nil
	}
	return &Date{Time: *t}
}

// ParseDate parses s as YYYY-MM-DD. An empty string yields nil.
func ParseDate(s string) (*time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, nil
	}
	t, err := time.Parse(DateLayout, s)
	if err != nil {
		return nil, fmt.Errorf("%w: %q", ErrInvalidDate, s)
	}
	return &t, nil
}

// Ptr returns the underlying time, or nil for a nil Date.
func (d *Date) Ptr() *time.Time {
	if d == nil {
		return nil
	}
	t := d.Time
	return &t
}

func (d Date) String() string { return d.Format(DateLayout) }

// MarshalJSON implements json.Marshaler.
func (d Date) MarshalJSON() ([]byte, error) {
	return json.Marshal(d.Format(DateLayout))
}

// UnmarshalJSON implements json.Unmarshaler.
func (d *Date) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return fmt.Errorf("%w: %s", ErrInvalidDate, string(b))
	}
	t, err := time.Parse(DateLayout, s)
	if err != nil {
		return fmt.Errorf("%w: %q", ErrInvalidDate, s)
	}
	d.Time = t
	return nil
}

// Criteria is the wire form of filter.Criteria.
type Criteria struct {
	Exam string `json:"exam"`
	From *Date  `json:"from"`
	To   *Date  `json:"to"`
	Age  string `json:"age"`
}

// FromCriteria converts filter criteria to the wire form.
func FromCriteria(c filter.Criteria) Criteria {
	return Criteria{Exam: c.Exam, From: NewDate(c.From), To: NewDate(c.To), Age: c.Age}
}

// Filter converts the wire form back to filter criteria.
func (c Criteria) Filter() filter.Criteria {
	return filter.Criteria{Exam: c.Exam, From: c.From.Ptr(), To: c.To.Ptr(), Age: c.Age}
}

// Row is one record as shown in tables. Index is the position within the
// result it came from and addresses the row for edits.
type Row struct {
	Index               int               `json:"index"`
	BookedDate          *Date             `json:"booked_date"`
	ExamName            string            `json:"exam_name"`
	Dosage              *float64          `json:"dosage"`
	AgeGroup            string            `json:"age_group"`
	MeanExaminationDose *float64          `json:"mean_examination_dose,omitempty"`
	Extra               map[string]string `json:"extra,omitempty"`
}

// FromRecord builds a Row without the derived mean column.
func FromRecord(index int, r record.Record) Row {
	return Row{
		Index:      index,
		BookedDate: NewDate(r.BookedDate),
		ExamName:   r.ExamName,
		Dosage:     r.Dosage,
		AgeGroup:   r.AgeGroup,
		Extra:      r.Extra,
	}
}

// FromAnnotated builds a Row including the derived mean column.
func FromAnnotated(index int, a record.Annotated) Row {
	row := FromRecord(index, a.Record)
	row.MeanExaminationDose = a.MeanExaminationDose
	return row
}

// Rows converts records to rows.
func Rows(records []record.Record) []Row {
	out := make([]Row, len(records))
	for i, r := range records {
		out[i] = FromRecord(i, r)
	}
	return out
}

// AnnotatedRows converts annotated records to rows.
func AnnotatedRows(rows []record.Annotated) []Row {
	out := make([]Row, len(rows))
	for i, r := range rows {
		out[i] = FromAnnotated(i, r)
	}
	return out
}

// Options lists the filter choices offered for the loaded dataset.
type Options struct {
	Exams     []string `json:"exams"`
	AgeGroups []string `json:"age_groups"`
	DateMin   *Date    `json:"date_min"`
	DateMax   *Date    `json:"date_max"`
	Default   Criteria `json:"default"`
}

// RecordsView is the filtered record set.
type RecordsView struct {
	Count   int    `json:"count"`
	Records []Row  `json:"records"`
	Message string `json:"message,omitempty"`
}

// OutliersView is the review worklist with per-exam statistics.
type OutliersView struct {
	Count   int                  `json:"count"`
	Rows    []Row                `json:"rows"`
	Stats   []outlier.ExamReport `json:"stats"`
	Message string               `json:"message,omitempty"`
}

// SessionView is a review session as returned to clients.
type SessionView struct {
	ID        string    `json:"id"`
	Criteria  Criteria  `json:"criteria"`
	Columns   []string  `json:"columns"`
	Count     int       `json:"count"`
	Rows      []Row     `json:"rows"`
	Edits     int       `json:"edits"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
	Message   string    `json:"message,omitempty"`
}

// CommitResult reports a written worklist.
type CommitResult struct {
	Path string `json:"path"`
	Rows int    `json:"rows"`
}

// MessageFor returns NoDataMessage when n is zero.
func MessageFor(n int) string {
	if n == 0 {
		return NoDataMessage
	}
	return ""
}
