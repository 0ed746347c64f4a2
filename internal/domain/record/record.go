// Package record contains the dose record model shared across layers.
package record

import (
	"math"
	"strconv"
	"strings"
	"time"
)

// Column names of the source dataset.
const (
	ColBookedDate = "Booked Date"
	ColExamName   = "Exam Name"
	ColDosage     = "Dosage"
	ColAgeGroup   = "Age Group"

	// ColMeanDose is the derived column added by the outlier annotator.
	ColMeanDose = "Mean Examination Dose"
)

// DateLayout is the day/month/year layout used by the source dataset.
// Single-digit days and months are accepted.
const DateLayout = "2/1/2006"

// WriteDateLayout is used when writing dates back to a tabular file.
const WriteDateLayout = "02/01/2006"

// RequiredColumns lists the columns every dataset must provide.
var RequiredColumns = []string{ColBookedDate, ColExamName, ColDosage, ColAgeGroup}

// Record represents one examination event.
type Record struct {
	BookedDate *time.Time        `json:"booked_date"` // nil when the source value was unparseable
	ExamName   string            `json:"exam_name"`   // grouping key for statistics
	Dosage     *float64          `json:"dosage"`      // nil for a null dosage; zero is a valid, suspect value
	AgeGroup   string            `json:"age_group"`
	Extra      map[string]string `json:"extra,omitempty"` // any additional source columns, by header
}

// Annotated is a Record carrying the mean dosage of its exam partition.
type Annotated struct {
	Record
	MeanExaminationDose *float64 `json:"mean_examination_dose"` // nil when the partition has no dosage values
}

// Table is an ordered record set together with the source column order.
type Table struct {
	Columns []string
	Records []Record
}

// HasDate reports whether the record carries a booked date.
func (r Record) HasDate() bool { return r.BookedDate != nil }

// HasDosage reports whether the record carries a non-null dosage.
func (r Record) HasDosage() bool { return r.Dosage != nil }

// Value returns the textual value of the named column for writing.
// Nil values are rendered as empty strings.
func (r Record) Value(column string) string {
	switch column {
	case ColBookedDate:
		if r.BookedDate == nil {
			return ""
		}
		return r.BookedDate.Format(WriteDateLayout)
	case ColExamName:
		return r.ExamName
	case ColDosage:
		return FormatFloat(r.Dosage)
	case ColAgeGroup:
		return r.AgeGroup
	default:
		return r.Extra[column]
	}
}

// Value returns the textual value of the named column, including the
// derived mean dose column.
func (a Annotated) Value(column string) string {
	if column == ColMeanDose {
		return FormatFloat(a.MeanExaminationDose)
	}
	return a.Record.Value(column)
}

// Clone returns a copy of r that shares no mutable state with it.
func (r Record) Clone() Record {
	out := r
	if r.BookedDate != nil {
		d := *r.BookedDate
		out.BookedDate = &d
	}
	if r.Dosage != nil {
		v := *r.Dosage
		out.Dosage = &v
	}
	if r.Extra != nil {
		out.Extra = make(map[string]string, len(r.Extra))
		for k, v := range r.Extra {
			out.Extra[k] = v
		}
	}
	return out
}

// Clone returns a deep copy of a.
func (a Annotated) Clone() Annotated {
	out := Annotated{Record: a.Record.Clone()}
	if a.MeanExaminationDose != nil {
		v := *a.MeanExaminationDose
		out.MeanExaminationDose = &v
	}
	return out
}

// ParseDate parses a source date. Unparseable or empty input yields nil.
func ParseDate(s string) *time.Time {
	t, err := time.Parse(DateLayout, s)
	if err != nil {
		return nil
	}
	return &t
}

// nullMarkers are cell texts read as a missing value, compared case-insensitively.
var nullMarkers = map[string]struct{}{
	"na": {}, "n/a": {}, "#n/a": {}, "#na": {}, "<na>": {}, "-na": {},
	"nan": {}, "-nan": {}, "null": {}, "none": {}, "#n/a n/a": {},
	"1.#ind": {}, "-1.#ind": {}, "1.#qnan": {}, "-1.#qnan": {},
}

// IsNullMarker reports whether s is a conventional spelling of a missing value.
func IsNullMarker(s string) bool {
	_, ok := nullMarkers[strings.ToLower(strings.TrimSpace(s))]
	return ok
}

// ParseDosage parses a source dosage. Empty, null-marker, non-numeric and
// non-finite input yields nil.
func ParseDosage(s string) *float64 {
	if s == "" || IsNullMarker(s) {
		return nil
	}
	v, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
		return nil
	}
	return &v
}

// FormatFloat renders an optional float without trailing zeros.
func FormatFloat(v *float64) string {
	if v == nil {
		return ""
	}
	return strconv.FormatFloat(*v, 'f', -1, 64)
}

// Float returns a pointer to v.
func Float(v float64) *float64 { return &v }

// Date returns a pointer to the midnight UTC time of the given calendar day.
func Date(year int, month time.Month, day int) *time.Time {
	t := time.Date(year, month, day, 0, 0, 0, 0, time.UTC)
	return &t
}
