// Package outlier flags dose records that look wrong for their exam type.
//
// Records are partitioned by exam name and each partition is summarised on
// its own: different exam types have different normal dose ranges, so a
// global mean would flag whole exam types instead of individual records.
// A record is flagged when its dosage lies strictly outside
// mean ± 2·stddev of its partition, or when the dosage is null or zero.
//
// Standard deviation is the sample (n-1) estimate. A partition with fewer
// than two dosage values has an undefined (NaN) deviation and contributes no
// statistical flags; null and zero dosages are still flagged.
package outlier

import (
	"math"

	"github.com/okian/dosewatch/internal/domain/record"
	"gonum.org/v1/gonum/stat"
)

// Sigmas is the half-width of the outlier band in standard deviations.
const Sigmas = 2.0

// Group is the set of records sharing one exam name, in input order.
type Group struct {
	ExamName string
	Records  []record.Record
}

// Stats summarises the non-null dosages of a partition.
// Mean and StdDev are NaN when undefined.
type Stats struct {
	Count  int     `json:"count"`
	Mean   float64 `json:"mean"`
	StdDev float64 `json:"stddev"`
}

// Partition groups records by exam name. Groups appear in the order their
// exam name was first seen; records keep their relative order.
func Partition(records []record.Record) []Group {
	index := make(map[string]int)
	var groups []Group
	for _, r := range records {
		i, ok := index[r.ExamName]
		if !ok {
			i = len(groups)
			index[r.ExamName] = i
			groups = append(groups, Group{ExamName: r.ExamName})
		}
		groups[i].Records = append(groups[i].Records, r)
	}
	return groups
}

// Dosages returns the non-null dosage values of records.
func Dosages(records []record.Record) []float64 {
	values := make([]float64, 0, len(records))
	for _, r := range records {
		if r.Dosage != nil {
			values = append(values, *r.Dosage)
		}
	}
	return values
}

// Summarize computes the mean and sample standard deviation of values.
func Summarize(values []float64) Stats {
	s := Stats{Count: len(values), Mean: math.NaN(), StdDev: math.NaN()}
	if len(values) == 0 {
		return s
	}
	s.Mean = stat.Mean(values, nil)
	if len(values) > 1 {
		s.StdDev = stat.StdDev(values, nil)
	}
	return s
}

// Band returns the inclusive limits of the normal range. Values strictly
// outside it are outliers. Both limits are NaN when the deviation is undefined.
func (s Stats) Band() (lower, upper float64) {
	return s.Mean - Sigmas*s.StdDev, s.Mean + Sigmas*s.StdDev
}

// Outside reports whether v lies strictly outside the band. It is always
// false when the band is undefined.
func (s Stats) Outside(v float64) bool {
	lower, upper := s.Band()
	return v < lower || v > upper
}

// RoundedMean returns the mean rounded to one decimal place, or nil when the
// partition has no dosage values.
func (s Stats) RoundedMean() *float64 {
	if math.IsNaN(s.Mean) {
		return nil
	}
	v := math.Round(s.Mean*10) / 10
	return &v
}

// Flagged reports whether r is suspect under s.
func (s Stats) Flagged(r record.Record) bool {
	if r.Dosage == nil {
		return true
	}
	v := *r.Dosage
	return v == 0 || s.Outside(v)
}

// Annotate attaches the rounded partition mean to every record.
// Output order follows Partition.
func Annotate(records []record.Record) []record.Annotated {
	out := make([]record.Annotated, 0, len(records))
	for _, g := range Partition(records) {
		mean := Summarize(Dosages(g.Records)).RoundedMean()
		for _, r := range g.Records {
			out = append(out, record.Annotated{Record: r, MeanExaminationDose: mean})
		}
	}
	return out
}

// Select annotates records and keeps the suspect ones. Partitions are
// concatenated in first-seen order. An empty input yields an empty,
// non-nil result.
func Select(records []record.Record) []record.Annotated {
	out := make([]record.Annotated, 0)
	for _, g := range Partition(records) {
		s := Summarize(Dosages(g.Records))
		mean := s.RoundedMean()
		for _, r := range g.Records {
			if s.Flagged(r) {
				out = append(out, record.Annotated{Record: r, MeanExaminationDose: mean})
			}
		}
	}
	return out
}
