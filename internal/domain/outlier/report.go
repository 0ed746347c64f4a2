package outlier

import (
	"encoding/json"
	"math"
)

// ExamReport describes one partition for display next to the worklist.
type ExamReport struct {
	ExamName string `json:"exam_name"`
	Records  int    `json:"records"`
	Flagged  int    `json:"flagged"`
	Stats    Stats  `json:"stats"`
}

// Report summarises every partition of records in first-seen order.
func Report(groups []Group) []ExamReport {
	out := make([]ExamReport, 0, len(groups))
	for _, g := range groups {
		s := Summarize(Dosages(g.Records))
		rep := ExamReport{ExamName: g.ExamName, Records: len(g.Records), Stats: s}
		for _, r := range g.Records {
			if s.Flagged(r) {
				rep.Flagged++
			}
		}
		out = append(out, rep)
	}
	return out
}

// MarshalJSON encodes undefined statistics as null.
func (s Stats) MarshalJSON() ([]byte, error) {
	lower, upper := s.Band()
	return json.Marshal(struct {
		Count  int      `json:"count"`
		Mean   *float64 `json:"mean"`
		StdDev *float64 `json:"stddev"`
		Lower  *float64 `json:"band_lower"`
		Upper  *float64 `json:"band_upper"`
	}{
		Count:  s.Count,
		Mean:   finite(s.Mean),
		StdDev: finite(s.StdDev),
		Lower:  finite(lower),
		Upper:  finite(upper),
	})
}

func finite(v float64) *float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return nil
	}
	return &v
}
