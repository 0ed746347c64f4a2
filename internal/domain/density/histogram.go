package density

import (
	"errors"
	"math"
	"sort"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

// MaxBins is the upper bound on histogram bins.
const MaxBins = 50

// ErrNoValues is returned when a histogram is requested for no values.
var ErrNoValues = errors.New("histogram needs at least one value")

// Bin is one histogram bar covering [Lower, Upper).
type Bin struct {
	Lower float64 `json:"lower"`
	Upper float64 `json:"upper"`
	Count int     `json:"count"`
}

// Width returns Upper-Lower.
func (b Bin) Width() float64 { return b.Upper - b.Lower }

// BinCount picks the number of bins with Sturges' rule, capped at maxBins.
func BinCount(n, maxBins int) int {
	if maxBins <= 0 || maxBins > MaxBins {
		maxBins = MaxBins
	}
	if n <= 1 {
		return 1
	}
	k := int(math.Ceil(math.Log2(float64(n)))) + 1
	if k > maxBins {
		return maxBins
	}
	return k
}

// Histogram counts values into equal-width bins spanning their range.
// When all values are equal a single bin of width one is centered on them.
func Histogram(values []float64, maxBins int) ([]Bin, error) {
	if len(values) == 0 {
		return nil, ErrNoValues
	}
	sorted := append([]float64(nil), values...)
	sort.Float64s(sorted)
	lo, hi := sorted[0], sorted[len(sorted)-1]

	bins := BinCount(len(sorted), maxBins)
	if lo == hi {
		lo, hi = lo-0.5, hi+0.5
		bins = 1
	}

	dividers := floats.Span(make([]float64, bins+1), lo, hi)
	// stat.Histogram treats the last divider as exclusive.
	dividers[bins] = math.Nextafter(hi, math.Inf(1))
	counts := stat.Histogram(nil, dividers, sorted, nil)

	out := make([]Bin, bins)
	for i := range out {
		out[i] = Bin{Lower: dividers[i], Upper: dividers[i+1], Count: int(counts[i])}
	}
	return out, nil
}

// ScaleToCounts converts a density curve to expected counts per bin, so it
// can be drawn over a histogram of n values with the given bin width.
func ScaleToCounts(points []Point, n int, binWidth float64) []Point {
	out := make([]Point, len(points))
	scale := float64(n) * binWidth
	for i, p := range points {
		out[i] = Point{X: p.X, Density: p.Density * scale}
	}
	return out
}
