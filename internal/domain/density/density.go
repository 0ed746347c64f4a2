// Package density estimates the probability density of dosage values with
// a Gaussian kernel, for overlaying on histograms.
package density

import (
	"errors"
	"math"
	"sort"

	"gonum.org/v1/gonum/stat"
	"gonum.org/v1/gonum/stat/distuv"
)

// ErrTooFewValues is returned when fewer than two values are provided.
var ErrTooFewValues = errors.New("density needs at least two values")

// DefaultPoints is the number of evaluation points along the value range.
const DefaultPoints = 100

// Point is one evaluated point of the estimated density curve.
type Point struct {
	X       float64 `json:"x"`
	Density float64 `json:"density"`
}

// Bandwidth returns Silverman's rule-of-thumb bandwidth
// 0.9·min(σ, IQR/1.34)·n^(-1/5). It falls back to σ when the IQR is zero
// and to 1 when all values are equal.
func Bandwidth(values []float64) float64 {
	n := float64(len(values))
	if n < 2 {
		return 1
	}
	sorted := append([]float64(nil), values...)
	sort.Float64s(sorted)
	sd := stat.StdDev(sorted, nil)
	iqr := stat.Quantile(0.75, stat.Empirical, sorted, nil) - stat.Quantile(0.25, stat.Empirical, sorted, nil)
	spread := sd
	if iqr > 0 && iqr/1.34 < sd {
		spread = iqr / 1.34
	}
	if spread <= 0 || math.IsNaN(spread) {
		return 1
	}
	return 0.9 * spread * math.Pow(n, -0.2)
}

// Estimate evaluates the kernel density of values at points evenly spaced
// points spanning the value range, padded by three bandwidths on each side.
func Estimate(values []float64, points int) ([]Point, error) {
	if len(values) < 2 {
		return nil, ErrTooFewValues
	}
	if points < 2 {
		points = DefaultPoints
	}
	h := Bandwidth(values)
	lo, hi := values[0], values[0]
	for _, v := range values {
		lo = math.Min(lo, v)
		hi = math.Max(hi, v)
	}
	lo -= 3 * h
	hi += 3 * h
	step := (hi - lo) / float64(points-1)

	kernels := make([]distuv.Normal, len(values))
	for i, v := range values {
		kernels[i] = distuv.Normal{Mu: v, Sigma: h}
	}
	n := float64(len(values))
	out := make([]Point, points)
	for i := range out {
		x := lo + float64(i)*step
		var sum float64
		for _, k := range kernels {
			sum += k.Prob(x)
		}
		out[i] = Point{X: x, Density: sum / n}
	}
	return out, nil
}
