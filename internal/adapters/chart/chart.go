// Package chart renders dosage visualizations as PNG images.
package chart

import (
	"fmt"
	"io"
	"time"

	gochart "github.com/wcharczuk/go-chart/v2"
	"github.com/wcharczuk/go-chart/v2/drawing"

	"github.com/okian/dosewatch/internal/domain/density"
	"github.com/okian/dosewatch/internal/domain/record"
)

const (
	defaultWidth  = 900
	defaultHeight = 420
	day           = 24 * time.Hour
)

var (
	barColor   = drawing.ColorFromHex("4c78a8")
	curveColor = drawing.ColorFromHex("e45756")
	dotColor   = drawing.ColorFromHex("4c78a8")
)

// Renderer draws charts with a fixed size and bin limit.
type Renderer struct {
	width     int
	height    int
	maxBins   int
	kdePoints int
}

// Option configures a Renderer.
type Option func(*Renderer)

// WithSize sets the image size in pixels.
func WithSize(width, height int) Option {
	return func(r *Renderer) {
		if width > 0 && height > 0 {
			r.width, r.height = width, height
		}
	}
}

// WithMaxBins caps the number of histogram bins.
func WithMaxBins(n int) Option {
	return func(r *Renderer) {
		if n > 0 {
			r.maxBins = n
		}
	}
}

// WithDensityPoints sets how many points the density curve is evaluated at.
func WithDensityPoints(n int) Option {
	return func(r *Renderer) {
		if n > 1 {
			r.kdePoints = n
		}
	}
}

// New returns a Renderer.
func New(opts ...Option) *Renderer {
	r := &Renderer{
		width:     defaultWidth,
		height:    defaultHeight,
		maxBins:   density.MaxBins,
		kdePoints: density.DefaultPoints,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Histogram draws the distribution of values as bars with a kernel density
// curve scaled to counts. The curve is omitted for fewer than two values.
func (r *Renderer) Histogram(w io.Writer, title string, values []float64) error {
	bins, err := density.Histogram(values, r.maxBins)
	if err != nil {
		return ErrNoData
	}

	bars := gochart.ContinuousSeries{
		Name: "Count",
		Style: gochart.Style{
			StrokeColor: barColor,
			StrokeWidth: 1,
			FillColor:   barColor.WithAlpha(160),
		},
	}
	for _, b := range bins {
		c := float64(b.Count)
		bars.XValues = append(bars.XValues, b.Lower, b.Lower, b.Upper, b.Upper)
		bars.YValues = append(bars.YValues, 0, c, c, 0)
	}
	series := []gochart.Series{bars}

	if pts, err := density.Estimate(values, r.kdePoints); err == nil {
		curve := gochart.ContinuousSeries{
			Name:  "Density",
			Style: gochart.Style{StrokeColor: curveColor, StrokeWidth: 2},
		}
		for _, p := range density.ScaleToCounts(pts, len(values), bins[0].Width()) {
			curve.XValues = append(curve.XValues, p.X)
			curve.YValues = append(curve.YValues, p.Density)
		}
		series = append(series, curve)
	}

	ch := gochart.Chart{
		Title:      title,
		Width:      r.width,
		Height:     r.height,
		Background: gochart.Style{Padding: gochart.Box{Top: 40, Left: 16, Right: 12, Bottom: 16}},
		XAxis:      gochart.XAxis{Name: record.ColDosage},
		YAxis:      gochart.YAxis{Name: "Count"},
		Series:     series,
	}
	ch.Elements = []gochart.Renderable{gochart.Legend(&ch)}
	return render(ch, w)
}

// Scatter draws dosage over booked date with a least-squares trend line.
// Records without a date or a dosage are skipped.
func (r *Renderer) Scatter(w io.Writer, title string, records []record.Record) error {
	points := gochart.TimeSeries{
		Name: "Dosage",
		Style: gochart.Style{
			StrokeColor: drawing.ColorTransparent,
			DotWidth:    4,
			DotColor:    dotColor,
		},
	}
	for _, rec := range records {
		if rec.BookedDate == nil || rec.Dosage == nil {
			continue
		}
		points.XValues = append(points.XValues, *rec.BookedDate)
		points.YValues = append(points.YValues, *rec.Dosage)
	}
	if len(points.XValues) == 0 {
		return ErrNoData
	}

	minT, maxT := points.XValues[0], points.XValues[0]
	minY, maxY := points.YValues[0], points.YValues[0]
	for i, t := range points.XValues {
		if t.Before(minT) {
			minT = t
		}
		if t.After(maxT) {
			maxT = t
		}
		minY = min(minY, points.YValues[i])
		maxY = max(maxY, points.YValues[i])
	}

	series := []gochart.Series{points}
	xAxis := gochart.XAxis{Name: record.ColBookedDate, ValueFormatter: gochart.TimeValueFormatterWithFormat("2006-01-02")}
	yAxis := gochart.YAxis{Name: record.ColDosage}

	if minT.Equal(maxT) {
		// A zero-width time range cannot be drawn and has no trend.
		xAxis.Range = &gochart.ContinuousRange{
			Min: gochart.TimeToFloat64(minT.Add(-day)),
			Max: gochart.TimeToFloat64(maxT.Add(day)),
		}
	} else {
		series = append(series, &gochart.LinearRegressionSeries{
			Name:        "Trend",
			Style:       gochart.Style{StrokeColor: curveColor, StrokeWidth: 2},
			InnerSeries: points,
		})
	}
	if minY == maxY {
		yAxis.Range = &gochart.ContinuousRange{Min: minY - 1, Max: maxY + 1}
	}

	ch := gochart.Chart{
		Title:      title,
		Width:      r.width,
		Height:     r.height,
		Background: gochart.Style{Padding: gochart.Box{Top: 40, Left: 16, Right: 12, Bottom: 16}},
		XAxis:      xAxis,
		YAxis:      yAxis,
		Series:     series,
	}
	ch.Elements = []gochart.Renderable{gochart.Legend(&ch)}
	return render(ch, w)
}

func render(ch gochart.Chart, w io.Writer) error {
	if err := ch.Render(gochart.PNG, w); err != nil {
		return fmt.Errorf("render %q: %w", ch.Title, err)
	}
	return nil
}
