package api

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net/http"
	"strconv"

	"github.com/okian/dosewatch/internal/adapters/chart"
	"github.com/okian/dosewatch/internal/domain/filter"
	"github.com/okian/dosewatch/internal/domain/types"
)

// ChartDependencies renders charts for a filter.
type ChartDependencies interface {
	Histogram(ctx context.Context, c filter.Criteria, w io.Writer) error
	Scatter(ctx context.Context, c filter.Criteria, w io.Writer) error
}

// ChartsHandler serves PNG charts.
type ChartsHandler struct {
	deps ChartDependencies
}

// NewChartsHandler creates a new charts handler.
func NewChartsHandler(deps ChartDependencies) *ChartsHandler {
	return &ChartsHandler{deps: deps}
}

// HandleHistogram handles GET /api/charts/histogram.png.
func (h *ChartsHandler) HandleHistogram(w http.ResponseWriter, r *http.Request) {
	h.serve(w, r, "histogram", h.deps.Histogram)
}

// HandleScatter handles GET /api/charts/scatter.png.
func (h *ChartsHandler) HandleScatter(w http.ResponseWriter, r *http.Request) {
	h.serve(w, r, "scatter", h.deps.Scatter)
}

// serve renders into a buffer first so a failed render never leaves a
// partial image on the wire. No data is answered with 204 and a message
// header.
func (h *ChartsHandler) serve(w http.ResponseWriter, r *http.Request, op string,
	render func(context.Context, filter.Criteria, io.Writer) error,
) {
	c, err := criteriaFromQuery(r)
	if err != nil {
		writeFailure(w, op, err)
		return
	}
	var buf bytes.Buffer
	err = render(r.Context(), c, &buf)
	switch {
	case errors.Is(err, chart.ErrNoData):
		w.Header().Set("X-Dosewatch-Message", types.NoDataMessage)
		w.WriteHeader(http.StatusNoContent)
		return
	case err != nil:
		writeFailure(w, op, err)
		return
	}
	w.Header().Set("Content-Type", "image/png")
	w.Header().Set("Content-Length", strconv.Itoa(buf.Len()))
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(http.StatusOK)
	_, _ = buf.WriteTo(w)
}
