package api

import (
	"context"
	"net/http"

	"github.com/okian/dosewatch/internal/domain/filter"
	"github.com/okian/dosewatch/internal/domain/types"
)

// RecordsDependencies is what the record and worklist handlers need.
type RecordsDependencies interface {
	Records(ctx context.Context, c filter.Criteria) types.RecordsView
	Outliers(ctx context.Context, c filter.Criteria) types.OutliersView
}

// RecordsHandler serves filtered records and the review worklist.
type RecordsHandler struct {
	deps RecordsDependencies
}

// NewRecordsHandler creates a new records handler.
func NewRecordsHandler(deps RecordsDependencies) *RecordsHandler {
	return &RecordsHandler{deps: deps}
}

// HandleGetRecords handles GET /api/records.
func (h *RecordsHandler) HandleGetRecords(w http.ResponseWriter, r *http.Request) {
	c, err := criteriaFromQuery(r)
	if err != nil {
		writeFailure(w, "records", err)
		return
	}
	writeJSON(w, http.StatusOK, h.deps.Records(r.Context(), c))
}

// HandleGetOutliers handles GET /api/outliers.
func (h *RecordsHandler) HandleGetOutliers(w http.ResponseWriter, r *http.Request) {
	c, err := criteriaFromQuery(r)
	if err != nil {
		writeFailure(w, "outliers", err)
		return
	}
	writeJSON(w, http.StatusOK, h.deps.Outliers(r.Context(), c))
}
