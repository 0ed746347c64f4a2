package api

import (
	"context"
	"net/http"

	"github.com/okian/dosewatch/internal/domain/types"
)

// OptionsDependencies is what the options handler needs from the service.
type OptionsDependencies interface {
	Options(ctx context.Context) types.Options
}

// OptionsHandler serves the filter choices.
type OptionsHandler struct {
	deps OptionsDependencies
}

// NewOptionsHandler creates a new options handler.
func NewOptionsHandler(deps OptionsDependencies) *OptionsHandler {
	return &OptionsHandler{deps: deps}
}

// HandleGetOptions handles GET /api/options.
func (h *OptionsHandler) HandleGetOptions(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.deps.Options(r.Context()))
}
