// Package api declares HTTP contracts and route registration helpers.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/okian/dosewatch/internal/adapters/repository"
	service "github.com/okian/dosewatch/internal/app"
	"github.com/okian/dosewatch/internal/domain/types"
)

// Dependencies required by HTTP handlers. Using an interface bundle keeps
// the handler layer loosely coupled to implementations in other packages.
type Dependencies interface {
	OptionsDependencies
	RecordsDependencies
	ChartDependencies
	SessionDependencies
}

// Server wires HTTP routes for the business API.
type Server struct {
	healthHandler    *HealthHandler
	statsHandler     *StatsHandler
	optionsHandler   *OptionsHandler
	recordsHandler   *RecordsHandler
	chartsHandler    *ChartsHandler
	sessionsHandler  *SessionsHandler
	dashboardHandler *dashboardHandler
}

// NewServer creates a new API server with all handlers.
func NewServer(deps Dependencies, statsProvider StatsProvider) *Server {
	validate := newValidator()
	return &Server{
		healthHandler:    NewHealthHandler(),
		statsHandler:     NewStatsHandler(statsProvider),
		optionsHandler:   NewOptionsHandler(deps),
		recordsHandler:   NewRecordsHandler(deps),
		chartsHandler:    NewChartsHandler(deps),
		sessionsHandler:  NewSessionsHandler(deps, validate),
		dashboardHandler: newdashboardHandler(),
	}
}

// Register attaches all HTTP routes to mux.
func (s *Server) Register(_ context.Context, mux *http.ServeMux) {
	mux.HandleFunc("GET /healthz", MetricsMiddleware(s.healthHandler.HandleHealth, "healthz"))
	mux.HandleFunc("GET /dashboard", s.dashboardHandler.HandleDashboard)
	mux.HandleFunc("GET /stats", MetricsMiddleware(s.statsHandler.HandleStats, "stats"))

	mux.HandleFunc("GET /api/options", MetricsMiddleware(s.optionsHandler.HandleGetOptions, "options"))
	mux.HandleFunc("GET /api/records", MetricsMiddleware(s.recordsHandler.HandleGetRecords, "records"))
	mux.HandleFunc("GET /api/outliers", MetricsMiddleware(s.recordsHandler.HandleGetOutliers, "outliers"))
	mux.HandleFunc("GET /api/charts/histogram.png", MetricsMiddleware(s.chartsHandler.HandleHistogram, "histogram"))
	mux.HandleFunc("GET /api/charts/scatter.png", MetricsMiddleware(s.chartsHandler.HandleScatter, "scatter"))

	mux.HandleFunc("POST /api/sessions", MetricsMiddleware(s.sessionsHandler.HandleCreate, "sessions"))
	mux.HandleFunc("GET /api/sessions/{id}", MetricsMiddleware(s.sessionsHandler.HandleGet, "session"))
	mux.HandleFunc("DELETE /api/sessions/{id}", MetricsMiddleware(s.sessionsHandler.HandleDelete, "session"))
	mux.HandleFunc("PATCH /api/sessions/{id}/rows/{index}", MetricsMiddleware(s.sessionsHandler.HandlePatchRow, "session_row"))
	mux.HandleFunc("POST /api/sessions/{id}/commit", MetricsMiddleware(s.sessionsHandler.HandleCommit, "session_commit"))
}

type errorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code string, err error) {
	msg := http.StatusText(status)
	if err != nil {
		msg = err.Error()
	}
	writeJSON(w, status, errorResponse{Code: code, Message: msg})
}

// writeFailure maps service and store errors to status codes.
func writeFailure(w http.ResponseWriter, op string, err error) {
	switch {
	case errors.Is(err, ErrBadRequest),
		errors.Is(err, types.ErrInvalidDate),
		errors.Is(err, repository.ErrEmptyPatch),
		errors.Is(err, repository.ErrRowOutOfRange):
		writeError(w, http.StatusBadRequest, "bad_request", annotate(op, ErrBadRequest, err))
	case errors.Is(err, ErrNotFound),
		errors.Is(err, repository.ErrSessionNotFound):
		writeError(w, http.StatusNotFound, "not_found", annotate(op, ErrNotFound, err))
	case errors.Is(err, ErrConflict),
		errors.Is(err, service.ErrEmptyWorklist):
		writeError(w, http.StatusConflict, "conflict", annotate(op, ErrConflict, err))
	case errors.Is(err, service.ErrNotStarted):
		writeError(w, http.StatusServiceUnavailable, "not_ready", annotate(op, nil, err))
	default:
		writeError(w, http.StatusInternalServerError, "internal_error", annotate(op, nil, err))
	}
}

// annotate wraps err unless it already carries an operation.
func annotate(op string, kind, err error) error {
	var apiErr *Error
	if errors.As(err, &apiErr) {
		return err
	}
	if kind == nil {
		return Wrap(op, err)
	}
	return WrapKind(op, kind, err)
}
