package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"

	"github.com/go-playground/validator/v10"

	"github.com/okian/dosewatch/internal/adapters/repository"
	"github.com/okian/dosewatch/internal/domain/filter"
	"github.com/okian/dosewatch/internal/domain/types"
)

const maxBodyBytes = 1 << 20

// SessionDependencies is what the review session handlers need.
type SessionDependencies interface {
	CreateSession(ctx context.Context, c filter.Criteria) (types.SessionView, error)
	Session(ctx context.Context, id string) (types.SessionView, error)
	EditRow(ctx context.Context, id string, index int, p repository.Patch) (types.Row, error)
	Commit(ctx context.Context, id string) (types.CommitResult, error)
	DeleteSession(ctx context.Context, id string) error
}

// SessionsHandler serves review sessions.
type SessionsHandler struct {
	deps     SessionDependencies
	validate *validator.Validate
}

// NewSessionsHandler creates a new sessions handler.
func NewSessionsHandler(deps SessionDependencies, validate *validator.Validate) *SessionsHandler {
	return &SessionsHandler{deps: deps, validate: validate}
}

// patchRequest is the body of PATCH /api/sessions/{id}/rows/{index}.
type patchRequest struct {
	BookedDate  *types.Date       `json:"booked_date"`
	ExamName    *string           `json:"exam_name" validate:"omitempty,min=1,max=200"`
	Dosage      *float64          `json:"dosage" validate:"omitempty,gte=0,lte=100000"`
	ClearDosage bool              `json:"clear_dosage" validate:"excluded_with=Dosage"`
	AgeGroup    *string           `json:"age_group" validate:"omitempty,max=64"`
	Extra       map[string]string `json:"extra" validate:"omitempty,max=64"`
}

func (p patchRequest) patch() repository.Patch {
	return repository.Patch{
		BookedDate:  p.BookedDate.Ptr(),
		ExamName:    p.ExamName,
		Dosage:      p.Dosage,
		ClearDosage: p.ClearDosage,
		AgeGroup:    p.AgeGroup,
		Extra:       p.Extra,
	}
}

// decodeBody decodes JSON from r into v. An empty body leaves v untouched.
func decodeBody(r *http.Request, op string, v any) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		if errors.Is(err, io.EOF) {
			return nil
		}
		return WrapKind(op, ErrBadRequest, err)
	}
	return nil
}

// HandleCreate handles POST /api/sessions. The body holds the criteria.
func (h *SessionsHandler) HandleCreate(w http.ResponseWriter, r *http.Request) {
	const op = "create session"
	var c types.Criteria
	if err := decodeBody(r, op, &c); err != nil {
		writeFailure(w, op, err)
		return
	}
	view, err := h.deps.CreateSession(r.Context(), c.Filter())
	if err != nil {
		writeFailure(w, op, err)
		return
	}
	w.Header().Set("Location", "/api/sessions/"+view.ID)
	writeJSON(w, http.StatusCreated, view)
}

// HandleGet handles GET /api/sessions/{id}.
func (h *SessionsHandler) HandleGet(w http.ResponseWriter, r *http.Request) {
	view, err := h.deps.Session(r.Context(), r.PathValue("id"))
	if err != nil {
		writeFailure(w, "get session", err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

// HandlePatchRow handles PATCH /api/sessions/{id}/rows/{index}.
func (h *SessionsHandler) HandlePatchRow(w http.ResponseWriter, r *http.Request) {
	const op = "edit row"
	index, err := strconv.Atoi(r.PathValue("index"))
	if err != nil {
		writeFailure(w, op, WrapKind(op, ErrBadRequest, err))
		return
	}
	var req patchRequest
	if err := decodeBody(r, op, &req); err != nil {
		writeFailure(w, op, err)
		return
	}
	if err := validateRequest(h.validate, op, req); err != nil {
		writeFailure(w, op, err)
		return
	}
	row, err := h.deps.EditRow(r.Context(), r.PathValue("id"), index, req.patch())
	if err != nil {
		writeFailure(w, op, err)
		return
	}
	writeJSON(w, http.StatusOK, row)
}

// HandleCommit handles POST /api/sessions/{id}/commit.
func (h *SessionsHandler) HandleCommit(w http.ResponseWriter, r *http.Request) {
	res, err := h.deps.Commit(r.Context(), r.PathValue("id"))
	if err != nil {
		writeFailure(w, "commit session", err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// HandleDelete handles DELETE /api/sessions/{id}.
func (h *SessionsHandler) HandleDelete(w http.ResponseWriter, r *http.Request) {
	if err := h.deps.DeleteSession(r.Context(), r.PathValue("id")); err != nil {
		writeFailure(w, "delete session", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
