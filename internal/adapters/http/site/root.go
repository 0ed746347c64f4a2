// Package site handles requests outside the API: the landing redirect and
// the favicon probe browsers send to every host.
package site

import (
	"context"
	"net/http"
)

// Landing is where the site root sends browsers.
const Landing = "/dashboard"

// Register attaches the root routes to mux.
func Register(_ context.Context, mux *http.ServeMux) {
	if mux == nil {
		panic("mux is nil")
	}
	root := NewRootHandler(Landing)
	mux.HandleFunc("GET /{$}", root.HandleRoot)
	mux.HandleFunc("GET /favicon.ico", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})
}

// RootHandler handles root path requests.
type RootHandler struct {
	target string
}

// NewRootHandler creates a root handler redirecting to target.
func NewRootHandler(target string) *RootHandler {
	return &RootHandler{target: target}
}

// HandleRoot redirects GET / to the dashboard.
func (h *RootHandler) HandleRoot(w http.ResponseWriter, r *http.Request) {
	http.Redirect(w, r, h.target, http.StatusFound)
}
