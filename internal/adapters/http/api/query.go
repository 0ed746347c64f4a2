package api

import (
	"net/http"

	"github.com/okian/dosewatch/internal/domain/filter"
	"github.com/okian/dosewatch/internal/domain/types"
)

// criteriaFromQuery reads exam, age, from and to. Missing parameters leave
// the matching filter disabled.
func criteriaFromQuery(r *http.Request) (filter.Criteria, error) {
	q := r.URL.Query()
	from, err := types.ParseDate(q.Get("from"))
	if err != nil {
		return filter.Criteria{}, WrapKind("parse from", ErrBadRequest, err)
	}
	to, err := types.ParseDate(q.Get("to"))
	if err != nil {
		return filter.Criteria{}, WrapKind("parse to", ErrBadRequest, err)
	}
	return filter.Criteria{
		Exam: q.Get("exam"),
		Age:  q.Get("age"),
		From: from,
		To:   to,
	}, nil
}
