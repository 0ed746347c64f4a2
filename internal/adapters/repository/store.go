// Package repository holds review sessions: private, editable copies of a
// flagged worklist.
package repository

import (
	"context"
	"time"

	"github.com/okian/dosewatch/internal/domain/filter"
	"github.com/okian/dosewatch/internal/domain/record"
)

// Session is one reviewer's worklist.
type Session struct {
	ID        string             `json:"id"`
	Criteria  filter.Criteria    `json:"criteria"`
	Columns   []string           `json:"columns"`
	Rows      []record.Annotated `json:"rows"`
	Edits     int                `json:"edits"`
	CreatedAt time.Time          `json:"created_at"`
	UpdatedAt time.Time          `json:"updated_at"`
}

// Patch describes a change to one worklist row. Nil fields are left as is.
// ClearDosage sets the dosage to null and wins over Dosage.
type Patch struct {
	BookedDate  *time.Time
	ExamName    *string
	Dosage      *float64
	ClearDosage bool
	AgeGroup    *string
	Extra       map[string]string
}

// IsZero reports whether the patch changes nothing.
func (p Patch) IsZero() bool {
	return p.BookedDate == nil && p.ExamName == nil && p.Dosage == nil &&
		!p.ClearDosage && p.AgeGroup == nil && len(p.Extra) == 0
}

// Apply writes the patch onto row. The derived mean column is untouched.
func (p Patch) Apply(row *record.Annotated) {
	if p.BookedDate != nil {
		d := *p.BookedDate
		row.BookedDate = &d
	}
	if p.ExamName != nil {
		row.ExamName = *p.ExamName
	}
	switch {
	case p.ClearDosage:
		row.Dosage = nil
	case p.Dosage != nil:
		v := *p.Dosage
		row.Dosage = &v
	}
	if p.AgeGroup != nil {
		row.AgeGroup = *p.AgeGroup
	}
	if len(p.Extra) > 0 {
		if row.Extra == nil {
			row.Extra = make(map[string]string, len(p.Extra))
		}
		for k, v := range p.Extra {
			row.Extra[k] = v
		}
	}
}

// Store provides access to review sessions. Implementations return copies,
// so callers never share rows with the store or with each other.
type Store interface {
	// Create opens a session over a copy of rows.
	Create(ctx context.Context, criteria filter.Criteria, columns []string, rows []record.Annotated) (Session, error)

	// Get returns the session. Returns ErrSessionNotFound if it is unknown.
	Get(ctx context.Context, id string) (Session, error)

	// UpdateRow applies p to the row at index and returns the updated row.
	UpdateRow(ctx context.Context, id string, index int, p Patch) (record.Annotated, error)

	// Delete closes the session.
	Delete(ctx context.Context, id string) error

	// Count returns the number of open sessions.
	Count(ctx context.Context) int
}
