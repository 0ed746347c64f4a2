package repository

import "errors"

// Sentinel kinds for review session errors.
var (
	ErrSessionNotFound = errors.New("review session not found")
	ErrRowOutOfRange   = errors.New("row index out of range")
	ErrEmptyPatch      = errors.New("patch changes nothing")
)
