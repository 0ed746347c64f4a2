package dataset

import "errors"

// Sentinel kinds for dataset errors.
var (
	ErrMissingColumn     = errors.New("required column missing")
	ErrUnsupportedFormat = errors.New("unsupported dataset format")
	ErrEmptyDataset      = errors.New("dataset has no header row")
	ErrFetch             = errors.New("dataset fetch failed")
)
