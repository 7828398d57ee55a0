package flows

import "errors"

var (
	// ErrData reports malformed or inconsistent flow data.
	ErrData = errors.New("invalid flow data")

	// ErrConflict reports a continuation that overlaps periods already in a series.
	ErrConflict = errors.New("period conflict")
)
