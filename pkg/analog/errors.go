package analog

import (
	"errors"
	"fmt"

	"github.com/HatiCode/analogflow/pkg/flows"
)

var (
	// ErrInsufficientHistory reports a series too short to rank or to extend.
	ErrInsufficientHistory = errors.New("insufficient history")

	// ErrNotFitted reports a prediction requested before an analog was accepted.
	ErrNotFitted = errors.New("model not fitted")

	// ErrUnknownStation reports a station missing from the series.
	ErrUnknownStation = fmt.Errorf("%w: unknown station", flows.ErrData)
)
