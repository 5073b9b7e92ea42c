package engine

import (
	"errors"
	"fmt"
)

// ErrUntrained signals that scoring was attempted before any model install.
var ErrUntrained = errors.New("model not trained yet")

// ErrServiceUnavailable is the detection-facing form of the untrained
// state. It maps to "not ready yet" rather than a hard failure; training is
// strictly a background concern and is never triggered by a scoring
// request.
var ErrServiceUnavailable = errors.New("anomaly engine not ready: no trained model installed")

// InsufficientDataError reports a training matrix too small to fit on.
type InsufficientDataError struct {
	Rows int
	Min  int
}

func (e *InsufficientDataError) Error() string {
	return fmt.Sprintf("not enough training samples: got %d rows, need at least %d", e.Rows, e.Min)
}
