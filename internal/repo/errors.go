package repo

import "fmt"

// UpstreamError wraps a failure reaching or parsing the metrics store.
type UpstreamError struct {
	Op  string
	Err error
}

func (e *UpstreamError) Error() string {
	return fmt.Sprintf("prometheus %s: %v", e.Op, e.Err)
}

func (e *UpstreamError) Unwrap() error {
	return e.Err
}

func upstream(op string, err error) error {
	return &UpstreamError{Op: op, Err: err}
}
