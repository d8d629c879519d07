package sensorapi

import (
	"errors"
	"fmt"
)

// ErrUnreachable is the terminal failure after the retry budget is spent or
// no endpoint could be resolved at all. It is distinguishable from an empty
// success: a query with zero readings in range returns a nil error.
var ErrUnreachable = errors.New("sensor gateway unreachable")

// StatusError reports a non-2xx answer from a resolved, reachable endpoint.
// The server is up but rejecting, so these get a smaller retry budget than
// transient network failures.
type StatusError struct {
	Code int
	Path string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("gateway returned status %d for %s", e.Code, e.Path)
}

// IsStatusError reports whether err is (or wraps) a StatusError.
func IsStatusError(err error) (*StatusError, bool) {
	var se *StatusError
	if errors.As(err, &se) {
		return se, true
	}
	return nil, false
}
