package energycharts

import "errors"

// Failure taxonomy for API fetches. ErrNotFound is terminal and never
// retried; the other three are retried up to the attempt budget and the
// last one observed is surfaced to the caller.
var (
	ErrConnection = errors.New("energycharts: connection failed")
	ErrTimeout    = errors.New("energycharts: request timed out")
	ErrNotFound   = errors.New("energycharts: resource not found")
	ErrData       = errors.New("energycharts: invalid data")
)
