package beacon

import "errors"

// Sentinel errors for the beacon domain.
var (
	ErrMissingIdentity   = errors.New("userId or anonymousId is required")
	ErrMissingEvent      = errors.New("event name is required")
	ErrMissingPreviousID = errors.New("previousId is required")
	ErrUnknownType       = errors.New("unknown event type")
	ErrClosed            = errors.New("client closed")
	ErrBreakerOpen       = errors.New("circuit breaker open")
	ErrRejected          = errors.New("endpoint rejected payload")
	ErrNotFound          = errors.New("not found")
	ErrBadRequest        = errors.New("bad request")
)
