package circuitbreaker

import (
	"context"
	"errors"
	"os"
)

// httpStatusError is implemented by errors carrying an HTTP status code
// (transport.APIError).
type httpStatusError interface {
	HTTPStatus() int
}

// ClassifyError returns the error weight of a delivery outcome.
//
//	nil, context.Canceled     -> 0   (not the endpoint's fault)
//	4xx except 429            -> 0   (bad payload, endpoint is healthy)
//	429                       -> 0.5
//	5xx                       -> 1.0
//	timeout                   -> 1.5
//	other transport errors    -> 1.0
func ClassifyError(err error) float64 {
	if err == nil || errors.Is(err, context.Canceled) {
		return 0
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, os.ErrDeadlineExceeded) {
		return 1.5
	}
	var he httpStatusError
	if errors.As(err, &he) {
		return classifyStatus(he.HTTPStatus())
	}
	return 1.0
}

func classifyStatus(code int) float64 {
	switch {
	case code == 429:
		return 0.5
	case code >= 500:
		return 1.0
	default:
		return 0
	}
}
