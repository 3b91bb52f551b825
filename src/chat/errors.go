package chat

import (
	"context"
	"errors"
	"fmt"
)

// ErrAborted marks a user-requested cancellation. It is distinguished from
// transport and upstream failures so callers can suppress error banners
// for cancellations they initiated themselves.
var ErrAborted = errors.New("request aborted")

// TransportError wraps a network-level failure reaching the proxy.
type TransportError struct {
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("transport error: %v", e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// UpstreamError is a non-success HTTP status from the proxy. Body is
// truncated to keep logs and UI surfaces bounded.
type UpstreamError struct {
	StatusCode int
	Body       string
}

func (e *UpstreamError) Error() string {
	return fmt.Sprintf("upstream error: status %d: %s", e.StatusCode, e.Body)
}

// ProtocolError is a stream that could not be reduced to blocks. Individual
// malformed fragments are skipped locally; this error only surfaces when
// the stream itself ends abnormally.
type ProtocolError struct {
	Reason string
	Err    error
}

func (e *ProtocolError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("protocol error: %s: %v", e.Reason, e.Err)
	}
	return fmt.Sprintf("protocol error: %s", e.Reason)
}

func (e *ProtocolError) Unwrap() error { return e.Err }

// IsAborted reports whether err represents cancellation rather than failure.
func IsAborted(err error) bool {
	return errors.Is(err, ErrAborted) || errors.Is(err, context.Canceled)
}
