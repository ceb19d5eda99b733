package replication

import (
	"github.com/cockroachdb/errors"
)

// Run-level failure classes. Errors returned by the transmitter are marked
// with exactly one of these.
var (
	// ErrTransientTransport covers network failures, timeouts, 429 and 5xx.
	// Retried with backoff, then aborts the run.
	ErrTransientTransport = errors.New("transient transport failure")
	// ErrAuthentication is never retried.
	ErrAuthentication = errors.New("mirror authentication failed")
	// ErrMalformedBatch means the mirror rejected the batch as a whole.
	ErrMalformedBatch = errors.New("mirror rejected batch")
)

// IsTransient reports whether err is worth retrying
func IsTransient(err error) bool {
	return errors.Is(err, ErrTransientTransport)
}

// Classify names the class of a run error for logs and metrics.
func Classify(err error) string {
	switch {
	case err == nil:
		return "success"
	case errors.Is(err, ErrAuthentication):
		return "authentication"
	case errors.Is(err, ErrMalformedBatch):
		return "malformed_batch"
	case errors.Is(err, ErrTransientTransport):
		return "transport"
	default:
		return "error"
	}
}
