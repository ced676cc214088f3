package conversation

import (
	"errors"
	"fmt"
	"time"
)

// ErrEmptyMessage rejects a send with neither content nor attachments.
// It never reaches the network.
var ErrEmptyMessage = errors.New("message requires content or an attachment")

// ErrNoTicket means an operation was called before a conversation loaded.
var ErrNoTicket = errors.New("no ticket loaded")

// RateLimitedError is the client-side gate rejection. RetryAfter is how
// long until the oldest recorded send exits the window, so the caller can
// show a cooldown countdown instead of a generic failure.
type RateLimitedError struct {
	RetryAfter time.Duration
}

func (e *RateLimitedError) Error() string {
	return fmt.Sprintf("rate limited, retry in %s", e.RetryAfter.Round(time.Second))
}

// SendFailedError wraps a remote send failure. The optimistic placeholder
// has already been rolled back when the caller sees this; the typed
// content stays with the caller for resubmission.
type SendFailedError struct {
	Err error
}

func (e *SendFailedError) Error() string { return "send failed: " + e.Err.Error() }
func (e *SendFailedError) Unwrap() error { return e.Err }

// FetchFailedError wraps a remote read failure. No automatic retry; the
// caller re-invokes Load explicitly.
type FetchFailedError struct {
	Err error
}

func (e *FetchFailedError) Error() string { return "failed to load ticket: " + e.Err.Error() }
func (e *FetchFailedError) Unwrap() error { return e.Err }

// StatusUpdateFailedError wraps a remote status-change failure; the local
// status has already been rolled back.
type StatusUpdateFailedError struct {
	Err error
}

func (e *StatusUpdateFailedError) Error() string { return "status update failed: " + e.Err.Error() }
func (e *StatusUpdateFailedError) Unwrap() error { return e.Err }
