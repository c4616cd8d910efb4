package model

import (
	"errors"
	"fmt"
)

var (
	// ErrInsufficientCredits is an expected outcome, not a fault: the
	// caller is denied admission before anything was spent.
	ErrInsufficientCredits = errors.New("insufficient credits")

	// ErrUnknownAccount means the credit account was never initialized.
	ErrUnknownAccount = errors.New("credit account not found")

	// ErrLedgerUnavailable is returned after bounded internal retries of
	// storage conflicts have been exhausted.
	ErrLedgerUnavailable = errors.New("ledger unavailable")

	// ErrUnknownEventKind means the engagement event names a kind the
	// counter store does not track. A caller error, not a fault.
	ErrUnknownEventKind = errors.New("unknown engagement kind")
)

// UpstreamError describes a failed model invocation. Exhausted marks a
// transient (5xx / transport) failure that outlived every retry; when it
// is false the upstream rejected the request outright (4xx) and the call
// was not retried.
type UpstreamError struct {
	StatusCode int
	Body       string
	Attempts   int
	Exhausted  bool
}

func (e *UpstreamError) Error() string {
	if e.Exhausted {
		return fmt.Sprintf("model endpoint unavailable after %d attempts (last status %d): %s", e.Attempts, e.StatusCode, e.Body)
	}
	return fmt.Sprintf("model endpoint rejected request (status %d): %s", e.StatusCode, e.Body)
}

// ParseError means no structured plan could be recovered from the model
// output. Raw keeps the full text for diagnostics.
type ParseError struct {
	Raw string
}

func (e *ParseError) Error() string {
	return "no parseable plan in model output"
}
