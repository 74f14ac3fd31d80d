package triage

import (
	"context"
	"errors"

	"github.com/linnemanlabs/helpdesk/internal/ticket"
)

var (
	// ErrNotFound means the ticket to triage does not exist. No model call is made.
	ErrNotFound = errors.New("ticket not found")

	// ErrTimeout means the model call did not finish within the configured bound.
	ErrTimeout = errors.New("model call timed out")

	// ErrUpstream wraps any transport or provider error from the model call.
	ErrUpstream = errors.New("model call failed")

	// ErrMalformedResponse means the model output violated the response contract.
	ErrMalformedResponse = errors.New("malformed model response")

	// ErrPersistence means the outcome could not be written to the store.
	ErrPersistence = errors.New("persist triage")
)

// Kind is the stable, machine-readable name of a triage failure.
type Kind string

const (
	KindNone              Kind = ""
	KindNotFound          Kind = "not_found"
	KindTimeout           Kind = "timeout"
	KindUpstream          Kind = "upstream_failure"
	KindMalformedResponse Kind = "malformed_response"
	KindPersistence       Kind = "persistence"
)

// KindOf maps an error chain to its failure kind. Unclassified errors are
// reported as upstream failures.
func KindOf(err error) Kind {
	switch {
	case err == nil:
		return KindNone
	case errors.Is(err, ErrNotFound), errors.Is(err, ticket.ErrNotFound):
		return KindNotFound
	case errors.Is(err, ErrTimeout), errors.Is(err, context.DeadlineExceeded):
		return KindTimeout
	case errors.Is(err, ErrMalformedResponse):
		return KindMalformedResponse
	case errors.Is(err, ErrPersistence):
		return KindPersistence
	default:
		return KindUpstream
	}
}
