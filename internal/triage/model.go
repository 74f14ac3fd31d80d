package triage

import (
	"context"
	"time"

	"github.com/linnemanlabs/helpdesk/internal/ticket"
)

// Outcome messages returned to the caller.
const (
	MessageSuccess  = "Ticket triaged successfully"
	MessageNotFound = "Ticket not found"
	MessageTimeout  = "Triage operation timed out"
	MessageFailed   = "Triage operation failed"
)

// Outcome is the result of one triage run. Service.Triage always returns
// one; failures are reported here rather than as an error.
type Outcome struct {
	Success      bool                 `json:"success"`
	Kind         Kind                 `json:"kind,omitempty"`
	Message      string               `json:"message"`
	TriageResult *ticket.TriageResult `json:"triage_result,omitempty"`
	Error        string               `json:"error,omitempty"`
}

// Event describes a committed triage for notifiers.
type Event struct {
	Ticket ticket.Ticket
	Result ticket.TriageResult
}

// Notifier is told about committed triage results. Delivery is best-effort.
type Notifier interface {
	Notify(ctx context.Context, ev *Event) error
}

// CompleteEvent is passed to Hooks.OnComplete after every run.
type CompleteEvent struct {
	Kind     Kind
	Model    string
	Duration float64 // seconds, whole run
}

// Hooks are optional callbacks for metrics.
type Hooks struct {
	OnModelCall func(outcome Kind, d time.Duration)
	OnComplete  func(e *CompleteEvent)
}

func outcomeLabel(k Kind) string {
	if k == KindNone {
		return "success"
	}
	return string(k)
}
