package ticket

import (
	"context"
	"errors"
)

// ErrNotFound is returned by Store methods when the ticket does not exist.
var ErrNotFound = errors.New("ticket not found")

// Filter narrows ListTickets by equality on status and priority. Zero values match everything.
type Filter struct {
	Status   Status
	Priority Priority
}

// Matches reports whether t satisfies the filter.
func (f Filter) Matches(t *Ticket) bool {
	if f.Status != "" && t.Status != f.Status {
		return false
	}
	if f.Priority != "" && (t.Priority == nil || *t.Priority != f.Priority) {
		return false
	}
	return true
}

// MutateFunc edits a ticket in place while the store holds it exclusively.
// It returns the activity entry to append alongside the write, or nil when
// nothing changed and no write should happen.
type MutateFunc func(t *Ticket) (*Activity, error)

// Store is the persistence interface for tickets, triage results and activity.
//
// Every write is atomic. UpdateTicket and ApplyTriage serialize per ticket so
// that a ticket's priority and assignee never drift from its live triage result.
type Store interface {
	CreateTicket(ctx context.Context, t *Ticket, entry *Activity) error
	GetTicket(ctx context.Context, id string) (*Ticket, bool, error)
	ListTickets(ctx context.Context, f Filter) ([]Ticket, error)
	UpdateTicket(ctx context.Context, id string, fn MutateFunc) (*Ticket, error)
	DeleteTicket(ctx context.Context, id string) error

	GetTriage(ctx context.Context, ticketID string) (*TriageResult, bool, error)
	ListActivity(ctx context.Context, ticketID string) ([]Activity, error)
	AppendActivity(ctx context.Context, entry *Activity) error

	// ApplyTriage replaces the ticket's triage result with r, copies r's
	// priority and assignee onto the ticket, sets its updated time to
	// r.TriagedAt, and appends entry. All or nothing.
	ApplyTriage(ctx context.Context, r *TriageResult, entry *Activity) error
}
