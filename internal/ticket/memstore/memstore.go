// Package memstore provides an in-memory implementation of ticket.Store.
package memstore

import (
	"cmp"
	"context"
	"maps"
	"slices"
	"sync"

	"github.com/linnemanlabs/helpdesk/internal/ticket"
)

// Store holds tickets in memory. Suitable for dev/testing.
//
// A single mutex serializes every write, which trivially satisfies the
// per-ticket serialization ticket.Store requires.
type Store struct {
	mu       sync.RWMutex
	tickets  map[string]*ticket.Ticket       // ticket ID -> ticket
	triage   map[string]*ticket.TriageResult // ticket ID -> live triage result
	activity map[string][]ticket.Activity    // ticket ID -> history, oldest first
}

// New initializes a new in-memory Store.
func New() *Store {
	return &Store{
		tickets:  make(map[string]*ticket.Ticket),
		triage:   make(map[string]*ticket.TriageResult),
		activity: make(map[string][]ticket.Activity),
	}
}

// CreateTicket stores a copy of t together with its creation entry.
func (s *Store) CreateTicket(_ context.Context, t *ticket.Ticket, entry *ticket.Activity) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tickets[t.ID] = t.Clone()
	if entry != nil {
		s.activity[t.ID] = append(s.activity[t.ID], cloneActivity(entry))
	}
	return nil
}

// GetTicket retrieves a ticket by ID. Returns a copy.
func (s *Store) GetTicket(_ context.Context, id string) (*ticket.Ticket, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	t, ok := s.tickets[id]
	if !ok {
		return nil, false, nil
	}
	return t.Clone(), true, nil
}

// ListTickets returns copies of tickets matching f, newest first.
func (s *Store) ListTickets(_ context.Context, f ticket.Filter) ([]ticket.Ticket, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]ticket.Ticket, 0, len(s.tickets))
	for _, t := range s.tickets {
		if f.Matches(t) {
			out = append(out, *t.Clone())
		}
	}
	slices.SortFunc(out, func(a, b ticket.Ticket) int {
		if c := b.CreatedAt.Compare(a.CreatedAt); c != 0 {
			return c
		}
		return cmp.Compare(b.ID, a.ID)
	})
	return out, nil
}

// UpdateTicket runs fn against a copy of the ticket and commits the copy and
// the returned activity entry together.
func (s *Store) UpdateTicket(_ context.Context, id string, fn ticket.MutateFunc) (*ticket.Ticket, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cur, ok := s.tickets[id]
	if !ok {
		return nil, ticket.ErrNotFound
	}
	next := cur.Clone()
	entry, err := fn(next)
	if err != nil {
		return nil, err
	}
	if entry == nil {
		return cur.Clone(), nil
	}
	s.tickets[id] = next
	s.activity[id] = append(s.activity[id], cloneActivity(entry))
	return next.Clone(), nil
}

// DeleteTicket removes a ticket and everything that belongs to it.
func (s *Store) DeleteTicket(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.tickets[id]; !ok {
		return ticket.ErrNotFound
	}
	delete(s.tickets, id)
	delete(s.triage, id)
	delete(s.activity, id)
	return nil
}

// GetTriage retrieves the live triage result for a ticket. Returns a copy.
func (s *Store) GetTriage(_ context.Context, ticketID string) (*ticket.TriageResult, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.triage[ticketID]
	if !ok {
		return nil, false, nil
	}
	return r.Clone(), true, nil
}

// ListActivity returns a copy of the ticket's history, oldest first.
func (s *Store) ListActivity(_ context.Context, ticketID string) ([]ticket.Activity, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	src := s.activity[ticketID]
	out := make([]ticket.Activity, 0, len(src))
	for i := range src {
		out = append(out, cloneActivity(&src[i]))
	}
	return out, nil
}

// AppendActivity appends an entry to an existing ticket's history.
func (s *Store) AppendActivity(_ context.Context, entry *ticket.Activity) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.tickets[entry.TicketID]; !ok {
		return ticket.ErrNotFound
	}
	s.activity[entry.TicketID] = append(s.activity[entry.TicketID], cloneActivity(entry))
	return nil
}

// ApplyTriage replaces the triage result, updates the ticket and appends the
// entry under one lock acquisition.
func (s *Store) ApplyTriage(_ context.Context, r *ticket.TriageResult, entry *ticket.Activity) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cur, ok := s.tickets[r.TicketID]
	if !ok {
		return ticket.ErrNotFound
	}

	next := cur.Clone()
	p := r.Priority
	next.Priority = &p
	next.AssignedTo = nil
	if r.SuggestedAssignee != nil {
		a := *r.SuggestedAssignee
		next.AssignedTo = &a
	}
	next.UpdatedAt = r.TriagedAt

	s.triage[r.TicketID] = r.Clone()
	s.tickets[r.TicketID] = next
	s.activity[r.TicketID] = append(s.activity[r.TicketID], cloneActivity(entry))
	return nil
}

func cloneActivity(a *ticket.Activity) ticket.Activity {
	cp := *a
	cp.Metadata = maps.Clone(a.Metadata)
	return cp
}
