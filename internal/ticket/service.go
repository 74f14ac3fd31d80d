package ticket

import (
	"context"
	"fmt"
	"net/mail"
	"time"
	"unicode/utf8"

	"github.com/linnemanlabs/go-core/log"
	"github.com/oklog/ulid/v2"
)

const (
	maxTitleLen      = 255
	maxReplyExcerpt  = 100
	replyExcerptTail = "..."
)

// ValidationError reports an invalid input field.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// NewTicket is the input for creating a ticket.
type NewTicket struct {
	Title         string   `json:"title"`
	Description   string   `json:"description"`
	CustomerEmail string   `json:"customer_email"`
	Tags          []string `json:"tags"`
}

// Validate checks the ticket creation input.
func (n *NewTicket) Validate() error {
	if err := validateTitle(n.Title); err != nil {
		return err
	}
	if n.Description == "" {
		return &ValidationError{Field: "description", Reason: "must not be empty"}
	}
	addr, err := mail.ParseAddress(n.CustomerEmail)
	if err != nil || addr.Address != n.CustomerEmail {
		return &ValidationError{Field: "customer_email", Reason: "must be a plain email address"}
	}
	return nil
}

func validateTitle(title string) error {
	n := utf8.RuneCountInString(title)
	if n == 0 {
		return &ValidationError{Field: "title", Reason: "must not be empty"}
	}
	if n > maxTitleLen {
		return &ValidationError{Field: "title", Reason: fmt.Sprintf("must be at most %d characters", maxTitleLen)}
	}
	return nil
}

// ReplyDraft is a reply a responder accepted or edited from a triage draft.
type ReplyDraft struct {
	Text     string `json:"reply_text"`
	Accepted bool   `json:"accepted"`
}

// Service implements ticket CRUD and activity logging on top of a Store.
type Service struct {
	store  Store
	logger log.Logger
	now    func() time.Time
}

// NewService creates a ticket service.
func NewService(store Store, logger log.Logger) *Service {
	if logger == nil {
		logger = log.Nop()
	}
	return &Service{
		store:  store,
		logger: logger,
		now:    func() time.Time { return time.Now().UTC() },
	}
}

// Create validates and stores a new open ticket and logs its creation.
func (s *Service) Create(ctx context.Context, in *NewTicket) (*View, error) {
	if err := in.Validate(); err != nil {
		return nil, err
	}

	now := s.now()
	tags := in.Tags
	if tags == nil {
		tags = []string{}
	}
	t := &Ticket{
		ID:            ulid.Make().String(),
		Title:         in.Title,
		Description:   in.Description,
		CustomerEmail: in.CustomerEmail,
		Status:        StatusOpen,
		Tags:          tags,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	entry := &Activity{
		ID:          ulid.Make().String(),
		TicketID:    t.ID,
		Action:      ActionCreated,
		Actor:       ActorSystem,
		Description: "Ticket created by " + in.CustomerEmail,
		Metadata:    map[string]any{"title": in.Title},
		CreatedAt:   now,
	}

	if err := s.store.CreateTicket(ctx, t, entry); err != nil {
		return nil, fmt.Errorf("create ticket: %w", err)
	}

	s.logger.Info(ctx, "ticket created", "ticket_id", t.ID)

	return &View{Ticket: *t, Activity: []Activity{*entry}}, nil
}

// Get returns the ticket with its triage result and activity history.
func (s *Service) Get(ctx context.Context, id string) (*View, bool, error) {
	t, ok, err := s.store.GetTicket(ctx, id)
	if err != nil || !ok {
		return nil, ok, err
	}
	v, err := s.view(ctx, t)
	if err != nil {
		return nil, false, err
	}
	return v, true, nil
}

// List returns tickets matching f, newest first.
func (s *Service) List(ctx context.Context, f Filter) ([]View, error) {
	tickets, err := s.store.ListTickets(ctx, f)
	if err != nil {
		return nil, fmt.Errorf("list tickets: %w", err)
	}
	out := make([]View, 0, len(tickets))
	for i := range tickets {
		v, err := s.view(ctx, &tickets[i])
		if err != nil {
			return nil, err
		}
		out = append(out, *v)
	}
	return out, nil
}

// Update applies p to the ticket. An activity entry is logged only when a
// field actually changed. Returns ErrNotFound if the ticket does not exist.
func (s *Service) Update(ctx context.Context, id string, p *Patch) (*View, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}

	_, err := s.store.UpdateTicket(ctx, id, func(t *Ticket) (*Activity, error) {
		changes := p.Apply(t)
		if len(changes) == 0 {
			return nil, nil
		}
		now := s.now()
		t.UpdatedAt = now
		return newUpdateActivity(ulid.Make().String(), t.ID, p, changes, now), nil
	})
	if err != nil {
		return nil, err
	}

	v, ok, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrNotFound
	}
	return v, nil
}

// Delete removes the ticket together with its triage result and history.
func (s *Service) Delete(ctx context.Context, id string) error {
	if err := s.store.DeleteTicket(ctx, id); err != nil {
		return err
	}
	s.logger.Info(ctx, "ticket deleted", "ticket_id", id)
	return nil
}

// SaveReply records that a reply draft was accepted or edited and saved.
// It returns the verb used in the activity description.
func (s *Service) SaveReply(ctx context.Context, id string, d *ReplyDraft) (string, error) {
	action := "edited"
	if d.Accepted {
		action = "accepted"
	}

	excerpt := d.Text
	if utf8.RuneCountInString(excerpt) > maxReplyExcerpt {
		excerpt = string([]rune(excerpt)[:maxReplyExcerpt]) + replyExcerptTail
	}

	entry := &Activity{
		ID:          ulid.Make().String(),
		TicketID:    id,
		Action:      ActionReplySaved,
		Actor:       ActorUser,
		Description: fmt.Sprintf("Reply draft %s and saved", action),
		Metadata: map[string]any{
			"reply_text": excerpt,
			"accepted":   d.Accepted,
		},
		CreatedAt: s.now(),
	}
	if err := s.store.AppendActivity(ctx, entry); err != nil {
		return "", err
	}
	return action, nil
}

func (s *Service) view(ctx context.Context, t *Ticket) (*View, error) {
	tr, ok, err := s.store.GetTriage(ctx, t.ID)
	if err != nil {
		return nil, fmt.Errorf("get triage for %s: %w", t.ID, err)
	}
	if !ok {
		tr = nil
	}
	activity, err := s.store.ListActivity(ctx, t.ID)
	if err != nil {
		return nil, fmt.Errorf("list activity for %s: %w", t.ID, err)
	}
	if activity == nil {
		activity = []Activity{}
	}
	return &View{Ticket: *t, TriageResult: tr, Activity: activity}, nil
}
