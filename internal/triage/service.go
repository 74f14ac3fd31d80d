package triage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/oklog/ulid/v2"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/linnemanlabs/go-core/log"
	"github.com/linnemanlabs/go-core/xerrors"

	"github.com/linnemanlabs/helpdesk/internal/ticket"
)

var tracer = otel.Tracer("github.com/linnemanlabs/helpdesk/internal/triage")

// Service runs triage for a ticket: load, prompt, bounded model call,
// validation, and one atomic write through ticket.Store.ApplyTriage.
type Service struct {
	store     ticket.Store
	prompts   *PromptBuilder
	gateway   *Gateway
	logger    log.Logger
	hooks     Hooks
	notifiers []Notifier
	now       func() time.Time
}

// NewService creates a triage service. Nil notifiers are ignored.
func NewService(store ticket.Store, prompts *PromptBuilder, gateway *Gateway, logger log.Logger, hooks Hooks, notifiers ...Notifier) *Service {
	if store == nil {
		panic(xerrors.New("triage.NewService: nil store"))
	}
	if gateway == nil {
		panic(xerrors.New("triage.NewService: nil gateway"))
	}
	if prompts == nil {
		prompts = NewPromptBuilder(nil, 0)
	}
	if logger == nil {
		logger = log.Nop()
	}
	var ns []Notifier
	for _, n := range notifiers {
		if n != nil {
			ns = append(ns, n)
		}
	}
	return &Service{
		store:     store,
		prompts:   prompts,
		gateway:   gateway,
		logger:    logger,
		hooks:     hooks,
		notifiers: ns,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// Triage classifies the ticket and persists the result. A failed run leaves
// the ticket, its previous triage result and its activity log untouched.
func (s *Service) Triage(ctx context.Context, ticketID string) *Outcome {
	ctx, span := tracer.Start(ctx, "triage.run", trace.WithAttributes(
		attribute.String("helpdesk.ticket.id", ticketID),
	))
	defer span.End()

	L := s.logger.With("ticket_id", ticketID)
	start := time.Now()

	t, r, err := s.run(ctx, ticketID)
	kind := KindOf(err)

	if s.hooks.OnComplete != nil {
		s.hooks.OnComplete(&CompleteEvent{
			Kind:     kind,
			Model:    s.gateway.Model(),
			Duration: time.Since(start).Seconds(),
		})
	}
	span.SetAttributes(attribute.String("helpdesk.triage.outcome", outcomeLabel(kind)))

	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		L.Error(ctx, err, "triage failed", "kind", string(kind))
		return failure(kind, err)
	}

	assignee := "unassigned"
	if r.SuggestedAssignee != nil {
		assignee = *r.SuggestedAssignee
	}
	span.SetAttributes(
		attribute.String("helpdesk.triage.priority", string(r.Priority)),
		attribute.Float64("helpdesk.triage.confidence", r.Confidence),
	)
	L.Info(ctx, "triage complete",
		"priority", string(r.Priority),
		"assignee", assignee,
		"confidence", r.Confidence,
		"duration_ms", r.DurationMS,
	)

	s.notify(ctx, t, r)

	return &Outcome{
		Success:      true,
		Message:      MessageSuccess,
		TriageResult: r,
	}
}

func (s *Service) run(ctx context.Context, ticketID string) (*ticket.Ticket, *ticket.TriageResult, error) {
	t, ok, err := s.store.GetTicket(ctx, ticketID)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: load ticket: %w", ErrPersistence, err)
	}
	if !ok {
		return nil, nil, fmt.Errorf("%w: %s", ErrNotFound, ticketID)
	}

	prompt := s.prompts.Build(t)

	callStart := time.Now()
	resp, err := s.gateway.Complete(ctx, prompt)
	elapsed := time.Since(callStart)
	if err != nil {
		return nil, nil, err
	}

	a, err := Parse(resp.Text())
	if err != nil {
		return nil, nil, err
	}

	model := resp.Model
	if model == "" {
		model = s.gateway.Model()
	}
	now := s.now()
	r := &ticket.TriageResult{
		ID:                ulid.Make().String(),
		TicketID:          t.ID,
		Priority:          a.Priority,
		Confidence:        a.Confidence,
		PriorityRationale: a.PriorityRationale,
		SuggestedAssignee: a.SuggestedAssignee,
		AssigneeRationale: a.AssigneeRationale,
		ReplyDraft:        a.ReplyDraft,
		Model:             model,
		DurationMS:        elapsed.Milliseconds(),
		TriagedAt:         now,
	}
	entry := &ticket.Activity{
		ID:          ulid.Make().String(),
		TicketID:    t.ID,
		Action:      ticket.ActionTriaged,
		Actor:       ticket.ActorAI,
		Description: describeTriage(r),
		Metadata: map[string]any{
			"confidence":  r.Confidence,
			"duration_ms": r.DurationMS,
		},
		CreatedAt: now,
	}

	if err := s.store.ApplyTriage(ctx, r, entry); err != nil {
		if errors.Is(err, ticket.ErrNotFound) {
			return nil, nil, fmt.Errorf("%w: %s deleted during triage", ErrNotFound, ticketID)
		}
		return nil, nil, fmt.Errorf("%w: %w", ErrPersistence, err)
	}

	p := r.Priority
	t.Priority = &p
	t.AssignedTo = r.SuggestedAssignee
	t.UpdatedAt = r.TriagedAt
	return t, r, nil
}

func (s *Service) notify(ctx context.Context, t *ticket.Ticket, r *ticket.TriageResult) {
	if len(s.notifiers) == 0 {
		return
	}
	ev := &Event{Ticket: *t.Clone(), Result: *r.Clone()}
	ctx = context.WithoutCancel(ctx)
	for _, n := range s.notifiers {
		go func() {
			if err := n.Notify(ctx, ev); err != nil {
				s.logger.Warn(ctx, "triage notification failed",
					"ticket_id", ev.Ticket.ID,
					"notifier", fmt.Sprintf("%T", n),
					"error", err,
				)
			}
		}()
	}
}

func describeTriage(r *ticket.TriageResult) string {
	assignee := "unassigned"
	if r.SuggestedAssignee != nil {
		assignee = *r.SuggestedAssignee
	}
	return fmt.Sprintf("Auto-triaged as %s and assigned to %s", r.Priority, assignee)
}

func failure(kind Kind, err error) *Outcome {
	msg := MessageFailed
	switch kind {
	case KindNotFound:
		msg = MessageNotFound
	case KindTimeout:
		msg = MessageTimeout
	}
	return &Outcome{
		Success: false,
		Kind:    kind,
		Message: msg,
		Error:   err.Error(),
	}
}
