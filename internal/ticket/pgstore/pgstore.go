// Package pgstore provides a PostgreSQL implementation of ticket.Store.
package pgstore

import (
	"context"
	_ "embed"
	"errors"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/linnemanlabs/helpdesk/internal/ticket"
)

var tracer = otel.Tracer("github.com/linnemanlabs/helpdesk/internal/ticket/pgstore")

//go:embed schema.sql
var schema string

// Store persists tickets, triage results and activity in PostgreSQL.
//
// Writes that touch an existing ticket take a row lock on it first
// (SELECT ... FOR UPDATE), which serializes them per ticket.
type Store struct {
	pool *pgxpool.Pool
}

// querier is the subset of pgxpool.Pool and pgx.Tx used by the scan helpers.
type querier interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

// New applies the schema on the given pool and returns a ready Store.
func New(ctx context.Context, pool *pgxpool.Pool) (*Store, error) {
	if _, err := pool.Exec(ctx, schema); err != nil {
		return nil, fmt.Errorf("apply schema: %w", err)
	}
	return &Store{pool: pool}, nil
}

const ticketColumns = `id, title, description, customer_email, status, priority, assigned_to, tags, created_at, updated_at`

const triageColumns = `id, ticket_id, suggested_priority, priority_confidence, priority_rationale,
	suggested_assignee, assignee_rationale, reply_draft, model, triage_duration_ms, triaged_at`

const activityColumns = `id, ticket_id, action_type, actor, description, metadata, created_at`

// CreateTicket inserts the ticket and its creation entry in one transaction.
func (s *Store) CreateTicket(ctx context.Context, t *ticket.Ticket, entry *ticket.Activity) error {
	ctx, span := startSpan(ctx, "pgstore.CreateTicket", "INSERT")
	defer span.End()

	err := s.inTx(ctx, func(tx pgx.Tx) error {
		_, err := tx.Exec(ctx,
			`INSERT INTO tickets (`+ticketColumns+`) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)`,
			t.ID, t.Title, t.Description, t.CustomerEmail, string(t.Status),
			priorityArg(t.Priority), t.AssignedTo, tagsArg(t.Tags), t.CreatedAt, t.UpdatedAt,
		)
		if err != nil {
			return fmt.Errorf("insert ticket: %w", err)
		}
		if entry != nil {
			return insertActivity(ctx, tx, entry)
		}
		return nil
	})
	return recordErr(span, err)
}

// GetTicket retrieves a ticket by ID.
func (s *Store) GetTicket(ctx context.Context, id string) (*ticket.Ticket, bool, error) {
	ctx, span := startSpan(ctx, "pgstore.GetTicket", "SELECT")
	defer span.End()

	t, err := scanTicket(s.pool.QueryRow(ctx, `SELECT `+ticketColumns+` FROM tickets WHERE id = $1`, id))
	if errors.Is(err, ticket.ErrNotFound) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, recordErr(span, err)
	}
	return t, true, nil
}

// ListTickets returns tickets matching f, newest first.
func (s *Store) ListTickets(ctx context.Context, f ticket.Filter) ([]ticket.Ticket, error) {
	ctx, span := startSpan(ctx, "pgstore.ListTickets", "SELECT")
	defer span.End()

	query := `SELECT ` + ticketColumns + ` FROM tickets
		WHERE ($1 = '' OR status = $1) AND ($2 = '' OR priority = $2)
		ORDER BY created_at DESC, id DESC`
	rows, err := s.pool.Query(ctx, query, string(f.Status), string(f.Priority))
	if err != nil {
		return nil, recordErr(span, fmt.Errorf("query tickets: %w", err))
	}
	defer rows.Close()

	var out []ticket.Ticket
	for rows.Next() {
		t, err := scanTicket(rows)
		if err != nil {
			return nil, recordErr(span, err)
		}
		out = append(out, *t)
	}
	if err := rows.Err(); err != nil {
		return nil, recordErr(span, fmt.Errorf("iterate tickets: %w", err))
	}
	return out, nil
}

// UpdateTicket locks the ticket row, runs fn on it, and writes the result
// together with the returned activity entry.
func (s *Store) UpdateTicket(ctx context.Context, id string, fn ticket.MutateFunc) (*ticket.Ticket, error) {
	ctx, span := startSpan(ctx, "pgstore.UpdateTicket", "UPDATE")
	defer span.End()

	var out *ticket.Ticket
	err := s.inTx(ctx, func(tx pgx.Tx) error {
		t, err := lockTicket(ctx, tx, id)
		if err != nil {
			return err
		}
		entry, err := fn(t)
		if err != nil {
			return err
		}
		out = t
		if entry == nil {
			return nil
		}
		_, err = tx.Exec(ctx,
			`UPDATE tickets SET title = $2, description = $3, status = $4, priority = $5,
				assigned_to = $6, tags = $7, updated_at = $8
			 WHERE id = $1`,
			t.ID, t.Title, t.Description, string(t.Status), priorityArg(t.Priority),
			t.AssignedTo, tagsArg(t.Tags), t.UpdatedAt,
		)
		if err != nil {
			return fmt.Errorf("update ticket: %w", err)
		}
		return insertActivity(ctx, tx, entry)
	})
	if err != nil {
		return nil, recordErr(span, err)
	}
	return out, nil
}

// DeleteTicket removes a ticket; triage results and activity cascade.
func (s *Store) DeleteTicket(ctx context.Context, id string) error {
	ctx, span := startSpan(ctx, "pgstore.DeleteTicket", "DELETE")
	defer span.End()

	tag, err := s.pool.Exec(ctx, `DELETE FROM tickets WHERE id = $1`, id)
	if err != nil {
		return recordErr(span, fmt.Errorf("delete ticket: %w", err))
	}
	if tag.RowsAffected() == 0 {
		return ticket.ErrNotFound
	}
	return nil
}

// GetTriage retrieves the live triage result for a ticket.
func (s *Store) GetTriage(ctx context.Context, ticketID string) (*ticket.TriageResult, bool, error) {
	ctx, span := startSpan(ctx, "pgstore.GetTriage", "SELECT")
	defer span.End()

	var (
		r        ticket.TriageResult
		priority string
	)
	err := s.pool.QueryRow(ctx, `SELECT `+triageColumns+` FROM triage_results WHERE ticket_id = $1`, ticketID).Scan(
		&r.ID, &r.TicketID, &priority, &r.Confidence, &r.PriorityRationale,
		&r.SuggestedAssignee, &r.AssigneeRationale, &r.ReplyDraft, &r.Model, &r.DurationMS, &r.TriagedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, recordErr(span, fmt.Errorf("scan triage: %w", err))
	}
	r.Priority = ticket.Priority(priority)
	r.TriagedAt = r.TriagedAt.UTC()
	return &r, true, nil
}

// ListActivity returns the ticket's history, oldest first.
func (s *Store) ListActivity(ctx context.Context, ticketID string) ([]ticket.Activity, error) {
	ctx, span := startSpan(ctx, "pgstore.ListActivity", "SELECT")
	defer span.End()

	rows, err := s.pool.Query(ctx,
		`SELECT `+activityColumns+` FROM activity_logs WHERE ticket_id = $1 ORDER BY created_at, id`, ticketID)
	if err != nil {
		return nil, recordErr(span, fmt.Errorf("query activity: %w", err))
	}
	defer rows.Close()

	var out []ticket.Activity
	for rows.Next() {
		var (
			a      ticket.Activity
			action string
		)
		if err := rows.Scan(&a.ID, &a.TicketID, &action, &a.Actor, &a.Description, &a.Metadata, &a.CreatedAt); err != nil {
			return nil, recordErr(span, fmt.Errorf("scan activity: %w", err))
		}
		a.Action = ticket.Action(action)
		a.CreatedAt = a.CreatedAt.UTC()
		out = append(out, a)
	}
	if err := rows.Err(); err != nil {
		return nil, recordErr(span, fmt.Errorf("iterate activity: %w", err))
	}
	return out, nil
}

// AppendActivity inserts an entry for an existing ticket.
func (s *Store) AppendActivity(ctx context.Context, entry *ticket.Activity) error {
	ctx, span := startSpan(ctx, "pgstore.AppendActivity", "INSERT")
	defer span.End()

	err := s.inTx(ctx, func(tx pgx.Tx) error {
		if _, err := lockTicket(ctx, tx, entry.TicketID); err != nil {
			return err
		}
		return insertActivity(ctx, tx, entry)
	})
	return recordErr(span, err)
}

// ApplyTriage replaces the triage result, updates the ticket and appends the
// entry in one transaction holding the ticket's row lock.
func (s *Store) ApplyTriage(ctx context.Context, r *ticket.TriageResult, entry *ticket.Activity) error {
	ctx, span := startSpan(ctx, "pgstore.ApplyTriage", "TRANSACTION")
	span.SetAttributes(attribute.String("helpdesk.ticket.id", r.TicketID))
	defer span.End()

	err := s.inTx(ctx, func(tx pgx.Tx) error {
		if _, err := lockTicket(ctx, tx, r.TicketID); err != nil {
			return err
		}

		if _, err := tx.Exec(ctx, `DELETE FROM triage_results WHERE ticket_id = $1`, r.TicketID); err != nil {
			return fmt.Errorf("delete previous triage: %w", err)
		}

		_, err := tx.Exec(ctx,
			`INSERT INTO triage_results (`+triageColumns+`) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)`,
			r.ID, r.TicketID, string(r.Priority), r.Confidence, r.PriorityRationale,
			r.SuggestedAssignee, r.AssigneeRationale, r.ReplyDraft, r.Model, r.DurationMS, r.TriagedAt,
		)
		if err != nil {
			return fmt.Errorf("insert triage: %w", err)
		}

		_, err = tx.Exec(ctx,
			`UPDATE tickets SET priority = $2, assigned_to = $3, updated_at = $4 WHERE id = $1`,
			r.TicketID, string(r.Priority), r.SuggestedAssignee, r.TriagedAt,
		)
		if err != nil {
			return fmt.Errorf("update ticket: %w", err)
		}

		return insertActivity(ctx, tx, entry)
	})
	return recordErr(span, err)
}

func (s *Store) inTx(ctx context.Context, fn func(tx pgx.Tx) error) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck // rollback after commit is harmless

	if err := fn(tx); err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

func lockTicket(ctx context.Context, q querier, id string) (*ticket.Ticket, error) {
	return scanTicket(q.QueryRow(ctx, `SELECT `+ticketColumns+` FROM tickets WHERE id = $1 FOR UPDATE`, id))
}

func insertActivity(ctx context.Context, q querier, a *ticket.Activity) error {
	metadata := a.Metadata
	if metadata == nil {
		metadata = map[string]any{}
	}
	_, err := q.Exec(ctx,
		`INSERT INTO activity_logs (`+activityColumns+`) VALUES ($1,$2,$3,$4,$5,$6,$7)`,
		a.ID, a.TicketID, string(a.Action), a.Actor, a.Description, metadata, a.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert activity: %w", err)
	}
	return nil
}

// scanTicket scans one ticket row. Returns ticket.ErrNotFound when no row matched.
func scanTicket(row pgx.Row) (*ticket.Ticket, error) {
	var (
		t        ticket.Ticket
		status   string
		priority *string
	)
	err := row.Scan(&t.ID, &t.Title, &t.Description, &t.CustomerEmail, &status, &priority,
		&t.AssignedTo, &t.Tags, &t.CreatedAt, &t.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ticket.ErrNotFound
		}
		return nil, fmt.Errorf("scan ticket: %w", err)
	}
	t.Status = ticket.Status(status)
	if priority != nil {
		p := ticket.Priority(*priority)
		t.Priority = &p
	}
	if t.Tags == nil {
		t.Tags = []string{}
	}
	t.CreatedAt = t.CreatedAt.UTC()
	t.UpdatedAt = t.UpdatedAt.UTC()
	return &t, nil
}

func priorityArg(p *ticket.Priority) *string {
	if p == nil {
		return nil
	}
	s := string(*p)
	return &s
}

func tagsArg(tags []string) []string {
	if tags == nil {
		return []string{}
	}
	return tags
}

func startSpan(ctx context.Context, name, op string) (context.Context, trace.Span) {
	return tracer.Start(ctx, name, trace.WithAttributes(
		attribute.String("db.system", "postgresql"),
		attribute.String("db.operation.name", op),
	))
}

// recordErr marks span as failed when err is non-nil and returns err unchanged.
// A missing ticket is an expected outcome and is not recorded as a span error.
func recordErr(span trace.Span, err error) error {
	if err != nil && !errors.Is(err, ticket.ErrNotFound) {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	return err
}

var _ ticket.Store = (*Store)(nil)
