// Package sqlitestore provides an embedded SQLite implementation of ticket.Store
// for single-node deployments that want durability without a database server.
package sqlitestore

import (
	"context"
	"database/sql"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	_ "modernc.org/sqlite"

	"github.com/linnemanlabs/helpdesk/internal/dbtrace"
	"github.com/linnemanlabs/helpdesk/internal/ticket"
)

var tracer = otel.Tracer("github.com/linnemanlabs/helpdesk/internal/ticket/sqlitestore")

//go:embed schema.sql
var schema string

// timestamps are stored as fixed-width UTC text so lexical order is time order
const timeLayout = "2006-01-02T15:04:05.000000000Z"

// Store persists tickets in a single SQLite file.
//
// The pool is capped at one connection, so transactions run one at a time.
type Store struct {
	db *sqlx.DB
}

// New opens (or creates) the database at path and applies the schema.
func New(ctx context.Context, path string) (*Store, error) {
	dsn := "file:" + path + "?_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)"
	db, err := sqlx.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	db.SetMaxOpenConns(1)

	if _, err := db.ExecContext(ctx, schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}
	return &Store{db: db}, nil
}

// Close releases the database handle.
func (s *Store) Close() error {
	return s.db.Close()
}

type ticketRow struct {
	ID            string  `db:"id"`
	Title         string  `db:"title"`
	Description   string  `db:"description"`
	CustomerEmail string  `db:"customer_email"`
	Status        string  `db:"status"`
	Priority      *string `db:"priority"`
	AssignedTo    *string `db:"assigned_to"`
	Tags          string  `db:"tags"`
	CreatedAt     string  `db:"created_at"`
	UpdatedAt     string  `db:"updated_at"`
}

type triageRow struct {
	ID                string  `db:"id"`
	TicketID          string  `db:"ticket_id"`
	Priority          string  `db:"suggested_priority"`
	Confidence        float64 `db:"priority_confidence"`
	PriorityRationale string  `db:"priority_rationale"`
	SuggestedAssignee *string `db:"suggested_assignee"`
	AssigneeRationale *string `db:"assignee_rationale"`
	ReplyDraft        string  `db:"reply_draft"`
	Model             string  `db:"model"`
	DurationMS        int64   `db:"triage_duration_ms"`
	TriagedAt         string  `db:"triaged_at"`
}

type activityRow struct {
	ID          string `db:"id"`
	TicketID    string `db:"ticket_id"`
	Action      string `db:"action_type"`
	Actor       string `db:"actor"`
	Description string `db:"description"`
	Metadata    string `db:"metadata"`
	CreatedAt   string `db:"created_at"`
}

// CreateTicket inserts the ticket and its creation entry in one transaction.
func (s *Store) CreateTicket(ctx context.Context, t *ticket.Ticket, entry *ticket.Activity) error {
	ctx, span := startSpan(ctx, "sqlitestore.CreateTicket", "INSERT")
	defer span.End()

	err := s.inTx(ctx, func(tx *sqlx.Tx) error {
		row, err := toTicketRow(t)
		if err != nil {
			return err
		}
		_, err = tx.NamedExecContext(ctx, `INSERT INTO tickets
			(id, title, description, customer_email, status, priority, assigned_to, tags, created_at, updated_at)
			VALUES (:id, :title, :description, :customer_email, :status, :priority, :assigned_to, :tags, :created_at, :updated_at)`, row)
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
	ctx, span := startSpan(ctx, "sqlitestore.GetTicket", "SELECT")
	defer span.End()

	t, err := getTicket(ctx, s.db, id)
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
	ctx, span := startSpan(ctx, "sqlitestore.ListTickets", "SELECT")
	defer span.End()

	var rows []ticketRow
	err := s.db.SelectContext(ctx, &rows, `SELECT * FROM tickets
		WHERE (? = '' OR status = ?) AND (? = '' OR priority = ?)
		ORDER BY created_at DESC, id DESC`,
		string(f.Status), string(f.Status), string(f.Priority), string(f.Priority))
	if err != nil {
		return nil, recordErr(span, fmt.Errorf("query tickets: %w", err))
	}

	out := make([]ticket.Ticket, 0, len(rows))
	for i := range rows {
		t, err := rows[i].toTicket()
		if err != nil {
			return nil, recordErr(span, err)
		}
		out = append(out, *t)
	}
	return out, nil
}

// UpdateTicket runs fn on the current ticket inside a transaction and writes
// the result together with the returned activity entry.
func (s *Store) UpdateTicket(ctx context.Context, id string, fn ticket.MutateFunc) (*ticket.Ticket, error) {
	ctx, span := startSpan(ctx, "sqlitestore.UpdateTicket", "UPDATE")
	defer span.End()

	var out *ticket.Ticket
	err := s.inTx(ctx, func(tx *sqlx.Tx) error {
		t, err := getTicket(ctx, tx, id)
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
		row, err := toTicketRow(t)
		if err != nil {
			return err
		}
		_, err = tx.NamedExecContext(ctx, `UPDATE tickets SET
			title = :title, description = :description, status = :status, priority = :priority,
			assigned_to = :assigned_to, tags = :tags, updated_at = :updated_at
			WHERE id = :id`, row)
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
	ctx, span := startSpan(ctx, "sqlitestore.DeleteTicket", "DELETE")
	defer span.End()

	res, err := s.db.ExecContext(ctx, `DELETE FROM tickets WHERE id = ?`, id)
	if err != nil {
		return recordErr(span, fmt.Errorf("delete ticket: %w", err))
	}
	n, err := res.RowsAffected()
	if err != nil {
		return recordErr(span, fmt.Errorf("rows affected: %w", err))
	}
	if n == 0 {
		return ticket.ErrNotFound
	}
	return nil
}

// GetTriage retrieves the live triage result for a ticket.
func (s *Store) GetTriage(ctx context.Context, ticketID string) (*ticket.TriageResult, bool, error) {
	ctx, span := startSpan(ctx, "sqlitestore.GetTriage", "SELECT")
	defer span.End()

	var row triageRow
	err := s.db.GetContext(ctx, &row, `SELECT * FROM triage_results WHERE ticket_id = ?`, ticketID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, recordErr(span, fmt.Errorf("scan triage: %w", err))
	}
	triagedAt, err := parseTime(row.TriagedAt)
	if err != nil {
		return nil, false, recordErr(span, err)
	}
	return &ticket.TriageResult{
		ID:                row.ID,
		TicketID:          row.TicketID,
		Priority:          ticket.Priority(row.Priority),
		Confidence:        row.Confidence,
		PriorityRationale: row.PriorityRationale,
		SuggestedAssignee: row.SuggestedAssignee,
		AssigneeRationale: row.AssigneeRationale,
		ReplyDraft:        row.ReplyDraft,
		Model:             row.Model,
		DurationMS:        row.DurationMS,
		TriagedAt:         triagedAt,
	}, true, nil
}

// ListActivity returns the ticket's history, oldest first.
func (s *Store) ListActivity(ctx context.Context, ticketID string) ([]ticket.Activity, error) {
	ctx, span := startSpan(ctx, "sqlitestore.ListActivity", "SELECT")
	defer span.End()

	var rows []activityRow
	err := s.db.SelectContext(ctx, &rows,
		`SELECT * FROM activity_logs WHERE ticket_id = ? ORDER BY created_at, id`, ticketID)
	if err != nil {
		return nil, recordErr(span, fmt.Errorf("query activity: %w", err))
	}

	out := make([]ticket.Activity, 0, len(rows))
	for _, row := range rows {
		createdAt, err := parseTime(row.CreatedAt)
		if err != nil {
			return nil, recordErr(span, err)
		}
		var md map[string]any
		if err := json.Unmarshal([]byte(row.Metadata), &md); err != nil {
			return nil, recordErr(span, fmt.Errorf("decode activity metadata: %w", err))
		}
		out = append(out, ticket.Activity{
			ID:          row.ID,
			TicketID:    row.TicketID,
			Action:      ticket.Action(row.Action),
			Actor:       row.Actor,
			Description: row.Description,
			Metadata:    md,
			CreatedAt:   createdAt,
		})
	}
	return out, nil
}

// AppendActivity inserts an entry for an existing ticket.
func (s *Store) AppendActivity(ctx context.Context, entry *ticket.Activity) error {
	ctx, span := startSpan(ctx, "sqlitestore.AppendActivity", "INSERT")
	defer span.End()

	err := s.inTx(ctx, func(tx *sqlx.Tx) error {
		if _, err := getTicket(ctx, tx, entry.TicketID); err != nil {
			return err
		}
		return insertActivity(ctx, tx, entry)
	})
	return recordErr(span, err)
}

// ApplyTriage replaces the triage result, updates the ticket and appends the
// entry in one transaction.
func (s *Store) ApplyTriage(ctx context.Context, r *ticket.TriageResult, entry *ticket.Activity) error {
	ctx, span := startSpan(ctx, "sqlitestore.ApplyTriage", "TRANSACTION")
	span.SetAttributes(attribute.String("helpdesk.ticket.id", r.TicketID))
	defer span.End()

	err := s.inTx(ctx, func(tx *sqlx.Tx) error {
		if _, err := getTicket(ctx, tx, r.TicketID); err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, `DELETE FROM triage_results WHERE ticket_id = ?`, r.TicketID); err != nil {
			return fmt.Errorf("delete previous triage: %w", err)
		}

		triagedAt := formatTime(r.TriagedAt)
		_, err := tx.NamedExecContext(ctx, `INSERT INTO triage_results
			(id, ticket_id, suggested_priority, priority_confidence, priority_rationale,
			 suggested_assignee, assignee_rationale, reply_draft, model, triage_duration_ms, triaged_at)
			VALUES (:id, :ticket_id, :suggested_priority, :priority_confidence, :priority_rationale,
			 :suggested_assignee, :assignee_rationale, :reply_draft, :model, :triage_duration_ms, :triaged_at)`,
			triageRow{
				ID:                r.ID,
				TicketID:          r.TicketID,
				Priority:          string(r.Priority),
				Confidence:        r.Confidence,
				PriorityRationale: r.PriorityRationale,
				SuggestedAssignee: r.SuggestedAssignee,
				AssigneeRationale: r.AssigneeRationale,
				ReplyDraft:        r.ReplyDraft,
				Model:             r.Model,
				DurationMS:        r.DurationMS,
				TriagedAt:         triagedAt,
			})
		if err != nil {
			return fmt.Errorf("insert triage: %w", err)
		}

		_, err = tx.ExecContext(ctx, `UPDATE tickets SET priority = ?, assigned_to = ?, updated_at = ? WHERE id = ?`,
			string(r.Priority), r.SuggestedAssignee, triagedAt, r.TicketID)
		if err != nil {
			return fmt.Errorf("update ticket: %w", err)
		}

		return insertActivity(ctx, tx, entry)
	})
	return recordErr(span, err)
}

func (s *Store) inTx(ctx context.Context, fn func(tx *sqlx.Tx) error) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // rollback after commit is harmless

	if err := fn(tx); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

func getTicket(ctx context.Context, q sqlx.QueryerContext, id string) (*ticket.Ticket, error) {
	var row ticketRow
	if err := sqlx.GetContext(ctx, q, &row, `SELECT * FROM tickets WHERE id = ?`, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ticket.ErrNotFound
		}
		return nil, fmt.Errorf("scan ticket: %w", err)
	}
	return row.toTicket()
}

func insertActivity(ctx context.Context, tx *sqlx.Tx, a *ticket.Activity) error {
	metadata := a.Metadata
	if metadata == nil {
		metadata = map[string]any{}
	}
	md, err := json.Marshal(metadata)
	if err != nil {
		return fmt.Errorf("encode activity metadata: %w", err)
	}
	_, err = tx.NamedExecContext(ctx, `INSERT INTO activity_logs
		(id, ticket_id, action_type, actor, description, metadata, created_at)
		VALUES (:id, :ticket_id, :action_type, :actor, :description, :metadata, :created_at)`,
		activityRow{
			ID:          a.ID,
			TicketID:    a.TicketID,
			Action:      string(a.Action),
			Actor:       a.Actor,
			Description: a.Description,
			Metadata:    string(md),
			CreatedAt:   formatTime(a.CreatedAt),
		})
	if err != nil {
		return fmt.Errorf("insert activity: %w", err)
	}
	return nil
}

func toTicketRow(t *ticket.Ticket) (ticketRow, error) {
	tags := t.Tags
	if tags == nil {
		tags = []string{}
	}
	encoded, err := json.Marshal(tags)
	if err != nil {
		return ticketRow{}, fmt.Errorf("encode tags: %w", err)
	}
	row := ticketRow{
		ID:            t.ID,
		Title:         t.Title,
		Description:   t.Description,
		CustomerEmail: t.CustomerEmail,
		Status:        string(t.Status),
		AssignedTo:    t.AssignedTo,
		Tags:          string(encoded),
		CreatedAt:     formatTime(t.CreatedAt),
		UpdatedAt:     formatTime(t.UpdatedAt),
	}
	if t.Priority != nil {
		p := string(*t.Priority)
		row.Priority = &p
	}
	return row, nil
}

func (r *ticketRow) toTicket() (*ticket.Ticket, error) {
	t := &ticket.Ticket{
		ID:            r.ID,
		Title:         r.Title,
		Description:   r.Description,
		CustomerEmail: r.CustomerEmail,
		Status:        ticket.Status(r.Status),
		AssignedTo:    r.AssignedTo,
		Tags:          []string{},
	}
	if r.Priority != nil {
		p := ticket.Priority(*r.Priority)
		t.Priority = &p
	}
	if err := json.Unmarshal([]byte(r.Tags), &t.Tags); err != nil {
		return nil, fmt.Errorf("decode tags: %w", err)
	}
	var err error
	if t.CreatedAt, err = parseTime(r.CreatedAt); err != nil {
		return nil, err
	}
	if t.UpdatedAt, err = parseTime(r.UpdatedAt); err != nil {
		return nil, err
	}
	return t, nil
}

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func parseTime(s string) (time.Time, error) {
	t, err := time.Parse(timeLayout, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse timestamp %q: %w", s, err)
	}
	return t, nil
}

// opSpan is a store operation span that also reports the operation to
// dbtrace when it ends. database/sql has no per-statement hook, so the
// whole operation counts as one query.
type opSpan struct {
	trace.Span
	ctx   context.Context
	start time.Time
	err   error
}

func (s *opSpan) End(opts ...trace.SpanEndOption) {
	dbtrace.Record(s.ctx, dbtrace.SystemSQLite, time.Since(s.start), s.err)
	s.Span.End(opts...)
}

func startSpan(ctx context.Context, name, op string) (context.Context, *opSpan) {
	ctx, span := tracer.Start(ctx, name, trace.WithAttributes(
		attribute.String("db.system", dbtrace.SystemSQLite),
		attribute.String("db.operation.name", op),
	))
	return ctx, &opSpan{Span: span, ctx: ctx, start: time.Now()}
}

func recordErr(span *opSpan, err error) error {
	if err != nil && !errors.Is(err, ticket.ErrNotFound) {
		span.err = err
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	return err
}

var _ ticket.Store = (*Store)(nil)
