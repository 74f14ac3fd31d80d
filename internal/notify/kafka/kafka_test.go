package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/linnemanlabs/go-core/log"

	"github.com/linnemanlabs/helpdesk/internal/ticket"
	"github.com/linnemanlabs/helpdesk/internal/triage"
)

type fakeWriter struct {
	mu     sync.Mutex
	msgs   []kafka.Message
	err    error
	closed bool
}

func (f *fakeWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.msgs = append(f.msgs, msgs...)
	return nil
}

func (f *fakeWriter) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	return nil
}

func testEvent() *triage.Event {
	assignee := "Bob Martinez"
	return &triage.Event{
		Ticket: ticket.Ticket{ID: "01JTICKET", Status: ticket.StatusOpen},
		Result: ticket.TriageResult{
			ID:                "01JRESULT",
			TicketID:          "01JTICKET",
			Priority:          ticket.PriorityP2,
			Confidence:        0.7,
			PriorityRationale: "Workaround exists.",
			SuggestedAssignee: &assignee,
			ReplyDraft:        "Thanks, we are looking into it.",
			TriagedAt:         time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC),
		},
	}
}

func TestNotify_WritesKeyedEvent(t *testing.T) {
	t.Parallel()

	w := &fakeWriter{}
	p := newPublisher(w, log.Nop())

	if err := p.Notify(context.Background(), testEvent()); err != nil {
		t.Fatalf("Notify: %v", err)
	}

	if len(w.msgs) != 1 {
		t.Fatalf("messages = %d, want 1", len(w.msgs))
	}
	msg := w.msgs[0]
	if string(msg.Key) != "01JTICKET" {
		t.Errorf("key = %q, want ticket id", msg.Key)
	}
	if len(msg.Headers) != 1 || string(msg.Headers[0].Value) != EventTriaged {
		t.Errorf("headers = %+v", msg.Headers)
	}

	var got map[string]any
	if err := json.Unmarshal(msg.Value, &got); err != nil {
		t.Fatalf("decode value: %v", err)
	}
	if got["type"] != EventTriaged {
		t.Errorf("type = %v", got["type"])
	}
	if got["occurred_at"] != "2026-03-01T09:00:00Z" {
		t.Errorf("occurred_at = %v", got["occurred_at"])
	}
	result, ok := got["triage_result"].(map[string]any)
	if !ok {
		t.Fatalf("triage_result missing: %v", got)
	}
	if result["suggested_priority"] != "P2" || result["suggested_assignee"] != "Bob Martinez" {
		t.Errorf("triage_result = %v", result)
	}
}

func TestNotify_WriteError(t *testing.T) {
	t.Parallel()

	boom := errors.New("broker unavailable")
	p := newPublisher(&fakeWriter{err: boom}, nil)

	err := p.Notify(context.Background(), testEvent())
	if !errors.Is(err, boom) {
		t.Errorf("err = %v, want wrapped broker error", err)
	}
}

func TestClose(t *testing.T) {
	t.Parallel()

	w := &fakeWriter{}
	if err := newPublisher(w, log.Nop()).Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if !w.closed {
		t.Error("writer not closed")
	}
}
