// Package kafka publishes triage events to a Kafka topic.
package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/linnemanlabs/go-core/log"

	"github.com/linnemanlabs/helpdesk/internal/ticket"
	"github.com/linnemanlabs/helpdesk/internal/triage"
)

// EventTriaged is the type field of a committed-triage event.
const EventTriaged = "ticket.triaged"

// Event is the JSON value written for each committed triage.
type Event struct {
	Type       string              `json:"type"`
	TicketID   string              `json:"ticket_id"`
	Status     ticket.Status       `json:"status"`
	Result     ticket.TriageResult `json:"triage_result"`
	OccurredAt time.Time           `json:"occurred_at"`
}

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Publisher writes triage events keyed by ticket id, so events for one
// ticket land on one partition in commit order.
type Publisher struct {
	w      messageWriter
	logger log.Logger
}

// New creates a publisher writing to topic on brokers.
func New(brokers []string, topic string, logger log.Logger) *Publisher {
	return newPublisher(&kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafka.Hash{},
		RequiredAcks: kafka.RequireOne,
	}, logger)
}

func newPublisher(w messageWriter, logger log.Logger) *Publisher {
	if logger == nil {
		logger = log.Nop()
	}
	return &Publisher{w: w, logger: logger}
}

// Notify publishes ev as a ticket.triaged event.
func (p *Publisher) Notify(ctx context.Context, ev *triage.Event) error {
	data, err := json.Marshal(Event{
		Type:       EventTriaged,
		TicketID:   ev.Ticket.ID,
		Status:     ev.Ticket.Status,
		Result:     ev.Result,
		OccurredAt: ev.Result.TriagedAt,
	})
	if err != nil {
		return fmt.Errorf("kafka: marshal event: %w", err)
	}

	msg := kafka.Message{
		Key:   []byte(ev.Ticket.ID),
		Value: data,
		Headers: []kafka.Header{
			{Key: "type", Value: []byte(EventTriaged)},
		},
	}
	if err := p.w.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("kafka: write event: %w", err)
	}

	p.logger.Info(ctx, "triage event published", "ticket_id", ev.Ticket.ID)
	return nil
}

// Close flushes and closes the underlying writer.
func (p *Publisher) Close() error {
	return p.w.Close()
}

var _ triage.Notifier = (*Publisher)(nil)
