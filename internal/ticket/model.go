package ticket

import "time"

// Status is the lifecycle state of a ticket.
type Status string

const (
	StatusOpen       Status = "open"
	StatusInProgress Status = "in_progress"
	StatusWaiting    Status = "waiting"
	StatusResolved   Status = "resolved"
	StatusClosed     Status = "closed"
)

// Valid reports whether s is a known lifecycle state.
func (s Status) Valid() bool {
	switch s {
	case StatusOpen, StatusInProgress, StatusWaiting, StatusResolved, StatusClosed:
		return true
	}
	return false
}

// Priority is one of four ordered severity bands, P0 most severe.
type Priority string

const (
	// PriorityP0 is critical: outage, data loss, security breach, many users affected
	PriorityP0 Priority = "P0"

	// PriorityP1 is high: core functionality broken, significant business impact
	PriorityP1 Priority = "P1"

	// PriorityP2 is medium: feature not working, workaround available
	PriorityP2 Priority = "P2"

	// PriorityP3 is low: cosmetic, question, feature request
	PriorityP3 Priority = "P3"
)

// Priorities lists every priority band from most to least severe.
var Priorities = []Priority{PriorityP0, PriorityP1, PriorityP2, PriorityP3}

// Valid reports whether p is one of the four priority bands.
func (p Priority) Valid() bool {
	switch p {
	case PriorityP0, PriorityP1, PriorityP2, PriorityP3:
		return true
	}
	return false
}

// Ticket is a helpdesk support request.
type Ticket struct {
	ID            string    `json:"id"`
	Title         string    `json:"title"`
	Description   string    `json:"description"`
	CustomerEmail string    `json:"customer_email"`
	Status        Status    `json:"status"`
	Priority      *Priority `json:"priority"`
	AssignedTo    *string   `json:"assigned_to"`
	Tags          []string  `json:"tags"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

// Clone returns a deep copy of t.
func (t *Ticket) Clone() *Ticket {
	cp := *t
	if t.Priority != nil {
		p := *t.Priority
		cp.Priority = &p
	}
	if t.AssignedTo != nil {
		a := *t.AssignedTo
		cp.AssignedTo = &a
	}
	cp.Tags = append([]string{}, t.Tags...)
	return &cp
}

// TriageResult is the AI triage outcome for a ticket. A ticket has at most
// one live result; a new result replaces the previous one.
type TriageResult struct {
	ID                string    `json:"id"`
	TicketID          string    `json:"ticket_id"`
	Priority          Priority  `json:"suggested_priority"`
	Confidence        float64   `json:"priority_confidence"`
	PriorityRationale string    `json:"priority_rationale"`
	SuggestedAssignee *string   `json:"suggested_assignee"`
	AssigneeRationale *string   `json:"assignee_rationale"`
	ReplyDraft        string    `json:"reply_draft"`
	Model             string    `json:"model,omitempty"`
	DurationMS        int64     `json:"triage_duration_ms"`
	TriagedAt         time.Time `json:"triaged_at"`
}

// Clone returns a deep copy of r.
func (r *TriageResult) Clone() *TriageResult {
	cp := *r
	if r.SuggestedAssignee != nil {
		a := *r.SuggestedAssignee
		cp.SuggestedAssignee = &a
	}
	if r.AssigneeRationale != nil {
		a := *r.AssigneeRationale
		cp.AssigneeRationale = &a
	}
	return &cp
}

// Action is the kind of an activity log entry.
type Action string

const (
	ActionCreated    Action = "created"
	ActionUpdated    Action = "updated"
	ActionTriaged    Action = "triaged"
	ActionReplySaved Action = "reply_saved"
)

// Actor labels recorded on activity entries.
const (
	ActorSystem = "system"
	ActorUser   = "user"
	ActorAI     = "ai_system"
)

// Activity is an immutable entry in a ticket's append-only history.
type Activity struct {
	ID          string         `json:"id"`
	TicketID    string         `json:"ticket_id"`
	Action      Action         `json:"action_type"`
	Actor       string         `json:"actor"`
	Description string         `json:"description"`
	Metadata    map[string]any `json:"metadata"`
	CreatedAt   time.Time      `json:"created_at"`
}

// View is a ticket rendered with its triage result and activity history.
type View struct {
	Ticket
	TriageResult *TriageResult `json:"triage_result"`
	Activity     []Activity    `json:"activity_logs"`
}
