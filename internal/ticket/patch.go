package ticket

import (
	"fmt"
	"slices"
	"strings"
	"time"
)

// Patch is a partial ticket update. Nil fields are left unchanged. An empty
// Priority or AssignedTo clears the field.
type Patch struct {
	Title       *string   `json:"title,omitempty"`
	Description *string   `json:"description,omitempty"`
	Status      *Status   `json:"status,omitempty"`
	Priority    *string   `json:"priority,omitempty"`
	AssignedTo  *string   `json:"assigned_to,omitempty"`
	Tags        *[]string `json:"tags,omitempty"`
}

// Change records one field that a Patch actually modified.
type Change struct {
	Field string
	Old   any
	New   any
}

// Validate checks the patch values.
func (p *Patch) Validate() error {
	if p.Title != nil {
		if err := validateTitle(*p.Title); err != nil {
			return err
		}
	}
	if p.Description != nil && *p.Description == "" {
		return &ValidationError{Field: "description", Reason: "must not be empty"}
	}
	if p.Status != nil && !p.Status.Valid() {
		return &ValidationError{Field: "status", Reason: fmt.Sprintf("unknown status %q", *p.Status)}
	}
	if p.Priority != nil && *p.Priority != "" && !Priority(*p.Priority).Valid() {
		return &ValidationError{Field: "priority", Reason: fmt.Sprintf("unknown priority %q", *p.Priority)}
	}
	return nil
}

// Fields returns the supplied patch fields keyed by their JSON names.
func (p *Patch) Fields() map[string]any {
	m := make(map[string]any)
	if p.Title != nil {
		m["title"] = *p.Title
	}
	if p.Description != nil {
		m["description"] = *p.Description
	}
	if p.Status != nil {
		m["status"] = string(*p.Status)
	}
	if p.Priority != nil {
		m["priority"] = *p.Priority
	}
	if p.AssignedTo != nil {
		m["assigned_to"] = *p.AssignedTo
	}
	if p.Tags != nil {
		m["tags"] = *p.Tags
	}
	return m
}

// Apply writes the patch onto t and returns the fields that changed.
func (p *Patch) Apply(t *Ticket) []Change {
	var changes []Change

	if p.Title != nil && *p.Title != t.Title {
		changes = append(changes, Change{"title", t.Title, *p.Title})
		t.Title = *p.Title
	}
	if p.Description != nil && *p.Description != t.Description {
		changes = append(changes, Change{"description", t.Description, *p.Description})
		t.Description = *p.Description
	}
	if p.Status != nil && *p.Status != t.Status {
		changes = append(changes, Change{"status", string(t.Status), string(*p.Status)})
		t.Status = *p.Status
	}
	if p.Priority != nil {
		var next *Priority
		if *p.Priority != "" {
			v := Priority(*p.Priority)
			next = &v
		}
		if !equalPtr(t.Priority, next) {
			changes = append(changes, Change{"priority", derefAny(t.Priority), derefAny(next)})
			t.Priority = next
		}
	}
	if p.AssignedTo != nil {
		var next *string
		if *p.AssignedTo != "" {
			v := *p.AssignedTo
			next = &v
		}
		if !equalPtr(t.AssignedTo, next) {
			changes = append(changes, Change{"assigned_to", derefAny(t.AssignedTo), derefAny(next)})
			t.AssignedTo = next
		}
	}
	if p.Tags != nil && !slices.Equal(*p.Tags, t.Tags) {
		next := append([]string{}, *p.Tags...)
		changes = append(changes, Change{"tags", t.Tags, next})
		t.Tags = next
	}

	return changes
}

// describeChanges renders changes as "field: old -> new, ...".
func describeChanges(changes []Change) string {
	parts := make([]string, 0, len(changes))
	for _, c := range changes {
		parts = append(parts, fmt.Sprintf("%s: %s -> %s", c.Field, formatValue(c.Old), formatValue(c.New)))
	}
	return "Ticket updated: " + strings.Join(parts, ", ")
}

func formatValue(v any) string {
	switch x := v.(type) {
	case nil:
		return "none"
	case []string:
		return "[" + strings.Join(x, ", ") + "]"
	default:
		return fmt.Sprint(x)
	}
}

func equalPtr[T comparable](a, b *T) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}

func derefAny[T any](p *T) any {
	if p == nil {
		return nil
	}
	return *p
}

func newUpdateActivity(id, ticketID string, p *Patch, changes []Change, now time.Time) *Activity {
	return &Activity{
		ID:          id,
		TicketID:    ticketID,
		Action:      ActionUpdated,
		Actor:       ActorUser,
		Description: describeChanges(changes),
		Metadata:    p.Fields(),
		CreatedAt:   now,
	}
}
