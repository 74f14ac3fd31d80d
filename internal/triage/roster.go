package triage

import (
	"errors"
	"fmt"
	"os"
	"slices"
	"strings"

	"gopkg.in/yaml.v3"
)

// Responder is a support team member and the topics they handle.
type Responder struct {
	Name   string   `yaml:"name"`
	Skills []string `yaml:"skills"`
}

// Roster is the read-only table of responders offered to the model as
// assignee candidates. It is built once at startup and shared by reference.
type Roster struct {
	responders []Responder
}

type rosterFile struct {
	Responders []Responder `yaml:"responders"`
}

// NewRoster validates and copies responders into an immutable Roster.
func NewRoster(responders []Responder) (*Roster, error) {
	if len(responders) == 0 {
		return nil, errors.New("roster: no responders")
	}
	seen := make(map[string]struct{}, len(responders))
	out := make([]Responder, 0, len(responders))
	for i, r := range responders {
		name := strings.TrimSpace(r.Name)
		if name == "" {
			return nil, fmt.Errorf("roster: responder %d has no name", i)
		}
		if _, dup := seen[name]; dup {
			return nil, fmt.Errorf("roster: duplicate responder %q", name)
		}
		seen[name] = struct{}{}
		if len(r.Skills) == 0 {
			return nil, fmt.Errorf("roster: responder %q has no skills", name)
		}
		out = append(out, Responder{Name: name, Skills: slices.Clone(r.Skills)})
	}
	return &Roster{responders: out}, nil
}

// LoadRoster reads a YAML roster file of the form
//
//	responders:
//	  - name: Alice Chen
//	    skills: [authentication, security]
func LoadRoster(path string) (*Roster, error) {
	data, err := os.ReadFile(path) //nolint:gosec // path comes from operator config
	if err != nil {
		return nil, fmt.Errorf("read roster: %w", err)
	}
	var f rosterFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse roster %s: %w", path, err)
	}
	return NewRoster(f.Responders)
}

// DefaultRoster is the built-in support team.
func DefaultRoster() *Roster {
	r, err := NewRoster([]Responder{
		{Name: "Alice Chen", Skills: []string{"authentication", "security", "login", "password", "2fa", "oauth"}},
		{Name: "Bob Martinez", Skills: []string{"database", "performance", "slow", "query", "connection", "sql"}},
		{Name: "Carol Johnson", Skills: []string{"ui", "interface", "design", "display", "layout", "css", "frontend"}},
		{Name: "David Kim", Skills: []string{"api", "integration", "webhook", "rest", "graphql", "backend"}},
		{Name: "Emma Wilson", Skills: []string{"billing", "payment", "invoice", "subscription", "charge", "pricing"}},
		{Name: "Frank Zhang", Skills: []string{"email", "notification", "alert", "message", "sms", "communication"}},
	})
	if err != nil {
		panic(err)
	}
	return r
}

// Responders returns a copy of the roster in its configured order.
func (r *Roster) Responders() []Responder {
	out := make([]Responder, len(r.responders))
	for i, p := range r.responders {
		out[i] = Responder{Name: p.Name, Skills: slices.Clone(p.Skills)}
	}
	return out
}

// Len is the number of responders.
func (r *Roster) Len() int { return len(r.responders) }
