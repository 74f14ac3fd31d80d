package triage

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/linnemanlabs/helpdesk/internal/ticket"
)

// Assessment is a model reply that passed validation.
type Assessment struct {
	Priority          ticket.Priority `json:"priority"`
	Confidence        float64         `json:"priority_confidence"`
	PriorityRationale string          `json:"priority_rationale"`
	SuggestedAssignee *string         `json:"suggested_assignee"`
	AssigneeRationale *string         `json:"assignee_rationale"`
	ReplyDraft        string          `json:"reply_draft"`
}

// requiredFields are checked in this order; the first missing one is reported.
var requiredFields = []string{"priority", "priority_confidence", "priority_rationale", "reply_draft"}

// Parse extracts and validates the JSON object in raw.
//
// The payload is the text from the first '{' to the last '}'; surrounding
// prose is ignored and no other recovery is attempted. When
// suggested_assignee is absent or falsy both assignee fields are nil.
// Every failure wraps ErrMalformedResponse.
func Parse(raw string) (*Assessment, error) {
	start := strings.IndexByte(raw, '{')
	end := strings.LastIndexByte(raw, '}')
	if start < 0 || end < 0 {
		return nil, malformed("no JSON object found in response")
	}
	if end < start {
		return nil, malformed("invalid JSON: closing brace precedes opening brace")
	}

	var fields map[string]json.RawMessage
	if err := json.Unmarshal([]byte(raw[start:end+1]), &fields); err != nil {
		return nil, malformed("invalid JSON: %v", err)
	}

	for _, f := range requiredFields {
		if _, ok := fields[f]; !ok {
			return nil, malformed("missing required field: %s", f)
		}
	}

	var a Assessment

	var priority string
	if err := json.Unmarshal(fields["priority"], &priority); err != nil || !ticket.Priority(priority).Valid() {
		return nil, malformed("invalid priority: %s", compact(fields["priority"]))
	}
	a.Priority = ticket.Priority(priority)

	c, err := parseConfidence(fields["priority_confidence"])
	if err != nil {
		return nil, err
	}
	a.Confidence = c

	if a.PriorityRationale, err = stringField(fields, "priority_rationale"); err != nil {
		return nil, err
	}
	if a.ReplyDraft, err = stringField(fields, "reply_draft"); err != nil {
		return nil, err
	}

	if isFalsy(fields["suggested_assignee"]) {
		return &a, nil
	}
	name, err := stringField(fields, "suggested_assignee")
	if err != nil {
		return nil, err
	}
	a.SuggestedAssignee = &name

	if raw, ok := fields["assignee_rationale"]; ok && !isNull(raw) {
		why, err := stringField(fields, "assignee_rationale")
		if err != nil {
			return nil, err
		}
		a.AssigneeRationale = &why
	}
	return &a, nil
}

// parseConfidence accepts a JSON number or a numeric string and requires
// the value to lie in [0, 1].
func parseConfidence(raw json.RawMessage) (float64, error) {
	if isNull(raw) {
		return 0, malformed("invalid confidence: null")
	}
	var c float64
	if err := json.Unmarshal(raw, &c); err != nil {
		var s string
		if json.Unmarshal(raw, &s) != nil {
			return 0, malformed("invalid confidence: %s", compact(raw))
		}
		c, err = strconv.ParseFloat(strings.TrimSpace(s), 64)
		if err != nil {
			return 0, malformed("invalid confidence: %q", s)
		}
	}
	if math.IsNaN(c) || c < 0 || c > 1 {
		return 0, malformed("invalid confidence: %v", c)
	}
	return c, nil
}

func stringField(fields map[string]json.RawMessage, name string) (string, error) {
	var s string
	if err := json.Unmarshal(fields[name], &s); err != nil || isNull(fields[name]) {
		return "", malformed("field %s must be a string, got %s", name, compact(fields[name]))
	}
	return s, nil
}

// isFalsy reports whether raw is absent, null, false, zero, or an empty
// string, array or object.
func isFalsy(raw json.RawMessage) bool {
	if len(raw) == 0 {
		return true
	}
	var v any
	if err := json.Unmarshal(raw, &v); err != nil {
		return true
	}
	switch x := v.(type) {
	case nil:
		return true
	case bool:
		return !x
	case float64:
		return x == 0
	case string:
		return x == ""
	case []any:
		return len(x) == 0
	case map[string]any:
		return len(x) == 0
	}
	return false
}

func isNull(raw json.RawMessage) bool {
	return bytes.Equal(bytes.TrimSpace(raw), []byte("null"))
}

func compact(raw json.RawMessage) string {
	const limit = 64
	s := string(bytes.TrimSpace(raw))
	if len(s) > limit {
		s = s[:limit] + "..."
	}
	return s
}

func malformed(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrMalformedResponse, fmt.Sprintf(format, args...))
}
