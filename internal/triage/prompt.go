package triage

import (
	"fmt"
	"strings"

	"github.com/linnemanlabs/helpdesk/internal/ticket"
)

// DefaultMaxReplyWords caps the reply draft length requested from the model.
const DefaultMaxReplyWords = 120

// PromptBuilder renders tickets into triage prompts. It holds only
// read-only inputs and is safe for concurrent use.
type PromptBuilder struct {
	roster        *Roster
	maxReplyWords int
}

// NewPromptBuilder returns a builder over roster. A non-positive
// maxReplyWords falls back to DefaultMaxReplyWords.
func NewPromptBuilder(roster *Roster, maxReplyWords int) *PromptBuilder {
	if roster == nil {
		roster = DefaultRoster()
	}
	if maxReplyWords <= 0 {
		maxReplyWords = DefaultMaxReplyWords
	}
	return &PromptBuilder{roster: roster, maxReplyWords: maxReplyWords}
}

// Build returns the prompt for t.
func (b *PromptBuilder) Build(t *ticket.Ticket) string {
	return BuildPrompt(t, b.roster, b.maxReplyWords)
}

// BuildPrompt states the ticket facts verbatim, lists every responder with
// their skills, and spells out the JSON output contract, the priority rubric
// and the reply draft requirements.
func BuildPrompt(t *ticket.Ticket, roster *Roster, maxReplyWords int) string {
	tags := "None"
	if len(t.Tags) > 0 {
		tags = strings.Join(t.Tags, ", ")
	}

	var team strings.Builder
	for i, r := range roster.responders {
		if i > 0 {
			team.WriteByte('\n')
		}
		fmt.Fprintf(&team, "- %s: Expert in %s", r.Name, strings.Join(r.Skills, ", "))
	}

	return fmt.Sprintf(`You are a helpdesk triage assistant. Analyze the following support ticket and provide a structured triage response.

**Ticket Details:**
Title: %s
Description: %s
Customer Email: %s
Tags: %s

**Available Team Members:**
%s

**Your Task:**
Provide a JSON response with the following structure:

{
  "priority": "P0 or P1 or P2 or P3",
  "priority_confidence": 0.0-1.0,
  "priority_rationale": "Brief explanation (1-2 sentences)",
  "suggested_assignee": "Name from team list or null",
  "assignee_rationale": "Why this person is best suited (1 sentence) or null",
  "reply_draft": "Professional first reply to customer (max %d words)"
}

**Priority Guidelines:**
- P0 (Critical): System down, data loss, security breach, many users affected
- P1 (High): Core functionality broken, significant business impact, urgent
- P2 (Medium): Feature not working, moderate impact, workaround available
- P3 (Low): Minor issue, cosmetic, question, feature request

**Reply Draft Requirements:**
- Acknowledge the issue
- Show empathy
- Indicate next steps
- Be professional and concise (at most %d words)
- Reference specific ticket details

Respond ONLY with valid JSON, no additional text.`,
		t.Title, t.Description, t.CustomerEmail, tags,
		team.String(),
		maxReplyWords, maxReplyWords,
	)
}
