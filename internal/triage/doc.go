// Package triage classifies helpdesk tickets with a single bounded model call.
//
// A PromptBuilder renders the ticket and the responder roster into one prompt,
// the Gateway sends it to a Provider under a hard deadline, Parse validates the
// raw reply into an Assessment, and Service persists the outcome through
// ticket.Store.ApplyTriage so the triage result, the ticket's priority and
// assignee, and the activity entry commit together.
package triage
