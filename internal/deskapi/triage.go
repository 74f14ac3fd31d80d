package deskapi

import (
	"net/http"
	"strings"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/linnemanlabs/helpdesk/internal/triage"
)

type triageRequest struct {
	TicketID string `json:"ticket_id"`
}

// handleTriage runs triage synchronously. Every outcome is 200 except a
// missing ticket, which is 404 with the same body.
func (a *API) handleTriage(w http.ResponseWriter, r *http.Request) {
	var req triageRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid payload")
		return
	}
	req.TicketID = strings.TrimSpace(req.TicketID)
	if req.TicketID == "" {
		writeError(w, http.StatusBadRequest, "ticket_id is required")
		return
	}

	trace.SpanFromContext(r.Context()).SetAttributes(attribute.String("helpdesk.ticket.id", req.TicketID))

	out := a.triager.Triage(r.Context(), req.TicketID)

	status := http.StatusOK
	if out.Kind == triage.KindNotFound {
		status = http.StatusNotFound
	}
	writeJSON(w, status, out)
}
