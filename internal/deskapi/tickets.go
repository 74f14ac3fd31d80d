package deskapi

import (
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/linnemanlabs/helpdesk/internal/ticket"
)

type replyResponse struct {
	Success  bool   `json:"success"`
	Message  string `json:"message"`
	TicketID string `json:"ticket_id"`
}

func ticketID(r *http.Request) string {
	id := chi.URLParam(r, "id")
	trace.SpanFromContext(r.Context()).SetAttributes(attribute.String("helpdesk.ticket.id", id))
	return id
}

func (a *API) handleCreateTicket(w http.ResponseWriter, r *http.Request) {
	var in ticket.NewTicket
	if err := decodeJSON(r, &in); err != nil {
		writeError(w, http.StatusBadRequest, "invalid payload")
		return
	}

	v, err := a.tickets.Create(r.Context(), &in)
	if err != nil {
		a.writeServiceError(w, r, err, "failed to create ticket")
		return
	}

	trace.SpanFromContext(r.Context()).SetAttributes(attribute.String("helpdesk.ticket.id", v.ID))
	writeJSON(w, http.StatusCreated, v)
}

func (a *API) handleListTickets(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	f := ticket.Filter{
		Status:   ticket.Status(q.Get("status")),
		Priority: ticket.Priority(q.Get("priority")),
	}
	if f.Status != "" && !f.Status.Valid() {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid status: %q", f.Status))
		return
	}
	if f.Priority != "" && !f.Priority.Valid() {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid priority: %q", f.Priority))
		return
	}

	views, err := a.tickets.List(r.Context(), f)
	if err != nil {
		a.writeServiceError(w, r, err, "failed to list tickets")
		return
	}
	writeJSON(w, http.StatusOK, views)
}

func (a *API) handleGetTicket(w http.ResponseWriter, r *http.Request) {
	id := ticketID(r)

	v, ok, err := a.tickets.Get(r.Context(), id)
	if err != nil {
		a.writeServiceError(w, r, err, "failed to get ticket", "ticket_id", id)
		return
	}
	if !ok {
		writeError(w, http.StatusNotFound, "ticket not found")
		return
	}
	writeJSON(w, http.StatusOK, v)
}

func (a *API) handleUpdateTicket(w http.ResponseWriter, r *http.Request) {
	id := ticketID(r)

	var p ticket.Patch
	if err := decodeJSON(r, &p); err != nil {
		writeError(w, http.StatusBadRequest, "invalid payload")
		return
	}

	v, err := a.tickets.Update(r.Context(), id, &p)
	if err != nil {
		a.writeServiceError(w, r, err, "failed to update ticket", "ticket_id", id)
		return
	}
	writeJSON(w, http.StatusOK, v)
}

func (a *API) handleDeleteTicket(w http.ResponseWriter, r *http.Request) {
	id := ticketID(r)

	if err := a.tickets.Delete(r.Context(), id); err != nil {
		a.writeServiceError(w, r, err, "failed to delete ticket", "ticket_id", id)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (a *API) handleSaveReply(w http.ResponseWriter, r *http.Request) {
	id := ticketID(r)

	var d ticket.ReplyDraft
	if err := decodeJSON(r, &d); err != nil {
		writeError(w, http.StatusBadRequest, "invalid payload")
		return
	}

	action, err := a.tickets.SaveReply(r.Context(), id, &d)
	if err != nil {
		a.writeServiceError(w, r, err, "failed to save reply", "ticket_id", id)
		return
	}
	writeJSON(w, http.StatusOK, replyResponse{
		Success:  true,
		Message:  fmt.Sprintf("Reply draft %s successfully", action),
		TicketID: id,
	})
}
