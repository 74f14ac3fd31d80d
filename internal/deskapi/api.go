// Package deskapi serves the helpdesk HTTP API.
package deskapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/linnemanlabs/go-core/log"
	"github.com/linnemanlabs/go-core/xerrors"

	"github.com/linnemanlabs/helpdesk/internal/ticket"
	"github.com/linnemanlabs/helpdesk/internal/triage"
)

// TicketService defines the ticket operations deskapi needs.
type TicketService interface {
	Create(ctx context.Context, in *ticket.NewTicket) (*ticket.View, error)
	Get(ctx context.Context, id string) (*ticket.View, bool, error)
	List(ctx context.Context, f ticket.Filter) ([]ticket.View, error)
	Update(ctx context.Context, id string, p *ticket.Patch) (*ticket.View, error)
	Delete(ctx context.Context, id string) error
	SaveReply(ctx context.Context, id string, d *ticket.ReplyDraft) (string, error)
}

// Triager runs one triage for a ticket.
type Triager interface {
	Triage(ctx context.Context, ticketID string) *triage.Outcome
}

// API holds dependencies for HTTP handlers.
type API struct {
	logger  log.Logger
	tickets TicketService
	triager Triager
}

// New creates a new API handler.
func New(logger log.Logger, tickets TicketService, triager Triager) *API {
	if logger == nil {
		logger = log.Nop()
	}
	if tickets == nil {
		panic(xerrors.New("ticket service is required"))
	}
	if triager == nil {
		panic(xerrors.New("triage service is required"))
	}
	return &API{
		logger:  logger,
		tickets: tickets,
		triager: triager,
	}
}

// RegisterRoutes attaches API endpoints to the router. Extra middleware,
// such as authentication, applies to every /api/v1 route.
func (a *API) RegisterRoutes(r chi.Router, mw ...func(http.Handler) http.Handler) {
	r.Route("/api/v1", func(r chi.Router) {
		r.Use(mw...)

		r.Post("/tickets", a.handleCreateTicket)
		r.Get("/tickets", a.handleListTickets)
		r.Get("/tickets/{id}", a.handleGetTicket)
		r.Put("/tickets/{id}", a.handleUpdateTicket)
		r.Delete("/tickets/{id}", a.handleDeleteTicket)
		r.Post("/tickets/{id}/reply", a.handleSaveReply)

		r.Post("/triage", a.handleTriage)
	})
}

type errorBody struct {
	Error string `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	// client went away; nothing useful to do
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorBody{Error: msg})
}

func decodeJSON(r *http.Request, v any) error {
	return json.NewDecoder(r.Body).Decode(v)
}

// writeServiceError maps ticket service errors onto HTTP statuses.
func (a *API) writeServiceError(w http.ResponseWriter, r *http.Request, err error, msg string, kv ...any) {
	var verr *ticket.ValidationError
	switch {
	case errors.As(err, &verr):
		writeError(w, http.StatusBadRequest, verr.Error())
	case errors.Is(err, ticket.ErrNotFound):
		writeError(w, http.StatusNotFound, "ticket not found")
	default:
		a.logger.Error(r.Context(), err, msg, kv...)
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}
