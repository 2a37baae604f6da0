// Package api is the coordinator's HTTP surface (§6): participant-facing
// endpoints for browsing competitions, reserving tickets, and submitting
// entries, plus an admin endpoint for creating competitions and
// requesting cancellation. Styled after the pack's gorilla/mux
// controllers but wired with this project's own btclog-based logging and
// plain struct construction rather than a DI container.
package api

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/btcsuite/btclog"
	"github.com/gorilla/mux"

	"github.com/5day4cast/coordinator/internal/crypto"
	"github.com/5day4cast/coordinator/internal/store"
	"github.com/5day4cast/coordinator/internal/tickets"
)

// Server holds every dependency the handlers need. Each handler method
// reads what it needs off this struct rather than closing over package
// globals, the same shape replay-api's controllers use with their
// resolved dependencies, minus the container.
type Server struct {
	DB          *store.DB
	Competitions *store.CompetitionRepo
	Entries     *store.EntryRepo
	Tickets     *store.TicketRepo
	TicketSvc   *tickets.Service
	Sealer      *crypto.Sealer
	Log         btclog.Logger
	Now         func() time.Time

	// RequireAuth, when true, rejects participant requests that don't
	// carry a verifying NIP-98 header (§6). Tests may disable it.
	RequireAuth bool
}

// NewServer builds a Server with time.Now as its clock and auth enabled.
func NewServer(db *store.DB, competitions *store.CompetitionRepo, entries *store.EntryRepo, ticketRepo *store.TicketRepo, ticketSvc *tickets.Service, log btclog.Logger) *Server {
	return &Server{
		DB:           db,
		Competitions: competitions,
		Entries:      entries,
		Tickets:      ticketRepo,
		TicketSvc:    ticketSvc,
		Log:          log,
		Now:          time.Now,
		RequireAuth:  true,
	}
}

// Router builds the full mux, participant routes under /api/v1 and the
// admin route under /admin/api (§6). Kept for tests that exercise both
// surfaces against a single httptest server; the daemon itself serves
// PublicRouter and AdminRouter on separate listeners.
func (s *Server) Router() *mux.Router {
	r := mux.NewRouter()
	s.mountPublic(r)
	s.mountAdmin(r)
	return r
}

// PublicRouter serves only the participant-facing /api/v1 surface, meant
// for the listener the spec expects to be reachable from the internet.
func (s *Server) PublicRouter() *mux.Router {
	r := mux.NewRouter()
	s.mountPublic(r)
	return r
}

// AdminRouter serves only /admin/api, meant for a listener bound to a
// private address (§6's admin endpoint is operator-only, not part of the
// participant-facing API).
func (s *Server) AdminRouter() *mux.Router {
	r := mux.NewRouter()
	s.mountAdmin(r)
	return r
}

func (s *Server) mountPublic(r *mux.Router) {
	api := r.PathPrefix("/api/v1").Subrouter()
	api.HandleFunc("/competitions", s.ListCompetitions).Methods(http.MethodGet)
	api.HandleFunc("/competitions/{id}/contract", s.GetContract).Methods(http.MethodGet)
	api.HandleFunc("/competitions/{id}/ticket", s.authenticated(s.ReserveTicket)).Methods(http.MethodPost)
	api.HandleFunc("/competitions/{id}/tickets/{ticket_id}/status", s.TicketStatus).Methods(http.MethodGet)
	api.HandleFunc("/entries", s.authenticated(s.SubmitEntry)).Methods(http.MethodPost)
	api.HandleFunc("/entries", s.authenticated(s.ListEntries)).Methods(http.MethodGet)
	api.HandleFunc("/competitions/{id}/entries/{entry_id}/payout", s.authenticated(s.SetPayoutInvoice)).Methods(http.MethodPost)
}

func (s *Server) mountAdmin(r *mux.Router) {
	admin := r.PathPrefix("/admin/api").Subrouter()
	admin.HandleFunc("/competitions", s.CreateCompetition).Methods(http.MethodPost)
	admin.HandleFunc("/competitions/{id}/cancel", s.RequestCancellation).Methods(http.MethodPost)
}

// authenticated wraps h so it only runs after AuthenticatedPubkey
// succeeds; the verified pubkey is attached to the request context under
// pubkeyContextKey for the handler to read.
func (s *Server) authenticated(h http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if !s.RequireAuth {
			h(w, r)
			return
		}

		pubkey, err := AuthenticatedPubkey(r, s.Now())
		if err != nil {
			if s.Log != nil {
				s.Log.Debugf("rejecting unauthenticated request to %s: %v", r.URL.Path, err)
			}
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}

		h(w, r.WithContext(withPubkey(r.Context(), pubkey)))
	}
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

type errorResponse struct {
	Error string `json:"error"`
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorResponse{Error: msg})
}
