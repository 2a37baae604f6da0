package api

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/jackc/pgx/v4"

	"github.com/5day4cast/coordinator/internal/domain"
	"github.com/5day4cast/coordinator/internal/signing"
	"github.com/5day4cast/coordinator/internal/store"
)

// defaultTicketTTL is the reservation window (§4.5) used by the
// participant-facing reserve endpoint.
const defaultTicketTTL = 10 * time.Minute

// ListCompetitions handles GET /api/v1/competitions. Only non-terminal
// competitions are listed; once a competition is Completed, Cancelled or
// Failed it no longer has any participant-facing action pending.
func (s *Server) ListCompetitions(w http.ResponseWriter, r *http.Request) {
	competitions, err := s.Competitions.ListNonTerminal(r.Context())
	if err != nil {
		s.logError(r, "listing competitions", err)
		writeError(w, http.StatusInternalServerError, "error fetching competitions")
		return
	}

	writeJSON(w, http.StatusOK, struct {
		Competitions []*domain.Competition `json:"competitions"`
	}{Competitions: competitions})
}

type contractResponse struct {
	*domain.ContractParameters
	EnclaveSessions map[string]string `json:"enclave_sessions,omitempty"`
}

// GetContract handles GET /api/v1/competitions/{id}/contract, returning
// the DLC payout matrix once it has been computed (§4.3) plus, for an
// authenticated caller with a bound entry, the enclave session ids that
// entry should use for each signing round (§6 "contract parameters +
// enclave session info (post-payment)").
func (s *Server) GetContract(w http.ResponseWriter, r *http.Request) {
	id, ok := s.parseID(w, r, "id")
	if !ok {
		return
	}

	competition, err := s.Competitions.Load(r.Context(), id)
	if err != nil {
		s.notFoundOrError(w, r, "loading competition", err)
		return
	}
	if competition.ContractParameters == nil {
		writeError(w, http.StatusNotFound, "contract not yet available")
		return
	}

	resp := contractResponse{ContractParameters: competition.ContractParameters}

	if pubkey, ok := PubkeyFromContext(r.Context()); ok {
		var entries []*domain.Entry
		err = s.DB.WithTx(r.Context(), func(ctx context.Context, tx pgx.Tx) error {
			var listErr error
			entries, listErr = s.Entries.ListByEvent(ctx, tx, id)
			return listErr
		})
		if err != nil {
			s.logError(r, "loading entries for contract", err)
			writeError(w, http.StatusInternalServerError, "error fetching contract")
			return
		}

		playerIndices := domain.AssignPlayerIndices(entries)
		for _, e := range entries {
			if string(e.UserPubkey) != pubkey {
				continue
			}
			playerIndex := playerIndices[e.ID]
			resp.EnclaveSessions = map[string]string{
				domain.TxKindFunding: signing.SessionID(id, domain.TxKindFunding, playerIndex),
				domain.TxKindDelta1:  signing.SessionID(id, domain.TxKindDelta1, playerIndex),
				domain.TxKindDelta2:  signing.SessionID(id, domain.TxKindDelta2, playerIndex),
			}
			for outcomeIdx := range competition.ContractParameters.PayoutMatrix {
				kind := domain.OutcomeTxKind(outcomeIdx)
				resp.EnclaveSessions[kind] = signing.SessionID(id, kind, playerIndex)
			}
			break
		}
	}

	writeJSON(w, http.StatusOK, resp)
}

type reserveTicketRequest struct {
	EphemeralPubkey []byte `json:"ephemeral_pubkey"`
}

type reserveTicketResponse struct {
	TicketID       uuid.UUID `json:"ticket_id"`
	PaymentRequest string    `json:"payment_request"`
	ExpiresAt      time.Time `json:"expires_at"`
}

// ReserveTicket handles POST /api/v1/competitions/{id}/ticket (§4.5
// "Reservation"). The caller must be authenticated; ReservedBy is the
// verified pubkey from the request's NIP-98 header.
func (s *Server) ReserveTicket(w http.ResponseWriter, r *http.Request) {
	eventID, ok := s.parseID(w, r, "id")
	if !ok {
		return
	}
	pubkey, _ := PubkeyFromContext(r.Context())

	var req reserveTicketRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if len(req.EphemeralPubkey) == 0 {
		writeError(w, http.StatusBadRequest, "ephemeral_pubkey is required")
		return
	}

	competition, err := s.Competitions.Load(r.Context(), eventID)
	if err != nil {
		s.notFoundOrError(w, r, "loading competition", err)
		return
	}

	var activeCount int
	err = s.DB.WithTx(r.Context(), func(ctx context.Context, tx pgx.Tx) error {
		var countErr error
		activeCount, countErr = s.Tickets.CountActive(ctx, tx, eventID)
		return countErr
	})
	if err != nil {
		s.logError(r, "counting active tickets", err)
		writeError(w, http.StatusInternalServerError, "error checking capacity")
		return
	}
	if activeCount >= competition.EventSubmission.TotalAllowedEntries {
		writeError(w, http.StatusConflict, "competition is full")
		return
	}

	ticket, preimage, err := s.TicketSvc.Reserve(r.Context(), eventID, []byte(pubkey), req.EphemeralPubkey,
		competition.EventSubmission.EntryFee, defaultTicketTTL)
	if err != nil {
		s.logError(r, "reserving ticket", err)
		writeError(w, http.StatusInternalServerError, "error reserving ticket")
		return
	}
	if s.Sealer != nil {
		sealed, err := s.Sealer.Seal(preimage[:])
		if err != nil {
			s.logError(r, "sealing preimage", err)
			writeError(w, http.StatusInternalServerError, "error securing ticket")
			return
		}
		ticket.EncryptedPreimage = sealed
	}

	if err := s.Tickets.Insert(r.Context(), ticket); err != nil {
		s.logError(r, "inserting ticket", err)
		writeError(w, http.StatusInternalServerError, "error reserving ticket")
		return
	}

	writeJSON(w, http.StatusCreated, reserveTicketResponse{
		TicketID:       ticket.ID,
		PaymentRequest: ticket.PaymentRequest,
		ExpiresAt:      ticket.ReservationExpiresAt,
	})
}

// TicketStatus handles GET .../tickets/{ticket_id}/status.
func (s *Server) TicketStatus(w http.ResponseWriter, r *http.Request) {
	ticketID, ok := s.parseID(w, r, "ticket_id")
	if !ok {
		return
	}

	ticket, err := s.Tickets.Load(r.Context(), ticketID)
	if err != nil {
		s.notFoundOrError(w, r, "loading ticket", err)
		return
	}

	writeJSON(w, http.StatusOK, struct {
		State domain.TicketState `json:"state"`
	}{State: ticket.State})
}

type submitEntryRequest struct {
	EventID              uuid.UUID               `json:"event_id"`
	TicketID             uuid.UUID               `json:"ticket_id"`
	EphemeralPubkey      []byte                  `json:"ephemeral_pubkey"`
	EncryptedKeyMaterial []byte                  `json:"encrypted_key_material"`
	Submission           domain.EntrySubmission  `json:"entry_submission"`
}

// SubmitEntry handles POST /api/v1/entries (§4.5 "Entry binding"). The
// ticket must already be Paid or Settled and its locked ephemeral key
// must match the submitted key.
func (s *Server) SubmitEntry(w http.ResponseWriter, r *http.Request) {
	pubkey, _ := PubkeyFromContext(r.Context())

	var req submitEntryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	ticket, err := s.Tickets.Load(r.Context(), req.TicketID)
	if err != nil {
		s.notFoundOrError(w, r, "loading ticket", err)
		return
	}
	if ticket.State != domain.TicketPaid && ticket.State != domain.TicketSettled {
		writeError(w, http.StatusConflict, "ticket is not paid")
		return
	}
	if string(ticket.EphemeralPubkey) != string(req.EphemeralPubkey) {
		writeError(w, http.StatusForbidden, "ephemeral pubkey does not match ticket")
		return
	}

	entry := domain.NewEntry(uuid.New(), req.EventID, req.TicketID, []byte(pubkey), req.EphemeralPubkey, req.Submission, s.Now())
	entry.EncryptedKeyMaterial = req.EncryptedKeyMaterial

	if err := s.Entries.Insert(r.Context(), entry); err != nil {
		s.logError(r, "inserting entry", err)
		writeError(w, http.StatusInternalServerError, "error submitting entry")
		return
	}

	writeJSON(w, http.StatusCreated, entry)
}

// ListEntries handles GET /api/v1/entries?event_id=..., returning only
// the authenticated caller's own entries for that competition (§6
// "caller's entries").
func (s *Server) ListEntries(w http.ResponseWriter, r *http.Request) {
	eventIDStr := r.URL.Query().Get("event_id")
	eventID, err := uuid.Parse(eventIDStr)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid or missing event_id")
		return
	}
	pubkey, _ := PubkeyFromContext(r.Context())

	var all []*domain.Entry
	err = s.DB.WithTx(r.Context(), func(ctx context.Context, tx pgx.Tx) error {
		var listErr error
		all, listErr = s.Entries.ListByEvent(ctx, tx, eventID)
		return listErr
	})
	if err != nil {
		s.logError(r, "listing entries", err)
		writeError(w, http.StatusInternalServerError, "error fetching entries")
		return
	}

	mine := make([]*domain.Entry, 0, len(all))
	for _, e := range all {
		if string(e.UserPubkey) == pubkey {
			mine = append(mine, e)
		}
	}

	writeJSON(w, http.StatusOK, struct {
		Entries []*domain.Entry `json:"entries"`
	}{Entries: mine})
}

type setPayoutInvoiceRequest struct {
	PayoutLightningInvoice string `json:"payout_ln_invoice"`
}

// SetPayoutInvoice handles POST .../entries/{entry_id}/payout, letting a
// winning participant register the invoice the settlement handler should
// pay (§4.3 payout dispatch).
func (s *Server) SetPayoutInvoice(w http.ResponseWriter, r *http.Request) {
	eventID, ok := s.parseID(w, r, "id")
	if !ok {
		return
	}
	entryID, ok := s.parseID(w, r, "entry_id")
	if !ok {
		return
	}

	var req setPayoutInvoiceRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	err := s.DB.WithTx(r.Context(), func(ctx context.Context, tx pgx.Tx) error {
		entries, err := s.Entries.ListByEvent(ctx, tx, eventID)
		if err != nil {
			return err
		}
		for _, e := range entries {
			if e.ID == entryID {
				e.PayoutLightningInvoice = req.PayoutLightningInvoice
				return s.Entries.Update(ctx, tx, e)
			}
		}
		return store.ErrNotFound
	})
	if err != nil {
		s.notFoundOrError(w, r, "setting payout invoice", err)
		return
	}

	writeJSON(w, http.StatusOK, struct {
		OK bool `json:"ok"`
	}{OK: true})
}

func (s *Server) parseID(w http.ResponseWriter, r *http.Request, field string) (uuid.UUID, bool) {
	id, err := uuid.Parse(mux.Vars(r)[field])
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid "+field)
		return uuid.UUID{}, false
	}
	return id, true
}

func (s *Server) logError(r *http.Request, action string, err error) {
	if s.Log != nil {
		s.Log.Errorf("%s: %v (path=%s)", action, err, r.URL.Path)
	}
}

func (s *Server) notFoundOrError(w http.ResponseWriter, r *http.Request, action string, err error) {
	if err == store.ErrNotFound {
		writeError(w, http.StatusNotFound, "not found")
		return
	}
	s.logError(r, action, err)
	writeError(w, http.StatusInternalServerError, "internal error")
}
