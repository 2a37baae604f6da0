package store

import (
	"context"
	"encoding/json"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v4"

	"github.com/5day4cast/coordinator/internal/domain"
)

// EntryRepo persists domain.Entry rows.
type EntryRepo struct {
	db *DB
}

func NewEntryRepo(db *DB) *EntryRepo {
	return &EntryRepo{db: db}
}

// Insert binds a new entry to its ticket (§4.5 "Entry binding"). The
// unique constraint on ticket_id enforces §3's "each entry's ticket_id is
// unique".
func (r *EntryRepo) Insert(ctx context.Context, e *domain.Entry) error {
	submission, err := json.Marshal(e.EntrySubmission)
	if err != nil {
		return err
	}
	partials, err := json.Marshal(e.PartialSignatures)
	if err != nil {
		return err
	}

	_, err = r.db.Pool.Exec(ctx, `
		INSERT INTO entries (
			id, event_id, ticket_id, user_pubkey, ephemeral_pubkey,
			encrypted_key_material, entry_submission, partial_signatures,
			created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		e.ID, e.EventID, e.TicketID, e.UserPubkey, e.EphemeralPubkey,
		e.EncryptedKeyMaterial, submission, partials, e.CreatedAt,
	)
	return err
}

// ListByEvent locks and returns every entry for event, ordered by id
// ascending so the result already reflects player-index order (§3, §4.3
// step 1).
func (r *EntryRepo) ListByEvent(ctx context.Context, tx pgxTx, eventID uuid.UUID) ([]*domain.Entry, error) {
	rows, err := tx.Query(ctx, entrySelectColumns+`
		FROM entries WHERE event_id = $1 ORDER BY id ASC FOR UPDATE`,
		eventID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*domain.Entry
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// CountByEvent is a read-only count, used by the API layer to reject
// ticket reservations once a competition is full (§3, §4.5).
func (r *EntryRepo) CountByEvent(ctx context.Context, eventID uuid.UUID) (int, error) {
	var count int
	err := r.db.Pool.QueryRow(ctx, `SELECT count(*) FROM entries WHERE event_id = $1`, eventID).Scan(&count)
	return count, err
}

const entrySelectColumns = `
	SELECT id, event_id, ticket_id, user_pubkey, ephemeral_pubkey,
	       encrypted_key_material, entry_submission, public_nonces,
	       funding_psbt_signed, partial_signatures, payout_ln_invoice,
	       nonces_submitted_at, signed_at, created_at, version`

func scanEntry(row scanRow) (*domain.Entry, error) {
	var (
		e              domain.Entry
		submissionRaw  []byte
		partialsRaw    []byte
		payoutInvoice  *string
	)
	err := row.Scan(
		&e.ID, &e.EventID, &e.TicketID, &e.UserPubkey, &e.EphemeralPubkey,
		&e.EncryptedKeyMaterial, &submissionRaw, &e.PublicNonces,
		&e.FundingPSBTSigned, &partialsRaw, &payoutInvoice,
		&e.NoncesSubmittedAt, &e.SignedAt, &e.CreatedAt, &e.Version,
	)
	if err == pgx.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal(submissionRaw, &e.EntrySubmission); err != nil {
		return nil, err
	}
	e.PartialSignatures = make(map[string][]byte)
	if partialsRaw != nil {
		if err := json.Unmarshal(partialsRaw, &e.PartialSignatures); err != nil {
			return nil, err
		}
	}
	if payoutInvoice != nil {
		e.PayoutLightningInvoice = *payoutInvoice
	}
	return &e, nil
}

// Update persists e's mutable signing-session fields guarded by version.
func (r *EntryRepo) Update(ctx context.Context, tx pgxTx, e *domain.Entry) error {
	partials, err := json.Marshal(e.PartialSignatures)
	if err != nil {
		return err
	}

	var payoutInvoice *string
	if e.PayoutLightningInvoice != "" {
		payoutInvoice = &e.PayoutLightningInvoice
	}

	tag, err := tx.Exec(ctx, `
		UPDATE entries SET
			public_nonces = $1, funding_psbt_signed = $2,
			partial_signatures = $3, payout_ln_invoice = $4,
			nonces_submitted_at = $5, signed_at = $6, version = version + 1
		WHERE id = $7 AND version = $8`,
		e.PublicNonces, e.FundingPSBTSigned, partials, payoutInvoice,
		e.NoncesSubmittedAt, e.SignedAt, e.ID, e.Version,
	)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrVersionConflict
	}
	e.Version++
	return nil
}
