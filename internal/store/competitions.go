package store

import (
	"context"
	"encoding/json"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v4"

	"github.com/5day4cast/coordinator/internal/domain"
)

// CompetitionRepo persists domain.Competition rows.
type CompetitionRepo struct {
	db *DB
}

func NewCompetitionRepo(db *DB) *CompetitionRepo {
	return &CompetitionRepo{db: db}
}

// Insert creates a brand-new competition row in the Created state. Called
// only from the API layer (§4.1 "Lifecycle ownership").
func (r *CompetitionRepo) Insert(ctx context.Context, c *domain.Competition) error {
	submission, err := json.Marshal(c.EventSubmission)
	if err != nil {
		return err
	}

	_, err = r.db.Pool.Exec(ctx, `
		INSERT INTO competitions (id, event_submission, state, transitions, errors, delta_transactions)
		VALUES ($1, $2, $3, '{}', '[]', '{}')`,
		c.ID, submission, c.State,
	)
	return err
}

// Load reads a competition row without locking it, for read-only API
// responses (§6) that don't need to participate in a handler's
// transaction.
func (r *CompetitionRepo) Load(ctx context.Context, id uuid.UUID) (*domain.Competition, error) {
	row := r.db.Pool.QueryRow(ctx, `
		SELECT id, event_submission, event_announcement, contract_parameters,
		       funding_psbt, funding_outpoint, funding_transaction,
		       outcome_transaction, delta_transactions, attestation,
		       state, transitions, errors, cancel_requested, version
		FROM competitions WHERE id = $1`, id)

	return scanCompetition(row)
}

// LoadForUpdate reads a competition row and locks it for the duration of
// the caller's transaction (§5: row-level DB locks suffice for
// per-competition serialization).
func (r *CompetitionRepo) LoadForUpdate(ctx context.Context, tx pgxTx, id uuid.UUID) (*domain.Competition, error) {
	row := tx.QueryRow(ctx, `
		SELECT id, event_submission, event_announcement, contract_parameters,
		       funding_psbt, funding_outpoint, funding_transaction,
		       outcome_transaction, delta_transactions, attestation,
		       state, transitions, errors, cancel_requested, version
		FROM competitions WHERE id = $1 FOR UPDATE`, id)

	return scanCompetition(row)
}

// ListNonTerminal loads every competition not yet in a terminal state, for
// the watcher's per-tick scan (§4.1 step 1) and the startup recovery scan
// (§4.1 "Recovery policy").
func (r *CompetitionRepo) ListNonTerminal(ctx context.Context) ([]*domain.Competition, error) {
	rows, err := r.db.Pool.Query(ctx, `
		SELECT id, event_submission, event_announcement, contract_parameters,
		       funding_psbt, funding_outpoint, funding_transaction,
		       outcome_transaction, delta_transactions, attestation,
		       state, transitions, errors, cancel_requested, version
		FROM competitions
		WHERE state NOT IN ($1, $2, $3)
		ORDER BY id ASC`,
		domain.Completed, domain.Cancelled, domain.Failed,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*domain.Competition
	for rows.Next() {
		c, err := scanCompetition(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// scanRow abstracts over pgx.Row / pgx.Rows, both of which implement Scan.
type scanRow interface {
	Scan(dest ...interface{}) error
}

func scanCompetition(row scanRow) (*domain.Competition, error) {
	var (
		c                          domain.Competition
		submissionRaw              []byte
		announcementRaw           []byte
		paramsRaw                  []byte
		deltaRaw                   []byte
		attestationRaw            []byte
		transitionsRaw             []byte
		errorsRaw                  []byte
	)

	err := row.Scan(
		&c.ID, &submissionRaw, &announcementRaw, &paramsRaw,
		&c.FundingPSBT, &c.FundingOutpoint, &c.FundingTransaction,
		&c.OutcomeTransaction, &deltaRaw, &attestationRaw,
		&c.State, &transitionsRaw, &errorsRaw, &c.CancelRequested, &c.Version,
	)
	if err == pgx.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	if err := json.Unmarshal(submissionRaw, &c.EventSubmission); err != nil {
		return nil, err
	}
	if announcementRaw != nil {
		c.EventAnnouncement = &domain.EventAnnouncement{}
		if err := json.Unmarshal(announcementRaw, c.EventAnnouncement); err != nil {
			return nil, err
		}
	}
	if paramsRaw != nil {
		c.ContractParameters = &domain.ContractParameters{}
		if err := json.Unmarshal(paramsRaw, c.ContractParameters); err != nil {
			return nil, err
		}
	}
	if attestationRaw != nil {
		c.Attestation = &domain.Attestation{}
		if err := json.Unmarshal(attestationRaw, c.Attestation); err != nil {
			return nil, err
		}
	}
	c.DeltaTransactions = make(map[string][]byte)
	if deltaRaw != nil {
		if err := json.Unmarshal(deltaRaw, &c.DeltaTransactions); err != nil {
			return nil, err
		}
	}
	if err := json.Unmarshal(transitionsRaw, &c.Transitions); err != nil {
		return nil, err
	}
	if err := json.Unmarshal(errorsRaw, &c.Errors); err != nil {
		return nil, err
	}

	return &c, nil
}

// CommitTransition persists c's new state and any side-effect fields the
// handler wrote, guarded by c.Version so a concurrent writer cannot
// silently overwrite (§5). Callers must have loaded c via LoadForUpdate
// in the same transaction.
func (r *CompetitionRepo) CommitTransition(ctx context.Context, tx pgxTx, c *domain.Competition) error {
	var announcementRaw, paramsRaw, attestationRaw []byte
	var err error

	if c.EventAnnouncement != nil {
		if announcementRaw, err = json.Marshal(c.EventAnnouncement); err != nil {
			return err
		}
	}
	if c.ContractParameters != nil {
		if paramsRaw, err = json.Marshal(c.ContractParameters); err != nil {
			return err
		}
	}
	if c.Attestation != nil {
		if attestationRaw, err = json.Marshal(c.Attestation); err != nil {
			return err
		}
	}
	deltaRaw, err := json.Marshal(c.DeltaTransactions)
	if err != nil {
		return err
	}
	transitionsRaw, err := json.Marshal(c.Transitions)
	if err != nil {
		return err
	}
	errorsRaw, err := json.Marshal(c.Errors)
	if err != nil {
		return err
	}

	tag, err := tx.Exec(ctx, `
		UPDATE competitions SET
			event_announcement = $1,
			contract_parameters = $2,
			funding_psbt = $3,
			funding_outpoint = $4,
			funding_transaction = $5,
			outcome_transaction = $6,
			delta_transactions = $7,
			attestation = $8,
			state = $9,
			transitions = $10,
			errors = $11,
			cancel_requested = $12,
			version = version + 1
		WHERE id = $13 AND version = $14`,
		announcementRaw, paramsRaw, c.FundingPSBT, c.FundingOutpoint,
		c.FundingTransaction, c.OutcomeTransaction, deltaRaw, attestationRaw,
		c.State, transitionsRaw, errorsRaw, c.CancelRequested,
		c.ID, c.Version,
	)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrVersionConflict
	}
	c.Version++
	return nil
}

// RequestCancellation sets cancel_requested so the next tick observes it
// before executing side effects (§5 "Cancellation and timeouts").
func (r *CompetitionRepo) RequestCancellation(ctx context.Context, id uuid.UUID) error {
	_, err := r.db.Pool.Exec(ctx, `UPDATE competitions SET cancel_requested = TRUE WHERE id = $1`, id)
	return err
}
