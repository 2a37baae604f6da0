package store

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v4"

	"github.com/5day4cast/coordinator/internal/domain"
)

// SigningSessionRepo persists domain.SigningSession rows, one per
// (competition, tx kind) pair (§4.4 "state machine of a single signing
// session").
type SigningSessionRepo struct {
	db *DB
}

func NewSigningSessionRepo(db *DB) *SigningSessionRepo {
	return &SigningSessionRepo{db: db}
}

// Insert creates a session row in the Pending state.
func (r *SigningSessionRepo) Insert(ctx context.Context, tx pgxTx, s *domain.SigningSession) error {
	_, err := tx.Exec(ctx, `
		INSERT INTO signing_sessions (competition_id, tx_kind, state, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $4)`,
		s.CompetitionID, s.TxKind, s.State, s.CreatedAt,
	)
	return err
}

// LoadForUpdate reads and locks a session row within the caller's
// transaction.
func (r *SigningSessionRepo) LoadForUpdate(ctx context.Context, tx pgxTx, competitionID uuid.UUID, txKind string) (*domain.SigningSession, error) {
	row := tx.QueryRow(ctx, `
		SELECT competition_id, tx_kind, state, coordinator_nonce, coordinator_sec_nonce, aggregate_nonce,
		       aggregate_key, sighash, final_signature, error, created_at, updated_at, version
		FROM signing_sessions
		WHERE competition_id = $1 AND tx_kind = $2
		FOR UPDATE`, competitionID, txKind)

	return scanSigningSession(row)
}

// ListByCompetition loads every session row for a competition, for the
// Signing Coordinator's per-tick scan of all in-flight transaction kinds.
func (r *SigningSessionRepo) ListByCompetition(ctx context.Context, tx pgxTx, competitionID uuid.UUID) ([]*domain.SigningSession, error) {
	rows, err := tx.Query(ctx, `
		SELECT competition_id, tx_kind, state, coordinator_nonce, coordinator_sec_nonce, aggregate_nonce,
		       aggregate_key, sighash, final_signature, error, created_at, updated_at, version
		FROM signing_sessions
		WHERE competition_id = $1
		ORDER BY tx_kind ASC`, competitionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*domain.SigningSession
	for rows.Next() {
		s, err := scanSigningSession(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

func scanSigningSession(row scanRow) (*domain.SigningSession, error) {
	var s domain.SigningSession
	err := row.Scan(
		&s.CompetitionID, &s.TxKind, &s.State, &s.CoordinatorNonce, &s.CoordinatorSecNonce, &s.AggregateNonce,
		&s.AggregateKey, &s.SigHash, &s.FinalSignature, &s.Error, &s.CreatedAt, &s.UpdatedAt, &s.Version,
	)
	if err == pgx.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &s, nil
}

// Update persists s's new state and fields, guarded by s.Version.
func (r *SigningSessionRepo) Update(ctx context.Context, tx pgxTx, s *domain.SigningSession, now time.Time) error {
	tag, err := tx.Exec(ctx, `
		UPDATE signing_sessions SET
			state = $1,
			coordinator_nonce = $2,
			coordinator_sec_nonce = $3,
			aggregate_nonce = $4,
			aggregate_key = $5,
			sighash = $6,
			final_signature = $7,
			error = $8,
			updated_at = $9,
			version = version + 1
		WHERE competition_id = $10 AND tx_kind = $11 AND version = $12`,
		s.State, s.CoordinatorNonce, s.CoordinatorSecNonce, s.AggregateNonce, s.AggregateKey,
		s.SigHash, s.FinalSignature, s.Error, now,
		s.CompetitionID, s.TxKind, s.Version,
	)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrVersionConflict
	}
	s.Version++
	return nil
}
