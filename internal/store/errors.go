package store

import (
	"errors"

	"github.com/jackc/pgconn"
	"github.com/jackc/pgerrcode"
)

// ErrNotFound is returned when a lookup by id finds no row.
var ErrNotFound = errors.New("store: not found")

// ErrVersionConflict is returned when an UPDATE's version precondition
// did not match any row — either a concurrent writer got there first, or
// the caller's view of the row was stale (§5: "a version/state
// precondition in the UPDATE so a concurrent writer cannot silently
// overwrite").
var ErrVersionConflict = errors.New("store: version conflict")

// IsTransient classifies a database error per §7's transient class:
// serialization failures and deadlocks are retried next tick with no
// state change, distinct from a semantic "not found"/"conflict" result.
func IsTransient(err error) bool {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return false
	}
	switch pgErr.Code {
	case pgerrcode.SerializationFailure, pgerrcode.DeadlockDetected,
		pgerrcode.TooManyConnections, pgerrcode.ConnectionException:
		return true
	default:
		return false
	}
}
