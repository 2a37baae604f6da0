package store

import "github.com/jackc/pgx/v4"

// pgxTx is the transaction handle passed into WithTx callbacks. Aliased
// so repositories depend on this package's name, not pgx's, the same way
// channeldb callers never import bbolt directly.
type pgxTx = pgx.Tx
