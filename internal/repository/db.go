package repository

import (
	"context"
	"database/sql"
)

// DBTX is the unit-of-work handle the repositories operate on. Both
// *sql.DB and *sql.Tx satisfy it, so the same repository code serves
// single-record calls and the batch reconciler's transaction.
type DBTX interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
}

var (
	_ DBTX = (*sql.DB)(nil)
	_ DBTX = (*sql.Tx)(nil)
)

// nullString maps an empty string to SQL NULL so optional natural keys
// (numero_serie, mac_address) never collide on "".
func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
