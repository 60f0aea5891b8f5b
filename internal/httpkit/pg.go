package httpkit

import (
	"errors"

	"github.com/jackc/pgx/v5/pgconn"
)

const sqlstateUndefinedTable = "42P01"

// pgCode returns the SQLSTATE carried by err, or "" for non-Postgres errors.
func pgCode(err error) string {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code
	}
	return ""
}

// IsUndefinedTable reports a missing table. rendered_formats is read as
// empty until its migration has run.
func IsUndefinedTable(err error) bool {
	return pgCode(err) == sqlstateUndefinedTable
}
