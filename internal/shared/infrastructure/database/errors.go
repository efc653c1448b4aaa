package database

import (
	"database/sql"
	"errors"

	"github.com/jackc/pgx/v5"
)

// ErrNoRows is returned by repositories in place of the driver-specific
// not-found error.
var ErrNoRows = errors.New("no rows in result set")

// IsNoRows reports whether err is any driver's not-found sentinel.
func IsNoRows(err error) bool {
	if err == nil {
		return false
	}
	return errors.Is(err, pgx.ErrNoRows) || errors.Is(err, sql.ErrNoRows) || errors.Is(err, ErrNoRows)
}
