// Package repositories implements the database access layer over sqlx.
// Repositories are constructed once at startup with an injected *sqlx.DB and
// passed to every component that needs them; they hold no other state.
package repositories

import (
	"errors"

	"github.com/lib/pq"
)

// Sentinel errors returned by repositories so handlers can map database
// outcomes to stable HTTP status classes without inspecting driver errors.
var (
	// ErrNotFound is returned when a requested row does not exist.
	ErrNotFound = errors.New("record not found")

	// ErrConflict is returned on uniqueness violations (duplicate email,
	// duplicate credential digest).
	ErrConflict = errors.New("record already exists")
)

// isUniqueViolation reports whether err is a Postgres unique_violation (23505).
func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == "23505"
}
