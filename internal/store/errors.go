package store

import (
	"errors"

	"github.com/lib/pq"
)

// ErrNotFound is returned when no matching active record exists.
var ErrNotFound = errors.New("not found")

// ErrConflict is returned when a write violates a uniqueness
// constraint, e.g. a duplicate active username.
var ErrConflict = errors.New("conflict")

const pqUniqueViolation = "23505"

// isUniqueViolation reports whether err is a postgres unique-index
// violation. The database is the authority for uniqueness; the service
// pre-check alone cannot close the check-then-insert race.
func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == pqUniqueViolation
}
