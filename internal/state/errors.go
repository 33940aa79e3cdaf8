package state

import (
	"errors"

	sqlite3 "modernc.org/sqlite"
	sqlite3lib "modernc.org/sqlite/lib"
)

// ErrNotFound is returned when a requested resource does not exist in the database.
var ErrNotFound = errors.New("not found")

// ErrConflict is returned when a write violates a uniqueness/conflict constraint.
// Allocators treat it as "lost the claim, advance to the next candidate".
var ErrConflict = errors.New("conflict")

// ErrRegionNotActive is returned when a host claim finds its region no
// longer active inside the claim transaction.
var ErrRegionNotActive = errors.New("region not active")

// isUniqueViolation reports whether err is a SQLite unique or primary-key
// constraint failure.
func isUniqueViolation(err error) bool {
	var serr *sqlite3.Error
	if !errors.As(err, &serr) {
		return false
	}
	switch serr.Code() {
	case sqlite3lib.SQLITE_CONSTRAINT_UNIQUE, sqlite3lib.SQLITE_CONSTRAINT_PRIMARYKEY:
		return true
	}
	return false
}
