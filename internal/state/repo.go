package state

import (
	"database/sql"
	"sync"
)

// Repo wraps ipam.db and provides transactional CRUD for all engine entities.
// All writes are serialized by an internal mutex; SQLite runs single-writer
// anyway, the mutex keeps claim transactions from tripping over SQLITE_BUSY.
type Repo struct {
	db *sql.DB
	mu sync.Mutex
}

// NewRepo creates a Repo for the given ipam.db connection.
func NewRepo(db *sql.DB) *Repo {
	return &Repo{db: db}
}

// inTx runs fn inside a write transaction, committing on nil and rolling back
// otherwise.
func (r *Repo) inTx(fn func(tx *sql.Tx) error) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	tx, err := r.db.Begin()
	if err != nil {
		return err
	}
	if err := fn(tx); err != nil {
		tx.Rollback()
		return err
	}
	return tx.Commit()
}
