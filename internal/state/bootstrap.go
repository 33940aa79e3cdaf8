package state

import (
	"database/sql"
	"fmt"
	"io"
	"os"
	"path/filepath"
)

// dbCloser holds the DB handle for cleanup. Implements io.Closer.
type dbCloser struct {
	db *sql.DB
}

func (c *dbCloser) Close() error {
	return c.db.Close()
}

// PersistenceBootstrap opens (or creates) ipam.db under stateDir, applies
// pending migrations, and returns a ready-to-use Repo plus an io.Closer for
// the DB handle.
func PersistenceBootstrap(stateDir string) (*Repo, io.Closer, error) {
	if err := os.MkdirAll(stateDir, 0o755); err != nil {
		return nil, nil, fmt.Errorf("create state dir %s: %w", stateDir, err)
	}

	dbPath := filepath.Join(stateDir, "ipam.db")
	db, err := OpenDB(dbPath)
	if err != nil {
		return nil, nil, fmt.Errorf("open ipam.db: %w", err)
	}

	if err := MigrateDB(db); err != nil {
		db.Close()
		return nil, nil, fmt.Errorf("migrate ipam.db: %w", err)
	}

	return NewRepo(db), &dbCloser{db: db}, nil
}
