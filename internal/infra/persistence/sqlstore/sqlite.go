package sqlstore

import (
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite" // pure go sqlite driver

	"samplecore/pkg/domain"
)

// NewSQLite opens an embedded sqlite-backed store at path (default
// ./samplecore.db), applying the schema on startup. Writes are serialized
// on a single connection; sqlite's own locking covers concurrent
// processes sharing the file.
func NewSQLite(path string, engine *domain.RulesEngine) (*Store, error) {
	if path == "" {
		path = "samplecore.db"
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o750); err != nil && !errors.Is(err, os.ErrExist) {
			return nil, fmt.Errorf("create dirs: %w", err)
		}
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	// modernc sqlite allows one writer; a single pooled connection keeps
	// transactions from tripping over SQLITE_BUSY.
	db.SetMaxOpenConns(1)
	if _, err := db.Exec(`PRAGMA foreign_keys = ON`); err != nil {
		return nil, fmt.Errorf("enable foreign keys: %w", err)
	}
	return newStore(db, dialect{name: "sqlite", rebind: passthrough}, engine)
}
