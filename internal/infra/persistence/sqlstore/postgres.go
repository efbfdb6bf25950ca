package sqlstore

import (
	"context"
	"database/sql"
	"fmt"

	_ "github.com/jackc/pgx/v5/stdlib" // register pgx as a database/sql driver

	"samplecore/pkg/domain"
)

// Default DSN keeps parity with OpenPersistentStore defaults while
// allowing overrides via env.
const defaultPostgresDSN = "postgres://localhost/samplecore?sslmode=disable"

// NewPostgres opens a postgres-backed store using the provided DSN (falls
// back to defaultPostgresDSN) and applies the schema on startup.
// Transactions run with serializable isolation, so colliding placements
// and counter reservations are linearized by the database rather than by
// any in-process lock.
func NewPostgres(dsn string, engine *domain.RulesEngine) (*Store, error) {
	if dsn == "" {
		dsn = defaultPostgresDSN
	}
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	if err := db.PingContext(context.Background()); err != nil {
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	d := dialect{
		name:    "pgx",
		rebind:  rebindDollar,
		beginTx: &sql.TxOptions{Isolation: sql.LevelSerializable},
	}
	return newStore(db, d, engine)
}
