package core

import (
	"fmt"
	"os"

	"samplecore/internal/infra/persistence/memory"
	"samplecore/internal/infra/persistence/sqlstore"
)

// StorageDriver identifies a concrete persistent storage implementation.
type StorageDriver string

const (
	StorageMemory   StorageDriver = "memory"   // in-memory only (tests / ephemeral)
	StorageSQLite   StorageDriver = "sqlite"   // embedded sqlite file
	StoragePostgres StorageDriver = "postgres" // PostgreSQL server
)

// OpenPersistentStore selects a backend using environment variables.
// Defaults to sqlite when unset.
//
//	SAMPLECORE_STORAGE_DRIVER: memory|sqlite|postgres (default sqlite)
//	SAMPLECORE_SQLITE_PATH: path to sqlite file (default ./samplecore.db)
//	SAMPLECORE_POSTGRES_DSN: postgres DSN when driver=postgres
func OpenPersistentStore(engine *RulesEngine) (PersistentStore, error) {
	driver := os.Getenv("SAMPLECORE_STORAGE_DRIVER")
	if driver == "" {
		driver = string(StorageSQLite)
	}
	switch StorageDriver(driver) {
	case StorageMemory:
		return memory.NewStore(engine), nil
	case StorageSQLite:
		return sqlstore.NewSQLite(os.Getenv("SAMPLECORE_SQLITE_PATH"), engine)
	case StoragePostgres:
		return sqlstore.NewPostgres(os.Getenv("SAMPLECORE_POSTGRES_DSN"), engine)
	default:
		return nil, fmt.Errorf("unknown storage driver %s", driver)
	}
}
