package core

import (
	"fmt"
	"os"

	"vetcore/internal/infra/persistence/memory"
	"vetcore/internal/infra/persistence/postgres"
	"vetcore/internal/infra/persistence/sqlite"
)

// StorageDriver identifies a concrete record store implementation.
type StorageDriver string

const (
	StorageMemory   StorageDriver = "memory"   // in-memory only (tests / ephemeral)
	StorageSQLite   StorageDriver = "sqlite"   // embedded sqlite file
	StoragePostgres StorageDriver = "postgres" // PostgreSQL server
)

// OpenRecordStore selects a backend. An empty driver falls back to
// environment variables, defaulting to sqlite.
//
//	VETCORE_STORAGE_DRIVER: memory|sqlite|postgres (default sqlite)
//	VETCORE_SQLITE_PATH: path to sqlite file (default ./vetcore.db)
//	VETCORE_POSTGRES_DSN: postgres DSN when driver=postgres
func OpenRecordStore(driver StorageDriver) (RecordStore, error) {
	if driver == "" {
		driver = StorageDriver(os.Getenv("VETCORE_STORAGE_DRIVER"))
	}
	if driver == "" {
		driver = StorageSQLite
	}
	switch driver {
	case StorageMemory:
		return memory.NewStore(), nil
	case StorageSQLite:
		path := os.Getenv("VETCORE_SQLITE_PATH")
		return sqlite.NewStore(path)
	case StoragePostgres:
		dsn := os.Getenv("VETCORE_POSTGRES_DSN")
		return postgres.NewStore(dsn)
	default:
		return nil, fmt.Errorf("unknown storage driver %s", driver)
	}
}
