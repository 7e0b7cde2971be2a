package storage

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	sq "github.com/Masterminds/squirrel"
	_ "github.com/lib/pq"
	_ "modernc.org/sqlite"
)

const (
	driverSQLite   = "sqlite"
	driverPostgres = "postgres"
)

const schema = `CREATE TABLE IF NOT EXISTS unit_costs (
	cache_key       TEXT PRIMARY KEY,
	research_points BIGINT NOT NULL DEFAULT 0,
	purchase_cost   BIGINT NOT NULL DEFAULT 0,
	fetched_at      BIGINT NOT NULL
)`

var sqlitePragmas = []string{
	"PRAGMA journal_mode = WAL",
	"PRAGMA busy_timeout = 10000",
	"PRAGMA synchronous = NORMAL",
}

// Open connects to the cache database named by dsn and ensures the schema.
// postgres:// and postgresql:// DSNs use lib/pq; anything else is an SQLite path.
func Open(dsn string) (*sql.DB, sq.PlaceholderFormat, error) {
	driver, placeholder := dialect(dsn)

	if driver == driverSQLite && dsn != ":memory:" && !strings.HasPrefix(dsn, "file:") {
		if err := os.MkdirAll(filepath.Dir(dsn), 0o755); err != nil {
			return nil, nil, fmt.Errorf("storage: mkdir: %w", err)
		}
	}

	db, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, nil, fmt.Errorf("storage: open: %w", err)
	}

	if driver == driverSQLite {
		if dsn == ":memory:" {
			db.SetMaxOpenConns(1)
		}
		for _, p := range sqlitePragmas {
			if _, err := db.Exec(p); err != nil {
				db.Close()
				return nil, nil, fmt.Errorf("storage: %s: %w", p, err)
			}
		}
	}

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, nil, fmt.Errorf("storage: create schema: %w", err)
	}

	return db, placeholder, nil
}

func dialect(dsn string) (string, sq.PlaceholderFormat) {
	if strings.HasPrefix(dsn, "postgres://") || strings.HasPrefix(dsn, "postgresql://") {
		return driverPostgres, sq.Dollar
	}
	return driverSQLite, sq.Question
}
