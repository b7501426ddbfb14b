// Package db is the optional SQL results store. Postgres is the production
// target; sqlite serves local runs and tests.
package db

import (
	"context"
	"fmt"

	apperrors "abidenet/internal/errors"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	_ "modernc.org/sqlite"
)

func init() {
	// modernc registers as "sqlite", which sqlx does not know for rebinding
	sqlx.BindDriver("sqlite", sqlx.QUESTION)
}

// Open connects with the named driver ("postgres" or "sqlite") and pings
func Open(ctx context.Context, driver, url string) (*sqlx.DB, error) {
	switch driver {
	case "postgres", "sqlite":
	default:
		return nil, apperrors.ConfigInvalid(fmt.Sprintf("unsupported database driver %q", driver))
	}
	db, err := sqlx.ConnectContext(ctx, driver, url)
	if err != nil {
		return nil, apperrors.DatabaseError("failed to connect to "+driver, err)
	}
	if driver == "sqlite" {
		// one writer; foreign keys are off by default
		db.SetMaxOpenConns(1)
		if _, err := db.ExecContext(ctx, "PRAGMA foreign_keys = ON"); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to enable foreign keys: %w", err)
		}
	}
	return db, nil
}
