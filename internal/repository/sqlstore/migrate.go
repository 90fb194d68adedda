package sqlstore

import (
	"context"
	"embed"
	"fmt"

	"github.com/jmoiron/sqlx"
)

//go:embed schema/*.sql
var schemas embed.FS

// Migrate creates every table and index that is missing. It is safe to run
// on each start.
func Migrate(ctx context.Context, db *sqlx.DB) error {
	name := "schema/postgres.sql"
	if db.DriverName() == DriverSQLite {
		name = "schema/sqlite.sql"
	}

	script, err := schemas.ReadFile(name)
	if err != nil {
		return fmt.Errorf("failed to read %s: %w", name, err)
	}
	if _, err := db.ExecContext(ctx, string(script)); err != nil {
		return fmt.Errorf("failed to apply %s: %w", name, err)
	}
	return nil
}
