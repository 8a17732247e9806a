package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/stdlib"
	"github.com/remind101/migrate"

	"github.com/crates-registry/core/internal/migrations"
)

// Migrate applies every pending schema migration, the way the teacher's
// InitPostgresIndexerStore opens a database/sql handle over the pgxpool's
// connection config just long enough to hand it to remind101/migrate.
func (s *Store) Migrate(_ context.Context) error {
	db := stdlib.OpenDB(*s.pool.Config().ConnConfig)
	defer db.Close()

	migrator := migrate.NewPostgresMigrator(db)
	migrator.Table = migrations.Table
	if err := migrator.Exec(migrate.Up, migrations.Migrations...); err != nil {
		return fmt.Errorf("postgres: running migrations: %w", err)
	}
	return nil
}
