package publisher

import (
	"errors"
	"fmt"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"

	"github.com/toonrelay/pipeline/internal/logger"
	"github.com/toonrelay/pipeline/internal/pipelineerr"
)

// Migrate applies every pending up migration under migrationsPath to the
// database at dsn. It is idempotent: re-running against an up-to-date
// schema is a no-op.
func Migrate(dsn, migrationsPath string) error {
	m, err := migrate.New("file://"+migrationsPath, dsn)
	if err != nil {
		return pipelineerr.New(pipelineerr.KindStorage, "publisher.Migrate", fmt.Errorf("init migrator: %w", err))
	}
	defer func() {
		if srcErr, dbErr := m.Close(); srcErr != nil || dbErr != nil {
			logger.Error("publisher migration close failed", "module", "publisher", "action", "migrate_close", "resource", migrationsPath, "result", "error", "source_error", srcErr, "db_error", dbErr)
		}
	}()

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return pipelineerr.New(pipelineerr.KindStorage, "publisher.Migrate", fmt.Errorf("apply migrations: %w", err))
	}
	return nil
}
