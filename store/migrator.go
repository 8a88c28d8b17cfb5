package store

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/pkg/errors"
)

// Migrate initializes a fresh database with the latest schema. The schema
// is embedded per driver (store/migration/{driver}/LATEST.sql); an already
// initialized database is left untouched.
func (s *Store) Migrate(ctx context.Context) error {
	initialized, err := s.driver.IsInitialized(ctx)
	if err != nil {
		return errors.Wrap(err, "failed to check database initialization")
	}
	if initialized {
		slog.Debug("database already initialized", "driver", s.profile.Driver)
		return nil
	}

	buf, err := migrationFS.ReadFile(fmt.Sprintf("migration/%s/%s", s.profile.Driver, latestSchemaFileName))
	if err != nil {
		return errors.Wrapf(err, "failed to read latest schema for driver %s", s.profile.Driver)
	}

	if _, err := s.driver.GetDB().ExecContext(ctx, string(buf)); err != nil {
		return errors.Wrap(err, "failed to apply latest schema")
	}
	slog.Info("database initialized", "driver", s.profile.Driver)
	return nil
}
