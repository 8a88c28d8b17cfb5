// Package db provides the store driver factory.
package db

import (
	"github.com/pkg/errors"

	"github.com/hrygo/loom/internal/profile"
	"github.com/hrygo/loom/store"
	"github.com/hrygo/loom/store/db/postgres"
	"github.com/hrygo/loom/store/db/sqlite"
)

// NewDBDriver creates a new db driver based on the profile.
//
// SQLite is the default and suits a single-node deployment; PostgreSQL is
// for installations that want an external database.
func NewDBDriver(profile *profile.Profile) (store.Driver, error) {
	var driver store.Driver
	var err error

	switch profile.Driver {
	case "sqlite":
		driver, err = sqlite.NewDB(profile)
	case "postgres":
		driver, err = postgres.NewDB(profile)
	default:
		return nil, errors.Errorf("unknown db driver: %s (only 'sqlite' and 'postgres' are supported)", profile.Driver)
	}
	if err != nil {
		return nil, errors.Wrap(err, "failed to create db driver")
	}
	return driver, nil
}
