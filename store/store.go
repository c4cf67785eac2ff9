// Package store provides database access to all persisted objects.
package store

import (
	"context"

	"github.com/waspdev/waspd/internal/profile"
)

// Store provides database access to all raw objects.
type Store struct {
	profile *profile.Profile
	driver  Driver

	// Store services
	ConfigStore      ConfigStore
	ModelStore       ModelStore
	MemoryChunkStore MemoryChunkStore
	SessionStore     SessionStore
}

// New creates a new instance of Store.
func New(driver Driver, profile *profile.Profile) *Store {
	return &Store{
		driver:           driver,
		profile:          profile,
		ConfigStore:      driver.ConfigStore(),
		ModelStore:       driver.ModelStore(),
		MemoryChunkStore: driver.MemoryChunkStore(),
		SessionStore:     driver.SessionStore(),
	}
}

func (s *Store) GetDriver() Driver {
	return s.driver
}

func (s *Store) Migrate(ctx context.Context) error {
	return s.driver.Migrate(ctx)
}

func (s *Store) Close() error {
	return s.driver.Close()
}
