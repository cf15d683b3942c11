// Package store persists property snapshots and the task toggle journal.
package store

import (
	"context"

	"github.com/rotisserie/eris"

	"github.com/sells-group/safe-zone/internal/model"
)

// ErrNotFound is returned when a property has never been saved.
var ErrNotFound = eris.New("store: property not found")

const defaultToggleLimit = 100

// Store defines the persistence interface for property state.
type Store interface {
	// Property snapshots
	LoadProperty(ctx context.Context, id string) (*model.Property, error)
	SaveProperty(ctx context.Context, p model.Property) error

	// Toggle journal, newest first
	RecordToggle(ctx context.Context, ev model.ToggleEvent) error
	ListToggles(ctx context.Context, propertyID string, limit int) ([]model.ToggleEvent, error)

	// Lifecycle
	Migrate(ctx context.Context) error
	Close() error
}

func toggleLimit(limit int) int {
	if limit <= 0 {
		return defaultToggleLimit
	}
	return limit
}
