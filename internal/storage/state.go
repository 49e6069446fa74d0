package storage

import (
	"context"

	"relaygate/internal/models"
)

// StateStorage defines the persistence contract for the session store's
// state document. Implementations must make Save atomic enough that a
// crash mid-write never corrupts the previous good copy.
type StateStorage interface {
	// Load reads the persisted state document.
	// Returns ErrStateNotFound if nothing has been saved yet.
	Load(ctx context.Context) (*models.State, error)

	// Save persists the full state document, replacing any previous copy.
	Save(ctx context.Context, state *models.State) error
}
