// Package archive defines the durable relay-history log. Every accepted
// relay is recorded so the admin can browse provenance after the
// in-memory correlator is gone.
package archive

import (
	"context"

	"relaygate/internal/models"
)

// Store defines the relay-history persistence contract.
type Store interface {
	// RecordRelay appends one relay event.
	RecordRelay(ctx context.Context, event *models.RelayEvent) error

	// ListRecent returns up to limit events, newest first.
	ListRecent(ctx context.Context, limit int) ([]*models.RelayEvent, error)
}
