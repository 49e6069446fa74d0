// Package correlator maps a message delivered to the admin to its
// backup-group mirror and original sender, so a later admin reply or
// provenance lookup can be routed back without the admin-facing copy
// carrying sender metadata inline.
package correlator

import (
	"context"
	"errors"
	"sync"

	"relaygate/internal/models"
)

// ErrLinkNotFound indicates that no link is recorded for the message.
// Callers surface it as a "could not find details" reply, never a crash.
var ErrLinkNotFound = errors.New("message link not found")

// Store records and resolves message links. Overwrites are allowed:
// last write wins. There is no deletion; links live for the store's
// lifetime.
type Store interface {
	// Record inserts or overwrites the link for link.AdminMessageID.
	Record(ctx context.Context, link *models.MessageLink) error

	// Resolve returns the link for an admin-facing message id.
	// Returns ErrLinkNotFound if nothing is recorded.
	Resolve(ctx context.Context, adminMessageID int) (*models.MessageLink, error)
}

// Memory is the in-memory Store. Entries are never pruned, which is
// acceptable at one admin's DM volume; use the boltdb implementation
// when links must survive restarts.
type Memory struct {
	mu    sync.RWMutex
	links map[int]models.MessageLink
}

// Compile-time check that Memory implements Store
var _ Store = (*Memory)(nil)

// NewMemory constructs an empty in-memory correlator.
func NewMemory() *Memory {
	return &Memory{links: make(map[int]models.MessageLink)}
}

// Record inserts or overwrites a link.
func (m *Memory) Record(ctx context.Context, link *models.MessageLink) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.links[link.AdminMessageID] = *link

	return nil
}

// Resolve looks up a link by admin message id.
func (m *Memory) Resolve(ctx context.Context, adminMessageID int) (*models.MessageLink, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	link, ok := m.links[adminMessageID]
	if !ok {
		return nil, ErrLinkNotFound
	}
	link.AdminMessageID = adminMessageID

	return &link, nil
}
