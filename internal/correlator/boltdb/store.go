// Package boltdb provides a BoltDB-backed correlator store so message
// links survive process restarts.
package boltdb

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"

	"go.etcd.io/bbolt"

	"relaygate/internal/correlator"
	"relaygate/internal/models"
)

var bucketLinks = []byte("links")

// Store implements correlator.Store on top of BoltDB. Keys are the
// admin message ids in decimal form; values are JSON-encoded links.
type Store struct {
	db *bbolt.DB
}

// Compile-time check that Store implements correlator.Store
var _ correlator.Store = (*Store)(nil)

// New opens (or creates) the BoltDB file at dbPath and initializes the
// links bucket.
func New(dbPath string) (*Store, error) {
	db, err := bbolt.Open(dbPath, 0o600, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to open boltdb: %w", err)
	}

	err = db.Update(func(tx *bbolt.Tx) error {
		if _, err := tx.CreateBucketIfNotExists(bucketLinks); err != nil {
			return fmt.Errorf("failed to create links bucket: %w", err)
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, err
	}

	return &Store{db: db}, nil
}

// Close closes the database file.
func (s *Store) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Record inserts or overwrites the link for its admin message id.
func (s *Store) Record(ctx context.Context, link *models.MessageLink) error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket(bucketLinks)
		if bucket == nil {
			return fmt.Errorf("links bucket not found")
		}

		data, err := json.Marshal(link)
		if err != nil {
			return fmt.Errorf("failed to marshal link: %w", err)
		}

		key := []byte(strconv.Itoa(link.AdminMessageID))
		if err := bucket.Put(key, data); err != nil {
			return fmt.Errorf("failed to save link: %w", err)
		}

		return nil
	})
}

// Resolve looks up the link for an admin message id.
// Returns correlator.ErrLinkNotFound if nothing is recorded.
func (s *Store) Resolve(ctx context.Context, adminMessageID int) (*models.MessageLink, error) {
	var link *models.MessageLink

	err := s.db.View(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket(bucketLinks)
		if bucket == nil {
			return fmt.Errorf("links bucket not found")
		}

		data := bucket.Get([]byte(strconv.Itoa(adminMessageID)))
		if data == nil {
			return correlator.ErrLinkNotFound
		}

		link = &models.MessageLink{}
		if err := json.Unmarshal(data, link); err != nil {
			return fmt.Errorf("failed to unmarshal link: %w", err)
		}
		link.AdminMessageID = adminMessageID

		return nil
	})

	if err != nil {
		return nil, err
	}

	return link, nil
}
