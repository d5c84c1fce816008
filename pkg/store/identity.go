package store

import "parley/pkg/models"

// IdentityStore adapts the package-level identity functions to the small
// interface the identity bootstrap consumes, so tests can swap in fakes.
type IdentityStore struct{}

func (IdentityStore) Load() (*models.LocalIdentity, error) { return LoadIdentity() }

func (IdentityStore) Save(id models.LocalIdentity) error { return SaveIdentity(id) }

func (IdentityStore) Clear() error { return ClearIdentity() }

// SnapshotCache adapts the package-level snapshot functions for the
// conversation service.
type SnapshotCache struct{}

func (SnapshotCache) Save(conversationID string, msgs []models.Message) error {
	return SaveSnapshot(conversationID, msgs)
}

func (SnapshotCache) Load(conversationID string) ([]models.Message, error) {
	return LoadSnapshot(conversationID)
}
