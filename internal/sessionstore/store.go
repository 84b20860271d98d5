// Package sessionstore implements C6 SessionStore: a key-addressed,
// TTL-bounded store of conversation sessions fronted by an in-process LRU
// cache, with version snapshots and context compression.
package sessionstore

import (
	"context"

	"github.com/haasonsaas/assistant-core/pkg/models"
)

// SearchCriteria filters Active/Search queries.
type SearchCriteria struct {
	UserID string
	State  models.SessionState
	Limit  int
	Offset int
}

// Store is the lookup/write contract spec.md §4.5 names: create, get, save,
// end, cancel, delete, search, active.
type Store interface {
	Create(ctx context.Context, userID string) (*models.Session, error)
	Get(ctx context.Context, id string) (*models.Session, error)
	Save(ctx context.Context, session *models.Session) error
	End(ctx context.Context, id string) error
	Cancel(ctx context.Context, id string) error
	Delete(ctx context.Context, id string) error
	Search(ctx context.Context, criteria SearchCriteria) ([]*models.Session, error)
	Active(ctx context.Context) ([]*models.Session, error)

	// Restore rolls the session back to a previously snapshotted context
	// (spec.md §4.5 "Version snapshots").
	Restore(ctx context.Context, id string, versionIndex int) (*models.Session, error)

	// Close releases any background resources (TTL sweeper, DB handle).
	Close() error
}
