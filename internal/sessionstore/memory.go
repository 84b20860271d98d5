package sessionstore

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/haasonsaas/assistant-core/internal/assistanterrors"
	"github.com/haasonsaas/assistant-core/internal/config"
	"github.com/haasonsaas/assistant-core/pkg/models"
)

// MemoryConfig configures the in-memory Store.
type MemoryConfig struct {
	TTL                  time.Duration
	CompressionThreshold int
	CompressionKeepLastN int
	CleanupInterval      time.Duration
	LRUCacheSize         int
	SnapshotRingSize     int
	LockTimeout          time.Duration
	Logger               *slog.Logger
}

// FromConfig derives a MemoryConfig from the root application config's
// SessionConfig section.
func MemoryConfigFromAppConfig(cfg config.SessionConfig) MemoryConfig {
	return MemoryConfig{
		TTL:                  cfg.TTL,
		CompressionThreshold: cfg.CompressionThreshold,
		CleanupInterval:      cfg.CleanupInterval,
		LRUCacheSize:         cfg.LRUCacheSize,
		SnapshotRingSize:     cfg.SnapshotRingSize,
	}
}

// MemoryStore is an in-memory, mutex-guarded Store implementation fronted
// by an LRU cache, with per-session snapshot rings and a background TTL
// sweeper. Grounded on internal/sessions/memory.go's deep-clone-on-read/
// write discipline, generalized with the LRU/snapshot/compaction/locker
// layers spec.md §4.5 adds on top.
type MemoryStore struct {
	mu       sync.Mutex
	sessions map[string]*models.Session
	cache    *lru
	snaps    map[string]*snapshotRing
	locker   *locker
	sweeper  *sweeper
	cfg      MemoryConfig
}

// NewMemoryStore builds a MemoryStore and starts its TTL sweeper.
func NewMemoryStore(cfg MemoryConfig) *MemoryStore {
	if cfg.LRUCacheSize <= 0 {
		cfg.LRUCacheSize = 256
	}
	if cfg.SnapshotRingSize <= 0 {
		cfg.SnapshotRingSize = 5
	}
	s := &MemoryStore{
		sessions: make(map[string]*models.Session),
		cache:    newLRU(cfg.LRUCacheSize),
		snaps:    make(map[string]*snapshotRing),
		locker:   newLocker(cfg.LockTimeout),
		cfg:      cfg,
	}
	s.sweeper = newSweeper(cfg.CleanupInterval, cfg.Logger)
	s.sweeper.start(s.expireOnce)
	return s
}

func (s *MemoryStore) Create(ctx context.Context, userID string) (*models.Session, error) {
	now := time.Now()
	session := &models.Session{
		ID:           uuid.NewString(),
		UserID:       userID,
		State:        models.SessionActive,
		CreatedAt:    now,
		UpdatedAt:    now,
		LastActivity: now,
		TTL:          s.cfg.TTL,
	}

	s.mu.Lock()
	s.sessions[session.ID] = session
	s.cache.put(session.ID, session)
	s.snaps[session.ID] = newSnapshotRing(s.cfg.SnapshotRingSize)
	s.mu.Unlock()
	return session.Clone(), nil
}

func (s *MemoryStore) Get(ctx context.Context, id string) (*models.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if cached, ok := s.cache.get(id); ok {
		if cached.Expired(time.Now()) {
			return nil, &assistanterrors.SessionError{SessionID: id, Reason: "expired"}
		}
		return cached.Clone(), nil
	}
	session, ok := s.sessions[id]
	if !ok {
		return nil, &assistanterrors.SessionError{SessionID: id, Reason: "not found"}
	}
	if session.Expired(time.Now()) {
		return nil, &assistanterrors.SessionError{SessionID: id, Reason: "expired"}
	}
	s.cache.put(id, session)
	return session.Clone(), nil
}

// Save writes session back, serialized per-session by locker, snapshotting
// the pre-write context and applying compaction if the history has grown
// past the configured threshold.
func (s *MemoryStore) Save(ctx context.Context, session *models.Session) error {
	if session == nil {
		return &assistanterrors.ValidationError{Field: "session", Message: "session is required"}
	}
	if err := s.locker.lock(ctx, session.ID); err != nil {
		return err
	}
	defer s.locker.unlock(session.ID)

	s.mu.Lock()
	defer s.mu.Unlock()

	existing, ok := s.sessions[session.ID]
	if !ok {
		return &assistanterrors.SessionError{SessionID: session.ID, Reason: "not found"}
	}

	ring, ok := s.snaps[session.ID]
	if !ok {
		ring = newSnapshotRing(s.cfg.SnapshotRingSize)
		s.snaps[session.ID] = ring
	}
	ring.push(contextSnapshot{
		Context: existing.Context,
		Slots:   existing.Slots,
		State:   existing.State,
	})

	clone := session.Clone()
	clone.CreatedAt = existing.CreatedAt
	clone.UpdatedAt = time.Now()
	clone.LastActivity = clone.UpdatedAt

	maybeCompact(clone, s.cfg.CompressionThreshold, s.cfg.CompressionKeepLastN)

	s.sessions[clone.ID] = clone
	s.cache.put(clone.ID, clone)
	return nil
}

func (s *MemoryStore) End(ctx context.Context, id string) error {
	return s.setState(ctx, id, models.SessionCompleted)
}

func (s *MemoryStore) Cancel(ctx context.Context, id string) error {
	return s.setState(ctx, id, models.SessionCancelled)
}

func (s *MemoryStore) setState(ctx context.Context, id string, to models.SessionState) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	session, ok := s.sessions[id]
	if !ok {
		return &assistanterrors.SessionError{SessionID: id, Reason: "not found"}
	}
	session.State = to
	session.UpdatedAt = time.Now()
	s.cache.put(id, session)
	return nil
}

func (s *MemoryStore) Delete(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.sessions[id]; !ok {
		return &assistanterrors.SessionError{SessionID: id, Reason: "not found"}
	}
	delete(s.sessions, id)
	delete(s.snaps, id)
	s.cache.remove(id)
	return nil
}

func (s *MemoryStore) Search(ctx context.Context, criteria SearchCriteria) ([]*models.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []*models.Session
	for _, session := range s.sessions {
		if criteria.UserID != "" && session.UserID != criteria.UserID {
			continue
		}
		if criteria.State != "" && session.State != criteria.State {
			continue
		}
		out = append(out, session.Clone())
	}

	start := criteria.Offset
	if start < 0 {
		start = 0
	}
	end := len(out)
	if criteria.Limit > 0 && start+criteria.Limit < end {
		end = start + criteria.Limit
	}
	if start > len(out) {
		return []*models.Session{}, nil
	}
	return out[start:end], nil
}

func (s *MemoryStore) Active(ctx context.Context) ([]*models.Session, error) {
	return s.Search(ctx, SearchCriteria{State: models.SessionActive})
}

func (s *MemoryStore) Restore(ctx context.Context, id string, versionIndex int) (*models.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	session, ok := s.sessions[id]
	if !ok {
		return nil, &assistanterrors.SessionError{SessionID: id, Reason: "not found"}
	}
	ring, ok := s.snaps[id]
	if !ok {
		return nil, &assistanterrors.SessionError{SessionID: id, Reason: "no snapshots retained"}
	}
	snap, ok := ring.at(versionIndex)
	if !ok {
		return nil, &assistanterrors.SessionError{SessionID: id, Reason: "version index out of range"}
	}

	session.Context = snap.Context
	session.Slots = snap.Slots
	session.State = snap.State
	session.UpdatedAt = time.Now()
	s.cache.put(id, session)
	return session.Clone(), nil
}

// expireOnce deletes every session whose TTL has elapsed; called by the
// background sweeper (spec.md §4.5 "a background sweeper deletes expired
// sessions at a fixed interval").
func (s *MemoryStore) expireOnce(ctx context.Context) {
	now := time.Now()
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, session := range s.sessions {
		if session.Expired(now) {
			delete(s.sessions, id)
			delete(s.snaps, id)
			s.cache.remove(id)
		}
	}
}

func (s *MemoryStore) Close() error {
	s.sweeper.Stop()
	return nil
}
