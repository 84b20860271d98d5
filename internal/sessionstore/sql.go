package sessionstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	_ "github.com/lib/pq"

	"github.com/haasonsaas/assistant-core/internal/assistanterrors"
	"github.com/haasonsaas/assistant-core/internal/config"
	"github.com/haasonsaas/assistant-core/pkg/models"
)

// SQLConfig configures the SQL-backed Store.
type SQLConfig struct {
	URL             string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	ConnectTimeout  time.Duration

	TTL                  time.Duration
	CompressionThreshold int
	CompressionKeepLastN int
	CleanupInterval      time.Duration
	LRUCacheSize         int
}

// SQLConfigFromAppConfig derives an SQLConfig from the root application
// config's Database/Session sections.
func SQLConfigFromAppConfig(db config.DatabaseConfig, session config.SessionConfig) SQLConfig {
	return SQLConfig{
		URL:                  db.URL,
		MaxOpenConns:         db.MaxConnections,
		ConnMaxLifetime:      db.ConnMaxLifetime,
		TTL:                  session.TTL,
		CompressionThreshold: session.CompressionThreshold,
		CleanupInterval:      session.CleanupInterval,
		LRUCacheSize:         session.LRUCacheSize,
	}
}

// driverName maps a connection URL scheme to the registered database/sql
// driver, matching the Postgres-vs-SQLite dual support the root config
// comment documents.
func driverName(url string) string {
	switch {
	case strings.HasPrefix(url, "postgres://"), strings.HasPrefix(url, "postgresql://"):
		return "postgres"
	case strings.HasPrefix(url, "sqlite://"):
		return "sqlite3"
	default:
		return "postgres"
	}
}

// SQLStore implements Store over a SQL database, schema-per-session-row,
// grounded on internal/sessions/cockroach.go's prepared-statement CRUD
// shape, adapted from that file's agent/channel session model to this
// module's Session (history, slots, context, TTL) shape. It layers the
// same LRU cache, locker, and compaction logic MemoryStore uses so both
// backends behave identically from the caller's perspective.
type SQLStore struct {
	db     *sql.DB
	mu     sync.Mutex
	cache  *lru
	locker *locker
	cfg    SQLConfig

	stmtCreate *sql.Stmt
	stmtGet    *sql.Stmt
	stmtSave   *sql.Stmt
	stmtDelete *sql.Stmt
}

// NewSQLStore opens db, verifies connectivity, and prepares statements
// against the `sessions` table (id, user_id, state, history, current_intent,
// slots, context, created_at, updated_at, last_activity, turn_count, ttl
// — history/slots/context stored as JSON columns).
func NewSQLStore(cfg SQLConfig) (*SQLStore, error) {
	if cfg.URL == "" {
		return nil, &assistanterrors.ConfigurationError{Source: "sessionstore", Message: "database url is required"}
	}
	db, err := sql.Open(driverName(cfg.URL), cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("sessionstore: open: %w", err)
	}
	if cfg.MaxOpenConns > 0 {
		db.SetMaxOpenConns(cfg.MaxOpenConns)
	}
	if cfg.MaxIdleConns > 0 {
		db.SetMaxIdleConns(cfg.MaxIdleConns)
	}
	if cfg.ConnMaxLifetime > 0 {
		db.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	}

	connectTimeout := cfg.ConnectTimeout
	if connectTimeout <= 0 {
		connectTimeout = 10 * time.Second
	}
	ctx, cancel := context.WithTimeout(context.Background(), connectTimeout)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("sessionstore: ping: %w", err)
	}

	return newSQLStoreFromDB(db, cfg)
}

func newSQLStoreFromDB(db *sql.DB, cfg SQLConfig) (*SQLStore, error) {
	if cfg.LRUCacheSize <= 0 {
		cfg.LRUCacheSize = 256
	}
	s := &SQLStore{db: db, cache: newLRU(cfg.LRUCacheSize), locker: newLocker(0), cfg: cfg}
	if err := s.prepareStatements(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func (s *SQLStore) prepareStatements() error {
	var err error
	s.stmtCreate, err = s.db.Prepare(`
		INSERT INTO sessions (id, user_id, state, history, current_intent, slots, context, created_at, updated_at, last_activity, turn_count, ttl_ns)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
	`)
	if err != nil {
		return fmt.Errorf("sessionstore: prepare create: %w", err)
	}
	s.stmtGet, err = s.db.Prepare(`
		SELECT id, user_id, state, history, current_intent, slots, context, created_at, updated_at, last_activity, turn_count, ttl_ns
		FROM sessions WHERE id = $1
	`)
	if err != nil {
		return fmt.Errorf("sessionstore: prepare get: %w", err)
	}
	s.stmtSave, err = s.db.Prepare(`
		UPDATE sessions SET state = $1, history = $2, current_intent = $3, slots = $4,
			context = $5, updated_at = $6, last_activity = $7, turn_count = $8
		WHERE id = $9
	`)
	if err != nil {
		return fmt.Errorf("sessionstore: prepare save: %w", err)
	}
	s.stmtDelete, err = s.db.Prepare(`DELETE FROM sessions WHERE id = $1`)
	if err != nil {
		return fmt.Errorf("sessionstore: prepare delete: %w", err)
	}
	return nil
}

func (s *SQLStore) Create(ctx context.Context, userID string) (*models.Session, error) {
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
	history, _ := json.Marshal(session.History)
	slots, _ := json.Marshal(session.Slots)
	sessCtx, _ := json.Marshal(session.Context)

	_, err := s.stmtCreate.ExecContext(ctx, session.ID, session.UserID, session.State, history,
		session.CurrentIntent, slots, sessCtx, session.CreatedAt, session.UpdatedAt,
		session.LastActivity, session.TurnCount, int64(session.TTL))
	if err != nil {
		return nil, fmt.Errorf("sessionstore: create: %w", err)
	}
	s.mu.Lock()
	s.cache.put(session.ID, session)
	s.mu.Unlock()
	return session.Clone(), nil
}

func (s *SQLStore) Get(ctx context.Context, id string) (*models.Session, error) {
	s.mu.Lock()
	cached, ok := s.cache.get(id)
	s.mu.Unlock()
	if ok {
		if cached.Expired(time.Now()) {
			return nil, &assistanterrors.SessionError{SessionID: id, Reason: "expired"}
		}
		return cached.Clone(), nil
	}

	session, err := s.scanOne(s.stmtGet.QueryRowContext(ctx, id))
	if err == sql.ErrNoRows {
		return nil, &assistanterrors.SessionError{SessionID: id, Reason: "not found"}
	}
	if err != nil {
		return nil, fmt.Errorf("sessionstore: get: %w", err)
	}
	if session.Expired(time.Now()) {
		return nil, &assistanterrors.SessionError{SessionID: id, Reason: "expired"}
	}
	s.mu.Lock()
	s.cache.put(id, session)
	s.mu.Unlock()
	return session.Clone(), nil
}

func (s *SQLStore) scanOne(row *sql.Row) (*models.Session, error) {
	var (
		session                models.Session
		historyJSON, slotsJSON []byte
		contextJSON            []byte
		ttlNS                  int64
	)
	if err := row.Scan(&session.ID, &session.UserID, &session.State, &historyJSON,
		&session.CurrentIntent, &slotsJSON, &contextJSON, &session.CreatedAt, &session.UpdatedAt,
		&session.LastActivity, &session.TurnCount, &ttlNS); err != nil {
		return nil, err
	}
	session.TTL = time.Duration(ttlNS)
	_ = json.Unmarshal(historyJSON, &session.History)
	_ = json.Unmarshal(slotsJSON, &session.Slots)
	_ = json.Unmarshal(contextJSON, &session.Context)
	return &session, nil
}

func (s *SQLStore) Save(ctx context.Context, session *models.Session) error {
	if session == nil {
		return &assistanterrors.ValidationError{Field: "session", Message: "session is required"}
	}
	if err := s.locker.lock(ctx, session.ID); err != nil {
		return err
	}
	defer s.locker.unlock(session.ID)

	clone := session.Clone()
	clone.UpdatedAt = time.Now()
	clone.LastActivity = clone.UpdatedAt
	maybeCompact(clone, s.cfg.CompressionThreshold, s.cfg.CompressionKeepLastN)

	history, _ := json.Marshal(clone.History)
	slots, _ := json.Marshal(clone.Slots)
	sessCtx, _ := json.Marshal(clone.Context)

	res, err := s.stmtSave.ExecContext(ctx, clone.State, history, clone.CurrentIntent, slots,
		sessCtx, clone.UpdatedAt, clone.LastActivity, clone.TurnCount, clone.ID)
	if err != nil {
		return fmt.Errorf("sessionstore: save: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return &assistanterrors.SessionError{SessionID: clone.ID, Reason: "not found"}
	}
	s.mu.Lock()
	s.cache.put(clone.ID, clone)
	s.mu.Unlock()
	return nil
}

func (s *SQLStore) End(ctx context.Context, id string) error {
	return s.setState(ctx, id, models.SessionCompleted)
}

func (s *SQLStore) Cancel(ctx context.Context, id string) error {
	return s.setState(ctx, id, models.SessionCancelled)
}

func (s *SQLStore) setState(ctx context.Context, id string, to models.SessionState) error {
	session, err := s.Get(ctx, id)
	if err != nil {
		return err
	}
	session.State = to
	return s.Save(ctx, session)
}

func (s *SQLStore) Delete(ctx context.Context, id string) error {
	res, err := s.stmtDelete.ExecContext(ctx, id)
	if err != nil {
		return fmt.Errorf("sessionstore: delete: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return &assistanterrors.SessionError{SessionID: id, Reason: "not found"}
	}
	s.mu.Lock()
	s.cache.remove(id)
	s.mu.Unlock()
	return nil
}

func (s *SQLStore) Search(ctx context.Context, criteria SearchCriteria) ([]*models.Session, error) {
	query := `SELECT id, user_id, state, history, current_intent, slots, context, created_at, updated_at, last_activity, turn_count, ttl_ns FROM sessions WHERE 1=1`
	var args []any
	n := 1
	if criteria.UserID != "" {
		query += fmt.Sprintf(" AND user_id = $%d", n)
		args = append(args, criteria.UserID)
		n++
	}
	if criteria.State != "" {
		query += fmt.Sprintf(" AND state = $%d", n)
		args = append(args, criteria.State)
		n++
	}
	query += " ORDER BY last_activity DESC"
	if criteria.Limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", criteria.Limit)
	}
	if criteria.Offset > 0 {
		query += fmt.Sprintf(" OFFSET %d", criteria.Offset)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("sessionstore: search: %w", err)
	}
	defer rows.Close()

	var out []*models.Session
	for rows.Next() {
		var (
			session                models.Session
			historyJSON, slotsJSON []byte
			contextJSON            []byte
			ttlNS                  int64
		)
		if err := rows.Scan(&session.ID, &session.UserID, &session.State, &historyJSON,
			&session.CurrentIntent, &slotsJSON, &contextJSON, &session.CreatedAt, &session.UpdatedAt,
			&session.LastActivity, &session.TurnCount, &ttlNS); err != nil {
			return nil, fmt.Errorf("sessionstore: scan: %w", err)
		}
		session.TTL = time.Duration(ttlNS)
		_ = json.Unmarshal(historyJSON, &session.History)
		_ = json.Unmarshal(slotsJSON, &session.Slots)
		_ = json.Unmarshal(contextJSON, &session.Context)
		out = append(out, &session)
	}
	return out, rows.Err()
}

func (s *SQLStore) Active(ctx context.Context) ([]*models.Session, error) {
	return s.Search(ctx, SearchCriteria{State: models.SessionActive})
}

// Restore is not supported by the SQL backend: version snapshots are kept
// only in the in-memory ring buffer (spec.md §4.5 doesn't require snapshot
// durability across a process restart, only within-process restore).
func (s *SQLStore) Restore(ctx context.Context, id string, versionIndex int) (*models.Session, error) {
	return nil, &assistanterrors.ConfigurationError{Source: "sessionstore", Message: "version snapshots are not supported by the SQL backend"}
}

func (s *SQLStore) Close() error {
	return s.db.Close()
}
