package sessionstore

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"

	"github.com/haasonsaas/assistant-core/pkg/models"
)

func newTestSQLStore(t *testing.T) (*SQLStore, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	mock.ExpectPrepare("INSERT INTO sessions")
	mock.ExpectPrepare("SELECT (.+) FROM sessions WHERE id")
	mock.ExpectPrepare("UPDATE sessions")
	mock.ExpectPrepare("DELETE FROM sessions")

	store, err := newSQLStoreFromDB(db, SQLConfig{LRUCacheSize: 4})
	if err != nil {
		t.Fatalf("newSQLStoreFromDB: %v", err)
	}
	return store, mock
}

func TestSQLStore_Create(t *testing.T) {
	store, mock := newTestSQLStore(t)
	ctx := context.Background()

	mock.ExpectExec("INSERT INTO sessions").WillReturnResult(sqlmock.NewResult(1, 1))

	session, err := store.Create(ctx, "user-1")
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if session.UserID != "user-1" {
		t.Fatalf("UserID = %q, want user-1", session.UserID)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestSQLStore_GetNotFound(t *testing.T) {
	store, mock := newTestSQLStore(t)
	ctx := context.Background()

	rows := sqlmock.NewRows([]string{"id", "user_id", "state", "history", "current_intent",
		"slots", "context", "created_at", "updated_at", "last_activity", "turn_count", "ttl_ns"})
	mock.ExpectQuery("SELECT (.+) FROM sessions WHERE id").WithArgs("missing").WillReturnRows(rows)

	if _, err := store.Get(ctx, "missing"); err == nil {
		t.Fatal("expected error for missing session, got nil")
	}
}

func TestSQLStore_GetScansStoredRow(t *testing.T) {
	store, mock := newTestSQLStore(t)
	ctx := context.Background()

	now := time.Now()
	rows := sqlmock.NewRows([]string{"id", "user_id", "state", "history", "current_intent",
		"slots", "context", "created_at", "updated_at", "last_activity", "turn_count", "ttl_ns"}).
		AddRow("sess-1", "user-1", string(models.SessionActive), []byte("[]"), "order.status",
			[]byte("{}"), []byte("{}"), now, now, now, 2, int64(time.Hour))
	mock.ExpectQuery("SELECT (.+) FROM sessions WHERE id").WithArgs("sess-1").WillReturnRows(rows)

	session, err := store.Get(ctx, "sess-1")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if session.CurrentIntent != "order.status" {
		t.Fatalf("CurrentIntent = %q, want order.status", session.CurrentIntent)
	}
	if session.TurnCount != 2 {
		t.Fatalf("TurnCount = %d, want 2", session.TurnCount)
	}
}

func TestDriverName(t *testing.T) {
	cases := map[string]string{
		"postgres://u:p@host/db":   "postgres",
		"postgresql://u:p@host/db": "postgres",
		"sqlite://file.db":         "sqlite3",
		"something-else":           "postgres",
	}
	for url, want := range cases {
		if got := driverName(url); got != want {
			t.Errorf("driverName(%q) = %q, want %q", url, got, want)
		}
	}
}
