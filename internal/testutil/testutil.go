// Package testutil opens throwaway SQLite-backed stores for package
// tests. Helpers call t.Fatalf on failure since setup errors are not
// recoverable.
package testutil

import (
	"context"
	"database/sql"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/joho/godotenv"

	"privmsg/internal/config"
	"privmsg/internal/database"
	"privmsg/internal/model"
	"privmsg/internal/store"
)

// Seeded users, one per role plus a second plain user.
var (
	Alice = model.User{UID: "alice", Name: "Alice", Avatar: "/a.png", Role: model.RoleUser}
	Bob   = model.User{UID: "bob", Name: "Bob", Avatar: "/b.png", Role: model.RoleUser}
	Carol = model.User{UID: "carol", Name: "Carol", Role: model.RoleAdmin}
	Dave  = model.User{UID: "dave", Name: "Dave", Role: model.RoleEditor}
	Erin  = model.User{UID: "erin", Name: "Erin", Role: model.RoleAuthor}
)

// dbs maps each store handed out here to its handle, for fixtures that
// write around the store API.
var dbs sync.Map

// Epoch is a fixed starting point for fake clocks.
var Epoch = time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

// NewStore returns a migrated store on a fresh SQLite file with the
// seeded users inserted.
func NewStore(t *testing.T) *store.Store {
	t.Helper()

	cfg := config.Config{
		DBDriver:   "sqlite",
		SQLitePath: filepath.Join(t.TempDir(), "privmsg.db"),
	}
	ctx := context.Background()
	db, dialect, err := database.Init(ctx, cfg)
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	if err := database.Migrate(ctx, db, dialect); err != nil {
		t.Fatalf("migrate: %v", err)
	}

	return seed(t, db, store.New(db, dialect))
}

// mysqlTables lists every table in child-first order for cleanup.
var mysqlTables = []string{"notices", "settings", "messages", "conversation_participants", "conversations", "users"}

// NewMySQLStore returns a migrated, emptied and seeded store on the
// MySQL server described by DB_* (read from the repository's .env when
// present). The test is skipped when DB_HOST is not set.
func NewMySQLStore(t *testing.T) *store.Store {
	t.Helper()
	// プロジェクトルートの.envを読み込み
	_ = godotenv.Load("../../.env")
	if os.Getenv("DB_HOST") == "" {
		t.Skip("Skipping: DB_HOST not set")
	}

	cfg := config.Load()
	cfg.DBDriver = string(database.MySQL)
	ctx := context.Background()
	db, dialect, err := database.Init(ctx, cfg)
	if err != nil {
		t.Fatalf("open mysql: %v", err)
	}
	if err := database.Migrate(ctx, db, dialect); err != nil {
		db.Close()
		t.Fatalf("migrate: %v", err)
	}

	clean := func() {
		for _, table := range mysqlTables {
			if _, err := db.ExecContext(ctx, "DELETE FROM "+table); err != nil {
				t.Errorf("cleanup %s: %v", table, err)
			}
		}
	}
	clean()
	t.Cleanup(func() {
		clean()
		db.Close()
	})
	return seed(t, db, store.New(db, dialect))
}

func seed(t *testing.T, db *sql.DB, st *store.Store) *store.Store {
	t.Helper()
	dbs.Store(st, db)
	t.Cleanup(func() { dbs.Delete(st) })
	ctx := context.Background()
	for _, u := range []model.User{Alice, Bob, Carol, Dave, Erin} {
		if err := st.PutUser(ctx, u); err != nil {
			t.Fatalf("seed user %s: %v", u.UID, err)
		}
	}
	return st
}

// SoftDeleteMessage marks message id deleted the way a moderation tool
// would. The service itself never deletes messages.
func SoftDeleteMessage(t *testing.T, st *store.Store, id int64, at time.Time) {
	t.Helper()
	db, ok := dbs.Load(st)
	if !ok {
		t.Fatalf("store was not opened by testutil")
	}
	res, err := db.(*sql.DB).ExecContext(context.Background(),
		"UPDATE messages SET deleted_at = ? WHERE id = ? AND deleted_at IS NULL", at.UnixMilli(), id)
	if err != nil {
		t.Fatalf("soft delete message %d: %v", id, err)
	}
	if n, _ := res.RowsAffected(); n != 1 {
		t.Fatalf("soft delete message %d: %d rows affected", id, n)
	}
}
