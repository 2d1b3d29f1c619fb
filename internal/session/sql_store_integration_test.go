//go:build integration

package session

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/yungbote/storefront-backend/internal/platform/dbx"
)

func TestSQLStoreSQLite(t *testing.T) {
	db, err := dbx.Open("sqlite", filepath.Join(t.TempDir(), "tokens.db"), nil)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	t.Cleanup(func() { _ = dbx.Close(db) })

	st, err := NewSQLStore(db, time.Hour)
	if err != nil {
		t.Fatalf("NewSQLStore: %v", err)
	}
	ctx := context.Background()

	if _, err := st.Get(ctx, "s"); !errors.Is(err, ErrTokenNotFound) {
		t.Fatalf("err=%v", err)
	}
	if err := st.Put(ctx, "s", "tok1"); err != nil {
		t.Fatalf("Put: %v", err)
	}
	if err := st.Put(ctx, "s", "tok2"); err != nil {
		t.Fatalf("upsert: %v", err)
	}
	if got, err := st.Get(ctx, "s"); err != nil || got != "tok2" {
		t.Fatalf("got=%q err=%v", got, err)
	}
	if err := st.Delete(ctx, "s"); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if _, err := st.Get(ctx, "s"); !errors.Is(err, ErrTokenNotFound) {
		t.Fatalf("deleted token returned: %v", err)
	}
}
