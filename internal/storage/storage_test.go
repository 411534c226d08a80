package storage

import (
	"context"
	"path/filepath"
	"testing"

	logx "github.com/VK79/Radar12/pkg/logx"
)

func openTestStore(t *testing.T, driver string) Store {
	t.Helper()
	cfg := Config{Driver: driver}
	if driver == "sqlite" {
		cfg.Path = filepath.Join(t.TempDir(), "cursors.db")
	}
	st, err := Open(cfg, logx.Nop())
	if err != nil {
		t.Fatalf("Open(%s) error: %v", driver, err)
	}
	t.Cleanup(func() { _ = st.Close() })
	return st
}

func TestStoreCursorLifecycle(t *testing.T) {
	for _, driver := range []string{"sqlite", "memory"} {
		driver := driver
		t.Run(driver, func(t *testing.T) {
			ctx := context.Background()
			st := openTestStore(t, driver)

			if _, found, err := st.Get(ctx, "vk:wall"); err != nil || found {
				t.Fatalf("Get on empty store = found=%v err=%v, want absent", found, err)
			}

			if err := st.Commit(ctx, "vk:wall", 101); err != nil {
				t.Fatalf("Commit error: %v", err)
			}
			id, found, err := st.Get(ctx, "vk:wall")
			if err != nil || !found || id != 101 {
				t.Fatalf("Get = (%d, %v, %v), want (101, true, nil)", id, found, err)
			}

			// Forward commits advance.
			if err := st.Commit(ctx, "vk:wall", 103); err != nil {
				t.Fatalf("Commit error: %v", err)
			}
			// Replaying an older id must not regress the cursor.
			if err := st.Commit(ctx, "vk:wall", 99); err != nil {
				t.Fatalf("Commit error: %v", err)
			}
			id, _, _ = st.Get(ctx, "vk:wall")
			if id != 103 {
				t.Fatalf("cursor = %d, want 103 (no regress)", id)
			}
		})
	}
}

func TestStoreKeysAndPrune(t *testing.T) {
	for _, driver := range []string{"sqlite", "memory"} {
		driver := driver
		t.Run(driver, func(t *testing.T) {
			ctx := context.Background()
			st := openTestStore(t, driver)

			for _, src := range []string{"vk:a", "vk:b", "telegram:c"} {
				if err := st.Commit(ctx, src, 1); err != nil {
					t.Fatalf("Commit(%s) error: %v", src, err)
				}
			}

			keys, err := st.Keys(ctx)
			if err != nil {
				t.Fatalf("Keys error: %v", err)
			}
			if len(keys) != 3 {
				t.Fatalf("len(Keys) = %d, want 3", len(keys))
			}

			deleted, err := st.Prune(ctx, []string{"vk:a"})
			if err != nil {
				t.Fatalf("Prune error: %v", err)
			}
			if deleted != 2 {
				t.Fatalf("deleted = %d, want 2", deleted)
			}
			keys, _ = st.Keys(ctx)
			if len(keys) != 1 || keys[0] != "vk:a" {
				t.Fatalf("Keys after prune = %v, want [vk:a]", keys)
			}

			// Empty keep set clears everything.
			if _, err := st.Prune(ctx, nil); err != nil {
				t.Fatalf("Prune(nil) error: %v", err)
			}
			keys, _ = st.Keys(ctx)
			if len(keys) != 0 {
				t.Fatalf("Keys after full prune = %v, want empty", keys)
			}
		})
	}
}

func TestSQLiteSurvivesReopen(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "cursors.db")

	st, err := Open(Config{Driver: "sqlite", Path: path}, logx.Nop())
	if err != nil {
		t.Fatalf("Open error: %v", err)
	}
	if err := st.Commit(ctx, "vk:wall", 7); err != nil {
		t.Fatalf("Commit error: %v", err)
	}
	if err := st.Close(); err != nil {
		t.Fatalf("Close error: %v", err)
	}

	st, err = Open(Config{Driver: "sqlite", Path: path}, logx.Nop())
	if err != nil {
		t.Fatalf("reopen error: %v", err)
	}
	defer st.Close()
	id, found, err := st.Get(ctx, "vk:wall")
	if err != nil || !found || id != 7 {
		t.Fatalf("Get after reopen = (%d, %v, %v), want (7, true, nil)", id, found, err)
	}
}

func TestOpenUnknownDriver(t *testing.T) {
	t.Parallel()
	if _, err := Open(Config{Driver: "postgres"}, logx.Nop()); err == nil {
		t.Fatal("expected error for unknown driver")
	}
}
