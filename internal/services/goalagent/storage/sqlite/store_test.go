package sqlite

import (
	"context"
	"path/filepath"
	"sync"
	"testing"

	"github.com/mcpsuite/mcpsuite/internal/services/goalagent/storage"
	"github.com/mcpsuite/mcpsuite/internal/services/goalagent/storage/storetest"
)

func TestOpenRequiresPath(t *testing.T) {
	t.Parallel()

	if _, err := Open(context.Background(), ""); err == nil {
		t.Fatal("expected empty path error")
	}
}

func TestStoreContract(t *testing.T) {
	t.Parallel()

	storetest.Run(t, func(t *testing.T) storage.Store {
		return openTempStore(t)
	})
}

func TestOpenCreatesParentDirsAndReopens(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "nested", "data", "goals.db")
	store, err := Open(context.Background(), path)
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	if err := store.CreateGoal(context.Background(), storetest.Goal("GOAL-0001", 0)); err != nil {
		t.Fatalf("create goal: %v", err)
	}
	if err := store.Close(); err != nil {
		t.Fatalf("close store: %v", err)
	}

	reopened, err := Open(context.Background(), path)
	if err != nil {
		t.Fatalf("reopen store: %v", err)
	}
	t.Cleanup(func() { _ = reopened.Close() })
	if _, err := reopened.GetGoal(context.Background(), "GOAL-0001"); err != nil {
		t.Fatalf("get goal after reopen: %v", err)
	}
}

func TestNextIDsConcurrentReservationsDoNotOverlap(t *testing.T) {
	t.Parallel()

	store := openTempStore(t)
	const workers = 8
	var (
		mu   sync.Mutex
		seen = map[int64]bool{}
		wg   sync.WaitGroup
	)
	for range workers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			first, err := store.NextIDs(context.Background(), storage.TaskSequence, 2)
			if err != nil {
				t.Errorf("next ids: %v", err)
				return
			}
			mu.Lock()
			defer mu.Unlock()
			for _, id := range []int64{first, first + 1} {
				if seen[id] {
					t.Errorf("id %d reserved twice", id)
				}
				seen[id] = true
			}
		}()
	}
	wg.Wait()
	if len(seen) != workers*2 {
		t.Fatalf("reserved %d ids, want %d", len(seen), workers*2)
	}
}

func openTempStore(t *testing.T) *Store {
	t.Helper()

	store, err := Open(context.Background(), filepath.Join(t.TempDir(), "goals.db"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() {
		if err := store.Close(); err != nil {
			t.Fatalf("close store: %v", err)
		}
	})
	return store
}
