package stats

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"forefront/arena/internal/tank"
)

func exerciseStore(t *testing.T, store Store) {
	t.Helper()
	ctx := context.Background()

	//1.- Counters start at zero before any match completes.
	tally, err := store.Wins(ctx)
	if err != nil {
		t.Fatalf("wins: %v", err)
	}
	if tally != (Tally{}) {
		t.Fatalf("expected empty tally, got %+v", tally)
	}

	//2.- Each recorded win increments exactly one counter.
	if _, err := store.RecordWin(ctx, 2); err != nil {
		t.Fatalf("record win: %v", err)
	}
	tally, err = store.RecordWin(ctx, 2)
	if err != nil {
		t.Fatalf("record win: %v", err)
	}
	if tally.Player2Wins != 2 || tally.Player1Wins != 0 {
		t.Fatalf("unexpected tally %+v", tally)
	}
	if tally.For(2) != 2 || tally.For(1) != 0 {
		t.Fatalf("For returned wrong counters")
	}

	//3.- Unknown seats are rejected without touching the counters.
	if _, err := store.RecordWin(ctx, 3); !errors.Is(err, tank.ErrUnknownPlayer) {
		t.Fatalf("expected ErrUnknownPlayer, got %v", err)
	}
}

func TestMemoryStore(t *testing.T) {
	store := NewMemoryStore()
	exerciseStore(t, store)
	_ = store.Close()
	if _, err := store.Wins(context.Background()); !errors.Is(err, ErrClosed) {
		t.Fatalf("expected ErrClosed, got %v", err)
	}
}

func TestSQLStoreInMemory(t *testing.T) {
	store, err := OpenSQLite("")
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer store.Close()
	exerciseStore(t, store)
}

func TestSQLStorePersistsAcrossReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "stats.db")
	store, err := OpenSQLite(path)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if _, err := store.RecordWin(context.Background(), 1); err != nil {
		t.Fatalf("record win: %v", err)
	}
	if err := store.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	reopened, err := OpenSQLite(path)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer reopened.Close()
	tally, err := reopened.Wins(context.Background())
	if err != nil {
		t.Fatalf("wins: %v", err)
	}
	if tally.Player1Wins != 1 {
		t.Fatalf("expected persisted win, got %+v", tally)
	}
}
