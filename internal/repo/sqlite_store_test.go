package repo

import (
	"context"
	"database/sql"
	"path/filepath"
	"testing"

	_ "modernc.org/sqlite"

	"github.com/saludstack/anemia-triage/internal/models"
)

func newTestSQLiteStore(t *testing.T, limits Limits) *SQLiteStore {
	t.Helper()
	db, err := sql.Open("sqlite", filepath.Join(t.TempDir(), "history.db"))
	if err != nil {
		t.Fatalf("open database: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	store, err := NewSQLiteStore(db, limits, nil)
	if err != nil {
		t.Fatalf("new sqlite store: %v", err)
	}
	return store
}

func TestSQLiteStoreEmptyMostRecent(t *testing.T) {
	store := newTestSQLiteStore(t, Limits{})
	records, err := store.MostRecent(context.Background(), 200)
	if err != nil {
		t.Fatalf("most recent: %v", err)
	}
	if len(records) != 0 {
		t.Fatalf("expected empty history, got %d records", len(records))
	}
}

func TestSQLiteStoreAppendRoundTrip(t *testing.T) {
	store := newTestSQLiteStore(t, Limits{})
	ctx := context.Background()

	for edad := 1; edad <= 3; edad++ {
		if err := store.Append(ctx, testRecord(edad)); err != nil {
			t.Fatalf("append: %v", err)
		}
	}

	records, err := store.MostRecent(ctx, 10)
	if err != nil {
		t.Fatalf("most recent: %v", err)
	}
	if len(records) != 3 {
		t.Fatalf("expected 3 records, got %d", len(records))
	}
	for i, want := range []int{3, 2, 1} {
		if records[i].EdadMeses != want {
			t.Fatalf("record %d: expected EdadMeses %d, got %d", i, want, records[i].EdadMeses)
		}
	}

	got := records[0]
	if got.Hemoglobina != 9.5 || got.Diresa != "Lima" || got.Sexo != "M" {
		t.Fatalf("round trip mismatch: %+v", got)
	}
	if got.DxPredicho != models.ClassModerada {
		t.Fatalf("unexpected class %s", got.DxPredicho)
	}
	if got.Probabilities[models.ClassModerada] != 0.6 {
		t.Fatalf("unexpected probabilities %+v", got.Probabilities)
	}
}

func TestSQLiteStoreLimit(t *testing.T) {
	store := newTestSQLiteStore(t, Limits{Default: 2, Max: 3})
	ctx := context.Background()

	for edad := 1; edad <= 5; edad++ {
		if err := store.Append(ctx, testRecord(edad)); err != nil {
			t.Fatalf("append: %v", err)
		}
	}

	records, err := store.MostRecent(ctx, 0)
	if err != nil {
		t.Fatalf("most recent: %v", err)
	}
	if len(records) != 2 {
		t.Fatalf("default limit: expected 2 records, got %d", len(records))
	}

	records, err = store.MostRecent(ctx, 100)
	if err != nil {
		t.Fatalf("most recent: %v", err)
	}
	if len(records) != 3 {
		t.Fatalf("max limit: expected 3 records, got %d", len(records))
	}
}
