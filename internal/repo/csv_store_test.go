package repo

import (
	"context"
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/saludstack/anemia-triage/internal/models"
)

func testRecord(edad int) models.HistoryRecord {
	return models.HistoryRecord{
		Fecha: time.Date(2024, 9, 1, 12, 0, 0, 0, time.UTC).Add(time.Duration(edad) * time.Second),
		Observation: models.Observation{
			EdadMeses:      edad,
			Hemoglobina:    9.5,
			AlturaREN:      3200,
			Diresa:         "Lima",
			Consejeria:     0,
			Suplementacion: 0,
			Sexo:           "M",
			Cred:           1,
		},
		DxPredicho: models.ClassModerada,
		Probabilities: models.ProbabilityVector{
			models.ClassNormal:   0.1,
			models.ClassLeve:     0.2,
			models.ClassModerada: 0.6,
			models.ClassSevera:   0.1,
		},
	}
}

func newTestCSVStore(t *testing.T) *CSVStore {
	t.Helper()
	store, err := NewCSVStore(filepath.Join(t.TempDir(), "history.csv"), Limits{}, nil)
	if err != nil {
		t.Fatalf("new csv store: %v", err)
	}
	return store
}

func TestCSVStoreCreatesHeader(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "history.csv")
	if _, err := NewCSVStore(path, Limits{}, nil); err != nil {
		t.Fatalf("new csv store: %v", err)
	}

	f, err := os.Open(path)
	if err != nil {
		t.Fatalf("open history: %v", err)
	}
	defer f.Close()

	rows, err := csv.NewReader(f).ReadAll()
	if err != nil {
		t.Fatalf("read history: %v", err)
	}
	if len(rows) != 1 {
		t.Fatalf("expected header only, got %d rows", len(rows))
	}
	for i, col := range HistoryColumns {
		if rows[0][i] != col {
			t.Fatalf("header column %d: expected %s, got %s", i, col, rows[0][i])
		}
	}
}

func TestCSVStoreEmptyMostRecent(t *testing.T) {
	store := newTestCSVStore(t)
	records, err := store.MostRecent(context.Background(), 200)
	if err != nil {
		t.Fatalf("most recent: %v", err)
	}
	if len(records) != 0 {
		t.Fatalf("expected empty history, got %d records", len(records))
	}
}

func TestCSVStoreAppendRoundTrip(t *testing.T) {
	store := newTestCSVStore(t)
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
	// Newest first.
	for i, want := range []int{3, 2, 1} {
		if records[i].EdadMeses != want {
			t.Fatalf("record %d: expected EdadMeses %d, got %d", i, want, records[i].EdadMeses)
		}
	}

	got := records[0]
	if got.Hemoglobina != 9.5 || got.Diresa != "Lima" || got.Sexo != "M" || got.Cred != 1 {
		t.Fatalf("round trip mismatch: %+v", got)
	}
	if got.DxPredicho != models.ClassModerada {
		t.Fatalf("unexpected class %s", got.DxPredicho)
	}
	if got.Probabilities[models.ClassModerada] != 0.6 {
		t.Fatalf("unexpected probabilities %+v", got.Probabilities)
	}
}

func TestCSVStoreLimit(t *testing.T) {
	store, err := NewCSVStore(filepath.Join(t.TempDir(), "history.csv"), Limits{Default: 2, Max: 3}, nil)
	if err != nil {
		t.Fatalf("new csv store: %v", err)
	}
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

func TestCSVStoreIdempotentReads(t *testing.T) {
	store := newTestCSVStore(t)
	ctx := context.Background()

	for edad := 1; edad <= 4; edad++ {
		if err := store.Append(ctx, testRecord(edad)); err != nil {
			t.Fatalf("append: %v", err)
		}
	}

	first, err := store.MostRecent(ctx, 10)
	if err != nil {
		t.Fatalf("most recent: %v", err)
	}
	second, err := store.MostRecent(ctx, 10)
	if err != nil {
		t.Fatalf("most recent: %v", err)
	}
	if len(first) != len(second) {
		t.Fatalf("read lengths differ: %d vs %d", len(first), len(second))
	}
	for i := range first {
		if first[i].EdadMeses != second[i].EdadMeses || !first[i].Fecha.Equal(second[i].Fecha) {
			t.Fatalf("record %d differs between reads", i)
		}
	}
}

func TestCSVStoreConcurrentAppends(t *testing.T) {
	path := filepath.Join(t.TempDir(), "history.csv")
	store, err := NewCSVStore(path, Limits{}, nil)
	if err != nil {
		t.Fatalf("new csv store: %v", err)
	}
	ctx := context.Background()

	const n = 50
	var wg sync.WaitGroup
	errs := make(chan error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(edad int) {
			defer wg.Done()
			if err := store.Append(ctx, testRecord(edad%60)); err != nil {
				errs <- err
			}
		}(i)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		t.Fatalf("concurrent append: %v", err)
	}

	f, err := os.Open(path)
	if err != nil {
		t.Fatalf("open history: %v", err)
	}
	defer f.Close()

	rows, err := csv.NewReader(f).ReadAll()
	if err != nil {
		t.Fatalf("history file corrupt: %v", err)
	}
	if len(rows) != n+1 {
		t.Fatalf("expected header plus %d rows, got %d", n, len(rows))
	}
	for i, row := range rows {
		if len(row) != len(HistoryColumns) {
			t.Fatalf("row %d has %d columns, expected %d", i, len(row), len(HistoryColumns))
		}
	}

	records, err := store.MostRecent(ctx, n)
	if err != nil {
		t.Fatalf("most recent: %v", err)
	}
	if len(records) != n {
		t.Fatalf("expected %d records, got %d", n, len(records))
	}
}

func TestCSVStoreSkipsMalformedRow(t *testing.T) {
	path := filepath.Join(t.TempDir(), "history.csv")
	store, err := NewCSVStore(path, Limits{}, nil)
	if err != nil {
		t.Fatalf("new csv store: %v", err)
	}
	ctx := context.Background()

	if err := store.Append(ctx, testRecord(7)); err != nil {
		t.Fatalf("append: %v", err)
	}

	f, err := os.OpenFile(path, os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		t.Fatalf("open history: %v", err)
	}
	fmt.Fprintln(f, "not,a,valid,row")
	f.Close()

	records, err := store.MostRecent(ctx, 10)
	if err != nil {
		t.Fatalf("most recent: %v", err)
	}
	if len(records) != 1 || records[0].EdadMeses != 7 {
		t.Fatalf("expected the one valid record, got %+v", records)
	}
}
