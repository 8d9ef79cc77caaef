package services

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/saludstack/anemia-triage/internal/cache"
	"github.com/saludstack/anemia-triage/internal/models"
	"github.com/saludstack/anemia-triage/internal/repo"
	"github.com/saludstack/anemia-triage/internal/utils"
)

type stubClassifier struct {
	vector models.ProbabilityVector
	err    error
}

func (c stubClassifier) Classify(models.Observation) (models.ProbabilityVector, error) {
	return c.vector, c.err
}

type stubStore struct {
	mu        sync.Mutex
	records   []models.HistoryRecord
	appendErr error
	readErr   error
	reads     int
}

func (s *stubStore) Append(_ context.Context, rec models.HistoryRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.appendErr != nil {
		return s.appendErr
	}
	s.records = append(s.records, rec)
	return nil
}

func (s *stubStore) MostRecent(_ context.Context, limit int) ([]models.HistoryRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.reads++
	if s.readErr != nil {
		return nil, s.readErr
	}
	out := make([]models.HistoryRecord, 0, limit)
	for i := len(s.records) - 1; i >= 0 && len(out) < limit; i-- {
		out = append(out, s.records[i])
	}
	return out, nil
}

func (s *stubStore) Close() error { return nil }

func moderadaVector() models.ProbabilityVector {
	return models.ProbabilityVector{
		models.ClassNormal:   0.1,
		models.ClassLeve:     0.2,
		models.ClassModerada: 0.6,
		models.ClassSevera:   0.1,
	}
}

func validObservation() models.Observation {
	return models.Observation{
		EdadMeses:      24,
		Hemoglobina:    9.5,
		AlturaREN:      3200,
		Diresa:         "Lima",
		Consejeria:     0,
		Suplementacion: 0,
		Sexo:           "M",
		Cred:           1,
	}
}

func TestDiagnoseSuccess(t *testing.T) {
	store := &stubStore{}
	svc := NewTriageService(nil, stubClassifier{vector: moderadaVector()}, store, Options{})

	result, err := svc.Diagnose(context.Background(), validObservation())
	if err != nil {
		t.Fatalf("diagnose: %v", err)
	}
	if result.Class != models.ClassModerada {
		t.Fatalf("expected Moderada, got %s", result.Class)
	}
	if !result.Saved {
		t.Fatalf("expected result to be recorded")
	}
	if result.DiagnosisID == "" {
		t.Fatalf("expected a diagnosis id")
	}
	if result.Recommendation == "" || result.Semaphore == "" {
		t.Fatalf("expected recommendation and semaphore, got %+v", result)
	}

	if len(store.records) != 1 {
		t.Fatalf("expected one history record, got %d", len(store.records))
	}
	rec := store.records[0]
	if rec.EdadMeses != 24 || rec.DxPredicho != models.ClassModerada {
		t.Fatalf("unexpected history record: %+v", rec)
	}
	if rec.Fecha.IsZero() {
		t.Fatalf("expected record timestamp")
	}
}

func TestDiagnoseValidationShortCircuits(t *testing.T) {
	store := &stubStore{}
	svc := NewTriageService(nil, stubClassifier{vector: moderadaVector()}, store, Options{})

	obs := validObservation()
	obs.EdadMeses = 61
	_, err := svc.Diagnose(context.Background(), obs)
	if err == nil {
		t.Fatalf("expected validation error")
	}
	if utils.KindOf(err) != utils.KindValidation {
		t.Fatalf("expected validation kind, got %s", utils.KindOf(err))
	}
	if utils.FieldOf(err) != "EdadMeses" {
		t.Fatalf("expected error naming EdadMeses, got %q", utils.FieldOf(err))
	}
	if len(store.records) != 0 {
		t.Fatalf("validation failure must not append history")
	}
}

func TestDiagnosePersistenceFailureStillReturnsVerdict(t *testing.T) {
	store := &stubStore{appendErr: errors.New("disk full")}
	svc := NewTriageService(nil, stubClassifier{vector: moderadaVector()}, store, Options{})

	result, err := svc.Diagnose(context.Background(), validObservation())
	if err == nil {
		t.Fatalf("expected persistence error")
	}
	if utils.KindOf(err) != utils.KindPersistence {
		t.Fatalf("expected persistence kind, got %s", utils.KindOf(err))
	}
	if result.Class != models.ClassModerada {
		t.Fatalf("expected composed verdict alongside the error, got %+v", result)
	}
	if result.Saved {
		t.Fatalf("expected Saved=false")
	}
}

func TestDiagnoseClassifierFailure(t *testing.T) {
	store := &stubStore{}
	svc := NewTriageService(nil, stubClassifier{err: errors.New("bad artifact state")}, store, Options{})

	_, err := svc.Diagnose(context.Background(), validObservation())
	if err == nil {
		t.Fatalf("expected error")
	}
	if len(store.records) != 0 {
		t.Fatalf("classifier failure must not append history")
	}
}

func TestDiagnoseRejectsIncompleteVector(t *testing.T) {
	vector := models.ProbabilityVector{
		models.ClassNormal: 0.5,
		models.ClassLeve:   0.5,
	}
	svc := NewTriageService(nil, stubClassifier{vector: vector}, &stubStore{}, Options{})

	if _, err := svc.Diagnose(context.Background(), validObservation()); err == nil {
		t.Fatalf("expected error for incomplete probability vector")
	}
}

func TestHistoryUsesCache(t *testing.T) {
	store := &stubStore{}
	svc := NewTriageService(nil, stubClassifier{vector: moderadaVector()}, store, Options{
		Cache:    cache.NewMemoryProvider(),
		CacheTTL: time.Minute,
	})
	ctx := context.Background()

	if _, err := svc.Diagnose(ctx, validObservation()); err != nil {
		t.Fatalf("diagnose: %v", err)
	}

	first, err := svc.History(ctx, 10)
	if err != nil {
		t.Fatalf("history: %v", err)
	}
	second, err := svc.History(ctx, 10)
	if err != nil {
		t.Fatalf("history: %v", err)
	}
	if store.reads != 1 {
		t.Fatalf("expected one store read, got %d", store.reads)
	}
	if len(first) != 1 || len(second) != 1 {
		t.Fatalf("expected one record in both listings")
	}
	if first[0].EdadMeses != second[0].EdadMeses {
		t.Fatalf("cached listing differs from stored listing")
	}
}

func TestHistoryCacheInvalidatedByAppend(t *testing.T) {
	store := &stubStore{}
	svc := NewTriageService(nil, stubClassifier{vector: moderadaVector()}, store, Options{
		Cache:    cache.NewMemoryProvider(),
		CacheTTL: time.Minute,
	})
	ctx := context.Background()

	if _, err := svc.Diagnose(ctx, validObservation()); err != nil {
		t.Fatalf("diagnose: %v", err)
	}
	if _, err := svc.History(ctx, 10); err != nil {
		t.Fatalf("history: %v", err)
	}

	if _, err := svc.Diagnose(ctx, validObservation()); err != nil {
		t.Fatalf("diagnose: %v", err)
	}
	records, err := svc.History(ctx, 10)
	if err != nil {
		t.Fatalf("history: %v", err)
	}
	if len(records) != 2 {
		t.Fatalf("expected the listing to reflect the new append, got %d records", len(records))
	}
}

func TestHistoryEmptyStore(t *testing.T) {
	svc := NewTriageService(nil, stubClassifier{vector: moderadaVector()}, &stubStore{}, Options{})

	records, err := svc.History(context.Background(), 200)
	if err != nil {
		t.Fatalf("history: %v", err)
	}
	if records == nil || len(records) != 0 {
		t.Fatalf("expected empty slice, got %#v", records)
	}
}

var _ repo.HistoryStore = (*stubStore)(nil)
