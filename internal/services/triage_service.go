package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/saludstack/anemia-triage/internal/cache"
	"github.com/saludstack/anemia-triage/internal/engine"
	"github.com/saludstack/anemia-triage/internal/metrics"
	"github.com/saludstack/anemia-triage/internal/models"
	"github.com/saludstack/anemia-triage/internal/repo"
	"github.com/saludstack/anemia-triage/internal/utils"
)

// Classifier produces a probability per severity class from one observation.
// The triage service receives it at construction so tests can substitute a
// stub for the loaded artifact.
type Classifier interface {
	Classify(models.Observation) (models.ProbabilityVector, error)
}

// Options tunes optional service behaviour.
type Options struct {
	Cache    cache.Provider
	CacheTTL time.Duration
	Limits   repo.Limits
	Clock    func() time.Time
}

// TriageService orchestrates one diagnosis: validate, classify, compose,
// persist. It is the only writer of history records.
type TriageService struct {
	logger     *slog.Logger
	classifier Classifier
	store      repo.HistoryStore

	cache    cache.Provider
	cacheTTL time.Duration
	limits   repo.Limits
	clock    func() time.Time

	latencies *utils.LatencyTracker

	// generation namespaces history cache keys; bumped on every append so a
	// read after a write never serves the previous listing.
	generation atomic.Uint64
}

// NewTriageService constructs the diagnosis orchestrator.
func NewTriageService(logger *slog.Logger, classifier Classifier, store repo.HistoryStore, opts Options) *TriageService {
	if logger == nil {
		logger = slog.Default()
	}
	if opts.Cache == nil {
		opts.Cache = cache.NoopProvider{}
	}
	if opts.Clock == nil {
		opts.Clock = time.Now
	}
	return &TriageService{
		logger:     logger,
		classifier: classifier,
		store:      store,
		cache:      opts.Cache,
		cacheTTL:   opts.CacheTTL,
		limits:     opts.Limits,
		clock:      opts.Clock,
		latencies:  utils.NewLatencyTracker(1024),
	}
}

// Diagnose runs the full pipeline for one observation. When the history
// append fails after a successful classification, the composed result is
// returned together with a persistence error so callers can still display
// the verdict.
func (s *TriageService) Diagnose(ctx context.Context, obs models.Observation) (models.DiagnosisResult, error) {
	start := time.Now()

	if err := engine.ValidateObservation(obs); err != nil {
		metrics.ObserveDiagnosis(time.Since(start), metrics.OutcomeInvalid, "")
		return models.DiagnosisResult{}, err
	}

	id := uuid.NewString()

	vector, err := s.classifier.Classify(obs)
	if err != nil {
		metrics.ObserveDiagnosis(time.Since(start), metrics.OutcomeError, "")
		s.logger.Error("classification failed", slog.String("diagnosis_id", id), slog.Any("error", err))
		return models.DiagnosisResult{}, fmt.Errorf("classify observation: %w", err)
	}
	if err := vector.Check(); err != nil {
		metrics.ObserveDiagnosis(time.Since(start), metrics.OutcomeError, "")
		return models.DiagnosisResult{}, fmt.Errorf("classifier output: %w", err)
	}

	verdict := engine.ComposeVerdict(vector)
	result := models.DiagnosisResult{
		DiagnosisID:    id,
		Class:          verdict.Class,
		Semaphore:      verdict.Semaphore,
		Probabilities:  vector,
		Recommendation: verdict.Recommendation,
		Saved:          true,
	}

	record := models.HistoryRecord{
		Fecha:         s.clock().UTC(),
		Observation:   obs,
		DxPredicho:    verdict.Class,
		Probabilities: vector,
	}
	if err := s.store.Append(ctx, record); err != nil {
		result.Saved = false
		metrics.ObserveDiagnosis(time.Since(start), metrics.OutcomeError, string(verdict.Class))
		s.logger.Error("history append failed",
			slog.String("diagnosis_id", id),
			slog.String("severity", string(verdict.Class)),
			slog.Any("error", err))
		return result, utils.NewPersistenceError("diagnose", "diagnosis succeeded but was not recorded", err)
	}
	s.generation.Add(1)

	duration := time.Since(start)
	s.latencies.Observe(duration)
	metrics.ObserveDiagnosis(duration, metrics.OutcomeSuccess, string(verdict.Class))
	if count := s.latencies.Count(); count >= 20 && count%20 == 0 {
		s.logger.Info("diagnosis latency", slog.Duration("p95", s.latencies.Percentile(95)), slog.Int("samples", count))
	}
	s.logger.Debug("diagnosis recorded",
		slog.String("diagnosis_id", id),
		slog.String("severity", string(verdict.Class)))

	return result, nil
}

// History lists the most recent records, newest first, through the listing
// cache when one is configured.
func (s *TriageService) History(ctx context.Context, limit int) ([]models.HistoryRecord, error) {
	limit = s.limits.Normalise().Clamp(limit)
	key := fmt.Sprintf("history:%d:%d", s.generation.Load(), limit)

	if cached, err := s.cache.Get(ctx, key); err == nil {
		var records []models.HistoryRecord
		if err := json.Unmarshal(cached, &records); err == nil {
			metrics.ObserveHistoryRead(metrics.OutcomeSuccess)
			return records, nil
		}
		// Unreadable cache entries fall through to the store.
		_ = s.cache.Del(ctx, key)
	} else if !errors.Is(err, cache.ErrCacheMiss) {
		s.logger.Warn("history cache read failed", slog.Any("error", err))
	}

	records, err := s.store.MostRecent(ctx, limit)
	if err != nil {
		metrics.ObserveHistoryRead(metrics.OutcomeError)
		return nil, err
	}
	if records == nil {
		records = []models.HistoryRecord{}
	}

	if s.cacheTTL > 0 {
		if payload, err := json.Marshal(records); err == nil {
			if err := s.cache.Set(ctx, key, payload, s.cacheTTL); err != nil {
				s.logger.Warn("history cache write failed", slog.Any("error", err))
			}
		}
	}

	metrics.ObserveHistoryRead(metrics.OutcomeSuccess)
	return records, nil
}

// LatencyP95 returns the current p95 diagnosis latency.
func (s *TriageService) LatencyP95() time.Duration {
	return s.latencies.Percentile(95)
}
