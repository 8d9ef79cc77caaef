package repo

import (
	"context"
	"encoding/csv"
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"github.com/saludstack/anemia-triage/internal/models"
	"github.com/saludstack/anemia-triage/internal/utils"
)

// CSVStore keeps the diagnosis history in a single tabular file with a
// fixed header row. The store owns the file exclusively: appends serialize
// behind the write lock so one complete row lands per append, and readers
// parse a consistent snapshot under the read lock.
type CSVStore struct {
	path   string
	limits Limits
	logger *slog.Logger

	mu sync.RWMutex
}

// NewCSVStore opens (creating if needed) the history file at path and
// guarantees the header row exists.
func NewCSVStore(path string, limits Limits, logger *slog.Logger) (*CSVStore, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if dir := filepath.Dir(path); dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, utils.NewPersistenceError("open history", "create history directory", err)
		}
	}

	store := &CSVStore{path: path, limits: limits.Normalise(), logger: logger}
	if err := store.ensureHeader(); err != nil {
		return nil, err
	}
	return store, nil
}

func (s *CSVStore) ensureHeader() error {
	info, err := os.Stat(s.path)
	if err == nil && info.Size() > 0 {
		return nil
	}
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return utils.NewPersistenceError("open history", "stat history file", err)
	}

	f, err := os.OpenFile(s.path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return utils.NewPersistenceError("open history", "create history file", err)
	}
	defer f.Close()

	w := csv.NewWriter(f)
	if err := w.Write(HistoryColumns); err != nil {
		return utils.NewPersistenceError("open history", "write header", err)
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return utils.NewPersistenceError("open history", "write header", err)
	}
	return nil
}

// Append writes one complete record and syncs it to disk before returning.
func (s *CSVStore) Append(ctx context.Context, rec models.HistoryRecord) error {
	if err := ctx.Err(); err != nil {
		return utils.NewPersistenceError("append history", "request cancelled", err)
	}

	row, err := encodeRow(rec)
	if err != nil {
		return utils.NewPersistenceError("append history", "encode record", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	f, err := os.OpenFile(s.path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return utils.NewPersistenceError("append history", "open history file", err)
	}
	defer f.Close()

	w := csv.NewWriter(f)
	if err := w.Write(row); err != nil {
		return utils.NewPersistenceError("append history", "write record", err)
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return utils.NewPersistenceError("append history", "write record", err)
	}
	if err := f.Sync(); err != nil {
		return utils.NewPersistenceError("append history", "sync history file", err)
	}
	return nil
}

// MostRecent parses the whole file under the read lock, newest first.
func (s *CSVStore) MostRecent(ctx context.Context, limit int) ([]models.HistoryRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, utils.NewPersistenceError("read history", "request cancelled", err)
	}
	limit = s.limits.Clamp(limit)

	s.mu.RLock()
	defer s.mu.RUnlock()

	f, err := os.Open(s.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return []models.HistoryRecord{}, nil
		}
		return nil, utils.NewPersistenceError("read history", "open history file", err)
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.FieldsPerRecord = -1

	records := make([]models.HistoryRecord, 0)
	header := true
	for {
		row, err := r.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, utils.NewPersistenceError("read history", "parse history file", err)
		}
		if header {
			header = false
			continue
		}
		rec, err := decodeRow(row)
		if err != nil {
			s.logger.Warn("skipping malformed history row", slog.Any("error", err))
			continue
		}
		records = append(records, rec)
	}

	// Rows are append-ordered on disk; reverse for newest-first.
	for i, j := 0, len(records)-1; i < j; i, j = i+1, j-1 {
		records[i], records[j] = records[j], records[i]
	}
	if len(records) > limit {
		records = records[:limit]
	}
	return records, nil
}

// Close is a no-op; the store opens the file per operation.
func (s *CSVStore) Close() error { return nil }
