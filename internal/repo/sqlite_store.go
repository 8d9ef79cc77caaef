package repo

import (
	"context"
	"database/sql"
	"encoding/json"
	"log/slog"

	"github.com/saludstack/anemia-triage/internal/models"
	"github.com/saludstack/anemia-triage/internal/utils"
)

const historySchema = `
CREATE TABLE IF NOT EXISTS history (
    id                  INTEGER PRIMARY KEY AUTOINCREMENT,
    fecha               TEXT NOT NULL,
    edad_meses          INTEGER NOT NULL,
    hemoglobina         REAL NOT NULL,
    altura_ren          REAL NOT NULL,
    diresa              TEXT NOT NULL,
    consejeria          INTEGER NOT NULL,
    suplementacion      INTEGER NOT NULL,
    sexo                TEXT NOT NULL,
    cred                INTEGER NOT NULL,
    dx_predicho         TEXT NOT NULL,
    probabilidades_json TEXT NOT NULL
);
`

// SQLiteStore keeps the diagnosis history in an embedded SQLite database.
// It honours the same append-only contract as CSVStore; the database engine
// provides row-level append atomicity.
type SQLiteStore struct {
	db     *sql.DB
	limits Limits
	logger *slog.Logger
}

// NewSQLiteStore initialises the history table on the supplied database.
func NewSQLiteStore(db *sql.DB, limits Limits, logger *slog.Logger) (*SQLiteStore, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if _, err := db.Exec(historySchema); err != nil {
		return nil, utils.NewPersistenceError("open history", "create history table", err)
	}
	return &SQLiteStore{db: db, limits: limits.Normalise(), logger: logger}, nil
}

// Append inserts one record.
func (s *SQLiteStore) Append(ctx context.Context, rec models.HistoryRecord) error {
	probs, err := json.Marshal(rec.Probabilities)
	if err != nil {
		return utils.NewPersistenceError("append history", "encode record", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO history
		(fecha, edad_meses, hemoglobina, altura_ren, diresa, consejeria,
		 suplementacion, sexo, cred, dx_predicho, probabilidades_json)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		utils.FormatTimestamp(rec.Fecha),
		rec.EdadMeses,
		rec.Hemoglobina,
		rec.AlturaREN,
		rec.Diresa,
		rec.Consejeria,
		rec.Suplementacion,
		rec.Sexo,
		rec.Cred,
		string(rec.DxPredicho),
		string(probs),
	)
	if err != nil {
		return utils.NewPersistenceError("append history", "insert record", err)
	}
	return nil
}

// MostRecent returns up to limit records in reverse insertion order.
func (s *SQLiteStore) MostRecent(ctx context.Context, limit int) ([]models.HistoryRecord, error) {
	limit = s.limits.Clamp(limit)

	rows, err := s.db.QueryContext(ctx, `
		SELECT fecha, edad_meses, hemoglobina, altura_ren, diresa, consejeria,
		       suplementacion, sexo, cred, dx_predicho, probabilidades_json
		FROM history
		ORDER BY id DESC
		LIMIT ?`, limit)
	if err != nil {
		return nil, utils.NewPersistenceError("read history", "query history", err)
	}
	defer rows.Close()

	records := make([]models.HistoryRecord, 0, limit)
	for rows.Next() {
		var (
			fecha string
			probs string
			rec   models.HistoryRecord
		)
		if err := rows.Scan(
			&fecha,
			&rec.EdadMeses,
			&rec.Hemoglobina,
			&rec.AlturaREN,
			&rec.Diresa,
			&rec.Consejeria,
			&rec.Suplementacion,
			&rec.Sexo,
			&rec.Cred,
			&rec.DxPredicho,
			&probs,
		); err != nil {
			return nil, utils.NewPersistenceError("read history", "scan row", err)
		}
		if rec.Fecha, err = utils.ParseTimestamp(fecha); err != nil {
			s.logger.Warn("skipping malformed history row", slog.Any("error", err))
			continue
		}
		if probs != "" {
			if err := json.Unmarshal([]byte(probs), &rec.Probabilities); err != nil {
				s.logger.Warn("skipping malformed history row", slog.Any("error", err))
				continue
			}
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, utils.NewPersistenceError("read history", "iterate rows", err)
	}
	return records, nil
}

// Close closes the underlying database handle.
func (s *SQLiteStore) Close() error { return s.db.Close() }
