package repo

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/saludstack/anemia-triage/internal/models"
	"github.com/saludstack/anemia-triage/internal/utils"
)

// HistoryColumns is the fixed header of the history log: timestamp, the
// eight observation fields, the predicted class, and the probability vector.
var HistoryColumns = []string{
	"fecha",
	"EdadMeses",
	"Hemoglobina",
	"AlturaREN",
	"Diresa",
	"Consejeria",
	"Suplementacion",
	"Sexo",
	"Cred",
	"dx_predicho",
	"probabilidades_json",
}

// HistoryStore is the narrow storage contract for the append-only diagnosis
// log. Records are immutable once appended; there is no update or delete.
type HistoryStore interface {
	// Append durably records one diagnosis. Concurrent appends must each
	// land as one complete row.
	Append(ctx context.Context, rec models.HistoryRecord) error
	// MostRecent returns up to limit records, newest first. A store with no
	// records yet yields an empty slice, not an error. Non-positive limits
	// fall back to the store's default; oversized limits are capped.
	MostRecent(ctx context.Context, limit int) ([]models.HistoryRecord, error)
	Close() error
}

// Limits bounds MostRecent result sizes.
type Limits struct {
	Default int
	Max     int
}

func (l Limits) Normalise() Limits {
	if l.Default <= 0 {
		l.Default = 200
	}
	if l.Max <= 0 {
		l.Max = 1000
	}
	if l.Default > l.Max {
		l.Default = l.Max
	}
	return l
}

func (l Limits) Clamp(limit int) int {
	if limit <= 0 {
		return l.Default
	}
	if limit > l.Max {
		return l.Max
	}
	return limit
}

func encodeRow(rec models.HistoryRecord) ([]string, error) {
	probs, err := json.Marshal(rec.Probabilities)
	if err != nil {
		return nil, fmt.Errorf("marshal probabilities: %w", err)
	}
	return []string{
		utils.FormatTimestamp(rec.Fecha),
		strconv.Itoa(rec.EdadMeses),
		strconv.FormatFloat(rec.Hemoglobina, 'f', -1, 64),
		strconv.FormatFloat(rec.AlturaREN, 'f', -1, 64),
		rec.Diresa,
		strconv.Itoa(rec.Consejeria),
		strconv.Itoa(rec.Suplementacion),
		rec.Sexo,
		strconv.Itoa(rec.Cred),
		string(rec.DxPredicho),
		string(probs),
	}, nil
}

func decodeRow(row []string) (models.HistoryRecord, error) {
	if len(row) != len(HistoryColumns) {
		return models.HistoryRecord{}, fmt.Errorf("row has %d columns, expected %d", len(row), len(HistoryColumns))
	}

	fecha, err := utils.ParseTimestamp(row[0])
	if err != nil {
		return models.HistoryRecord{}, fmt.Errorf("column fecha: %w", err)
	}
	edad, err := strconv.Atoi(row[1])
	if err != nil {
		return models.HistoryRecord{}, fmt.Errorf("column EdadMeses: %w", err)
	}
	hemoglobina, err := strconv.ParseFloat(row[2], 64)
	if err != nil {
		return models.HistoryRecord{}, fmt.Errorf("column Hemoglobina: %w", err)
	}
	altura, err := strconv.ParseFloat(row[3], 64)
	if err != nil {
		return models.HistoryRecord{}, fmt.Errorf("column AlturaREN: %w", err)
	}
	consejeria, err := strconv.Atoi(row[5])
	if err != nil {
		return models.HistoryRecord{}, fmt.Errorf("column Consejeria: %w", err)
	}
	suplementacion, err := strconv.Atoi(row[6])
	if err != nil {
		return models.HistoryRecord{}, fmt.Errorf("column Suplementacion: %w", err)
	}
	cred, err := strconv.Atoi(row[8])
	if err != nil {
		return models.HistoryRecord{}, fmt.Errorf("column Cred: %w", err)
	}

	var probs models.ProbabilityVector
	if row[10] != "" {
		if err := json.Unmarshal([]byte(row[10]), &probs); err != nil {
			return models.HistoryRecord{}, fmt.Errorf("column probabilidades_json: %w", err)
		}
	}

	return models.HistoryRecord{
		Fecha: fecha,
		Observation: models.Observation{
			EdadMeses:      edad,
			Hemoglobina:    hemoglobina,
			AlturaREN:      altura,
			Diresa:         row[4],
			Consejeria:     consejeria,
			Suplementacion: suplementacion,
			Sexo:           row[7],
			Cred:           cred,
		},
		DxPredicho:    models.Class(row[9]),
		Probabilities: probs,
	}, nil
}
