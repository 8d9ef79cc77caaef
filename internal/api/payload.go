package api

import (
	"encoding/json"
	"errors"
	"io"

	"github.com/saludstack/anemia-triage/internal/models"
	"github.com/saludstack/anemia-triage/internal/utils"
)

// predictPayload mirrors the JSON contract of the prediction endpoint.
// Pointer fields distinguish a missing field from a zero value before the
// typed Observation exists; this is the parse step that keeps the untyped
// payload out of the core.
type predictPayload struct {
	EdadMeses      *int     `json:"EdadMeses"`
	Hemoglobina    *float64 `json:"Hemoglobina"`
	AlturaREN      *float64 `json:"AlturaREN"`
	Diresa         *string  `json:"Diresa"`
	Consejeria     *int     `json:"Consejeria"`
	Suplementacion *int     `json:"Suplementacion"`
	Sexo           *string  `json:"Sexo"`
	Cred           *int     `json:"Cred"`
}

func decodePredictPayload(body io.Reader) (models.Observation, error) {
	var payload predictPayload
	if err := json.NewDecoder(body).Decode(&payload); err != nil {
		var typeErr *json.UnmarshalTypeError
		if errors.As(err, &typeErr) && typeErr.Field != "" {
			return models.Observation{}, utils.NewValidationError(typeErr.Field, "must be of type "+typeErr.Type.String())
		}
		return models.Observation{}, utils.NewValidationError("body", "request body is not valid JSON")
	}
	return payload.observation()
}

func (p predictPayload) observation() (models.Observation, error) {
	required := []struct {
		name    string
		present bool
	}{
		{"EdadMeses", p.EdadMeses != nil},
		{"Hemoglobina", p.Hemoglobina != nil},
		{"AlturaREN", p.AlturaREN != nil},
		{"Diresa", p.Diresa != nil},
		{"Consejeria", p.Consejeria != nil},
		{"Suplementacion", p.Suplementacion != nil},
		{"Sexo", p.Sexo != nil},
		{"Cred", p.Cred != nil},
	}
	for _, field := range required {
		if !field.present {
			return models.Observation{}, utils.NewValidationError(field.name, "is required")
		}
	}

	return models.Observation{
		EdadMeses:      *p.EdadMeses,
		Hemoglobina:    *p.Hemoglobina,
		AlturaREN:      *p.AlturaREN,
		Diresa:         *p.Diresa,
		Consejeria:     *p.Consejeria,
		Suplementacion: *p.Suplementacion,
		Sexo:           *p.Sexo,
		Cred:           *p.Cred,
	}, nil
}
