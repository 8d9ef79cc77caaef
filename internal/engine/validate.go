package engine

import (
	"fmt"
	"strings"

	"github.com/saludstack/anemia-triage/internal/models"
	"github.com/saludstack/anemia-triage/internal/utils"
)

// ValidateObservation checks all eight clinical fields against their domain
// constraints. The first violation is returned as a validation error naming
// the offending field; values are never clamped.
func ValidateObservation(obs models.Observation) error {
	if obs.EdadMeses < models.EdadMesesMin || obs.EdadMeses > models.EdadMesesMax {
		return utils.NewValidationError("EdadMeses",
			fmt.Sprintf("must be between %d and %d months", models.EdadMesesMin, models.EdadMesesMax))
	}
	if obs.Hemoglobina < models.HemoglobinaMin || obs.Hemoglobina > models.HemoglobinaMax {
		return utils.NewValidationError("Hemoglobina",
			fmt.Sprintf("must be between %.0f and %.0f g/dL", models.HemoglobinaMin, models.HemoglobinaMax))
	}
	if obs.AlturaREN < models.AlturaRENMin || obs.AlturaREN > models.AlturaRENMax {
		return utils.NewValidationError("AlturaREN",
			fmt.Sprintf("must be between %.0f and %.0f meters", models.AlturaRENMin, models.AlturaRENMax))
	}
	if obs.Sexo != "M" && obs.Sexo != "F" {
		return utils.NewValidationError("Sexo", `must be "M" or "F"`)
	}
	if obs.Cred != 0 && obs.Cred != 1 {
		return utils.NewValidationError("Cred", "must be 0 or 1")
	}
	if obs.Consejeria != 0 && obs.Consejeria != 1 {
		return utils.NewValidationError("Consejeria", "must be 0 or 1")
	}
	if obs.Suplementacion != 0 && obs.Suplementacion != 1 {
		return utils.NewValidationError("Suplementacion", "must be 0 or 1")
	}
	if strings.TrimSpace(obs.Diresa) == "" {
		return utils.NewValidationError("Diresa", "must not be empty")
	}
	return nil
}
