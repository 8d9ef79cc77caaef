package engine

import (
	"math"

	"github.com/saludstack/anemia-triage/internal/models"
)

// tieEpsilon bounds the probability gap inside which two classes count as
// tied for the maximum.
const tieEpsilon = 1e-9

var semaphoreByClass = map[models.Class]string{
	models.ClassNormal:   "\U0001F7E2", // green
	models.ClassLeve:     "\U0001F7E1", // yellow
	models.ClassModerada: "\U0001F7E0", // orange
	models.ClassSevera:   "\U0001F534", // red
}

var recommendationByClass = map[models.Class]string{
	models.ClassNormal:   "Continuar con controles regulares y alimentación balanceada.",
	models.ClassLeve:     "Refuerce alimentación rica en hierro y programe control de hemoglobina en 30 días.",
	models.ClassModerada: "Indique suplementación con hierro y seguimiento cercano en 15 días.",
	models.ClassSevera:   "Derivar para atención inmediata y manejo hospitalario si corresponde.",
}

// SemaphoreColor returns the visual indicator for a severity class.
func SemaphoreColor(class models.Class) string {
	return semaphoreByClass[class]
}

// Recommendation returns the fixed recommendation text for a severity class.
func Recommendation(class models.Class) string {
	return recommendationByClass[class]
}

// ComposeVerdict selects the argmax class from a probability vector. Classes
// tied for the maximum resolve to the more severe one; erring toward caution
// is deliberate, not a floating-point accident. Color and recommendation are
// pure lookups on the chosen class.
func ComposeVerdict(vector models.ProbabilityVector) models.Verdict {
	max := math.Inf(-1)
	for _, class := range models.Classes {
		if p := vector[class]; p > max {
			max = p
		}
	}

	chosen := models.ClassNormal
	for _, class := range models.ClassesBySeverity {
		if vector[class] >= max-tieEpsilon {
			chosen = class
			break
		}
	}

	return models.Verdict{
		Class:          chosen,
		Semaphore:      semaphoreByClass[chosen],
		Recommendation: recommendationByClass[chosen],
	}
}
