package engine

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"math"
	"os"

	"github.com/saludstack/anemia-triage/internal/models"
	"github.com/saludstack/anemia-triage/internal/utils"
)

// Artifact is the serialized form of the pre-fitted multinomial logistic
// regression model. Coefficients has one row per class (in the order of
// Classes) and one column per feature (in the order of Features); inputs are
// standardized with Means/Stds before the dot product.
type Artifact struct {
	Version      string      `json:"version"`
	Classes      []string    `json:"classes"`
	Features     []string    `json:"features"`
	Means        []float64   `json:"means"`
	Stds         []float64   `json:"stds"`
	Coefficients [][]float64 `json:"coefficients"`
	Intercepts   []float64   `json:"intercepts"`
}

// Classifier evaluates the loaded artifact against observations. The
// artifact is read-only after construction, so a single Classifier is safe
// for unsynchronized concurrent use.
type Classifier struct {
	artifact Artifact
	classes  []models.Class
	logger   *slog.Logger
}

// LoadClassifier reads and validates an artifact file. Any schema mismatch
// is a model error; callers treat it as fatal at startup.
func LoadClassifier(path string, logger *slog.Logger) (*Classifier, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, utils.NewModelError("load classifier", fmt.Sprintf("artifact %s unavailable", path), err)
	}
	var artifact Artifact
	if err := json.Unmarshal(data, &artifact); err != nil {
		return nil, utils.NewModelError("load classifier", fmt.Sprintf("artifact %s is not valid JSON", path), err)
	}
	return NewClassifier(artifact, logger)
}

// NewClassifier validates the artifact's schema against the observation
// feature map and returns a ready classifier.
func NewClassifier(artifact Artifact, logger *slog.Logger) (*Classifier, error) {
	if logger == nil {
		logger = slog.Default()
	}

	if len(artifact.Classes) != len(models.Classes) {
		return nil, utils.NewModelError("load classifier",
			fmt.Sprintf("artifact declares %d classes, expected %d", len(artifact.Classes), len(models.Classes)), nil)
	}
	classes := make([]models.Class, 0, len(artifact.Classes))
	seen := make(map[models.Class]bool, len(artifact.Classes))
	for _, name := range artifact.Classes {
		class := models.Class(name)
		if !class.Known() || seen[class] {
			return nil, utils.NewModelError("load classifier", fmt.Sprintf("unexpected class %q in artifact", name), nil)
		}
		seen[class] = true
		classes = append(classes, class)
	}

	if len(artifact.Features) == 0 {
		return nil, utils.NewModelError("load classifier", "artifact declares no features", nil)
	}
	known := models.Observation{}.Features()
	for _, feature := range artifact.Features {
		if _, ok := known[feature]; !ok {
			return nil, utils.NewModelError("load classifier",
				fmt.Sprintf("artifact feature %q does not match any observation field", feature), nil)
		}
	}

	if len(artifact.Means) != len(artifact.Features) || len(artifact.Stds) != len(artifact.Features) {
		return nil, utils.NewModelError("load classifier", "standardization vectors do not match feature count", nil)
	}
	for i, std := range artifact.Stds {
		if std <= 0 {
			return nil, utils.NewModelError("load classifier",
				fmt.Sprintf("feature %q has non-positive std", artifact.Features[i]), nil)
		}
	}
	if len(artifact.Coefficients) != len(classes) || len(artifact.Intercepts) != len(classes) {
		return nil, utils.NewModelError("load classifier", "coefficient rows do not match class count", nil)
	}
	for i, row := range artifact.Coefficients {
		if len(row) != len(artifact.Features) {
			return nil, utils.NewModelError("load classifier",
				fmt.Sprintf("coefficient row for class %q does not match feature count", artifact.Classes[i]), nil)
		}
	}

	logger.Info("classifier artifact loaded",
		slog.String("version", artifact.Version),
		slog.Int("features", len(artifact.Features)))

	return &Classifier{artifact: artifact, classes: classes, logger: logger}, nil
}

// Version returns the artifact's version string.
func (c *Classifier) Version() string {
	return c.artifact.Version
}

// Features returns the artifact's feature names in model order.
func (c *Classifier) Features() []string {
	return append([]string(nil), c.artifact.Features...)
}

// Classes returns the artifact's class order.
func (c *Classifier) Classes() []models.Class {
	return append([]models.Class(nil), c.classes...)
}

// Classify maps one observation to a probability per severity class. It is a
// pure function of its input: standardize, per-class dot product, softmax.
// Calibration and thresholding are deliberately not applied here.
func (c *Classifier) Classify(obs models.Observation) (models.ProbabilityVector, error) {
	if c == nil {
		return nil, utils.NewModelError("classify", "classifier not initialised", nil)
	}

	features := obs.Features()
	inputs := make([]float64, len(c.artifact.Features))
	for i, name := range c.artifact.Features {
		value, ok := features[name]
		if !ok {
			// Unreachable after NewClassifier validation; guard anyway.
			return nil, utils.NewModelError("classify", fmt.Sprintf("feature %q missing from observation", name), nil)
		}
		inputs[i] = (value - c.artifact.Means[i]) / c.artifact.Stds[i]
	}

	logits := make([]float64, len(c.classes))
	maxLogit := math.Inf(-1)
	for i := range c.classes {
		logit := c.artifact.Intercepts[i]
		for j, x := range inputs {
			logit += c.artifact.Coefficients[i][j] * x
		}
		logits[i] = logit
		if logit > maxLogit {
			maxLogit = logit
		}
	}

	// Softmax with the max subtracted to avoid overflow.
	total := 0.0
	for i, logit := range logits {
		logits[i] = math.Exp(logit - maxLogit)
		total += logits[i]
	}

	vector := make(models.ProbabilityVector, len(c.classes))
	for i, class := range c.classes {
		vector[class] = logits[i] / total
	}
	return vector, nil
}
