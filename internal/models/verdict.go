package models

import (
	"math"
	"time"
)

// ProbabilitySumTolerance bounds the allowed floating-point drift when a
// probability vector is checked for summing to 1.
const ProbabilitySumTolerance = 1e-6

// ProbabilityVector maps every severity class to its probability. A valid
// vector carries all four classes, even at probability zero.
type ProbabilityVector map[Class]float64

// Sum returns the total probability mass.
func (v ProbabilityVector) Sum() float64 {
	total := 0.0
	for _, p := range v {
		total += p
	}
	return total
}

// Check verifies that the vector is complete and normalised: all four
// classes present, each value in [0,1], and the sum within tolerance of 1.
func (v ProbabilityVector) Check() error {
	for _, class := range Classes {
		p, ok := v[class]
		if !ok {
			return &IncompleteVectorError{Missing: class}
		}
		if p < 0 || p > 1 {
			return &IncompleteVectorError{Missing: class, OutOfRange: true}
		}
	}
	if math.Abs(v.Sum()-1) > ProbabilitySumTolerance {
		return &IncompleteVectorError{BadSum: true}
	}
	return nil
}

// IncompleteVectorError reports a malformed probability vector.
type IncompleteVectorError struct {
	Missing    Class
	OutOfRange bool
	BadSum     bool
}

func (e *IncompleteVectorError) Error() string {
	switch {
	case e.BadSum:
		return "probability vector does not sum to 1"
	case e.OutOfRange:
		return "probability for class " + string(e.Missing) + " outside [0,1]"
	default:
		return "probability vector missing class " + string(e.Missing)
	}
}

// Verdict is the composed output of one diagnosis: the chosen severity
// class, its semaphore color, and the recommendation text.
type Verdict struct {
	Class          Class
	Semaphore      string
	Recommendation string
}

// DiagnosisResult is what the diagnosis service returns to the transport
// layer. Saved is false when classification succeeded but the history
// append did not.
type DiagnosisResult struct {
	DiagnosisID    string
	Class          Class
	Semaphore      string
	Probabilities  ProbabilityVector
	Recommendation string
	Saved          bool
}

// HistoryRecord is one immutable, timestamped log entry combining an
// observation with its verdict's class. Created exactly once per successful
// diagnosis; never updated or deleted.
type HistoryRecord struct {
	Fecha time.Time `json:"fecha"`
	Observation
	DxPredicho    Class             `json:"dx_predicho"`
	Probabilities ProbabilityVector `json:"probabilidades"`
}
