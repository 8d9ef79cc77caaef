package models

// Class is one of the four anemia severity tiers the classifier can emit.
type Class string

const (
	ClassNormal   Class = "Normal"
	ClassLeve     Class = "Leve"
	ClassModerada Class = "Moderada"
	ClassSevera   Class = "Severa"
)

// Classes lists the four severity classes in ascending severity.
var Classes = []Class{ClassNormal, ClassLeve, ClassModerada, ClassSevera}

// ClassesBySeverity lists the four classes from most to least severe.
// Verdict tie-breaking scans in this order so equal maxima resolve toward
// the more severe class.
var ClassesBySeverity = []Class{ClassSevera, ClassModerada, ClassLeve, ClassNormal}

// Known reports whether c is one of the four severity classes.
func (c Class) Known() bool {
	switch c {
	case ClassNormal, ClassLeve, ClassModerada, ClassSevera:
		return true
	}
	return false
}

// Observation captures the eight clinical inputs describing one patient at
// one point in time. Field names follow the external JSON contract.
type Observation struct {
	EdadMeses      int     `json:"EdadMeses"`
	Hemoglobina    float64 `json:"Hemoglobina"`
	AlturaREN      float64 `json:"AlturaREN"`
	Diresa         string  `json:"Diresa"`
	Consejeria     int     `json:"Consejeria"`
	Suplementacion int     `json:"Suplementacion"`
	Sexo           string  `json:"Sexo"`
	Cred           int     `json:"Cred"`
}

// Observation field bounds.
const (
	EdadMesesMin   = 0
	EdadMesesMax   = 60
	HemoglobinaMin = 0.0
	HemoglobinaMax = 20.0
	AlturaRENMin   = 0.0
	AlturaRENMax   = 6000.0
)

// Features returns the observation's numeric feature map keyed the way the
// inference artifact names features. Sexo is encoded M=1/F=0; Diresa is
// region metadata, never a model feature.
func (o Observation) Features() map[string]float64 {
	sexo := 0.0
	if o.Sexo == "M" {
		sexo = 1.0
	}
	return map[string]float64{
		"EdadMeses":      float64(o.EdadMeses),
		"Hemoglobina":    o.Hemoglobina,
		"AlturaREN":      o.AlturaREN,
		"Sexo":           sexo,
		"Cred":           float64(o.Cred),
		"Consejeria":     float64(o.Consejeria),
		"Suplementacion": float64(o.Suplementacion),
	}
}
