// Package domain contains the core entities of the medication-safety clinical decision
// support engine: medications under review, patient factors, reference drug records,
// the nine alert kinds and the immutable result snapshots returned to callers.
package domain

import (
	"fmt"
	"strings"
)

// Severity is the severity band shared by every alert kind.
// The bands are totally ordered: MINOR < MODERATE < MAJOR < CRITICAL.
type Severity string

const (
	SeverityMinor    Severity = "MINOR"
	SeverityModerate Severity = "MODERATE"
	SeverityMajor    Severity = "MAJOR"
	SeverityCritical Severity = "CRITICAL"
)

// IsValid reports whether s is one of the four severity bands.
func (s Severity) IsValid() bool {
	switch s {
	case SeverityMinor, SeverityModerate, SeverityMajor, SeverityCritical:
		return true
	default:
		return false
	}
}

// Rank returns the position of s in the total order, 0 for an unknown band.
func (s Severity) Rank() int {
	switch s {
	case SeverityMinor:
		return 1
	case SeverityModerate:
		return 2
	case SeverityMajor:
		return 3
	case SeverityCritical:
		return 4
	default:
		return 0
	}
}

// Weight returns the contribution of one alert of this severity to the overall risk score.
func (s Severity) Weight() int {
	switch s {
	case SeverityMinor:
		return 5
	case SeverityModerate:
		return 10
	case SeverityMajor:
		return 20
	case SeverityCritical:
		return 40
	default:
		return 0
	}
}

// AtLeast reports whether s ranks at or above other.
func (s Severity) AtLeast(other Severity) bool {
	return s.Rank() >= other.Rank()
}

// String returns the string representation of the severity.
func (s Severity) String() string {
	return string(s)
}

// ParseSeverity parses a severity band case-insensitively.
func ParseSeverity(v string) (Severity, error) {
	s := Severity(strings.ToUpper(strings.TrimSpace(v)))
	if !s.IsValid() {
		return "", fmt.Errorf("%w: unknown severity %q", ErrInvalidInput, v)
	}
	return s, nil
}

// AlertKind tags the nine alert variants.
type AlertKind string

const (
	AlertKindDrugInteraction  AlertKind = "DRUG_INTERACTION"
	AlertKindAllergy          AlertKind = "ALLERGY"
	AlertKindDuplicateTherapy AlertKind = "DUPLICATE_THERAPY"
	AlertKindDosage           AlertKind = "DOSAGE"
	AlertKindPregnancy        AlertKind = "PREGNANCY"
	AlertKindLactation        AlertKind = "LACTATION"
	AlertKindRenal            AlertKind = "RENAL"
	AlertKindHepatic          AlertKind = "HEPATIC"
	AlertKindAge              AlertKind = "AGE"
)

// AlertKinds lists every kind in the fixed order used when flattening results.
var AlertKinds = []AlertKind{
	AlertKindDrugInteraction,
	AlertKindAllergy,
	AlertKindDuplicateTherapy,
	AlertKindDosage,
	AlertKindPregnancy,
	AlertKindLactation,
	AlertKindRenal,
	AlertKindHepatic,
	AlertKindAge,
}

func (k AlertKind) String() string {
	return string(k)
}

// Onset describes how quickly an interaction manifests.
type Onset string

const (
	OnsetRapid   Onset = "RAPID"
	OnsetDelayed Onset = "DELAYED"
)

// HepaticFunction is the graded hepatic function of a patient.
type HepaticFunction string

const (
	HepaticNormal   HepaticFunction = "NORMAL"
	HepaticMild     HepaticFunction = "MILD"
	HepaticModerate HepaticFunction = "MODERATE"
	HepaticSevere   HepaticFunction = "SEVERE"
)

// IsValid reports whether h is a known grade. The empty value means "not supplied".
func (h HepaticFunction) IsValid() bool {
	switch h {
	case HepaticNormal, HepaticMild, HepaticModerate, HepaticSevere:
		return true
	default:
		return false
	}
}

// IsImpaired reports whether h is any grade below normal.
func (h HepaticFunction) IsImpaired() bool {
	return h == HepaticMild || h == HepaticModerate || h == HepaticSevere
}

// Population is a contraindication category on a drug record.
type Population string

const (
	PopulationPregnancy Population = "PREGNANCY"
	PopulationLactation Population = "LACTATION"
	PopulationRenal     Population = "RENAL"
	PopulationHepatic   Population = "HEPATIC"
	PopulationPediatric Population = "PEDIATRIC"
	PopulationGeriatric Population = "GERIATRIC"
)

// AlertKind maps a population category to the alert kind it produces.
func (p Population) AlertKind() AlertKind {
	switch p {
	case PopulationPregnancy:
		return AlertKindPregnancy
	case PopulationLactation:
		return AlertKindLactation
	case PopulationRenal:
		return AlertKindRenal
	case PopulationHepatic:
		return AlertKindHepatic
	default:
		return AlertKindAge
	}
}

// DosageDirection distinguishes high-dose from low-dose alerts.
type DosageDirection string

const (
	DosageHigh DosageDirection = "HIGH"
	DosageLow  DosageDirection = "LOW"
)

// Reaction severities recorded on allergy entries.
const (
	ReactionMild        = "MILD"
	ReactionModerate    = "MODERATE"
	ReactionSevere      = "SEVERE"
	ReactionAnaphylaxis = "ANAPHYLAXIS"
)

// IsAnaphylactic reports whether a recorded reaction severity denotes anaphylaxis.
func IsAnaphylactic(reaction string) bool {
	return strings.HasPrefix(strings.ToUpper(strings.TrimSpace(reaction)), "ANAPHYLA")
}
