package service

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/medication-safety-cds/internal/domain"
)

// ParsedDosage is the numeric prefix of a free-form dosage string.
type ParsedDosage struct {
	Amount float64
	Unit   string // lower-cased, empty when absent
}

var (
	dosagePattern = regexp.MustCompile(`^\s*(\d{1,3}(?:,\d{3})+(?:\.\d+)?|\d+(?:\.\d+)?|\.\d+)\s*([a-zA-Zµμ]+)?`)

	// Digits left over after the amount, as in "2,5mg" or "2,0000mg".
	leftoverDigits = regexp.MustCompile(`^,?\d`)
)

// ParseDosage extracts the leading amount and optional unit from strings such as
// "500mg", "2.5 mg", "2,000 mg" or "1 g BID".
func ParseDosage(dosage string) (ParsedDosage, error) {
	m := dosagePattern.FindStringSubmatchIndex(dosage)
	if m == nil || leftoverDigits.MatchString(dosage[m[3]:]) {
		return ParsedDosage{}, fmt.Errorf("%w: unparseable dosage %q", domain.ErrInvalidInput, dosage)
	}
	number := strings.ReplaceAll(dosage[m[2]:m[3]], ",", "")
	var unit string
	if m[4] >= 0 {
		unit = dosage[m[4]:m[5]]
	}
	amount, err := strconv.ParseFloat(number, 64)
	if err != nil {
		return ParsedDosage{}, fmt.Errorf("%w: unparseable dosage %q", domain.ErrInvalidInput, dosage)
	}
	return ParsedDosage{Amount: amount, Unit: strings.ToLower(unit)}, nil
}

// massUnits maps a mass unit to its size in milligrams.
var massUnits = map[string]float64{
	"g":   1000,
	"gm":  1000,
	"mg":  1,
	"mcg": 0.001,
	"µg":  0.001,
	"μg":  0.001,
	"ug":  0.001,
}

// ConvertAmount converts amount from one unit to another. An empty source unit is taken
// to be the target unit. Non-mass units only convert to themselves.
func ConvertAmount(amount float64, from, to string) (float64, error) {
	from, to = strings.ToLower(strings.TrimSpace(from)), strings.ToLower(strings.TrimSpace(to))
	if from == "" || from == to {
		return amount, nil
	}
	fromMg, okFrom := massUnits[from]
	toMg, okTo := massUnits[to]
	if !okFrom || !okTo {
		return 0, fmt.Errorf("%w: cannot convert %s to %s", domain.ErrInvalidInput, from, to)
	}
	return amount * fromMg / toMg, nil
}
