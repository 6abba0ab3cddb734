package predict

import "strings"

// Model labels are composite: plant name, then "___" and the disease part,
// with an optional "_(" variant suffix on the plant name itself.
// e.g. "Strawberry___healthy", "Cherry_(including_sour)___Powdery_mildew".
const (
	classSeparator   = "___"
	variantSeparator = "_("
	healthyMarker    = "healthy"
)

// ParsePlantName extracts the plant portion of a raw model label.
// A label with neither delimiter is returned unchanged.
func ParsePlantName(label string) string {
	name, _, _ := strings.Cut(label, classSeparator)
	name, _, _ = strings.Cut(name, variantSeparator)
	return name
}

// IsHealthy reports whether a predicted label describes a healthy plant.
func IsHealthy(label string) bool {
	return strings.Contains(strings.ToLower(label), healthyMarker)
}

// FilterAlternatives drops alternatives that resolve to the same plant as
// the primary label. Identify mode shows plant names only, so a same-plant
// alternative would duplicate the top answer.
func FilterAlternatives(primary string, alternatives []TopPrediction) []TopPrediction {
	primaryPlant := ParsePlantName(primary)
	filtered := make([]TopPrediction, 0, len(alternatives))
	for _, alt := range alternatives {
		if ParsePlantName(alt.ClassName) == primaryPlant {
			continue
		}
		filtered = append(filtered, alt)
	}
	return filtered
}
