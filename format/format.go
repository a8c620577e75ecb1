package format

import (
	"fmt"
	"math"
)

func HumanNumber(b uint64) string {
	const (
		Thousand = 1000
		Million  = Thousand * 1000
		Billion  = Million * 1000
	)

	switch {
	case b >= Billion:
		return fmt.Sprintf("%sB", decimalPlace(float64(b)/Billion))
	case b >= Million:
		return fmt.Sprintf("%sM", decimalPlace(float64(b)/Million))
	case b >= Thousand:
		return fmt.Sprintf("%sK", decimalPlace(float64(b)/Thousand))
	default:
		return fmt.Sprintf("%d", b)
	}
}

// decimalPlace drops the fraction when the value rounds to an integer.
func decimalPlace(number float64) string {
	if number == math.Floor(number) {
		return fmt.Sprintf("%.0f", number)
	}
	return fmt.Sprintf("%.1f", number)
}
