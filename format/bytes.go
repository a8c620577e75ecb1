// bytes.go - Menschenlesbare Groessenangaben fuer Modelldateien
package format

import "fmt"

const (
	Byte     = 1
	KiloByte = 1000 * Byte
	MegaByte = 1000 * KiloByte
	GigaByte = 1000 * MegaByte
	TeraByte = 1000 * GigaByte
)

// HumanBytes renders b with the largest decimal unit the value exceeds.
func HumanBytes(b int64) string {
	units := []struct {
		size   int64
		suffix string
	}{
		{TeraByte, "TB"},
		{GigaByte, "GB"},
		{MegaByte, "MB"},
		{KiloByte, "KB"},
	}

	for _, u := range units {
		if b > u.size {
			return fmt.Sprintf("%.1f %s", float64(b)/float64(u.size), u.suffix)
		}
	}
	return fmt.Sprintf("%d B", b)
}
