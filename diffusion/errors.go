// errors.go - Fehler-Definitionen fuer den Diffusionskern
//
// Dieses Modul enthaelt:
// - ErrInvalidConfiguration: Konfigurationsfehler vor Beginn der Arbeit
// - ErrNumericInstability: NaN/Inf in Termen oder Zwischentensoren
// - ErrCancelled: Kooperativer Abbruch, kein Fehlerzustand
package diffusion

import "errors"

var (
	// ErrInvalidConfiguration is returned synchronously, before any
	// expensive work begins: bad timestep counts, empty or non-decreasing
	// schedules, mismatched conditioning cardinality.
	ErrInvalidConfiguration = errors.New("invalid configuration")

	// ErrNumericInstability is returned when NaN or Inf shows up in the
	// diffusion terms or an intermediate tensor. The run aborts immediately
	// since continuing would silently corrupt the output.
	ErrNumericInstability = errors.New("numeric instability")

	// ErrCancelled is a terminal status, not a failure. It is returned
	// together with the best-effort partial tensor so interactive callers
	// can still inspect it.
	ErrCancelled = errors.New("generation cancelled")
)
