// schedule.go - Beta-Schedules fuer den Vorwaertsprozess
//
// Dieses Modul enthaelt:
// - SchedulePolicy: linear und cosine
// - BetaSchedule: Erzeugt die Beta-Sequenz der Laenge T
package diffusion

import (
	"fmt"
	"math"
)

// SchedulePolicy selects the closed-form beta construction.
type SchedulePolicy string

const (
	ScheduleLinear SchedulePolicy = "linear"
	ScheduleCosine SchedulePolicy = "cosine"
)

const (
	// Linear schedule bounds, end-inclusive.
	LinearBetaStart = 1e-4
	LinearBetaEnd   = 2e-2

	// Cosine schedule offset and clip bound (Nichol & Dhariwal).
	cosineOffset  = 0.008
	cosineBetaMax = 0.999
)

// ParsePolicy maps a metadata string onto a SchedulePolicy.
func ParsePolicy(s string) (SchedulePolicy, error) {
	switch SchedulePolicy(s) {
	case ScheduleLinear, ScheduleCosine:
		return SchedulePolicy(s), nil
	case "":
		return ScheduleLinear, nil
	}
	return "", fmt.Errorf("%w: unknown beta schedule %q", ErrInvalidConfiguration, s)
}

// BetaSchedule builds the per-step noise variance sequence of length
// timesteps. Index 0 is the first forward-diffusion step. All values lie
// strictly inside (0,1).
func BetaSchedule(policy SchedulePolicy, timesteps int) ([]float64, error) {
	if timesteps <= 0 {
		return nil, fmt.Errorf("%w: timesteps must be positive, got %d", ErrInvalidConfiguration, timesteps)
	}

	switch policy {
	case ScheduleLinear:
		return linearBetas(timesteps), nil
	case ScheduleCosine:
		return cosineBetas(timesteps), nil
	}
	return nil, fmt.Errorf("%w: unknown beta schedule %q", ErrInvalidConfiguration, policy)
}

// linearBetas interpolates end-inclusive between the two bounds.
func linearBetas(timesteps int) []float64 {
	betas := make([]float64, timesteps)
	if timesteps == 1 {
		betas[0] = LinearBetaStart
		return betas
	}
	step := (LinearBetaEnd - LinearBetaStart) / float64(timesteps-1)
	for i := range betas {
		betas[i] = LinearBetaStart + float64(i)*step
	}
	return betas
}

// cosineBetas derives betas from the cosine cumulative-alpha curve
// f(t) = cos^2(((t/T + s)/(1 + s)) * pi/2), beta_t = 1 - f(t+1)/f(t),
// clipped so downstream reciprocals stay finite.
func cosineBetas(timesteps int) []float64 {
	f := func(t float64) float64 {
		x := (t/float64(timesteps) + cosineOffset) / (1 + cosineOffset) * math.Pi / 2
		c := math.Cos(x)
		return c * c
	}

	betas := make([]float64, timesteps)
	for i := range betas {
		beta := 1 - f(float64(i+1))/f(float64(i))
		betas[i] = min(beta, cosineBetaMax)
	}
	return betas
}
