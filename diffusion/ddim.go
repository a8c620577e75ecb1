// ddim.go - Impliziter DDIM-Rueckwaertsschritt
//
// Dieses Modul enthaelt:
// - DDIMStep: deterministischer Schritt mit frei waehlbarem Zielindex
package diffusion

import (
	"fmt"
	"math"

	"github.com/pdevine/tensor"
)

// DDIMStep computes x_{tPrev} from x_t and the predicted noise eps. Unlike
// DDPM the step size is decoupled from 1: tPrev may skip indices, which is
// what makes accelerated trajectories work on the same term cache. tPrev
// must be less than t; tPrev < 0 targets the fully-denoised endpoint
// (cumulative alpha 1).
//
// eta controls stochasticity: 0 is fully deterministic, 1 recovers the
// DDPM posterior variance. z is only consulted when eta > 0.
func DDIMStep(tm *Terms, x, eps *Image, t, tPrev int, eta float64, z []float32) (*Image, error) {
	if t < 0 || t >= tm.Timesteps() {
		return nil, fmt.Errorf("%w: timestep %d outside [0,%d)", ErrInvalidConfiguration, t, tm.Timesteps())
	}
	if tPrev >= t {
		return nil, fmt.Errorf("%w: target timestep %d not below current %d", ErrInvalidConfiguration, tPrev, t)
	}
	// Outside [0,1] the direction radicand 1-acPrev-sigma^2 can go
	// negative and the step would silently produce NaNs.
	if eta < 0 || eta > 1 {
		return nil, fmt.Errorf("%w: eta %g outside [0,1]", ErrInvalidConfiguration, eta)
	}

	xs, es := x.Float32s(), eps.Float32s()
	if len(xs) != len(es) {
		return nil, fmt.Errorf("%w: noise prediction has %d elements, image has %d", ErrInvalidConfiguration, len(es), len(xs))
	}

	ac := tm.AlphasCumprod[t]
	acPrev := 1.0
	if tPrev >= 0 {
		acPrev = tm.AlphasCumprod[tPrev]
	}

	// sigma_t per Song et al.; eta=1 makes sigma^2 the DDPM posterior
	// variance for adjacent steps.
	sigma := eta * math.Sqrt((1-acPrev)/(1-ac)) * math.Sqrt(1-ac/acPrev)
	if sigma > 0 && z == nil {
		return nil, fmt.Errorf("%w: eta=%g requires a noise draw", ErrInvalidConfiguration, eta)
	}
	if z != nil && len(z) != len(xs) {
		return nil, fmt.Errorf("%w: noise draw has %d elements, image has %d", ErrInvalidConfiguration, len(z), len(xs))
	}

	sqrtAc := tm.SqrtAlphasCumprod[t]
	sqrtOneMinusAc := tm.SqrtOneMinusAlphasCumprod[t]
	sqrtAcPrev := math.Sqrt(acPrev)
	dirCoef := math.Sqrt(1 - acPrev - sigma*sigma)

	out := make([]float32, len(xs))
	for i := range xs {
		// Recover the fully-denoised estimate, then recombine at tPrev.
		x0 := (float64(xs[i]) - sqrtOneMinusAc*float64(es[i])) / sqrtAc
		v := sqrtAcPrev*x0 + dirCoef*float64(es[i])
		if sigma > 0 && z != nil {
			v += sigma * float64(z[i])
		}
		out[i] = float32(v)
	}

	return tensor.New(tensor.WithShape(x.Shape()...), tensor.WithBacking(out)), nil
}
