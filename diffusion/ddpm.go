// ddpm.go - Stochastischer DDPM-Rueckwaertsschritt
//
// Dieses Modul enthaelt:
// - DDPMStep: posterior mean + skaliertes Frischrauschen
package diffusion

import (
	"fmt"
	"math"

	"github.com/pdevine/tensor"
)

// DDPMStep computes x_{t-1} from x_t and the predicted noise eps:
//
//	mean = 1/sqrt(alpha_t) * (x_t - beta_t/sqrt(1-acp_t) * eps)
//	x_{t-1} = mean + sqrt(posterior_variance_t) * z
//
// z must be nil at the terminal step (t=0 in a full trajectory); the result
// is then exactly the posterior mean. x and eps are not mutated.
func DDPMStep(tm *Terms, x, eps *Image, t int, z []float32) (*Image, error) {
	if t < 0 || t >= tm.Timesteps() {
		return nil, fmt.Errorf("%w: timestep %d outside [0,%d)", ErrInvalidConfiguration, t, tm.Timesteps())
	}

	xs, es := x.Float32s(), eps.Float32s()
	if len(xs) != len(es) {
		return nil, fmt.Errorf("%w: noise prediction has %d elements, image has %d", ErrInvalidConfiguration, len(es), len(xs))
	}
	if z != nil && len(z) != len(xs) {
		return nil, fmt.Errorf("%w: noise draw has %d elements, image has %d", ErrInvalidConfiguration, len(z), len(xs))
	}

	recip := tm.SqrtRecipAlphas[t]
	epsCoef := tm.Betas[t] / tm.SqrtOneMinusAlphasCumprod[t]
	sigma := math.Sqrt(tm.PosteriorVariance[t])

	out := make([]float32, len(xs))
	for i := range xs {
		v := recip * (float64(xs[i]) - epsCoef*float64(es[i]))
		if z != nil {
			v += sigma * float64(z[i])
		}
		out[i] = float32(v)
	}

	return tensor.New(tensor.WithShape(x.Shape()...), tensor.WithBacking(out)), nil
}
