// terms.go - Vorberechnete Terme des Diffusionsprozesses
//
// Dieses Modul enthaelt:
// - Terms: alle aus der Beta-Sequenz abgeleiteten Groessen
// - ComputeTerms: einmalige Ableitung pro Generierungslauf
package diffusion

import (
	"fmt"
	"math"
)

// Terms caches every closed-form quantity both samplers need. All fields
// are index-aligned with the beta sequence and derived from it alone:
// recomputing from the same betas reproduces identical values. Terms are
// immutable after construction and safe to share across concurrent runs.
type Terms struct {
	Betas []float64

	// Alphas is 1 - beta, elementwise.
	Alphas []float64

	// AlphasCumprod is the running product of Alphas up to each index;
	// AlphasCumprodPrev is the same product shifted by one, with
	// AlphasCumprodPrev[0] = 1.
	AlphasCumprod     []float64
	AlphasCumprodPrev []float64

	SqrtAlphasCumprod         []float64
	SqrtOneMinusAlphasCumprod []float64
	SqrtRecipAlphas           []float64

	// PosteriorVariance is the variance of the true reverse distribution,
	// beta_t * (1 - acp_{t-1}) / (1 - acp_t). Zero at index 0.
	PosteriorVariance []float64
}

// Timesteps returns T.
func (tm *Terms) Timesteps() int {
	return len(tm.Betas)
}

// ComputeTerms derives the term cache from a beta sequence. Everything is
// computed in float64 so the cumulative products near t=0 (close to 1) and
// near t=T-1 (close to 0) survive square roots and reciprocals.
func ComputeTerms(betas []float64) (*Terms, error) {
	if len(betas) == 0 {
		return nil, fmt.Errorf("%w: empty beta sequence", ErrInvalidConfiguration)
	}

	n := len(betas)
	tm := &Terms{
		Betas:                     append([]float64(nil), betas...),
		Alphas:                    make([]float64, n),
		AlphasCumprod:             make([]float64, n),
		AlphasCumprodPrev:         make([]float64, n),
		SqrtAlphasCumprod:         make([]float64, n),
		SqrtOneMinusAlphasCumprod: make([]float64, n),
		SqrtRecipAlphas:           make([]float64, n),
		PosteriorVariance:         make([]float64, n),
	}

	cumprod := 1.0
	for i, beta := range betas {
		if beta <= 0 || beta >= 1 {
			return nil, fmt.Errorf("%w: beta[%d]=%g outside (0,1)", ErrInvalidConfiguration, i, beta)
		}

		alpha := 1 - beta
		tm.Alphas[i] = alpha

		tm.AlphasCumprodPrev[i] = cumprod
		cumprod *= alpha
		tm.AlphasCumprod[i] = cumprod

		tm.SqrtAlphasCumprod[i] = math.Sqrt(cumprod)
		tm.SqrtOneMinusAlphasCumprod[i] = math.Sqrt(1 - cumprod)
		tm.SqrtRecipAlphas[i] = 1 / math.Sqrt(alpha)
		tm.PosteriorVariance[i] = beta * (1 - tm.AlphasCumprodPrev[i]) / (1 - cumprod)
	}

	if err := tm.check(); err != nil {
		return nil, err
	}
	return tm, nil
}

// check scans every derived field for NaN/Inf.
func (tm *Terms) check() error {
	fields := map[string][]float64{
		"alphas":                        tm.Alphas,
		"alphas_cumprod":                tm.AlphasCumprod,
		"alphas_cumprod_prev":           tm.AlphasCumprodPrev,
		"sqrt_alphas_cumprod":           tm.SqrtAlphasCumprod,
		"sqrt_one_minus_alphas_cumprod": tm.SqrtOneMinusAlphasCumprod,
		"sqrt_recip_alphas":             tm.SqrtRecipAlphas,
		"posterior_variance":            tm.PosteriorVariance,
	}
	for name, vs := range fields {
		for i, v := range vs {
			if math.IsNaN(v) || math.IsInf(v, 0) {
				return fmt.Errorf("%w: %s[%d]=%g", ErrNumericInstability, name, i, v)
			}
		}
	}
	return nil
}
