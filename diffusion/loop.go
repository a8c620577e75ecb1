// loop.go - Rueckwaerts-Sampling-Schleife
//
// Dieses Modul enthaelt:
// - Run: vollstaendige Trajektorie ueber einen Zeitplan
// - Trajectory: iter.Seq2-Sicht auf die Zwischenschritte
package diffusion

import (
	"context"
	"fmt"
	"iter"
	"log/slog"
	"math"
)

// SamplerKind selects the reverse update rule.
type SamplerKind string

const (
	SamplerDDPM SamplerKind = "ddpm"
	SamplerDDIM SamplerKind = "ddim"
)

// ParseSampler maps a request string onto a SamplerKind.
func ParseSampler(s string) (SamplerKind, error) {
	switch SamplerKind(s) {
	case SamplerDDPM, SamplerDDIM:
		return SamplerKind(s), nil
	case "":
		return SamplerDDIM, nil
	}
	return "", fmt.Errorf("%w: unknown sampler %q", ErrInvalidConfiguration, s)
}

// Run drives one full reverse trajectory. It owns the evolving image
// tensor: the network only ever sees it for a single forward pass.
type Run struct {
	Terms    *Terms
	Denoiser Denoiser
	Sampler  SamplerKind

	// Timesteps is the caller-supplied time schedule, strictly decreasing.
	// It need not visit every index; strided subsets give accelerated DDIM
	// trajectories.
	Timesteps []int

	// Eta is the DDIM stochasticity knob; ignored by DDPM.
	Eta float64

	Cond  Conditioning
	Noise *NoiseSource

	// Progress, when set, receives (completed, total) after every step. It
	// must not block; delivery failures never abort generation.
	Progress func(step, total int)
}

// validate fails fast, before any network call.
func (r *Run) validate() error {
	if r.Terms == nil || r.Denoiser == nil {
		return fmt.Errorf("%w: run needs terms and a denoiser", ErrInvalidConfiguration)
	}
	if len(r.Timesteps) == 0 {
		return fmt.Errorf("%w: empty time schedule", ErrInvalidConfiguration)
	}
	prev := r.Terms.Timesteps()
	for i, t := range r.Timesteps {
		if t < 0 || t >= r.Terms.Timesteps() {
			return fmt.Errorf("%w: timestep %d outside [0,%d)", ErrInvalidConfiguration, t, r.Terms.Timesteps())
		}
		if t >= prev {
			return fmt.Errorf("%w: time schedule not strictly decreasing at position %d", ErrInvalidConfiguration, i)
		}
		prev = t
	}
	kind, err := ParseSampler(string(r.Sampler))
	if err != nil {
		return err
	}
	r.Sampler = kind
	if r.Sampler == SamplerDDPM {
		// The DDPM posterior is only defined between adjacent indices;
		// strided schedules belong to DDIM.
		for i := 1; i < len(r.Timesteps); i++ {
			if r.Timesteps[i-1]-r.Timesteps[i] != 1 {
				return fmt.Errorf("%w: ddpm needs adjacent timesteps, schedule jumps from %d to %d",
					ErrInvalidConfiguration, r.Timesteps[i-1], r.Timesteps[i])
			}
		}
	}
	if r.Noise == nil {
		r.Noise = NewNoiseSource(0)
	}
	return nil
}

// Sample runs the schedule to completion starting from x (pure noise) and
// returns the final tensor. On cancellation the best-effort current tensor
// is returned together with ErrCancelled.
func (r *Run) Sample(ctx context.Context, x *Image) (*Image, error) {
	if err := r.validate(); err != nil {
		return nil, err
	}

	total := len(r.Timesteps)
	for i := range r.Timesteps {
		select {
		case <-ctx.Done():
			slog.Debug("sampling cancelled", "completed", i, "total", total)
			return x, ErrCancelled
		default:
		}

		next, err := r.step(x, i)
		if err != nil {
			return nil, err
		}
		x = next

		if r.Progress != nil {
			r.Progress(i+1, total)
		}
	}
	return x, nil
}

// Trajectory exposes the loop as a lazy, finite, non-restartable sequence
// of (position, tensor) pairs. Consuming the whole sequence is batch mode;
// breaking out of the range is the interactive-cancel pattern. The error
// from a partial or failed walk is available from errp after iteration.
func (r *Run) Trajectory(ctx context.Context, x *Image, errp *error) iter.Seq2[int, *Image] {
	return func(yield func(int, *Image) bool) {
		if err := r.validate(); err != nil {
			*errp = err
			return
		}
		for i := range r.Timesteps {
			select {
			case <-ctx.Done():
				*errp = ErrCancelled
				return
			default:
			}
			next, err := r.step(x, i)
			if err != nil {
				*errp = err
				return
			}
			x = next
			if r.Progress != nil {
				r.Progress(i+1, len(r.Timesteps))
			}
			if !yield(i, x) {
				return
			}
		}
	}
}

// step runs the network once and applies the configured sampler.
func (r *Run) step(x *Image, pos int) (*Image, error) {
	t := r.Timesteps[pos]
	last := pos == len(r.Timesteps)-1

	eps, err := r.Denoiser.PredictNoise(x, t, r.Cond)
	if err != nil {
		return nil, fmt.Errorf("predict noise at t=%d: %w", t, err)
	}

	var next *Image
	switch r.Sampler {
	case SamplerDDPM:
		// No fresh noise at the terminal step: the result is the posterior
		// mean exactly.
		var z []float32
		if !last {
			z = make([]float32, len(x.Float32s()))
			r.Noise.Normal(z)
		}
		next, err = DDPMStep(r.Terms, x, eps, t, z)
	case SamplerDDIM:
		tPrev := -1
		if !last {
			tPrev = r.Timesteps[pos+1]
		}
		var z []float32
		if r.Eta > 0 && !last {
			z = make([]float32, len(x.Float32s()))
			r.Noise.Normal(z)
		}
		next, err = DDIMStep(r.Terms, x, eps, t, tPrev, r.Eta, z)
	}
	if err != nil {
		return nil, err
	}

	if err := checkFinite(next.Float32s()); err != nil {
		return nil, fmt.Errorf("%w at t=%d", err, t)
	}
	return next, nil
}

// checkFinite guards each intermediate tensor against silent corruption.
func checkFinite(vs []float32) error {
	for _, v := range vs {
		f := float64(v)
		if math.IsNaN(f) || math.IsInf(f, 0) {
			return ErrNumericInstability
		}
	}
	return nil
}

// UniformSchedule spreads count timesteps evenly over [0, timesteps) in
// decreasing order, always ending at 0. count larger than timesteps is
// truncated to the full trajectory.
func UniformSchedule(timesteps, count int) []int {
	if count <= 0 || count > timesteps {
		count = timesteps
	}
	schedule := make([]int, 0, count)
	seen := -1
	for i := range count {
		t := (count - 1 - i) * (timesteps - 1) / max(count-1, 1)
		if t == seen {
			continue
		}
		seen = t
		schedule = append(schedule, t)
	}
	if len(schedule) == 0 || schedule[len(schedule)-1] != 0 {
		schedule = append(schedule, 0)
	}
	return schedule
}
