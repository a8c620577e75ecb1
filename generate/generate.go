// Package generate - Orchestrierung einer Bild-Generierung
//
// Dieses Modul enthaelt:
// - Generator: bindet Modell, Terme und Sampling-Schleife zusammen
// - Options/Result: Parameter und Ergebnis einer Generierung
// - Parallele Sample-Ketten via errgroup
package generate

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/pdevine/tensor"
	"golang.org/x/sync/errgroup"

	"github.com/vlabs/artemis/diffusion"
	"github.com/vlabs/artemis/store"
)

// Options are the knobs of one generation request.
type Options struct {
	Class   *int   // nil = unconditional
	Batch   int    // number of samples, default 1
	Seed    *int64 // nil = time-derived seed
	Steps   int    // denoising steps, 0 = the model's full schedule
	Sampler string // "ddpm" or "ddim", default ddim
	Eta     float64
}

// Result is a finished generation: one NCHW tensor holding the batch.
// On cancellation Output is nil but the identifying fields are set.
type Result struct {
	ID       string
	Seed     int64
	Output   *diffusion.Image
	Steps    int
	Sampler  diffusion.SamplerKind
	Duration time.Duration
}

// Generator runs the sampling loop of one loaded model. The diffusion
// terms are computed once at construction and shared by all generations.
type Generator struct {
	model *store.Model
	terms *diffusion.Terms
}

// New prepares a generator for a loaded model.
func New(m *store.Model) (*Generator, error) {
	md := m.Metadata
	betas, err := diffusion.BetaSchedule(md.BetaSchedule, md.Timesteps)
	if err != nil {
		return nil, fmt.Errorf("model %q: %w", m.Name, err)
	}
	terms, err := diffusion.ComputeTerms(betas)
	if err != nil {
		return nil, fmt.Errorf("model %q: %w", m.Name, err)
	}
	return &Generator{model: m, terms: terms}, nil
}

// Terms exposes the precomputed diffusion terms.
func (g *Generator) Terms() *diffusion.Terms { return g.terms }

// validate resolves defaults and rejects bad options before any network
// evaluation happens.
func (g *Generator) validate(opts *Options) (diffusion.SamplerKind, diffusion.Conditioning, error) {
	sampler, err := diffusion.ParseSampler(opts.Sampler)
	if err != nil {
		return "", diffusion.Conditioning{}, err
	}

	cond := diffusion.Conditioning{Class: diffusion.ClassUnconditional}
	if opts.Class != nil {
		c := *opts.Class
		if c < 0 || c >= g.model.Metadata.ClassCount {
			return "", cond, fmt.Errorf("%w: class %d outside [0,%d)",
				diffusion.ErrInvalidConfiguration, c, g.model.Metadata.ClassCount)
		}
		cond.Class = c
	}

	if opts.Batch <= 0 {
		opts.Batch = 1
	}

	total := g.model.Metadata.Timesteps
	if opts.Steps <= 0 || opts.Steps > total {
		opts.Steps = total
	}
	if sampler == diffusion.SamplerDDPM && opts.Steps != total {
		return "", cond, fmt.Errorf("%w: ddpm requires all %d steps, got %d",
			diffusion.ErrInvalidConfiguration, total, opts.Steps)
	}

	return sampler, cond, nil
}

// Progress reports completed denoising steps across the whole batch.
type Progress func(done, total int)

// Generate runs one generation. Each batch element denoises on its own
// goroutine with its own seeded noise stream, so results depend only on
// the seed and not on scheduling.
func (g *Generator) Generate(ctx context.Context, opts Options, progress Progress) (*Result, error) {
	sampler, cond, err := g.validate(&opts)
	if err != nil {
		return nil, err
	}

	seed := time.Now().UnixNano()
	if opts.Seed != nil {
		seed = *opts.Seed
	}

	md := g.model.Metadata
	schedule := diffusion.UniformSchedule(md.Timesteps, opts.Steps)

	start := time.Now()
	id := uuid.NewString()
	slog.Info("generation started", "id", id, "model", g.model.Name,
		"sampler", sampler, "steps", opts.Steps, "batch", opts.Batch, "seed", seed)

	totalSteps := opts.Steps * opts.Batch
	var done atomic.Int64

	outputs := make([]*diffusion.Image, opts.Batch)
	grp, gctx := errgroup.WithContext(ctx)
	for i := range opts.Batch {
		grp.Go(func() error {
			noise := diffusion.NewNoiseSource(seed + int64(i))
			run := diffusion.Run{
				Terms:     g.terms,
				Denoiser:  g.model.Net,
				Sampler:   sampler,
				Timesteps: schedule,
				Eta:       opts.Eta,
				Cond:      cond,
				Noise:     noise,
			}
			if progress != nil {
				run.Progress = func(step, total int) {
					progress(int(done.Add(1)), totalSteps)
				}
			}

			x := noise.InitNoise(1, md.Channels, md.ImageSize, md.ImageSize)
			out, err := run.Sample(gctx, x)
			if err != nil {
				return err
			}
			outputs[i] = out
			return nil
		})
	}
	if err := grp.Wait(); err != nil {
		// A cancelled run still identifies itself so callers can log it.
		if errors.Is(err, diffusion.ErrCancelled) || errors.Is(err, context.Canceled) {
			slog.Info("generation cancelled", "id", id, "completed", done.Load(), "total", totalSteps)
			return &Result{
				ID:       id,
				Seed:     seed,
				Steps:    opts.Steps,
				Sampler:  sampler,
				Duration: time.Since(start),
			}, err
		}
		return nil, err
	}

	result := &Result{
		ID:       id,
		Seed:     seed,
		Output:   stackBatch(outputs, md.Channels, md.ImageSize),
		Steps:    opts.Steps,
		Sampler:  sampler,
		Duration: time.Since(start),
	}

	slog.Info("generation finished", "id", id, "duration", result.Duration)
	return result, nil
}

// stackBatch concatenates single-sample tensors into one NCHW batch.
func stackBatch(samples []*diffusion.Image, ch, size int) *diffusion.Image {
	per := ch * size * size
	data := make([]float32, 0, len(samples)*per)
	for _, s := range samples {
		data = append(data, s.Float32s()...)
	}
	return tensor.New(tensor.WithShape(len(samples), ch, size, size), tensor.WithBacking(data))
}
