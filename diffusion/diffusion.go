// Package diffusion implements the numeric core of the Artemis image
// pipeline: beta schedules, the precomputed diffusion term cache, and the
// DDPM/DDIM reverse samplers driving a noise-prediction network.
//
// diffusion.go - Kern-Vertraege des Pakets
//
// Dieses Modul enthaelt:
// - Denoiser: Vertrag des Rauschvorhersage-Netzwerks
// - Conditioning: optionales Klassen-/Textsignal
package diffusion

import (
	"github.com/pdevine/tensor"
)

// Image is the evolving sample: a float32 NCHW dense tensor. The alias
// keeps the sampler signatures readable without hiding the tensor engine.
type Image = tensor.Dense

// ClassUnconditional marks the absence of a conditioning signal. The
// network maps it onto a dedicated null-class embedding, so sampler code
// never special-cases unconditional generation.
const ClassUnconditional = -1

// Conditioning is the signal accompanying the image through the network.
type Conditioning struct {
	Class int
}

// Unconditional reports whether no class signal is attached.
func (c Conditioning) Unconditional() bool {
	return c.Class < 0
}

// Denoiser is the noise-prediction network contract. PredictNoise must
// return a tensor of identical shape to x and be deterministic per call at
// inference time. The tensor handed in is owned by the sampling loop; the
// network must not retain or mutate it.
type Denoiser interface {
	PredictNoise(x *Image, timestep int, cond Conditioning) (*Image, error)
}
