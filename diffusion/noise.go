// noise.go - Gauss-Rauschen fuer Initialisierung und Sampler
//
// Dieses Modul enthaelt:
// - NewNoiseSource: seedbare Normalverteilungs-Quelle
// - InitNoise: Start-Tensor x_T fuer die Rueckwaerts-Trajektorie
package diffusion

import (
	"math/rand/v2"

	"github.com/pdevine/tensor"
)

// NoiseSource draws independent standard-normal samples. A fixed seed
// reproduces the same trajectory.
type NoiseSource struct {
	rng *rand.Rand
}

// NewNoiseSource returns a source seeded with seed.
func NewNoiseSource(seed int64) *NoiseSource {
	return &NoiseSource{rng: rand.New(rand.NewPCG(uint64(seed), uint64(seed)^0x9e3779b97f4a7c15))}
}

// Normal fills dst with standard-normal samples.
func (s *NoiseSource) Normal(dst []float32) {
	for i := range dst {
		dst[i] = float32(s.rng.NormFloat64())
	}
}

// InitNoise allocates the initial pure-noise image tensor with the given
// NCHW shape.
func (s *NoiseSource) InitNoise(shape ...int) *Image {
	n := 1
	for _, d := range shape {
		n *= d
	}
	data := make([]float32, n)
	s.Normal(data)
	return tensor.New(tensor.WithShape(shape...), tensor.WithBacking(data))
}
