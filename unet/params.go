// params.go - Parameter-Registry, Initialisierung und GGUF-Anbindung
//
// Dieses Modul enthaelt:
// - Params: alle benannten Tensoren des Modells in fester Reihenfolge
// - Init: Zufallsinitialisierung fuer neue Modelle
// - LoadTensors / SaveTensors: Abgleich mit einem GGUF-File
package unet

import (
	"fmt"
	"io"
	"math/rand/v2"

	"github.com/vlabs/artemis/fs/gguf"
)

// Param is one named weight tensor backed by the live model slice.
type Param struct {
	Name  string
	Shape []uint64
	Data  []float32
}

func (c *Conv2D) params(prefix string) []Param {
	return []Param{
		{prefix + ".weight", []uint64{uint64(c.Out), uint64(c.In), uint64(c.Kernel), uint64(c.Kernel)}, c.Weight},
		{prefix + ".bias", []uint64{uint64(c.Out)}, c.Bias},
	}
}

func (l *Linear) params(prefix string) []Param {
	return []Param{
		{prefix + ".weight", []uint64{uint64(l.Out), uint64(l.In)}, l.Weight},
		{prefix + ".bias", []uint64{uint64(l.Out)}, l.Bias},
	}
}

func (g *GroupNorm) params(prefix string) []Param {
	return []Param{
		{prefix + ".weight", []uint64{uint64(g.Channels)}, g.Gamma},
		{prefix + ".bias", []uint64{uint64(g.Channels)}, g.Beta},
	}
}

func (b *ResBlock) params(prefix string) []Param {
	ps := b.Norm1.params(prefix + ".norm1")
	ps = append(ps, b.Conv1.params(prefix+".conv1")...)
	ps = append(ps, b.Emb.params(prefix+".emb")...)
	ps = append(ps, b.Norm2.params(prefix+".norm2")...)
	ps = append(ps, b.Conv2.params(prefix+".conv2")...)
	if b.Skip != nil {
		ps = append(ps, b.Skip.params(prefix+".skip")...)
	}
	return ps
}

// Params lists every weight tensor in deterministic order.
func (m *Model) Params() []Param {
	ps := m.TimeMLP1.params("time_embed.0")
	ps = append(ps, m.TimeMLP2.params("time_embed.2")...)
	ps = append(ps, Param{"label_embed.weight", []uint64{uint64(m.Label.Rows), uint64(m.Label.Dim)}, m.Label.Weight})
	ps = append(ps, m.InConv.params("conv_in")...)
	for i, lvl := range m.Enc {
		ps = append(ps, lvl.Res.params(fmt.Sprintf("enc.%d.res", i))...)
		if lvl.Down != nil {
			ps = append(ps, lvl.Down.params(fmt.Sprintf("enc.%d.down", i))...)
		}
	}
	for i, b := range m.Mid {
		ps = append(ps, b.params(fmt.Sprintf("mid.%d", i))...)
	}
	for i, lvl := range m.Dec {
		ps = append(ps, lvl.Res.params(fmt.Sprintf("dec.%d.res", i))...)
		if lvl.Up != nil {
			ps = append(ps, lvl.Up.params(fmt.Sprintf("dec.%d.up", i))...)
		}
	}
	ps = append(ps, m.OutNorm.params("out_norm")...)
	ps = append(ps, m.OutConv.params("conv_out")...)
	return ps
}

// ParameterCount returns the total number of weights.
func (m *Model) ParameterCount() uint64 {
	var n uint64
	for _, p := range m.Params() {
		n += uint64(len(p.Data))
	}
	return n
}

// Init fills the model with seeded random weights: He-scaled normals for
// convolutions and linears, a small normal for the embedding table, and a
// zeroed output convolution so a fresh model starts from the identity
// noise estimate.
func (m *Model) Init(seed int64) {
	rng := rand.New(rand.NewPCG(uint64(seed), 0x6d69786572))

	fill := func(data []float32, fanIn int) {
		std := 1.0
		if fanIn > 0 {
			std = 1.41421356 / float64(fanIn)
		}
		for i := range data {
			data[i] = float32(rng.NormFloat64() * std)
		}
	}

	for _, lvl := range append([]*Conv2D{m.InConv, m.OutConv}, m.convs()...) {
		fill(lvl.Weight, lvl.In*lvl.Kernel*lvl.Kernel)
	}
	for _, l := range []*Linear{m.TimeMLP1, m.TimeMLP2} {
		fill(l.Weight, l.In)
	}
	for _, b := range m.resBlocks() {
		fill(b.Emb.Weight, b.Emb.In)
	}
	for i := range m.Label.Weight {
		m.Label.Weight[i] = float32(rng.NormFloat64() * 0.02)
	}
	clear(m.OutConv.Weight)
}

// convs lists the convolutions inside blocks and resampling stages.
func (m *Model) convs() []*Conv2D {
	var cs []*Conv2D
	for _, b := range m.resBlocks() {
		cs = append(cs, b.Conv1, b.Conv2)
		if b.Skip != nil {
			cs = append(cs, b.Skip)
		}
	}
	for _, lvl := range m.Enc {
		if lvl.Down != nil {
			cs = append(cs, lvl.Down)
		}
	}
	for _, lvl := range m.Dec {
		if lvl.Up != nil {
			cs = append(cs, lvl.Up)
		}
	}
	return cs
}

// LoadTensors fills the model from a decoded model file.
func (m *Model) LoadTensors(f *gguf.File, rs io.ReadSeeker) error {
	for _, p := range m.Params() {
		t, ok := f.TensorByName(p.Name)
		if !ok {
			return fmt.Errorf("model file is missing tensor %q", p.Name)
		}
		data, err := f.ReadTensor(rs, t)
		if err != nil {
			return err
		}
		if len(data) != len(p.Data) {
			return fmt.Errorf("tensor %q has %d elements, expected %d", p.Name, len(data), len(p.Data))
		}
		copy(p.Data, data)
	}
	return nil
}

// Tensors returns the GGUF tensors for saving.
func (m *Model) Tensors() []*gguf.Tensor {
	var ts []*gguf.Tensor
	for _, p := range m.Params() {
		ts = append(ts, gguf.NewTensor(p.Name, p.Shape, p.Data))
	}
	return ts
}

// KV returns the metadata record persisted next to the tensors.
func (m *Model) KV() gguf.KV {
	return gguf.KV{
		"general.architecture": "unet",
		"unet.image_size":      uint32(m.ImageSize),
		"unet.channels":        uint32(m.Channels),
		"unet.class_count":     uint32(m.ClassCount),
		"unet.base_channels":   uint32(m.BaseChannels),
	}
}
