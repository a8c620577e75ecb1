// Package unet implements the conditional U-Net noise predictor behind the
// Artemis diffusion pipeline.
//
// unet.go - Modellstruktur und Forward-Pass
//
// Dieses Modul enthaelt:
// - Config: Architektur-Parameter aus den Modell-Metadaten
// - Model: Encoder/Decoder mit Skip-Verbindungen
// - PredictNoise: Denoiser-Vertrag des Diffusionskerns
package unet

import (
	"fmt"
	"math"

	"github.com/pdevine/tensor"

	"github.com/vlabs/artemis/diffusion"
)

// Config describes the network architecture. It is persisted in the model
// file's KV metadata and must match the stored tensors.
type Config struct {
	ImageSize    int
	Channels     int
	BaseChannels int
	ClassCount   int // 0 = unconditional model
}

// Defaulted fills zero fields with the standard layout.
func (c Config) Defaulted() Config {
	if c.Channels == 0 {
		c.Channels = 3
	}
	if c.BaseChannels == 0 {
		c.BaseChannels = 64
	}
	return c
}

// timeDim is the timestep embedding width relative to the base channels.
func (c Config) timeDim() int { return 4 * c.BaseChannels }

// channelMults fixes the encoder widths; the spatial size halves twice, so
// ImageSize must be divisible by 4.
var channelMults = []int{1, 2, 4}

// ResBlock is a residual block with timestep/class injection between its
// two convolutions.
type ResBlock struct {
	In, Out int

	Norm1 *GroupNorm
	Conv1 *Conv2D
	Emb   *Linear // projects the embedding onto Out channels
	Norm2 *GroupNorm
	Conv2 *Conv2D
	Skip  *Conv2D // 1x1, only when In != Out
}

func newResBlock(in, out, groups int) *ResBlock {
	b := &ResBlock{
		In: in, Out: out,
		Norm1: NewGroupNorm(in, groups),
		Conv1: NewConv2D(in, out, 3, 1, 1),
		Emb:   NewLinear(0, 0), // sized by the model
		Norm2: NewGroupNorm(out, groups),
		Conv2: NewConv2D(out, out, 3, 1, 1),
	}
	if in != out {
		b.Skip = NewConv2D(in, out, 1, 1, 0)
	}
	return b
}

// forward runs the block on one CHW sample.
func (b *ResBlock) forward(x []float32, h, w int, emb []float32) []float32 {
	out := b.Conv1.Forward(silu(b.Norm1.Forward(x, h, w)), h, w)

	// Per-channel shift from the conditioning embedding.
	shift := b.Emb.Forward(emb)
	spatial := h * w
	for c := range b.Out {
		s := shift[c]
		row := out[c*spatial : (c+1)*spatial]
		for i := range row {
			row[i] += s
		}
	}

	out = b.Conv2.Forward(silu(b.Norm2.Forward(out, h, w)), h, w)

	res := x
	if b.Skip != nil {
		res = b.Skip.Forward(x, h, w)
	}
	for i := range out {
		out[i] += res[i]
	}
	return out
}

// encLevel is one encoder stage: a residual block and, except at the
// bottom, a strided downsample convolution.
type encLevel struct {
	Res  *ResBlock
	Down *Conv2D
}

// decLevel mirrors an encoder stage: skip concat, residual block and,
// except at the top, a nearest-neighbour upsample followed by a smoothing
// convolution.
type decLevel struct {
	Res *ResBlock
	Up  *Conv2D
}

// Model is the conditional U-Net.
type Model struct {
	Config

	TimeMLP1 *Linear
	TimeMLP2 *Linear
	Label    *Embedding // ClassCount+1 rows, last row is the null class

	InConv *Conv2D
	Enc    []*encLevel
	Mid    [2]*ResBlock
	Dec    []*decLevel

	OutNorm *GroupNorm
	OutConv *Conv2D
}

// New builds an uninitialized model for the configuration. Call Init for a
// fresh random model or LoadTensors to fill it from a model file.
func New(cfg Config) (*Model, error) {
	cfg = cfg.Defaulted()
	if cfg.ImageSize <= 0 || cfg.ImageSize%4 != 0 {
		return nil, fmt.Errorf("%w: image size %d must be a positive multiple of 4", diffusion.ErrInvalidConfiguration, cfg.ImageSize)
	}

	base := cfg.BaseChannels
	groups := min(8, base)
	dim := cfg.timeDim()

	m := &Model{
		Config:   cfg,
		TimeMLP1: NewLinear(base, dim),
		TimeMLP2: NewLinear(dim, dim),
		Label:    NewEmbedding(cfg.ClassCount+1, dim),
		InConv:   NewConv2D(cfg.Channels, base, 3, 1, 1),
		OutNorm:  NewGroupNorm(base, groups),
		OutConv:  NewConv2D(base, cfg.Channels, 3, 1, 1),
	}

	// Encoder: widths base*mult, downsample after all but the last level.
	in := base
	for i, mult := range channelMults {
		out := base * mult
		lvl := &encLevel{Res: newResBlock(in, out, groups)}
		if i < len(channelMults)-1 {
			lvl.Down = NewConv2D(out, out, 3, 2, 1)
		}
		m.Enc = append(m.Enc, lvl)
		in = out
	}

	m.Mid[0] = newResBlock(in, in, groups)
	m.Mid[1] = newResBlock(in, in, groups)

	// Decoder mirrors the encoder; each level consumes the matching skip.
	for i := len(channelMults) - 1; i >= 0; i-- {
		skipCh := base * channelMults[i]
		out := base
		if i > 0 {
			out = base * channelMults[i-1]
		}
		lvl := &decLevel{Res: newResBlock(in+skipCh, out, groups)}
		if i > 0 {
			lvl.Up = NewConv2D(out, out, 3, 1, 1)
		}
		m.Dec = append(m.Dec, lvl)
		in = out
	}

	// Size the embedding projections now that block widths are known.
	for _, b := range m.resBlocks() {
		b.Emb = NewLinear(dim, b.Out)
	}

	return m, nil
}

// resBlocks lists every residual block in network order.
func (m *Model) resBlocks() []*ResBlock {
	var bs []*ResBlock
	for _, lvl := range m.Enc {
		bs = append(bs, lvl.Res)
	}
	bs = append(bs, m.Mid[0], m.Mid[1])
	for _, lvl := range m.Dec {
		bs = append(bs, lvl.Res)
	}
	return bs
}

// timestepEmbedding is the standard sinusoidal position encoding over the
// base channel width.
func (m *Model) timestepEmbedding(t int) []float32 {
	dim := m.BaseChannels
	half := dim / 2
	emb := make([]float32, dim)
	for i := range half {
		freq := math.Exp(-math.Log(10000) * float64(i) / float64(half))
		angle := float64(t) * freq
		emb[i] = float32(math.Sin(angle))
		emb[half+i] = float32(math.Cos(angle))
	}
	return emb
}

// conditioningEmbedding combines timestep and class signals.
func (m *Model) conditioningEmbedding(t int, cond diffusion.Conditioning) []float32 {
	emb := m.TimeMLP2.Forward(silu(m.TimeMLP1.Forward(m.timestepEmbedding(t))))

	row := m.ClassCount // null class
	if !cond.Unconditional() {
		row = cond.Class
	}
	for i, v := range m.Label.Lookup(row) {
		emb[i] += v
	}
	return emb
}

// PredictNoise implements diffusion.Denoiser. The returned tensor has the
// same NCHW shape as x.
func (m *Model) PredictNoise(x *diffusion.Image, t int, cond diffusion.Conditioning) (*diffusion.Image, error) {
	shape := x.Shape()
	if len(shape) != 4 {
		return nil, fmt.Errorf("%w: expected NCHW tensor, got shape %v", diffusion.ErrInvalidConfiguration, shape)
	}
	batch, ch, h, w := shape[0], shape[1], shape[2], shape[3]
	if ch != m.Channels || h%4 != 0 || w%4 != 0 {
		return nil, fmt.Errorf("%w: input shape %v does not fit model (channels=%d)", diffusion.ErrInvalidConfiguration, shape, m.Channels)
	}
	if !cond.Unconditional() && cond.Class >= m.ClassCount {
		return nil, fmt.Errorf("%w: class %d outside [0,%d)", diffusion.ErrInvalidConfiguration, cond.Class, m.ClassCount)
	}

	emb := m.conditioningEmbedding(t, cond)

	xs := x.Float32s()
	out := make([]float32, len(xs))
	per := ch * h * w
	for n := range batch {
		sample := xs[n*per : (n+1)*per]
		copy(out[n*per:], m.forward(sample, h, w, emb))
	}

	return tensor.New(tensor.WithShape(shape...), tensor.WithBacking(out)), nil
}

// forward runs one CHW sample through the network.
func (m *Model) forward(x []float32, h, w int, emb []float32) []float32 {
	cur := m.InConv.Forward(x, h, w)
	ch, cw := h, w

	// Encoder, remembering each level's activation for the skip path.
	type skip struct {
		data []float32
		h, w int
	}
	var skips []skip
	for _, lvl := range m.Enc {
		cur = lvl.Res.forward(cur, ch, cw, emb)
		skips = append(skips, skip{cur, ch, cw})
		if lvl.Down != nil {
			cur = lvl.Down.Forward(cur, ch, cw)
			ch, cw = lvl.Down.OutSize(ch), lvl.Down.OutSize(cw)
		}
	}

	cur = m.Mid[0].forward(cur, ch, cw, emb)
	cur = m.Mid[1].forward(cur, ch, cw, emb)

	for _, lvl := range m.Dec {
		s := skips[len(skips)-1]
		skips = skips[:len(skips)-1]
		cur = lvl.Res.forward(concatChannels(cur, s.data), ch, cw, emb)
		if lvl.Up != nil {
			cur = upsample2x(cur, lvl.Res.Out, ch, cw)
			ch, cw = ch*2, cw*2
			cur = lvl.Up.Forward(cur, ch, cw)
		}
	}

	return m.OutConv.Forward(silu(m.OutNorm.Forward(cur, h, w)), h, w)
}
