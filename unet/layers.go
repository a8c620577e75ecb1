// layers.go - Bausteine des U-Net
//
// Dieses Modul enthaelt:
// - Conv2D: 3x3/1x1 Faltung via im2col + GEMM
// - Linear: vollverbundene Schicht via GEMV
// - GroupNorm: Gruppen-Normalisierung
// - Embedding: Lookup-Tabelle fuer Klassen-Konditionierung
// - silu / upsample2x / concatChannels Hilfsfunktionen
package unet

import (
	"math"

	"gonum.org/v1/gonum/blas"
	"gonum.org/v1/gonum/blas/blas32"
)

// Conv2D is a 2D convolution over a single CHW sample. The kernel is laid
// out (out, in*k*k) row-major so the forward pass is one GEMM against the
// im2col matrix.
type Conv2D struct {
	In, Out int
	Kernel  int
	Stride  int
	Pad     int

	Weight []float32 // Out x In*Kernel*Kernel
	Bias   []float32 // Out
}

// NewConv2D allocates an uninitialized convolution.
func NewConv2D(in, out, kernel, stride, pad int) *Conv2D {
	return &Conv2D{
		In: in, Out: out, Kernel: kernel, Stride: stride, Pad: pad,
		Weight: make([]float32, out*in*kernel*kernel),
		Bias:   make([]float32, out),
	}
}

// OutSize returns the spatial output size for an input of size n.
func (c *Conv2D) OutSize(n int) int {
	return (n+2*c.Pad-c.Kernel)/c.Stride + 1
}

// Forward applies the convolution to one CHW sample.
func (c *Conv2D) Forward(x []float32, h, w int) []float32 {
	oh, ow := c.OutSize(h), c.OutSize(w)
	k := c.In * c.Kernel * c.Kernel

	col := im2col(x, c.In, h, w, c.Kernel, c.Stride, c.Pad)
	out := make([]float32, c.Out*oh*ow)

	a := blas32.General{Rows: c.Out, Cols: k, Stride: k, Data: c.Weight}
	b := blas32.General{Rows: k, Cols: oh * ow, Stride: oh * ow, Data: col}
	dst := blas32.General{Rows: c.Out, Cols: oh * ow, Stride: oh * ow, Data: out}
	blas32.Gemm(blas.NoTrans, blas.NoTrans, 1, a, b, 0, dst)

	for o := range c.Out {
		bias := c.Bias[o]
		row := out[o*oh*ow : (o+1)*oh*ow]
		for i := range row {
			row[i] += bias
		}
	}
	return out
}

// im2col unrolls convolution windows into a (in*k*k) x (oh*ow) matrix.
func im2col(x []float32, ch, h, w, kernel, stride, pad int) []float32 {
	oh := (h+2*pad-kernel)/stride + 1
	ow := (w+2*pad-kernel)/stride + 1

	col := make([]float32, ch*kernel*kernel*oh*ow)
	for c := range ch {
		for ky := range kernel {
			for kx := range kernel {
				row := ((c*kernel+ky)*kernel + kx) * oh * ow
				for oy := range oh {
					iy := oy*stride + ky - pad
					if iy < 0 || iy >= h {
						continue
					}
					for ox := range ow {
						ix := ox*stride + kx - pad
						if ix < 0 || ix >= w {
							continue
						}
						col[row+oy*ow+ox] = x[(c*h+iy)*w+ix]
					}
				}
			}
		}
	}
	return col
}

// Linear is a fully connected layer, weight laid out (out, in) row-major.
type Linear struct {
	In, Out int
	Weight  []float32
	Bias    []float32
}

// NewLinear allocates an uninitialized linear layer.
func NewLinear(in, out int) *Linear {
	return &Linear{In: in, Out: out, Weight: make([]float32, out*in), Bias: make([]float32, out)}
}

// Forward applies the layer to one vector.
func (l *Linear) Forward(x []float32) []float32 {
	out := make([]float32, l.Out)
	copy(out, l.Bias)
	a := blas32.General{Rows: l.Out, Cols: l.In, Stride: l.In, Data: l.Weight}
	blas32.Gemv(blas.NoTrans, 1,
		a,
		blas32.Vector{N: l.In, Inc: 1, Data: x},
		1,
		blas32.Vector{N: l.Out, Inc: 1, Data: out})
	return out
}

// Embedding is a lookup table of n rows.
type Embedding struct {
	Rows, Dim int
	Weight    []float32
}

// NewEmbedding allocates an uninitialized embedding table.
func NewEmbedding(rows, dim int) *Embedding {
	return &Embedding{Rows: rows, Dim: dim, Weight: make([]float32, rows*dim)}
}

// Lookup returns row i.
func (e *Embedding) Lookup(i int) []float32 {
	return e.Weight[i*e.Dim : (i+1)*e.Dim]
}

// GroupNorm normalizes channel groups over one CHW sample.
type GroupNorm struct {
	Channels, Groups int
	Gamma, Beta      []float32
}

const normEpsilon = 1e-5

// NewGroupNorm allocates a group norm with unit gain.
func NewGroupNorm(channels, groups int) *GroupNorm {
	g := &GroupNorm{Channels: channels, Groups: groups,
		Gamma: make([]float32, channels), Beta: make([]float32, channels)}
	for i := range g.Gamma {
		g.Gamma[i] = 1
	}
	return g
}

// Forward normalizes x in groups of channels.
func (g *GroupNorm) Forward(x []float32, h, w int) []float32 {
	out := make([]float32, len(x))
	spatial := h * w
	perGroup := g.Channels / g.Groups

	for grp := range g.Groups {
		lo := grp * perGroup * spatial
		hi := lo + perGroup*spatial

		var mean float64
		for _, v := range x[lo:hi] {
			mean += float64(v)
		}
		mean /= float64(hi - lo)

		var variance float64
		for _, v := range x[lo:hi] {
			d := float64(v) - mean
			variance += d * d
		}
		variance /= float64(hi - lo)
		inv := 1 / math.Sqrt(variance+normEpsilon)

		for c := grp * perGroup; c < (grp+1)*perGroup; c++ {
			gamma, beta := float64(g.Gamma[c]), float64(g.Beta[c])
			for i := c * spatial; i < (c+1)*spatial; i++ {
				out[i] = float32((float64(x[i])-mean)*inv*gamma + beta)
			}
		}
	}
	return out
}

// silu applies x * sigmoid(x) elementwise, returning a fresh slice.
func silu(x []float32) []float32 {
	out := make([]float32, len(x))
	for i, v := range x {
		f := float64(v)
		out[i] = float32(f / (1 + math.Exp(-f)))
	}
	return out
}

// upsample2x repeats each pixel 2x2, nearest neighbour.
func upsample2x(x []float32, ch, h, w int) []float32 {
	out := make([]float32, ch*h*2*w*2)
	for c := range ch {
		for y := range h {
			for xx := range w {
				v := x[(c*h+y)*w+xx]
				base := (c*h*2 + y*2) * w * 2
				out[base+xx*2] = v
				out[base+xx*2+1] = v
				out[base+w*2+xx*2] = v
				out[base+w*2+xx*2+1] = v
			}
		}
	}
	return out
}

// concatChannels stacks two CHW samples along the channel axis.
func concatChannels(a, b []float32) []float32 {
	out := make([]float32, 0, len(a)+len(b))
	out = append(out, a...)
	return append(out, b...)
}
