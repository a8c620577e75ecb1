// tensor.go - Tensor-Datenstrukturen des GGUF-Containers
//
// Dieses Modul enthaelt:
// - TensorType: F32/F16/BF16
// - Tensor: Name, Shape, Kind, Offset plus WriterTo fuer die Daten
// - NewTensor: F32-Tensor aus einem float32-Slice
package gguf

import (
	"encoding/binary"
	"fmt"
	"io"

	"github.com/d4l3k/go-bfloat16"
	"github.com/x448/float16"
)

// TensorType is the GGML tensor data type. Artemis models only carry the
// unquantized float types.
type TensorType uint32

const (
	TensorTypeF32  TensorType = 0
	TensorTypeF16  TensorType = 1
	TensorTypeBF16 TensorType = 30
)

// TypeSize gibt die Byte-Groesse pro Element zurueck
func (t TensorType) TypeSize() uint64 {
	switch t {
	case TensorTypeF32:
		return 4
	case TensorTypeF16, TensorTypeBF16:
		return 2
	default:
		return 0
	}
}

// String gibt den Typ-Namen zurueck
func (t TensorType) String() string {
	switch t {
	case TensorTypeF32:
		return "F32"
	case TensorTypeF16:
		return "F16"
	case TensorTypeBF16:
		return "BF16"
	default:
		return fmt.Sprintf("unknown(%d)", uint32(t))
	}
}

// Tensor repraesentiert einen einzelnen Tensor im Container
type Tensor struct {
	Name   string `json:"name"`
	Kind   uint32 `json:"kind"`
	Offset uint64 `json:"-"`

	// Shape ist die Anzahl der Elemente je Dimension
	Shape []uint64 `json:"shape"`

	io.WriterTo `json:"-"`
}

// Elements gibt die Gesamtanzahl der Elemente zurueck
func (t Tensor) Elements() uint64 {
	count := uint64(1)
	for _, n := range t.Shape {
		count *= n
	}
	return count
}

// Size gibt die Groesse in Bytes zurueck
func (t Tensor) Size() uint64 {
	return t.Elements() * TensorType(t.Kind).TypeSize()
}

// Type gibt den Typ-Namen zurueck
func (t Tensor) Type() string {
	return TensorType(t.Kind).String()
}

// f32Writer serialisiert float32-Daten little-endian
type f32Writer struct {
	data []float32
}

func (w f32Writer) WriteTo(out io.Writer) (int64, error) {
	if err := binary.Write(out, binary.LittleEndian, w.data); err != nil {
		return 0, err
	}
	return int64(len(w.data) * 4), nil
}

// f16Writer konvertiert float32-Daten nach IEEE half
type f16Writer struct {
	data []float32
}

func (w f16Writer) WriteTo(out io.Writer) (int64, error) {
	u16s := make([]uint16, len(w.data))
	for i, f := range w.data {
		u16s[i] = float16.Fromfloat32(f).Bits()
	}
	if err := binary.Write(out, binary.LittleEndian, u16s); err != nil {
		return 0, err
	}
	return int64(len(u16s) * 2), nil
}

// NewTensor baut einen F32-Tensor aus einem float32-Slice
func NewTensor(name string, shape []uint64, data []float32) *Tensor {
	return &Tensor{
		Name:     name,
		Kind:     uint32(TensorTypeF32),
		Shape:    shape,
		WriterTo: f32Writer{data},
	}
}

// NewTensorF16 baut einen F16-Tensor aus einem float32-Slice
func NewTensorF16(name string, shape []uint64, data []float32) *Tensor {
	return &Tensor{
		Name:     name,
		Kind:     uint32(TensorTypeF16),
		Shape:    shape,
		WriterTo: f16Writer{data},
	}
}

// DecodeFloats interpretiert rohe Tensor-Bytes als float32-Slice
func DecodeFloats(kind TensorType, raw []byte) ([]float32, error) {
	switch kind {
	case TensorTypeF32:
		f32s := make([]float32, len(raw)/4)
		if _, err := binary.Decode(raw, binary.LittleEndian, &f32s); err != nil {
			return nil, err
		}
		return f32s, nil
	case TensorTypeF16:
		f32s := make([]float32, len(raw)/2)
		for i := range f32s {
			bits := binary.LittleEndian.Uint16(raw[i*2:])
			f32s[i] = float16.Frombits(bits).Float32()
		}
		return f32s, nil
	case TensorTypeBF16:
		return bfloat16.DecodeFloat32(raw), nil
	default:
		return nil, fmt.Errorf("unsupported tensor type %s", kind)
	}
}
