// decode.go - GGUF Decode Operations
//
// Dieses Modul enthaelt:
// - Decode: Deserialisierung von Header, KV-Paaren und Tensor-Infos
// - File: geladenes Modellfile mit KV, Tensors und Datenoffset
// - readGGUF*: Lese-Funktionen fuer die Basistypen
package gguf

import (
	"encoding/binary"
	"fmt"
	"io"
)

var ggufMagic = []byte("GGUF")

// File ist ein dekodiertes GGUF-Modellfile. Tensor-Daten werden nicht
// eingelesen; ReadTensor holt sie bei Bedarf vom ReadSeeker.
type File struct {
	Version uint32
	KV      KV
	Tensors []*Tensor

	// tensorOffset ist der Beginn des Datenblocks (aligned).
	tensorOffset uint64
}

// Decode liest Header, KV-Paare und Tensor-Metadaten (GGUF v2/v3).
func Decode(rs io.ReadSeeker) (*File, error) {
	magic := make([]byte, 4)
	if _, err := io.ReadFull(rs, magic); err != nil {
		return nil, err
	}
	if string(magic) != string(ggufMagic) {
		return nil, fmt.Errorf("invalid magic %q", magic)
	}

	f := &File{KV: make(KV)}
	if err := binary.Read(rs, binary.LittleEndian, &f.Version); err != nil {
		return nil, err
	}
	if f.Version < 2 || f.Version > 3 {
		return nil, fmt.Errorf("unsupported gguf version %d", f.Version)
	}

	var numTensor, numKV uint64
	if err := binary.Read(rs, binary.LittleEndian, &numTensor); err != nil {
		return nil, err
	}
	if err := binary.Read(rs, binary.LittleEndian, &numKV); err != nil {
		return nil, err
	}

	for range numKV {
		k, err := readString(rs)
		if err != nil {
			return nil, err
		}

		t, err := read[uint32](rs)
		if err != nil {
			return nil, err
		}

		var v any
		switch t {
		case typeUint8:
			v, err = read[uint8](rs)
		case typeInt8:
			v, err = read[int8](rs)
		case typeUint16:
			v, err = read[uint16](rs)
		case typeInt16:
			v, err = read[int16](rs)
		case typeUint32:
			v, err = read[uint32](rs)
		case typeInt32:
			v, err = read[int32](rs)
		case typeUint64:
			v, err = read[uint64](rs)
		case typeInt64:
			v, err = read[int64](rs)
		case typeFloat32:
			v, err = read[float32](rs)
		case typeFloat64:
			v, err = read[float64](rs)
		case typeBool:
			v, err = read[bool](rs)
		case typeString:
			v, err = readString(rs)
		case typeArray:
			v, err = readArray(rs)
		default:
			return nil, fmt.Errorf("invalid kv type %d for key %q", t, k)
		}
		if err != nil {
			return nil, err
		}
		f.KV[k] = v
	}

	for range numTensor {
		name, err := readString(rs)
		if err != nil {
			return nil, fmt.Errorf("failed to read tensor name: %w", err)
		}

		dims, err := read[uint32](rs)
		if err != nil {
			return nil, fmt.Errorf("failed to read tensor dimensions: %w", err)
		}

		shape := make([]uint64, dims)
		for i := range shape {
			if shape[i], err = read[uint64](rs); err != nil {
				return nil, fmt.Errorf("failed to read tensor shape: %w", err)
			}
		}

		kind, err := read[uint32](rs)
		if err != nil {
			return nil, fmt.Errorf("failed to read tensor kind: %w", err)
		}

		offset, err := read[uint64](rs)
		if err != nil {
			return nil, fmt.Errorf("failed to read tensor offset: %w", err)
		}

		f.Tensors = append(f.Tensors, &Tensor{
			Name:   name,
			Kind:   kind,
			Offset: offset,
			Shape:  shape,
		})
	}

	offset, err := rs.Seek(0, io.SeekCurrent)
	if err != nil {
		return nil, err
	}
	alignment := int64(f.KV.Uint("general.alignment", defaultAlignment))
	f.tensorOffset = uint64(offset + padding(offset, alignment))

	return f, nil
}

// ReadTensor liest die Daten eines Tensors und konvertiert nach float32.
func (f *File) ReadTensor(rs io.ReadSeeker, t *Tensor) ([]float32, error) {
	if _, err := rs.Seek(int64(f.tensorOffset+t.Offset), io.SeekStart); err != nil {
		return nil, err
	}
	raw := make([]byte, t.Size())
	if _, err := io.ReadFull(rs, raw); err != nil {
		return nil, fmt.Errorf("read tensor %q: %w", t.Name, err)
	}
	return DecodeFloats(TensorType(t.Kind), raw)
}

// TensorByName sucht einen Tensor ueber seinen Namen.
func (f *File) TensorByName(name string) (*Tensor, bool) {
	for _, t := range f.Tensors {
		if t.Name == name {
			return t, true
		}
	}
	return nil, false
}

// read liest einen typisierten Wert
func read[T any](r io.Reader) (T, error) {
	var t T
	err := binary.Read(r, binary.LittleEndian, &t)
	return t, err
}

// readString liest einen laengen-praefixierten String
func readString(r io.Reader) (string, error) {
	length, err := read[uint64](r)
	if err != nil {
		return "", err
	}
	buf := make([]byte, length)
	if _, err := io.ReadFull(r, buf); err != nil {
		return "", err
	}
	return string(buf), nil
}

// readArray liest ein typisiertes Array
func readArray(r io.Reader) (any, error) {
	t, err := read[uint32](r)
	if err != nil {
		return nil, err
	}
	length, err := read[uint64](r)
	if err != nil {
		return nil, err
	}

	switch t {
	case typeInt32:
		return readSlice[int32](r, length)
	case typeUint32:
		return readSlice[uint32](r, length)
	case typeInt64:
		return readSlice[int64](r, length)
	case typeUint64:
		return readSlice[uint64](r, length)
	case typeFloat32:
		return readSlice[float32](r, length)
	case typeFloat64:
		return readSlice[float64](r, length)
	case typeBool:
		return readSlice[bool](r, length)
	case typeString:
		out := make([]string, length)
		for i := range out {
			if out[i], err = readString(r); err != nil {
				return nil, err
			}
		}
		return out, nil
	default:
		return nil, fmt.Errorf("invalid array element type %d", t)
	}
}

// readSlice liest length Elemente eines Basistyps
func readSlice[T any](r io.Reader, length uint64) ([]T, error) {
	out := make([]T, length)
	if err := binary.Read(r, binary.LittleEndian, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// padding berechnet das Alignment-Padding
func padding(offset, align int64) int64 {
	return (align - offset%align) % align
}
