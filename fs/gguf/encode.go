// encode.go - GGUF Write Operations
//
// Dieses Modul enthaelt:
// - WriteGGUF: Schreibt komplettes GGUF-File (V3) mit KV und Tensors
// - write*: Serialisierung der Basistypen
package gguf

import (
	"cmp"
	"encoding/binary"
	"fmt"
	"io"
	"log/slog"
	"os"
	"runtime"
	"slices"

	"golang.org/x/sync/errgroup"
)

// WriteGGUF schreibt ein GGUF-File mit KV-Paaren und Tensors (V3 Format).
// Tensor-Daten werden parallel geschrieben.
func WriteGGUF(f *os.File, kv KV, ts []*Tensor) error {
	if kv.String("general.architecture") == "" {
		return fmt.Errorf("architecture not set")
	}

	if err := binary.Write(f, binary.LittleEndian, ggufMagic); err != nil {
		return err
	}
	if err := binary.Write(f, binary.LittleEndian, uint32(3)); err != nil {
		return err
	}
	if err := binary.Write(f, binary.LittleEndian, uint64(len(ts))); err != nil {
		return err
	}
	if err := binary.Write(f, binary.LittleEndian, uint64(kv.Len())); err != nil {
		return err
	}

	for _, key := range kv.SortedKeys() {
		if err := writeKV(f, key, kv[key]); err != nil {
			return err
		}
	}

	slices.SortStableFunc(ts, func(a, b *Tensor) int {
		return cmp.Compare(a.Name, b.Name)
	})

	alignment := int64(kv.Uint("general.alignment", defaultAlignment))

	// Offsets berechnen und Tensor-Infos schreiben
	var s uint64
	for i := range ts {
		ts[i].Offset = s
		if err := writeTensorInfo(f, ts[i]); err != nil {
			return err
		}
		s += ts[i].Size()
		s += uint64(padding(int64(s), alignment))
	}

	offset, err := f.Seek(0, io.SeekCurrent)
	if err != nil {
		return err
	}
	offset += padding(offset, alignment)

	var g errgroup.Group
	g.SetLimit(runtime.GOMAXPROCS(0))
	for _, t := range ts {
		w := io.NewOffsetWriter(f, offset+int64(t.Offset))
		g.Go(func() error {
			_, err := t.WriteTo(w)
			return err
		})
	}

	return g.Wait()
}

// writeTyped schreibt einen Wert mit Typ-Prefix
func writeTyped[V any](w io.Writer, t uint32, v V) error {
	if err := binary.Write(w, binary.LittleEndian, t); err != nil {
		return err
	}
	return binary.Write(w, binary.LittleEndian, v)
}

// writeString schreibt einen String mit Typ-Prefix und Laenge
func writeString(w io.Writer, s string) error {
	if err := binary.Write(w, binary.LittleEndian, typeString); err != nil {
		return err
	}
	return writeRawString(w, s)
}

func writeRawString(w io.Writer, s string) error {
	if err := binary.Write(w, binary.LittleEndian, uint64(len(s))); err != nil {
		return err
	}
	return binary.Write(w, binary.LittleEndian, []byte(s))
}

// writeArray schreibt ein Array mit Typ-Prefix
func writeArray[S ~[]E, E any](w io.Writer, t uint32, s S) error {
	if err := binary.Write(w, binary.LittleEndian, typeArray); err != nil {
		return err
	}
	if err := binary.Write(w, binary.LittleEndian, t); err != nil {
		return err
	}
	if err := binary.Write(w, binary.LittleEndian, uint64(len(s))); err != nil {
		return err
	}

	// Strings muessen einzeln geschrieben werden
	if t == typeString {
		for _, e := range any(s).([]string) {
			if err := writeRawString(w, e); err != nil {
				return err
			}
		}
		return nil
	}

	return binary.Write(w, binary.LittleEndian, s)
}

// writeKV schreibt ein Key-Value Paar
func writeKV(ws io.WriteSeeker, k string, v any) error {
	slog.Debug("writing kv", "key", k, "type", fmt.Sprintf("%T", v))

	if err := writeRawString(ws, k); err != nil {
		return err
	}

	var err error
	switch v := v.(type) {
	case int32:
		err = writeTyped(ws, typeInt32, v)
	case int64:
		err = writeTyped(ws, typeInt64, v)
	case uint32:
		err = writeTyped(ws, typeUint32, v)
	case uint64:
		err = writeTyped(ws, typeUint64, v)
	case float32:
		err = writeTyped(ws, typeFloat32, v)
	case float64:
		err = writeTyped(ws, typeFloat64, v)
	case bool:
		err = writeTyped(ws, typeBool, v)
	case string:
		err = writeString(ws, v)
	case []int32:
		err = writeArray(ws, typeInt32, v)
	case []uint32:
		err = writeArray(ws, typeUint32, v)
	case []int64:
		err = writeArray(ws, typeInt64, v)
	case []uint64:
		err = writeArray(ws, typeUint64, v)
	case []float32:
		err = writeArray(ws, typeFloat32, v)
	case []float64:
		err = writeArray(ws, typeFloat64, v)
	case []string:
		err = writeArray(ws, typeString, v)
	case []bool:
		err = writeArray(ws, typeBool, v)
	default:
		return fmt.Errorf("improper type for '%s'", k)
	}
	return err
}

// writeTensorInfo schreibt die Tensor-Metadaten
func writeTensorInfo(ws io.WriteSeeker, t *Tensor) error {
	slog.Debug("writing tensor info", "name", t.Name, "kind", t.Kind, "shape", t.Shape, "offset", t.Offset)

	if err := writeRawString(ws, t.Name); err != nil {
		return err
	}
	if err := binary.Write(ws, binary.LittleEndian, uint32(len(t.Shape))); err != nil {
		return err
	}
	for _, n := range t.Shape {
		if err := binary.Write(ws, binary.LittleEndian, n); err != nil {
			return err
		}
	}
	if err := binary.Write(ws, binary.LittleEndian, t.Kind); err != nil {
		return err
	}
	return binary.Write(ws, binary.LittleEndian, t.Offset)
}
