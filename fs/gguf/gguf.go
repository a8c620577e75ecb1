// Package gguf - GGUF Container fuer Artemis-Modelle
//
// Dieses Modul enthaelt:
// - KV: Key-Value Metadaten mit typisierten Gettern
// - Architektur-Getter fuer U-Net und Diffusions-Parameter
package gguf

import (
	"iter"
	"log/slog"
	"maps"
	"slices"
)

// GGUF value type constants.
const (
	typeUint8 uint32 = iota
	typeInt8
	typeUint16
	typeInt16
	typeUint32
	typeInt32
	typeFloat32
	typeBool
	typeString
	typeArray
	typeUint64
	typeInt64
	typeFloat64
)

const defaultAlignment = 32

// KV holds the GGUF key-value metadata of a model file.
type KV map[string]any

// Architecture gibt die Modell-Architektur zurueck
func (kv KV) Architecture() string {
	return kv.String("general.architecture", "unknown")
}

// Name gibt den Modellnamen zurueck
func (kv KV) Name() string {
	return kv.String("general.name")
}

// ParameterCount gibt die Anzahl der Parameter zurueck
func (kv KV) ParameterCount() uint64 {
	v, _ := keyValue(kv, "general.parameter_count", uint64(0))
	return v
}

// ImageSize gibt die Bildkantenlaenge zurueck
func (kv KV) ImageSize() int {
	return int(kv.Uint("unet.image_size"))
}

// Channels gibt die Anzahl der Bildkanaele zurueck
func (kv KV) Channels() int {
	return int(kv.Uint("unet.channels", 3))
}

// ClassCount gibt die Konditionierungs-Kardinalitaet zurueck (0 = unkonditioniert)
func (kv KV) ClassCount() int {
	return int(kv.Uint("unet.class_count", 0))
}

// BaseChannels gibt die Basis-Kanalbreite des U-Net zurueck
func (kv KV) BaseChannels() int {
	return int(kv.Uint("unet.base_channels", 64))
}

// DiffusionSteps gibt T zurueck
func (kv KV) DiffusionSteps() int {
	return int(kv.Uint("diffusion.timesteps", 1000))
}

// BetaSchedule gibt die Schedule-Policy zurueck
func (kv KV) BetaSchedule() string {
	return kv.String("diffusion.beta_schedule", "linear")
}

// String gibt einen String-Wert zurueck
func (kv KV) String(key string, defaultValue ...string) string {
	val, _ := keyValue(kv, key, append(defaultValue, "")...)
	return val
}

// Uint gibt einen uint32-Wert zurueck, tolerant gegenueber Integer-Breiten
func (kv KV) Uint(key string, defaultValue ...uint32) uint32 {
	switch v := kv[key].(type) {
	case uint32:
		return v
	case int32:
		return uint32(v)
	case uint64:
		return uint32(v)
	case int64:
		return uint32(v)
	}
	return append(defaultValue, 0)[0]
}

// Float gibt einen float32-Wert zurueck
func (kv KV) Float(key string, defaultValue ...float32) float32 {
	switch v := kv[key].(type) {
	case float32:
		return v
	case float64:
		return float32(v)
	}
	return append(defaultValue, 0)[0]
}

// Bool gibt einen bool-Wert zurueck
func (kv KV) Bool(key string, defaultValue ...bool) bool {
	val, _ := keyValue(kv, key, append(defaultValue, false)...)
	return val
}

// Ints gibt ein int32-Array zurueck
func (kv KV) Ints(key string) []int32 {
	switch v := kv[key].(type) {
	case []int32:
		return v
	case []any:
		out := make([]int32, len(v))
		for i, e := range v {
			if n, ok := e.(int32); ok {
				out[i] = n
			}
		}
		return out
	}
	return nil
}

// Keys iteriert ueber alle Schluessel
func (kv KV) Keys() iter.Seq[string] {
	return maps.Keys(kv)
}

// Len gibt die Anzahl der KV-Paare zurueck
func (kv KV) Len() int {
	return len(kv)
}

// SortedKeys gibt alle Schluessel sortiert zurueck
func (kv KV) SortedKeys() []string {
	return slices.Sorted(kv.Keys())
}

// keyValue liest einen typisierten Wert mit Fallback-Defaults
func keyValue[T any](kv KV, key string, defaultValue ...T) (T, bool) {
	if val, ok := kv[key]; ok {
		if t, ok := val.(T); ok {
			return t, true
		}
		slog.Warn("key has wrong type", "key", key, "type", val)
	}
	return defaultValue[0], false
}
