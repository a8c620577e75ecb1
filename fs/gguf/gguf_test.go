// MODUL: gguf_test
// ZWECK: Roundtrip-Tests fuer Encode/Decode und KV-Getter
package gguf

import (
	"math"
	"os"
	"path/filepath"
	"testing"
)

func writeTestFile(t *testing.T, kv KV, ts []*Tensor) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), "model.gguf")
	f, err := os.Create(p)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()
	if err := WriteGGUF(f, kv, ts); err != nil {
		t.Fatal(err)
	}
	return p
}

func TestWriteDecodeRoundtrip(t *testing.T) {
	kv := KV{
		"general.architecture":     "unet",
		"general.name":             "testmodel",
		"general.parameter_count":  uint64(12345),
		"unet.image_size":          uint32(32),
		"unet.channels":            uint32(3),
		"unet.class_count":         uint32(10),
		"unet.base_channels":       uint32(64),
		"diffusion.timesteps":      uint32(1000),
		"diffusion.beta_schedule":  "cosine",
		"diffusion.skip_indices":   []int32{1, 2, 3},
		"general.description":      "roundtrip",
		"general.half_precision":   false,
		"diffusion.linear_start":   float32(1e-4),
	}

	a := []float32{1, -2, 3.5, 0, 42.25, -0.125}
	b := []float32{0.5, 1.5}
	ts := []*Tensor{
		NewTensor("layer.weight", []uint64{2, 3}, a),
		NewTensor("layer.bias", []uint64{2}, b),
	}

	p := writeTestFile(t, kv, ts)
	f, err := os.Open(p)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()

	decoded, err := Decode(f)
	if err != nil {
		t.Fatal(err)
	}

	if decoded.Version != 3 {
		t.Errorf("Version = %d, erwartet 3", decoded.Version)
	}
	if got := decoded.KV.Architecture(); got != "unet" {
		t.Errorf("Architecture = %q, erwartet unet", got)
	}
	if got := decoded.KV.Name(); got != "testmodel" {
		t.Errorf("Name = %q, erwartet testmodel", got)
	}
	if got := decoded.KV.ParameterCount(); got != 12345 {
		t.Errorf("ParameterCount = %d, erwartet 12345", got)
	}
	if got := decoded.KV.ImageSize(); got != 32 {
		t.Errorf("ImageSize = %d, erwartet 32", got)
	}
	if got := decoded.KV.ClassCount(); got != 10 {
		t.Errorf("ClassCount = %d, erwartet 10", got)
	}
	if got := decoded.KV.DiffusionSteps(); got != 1000 {
		t.Errorf("DiffusionSteps = %d, erwartet 1000", got)
	}
	if got := decoded.KV.BetaSchedule(); got != "cosine" {
		t.Errorf("BetaSchedule = %q, erwartet cosine", got)
	}
	if got := decoded.KV.Ints("diffusion.skip_indices"); len(got) != 3 || got[0] != 1 || got[2] != 3 {
		t.Errorf("Ints = %v, erwartet [1 2 3]", got)
	}
	if decoded.KV.Bool("general.half_precision", true) {
		t.Error("Bool = true, erwartet false")
	}
	if got := decoded.KV.Float("diffusion.linear_start"); math.Abs(float64(got)-1e-4) > 1e-10 {
		t.Errorf("Float = %g, erwartet 1e-4", got)
	}

	if len(decoded.Tensors) != 2 {
		t.Fatalf("Tensors = %d, erwartet 2", len(decoded.Tensors))
	}

	w, ok := decoded.TensorByName("layer.weight")
	if !ok {
		t.Fatal("layer.weight fehlt")
	}
	if w.Elements() != 6 || w.Type() != "F32" {
		t.Errorf("layer.weight: Elements=%d Type=%s", w.Elements(), w.Type())
	}
	data, err := decoded.ReadTensor(f, w)
	if err != nil {
		t.Fatal(err)
	}
	for i := range a {
		if data[i] != a[i] {
			t.Fatalf("weight[%d] = %g, erwartet %g", i, data[i], a[i])
		}
	}

	bias, _ := decoded.TensorByName("layer.bias")
	data, err = decoded.ReadTensor(f, bias)
	if err != nil {
		t.Fatal(err)
	}
	if data[0] != 0.5 || data[1] != 1.5 {
		t.Errorf("bias = %v, erwartet [0.5 1.5]", data)
	}
}

func TestWriteDecodeF16(t *testing.T) {
	vals := []float32{0, 1, -1, 0.5, 3.25, -100}
	kv := KV{"general.architecture": "unet"}
	p := writeTestFile(t, kv, []*Tensor{NewTensorF16("half.weight", []uint64{6}, vals)})

	f, err := os.Open(p)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()

	decoded, err := Decode(f)
	if err != nil {
		t.Fatal(err)
	}

	tn, ok := decoded.TensorByName("half.weight")
	if !ok {
		t.Fatal("half.weight fehlt")
	}
	if tn.Type() != "F16" || tn.Size() != 12 {
		t.Errorf("Type=%s Size=%d, erwartet F16/12", tn.Type(), tn.Size())
	}

	data, err := decoded.ReadTensor(f, tn)
	if err != nil {
		t.Fatal(err)
	}
	for i, want := range vals {
		// half precision: exakt fuer diese kleinen Werte
		if data[i] != want {
			t.Errorf("data[%d] = %g, erwartet %g", i, data[i], want)
		}
	}
}

func TestWriteGGUFRequiresArchitecture(t *testing.T) {
	p := filepath.Join(t.TempDir(), "bad.gguf")
	f, err := os.Create(p)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()

	if err := WriteGGUF(f, KV{"general.name": "x"}, nil); err == nil {
		t.Fatal("fehlende Architektur wurde akzeptiert")
	}
}

func TestDecodeRejectsBadMagic(t *testing.T) {
	p := filepath.Join(t.TempDir(), "junk.bin")
	if err := os.WriteFile(p, []byte("NOTAGGUFFILE"), 0o644); err != nil {
		t.Fatal(err)
	}
	f, err := os.Open(p)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()

	if _, err := Decode(f); err == nil {
		t.Fatal("ungueltiges Magic wurde akzeptiert")
	}
}

func TestKVUintTolerant(t *testing.T) {
	kv := KV{
		"a": uint32(7),
		"b": int32(8),
		"c": uint64(9),
		"d": int64(10),
		"e": "keine zahl",
	}
	for key, want := range map[string]uint32{"a": 7, "b": 8, "c": 9, "d": 10} {
		if got := kv.Uint(key); got != want {
			t.Errorf("Uint(%q) = %d, erwartet %d", key, got, want)
		}
	}
	if got := kv.Uint("e", 99); got != 99 {
		t.Errorf("Uint mit falschem Typ = %d, erwartet Default 99", got)
	}
	if got := kv.Uint("fehlt", 5); got != 5 {
		t.Errorf("Uint fuer fehlenden Key = %d, erwartet 5", got)
	}
}
