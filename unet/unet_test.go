// MODUL: unet_test
// ZWECK: Tests fuer Architekturaufbau, Forward-Pass und Parameter-Registry
package unet

import (
	"errors"
	"math"
	"testing"

	"github.com/vlabs/artemis/diffusion"
)

func testModel(t *testing.T) *Model {
	t.Helper()
	m, err := New(Config{ImageSize: 8, Channels: 1, BaseChannels: 8, ClassCount: 4})
	if err != nil {
		t.Fatal(err)
	}
	m.Init(1)
	return m
}

func TestNewRejectsBadImageSize(t *testing.T) {
	for _, size := range []int{0, -4, 6, 10} {
		if _, err := New(Config{ImageSize: size}); !errors.Is(err, diffusion.ErrInvalidConfiguration) {
			t.Errorf("ImageSize=%d: err = %v, erwartet ErrInvalidConfiguration", size, err)
		}
	}
}

func TestConfigDefaulted(t *testing.T) {
	c := Config{ImageSize: 32}.Defaulted()
	if c.Channels != 3 || c.BaseChannels != 64 {
		t.Errorf("Defaulted = %+v, erwartet Channels=3 BaseChannels=64", c)
	}
}

func TestPredictNoiseShape(t *testing.T) {
	m := testModel(t)

	x := diffusion.NewNoiseSource(1).InitNoise(2, 1, 8, 8)
	out, err := m.PredictNoise(x, 3, diffusion.Conditioning{Class: 2})
	if err != nil {
		t.Fatal(err)
	}
	if !out.Shape().Eq(x.Shape()) {
		t.Fatalf("Form = %v, erwartet %v", out.Shape(), x.Shape())
	}
	for i, v := range out.Float32s() {
		f := float64(v)
		if math.IsNaN(f) || math.IsInf(f, 0) {
			t.Fatalf("out[%d] = %g", i, v)
		}
	}
}

func TestPredictNoiseDeterministic(t *testing.T) {
	m := testModel(t)
	x := diffusion.NewNoiseSource(2).InitNoise(1, 1, 8, 8)

	a, err := m.PredictNoise(x, 7, diffusion.Conditioning{Class: diffusion.ClassUnconditional})
	if err != nil {
		t.Fatal(err)
	}
	b, err := m.PredictNoise(x, 7, diffusion.Conditioning{Class: diffusion.ClassUnconditional})
	if err != nil {
		t.Fatal(err)
	}
	for i := range a.Float32s() {
		if a.Float32s()[i] != b.Float32s()[i] {
			t.Fatalf("Forward-Pass nicht deterministisch bei %d", i)
		}
	}
}

func TestPredictNoiseConditioningMatters(t *testing.T) {
	m := testModel(t)
	x := diffusion.NewNoiseSource(3).InitNoise(1, 1, 8, 8)

	a, err := m.PredictNoise(x, 5, diffusion.Conditioning{Class: 0})
	if err != nil {
		t.Fatal(err)
	}
	b, err := m.PredictNoise(x, 5, diffusion.Conditioning{Class: 1})
	if err != nil {
		t.Fatal(err)
	}

	same := true
	for i := range a.Float32s() {
		if a.Float32s()[i] != b.Float32s()[i] {
			same = false
			break
		}
	}
	if same {
		t.Fatal("verschiedene Klassen liefern identische Vorhersagen")
	}
}

func TestPredictNoiseInvalidInput(t *testing.T) {
	m := testModel(t)

	// Klasse ausserhalb des Wertebereichs.
	x := diffusion.NewNoiseSource(4).InitNoise(1, 1, 8, 8)
	if _, err := m.PredictNoise(x, 3, diffusion.Conditioning{Class: 4}); !errors.Is(err, diffusion.ErrInvalidConfiguration) {
		t.Errorf("Klasse 4: err = %v, erwartet ErrInvalidConfiguration", err)
	}

	// Falsche Kanalzahl.
	x = diffusion.NewNoiseSource(4).InitNoise(1, 3, 8, 8)
	if _, err := m.PredictNoise(x, 3, diffusion.Conditioning{Class: 0}); !errors.Is(err, diffusion.ErrInvalidConfiguration) {
		t.Errorf("3 Kanaele: err = %v, erwartet ErrInvalidConfiguration", err)
	}

	// Kein NCHW-Tensor.
	x = diffusion.NewNoiseSource(4).InitNoise(1, 8, 8)
	if _, err := m.PredictNoise(x, 3, diffusion.Conditioning{Class: 0}); !errors.Is(err, diffusion.ErrInvalidConfiguration) {
		t.Errorf("CHW: err = %v, erwartet ErrInvalidConfiguration", err)
	}

	// Aufloesung kein Vielfaches von 4.
	x = diffusion.NewNoiseSource(4).InitNoise(1, 1, 6, 6)
	if _, err := m.PredictNoise(x, 3, diffusion.Conditioning{Class: 0}); !errors.Is(err, diffusion.ErrInvalidConfiguration) {
		t.Errorf("6x6: err = %v, erwartet ErrInvalidConfiguration", err)
	}
}

func TestParamsUniqueNames(t *testing.T) {
	m := testModel(t)

	seen := map[string]bool{}
	var total uint64
	for _, p := range m.Params() {
		if seen[p.Name] {
			t.Fatalf("Tensorname %q doppelt", p.Name)
		}
		seen[p.Name] = true

		n := uint64(1)
		for _, d := range p.Shape {
			n *= d
		}
		if n != uint64(len(p.Data)) {
			t.Fatalf("%s: Shape %v passt nicht zu %d Elementen", p.Name, p.Shape, len(p.Data))
		}
		total += n
	}

	if got := m.ParameterCount(); got != total {
		t.Errorf("ParameterCount = %d, erwartet %d", got, total)
	}
	if !seen["conv_in.weight"] || !seen["label_embed.weight"] || !seen["conv_out.bias"] {
		t.Error("erwartete Tensornamen fehlen")
	}
}

func TestLabelEmbeddingHasNullClass(t *testing.T) {
	m := testModel(t)
	if m.Label.Rows != m.ClassCount+1 {
		t.Errorf("Label.Rows = %d, erwartet %d", m.Label.Rows, m.ClassCount+1)
	}
}

func TestInitReproducible(t *testing.T) {
	a := testModel(t)
	b := testModel(t)

	pa, pb := a.Params(), b.Params()
	for i := range pa {
		for j := range pa[i].Data {
			if pa[i].Data[j] != pb[i].Data[j] {
				t.Fatalf("%s[%d]: Init nicht reproduzierbar", pa[i].Name, j)
			}
		}
	}
}
