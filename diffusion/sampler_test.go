// MODUL: sampler_test
// ZWECK: Tests fuer DDPM- und DDIM-Schritte
package diffusion

import (
	"errors"
	"math"
	"testing"

	"github.com/pdevine/tensor"
)

func testTerms(t *testing.T, timesteps int) *Terms {
	t.Helper()
	betas, err := BetaSchedule(ScheduleLinear, timesteps)
	if err != nil {
		t.Fatal(err)
	}
	tm, err := ComputeTerms(betas)
	if err != nil {
		t.Fatal(err)
	}
	return tm
}

func testImage(t *testing.T, seed int64, shape ...int) *Image {
	t.Helper()
	return NewNoiseSource(seed).InitNoise(shape...)
}

func TestDDPMStepTerminalMean(t *testing.T) {
	tm := testTerms(t, 10)
	x := testImage(t, 1, 1, 1, 4, 4)
	eps := testImage(t, 2, 1, 1, 4, 4)

	got, err := DDPMStep(tm, x, eps, 0, nil)
	if err != nil {
		t.Fatal(err)
	}

	// z=nil liefert exakt den Posterior-Mittelwert.
	xs, es, gs := x.Float32s(), eps.Float32s(), got.Float32s()
	recip := tm.SqrtRecipAlphas[0]
	epsCoef := tm.Betas[0] / tm.SqrtOneMinusAlphasCumprod[0]
	for i := range gs {
		want := recip * (float64(xs[i]) - epsCoef*float64(es[i]))
		if math.Abs(float64(gs[i])-want) > 1e-6 {
			t.Fatalf("out[%d] = %g, erwartet %g", i, gs[i], want)
		}
	}
}

func TestDDPMStepDoesNotMutateInputs(t *testing.T) {
	tm := testTerms(t, 10)
	x := testImage(t, 3, 1, 1, 2, 2)
	eps := testImage(t, 4, 1, 1, 2, 2)

	before := append([]float32(nil), x.Float32s()...)
	if _, err := DDPMStep(tm, x, eps, 5, make([]float32, 4)); err != nil {
		t.Fatal(err)
	}
	for i, v := range x.Float32s() {
		if v != before[i] {
			t.Fatalf("x[%d] wurde mutiert: %g != %g", i, v, before[i])
		}
	}
}

func TestDDPMStepInvalid(t *testing.T) {
	tm := testTerms(t, 10)
	x := testImage(t, 5, 1, 1, 2, 2)
	eps := testImage(t, 6, 1, 1, 2, 2)

	for _, tc := range []struct {
		name string
		t    int
		z    []float32
	}{
		{"t negativ", -1, nil},
		{"t zu gross", 10, nil},
		{"z falsche Laenge", 3, make([]float32, 3)},
	} {
		if _, err := DDPMStep(tm, x, eps, tc.t, tc.z); !errors.Is(err, ErrInvalidConfiguration) {
			t.Errorf("%s: err = %v, erwartet ErrInvalidConfiguration", tc.name, err)
		}
	}

	small := tensor.New(tensor.WithShape(1, 1, 1, 2), tensor.WithBacking(make([]float32, 2)))
	if _, err := DDPMStep(tm, x, small, 3, nil); !errors.Is(err, ErrInvalidConfiguration) {
		t.Errorf("eps falsche Form: err = %v, erwartet ErrInvalidConfiguration", err)
	}
}

func TestDDIMStepDeterministic(t *testing.T) {
	tm := testTerms(t, 100)
	x := testImage(t, 7, 1, 3, 4, 4)
	eps := testImage(t, 8, 1, 3, 4, 4)

	a, err := DDIMStep(tm, x, eps, 80, 60, 0, nil)
	if err != nil {
		t.Fatal(err)
	}
	b, err := DDIMStep(tm, x, eps, 80, 60, 0, nil)
	if err != nil {
		t.Fatal(err)
	}
	for i := range a.Float32s() {
		if a.Float32s()[i] != b.Float32s()[i] {
			t.Fatalf("eta=0 nicht deterministisch bei %d", i)
		}
	}
}

func TestDDIMStepEndpoint(t *testing.T) {
	tm := testTerms(t, 50)
	x := testImage(t, 9, 1, 1, 4, 4)
	eps := testImage(t, 10, 1, 1, 4, 4)

	got, err := DDIMStep(tm, x, eps, 12, -1, 0, nil)
	if err != nil {
		t.Fatal(err)
	}

	// tPrev=-1 zielt auf alpha_cumprod=1: das Ergebnis ist die x0-Schaetzung.
	xs, es, gs := x.Float32s(), eps.Float32s(), got.Float32s()
	sqrtAc := tm.SqrtAlphasCumprod[12]
	sqrtOneMinusAc := tm.SqrtOneMinusAlphasCumprod[12]
	for i := range gs {
		want := (float64(xs[i]) - sqrtOneMinusAc*float64(es[i])) / sqrtAc
		if math.Abs(float64(gs[i])-want) > 1e-5 {
			t.Fatalf("out[%d] = %g, erwartet %g", i, gs[i], want)
		}
	}
}

// Mit eta=1 und benachbarten Schritten ist sigma^2 genau die
// DDPM-Posterior-Varianz; bei z=0 fallen beide Updates zusammen.
func TestDDIMEtaOneMatchesDDPMMean(t *testing.T) {
	tm := testTerms(t, 100)
	x := testImage(t, 11, 1, 1, 8, 8)
	eps := testImage(t, 12, 1, 1, 8, 8)
	zero := make([]float32, 64)

	const step = 40
	ddim, err := DDIMStep(tm, x, eps, step, step-1, 1, zero)
	if err != nil {
		t.Fatal(err)
	}
	ddpm, err := DDPMStep(tm, x, eps, step, nil)
	if err != nil {
		t.Fatal(err)
	}

	ds, ps := ddim.Float32s(), ddpm.Float32s()
	for i := range ds {
		if math.Abs(float64(ds[i])-float64(ps[i])) > 1e-4 {
			t.Fatalf("out[%d]: ddim=%g ddpm=%g", i, ds[i], ps[i])
		}
	}
}

func TestDDIMStepInvalid(t *testing.T) {
	tm := testTerms(t, 20)
	x := testImage(t, 13, 1, 1, 2, 2)
	eps := testImage(t, 14, 1, 1, 2, 2)

	if _, err := DDIMStep(tm, x, eps, 5, 5, 0, nil); !errors.Is(err, ErrInvalidConfiguration) {
		t.Errorf("tPrev==t: err = %v, erwartet ErrInvalidConfiguration", err)
	}
	if _, err := DDIMStep(tm, x, eps, 5, 8, 0, nil); !errors.Is(err, ErrInvalidConfiguration) {
		t.Errorf("tPrev>t: err = %v, erwartet ErrInvalidConfiguration", err)
	}
	if _, err := DDIMStep(tm, x, eps, 25, 10, 0, nil); !errors.Is(err, ErrInvalidConfiguration) {
		t.Errorf("t ausserhalb: err = %v, erwartet ErrInvalidConfiguration", err)
	}
	if _, err := DDIMStep(tm, x, eps, 5, 4, 0.5, nil); !errors.Is(err, ErrInvalidConfiguration) {
		t.Errorf("eta>0 ohne z: err = %v, erwartet ErrInvalidConfiguration", err)
	}
	// eta ausserhalb [0,1] wuerde still NaNs produzieren.
	if _, err := DDIMStep(tm, x, eps, 5, 4, 1.5, make([]float32, 4)); !errors.Is(err, ErrInvalidConfiguration) {
		t.Errorf("eta>1: err = %v, erwartet ErrInvalidConfiguration", err)
	}
	if _, err := DDIMStep(tm, x, eps, 5, 4, -0.1, nil); !errors.Is(err, ErrInvalidConfiguration) {
		t.Errorf("eta<0: err = %v, erwartet ErrInvalidConfiguration", err)
	}
}

func TestNoiseSourceReproducible(t *testing.T) {
	a := NewNoiseSource(42).InitNoise(1, 3, 4, 4)
	b := NewNoiseSource(42).InitNoise(1, 3, 4, 4)
	c := NewNoiseSource(43).InitNoise(1, 3, 4, 4)

	for i := range a.Float32s() {
		if a.Float32s()[i] != b.Float32s()[i] {
			t.Fatalf("gleicher Seed, unterschiedliches Rauschen bei %d", i)
		}
	}

	same := true
	for i := range a.Float32s() {
		if a.Float32s()[i] != c.Float32s()[i] {
			same = false
			break
		}
	}
	if same {
		t.Fatal("verschiedene Seeds liefern identisches Rauschen")
	}
}
