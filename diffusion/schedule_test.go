// MODUL: schedule_test
// ZWECK: Tests fuer Beta-Schedules und Term-Berechnung
package diffusion

import (
	"errors"
	"math"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestParsePolicy(t *testing.T) {
	cases := []struct {
		in   string
		want SchedulePolicy
		err  bool
	}{
		{"linear", ScheduleLinear, false},
		{"cosine", ScheduleCosine, false},
		{"", ScheduleLinear, false},
		{"quadratic", "", true},
	}

	for _, c := range cases {
		got, err := ParsePolicy(c.in)
		if c.err {
			if !errors.Is(err, ErrInvalidConfiguration) {
				t.Errorf("ParsePolicy(%q) err = %v, erwartet ErrInvalidConfiguration", c.in, err)
			}
			continue
		}
		if err != nil || got != c.want {
			t.Errorf("ParsePolicy(%q) = %v, %v, erwartet %v", c.in, got, err, c.want)
		}
	}
}

func TestLinearBetas(t *testing.T) {
	betas, err := BetaSchedule(ScheduleLinear, 1000)
	if err != nil {
		t.Fatal(err)
	}
	if len(betas) != 1000 {
		t.Fatalf("len = %d, erwartet 1000", len(betas))
	}
	if math.Abs(betas[0]-1e-4) > 1e-12 {
		t.Errorf("betas[0] = %g, erwartet 1e-4", betas[0])
	}
	if math.Abs(betas[999]-2e-2) > 1e-12 {
		t.Errorf("betas[999] = %g, erwartet 2e-2", betas[999])
	}
	for i := 1; i < len(betas); i++ {
		if betas[i] <= betas[i-1] {
			t.Fatalf("betas nicht streng steigend bei %d", i)
		}
	}
}

func TestCosineBetas(t *testing.T) {
	betas, err := BetaSchedule(ScheduleCosine, 500)
	if err != nil {
		t.Fatal(err)
	}
	for i, b := range betas {
		if b <= 0 || b > 0.999 {
			t.Fatalf("betas[%d] = %g ausserhalb (0, 0.999]", i, b)
		}
	}
}

func TestBetaScheduleInvalidTimesteps(t *testing.T) {
	for _, steps := range []int{0, -5} {
		if _, err := BetaSchedule(ScheduleLinear, steps); !errors.Is(err, ErrInvalidConfiguration) {
			t.Errorf("T=%d: err = %v, erwartet ErrInvalidConfiguration", steps, err)
		}
	}
}

func TestComputeTermsDeterministic(t *testing.T) {
	betas, err := BetaSchedule(ScheduleLinear, 100)
	if err != nil {
		t.Fatal(err)
	}

	a, err := ComputeTerms(betas)
	if err != nil {
		t.Fatal(err)
	}
	b, err := ComputeTerms(betas)
	if err != nil {
		t.Fatal(err)
	}

	if diff := cmp.Diff(a, b); diff != "" {
		t.Errorf("Terme nicht deterministisch (-a +b):\n%s", diff)
	}
}

func TestComputeTermsIdentities(t *testing.T) {
	betas, err := BetaSchedule(ScheduleLinear, 50)
	if err != nil {
		t.Fatal(err)
	}
	tm, err := ComputeTerms(betas)
	if err != nil {
		t.Fatal(err)
	}

	if tm.Timesteps() != 50 {
		t.Fatalf("Timesteps = %d, erwartet 50", tm.Timesteps())
	}

	acp := 1.0
	for i := range betas {
		alpha := 1 - betas[i]
		if math.Abs(tm.Alphas[i]-alpha) > 1e-15 {
			t.Fatalf("Alphas[%d] = %g, erwartet %g", i, tm.Alphas[i], alpha)
		}

		prev := acp
		acp *= alpha
		if math.Abs(tm.AlphasCumprod[i]-acp) > 1e-12 {
			t.Fatalf("AlphasCumprod[%d] = %g, erwartet %g", i, tm.AlphasCumprod[i], acp)
		}
		if math.Abs(tm.AlphasCumprodPrev[i]-prev) > 1e-12 {
			t.Fatalf("AlphasCumprodPrev[%d] = %g, erwartet %g", i, tm.AlphasCumprodPrev[i], prev)
		}

		wantVar := betas[i] * (1 - prev) / (1 - acp)
		if math.Abs(tm.PosteriorVariance[i]-wantVar) > 1e-12 {
			t.Fatalf("PosteriorVariance[%d] = %g, erwartet %g", i, tm.PosteriorVariance[i], wantVar)
		}

		if math.Abs(tm.SqrtAlphasCumprod[i]-math.Sqrt(acp)) > 1e-12 {
			t.Fatalf("SqrtAlphasCumprod[%d] falsch", i)
		}
		if math.Abs(tm.SqrtOneMinusAlphasCumprod[i]-math.Sqrt(1-acp)) > 1e-12 {
			t.Fatalf("SqrtOneMinusAlphasCumprod[%d] falsch", i)
		}
	}
}

func TestComputeTermsInvalidBeta(t *testing.T) {
	for _, betas := range [][]float64{
		{},
		{0},
		{1},
		{-0.1},
		{0.5, 1.5},
	} {
		if _, err := ComputeTerms(betas); !errors.Is(err, ErrInvalidConfiguration) {
			t.Errorf("betas=%v: err = %v, erwartet ErrInvalidConfiguration", betas, err)
		}
	}
}
