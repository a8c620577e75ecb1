// MODUL: generate_test
// ZWECK: Tests fuer Options-Validierung und Batch-Generierung
package generate

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/pdevine/tensor"

	"github.com/vlabs/artemis/diffusion"
	"github.com/vlabs/artemis/store"
	"github.com/vlabs/artemis/unet"
)

func testGenerator(t *testing.T) *Generator {
	t.Helper()
	net, err := unet.New(unet.Config{ImageSize: 8, Channels: 1, BaseChannels: 8, ClassCount: 3})
	if err != nil {
		t.Fatal(err)
	}
	net.Init(11)

	g, err := New(&store.Model{
		Name: "tiny",
		Net:  net,
		Metadata: store.Metadata{
			Architecture: "unet",
			ImageSize:    8,
			Channels:     1,
			ClassCount:   3,
			BaseChannels: 8,
			Timesteps:    10,
			BetaSchedule: diffusion.ScheduleLinear,
		},
	})
	if err != nil {
		t.Fatal(err)
	}
	return g
}

func intp(v int) *int       { return &v }
func int64p(v int64) *int64 { return &v }

func TestNewComputesTerms(t *testing.T) {
	g := testGenerator(t)
	if got := g.Terms().Timesteps(); got != 10 {
		t.Errorf("Timesteps = %d, erwartet 10", got)
	}
}

func TestNewRejectsBadSchedule(t *testing.T) {
	_, err := New(&store.Model{
		Name:     "broken",
		Metadata: store.Metadata{Timesteps: 10, BetaSchedule: "quadratic"},
	})
	if !errors.Is(err, diffusion.ErrInvalidConfiguration) {
		t.Errorf("err = %v, erwartet ErrInvalidConfiguration", err)
	}
}

func TestGenerateInvalidOptions(t *testing.T) {
	g := testGenerator(t)
	ctx := context.Background()

	cases := []struct {
		name string
		opts Options
	}{
		{"Klasse zu gross", Options{Class: intp(3)}},
		{"Klasse negativ", Options{Class: intp(-1)}},
		{"unbekannter Sampler", Options{Sampler: "euler"}},
		{"ddpm mit Teilschritten", Options{Sampler: "ddpm", Steps: 5}},
	}
	for _, c := range cases {
		if _, err := g.Generate(ctx, c.opts, nil); !errors.Is(err, diffusion.ErrInvalidConfiguration) {
			t.Errorf("%s: err = %v, erwartet ErrInvalidConfiguration", c.name, err)
		}
	}
}

func TestGenerateDeterministicPerSeed(t *testing.T) {
	g := testGenerator(t)
	opts := Options{Seed: int64p(42), Batch: 2, Steps: 5, Sampler: "ddim"}

	a, err := g.Generate(context.Background(), opts, nil)
	if err != nil {
		t.Fatal(err)
	}
	b, err := g.Generate(context.Background(), opts, nil)
	if err != nil {
		t.Fatal(err)
	}

	if a.Seed != 42 || b.Seed != 42 {
		t.Errorf("Seed = %d/%d, erwartet 42", a.Seed, b.Seed)
	}
	as, bs := a.Output.Float32s(), b.Output.Float32s()
	for i := range as {
		if as[i] != bs[i] {
			t.Fatalf("gleicher Seed, unterschiedliches Ergebnis bei %d", i)
		}
	}
	if a.ID == b.ID {
		t.Error("Generierungs-IDs nicht eindeutig")
	}
}

func TestGenerateBatchShape(t *testing.T) {
	g := testGenerator(t)

	res, err := g.Generate(context.Background(), Options{
		Seed:  int64p(1),
		Batch: 3,
		Steps: 4,
		Class: intp(2),
	}, nil)
	if err != nil {
		t.Fatal(err)
	}

	if !res.Output.Shape().Eq(tensor.Shape{3, 1, 8, 8}) {
		t.Errorf("Form = %v, erwartet (3 1 8 8)", res.Output.Shape())
	}
	if res.Steps != 4 || res.Sampler != diffusion.SamplerDDIM {
		t.Errorf("Steps=%d Sampler=%s", res.Steps, res.Sampler)
	}
}

func TestGenerateProgress(t *testing.T) {
	g := testGenerator(t)

	var mu sync.Mutex
	var last, total int
	var calls int
	_, err := g.Generate(context.Background(), Options{Seed: int64p(2), Batch: 2, Steps: 5}, func(done, t int) {
		mu.Lock()
		defer mu.Unlock()
		calls++
		if done > last {
			last = done
		}
		total = t
	})
	if err != nil {
		t.Fatal(err)
	}

	if calls != 10 || last != 10 || total != 10 {
		t.Errorf("calls=%d last=%d total=%d, erwartet je 10", calls, last, total)
	}
}

func TestGenerateDefaultsToFullTrajectory(t *testing.T) {
	g := testGenerator(t)

	res, err := g.Generate(context.Background(), Options{Seed: int64p(3), Sampler: "ddpm"}, nil)
	if err != nil {
		t.Fatal(err)
	}
	if res.Steps != 10 || res.Sampler != diffusion.SamplerDDPM {
		t.Errorf("Steps=%d Sampler=%s, erwartet 10/ddpm", res.Steps, res.Sampler)
	}
	if !res.Output.Shape().Eq(tensor.Shape{1, 1, 8, 8}) {
		t.Errorf("Form = %v, erwartet (1 1 8 8)", res.Output.Shape())
	}
}

func TestGenerateCancellation(t *testing.T) {
	g := testGenerator(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	res, err := g.Generate(ctx, Options{Seed: int64p(4), Steps: 5}, nil)
	if !errors.Is(err, diffusion.ErrCancelled) && !errors.Is(err, context.Canceled) {
		t.Errorf("err = %v, erwartet Abbruchfehler", err)
	}

	// Auch der abgebrochene Lauf identifiziert sich, damit er in der
	// Historie landen kann.
	if res == nil {
		t.Fatal("bei Abbruch wird ein Teilergebnis erwartet")
	}
	if res.ID == "" || res.Seed != 4 || res.Steps != 5 {
		t.Errorf("Teilergebnis unvollstaendig: %+v", res)
	}
	if res.Output != nil {
		t.Error("abgebrochener Lauf traegt kein Ausgabe-Tensor")
	}
}
