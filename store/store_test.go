// MODUL: store_test
// ZWECK: Tests fuer Save/Load/List/Show/Delete des Modell-Speichers
package store

import (
	"errors"
	"strings"
	"testing"

	"github.com/vlabs/artemis/diffusion"
	"github.com/vlabs/artemis/unet"
)

func testStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	return s
}

func testNet(t *testing.T) *unet.Model {
	t.Helper()
	net, err := unet.New(unet.Config{ImageSize: 8, Channels: 1, BaseChannels: 8, ClassCount: 2})
	if err != nil {
		t.Fatal(err)
	}
	net.Init(7)
	return net
}

func TestSaveLoadRoundtrip(t *testing.T) {
	s := testStore(t)
	net := testNet(t)

	if err := s.Save("mnist", net, 100, diffusion.ScheduleCosine); err != nil {
		t.Fatal(err)
	}

	m, err := s.Load("mnist")
	if err != nil {
		t.Fatal(err)
	}

	md := m.Metadata
	if md.Architecture != "unet" || md.ImageSize != 8 || md.Channels != 1 ||
		md.ClassCount != 2 || md.BaseChannels != 8 ||
		md.Timesteps != 100 || md.BetaSchedule != diffusion.ScheduleCosine {
		t.Errorf("Metadata = %+v", md)
	}
	if md.ParameterCount != net.ParameterCount() {
		t.Errorf("ParameterCount = %d, erwartet %d", md.ParameterCount, net.ParameterCount())
	}

	// Jeder Tensor muss bitgleich zurueckkommen.
	want, got := net.Params(), m.Net.Params()
	for i := range want {
		if want[i].Name != got[i].Name {
			t.Fatalf("Param %d: %q != %q", i, got[i].Name, want[i].Name)
		}
		for j := range want[i].Data {
			if want[i].Data[j] != got[i].Data[j] {
				t.Fatalf("%s[%d]: %g != %g", want[i].Name, j, got[i].Data[j], want[i].Data[j])
			}
		}
	}
}

func TestListAndShow(t *testing.T) {
	s := testStore(t)
	net := testNet(t)

	for _, name := range []string{"alpha", "beta"} {
		if err := s.Save(name, net, 50, diffusion.ScheduleLinear); err != nil {
			t.Fatal(err)
		}
	}

	entries, err := s.List()
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 2 {
		t.Fatalf("List = %d Eintraege, erwartet 2", len(entries))
	}
	for _, e := range entries {
		if e.Size <= 0 || e.ModifiedAt.IsZero() {
			t.Errorf("Eintrag %q unvollstaendig: %+v", e.Name, e)
		}
	}

	entry, err := s.Show("alpha")
	if err != nil {
		t.Fatal(err)
	}
	if entry.Name != "alpha" || entry.Metadata.Timesteps != 50 {
		t.Errorf("Show = %+v", entry)
	}

	if _, err := s.Show("gamma"); !errors.Is(err, ErrModelNotFound) {
		t.Errorf("Show(gamma) err = %v, erwartet ErrModelNotFound", err)
	}
}

func TestLoadSuggestsClosestName(t *testing.T) {
	s := testStore(t)
	if err := s.Save("cifar10", testNet(t), 100, diffusion.ScheduleLinear); err != nil {
		t.Fatal(err)
	}

	_, err := s.Load("cifar1")
	if !errors.Is(err, ErrModelNotFound) {
		t.Fatalf("err = %v, erwartet ErrModelNotFound", err)
	}
	if !strings.Contains(err.Error(), "cifar10") {
		t.Errorf("Fehlermeldung ohne Vorschlag: %v", err)
	}
}

func TestDelete(t *testing.T) {
	s := testStore(t)
	if err := s.Save("doomed", testNet(t), 100, diffusion.ScheduleLinear); err != nil {
		t.Fatal(err)
	}

	if err := s.Delete("doomed"); err != nil {
		t.Fatal(err)
	}
	if _, err := s.Load("doomed"); !errors.Is(err, ErrModelNotFound) {
		t.Errorf("Load nach Delete err = %v, erwartet ErrModelNotFound", err)
	}
	if err := s.Delete("doomed"); !errors.Is(err, ErrModelNotFound) {
		t.Errorf("doppeltes Delete err = %v, erwartet ErrModelNotFound", err)
	}
}

func TestSaveRejectsBadInput(t *testing.T) {
	s := testStore(t)
	net := testNet(t)

	for _, name := range []string{"", "a/b", `a\b`, "../escape"} {
		if err := s.Save(name, net, 100, diffusion.ScheduleLinear); !errors.Is(err, diffusion.ErrInvalidConfiguration) {
			t.Errorf("Name %q: err = %v, erwartet ErrInvalidConfiguration", name, err)
		}
	}

	if err := s.Save("ok", net, 0, diffusion.ScheduleLinear); !errors.Is(err, diffusion.ErrInvalidConfiguration) {
		t.Errorf("timesteps=0: err = %v, erwartet ErrInvalidConfiguration", err)
	}
	if err := s.Save("ok", net, 100, "quadratic"); !errors.Is(err, diffusion.ErrInvalidConfiguration) {
		t.Errorf("unbekannter Schedule: err = %v, erwartet ErrInvalidConfiguration", err)
	}
}
