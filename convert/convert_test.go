// MODUL: convert_test
// ZWECK: Tests fuer die Ableitung der Architektur aus Checkpoint-Tensoren
package convert

import (
	"errors"
	"testing"

	"github.com/nlpodyssey/gopickle/pytorch"

	"github.com/vlabs/artemis/diffusion"
)

func TestInferConfig(t *testing.T) {
	weights := map[string]weight{
		"conv_in.weight":     {shape: []int{64, 3, 3, 3}},
		"label_embed.weight": {shape: []int{11, 256}},
	}

	cfg, err := inferConfig(weights, 32)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.ImageSize != 32 || cfg.Channels != 3 || cfg.BaseChannels != 64 || cfg.ClassCount != 10 {
		t.Errorf("Config = %+v", cfg)
	}
}

func TestInferConfigMissingTensors(t *testing.T) {
	cases := map[string]map[string]weight{
		"ohne conv_in": {
			"label_embed.weight": {shape: []int{11, 256}},
		},
		"ohne label_embed": {
			"conv_in.weight": {shape: []int{64, 3, 3, 3}},
		},
		"conv_in falsche Form": {
			"conv_in.weight":     {shape: []int{64, 3}},
			"label_embed.weight": {shape: []int{11, 256}},
		},
	}

	for name, weights := range cases {
		if _, err := inferConfig(weights, 32); !errors.Is(err, diffusion.ErrInvalidConfiguration) {
			t.Errorf("%s: err = %v, erwartet ErrInvalidConfiguration", name, err)
		}
	}
}

func TestStorageFloats(t *testing.T) {
	data := []float32{1, 2, 3}

	got, err := storageFloats(&pytorch.FloatStorage{Data: data})
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 3 || got[2] != 3 {
		t.Errorf("FloatStorage = %v", got)
	}

	got, err = storageFloats(&pytorch.HalfStorage{Data: data})
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 3 {
		t.Errorf("HalfStorage = %v", got)
	}

	if _, err := storageFloats(&pytorch.DoubleStorage{}); err == nil {
		t.Error("DoubleStorage wurde akzeptiert")
	}
}
