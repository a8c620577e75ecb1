// Package convert - Import von PyTorch-Checkpoints
//
// Dieses Modul enthaelt:
// - Import: entpickelt ein U-Net state dict und legt es im Store ab
// - Ableitung der Architektur-Parameter aus den Tensor-Formen
package convert

import (
	"fmt"
	"log/slog"
	"strings"

	"github.com/nlpodyssey/gopickle/pytorch"
	"github.com/nlpodyssey/gopickle/types"

	"github.com/vlabs/artemis/diffusion"
	"github.com/vlabs/artemis/store"
	"github.com/vlabs/artemis/unet"
)

// Options carries import parameters that cannot be derived from the
// checkpoint tensors themselves.
type Options struct {
	ImageSize int
	Timesteps int
	Schedule  diffusion.SchedulePolicy
}

// weight is one unpickled tensor.
type weight struct {
	shape []int
	data  []float32
}

// Import reads a PyTorch U-Net checkpoint and saves it under name in the
// store. The network widths are derived from the tensor shapes; only the
// image size and diffusion schedule come from opts.
func Import(path, name string, st *store.Store, opts Options) error {
	if opts.Timesteps <= 0 {
		opts.Timesteps = 1000
	}
	if opts.Schedule == "" {
		opts.Schedule = diffusion.ScheduleLinear
	}

	weights, err := loadStateDict(path)
	if err != nil {
		return fmt.Errorf("load checkpoint %q: %w", path, err)
	}

	cfg, err := inferConfig(weights, opts.ImageSize)
	if err != nil {
		return err
	}
	slog.Info("importing checkpoint", "path", path, "name", name,
		"base_channels", cfg.BaseChannels, "channels", cfg.Channels, "classes", cfg.ClassCount)

	m, err := unet.New(cfg)
	if err != nil {
		return err
	}

	for _, p := range m.Params() {
		w, ok := weights[p.Name]
		if !ok {
			return fmt.Errorf("checkpoint is missing tensor %q", p.Name)
		}
		if len(w.data) != len(p.Data) {
			return fmt.Errorf("tensor %q has %d elements, expected %d", p.Name, len(w.data), len(p.Data))
		}
		copy(p.Data, w.data)
	}

	return st.Save(name, m, opts.Timesteps, opts.Schedule)
}

// loadStateDict unpickles the checkpoint into named float32 tensors.
// Checkpoints saved as {"state_dict": {...}} are unwrapped first, and a
// leading "module." from DataParallel training is stripped.
func loadStateDict(path string) (map[string]weight, error) {
	m, err := pytorch.Load(path)
	if err != nil {
		return nil, err
	}

	dict, ok := m.(*types.Dict)
	if !ok {
		return nil, fmt.Errorf("unexpected checkpoint root type %T", m)
	}
	if sd, ok := dict.Get("state_dict"); ok {
		if inner, ok := sd.(*types.Dict); ok {
			dict = inner
		}
	}

	weights := make(map[string]weight, dict.Len())
	for _, k := range dict.Keys() {
		key, ok := k.(string)
		if !ok {
			continue
		}
		key = strings.TrimPrefix(key, "module.")

		t, ok := dict.MustGet(k).(*pytorch.Tensor)
		if !ok {
			slog.Debug("skipping non-tensor entry", "key", key)
			continue
		}

		data, err := storageFloats(t.Source)
		if err != nil {
			return nil, fmt.Errorf("tensor %q: %w", key, err)
		}

		weights[key] = weight{shape: t.Size, data: data}
	}

	return weights, nil
}

// storageFloats widens any supported torch storage to float32.
func storageFloats(s pytorch.StorageInterface) ([]float32, error) {
	switch s := s.(type) {
	case *pytorch.FloatStorage:
		return s.Data, nil
	case *pytorch.HalfStorage:
		return s.Data, nil
	case *pytorch.BFloat16Storage:
		return s.Data, nil
	default:
		return nil, fmt.Errorf("unknown data type: %T", s)
	}
}

// inferConfig derives the network layout from well-known tensor shapes:
// conv_in gives base and image channels, label_embed gives the class
// count (one row is the null class).
func inferConfig(weights map[string]weight, imageSize int) (unet.Config, error) {
	convIn, ok := weights["conv_in.weight"]
	if !ok || len(convIn.shape) != 4 {
		return unet.Config{}, fmt.Errorf("%w: checkpoint has no conv_in.weight", diffusion.ErrInvalidConfiguration)
	}

	label, ok := weights["label_embed.weight"]
	if !ok || len(label.shape) != 2 {
		return unet.Config{}, fmt.Errorf("%w: checkpoint has no label_embed.weight", diffusion.ErrInvalidConfiguration)
	}

	return unet.Config{
		ImageSize:    imageSize,
		Channels:     convIn.shape[1],
		BaseChannels: convIn.shape[0],
		ClassCount:   label.shape[0] - 1,
	}, nil
}
