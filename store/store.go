// Package store - Lokaler Modell-Speicher
//
// Dieses Modul enthaelt:
// - Store: explizites Handle auf ein Modell-Verzeichnis
// - List/Load/Save/Delete fuer GGUF-Modellfiles
// - Namensvorschlaege ueber Levenshtein-Distanz
package store

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/agnivade/levenshtein"

	"github.com/vlabs/artemis/diffusion"
	"github.com/vlabs/artemis/fs/gguf"
	"github.com/vlabs/artemis/unet"
)

// ErrModelNotFound is returned by Load and Delete for unknown names.
var ErrModelNotFound = errors.New("model not found")

const fileSuffix = ".gguf"

// Store is a handle on one models directory. There is deliberately no
// ambient global store: callers pass the handle around, which keeps
// concurrent generation requests with different roots isolated.
type Store struct {
	dir string
}

// Open returns a store rooted at dir, creating it if needed.
func Open(dir string) (*Store, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create models directory: %w", err)
	}
	return &Store{dir: dir}, nil
}

// Dir returns the store root.
func (s *Store) Dir() string { return s.dir }

// Metadata is the per-model record kept in the file's KV section.
type Metadata struct {
	Architecture   string                   `json:"architecture"`
	ImageSize      int                      `json:"image_size"`
	Channels       int                      `json:"channels"`
	ClassCount     int                      `json:"class_count"`
	BaseChannels   int                      `json:"base_channels"`
	Timesteps      int                      `json:"timesteps"`
	BetaSchedule   diffusion.SchedulePolicy `json:"beta_schedule"`
	ParameterCount uint64                   `json:"parameter_count,omitempty"`
}

// Entry describes one stored model without loading its weights.
type Entry struct {
	Name       string    `json:"name"`
	Size       int64     `json:"size"`
	ModifiedAt time.Time `json:"modified_at"`
	Metadata   Metadata  `json:"details"`
}

// Model is a fully loaded network plus its metadata.
type Model struct {
	Name     string
	Net      *unet.Model
	Metadata Metadata
}

// validName rejects anything that could escape the store directory.
func validName(name string) error {
	if name == "" || strings.ContainsAny(name, `/\`) || strings.Contains(name, "..") {
		return fmt.Errorf("%w: invalid model name %q", diffusion.ErrInvalidConfiguration, name)
	}
	return nil
}

func (s *Store) path(name string) string {
	return filepath.Join(s.dir, name+fileSuffix)
}

// List returns all stored models, sorted by the directory walk order.
func (s *Store) List() ([]Entry, error) {
	var entries []Entry
	err := filepath.WalkDir(s.dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil || d.IsDir() || !strings.HasSuffix(d.Name(), fileSuffix) {
			return err
		}

		entry, err := s.stat(strings.TrimSuffix(d.Name(), fileSuffix))
		if err != nil {
			slog.Warn("skipping unreadable model file", "path", path, "error", err)
			return nil
		}
		entries = append(entries, entry)
		return nil
	})
	return entries, err
}

// Show returns one model's entry without loading its weights.
func (s *Store) Show(name string) (Entry, error) {
	if err := validName(name); err != nil {
		return Entry{}, err
	}
	entry, err := s.stat(name)
	if errors.Is(err, fs.ErrNotExist) {
		return Entry{}, fmt.Errorf("%w: %q", ErrModelNotFound, name)
	}
	return entry, err
}

// stat reads metadata without the tensor data.
func (s *Store) stat(name string) (Entry, error) {
	f, err := os.Open(s.path(name))
	if err != nil {
		return Entry{}, err
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return Entry{}, err
	}

	mf, err := gguf.Decode(f)
	if err != nil {
		return Entry{}, err
	}

	return Entry{
		Name:       name,
		Size:       info.Size(),
		ModifiedAt: info.ModTime(),
		Metadata:   metadataFromKV(mf.KV),
	}, nil
}

func metadataFromKV(kv gguf.KV) Metadata {
	return Metadata{
		Architecture:   kv.Architecture(),
		ImageSize:      kv.ImageSize(),
		Channels:       kv.Channels(),
		ClassCount:     kv.ClassCount(),
		BaseChannels:   kv.BaseChannels(),
		Timesteps:      kv.DiffusionSteps(),
		BetaSchedule:   diffusion.SchedulePolicy(kv.BetaSchedule()),
		ParameterCount: kv.ParameterCount(),
	}
}

// Load reads a model and its weights. Unknown names get a "did you mean"
// suggestion based on edit distance.
func (s *Store) Load(name string) (*Model, error) {
	if err := validName(name); err != nil {
		return nil, err
	}

	f, err := os.Open(s.path(name))
	if errors.Is(err, fs.ErrNotExist) {
		if suggestion := s.suggest(name); suggestion != "" {
			return nil, fmt.Errorf("%w: %q, did you mean %q?", ErrModelNotFound, name, suggestion)
		}
		return nil, fmt.Errorf("%w: %q", ErrModelNotFound, name)
	} else if err != nil {
		return nil, err
	}
	defer f.Close()

	mf, err := gguf.Decode(f)
	if err != nil {
		return nil, fmt.Errorf("decode model %q: %w", name, err)
	}

	md := metadataFromKV(mf.KV)
	if md.Architecture != "unet" {
		return nil, fmt.Errorf("model %q has unsupported architecture %q", name, md.Architecture)
	}

	net, err := unet.New(unet.Config{
		ImageSize:    md.ImageSize,
		Channels:     md.Channels,
		BaseChannels: md.BaseChannels,
		ClassCount:   md.ClassCount,
	})
	if err != nil {
		return nil, err
	}
	if err := net.LoadTensors(mf, f); err != nil {
		return nil, fmt.Errorf("load model %q: %w", name, err)
	}

	return &Model{Name: name, Net: net, Metadata: md}, nil
}

// Save writes a model file atomically: into a temp file first, renamed
// over the target only on success.
func (s *Store) Save(name string, net *unet.Model, timesteps int, schedule diffusion.SchedulePolicy) error {
	if err := validName(name); err != nil {
		return err
	}
	if _, err := diffusion.BetaSchedule(schedule, timesteps); err != nil {
		return err
	}

	kv := net.KV()
	kv["general.name"] = name
	kv["general.parameter_count"] = net.ParameterCount()
	kv["diffusion.timesteps"] = uint32(timesteps)
	kv["diffusion.beta_schedule"] = string(schedule)

	tmp, err := os.CreateTemp(s.dir, name+".*.partial")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())

	if err := gguf.WriteGGUF(tmp, kv, net.Tensors()); err != nil {
		tmp.Close()
		return fmt.Errorf("write model %q: %w", name, err)
	}
	if err := tmp.Close(); err != nil {
		return err
	}

	slog.Info("saved model", "name", name, "parameters", net.ParameterCount())
	return os.Rename(tmp.Name(), s.path(name))
}

// Delete removes a stored model.
func (s *Store) Delete(name string) error {
	if err := validName(name); err != nil {
		return err
	}
	err := os.Remove(s.path(name))
	if errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("%w: %q", ErrModelNotFound, name)
	}
	return err
}

// suggest returns the closest stored name within a small edit distance.
func (s *Store) suggest(name string) string {
	entries, err := s.List()
	if err != nil {
		return ""
	}

	best, bestDist := "", 4
	for _, e := range entries {
		if d := levenshtein.ComputeDistance(name, e.Name); d < bestDist {
			best, bestDist = e.Name, d
		}
	}
	return best
}
