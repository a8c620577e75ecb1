// Package server - Generierungs-Handler
// Beinhaltet: GenerateHandler mit ndjson-Streaming und Modell-Cache
package server

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/vlabs/artemis/api"
	"github.com/vlabs/artemis/diffusion"
	"github.com/vlabs/artemis/envconfig"
	"github.com/vlabs/artemis/generate"
	"github.com/vlabs/artemis/imaging"
	"github.com/vlabs/artemis/store"
)

// generator returns a cached generator for the model, loading it on first
// use. Delete invalidates the cache entry.
func (s *Server) generator(name string) (*generate.Generator, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if g, ok := s.loaded[name]; ok {
		return g, nil
	}

	start := time.Now()
	m, err := s.store.Load(name)
	if err != nil {
		return nil, err
	}
	g, err := generate.New(m)
	if err != nil {
		return nil, err
	}
	slog.Info("model loaded", "name", name, "duration", time.Since(start))

	s.loaded[name] = g
	return g, nil
}

func (s *Server) unload(name string) {
	s.mu.Lock()
	delete(s.loaded, name)
	s.mu.Unlock()
}

// GenerateHandler verarbeitet /api/generate Anfragen
func (s *Server) GenerateHandler(c *gin.Context) {
	var req api.GenerateRequest
	if err := c.ShouldBindJSON(&req); errors.Is(err, io.EOF) {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "missing request body"})
		return
	} else if err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if req.Model == "" {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "model is required"})
		return
	}
	if req.Batch > int(envconfig.MaxBatch()) {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": fmt.Sprintf("batch %d exceeds limit %d", req.Batch, envconfig.MaxBatch())})
		return
	}

	// serialise against the queue limit, respecting client disconnect
	select {
	case s.sem <- struct{}{}:
		defer func() { <-s.sem }()
	case <-c.Request.Context().Done():
		return
	}

	loadStart := time.Now()
	g, err := s.generator(req.Model)
	if err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, store.ErrModelNotFound) {
			status = http.StatusNotFound
		} else if errors.Is(err, diffusion.ErrInvalidConfiguration) {
			status = http.StatusBadRequest
		}
		c.AbortWithStatusJSON(status, gin.H{"error": err.Error()})
		return
	}
	loadDuration := time.Since(loadStart)

	opts := generate.Options{
		Class:   req.Class,
		Batch:   req.Batch,
		Seed:    req.Seed,
		Steps:   req.Steps,
		Sampler: req.Sampler,
	}
	if req.Eta != nil {
		opts.Eta = *req.Eta
	}

	ch := make(chan any, 16)
	go func() {
		defer close(ch)

		createdAt := time.Now().UTC()
		progress := func(done, total int) {
			// progress must never block the sampling loop
			select {
			case ch <- api.GenerateResponse{
				Model:      req.Model,
				CreatedAt:  createdAt,
				Step:       done,
				TotalSteps: total,
			}:
			default:
			}
		}

		res, err := g.Generate(c.Request.Context(), opts, progress)
		if errors.Is(err, diffusion.ErrCancelled) || errors.Is(err, context.Canceled) {
			slog.Debug("generation cancelled", "model", req.Model)
			if res != nil {
				s.record(req, res, "cancelled")
			}
			return
		} else if err != nil {
			status := http.StatusInternalServerError
			if errors.Is(err, diffusion.ErrInvalidConfiguration) {
				status = http.StatusBadRequest
			}
			ch <- gin.H{"error": err.Error(), "status": status}
			return
		}

		images, err := encodeImages(res.Output, req.Size)
		if err != nil {
			ch <- gin.H{"error": err.Error(), "status": http.StatusInternalServerError}
			return
		}

		ch <- api.GenerateResponse{
			ID:            res.ID,
			Model:         req.Model,
			CreatedAt:     createdAt,
			Done:          true,
			DoneReason:    "stop",
			Images:        images,
			Seed:          res.Seed,
			LoadDuration:  loadDuration,
			TotalDuration: res.Duration + loadDuration,
		}

		s.record(req, res, "stop")
	}()

	streamResponse(c, ch)
}

// encodeImages renders every sample of the batch as base64 PNG.
func encodeImages(out *diffusion.Image, size int) ([]string, error) {
	batch := out.Shape()[0]
	images := make([]string, batch)
	for i := range batch {
		png, err := imaging.EncodePNG(out, i, size)
		if err != nil {
			return nil, err
		}
		images[i] = base64.StdEncoding.EncodeToString(png)
	}
	return images, nil
}

// record writes the generation into the history log with its terminal
// status ("stop" or "cancelled").
func (s *Server) record(req api.GenerateRequest, res *generate.Result, status string) {
	if s.history == nil {
		return
	}

	err := s.history.Record(api.GenerationRecord{
		ID:        res.ID,
		Model:     req.Model,
		Class:     req.Class,
		Seed:      res.Seed,
		Steps:     res.Steps,
		Sampler:   string(res.Sampler),
		Batch:     max(req.Batch, 1),
		CreatedAt: time.Now().UTC(),
		Duration:  res.Duration,
		Status:    status,
	})
	if err != nil {
		slog.Warn("failed to record generation", "id", res.ID, "error", err)
	}
}
