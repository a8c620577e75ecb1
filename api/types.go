// Package api - Typen des Artemis API-Vertrags.
// Dieses Modul enthaelt Request/Response-Strukturen fuer Client und Server.
package api

import (
	"fmt"
	"net/http"
	"time"
)

// StatusError is the error type returned for non-2xx responses.
type StatusError struct {
	StatusCode   int    `json:"-"`
	Status       string `json:"-"`
	ErrorMessage string `json:"error"`
}

func (e StatusError) Error() string {
	switch {
	case e.Status != "" && e.ErrorMessage != "":
		return fmt.Sprintf("%s: %s", e.Status, e.ErrorMessage)
	case e.Status != "":
		return e.Status
	case e.ErrorMessage != "":
		return e.ErrorMessage
	default:
		return fmt.Sprintf("%d %s", e.StatusCode, http.StatusText(e.StatusCode))
	}
}

// GenerateRequest describes one image generation. A nil Class requests an
// unconditional sample; a nil Seed picks a random seed.
type GenerateRequest struct {
	Model   string   `json:"model"`
	Class   *int     `json:"class,omitempty"`
	Batch   int      `json:"batch,omitempty"`
	Seed    *int64   `json:"seed,omitempty"`
	Steps   int      `json:"steps,omitempty"`
	Sampler string   `json:"sampler,omitempty"`
	Eta     *float64 `json:"eta,omitempty"`
	Size    int      `json:"size,omitempty"`
}

// GenerateResponse is one ndjson frame of a generation stream. Progress
// frames carry Step/TotalSteps; the final frame has Done set and carries
// the base64-encoded PNG images.
type GenerateResponse struct {
	ID         string    `json:"id"`
	Model      string    `json:"model"`
	CreatedAt  time.Time `json:"created_at"`
	Step       int       `json:"step,omitempty"`
	TotalSteps int       `json:"total_steps,omitempty"`
	Done       bool      `json:"done"`
	DoneReason string    `json:"done_reason,omitempty"`
	Images     []string  `json:"images,omitempty"`

	TotalDuration time.Duration `json:"total_duration,omitempty"`
	LoadDuration  time.Duration `json:"load_duration,omitempty"`
	Seed          int64         `json:"seed,omitempty"`
}

// ModelDetails mirrors the metadata stored with a model.
type ModelDetails struct {
	Architecture   string `json:"architecture"`
	ImageSize      int    `json:"image_size"`
	Channels       int    `json:"channels"`
	ClassCount     int    `json:"class_count"`
	BaseChannels   int    `json:"base_channels"`
	Timesteps      int    `json:"timesteps"`
	BetaSchedule   string `json:"beta_schedule"`
	ParameterCount uint64 `json:"parameter_count,omitempty"`
}

// ListModelResponse is one entry of ListResponse.
type ListModelResponse struct {
	Name       string       `json:"name"`
	Size       int64        `json:"size"`
	ModifiedAt time.Time    `json:"modified_at"`
	Details    ModelDetails `json:"details"`
}

// ListResponse is the response of GET /api/tags.
type ListResponse struct {
	Models []ListModelResponse `json:"models"`
}

// ShowRequest is the request of POST /api/show.
type ShowRequest struct {
	Model string `json:"model"`
}

// ShowResponse is the response of POST /api/show.
type ShowResponse struct {
	Details    ModelDetails `json:"details"`
	Size       int64        `json:"size"`
	ModifiedAt time.Time    `json:"modified_at"`
}

// DeleteRequest is the request of DELETE /api/delete.
type DeleteRequest struct {
	Model string `json:"model"`
}

// GenerationRecord is one row of the generation history. Status is the
// terminal state of the run ("stop" or "cancelled"); OutputPath is only
// set when the images were written to disk rather than streamed.
type GenerationRecord struct {
	ID         string        `json:"id"`
	Model      string        `json:"model"`
	Class      *int          `json:"class,omitempty"`
	Seed       int64         `json:"seed"`
	Steps      int           `json:"steps"`
	Sampler    string        `json:"sampler"`
	Batch      int           `json:"batch"`
	CreatedAt  time.Time     `json:"created_at"`
	Duration   time.Duration `json:"duration"`
	Status     string        `json:"status"`
	OutputPath string        `json:"output_path,omitempty"`
}

// HistoryResponse is the response of GET /api/history.
type HistoryResponse struct {
	Generations []GenerationRecord `json:"generations"`
}
