// Package server - Model CRUD Handler
// Beinhaltet: ListHandler, ShowHandler, DeleteHandler
package server

import (
	"cmp"
	"errors"
	"io"
	"net/http"
	"slices"

	"github.com/gin-gonic/gin"

	"github.com/vlabs/artemis/api"
	"github.com/vlabs/artemis/store"
)

func modelDetails(md store.Metadata) api.ModelDetails {
	return api.ModelDetails{
		Architecture:   md.Architecture,
		ImageSize:      md.ImageSize,
		Channels:       md.Channels,
		ClassCount:     md.ClassCount,
		BaseChannels:   md.BaseChannels,
		Timesteps:      md.Timesteps,
		BetaSchedule:   string(md.BetaSchedule),
		ParameterCount: md.ParameterCount,
	}
}

// ListHandler verarbeitet /api/tags Anfragen
func (s *Server) ListHandler(c *gin.Context) {
	entries, err := s.store.List()
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	models := []api.ListModelResponse{}
	for _, e := range entries {
		models = append(models, api.ListModelResponse{
			Name:       e.Name,
			Size:       e.Size,
			ModifiedAt: e.ModifiedAt,
			Details:    modelDetails(e.Metadata),
		})
	}

	slices.SortStableFunc(models, func(i, j api.ListModelResponse) int {
		return cmp.Compare(j.ModifiedAt.Unix(), i.ModifiedAt.Unix())
	})

	c.JSON(http.StatusOK, api.ListResponse{Models: models})
}

// ShowHandler verarbeitet /api/show Anfragen
func (s *Server) ShowHandler(c *gin.Context) {
	var r api.ShowRequest
	if err := c.ShouldBindJSON(&r); errors.Is(err, io.EOF) {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "missing request body"})
		return
	} else if err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	entry, err := s.store.Show(r.Model)
	if errors.Is(err, store.ErrModelNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		return
	} else if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, api.ShowResponse{
		Details:    modelDetails(entry.Metadata),
		Size:       entry.Size,
		ModifiedAt: entry.ModifiedAt,
	})
}

// DeleteHandler verarbeitet /api/delete Anfragen
func (s *Server) DeleteHandler(c *gin.Context) {
	var r api.DeleteRequest
	if err := c.ShouldBindJSON(&r); errors.Is(err, io.EOF) {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "missing request body"})
		return
	} else if err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if err := s.store.Delete(r.Model); errors.Is(err, store.ErrModelNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		return
	} else if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	s.unload(r.Model)
}
