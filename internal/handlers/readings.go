package handlers

import (
	"context"
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/DracoZBA/Watana/internal/models"
	"github.com/DracoZBA/Watana/internal/store"
	"github.com/DracoZBA/Watana/pkg/logging"
)

// LatestSource answers latest-reading lookups ahead of the database,
// typically backed by Redis.
type LatestSource interface {
	GetLatest(ctx context.Context, deviceID string) (*models.Reading, error)
}

// ReadingsHandler serves historical and latest-reading queries.
type ReadingsHandler struct {
	store  store.Store
	cache  LatestSource
	logger logging.Logger
}

func NewReadingsHandler(s store.Store, cache LatestSource, logger logging.Logger) *ReadingsHandler {
	return &ReadingsHandler{store: s, cache: cache, logger: logger}
}

func (h *ReadingsHandler) RegisterRoutes(r gin.IRouter) {
	readings := r.Group("/api/readings")
	readings.GET("", h.List)
	readings.GET("/latest/:deviceId", h.Latest)
}

func (h *ReadingsHandler) List(c *gin.Context) {
	limit := 100
	if raw := c.Query("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "limit must be a positive integer"})
			return
		}
		limit = parsed
	}

	readings, err := h.store.ListReadings(c.Request.Context(), c.Query("deviceId"), limit)
	if err != nil {
		h.logger.WithError(err).Error("Failed to list readings")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to list readings"})
		return
	}
	if readings == nil {
		readings = []models.Reading{}
	}
	c.JSON(http.StatusOK, readings)
}

// Latest returns the most recent reading for a device, consulting the cache
// first and falling back to the database on a miss or cache error.
func (h *ReadingsHandler) Latest(c *gin.Context) {
	deviceID := c.Param("deviceId")

	if h.cache != nil {
		reading, err := h.cache.GetLatest(c.Request.Context(), deviceID)
		if err == nil {
			c.JSON(http.StatusOK, reading)
			return
		}
		if !errors.Is(err, store.ErrNotFound) {
			h.logger.WithError(err).Warn("Latest reading cache lookup failed")
		}
	}

	reading, err := h.store.LatestReading(c.Request.Context(), deviceID)
	if errors.Is(err, store.ErrNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "no readings for device"})
		return
	}
	if err != nil {
		h.logger.WithError(err).Error("Failed to get latest reading")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to get latest reading"})
		return
	}
	c.JSON(http.StatusOK, reading)
}
