package advisor

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/DracoZBA/Watana/pkg/clients"
	"github.com/DracoZBA/Watana/pkg/logging"
)

// Handler exposes the advisor over HTTP.
type Handler struct {
	service *Service
	logger  logging.Logger
}

func NewHandler(service *Service, logger logging.Logger) *Handler {
	return &Handler{service: service, logger: logger}
}

func (h *Handler) RegisterRoutes(r gin.IRouter) {
	advisor := r.Group("/api/advisor")
	advisor.POST("/analyze", h.Analyze)
	advisor.POST("/wildfire-risk", h.WildfireRisk)
	advisor.POST("/impact", h.Impact)
	advisor.POST("/reforestation", h.Reforestation)
}

func (h *Handler) Analyze(c *gin.Context) {
	var req AnalysisRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	h.respond(c, func(ctx context.Context) (string, error) {
		return h.service.AnalyzeSensorData(ctx, req)
	})
}

func (h *Handler) WildfireRisk(c *gin.Context) {
	var req WildfireRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	h.respond(c, func(ctx context.Context) (string, error) {
		return h.service.PredictWildfire(ctx, req)
	})
}

func (h *Handler) Impact(c *gin.Context) {
	var req ImpactRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	h.respond(c, func(ctx context.Context) (string, error) {
		return h.service.DetectEnvironmentalImpact(ctx, req)
	})
}

func (h *Handler) Reforestation(c *gin.Context) {
	var req ReforestationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	h.respond(c, func(ctx context.Context) (string, error) {
		return h.service.ReforestationGuidance(ctx, req)
	})
}

func (h *Handler) respond(c *gin.Context, run func(context.Context) (string, error)) {
	analysis, err := run(c.Request.Context())
	if errors.Is(err, clients.ErrCircuitOpen) {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "advisor temporarily unavailable"})
		return
	}
	if err != nil {
		h.logger.WithError(err).Error("Advisor request failed")
		c.JSON(http.StatusBadGateway, gin.H{"error": "advisor unavailable"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"analysis": analysis})
}
