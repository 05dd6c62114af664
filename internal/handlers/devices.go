package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/DracoZBA/Watana/internal/models"
	"github.com/DracoZBA/Watana/internal/store"
	"github.com/DracoZBA/Watana/pkg/logging"
)

// DeviceHandler serves the device registry CRUD endpoints.
type DeviceHandler struct {
	store  store.Store
	logger logging.Logger
}

func NewDeviceHandler(s store.Store, logger logging.Logger) *DeviceHandler {
	return &DeviceHandler{store: s, logger: logger}
}

func (h *DeviceHandler) RegisterRoutes(r gin.IRouter) {
	devices := r.Group("/api/devices")
	devices.POST("", h.Create)
	devices.GET("", h.List)
	devices.GET("/:id", h.Get)
	devices.PUT("/:id", h.Update)
	devices.DELETE("/:id", h.Delete)
}

func (h *DeviceHandler) Create(c *gin.Context) {
	var device models.Device
	if err := c.ShouldBindJSON(&device); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if err := h.store.CreateDevice(c.Request.Context(), &device); err != nil {
		h.logger.WithError(err).Error("Failed to create device")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to create device"})
		return
	}
	c.JSON(http.StatusCreated, device)
}

func (h *DeviceHandler) List(c *gin.Context) {
	devices, err := h.store.ListDevices(c.Request.Context())
	if err != nil {
		h.logger.WithError(err).Error("Failed to list devices")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to list devices"})
		return
	}
	if devices == nil {
		devices = []models.Device{}
	}
	c.JSON(http.StatusOK, devices)
}

func (h *DeviceHandler) Get(c *gin.Context) {
	device, err := h.store.GetDevice(c.Request.Context(), c.Param("id"))
	if errors.Is(err, store.ErrNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "device not found"})
		return
	}
	if err != nil {
		h.logger.WithError(err).Error("Failed to get device")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to get device"})
		return
	}
	c.JSON(http.StatusOK, device)
}

func (h *DeviceHandler) Update(c *gin.Context) {
	var device models.Device
	if err := c.ShouldBindJSON(&device); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	device.ID = c.Param("id")

	err := h.store.UpdateDevice(c.Request.Context(), &device)
	if errors.Is(err, store.ErrNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "device not found"})
		return
	}
	if err != nil {
		h.logger.WithError(err).Error("Failed to update device")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to update device"})
		return
	}
	c.JSON(http.StatusOK, device)
}

func (h *DeviceHandler) Delete(c *gin.Context) {
	err := h.store.DeleteDevice(c.Request.Context(), c.Param("id"))
	if errors.Is(err, store.ErrNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "device not found"})
		return
	}
	if err != nil {
		h.logger.WithError(err).Error("Failed to delete device")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to delete device"})
		return
	}
	c.Status(http.StatusNoContent)
}
