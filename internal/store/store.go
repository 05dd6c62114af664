package store

import (
	"context"
	"errors"

	"github.com/DracoZBA/Watana/internal/models"
)

// ErrNotFound is returned when a requested row does not exist.
var ErrNotFound = errors.New("not found")

// Store is the persistence gateway for readings and the device registry.
type Store interface {
	CreateReading(ctx context.Context, reading *models.Reading) error
	ListReadings(ctx context.Context, deviceID string, limit int) ([]models.Reading, error)
	LatestReading(ctx context.Context, deviceID string) (*models.Reading, error)

	CreateDevice(ctx context.Context, device *models.Device) error
	GetDevice(ctx context.Context, id string) (*models.Device, error)
	ListDevices(ctx context.Context) ([]models.Device, error)
	UpdateDevice(ctx context.Context, device *models.Device) error
	DeleteDevice(ctx context.Context, id string) error
}
