package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/DracoZBA/Watana/internal/models"
)

const latestKeyPrefix = "reading:latest:"

// LatestCache keeps the most recent reading per device in Redis so the
// latest-reading endpoint can skip the database on the hot path.
type LatestCache struct {
	client *redis.Client
	ttl    time.Duration
}

func NewLatestCache(client *redis.Client, ttl time.Duration) *LatestCache {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &LatestCache{client: client, ttl: ttl}
}

func (c *LatestCache) SetLatest(ctx context.Context, reading *models.Reading) error {
	payload, err := json.Marshal(reading)
	if err != nil {
		return fmt.Errorf("marshal reading: %w", err)
	}
	if err := c.client.Set(ctx, latestKeyPrefix+reading.DeviceID, payload, c.ttl).Err(); err != nil {
		return fmt.Errorf("cache latest reading: %w", err)
	}
	return nil
}

// GetLatest returns the cached latest reading, or ErrNotFound on a miss.
func (c *LatestCache) GetLatest(ctx context.Context, deviceID string) (*models.Reading, error) {
	payload, err := c.client.Get(ctx, latestKeyPrefix+deviceID).Bytes()
	if err == redis.Nil {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get latest reading: %w", err)
	}

	var reading models.Reading
	if err := json.Unmarshal(payload, &reading); err != nil {
		return nil, fmt.Errorf("unmarshal cached reading: %w", err)
	}
	return &reading, nil
}
