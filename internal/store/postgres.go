package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/DracoZBA/Watana/internal/metrics"
	"github.com/DracoZBA/Watana/internal/models"
	"github.com/DracoZBA/Watana/pkg/logging"
)

// PostgresStore implements Store on top of PostgreSQL.
type PostgresStore struct {
	db      *sql.DB
	logger  logging.Logger
	metrics *metrics.Metrics
}

func NewPostgresStore(db *sql.DB, logger logging.Logger, m *metrics.Metrics) *PostgresStore {
	return &PostgresStore{db: db, logger: logger, metrics: m}
}

// observe records one query against the database metrics. A missing row is
// counted separately from real errors.
func (s *PostgresStore) observe(queryType string, start time.Time, err error) {
	if s.metrics == nil || s.metrics.DBQueries == nil {
		return
	}
	status := "ok"
	switch {
	case errors.Is(err, ErrNotFound):
		status = "not_found"
	case err != nil:
		status = "error"
	}
	s.metrics.DBQueries.WithLabelValues(queryType, status).Inc()
	s.metrics.DBQueryDuration.WithLabelValues(queryType).Observe(time.Since(start).Seconds())
}

// CreateReading inserts a reading, assigning a fresh id when the reading
// does not carry one.
func (s *PostgresStore) CreateReading(ctx context.Context, reading *models.Reading) (err error) {
	defer func(start time.Time) { s.observe("insert_reading", start, err) }(time.Now())

	if reading.ID == "" {
		reading.ID = uuid.New().String()
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO readings (id, device_id, reading_type, value, unit, location, timestamp)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		reading.ID, reading.DeviceID, reading.ReadingType, reading.Value,
		reading.Unit, reading.Location, reading.Timestamp)
	if err != nil {
		return fmt.Errorf("insert reading: %w", err)
	}
	return nil
}

// ListReadings returns readings newest-first, optionally filtered by device.
// The limit falls back to 100 when unset and is capped at 1000.
func (s *PostgresStore) ListReadings(ctx context.Context, deviceID string, limit int) (_ []models.Reading, err error) {
	defer func(start time.Time) { s.observe("list_readings", start, err) }(time.Now())

	if limit <= 0 {
		limit = 100
	}
	if limit > 1000 {
		limit = 1000
	}

	query := `
		SELECT id, device_id, reading_type, value, unit, location, timestamp
		FROM readings`
	args := []interface{}{}
	if deviceID != "" {
		query += ` WHERE device_id = $1`
		args = append(args, deviceID)
	}
	query += fmt.Sprintf(` ORDER BY timestamp DESC LIMIT %d`, limit)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list readings: %w", err)
	}
	defer rows.Close()

	var readings []models.Reading
	for rows.Next() {
		var r models.Reading
		if err := rows.Scan(&r.ID, &r.DeviceID, &r.ReadingType, &r.Value, &r.Unit, &r.Location, &r.Timestamp); err != nil {
			return nil, fmt.Errorf("scan reading: %w", err)
		}
		readings = append(readings, r)
	}
	return readings, rows.Err()
}

// LatestReading returns the newest reading for a device.
func (s *PostgresStore) LatestReading(ctx context.Context, deviceID string) (_ *models.Reading, err error) {
	defer func(start time.Time) { s.observe("latest_reading", start, err) }(time.Now())

	var r models.Reading
	err = s.db.QueryRowContext(ctx, `
		SELECT id, device_id, reading_type, value, unit, location, timestamp
		FROM readings
		WHERE device_id = $1
		ORDER BY timestamp DESC
		LIMIT 1`, deviceID).
		Scan(&r.ID, &r.DeviceID, &r.ReadingType, &r.Value, &r.Unit, &r.Location, &r.Timestamp)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("latest reading: %w", err)
	}
	return &r, nil
}

func (s *PostgresStore) CreateDevice(ctx context.Context, device *models.Device) (err error) {
	defer func(start time.Time) { s.observe("insert_device", start, err) }(time.Now())

	if device.ID == "" {
		device.ID = uuid.New().String()
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO devices (id, name, type, location, active)
		VALUES ($1, $2, $3, $4, $5)`,
		device.ID, device.Name, device.Type, device.Location, device.Active)
	if err != nil {
		return fmt.Errorf("insert device: %w", err)
	}
	return nil
}

func (s *PostgresStore) GetDevice(ctx context.Context, id string) (_ *models.Device, err error) {
	defer func(start time.Time) { s.observe("get_device", start, err) }(time.Now())

	var d models.Device
	err = s.db.QueryRowContext(ctx, `
		SELECT id, name, type, location, active
		FROM devices
		WHERE id = $1`, id).
		Scan(&d.ID, &d.Name, &d.Type, &d.Location, &d.Active)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get device: %w", err)
	}
	return &d, nil
}

func (s *PostgresStore) ListDevices(ctx context.Context) (_ []models.Device, err error) {
	defer func(start time.Time) { s.observe("list_devices", start, err) }(time.Now())

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, name, type, location, active
		FROM devices
		ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("list devices: %w", err)
	}
	defer rows.Close()

	var devices []models.Device
	for rows.Next() {
		var d models.Device
		if err := rows.Scan(&d.ID, &d.Name, &d.Type, &d.Location, &d.Active); err != nil {
			return nil, fmt.Errorf("scan device: %w", err)
		}
		devices = append(devices, d)
	}
	return devices, rows.Err()
}

func (s *PostgresStore) UpdateDevice(ctx context.Context, device *models.Device) (err error) {
	defer func(start time.Time) { s.observe("update_device", start, err) }(time.Now())

	result, err := s.db.ExecContext(ctx, `
		UPDATE devices
		SET name = $2, type = $3, location = $4, active = $5
		WHERE id = $1`,
		device.ID, device.Name, device.Type, device.Location, device.Active)
	if err != nil {
		return fmt.Errorf("update device: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("update device: %w", err)
	}
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *PostgresStore) DeleteDevice(ctx context.Context, id string) (err error) {
	defer func(start time.Time) { s.observe("delete_device", start, err) }(time.Now())

	result, err := s.db.ExecContext(ctx, `DELETE FROM devices WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete device: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete device: %w", err)
	}
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}
