package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/DracoZBA/Watana/internal/models"
	"github.com/DracoZBA/Watana/internal/store"
	"github.com/DracoZBA/Watana/pkg/logging"
)

// memStore is an in-memory Store for handler tests.
type memStore struct {
	devices  map[string]models.Device
	readings []models.Reading
	fail     bool
}

func newMemStore() *memStore {
	return &memStore{devices: make(map[string]models.Device)}
}

var errBoom = errors.New("boom")

func (m *memStore) CreateReading(_ context.Context, r *models.Reading) error {
	if m.fail {
		return errBoom
	}
	if r.ID == "" {
		r.ID = "r-mem"
	}
	m.readings = append(m.readings, *r)
	return nil
}

func (m *memStore) ListReadings(_ context.Context, deviceID string, limit int) ([]models.Reading, error) {
	if m.fail {
		return nil, errBoom
	}
	var out []models.Reading
	for i := len(m.readings) - 1; i >= 0 && len(out) < limit; i-- {
		if deviceID == "" || m.readings[i].DeviceID == deviceID {
			out = append(out, m.readings[i])
		}
	}
	return out, nil
}

func (m *memStore) LatestReading(_ context.Context, deviceID string) (*models.Reading, error) {
	if m.fail {
		return nil, errBoom
	}
	for i := len(m.readings) - 1; i >= 0; i-- {
		if m.readings[i].DeviceID == deviceID {
			r := m.readings[i]
			return &r, nil
		}
	}
	return nil, store.ErrNotFound
}

func (m *memStore) CreateDevice(_ context.Context, d *models.Device) error {
	if m.fail {
		return errBoom
	}
	if d.ID == "" {
		d.ID = "dev-mem"
	}
	m.devices[d.ID] = *d
	return nil
}

func (m *memStore) GetDevice(_ context.Context, id string) (*models.Device, error) {
	if m.fail {
		return nil, errBoom
	}
	d, ok := m.devices[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	return &d, nil
}

func (m *memStore) ListDevices(_ context.Context) ([]models.Device, error) {
	if m.fail {
		return nil, errBoom
	}
	var out []models.Device
	for _, d := range m.devices {
		out = append(out, d)
	}
	return out, nil
}

func (m *memStore) UpdateDevice(_ context.Context, d *models.Device) error {
	if m.fail {
		return errBoom
	}
	if _, ok := m.devices[d.ID]; !ok {
		return store.ErrNotFound
	}
	m.devices[d.ID] = *d
	return nil
}

func (m *memStore) DeleteDevice(_ context.Context, id string) error {
	if m.fail {
		return errBoom
	}
	if _, ok := m.devices[id]; !ok {
		return store.ErrNotFound
	}
	delete(m.devices, id)
	return nil
}

type fakeLatestSource struct {
	reading *models.Reading
	err     error
}

func (f *fakeLatestSource) GetLatest(context.Context, string) (*models.Reading, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.reading, nil
}

func newTestRouter(s store.Store, cache LatestSource) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	logger := logging.NewLogger()
	NewDeviceHandler(s, logger).RegisterRoutes(r)
	NewReadingsHandler(s, cache, logger).RegisterRoutes(r)
	return r
}

func doJSON(t *testing.T, r *gin.Engine, method, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode body: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestCreateDevice(t *testing.T) {
	r := newTestRouter(newMemStore(), nil)

	w := doJSON(t, r, http.MethodPost, "/api/devices", models.Device{
		Name: "North tower sensor", Type: "temperature", Location: "sector-7", Active: true,
	})
	if w.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", w.Code, w.Body.String())
	}

	var created models.Device
	if err := json.Unmarshal(w.Body.Bytes(), &created); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if created.ID == "" {
		t.Fatal("expected an assigned id in the response")
	}
}

func TestCreateDevice_ValidationFailure(t *testing.T) {
	r := newTestRouter(newMemStore(), nil)

	// Name below the 3-character minimum.
	w := doJSON(t, r, http.MethodPost, "/api/devices", models.Device{
		Name: "ab", Type: "temperature", Location: "sector-7",
	})
	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", w.Code)
	}
}

func TestGetDevice_NotFound(t *testing.T) {
	r := newTestRouter(newMemStore(), nil)

	w := doJSON(t, r, http.MethodGet, "/api/devices/missing", nil)
	if w.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", w.Code)
	}
}

func TestDeviceLifecycle(t *testing.T) {
	s := newMemStore()
	s.devices["dev-1"] = models.Device{ID: "dev-1", Name: "Old name here", Type: "temperature", Location: "sector-7"}
	r := newTestRouter(s, nil)

	w := doJSON(t, r, http.MethodPut, "/api/devices/dev-1", models.Device{
		Name: "New name here", Type: "temperature", Location: "sector-7", Active: true,
	})
	if w.Code != http.StatusOK {
		t.Fatalf("update: expected 200, got %d: %s", w.Code, w.Body.String())
	}
	if s.devices["dev-1"].Name != "New name here" {
		t.Fatalf("update did not stick: %+v", s.devices["dev-1"])
	}

	w = doJSON(t, r, http.MethodDelete, "/api/devices/dev-1", nil)
	if w.Code != http.StatusNoContent {
		t.Fatalf("delete: expected 204, got %d", w.Code)
	}

	w = doJSON(t, r, http.MethodDelete, "/api/devices/dev-1", nil)
	if w.Code != http.StatusNotFound {
		t.Fatalf("second delete: expected 404, got %d", w.Code)
	}
}

func TestListDevices_EmptyIsArray(t *testing.T) {
	r := newTestRouter(newMemStore(), nil)

	w := doJSON(t, r, http.MethodGet, "/api/devices", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	if got := w.Body.String(); got != "[]" {
		t.Fatalf("expected empty array, got %q", got)
	}
}

func TestListReadings(t *testing.T) {
	s := newMemStore()
	s.readings = []models.Reading{
		{ID: "r-1", DeviceID: "d1", ReadingType: "temperature", Value: 1, Timestamp: time.Now()},
		{ID: "r-2", DeviceID: "d2", ReadingType: "temperature", Value: 2, Timestamp: time.Now()},
		{ID: "r-3", DeviceID: "d1", ReadingType: "temperature", Value: 3, Timestamp: time.Now()},
	}
	r := newTestRouter(s, nil)

	w := doJSON(t, r, http.MethodGet, "/api/readings?deviceId=d1&limit=10", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	var readings []models.Reading
	if err := json.Unmarshal(w.Body.Bytes(), &readings); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if len(readings) != 2 || readings[0].ID != "r-3" {
		t.Fatalf("unexpected readings %+v", readings)
	}
}

func TestListReadings_BadLimit(t *testing.T) {
	r := newTestRouter(newMemStore(), nil)

	w := doJSON(t, r, http.MethodGet, "/api/readings?limit=zero", nil)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", w.Code)
	}
}

func TestLatestReading_CacheHit(t *testing.T) {
	cache := &fakeLatestSource{reading: &models.Reading{ID: "cached", DeviceID: "d1", ReadingType: "temperature", Value: 9}}
	r := newTestRouter(newMemStore(), cache)

	w := doJSON(t, r, http.MethodGet, "/api/readings/latest/d1", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	var reading models.Reading
	if err := json.Unmarshal(w.Body.Bytes(), &reading); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if reading.ID != "cached" {
		t.Fatalf("expected the cached reading, got %+v", reading)
	}
}

func TestLatestReading_CacheMissFallsBack(t *testing.T) {
	s := newMemStore()
	s.readings = []models.Reading{{ID: "r-1", DeviceID: "d1", ReadingType: "temperature", Value: 1}}
	cache := &fakeLatestSource{err: store.ErrNotFound}
	r := newTestRouter(s, cache)

	w := doJSON(t, r, http.MethodGet, "/api/readings/latest/d1", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
}

func TestLatestReading_NotFound(t *testing.T) {
	r := newTestRouter(newMemStore(), nil)

	w := doJSON(t, r, http.MethodGet, "/api/readings/latest/missing", nil)
	if w.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", w.Code)
	}
}

func TestStoreErrorsReturn500(t *testing.T) {
	s := newMemStore()
	s.fail = true
	r := newTestRouter(s, nil)

	for _, path := range []string{"/api/devices", "/api/readings"} {
		w := doJSON(t, r, http.MethodGet, path, nil)
		if w.Code != http.StatusInternalServerError {
			t.Fatalf("%s: expected 500, got %d", path, w.Code)
		}
	}
}
