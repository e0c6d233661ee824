package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/thermolog/pkg/storage"
	"github.com/thermolog/pkg/types"
)

func newTestServer(t *testing.T) (*Server, storage.Store) {
	t.Helper()

	store, err := storage.Open(&storage.Config{
		Path:             t.TempDir(),
		CompressionLevel: 2,
		EnableJournal:    false,
	})
	if err != nil {
		t.Fatalf("Failed to open store: %v", err)
	}
	t.Cleanup(func() { store.Close() })

	return NewServer(":0", store), store
}

func seedReadings(t *testing.T, store storage.Store) []types.Reading {
	t.Helper()

	readings := []types.Reading{
		{Timestamp: 1709298000, Temperature: 0x7AF2E, Humidity: 0xD8E24},
		{Timestamp: 1709557200, Temperature: 0x7EB95, Humidity: 0xD9669},
		{Timestamp: 1709384400, Temperature: 0x79496, Humidity: 0xDB372},
	}
	for _, r := range readings {
		if err := store.Insert(context.Background(), r); err != nil {
			t.Fatalf("Insert failed: %v", err)
		}
	}
	return readings
}

func TestHandleInsertAndTable(t *testing.T) {
	srv, _ := newTestServer(t)

	reading := types.Reading{Timestamp: 1709298000, Temperature: 0x7AF2E, Humidity: 0xD8E24}
	body, _ := json.Marshal(reading)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/readings", bytes.NewReader(body))
	rec := httptest.NewRecorder()
	srv.handleReadings(rec, req)

	if rec.Code != http.StatusCreated {
		t.Fatalf("insert status = %d, want %d", rec.Code, http.StatusCreated)
	}

	req = httptest.NewRequest(http.MethodGet, "/api/v1/readings", nil)
	rec = httptest.NewRecorder()
	srv.handleReadings(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("table status = %d, want %d", rec.Code, http.StatusOK)
	}

	var table tableResponse
	if err := json.NewDecoder(rec.Body).Decode(&table); err != nil {
		t.Fatalf("Failed to decode table: %v", err)
	}
	if table.Count != 1 {
		t.Errorf("table count = %d, want 1", table.Count)
	}
	if len(table.Readings) != 1 || table.Readings[0] != reading {
		t.Errorf("table readings = %+v", table.Readings)
	}
}

func TestHandleInsertRejectsBadPayload(t *testing.T) {
	srv, _ := newTestServer(t)

	tests := []struct {
		name string
		body string
		want int
	}{
		{"garbage", "not json", http.StatusBadRequest},
		{"negative timestamp", `{"timestamp":-1,"temperature":1,"humidity":1}`, http.StatusBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/api/v1/readings", bytes.NewBufferString(tt.body))
			rec := httptest.NewRecorder()
			srv.handleReadings(rec, req)

			if rec.Code != tt.want {
				t.Errorf("status = %d, want %d", rec.Code, tt.want)
			}
		})
	}
}

func TestHandleSearch(t *testing.T) {
	srv, store := newTestServer(t)
	readings := seedReadings(t, store)

	tests := []struct {
		name  string
		query string
		want  int
	}{
		{"hit", fmt.Sprintf("timestamp=%d", readings[0].Timestamp), http.StatusOK},
		{"miss", "timestamp=123456789", http.StatusNotFound},
		{"negative", "timestamp=-5", http.StatusBadRequest},
		{"missing", "", http.StatusBadRequest},
		{"garbage", "timestamp=tomorrow", http.StatusBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/api/v1/readings/search?"+tt.query, nil)
			rec := httptest.NewRecorder()
			srv.handleSearch(rec, req)

			if rec.Code != tt.want {
				t.Fatalf("status = %d, want %d", rec.Code, tt.want)
			}

			if tt.want == http.StatusOK {
				var got types.Reading
				if err := json.NewDecoder(rec.Body).Decode(&got); err != nil {
					t.Fatalf("Failed to decode reading: %v", err)
				}
				if got != readings[0] {
					t.Errorf("reading = %+v, want %+v", got, readings[0])
				}
			}
		})
	}
}

func TestHandleRange(t *testing.T) {
	srv, store := newTestServer(t)
	seedReadings(t, store)

	// Covers the two earlier readings, excludes the later one.
	url := fmt.Sprintf("/api/v1/readings/range?start=%d&end=%d", 1709298000, 1709557200)
	req := httptest.NewRequest(http.MethodGet, url, nil)
	rec := httptest.NewRecorder()
	srv.handleRange(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusOK)
	}

	var table tableResponse
	if err := json.NewDecoder(rec.Body).Decode(&table); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}
	if table.Count != 2 {
		t.Errorf("count = %d, want 2", table.Count)
	}
	for i := 1; i < len(table.Readings); i++ {
		if table.Readings[i].Timestamp <= table.Readings[i-1].Timestamp {
			t.Errorf("readings out of order at %d", i)
		}
	}
}

func TestHandleRangeRFC3339Bounds(t *testing.T) {
	srv, store := newTestServer(t)
	seedReadings(t, store)

	start := time.Unix(1709298000, 0).UTC().Format(time.RFC3339)
	end := time.Unix(1709557201, 0).UTC().Format(time.RFC3339)

	url := fmt.Sprintf("/api/v1/readings/range?start=%s&end=%s", start, end)
	req := httptest.NewRequest(http.MethodGet, url, nil)
	rec := httptest.NewRecorder()
	srv.handleRange(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusOK)
	}

	var table tableResponse
	if err := json.NewDecoder(rec.Body).Decode(&table); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}
	if table.Count != 3 {
		t.Errorf("count = %d, want 3", table.Count)
	}
}

func TestHandleRangeRejectsBadBounds(t *testing.T) {
	srv, _ := newTestServer(t)

	tests := []struct {
		name  string
		query string
	}{
		{"missing start", "end=100"},
		{"missing end", "start=100"},
		{"unparseable", "start=yesterday&end=100"},
		{"inverted", "start=200&end=100"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/api/v1/readings/range?"+tt.query, nil)
			rec := httptest.NewRecorder()
			srv.handleRange(rec, req)

			if rec.Code != http.StatusBadRequest {
				t.Errorf("status = %d, want %d", rec.Code, http.StatusBadRequest)
			}
		})
	}
}

func TestHandleHealth(t *testing.T) {
	srv, _ := newTestServer(t)

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()
	srv.handleHealth(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusOK)
	}

	var body map[string]string
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}
	if body["status"] != "healthy" {
		t.Errorf("status = %q, want healthy", body["status"])
	}
}
