// Package api exposes the reading store over HTTP. The store
// serializes access internally, so handlers run concurrently without
// extra locking here.
package api

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/thermolog/pkg/bst"
	"github.com/thermolog/pkg/storage"
	"github.com/thermolog/pkg/types"
)

// Server implements the HTTP API server.
type Server struct {
	store  storage.Store
	addr   string
	server *http.Server
}

// NewServer creates a new API server.
func NewServer(addr string, store storage.Store) *Server {
	return &Server{
		store: store,
		addr:  addr,
	}
}

// Start starts the HTTP server.
func (s *Server) Start() error {
	mux := http.NewServeMux()

	mux.HandleFunc("/api/v1/readings", s.handleReadings)
	mux.HandleFunc("/api/v1/readings/search", s.handleSearch)
	mux.HandleFunc("/api/v1/readings/range", s.handleRange)
	mux.HandleFunc("/health", s.handleHealth)

	s.server = &http.Server{
		Addr:         s.addr,
		Handler:      mux,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
	}

	return s.server.ListenAndServe()
}

// Stop stops the HTTP server.
func (s *Server) Stop(ctx context.Context) error {
	if s.server != nil {
		return s.server.Shutdown(ctx)
	}
	return nil
}

// tableResponse carries readings plus their count, which is reported
// as metadata ahead of the list itself.
type tableResponse struct {
	Count    int             `json:"count"`
	Readings []types.Reading `json:"readings"`
}

// handleReadings serves the collection: POST inserts one reading, GET
// returns the full table in ascending timestamp order.
func (s *Server) handleReadings(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodPost:
		s.handleInsert(w, r)
	case http.MethodGet:
		s.handleTable(w, r)
	default:
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
	}
}

func (s *Server) handleInsert(w http.ResponseWriter, r *http.Request) {
	var reading types.Reading
	if err := json.NewDecoder(r.Body).Decode(&reading); err != nil {
		http.Error(w, "invalid reading payload", http.StatusBadRequest)
		return
	}

	if reading.Timestamp < 0 {
		http.Error(w, "negative timestamp", http.StatusBadRequest)
		return
	}

	if err := s.store.Insert(r.Context(), reading); err != nil {
		logrus.WithError(err).Error("insert failed")
		http.Error(w, "insert failed", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(map[string]string{
		"status": "success",
	})
}

func (s *Server) handleTable(w http.ResponseWriter, r *http.Request) {
	readings, err := s.store.All(r.Context())
	if err != nil {
		logrus.WithError(err).Error("table dump failed")
		http.Error(w, "table dump failed", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(tableResponse{
		Count:    len(readings),
		Readings: readings,
	})
}

// handleSearch answers exact-timestamp point lookups.
func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	tsStr := r.URL.Query().Get("timestamp")
	if tsStr == "" {
		http.Error(w, "missing timestamp parameter", http.StatusBadRequest)
		return
	}

	ts, err := strconv.ParseInt(tsStr, 10, 64)
	if err != nil {
		http.Error(w, "invalid timestamp", http.StatusBadRequest)
		return
	}

	reading, err := s.store.Search(r.Context(), ts)
	switch {
	case err == nil:
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(reading)
	case errors.Is(err, bst.ErrInvalidTimestamp):
		http.Error(w, "negative timestamp", http.StatusBadRequest)
	case errors.Is(err, bst.ErrNotFound):
		http.Error(w, "reading not found", http.StatusNotFound)
	default:
		logrus.WithError(err).Error("search failed")
		http.Error(w, "search failed", http.StatusInternalServerError)
	}
}

// handleRange answers ascending range scans. Bounds accept Unix
// seconds or RFC3339; start is inclusive, end exclusive.
func (s *Server) handleRange(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	start, err := parseTimeParam(r.URL.Query().Get("start"))
	if err != nil {
		http.Error(w, "invalid start parameter", http.StatusBadRequest)
		return
	}
	end, err := parseTimeParam(r.URL.Query().Get("end"))
	if err != nil {
		http.Error(w, "invalid end parameter", http.StatusBadRequest)
		return
	}
	if end < start {
		http.Error(w, "end before start", http.StatusBadRequest)
		return
	}

	readings, err := s.store.Scan(r.Context(), &types.ScanRequest{
		Start: start,
		End:   end,
	})
	if err != nil {
		logrus.WithError(err).Error("scan failed")
		http.Error(w, "scan failed", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(tableResponse{
		Count:    len(readings),
		Readings: readings,
	})
}

// handleHealth handles health check requests.
func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{
		"status": "healthy",
	})
}

// parseTimeParam accepts Unix seconds or an RFC3339 time.
func parseTimeParam(v string) (int64, error) {
	if v == "" {
		return 0, errors.New("missing time parameter")
	}
	if ts, err := strconv.ParseInt(v, 10, 64); err == nil {
		return ts, nil
	}
	t, err := time.Parse(time.RFC3339, v)
	if err != nil {
		return 0, errors.Wrap(err, "parse time parameter")
	}
	return t.Unix(), nil
}
