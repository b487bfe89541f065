// Package monitor provides the HTTP interface for observing a running
// fusion pipeline: JSON endpoints for the current belief and stored
// estimates, plus rendered chart pages for quick visual inspection.
package monitor

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/banshee-data/fusion.report/internal/db"
	"github.com/banshee-data/fusion.report/internal/sensor"
	"github.com/banshee-data/fusion.report/internal/units"
)

// StateSnapshot is the most recent belief published by the pipeline.
// Speed is stored in m/s and converted on the way out of the API.
type StateSnapshot struct {
	Micros     int64   `json:"ts_micros"`
	SensorType string  `json:"sensor_type"`
	PosX       float64 `json:"pos_x"`
	PosY       float64 `json:"pos_y"`
	Speed      float64 `json:"speed"`
	Heading    float64 `json:"heading"`
	TurnRate   float64 `json:"turn_rate"`
	NIS        float64 `json:"nis"`
}

// WebServer handles the HTTP interface for monitoring the fusion pipeline.
// It provides endpoints for health checks, the live belief, and stored runs.
type WebServer struct {
	address string
	server  *http.Server
	db      *db.DB
	runID   string

	mu     sync.RWMutex
	latest *StateSnapshot
}

// WebServerConfig contains configuration options for the web server
type WebServerConfig struct {
	Address string
	DB      *db.DB
	RunID   string
}

// NewWebServer creates a new web server with the provided configuration
func NewWebServer(config WebServerConfig) *WebServer {
	ws := &WebServer{
		address: config.Address,
		db:      config.DB,
		runID:   config.RunID,
	}

	ws.server = &http.Server{
		Addr:    ws.address,
		Handler: ws.setupRoutes(),
	}

	return ws
}

// PublishState records the latest belief so the API can serve it without
// touching the filter. Safe to call from the pipeline goroutine.
func (ws *WebServer) PublishState(s StateSnapshot) {
	ws.mu.Lock()
	ws.latest = &s
	ws.mu.Unlock()
}

func (ws *WebServer) currentState() *StateSnapshot {
	ws.mu.RLock()
	defer ws.mu.RUnlock()
	return ws.latest
}

func (ws *WebServer) writeJSON(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(v)
}

func (ws *WebServer) writeJSONError(w http.ResponseWriter, status int, msg string) {
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"error": msg})
}

// Start begins the HTTP server in a goroutine and handles graceful shutdown
func (ws *WebServer) Start(ctx context.Context) error {
	// Start server in a goroutine so it doesn't block
	go func() {
		log.Printf("Starting HTTP server on %s", ws.address)
		if err := ws.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("failed to start server: %v", err)
		}
	}()

	// Wait for context cancellation to shut down server
	<-ctx.Done()
	log.Println("shutting down HTTP server...")

	// Create a shutdown context with a shorter timeout
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 1*time.Second)
	defer cancel()

	if err := ws.server.Shutdown(shutdownCtx); err != nil {
		log.Printf("HTTP server shutdown error: %v", err)
		// Force close the server if graceful shutdown fails
		if err := ws.server.Close(); err != nil {
			log.Printf("HTTP server force close error: %v", err)
		}
	}

	log.Printf("HTTP server routine stopped")
	return nil
}

// setupRoutes configures the HTTP routes and handlers
func (ws *WebServer) setupRoutes() *http.ServeMux {
	mux := http.NewServeMux()

	mux.HandleFunc("/health", ws.handleHealth)
	mux.HandleFunc("/api/fusion/state", ws.handleState)
	mux.HandleFunc("/api/fusion/estimates", ws.handleEstimates)
	mux.HandleFunc("/api/fusion/nis", ws.handleNIS)
	mux.HandleFunc("/charts/trajectory", ws.handleTrajectoryChart)
	mux.HandleFunc("/charts/nis", ws.handleNISChart)

	return mux
}

func (ws *WebServer) handleHealth(w http.ResponseWriter, r *http.Request) {
	ws.writeJSON(w, map[string]string{"status": "ok"})
}

// handleState returns the most recent published belief.
// Query params:
//
//	units (optional, one of mps/mph/kmph/kph; default mps)
func (ws *WebServer) handleState(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		ws.writeJSONError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	speedUnits := units.MPS
	if u := r.URL.Query().Get("units"); u != "" {
		if !units.IsValid(u) {
			ws.writeJSONError(w, http.StatusBadRequest, fmt.Sprintf("invalid units %q (valid: %s)", u, units.GetValidUnitsString()))
			return
		}
		speedUnits = u
	}

	state := ws.currentState()
	if state == nil {
		ws.writeJSONError(w, http.StatusNotFound, "no state published yet")
		return
	}

	out := *state
	out.Speed = units.ConvertSpeed(state.Speed, speedUnits)
	ws.writeJSON(w, map[string]interface{}{
		"state": out,
		"units": speedUnits,
	})
}

// handleEstimates returns a JSON array of stored estimates for a run.
// Query params:
//
//	run_id (optional, defaults to the server's run, then the latest run)
//	limit (optional, default 100)
func (ws *WebServer) handleEstimates(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		ws.writeJSONError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}
	if ws.db == nil {
		ws.writeJSONError(w, http.StatusInternalServerError, "no database configured for estimate lookup")
		return
	}

	runID, err := ws.resolveRunID(r)
	if err != nil {
		ws.writeJSONError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if runID == "" {
		ws.writeJSONError(w, http.StatusNotFound, "no fusion runs recorded")
		return
	}

	limit := 100
	if l := r.URL.Query().Get("limit"); l != "" {
		fmt.Sscanf(l, "%d", &limit)
		if limit <= 0 || limit > 10000 {
			limit = 100
		}
	}

	estimates, err := ws.db.GetEstimates(runID, limit)
	if err != nil {
		ws.writeJSONError(w, http.StatusInternalServerError, fmt.Sprintf("get estimates: %v", err))
		return
	}

	type EstimateSummary struct {
		SensorType string  `json:"sensor_type"`
		Micros     int64   `json:"ts_micros"`
		PosX       float64 `json:"pos_x"`
		PosY       float64 `json:"pos_y"`
		Speed      float64 `json:"speed"`
		Heading    float64 `json:"heading"`
		TurnRate   float64 `json:"turn_rate"`
		NIS        float64 `json:"nis"`
	}
	summaries := make([]EstimateSummary, 0, len(estimates))
	for _, e := range estimates {
		summaries = append(summaries, EstimateSummary{
			SensorType: string(e.SensorType),
			Micros:     e.Micros,
			PosX:       e.PosX,
			PosY:       e.PosY,
			Speed:      e.Speed,
			Heading:    e.Heading,
			TurnRate:   e.TurnRate,
			NIS:        e.NIS,
		})
	}

	ws.writeJSON(w, map[string]interface{}{
		"run_id":    runID,
		"estimates": summaries,
	})
}

// handleNIS returns the innovation consistency series for one sensor type.
// Query params:
//
//	sensor_type (required, "direct" or "range_bearing")
//	run_id (optional, same defaulting as /api/fusion/estimates)
func (ws *WebServer) handleNIS(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		ws.writeJSONError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}
	if ws.db == nil {
		ws.writeJSONError(w, http.StatusInternalServerError, "no database configured for NIS lookup")
		return
	}

	sensorType := sensor.Type(r.URL.Query().Get("sensor_type"))
	if !sensorType.Valid() {
		ws.writeJSONError(w, http.StatusBadRequest, "missing or invalid 'sensor_type' parameter")
		return
	}

	runID, err := ws.resolveRunID(r)
	if err != nil {
		ws.writeJSONError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if runID == "" {
		ws.writeJSONError(w, http.StatusNotFound, "no fusion runs recorded")
		return
	}

	micros, nis, err := ws.db.NISSeries(runID, sensorType)
	if err != nil {
		ws.writeJSONError(w, http.StatusInternalServerError, fmt.Sprintf("get NIS series: %v", err))
		return
	}

	ws.writeJSON(w, map[string]interface{}{
		"run_id":      runID,
		"sensor_type": string(sensorType),
		"ts_micros":   micros,
		"nis":         nis,
		"threshold":   sensorType.ChiSquare95(),
	})
}

// resolveRunID picks the run to serve: explicit query param, then the run
// this server was started with, then the newest run in the database.
func (ws *WebServer) resolveRunID(r *http.Request) (string, error) {
	if runID := r.URL.Query().Get("run_id"); runID != "" {
		return runID, nil
	}
	if ws.runID != "" {
		return ws.runID, nil
	}
	runID, err := ws.db.LatestRunID()
	if err != nil {
		return "", fmt.Errorf("resolve run: %w", err)
	}
	return runID, nil
}
