package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/rs/zerolog"

	"tcc-gateway/internal/database"
	"tcc-gateway/internal/manager"
	"tcc-gateway/internal/models"
	"tcc-gateway/internal/tcc"
)

// BusHealth supplies the latest bus statistics snapshot
type BusHealth interface {
	Latest() (models.BusStats, bool)
}

// HTTPOptions configures an HTTPServer. Health and History are optional.
type HTTPOptions struct {
	Addr    string
	Manager *manager.Manager
	Hub     *Hub
	Health  BusHealth
	History database.History
	Logger  zerolog.Logger
}

// HTTPServer serves the JSON API and the WebSocket endpoint
type HTTPServer struct {
	server  *http.Server
	manager *manager.Manager
	hub     *Hub
	health  BusHealth
	history database.History
	logger  zerolog.Logger
}

func NewHTTPServer(opts HTTPOptions) *HTTPServer {
	s := &HTTPServer{
		manager: opts.Manager,
		hub:     opts.Hub,
		health:  opts.Health,
		history: opts.History,
		logger:  opts.Logger.With().Str("component", "http").Logger(),
	}

	s.server = &http.Server{
		Addr:         opts.Addr,
		Handler:      s.Handler(),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
	return s
}

// Handler returns the routed handler with middleware applied
func (s *HTTPServer) Handler() http.Handler {
	mux := http.NewServeMux()
	s.setupRoutes(mux)
	return s.loggingMiddleware(corsMiddleware(mux))
}

// setupRoutes configures all API routes
func (s *HTTPServer) setupRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/", s.handleRoot)
	mux.HandleFunc("/health", s.handleHealth)

	mux.HandleFunc("/api/parameters", s.handleParameters)
	mux.HandleFunc("/api/timeouts", s.handleTimeouts)
	mux.HandleFunc("/api/bus/stats", s.handleBusStats)
	mux.HandleFunc("/api/history", s.handleHistory)

	if s.hub != nil {
		mux.Handle("/ws", s.hub)
	}
}

// handleRoot returns API information
func (s *HTTPServer) handleRoot(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}

	info := map[string]any{
		"name": "TCC Gateway",
		"endpoints": map[string]string{
			"health":     "/health",
			"parameters": "/api/parameters?name=YAW_POSITION",
			"timeouts":   "/api/timeouts?name=STATES",
			"bus_stats":  "/api/bus/stats",
			"history":    "/api/history?parameter=YAW_POSITION&start_time=2024-01-01T00:00:00Z&end_time=2024-01-02T00:00:00Z&limit=100",
			"websocket":  "/ws (binary 8-byte client messages)",
		},
	}

	respondWithJSON(w, http.StatusOK, info)
}

// handleHealth returns gateway and bus state
func (s *HTTPServer) handleHealth(w http.ResponseWriter, r *http.Request) {
	health := map[string]any{
		"status":    "healthy",
		"timestamp": time.Now(),
		"bus": map[string]string{
			"state":     s.manager.State().String(),
			"interface": s.manager.Interface(),
		},
		"history": s.history != nil,
	}
	if s.hub != nil {
		health["websocket_clients"] = s.hub.Clients()
	}

	respondWithJSON(w, http.StatusOK, health)
}

type parameterView struct {
	Name     string    `json:"name"`
	ID       uint16    `json:"id"`
	CANID    uint32    `json:"can_id"`
	CANIDHex string    `json:"can_id_hex"`
	Kind     string    `json:"kind"`
	Value    tcc.Value `json:"value"`
}

// handleParameters returns the live parameter table
// GET /api/parameters?name=YAW_POSITION
func (s *HTTPServer) handleParameters(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		respondWithError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	reg := s.manager.Registry()
	snapshot := s.manager.Snapshot()
	view := func(p tcc.Parameter) parameterView {
		spec, _ := reg.Parameter(p)
		return parameterView{
			Name:     p.String(),
			ID:       p.ID(),
			CANID:    spec.CANID,
			CANIDHex: fmt.Sprintf("0x%X", spec.CANID),
			Kind:     spec.Kind.String(),
			Value:    snapshot.Parameters[p],
		}
	}

	if name := r.URL.Query().Get("name"); name != "" {
		p, ok := tcc.ParseParameter(name)
		if !ok {
			respondWithError(w, http.StatusNotFound, fmt.Sprintf("unknown parameter %q", name))
			return
		}
		respondWithJSON(w, http.StatusOK, view(p))
		return
	}

	params := reg.Parameters()
	views := make([]parameterView, 0, len(params))
	for _, p := range params {
		views = append(views, view(p))
	}
	respondWithJSON(w, http.StatusOK, views)
}

type timeoutView struct {
	Name      string   `json:"name"`
	ID        uint16   `json:"id"`
	Kind      string   `json:"kind"`
	Parameter string   `json:"parameter,omitempty"`
	Children  []string `json:"children,omitempty"`
	Value     int      `json:"value"`
	Root      bool     `json:"root"`
}

// handleTimeouts returns the live timeout table
// GET /api/timeouts?name=STATES
func (s *HTTPServer) handleTimeouts(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		respondWithError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	reg := s.manager.Registry()
	snapshot := s.manager.Snapshot()
	roots := make(map[tcc.Timeout]bool)
	for _, t := range reg.Roots() {
		roots[t] = true
	}
	view := func(t tcc.Timeout) timeoutView {
		spec, _ := reg.Timeout(t)
		v := timeoutView{
			Name:  t.String(),
			ID:    t.ID(),
			Kind:  spec.Kind.String(),
			Value: snapshot.Timeouts[t],
			Root:  roots[t],
		}
		if spec.IsCombine() {
			for _, child := range spec.Children {
				v.Children = append(v.Children, child.String())
			}
		} else {
			v.Parameter = spec.Parameter.String()
		}
		return v
	}

	if name := r.URL.Query().Get("name"); name != "" {
		t, ok := tcc.ParseTimeout(name)
		if !ok {
			respondWithError(w, http.StatusNotFound, fmt.Sprintf("unknown timeout %q", name))
			return
		}
		respondWithJSON(w, http.StatusOK, view(t))
		return
	}

	timeouts := reg.Timeouts()
	views := make([]timeoutView, 0, len(timeouts))
	for _, t := range timeouts {
		views = append(views, view(t))
	}
	respondWithJSON(w, http.StatusOK, views)
}

// handleBusStats returns the latest bus health snapshot
// GET /api/bus/stats
func (s *HTTPServer) handleBusStats(w http.ResponseWriter, r *http.Request) {
	if s.health == nil {
		respondWithError(w, http.StatusServiceUnavailable, "bus statistics are disabled")
		return
	}
	stats, ok := s.health.Latest()
	if !ok {
		respondWithError(w, http.StatusServiceUnavailable, "no bus statistics collected yet")
		return
	}
	respondWithJSON(w, http.StatusOK, stats)
}

// handleHistory returns recorded parameter samples, newest first
// GET /api/history?parameter=YAW_POSITION&start_time=2024-01-01T00:00:00Z&limit=100
func (s *HTTPServer) handleHistory(w http.ResponseWriter, r *http.Request) {
	if s.history == nil {
		respondWithError(w, http.StatusServiceUnavailable, "no history recorder configured")
		return
	}

	q, err := parseSampleQuery(r)
	if err != nil {
		respondWithError(w, http.StatusBadRequest, err.Error())
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 10*time.Second)
	defer cancel()

	samples, err := s.history.QuerySamples(ctx, q)
	if err != nil {
		respondWithError(w, http.StatusInternalServerError, fmt.Sprintf("Query failed: %v", err))
		return
	}
	if samples == nil {
		samples = []models.ParameterSample{}
	}
	respondWithJSON(w, http.StatusOK, samples)
}

// ListenAndServe serves until Shutdown; it returns nil after a shutdown
func (s *HTTPServer) ListenAndServe() error {
	s.logger.Info().Str("addr", s.server.Addr).Msg("HTTP server listening")
	if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Serve serves on an existing listener
func (s *HTTPServer) Serve(ln net.Listener) error {
	if err := s.server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown gracefully stops the server and disconnects WebSocket clients
func (s *HTTPServer) Shutdown(ctx context.Context) error {
	s.logger.Info().Msg("stopping HTTP server")
	err := s.server.Shutdown(ctx)
	if s.hub != nil {
		s.hub.Close()
	}
	return err
}

// loggingMiddleware logs HTTP requests
func (s *HTTPServer) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		s.logger.Debug().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Str("remote", r.RemoteAddr).
			Dur("duration", time.Since(start)).
			Msg("request")
	})
}

// corsMiddleware adds CORS headers
func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")

		// Handle preflight requests
		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}
