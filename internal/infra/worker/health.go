package worker

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"gramflow/internal/infra/db"
)

// HealthServer provides HTTP endpoints for health checks.
// It implements three endpoints:
//   - /health: Liveness probe (always returns 200 OK)
//   - /health/ready: Readiness probe backed by an active database ping
//   - /health/pool: Pool statistics for diagnostics
//
// The server supports graceful shutdown via context cancellation.
type HealthServer struct {
	addr   string
	logger *slog.Logger
	dbc    *db.DatabaseContext
	server *http.Server
}

// healthResponse is the JSON response format for health check endpoints.
type healthResponse struct {
	Status  string         `json:"status"`
	Details map[string]any `json:"details,omitempty"`
}

// NewHealthServer creates a new health check server backed by the given
// database context. Call Start to begin serving requests.
func NewHealthServer(addr string, logger *slog.Logger, dbc *db.DatabaseContext) *HealthServer {
	return &HealthServer{
		addr:   addr,
		logger: logger,
		dbc:    dbc,
	}
}

// Start starts the health check HTTP server. This is a blocking call that runs
// until the context is cancelled or an error occurs; shutdown is graceful with
// a 5-second timeout. Returns http.ErrServerClosed on graceful shutdown.
func (h *HealthServer) Start(ctx context.Context) error {
	mux := http.NewServeMux()
	mux.HandleFunc("/health", h.handleLiveness)
	mux.HandleFunc("/health/ready", h.handleReadiness)
	mux.HandleFunc("/health/pool", h.handlePoolStats)

	h.server = &http.Server{
		Addr:         h.addr,
		Handler:      mux,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 5 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	errChan := make(chan error, 1)
	go func() {
		h.logger.Info("health server starting", slog.String("addr", h.addr))
		if err := h.server.ListenAndServe(); err != nil {
			errChan <- err
		}
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		h.logger.Info("health server shutting down")
		if err := h.server.Shutdown(shutdownCtx); err != nil {
			h.logger.Error("health server shutdown failed", slog.Any("error", err))
			return err
		}
		return http.ErrServerClosed

	case err := <-errChan:
		if err != http.ErrServerClosed {
			h.logger.Error("health server failed", slog.Any("error", err))
		}
		return err
	}
}

// handleLiveness handles the /health endpoint (liveness probe).
// Always returns 200 OK: the process is up even when the database is not.
func (h *HealthServer) handleLiveness(w http.ResponseWriter, _ *http.Request) {
	h.writeJSON(w, http.StatusOK, healthResponse{Status: "ok"})
}

// handleReadiness handles the /health/ready endpoint (readiness probe).
// Returns 200 when the database responds to a ping and the circuit breaker is
// closed, 503 otherwise.
func (h *HealthServer) handleReadiness(w http.ResponseWriter, r *http.Request) {
	report := h.dbc.CheckHealth(r.Context())
	if report.Healthy {
		h.writeJSON(w, http.StatusOK, healthResponse{Status: "ok", Details: report.Details})
		return
	}
	h.writeJSON(w, http.StatusServiceUnavailable, healthResponse{Status: "not ready", Details: report.Details})
}

// handlePoolStats handles the /health/pool diagnostics endpoint.
func (h *HealthServer) handlePoolStats(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	if err := json.NewEncoder(w).Encode(h.dbc.Stats()); err != nil {
		h.logger.Error("failed to encode pool stats", slog.Any("error", err))
	}
}

func (h *HealthServer) writeJSON(w http.ResponseWriter, status int, body healthResponse) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		h.logger.Error("failed to encode health response", slog.Any("error", err))
	}
}
