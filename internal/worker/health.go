package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/aescanero/dago-node-renderer/internal/render"
	"github.com/aescanero/dago-node-renderer/internal/store"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// StatsProvider reports template cache activity
type StatsProvider interface {
	Stats() render.Stats
}

// HealthServer provides HTTP health check endpoints
type HealthServer struct {
	port         int
	redisClient  *redis.Client
	files        store.FileStore
	templateRoot string
	cache        StatsProvider
	logger       *zap.Logger
	server       *http.Server
}

// NewHealthServer creates a new health server. cache may be nil.
func NewHealthServer(
	port int,
	redisClient *redis.Client,
	files store.FileStore,
	templateRoot string,
	cache StatsProvider,
	logger *zap.Logger,
) *HealthServer {
	return &HealthServer{
		port:         port,
		redisClient:  redisClient,
		files:        files,
		templateRoot: templateRoot,
		cache:        cache,
		logger:       logger,
	}
}

// Handler returns the HTTP handler serving /health and /ready
func (hs *HealthServer) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/health", hs.handleHealth)
	mux.HandleFunc("/ready", hs.handleReady)
	return mux
}

// Start starts the health check server
func (hs *HealthServer) Start() error {
	hs.server = &http.Server{
		Addr:              fmt.Sprintf(":%d", hs.port),
		Handler:           hs.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	hs.logger.Info("starting health server", zap.Int("port", hs.port))

	go func() {
		if err := hs.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			hs.logger.Error("health server error", zap.Error(err))
		}
	}()

	return nil
}

// Stop stops the health check server
func (hs *HealthServer) Stop() error {
	if hs.server == nil {
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	hs.logger.Info("stopping health server")
	return hs.server.Shutdown(ctx)
}

// HealthResponse represents the health check response
type HealthResponse struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks,omitempty"`
	Cache  *render.Stats     `json:"cache,omitempty"`
}

// handleHealth handles the /health endpoint
func (hs *HealthServer) handleHealth(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	checks := make(map[string]string)

	// Check Redis connection
	if err := hs.redisClient.Ping(ctx).Err(); err != nil {
		checks["redis"] = fmt.Sprintf("unhealthy: %v", err)
		hs.respondJSON(w, http.StatusServiceUnavailable, HealthResponse{
			Status: "unhealthy",
			Checks: checks,
		})
		return
	}
	checks["redis"] = "healthy"

	// Check the template root is present
	if !hs.files.DirExists(hs.templateRoot) {
		checks["templates"] = fmt.Sprintf("unhealthy: template root %s not found", hs.templateRoot)
		hs.respondJSON(w, http.StatusServiceUnavailable, HealthResponse{
			Status: "unhealthy",
			Checks: checks,
		})
		return
	}
	checks["templates"] = "healthy"

	response := HealthResponse{
		Status: "healthy",
		Checks: checks,
	}
	if hs.cache != nil {
		stats := hs.cache.Stats()
		response.Cache = &stats
	}

	// All checks passed
	hs.respondJSON(w, http.StatusOK, response)
}

// handleReady handles the /ready endpoint
func (hs *HealthServer) handleReady(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	// Check if Redis and the templates are ready
	if err := hs.redisClient.Ping(ctx).Err(); err != nil || !hs.files.DirExists(hs.templateRoot) {
		hs.respondJSON(w, http.StatusServiceUnavailable, HealthResponse{
			Status: "not ready",
		})
		return
	}

	// Worker is ready
	hs.respondJSON(w, http.StatusOK, HealthResponse{
		Status: "ready",
	})
}

// respondJSON writes a JSON response
func (hs *HealthServer) respondJSON(w http.ResponseWriter, statusCode int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)

	if err := json.NewEncoder(w).Encode(data); err != nil {
		hs.logger.Error("failed to encode response", zap.Error(err))
	}
}
