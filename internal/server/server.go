// File: internal/server/server.go
package server

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"

	"github.com/smartdevs17/gamma-ops/internal/config"
	"github.com/smartdevs17/gamma-ops/internal/keeper"
	"github.com/smartdevs17/gamma-ops/internal/metrics"
	"github.com/smartdevs17/gamma-ops/internal/models"
	"github.com/smartdevs17/gamma-ops/internal/notification"
	"github.com/smartdevs17/gamma-ops/internal/storage"
	"github.com/smartdevs17/gamma-ops/pkg/utils"
)

const (
	apiPrefix = "/api/v1"

	defaultSubmissionLimit = 50
	maxSubmissionLimit     = 1000
)

// ChainHealth reports whether the RPC connection is usable.
// *connection.ConnectionManager satisfies it.
type ChainHealth interface {
	HealthCheck(ctx context.Context) error
}

// HTTPServer serves the keeper status API
type HTTPServer struct {
	config         *config.ServerConfig
	version        string
	server         *http.Server
	router         *mux.Router
	storage        storage.Storage
	keeper         *keeper.Keeper
	notification   *notification.NotificationManager
	chain          ChainHealth
	metricsManager *metrics.Manager
	logger         *logrus.Entry
	stopUpdater    chan struct{}
}

// Dependencies are the components the API reports on. Any of them but
// Storage may be nil.
type Dependencies struct {
	Storage        storage.Storage
	Keeper         *keeper.Keeper
	Notification   *notification.NotificationManager
	Chain          ChainHealth
	MetricsManager *metrics.Manager
	Version        string
}

// NewHTTPServer creates a new HTTP server
func NewHTTPServer(cfg *config.ServerConfig, deps Dependencies) *HTTPServer {
	s := &HTTPServer{
		config:         cfg,
		version:        deps.Version,
		storage:        deps.Storage,
		keeper:         deps.Keeper,
		notification:   deps.Notification,
		chain:          deps.Chain,
		metricsManager: deps.MetricsManager,
		logger:         utils.ComponentLogger("server"),
		stopUpdater:    make(chan struct{}),
	}
	if s.version == "" {
		s.version = "dev"
	}

	s.setupRouter()

	s.server = &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		Handler:      s.Handler(),
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	}
	return s
}

// Handler returns the router wrapped in CORS handling. Preflight requests
// are answered before routing, since mux only runs middleware on matched routes.
func (s *HTTPServer) Handler() http.Handler {
	return s.corsMiddleware(s.router)
}

// setupRouter sets up the HTTP routes
func (s *HTTPServer) setupRouter() {
	s.router = mux.NewRouter()

	s.router.Use(s.loggingMiddleware)
	if s.metricsManager != nil {
		s.router.Use(s.metricsMiddleware)
	}

	// routes live on the root router so a method mismatch answers 405
	api := func(path string, h http.HandlerFunc, method string) {
		s.router.HandleFunc(apiPrefix+path, h).Methods(method)
	}

	if s.config.EnableHealth {
		api("/health", s.healthHandler, http.MethodGet)
		api("/health/detailed", s.detailedHealthHandler, http.MethodGet)
	}

	if s.config.EnableMetrics && s.metricsManager != nil {
		s.router.Handle("/metrics", s.metricsManager.Handler())
	}
	api("/stats", s.statsHandler, http.MethodGet)

	api("/assets", s.listAssetsHandler, http.MethodGet)
	api("/submissions", s.listSubmissionsHandler, http.MethodGet)

	api("/keeper/status", s.keeperStatusHandler, http.MethodGet)
	api("/keeper/run", s.runKeeperHandler, http.MethodPost)

	api("/deployments", s.listDeploymentsHandler, http.MethodGet)
	api("/migrations", s.listMigrationsHandler, http.MethodGet)
}

// Start starts the HTTP server
func (s *HTTPServer) Start() error {
	s.logger.WithFields(logrus.Fields{
		"address":         s.server.Addr,
		"metrics_enabled": s.config.EnableMetrics,
	}).Info("Starting HTTP server")

	if s.metricsManager != nil {
		s.updateComponentMetrics()
		go s.systemMetricsUpdater()
	}

	errChan := make(chan error, 1)
	go func() {
		if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			s.logger.WithError(err).Error("HTTP server error")
			errChan <- err
		}
	}()

	// catch immediate bind errors
	select {
	case err := <-errChan:
		return fmt.Errorf("failed to start HTTP server: %w", err)
	case <-time.After(100 * time.Millisecond):
		return nil
	}
}

// systemMetricsUpdater updates system metrics periodically
func (s *HTTPServer) systemMetricsUpdater() {
	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s.updateComponentMetrics()
		case <-s.stopUpdater:
			return
		}
	}
}

func (s *HTTPServer) updateComponentMetrics() {
	s.metricsManager.UpdateSystemMetrics()
	pm := s.metricsManager.GetPrometheusMetrics()
	if s.storage != nil {
		pm.UpdateComponentHealth("storage", s.storage.Ping() == nil)
	}
	if s.keeper != nil {
		pm.UpdateComponentHealth("keeper", s.keeper.GetHealth().Healthy)
	}
	if s.notification != nil {
		pm.UpdateComponentHealth("notification", s.notification.IsHealthy())
	}
}

// Stop stops the HTTP server
func (s *HTTPServer) Stop() error {
	s.logger.Info("Stopping HTTP server")
	close(s.stopUpdater)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	return s.server.Shutdown(ctx)
}

// Health Handlers

// healthHandler returns basic health status
func (s *HTTPServer) healthHandler(w http.ResponseWriter, r *http.Request) {
	resp := map[string]interface{}{
		"status":          "healthy",
		"timestamp":       time.Now().UTC().Format(time.RFC3339Nano),
		"version":         s.version,
		"metrics_enabled": s.config.EnableMetrics,
	}
	s.writeJSON(w, http.StatusOK, resp)
}

// componentHealth is the health of one dependency
type componentHealth struct {
	Healthy bool     `json:"healthy"`
	Error   string   `json:"error,omitempty"`
	Issues  []string `json:"issues,omitempty"`
}

// detailedHealthHandler checks every component and answers 503 if one is down
func (s *HTTPServer) detailedHealthHandler(w http.ResponseWriter, r *http.Request) {
	components := make(map[string]componentHealth)

	if s.storage != nil {
		h := componentHealth{Healthy: true}
		if err := s.storage.Ping(); err != nil {
			h = componentHealth{Error: err.Error()}
		}
		components["storage"] = h
	}
	if s.chain != nil {
		h := componentHealth{Healthy: true}
		if err := s.chain.HealthCheck(r.Context()); err != nil {
			h = componentHealth{Error: err.Error()}
		}
		components["chain"] = h
	}
	if s.keeper != nil {
		kh := s.keeper.GetHealth()
		components["keeper"] = componentHealth{Healthy: kh.Healthy, Issues: kh.Issues}
	}
	if s.notification != nil {
		nh := s.notification.GetHealth()
		components["notification"] = componentHealth{Healthy: nh.Healthy, Error: nh.Error}
	}

	status, code := "healthy", http.StatusOK
	for _, c := range components {
		if !c.Healthy {
			status, code = "unhealthy", http.StatusServiceUnavailable
			break
		}
	}

	s.writeJSON(w, code, map[string]interface{}{
		"status":     status,
		"timestamp":  time.Now().UTC(),
		"version":    s.version,
		"components": components,
	})
}

// statsHandler returns application statistics
func (s *HTTPServer) statsHandler(w http.ResponseWriter, r *http.Request) {
	storageStats, err := s.storage.GetStorageStats(r.Context())
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, "Failed to retrieve storage stats", err)
		return
	}

	stats := map[string]interface{}{
		"timestamp":       time.Now().UTC(),
		"storage":         storageStats,
		"metrics_enabled": s.config.EnableMetrics,
	}
	if s.keeper != nil {
		stats["keeper"] = s.keeper.GetStats()
	}
	if s.notification != nil {
		stats["notification"] = s.notification.GetStats()
	}
	s.writeJSON(w, http.StatusOK, stats)
}

// Registry and submission handlers

// listAssetsHandler lists registered bot assets
func (s *HTTPServer) listAssetsHandler(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := models.AssetFilter{Bot: q.Get("bot"), Kind: q.Get("kind")}
	if filter.Kind != "" && filter.Kind != models.AssetKindBase && filter.Kind != models.AssetKindDerived {
		s.writeError(w, http.StatusBadRequest, "Invalid asset kind", nil)
		return
	}

	assets, err := s.storage.ListAssets(r.Context(), filter)
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, "Failed to retrieve assets", err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]interface{}{
		"assets": assets,
		"total":  len(assets),
	})
}

// listSubmissionsHandler lists recent price submissions
func (s *HTTPServer) listSubmissionsHandler(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := models.SubmissionFilter{Status: q.Get("status"), Limit: defaultSubmissionLimit}

	if asset := q.Get("asset"); asset != "" {
		addr, err := utils.ParseAddress(asset)
		if err != nil {
			s.writeError(w, http.StatusBadRequest, "Invalid asset address", err)
			return
		}
		filter.Asset = utils.NormalizeAddress(addr.Hex())
	}
	if limitStr := q.Get("limit"); limitStr != "" {
		limit, err := strconv.Atoi(limitStr)
		if err != nil || limit <= 0 {
			s.writeError(w, http.StatusBadRequest, "Invalid limit", err)
			return
		}
		if limit > maxSubmissionLimit {
			limit = maxSubmissionLimit
		}
		filter.Limit = limit
	}
	if expiryStr := q.Get("expiry"); expiryStr != "" {
		expiry, err := strconv.ParseInt(expiryStr, 10, 64)
		if err != nil {
			s.writeError(w, http.StatusBadRequest, "Invalid expiry", err)
			return
		}
		filter.Expiry = expiry
	}

	submissions, err := s.storage.GetSubmissions(r.Context(), filter)
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, "Failed to retrieve submissions", err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]interface{}{
		"submissions": submissions,
		"limit":       filter.Limit,
		"total":       len(submissions),
	})
}

// Keeper Handlers

// keeperStatusHandler returns keeper state and the last run
func (s *HTTPServer) keeperStatusHandler(w http.ResponseWriter, r *http.Request) {
	if s.keeper == nil {
		s.writeError(w, http.StatusServiceUnavailable, "Keeper is not configured", nil)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]interface{}{
		"running":     s.keeper.IsRunning(),
		"health":      s.keeper.GetHealth(),
		"stats":       s.keeper.GetStats(),
		"last_result": s.keeper.LastResult(),
		"timestamp":   time.Now().UTC(),
	})
}

// runKeeperHandler triggers one keeper run. Per-asset failures are reported
// alongside the result.
func (s *HTTPServer) runKeeperHandler(w http.ResponseWriter, r *http.Request) {
	if s.keeper == nil {
		s.writeError(w, http.StatusServiceUnavailable, "Keeper is not configured", nil)
		return
	}

	result, err := s.keeper.RunOnce(r.Context())
	if result == nil {
		s.writeError(w, http.StatusInternalServerError, "Keeper run failed", err)
		return
	}

	resp := map[string]interface{}{"result": result}
	if err != nil {
		resp["error"] = err.Error()
	}
	s.writeJSON(w, http.StatusOK, resp)
}

// Migration Handlers

// listDeploymentsHandler lists recorded contract deployments
func (s *HTTPServer) listDeploymentsHandler(w http.ResponseWriter, r *http.Request) {
	network := r.URL.Query().Get("network")
	deployments, err := s.storage.GetDeployments(r.Context(), network)
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, "Failed to retrieve deployments", err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]interface{}{
		"deployments": deployments,
		"network":     network,
		"total":       len(deployments),
	})
}

// listMigrationsHandler returns the migration journal
func (s *HTTPServer) listMigrationsHandler(w http.ResponseWriter, r *http.Request) {
	network := r.URL.Query().Get("network")
	migrations, err := s.storage.GetMigrations(r.Context(), network)
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, "Failed to retrieve migrations", err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]interface{}{
		"migrations": migrations,
		"network":    network,
		"total":      len(migrations),
	})
}

// Utility Methods

// writeJSON writes a JSON response
func (s *HTTPServer) writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	if err := json.NewEncoder(w).Encode(data); err != nil {
		s.logger.WithError(err).Error("Failed to encode JSON response")
	}
}

// writeError writes an error response
func (s *HTTPServer) writeError(w http.ResponseWriter, status int, message string, err error) {
	errorResponse := map[string]interface{}{
		"error":     message,
		"status":    status,
		"timestamp": time.Now().UTC(),
	}

	if err != nil {
		errorResponse["details"] = err.Error()
		s.logger.WithFields(logrus.Fields{
			"status":  status,
			"message": message,
		}).WithError(err).Error("HTTP error")
	}

	s.writeJSON(w, status, errorResponse)
}
