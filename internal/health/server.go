package health

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/benvon/vaultflow/internal/middleware"
	"github.com/benvon/vaultflow/internal/models"
	"github.com/benvon/vaultflow/internal/store"
	"github.com/gorilla/mux"
	"github.com/rs/cors"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gorilla/mux/otelmux"
	"go.uber.org/zap"
)

// ReportSource supplies the latest monitoring report
type ReportSource interface {
	Latest() *Report
}

// StatusHandler serves the latest report over HTTP
type StatusHandler struct {
	reports ReportSource
	store   store.Store
}

// NewStatusHandler creates a status handler. The store may be nil.
func NewStatusHandler(reports ReportSource, s store.Store) *StatusHandler {
	return &StatusHandler{reports: reports, store: s}
}

// StatusResponse represents the health check response
type StatusResponse struct {
	Status    string            `json:"status"`
	Timestamp string            `json:"timestamp"`
	LastCycle string            `json:"last_cycle,omitempty"`
	Issues    []string          `json:"issues,omitempty"`
	Checks    map[string]string `json:"checks,omitempty"`
}

// HealthCheck handles the /healthz endpoint
func (h *StatusHandler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	response := StatusResponse{
		Status:    "starting",
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	}
	report := h.reports.Latest()
	if report != nil {
		response.LastCycle = report.Timestamp.UTC().Format(time.RFC3339)
		response.Status = "healthy"
		if !report.Healthy {
			response.Status = "unhealthy"
		}
	}

	statusCode := http.StatusOK
	if r.URL.Query().Get("mode") == "extended" {
		checks := make(map[string]string)
		if report != nil {
			for name, state := range report.Checks {
				checks[name] = state
			}
			response.Issues = report.Issues
		}
		if h.store != nil {
			if err := h.checkVault(r.Context()); err != nil {
				response.Status = "unhealthy"
				checks["vault"] = "unhealthy: " + err.Error()
			} else {
				checks["vault"] = "healthy"
			}
		}
		response.Checks = checks
		if response.Status == "unhealthy" {
			statusCode = http.StatusServiceUnavailable
		}
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	_ = json.NewEncoder(w).Encode(response)
}

// checkVault verifies the vault is readable
func (h *StatusHandler) checkVault(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	_, err := h.store.List(ctx, models.StageRaw)
	return err
}

// RouterConfig configures the status router
type RouterConfig struct {
	AllowedOrigins []string
	EnableOTEL     bool
	ServiceName    string
}

// NewRouter builds the status server's handler chain
func NewRouter(h *StatusHandler, logger *zap.Logger, cfg RouterConfig) http.Handler {
	r := mux.NewRouter()

	if cfg.EnableOTEL {
		name := cfg.ServiceName
		if name == "" {
			name = "vaultflow-healthmon"
		}
		r.Use(otelmux.Middleware(name))
	}
	r.Use(middleware.SecurityHeaders)
	r.Use(middleware.ErrorHandler(logger))
	r.Use(middleware.Logging(logger))

	r.HandleFunc("/healthz", h.HealthCheck).Methods(http.MethodGet)

	c := cors.New(cors.Options{
		AllowedOrigins: cfg.AllowedOrigins,
		AllowedMethods: []string{http.MethodGet, http.MethodOptions},
		AllowedHeaders: []string{"Content-Type"},
		MaxAge:         86400,
	})
	return c.Handler(r)
}

// NewServer wraps the router in an http.Server with the usual timeouts
func NewServer(addr string, handler http.Handler) *http.Server {
	return &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadTimeout:       15 * time.Second,
		ReadHeaderTimeout: 5 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
}
