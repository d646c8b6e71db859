// internal/app/features/health/health.go
package health

import (
	"context"
	"net/http"
	"sort"

	"github.com/dalemusser/stratabook/internal/app/system/jsonutil"
	"github.com/dalemusser/stratabook/internal/app/system/timeouts"
	"github.com/go-chi/chi/v5"
	"github.com/redis/go-redis/v9"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/readpref"
	"go.uber.org/zap"
)

// CheckFunc reports whether one dependency is reachable.
type CheckFunc func(ctx context.Context) error

// Handler provides health check endpoints.
type Handler struct {
	checks map[string]CheckFunc
	// required checks make the service not ready when they fail
	required map[string]bool
	logger   *zap.Logger
}

// NewHandler creates a health Handler that pings Mongo and, when configured,
// Redis. Redis is optional: its failure degrades /health but not /ready.
func NewHandler(mongoClient *mongo.Client, redisClient redis.UniversalClient, logger *zap.Logger) *Handler {
	h := &Handler{checks: map[string]CheckFunc{}, required: map[string]bool{}, logger: logger}
	h.Add("mongodb", true, func(ctx context.Context) error {
		return mongoClient.Ping(ctx, readpref.Primary())
	})
	if redisClient != nil {
		h.Add("redis", false, func(ctx context.Context) error {
			return redisClient.Ping(ctx).Err()
		})
	}
	return h
}

// Add registers a named dependency check.
func (h *Handler) Add(name string, required bool, check CheckFunc) {
	h.checks[name] = check
	h.required[name] = required
}

// Response represents the health check response.
type Response struct {
	Status   string            `json:"status"`
	Services map[string]string `json:"services,omitempty"`
}

// Routes returns a chi.Router with /, /ready and /live.
func Routes(h *Handler) http.Handler {
	r := chi.NewRouter()
	r.Get("/", h.Check)
	r.Get("/ready", h.Ready)
	r.Get("/live", h.Live)
	return r
}

// MountRootEndpoints adds the Kubernetes probe paths on the root router.
func MountRootEndpoints(r chi.Router, h *Handler) {
	r.Get("/ready", h.Ready)
	r.Get("/readyz", h.Ready)
	r.Get("/livez", h.Live)
}

// run executes every check and returns per-service status and whether all
// required checks passed.
func (h *Handler) run(ctx context.Context) (map[string]string, bool, bool) {
	ctx, cancel := timeouts.WithTimeout(ctx, timeouts.Ping(), h.logger, "health checks")
	defer cancel()

	names := make([]string, 0, len(h.checks))
	for name := range h.checks {
		names = append(names, name)
	}
	sort.Strings(names)

	services := make(map[string]string, len(names))
	allOK, ready := true, true
	for _, name := range names {
		if err := h.checks[name](ctx); err != nil {
			h.logger.Warn("health check failed", zap.String("service", name), zap.Error(err))
			services[name] = "unavailable"
			allOK = false
			if h.required[name] {
				ready = false
			}
			continue
		}
		services[name] = "ok"
	}
	return services, allOK, ready
}

// Check reports every dependency. Any failure answers 503.
func (h *Handler) Check(w http.ResponseWriter, r *http.Request) {
	services, allOK, _ := h.run(r.Context())
	resp := Response{Status: "ok", Services: services}
	if !allOK {
		resp.Status = "degraded"
		jsonutil.JSON(w, http.StatusServiceUnavailable, resp)
		return
	}
	jsonutil.OK(w, resp)
}

// Ready answers 503 while a required dependency is unreachable.
func (h *Handler) Ready(w http.ResponseWriter, r *http.Request) {
	if _, _, ready := h.run(r.Context()); !ready {
		jsonutil.JSON(w, http.StatusServiceUnavailable, Response{Status: "not ready"})
		return
	}
	jsonutil.OK(w, Response{Status: "ready"})
}

// Live reports that the process is serving.
func (h *Handler) Live(w http.ResponseWriter, r *http.Request) {
	jsonutil.OK(w, Response{Status: "alive"})
}
