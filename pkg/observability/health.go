package observability

import (
	"context"
	"database/sql"
	"net/http"
	"sync"
	"time"

	"github.com/go-redis/redis/v8"

	"github.com/platinummonkey/steward/pkg/httputil"
)

// HealthStatus represents the health of a single dependency
type HealthStatus struct {
	Healthy bool   `json:"healthy"`
	Message string `json:"message,omitempty"`
}

// HealthChecker aggregates health checks for the service's dependencies
type HealthChecker struct {
	db      *sql.DB
	redis   *redis.Client
	timeout time.Duration
	mu      sync.RWMutex
	ready   bool
}

// NewHealthChecker creates a health checker. The redis client may be nil
// when no cache backend is configured.
func NewHealthChecker(db *sql.DB, redisClient *redis.Client) *HealthChecker {
	return &HealthChecker{
		db:      db,
		redis:   redisClient,
		timeout: 5 * time.Second,
	}
}

// SetReady marks the service as ready to serve traffic
func (h *HealthChecker) SetReady(ready bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.ready = ready
}

// Check runs all dependency checks
func (h *HealthChecker) Check(ctx context.Context) map[string]HealthStatus {
	ctx, cancel := context.WithTimeout(ctx, h.timeout)
	defer cancel()

	results := make(map[string]HealthStatus)

	if h.db != nil {
		if err := h.db.PingContext(ctx); err != nil {
			results["database"] = HealthStatus{Healthy: false, Message: err.Error()}
		} else {
			results["database"] = HealthStatus{Healthy: true}
		}
	}

	if h.redis != nil {
		if err := h.redis.Ping(ctx).Err(); err != nil {
			results["redis"] = HealthStatus{Healthy: false, Message: err.Error()}
		} else {
			results["redis"] = HealthStatus{Healthy: true}
		}
	}

	return results
}

// LivenessHandler responds 200 as long as the process is running
func (h *HealthChecker) LivenessHandler(w http.ResponseWriter, r *http.Request) {
	httputil.WriteSuccess(w, map[string]string{"status": "alive"})
}

// ReadinessHandler responds 200 only when the service is ready and all
// dependencies are reachable
func (h *HealthChecker) ReadinessHandler(w http.ResponseWriter, r *http.Request) {
	h.mu.RLock()
	ready := h.ready
	h.mu.RUnlock()

	if !ready {
		httputil.WriteErrorMessage(w, http.StatusServiceUnavailable, "not ready")
		return
	}

	results := h.Check(r.Context())
	for _, status := range results {
		if !status.Healthy {
			httputil.WriteJSON(w, http.StatusServiceUnavailable, results)
			return
		}
	}

	httputil.WriteSuccess(w, results)
}
