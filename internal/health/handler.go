package health

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/otalk/mod-muc-focus/internal/bus"
	"github.com/otalk/mod-muc-focus/internal/logging"
)

// BridgeChecker reports whether a bridge client is currently reachable.
type BridgeChecker interface {
	Healthy() bool
}

// Handler manages health check endpoints for the focus agent's admin
// HTTP surface.
type Handler struct {
	redisService *bus.Service
	bridge       BridgeChecker
}

// NewHandler creates a new health check handler. bridge and redisService
// may be nil — a nil bridge is reported unhealthy, a nil redisService is
// treated as not configured and always reported healthy.
func NewHandler(redisService *bus.Service, bridge BridgeChecker) *Handler {
	return &Handler{redisService: redisService, bridge: bridge}
}

// LivenessResponse represents the liveness probe response
type LivenessResponse struct {
	Status    string `json:"status"`
	Timestamp string `json:"timestamp"`
}

// ReadinessResponse represents the readiness probe response
type ReadinessResponse struct {
	Status    string            `json:"status"`
	Checks    map[string]string `json:"checks"`
	Timestamp string            `json:"timestamp"`
}

// Liveness handles the liveness probe endpoint.
// GET /healthz — returns 200 if the process is alive (no dependency checks).
func (h *Handler) Liveness(c *gin.Context) {
	c.JSON(http.StatusOK, LivenessResponse{
		Status:    "alive",
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	})
}

// Readiness handles the readiness probe endpoint.
// GET /readyz — returns 200 only if all critical dependencies are healthy.
func (h *Handler) Readiness(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 3*time.Second)
	defer cancel()

	checks := make(map[string]string)
	allHealthy := true

	redisStatus := h.checkRedis(ctx)
	checks["redis"] = redisStatus
	if redisStatus != "healthy" {
		allHealthy = false
	}

	bridgeStatus := h.checkBridge()
	checks["bridge"] = bridgeStatus
	if bridgeStatus != "healthy" {
		allHealthy = false
	}

	status := "ready"
	statusCode := http.StatusOK
	if !allHealthy {
		status = "unavailable"
		statusCode = http.StatusServiceUnavailable
	}

	c.JSON(statusCode, ReadinessResponse{
		Status:    status,
		Checks:    checks,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	})
}

// checkRedis verifies Redis connectivity using the PING command.
func (h *Handler) checkRedis(ctx context.Context) string {
	if h.redisService == nil {
		return "healthy"
	}

	if err := h.redisService.Ping(ctx); err != nil {
		logging.Error(ctx, "redis health check failed", zap.Error(err))
		return "unhealthy"
	}

	return "healthy"
}

// checkBridge reports the circuit breaker state of the media bridge
// connection.
func (h *Handler) checkBridge() string {
	if h.bridge == nil {
		return "unhealthy"
	}
	if !h.bridge.Healthy() {
		return "unhealthy"
	}
	return "healthy"
}

// MarshalJSON implements custom JSON marshaling for consistent field order.
func (r ReadinessResponse) MarshalJSON() ([]byte, error) {
	type Alias ReadinessResponse
	return json.Marshal(&struct {
		*Alias
	}{
		Alias: (*Alias)(&r),
	})
}
