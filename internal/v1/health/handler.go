package health

import (
	"context"
	"encoding/json"
	"net/http"
	"os"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/example/chess-session-core/internal/v1/bus"
	"github.com/example/chess-session-core/internal/v1/logging"
)

// SocialGraphChecker checks reachability of the social graph service.
type SocialGraphChecker interface {
	Check(ctx context.Context, addr string) string
}

// DefaultSocialGraphChecker is the default implementation of SocialGraphChecker.
type DefaultSocialGraphChecker struct {
	client *http.Client
}

// Check verifies HTTP connectivity to the social graph service's own health endpoint.
func (c *DefaultSocialGraphChecker) Check(ctx context.Context, addr string) string {
	client := c.client
	if client == nil {
		client = http.DefaultClient
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, addr+"/health", nil)
	if err != nil {
		logging.Error(ctx, "failed to build social graph health request", zap.Error(err), zap.String("addr", addr))
		return "unhealthy"
	}

	resp, err := client.Do(req)
	if err != nil {
		logging.Error(ctx, "social graph health check failed", zap.Error(err))
		return "unhealthy"
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		logging.Warn(ctx, "social graph service is not healthy", zap.Int("status", resp.StatusCode))
		return "unhealthy"
	}

	return "healthy"
}

// Handler manages health check endpoints.
type Handler struct {
	redisService       *bus.Service
	socialGraphAddr    string
	socialGraphEnabled bool
	socialGraphChecker SocialGraphChecker
}

// NewHandler creates a new health check handler.
func NewHandler(redisService *bus.Service) *Handler {
	socialGraphAddr := os.Getenv("SOCIAL_GRAPH_SERVICE_ADDR")
	if socialGraphAddr == "" {
		socialGraphAddr = "http://localhost:4001" // default for local development
	}

	enabledEnv := os.Getenv("SOCIAL_GRAPH_HEALTH_CHECK_ENABLED")
	enabled := enabledEnv != "false" // enabled by default

	return &Handler{
		redisService:       redisService,
		socialGraphAddr:    socialGraphAddr,
		socialGraphEnabled: enabled,
		socialGraphChecker: &DefaultSocialGraphChecker{},
	}
}

// LivenessResponse represents the liveness probe response.
type LivenessResponse struct {
	Status    string `json:"status"`
	Timestamp string `json:"timestamp"`
}

// ReadinessResponse represents the readiness probe response.
type ReadinessResponse struct {
	Status    string            `json:"status"`
	Checks    map[string]string `json:"checks"`
	Timestamp string            `json:"timestamp"`
}

// Liveness handles the liveness probe endpoint.
// GET /health/live
// Returns 200 if the process is alive (no dependency checks).
func (h *Handler) Liveness(c *gin.Context) {
	response := LivenessResponse{
		Status:    "alive",
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	}

	c.JSON(http.StatusOK, response)
}

// Readiness handles the readiness probe endpoint.
// GET /health/ready
// Returns 200 only if all critical dependencies are healthy; 503 otherwise.
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

	if h.socialGraphEnabled {
		socialStatus := h.checkSocialGraph(ctx)
		checks["social_graph_service"] = socialStatus
		if socialStatus != "healthy" {
			allHealthy = false
		}
	}

	status := "ready"
	statusCode := http.StatusOK
	if !allHealthy {
		status = "unavailable"
		statusCode = http.StatusServiceUnavailable
	}

	response := ReadinessResponse{
		Status:    status,
		Checks:    checks,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	}

	c.JSON(statusCode, response)
}

// checkRedis verifies Redis connectivity using the PING command.
func (h *Handler) checkRedis(ctx context.Context) string {
	if h.redisService == nil {
		return "healthy" // single-process mode
	}

	if err := h.redisService.Ping(ctx); err != nil {
		logging.Error(ctx, "redis health check failed", zap.Error(err))
		return "unhealthy"
	}

	return "healthy"
}

// checkSocialGraph verifies HTTP connectivity to the social graph service.
func (h *Handler) checkSocialGraph(ctx context.Context) string {
	if h.socialGraphChecker == nil {
		return "unhealthy"
	}
	return h.socialGraphChecker.Check(ctx, h.socialGraphAddr)
}

// HealthCheckResponse is a generic health check response for backward compatibility.
type HealthCheckResponse struct {
	Status string         `json:"status"`
	Data   map[string]any `json:"data,omitempty"`
}

// MarshalJSON implements custom JSON marshaling for better formatting.
func (r ReadinessResponse) MarshalJSON() ([]byte, error) {
	type Alias ReadinessResponse
	return json.Marshal(&struct {
		*Alias
	}{
		Alias: (*Alias)(&r),
	})
}
