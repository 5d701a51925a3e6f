// Package ratelimit implements rate limiting logic using Redis or local memory.
package ratelimit

import (
	"context"
	"fmt"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"github.com/ulule/limiter/v3"
	mgin "github.com/ulule/limiter/v3/drivers/middleware/gin"
	"github.com/ulule/limiter/v3/drivers/store/memory"
	sredis "github.com/ulule/limiter/v3/drivers/store/redis"
	"go.uber.org/zap"

	"github.com/example/chess-session-core/internal/v1/auth"
	"github.com/example/chess-session-core/internal/v1/config"
	"github.com/example/chess-session-core/internal/v1/logging"
	"github.com/example/chess-session-core/internal/v1/metrics"
)

// RateLimiter holds the named rate limiter instances for this service.
type RateLimiter struct {
	global      *limiter.Limiter // all HTTP traffic, per-user or per-IP
	wsConnect   *limiter.Limiter // pre-auth, per-IP, protects the upgrade endpoint
	wsMove      *limiter.Limiter // post-auth, per-user, protects chess:move from spam
	inviteSend  *limiter.Limiter // post-auth, per-user, protects the social graph collaborator
	store       limiter.Store
	redisClient *redis.Client
}

// defaultGlobalRate applies when a caller builds a Config without setting
// RateLimitGlobal explicitly (e.g. existing tests predating this limiter).
const defaultGlobalRate = "600-M"

// NewRateLimiter creates a new RateLimiter instance.
func NewRateLimiter(cfg *config.Config, redisClient *redis.Client) (*RateLimiter, error) {
	globalFormat := cfg.RateLimitGlobal
	if globalFormat == "" {
		globalFormat = defaultGlobalRate
	}
	globalRate, err := limiter.NewRateFromFormatted(globalFormat)
	if err != nil {
		return nil, fmt.Errorf("invalid global rate: %w", err)
	}

	wsConnectRate, err := limiter.NewRateFromFormatted(cfg.RateLimitWsConnect)
	if err != nil {
		return nil, fmt.Errorf("invalid ws connect rate: %w", err)
	}

	wsMoveRate, err := limiter.NewRateFromFormatted(cfg.RateLimitWsMove)
	if err != nil {
		return nil, fmt.Errorf("invalid ws move rate: %w", err)
	}

	inviteSendRate, err := limiter.NewRateFromFormatted(cfg.RateLimitInviteSend)
	if err != nil {
		return nil, fmt.Errorf("invalid invite send rate: %w", err)
	}

	var store limiter.Store
	if redisClient != nil {
		s, err := sredis.NewStoreWithOptions(redisClient, limiter.StoreOptions{
			Prefix: "limiter:v1:",
		})
		if err != nil {
			return nil, fmt.Errorf("failed to create redis store: %w", err)
		}
		store = s
		logging.Info(context.Background(), "rate limiter using Redis store")
	} else {
		store = memory.NewStore()
		logging.Warn(context.Background(), "rate limiter using memory store (Redis disabled)")
	}

	return &RateLimiter{
		global:      limiter.New(store, globalRate),
		wsConnect:   limiter.New(store, wsConnectRate),
		wsMove:      limiter.New(store, wsMoveRate),
		inviteSend:  limiter.New(store, inviteSendRate),
		store:       store,
		redisClient: redisClient,
	}, nil
}

// GlobalMiddleware enforces the blanket per-caller request rate across every
// HTTP route, ahead of any endpoint-specific limiter. Keyed by authenticated
// user when claims are present in context, else by client IP.
func (rl *RateLimiter) GlobalMiddleware() gin.HandlerFunc {
	return rl.middlewareFor("global", rl.global)
}

// MiddlewareForEndpoint returns a Gin middleware that enforces a named
// endpoint-specific rate limit. Keyed by authenticated user when claims are
// present in context, else by client IP.
func (rl *RateLimiter) MiddlewareForEndpoint(endpointType string) gin.HandlerFunc {
	var limiterInstance *limiter.Limiter
	switch endpointType {
	case "global":
		limiterInstance = rl.global
	case "invite":
		limiterInstance = rl.inviteSend
	default:
		limiterInstance = rl.inviteSend
	}
	return rl.middlewareFor(endpointType, limiterInstance)
}

func (rl *RateLimiter) middlewareFor(endpointType string, limiterInstance *limiter.Limiter) gin.HandlerFunc {
	return func(c *gin.Context) {
		var key string
		if claims, exists := c.Get("claims"); exists {
			key = claims.(*auth.CustomClaims).Subject
		} else {
			key = c.ClientIP()
		}

		ctx := c.Request.Context()
		lctx, err := limiterInstance.Get(ctx, key)
		if err != nil {
			logging.Error(ctx, "rate limiter store failed", zap.Error(err))
			c.Next()
			return
		}

		if lctx.Reached {
			metrics.RateLimitExceeded.WithLabelValues(c.FullPath(), endpointType).Inc()
			c.Header("X-RateLimit-Retry-After", strconv.FormatInt(lctx.Reset, 10))
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
				"error":       "Too many requests",
				"retry_after": lctx.Reset,
			})
			return
		}

		metrics.RateLimitRequests.WithLabelValues(c.FullPath()).Inc()
		c.Next()
	}
}

// CheckWebSocket checks whether a new connection from this IP should be allowed.
// Returns true if allowed, false if the limit was exceeded (and writes the error response).
func (rl *RateLimiter) CheckWebSocket(c *gin.Context) bool {
	ctx := c.Request.Context()

	ip := c.ClientIP()
	ipContext, err := rl.wsConnect.Get(ctx, ip)
	if err != nil {
		logging.Error(ctx, "ws rate limiter store failed (ip)", zap.Error(err))
		return true // fail open
	}

	if ipContext.Reached {
		metrics.RateLimitExceeded.WithLabelValues("websocket_connect", "ip").Inc()
		c.Header("X-RateLimit-Retry-After", strconv.FormatInt(ipContext.Reset, 10))
		c.JSON(http.StatusTooManyRequests, gin.H{"error": "Too many connections from this IP"})
		return false
	}

	return true
}

// CheckWebSocketMove checks the per-user limit guarding chess:move. Call on every
// inbound move event, after authentication.
func (rl *RateLimiter) CheckWebSocketMove(ctx context.Context, userID string) error {
	userContext, err := rl.wsMove.Get(ctx, userID)
	if err != nil {
		logging.Error(ctx, "ws rate limiter store failed (move)", zap.Error(err))
		return nil // fail open
	}

	if userContext.Reached {
		metrics.RateLimitExceeded.WithLabelValues("chess:move", "user").Inc()
		return fmt.Errorf("rate limit exceeded for user")
	}

	return nil
}

// StandardMiddleware exposes the stock ulule/limiter middleware for callers that
// want off-the-shelf IP limiting without the custom logic above.
func (rl *RateLimiter) StandardMiddleware() gin.HandlerFunc {
	return mgin.NewMiddleware(rl.wsConnect)
}
