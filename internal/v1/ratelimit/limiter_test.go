package ratelimit

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/example/chess-session-core/internal/v1/config"
)

func newTestLimiter(t *testing.T) (*RateLimiter, *miniredis.Miniredis) {
	mr, err := miniredis.Run()
	require.NoError(t, err)

	rc := redis.NewClient(&redis.Options{
		Addr: mr.Addr(),
	})

	cfg := &config.Config{
		RateLimitWsConnect:  "5-M",
		RateLimitWsMove:     "5-M",
		RateLimitInviteSend: "5-M",
	}

	rl, err := NewRateLimiter(cfg, rc)
	require.NoError(t, err)

	return rl, mr
}

func TestNewRateLimiter_Memory(t *testing.T) {
	cfg := &config.Config{
		RateLimitWsConnect:  "5-M",
		RateLimitWsMove:     "5-M",
		RateLimitInviteSend: "5-M",
	}
	rl, err := NewRateLimiter(cfg, nil)
	assert.NoError(t, err)
	assert.NotNil(t, rl)
	// Verify it falls back to memory (no redis client)
	assert.Nil(t, rl.redisClient)
}

func TestMiddlewareForEndpoint_Invite(t *testing.T) {
	rl, mr := newTestLimiter(t)
	defer mr.Close()

	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.POST("/invite", rl.MiddlewareForEndpoint("invite"), func(c *gin.Context) {
		c.Status(http.StatusOK)
	})

	for i := 0; i < 5; i++ {
		req, _ := http.NewRequest("POST", "/invite", nil)
		resp := httptest.NewRecorder()
		r.ServeHTTP(resp, req)
		assert.Equal(t, http.StatusOK, resp.Code)
	}

	req, _ := http.NewRequest("POST", "/invite", nil)
	resp := httptest.NewRecorder()
	r.ServeHTTP(resp, req)
	assert.Equal(t, http.StatusTooManyRequests, resp.Code)
}

func TestCheckWebSocket_IP(t *testing.T) {
	rl, mr := newTestLimiter(t)
	defer mr.Close()

	ctx, _ := gin.CreateTestContext(httptest.NewRecorder())
	ctx.Request, _ = http.NewRequest("GET", "/ws", nil)

	for i := 0; i < 5; i++ {
		allowed := rl.CheckWebSocket(ctx)
		assert.True(t, allowed)
	}

	allowed := rl.CheckWebSocket(ctx)
	assert.False(t, allowed)
}

func TestCheckWebSocketMove(t *testing.T) {
	rl, mr := newTestLimiter(t)
	defer mr.Close()

	ctx := context.Background()
	for i := 0; i < 5; i++ {
		err := rl.CheckWebSocketMove(ctx, "user1")
		assert.NoError(t, err)
	}

	err := rl.CheckWebSocketMove(ctx, "user1")
	assert.Error(t, err)
}

func TestRedisFailure_FailsOpen(t *testing.T) {
	rl, mr := newTestLimiter(t)

	// Kill redis to simulate failure
	mr.Close()

	// Should fail open (allow request) but log the store error
	err := rl.CheckWebSocketMove(context.Background(), "user1")
	assert.NoError(t, err)
}
