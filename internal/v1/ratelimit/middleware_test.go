package ratelimit

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/example/chess-session-core/internal/v1/config"
)

func TestStandardMiddleware(t *testing.T) {
	cfg := &config.Config{
		RateLimitWsConnect:  "100-M",
		RateLimitWsMove:     "50-M",
		RateLimitInviteSend: "20-M",
	}

	rl, err := NewRateLimiter(cfg, nil)
	assert.NoError(t, err)

	middleware := rl.StandardMiddleware()
	assert.NotNil(t, middleware)
}
