// Command server wires the chess session core's collaborators together and
// serves the gateway over HTTP/websocket.
package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"go.uber.org/zap"

	"github.com/example/chess-session-core/internal/v1/auth"
	"github.com/example/chess-session-core/internal/v1/bus"
	"github.com/example/chess-session-core/internal/v1/config"
	"github.com/example/chess-session-core/internal/v1/gateway"
	"github.com/example/chess-session-core/internal/v1/health"
	"github.com/example/chess-session-core/internal/v1/logging"
	"github.com/example/chess-session-core/internal/v1/middleware"
	"github.com/example/chess-session-core/internal/v1/ratelimit"
	"github.com/example/chess-session-core/internal/v1/social"
	"github.com/example/chess-session-core/internal/v1/tracing"
)

func main() {
	_ = godotenv.Load()

	cfg, err := config.ValidateEnv()
	if err != nil {
		panic(err)
	}

	if err := logging.Initialize(cfg.DevelopmentMode); err != nil {
		panic(err)
	}
	ctx := context.Background()
	logging.Info(ctx, "starting chess session core", zap.String("port", cfg.Port), zap.String("go_env", cfg.GoEnv))

	tp, err := tracing.InitTracer(ctx, "chess-session-core", os.Getenv("OTEL_COLLECTOR_ADDR"))
	if err != nil {
		logging.Fatal(ctx, "failed to initialize tracer", zap.Error(err))
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = tp.Shutdown(shutdownCtx)
	}()

	var validator gateway.TokenValidator
	if cfg.SkipAuth {
		logging.Warn(ctx, "SKIP_AUTH is enabled, using MockValidator (never do this in production)")
		validator = &auth.MockValidator{}
	} else {
		v, err := auth.NewValidator(cfg.JWTSecret)
		if err != nil {
			logging.Fatal(ctx, "failed to build token validator", zap.Error(err))
		}
		validator = v
	}

	var busService *bus.Service
	if cfg.RedisEnabled {
		busService, err = bus.NewService(cfg.RedisAddr, cfg.RedisPassword)
		if err != nil {
			logging.Fatal(ctx, "failed to connect to Redis", zap.Error(err))
		}
	}

	rateLimiter, err := ratelimit.NewRateLimiter(cfg, busService.Client())
	if err != nil {
		logging.Fatal(ctx, "failed to build rate limiter", zap.Error(err))
	}

	socialClient := social.NewClient(cfg.SocialGraphServiceAddr)

	hub := gateway.NewHub(gateway.Deps{
		Validator:   validator,
		Bus:         busService,
		Social:      socialClient,
		RateLimiter: rateLimiter,
		Origin:      allowedOrigin(),
	})

	router := newRouter(cfg, hub, busService, rateLimiter)

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logging.Fatal(ctx, "server failed", zap.Error(err))
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	logging.Info(ctx, "shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logging.Error(ctx, "graceful shutdown failed", zap.Error(err))
	}
}

func newRouter(cfg *config.Config, hub *gateway.Hub, busService *bus.Service, rateLimiter *ratelimit.RateLimiter) *gin.Engine {
	if !cfg.DevelopmentMode {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(middleware.CorrelationID())
	r.Use(otelgin.Middleware("chess-session-core"))
	r.Use(corsMiddleware())
	r.Use(rateLimiter.GlobalMiddleware())

	healthHandler := health.NewHandler(busService)
	r.GET("/health/live", healthHandler.Liveness)
	r.GET("/health/ready", healthHandler.Readiness)
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	r.GET("/ws", hub.ServeWS)

	return r
}

func corsMiddleware() gin.HandlerFunc {
	origins := auth.GetAllowedOriginsFromEnv("ALLOWED_ORIGINS", []string{"http://localhost:3000"})

	return cors.New(cors.Config{
		AllowOrigins:     origins,
		AllowMethods:     []string{"GET", "POST", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Authorization", middleware.HeaderXCorrelationID},
		ExposeHeaders:    []string{middleware.HeaderXCorrelationID},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	})
}

func allowedOrigin() string {
	origins := auth.GetAllowedOriginsFromEnv("ALLOWED_ORIGINS", []string{"http://localhost:3000"})
	if len(origins) > 0 {
		return origins[0]
	}
	return ""
}
