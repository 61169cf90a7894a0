package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"

	"go.uber.org/zap"

	"github.com/sotradis/voice-agent/internal/api/handlers"
	"github.com/sotradis/voice-agent/internal/call"
	"github.com/sotradis/voice-agent/pkg/acs"
	"github.com/sotradis/voice-agent/pkg/ai"
	"github.com/sotradis/voice-agent/pkg/env"
	"github.com/sotradis/voice-agent/pkg/logger"
	"github.com/sotradis/voice-agent/pkg/middleware"
	"github.com/sotradis/voice-agent/pkg/otel"
	"github.com/sotradis/voice-agent/pkg/sqldb"
)

// VoiceServer wires the telephony webhook surface, the media bridge and the
// retrieval stack into one process.
type VoiceServer struct {
	cfg         *env.Config
	redisClient *redis.Client
	db          *sqldb.Client
	callManager *call.Manager
	handler     *handlers.Handler
}

func main() {
	cfg, err := env.Load(".env")
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	if err := logger.Init(cfg.LogLevel, cfg.AppEnv); err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer logger.Sync()

	if cfg.OTELEnabled {
		shutdown, err := otel.InitTracing("voice-agent", "1.0.0", cfg.OTELEndpoint)
		if err != nil {
			logger.Log.Warn("Failed to initialize OpenTelemetry", zap.Error(err))
		} else {
			defer shutdown()
			logger.Log.Info("OpenTelemetry tracing enabled", zap.String("endpoint", cfg.OTELEndpoint))
		}
	}

	logger.Log.Info("Starting Sotradis voice agent",
		zap.String("env", cfg.AppEnv),
		zap.String("port", cfg.AppPort),
	)

	// Redis is optional; without it the event feed loses dedup only.
	var redisClient *redis.Client
	if cfg.RedisURL != "" {
		opt, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			logger.Log.Fatal("Failed to parse Redis URL", zap.Error(err))
		}
		redisClient = redis.NewClient(opt)

		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		if err := redisClient.Ping(ctx).Err(); err != nil {
			logger.Log.Warn("Redis unreachable, continuing without it", zap.Error(err))
			redisClient = nil
		}
		cancel()
	}

	// The pool opens lazily on the first query, so startup survives a
	// briefly unavailable database.
	db := sqldb.NewClient(cfg.MySQLDSN, logger.Log)
	defer db.Close()

	acsClient, err := acs.NewClient(cfg.AcsEndpoint, cfg.AcsAccessKey, logger.Log)
	if err != nil {
		logger.Log.Fatal("Failed to create call automation client", zap.Error(err))
	}

	timeout := time.Duration(cfg.AITimeoutMs) * time.Millisecond
	aiManager := ai.NewManager([]ai.Provider{
		ai.NewOpenAIProvider(cfg.OpenAIApiKey, cfg.OpenAIModel, cfg.OpenAIMaxTokens, timeout, logger.Log),
	}, logger.Log)

	callManager := call.NewManager(cfg, acsClient, aiManager, db, logger.Log)

	apiHandler := handlers.NewHandler(cfg, redisClient, db, aiManager, callManager)

	server := &VoiceServer{
		cfg:         cfg,
		redisClient: redisClient,
		db:          db,
		callManager: callManager,
		handler:     apiHandler,
	}

	router := server.setupRouter()

	srv := &http.Server{
		Addr:        ":" + cfg.AppPort,
		Handler:     router,
		ReadTimeout: 15 * time.Second,
		// media websockets outlive any write timeout
		WriteTimeout: 0,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.Log.Info("Voice agent listening", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Log.Fatal("Server failed to start", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Log.Info("Shutting down server...")

	callManager.Shutdown()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		logger.Log.Fatal("Server forced to shutdown", zap.Error(err))
	}

	logger.Log.Info("Server exited")
}

func (s *VoiceServer) setupRouter() *gin.Engine {
	if s.cfg.AppEnv == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(middleware.TraceMiddleware())
	router.Use(middleware.SecurityHeaders())
	router.Use(middleware.RequestSizeLimit(1 << 20)) // 1 MB limit

	if s.cfg.OTELEnabled {
		router.Use(otel.GinMiddleware())
	}

	router.Use(gin.LoggerWithFormatter(func(param gin.LogFormatterParams) string {
		return fmt.Sprintf("[%s] %s %s %d %s\n",
			param.TimeStamp.Format(time.RFC3339),
			param.Method,
			param.Path,
			param.StatusCode,
			param.Latency,
		)
	}))

	corsConfig := cors.DefaultConfig()
	if s.cfg.CORSAllowedOrigins == "*" {
		corsConfig.AllowAllOrigins = true
	} else {
		corsConfig.AllowOrigins = []string{s.cfg.CORSAllowedOrigins}
	}
	corsConfig.AllowCredentials = true
	corsConfig.AllowHeaders = []string{"Origin", "Content-Type", "Authorization"}
	router.Use(cors.New(corsConfig))

	router.GET("/health", s.handler.HealthCheck)

	// telephony surface, called by the platform rather than browsers
	api := router.Group("/api")
	{
		api.POST("/incomingCall", s.handler.IncomingCallEvents)
		api.POST("/callbacks/:contextId", s.handler.CallCallbacks)
	}

	router.GET("/ws/media", s.handler.MediaWebSocket)

	return router
}
