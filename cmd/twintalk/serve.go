package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"twintalk/internal/core/domain"
	"twintalk/internal/core/ports"
	"twintalk/internal/core/services"
	httphandlers "twintalk/internal/handlers/http"
	"twintalk/internal/infrastructure/middleware"
	"twintalk/internal/infrastructure/monitoring"
	"twintalk/internal/infrastructure/repositories/memory"
	"twintalk/internal/infrastructure/signal"
	"twintalk/internal/infrastructure/storage"
	"twintalk/pkg/config"
	"twintalk/pkg/logger"
	"twintalk/pkg/tracing"

	"github.com/gin-gonic/gin"
	"github.com/pion/webrtc/v3"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/samber/lo"
)

// liveCounters feeds the health endpoint.
type liveCounters struct {
	ws       *signal.WebSocketServer
	meetings ports.MeetingRegistry
}

func (c liveCounters) ConnectionCount() int { return c.ws.ConnectionCount() }
func (c liveCounters) MeetingCount() int    { return c.meetings.Count(context.Background()) }

func iceServers(cfg *config.Config) []webrtc.ICEServer {
	if len(cfg.WebRTC.ICEServers) == 0 {
		return []webrtc.ICEServer{{URLs: []string{"stun:stun.l.google.com:19302"}}}
	}
	return lo.Map(cfg.WebRTC.ICEServers, func(s config.ICEServer, _ int) webrtc.ICEServer {
		return webrtc.ICEServer{
			URLs:       s.URLs,
			Username:   s.Username,
			Credential: s.Credential,
		}
	})
}

func serve(ctx context.Context, configPath string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	zapLogger := logger.NewWithFormat(cfg.Logging.Level, cfg.Logging.Format)
	defer zapLogger.Sync()
	log := zapLogger.Sugar()

	tp, err := tracing.Init(tracing.Config{
		Enabled:     cfg.Tracing.Enabled,
		ServiceName: cfg.Tracing.ServiceName,
		JaegerURL:   cfg.Tracing.JaegerURL,
		Environment: cfg.Tracing.Environment,
		SampleRate:  cfg.Tracing.SampleRate,
	})
	if err != nil {
		return fmt.Errorf("init tracing: %w", err)
	}

	store, err := storage.NewArtifactStore(cfg, log)
	if err != nil {
		return fmt.Errorf("init recording storage: %w", err)
	}

	var metrics ports.MetricsRecorder = monitoring.NopMetrics{}
	if cfg.Monitoring.PrometheusEnabled {
		metrics = monitoring.NewPrometheusCollector(prometheus.DefaultRegisterer)
	}

	conns := memory.NewConnectionRegistry()
	meetings := memory.NewMeetingRegistry(memory.MeetingRegistryConfig{
		JoinPolicy:   domain.JoinPolicy(cfg.Meeting.JoinPolicy),
		CodeLength:   cfg.Meeting.CodeLength,
		CodeAttempts: cfg.Meeting.CodeAttempts,
		DefaultTitle: cfg.Meeting.DefaultTitle,
	})

	hub := signal.NewHub(log)
	recordings := services.NewRecordingService(meetings, store, metrics, log, services.RecordingConfig{
		MaxBytes:        cfg.Recording.MaxBytes,
		FinalizeTimeout: cfg.Recording.FinalizeTimeout,
	})
	presence := services.NewPresenceService(conns, meetings, recordings, hub, metrics, log, services.PresenceConfig{
		IdleThreshold: cfg.Meeting.IdleThreshold,
		SweepInterval: cfg.Meeting.SweepInterval,
	})
	router := services.NewMessageRouter(conns, meetings, recordings, presence, hub, metrics, log, services.RouterConfig{
		DefaultName: cfg.Meeting.DefaultName,
	})
	meetingService := services.NewMeetingService(meetings, metrics, log, cfg.Meeting.DefaultName)
	authService := services.NewAuthService(cfg.Auth.JWTSecret, cfg.Auth.AccessTokenTTL)

	wsOpts := signal.Options{
		PingInterval:   cfg.Signal.PingInterval,
		PongTimeout:    cfg.Signal.PongTimeout,
		WriteTimeout:   cfg.Signal.WriteTimeout,
		SendBuffer:     cfg.Signal.SendBuffer,
		MaxMessageSize: cfg.Signal.MaxMessageSize,
		AllowedOrigins: cfg.Signal.AllowedOrigins,
		RequireAuth:    cfg.Auth.Required,
	}
	if cfg.RateLimiting.Enabled {
		wsOpts.MessagesPerSecond = cfg.RateLimiting.WebSocket.MessagesPerSecond
		wsOpts.Burst = cfg.RateLimiting.WebSocket.Burst
		wsOpts.MaxConnections = cfg.RateLimiting.WebSocket.MaxConcurrent
	}
	ws := signal.NewWebSocketServer(hub, presence, router, authService, wsOpts, log)

	health := monitoring.NewHealthChecker()
	health.AddStorageCheck(store, 2*time.Second)

	if cfg.Logging.Level != "debug" {
		gin.SetMode(gin.ReleaseMode)
	}
	engine := gin.New()
	engine.Use(
		middleware.RecoveryMiddleware(log),
		middleware.TracingMiddleware(logger.NewContextLogger(zapLogger)),
		middleware.ErrorHandlerMiddleware(log),
		middleware.NewHTTPRateLimitMiddleware(cfg),
	)

	engine.GET(cfg.Signal.Path, gin.WrapF(ws.HandleWebSocket))

	api := engine.Group("/api/v1")
	api.Use(middleware.OptionalAuthMiddleware(authService))
	httphandlers.NewMeetingHandler(meetingService).SetupRoutes(api)

	recordingRoutes := api.Group("")
	if cfg.Auth.Required {
		recordingRoutes.Use(middleware.AuthMiddleware(authService))
	}
	httphandlers.NewRecordingHandler(recordings, router, cfg.Signal.MaxMessageSize).SetupRoutes(recordingRoutes)

	httphandlers.NewSystemHandler(liveCounters{ws: ws, meetings: meetings}, health, iceServers(cfg)).SetupRoutes(engine)

	if cfg.Monitoring.PrometheusEnabled {
		engine.GET(cfg.Monitoring.MetricsPath, gin.WrapH(promhttp.Handler()))
		log.Info("Prometheus metrics enabled")
	}

	srv := &http.Server{
		Addr:         cfg.Server.Address,
		Handler:      engine,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	sweepCtx, stopSweep := context.WithCancel(context.Background())
	defer stopSweep()
	go presence.Run(sweepCtx)

	serverErr := make(chan error, 1)
	go func() {
		log.Infow("starting twintalk server",
			"address", cfg.Server.Address,
			"version", version,
			"join_policy", meetings.Policy(),
		)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	var runErr error
	select {
	case runErr = <-serverErr:
		log.Errorw("server failed", "error", runErr)
	case <-ctx.Done():
		log.Info("shutdown signal received")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	stopSweep()

	// Sockets first so every meeting sees its members leave and open
	// recordings are finalized before storage goes away.
	ws.Shutdown()
	waitForDisconnects(shutdownCtx, ws)

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Errorw("error during server shutdown", "error", err)
		if closeErr := srv.Close(); closeErr != nil {
			log.Errorw("error force closing server", "error", closeErr)
		}
	}

	if err := store.Close(); err != nil {
		log.Errorw("error closing recording storage", "error", err)
	}
	if err := tp.Shutdown(shutdownCtx); err != nil {
		log.Errorw("error shutting down tracer", "error", err)
	}

	log.Info("twintalk server stopped")
	return runErr
}

func waitForDisconnects(ctx context.Context, ws *signal.WebSocketServer) {
	ticker := time.NewTicker(50 * time.Millisecond)
	defer ticker.Stop()
	for ws.ConnectionCount() > 0 {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}
