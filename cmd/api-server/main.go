package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"

	"gitlab-insight/database"
	"gitlab-insight/internal/config"
	"gitlab-insight/internal/microservices/http-api/repository"
	"gitlab-insight/internal/microservices/http-api/routes"
	"gitlab-insight/internal/microservices/http-api/service"
	"gitlab-insight/internal/microservices/websocket"
)

const shutdownTimeout = 10 * time.Second

func main() {
	if err := run(); err != nil {
		slog.Error("api-server stopped", "error", err)
		os.Exit(1)
	}
}

func run() error {
	// 1. Load config
	cfg, err := config.LoadConfig()
	if err != nil {
		return fmt.Errorf("could not load config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	logger := config.NewLogger(os.Stdout, cfg.LogFormat, cfg.LogLevel)
	slog.SetDefault(logger)
	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// 2. Connect to the database
	db, err := database.Connect(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer database.Close(db)

	// 3. Connect to Redis
	rdb, err := connectRedis(ctx, cfg)
	if err != nil {
		return err
	}
	defer rdb.Close()
	logger.Info("Connected to Redis", "channel", cfg.UpdatesChannel)

	// 4. Metrics
	var registry *prometheus.Registry
	var registerer prometheus.Registerer
	if cfg.PrometheusEnabled {
		registry = prometheus.NewRegistry()
		registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
		registerer = registry
	}

	// 5. Services
	userRepo := repository.NewUserRepository(db)
	notificationRepo := repository.NewNotificationRepository(db)
	authService := service.NewAuthService(userRepo, cfg, logger)
	notificationService := service.NewNotificationService(notificationRepo)

	hub := websocket.NewHub(websocket.NewMetrics(registerer), logger)
	relay := websocket.NewRelay(rdb, cfg.UpdatesChannel, hub, logger)
	publisher := &websocket.RecordingPublisher{
		Next:     websocket.NewRedisPublisher(rdb, cfg.UpdatesChannel),
		Recorder: notificationService,
		Logger:   logger,
	}

	deps := routes.Deps{
		AuthService:         authService,
		NotificationService: notificationService,
		Publisher:           publisher,
		Hub:                 hub,
		AllowedOrigins:      cfg.CORSOrigins,
		Logger:              logger,
	}
	if registry != nil {
		deps.Metrics = registry
	}

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.HTTPPort),
		Handler:           routes.SetupRouter(deps),
		ReadHeaderTimeout: 10 * time.Second,
	}

	// 6. Run hub, relay and HTTP server until a signal arrives
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		hub.Run(gctx)
		return nil
	})
	g.Go(func() error {
		return relay.Run(gctx)
	})
	g.Go(func() error {
		logger.Info("Server running", "addr", srv.Addr, "tls", cfg.TLSEnabled)
		var err error
		if cfg.TLSEnabled {
			err = srv.ListenAndServeTLS(cfg.TLSCertPath, cfg.TLSKeyPath)
		} else {
			err = srv.ListenAndServe()
		}
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("Shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	return g.Wait()
}

func connectRedis(ctx context.Context, cfg *config.Config) (*redis.Client, error) {
	opts, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		return nil, fmt.Errorf("invalid REDIS_URL: %w", err)
	}
	if cfg.RedisPassword != "" {
		opts.Password = cfg.RedisPassword
	}

	rdb := redis.NewClient(opts)
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		rdb.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}
	return rdb, nil
}
