package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"petadopt/internal/api"
	"petadopt/internal/auth"
	"petadopt/internal/config"
	"petadopt/internal/db"
	"petadopt/internal/geo"
	"petadopt/internal/jobs"
	"petadopt/internal/notify"
	"petadopt/internal/pubsub"
	"petadopt/internal/scheduler"
	"petadopt/internal/schema"
	"petadopt/internal/service"
	"petadopt/internal/storage"
	"petadopt/internal/store"
	"petadopt/internal/store/memory"
	"petadopt/internal/ws"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

func main() {
	configPath := flag.String("config", os.Getenv("PETADOPT_CONFIG"), "path to YAML config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	// Subcommands: serve (default) and migrate [up|down|status|version|reset]
	args := flag.Args()
	command := "serve"
	if len(args) > 0 {
		command = args[0]
	}

	switch command {
	case "migrate":
		goose := "up"
		if len(args) > 1 {
			goose = args[1]
		}
		if err := db.Migrate(context.Background(), cfg.Database.URL, goose); err != nil {
			log.Fatalf("Migration failed: %v", err)
		}
		os.Exit(0)
	case "serve":
	default:
		log.Fatalf("Unknown command: %s (use 'serve' or 'migrate')", command)
	}

	logger, err := newLogger(cfg.Log)
	if err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer logger.Sync()

	if err := serve(cfg, logger); err != nil {
		logger.Fatal("Server failed", zap.Error(err))
	}
}

func newLogger(cfg config.LogConfig) (*zap.Logger, error) {
	zcfg := zap.NewProductionConfig()
	if cfg.Development {
		zcfg = zap.NewDevelopmentConfig()
	}
	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return nil, fmt.Errorf("log level: %w", err)
	}
	zcfg.Level = zap.NewAtomicLevelAt(level)
	return zcfg.Build()
}

func serve(cfg *config.Config, logger *zap.Logger) error {
	ctx := context.Background()

	// Record store
	var st store.Store
	switch cfg.Database.Driver {
	case config.StoreDriverMemory:
		logger.Warn("Using in-memory store, data is lost on restart")
		st = memory.New()
	default:
		dbPool, err := db.NewPool(ctx, cfg.Database.URL, cfg.Database.MaxConns, logger)
		if err != nil {
			return fmt.Errorf("connect to database: %w", err)
		}
		defer dbPool.Close()
		st = dbPool.Queries
	}

	// Redis connection
	rdb := redis.NewClient(&redis.Options{Addr: cfg.Redis.Addr})
	defer rdb.Close()
	if err := rdb.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("connect to redis: %w", err)
	}

	blobs, err := storage.NewLocalStorage(cfg.Storage.BaseDir, cfg.Storage.BaseURL)
	if err != nil {
		return err
	}

	// Pub/sub bus
	bus := pubsub.New(rdb, logger)

	var notifier notify.Notifier
	if cfg.Email.SendGridAPIKey != "" {
		notifier = notify.NewSendGridNotifier(cfg.Email.SendGridAPIKey, cfg.Email.FromEmail, cfg.Email.FromName)
	} else {
		logger.Warn("No SendGrid API key configured, decision e-mails are only logged")
		notifier = notify.NewLogNotifier(logger)
	}

	// Background jobs
	// Stop also closes the client.
	jobServer, asynqClient := jobs.NewJobServer(cfg.Redis.Addr, st, blobs, notifier, bus, logger)
	go func() {
		if err := jobServer.Start(); err != nil {
			logger.Fatal("Job server failed", zap.Error(err))
		}
	}()
	defer jobServer.Stop()

	// Orphaned photo sweep
	sweeper := scheduler.NewSweeper(st, blobs, cfg.Adoption.TempPhotoMaxAge, logger)
	cronScheduler, err := scheduler.NewScheduler(cfg.Adoption.SweepSchedule, sweeper, logger)
	if err != nil {
		return err
	}
	cronScheduler.Start()
	defer cronScheduler.Stop()

	forms, err := schema.NewFormCompiler(64)
	if err != nil {
		return fmt.Errorf("load forms: %w", err)
	}

	// Services
	issuer := auth.NewIssuer(cfg.JWT.Secret, cfg.JWT.TokenTTL)
	denylist := auth.NewDenylist(rdb)
	adoptions := service.NewAdoptionService(st, blobs, forms, bus, service.AdoptionConfig{
		MaxPhotoMB:              cfg.Storage.MaxPhotoMB,
		WithdrawnPhotoRetention: cfg.Adoption.WithdrawnPhotoRetention,
	}, logger)
	adoptions.SetJobClient(service.NewAsynqJobClient(asynqClient))

	// WebSocket hub
	hub := ws.NewHub(logger)
	hub.SetStreamsProvider(bus.GetStreams())
	hub.SetAuthorizer(ws.NewChannelAuthorizer(st))
	hub.SetCommandHandler(ws.NewCommandHandler(adoptions, logger))
	go hub.Run()
	defer hub.Close()
	bus.SetWSHub(hub)

	geoBaseURL := cfg.Geo.BaseURL
	if geoBaseURL == "" {
		geoBaseURL = geo.DefaultBaseURL
	}

	// HTTP router
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	// Timeout middleware - skip for WebSocket upgrades
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
			if req.Header.Get("Upgrade") == "websocket" {
				next.ServeHTTP(w, req)
				return
			}
			middleware.Timeout(60 * time.Second)(next).ServeHTTP(w, req)
		})
	})

	r.Mount("/v1", api.Routes(api.Dependencies{
		Auth:          auth.NewAuthenticator(issuer, denylist, cfg.Server.DevHeaders, logger),
		Users:         service.NewUserService(st, issuer, denylist, logger),
		Organizations: service.NewOrganizationService(st, bus, logger),
		Animals:       service.NewAnimalService(st, blobs, bus, cfg.Storage.MaxPhotoMB, logger),
		Procedures:    service.NewProcedureService(st, logger),
		Adoptions:     adoptions,
		Geo:           geo.NewClient(geoBaseURL, cfg.Geo.CacheTTL, logger),
		Blobs:         blobs,
		Hub:           hub,
		Log:           logger,
	}))
	r.Mount("/files", api.Files(blobs, logger))

	// Health check
	r.Get("/healthz", func(w http.ResponseWriter, req *http.Request) {
		if err := rdb.Ping(req.Context()).Err(); err != nil {
			http.Error(w, "redis unavailable", http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	})

	srv := &http.Server{
		Addr:    cfg.Server.Addr,
		Handler: r,
	}

	logger.Info("Starting server",
		zap.String("addr", cfg.Server.Addr),
		zap.String("store", cfg.Database.Driver),
	)
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("Server failed", zap.Error(err))
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("Server forced to shutdown", zap.Error(err))
	}

	logger.Info("Server stopped")
	return nil
}
