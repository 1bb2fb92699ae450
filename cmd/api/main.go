package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/jonboulle/clockwork"

	"smartattend/internal/attendance"
	"smartattend/internal/auth"
	"smartattend/internal/cloudinary"
	"smartattend/internal/config"
	"smartattend/internal/httpapi"
	"smartattend/internal/httpmiddleware"
	"smartattend/internal/metrics"
	"smartattend/internal/notify"
	"smartattend/internal/queue"
	"smartattend/internal/storage"
	"smartattend/internal/store"
)

// sweepEvery is how often idle client workspaces are released.
const sweepEvery = 5 * time.Minute

func main() {
	cfg := config.Load()
	logger := cfg.Logger(os.Stdout)
	slog.SetDefault(logger)

	if cfg.Production() {
		gin.SetMode(gin.ReleaseMode)
	}

	if err := runHTTP(cfg, logger); err != nil {
		log.Fatalf("http server failed: %v", err)
	}
}

func runHTTP(cfg config.App, logger *slog.Logger) error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	clock := clockwork.NewRealClock()
	health := map[string]httpapi.HealthCheck{}

	var redisClient *store.Redis
	needsRedis := cfg.StorageBackend == "redis" || cfg.QueueBackend == "redis"
	if needsRedis {
		redisClient = store.NewRedis(cfg.RedisAddr)
		defer redisClient.Close()
		health["redis"] = redisClient.Healthy
	}

	var clientStore storage.Store = storage.NewMemory()
	if cfg.StorageBackend == "redis" {
		clientStore = storage.NewRedis(redisClient.Client, "smartattend:client:", cfg.ClientTTL)
	}

	var q queue.Queue
	var notes notify.Store
	if cfg.QueueBackend == "redis" {
		q = queue.NewRedisQueue(redisClient.Client, queue.DefaultKey, logger)
		notes = notify.NewRedis(redisClient.Client, "")
	} else {
		mem := queue.NewInMemory(64)
		q = mem
		notes = notify.NewMemory()
		// No worker drains an in-process queue, so consume it here.
		go func() {
			if err := notify.NewConsumer(notes, clock, logger).Run(ctx, mem); err != nil {
				logger.Error("notification consumer stopped", "err", err)
			}
		}()
	}

	repo, db, err := openAttendance(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer func() { _ = db.Close() }()
	if db != nil {
		health["db"] = db.Healthy
	}
	att := attendance.NewService(repo, q, clock, cfg.DedupWindow, logger)

	var publisher httpapi.Publisher
	if cdn := cloudinary.New(cfg.CloudinaryCloudName, cfg.CloudinaryAPIKey, cfg.CloudinaryAPISecret, cfg.CloudinaryFolder); cdn != nil {
		publisher = cdn
		logger.Info("cloudinary configured", "cloud", cfg.CloudinaryCloudName)
	} else {
		logger.Info("cloudinary not configured (CLOUDINARY_CLOUD_NAME / API_KEY / API_SECRET not set)")
	}

	api := httpapi.New(httpapi.Config{
		JWTIssuer:     cfg.JWTIssuer,
		JWTSigningKey: cfg.JWTSigningKey,
		ClientTTL:     cfg.ClientTTL,
		LoginDelay:    cfg.LoginDelay,
		RegisterDelay: cfg.RegisterDelay,
		ScanDelay:     cfg.ScanDelay,
	}, httpapi.Deps{
		Store:         clientStore,
		Directory:     auth.NewDirectory(),
		Attendance:    att,
		Notifications: notes,
		Publisher:     publisher,
		Limiter:       httpmiddleware.NewSimpleTokenBucket(cfg.RateLimitPerMin, cfg.RateLimitPerMin, clock),
		Metrics:       metrics.New(),
		Clock:         clock,
		Logger:        logger,
		Health:        health,
	})
	defer api.Close()

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(gin.LoggerWithConfig(gin.LoggerConfig{
		SkipPaths: []string{"/healthz", "/metrics"},
	}))
	r.Use(httpmiddleware.CORS(cfg.CORSOrigins))
	r.Use(httpmiddleware.SecurityHeaders())
	api.Routes(r)

	go func() {
		ticker := clock.NewTicker(sweepEvery)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.Chan():
				api.Sweep(cfg.ClientTTL)
			}
		}
	}()

	srv := &http.Server{
		Addr:         ":" + cfg.HTTPPort,
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.Info("starting server", "port", cfg.HTTPPort, "env", cfg.Env)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("server error: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Info("shutting down server")
	cancel()

	shutdownCtx, stop := context.WithTimeout(context.Background(), 10*time.Second)
	defer stop()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server forced shutdown", "err", err)
	}

	logger.Info("server exited")
	return nil
}

// openAttendance picks the attendance repository. The returned DB is nil
// for the memory backend; DB.Close tolerates that.
func openAttendance(ctx context.Context, cfg config.App, logger *slog.Logger) (attendance.Repository, *store.DB, error) {
	var (
		db      *store.DB
		dialect attendance.Dialect
		err     error
	)
	switch cfg.AttendanceBackend {
	case "memory":
		return attendance.NewMemoryRepository(), nil, nil
	case "postgres":
		db, err = store.NewDB(ctx, cfg.DatabaseURL)
		dialect = attendance.Postgres
	case "sqlite":
		db, err = store.NewSQLite(ctx, cfg.SQLitePath)
		dialect = attendance.SQLite
	default:
		return nil, nil, fmt.Errorf("unknown ATTENDANCE_BACKEND %q", cfg.AttendanceBackend)
	}
	if err != nil {
		return nil, nil, fmt.Errorf("open %s: %w", cfg.AttendanceBackend, err)
	}
	repo := attendance.NewSQLRepository(db.Client, dialect)
	if err := repo.Migrate(ctx); err != nil {
		_ = db.Close()
		return nil, nil, fmt.Errorf("migrate: %w", err)
	}
	logger.Info("attendance store ready", "backend", cfg.AttendanceBackend)
	return repo, db, nil
}
