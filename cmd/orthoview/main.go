package main

import (
	"context"
	"database/sql"
	"errors"
	"flag"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	_ "github.com/lib/pq"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/basel-ax/orthoview/internal/app"
	"github.com/basel-ax/orthoview/internal/config"
	"github.com/basel-ax/orthoview/internal/infrastructure/gemini"
	"github.com/basel-ax/orthoview/internal/metrics"
	"github.com/basel-ax/orthoview/internal/repository"
	"github.com/basel-ax/orthoview/internal/service"
	"github.com/basel-ax/orthoview/internal/web"
)

const metricsNamespace = "orthoview"

func main() {
	// Parse command line flags
	verbose := flag.Bool("verbose", false, "Enable debug logging")
	imagePath := flag.String("image", "", "Generate views for this image once and exit instead of serving")
	outDir := flag.String("out", ".", "Directory for front.png, side.png and top.png in one-shot mode")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		// the logger is not configured yet
		zap.NewExample().Fatal("Failed to load configuration", zap.Error(err))
	}
	if *verbose {
		cfg.Log.Level = "debug"
	}

	logger := initLogger(cfg.Log)
	defer logger.Sync()

	// Create context with cancellation
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	collector := metrics.NewCollector(metricsNamespace, registry)

	client, err := gemini.NewClient(ctx, gemini.Config{
		APIKey:  cfg.GeminiAPIKey,
		Model:   cfg.GeminiModel,
		BaseURL: cfg.GeminiBaseURL,
		Timeout: cfg.GeminiTimeout,
	}, logger)
	if err != nil {
		logger.Fatal("Failed to create Gemini client", zap.Error(err))
	}

	orchestrator := service.NewImageGenerationService(client, collector, logger)
	opts := []app.Option{app.WithMetrics(collector)}

	var archive repository.GenerationRepository
	if cfg.ArchiveEnabled() {
		db, repo, err := openArchive(ctx, cfg)
		if err != nil {
			logger.Fatal("Failed to open generation archive", zap.Error(err))
		}
		defer db.Close()
		logger.Info("Generation archive enabled", zap.String("host", cfg.DB.Host), zap.String("database", cfg.DB.Database))

		archive = repo
		opts = append(opts, app.WithRecorder(repo))
	}

	state := app.NewState(orchestrator, logger, opts...)

	if *imagePath != "" {
		if err := runOnce(ctx, state, *imagePath, *outDir, logger); err != nil {
			logger.Fatal("Generation failed", zap.Error(err))
		}
		return
	}

	if archive != nil {
		scheduler, err := startPruning(ctx, archive, cfg.PruneSchedule, cfg.RetentionDays, logger)
		if err != nil {
			logger.Fatal("Failed to schedule archive pruning", zap.Error(err))
		}
		defer scheduler.Stop()
	}

	if err := serve(ctx, cfg, state, archive, registry, logger); err != nil {
		logger.Fatal("Server error", zap.Error(err))
	}
	logger.Info("Shut down gracefully")
}

func initLogger(cfg config.LogConfig) *zap.Logger {
	var level zapcore.Level
	if err := level.UnmarshalText([]byte(cfg.Level)); err != nil {
		level = zapcore.InfoLevel
	}

	var encoderConfig zapcore.EncoderConfig
	if cfg.Format == "console" {
		encoderConfig = zap.NewDevelopmentEncoderConfig()
		encoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	} else {
		encoderConfig = zap.NewProductionEncoderConfig()
		encoderConfig.TimeKey = "timestamp"
		encoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	}

	zapConfig := zap.Config{
		Level:            zap.NewAtomicLevelAt(level),
		Development:      cfg.Format == "console",
		Encoding:         "json",
		EncoderConfig:    encoderConfig,
		OutputPaths:      []string{"stdout"},
		ErrorOutputPaths: []string{"stderr"},
	}
	if cfg.Format == "console" {
		zapConfig.Encoding = "console"
	}

	logger, err := zapConfig.Build(zap.AddCaller(), zap.AddStacktrace(zapcore.ErrorLevel))
	if err != nil {
		logger, _ = zap.NewProduction()
	}
	return logger
}

func openArchive(ctx context.Context, cfg *config.Config) (*sql.DB, *repository.PostgresGenerationRepository, error) {
	db, err := sql.Open("postgres", cfg.GetDSN())
	if err != nil {
		return nil, nil, err
	}

	// Configure connection pool
	db.SetMaxOpenConns(cfg.DB.MaxOpenConns)
	db.SetMaxIdleConns(cfg.DB.MaxIdleConns)
	db.SetConnMaxLifetime(cfg.DB.ConnMaxLifetime)

	pingCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		db.Close()
		return nil, nil, err
	}

	repo := repository.NewPostgresGenerationRepository(db)
	if err := repo.EnsureSchema(ctx); err != nil {
		db.Close()
		return nil, nil, err
	}
	return db, repo, nil
}

// startPruning deletes archived generations older than the retention window on a cron schedule
func startPruning(ctx context.Context, archive repository.GenerationRepository, schedule string, retentionDays int, logger *zap.Logger) (*cron.Cron, error) {
	c := cron.New(cron.WithSeconds())

	_, err := c.AddFunc(schedule, func() {
		pruneArchive(ctx, archive, retentionDays, logger)
	})
	if err != nil {
		return nil, err
	}

	c.Start()
	logger.Info("Archive pruning scheduled", zap.String("schedule", schedule), zap.Int("retention_days", retentionDays))
	return c, nil
}

func pruneArchive(ctx context.Context, archive repository.GenerationRepository, retentionDays int, logger *zap.Logger) {
	if retentionDays <= 0 {
		return
	}

	cutoff := time.Now().AddDate(0, 0, -retentionDays)
	deleted, err := archive.DeleteOlderThan(ctx, cutoff)
	if err != nil {
		logger.Error("[CRON] Error pruning archive", zap.Error(err))
		return
	}
	logger.Info("[CRON] Pruned archive", zap.Int64("deleted", deleted), zap.Time("cutoff", cutoff))
}

func serve(ctx context.Context, cfg *config.Config, state *app.State, archive repository.GenerationRepository, gatherer prometheus.Gatherer, logger *zap.Logger) error {
	gin.SetMode(gin.ReleaseMode)

	opts := web.Options{Archive: archive, Gatherer: gatherer, MaxUploadBytes: cfg.MaxUploadBytes}
	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           web.NewServer(ctx, state, opts, logger).Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("Listening", zap.String("addr", cfg.HTTPAddr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		logger.Info("Received shutdown signal")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}

	// Let a running generation settle so its archive record is written
	state.Wait()
	return nil
}
