// Package di assembles the application graph from configuration.
package di

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"

	dbfs "github.com/garnizeh/triad/db"
	"github.com/garnizeh/triad/api"
	"github.com/garnizeh/triad/internal/backup"
	"github.com/garnizeh/triad/internal/cache"
	"github.com/garnizeh/triad/internal/config"
	"github.com/garnizeh/triad/internal/db"
	"github.com/garnizeh/triad/internal/exchange"
	"github.com/garnizeh/triad/internal/jobs"
	"github.com/garnizeh/triad/internal/logging"
	"github.com/garnizeh/triad/internal/metrics"
	"github.com/garnizeh/triad/internal/processor"
	"github.com/garnizeh/triad/internal/qrcode"
	"github.com/garnizeh/triad/internal/repository/sqlite"
	"github.com/garnizeh/triad/pkg/models"
)

// BuildInfo is stamped into the binary at link time.
type BuildInfo struct {
	Version   string
	BuildTime string
}

// App is the assembled application.
type App struct {
	Config   *config.Config
	Logger   *slog.Logger
	Repo     *sqlite.SQLiteRepo
	Exchange *exchange.Service
	Backup   *backup.Codec
	Metrics  metrics.Recorder
	Handler  http.Handler
	Jobs     *jobs.Scheduler
}

func NewLogger(cfg *config.Config) *slog.Logger {
	l := logging.New(cfg.LogLevel, nil)
	api.SetLogger(l)
	return l
}

func NewMetrics(cfg *config.Config) metrics.Recorder {
	return metrics.New(cfg.Metrics.Enabled)
}

// NewDB opens the database and applies migrations and seed settings.
func NewDB(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*db.DB, func(), error) {
	d, err := db.New(ctx, cfg.DatabasePath, logger)
	if err != nil {
		return nil, nil, fmt.Errorf("open db: %w", err)
	}
	if err := db.Migrate(ctx, d, dbfs.Migrations, dbfs.SeedFiles); err != nil {
		d.Close()
		return nil, nil, fmt.Errorf("migrate: %w", err)
	}
	cleanup := func() {
		if err := d.Close(); err != nil {
			logger.Error("close db", "error", err)
		}
	}
	return d, cleanup, nil
}

// NewRepo returns the store, creating the profile on first launch.
func NewRepo(ctx context.Context, d *db.DB, logger *slog.Logger) (*sqlite.SQLiteRepo, error) {
	repo := sqlite.New(d, logger)
	if _, err := repo.CreateProfileIfAbsent(ctx, "", models.RoleMentee); err != nil {
		return nil, err
	}
	return repo, nil
}

func NewCache(cfg *config.Config, logger *slog.Logger) cache.Codes {
	return cache.New(cfg.Codes.CacheSizeMB, cfg.Codes.CacheTTL, logger)
}

func NewRenderer(cfg *config.Config) (*qrcode.Renderer, error) {
	return qrcode.NewRenderer(cfg.Codes.PixelWidth, cfg.Codes.LinkColor, cfg.Codes.SnapshotColor)
}

func NewProcessor(cfg *config.Config) *processor.Processor {
	return processor.New(cfg.Link.MaxAge)
}

func NewExchange(repo *sqlite.SQLiteRepo, r *qrcode.Renderer, p *processor.Processor, c cache.Codes, m metrics.Recorder, logger *slog.Logger) *exchange.Service {
	return exchange.New(repo, r, p, c, m, logger)
}

func NewBackup(repo *sqlite.SQLiteRepo, logger *slog.Logger, m metrics.Recorder) *backup.Codec {
	return backup.New(repo, logger, m)
}

// NewJobs schedules periodic exports to the configured backup path.
func NewJobs(cfg *config.Config, codec *backup.Codec, logger *slog.Logger) *jobs.Scheduler {
	return jobs.NewScheduler(logger, jobs.Job{
		Name:        "backup",
		Interval:    cfg.Backup.Interval,
		MaxAttempts: 3,
		Run: func(ctx context.Context) error {
			return codec.ExportFile(ctx, cfg.Backup.Path)
		},
	})
}

func NewHandler(cfg *config.Config, info BuildInfo, repo *sqlite.SQLiteRepo, svc *exchange.Service, codec *backup.Codec, m metrics.Recorder) http.Handler {
	return api.SetupRoutes(api.Deps{
		Version:        info.Version,
		BuildTime:      info.BuildTime,
		AllowedOrigins: cfg.CORSOrigins,
		Store:          repo,
		Exchange:       svc,
		Backup:         codec,
		Metrics:        m,
	})
}

func NewApp(cfg *config.Config, logger *slog.Logger, repo *sqlite.SQLiteRepo, svc *exchange.Service, codec *backup.Codec, m metrics.Recorder, h http.Handler, j *jobs.Scheduler) *App {
	return &App{
		Config:   cfg,
		Logger:   logger,
		Repo:     repo,
		Exchange: svc,
		Backup:   codec,
		Metrics:  m,
		Handler:  h,
		Jobs:     j,
	}
}
