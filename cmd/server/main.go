// Command campcost serves the medical camp cost estimation API.
//
// Usage:
//
//	campcost serve
//	campcost migrate
//	campcost seed
//	campcost estimate --service X-Ray --service ECG --days 3 --cases-per-day 40
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

	"github.com/urfave/cli/v2"

	"github.com/u4rad/campcost/internal/auth"
	"github.com/u4rad/campcost/internal/config"
	"github.com/u4rad/campcost/internal/db"
	"github.com/u4rad/campcost/internal/metrics"
	"github.com/u4rad/campcost/internal/migrations"
	"github.com/u4rad/campcost/internal/pricing"
	"github.com/u4rad/campcost/internal/seed"
	"github.com/u4rad/campcost/internal/storage"
	"github.com/u4rad/campcost/internal/store"
	"github.com/u4rad/campcost/internal/wizard"
)

var version = "dev"

func main() {
	app := &cli.App{
		Name:    "campcost",
		Usage:   "Medical camp cost estimation backend",
		Version: version,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "db",
				Usage:   "SQLite database path",
				EnvVars: []string{"DB_PATH"},
			},
			&cli.StringFlag{
				Name:    "log-level",
				Usage:   "Log level (debug, info, warn, error)",
				EnvVars: []string{"LOG_LEVEL"},
			},
		},
		Commands: []*cli.Command{
			serveCommand(),
			migrateCommand(),
			seedCommand(),
			estimateCommand(),
		},
		DefaultCommand: "serve",
	}

	if err := app.Run(os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// loadConfig reads the environment and applies global flag overrides.
func loadConfig(c *cli.Context) config.Config {
	cfg := config.Load()
	if c.IsSet("db") {
		cfg.DBPath = c.String("db")
	}
	if c.IsSet("log-level") {
		cfg.LogLevel = c.String("log-level")
	}
	return cfg
}

func serveCommand() *cli.Command {
	return &cli.Command{
		Name:  "serve",
		Usage: "Run the HTTP API",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "port",
				Usage:   "Listen port",
				EnvVars: []string{"PORT"},
			},
			&cli.BoolFlag{
				Name:  "migrate",
				Usage: "Run migrations before serving (always on in development)",
			},
		},
		Action: runServe,
	}
}

func runServe(c *cli.Context) error {
	cfg := loadConfig(c)
	if c.IsSet("port") {
		cfg.Port = c.String("port")
	}
	logger := newLogger(cfg.LogLevel)
	if err := cfg.Validate(); err != nil {
		return err
	}

	database, err := db.Open(cfg.DBPath)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer database.Close()

	if cfg.IsDev() || c.Bool("migrate") {
		if err := migrations.Up(database); err != nil {
			return fmt.Errorf("failed to run database migrations: %w", err)
		}
		stats, err := seed.Run(database, seed.Config{
			CoordinatorUsername: cfg.CoordinatorUsername,
			CoordinatorPassword: cfg.CoordinatorPassword,
			CoordinatorCompany:  cfg.CoordinatorCompany,
		})
		if err != nil {
			return fmt.Errorf("failed to seed database: %w", err)
		}
		logger.Info("seed complete", "inserts", stats.Inserts, "updates", stats.Updates)
	}

	st := store.New(database)
	authService := auth.NewService(st)
	if err := authService.EnsureUser(c.Context, cfg.CoordinatorUsername, cfg.CoordinatorPassword, cfg.CoordinatorCompany, auth.RoleCoordinator); err != nil {
		return fmt.Errorf("failed to ensure coordinator user: %w", err)
	}

	objects, err := newObjectStore(c.Context, cfg)
	if err != nil {
		return fmt.Errorf("failed to open object store: %w", err)
	}

	numberer := pricing.NewBillingNumberer(st)
	numberer.Prefix = cfg.BillingPrefix

	wizards := wizard.NewManager()
	wizards.IdleTimeout = cfg.TokenTTL

	srv := &server{
		store:   st,
		auth:    authService,
		tokens:  auth.NewTokenIssuer(cfg.SessionSecret, cfg.TokenTTL),
		wizards: wizards,
		billing: numberer,
		objects: objects,
		logger:  logger,
		origins: cfg.AllowedOrigins,
		now:     func() time.Time { return time.Now().UTC() },
	}

	httpServer := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           srv.routes(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	ctx, stop := signal.NotifyContext(c.Context, os.Interrupt, syscall.SIGTERM)
	defer stop()

	go srv.evictIdleWizards(ctx, time.Minute)

	errCh := make(chan error, 1)
	go func() {
		logger.Info("listening", "addr", httpServer.Addr, "env", cfg.Env)
		errCh <- httpServer.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server stopped: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return httpServer.Shutdown(shutdownCtx)
}

// newObjectStore picks S3 when a bucket is configured and the local
// filesystem otherwise.
func newObjectStore(ctx context.Context, cfg config.Config) (storage.ObjectStore, error) {
	if cfg.S3.Bucket != "" {
		return storage.NewS3(ctx, storage.S3Config{
			Endpoint:  cfg.S3.Endpoint,
			Region:    cfg.S3.Region,
			Bucket:    cfg.S3.Bucket,
			AccessKey: cfg.S3.AccessKey,
			SecretKey: cfg.S3.SecretKey,
			PathStyle: cfg.S3.PathStyle,
		})
	}
	return storage.NewFS(cfg.StorageDir)
}

func migrateCommand() *cli.Command {
	return &cli.Command{
		Name:  "migrate",
		Usage: "Apply pending database migrations",
		Action: func(c *cli.Context) error {
			cfg := loadConfig(c)
			logger := newLogger(cfg.LogLevel)

			database, err := db.Open(cfg.DBPath)
			if err != nil {
				return fmt.Errorf("failed to open database: %w", err)
			}
			defer database.Close()

			if err := migrations.Up(database); err != nil {
				return fmt.Errorf("failed to run database migrations: %w", err)
			}
			v, err := migrations.Version(database)
			if err != nil {
				return err
			}
			logger.Info("migrations applied", "version", v, "db", cfg.DBPath)
			return nil
		},
	}
}

func seedCommand() *cli.Command {
	return &cli.Command{
		Name:  "seed",
		Usage: "Insert the coordinator account and the default catalog",
		Action: func(c *cli.Context) error {
			cfg := loadConfig(c)
			logger := newLogger(cfg.LogLevel)

			database, err := db.Open(cfg.DBPath)
			if err != nil {
				return fmt.Errorf("failed to open database: %w", err)
			}
			defer database.Close()

			if err := migrations.Up(database); err != nil {
				return fmt.Errorf("failed to run database migrations: %w", err)
			}

			stats, err := seed.Run(database, seed.Config{
				CoordinatorUsername: cfg.CoordinatorUsername,
				CoordinatorPassword: cfg.CoordinatorPassword,
				CoordinatorCompany:  cfg.CoordinatorCompany,
			})
			if err != nil {
				return fmt.Errorf("failed to seed database: %w", err)
			}
			logger.Info("seed complete", "inserts", stats.Inserts, "updates", stats.Updates)
			return nil
		},
	}
}

func newLogger(level string) *slog.Logger {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(level)); err != nil {
		lvl = slog.LevelInfo
	}
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: lvl}))
	slog.SetDefault(logger)
	return logger
}

// evictIdleWizards drops idle wizard sessions every interval until ctx ends.
func (s *server) evictIdleWizards(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := s.wizards.Evict(); n > 0 {
				s.logger.Info("evicted idle wizard sessions", "count", n)
			}
			metrics.ActiveWizardSessions.Set(float64(s.wizards.Len()))
		}
	}
}
