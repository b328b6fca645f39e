package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/commentd/oauth-relay/internal/app"
	"github.com/commentd/oauth-relay/internal/handlers"
	"github.com/commentd/oauth-relay/internal/providers"
	"github.com/commentd/oauth-relay/internal/relay"
	"github.com/commentd/oauth-relay/internal/storage"
	"github.com/commentd/oauth-relay/pkg/logger"
)

const shutdownTimeout = 15 * time.Second

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT)
	defer stop()

	if err := run(ctx, os.Args[1:]); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			os.Exit(0)
		}
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("oauth-relay", flag.ContinueOnError)
	fs.SetOutput(os.Stdout)

	var configPath string
	fs.StringVar(&configPath, "config", "", "Path to configuration directory or file")

	if err := fs.Parse(args); err != nil {
		return err
	}

	cfg, err := loadApplicationConfig(configPath)
	if err != nil {
		return err
	}

	if err := logger.Init(cfg.Server.LogLevel); err != nil {
		return fmt.Errorf("configure logging: %w", err)
	}
	defer logger.Sync() // best effort

	log := logger.WithModule("bootstrap")

	var sink relay.Sink
	var db *gorm.DB
	if cfg.Database.Enabled() {
		db, err = storage.Open(cfg.Database)
		if err != nil {
			return fmt.Errorf("open database: %w", err)
		}
		defer closeDatabase(db, log)

		s, sinkErr := storage.NewSink(db, logger.WithModule("storage"))
		if sinkErr != nil {
			return fmt.Errorf("initialise identity sink: %w", sinkErr)
		}
		sink = s
		log.Info("identity persistence enabled")
	} else {
		log.Info("identity persistence disabled; no database configured")
	}

	httpClient := &http.Client{Timeout: cfg.Relay.HTTPTimeout}
	tokens := relay.NewTokenStore(cfg.Relay.RequestTokenTTL)

	adapters := providers.BuildAll(cfg, providers.Options{
		HTTPClient: httpClient,
		Tokens:     tokens,
	})
	for key, p := range adapters {
		if p.Check() {
			log.Info("provider configured", zap.String("provider", key))
		}
	}

	r := relay.New(relay.Options{
		Providers:        adapters,
		Sink:             sink,
		MachineUserAgent: cfg.Relay.MachineUserAgent,
		ServerURL:        cfg.Relay.ServerURL,
		PersistTimeout:   cfg.Relay.PersistTimeout,
		Logger:           logger.WithModule("relay"),
	})

	router := handlers.NewRouter(r, logger.WithModule("http"))

	server := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Server.Port),
		Handler: router,
	}

	serverErr := make(chan error, 1)
	go func() {
		log.Info("server listening", zap.String("addr", server.Addr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
		close(serverErr)
	}()

	select {
	case <-ctx.Done():
		log.Info("shutdown signal received")
	case err := <-serverErr:
		if err != nil {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("graceful shutdown: %w", err)
	}

	if err, ok := <-serverErr; ok && err != nil {
		return fmt.Errorf("server error: %w", err)
	}

	log.Info("server stopped gracefully")
	return nil
}

func loadApplicationConfig(path string) (*app.Config, error) {
	switch {
	case strings.TrimSpace(path) == "":
		return app.LoadConfig()
	default:
		info, err := os.Stat(path)
		if err == nil {
			if info.IsDir() {
				return app.LoadConfig(path)
			}
			return app.LoadConfig(filepath.Dir(path))
		}
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("config path %q does not exist", path)
		}
		return nil, fmt.Errorf("stat config path: %w", err)
	}
}

func closeDatabase(db *gorm.DB, log *zap.Logger) {
	if db == nil {
		return
	}

	sqlDB, err := db.DB()
	if err != nil {
		log.Warn("failed to obtain underlying sql DB for closing", zap.Error(err))
		return
	}

	if err := sqlDB.Close(); err != nil {
		log.Warn("failed to close database", zap.Error(err))
	}
}
