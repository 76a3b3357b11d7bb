package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	flag "github.com/spf13/pflag"
	"golang.org/x/sync/errgroup"

	"github.com/leca/bandwidth-proxy/internal/config"
	"github.com/leca/bandwidth-proxy/internal/database"
	"github.com/leca/bandwidth-proxy/internal/fetch"
	"github.com/leca/bandwidth-proxy/internal/logging"
	"github.com/leca/bandwidth-proxy/internal/router"
)

const shutdownTimeout = 15 * time.Second

func main() {
	var envFile, addr, dbPath string
	flag.StringVar(&envFile, "env-file", ".env", "Dotenv file merged into the environment")
	flag.StringVar(&addr, "addr", "", "Listen address, overrides BP_LISTEN_ADDR")
	flag.StringVar(&dbPath, "db", "", "SQLite savings ledger path, overrides BP_DB_PATH")
	flag.Parse()

	if err := config.LoadEnvFile(envFile); err != nil {
		slog.Error("failed to load env file", "path", envFile, "error", err)
		os.Exit(1)
	}

	cfg := config.Load()
	if addr != "" {
		cfg.ListenAddr = addr
	}
	if dbPath != "" {
		cfg.DBPath = dbPath
	}

	_, logCloser, err := logging.Setup(logging.Options{File: cfg.LogFile, Level: cfg.LogLevel})
	if err != nil {
		slog.Error("failed to set up logging", "error", err)
		os.Exit(1)
	}
	defer logCloser.Close()

	if err := run(cfg); err != nil {
		slog.Error("server failed", "error", err)
		logCloser.Close()
		os.Exit(1)
	}
}

func run(cfg *config.Config) error {
	var db database.Database
	if cfg.DBPath != "" {
		sqlite, err := database.NewSQLiteDB(cfg.DBPath)
		if err != nil {
			return err
		}
		defer sqlite.Close()
		db = sqlite
	}

	client, err := fetch.NewClient(fetch.Options{
		UserAgent: cfg.UserAgent,
		Timeout:   cfg.UpstreamTimeout,
		ProxyURL:  cfg.UpstreamProxy,
		CookieJar: cfg.CookieJar,
	})
	if err != nil {
		return err
	}

	srv := router.New(db, client, cfg)
	httpServer := &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           srv.Router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		slog.Info("starting server", "addr", cfg.ListenAddr, "ledger", cfg.DBPath != "")
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		slog.Info("shutting down", "cause", context.Cause(gctx))

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return httpServer.Shutdown(shutdownCtx)
	})
	return g.Wait()
}
