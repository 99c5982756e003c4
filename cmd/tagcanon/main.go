package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/go-sql-driver/mysql"
	"github.com/jmoiron/sqlx"

	"github.com/example/tagcanon/internal/config"
	"github.com/example/tagcanon/internal/dictionary"
	"github.com/example/tagcanon/internal/httpapi"
	"github.com/example/tagcanon/internal/store"
	"github.com/example/tagcanon/internal/tagnorm"
	"github.com/example/tagcanon/migrations"
)

var version = "dev"

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}

	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: cfg.SlogLevel()})).With("version", version)

	var apiKeys *httpapi.APIKeyStore
	if cfg.AuthMode == config.AuthAPIKey {
		apiKeys, err = httpapi.LoadAPIKeys(cfg.APIKeysFile)
		if err != nil {
			logger.Error("failed to load api keys", "error", err)
			os.Exit(1)
		}
		logger.Info("api keys loaded", "count", apiKeys.Len())
	}

	var (
		db *sqlx.DB
		st *store.Store
	)
	if cfg.DBDSN != "" {
		db, err = sqlx.Open("mysql", cfg.DBDSN)
		if err != nil {
			logger.Error("failed to open db", "error", err)
			os.Exit(1)
		}
		db.SetMaxOpenConns(10)
		db.SetMaxIdleConns(5)
		db.SetConnMaxLifetime(30 * time.Minute)

		if err := migrations.Up(cfg.DBDSN); err != nil {
			logger.Error("failed to run migrations", "error", err)
			os.Exit(1)
		}
		st = store.New(db)
	}

	var src dictionary.Source
	if cfg.DictionaryFile != "" {
		src = dictionary.FileSource{Path: cfg.DictionaryFile}
	} else {
		src = st
	}
	engine := tagnorm.NewFromSource(src, dictionary.Options{ShortTokenMax: cfg.ShortTokenMax, LoadTimeout: cfg.DictionaryLoadTimeout}, logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := engine.WarmUpCache(ctx); err != nil {
		// readyz stays failing until a reload succeeds.
		logger.Warn("dictionary not loaded at startup", "error", err)
	}

	if cfg.WatchDictionary {
		if err := dictionary.Watch(ctx, cfg.DictionaryFile, engine.Cache()); err != nil {
			logger.Error("failed to watch dictionary file", "error", err)
			os.Exit(1)
		}
	}

	var apiStore httpapi.Store
	if st != nil {
		apiStore = st
	}
	router := httpapi.NewRouter(cfg, engine, apiStore, apiKeys, logger)

	srv := &http.Server{Addr: cfg.Bind, Handler: router}
	go func() {
		logger.Info("server starting", "addr", cfg.Bind)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	<-ctx.Done()

	logger.Info("shutting down gracefully")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown error", "error", err)
	}

	if db != nil {
		if err := db.Close(); err != nil {
			logger.Error("database close error", "error", err)
		}
	}
}
