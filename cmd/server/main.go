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

	"connectrpc.com/connect"

	"github.com/atlekbai/record_query/internal/config"
	"github.com/atlekbai/record_query/internal/db"
	"github.com/atlekbai/record_query/internal/handler"
	"github.com/atlekbai/record_query/internal/logger"
	"github.com/atlekbai/record_query/internal/metrics"
	"github.com/atlekbai/record_query/internal/middleware"
	"github.com/atlekbai/record_query/internal/schema"
	"github.com/atlekbai/record_query/internal/server"
	"github.com/atlekbai/record_query/internal/service"
	"github.com/atlekbai/record_query/internal/sqlb"
	"github.com/atlekbai/record_query/internal/store"
	"github.com/atlekbai/record_query/internal/store/sqlstore"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}
	log := logger.New(cfg.LogLevel, cfg.LogFormat)

	if err := run(ctx, cfg, log); err != nil {
		log.Error("server stopped", "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.Config, log *slog.Logger) error {
	dialect, err := sqlb.ByName(cfg.Dialect)
	if err != nil {
		return err
	}

	cache := schema.NewCache()
	var exec sqlstore.Executor
	switch cfg.Dialect {
	case "postgres":
		pool, err := db.NewPool(ctx, cfg.DatabaseURL)
		if err != nil {
			return fmt.Errorf("failed to connect to database: %w", err)
		}
		defer pool.Close()
		exec = db.NewPostgres(pool)
		if cfg.SchemaFile == "" {
			if err := cache.Load(ctx, pool, cfg.DBSchema); err != nil {
				return fmt.Errorf("failed to load schema cache: %w", err)
			}
		}
	case "sqlite":
		if cfg.SchemaFile == "" {
			return errors.New("SCHEMA_FILE is required with the sqlite dialect")
		}
		lite, err := db.OpenSQLite(cfg.SQLitePath)
		if err != nil {
			return fmt.Errorf("failed to open sqlite: %w", err)
		}
		defer lite.Close()
		exec = lite
	}
	if cfg.SchemaFile != "" {
		if err := cache.LoadFile(cfg.SchemaFile); err != nil {
			return fmt.Errorf("failed to load schema file: %w", err)
		}
	}
	log.Info("schema cache loaded", "collections", cache.Len(), "dialect", dialect.Name())

	statements, err := sqlstore.NewStatements(cfg.StatementCache)
	if err != nil {
		return err
	}
	compiler := sqlstore.NewCompiler(dialect, cache).WithValues(db.ToSQLValue)
	stores := store.NewRegistry()
	for _, col := range cache.Collections() {
		s := sqlstore.New(exec, compiler, col, sqlstore.WithLogger(log), sqlstore.WithStatements(statements))
		stores.Register(col.Name, store.Instrument(s, log))
	}

	mux := http.NewServeMux()
	handler.New(stores, log).Register(mux)
	server.Mount(mux,
		[]connect.Interceptor{server.ObservingInterceptor(log)},
		service.NewQueryService(stores),
	)
	mux.Handle("GET /metrics", metrics.Handler())

	srv := &http.Server{
		Addr: cfg.Addr(),
		Handler: middleware.Chain(mux,
			middleware.Recovery(log),
			middleware.RequestID,
			middleware.Logging(log),
			middleware.ContentType,
		),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		<-ctx.Done()
		log.Info("shutting down...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		srv.Shutdown(shutdownCtx)
	}()

	log.Info("listening", "addr", cfg.Addr())
	if err := srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("server error: %w", err)
	}
	return nil
}
