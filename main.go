package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"sync"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"mytodos/internal/config"
	"mytodos/internal/handlers"
	"mytodos/internal/reconcile"
	"mytodos/internal/store"
)

func main() {
	if err := run(); err != nil {
		slog.Error(err.Error())
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: cfg.SlogLevel()}))
	slog.SetDefault(logger)

	// Ensure data directory exists
	if cfg.DBPath != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(cfg.DBPath), 0755); err != nil {
			return fmt.Errorf("failed to create data directory: %w", err)
		}
	}

	logger.Info("opening database", slog.String("path", cfg.DBPath))
	s, err := store.NewSQLiteStore(cfg.DBPath)
	if err != nil {
		return fmt.Errorf("failed to initialize store: %w", err)
	}
	defer s.Close()

	engine := reconcile.New(reconcile.Config{
		Store:       s,
		Logger:      logger,
		MaxInFlight: cfg.MaxInFlight,
	})
	defer engine.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := engine.Refresh(ctx); err != nil {
		return err
	}

	h := handlers.New(engine, logger)

	r := chi.NewRouter()
	r.Use(handlers.AccessLog(logger))
	r.Use(middleware.Recoverer)

	r.Get("/healthz", h.Health)

	r.Route("/api/todos", func(r chi.Router) {
		// Compression would buffer the websocket upgrade response.
		r.Get("/live", h.LiveTodos)

		r.Group(func(r chi.Router) {
			r.Use(middleware.Compress(5))
			r.Get("/", h.ListTodos)
			r.Post("/", h.CreateTodo)
			r.Post("/reorder", h.ReorderTodos)
			r.Delete("/{id}", h.DeleteTodo)
			r.Put("/{id}/order", h.UpdateTodoOrder)
		})
	})

	httpServer := &http.Server{Addr: cfg.Addr(), Handler: r}

	var wg sync.WaitGroup
	errs := make(chan error, 2)

	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := engine.Run(ctx); err != nil {
			errs <- fmt.Errorf("todo sync stopped: %w", err)
		}
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		logger.Info("starting server", slog.String("addr", cfg.Addr()))
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errs <- fmt.Errorf("server listen failed: %w", err)
		}
	}()

	exit := make(chan os.Signal, 1)
	signal.Notify(exit, syscall.SIGINT, syscall.SIGTERM)

	var runErr error
	select {
	case sig := <-exit:
		logger.Info("signal caught", slog.Any("sig", sig))
	case runErr = <-errs:
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	// Live connections are hijacked, so Shutdown does not wait for them.
	// Closing the engine ends their streams.
	engine.Close()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown failed", slog.Any("err", err))
		_ = httpServer.Close()
	}
	cancel()

	wg.Wait()
	return runErr
}
