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

	"geminichat/internal/config"
	httpapi "geminichat/internal/microservices/http-api"
	"geminichat/internal/microservices/http-api/service"
	"geminichat/internal/microservices/storage"
	"geminichat/internal/microservices/websocket"
)

func main() {
	// 1️⃣ Load config
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("could not load config: %v", err)
	}
	if err := cfg.Validate(); err != nil {
		log.Fatalf("invalid config: %v", err)
	}

	logger := config.NewLogger(cfg, os.Stdout)
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// 2️⃣ Open the chat log store
	store, closeStore, err := storage.Open(ctx, cfg, logger)
	if err != nil {
		logger.Error("store_open_failed", "backend", cfg.StoreBackend, "error", err)
		os.Exit(1)
	}

	// 3️⃣ Room views and the live stream
	sessions := service.NewSessionService(store, service.ChatOptions(cfg), logger)
	hub := websocket.NewHub(logger)
	sessions.Subscribe(hub.Publish)

	hubCtx, stopHub := context.WithCancel(context.Background())
	go hub.Run(hubCtx)

	srv := &http.Server{
		Addr: fmt.Sprintf(":%d", cfg.HTTPPort),
		Handler: httpapi.NewRouter(httpapi.Deps{
			Config:   cfg,
			Sessions: sessions,
			Hub:      hub,
			Logger:   logger,
			Store:    store,
		}),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errChan := make(chan error, 1)
	go func() {
		logger.Info("starting_api_server", "addr", srv.Addr, "backend", cfg.StoreBackend, "env", cfg.GoEnv)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errChan <- err
		}
	}()

	// Wait for shutdown signal or error
	exitCode := 0
	select {
	case <-ctx.Done():
		logger.Info("received_shutdown_signal")
	case err := <-errChan:
		logger.Error("server_error", "error", err)
		exitCode = 1
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Warn("http_shutdown_incomplete", "error", err)
	}

	// pending replies are dropped, the logs already hold every append
	sessions.CloseAll()
	stopHub()
	if err := closeStore(); err != nil {
		logger.Warn("store_close_failed", "error", err)
	}
	logger.Info("server_stopped_gracefully")
	os.Exit(exitCode)
}
