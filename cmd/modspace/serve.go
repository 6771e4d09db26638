package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/xelth-com/modspace/internal/ai"
	"github.com/xelth-com/modspace/internal/cache"
	"github.com/xelth-com/modspace/internal/config"
	"github.com/xelth-com/modspace/internal/connectivity"
	"github.com/xelth-com/modspace/internal/gateway"
	"github.com/xelth-com/modspace/internal/handlers"
	"github.com/xelth-com/modspace/internal/localstore"
	"github.com/xelth-com/modspace/internal/logging"
	"github.com/xelth-com/modspace/internal/modules/assistant"
	"github.com/xelth-com/modspace/internal/modules/notes"
	"github.com/xelth-com/modspace/internal/modules/tasks"
	"github.com/xelth-com/modspace/internal/registry"
	syncengine "github.com/xelth-com/modspace/internal/sync"
	"github.com/xelth-com/modspace/internal/ui"
	"github.com/xelth-com/modspace/internal/workspace"
	"github.com/xelth-com/modspace/web"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the workspace HTTP server",
	RunE:  runServe,
}

func runServe(cmd *cobra.Command, args []string) error {
	// 1. Load configuration
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	log, err := logging.New(cfg.Log.Level, cfg.Log.Format)
	if err != nil {
		return err
	}
	defer log.Sync()

	// 2. Open local storage (memory, sqlite or postgres)
	storage, err := localstore.Open(cfg.Storage, cfg.Database, log)
	if err != nil {
		log.Error("❌ failed to open local storage", zap.String("driver", cfg.Storage.Driver), zap.Error(err))
		return err
	}
	defer func() {
		log.Info("🛑 closing local storage")
		if err := storage.Close(); err != nil {
			log.Warn("storage close error", zap.Error(err))
		}
	}()

	store, err := cache.Open(storage, cache.Options{
		Namespace:     cfg.Namespace,
		ExtraPrefixes: cfg.Storage.ExtraPrefixes,
		Logger:        log,
	})
	if err != nil {
		return err
	}

	// 3. Gateway client and connectivity
	gw := gateway.NewClient(gateway.Config{
		BaseURL:     cfg.Gateway.BaseURL,
		Nonce:       cfg.Gateway.Nonce,
		NonceHeader: cfg.Gateway.NonceHeader,
		Timeout:     time.Duration(cfg.Gateway.Timeout) * time.Second,
	}, log)
	monitor := connectivity.NewMonitor(cfg.AssumeOnline, gw, time.Duration(cfg.HealthCheckInterval)*time.Second, log)

	// 4. Optional reply generation for the assistant
	var replier ai.Replier
	if cfg.AI.GeminiAPIKey != "" {
		gemini, err := ai.NewGeminiClient(context.Background(), cfg.AI.GeminiAPIKey, cfg.AI.Model, log)
		if err != nil {
			log.Warn("⚠️ assistant replies disabled", zap.Error(err))
		} else {
			defer gemini.Close()
			replier = gemini
			log.Info("✅ Gemini replies enabled")
		}
	}

	// 5. Workspace, browser hub and modules
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	hub := ui.NewHub(log)
	ws, err := workspace.New(workspace.Options{
		Store:      store,
		Gateway:    gw,
		Monitor:    monitor,
		Surface:    hub,
		Sync:       syncengine.ConfigFrom(config.LoadSyncConfig()),
		Registerer: reg,
		Logger:     log,
	})
	if err != nil {
		return err
	}

	for _, d := range []registry.Descriptor{
		tasks.Descriptor(ws, log),
		notes.Descriptor(ws, log),
		assistant.Descriptor(ws, replier, log),
	} {
		if err := ws.Register(d); err != nil {
			return err
		}
	}

	ctx, stop := context.WithCancel(context.Background())
	defer stop()

	hub.SetSignalHandler(ws)
	go hub.Run(ctx)

	if err := ws.Start(ctx); err != nil {
		return err
	}

	// 6. HTTP server
	static, err := web.GetFileSystem()
	if err != nil {
		return err
	}
	router := handlers.NewRouter(handlers.Options{
		Workspace: ws,
		Hub:       hub,
		Gatherer:  reg,
		Static:    static,
		Access:    cfg.Access,
		Logger:    log,
	})

	server := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	// Channel to listen for shutdown signals
	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, os.Interrupt, syscall.SIGTERM)

	serveErr := make(chan error, 1)
	go func() {
		log.Info("🚀 Server starting",
			zap.String("port", cfg.Port),
			zap.String("gateway", cfg.Gateway.BaseURL),
			zap.String("storage", cfg.Storage.Driver))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
	}()

	select {
	case sig := <-shutdown:
		log.Info("⚠️ Received signal, shutting down gracefully", zap.String("signal", sig.String()))
	case err := <-serveErr:
		log.Error("❌ server failed", zap.Error(err))
		ws.Close(context.Background())
		return err
	}

	// Create context with timeout for graceful shutdown
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Warn("HTTP server shutdown error", zap.Error(err))
	}

	// Last chance for pending documents to reach the gateway
	ws.Engine().FlushOnUnload(shutdownCtx)
	ws.Close(shutdownCtx)
	stop()

	log.Info("✅ Shutdown complete")
	return nil
}
