package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/jwebster45206/fateweaver/internal/config"
	"github.com/jwebster45206/fateweaver/internal/events"
	"github.com/jwebster45206/fateweaver/internal/handlers"
	"github.com/jwebster45206/fateweaver/internal/logger"
	"github.com/jwebster45206/fateweaver/internal/metrics"
	"github.com/jwebster45206/fateweaver/internal/middleware"
	"github.com/jwebster45206/fateweaver/internal/storage"
	"github.com/jwebster45206/fateweaver/pkg/content"
	"github.com/jwebster45206/fateweaver/pkg/engine"
	"github.com/jwebster45206/fateweaver/pkg/workflow"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatal(err)
	}

	log := logger.Setup(cfg)

	log.Info("Starting Fateweaver API",
		"port", cfg.Port,
		"environment", cfg.Environment,
		"content", cfg.ContentPath,
		"max_ai_generated", cfg.MaxAIGenerated)

	table, err := content.Load(cfg.ContentPath)
	if err != nil {
		log.Error("Failed to load story content", "path", cfg.ContentPath, "error", err)
		os.Exit(1)
	}
	for _, missing := range content.Validate(table) {
		log.Warn("Story content has a missing link", "link", missing.String())
	}
	log.Info("Story content loaded", "title", table.Title, "scenes", len(table.Scenes), "endings", len(table.Endings))

	store, err := storage.NewRedisStorage(cfg.RedisURL, cfg.PlaythroughTTL, log)
	if err != nil {
		log.Error("Invalid Redis configuration", "error", err)
		os.Exit(1)
	}
	storageCtx, storageCancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer storageCancel()
	if err := store.WaitForConnection(storageCtx, 30, 2*time.Second); err != nil {
		log.Error("Failed to connect to storage", "error", err)
		os.Exit(1)
	}

	client := workflow.NewClient(workflow.ClientConfig{
		BaseURL:    cfg.Workflow.BaseURL,
		APIKey:     cfg.Workflow.APIKey,
		WorkflowID: cfg.Workflow.ID,
		Timeout:    cfg.Workflow.Timeout,
	}, log)

	m := metrics.New()
	playthroughs := handlers.NewPlaythroughHandler(table, client, store, m, handlers.PlaythroughOptions{
		EngineOptions: []engine.Option{
			engine.WithMaxAIGenerated(cfg.MaxAIGenerated),
			engine.WithHistoryWindow(cfg.HistoryWindow),
			engine.WithLanguage(content.ParseLocale(cfg.Locale)),
		},
		LockTTL: cfg.Workflow.Timeout + 30*time.Second,
		Events:  events.NewRedisHub(store.Client(), log),
	}, log)

	mux := http.NewServeMux()
	mux.Handle("/health", handlers.NewHealthHandler(store, len(table.Scenes), log))
	mux.Handle("/metrics", m.Handler())
	mux.Handle("/v1/playthroughs", playthroughs)
	mux.Handle("/v1/playthroughs/", playthroughs)

	server := &http.Server{
		Addr: ":" + cfg.Port,
		Handler: middleware.Chain(mux,
			middleware.RequestID(),
			middleware.RecoverPanic(log),
			middleware.Logger(log)),
		ReadTimeout: 15 * time.Second,
		// No WriteTimeout: action responses stream for as long as the workflow does
		IdleTimeout: 60 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info("Server starting", "addr", server.Addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		log.Info("Server is shutting down...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		err := server.Shutdown(shutdownCtx)
		if cerr := store.Close(); cerr != nil {
			log.Error("Error closing storage connection", "error", cerr)
		}
		return err
	})

	if err := g.Wait(); err != nil {
		log.Error("Server stopped with error", "error", err)
		os.Exit(1)
	}
	log.Info("Server exited")
}
