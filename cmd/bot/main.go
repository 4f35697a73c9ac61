package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"pulse/bot/internal/ai"
	"pulse/bot/internal/app"
	"pulse/bot/internal/config"
	"pulse/bot/internal/dedup"
	"pulse/bot/internal/export"
	"pulse/bot/internal/kb"
	"pulse/bot/internal/slack"
	"pulse/bot/internal/store"
)

func main() {
	cfg := config.Load()
	ctx := context.Background()

	if cfg.GistID == "" || cfg.GithubToken == "" {
		log.Fatalf("GIST_ID and GITHUB_TOKEN are required")
	}

	snapshots := config.NewManager(cfg.SnapshotPath)
	if err := snapshots.Load(); err != nil {
		log.Printf("WARNING: snapshot load: %v", err)
	}

	records := store.NewGist(cfg.GistBaseURL, cfg.GithubToken, cfg.GistID)

	migrateCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	if err := records.MigrateLegacy(migrateCtx); err != nil {
		log.Printf("WARNING: legacy migration failed (will retry on next restart): %v", err)
	}
	cancel()

	aiClient := ai.NewClient(cfg.OpenAIBaseURL, cfg.OpenAIKey, cfg.OpenAIModel)
	kbSync := kb.NewSyncer(aiClient, cfg.VectorStoreID)
	locks := store.NewLocker()
	extractor := ai.NewExtractor(records, aiClient, kbSync, locks)
	answerer := ai.NewAnswerer(records, aiClient, aiClient, cfg.AssistantID)

	opts := app.Options{
		Locks:           locks,
		Records:         records,
		Snapshots:       snapshots,
		Extractor:       extractor,
		Answerer:        answerer,
		KB:              kbSync,
		Exporter:        export.NewService(),
		ReportChannelID: cfg.ReportChannelID,
		AskWorkers:      cfg.AskWorkers,
	}

	if strings.TrimSpace(cfg.RedisURL) != "" {
		dedupStore, err := dedup.New(cfg.RedisURL)
		if err != nil {
			log.Fatalf("redis connection failed: %v", err)
		}
		defer dedupStore.Close()
		opts.Dedup = dedupStore
		log.Printf("Using Redis for event dedup")
	} else {
		log.Printf("REDIS_URL not set, processing events without dedup")
	}

	slackClient := slack.NewClient(cfg.SlackBaseURL, cfg.SlackBotToken)
	opts.Messenger = slackClient

	service := app.NewService(opts)
	defer service.Shutdown()

	handler := slack.NewHandler(service, slackClient, cfg.SlackSigningSecret)
	mux := handler.Routes()
	// Hit by the external cron for the weekday morning digest.
	mux.HandleFunc("POST /tasks/daily-report", func(w http.ResponseWriter, r *http.Request) {
		if err := service.DailyReport(r.Context()); err != nil {
			log.Printf("daily report failed: %v", err)
			http.Error(w, "daily report failed", http.StatusBadGateway)
			return
		}
		w.WriteHeader(http.StatusOK)
	})

	server := &http.Server{
		Addr:              cfg.Addr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		log.Printf("Pulse bot listening on %s", cfg.Addr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("server failed: %v", err)
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Printf("shutdown error: %v", err)
	}
}
