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

	"github.com/dstmrk/octotracker/internal/api"
	"github.com/dstmrk/octotracker/internal/checker"
	"github.com/dstmrk/octotracker/internal/config"
	"github.com/dstmrk/octotracker/internal/handler"
	"github.com/dstmrk/octotracker/internal/ingest"
	"github.com/dstmrk/octotracker/internal/notifier"
	"github.com/dstmrk/octotracker/internal/scheduler"
	"github.com/dstmrk/octotracker/internal/store"
)

func main() {
	log.SetFlags(log.LstdFlags | log.Lshortfile)
	log.Println("[INFO] OctoTracker starting...")

	// Load config
	cfgPath := "configs/config.yaml"
	if v := os.Getenv("CONFIG_PATH"); v != "" {
		cfgPath = v
	}
	cfg, err := config.Load(cfgPath)
	if err != nil {
		log.Fatalf("[FATAL] load config: %v", err)
	}
	if err := cfg.Validate(); err != nil {
		log.Fatalf("[FATAL] config validation: %v", err)
	}

	// Init store
	st, err := store.NewSQLiteStore(cfg.Database.SQLitePath)
	if err != nil {
		log.Fatalf("[FATAL] open database: %v", err)
	}
	defer st.Close()

	// Init offer provider and load the last ingested snapshot
	client := ingest.NewClient(cfg.Arera.BaseURL, cfg.Arera.SupplierVAT, cfg.Arera.MaxDaysBack, cfg.Proxy)
	provider := ingest.NewProvider(client, st)
	if err := provider.Prime(); err != nil {
		log.Printf("[WARN] prime offer snapshot: %v", err)
	}

	// Init Telegram notifier
	tn := notifier.NewTelegramNotifier(cfg.Telegram.BotToken, cfg.Proxy)

	// Init checker and inbound update handler
	chk := checker.New(st, st, provider, tn)
	bot := handler.NewBot(st, st, tn)

	// Context for graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Init scheduler
	sched := scheduler.NewScheduler(ctx, provider, chk)
	if err := sched.RegisterAll(cfg.Schedule.IngestCron, cfg.Schedule.CheckCron); err != nil {
		log.Fatalf("[FATAL] register cron tasks: %v", err)
	}
	sched.Start()
	defer sched.Stop()

	// Start Telegram polling
	go tn.StartPolling(ctx, bot)
	log.Println("[INFO] Telegram polling started")

	// Start HTTP API
	apiSrv := api.NewServer(st, st, cfg.Telegram.BotToken)
	httpSrv := &http.Server{Addr: cfg.API.Addr, Handler: apiSrv.Router()}
	go func() {
		log.Printf("[INFO] HTTP API listening on %s", cfg.API.Addr)
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("[FATAL] HTTP API: %v", err)
		}
	}()

	// Optional: run immediately on start
	if os.Getenv("RUN_ON_START") == "true" {
		log.Println("[INFO] RUN_ON_START enabled, executing ingest and sweep now")
		go func() {
			sched.RunIngestNow()
			sched.RunCheckNow()
		}()
	}

	log.Println("[INFO] OctoTracker is running. Press Ctrl+C to stop.")

	// Wait for shutdown signal
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	log.Println("[INFO] shutdown signal received, stopping...")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := httpSrv.Shutdown(shutdownCtx); err != nil {
		log.Printf("[WARN] HTTP API shutdown: %v", err)
	}

	log.Println("[INFO] OctoTracker stopped")
}
