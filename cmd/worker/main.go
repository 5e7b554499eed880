package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"contract-analyzer/internal/alert"
	"contract-analyzer/internal/analysis"
	"contract-analyzer/internal/config"
	"contract-analyzer/internal/docstore"
	"contract-analyzer/internal/mail"
	"contract-analyzer/internal/store"
	"contract-analyzer/internal/telemetry"
	"contract-analyzer/internal/worker"
)

// Known model prices in dollars per million tokens, used for the cost
// estimate attached to each report.
var modelPrices = map[string]analysis.Price{
	"gpt-4o":      {Input: 2.5, Output: 10},
	"gpt-4o-mini": {Input: 0.15, Output: 0.6},
	"o1":          {Input: 15, Output: 60},
	"o1-preview":  {Input: 15, Output: 60},
	"o1-mini":     {Input: 3, Output: 12},
}

const pricesSetDate = "January 20, 2025"

func main() {
	cfg := config.Load()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() {
		ch := make(chan os.Signal, 1)
		signal.Notify(ch, syscall.SIGINT, syscall.SIGTERM)
		<-ch
		cancel()
	}()

	st, err := store.New(ctx, cfg.PostgresDSN)
	if err != nil {
		log.Fatalf("connect postgres: %v", err)
	}
	defer st.Close()

	if err := st.RunMigrations(ctx); err != nil {
		log.Fatalf("migrations: %v", err)
	}

	docs, err := docstore.New(ctx, cfg)
	if err != nil {
		log.Fatalf("init document store: %v", err)
	}

	if removed, err := docstore.Prune(cfg.DocumentDir, cfg.DocumentMaxAge); err != nil {
		log.Printf("prune document cache: %v", err)
	} else if removed > 0 {
		log.Printf("pruned %d stale cached document(s)", removed)
	}

	go func() {
		if err := http.ListenAndServe(cfg.MetricsAddr, telemetry.Handler()); err != nil {
			log.Printf("metrics server stopped: %v", err)
		}
	}()

	deps := worker.Deps{
		Store:         st,
		Docs:          docs,
		Mailer:        mail.New(cfg.ResendAPIKey, cfg.FromName, cfg.FromAddress),
		Alerts:        alert.NewWebhook(cfg.AlertWebhookURL),
		DocumentDir:   cfg.DocumentDir,
		ReportVersion: cfg.ReportVersion,
		RetryAttempts: cfg.RetryAttempts,
		RetryDelay:    cfg.RetryDelay,
	}

	newAnalyzer := func() (worker.Analyzer, error) {
		return analysis.NewAgent(cfg.OpenAIAPIKey, analysis.Config{
			BigModel:         cfg.BigModel,
			SmallModel:       cfg.SmallModel,
			DocumentType:     cfg.DocumentType,
			SpecificConcerns: cfg.SpecificConcerns,
			Prices:           modelPrices,
			PricesSetDate:    pricesSetDate,
			Timeout:          cfg.AnalysisTimeout,
		})
	}

	scheduler := worker.NewScheduler(deps, newAnalyzer, cfg.MaxWorkers)

	log.Printf("[MAIN] Starting job processor (big_model=%s small_model=%s max_workers=%d)", cfg.BigModel, cfg.SmallModel, cfg.MaxWorkers)
	if err := scheduler.RunOnce(ctx); err != nil {
		log.Fatalf("scheduler pass failed: %v", err)
	}
	log.Printf("[MAIN] Scheduler pass complete.")
}
