package main

import (
	"context"
	"flag"
	"log"
	"net/http"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"chatd/pkg/api"
	"chatd/pkg/banner"
	"chatd/pkg/chat"
	"chatd/pkg/config"
	"chatd/pkg/llm"
	"chatd/pkg/logger"
	"chatd/pkg/retention"
	"chatd/pkg/shutdown"
	"chatd/pkg/store"
)

var version = "dev"

func main() {
	_ = godotenv.Load(".env")

	addrFlag := flag.String("addr", "", "listen address (overrides config)")
	dbFlag := flag.String("db", "", "pebble database path (overrides config)")
	cfgFlag := flag.String("config", "chatd.yaml", "path to config file")
	flag.Parse()

	cfg, err := config.Load(*cfgFlag)
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}
	// flags win over config/env when provided
	addr := cfg.Addr()
	if *addrFlag != "" {
		addr = *addrFlag
	}
	dbPath := cfg.Storage.DBPath
	if *dbFlag != "" {
		dbPath = *dbFlag
	}

	logger.Init(cfg.Logging.Level)
	defer logger.Sync()

	st, err := store.Open(dbPath)
	if err != nil {
		log.Fatalf("failed to open pebble at %s: %v", dbPath, err)
	}

	client := llm.NewGemini(cfg.Gemini.APIKey, cfg.Gemini.Model, time.Duration(cfg.Gemini.Timeout))
	if cfg.Gemini.APIKey == "" {
		// not fatal: the missing key surfaces as an error on the first send
		logger.Log.Warn("gemini_api_key_missing")
	}
	orch := chat.New(st, client)

	ctx, stop := shutdown.SetupSignalHandler(context.Background())
	defer stop()

	stopRetention, err := retention.Start(ctx, cfg.Retention, st)
	if err != nil {
		log.Fatalf("failed to start retention: %v", err)
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.Handle("/", api.New(st, orch).Router(cfg.RateLimit))

	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		<-ctx.Done()
		stopRetention()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
		_ = st.Close()
	}()

	banner.Print(cfg, addr, dbPath, version)
	logger.Log.Info("chatd_listening",
		zap.String("addr", addr),
		zap.String("db", dbPath),
		zap.String("model", cfg.Gemini.Model))
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.Fatal(err)
	}
}
