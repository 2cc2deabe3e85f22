package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"

	"github.com/joho/godotenv"

	"scrim-rating-server/api"
	"scrim-rating-server/config"
	"scrim-rating-server/loghandler"
	"scrim-rating-server/skill"
	"scrim-rating-server/storage"
	"scrim-rating-server/ws"
)

func main() {
	if err := godotenv.Load(); err != nil {
		slog.Info("no .env file found; using environment variables")
	}

	slog.SetDefault(slog.New(loghandler.NewCompactHandler(os.Stdout, slog.LevelInfo)))

	cfg := config.Load()
	slog.Info("configuration",
		"mu", cfg.Rating.Mu, "sigma", cfg.Rating.Sigma, "beta", cfg.Rating.Beta,
		"tau", cfg.Rating.Tau, "margin_factor", cfg.Rating.MarginFactor,
		"decay_k", cfg.Decay.K, "decay_scale", cfg.Decay.ScaleSeconds,
		"pool_size", cfg.TeamPoolSize, "port", cfg.HTTPPort)

	ctx := context.Background()

	var store storage.Store
	if cfg.DatabaseURL != "" {
		pg, err := storage.NewPostgres(ctx, cfg.DatabaseURL)
		if err != nil {
			slog.Error("database connection failed", "err", err)
			os.Exit(1)
		}
		store = pg
	} else {
		slog.Warn("DATABASE_URL is not set; ratings are kept in memory and lost on restart")
		store = storage.NewMemory()
	}
	defer store.Close()

	if cfg.AuthBaseURL == "" {
		slog.Warn("AUTH_BASE_URL is not set; mutating API endpoints accept unauthenticated callers")
	} else {
		slog.Info("auth configured", "base_url", cfg.AuthBaseURL)
	}

	svc := skill.New(store, cfg)

	hub := ws.NewHub()
	go hub.Run(ctx)

	mux := http.NewServeMux()
	api.NewHandler(cfg, svc, hub).Register(mux)
	mux.HandleFunc("/ws", hub.ServeWS)

	addr := fmt.Sprintf(":%d", cfg.HTTPPort)
	slog.Info("scrim rating server listening", "addr", addr)
	if err := http.ListenAndServe(addr, mux); err != nil {
		slog.Error("server stopped", "err", err)
		os.Exit(1)
	}
}
