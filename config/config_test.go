package config

import (
	"math"
	"testing"
)

func TestDefaults(t *testing.T) {
	cfg := Defaults()
	if cfg.Rating.Mu != 25 {
		t.Errorf("default mu = %v, want 25", cfg.Rating.Mu)
	}
	if math.Abs(cfg.Rating.Sigma-25.0/3.0) > 1e-12 {
		t.Errorf("default sigma = %v, want 25/3", cfg.Rating.Sigma)
	}
	if cfg.Rating.MarginFactor != 0.7 {
		t.Errorf("default margin factor = %v, want 0.7", cfg.Rating.MarginFactor)
	}
	if cfg.Decay.K != 0.001 || cfg.Decay.ScaleSeconds != 50000 {
		t.Errorf("default decay = %v/%v, want 0.001/50000", cfg.Decay.K, cfg.Decay.ScaleSeconds)
	}
	if cfg.TeamPoolSize != 10 {
		t.Errorf("default pool size = %v, want 10", cfg.TeamPoolSize)
	}
}

func TestEnvBuildsRatingEnv(t *testing.T) {
	cfg := Defaults()
	env := cfg.Env()
	if env.Mu != cfg.Rating.Mu || env.Sigma != cfg.Rating.Sigma || env.Beta != cfg.Rating.Beta {
		t.Errorf("Env() does not mirror config: %+v", env)
	}
}

func TestLoadEnvOverrides(t *testing.T) {
	t.Setenv("RATING_MU", "1200")
	t.Setenv("DECAY_K", "0.5")
	t.Setenv("TEAM_POOL_SIZE", "42")
	t.Setenv("DATABASE_URL", "postgres://localhost/skill")
	cfg := Load()
	if cfg.Rating.Mu != 1200 {
		t.Errorf("RATING_MU override ignored: %v", cfg.Rating.Mu)
	}
	if cfg.Decay.K != 0.5 {
		t.Errorf("DECAY_K override ignored: %v", cfg.Decay.K)
	}
	if cfg.TeamPoolSize != 42 {
		t.Errorf("TEAM_POOL_SIZE override ignored: %v", cfg.TeamPoolSize)
	}
	if cfg.DatabaseURL != "postgres://localhost/skill" {
		t.Errorf("DATABASE_URL override ignored: %q", cfg.DatabaseURL)
	}
}

func TestLoadIgnoresInvalidValues(t *testing.T) {
	t.Setenv("RATING_SIGMA", "not-a-number")
	t.Setenv("HTTP_PORT", "also-bad")
	cfg := Load()
	def := Defaults()
	if cfg.Rating.Sigma != def.Rating.Sigma {
		t.Errorf("invalid RATING_SIGMA should keep default, got %v", cfg.Rating.Sigma)
	}
	if cfg.HTTPPort != def.HTTPPort {
		t.Errorf("invalid HTTP_PORT should keep default, got %v", cfg.HTTPPort)
	}
}
