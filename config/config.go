package config

import (
	"encoding/json"
	"log"
	"os"
	"strconv"

	"scrim-rating-server/rating"
)

// RatingConfig holds the rating environment constants. They are fixed at
// startup and must not change during a guild's lifetime.
type RatingConfig struct {
	Mu              float64 `json:"mu"`
	Sigma           float64 `json:"sigma"`
	Beta            float64 `json:"beta"`
	Tau             float64 `json:"tau"`
	DrawProbability float64 `json:"draw_probability"`

	// MarginFactor scales how strongly the round-score margin amplifies
	// or dampens mu movement.
	MarginFactor float64 `json:"margin_factor"`

	// ExposureK is the conservative-estimate constant for the exposure
	// leaderboard metric (mu - k*sigma).
	ExposureK float64 `json:"exposure_k"`
}

// DecayConfig holds the idle-time uncertainty decay constants:
// deltaSigma = k * (idleSeconds/scale)^2, capped at the default sigma.
type DecayConfig struct {
	K            float64 `json:"k"`
	ScaleSeconds float64 `json:"scale_seconds"`
}

// Config holds all configurable service parameters.
type Config struct {
	HTTPPort    int    `json:"http_port"`
	DatabaseURL string `json:"database_url"`
	AuthBaseURL string `json:"auth_base_url"`

	// TeamPoolSize is the default number of roster arrangements sampled
	// when balancing teams.
	TeamPoolSize int `json:"team_pool_size"`

	// RankTolerance is the relative tolerance under which two metric
	// values count as tied for competition ranking.
	RankTolerance float64 `json:"rank_tolerance"`

	Rating RatingConfig `json:"rating"`
	Decay  DecayConfig  `json:"decay"`
}

// Defaults returns a Config with all default values.
func Defaults() *Config {
	env := rating.DefaultEnv()
	return &Config{
		HTTPPort:      8080,
		TeamPoolSize:  10,
		RankTolerance: 1e-9,
		Rating: RatingConfig{
			Mu:              env.Mu,
			Sigma:           env.Sigma,
			Beta:            env.Beta,
			Tau:             env.Tau,
			DrawProbability: env.DrawProb,
			MarginFactor:    0.7,
			ExposureK:       3.0,
		},
		Decay: DecayConfig{
			K:            0.001,
			ScaleSeconds: 50000,
		},
	}
}

// Env builds the rating environment from the configured constants.
func (c *Config) Env() rating.Env {
	return rating.Env{
		Mu:       c.Rating.Mu,
		Sigma:    c.Rating.Sigma,
		Beta:     c.Rating.Beta,
		Tau:      c.Rating.Tau,
		DrawProb: c.Rating.DrawProbability,
	}
}

// Load reads configuration from an optional config.json file, then applies
// environment variable overrides. Fields not set in either source retain
// their default values.
func Load() *Config {
	cfg := Defaults()

	if f, err := os.Open("config.json"); err == nil {
		defer f.Close()
		if err := json.NewDecoder(f).Decode(cfg); err != nil {
			log.Printf("Warning: failed to parse config.json: %v", err)
		}
	}

	overrideInt(&cfg.HTTPPort, "HTTP_PORT")
	overrideString(&cfg.DatabaseURL, "DATABASE_URL")
	overrideString(&cfg.AuthBaseURL, "AUTH_BASE_URL")
	overrideInt(&cfg.TeamPoolSize, "TEAM_POOL_SIZE")
	overrideFloat(&cfg.RankTolerance, "RANK_TOLERANCE")
	overrideFloat(&cfg.Rating.Mu, "RATING_MU")
	overrideFloat(&cfg.Rating.Sigma, "RATING_SIGMA")
	overrideFloat(&cfg.Rating.Beta, "RATING_BETA")
	overrideFloat(&cfg.Rating.Tau, "RATING_TAU")
	overrideFloat(&cfg.Rating.DrawProbability, "RATING_DRAW_PROBABILITY")
	overrideFloat(&cfg.Rating.MarginFactor, "MARGIN_FACTOR")
	overrideFloat(&cfg.Rating.ExposureK, "EXPOSURE_K")
	overrideFloat(&cfg.Decay.K, "DECAY_K")
	overrideFloat(&cfg.Decay.ScaleSeconds, "DECAY_SCALE_SECONDS")

	return cfg
}

func overrideInt(field *int, envKey string) {
	if val := os.Getenv(envKey); val != "" {
		if n, err := strconv.Atoi(val); err == nil {
			*field = n
		} else {
			log.Printf("Warning: invalid value for %s: %q", envKey, val)
		}
	}
}

func overrideFloat(field *float64, envKey string) {
	if val := os.Getenv(envKey); val != "" {
		if f, err := strconv.ParseFloat(val, 64); err == nil {
			*field = f
		} else {
			log.Printf("Warning: invalid value for %s: %q", envKey, val)
		}
	}
}

func overrideString(field *string, envKey string) {
	if val := os.Getenv(envKey); val != "" {
		*field = val
	}
}
