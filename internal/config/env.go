package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Env holds tuning knobs read from the environment. A .env file in the
// working directory is loaded first when present; real environment
// variables win over it.
type Env struct {
	Workers           int
	MaxAttempts       int
	AttemptTimeout    time.Duration
	RunDeadline       time.Duration
	BackoffInitial    time.Duration
	BackoffMax        time.Duration
	BackoffJitterFrac float64
	UserAgent         string

	// Optional Gemini summary annotation.
	GeminiAPIKey  string
	GeminiModel   string
	GeminiBaseURL string
}

// LoadEnv reads the environment (and .env, best effort).
func LoadEnv() (Env, error) {
	// Missing .env is the normal case, not an error.
	_ = godotenv.Load()

	workers, err := envInt("WORKERS", 10)
	if err != nil {
		return Env{}, err
	}
	maxAttempts, err := envInt("MAX_ATTEMPTS", 3)
	if err != nil {
		return Env{}, err
	}
	attemptTimeout, err := envDuration("ATTEMPT_TIMEOUT", 15*time.Second)
	if err != nil {
		return Env{}, err
	}
	runDeadline, err := envDuration("RUN_DEADLINE", 0)
	if err != nil {
		return Env{}, err
	}
	backoffInitial, err := envDuration("BACKOFF_INITIAL", 200*time.Millisecond)
	if err != nil {
		return Env{}, err
	}
	backoffMax, err := envDuration("BACKOFF_MAX", 5*time.Second)
	if err != nil {
		return Env{}, err
	}
	jitter, err := envFloat("BACKOFF_JITTER_FRAC", 0.5)
	if err != nil {
		return Env{}, err
	}

	return Env{
		Workers:           workers,
		MaxAttempts:       maxAttempts,
		AttemptTimeout:    attemptTimeout,
		RunDeadline:       runDeadline,
		BackoffInitial:    backoffInitial,
		BackoffMax:        backoffMax,
		BackoffJitterFrac: jitter,
		UserAgent:         strings.TrimSpace(os.Getenv("USER_AGENT")),
		GeminiAPIKey:      strings.TrimSpace(os.Getenv("GEMINI_API_KEY")),
		GeminiModel:       strings.TrimSpace(os.Getenv("GEMINI_MODEL")),
		GeminiBaseURL:     strings.TrimSpace(os.Getenv("GEMINI_BASE_URL")),
	}, nil
}

func envInt(varName string, fallback int) (int, error) {
	v := strings.TrimSpace(os.Getenv(varName))
	if v == "" {
		return fallback, nil
	}
	out, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("invalid %s=%q: %w", varName, v, err)
	}
	return out, nil
}

func envFloat(varName string, fallback float64) (float64, error) {
	v := strings.TrimSpace(os.Getenv(varName))
	if v == "" {
		return fallback, nil
	}
	out, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid %s=%q: %w", varName, v, err)
	}
	return out, nil
}

func envDuration(varName string, fallback time.Duration) (time.Duration, error) {
	v := strings.TrimSpace(os.Getenv(varName))
	if v == "" {
		return fallback, nil
	}
	out, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("invalid %s=%q: %w", varName, v, err)
	}
	return out, nil
}
