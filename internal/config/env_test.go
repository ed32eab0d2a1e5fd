package config_test

import (
	"testing"
	"time"

	"github.com/scholarpipe/harvester/internal/config"
)

func TestLoadEnvDefaults(t *testing.T) {
	env, err := config.LoadEnv()
	if err != nil {
		t.Fatalf("LoadEnv: %v", err)
	}
	if env.Workers != 10 || env.MaxAttempts != 3 {
		t.Fatalf("defaults = %+v", env)
	}
	if env.AttemptTimeout != 15*time.Second || env.RunDeadline != 0 {
		t.Fatalf("timeouts = %+v", env)
	}
	if env.BackoffInitial != 200*time.Millisecond || env.BackoffMax != 5*time.Second {
		t.Fatalf("backoff = %+v", env)
	}
}

func TestLoadEnvOverrides(t *testing.T) {
	t.Setenv("WORKERS", "3")
	t.Setenv("MAX_ATTEMPTS", "5")
	t.Setenv("ATTEMPT_TIMEOUT", "2s")
	t.Setenv("RUN_DEADLINE", "1m")
	t.Setenv("USER_AGENT", "harvester-ci/0.1")

	env, err := config.LoadEnv()
	if err != nil {
		t.Fatalf("LoadEnv: %v", err)
	}
	if env.Workers != 3 || env.MaxAttempts != 5 {
		t.Fatalf("overrides = %+v", env)
	}
	if env.AttemptTimeout != 2*time.Second || env.RunDeadline != time.Minute {
		t.Fatalf("timeouts = %+v", env)
	}
	if env.UserAgent != "harvester-ci/0.1" {
		t.Fatalf("user agent = %q", env.UserAgent)
	}
}

func TestLoadEnvRejectsGarbage(t *testing.T) {
	t.Setenv("WORKERS", "many")
	if _, err := config.LoadEnv(); err == nil {
		t.Fatal("expected error for WORKERS=many")
	}
}
