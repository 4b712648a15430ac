package config

import (
	"testing"
	"time"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if cfg.Queue.MaxRetries != 3 {
		t.Fatalf("expected 3 retries, got %d", cfg.Queue.MaxRetries)
	}
	want := []time.Duration{10 * time.Second, 30 * time.Second, 60 * time.Second}
	if len(cfg.Queue.RetryBackoff) != len(want) {
		t.Fatalf("expected backoff %v, got %v", want, cfg.Queue.RetryBackoff)
	}
	for i := range want {
		if cfg.Queue.RetryBackoff[i] != want[i] {
			t.Fatalf("expected backoff %v, got %v", want, cfg.Queue.RetryBackoff)
		}
	}
	if cfg.Processor.Delay != 30*time.Second {
		t.Fatalf("expected 30s delay, got %v", cfg.Processor.Delay)
	}
	if cfg.Recovery.ClaimLease != 0 {
		t.Fatalf("expected claim lease disabled by default, got %v", cfg.Recovery.ClaimLease)
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("expected defaults to validate, got %v", err)
	}
}

func TestLoad_ProcessDelaySecondsAndOverride(t *testing.T) {
	t.Setenv("PROCESS_DELAY_SECONDS", "5")
	cfg, err := Load()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Processor.Delay != 5*time.Second {
		t.Fatalf("expected 5s from PROCESS_DELAY_SECONDS, got %v", cfg.Processor.Delay)
	}

	t.Setenv("PROCESS_DELAY", "250ms")
	cfg, err = Load()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Processor.Delay != 250*time.Millisecond {
		t.Fatalf("expected PROCESS_DELAY to win, got %v", cfg.Processor.Delay)
	}
}

func TestLoad_InvalidBackoff(t *testing.T) {
	t.Setenv("QUEUE_RETRY_BACKOFF", "10s,soon")
	if _, err := Load(); err == nil {
		t.Fatalf("expected error for unparsable backoff entry")
	}
}

func TestValidate_RejectsBadValues(t *testing.T) {
	cases := map[string]func(c *Config){
		"unknown driver":   func(c *Config) { c.App.StoreDriver = "mongo" },
		"zero concurrency": func(c *Config) { c.Worker.Concurrency = 0 },
		"negative retries": func(c *Config) { c.Queue.MaxRetries = -1 },
		"no backoff":       func(c *Config) { c.Queue.RetryBackoff = nil },
		"negative lease":   func(c *Config) { c.Recovery.ClaimLease = -time.Second },
		"lease too short": func(c *Config) {
			c.Processor.Delay = 30 * time.Second
			c.Recovery.ClaimLease = 45 * time.Second
		},
		"lease equal to twice delay": func(c *Config) {
			c.Processor.Delay = 30 * time.Second
			c.Recovery.ClaimLease = time.Minute
		},
		"visibility shorter than delay": func(c *Config) {
			c.Processor.Delay = 30 * time.Second
			c.Queue.VisibilityTimeout = 10 * time.Second
		},
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			cfg, err := Load()
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			mutate(cfg)
			if err := cfg.Validate(); err == nil {
				t.Fatalf("expected validation error")
			}
		})
	}
}

func TestValidate_LeaseAboveTwiceDelay(t *testing.T) {
	cfg, err := Load()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	cfg.Processor.Delay = 30 * time.Second
	cfg.Recovery.ClaimLease = 61 * time.Second
	if err := cfg.Validate(); err != nil {
		t.Fatalf("expected lease above twice the delay to validate, got %v", err)
	}

	cfg.Recovery.ClaimLease = 0
	if err := cfg.Validate(); err != nil {
		t.Fatalf("expected disabled lease to validate, got %v", err)
	}
}
