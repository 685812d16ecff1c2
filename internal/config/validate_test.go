package config

import (
	"testing"
	"time"

	stderrors "errors"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mrz1836/legion/internal/errors"
)

func TestValidate_NilConfig(t *testing.T) {
	err := Validate(nil)
	require.Error(t, err)
	assert.True(t, stderrors.Is(err, errors.ErrConfigNil))
}

func TestValidate_RejectsInvalidValues(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantMsg string
	}{
		{
			name:    "zero server speed",
			mutate:  func(c *Config) { c.Server.Speed = 0 },
			wantMsg: "server.speed",
		},
		{
			name:    "negative server speed",
			mutate:  func(c *Config) { c.Server.Speed = -1 },
			wantMsg: "server.speed",
		},
		{
			name:    "unknown tribe",
			mutate:  func(c *Config) { c.Server.Tribe = "huns" },
			wantMsg: "server.tribe",
		},
		{
			name:    "zero poll interval",
			mutate:  func(c *Config) { c.Scheduler.PollInterval = 0 },
			wantMsg: "scheduler.poll_interval",
		},
		{
			name:    "zero task timeout",
			mutate:  func(c *Config) { c.Scheduler.TaskTimeout = 0 },
			wantMsg: "scheduler.task_timeout",
		},
		{
			name:    "zero attempt budget",
			mutate:  func(c *Config) { c.Scheduler.DefaultMaxAttempts = 0 },
			wantMsg: "scheduler.default_max_attempts",
		},
		{
			name:    "zero scheduler backoff base",
			mutate:  func(c *Config) { c.Scheduler.BackoffBase = 0 },
			wantMsg: "scheduler.backoff_base",
		},
		{
			name: "scheduler backoff cap below base",
			mutate: func(c *Config) {
				c.Scheduler.BackoffBase = time.Minute
				c.Scheduler.BackoffMax = time.Second
			},
			wantMsg: "scheduler.backoff_max",
		},
		{
			name:    "zero connection backoff base",
			mutate:  func(c *Config) { c.Connection.BackoffBase = 0 },
			wantMsg: "connection.backoff_base",
		},
		{
			name: "connection backoff cap below base",
			mutate: func(c *Config) {
				c.Connection.BackoffBase = 2 * time.Minute
				c.Connection.BackoffMax = time.Second
			},
			wantMsg: "connection.backoff_max",
		},
		{
			name:    "zero alert threshold",
			mutate:  func(c *Config) { c.Connection.AlertThreshold = 0 },
			wantMsg: "connection.alert_threshold",
		},
		{
			name:    "negative raid cadence",
			mutate:  func(c *Config) { c.Raids.Cadence = -time.Minute },
			wantMsg: "raids.cadence",
		},
		{
			name:    "negative safety margin",
			mutate:  func(c *Config) { c.Raids.SafetyMargin = -time.Second },
			wantMsg: "raids.safety_margin",
		},
		{
			name: "negative troop count",
			mutate: func(c *Config) {
				c.Raids.DefaultTroops = map[string]int{"t1": -5}
			},
			wantMsg: "raids.default_troops",
		},
		{
			name:    "zero healing request timeout",
			mutate:  func(c *Config) { c.Healing.RequestTimeout = 0 },
			wantMsg: "healing.request_timeout",
		},
		{
			name:    "zero snapshot budget",
			mutate:  func(c *Config) { c.Healing.MaxHTMLBytes = 0 },
			wantMsg: "healing.max_html_bytes",
		},
		{
			name:    "negative heal cooldown",
			mutate:  func(c *Config) { c.Healing.Cooldown = -time.Minute },
			wantMsg: "healing.cooldown",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(cfg)

			err := Validate(cfg)
			require.Error(t, err)
			assert.True(t, stderrors.Is(err, errors.ErrInvalidConfig), "should wrap ErrInvalidConfig")
			assert.Contains(t, err.Error(), tt.wantMsg)
		})
	}
}

func TestValidate_AcceptsEdgeValues(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{
			name:   "empty tribe skips table check",
			mutate: func(c *Config) { c.Server.Tribe = "" },
		},
		{
			name:   "zero raid cadence allowed",
			mutate: func(c *Config) { c.Raids.Cadence = 0 },
		},
		{
			name:   "zero heal cooldown allowed",
			mutate: func(c *Config) { c.Healing.Cooldown = 0 },
		},
		{
			name: "backoff cap equal to base allowed",
			mutate: func(c *Config) {
				c.Scheduler.BackoffBase = time.Minute
				c.Scheduler.BackoffMax = time.Minute
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(cfg)
			assert.NoError(t, Validate(cfg))
		})
	}
}
