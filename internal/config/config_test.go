package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mrz1836/legion/internal/constants"
)

func TestDefaultConfig_HasSensibleValues(t *testing.T) {
	cfg := DefaultConfig()
	require.NotNil(t, cfg)

	assert.Equal(t, "romans", cfg.Server.Tribe, "default tribe should be romans")
	assert.InDelta(t, 1.0, cfg.Server.Speed, 0.001, "default server speed should be 1x")
	assert.Equal(t, "/build.php?gid=16&tt=2", cfg.Server.RallyPointPath)

	assert.Equal(t, constants.DefaultPollInterval, cfg.Scheduler.PollInterval)
	assert.Equal(t, constants.DefaultMaxAttempts, cfg.Scheduler.DefaultMaxAttempts)
	assert.Equal(t, constants.DefaultTaskBackoffBase, cfg.Scheduler.BackoffBase)
	assert.Equal(t, constants.DefaultChallengeDelay, cfg.Scheduler.ChallengeDelay)

	assert.Equal(t, constants.DefaultConnBackoffBase, cfg.Connection.BackoffBase)
	assert.Equal(t, constants.DefaultConnBackoffMax, cfg.Connection.BackoffMax)
	assert.Equal(t, constants.DefaultAlertThreshold, cfg.Connection.AlertThreshold)

	assert.Equal(t, constants.DefaultRaidCadence, cfg.Raids.Cadence)
	assert.Equal(t, constants.DefaultSafetyMargin, cfg.Raids.SafetyMargin)

	assert.True(t, cfg.Healing.Enabled, "healing should be enabled by default")
	assert.Equal(t, constants.DefaultHealCooldown, cfg.Healing.Cooldown)
	assert.Equal(t, "ANTHROPIC_API_KEY", cfg.Healing.APIKeyEnvVar)
	assert.Equal(t, constants.DefaultMaxSnapshotBytes, cfg.Healing.MaxHTMLBytes)

	assert.True(t, cfg.Browser.Headless, "browser should be headless by default")
	assert.Equal(t, constants.DefaultNavTimeout, cfg.Browser.NavTimeout)

	assert.Equal(t, "info", cfg.Logging.Level)
	assert.True(t, cfg.Logging.FileEnabled)
}

func TestDefaultConfig_PassesValidation(t *testing.T) {
	cfg := DefaultConfig()
	require.NoError(t, Validate(cfg), "defaults must validate cleanly")
}

func TestServerConfig_RallyPointURL(t *testing.T) {
	s := ServerConfig{
		BaseURL:        "https://ts1.example.com",
		RallyPointPath: "/build.php?gid=16&tt=2",
	}
	assert.Equal(t, "https://ts1.example.com/build.php?gid=16&tt=2", s.RallyPointURL())
}

func TestConfig_SessionNames(t *testing.T) {
	tests := []struct {
		name     string
		sessions []SessionConfig
		want     []string
	}{
		{
			name:     "empty falls back to default",
			sessions: nil,
			want:     []string{"default"},
		},
		{
			name: "single named session",
			sessions: []SessionConfig{
				{Name: "main"},
			},
			want: []string{"main"},
		},
		{
			name: "multiple sessions preserve order",
			sessions: []SessionConfig{
				{Name: "alpha"},
				{Name: "bravo"},
			},
			want: []string{"alpha", "bravo"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := &Config{Sessions: tt.sessions}
			assert.Equal(t, tt.want, cfg.SessionNames())
		})
	}
}

func TestConfig_SessionDirFor(t *testing.T) {
	t.Setenv("HOME", t.TempDir())

	cfg := &Config{
		Sessions: []SessionConfig{
			{Name: "main"},
			{Name: "alt", Dir: "/var/lib/legion/alt"},
		},
	}

	t.Run("explicit dir wins", func(t *testing.T) {
		dir, err := cfg.SessionDirFor("alt")
		require.NoError(t, err)
		assert.Equal(t, "/var/lib/legion/alt", dir)
	})

	t.Run("named session without dir uses default layout", func(t *testing.T) {
		dir, err := cfg.SessionDirFor("main")
		require.NoError(t, err)
		assert.Contains(t, dir, ".legion")
		assert.Contains(t, dir, "sessions")
		assert.Contains(t, dir, "main")
	})

	t.Run("unlisted session resolves anyway", func(t *testing.T) {
		dir, err := cfg.SessionDirFor("scratch")
		require.NoError(t, err)
		assert.Contains(t, dir, "scratch")
	})
}

func TestSchedulerConfig_Durations(t *testing.T) {
	cfg := DefaultConfig()

	// Spot check the backoff envelope is coherent
	assert.Positive(t, cfg.Scheduler.BackoffBase)
	assert.GreaterOrEqual(t, cfg.Scheduler.BackoffMax, cfg.Scheduler.BackoffBase)
	assert.GreaterOrEqual(t, cfg.Connection.BackoffMax, cfg.Connection.BackoffBase)
	assert.Equal(t, 30*time.Minute, cfg.Scheduler.BackoffMax)
}
