package config

import (
	"github.com/mrz1836/legion/internal/constants"
)

// DefaultConfig returns a new Config with sensible default values.
// These defaults are used as the base layer that can be overridden by
// config files, environment variables, and CLI flags.
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			// BaseURL: empty, must be supplied by the user. Validation
			// is deferred to the commands that actually need a server.
			BaseURL: "",

			// RallyPointPath: the send-troops page on standard servers.
			RallyPointPath: "/build.php?gid=16&tt=2",

			// Speed: 1x world by default.
			Speed: constants.DefaultServerSpeed,

			// Tribe: romans is the fallback speed table.
			Tribe: "romans",
		},
		Account: AccountConfig{},
		Scheduler: SchedulerConfig{
			PollInterval:       constants.DefaultPollInterval,
			NotBeforeTolerance: constants.DefaultNotBeforeTolerance,
			TaskTimeout:        constants.DefaultTaskTimeout,
			DefaultMaxAttempts: constants.DefaultMaxAttempts,
			BackoffBase:        constants.DefaultTaskBackoffBase,
			BackoffMax:         constants.DefaultTaskBackoffMax,
			ChallengeDelay:     constants.DefaultChallengeDelay,
		},
		Connection: ConnectionConfig{
			BackoffBase:    constants.DefaultConnBackoffBase,
			BackoffMax:     constants.DefaultConnBackoffMax,
			AlertThreshold: constants.DefaultAlertThreshold,
		},
		Raids: RaidsConfig{
			Cadence:         constants.DefaultRaidCadence,
			SafetyMargin:    constants.DefaultSafetyMargin,
			DispatchSpacing: constants.DefaultDispatchSpacing,

			// DefaultTroops: empty, targets must specify their own troops
			// until the user configures a default composition.
			DefaultTroops: nil,
		},
		Healing: HealingConfig{
			Enabled:        true,
			Cooldown:       constants.DefaultHealCooldown,
			RequestTimeout: constants.DefaultInferTimeout,

			// APIKeyEnvVar: standard Anthropic key variable. Keeps the
			// key itself out of config files.
			APIKeyEnvVar: "ANTHROPIC_API_KEY",

			Model:        "claude-sonnet-4-5",
			BaseURL:      "https://api.anthropic.com",
			MaxHTMLBytes: constants.DefaultMaxSnapshotBytes,
		},
		Browser: BrowserConfig{
			Headless:   true,
			NavTimeout: constants.DefaultNavTimeout,
		},
		Sessions: nil,
		Logging: LoggingConfig{
			Level:       "info",
			FileEnabled: true,
		},
	}
}
