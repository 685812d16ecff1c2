// Package config provides configuration management for LEGION.
//
// Configuration is loaded from multiple sources with the following precedence
// (highest first):
//  1. CLI flags
//  2. Environment variables (LEGION_* prefix)
//  3. Project config file (.legion.yaml in the working directory)
//  4. Global config file (~/.legion/config.yaml)
//  5. Built-in defaults
package config

import (
	"time"
)

// Config is the root configuration structure for LEGION.
// All automation behavior is driven by the values in this struct.
type Config struct {
	// Server holds connection details for the game world.
	Server ServerConfig `yaml:"server" mapstructure:"server"`

	// Account holds login credentials.
	Account AccountConfig `yaml:"account" mapstructure:"account"`

	// Scheduler controls task queue execution.
	Scheduler SchedulerConfig `yaml:"scheduler" mapstructure:"scheduler"`

	// Connection controls transport failure handling.
	Connection ConnectionConfig `yaml:"connection" mapstructure:"connection"`

	// Raids controls farm raid dispatch behavior.
	Raids RaidsConfig `yaml:"raids" mapstructure:"raids"`

	// Healing controls selector self-healing via the inference service.
	Healing HealingConfig `yaml:"healing" mapstructure:"healing"`

	// Browser controls the headless browser session.
	Browser BrowserConfig `yaml:"browser" mapstructure:"browser"`

	// Sessions lists named state partitions for concurrent workers.
	// When empty, a single session named "default" is used.
	Sessions []SessionConfig `yaml:"sessions" mapstructure:"sessions"`

	// Logging controls log output.
	Logging LoggingConfig `yaml:"logging" mapstructure:"logging"`
}

// ServerConfig holds game-world connection settings.
type ServerConfig struct {
	// BaseURL is the root URL of the game server, e.g. "https://ts1.example.com".
	BaseURL string `yaml:"base_url" mapstructure:"base_url"`

	// RallyPointPath is the path to the rally point send-troops page,
	// relative to BaseURL.
	// Default: "/build.php?gid=16&tt=2"
	RallyPointPath string `yaml:"rally_point_path" mapstructure:"rally_point_path"`

	// Speed is the game-world speed multiplier. Troop travel times scale
	// inversely with it.
	// Default: 1.0
	Speed float64 `yaml:"speed" mapstructure:"speed"`

	// Tribe selects the troop speed table used for travel estimates.
	// One of "romans", "gauls", "teutons".
	// Default: "romans"
	Tribe string `yaml:"tribe" mapstructure:"tribe"`

	// HomeX and HomeY are the map coordinates of the player's village,
	// used as the origin for travel time estimates.
	HomeX int `yaml:"home_x" mapstructure:"home_x"`
	HomeY int `yaml:"home_y" mapstructure:"home_y"`
}

// AccountConfig holds login credentials.
// Prefer supplying the password via the LEGION_ACCOUNT_PASSWORD environment
// variable instead of writing it to a config file.
type AccountConfig struct {
	// Username is the account login name.
	Username string `yaml:"username" mapstructure:"username"`

	// Password is the account password.
	Password string `yaml:"password" mapstructure:"password"`
}

// SchedulerConfig controls task queue execution.
type SchedulerConfig struct {
	// PollInterval bounds how long the run loop sleeps when nothing is
	// eligible and no task wake-up is nearer.
	// Default: 5 seconds
	PollInterval time.Duration `yaml:"poll_interval" mapstructure:"poll_interval"`

	// NotBeforeTolerance is how far in the past a task's not_before may lie
	// at enqueue time before the task is rejected.
	// Default: 1 minute
	NotBeforeTolerance time.Duration `yaml:"not_before_tolerance" mapstructure:"not_before_tolerance"`

	// TaskTimeout is the deadline for a single task handler invocation.
	// Default: 5 minutes
	TaskTimeout time.Duration `yaml:"task_timeout" mapstructure:"task_timeout"`

	// DefaultMaxAttempts is the retry budget applied to tasks enqueued
	// without an explicit limit. Connection failures never consume attempts.
	// Default: 3
	DefaultMaxAttempts int `yaml:"default_max_attempts" mapstructure:"default_max_attempts"`

	// BackoffBase seeds the exponential re-enqueue delay after a logic
	// failure.
	// Default: 30 seconds
	BackoffBase time.Duration `yaml:"backoff_base" mapstructure:"backoff_base"`

	// BackoffMax caps the re-enqueue delay.
	// Default: 30 minutes
	BackoffMax time.Duration `yaml:"backoff_max" mapstructure:"backoff_max"`

	// ChallengeDelay is how far into the future a task is deferred when a
	// human-solvable challenge interrupts it.
	// Default: 15 minutes
	ChallengeDelay time.Duration `yaml:"challenge_delay" mapstructure:"challenge_delay"`
}

// ConnectionConfig controls transport failure handling.
type ConnectionConfig struct {
	// BackoffBase seeds the connection retry backoff. The wait after n
	// consecutive failures is base * 2^n, capped at BackoffMax.
	// Default: 1 second
	BackoffBase time.Duration `yaml:"backoff_base" mapstructure:"backoff_base"`

	// BackoffMax caps the connection retry backoff.
	// Default: 60 seconds
	BackoffMax time.Duration `yaml:"backoff_max" mapstructure:"backoff_max"`

	// AlertThreshold is the consecutive-failure count at which an
	// operator-visible alert is raised. Retrying continues regardless.
	// Default: 5
	AlertThreshold int `yaml:"alert_threshold" mapstructure:"alert_threshold"`
}

// RaidsConfig controls farm raid dispatch behavior.
type RaidsConfig struct {
	// Cadence is the minimum interval between raids on a single target,
	// enforced in addition to the troop round-trip time.
	// Default: 30 minutes
	Cadence time.Duration `yaml:"cadence" mapstructure:"cadence"`

	// SafetyMargin pads the computed troop return time.
	// Default: 30 seconds
	SafetyMargin time.Duration `yaml:"safety_margin" mapstructure:"safety_margin"`

	// DispatchSpacing is the minimum pause between consecutive dispatches
	// when several targets become eligible at once.
	// Default: 500 milliseconds
	DispatchSpacing time.Duration `yaml:"dispatch_spacing" mapstructure:"dispatch_spacing"`

	// DefaultTroops is the troop composition sent when a target does not
	// specify its own. Keys are troop slot names ("t1".."t11"), values are
	// unit counts.
	DefaultTroops map[string]int `yaml:"default_troops" mapstructure:"default_troops"`
}

// HealingConfig controls selector self-healing.
type HealingConfig struct {
	// Enabled turns self-healing on. When false, selector exhaustion
	// surfaces immediately as an element resolution failure.
	// Default: true
	Enabled bool `yaml:"enabled" mapstructure:"enabled"`

	// Cooldown rate-limits healing to one attempt per selector entry per
	// window.
	// Default: 10 minutes
	Cooldown time.Duration `yaml:"cooldown" mapstructure:"cooldown"`

	// RequestTimeout is the deadline for one inference request.
	// Default: 60 seconds
	RequestTimeout time.Duration `yaml:"request_timeout" mapstructure:"request_timeout"`

	// APIKeyEnvVar names the environment variable that holds the inference
	// service API key. The key itself is never stored in config files.
	// Default: "ANTHROPIC_API_KEY"
	APIKeyEnvVar string `yaml:"api_key_env_var" mapstructure:"api_key_env_var"`

	// Model is the inference model used for selector proposals.
	// Default: "claude-sonnet-4-5"
	Model string `yaml:"model" mapstructure:"model"`

	// BaseURL is the inference service endpoint.
	// Default: "https://api.anthropic.com"
	BaseURL string `yaml:"base_url" mapstructure:"base_url"`

	// MaxHTMLBytes truncates the page snapshot handed to inference.
	// Default: 100000
	MaxHTMLBytes int `yaml:"max_html_bytes" mapstructure:"max_html_bytes"`
}

// BrowserConfig controls the headless browser session.
type BrowserConfig struct {
	// Headless runs the browser without a visible window.
	// Default: true
	Headless bool `yaml:"headless" mapstructure:"headless"`

	// UserDataDir persists browser profile state (cookies, local storage)
	// between runs. Empty means a throwaway profile.
	UserDataDir string `yaml:"user_data_dir" mapstructure:"user_data_dir"`

	// NavTimeout bounds a single page navigation.
	// Default: 30 seconds
	NavTimeout time.Duration `yaml:"nav_timeout" mapstructure:"nav_timeout"`
}

// SessionConfig names one state partition. Each session owns a disjoint
// directory under ~/.legion/sessions and may be driven by its own worker.
type SessionConfig struct {
	// Name identifies the session. Used as the directory name.
	Name string `yaml:"name" mapstructure:"name"`

	// Dir overrides the state directory for this session. Empty means
	// ~/.legion/sessions/<name>.
	Dir string `yaml:"dir" mapstructure:"dir"`
}

// LoggingConfig controls log output.
type LoggingConfig struct {
	// Level sets the minimum log level: "debug", "info", "warn", "error".
	// Default: "info"
	Level string `yaml:"level" mapstructure:"level"`

	// FileEnabled mirrors logs to ~/.legion/logs/legion.log.
	// Default: true
	FileEnabled bool `yaml:"file_enabled" mapstructure:"file_enabled"`
}

// RallyPointURL returns the absolute URL of the rally point send-troops page.
func (s *ServerConfig) RallyPointURL() string {
	return s.BaseURL + s.RallyPointPath
}

// SessionNames returns the configured session names, or the single default
// session when none are configured.
func (c *Config) SessionNames() []string {
	if len(c.Sessions) == 0 {
		return []string{"default"}
	}
	names := make([]string, 0, len(c.Sessions))
	for _, s := range c.Sessions {
		names = append(names, s.Name)
	}
	return names
}
