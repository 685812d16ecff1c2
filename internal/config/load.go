package config

import (
	"context"
	stderrors "errors"
	"os"
	"strings"

	"github.com/go-viper/mapstructure/v2"
	"github.com/rs/zerolog"
	"github.com/spf13/viper"

	"github.com/mrz1836/legion/internal/errors"
)

// newViperInstance creates a new Viper instance with standard LEGION
// configuration: environment variable prefix (LEGION_), key replacer,
// and defaults.
func newViperInstance() *viper.Viper {
	v := viper.New()
	setDefaults(v)
	v.SetEnvPrefix("LEGION")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	return v
}

// isConfigNotFoundError returns true if the error is a viper config file not
// found error.
func isConfigNotFoundError(err error) bool {
	if err == nil {
		return false
	}
	var configNotFoundErr viper.ConfigFileNotFoundError
	return stderrors.As(err, &configNotFoundErr)
}

// unmarshalAndValidate unmarshals viper config into Config and validates it.
func unmarshalAndValidate(v *viper.Viper) (*Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg, viperDecoderOption()); err != nil {
		return nil, errors.Wrap(err, "failed to unmarshal config")
	}
	if err := Validate(&cfg); err != nil {
		return nil, errors.Wrap(err, "invalid configuration")
	}
	return &cfg, nil
}

// Load reads configuration from all available sources with proper precedence.
// Configuration is loaded in the following order (highest precedence first):
//  1. Environment variables (LEGION_* prefix)
//  2. Project config (.legion.yaml in the working directory)
//  3. Global config (~/.legion/config.yaml)
//  4. Built-in defaults
//
// For CLI flag overrides, use LoadWithOverrides instead.
//
// Missing config files are not an error; many commands run fine on defaults
// plus environment variables.
func Load(ctx context.Context) (*Config, error) {
	v := newViperInstance()

	// Global config first (lower precedence)
	if err := loadGlobalConfig(v); err != nil {
		return nil, err
	}

	// Project config merges over global
	if err := loadProjectConfig(v); err != nil {
		return nil, err
	}

	var cfg Config
	if err := v.Unmarshal(&cfg, viperDecoderOption()); err != nil {
		return nil, errors.Wrap(err, "failed to unmarshal config")
	}

	logger := zerolog.Ctx(ctx).With().Str("component", "config").Logger()
	logger.Debug().
		Dur("scheduler.poll_interval", cfg.Scheduler.PollInterval).
		Dur("raids.cadence", cfg.Raids.Cadence).
		Bool("healing.enabled", cfg.Healing.Enabled).
		Msg("configuration loaded and unmarshaled")

	if err := Validate(&cfg); err != nil {
		return nil, errors.Wrap(err, "invalid configuration")
	}

	return &cfg, nil
}

// loadGlobalConfig attempts to load the global config file
// (~/.legion/config.yaml). Returns nil if the file doesn't exist or the home
// directory cannot be determined.
func loadGlobalConfig(v *viper.Viper) error {
	globalConfigPath, ok := getGlobalConfigPathIfExists()
	if !ok {
		return nil
	}

	v.SetConfigFile(globalConfigPath)
	if err := v.ReadInConfig(); err != nil && !isConfigNotFoundError(err) {
		return errors.Wrap(err, "failed to read global config file")
	}
	return nil
}

// getGlobalConfigPathIfExists returns the global config path if it exists.
// Returns empty string and false if the home directory cannot be determined
// or the config file does not exist.
func getGlobalConfigPathIfExists() (string, bool) {
	globalConfigPath, err := GlobalConfigPath()
	if err != nil {
		return "", false
	}
	if _, err := os.Stat(globalConfigPath); err != nil {
		return "", false
	}
	return globalConfigPath, true
}

// loadProjectConfig attempts to load the project config file (.legion.yaml
// in the working directory). Returns nil if the file doesn't exist.
func loadProjectConfig(v *viper.Viper) error {
	projectConfigPath := ProjectConfigPath()
	if !fileExists(projectConfigPath) {
		return nil
	}

	v.SetConfigFile(projectConfigPath)
	if err := v.MergeInConfig(); err != nil && !isConfigNotFoundError(err) {
		return errors.Wrap(err, "failed to read project config file")
	}
	return nil
}

// fileExists returns true if the file at path exists.
func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

// LoadWithOverrides loads configuration and applies CLI flag overrides.
// The overrides parameter contains values from CLI flags which have the
// highest precedence in the configuration hierarchy.
//
// Only non-zero values in overrides are applied. Zero values are ignored
// to allow partial overrides.
func LoadWithOverrides(ctx context.Context, overrides *Config) (*Config, error) {
	cfg, err := Load(ctx)
	if err != nil {
		return nil, err
	}

	if overrides != nil {
		applyOverrides(cfg, overrides)
	}

	// Re-validate after applying overrides
	if err := Validate(cfg); err != nil {
		return nil, errors.Wrap(err, "invalid configuration after overrides")
	}

	return cfg, nil
}

// LoadFromPaths loads configuration from specific file paths for testing.
// This function allows precise control over which config files are loaded.
//
// projectConfigPath is the path to project-level config (higher priority).
// globalConfigPath is the path to global config (lower priority).
// Either path can be empty to skip that level.
func LoadFromPaths(_ context.Context, projectConfigPath, globalConfigPath string) (*Config, error) {
	v := newViperInstance()

	if globalConfigPath != "" {
		v.SetConfigFile(globalConfigPath)
		if err := v.ReadInConfig(); err != nil && !isConfigNotFoundError(err) && !os.IsNotExist(err) {
			return nil, errors.Wrapf(err, "failed to read global config: %s", globalConfigPath)
		}
	}

	if projectConfigPath != "" {
		v.SetConfigFile(projectConfigPath)
		if err := v.MergeInConfig(); err != nil && !isConfigNotFoundError(err) && !os.IsNotExist(err) {
			return nil, errors.Wrapf(err, "failed to read project config: %s", projectConfigPath)
		}
	}

	return unmarshalAndValidate(v)
}

// setDefaults configures all default values on the Viper instance.
// These defaults match the values from DefaultConfig().
// IMPORTANT: Keys must match the YAML tag names exactly for proper mapping.
func setDefaults(v *viper.Viper) {
	// Server defaults
	v.SetDefault("server.base_url", "")
	v.SetDefault("server.rally_point_path", "/build.php?gid=16&tt=2")
	v.SetDefault("server.speed", 1.0)
	v.SetDefault("server.tribe", "romans")
	v.SetDefault("server.home_x", 0)
	v.SetDefault("server.home_y", 0)

	// Scheduler defaults
	v.SetDefault("scheduler.poll_interval", "5s")
	v.SetDefault("scheduler.not_before_tolerance", "1m")
	v.SetDefault("scheduler.task_timeout", "5m")
	v.SetDefault("scheduler.default_max_attempts", 3)
	v.SetDefault("scheduler.backoff_base", "30s")
	v.SetDefault("scheduler.backoff_max", "30m")
	v.SetDefault("scheduler.challenge_delay", "15m")

	// Connection defaults
	v.SetDefault("connection.backoff_base", "1s")
	v.SetDefault("connection.backoff_max", "60s")
	v.SetDefault("connection.alert_threshold", 5)

	// Raids defaults
	v.SetDefault("raids.cadence", "30m")
	v.SetDefault("raids.safety_margin", "30s")
	v.SetDefault("raids.dispatch_spacing", "500ms")
	v.SetDefault("raids.default_troops", map[string]int{})

	// Healing defaults
	v.SetDefault("healing.enabled", true)
	v.SetDefault("healing.cooldown", "10m")
	v.SetDefault("healing.request_timeout", "60s")
	v.SetDefault("healing.api_key_env_var", "ANTHROPIC_API_KEY")
	v.SetDefault("healing.model", "claude-sonnet-4-5")
	v.SetDefault("healing.base_url", "https://api.anthropic.com")
	v.SetDefault("healing.max_html_bytes", 100_000)

	// Browser defaults
	v.SetDefault("browser.headless", true)
	v.SetDefault("browser.user_data_dir", "")
	v.SetDefault("browser.nav_timeout", "30s")

	// Logging defaults
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.file_enabled", true)
}

// applyOverrides merges non-zero override values into the config.
// Only non-zero values are applied to allow partial overrides.
//
// IMPORTANT: Boolean fields (Healing.Enabled, Browser.Headless,
// Logging.FileEnabled) cannot be overridden to false using this function
// because Go's zero value for bool is false. CLI implementations should
// handle boolean flags separately:
//
//	if cmd.Flags().Changed("headless") {
//	    cfg.Browser.Headless = headlessFlag
//	}
func applyOverrides(cfg, overrides *Config) {
	applyServerOverrides(cfg, overrides)
	applySchedulerOverrides(cfg, overrides)

	// Connection overrides
	if overrides.Connection.BackoffBase != 0 {
		cfg.Connection.BackoffBase = overrides.Connection.BackoffBase
	}
	if overrides.Connection.BackoffMax != 0 {
		cfg.Connection.BackoffMax = overrides.Connection.BackoffMax
	}
	if overrides.Connection.AlertThreshold != 0 {
		cfg.Connection.AlertThreshold = overrides.Connection.AlertThreshold
	}

	applyRaidsOverrides(cfg, overrides)
	applyHealingOverrides(cfg, overrides)

	// Browser overrides (Headless is a bool, handled by CLI flag checks)
	if overrides.Browser.UserDataDir != "" {
		cfg.Browser.UserDataDir = overrides.Browser.UserDataDir
	}
	if overrides.Browser.NavTimeout != 0 {
		cfg.Browser.NavTimeout = overrides.Browser.NavTimeout
	}

	// Logging overrides (FileEnabled is a bool, same caveat)
	if overrides.Logging.Level != "" {
		cfg.Logging.Level = overrides.Logging.Level
	}
}

// applyServerOverrides applies server and account overrides to the config.
func applyServerOverrides(cfg, overrides *Config) {
	if overrides.Server.BaseURL != "" {
		cfg.Server.BaseURL = overrides.Server.BaseURL
	}
	if overrides.Server.RallyPointPath != "" {
		cfg.Server.RallyPointPath = overrides.Server.RallyPointPath
	}
	if overrides.Server.Speed != 0 {
		cfg.Server.Speed = overrides.Server.Speed
	}
	if overrides.Server.Tribe != "" {
		cfg.Server.Tribe = overrides.Server.Tribe
	}
	if overrides.Account.Username != "" {
		cfg.Account.Username = overrides.Account.Username
	}
	if overrides.Account.Password != "" {
		cfg.Account.Password = overrides.Account.Password
	}
}

// applySchedulerOverrides applies scheduler overrides to the config.
// This is extracted from applyOverrides to reduce cognitive complexity.
func applySchedulerOverrides(cfg, overrides *Config) {
	if overrides.Scheduler.PollInterval != 0 {
		cfg.Scheduler.PollInterval = overrides.Scheduler.PollInterval
	}
	if overrides.Scheduler.NotBeforeTolerance != 0 {
		cfg.Scheduler.NotBeforeTolerance = overrides.Scheduler.NotBeforeTolerance
	}
	if overrides.Scheduler.TaskTimeout != 0 {
		cfg.Scheduler.TaskTimeout = overrides.Scheduler.TaskTimeout
	}
	if overrides.Scheduler.DefaultMaxAttempts != 0 {
		cfg.Scheduler.DefaultMaxAttempts = overrides.Scheduler.DefaultMaxAttempts
	}
	if overrides.Scheduler.BackoffBase != 0 {
		cfg.Scheduler.BackoffBase = overrides.Scheduler.BackoffBase
	}
	if overrides.Scheduler.BackoffMax != 0 {
		cfg.Scheduler.BackoffMax = overrides.Scheduler.BackoffMax
	}
	if overrides.Scheduler.ChallengeDelay != 0 {
		cfg.Scheduler.ChallengeDelay = overrides.Scheduler.ChallengeDelay
	}
}

// applyRaidsOverrides applies raid overrides to the config.
func applyRaidsOverrides(cfg, overrides *Config) {
	if overrides.Raids.Cadence != 0 {
		cfg.Raids.Cadence = overrides.Raids.Cadence
	}
	if overrides.Raids.SafetyMargin != 0 {
		cfg.Raids.SafetyMargin = overrides.Raids.SafetyMargin
	}
	if overrides.Raids.DispatchSpacing != 0 {
		cfg.Raids.DispatchSpacing = overrides.Raids.DispatchSpacing
	}
	if len(overrides.Raids.DefaultTroops) > 0 {
		cfg.Raids.DefaultTroops = overrides.Raids.DefaultTroops
	}
}

// applyHealingOverrides applies healing overrides to the config.
func applyHealingOverrides(cfg, overrides *Config) {
	if overrides.Healing.Cooldown != 0 {
		cfg.Healing.Cooldown = overrides.Healing.Cooldown
	}
	if overrides.Healing.RequestTimeout != 0 {
		cfg.Healing.RequestTimeout = overrides.Healing.RequestTimeout
	}
	if overrides.Healing.APIKeyEnvVar != "" {
		cfg.Healing.APIKeyEnvVar = overrides.Healing.APIKeyEnvVar
	}
	if overrides.Healing.Model != "" {
		cfg.Healing.Model = overrides.Healing.Model
	}
	if overrides.Healing.BaseURL != "" {
		cfg.Healing.BaseURL = overrides.Healing.BaseURL
	}
	if overrides.Healing.MaxHTMLBytes != 0 {
		cfg.Healing.MaxHTMLBytes = overrides.Healing.MaxHTMLBytes
	}
}

// viperDecoderOption returns the decoder options for Viper unmarshal.
// This configures mapstructure to handle time.Duration conversion from strings.
func viperDecoderOption() viper.DecoderConfigOption {
	return viper.DecodeHook(
		mapstructure.ComposeDecodeHookFunc(
			mapstructure.StringToTimeDurationHookFunc(),
		),
	)
}
