package config

import (
	"github.com/mrz1836/legion/internal/errors"
)

// validTribes is the set of troop speed tables known to LEGION.
var validTribes = map[string]bool{
	"romans":  true,
	"gauls":   true,
	"teutons": true,
}

// Validate checks the configuration for invalid or inconsistent values.
// It returns an error describing the first validation failure found.
//
// Validation rules:
//   - Server speed must be positive; tribe must be known
//   - Scheduler intervals and attempt budgets must be positive
//   - Connection backoff base must not exceed the cap
//   - Raid cadence and margins must not be negative
//   - Healing timeouts and snapshot budget must be positive
func Validate(cfg *Config) error {
	if cfg == nil {
		return errors.ErrConfigNil
	}

	if err := validateServerConfig(&cfg.Server); err != nil {
		return err
	}

	if err := validateSchedulerConfig(&cfg.Scheduler); err != nil {
		return err
	}

	if err := validateConnectionConfig(&cfg.Connection); err != nil {
		return err
	}

	if err := validateRaidsConfig(&cfg.Raids); err != nil {
		return err
	}

	if err := validateHealingConfig(&cfg.Healing); err != nil {
		return err
	}

	return nil
}

// validateServerConfig checks server-specific configuration values.
func validateServerConfig(cfg *ServerConfig) error {
	if cfg.Speed <= 0 {
		return errors.Wrapf(errors.ErrInvalidConfig,
			"server.speed must be positive, got %g", cfg.Speed)
	}

	if cfg.Tribe != "" && !validTribes[cfg.Tribe] {
		return errors.Wrapf(errors.ErrInvalidConfig,
			"server.tribe must be one of romans, gauls, teutons, got %q", cfg.Tribe)
	}

	return nil
}

// validateSchedulerConfig checks scheduler-specific configuration values.
func validateSchedulerConfig(cfg *SchedulerConfig) error {
	if cfg.PollInterval <= 0 {
		return errors.Wrapf(errors.ErrInvalidConfig,
			"scheduler.poll_interval must be positive, got %s", cfg.PollInterval)
	}

	if cfg.TaskTimeout <= 0 {
		return errors.Wrapf(errors.ErrInvalidConfig,
			"scheduler.task_timeout must be positive, got %s", cfg.TaskTimeout)
	}

	if cfg.DefaultMaxAttempts < 1 {
		return errors.Wrapf(errors.ErrInvalidConfig,
			"scheduler.default_max_attempts must be at least 1, got %d", cfg.DefaultMaxAttempts)
	}

	if cfg.BackoffBase <= 0 {
		return errors.Wrapf(errors.ErrInvalidConfig,
			"scheduler.backoff_base must be positive, got %s", cfg.BackoffBase)
	}

	if cfg.BackoffMax < cfg.BackoffBase {
		return errors.Wrapf(errors.ErrInvalidConfig,
			"scheduler.backoff_max must be at least backoff_base, got %s < %s",
			cfg.BackoffMax, cfg.BackoffBase)
	}

	return nil
}

// validateConnectionConfig checks connection-specific configuration values.
func validateConnectionConfig(cfg *ConnectionConfig) error {
	if cfg.BackoffBase <= 0 {
		return errors.Wrapf(errors.ErrInvalidConfig,
			"connection.backoff_base must be positive, got %s", cfg.BackoffBase)
	}

	if cfg.BackoffMax < cfg.BackoffBase {
		return errors.Wrapf(errors.ErrInvalidConfig,
			"connection.backoff_max must be at least backoff_base, got %s < %s",
			cfg.BackoffMax, cfg.BackoffBase)
	}

	if cfg.AlertThreshold < 1 {
		return errors.Wrapf(errors.ErrInvalidConfig,
			"connection.alert_threshold must be at least 1, got %d", cfg.AlertThreshold)
	}

	return nil
}

// validateRaidsConfig checks raid-specific configuration values.
func validateRaidsConfig(cfg *RaidsConfig) error {
	if cfg.Cadence < 0 {
		return errors.Wrapf(errors.ErrInvalidConfig,
			"raids.cadence cannot be negative, got %s", cfg.Cadence)
	}

	if cfg.SafetyMargin < 0 {
		return errors.Wrapf(errors.ErrInvalidConfig,
			"raids.safety_margin cannot be negative, got %s", cfg.SafetyMargin)
	}

	if cfg.DispatchSpacing < 0 {
		return errors.Wrapf(errors.ErrInvalidConfig,
			"raids.dispatch_spacing cannot be negative, got %s", cfg.DispatchSpacing)
	}

	for name, count := range cfg.DefaultTroops {
		if count < 0 {
			return errors.Wrapf(errors.ErrInvalidConfig,
				"raids.default_troops.%s cannot be negative, got %d", name, count)
		}
	}

	return nil
}

// validateHealingConfig checks healing-specific configuration values.
func validateHealingConfig(cfg *HealingConfig) error {
	if cfg.RequestTimeout <= 0 {
		return errors.Wrapf(errors.ErrInvalidConfig,
			"healing.request_timeout must be positive, got %s", cfg.RequestTimeout)
	}

	if cfg.MaxHTMLBytes < 1 {
		return errors.Wrapf(errors.ErrInvalidConfig,
			"healing.max_html_bytes must be at least 1, got %d", cfg.MaxHTMLBytes)
	}

	if cfg.Cooldown < 0 {
		return errors.Wrapf(errors.ErrInvalidConfig,
			"healing.cooldown cannot be negative, got %s", cfg.Cooldown)
	}

	return nil
}
