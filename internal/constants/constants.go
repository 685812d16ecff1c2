// Package constants provides centralized constant values used throughout LEGION.
// This package is the single source of truth for all shared constants and MUST NOT
// import any other internal packages.
package constants

import "time"

// File names used by LEGION for state persistence.
const (
	// QueueFileName is the name of the JSON file that stores the active task queue.
	QueueFileName = "queue.json"

	// ArchiveFileName is the name of the JSON file that stores terminal tasks.
	ArchiveFileName = "archive.json"

	// FarmsFileName is the name of the JSON file that stores the farm list.
	FarmsFileName = "farms.json"

	// SelectorsFileName is the name of the JSON file that stores the selector registry.
	SelectorsFileName = "selectors.json"
)

// Directory names and paths used by LEGION for organizing data.
const (
	// LegionHome is the hidden directory name where LEGION stores all its data.
	// This directory is created in the user's home directory.
	LegionHome = ".legion"

	// SessionsDir is the directory name under which per-session state
	// partitions live. Each session owns a disjoint subdirectory.
	SessionsDir = "sessions"

	// SnapshotsDir is the directory name where page snapshot artifacts are stored.
	SnapshotsDir = "snapshots"

	// LogsDir is the directory name where log files are stored.
	LogsDir = "logs"
)

// Log and configuration file names.
const (
	// CLILogFileName is the name of the global CLI log file.
	// This file is located in ~/.legion/logs/legion.log
	CLILogFileName = "legion.log"

	// GlobalConfigName is the name of the global LEGION configuration file.
	// This file is located in the LEGION home directory.
	GlobalConfigName = "config.yaml"

	// ProjectConfigName is the name of the project-specific LEGION configuration file.
	// This file is located in the working directory.
	ProjectConfigName = ".legion.yaml"
)

// Scheduler defaults.
const (
	// DefaultPollInterval bounds how long the run loop sleeps when no task
	// is eligible and no wake-up time is nearer.
	DefaultPollInterval = 5 * time.Second

	// DefaultNotBeforeTolerance is how far in the past a task's not_before
	// may lie at enqueue time before the task is rejected as invalid.
	// Values inside the tolerance are clamped to the current time.
	DefaultNotBeforeTolerance = 1 * time.Minute

	// DefaultTaskTimeout is the deadline applied to a single handler invocation.
	DefaultTaskTimeout = 5 * time.Minute

	// DefaultMaxAttempts is the per-task retry budget for logic failures.
	DefaultMaxAttempts = 3

	// DefaultTaskBackoffBase seeds the exponential re-enqueue delay after a
	// logic failure. The delay for attempt n is base * 2^n, capped.
	DefaultTaskBackoffBase = 30 * time.Second

	// DefaultTaskBackoffMax caps the re-enqueue delay.
	DefaultTaskBackoffMax = 30 * time.Minute

	// DefaultChallengeDelay defers a task that ran into a human-solvable
	// challenge. Rapid retries cannot succeed, so the pause is long.
	DefaultChallengeDelay = 15 * time.Minute
)

// Connection resilience defaults.
const (
	// DefaultConnBackoffBase seeds the connection retry backoff.
	// The wait after n consecutive failures is base * 2^n, capped.
	DefaultConnBackoffBase = 1 * time.Second

	// DefaultConnBackoffMax caps the connection retry backoff.
	DefaultConnBackoffMax = 60 * time.Second

	// DefaultAlertThreshold is the consecutive-failure count at which the
	// guard raises an operator-visible alert. It never aborts.
	DefaultAlertThreshold = 5
)

// Raid scheduling defaults.
const (
	// DefaultRaidCadence is the minimum interval between raids on one target.
	DefaultRaidCadence = 30 * time.Minute

	// DefaultSafetyMargin pads the computed troop return time so a target
	// never re-dispatches before its troops are realistically home.
	DefaultSafetyMargin = 30 * time.Second

	// DefaultDispatchSpacing is the fixed pause between consecutive raid
	// dispatches when several targets become eligible in the same tick.
	DefaultDispatchSpacing = 500 * time.Millisecond

	// DefaultRaidPriority orders raid tasks ahead of routine work.
	DefaultRaidPriority = 10
)

// Selector scoring defaults.
const (
	// DefaultPromoteDelta is added to a candidate's confidence on success.
	DefaultPromoteDelta = 0.1

	// DefaultFailurePenalty multiplies a candidate's confidence on failure.
	DefaultFailurePenalty = 0.5

	// DefaultDemoteThreshold is the consecutive-failure count that removes a
	// candidate from the active ordering. The candidate is kept for audit.
	DefaultDemoteThreshold = 3

	// DefaultHealedConfidenceStep places healed candidates this far below
	// the lowest previously-successful active candidate.
	DefaultHealedConfidenceStep = 0.1

	// DefaultSeedConfidence is the confidence of the first seeded candidate;
	// later seeds step down from it.
	DefaultSeedConfidence = 0.9
)

// Self-healing defaults.
const (
	// DefaultHealCooldown rate-limits healing to one attempt per entry per
	// window so a structurally broken page cannot hammer the inference service.
	DefaultHealCooldown = 10 * time.Minute

	// DefaultInferTimeout is the deadline for a single inference request.
	DefaultInferTimeout = 60 * time.Second

	// DefaultMaxSnapshotBytes truncates the page HTML handed to inference.
	DefaultMaxSnapshotBytes = 100_000

	// MaxInferRetryAttempts is the bounded retry budget for inference calls.
	MaxInferRetryAttempts = 3

	// InferInitialBackoff is the initial backoff before an inference retry.
	InferInitialBackoff = 1 * time.Second

	// InferBackoffMultiplier doubles the inference retry backoff per attempt.
	InferBackoffMultiplier = 2
)

// Browser defaults.
const (
	// DefaultNavTimeout bounds a single page navigation.
	DefaultNavTimeout = 30 * time.Second

	// DefaultServerSpeed is the game-world speed multiplier applied to
	// troop movement.
	DefaultServerSpeed = 1.0
)

// Schema version constants for data migration support.
const (
	// QueueSchemaVersion is the current version of the queue JSON schema.
	QueueSchemaVersion = "1.0"

	// FarmsSchemaVersion is the current version of the farm list JSON schema.
	FarmsSchemaVersion = "1.0"

	// SelectorsSchemaVersion is the current version of the selector registry JSON schema.
	SelectorsSchemaVersion = "1.0"
)
