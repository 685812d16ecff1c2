package guard

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/mrz1836/legion/internal/clock"
	"github.com/mrz1836/legion/internal/constants"
	"github.com/mrz1836/legion/internal/ctxutil"
)

// timeAfter is the timer seam for backoff waits. Stubbed in tests to avoid
// real sleeps.
//
//nolint:gochecknoglobals // Test seam following the established retry pattern
var timeAfter = time.After

// maxBackoffShift caps the exponent so long outages cannot overflow the
// backoff computation.
const maxBackoffShift = 20

// Health is the guard's connection health state.
type Health string

// Health states. There is no terminal state: the guard retries for as long
// as the process runs.
const (
	// HealthHealthy means the last round-trip succeeded.
	HealthHealthy Health = "healthy"

	// HealthDegraded means exactly one connection failure has been recorded
	// and a retry is imminent.
	HealthDegraded Health = "degraded"

	// HealthSuspended means repeated failures have the guard backing off
	// between retries.
	HealthSuspended Health = "suspended"
)

// String returns the string representation of the Health.
func (h Health) String() string {
	return string(h)
}

// State is a point-in-time snapshot of the guard for status surfaces.
type State struct {
	Health              Health        `json:"health"`
	ConsecutiveFailures int           `json:"consecutive_failures"`
	CurrentBackoff      time.Duration `json:"current_backoff"`
	SuspendedSince      time.Time     `json:"suspended_since,omitzero"`
	LastError           string        `json:"last_error,omitempty"`
}

// AlertFunc is called once per outage episode when the consecutive-failure
// count reaches the configured threshold.
type AlertFunc func(state State, cause error)

// RecoverFunc is called after the transport recovers from an outage, before
// the result of the recovering call is returned. Used to re-verify login.
type RecoverFunc func(ctx context.Context) error

// Options configures a Guard. Zero fields fall back to the package defaults.
type Options struct {
	// BackoffBase seeds the exponential backoff.
	BackoffBase time.Duration

	// BackoffMax caps the backoff.
	BackoffMax time.Duration

	// AlertThreshold is the consecutive-failure count that fires OnAlert.
	AlertThreshold int

	// OnAlert is the operator alert hook. Optional.
	OnAlert AlertFunc

	// OnRecover is the transport recovery hook. Optional.
	OnRecover RecoverFunc

	// Clock supplies time for state stamps. Defaults to the real clock.
	Clock clock.Clock
}

// Guard tracks connection health and drives transparent retry of
// connection-class failures. It is owned by a single worker and performs no
// internal locking.
type Guard struct {
	classifier     *Classifier
	backoffBase    time.Duration
	backoffMax     time.Duration
	alertThreshold int
	onAlert        AlertFunc
	onRecover      RecoverFunc
	clk            clock.Clock
	logger         zerolog.Logger

	consecutive    int
	currentBackoff time.Duration
	suspendedSince time.Time
	lastError      string
}

// New creates a Guard with the given options.
func New(opts Options, logger zerolog.Logger) *Guard {
	if opts.BackoffBase <= 0 {
		opts.BackoffBase = constants.DefaultConnBackoffBase
	}
	if opts.BackoffMax <= 0 {
		opts.BackoffMax = constants.DefaultConnBackoffMax
	}
	if opts.AlertThreshold <= 0 {
		opts.AlertThreshold = constants.DefaultAlertThreshold
	}
	if opts.Clock == nil {
		opts.Clock = clock.RealClock{}
	}
	return &Guard{
		classifier:     NewClassifier(),
		backoffBase:    opts.BackoffBase,
		backoffMax:     opts.BackoffMax,
		alertThreshold: opts.AlertThreshold,
		onAlert:        opts.OnAlert,
		onRecover:      opts.OnRecover,
		clk:            opts.Clock,
		logger:         logger.With().Str("component", "guard").Logger(),
	}
}

// Classifier exposes the guard's classifier so callers share one predicate
// set.
func (g *Guard) Classifier() *Classifier {
	return g.classifier
}

// State returns a snapshot of the guard's connection state.
func (g *Guard) State() State {
	return State{
		Health:              g.health(),
		ConsecutiveFailures: g.consecutive,
		CurrentBackoff:      g.currentBackoff,
		SuspendedSince:      g.suspendedSince,
		LastError:           g.lastError,
	}
}

// health derives the health state from the failure streak.
func (g *Guard) health() Health {
	switch {
	case g.consecutive == 0:
		return HealthHealthy
	case g.consecutive == 1:
		return HealthDegraded
	default:
		return HealthSuspended
	}
}

// OnFailure records a connection failure and waits out the backoff.
// The wait honors context cancellation; a canceled context is the only way
// this returns an error. The alert hook fires exactly once per outage
// episode, when the streak reaches the threshold.
func (g *Guard) OnFailure(ctx context.Context, cause error) error {
	g.consecutive++
	g.currentBackoff = g.nextBackoff()
	if cause != nil {
		g.lastError = cause.Error()
	}
	if g.consecutive == 2 {
		g.suspendedSince = g.clk.Now()
	}

	g.logger.Warn().
		Int("consecutive_failures", g.consecutive).
		Dur("backoff", g.currentBackoff).
		Str("health", g.health().String()).
		Err(cause).
		Msg("connection failure, backing off")

	if g.consecutive == g.alertThreshold {
		g.logger.Error().
			Int("consecutive_failures", g.consecutive).
			Msg("connection outage threshold reached")
		if g.onAlert != nil {
			g.onAlert(g.State(), cause)
		}
	}

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timeAfter(g.currentBackoff):
		return nil
	}
}

// OnSuccess records a successful round-trip and resets the guard to
// Healthy. Returns true when the success ends an outage.
func (g *Guard) OnSuccess() bool {
	recovered := g.consecutive > 0
	if recovered {
		g.logger.Info().
			Int("failures_survived", g.consecutive).
			Msg("connection recovered")
	}
	g.consecutive = 0
	g.currentBackoff = 0
	g.suspendedSince = time.Time{}
	g.lastError = ""
	return recovered
}

// Execute runs op with transparent connection retry: connection-class
// failures back off and retry without bound, while any other completion
// (success or logic failure) proves the transport and is returned to the
// caller unchanged. The loop exits early only when ctx is done.
//
// After an outage ends, the recovery hook runs before the result is
// returned; its failure is logged, not propagated, since the recovering
// call itself already completed.
func (g *Guard) Execute(ctx context.Context, op func(ctx context.Context) error) error {
	for {
		if err := ctxutil.Canceled(ctx); err != nil {
			return err
		}

		err := op(ctx)
		if err != nil && g.classifier.IsConnectionFailure(err) {
			if werr := g.OnFailure(ctx, err); werr != nil {
				return werr
			}
			continue
		}

		if recovered := g.OnSuccess(); recovered && g.onRecover != nil {
			if rerr := g.onRecover(ctx); rerr != nil {
				g.logger.Warn().Err(rerr).Msg("recovery hook failed")
			}
		}
		return err
	}
}

// nextBackoff computes min(base << consecutive, max).
func (g *Guard) nextBackoff() time.Duration {
	shift := g.consecutive
	if shift > maxBackoffShift {
		return g.backoffMax
	}
	d := g.backoffBase << uint(shift)
	if d <= 0 || d > g.backoffMax {
		return g.backoffMax
	}
	return d
}
