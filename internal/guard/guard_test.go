package guard

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	legionerrors "github.com/mrz1836/legion/internal/errors"
)

// Static test errors for err113 compliance.
var (
	errConnTest  = errors.New("dial tcp: connection refused")
	errLogicTest = errors.New("wrong page state")
)

// stubTimer replaces the timer seam with an immediately-firing channel and
// records the requested wait durations.
func stubTimer(t *testing.T) *[]time.Duration {
	t.Helper()
	var waits []time.Duration
	orig := timeAfter
	timeAfter = func(d time.Duration) <-chan time.Time {
		waits = append(waits, d)
		ch := make(chan time.Time, 1)
		ch <- time.Time{}
		return ch
	}
	t.Cleanup(func() { timeAfter = orig })
	return &waits
}

func newTestGuard(opts Options) *Guard {
	return New(opts, zerolog.Nop())
}

func TestGuard_BackoffSequence(t *testing.T) {
	// Base 1s must produce waits 2,4,8,16,32 then cap at 60.
	ctx := context.Background()
	waits := stubTimer(t)
	g := newTestGuard(Options{
		BackoffBase: time.Second,
		BackoffMax:  60 * time.Second,
	})

	for i := 0; i < 7; i++ {
		require.NoError(t, g.OnFailure(ctx, errConnTest))
	}

	want := []time.Duration{
		2 * time.Second,
		4 * time.Second,
		8 * time.Second,
		16 * time.Second,
		32 * time.Second,
		60 * time.Second,
		60 * time.Second,
	}
	assert.Equal(t, want, *waits)
}

func TestGuard_BackoffMonotonicUntilCap(t *testing.T) {
	ctx := context.Background()
	waits := stubTimer(t)
	g := newTestGuard(Options{
		BackoffBase: time.Second,
		BackoffMax:  60 * time.Second,
	})

	for i := 0; i < 10; i++ {
		require.NoError(t, g.OnFailure(ctx, errConnTest))
	}

	for i := 1; i < len(*waits); i++ {
		assert.GreaterOrEqual(t, (*waits)[i], (*waits)[i-1],
			"backoff must be monotonic under consecutive failures")
	}
	assert.Equal(t, 60*time.Second, (*waits)[len(*waits)-1])
}

func TestGuard_HealthTransitions(t *testing.T) {
	ctx := context.Background()
	stubTimer(t)
	g := newTestGuard(Options{})

	assert.Equal(t, HealthHealthy, g.State().Health)

	require.NoError(t, g.OnFailure(ctx, errConnTest))
	assert.Equal(t, HealthDegraded, g.State().Health, "first failure degrades")

	require.NoError(t, g.OnFailure(ctx, errConnTest))
	assert.Equal(t, HealthSuspended, g.State().Health, "second failure suspends")
	assert.False(t, g.State().SuspendedSince.IsZero())

	recovered := g.OnSuccess()
	assert.True(t, recovered)
	st := g.State()
	assert.Equal(t, HealthHealthy, st.Health, "any success restores health")
	assert.Equal(t, 0, st.ConsecutiveFailures)
	assert.Zero(t, st.CurrentBackoff)
	assert.True(t, st.SuspendedSince.IsZero())
	assert.Empty(t, st.LastError)
}

func TestGuard_ResetAfterSuccessRestartsSequence(t *testing.T) {
	ctx := context.Background()
	waits := stubTimer(t)
	g := newTestGuard(Options{
		BackoffBase: time.Second,
		BackoffMax:  60 * time.Second,
	})

	require.NoError(t, g.OnFailure(ctx, errConnTest))
	require.NoError(t, g.OnFailure(ctx, errConnTest))
	g.OnSuccess()
	require.NoError(t, g.OnFailure(ctx, errConnTest))

	assert.Equal(t, []time.Duration{2 * time.Second, 4 * time.Second, 2 * time.Second}, *waits,
		"the backoff sequence restarts after a success")
}

func TestGuard_AlertFiresOnceAtThreshold(t *testing.T) {
	ctx := context.Background()
	stubTimer(t)

	var alerts []State
	g := newTestGuard(Options{
		BackoffBase:    time.Second,
		BackoffMax:     60 * time.Second,
		AlertThreshold: 3,
		OnAlert: func(state State, _ error) {
			alerts = append(alerts, state)
		},
	})

	for i := 0; i < 5; i++ {
		require.NoError(t, g.OnFailure(ctx, errConnTest))
	}

	require.Len(t, alerts, 1, "alert fires exactly once per outage episode")
	assert.Equal(t, 3, alerts[0].ConsecutiveFailures)
	assert.Equal(t, HealthSuspended, alerts[0].Health)

	// A new outage episode fires the alert again
	g.OnSuccess()
	for i := 0; i < 3; i++ {
		require.NoError(t, g.OnFailure(ctx, errConnTest))
	}
	assert.Len(t, alerts, 2)
}

func TestGuard_ExecuteRetriesConnectionFailures(t *testing.T) {
	ctx := context.Background()
	stubTimer(t)
	g := newTestGuard(Options{BackoffBase: time.Second, BackoffMax: time.Minute})

	calls := 0
	err := g.Execute(ctx, func(context.Context) error {
		calls++
		if calls < 4 {
			return errConnTest
		}
		return nil
	})

	require.NoError(t, err)
	assert.Equal(t, 4, calls, "three outages then success")
	assert.Equal(t, HealthHealthy, g.State().Health)
}

func TestGuard_ExecuteReturnsLogicErrorsImmediately(t *testing.T) {
	ctx := context.Background()
	stubTimer(t)
	g := newTestGuard(Options{})

	calls := 0
	err := g.Execute(ctx, func(context.Context) error {
		calls++
		return errLogicTest
	})

	assert.ErrorIs(t, err, errLogicTest)
	assert.Equal(t, 1, calls, "logic failures are the caller's problem")
}

func TestGuard_ExecuteLogicCompletionResetsGuard(t *testing.T) {
	// A logic failure still proves the transport worked.
	ctx := context.Background()
	stubTimer(t)
	g := newTestGuard(Options{})

	calls := 0
	err := g.Execute(ctx, func(context.Context) error {
		calls++
		if calls == 1 {
			return errConnTest
		}
		return legionerrors.Wrap(legionerrors.ErrElementNotFound, "probe")
	})

	assert.ErrorIs(t, err, legionerrors.ErrElementNotFound)
	assert.Equal(t, HealthHealthy, g.State().Health,
		"a logic completion counts as a successful round-trip")
}

func TestGuard_ExecuteFiresRecoverHookAfterOutage(t *testing.T) {
	ctx := context.Background()
	stubTimer(t)

	recoveries := 0
	g := newTestGuard(Options{
		OnRecover: func(context.Context) error {
			recoveries++
			return nil
		},
	})

	calls := 0
	err := g.Execute(ctx, func(context.Context) error {
		calls++
		if calls == 1 {
			return errConnTest
		}
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 1, recoveries, "recovery hook fires after an outage ends")

	// No outage, no recovery call
	require.NoError(t, g.Execute(ctx, func(context.Context) error { return nil }))
	assert.Equal(t, 1, recoveries)
}

func TestGuard_ExecuteRecoverHookFailureIsNotPropagated(t *testing.T) {
	ctx := context.Background()
	stubTimer(t)

	g := newTestGuard(Options{
		OnRecover: func(context.Context) error {
			return errLogicTest
		},
	})

	calls := 0
	err := g.Execute(ctx, func(context.Context) error {
		calls++
		if calls == 1 {
			return errConnTest
		}
		return nil
	})
	assert.NoError(t, err, "the recovering call already completed")
}

func TestGuard_ExecuteHonorsCancellationDuringBackoff(t *testing.T) {
	// Timer never fires; cancellation must end the wait.
	orig := timeAfter
	timeAfter = func(time.Duration) <-chan time.Time {
		return make(chan time.Time)
	}
	t.Cleanup(func() { timeAfter = orig })

	ctx, cancel := context.WithCancel(context.Background())
	g := newTestGuard(Options{})

	err := g.Execute(ctx, func(context.Context) error {
		cancel()
		return errConnTest
	})

	assert.ErrorIs(t, err, context.Canceled)
}

func TestGuard_ExecuteChecksContextBeforeCalling(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	g := newTestGuard(Options{})

	calls := 0
	err := g.Execute(ctx, func(context.Context) error {
		calls++
		return nil
	})

	assert.ErrorIs(t, err, context.Canceled)
	assert.Zero(t, calls, "op must not run on a dead context")
}

func TestGuard_StateRecordsLastError(t *testing.T) {
	ctx := context.Background()
	stubTimer(t)
	g := newTestGuard(Options{})

	require.NoError(t, g.OnFailure(ctx, errConnTest))
	assert.Equal(t, errConnTest.Error(), g.State().LastError)
}

func TestGuard_DefaultsApplied(t *testing.T) {
	g := newTestGuard(Options{})

	assert.Equal(t, time.Second, g.backoffBase)
	assert.Equal(t, 60*time.Second, g.backoffMax)
	assert.Equal(t, 5, g.alertThreshold)
	assert.NotNil(t, g.clk)
}
