package session

import (
	"context"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPool_RunStopsCleanly(t *testing.T) {
	// Both sessions are already logged in; the stop predicate ends the run
	// loops on their first boundary check.
	sessA := &recordingSession{present: map[string]bool{"#sidebarBoxVillagelist": true}}
	sessB := &recordingSession{present: map[string]bool{"#sidebarBoxVillagelist": true}}
	wa, _ := newTestWorker(t, sessA)
	wb, _ := newTestWorker(t, sessB)

	pool := NewPool(zerolog.Nop(), wa, wb)
	err := pool.Run(context.Background(), func() bool { return true })
	require.NoError(t, err)

	assert.True(t, sessA.closed, "worker exit must close its browser session")
	assert.True(t, sessB.closed)
}

func TestPool_CancelledContextIsCleanExit(t *testing.T) {
	sess := &recordingSession{present: map[string]bool{"#sidebarBoxVillagelist": true}}
	w, _ := newTestWorker(t, sess)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	pool := NewPool(zerolog.Nop(), w)
	err := pool.Run(ctx, nil)
	require.NoError(t, err, "signal-driven shutdown is not a failure")
}
