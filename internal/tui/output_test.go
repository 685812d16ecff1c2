package tui

import (
	"encoding/json"
	stderrors "errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewOutput_SelectsFormat(t *testing.T) {
	var sb strings.Builder

	_, isJSON := NewOutput(&sb, "json").(*JSONOutput)
	assert.True(t, isJSON)

	_, isTTY := NewOutput(&sb, "text").(*TTYOutput)
	assert.True(t, isTTY)
}

func TestTTYOutput_Messages(t *testing.T) {
	var sb strings.Builder
	out := NewTTYOutput(&sb)

	out.Success("raid dispatched")
	out.Warning("healing on cooldown")
	out.Error(stderrors.New("boom"))

	got := sb.String()
	assert.Contains(t, got, "raid dispatched")
	assert.Contains(t, got, "healing on cooldown")
	assert.Contains(t, got, "boom")
}

func TestJSONOutput_SuppressesProse(t *testing.T) {
	var sb strings.Builder
	out := NewJSONOutput(&sb)

	out.Success("should not appear")
	out.Info("nor this")
	assert.Empty(t, sb.String())

	require.NoError(t, out.JSON(map[string]int{"queued": 3}))

	var decoded map[string]int
	require.NoError(t, json.Unmarshal([]byte(sb.String()), &decoded))
	assert.Equal(t, 3, decoded["queued"])
}

func TestJSONOutput_ErrorIsMachineReadable(t *testing.T) {
	var sb strings.Builder
	NewJSONOutput(&sb).Error(stderrors.New(`bad "input"`))

	var decoded map[string]string
	require.NoError(t, json.Unmarshal([]byte(sb.String()), &decoded))
	assert.Equal(t, `bad "input"`, decoded["error"])
}
