package cli

import (
	"bytes"
	"io"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mrz1836/legion/internal/logging"
)

func TestInitLoggerWithWriterLevels(t *testing.T) {
	tests := []struct {
		name      string
		verbose   bool
		quiet     bool
		wantDebug bool
		wantInfo  bool
	}{
		{name: "default", wantInfo: true},
		{name: "verbose", verbose: true, wantDebug: true, wantInfo: true},
		{name: "quiet", quiet: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			logger := InitLoggerWithWriter(tt.verbose, tt.quiet, &buf)

			logger.Debug().Msg("debug line")
			logger.Info().Msg("info line")
			logger.Warn().Msg("warn line")

			out := buf.String()
			assert.Equal(t, tt.wantDebug, strings.Contains(out, "debug line"))
			assert.Equal(t, tt.wantInfo, strings.Contains(out, "info line"))
			assert.Contains(t, out, "warn line")
		})
	}
}

func TestInitLoggerWithWriterFlagsSensitiveMessages(t *testing.T) {
	var buf bytes.Buffer
	logger := InitLoggerWithWriter(false, false, &buf)

	logger.Info().Msg("configured key sk-ant-api03-abcdef123456")

	assert.Contains(t, buf.String(), `"contains_filtered_data":true`)
}

func TestFileWriterRedactsCredentials(t *testing.T) {
	var buf bytes.Buffer
	fwc := &filteringWriteCloser{
		filter: logging.NewFilteringWriter(&buf),
		closer: io.NopCloser(nil),
	}
	logger := InitLoggerWithWriter(false, false, fwc)

	logger.Info().Msg("configured key sk-ant-api03-abcdef123456")

	out := buf.String()
	assert.NotContains(t, out, "sk-ant-api03")
	assert.Contains(t, out, "[REDACTED]")
}

func TestLogFilePath(t *testing.T) {
	t.Setenv("HOME", t.TempDir())

	path, err := LogFilePath()
	require.NoError(t, err)
	assert.Contains(t, path, ".legion")
	assert.True(t, strings.HasSuffix(path, "legion.log"))
}
