package log

import (
	"bytes"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParseLevel(t *testing.T) {
	assert.Equal(t, slog.LevelDebug, ParseLevel("debug"))
	assert.Equal(t, slog.LevelWarn, ParseLevel("WARN"))
	assert.Equal(t, slog.LevelError, ParseLevel(" error "))
	assert.Equal(t, slog.LevelInfo, ParseLevel("verbose"))
}

func TestInitWriterFormats(t *testing.T) {
	t.Setenv("REDNOSE_ENV", "production")
	var buf bytes.Buffer
	InitWriter(&buf, "info")
	Info("frame", "n", 1)
	Debug("hidden")
	assert.Contains(t, buf.String(), `"msg":"frame"`)
	assert.NotContains(t, buf.String(), "hidden")

	t.Setenv("REDNOSE_ENV", "")
	buf.Reset()
	InitWriter(&buf, "debug")
	With("track", "abc").Debug("fused")
	assert.Contains(t, buf.String(), "msg=fused")
	assert.Contains(t, buf.String(), "track=abc")
}
