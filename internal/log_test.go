package internal

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParseLogLevel(t *testing.T) {
	assert.Equal(t, LogLevelError, ParseLogLevel("ERROR"))
	assert.Equal(t, LogLevelWarn, ParseLogLevel("warn"))
	assert.Equal(t, LogLevelTrace, ParseLogLevel(" TRACE "))
	assert.Equal(t, LogLevelInfo, ParseLogLevel(""))
	assert.Equal(t, LogLevelInfo, ParseLogLevel("verbose"))
}

func TestLoggerGatesByLevel(t *testing.T) {
	var buf bytes.Buffer
	l := NewLoggerWithWriter(LogLevelWarn, &buf)

	l.Info("kept %d subjects", 10)
	l.Warn("rejected %s", "Pitt_0050003")
	l.Error("stage %s failed", "regress")

	out := buf.String()
	assert.NotContains(t, out, "kept 10 subjects")
	assert.Contains(t, out, "rejected Pitt_0050003")
	assert.Contains(t, out, "WARN")
	assert.Contains(t, out, "stage regress failed")
}

func TestLoggerWithFields(t *testing.T) {
	var buf bytes.Buffer
	l := NewLoggerWithWriter(LogLevelTrace, &buf).With("stage", "scores")
	l.Trace("block %s", "DMN")
	assert.Contains(t, buf.String(), "[trace] block DMN")
	assert.Contains(t, buf.String(), "scores")
}
