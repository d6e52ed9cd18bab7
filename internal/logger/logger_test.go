package logger

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
)

func captureOutput(t *testing.T, level string, format OutputFormat, fn func()) string {
	t.Helper()
	buf := &bytes.Buffer{}
	SetTestOutput(buf)
	defer UnsetTestOutput()

	InitLogger(level, format)
	defer InitLogger("info", FormatText)

	fn()
	return buf.String()
}

func TestLogger(t *testing.T) {
	tests := []struct {
		name     string
		level    string
		logFn    func()
		contains []string
		excludes []string
	}{
		{
			name:     "info log",
			level:    "info",
			logFn:    func() { Info("test info message") },
			contains: []string{"test info message"},
		},
		{
			name:     "debug log with debug level",
			level:    "debug",
			logFn:    func() { Debug("test debug message") },
			contains: []string{"test debug message", "level=DEBUG"},
		},
		{
			name:     "debug log with info level",
			level:    "info",
			logFn:    func() { Debug("test debug message") },
			excludes: []string{"test debug message"},
		},
		{
			name:     "warn log with fields",
			level:    "warn",
			logFn:    func() { Warn("test warning", Fields{"package": "SS.Plugin.Form", "attempt": 2}) },
			contains: []string{"test warning", "level=WARN", "package=SS.Plugin.Form", "attempt=2"},
		},
		{
			name:     "success log",
			level:    "info",
			logFn:    func() { Success("install completed") },
			contains: []string{"install completed", "status=success"},
		},
		{
			name:     "formatted error",
			level:    "error",
			logFn:    func() { Errorf("install of %s failed", "x") },
			contains: []string{"install of x failed", "level=ERROR"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out := captureOutput(t, tt.level, FormatText, tt.logFn)
			for _, want := range tt.contains {
				assert.Contains(t, out, want)
			}
			for _, notWant := range tt.excludes {
				assert.NotContains(t, out, notWant)
			}
		})
	}
}

func TestJSONFormat(t *testing.T) {
	out := captureOutput(t, "info", FormatJSON, func() {
		Info("test json message", Fields{"package": "Core.System", "number": 42, "bool": true})
	})

	assert.Contains(t, out, `"msg":"test json message"`)
	assert.Contains(t, out, `"level":"INFO"`)
	assert.Contains(t, out, `"package":"Core.System"`)
	assert.Contains(t, out, `"number":42`)
	assert.Contains(t, out, `"bool":true`)
}

func TestSetOutputFormat(t *testing.T) {
	buf := &bytes.Buffer{}
	SetTestOutput(buf)
	defer UnsetTestOutput()
	defer InitLogger("info", FormatText)

	InitLogger("debug", FormatText)
	Debug("text message")
	assert.Contains(t, buf.String(), "level=DEBUG")

	buf.Reset()
	SetOutputFormat(FormatJSON)
	Debug("json message")
	assert.Contains(t, buf.String(), `"msg":"json message"`)
}

func TestParseLevel(t *testing.T) {
	for _, name := range []string{"debug", "info", "warn", "warning", "error", ""} {
		_, ok := ParseLevel(name)
		assert.True(t, ok, name)
	}
	_, ok := ParseLevel("verbose")
	assert.False(t, ok)
}

func TestMergeFields(t *testing.T) {
	attrs := mergeFields(Fields{"b": 1, "a": "x"}, Fields{"b": 2})
	assert.Equal(t, []interface{}{"a", "x", "b", 2}, attrs)
	assert.Empty(t, mergeFields())
}
