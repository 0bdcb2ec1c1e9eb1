package logger

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestSetLoggingLevelMapsAllSeverities(t *testing.T) {
	cases := map[string]slog.Level{
		"TRACE":   LevelTrace,
		"DEBUG":   LevelDebug,
		"INFO":    LevelInfo,
		"WARNING": LevelWarn,
		"ERROR":   LevelError,
		"OFF":     LevelOff,
		"bogus":   LevelInfo,
		"":        LevelInfo,
	}
	for severity, want := range cases {
		v := new(slog.LevelVar)
		setLoggingLevel(severity, v)
		require.Equal(t, want, v.Level(), "severity=%s", severity)
	}
}

func TestTextHandlerUsesSeverityWord(t *testing.T) {
	var buf bytes.Buffer
	f := &loggerFactory{out: &buf, level: new(slog.LevelVar), format: "text"}
	f.level.Set(LevelTrace)

	l := slog.New(f.createHandler())
	l.Log(context.Background(), LevelTrace, "hello")

	require.True(t, strings.Contains(buf.String(), "severity=TRACE"))
	require.True(t, strings.Contains(buf.String(), `message="hello"` ) || strings.Contains(buf.String(), "msg=hello"))
}

func TestJSONHandlerEmitsSeverityField(t *testing.T) {
	var buf bytes.Buffer
	f := &loggerFactory{out: &buf, level: new(slog.LevelVar), format: "json"}
	f.level.Set(LevelInfo)

	l := slog.New(f.createHandler())
	l.Log(context.Background(), LevelInfo, "hello")

	var decoded map[string]interface{}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &decoded))
	require.Equal(t, "INFO", decoded["severity"])
}

func TestOffLevelSuppressesEverything(t *testing.T) {
	var buf bytes.Buffer
	f := &loggerFactory{out: &buf, level: new(slog.LevelVar), format: "text"}
	f.level.Set(LevelOff)

	l := slog.New(f.createHandler())
	l.Log(context.Background(), LevelError, "should not appear")

	require.Empty(t, buf.String())
}

func TestInitDefaultsEmptyFormatToJSON(t *testing.T) {
	require.NoError(t, Init(Config{Format: "", Severity: "info"}))
	require.Equal(t, "json", defaultLoggerFactory.format)
}
