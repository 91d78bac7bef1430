package logging_test

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/vigil-obs/vigil/internal/runtime/logging"
	"github.com/vigil-obs/vigil/internal/runtime/logging/level"
)

func TestLevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	l, err := logging.New(&buf, logging.Options{Level: logging.LevelWarn, Format: logging.FormatLogfmt})
	require.NoError(t, err)

	level.Debug(l).Log("msg", "debug message")
	level.Info(l).Log("msg", "info message")
	level.Warn(l).Log("msg", "warn message")
	level.Error(l).Log("msg", "error message")

	out := buf.String()
	require.NotContains(t, out, "debug message")
	require.NotContains(t, out, "info message")
	require.Contains(t, out, "warn message")
	require.Contains(t, out, "error message")
}

func TestUpdateLevelAtRuntime(t *testing.T) {
	var buf bytes.Buffer
	l, err := logging.New(&buf, logging.Options{Level: logging.LevelInfo, Format: logging.FormatLogfmt})
	require.NoError(t, err)

	level.Debug(l).Log("msg", "first")
	require.NoError(t, l.Update(logging.Options{Level: logging.LevelDebug, Format: logging.FormatLogfmt}))
	level.Debug(l).Log("msg", "second")

	out := buf.String()
	require.NotContains(t, out, "first")
	require.Contains(t, out, "second")
}

func TestJSONFormat(t *testing.T) {
	var buf bytes.Buffer
	l, err := logging.New(&buf, logging.Options{Level: logging.LevelInfo, Format: logging.FormatJSON})
	require.NoError(t, err)

	level.Info(l).Log("msg", "hello", "component", "test")

	var fields map[string]interface{}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &fields))
	require.Equal(t, "hello", fields["msg"])
	require.Equal(t, "test", fields["component"])
	require.Equal(t, "info", fields["level"])
}

func TestUnmarshalOptions(t *testing.T) {
	var lvl logging.Level
	require.NoError(t, lvl.UnmarshalText([]byte("")))
	require.Equal(t, logging.LevelDefault, lvl)
	require.Error(t, lvl.UnmarshalText([]byte("verbose")))

	var format logging.Format
	require.NoError(t, format.UnmarshalText([]byte("json")))
	require.Equal(t, logging.FormatJSON, format)
	require.Error(t, format.UnmarshalText([]byte(strings.ToUpper("logfmt"))))
}
