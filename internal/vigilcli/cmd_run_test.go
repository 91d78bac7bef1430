package vigilcli

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, contents string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "vigil.yaml")
	require.NoError(t, os.WriteFile(path, []byte(contents), 0o644))
	return path
}

func TestRun_MissingConfigFile(t *testing.T) {
	r := &vigilRun{configFile: filepath.Join(t.TempDir(), "does-not-exist.yaml")}
	require.Error(t, r.Run(context.Background()))
}

func TestRun_InvalidConfig(t *testing.T) {
	path := writeConfig(t, `
scrape:
  interval: 10s
  timeout: 30s
`)
	r := &vigilRun{configFile: path}
	err := r.Run(context.Background())
	require.Error(t, err)
	require.Contains(t, err.Error(), "invalid configuration")
}

func TestRun_FlagOverridesAreValidated(t *testing.T) {
	path := writeConfig(t, `
discovery:
  static:
    - targets: ["localhost:9100"]
`)
	r := &vigilRun{configFile: path, listenAddr: "not-a-hostport"}
	err := r.Run(context.Background())
	require.Error(t, err)
	require.Contains(t, err.Error(), "listen_address")
}

func TestRun_StopsOnContextCancel(t *testing.T) {
	path := writeConfig(t, `
server:
  listen_address: "127.0.0.1:0"
discovery:
  static:
    - targets: ["localhost:9100"]
`)
	r := &vigilRun{configFile: path}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- r.Run(ctx) }()

	time.Sleep(500 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		require.ErrorIs(t, err, context.Canceled)
	case <-time.After(10 * time.Second):
		t.Fatal("run did not stop after context cancellation")
	}
}

func TestValidateCommand(t *testing.T) {
	good := writeConfig(t, `
scrape:
  interval: 30s
  timeout: 5s
`)
	cmd := validateCommand()
	cmd.SetArgs([]string{good})
	require.NoError(t, cmd.Execute())

	bad := writeConfig(t, `
scrape:
  failure_threshold: 0
`)
	cmd = validateCommand()
	cmd.SetArgs([]string{bad})
	require.Error(t, cmd.Execute())
}
