package main

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

// TestSimulatePrintsSummary runs the simulate subcommand end to end.
func TestSimulatePrintsSummary(t *testing.T) {
	t.Parallel()

	cmd := newRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs([]string{
		"simulate", "--series", "1", "--total", "10", "--step", "5",
		"--interval", "1s", "--log-level", "error",
	})
	require.NoError(t, cmd.Execute())
	require.Equal(t, "series-0: 3 observations, 100% complete at 1970-01-01T00:00:03Z\n", out.String())
}

// TestSimulateRejectsBadFlags surfaces validation errors.
func TestSimulateRejectsBadFlags(t *testing.T) {
	t.Parallel()

	cmd := newRootCmd()
	cmd.SetOut(&bytes.Buffer{})
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs([]string{"simulate", "--step", "0", "--log-level", "error"})
	require.ErrorContains(t, cmd.Execute(), "step must be > 0")
}

// TestServeFailsOnInvalidConfig stops before building the app.
func TestServeFailsOnInvalidConfig(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("server:\n  port: -1\n"), 0o600))

	cmd := newRootCmd()
	cmd.SetOut(&bytes.Buffer{})
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs([]string{"serve", "--config", path})
	require.ErrorContains(t, cmd.Execute(), "server.port must be > 0")
}
