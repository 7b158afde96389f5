package cli

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vk/modgate/internal/config"
)

func noEnvFile(t *testing.T) string {
	t.Helper()
	return filepath.Join(t.TempDir(), "absent.env")
}

func TestParse_NoCommandPrintsHelp(t *testing.T) {
	// --- Arrange ---
	out := &bytes.Buffer{}

	// --- Act ---
	inv, shouldExit, err := Parse(nil, out)

	// --- Assert ---
	require.NoError(t, err)
	assert.True(t, shouldExit)
	assert.Nil(t, inv)
	assert.Contains(t, out.String(), "Usage:")
	assert.Contains(t, out.String(), "serve")
}

func TestParse_Help(t *testing.T) {
	out := &bytes.Buffer{}
	_, shouldExit, err := Parse([]string{"serve", "--help"}, out)
	require.NoError(t, err)
	assert.True(t, shouldExit)
	assert.Contains(t, out.String(), "--port-base")
}

func TestParse_ServeDefaults(t *testing.T) {
	// --- Act ---
	inv, shouldExit, err := Parse([]string{"serve", "--env-file", noEnvFile(t)}, &bytes.Buffer{})

	// --- Assert ---
	require.NoError(t, err)
	assert.False(t, shouldExit)
	require.NotNil(t, inv)
	assert.Equal(t, ModeServe, inv.Mode)
	assert.Equal(t, config.Default(), *inv.Config)
}

func TestParse_FlagsOverrideFileAndEnv(t *testing.T) {
	// --- Arrange ---
	dir := t.TempDir()
	cfgPath := filepath.Join(dir, "modgate.hcl")
	require.NoError(t, os.WriteFile(cfgPath, []byte("port_base = 9000\nworkers = 8\nlog_level = \"warn\"\n"), 0o644))
	t.Setenv("MODGATE_WORKERS", "6")

	// --- Act ---
	inv, _, err := Parse([]string{
		"serve", "-c", cfgPath, "--env-file", noEnvFile(t),
		"--log-level", "DEBUG", "--strict-fallback",
	}, &bytes.Buffer{})

	// --- Assert ---
	require.NoError(t, err)
	cfg := inv.Config
	assert.Equal(t, 9000, cfg.PortBase, "file beats default")
	assert.Equal(t, 6, cfg.Workers, "environment beats file")
	assert.Equal(t, "debug", cfg.LogLevel, "flag beats file")
	assert.True(t, cfg.StrictFallback)
}

func TestParse_InvalidValues(t *testing.T) {
	t.Chdir(t.TempDir())

	testCases := []struct {
		name string
		args []string
		want string
	}{
		{
			name: "log format",
			args: []string{"serve", "--log-format", "xml"},
			want: "invalid log-format: must be 'text' or 'json'",
		},
		{
			name: "log level",
			args: []string{"serve", "--log-level", "verbose"},
			want: "invalid log-level: must be 'debug', 'info', 'warn', or 'error'",
		},
		{
			name: "unknown flag",
			args: []string{"serve", "--this-is-not-a-valid-flag"},
			want: "unknown flag: --this-is-not-a-valid-flag",
		},
		{
			name: "unknown command",
			args: []string{"launch"},
			want: `unknown command "launch"`,
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			// --- Act ---
			_, _, err := Parse(tc.args, &bytes.Buffer{})

			// --- Assert ---
			require.Error(t, err)
			var exitErr *ExitError
			require.ErrorAs(t, err, &exitErr)
			assert.Equal(t, 2, exitErr.Code)
			assert.Contains(t, exitErr.Message, tc.want)
		})
	}
}

func TestParse_Worker(t *testing.T) {
	t.Run("requires the master's configuration", func(t *testing.T) {
		_, _, err := Parse([]string{"worker"}, &bytes.Buffer{})
		require.ErrorContains(t, err, "started by 'modgate serve'")
	})

	t.Run("decodes the master's configuration", func(t *testing.T) {
		// --- Arrange ---
		cfg := config.Default()
		cfg.Workers = 3
		encoded, err := cfg.Encode()
		require.NoError(t, err)
		t.Setenv(config.WorkerConfigEnv, encoded)

		// --- Act ---
		inv, _, err := Parse([]string{"worker"}, &bytes.Buffer{})

		// --- Assert ---
		require.NoError(t, err)
		assert.Equal(t, ModeWorker, inv.Mode)
		assert.Equal(t, 3, inv.Config.Workers)
	})
}

func TestParse_Watch(t *testing.T) {
	// --- Act ---
	inv, _, err := Parse([]string{"watch", "http://localhost:8080", "-m", "demo", "-k"}, &bytes.Buffer{})

	// --- Assert ---
	require.NoError(t, err)
	assert.Equal(t, ModeWatch, inv.Mode)
	assert.Equal(t, "http://localhost:8080", inv.Watch.URL)
	assert.Equal(t, "demo", inv.Watch.Module)
	assert.True(t, inv.Watch.InsecureSkipVerify)
}

func TestParse_WatchNeedsURL(t *testing.T) {
	_, _, err := Parse([]string{"watch"}, &bytes.Buffer{})
	require.ErrorContains(t, err, "accepts 1 arg(s), received 0")
}
