//go:build !integration

package cli

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"karte/internal/application/dto"
	"karte/internal/infrastructure/config"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/require"
)

const testAppKey = "0123456789abcdef0123456789abcdef"

func isolateEnvironment(t *testing.T) {
	t.Helper()
	for _, name := range []string{
		"KARTE_APP_KEY",
		"KARTE_PORT",
		"KARTE_BASE_URL",
		"KARTE_DB_ENGINE",
		"KARTE_DB_DSN",
		"KARTE_CONNECTIVITY_MODE",
		"KARTE_DRY_RUN",
		"KARTE_VERBOSE",
	} {
		t.Setenv(name, "")
	}
}

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := NewRootCommand()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func TestVersionCommandPrintsVersions(t *testing.T) {
	isolateEnvironment(t)

	out, err := execute(t, "version")
	require.NoError(t, err)
	require.Contains(t, out, "karte "+config.SDKVersion)
	require.Contains(t, out, "variables ")
}

func TestLoadConfigLayersFlagsOverEnvironmentAndFile(t *testing.T) {
	isolateEnvironment(t)
	configPath := filepath.Join(t.TempDir(), "karte.yaml")
	require.NoError(t, os.WriteFile(configPath, []byte(strings.Join([]string{
		"app_key: " + testAppKey,
		"port: 9000",
		"db_dsn: /tmp/from-file.db",
		"connectivity_mode: static",
		"dispatch_chunk_size: 4",
	}, "\n")), 0o600))
	t.Setenv("KARTE_PORT", "7000")

	opts := &rootOptions{v: viper.New()}
	cmd := newRootCommand(opts)
	require.NoError(t, cmd.PersistentFlags().Parse([]string{"--config", configPath, "--port", "9100"}))
	require.NoError(t, opts.initConfig(&bytes.Buffer{}))

	cfg, err := opts.loadConfig()
	require.NoError(t, err)
	require.Equal(t, "9100", cfg.Port)
	require.Equal(t, testAppKey, cfg.AppKey.String())
	require.Equal(t, "/tmp/from-file.db", cfg.DatabaseDSN)
	require.Equal(t, config.ConnectivityModeStatic, cfg.ConnectivityMode)
	require.Equal(t, 4, cfg.DispatchChunkSize)
}

func TestLoadConfigPrefersEnvironmentOverFile(t *testing.T) {
	isolateEnvironment(t)
	configPath := filepath.Join(t.TempDir(), "karte.yaml")
	require.NoError(t, os.WriteFile(configPath, []byte("app_key: "+testAppKey+"\nport: 9000\n"), 0o600))
	t.Setenv("KARTE_PORT", "7000")

	opts := &rootOptions{v: viper.New()}
	cmd := newRootCommand(opts)
	require.NoError(t, cmd.PersistentFlags().Parse([]string{"--config", configPath}))
	require.NoError(t, opts.initConfig(&bytes.Buffer{}))

	cfg, err := opts.loadConfig()
	require.NoError(t, err)
	require.Equal(t, "7000", cfg.Port)
}

func TestMissingConfigFileFails(t *testing.T) {
	isolateEnvironment(t)

	_, err := execute(t, "queue", "--config", filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)
	require.Contains(t, err.Error(), "read config")
}

func TestQueueCommandRequiresAppKey(t *testing.T) {
	isolateEnvironment(t)

	_, err := execute(t, "queue", "--db-dsn", filepath.Join(t.TempDir(), "karte.db"))
	require.Error(t, err)
	require.Contains(t, err.Error(), "CONFIG_APP_KEY_REQUIRED")
}

func TestQueueCommandPrintsEmptyOverview(t *testing.T) {
	isolateEnvironment(t)

	out, err := execute(t,
		"queue",
		"--app-key", testAppKey,
		"--db-dsn", filepath.Join(t.TempDir(), "karte.db"),
		"--connectivity", config.ConnectivityModeStatic,
	)
	require.NoError(t, err)

	var overview dto.QueueOverview
	require.NoError(t, json.Unmarshal([]byte(out), &overview))
	require.Zero(t, overview.QueuedCount)
	require.Zero(t, overview.FailedCount)
	require.True(t, overview.Online)
}

func TestTrackCommandInDryRunIsRejected(t *testing.T) {
	isolateEnvironment(t)

	out, err := execute(t,
		"track", "purchase",
		"--values", `{"price": 100}`,
		"--dry-run",
		"--app-key", testAppKey,
		"--db-dsn", filepath.Join(t.TempDir(), "karte.db"),
		"--connectivity", config.ConnectivityModeStatic,
	)
	require.NoError(t, err)

	var result trackResult
	require.NoError(t, json.Unmarshal([]byte(out), &result))
	require.False(t, result.Accepted)
	require.False(t, result.Delivered)
	require.Equal(t, dto.TrackRejectedDryRun, result.Rejected)
	require.Equal(t, "purchase", result.EventName)
}

func TestTrackCommandRejectsNonObjectValues(t *testing.T) {
	isolateEnvironment(t)

	_, err := execute(t, "track", "purchase", "--values", "[1, 2]")
	require.Error(t, err)
	require.Contains(t, err.Error(), "values must be a JSON object")
}

func TestParseValuesKeepsNumbers(t *testing.T) {
	values, err := parseValues(`{"price": 100, "name": "book"}`)
	require.NoError(t, err)
	require.Equal(t, json.Number("100"), values["price"])
	require.Equal(t, "book", values["name"])

	values, err = parseValues("")
	require.NoError(t, err)
	require.Nil(t, values)
}
