package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/erp/shopsync/internal/infrastructure/auth"
	"github.com/erp/shopsync/internal/infrastructure/config"
)

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	return &config.Config{
		App:      config.AppConfig{Name: "shopsync", Env: "test"},
		Database: config.DatabaseConfig{Driver: config.DriverSQLite, Path: filepath.Join(t.TempDir(), "shopsync.db")},
		JWT:      config.JWTConfig{Secret: "cli-test-secret-0123456789abcdef", Issuer: "shopsync", TokenTTL: time.Hour},
		Log:      config.LogConfig{Level: "error"},
		Webhook:  config.WebhookConfig{Retention: time.Hour, DedupBackend: config.BackendMemory},
		Sync:     config.SyncConfig{PageSize: 25, LockBackend: config.BackendMemory, LockTTL: time.Minute},
	}
}

func testOptions(cfg *config.Config) *RootOptions {
	opts := defaultOptions()
	opts.loadConfig = func() (*config.Config, error) {
		copied := *cfg
		return &copied, nil
	}
	return opts
}

func execute(opts *RootOptions, args ...string) (string, error) {
	cmd := newRootCommand(opts)
	var out, errOut bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&errOut)
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(context.Background())
	return out.String(), err
}

func decode(t *testing.T, out string) map[string]any {
	t.Helper()
	var resp CLIResponse
	require.NoError(t, json.Unmarshal([]byte(out), &resp), out)
	require.Equal(t, "ok", resp.Status)
	data, ok := resp.Data.(map[string]any)
	require.True(t, ok, "data is %T", resp.Data)
	return data
}

func TestNewRootCommand(t *testing.T) {
	cmd := NewRootCommand()

	assert.Equal(t, "shopsync", cmd.Use)
	assert.NotNil(t, cmd.PersistentFlags().Lookup("format"))
	assert.NotNil(t, cmd.PersistentFlags().Lookup("verbose"))
	assert.NotNil(t, cmd.PersistentFlags().Lookup("env-file"))

	for _, path := range [][]string{
		{"migrate", "up"},
		{"migrate", "down"},
		{"migrate", "version"},
		{"migrate", "create"},
		{"instance", "list"},
		{"instance", "add"},
		{"instance", "test"},
		{"instance", "webhooks", "register"},
		{"sync", "import"},
		{"sync", "export"},
		{"sync", "all"},
		{"sync", "retry"},
		{"sync", "cancel"},
		{"jobs", "list"},
		{"logs"},
		{"token", "issue"},
		{"token", "revoke"},
	} {
		found, _, err := cmd.Find(path)
		require.NoError(t, err, path)
		assert.Equal(t, path[len(path)-1], found.Name(), path)
	}
}

func TestRootCommand_InvalidFormat(t *testing.T) {
	_, err := execute(testOptions(testConfig(t)), "--format", "yaml", "jobs", "list")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, err.Error(), "invalid format")
}

func TestInstanceCommands(t *testing.T) {
	opts := testOptions(testConfig(t))

	out, err := execute(opts, "--format", "json", "instance", "add",
		"--name", "Main store", "--shop", "acme", "--token", "shpat_secret", "--auto-sync")
	require.NoError(t, err)
	created := decode(t, out)
	assert.Equal(t, "https://acme.myshopify.com", created["shop_url"])
	assert.Equal(t, "unverified", created["status"])
	assert.NotContains(t, out, "shpat_secret")

	out, err = execute(opts, "instance", "list")
	require.NoError(t, err)
	assert.Contains(t, out, "Main store")
	assert.Contains(t, out, "https://acme.myshopify.com")

	out, err = execute(opts, "instance", "show", created["id"].(string))
	require.NoError(t, err)
	assert.Contains(t, out, "Auto sync: true")
}

func TestInstanceShow_InvalidID(t *testing.T) {
	_, err := execute(testOptions(testConfig(t)), "instance", "show", "not-a-uuid")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
}

func TestSyncCommand_ArgumentErrors(t *testing.T) {
	opts := testOptions(testConfig(t))

	tests := []struct {
		name string
		args []string
	}{
		{"bad entity", []string{"sync", "import", "1f0e4c52-6f0b-4f5e-9f55-0c2c6a8d8b11", "invoice"}},
		{"bad instance", []string{"sync", "export", "nope", "product"}},
		{"bad direction", []string{"sync", "all", "1f0e4c52-6f0b-4f5e-9f55-0c2c6a8d8b11", "--direction", "sideways"}},
		{"bad log status", []string{"logs", "--status", "exploded"}},
		{"bad job status", []string{"jobs", "list", "--status", "exploded"}},
		{"bad limit", []string{"logs", "--limit", "0"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := execute(opts, tt.args...)
			require.Error(t, err)
			assert.Equal(t, ExitCommandError, GetExitCode(err))
		})
	}
}

func TestSyncImport_UnknownInstance(t *testing.T) {
	_, err := execute(testOptions(testConfig(t)), "sync", "import", "1f0e4c52-6f0b-4f5e-9f55-0c2c6a8d8b11", "product")
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
}

func TestLogsAndJobs_Empty(t *testing.T) {
	opts := testOptions(testConfig(t))

	out, err := execute(opts, "--format", "json", "logs", "--since", "24h")
	require.NoError(t, err)
	assert.EqualValues(t, 0, decode(t, out)["total"])

	out, err = execute(opts, "--format", "json", "jobs", "list", "--entity", "product")
	require.NoError(t, err)
	assert.EqualValues(t, 0, decode(t, out)["total"])
}

func TestTokenIssue(t *testing.T) {
	cfg := testConfig(t)
	out, err := execute(testOptions(cfg), "--format", "json", "token", "issue", "--operator", "alice", "--scope", "read,write")
	require.NoError(t, err)
	data := decode(t, out)
	assert.Equal(t, "Bearer", data["token_type"])

	claims, err := auth.NewJWTService(cfg.JWT).ValidateToken(data["token"].(string))
	require.NoError(t, err)
	assert.Equal(t, "alice", claims.Operator)
	assert.Equal(t, []auth.Scope{auth.ScopeRead, auth.ScopeWrite}, claims.Scopes)
}

func TestTokenIssue_UnknownScope(t *testing.T) {
	_, err := execute(testOptions(testConfig(t)), "token", "issue", "--operator", "alice", "--scope", "admin")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
}

func TestTokenRevoke_RequiresRedis(t *testing.T) {
	_, err := execute(testOptions(testConfig(t)), "token", "revoke", "some.jwt.value")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, err.Error(), "redis")
}

func TestMigrate_SQLite(t *testing.T) {
	opts := testOptions(testConfig(t))

	out, err := execute(opts, "migrate", "up")
	require.NoError(t, err)
	assert.Contains(t, out, "SQLite schema is up to date")

	_, err = execute(opts, "migrate", "version")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
}

func TestMigrate_CreateAndList(t *testing.T) {
	dir := t.TempDir()
	opts := testOptions(testConfig(t))

	_, err := execute(opts, "migrate", "create", "add retry index", "--dir", dir)
	require.NoError(t, err)

	out, err := execute(opts, "--format", "json", "migrate", "list", "--dir", dir)
	require.NoError(t, err)
	var resp CLIResponse
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	assert.Equal(t, []any{"000001_add_retry_index"}, resp.Data)
}

func TestMigrate_ListEmbedded(t *testing.T) {
	out, err := execute(testOptions(testConfig(t)), "migrate", "list")
	require.NoError(t, err)
	assert.Contains(t, out, "000001_")
}
