package main

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/compresr/lingua-gateway/internal/config"
	"github.com/compresr/lingua-gateway/internal/gateway"
	"github.com/compresr/lingua-gateway/internal/monitoring"
	"github.com/compresr/lingua-gateway/internal/store"
)

// clearEnv blanks the variables the embedded config expands.
func clearEnv(t *testing.T) {
	t.Helper()
	for _, k := range []string{"PORT", "LINGUA_HOST", "LINGUA_ENGINE", "LINGUA_ENGINE_API_KEY", "LOG_LEVEL",
		"LINGUA_SAVINGS_DB", "LINGUA_UPSTREAM_URL", "LINGUA_ENGINE_ENDPOINT"} {
		t.Setenv(k, "")
	}
}

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

// =============================================================================
// CONFIG RESOLUTION
// =============================================================================

func TestResolveServeConfig(t *testing.T) {
	dir := t.TempDir()
	user := writeFile(t, dir, "user.yaml", "server:\n  port: 1111\n")
	found := writeFile(t, dir, "found.yaml", "server:\n  port: 2222\n")
	missing := filepath.Join(dir, "missing.yaml")

	tests := []struct {
		name       string
		userConfig string
		search     []string
		wantSource string
		wantErr    bool
	}{
		{name: "user flag wins", userConfig: user, search: []string{found}, wantSource: user},
		{name: "first existing search path", search: []string{missing, found}, wantSource: found},
		{name: "embedded fallback", search: []string{missing}, wantSource: "(embedded) config.yaml"},
		{name: "missing user file", userConfig: missing, wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			data, source, err := resolveServeConfig(tt.userConfig, tt.search)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantSource, source)
			assert.NotEmpty(t, data)
		})
	}
}

func TestEmbeddedConfig_IsValid(t *testing.T) {
	clearEnv(t)

	data, err := getEmbeddedConfig("config")
	require.NoError(t, err)

	cfg, err := config.LoadFromBytes(data)
	require.NoError(t, err)
	assert.Equal(t, config.Default().Server.Port, cfg.Server.Port)
	assert.Equal(t, config.Default().Pipes.Lingua.MinChars, cfg.Pipes.Lingua.MinChars)
	assert.Equal(t, config.Default().Engine.Model, cfg.Engine.Model)
	assert.Empty(t, cfg.Monitoring.SavingsDB)
}

func TestLoadServeConfig_FlagOverrides(t *testing.T) {
	clearEnv(t)

	cfg, source, err := loadServeConfig(&serveOptions{port: 9999, debug: true}, nil)
	require.NoError(t, err)
	assert.Equal(t, "(embedded) config.yaml", source)
	assert.Equal(t, 9999, cfg.Server.Port)
	assert.Equal(t, "debug", cfg.Monitoring.LogLevel)
}

func TestLoadServeConfig_Invalid(t *testing.T) {
	clearEnv(t)
	path := writeFile(t, t.TempDir(), "bad.yaml", "engine:\n  strategy: zip\n")

	_, _, err := loadServeConfig(&serveOptions{configPath: path}, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown strategy")
}

func TestOpenLedger(t *testing.T) {
	ctx := context.Background()

	mem, err := openLedger(ctx, "")
	require.NoError(t, err)
	assert.IsType(t, &store.MemoryStore{}, mem)
	require.NoError(t, mem.Close())

	db, err := openLedger(ctx, filepath.Join(t.TempDir(), "nested", "savings.db"))
	require.NoError(t, err)
	assert.IsType(t, &store.SQLiteStore{}, db)
	require.NoError(t, db.Close())
}

// =============================================================================
// COMMANDS
// =============================================================================

func TestVersionCmd(t *testing.T) {
	var out bytes.Buffer
	root := newRootCmd()
	root.SetOut(&out)
	root.SetArgs([]string{"version"})

	require.NoError(t, root.Execute())
	assert.Equal(t, "lingua-gateway "+gateway.Version+"\n", out.String())
}

func TestConfigCmd(t *testing.T) {
	var out bytes.Buffer
	root := newRootCmd()
	root.SetOut(&out)
	root.SetArgs([]string{"config"})

	require.NoError(t, root.Execute())
	assert.Contains(t, out.String(), "min_chars: 1000")
}

func TestFetchStats(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/stats", r.URL.Path)
		_ = json.NewEncoder(w).Encode(gateway.StatsResponse{
			Uptime:  "1m0s",
			Version: "test",
			Engine:  "lingua",
			Savings: monitoring.SavingsReport{
				TotalRequests:      3,
				CompressedRequests: 2,
				Fragments:          4,
				TokensBefore:       4000,
				TokensAfter:        2000,
				TokensSaved:        2000,
				TokenSavedPct:      50,
			},
		})
	}))
	defer srv.Close()

	stats, err := fetchStats(context.Background(), srv.URL+"/")
	require.NoError(t, err)

	var out bytes.Buffer
	printStats(&out, stats)
	assert.Contains(t, out.String(), "4,000 -> 2,000 (50.0% saved)")
	assert.Contains(t, out.String(), "3 (2 compressed)")
}

func TestFetchStats_Forbidden(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "forbidden", http.StatusForbidden)
	}))
	defer srv.Close()

	_, err := fetchStats(context.Background(), srv.URL)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "status 403")
}

func TestPrintSavings(t *testing.T) {
	ctx := context.Background()
	ledger, err := store.OpenSQLite(ctx, filepath.Join(t.TempDir(), "savings.db"))
	require.NoError(t, err)
	defer func() { _ = ledger.Close() }()

	require.NoError(t, ledger.Record(ctx, store.Record{
		RequestID: "req-a", Timestamp: time.Now(), Model: "claude-sonnet-4",
		Fragments: 2, TokensBefore: 1200, TokensAfter: 600,
	}))

	var out bytes.Buffer
	require.NoError(t, printSavings(ctx, &out, ledger, 10))
	assert.Contains(t, out.String(), "req-a")
	assert.Contains(t, out.String(), "1 requests, 1,200 -> 600 tokens (50.0% saved)")
}
