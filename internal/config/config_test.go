package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Veraticus/riskdesk/internal/common"
)

func newViper(t *testing.T, yaml string) *viper.Viper {
	t.Helper()
	v := viper.New()
	SetDefaults(v)
	// Always bind an explicit file so the test never reads the user's config.
	file := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(file, []byte(yaml), 0o600))
	require.NoError(t, Bind(v, file))
	return v
}

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("OPENAI_API_KEY", "sk-env")
	home, err := os.UserHomeDir()
	require.NoError(t, err)

	cfg, err := Load(newViper(t, ""))
	require.NoError(t, err)

	assert.Equal(t, filepath.Join(home, ".local/share/riskdesk/riskdesk.db"), cfg.Database)
	assert.Equal(t, filepath.Join(home, ".cache/riskdesk"), cfg.Cache.Dir)
	assert.Equal(t, 10, cfg.Cache.PageSize)
	assert.Equal(t, 10, cfg.Risk.RecentTransactions)
	assert.Equal(t, "openai", cfg.LLM.Provider)
	assert.Equal(t, "sk-env", cfg.LLM.APIKey, "provider key variable fills a missing api_key")
	assert.Equal(t, 30*time.Second, cfg.LLM.Timeout)
	assert.Equal(t, ":8080", cfg.Server.Addr)
	assert.Empty(t, cfg.Chat.Keywords)
}

func TestLoad_FileAndEnvironment(t *testing.T) {
	t.Setenv("RISKDESK_CACHE_PAGE_SIZE", "25")
	t.Setenv("RISKDESK_LLM_TIMEOUT", "5s")

	v := newViper(t, `
database: /var/lib/riskdesk/branch.db
llm:
  provider: Anthropic
  api_key: sk-file
  temperature: 0
chat:
  keywords: [ledger, statement]
cache:
  page_size: 5
`)
	cfg, err := Load(v)
	require.NoError(t, err)

	assert.Equal(t, "/var/lib/riskdesk/branch.db", cfg.Database)
	assert.Equal(t, "anthropic", cfg.LLM.Provider)
	assert.Equal(t, "sk-file", cfg.LLM.APIKey)
	assert.Zero(t, cfg.LLM.Temperature)
	assert.Equal(t, 25, cfg.Cache.PageSize, "environment beats the file")
	assert.Equal(t, 5*time.Second, cfg.LLM.Timeout)
	assert.Equal(t, []string{"ledger", "statement"}, cfg.Chat.Keywords)

	client := cfg.ClientConfig()
	assert.Equal(t, "anthropic", client.Provider)
	assert.Equal(t, 5*time.Second, client.Timeout)
}

func TestLoad_Invalid(t *testing.T) {
	tests := []struct {
		name string
		yaml string
	}{
		{name: "zero page size", yaml: "cache:\n  page_size: 0\n"},
		{name: "negative recent window", yaml: "risk:\n  recent_transactions: -1\n"},
		{name: "temperature out of range", yaml: "llm:\n  temperature: 3.5\n"},
		{name: "unknown log level", yaml: "logging:\n  level: chatty\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(newViper(t, tt.yaml))
			assert.True(t, common.IsConfigError(err), "got %v", err)
		})
	}
}

func TestBind_BadFile(t *testing.T) {
	file := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(file, []byte("llm: [unclosed"), 0o600))
	assert.Error(t, Bind(viper.New(), file))
}

func TestLoadDotEnv(t *testing.T) {
	dir := t.TempDir()
	env := filepath.Join(dir, ".env")
	require.NoError(t, os.WriteFile(env, []byte("RISKDESK_TEST_DOTENV=from-file\nRISKDESK_TEST_PRESET=from-file\n"), 0o600))
	t.Setenv("RISKDESK_TEST_PRESET", "from-shell")
	t.Cleanup(func() { _ = os.Unsetenv("RISKDESK_TEST_DOTENV") })

	require.NoError(t, LoadDotEnv(env, filepath.Join(dir, "missing.env")))
	assert.Equal(t, "from-file", os.Getenv("RISKDESK_TEST_DOTENV"))
	assert.Equal(t, "from-shell", os.Getenv("RISKDESK_TEST_PRESET"), "existing variables win")
}

func TestExpandPath(t *testing.T) {
	home, err := os.UserHomeDir()
	require.NoError(t, err)
	t.Setenv("RISKDESK_TEST_DIR", "/srv/data")

	tests := []struct {
		in   string
		want string
	}{
		{in: "", want: ""},
		{in: "~", want: home},
		{in: "~/rules.txt", want: filepath.Join(home, "rules.txt")},
		{in: "$RISKDESK_TEST_DIR/cache", want: "/srv/data/cache"},
		{in: "/abs/path", want: "/abs/path"},
		{in: "~other/x", want: "~other/x"},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, ExpandPath(tt.in))
		})
	}
}
