package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"github.com/Veraticus/riskdesk/internal/common"
	"github.com/Veraticus/riskdesk/internal/llm"
)

// EnvPrefix prefixes every environment override, e.g. RISKDESK_LLM_PROVIDER.
const EnvPrefix = "RISKDESK"

// Config is the resolved application configuration.
type Config struct {
	Database  string
	RulesPath string
	Logging   Logging
	Server    Server
	Chat      Chat
	LLM       LLM
	Cache     Cache
	Risk      Risk
}

// Logging configures the global slog logger.
type Logging struct {
	Level  string
	Format string
}

// Server configures the HTTP API.
type Server struct {
	Addr string
}

// Chat configures the chat pipeline.
type Chat struct {
	Keywords []string
}

// Cache configures the risk cache.
type Cache struct {
	Dir      string
	PageSize int
}

// Risk configures customer assessment.
type Risk struct {
	RecentTransactions int
}

// LLM configures the provider client.
type LLM struct {
	Provider    string
	Model       string
	APIKey      string
	BaseURL     string
	Timeout     time.Duration
	CacheTTL    time.Duration
	RateLimit   int
	MaxTokens   int
	Temperature float64
}

// providerKeyEnv names the conventional key variable per provider, read when
// llm.api_key is unset.
var providerKeyEnv = map[string]string{
	"openai":    "OPENAI_API_KEY",
	"anthropic": "ANTHROPIC_API_KEY",
	"gemini":    "GEMINI_API_KEY",
	"google":    "GEMINI_API_KEY",
}

// SetDefaults registers default values on v.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("database", "~/.local/share/riskdesk/riskdesk.db")
	v.SetDefault("rules.path", "~/.config/riskdesk/rules.txt")
	v.SetDefault("cache.dir", "~/.cache/riskdesk")
	v.SetDefault("cache.page_size", 10)
	v.SetDefault("llm.provider", "openai")
	v.SetDefault("llm.temperature", 0.2)
	v.SetDefault("llm.max_tokens", 1024)
	v.SetDefault("llm.timeout", 30*time.Second)
	v.SetDefault("llm.rate_limit", 60)
	v.SetDefault("llm.cache_ttl", 0)
	v.SetDefault("risk.recent_transactions", 10)
	v.SetDefault("server.addr", ":8080")
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "text")
}

// Bind points v at the standard config locations and the RISKDESK_
// environment. An explicit file overrides the search path.
func Bind(v *viper.Viper, file string) error {
	if file != "" {
		v.SetConfigFile(file)
	} else {
		home, err := os.UserHomeDir()
		if err != nil {
			return fmt.Errorf("failed to get home directory: %w", err)
		}
		v.AddConfigPath(home + "/.config/riskdesk")
		v.AddConfigPath(".")
		v.SetConfigName("config")
		v.SetConfigType("yaml")
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return fmt.Errorf("failed to read config: %w", err)
		}
	}
	return nil
}

// LoadDotEnv loads .env files into the process environment without
// overriding variables already set. Missing files are ignored.
func LoadDotEnv(paths ...string) error {
	if len(paths) == 0 {
		paths = []string{".env"}
	}
	for _, p := range paths {
		if err := godotenv.Load(ExpandPath(p)); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("failed to load %s: %w", p, err)
		}
	}
	return nil
}

// Load resolves the configuration from v.
func Load(v *viper.Viper) (*Config, error) {
	cfg := &Config{
		Database:  ExpandPath(v.GetString("database")),
		RulesPath: ExpandPath(v.GetString("rules.path")),
		Logging: Logging{
			Level:  v.GetString("logging.level"),
			Format: v.GetString("logging.format"),
		},
		Server: Server{Addr: v.GetString("server.addr")},
		Chat:   Chat{Keywords: v.GetStringSlice("chat.keywords")},
		Cache: Cache{
			Dir:      ExpandPath(v.GetString("cache.dir")),
			PageSize: v.GetInt("cache.page_size"),
		},
		Risk: Risk{RecentTransactions: v.GetInt("risk.recent_transactions")},
		LLM: LLM{
			Provider:    strings.ToLower(v.GetString("llm.provider")),
			Model:       v.GetString("llm.model"),
			APIKey:      v.GetString("llm.api_key"),
			BaseURL:     v.GetString("llm.base_url"),
			Timeout:     v.GetDuration("llm.timeout"),
			CacheTTL:    v.GetDuration("llm.cache_ttl"),
			RateLimit:   v.GetInt("llm.rate_limit"),
			MaxTokens:   v.GetInt("llm.max_tokens"),
			Temperature: v.GetFloat64("llm.temperature"),
		},
	}
	if cfg.LLM.APIKey == "" {
		if env, ok := providerKeyEnv[cfg.LLM.Provider]; ok {
			cfg.LLM.APIKey = os.Getenv(env)
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks values that would otherwise fail deep inside a component.
func (c *Config) Validate() error {
	if c.Database == "" {
		return common.NewConfigError("config", errors.New("database path is empty"))
	}
	if c.Cache.PageSize <= 0 {
		return common.NewConfigError("config", fmt.Errorf("cache.page_size must be positive, got %d", c.Cache.PageSize))
	}
	if c.Risk.RecentTransactions <= 0 {
		return common.NewConfigError("config", fmt.Errorf("risk.recent_transactions must be positive, got %d", c.Risk.RecentTransactions))
	}
	if c.LLM.Temperature < 0 || c.LLM.Temperature > 2 {
		return common.NewConfigError("config", fmt.Errorf("llm.temperature %.2f is outside 0..2", c.LLM.Temperature))
	}
	if _, err := common.ParseLevel(c.Logging.Level); err != nil {
		return common.NewConfigError("config", err)
	}
	return nil
}

// ClientConfig converts the LLM section for llm.New.
func (c *Config) ClientConfig() llm.Config {
	return llm.Config{
		Provider:    c.LLM.Provider,
		APIKey:      c.LLM.APIKey,
		Model:       c.LLM.Model,
		BaseURL:     c.LLM.BaseURL,
		Timeout:     c.LLM.Timeout,
		CacheTTL:    c.LLM.CacheTTL,
		RateLimit:   c.LLM.RateLimit,
		Temperature: c.LLM.Temperature,
		MaxTokens:   c.LLM.MaxTokens,
	}
}
