package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/abhisek/assessgen/internal/assessment"
	"github.com/abhisek/assessgen/internal/llm"
	"github.com/abhisek/assessgen/internal/logging"
	"github.com/abhisek/assessgen/internal/store"
	"github.com/spf13/viper"
)

// Config is the full application configuration.
type Config struct {
	Server     ServerConfig      `mapstructure:"server"`
	Store      store.Config      `mapstructure:"store"`
	LLM        llm.Config        `mapstructure:"llm"`
	Generation assessment.Config `mapstructure:"generation"`
	Log        logging.Config    `mapstructure:"log"`
}

// ServerConfig configures the HTTP surface.
type ServerConfig struct {
	Addr string `mapstructure:"addr"`

	// Mode is debug, test or release. Error responses carry a stack
	// trace outside release mode.
	Mode string `mapstructure:"mode"`
}

// Production reports whether the server runs in release mode.
func (s ServerConfig) Production() bool {
	return s.Mode == "release" || s.Mode == "production"
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		Server:     ServerConfig{Addr: ":8080", Mode: "release"},
		Store:      store.Config{Driver: "sqlite"},
		LLM:        llm.DefaultConfig(),
		Generation: assessment.DefaultConfig(),
		Log:        logging.DefaultConfig(),
	}
}

func setDefaults(v *viper.Viper, cfg Config) {
	v.SetDefault("server.addr", cfg.Server.Addr)
	v.SetDefault("server.mode", cfg.Server.Mode)

	v.SetDefault("store.driver", cfg.Store.Driver)
	v.SetDefault("store.dsn", cfg.Store.DSN)

	v.SetDefault("llm.openai.model", cfg.LLM.OpenAI.Model)
	v.SetDefault("llm.openai.base_url", cfg.LLM.OpenAI.BaseURL)
	v.SetDefault("llm.anthropic.model", cfg.LLM.Anthropic.Model)
	v.SetDefault("llm.gemini.model", cfg.LLM.Gemini.Model)
	v.SetDefault("llm.openrouter.model", cfg.LLM.OpenRouter.Model)
	v.SetDefault("llm.openrouter.base_url", cfg.LLM.OpenRouter.BaseURL)
	v.SetDefault("llm.openrouter.app_name", cfg.LLM.OpenRouter.AppName)
	v.SetDefault("llm.openrouter.site_url", cfg.LLM.OpenRouter.SiteURL)
	v.SetDefault("llm.mock.response_file", cfg.LLM.Mock.ResponseFile)
	v.SetDefault("llm.retry.max_attempts", cfg.LLM.Retry.MaxAttempts)
	v.SetDefault("llm.retry.initial_wait", cfg.LLM.Retry.InitialWait)
	v.SetDefault("llm.retry.max_wait", cfg.LLM.Retry.MaxWait)
	v.SetDefault("llm.retry.multiplier", cfg.LLM.Retry.Multiplier)
	v.SetDefault("llm.timeout", cfg.LLM.Timeout)

	v.SetDefault("generation.max_tokens", cfg.Generation.MaxTokens)
	v.SetDefault("generation.temperature", cfg.Generation.Temperature)
	v.SetDefault("generation.structured", cfg.Generation.Structured)

	v.SetDefault("log.level", cfg.Log.Level)
	v.SetDefault("log.format", cfg.Log.Format)
	v.SetDefault("log.file", cfg.Log.File)
	v.SetDefault("log.max_size_mb", cfg.Log.MaxSizeMB)
	v.SetDefault("log.max_backups", cfg.Log.MaxBackups)
	v.SetDefault("log.max_age_days", cfg.Log.MaxAgeDays)
}

// Load reads configuration from path, or from assessgen.yaml in the
// working directory or $XDG_CONFIG_HOME/assessgen when path is empty.
// ASSESSGEN_* variables override the file; the vendors' own API key
// variables are honored as a fallback.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v, Default())

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("assessgen")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		if dir, err := os.UserConfigDir(); err == nil {
			v.AddConfigPath(filepath.Join(dir, "assessgen"))
		}
	}

	v.SetEnvPrefix("ASSESSGEN")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.BindEnv("llm.provider", "ASSESSGEN_LLM_PROVIDER")
	v.BindEnv("llm.openai.api_key", "ASSESSGEN_LLM_OPENAI_API_KEY", "OPENAI_API_KEY")
	v.BindEnv("llm.anthropic.api_key", "ASSESSGEN_LLM_ANTHROPIC_API_KEY", "ANTHROPIC_API_KEY")
	v.BindEnv("llm.gemini.api_key", "ASSESSGEN_LLM_GEMINI_API_KEY", "GEMINI_API_KEY")
	v.BindEnv("llm.openrouter.api_key", "ASSESSGEN_LLM_OPENROUTER_API_KEY", "OPENROUTER_API_KEY")
	v.BindEnv("store.dsn", "ASSESSGEN_STORE_DSN", "DATABASE_URL")

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	cfg := Default()
	cfg.LLM.Provider = ""
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}

	if cfg.LLM.Provider == "" {
		cfg.LLM.Provider = discoverProvider()
	}
	return &cfg, nil
}

// discoverProvider picks the first vendor with an API key in the
// environment, falling back to openai.
func discoverProvider() string {
	if d, ok := llm.DiscoverConfig(); ok {
		return d.Provider
	}
	return llm.DefaultConfig().Provider
}

// Validate checks the parts of the configuration needed to serve.
func (c *Config) Validate() error {
	switch c.Server.Mode {
	case "debug", "test", "release", "production":
	default:
		return fmt.Errorf("server.mode must be debug, test or release, got %q", c.Server.Mode)
	}
	switch c.Store.Driver {
	case "sqlite", "postgres", "memory":
	default:
		return fmt.Errorf("store.driver must be sqlite, postgres or memory, got %q", c.Store.Driver)
	}
	if c.Generation.MaxTokens <= 0 {
		return fmt.Errorf("generation.max_tokens must be positive, got %d", c.Generation.MaxTokens)
	}
	if c.Generation.Temperature < 0 || c.Generation.Temperature > 1 {
		return fmt.Errorf("generation.temperature must be within [0,1], got %g", c.Generation.Temperature)
	}
	return c.LLM.Validate()
}
