package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all configuration for the assistant.
type Config struct {
	General   GeneralConfig   `mapstructure:"general"`
	Server    ServerConfig    `mapstructure:"server"`
	LLM       LLMConfig       `mapstructure:"llm"`
	Tools     ToolsConfig     `mapstructure:"tools"`
	Telemetry TelemetryConfig `mapstructure:"telemetry"`
}

// GeneralConfig contains general application settings.
type GeneralConfig struct {
	Debug          bool          `mapstructure:"debug"`
	LogLevel       string        `mapstructure:"log_level"`
	DefaultTimeout time.Duration `mapstructure:"default_timeout"`
}

// ServerConfig contains HTTP server settings.
type ServerConfig struct {
	Address string `mapstructure:"address"`
}

// LLMConfig contains LLM provider configurations.
type LLMConfig struct {
	Providers map[string]LLMProvider `mapstructure:"providers"`
	Routing   LLMRoutingConfig       `mapstructure:"routing"`
	// MaxStructuredRetries bounds how many extra attempts the structured
	// client makes when a response fails schema validation.
	MaxStructuredRetries int `mapstructure:"max_structured_retries"`
}

// LLMProvider represents a single LLM provider configuration.
type LLMProvider struct {
	Type    string              `mapstructure:"type"` // openai, gemini
	APIKey  string              `mapstructure:"api_key"`
	BaseURL string              `mapstructure:"base_url"`
	Models  map[string]LLMModel `mapstructure:"models"`
	Timeout time.Duration       `mapstructure:"timeout"`
}

// LLMModel represents a specific model configuration.
type LLMModel struct {
	Name            string  `mapstructure:"name"`
	APIName         string  `mapstructure:"api_name"`
	MaxTokens       int     `mapstructure:"max_tokens"`
	Temperature     float64 `mapstructure:"temperature"`
	CostPer1K       float64 `mapstructure:"cost_per_1k_input"`
	CostPer1KOutput float64 `mapstructure:"cost_per_1k_output"`
}

// LLMRoutingConfig defines which model to use for different pipeline stages.
type LLMRoutingConfig struct {
	Planning     string `mapstructure:"planning"`
	Verification string `mapstructure:"verification"`
	Fallback     string `mapstructure:"fallback"`
}

// ToolsConfig holds credentials and endpoints for the built-in tools.
type ToolsConfig struct {
	Timeout time.Duration `mapstructure:"timeout"`
	GitHub  GitHubConfig  `mapstructure:"github"`
	Weather WeatherConfig `mapstructure:"weather"`
	News    NewsConfig    `mapstructure:"news"`
}

// GitHubConfig configures the repository search tool.
type GitHubConfig struct {
	Token   string `mapstructure:"token"`
	BaseURL string `mapstructure:"base_url"`
}

// WeatherConfig configures the weather lookup tool.
type WeatherConfig struct {
	APIKey  string `mapstructure:"api_key"`
	BaseURL string `mapstructure:"base_url"`
}

// NewsConfig configures the headline search tool.
type NewsConfig struct {
	APIKey  string `mapstructure:"api_key"`
	BaseURL string `mapstructure:"base_url"`
}

// TelemetryConfig contains telemetry and monitoring settings.
type TelemetryConfig struct {
	Enabled      bool `mapstructure:"enabled"`
	CostTracking bool `mapstructure:"cost_tracking"`
}

// Validate checks cross-field requirements before the pipeline starts.
func (c *Config) Validate() error {
	if len(c.LLM.Providers) == 0 {
		return fmt.Errorf("llm.providers must contain at least one provider")
	}
	if c.LLM.Routing.Planning == "" {
		return fmt.Errorf("llm.routing.planning model is required")
	}
	if c.LLM.Routing.Verification == "" {
		return fmt.Errorf("llm.routing.verification model is required")
	}
	if c.LLM.MaxStructuredRetries < 0 {
		return fmt.Errorf("llm.max_structured_retries must be >= 0")
	}
	return nil
}

// LoadConfig loads config from file, with OPSASSIST_* env overrides.
func LoadConfig(path string) (*Config, error) {
	viper.SetConfigName("config")
	viper.SetConfigType("json")
	viper.SetDefault("general.log_level", "info")
	viper.SetDefault("general.default_timeout", "30s")
	viper.SetDefault("server.address", ":10020")
	viper.SetDefault("llm.max_structured_retries", 2)
	viper.SetDefault("llm.routing.planning", "gpt-4o")
	viper.SetDefault("llm.routing.verification", "gpt-4o-mini")
	viper.SetDefault("tools.timeout", "30s")
	viper.SetDefault("tools.github.base_url", "https://api.github.com")
	viper.SetDefault("tools.weather.base_url", "https://api.weatherapi.com/v1")
	viper.SetDefault("tools.news.base_url", "https://newsapi.org/v2")
	viper.SetDefault("telemetry.enabled", true)
	viper.SetDefault("telemetry.cost_tracking", true)

	if path == "" {
		viper.AddConfigPath("./config")
		viper.AddConfigPath(".")
		exe, _ := os.Executable()
		exeDir := filepath.Dir(exe)
		viper.AddConfigPath(exeDir)
		viper.AddConfigPath(filepath.Join(exeDir, "..", "config"))
	} else {
		viper.SetConfigFile(path)
	}

	viper.SetEnvPrefix("OPSASSIST")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err != nil {
		// Env-only operation is fine; a missing file is not fatal.
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
	}

	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}
	if len(cfg.LLM.Providers) == 0 {
		cfg.LLM.Providers = defaultProviders()
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func defaultProviders() map[string]LLMProvider {
	return map[string]LLMProvider{
		"openai": {
			Type:    "openai",
			APIKey:  os.Getenv("OPENAI_API_KEY"),
			Timeout: 60 * time.Second,
			Models: map[string]LLMModel{
				"gpt-4o": {
					Name:            "gpt-4o",
					MaxTokens:       4096,
					Temperature:     0.3,
					CostPer1K:       0.0025,
					CostPer1KOutput: 0.01,
				},
				"gpt-4o-mini": {
					Name:            "gpt-4o-mini",
					MaxTokens:       4096,
					Temperature:     0.2,
					CostPer1K:       0.00015,
					CostPer1KOutput: 0.0006,
				},
			},
		},
	}
}
