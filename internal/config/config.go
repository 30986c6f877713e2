package config

import (
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/sells-group/visibility-cli/internal/model"
)

// Config holds the full application configuration.
type Config struct {
	Store      StoreConfig      `yaml:"store" mapstructure:"store"`
	Anthropic  AnthropicConfig  `yaml:"anthropic" mapstructure:"anthropic"`
	OpenAI     OpenAIConfig     `yaml:"openai" mapstructure:"openai"`
	Perplexity PerplexityConfig `yaml:"perplexity" mapstructure:"perplexity"`
	Gemini     GeminiConfig     `yaml:"gemini" mapstructure:"gemini"`
	Probe      ProbeConfig      `yaml:"probe" mapstructure:"probe"`
	Server     ServerConfig     `yaml:"server" mapstructure:"server"`
	Log        LogConfig        `yaml:"log" mapstructure:"log"`
}

// StoreConfig configures the database backend.
type StoreConfig struct {
	Driver      string `yaml:"driver" mapstructure:"driver"`
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
}

// AnthropicConfig holds Anthropic API settings for the analysis side
// (answer analysis, prompt generation, qualitative assessment).
type AnthropicConfig struct {
	Key   string `yaml:"key" mapstructure:"key"`
	Model string `yaml:"model" mapstructure:"model"`
}

// OpenAIConfig holds OpenAI API settings for the "gpt" answer service.
type OpenAIConfig struct {
	Key   string `yaml:"key" mapstructure:"key"`
	Model string `yaml:"model" mapstructure:"model"`
}

// PerplexityConfig holds Perplexity API settings.
type PerplexityConfig struct {
	Key     string `yaml:"key" mapstructure:"key"`
	BaseURL string `yaml:"base_url" mapstructure:"base_url"`
	Model   string `yaml:"model" mapstructure:"model"`
}

// GeminiConfig holds Gemini API settings.
type GeminiConfig struct {
	Key   string `yaml:"key" mapstructure:"key"`
	Model string `yaml:"model" mapstructure:"model"`
}

// ProbeConfig configures probing behavior.
type ProbeConfig struct {
	PromptCount          int      `yaml:"prompt_count" mapstructure:"prompt_count"`
	RunsPerPrompt        int      `yaml:"runs_per_prompt" mapstructure:"runs_per_prompt"`
	Services             []string `yaml:"services" mapstructure:"services"`
	MaxConcurrentPrompts int      `yaml:"max_concurrent_prompts" mapstructure:"max_concurrent_prompts"`
	TimeoutSecs          int      `yaml:"timeout_secs" mapstructure:"timeout_secs"`
	RequestsPerSecond    float64  `yaml:"requests_per_second" mapstructure:"requests_per_second"`
}

// ServerConfig configures the HTTP server.
type ServerConfig struct {
	Port int `yaml:"port" mapstructure:"port"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// ServiceIDs converts the configured service names into typed IDs.
func (p ProbeConfig) ServiceIDs() []model.ServiceID {
	out := make([]model.ServiceID, 0, len(p.Services))
	for _, s := range p.Services {
		out = append(out, model.ServiceID(s))
	}
	return out
}

// Load reads configuration from file and environment.
func Load() (*Config, error) {
	v := viper.New()

	// Config file
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	// Environment
	v.SetEnvPrefix("VISIBILITY")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("store.driver", "postgres")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("server.port", 8080)
	v.SetDefault("probe.prompt_count", 10)
	v.SetDefault("probe.runs_per_prompt", 4)
	v.SetDefault("probe.services", []string{"gpt"})
	v.SetDefault("probe.max_concurrent_prompts", 3)
	v.SetDefault("probe.timeout_secs", 90)
	v.SetDefault("probe.requests_per_second", 2.0)
	v.SetDefault("anthropic.model", "claude-haiku-4-5-20251001")
	v.SetDefault("openai.model", "gpt-4o")
	v.SetDefault("perplexity.base_url", "https://api.perplexity.ai")
	v.SetDefault("perplexity.model", "sonar-pro")
	v.SetDefault("gemini.model", "gemini-2.0-flash")

	// Read config file (optional)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, eris.Wrap(err, "config: read file")
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, eris.Wrap(err, "config: unmarshal")
	}

	return &cfg, nil
}

// Validate checks that required credentials exist for every configured
// service. Missing credentials are fatal at startup, before any report
// row is created.
func (c *Config) Validate() error {
	if c.Anthropic.Key == "" {
		return eris.New("config: anthropic key is required (VISIBILITY_ANTHROPIC_KEY)")
	}
	if c.Probe.RunsPerPrompt <= 0 {
		return eris.Errorf("config: runs_per_prompt must be positive, got %d", c.Probe.RunsPerPrompt)
	}
	if c.Probe.PromptCount <= 0 {
		return eris.Errorf("config: prompt_count must be positive, got %d", c.Probe.PromptCount)
	}
	if len(c.Probe.Services) == 0 {
		return eris.New("config: at least one answer service must be configured")
	}
	for _, s := range c.Probe.Services {
		switch model.ServiceID(s) {
		case model.ServiceGPT:
			if c.OpenAI.Key == "" {
				return eris.New("config: openai key is required for service gpt")
			}
		case model.ServicePerplexity:
			if c.Perplexity.Key == "" {
				return eris.New("config: perplexity key is required for service perplexity")
			}
		case model.ServiceGemini:
			if c.Gemini.Key == "" {
				return eris.New("config: gemini key is required for service gemini")
			}
		default:
			return eris.Errorf("config: unknown answer service %q", s)
		}
	}
	return nil
}

// InitLogger initializes the global zap logger.
func InitLogger(cfg LogConfig) error {
	var zapCfg zap.Config
	if cfg.Format == "console" {
		zapCfg = zap.NewDevelopmentConfig()
	} else {
		zapCfg = zap.NewProductionConfig()
	}

	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return eris.Wrap(err, "config: parse log level")
	}
	zapCfg.Level.SetLevel(level)

	logger, err := zapCfg.Build()
	if err != nil {
		return eris.Wrap(err, "config: build logger")
	}
	zap.ReplaceGlobals(logger)

	return nil
}
