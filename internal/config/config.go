// Package config loads stream-healer's configuration the way the
// teacher repository does: a YAML file layered under environment
// variable overrides, via github.com/spf13/viper, into a struct whose
// fields carry the conf/yaml/json tag triple used throughout the rest
// of this codebase.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/mrorigo/stream-healer/internal/log"
	"github.com/mrorigo/stream-healer/internal/tracing"
)

// envPrefix is the prefix for environment variable overrides, e.g.
// STREAM_HEALER_UPSTREAM_BASE_URL overrides Upstream.BaseURL.
const envPrefix = "STREAM_HEALER"

// Config is the root configuration for the stream-healer service.
type Config struct {
	Server   ServerConfig   `conf:"server" mapstructure:"server" yaml:"server" json:"server"`
	Upstream UpstreamConfig `conf:"upstream" mapstructure:"upstream" yaml:"upstream" json:"upstream"`
	Trace    tracing.Config `conf:"trace" mapstructure:"trace" yaml:"trace" json:"trace"`
	Log      log.Config     `conf:"log" mapstructure:"log" yaml:"log" json:"log"`
}

// ServerConfig configures the proxy's HTTP listener.
type ServerConfig struct {
	Host           string        `conf:"host" mapstructure:"host" yaml:"host" json:"host"`
	Port           int           `conf:"port" mapstructure:"port" yaml:"port" json:"port"`
	BasePath       string        `conf:"base_path" mapstructure:"base_path" yaml:"base_path" json:"base_path"`
	ReadTimeout    time.Duration `conf:"read_timeout" mapstructure:"read_timeout" yaml:"read_timeout" json:"read_timeout"`
	RequestTimeout time.Duration `conf:"request_timeout" mapstructure:"request_timeout" yaml:"request_timeout" json:"request_timeout"`
	Debug          bool          `conf:"debug" mapstructure:"debug" yaml:"debug" json:"debug"`
	CORS           CORS          `conf:"cors" mapstructure:"cors" yaml:"cors" json:"cors"`
}

// CORS mirrors gin-contrib/cors.Config's tunables.
type CORS struct {
	Enabled          bool          `conf:"enabled" mapstructure:"enabled" yaml:"enabled" json:"enabled"`
	AllowedOrigins   []string      `conf:"allowed_origins" mapstructure:"allowed_origins" yaml:"allowed_origins" json:"allowed_origins"`
	AllowedMethods   []string      `conf:"allowed_methods" mapstructure:"allowed_methods" yaml:"allowed_methods" json:"allowed_methods"`
	AllowedHeaders   []string      `conf:"allowed_headers" mapstructure:"allowed_headers" yaml:"allowed_headers" json:"allowed_headers"`
	ExposedHeaders   []string      `conf:"exposed_headers" mapstructure:"exposed_headers" yaml:"exposed_headers" json:"exposed_headers"`
	AllowCredentials bool          `conf:"allow_credentials" mapstructure:"allow_credentials" yaml:"allow_credentials" json:"allow_credentials"`
	MaxAge           time.Duration `conf:"max_age" mapstructure:"max_age" yaml:"max_age" json:"max_age"`
}

// UpstreamConfig points at the OpenAI-compatible chat completions API
// the proxy forwards requests to.
type UpstreamConfig struct {
	BaseURL        string        `conf:"base_url" mapstructure:"base_url" yaml:"base_url" json:"base_url"`
	APIKey         string        `conf:"api_key" mapstructure:"api_key" yaml:"api_key" json:"api_key"`
	DefaultModel   string        `conf:"default_model" mapstructure:"default_model" yaml:"default_model" json:"default_model"`
	RequestTimeout time.Duration `conf:"request_timeout" mapstructure:"request_timeout" yaml:"request_timeout" json:"request_timeout"`
}

// Load reads configuration from (in increasing priority): built-in
// defaults, ./config.yaml (or $STREAM_HEALER_CONFIG), and
// STREAM_HEALER_-prefixed environment variables.
func Load() (Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	_ = v.BindEnv("config_file", envPrefix+"_CONFIG")

	if path := v.GetString("config_file"); path != "" {
		v.SetConfigFile(path)
	}

	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		if _, notFound := err.(viper.ConfigFileNotFoundError); !notFound {
			return Config{}, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8089)
	v.SetDefault("server.read_timeout", 30*time.Second)
	v.SetDefault("server.request_timeout", 120*time.Second)
	v.SetDefault("server.debug", false)
	v.SetDefault("server.cors.enabled", false)

	v.SetDefault("upstream.base_url", "https://api.openai.com")
	v.SetDefault("upstream.default_model", "gpt-4o-mini")
	v.SetDefault("upstream.request_timeout", 120*time.Second)

	v.SetDefault("trace.trace_header", "X-Trace-Id")

	v.SetDefault("log.level", "info")
	v.SetDefault("log.encoding", "console")
}

// Validate returns a human-readable list of configuration problems. An
// empty slice means the configuration is usable.
func (c Config) Validate() []string {
	var problems []string

	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		problems = append(problems, fmt.Sprintf("server.port must be between 1 and 65535, got %d", c.Server.Port))
	}

	if strings.TrimSpace(c.Upstream.BaseURL) == "" {
		problems = append(problems, "upstream.base_url must not be empty")
	}

	if c.Upstream.RequestTimeout <= 0 {
		problems = append(problems, "upstream.request_timeout must be positive")
	}

	return problems
}
