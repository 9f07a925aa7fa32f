package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/ajitpratap0/relay/internal/pipeline"
	"github.com/ajitpratap0/relay/pkg/clients"
	"github.com/ajitpratap0/relay/pkg/logger"
	"github.com/ajitpratap0/relay/pkg/retry"
	"github.com/spf13/viper"
)

// EnvPrefix prefixes every environment override
const EnvPrefix = "RELAY"

// Settings is the process level configuration
type Settings struct {
	Log logger.Config `mapstructure:"log"`
	// VaultPath is the credential file; empty keeps credentials in memory
	VaultPath string `mapstructure:"vault_path"`
	// MetricsAddr serves /metrics when set
	MetricsAddr string `mapstructure:"metrics_addr"`
	// Concurrency bounds pipelines running at once; 0 is unbounded
	Concurrency int                `mapstructure:"concurrency"`
	Tracing     TracingSettings    `mapstructure:"tracing"`
	HTTP        clients.HTTPConfig `mapstructure:"http"`
	Defaults    PipelineDefaults   `mapstructure:"defaults"`
}

// TracingSettings configures the stdout span exporter
type TracingSettings struct {
	Enabled     bool   `mapstructure:"enabled"`
	ServiceName string `mapstructure:"service_name"`
	// Pretty prints spans indented
	Pretty bool `mapstructure:"pretty"`
}

// PipelineDefaults apply to pipelines that leave these sections out
type PipelineDefaults struct {
	ErrorHandling retry.Policy          `mapstructure:"error_handling"`
	RateLimiting  pipeline.RateLimiting `mapstructure:"rate_limiting"`
}

// DefaultSettings returns the built-in settings
func DefaultSettings() *Settings {
	return &Settings{
		Log: logger.Config{Level: "info", Encoding: "json"},
		Tracing: TracingSettings{
			ServiceName: "relay",
		},
		HTTP: *clients.DefaultHTTPConfig(),
		Defaults: PipelineDefaults{
			ErrorHandling: retry.Policy{MaxRetries: 3, RetryInterval: time.Second},
		},
	}
}

// LoadSettings reads settings from path (or the default search locations
// when path is empty) and the environment. A missing default file is fine; a
// missing explicit file is an error.
func LoadSettings(path string) (*Settings, error) {
	v := viper.New()
	setDefaults(v, DefaultSettings())

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("relay")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("$HOME/.relay")
	}

	if err := v.ReadInConfig(); err != nil {
		if _, notFound := err.(viper.ConfigFileNotFoundError); !notFound || path != "" {
			return nil, fmt.Errorf("failed to read settings: %w", err)
		}
	}

	settings := &Settings{}
	if err := v.Unmarshal(settings); err != nil {
		return nil, fmt.Errorf("failed to decode settings: %w", err)
	}
	if err := settings.Validate(); err != nil {
		return nil, err
	}
	return settings, nil
}

// setDefaults registers every key so AutomaticEnv can override keys absent
// from the file
func setDefaults(v *viper.Viper, d *Settings) {
	v.SetDefault("log.level", d.Log.Level)
	v.SetDefault("log.development", d.Log.Development)
	v.SetDefault("log.encoding", d.Log.Encoding)
	v.SetDefault("log.output_paths", d.Log.OutputPaths)
	v.SetDefault("vault_path", d.VaultPath)
	v.SetDefault("metrics_addr", d.MetricsAddr)
	v.SetDefault("concurrency", d.Concurrency)
	v.SetDefault("tracing.enabled", d.Tracing.Enabled)
	v.SetDefault("tracing.service_name", d.Tracing.ServiceName)
	v.SetDefault("tracing.pretty", d.Tracing.Pretty)

	v.SetDefault("http.max_idle_conns", d.HTTP.MaxIdleConns)
	v.SetDefault("http.max_idle_conns_per_host", d.HTTP.MaxIdleConnsPerHost)
	v.SetDefault("http.max_conns_per_host", d.HTTP.MaxConnsPerHost)
	v.SetDefault("http.idle_conn_timeout", d.HTTP.IdleConnTimeout)
	v.SetDefault("http.enable_http2", d.HTTP.EnableHTTP2)
	v.SetDefault("http.dial_timeout", d.HTTP.DialTimeout)
	v.SetDefault("http.tls_handshake_timeout", d.HTTP.TLSHandshakeTimeout)
	v.SetDefault("http.response_header_timeout", d.HTTP.ResponseHeaderTimeout)
	v.SetDefault("http.request_timeout", d.HTTP.RequestTimeout)
	v.SetDefault("http.keep_alive", d.HTTP.KeepAlive)
	v.SetDefault("http.insecure_skip_verify", d.HTTP.InsecureSkipVerify)
	v.SetDefault("http.max_redirects", d.HTTP.MaxRedirects)

	v.SetDefault("defaults.error_handling.max_retries", d.Defaults.ErrorHandling.MaxRetries)
	v.SetDefault("defaults.error_handling.retry_interval", d.Defaults.ErrorHandling.RetryInterval)
	v.SetDefault("defaults.error_handling.fail_on_error", d.Defaults.ErrorHandling.FailOnError)
	v.SetDefault("defaults.rate_limiting.requests_per_second", d.Defaults.RateLimiting.RequestsPerSecond)
}

// Validate checks settings for values that cannot work
func (s *Settings) Validate() error {
	if s.Concurrency < 0 {
		return fmt.Errorf("concurrency must be >= 0, got %d", s.Concurrency)
	}
	if s.Defaults.ErrorHandling.MaxRetries < 0 {
		return fmt.Errorf("defaults.error_handling.max_retries must be >= 0")
	}
	if s.Defaults.ErrorHandling.RetryInterval < 0 {
		return fmt.Errorf("defaults.error_handling.retry_interval must be >= 0")
	}
	switch s.Log.Encoding {
	case "", "json", "console":
	default:
		return fmt.Errorf("log.encoding must be json or console, got %q", s.Log.Encoding)
	}
	return nil
}
