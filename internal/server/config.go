package server

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/viper"
)

// Config holds the server configuration.
type Config struct {
	Host           string  `mapstructure:"host"`
	Port           int     `mapstructure:"port"`
	DataDir        string  `mapstructure:"data_dir"`
	DevMode        bool    `mapstructure:"dev_mode"`
	ReadOnly       bool    `mapstructure:"read_only"`
	RateLimitRPS   float64 `mapstructure:"rate_limit_rps"`
	RateLimitBurst int     `mapstructure:"rate_limit_burst"`
}

// Addr returns the listen address as host:port.
func (c *Config) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// UnmarshalConfig decodes the server section of v. Unlike
// v.UnmarshalKey("server", ...), decoding from the root applies LG_SERVER_*
// environment overrides.
func UnmarshalConfig(v *viper.Viper) (Config, error) {
	var root struct {
		Server Config `mapstructure:"server"`
	}
	if err := v.Unmarshal(&root); err != nil {
		return Config{}, fmt.Errorf("decoding server config: %w", err)
	}
	return root.Server, nil
}

// LoadConfig reads configuration from file and environment variables.
func LoadConfig(configPath string) (*viper.Viper, error) {
	v := viper.New()

	// Defaults
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.data_dir", "./data")
	v.SetDefault("server.dev_mode", false)
	v.SetDefault("server.read_only", false)
	v.SetDefault("server.rate_limit_rps", 100)
	v.SetDefault("server.rate_limit_burst", 200)
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
	v.SetDefault("database.dsn", "./data/labgraph.db")

	v.SetDefault("auth.jwt_secret", "")
	v.SetDefault("auth.access_token_ttl", "15m")
	v.SetDefault("auth.refresh_token_ttl", "168h")

	// Plugin defaults
	v.SetDefault("plugins.qc.enabled", true)
	v.SetDefault("plugins.qc.confidence_multiplier", 1.96)
	v.SetDefault("plugins.qc.violation_sigmas", []int{2, 3})
	v.SetDefault("plugins.qc.precision", 2)
	v.SetDefault("plugins.qc.report_schedule", "0 6 * * *")
	v.SetDefault("plugins.qc.report_window", "720h")
	v.SetDefault("plugins.qc.measurement_retention", "0s")
	v.SetDefault("plugins.qc.maintenance_interval", "1h")
	v.SetDefault("plugins.notify.enabled", true)
	v.SetDefault("plugins.notify.webhook_url", "")
	v.SetDefault("plugins.notify.timeout", "10s")
	v.SetDefault("plugins.notify.slack_token", "")
	v.SetDefault("plugins.notify.slack_channel", "")
	v.SetDefault("plugins.notify.batch_size", 20)
	v.SetDefault("plugins.notify.flush_interval", "30s")

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("labgraph")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./configs")
		v.AddConfigPath("/etc/labgraph")
	}

	// LG_SERVER_PORT=9090 overrides server.port.
	v.SetEnvPrefix("LG")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("reading config: %w", err)
		}
		// No file; defaults and environment only.
	}

	return v, nil
}
