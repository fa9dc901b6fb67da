// Package config loads the engine's structured settings via viper,
// supporting a config file, environment variables, and defaults.
package config

import (
	"fmt"
	"time"

	"github.com/spf13/viper"
)

// Settings holds every tunable the core engine reads at startup.
type Settings struct {
	StoragePath string `mapstructure:"storage_path"`

	OrderResolutionInterval time.Duration `mapstructure:"order_resolution_interval"`
	ConnBackoffMax          time.Duration `mapstructure:"conn_backoff_max"`

	FeesRate         float64 `mapstructure:"fees_rate"`
	InitialQuoteCash float64 `mapstructure:"initial_quote_cash"`

	RiskPerTrade  float64 `mapstructure:"risk_per_trade"`
	MinOrderSize  float64 `mapstructure:"min_order_size"`
	MaxOrderSize  float64 `mapstructure:"max_order_size"`
	MaxOrderValue float64 `mapstructure:"max_order_value"`

	HTTPHost      string        `mapstructure:"http_host"`
	HTTPPort      int           `mapstructure:"http_port"`
	WebSocketPath string        `mapstructure:"websocket_path"`
	ReadTimeout   time.Duration `mapstructure:"read_timeout"`
	WriteTimeout  time.Duration `mapstructure:"write_timeout"`
}

func defaults(v *viper.Viper) {
	v.SetDefault("storage_path", "./data")
	v.SetDefault("order_resolution_interval", "1s")
	v.SetDefault("conn_backoff_max", "5s")
	v.SetDefault("fees_rate", 0.001)
	v.SetDefault("initial_quote_cash", 10000.0)
	v.SetDefault("risk_per_trade", 0.02)
	v.SetDefault("min_order_size", 0.0001)
	v.SetDefault("max_order_size", 1_000_000.0)
	v.SetDefault("max_order_value", 1_000_000.0)
	v.SetDefault("http_host", "0.0.0.0")
	v.SetDefault("http_port", 8080)
	v.SetDefault("websocket_path", "/ws")
	v.SetDefault("read_timeout", "15s")
	v.SetDefault("write_timeout", "15s")
}

// Load reads settings from configPath (if non-empty), the environment
// (prefixed TRADING_ENGINE_, with "_" mapped from "."), and defaults, in
// that order of precedence.
func Load(configPath string) (*Settings, error) {
	v := viper.New()
	defaults(v)

	v.SetEnvPrefix("trading_engine")
	v.AutomaticEnv()

	if configPath != "" {
		v.SetConfigFile(configPath)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("config: read %s: %w", configPath, err)
		}
	}

	var s Settings
	if err := v.Unmarshal(&s); err != nil {
		return nil, fmt.Errorf("config: unmarshal: %w", err)
	}
	return &s, nil
}
