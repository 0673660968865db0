// Package config loads the daemon's configuration via Viper: defaults,
// an optional config file, and RASK_-prefixed environment overrides.
// Grounded on the teacher's am/load.go (SetDefaults-then-ReadInConfig
// ordering, env-prefix binding, a package-level Load that builds a fresh
// viper.Viper per call), trimmed of its multi-file precedence merge (system, user,
// project) since a daemon instance has exactly one config file, passed
// explicitly by the CLI rather than discovered by walking up the tree.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Tenant is one hosted tenant's configuration.
type Tenant struct {
	Name      string `mapstructure:"name"`
	LocalRoot string `mapstructure:"local_root"`
}

// Config is the daemon's full configuration.
type Config struct {
	BindAddr          string        `mapstructure:"bind_addr"`
	ServerID          uint32        `mapstructure:"server_id"`
	Peers             []string      `mapstructure:"peers"`
	Tenants           []Tenant      `mapstructure:"tenants"`
	HeartbeatInterval time.Duration `mapstructure:"heartbeat_interval"`
	ReconnectInitial  time.Duration `mapstructure:"reconnect_initial"`
	ReconnectMax      time.Duration `mapstructure:"reconnect_max"`
	LowLatencyWorkers  int64        `mapstructure:"low_latency_workers"`
	HighLatencyWorkers int64        `mapstructure:"high_latency_workers"`
	StoreRoot          string       `mapstructure:"store_root"`
	LogJSON            bool         `mapstructure:"log_json"`
	LogDebug           bool         `mapstructure:"log_debug"`
}

// SetDefaults installs the daemon's default settings onto v.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("bind_addr", "0.0.0.0:9109")
	v.SetDefault("server_id", 1)
	v.SetDefault("peers", []string{})
	v.SetDefault("tenants", []map[string]any{})
	v.SetDefault("heartbeat_interval", 5*time.Second)
	v.SetDefault("reconnect_initial", 500*time.Millisecond)
	v.SetDefault("reconnect_max", 30*time.Second)
	v.SetDefault("low_latency_workers", int64(8))
	v.SetDefault("high_latency_workers", int64(4))
	v.SetDefault("store_root", "./data/store")
	v.SetDefault("log_json", false)
	v.SetDefault("log_debug", false)
}

// Load reads configuration from configPath (if non-empty) layered over
// defaults and RASK_-prefixed environment variables, and returns the
// unmarshaled Config.
func Load(configPath string) (*Config, error) {
	v := viper.New()
	v.SetEnvPrefix("RASK")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	SetDefaults(v)

	if configPath != "" {
		v.SetConfigFile(configPath)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("config: reading %s: %w", configPath, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("config: unmarshal: %w", err)
	}
	return &cfg, nil
}
