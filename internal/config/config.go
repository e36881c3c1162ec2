// Package config loads typed configuration for both binaries: the
// relay server's bind address and data file, and the client's relay
// list and key/subscription data directory.
package config

import (
	"os"
	"path/filepath"

	"github.com/rs/zerolog/log"
	"github.com/spf13/viper"
)

// Config is the full, typed configuration tree for both cmd/relayd
// and cmd/nostrclient. Each binary only reads the sections it needs.
type Config struct {
	Relay    RelayConfig    `mapstructure:"relay"`
	Database DatabaseConfig `mapstructure:"database"`
	Client   ClientConfig   `mapstructure:"client"`
}

// RelayConfig configures the relay server binary.
type RelayConfig struct {
	// Host is the websocket listen address, e.g. "0.0.0.0:8080".
	// Overridden by the RELAY_HOST environment variable.
	Host string `mapstructure:"host"`
	// AdminHost is the chi admin HTTP listen address for /health and
	// /stats.
	AdminHost string `mapstructure:"admin_host"`
}

// DatabaseConfig points at the SQLite file backing a KVStore.
type DatabaseConfig struct {
	Path string `mapstructure:"path"`
}

// ClientConfig configures the client binary.
type ClientConfig struct {
	// Relays is the list of relay URLs the pool connects to on
	// startup.
	Relays []string `mapstructure:"relays"`
	// DataDir holds the client's key store and subscription store
	// database file.
	DataDir string `mapstructure:"data_dir"`
}

var cfg *Config

// Load reads configuration from (in order of precedence) environment
// variables, an optional config file, then the defaults set below.
func Load() (*Config, error) {
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(".")
	viper.AddConfigPath("./config")
	viper.AddConfigPath("/etc/nostrd")
	viper.AddConfigPath("$HOME/.nostrd")

	setDefaults()

	if err := viper.BindEnv("relay.host", "RELAY_HOST"); err != nil {
		return nil, err
	}

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			log.Info().Msg("no config file found, using defaults")
		} else {
			return nil, err
		}
	}

	cfg = &Config{}
	if err := viper.Unmarshal(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Get returns the already-loaded configuration. It is fatal to call
// before Load succeeds, matching the teacher's own Get().
func Get() *Config {
	if cfg == nil {
		log.Fatal().Msg("config not loaded")
	}
	return cfg
}

func setDefaults() {
	viper.SetDefault("relay.host", "0.0.0.0:8080")
	viper.SetDefault("relay.admin_host", "0.0.0.0:8081")

	viper.SetDefault("database.path", "./data/relay.db")

	viper.SetDefault("client.relays", []string{
		"wss://relay.damus.io",
		"wss://nos.lol",
	})
	viper.SetDefault("client.data_dir", defaultDataDir())
}

func defaultDataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "./data"
	}
	return filepath.Join(home, ".nostrd")
}
