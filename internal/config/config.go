package config

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Mode          string        `mapstructure:"mode"`
	Port          int           `mapstructure:"port"`
	Secret        string        `mapstructure:"secret"`
	RelayURL      string        `mapstructure:"relay_url"`
	SessionTTL    time.Duration `mapstructure:"session_ttl"`
	MaxPeers      int           `mapstructure:"max_peers"`
	SweepInterval time.Duration `mapstructure:"sweep_interval"`
	ReadLimit     int64         `mapstructure:"read_limit"`
	PingPeriod    time.Duration `mapstructure:"ping_period"`
	Storage       Storage       `mapstructure:"storage"`
}

type Storage struct {
	Backend string `mapstructure:"backend"` // memory | dynamodb
	Table   string `mapstructure:"table"`
}

func Load() (*Config, error) {
	v := viper.New()
	v.SetConfigType("yaml")

	env := os.Getenv("CONFIG_ENV")
	if env == "" {
		env = "dev"
	}
	fileName := fmt.Sprintf("config/config.%s.yaml", env)

	v.SetConfigFile(fileName)
	v.AddConfigPath(".")
	v.AddConfigPath("./config")

	v.SetDefault("mode", "release")
	v.SetDefault("port", 8080)
	v.SetDefault("relay_url", "ws://localhost:8080/api/v1/ws/signal")
	v.SetDefault("session_ttl", "5m")
	v.SetDefault("max_peers", 2)
	v.SetDefault("sweep_interval", "1m")
	v.SetDefault("read_limit", 65536)
	v.SetDefault("ping_period", "54s")
	v.SetDefault("storage.backend", "memory")
	v.SetDefault("storage.table", "AnyShareSessions")

	if err := v.ReadInConfig(); err != nil {
		fmt.Printf("⚠️ Config file not found (%s), using defaults\n", fileName)
	} else {
		fmt.Printf("✅ Loaded config: %s\n", fileName)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	if cfg.Secret == "" {
		cfg.Secret = os.Getenv("TOKEN_SECRET")
	}
	return &cfg, nil
}
