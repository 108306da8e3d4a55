package config

import (
	"fmt"

	"github.com/spf13/viper"
)

type Config struct {
	Server ServerConfig `mapstructure:"server"`
	Store  StoreConfig  `mapstructure:"store"`
	Auth   AuthConfig   `mapstructure:"auth"`
	Log    LogConfig    `mapstructure:"log"`
}

type ServerConfig struct {
	Addr string `mapstructure:"addr"`
	Mode string `mapstructure:"mode"` // debug|release
}

type StoreConfig struct {
	Driver  string `mapstructure:"driver"` // memory|sqlite|postgres|mongo
	DSN     string `mapstructure:"dsn"`
	MongoDB string `mapstructure:"mongo_db"`
}

type AuthConfig struct {
	Secret      string `mapstructure:"secret"`
	TokenHours  int    `mapstructure:"token_hours"`
	EnableLogin bool   `mapstructure:"enable_login"`
}

type LogConfig struct {
	Level string `mapstructure:"level"`
	File  string `mapstructure:"file"`
}

// Load reads config.yaml from path (optional) with OPENCLASS_* env
// overrides. Defaults run offline against sqlite.
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetDefault("server.addr", ":8080")
	v.SetDefault("server.mode", "debug")
	v.SetDefault("store.driver", "sqlite")
	v.SetDefault("store.dsn", "")
	v.SetDefault("store.mongo_db", "openclass")
	v.SetDefault("auth.secret", "supersecret-dev-key")
	v.SetDefault("auth.token_hours", 8)
	v.SetDefault("auth.enable_login", true)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.file", "logs/app.log")

	v.SetEnvPrefix("OPENCLASS")
	v.AutomaticEnv()
	v.BindEnv("server.addr", "OPENCLASS_HTTP_ADDR")
	v.BindEnv("server.mode", "OPENCLASS_MODE")
	v.BindEnv("store.driver", "OPENCLASS_STORE_DRIVER")
	v.BindEnv("store.dsn", "OPENCLASS_STORE_DSN")
	v.BindEnv("store.mongo_db", "OPENCLASS_MONGO_DB")
	v.BindEnv("auth.secret", "OPENCLASS_AUTH_SECRET")
	v.BindEnv("log.level", "OPENCLASS_LOG_LEVEL")

	if path != "" {
		v.AddConfigPath(path)
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		if err := v.ReadInConfig(); err != nil {
			if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
				return nil, fmt.Errorf("read config: %w", err)
			}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	return &cfg, nil
}
