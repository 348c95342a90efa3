package config

import (
	"fmt"
	"log/slog"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"
)

type Config struct {
	ServerUrl string  `koanf:"serverUrl"`
	Username  string  `koanf:"username"`
	Password  string  `koanf:"password"`
	CustomCa  string  `koanf:"customCa"`
	LogLevel  string  `koanf:"logLevel"`
	Volume    float64 `koanf:"volume"`
	Playlist  string  `koanf:"playlist"`
}

func defaults() Config {
	return Config{
		LogLevel: "info",
		Volume:   1,
	}
}

func Load(configPath string) (*Config, error) {
	var k = koanf.New(".")
	if err := k.Load(structs.Provider(defaults(), "koanf"), nil); err != nil {
		return nil, err
	}

	if err := k.Load(file.Provider(configPath), yaml.Parser()); err != nil {
		return nil, err
	}

	var config Config
	err := k.UnmarshalWithConf("", &config, koanf.UnmarshalConf{FlatPaths: true})
	if err != nil {
		return nil, err
	}

	return &config, nil
}

// SlogLevel maps the configured level name onto a slog level.
func (c *Config) SlogLevel() (slog.Level, error) {
	switch strings.ToLower(c.LogLevel) {
	case "debug":
		return slog.LevelDebug, nil
	case "", "info":
		return slog.LevelInfo, nil
	case "warn":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	}

	return slog.LevelInfo, fmt.Errorf("unknown log level '%s'", c.LogLevel)
}
