package config

import (
	"fmt"
	"os"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/viper"
)

type Config struct {
	RelayURL    string   `mapstructure:"relay_url"`
	DisplayName string   `mapstructure:"display_name"`
	ICEServers  []string `mapstructure:"ice_servers"`

	// CapturePath is an s16le mono PCM source ("-" for stdin), typically a
	// FIFO fed by the OS capture pipeline.
	CapturePath  string `mapstructure:"capture_path"`
	PlaybackPath string `mapstructure:"playback_path"`

	VADThreshold float64       `mapstructure:"vad_threshold"`
	VADInterval  time.Duration `mapstructure:"vad_interval"`
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

	v.SetDefault("relay_url", "ws://localhost:8080/api/ws/session")
	v.SetDefault("display_name", "guest")
	v.SetDefault("ice_servers", []string{"stun:stun.l.google.com:19302"})
	v.SetDefault("capture_path", "-")
	v.SetDefault("playback_path", os.DevNull)
	v.SetDefault("vad_threshold", 0.015)
	v.SetDefault("vad_interval", "80ms")

	if err := v.ReadInConfig(); err != nil {
		log.Warn().Str("module", "config").Str("file", fileName).Msg("config file not found, using defaults")
	} else {
		log.Info().Str("module", "config").Str("file", fileName).Msg("loaded config")
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	return &cfg, nil
}
