package config

import (
	"errors"
	"fmt"

	"github.com/cxd309/tms-track/internal/track"
	"github.com/spf13/viper"
)

// FileName is the config file searched for in the config directory.
const FileName = "tms-track.cfg.json"

// SmoothingConfig holds turn smoothing settings applied when a route is built.
type SmoothingConfig struct {
	Subdivisions     int     `json:"subdivisions" mapstructure:"subdivisions"`
	TurnEpsilon      float64 `json:"turnEpsilon" mapstructure:"turnEpsilon"`
	BisectionSamples int     `json:"bisectionSamples" mapstructure:"bisectionSamples"`
}

// FollowerConfig holds track follower tunables.
type FollowerConfig struct {
	TeleportThreshold float64 `json:"teleportThreshold" mapstructure:"teleportThreshold"`
	MaxHandOffDepth   int     `json:"maxHandOffDepth" mapstructure:"maxHandOffDepth"`
}

// RecorderConfig holds run recording settings.
type RecorderConfig struct {
	SQLitePath string `json:"sqlitePath" mapstructure:"sqlitePath"`
	Snapshots  bool   `json:"snapshots" mapstructure:"snapshots"`
}

// Config is the typed view of the loaded configuration.
type Config struct {
	LogLevel  string          `json:"logLevel" mapstructure:"logLevel"`
	Smoothing SmoothingConfig `json:"smoothing" mapstructure:"smoothing"`
	Follower  FollowerConfig  `json:"follower" mapstructure:"follower"`
	Recorder  RecorderConfig  `json:"recorder" mapstructure:"recorder"`
}

func setDefaults() {
	defaults := track.DefaultOptions()

	viper.SetDefault("logLevel", "info")

	viper.SetDefault("smoothing.subdivisions", 0)
	viper.SetDefault("smoothing.turnEpsilon", defaults.TurnEpsilon)
	viper.SetDefault("smoothing.bisectionSamples", defaults.BisectionSamples)

	viper.SetDefault("follower.teleportThreshold", defaults.TeleportThreshold)
	viper.SetDefault("follower.maxHandOffDepth", defaults.MaxHandOffDepth)

	viper.SetDefault("recorder.sqlitePath", "")
	viper.SetDefault("recorder.snapshots", true)
}

// Load reads configuration from the JSON file in configDir and sets default values.
// A missing file leaves the defaults in place; an unreadable one is an error.
func Load(configDir string) error {
	setDefaults()

	viper.SetConfigName(FileName)
	viper.AddConfigPath(configDir)
	viper.SetConfigType("json")

	err := viper.ReadInConfig()
	if err != nil {
		var notFound viper.ConfigFileNotFoundError
		if errors.As(err, &notFound) {
			return nil
		}
		return fmt.Errorf("error reading config file: %v", err)
	}

	return nil
}

// Get returns the current configuration.
func Get() (Config, error) {
	var c Config
	if err := viper.Unmarshal(&c); err != nil {
		return Config{}, fmt.Errorf("decoding config: %w", err)
	}
	return c, nil
}

// TrackOptions returns the follower and smoothing tunables as track options.
func (c Config) TrackOptions() track.Options {
	return track.Options{
		TeleportThreshold: c.Follower.TeleportThreshold,
		MaxHandOffDepth:   c.Follower.MaxHandOffDepth,
		TurnEpsilon:       c.Smoothing.TurnEpsilon,
		BisectionSamples:  c.Smoothing.BisectionSamples,
	}
}

// GetString returns a string config value.
func GetString(key string) string {
	return viper.GetString(key)
}
