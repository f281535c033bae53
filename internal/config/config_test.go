package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/cxd309/tms-track/internal/track"
	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_WithValidConfigFile(t *testing.T) {
	t.Cleanup(viper.Reset)

	dir := t.TempDir()
	cfg := `{
		"logLevel": "debug",
		"smoothing": { "subdivisions": 4, "turnEpsilon": 0.001 },
		"follower": { "maxHandOffDepth": 3 },
		"recorder": { "sqlitePath": "/tmp/run.db", "snapshots": false }
	}`
	require.NoError(t, os.WriteFile(filepath.Join(dir, FileName), []byte(cfg), 0644))

	err := Load(dir)
	require.NoError(t, err)

	assert.Equal(t, "debug", viper.GetString("logLevel"))
	assert.Equal(t, 4, viper.GetInt("smoothing.subdivisions"))
	assert.Equal(t, "/tmp/run.db", viper.GetString("recorder.sqlitePath"))

	c, err := Get()
	require.NoError(t, err)
	assert.Equal(t, "debug", c.LogLevel)
	assert.Equal(t, 4, c.Smoothing.Subdivisions)
	assert.Equal(t, 0.001, c.Smoothing.TurnEpsilon)
	assert.Equal(t, 1000, c.Smoothing.BisectionSamples)
	assert.Equal(t, 3, c.Follower.MaxHandOffDepth)
	assert.Equal(t, 10.0, c.Follower.TeleportThreshold)
	assert.False(t, c.Recorder.Snapshots)
}

func TestLoad_DefaultValues(t *testing.T) {
	t.Cleanup(viper.Reset)

	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, FileName), []byte(`{}`), 0644))

	err := Load(dir)
	require.NoError(t, err)

	assert.Equal(t, "info", viper.GetString("logLevel"))
	assert.Equal(t, 0, viper.GetInt("smoothing.subdivisions"))
	assert.Equal(t, 1e-4, viper.GetFloat64("smoothing.turnEpsilon"))
	assert.Equal(t, 1000, viper.GetInt("smoothing.bisectionSamples"))
	assert.Equal(t, 10.0, viper.GetFloat64("follower.teleportThreshold"))
	assert.Equal(t, 8, viper.GetInt("follower.maxHandOffDepth"))
	assert.Equal(t, "", viper.GetString("recorder.sqlitePath"))
	assert.Equal(t, true, viper.GetBool("recorder.snapshots"))
}

func TestLoad_MissingFileUsesDefaults(t *testing.T) {
	t.Cleanup(viper.Reset)

	err := Load(t.TempDir())
	require.NoError(t, err)

	c, err := Get()
	require.NoError(t, err)
	assert.Equal(t, track.DefaultOptions(), c.TrackOptions())
	assert.True(t, c.Recorder.Snapshots)
}

func TestLoad_MalformedFile(t *testing.T) {
	t.Cleanup(viper.Reset)

	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, FileName), []byte(`{"logLevel": `), 0644))

	err := Load(dir)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "error reading config file")
}

func TestTrackOptions(t *testing.T) {
	c := Config{
		Smoothing: SmoothingConfig{TurnEpsilon: 0.01, BisectionSamples: 50},
		Follower:  FollowerConfig{TeleportThreshold: 25, MaxHandOffDepth: 2},
	}
	assert.Equal(t, track.Options{
		TeleportThreshold: 25,
		MaxHandOffDepth:   2,
		TurnEpsilon:       0.01,
		BisectionSamples:  50,
	}, c.TrackOptions())
}

func TestGetString(t *testing.T) {
	t.Cleanup(viper.Reset)

	require.NoError(t, Load(t.TempDir()))
	assert.Equal(t, "info", GetString("logLevel"))

	viper.Set("logLevel", "warn")
	assert.Equal(t, "warn", GetString("logLevel"))
}
