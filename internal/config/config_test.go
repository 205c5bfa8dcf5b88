package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// isolate points the home directory at an empty temp dir so a developer's own
// config never leaks into the test.
func isolate(t *testing.T) string {
	t.Helper()
	home := t.TempDir()
	t.Setenv("HOME", home)
	return home
}

func flags(t *testing.T, args ...string) *pflag.FlagSet {
	t.Helper()
	fs := pflag.NewFlagSet("test", pflag.ContinueOnError)
	RegisterFlags(fs)
	require.NoError(t, fs.Parse(args))
	return fs
}

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.toml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestLoad_Defaults(t *testing.T) {
	home := isolate(t)

	cfg, err := Load(nil)
	require.NoError(t, err)

	assert.Empty(t, cfg.File)
	assert.Equal(t, "PM5", cfg.Rower.NamePrefix)
	assert.Equal(t, 5*time.Minute, cfg.Workout.MaxPause)
	assert.InDelta(t, 60.0, cfg.Workout.SecondsPerMinute, 1e-9)
	assert.InDelta(t, 1000.0, cfg.Workout.MetersPerKilometer, 1e-9)
	assert.Equal(t, "pROWess", cfg.Shadow.ClientID)
	assert.Equal(t, "MyRower", cfg.Shadow.Thing)
	assert.Equal(t, filepath.Join(home, AppDirName, "programs.toml"), cfg.Workout.ProgramsFile)
	assert.False(t, cfg.Debug)
}

func TestLoad_DefaultFileInHome(t *testing.T) {
	home := isolate(t)
	dir := filepath.Join(home, AppDirName)
	require.NoError(t, os.MkdirAll(dir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, FileName), []byte("[rower]\naddress = \"AA:BB\"\n"), 0o644))

	cfg, err := Load(nil)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, FileName), cfg.File)
	assert.Equal(t, "AA:BB", cfg.Rower.Address)
}

func TestLoad_FileEnvAndFlags(t *testing.T) {
	isolate(t)
	path := writeConfig(t, `
debug = false

[workout]
max_pause = "2m"
programs_file = "/etc/rower/programs.toml"

[shadow]
enabled = true
broker = "ssl://iot.example.com:8883"
thing = "Garage"
qos = 0

[mock]
port = 9000
`)
	t.Setenv("SMART_ROWER_SHADOW_THING", "Basement")

	cfg, err := Load(flags(t, "--config", path, "--max-pause", "90s"))
	require.NoError(t, err)

	assert.Equal(t, path, cfg.File)
	assert.Equal(t, 90*time.Second, cfg.Workout.MaxPause, "flag beats file")
	assert.Equal(t, "/etc/rower/programs.toml", cfg.Workout.ProgramsFile)
	assert.True(t, cfg.Shadow.Enabled)
	assert.Equal(t, "ssl://iot.example.com:8883", cfg.Shadow.Broker)
	assert.Equal(t, "Basement", cfg.Shadow.Thing, "env beats file")
	assert.Zero(t, cfg.Shadow.QoS)
	assert.Equal(t, 9000, cfg.Mock.Port)
}

func TestLoad_UnsetFlagsKeepFileValues(t *testing.T) {
	isolate(t)
	path := writeConfig(t, "[mock]\nenabled = true\nport = 7000\n")

	cfg, err := Load(flags(t, "-c", path))
	require.NoError(t, err)
	assert.True(t, cfg.Mock.Enabled)
	assert.Equal(t, 7000, cfg.Mock.Port)
}

func TestLoad_DebugScale(t *testing.T) {
	isolate(t)

	cfg, err := Load(flags(t, "-d"))
	require.NoError(t, err)
	assert.True(t, cfg.Debug)
	assert.InDelta(t, 1.0, cfg.Workout.SecondsPerMinute, 1e-9)
	assert.InDelta(t, 10.0, cfg.Workout.MetersPerKilometer, 1e-9)
}

func TestLoad_Errors(t *testing.T) {
	isolate(t)

	_, err := Load(flags(t, "--config", filepath.Join(t.TempDir(), "missing.toml")))
	assert.ErrorContains(t, err, "failed to read config")

	_, err = Load(flags(t, "--config", writeConfig(t, "[workout\n")))
	assert.Error(t, err)

	_, err = Load(flags(t, "--config", writeConfig(t, "[shadow]\nqos = 3\n")))
	assert.EqualError(t, err, "shadow.qos must be 0, 1 or 2")
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{name: "max pause", mutate: func(c *Config) { c.Workout.MaxPause = 0 }, want: "workout.max_pause must be > 0"},
		{name: "seconds per minute", mutate: func(c *Config) { c.Workout.SecondsPerMinute = -1 }, want: "workout.seconds_per_minute must be > 0"},
		{name: "meters per km", mutate: func(c *Config) { c.Workout.MetersPerKilometer = 0 }, want: "workout.meters_per_kilometer must be > 0"},
		{name: "no rower selector", mutate: func(c *Config) { c.Rower.NamePrefix = "" }, want: "rower.name_prefix or rower.address must be set"},
		{name: "scan timeout", mutate: func(c *Config) { c.Rower.ScanTimeout = 0 }, want: "rower.scan_timeout must be > 0"},
		{name: "shadow broker", mutate: func(c *Config) { c.Shadow.Enabled = true; c.Shadow.Broker = "" }, want: "shadow.broker must not be empty"},
		{name: "shadow thing", mutate: func(c *Config) { c.Shadow.Enabled = true; c.Shadow.Thing = "" }, want: "shadow.thing must not be empty"},
		{name: "mock port", mutate: func(c *Config) { c.Mock.Enabled = true; c.Mock.Port = 0 }, want: "mock.port must be between 1 and 65535"},
		{name: "livefeed bind", mutate: func(c *Config) { c.LiveFeed.Enabled = true; c.LiveFeed.Bind = "" }, want: "livefeed.bind must not be empty"},
	}

	require.NoError(t, validate(Default()))
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(&cfg)
			assert.EqualError(t, validate(cfg), tt.want)
		})
	}
}
