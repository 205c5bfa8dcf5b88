// Package config loads the smart-rower configuration. Values come from, in
// increasing priority: built-in defaults, the TOML file
// (~/.smart-rower/config.toml unless --config says otherwise), SMART_ROWER_*
// environment variables and command line flags.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

const (
	AppDirName = ".smart-rower"
	FileName   = "config.toml"
	EnvPrefix  = "SMART_ROWER"
)

type Config struct {
	Log      LogConfig      `mapstructure:"log"`
	Rower    RowerConfig    `mapstructure:"rower"`
	Workout  WorkoutConfig  `mapstructure:"workout"`
	Shadow   ShadowConfig   `mapstructure:"shadow"`
	LiveFeed LiveFeedConfig `mapstructure:"livefeed"`
	Mock     MockConfig     `mapstructure:"mock"`
	Debug    bool           `mapstructure:"debug"`

	// File is the config file that was read, empty when none was found.
	File string `mapstructure:"-"`
}

type LogConfig struct {
	File       string `mapstructure:"file"`
	MaxSizeMB  int    `mapstructure:"max_size_mb"`
	MaxBackups int    `mapstructure:"max_backups"`
	MaxAgeDays int    `mapstructure:"max_age_days"`
}

type RowerConfig struct {
	NamePrefix     string        `mapstructure:"name_prefix"`
	Address        string        `mapstructure:"address"`
	ScanTimeout    time.Duration `mapstructure:"scan_timeout"`
	ConnectTimeout time.Duration `mapstructure:"connect_timeout"`
}

type WorkoutConfig struct {
	MaxPause           time.Duration `mapstructure:"max_pause"`
	SecondsPerMinute   float64       `mapstructure:"seconds_per_minute"`
	MetersPerKilometer float64       `mapstructure:"meters_per_kilometer"`
	IdleScreenOff      time.Duration `mapstructure:"idle_screen_off"`
	ProgramsFile       string        `mapstructure:"programs_file"`
}

type ShadowConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	Broker   string `mapstructure:"broker"`
	ClientID string `mapstructure:"client_id"`
	Thing    string `mapstructure:"thing"`
	CAFile   string `mapstructure:"ca_file"`
	CertFile string `mapstructure:"cert_file"`
	KeyFile  string `mapstructure:"key_file"`
	QoS      int    `mapstructure:"qos"`
}

type LiveFeedConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Bind    string `mapstructure:"bind"`
}

type MockConfig struct {
	Enabled bool `mapstructure:"enabled"`
	Port    int  `mapstructure:"port"`
}

// Dir returns ~/.smart-rower, falling back to the working directory when the
// home directory is unknown.
func Dir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return AppDirName
	}
	return filepath.Join(home, AppDirName)
}

func Default() Config {
	dir := Dir()
	return Config{
		Log: LogConfig{
			File:       filepath.Join(dir, "smart-rower.log"),
			MaxSizeMB:  10,
			MaxBackups: 3,
			MaxAgeDays: 28,
		},
		Rower: RowerConfig{
			NamePrefix:     "PM5",
			ScanTimeout:    30 * time.Second,
			ConnectTimeout: 15 * time.Second,
		},
		Workout: WorkoutConfig{
			MaxPause:           5 * time.Minute,
			SecondsPerMinute:   60,
			MetersPerKilometer: 1000,
			IdleScreenOff:      10 * time.Minute,
			ProgramsFile:       filepath.Join(dir, "programs.toml"),
		},
		Shadow: ShadowConfig{
			Enabled:  false,
			Broker:   "ssl://localhost:8883",
			ClientID: "pROWess",
			Thing:    "MyRower",
			QoS:      1,
		},
		LiveFeed: LiveFeedConfig{
			Enabled: false,
			Bind:    "127.0.0.1:8090",
		},
		Mock: MockConfig{
			Enabled: false,
			Port:    8089,
		},
	}
}

func setDefaults(v *viper.Viper, d Config) {
	v.SetDefault("log.file", d.Log.File)
	v.SetDefault("log.max_size_mb", d.Log.MaxSizeMB)
	v.SetDefault("log.max_backups", d.Log.MaxBackups)
	v.SetDefault("log.max_age_days", d.Log.MaxAgeDays)

	v.SetDefault("rower.name_prefix", d.Rower.NamePrefix)
	v.SetDefault("rower.address", d.Rower.Address)
	v.SetDefault("rower.scan_timeout", d.Rower.ScanTimeout)
	v.SetDefault("rower.connect_timeout", d.Rower.ConnectTimeout)

	v.SetDefault("workout.max_pause", d.Workout.MaxPause)
	v.SetDefault("workout.seconds_per_minute", d.Workout.SecondsPerMinute)
	v.SetDefault("workout.meters_per_kilometer", d.Workout.MetersPerKilometer)
	v.SetDefault("workout.idle_screen_off", d.Workout.IdleScreenOff)
	v.SetDefault("workout.programs_file", d.Workout.ProgramsFile)

	v.SetDefault("shadow.enabled", d.Shadow.Enabled)
	v.SetDefault("shadow.broker", d.Shadow.Broker)
	v.SetDefault("shadow.client_id", d.Shadow.ClientID)
	v.SetDefault("shadow.thing", d.Shadow.Thing)
	v.SetDefault("shadow.ca_file", d.Shadow.CAFile)
	v.SetDefault("shadow.cert_file", d.Shadow.CertFile)
	v.SetDefault("shadow.key_file", d.Shadow.KeyFile)
	v.SetDefault("shadow.qos", d.Shadow.QoS)

	v.SetDefault("livefeed.enabled", d.LiveFeed.Enabled)
	v.SetDefault("livefeed.bind", d.LiveFeed.Bind)

	v.SetDefault("mock.enabled", d.Mock.Enabled)
	v.SetDefault("mock.port", d.Mock.Port)

	v.SetDefault("debug", d.Debug)
}

// flagKeys maps command line flags onto config keys.
var flagKeys = map[string]string{
	"debug":         "debug",
	"mock":          "mock.enabled",
	"mock-port":     "mock.port",
	"rower-address": "rower.address",
	"max-pause":     "workout.max_pause",
	"programs":      "workout.programs_file",
	"shadow":        "shadow.enabled",
	"livefeed":      "livefeed.enabled",
	"livefeed-bind": "livefeed.bind",
	"log-file":      "log.file",
}

// RegisterFlags adds the flags Load understands to fs.
func RegisterFlags(fs *pflag.FlagSet) {
	d := Default()
	fs.StringP("config", "c", "", "Path to config TOML (default ~/"+AppDirName+"/"+FileName+")")
	fs.BoolP("debug", "d", false, "Debug timescale: one second per minute, ten meters per kilometer")
	fs.Bool("mock", d.Mock.Enabled, "Use a simulated PM5 instead of Bluetooth")
	fs.Int("mock-port", d.Mock.Port, "HTTP port of the simulated PM5 control page")
	fs.String("rower-address", d.Rower.Address, "Bluetooth address of the PM5 to connect to")
	fs.Duration("max-pause", d.Workout.MaxPause, "How long a pause may last before the workout ends")
	fs.String("programs", d.Workout.ProgramsFile, "Workout programs TOML file")
	fs.Bool("shadow", d.Shadow.Enabled, "Take workout requests from the cloud shadow")
	fs.Bool("livefeed", d.LiveFeed.Enabled, "Serve the live WebSocket feed")
	fs.String("livefeed-bind", d.LiveFeed.Bind, "Live feed HTTP bind address")
	fs.String("log-file", d.Log.File, "Log file path")
}

// Load builds the configuration. fs may be nil; flags that were not set on
// the command line do not override the file or environment.
func Load(fs *pflag.FlagSet) (Config, error) {
	v := viper.New()
	setDefaults(v, Default())

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	path := ""
	explicit := false
	if fs != nil {
		if f := fs.Lookup("config"); f != nil && f.Value.String() != "" {
			path = f.Value.String()
			explicit = true
		}
		for name, key := range flagKeys {
			if f := fs.Lookup(name); f != nil && f.Changed {
				if err := v.BindPFlag(key, f); err != nil {
					return Config{}, fmt.Errorf("failed to bind flag %s: %w", name, err)
				}
			}
		}
	}
	if path == "" {
		path = filepath.Join(Dir(), FileName)
	}

	file := ""
	v.SetConfigFile(path)
	v.SetConfigType("toml")
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		switch {
		case explicit:
			return Config{}, fmt.Errorf("failed to read config %s: %w", path, err)
		case errors.As(err, &notFound) || os.IsNotExist(err) || errors.Is(err, os.ErrNotExist):
		default:
			return Config{}, fmt.Errorf("failed to read config %s: %w", path, err)
		}
	} else {
		file = path
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("failed to decode config: %w", err)
	}
	cfg.File = file

	if cfg.Debug {
		cfg.Workout.SecondsPerMinute = 1
		cfg.Workout.MetersPerKilometer = 10
	}

	if err := validate(cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func validate(cfg Config) error {
	if cfg.Workout.MaxPause <= 0 {
		return errors.New("workout.max_pause must be > 0")
	}
	if cfg.Workout.SecondsPerMinute <= 0 {
		return errors.New("workout.seconds_per_minute must be > 0")
	}
	if cfg.Workout.MetersPerKilometer <= 0 {
		return errors.New("workout.meters_per_kilometer must be > 0")
	}
	if cfg.Rower.NamePrefix == "" && cfg.Rower.Address == "" {
		return errors.New("rower.name_prefix or rower.address must be set")
	}
	if cfg.Rower.ScanTimeout <= 0 {
		return errors.New("rower.scan_timeout must be > 0")
	}
	if cfg.Shadow.QoS < 0 || cfg.Shadow.QoS > 2 {
		return errors.New("shadow.qos must be 0, 1 or 2")
	}
	if cfg.Shadow.Enabled {
		if cfg.Shadow.Broker == "" {
			return errors.New("shadow.broker must not be empty")
		}
		if cfg.Shadow.Thing == "" {
			return errors.New("shadow.thing must not be empty")
		}
	}
	if cfg.Mock.Enabled && (cfg.Mock.Port <= 0 || cfg.Mock.Port > 65535) {
		return errors.New("mock.port must be between 1 and 65535")
	}
	if cfg.LiveFeed.Enabled && cfg.LiveFeed.Bind == "" {
		return errors.New("livefeed.bind must not be empty")
	}
	return nil
}
