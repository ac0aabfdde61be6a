// Package config handles runtime settings for the dropzone server:
// defaults, command-line flags and DROPZONE_* environment overrides.
package config

import (
	"errors"
	"fmt"
	"math"
	"net"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// Config holds runtime settings.
//
// Fields:
//   - Port: TCP port the HTTP server listens on.
//   - StorageDir: directory uploads are written to and served from.
//   - MaxUploadSize: hard per-file byte ceiling.
//   - DebounceInterval: quiet period before a burst of directory events is pushed.
//   - HeartbeatInterval: keepalive period for event-stream and websocket subscribers.
//   - FanoutWorkers: maximum concurrent deliveries during a broadcast.
type Config struct {
	Port              string
	StorageDir        string
	MaxUploadSize     int64
	DebounceInterval  time.Duration
	HeartbeatInterval time.Duration
	FanoutWorkers     int
	LogLevel          string
	LogFormat         string
}

// LoadDefaults populates Config with the built-in defaults.
func (c *Config) LoadDefaults() {
	size, _ := humanize.ParseBytes(DefaultMaxUploadSize)

	c.Port = DefaultPort
	c.StorageDir = DefaultStorageDir
	c.MaxUploadSize = int64(size)
	c.DebounceInterval = DefaultDebounceInterval
	c.HeartbeatInterval = DefaultHeartbeatInterval
	c.FanoutWorkers = DefaultFanoutWorkers
	c.LogLevel = DefaultLogLevel
	c.LogFormat = DefaultLogFormat
}

// Addr returns the listen address for the HTTP server.
func (c *Config) Addr() string {
	return net.JoinHostPort("", c.Port)
}

// Validate rejects settings the server cannot run with.
func (c *Config) Validate() error {
	var errs []error
	if strings.TrimSpace(c.Port) == "" {
		errs = append(errs, errors.New("port is required"))
	}
	if strings.TrimSpace(c.StorageDir) == "" {
		errs = append(errs, errors.New("storage dir is required"))
	}
	if c.MaxUploadSize <= 0 {
		errs = append(errs, errors.New("max upload size must be positive"))
	}
	if c.DebounceInterval < 0 {
		errs = append(errs, errors.New("debounce must not be negative"))
	}
	if c.HeartbeatInterval <= 0 {
		errs = append(errs, errors.New("heartbeat must be positive"))
	}
	if c.FanoutWorkers <= 0 {
		errs = append(errs, errors.New("fanout workers must be positive"))
	}
	return errors.Join(errs...)
}

// BindFlags registers the server flags on cmd and binds them into v.
func BindFlags(cmd *cobra.Command, v *viper.Viper) error {
	var d Config
	d.LoadDefaults()

	flags := cmd.Flags()
	flags.StringP(KeyPort, "p", d.Port, "port to listen on")
	flags.StringP(KeyStorageDir, "d", d.StorageDir, "directory uploads are stored in")
	flags.String(KeyMaxUploadSize, DefaultMaxUploadSize, "maximum size of a single uploaded file (e.g. 500MB, 16GiB)")
	flags.Duration(KeyDebounce, d.DebounceInterval, "quiet period before directory changes are pushed")
	flags.Duration(KeyHeartbeat, d.HeartbeatInterval, "keepalive interval for live subscribers")
	flags.Int(KeyFanoutWorkers, d.FanoutWorkers, "maximum concurrent subscriber deliveries")
	flags.String(KeyLogLevel, d.LogLevel, "log level (debug, info, warn, error)")
	flags.String(KeyLogFormat, d.LogFormat, "log format (text, json)")

	for _, key := range []string{
		KeyPort, KeyStorageDir, KeyMaxUploadSize, KeyDebounce,
		KeyHeartbeat, KeyFanoutWorkers, KeyLogLevel, KeyLogFormat,
	} {
		if err := v.BindPFlag(key, flags.Lookup(key)); err != nil {
			return fmt.Errorf("bind flag %s: %w", key, err)
		}
	}
	return nil
}

// Load builds a Config from defaults overlaid with whatever v resolves
// from bound flags and the environment.
func Load(v *viper.Viper) (*Config, error) {
	cfg := &Config{}
	cfg.LoadDefaults()

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	v.SetDefault(KeyPort, cfg.Port)
	v.SetDefault(KeyStorageDir, cfg.StorageDir)
	v.SetDefault(KeyMaxUploadSize, DefaultMaxUploadSize)
	v.SetDefault(KeyDebounce, cfg.DebounceInterval)
	v.SetDefault(KeyHeartbeat, cfg.HeartbeatInterval)
	v.SetDefault(KeyFanoutWorkers, cfg.FanoutWorkers)
	v.SetDefault(KeyLogLevel, cfg.LogLevel)
	v.SetDefault(KeyLogFormat, cfg.LogFormat)

	size, err := ParseSize(v.GetString(KeyMaxUploadSize))
	if err != nil {
		return nil, err
	}

	cfg.Port = v.GetString(KeyPort)
	cfg.StorageDir = v.GetString(KeyStorageDir)
	cfg.MaxUploadSize = size
	cfg.DebounceInterval = v.GetDuration(KeyDebounce)
	cfg.HeartbeatInterval = v.GetDuration(KeyHeartbeat)
	cfg.FanoutWorkers = v.GetInt(KeyFanoutWorkers)
	cfg.LogLevel = v.GetString(KeyLogLevel)
	cfg.LogFormat = v.GetString(KeyLogFormat)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// ParseSize parses a humanized byte size such as "500MB" or "16GiB".
func ParseSize(s string) (int64, error) {
	n, err := humanize.ParseBytes(strings.TrimSpace(s))
	if err != nil {
		return 0, fmt.Errorf("invalid size %q: %w", s, err)
	}
	if n > math.MaxInt64 {
		return 0, fmt.Errorf("size %q is too large", s)
	}
	return int64(n), nil
}
