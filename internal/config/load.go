package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v2"
)

// DefaultFile is read when no path is given and RTS_CONFIG is unset.
const DefaultFile = "rts.yaml"

// Load merges Defaults(), the YAML file and RTS_* overrides, then validates.
// path may be empty; then RTS_CONFIG, then DefaultFile (if present) is used.
func Load(path string) (*Config, error) {
	cfg := Defaults()

	explicit := true
	if path == "" {
		path = os.Getenv("RTS_CONFIG")
	}
	if path == "" {
		path = DefaultFile
		explicit = false
	}

	if err := loadFromFile(cfg, path); err != nil {
		if explicit || !os.IsNotExist(err) {
			return nil, fmt.Errorf("failed to load %s: %w", path, err)
		}
	}

	if err := applyEnvOverrides(cfg); err != nil {
		return nil, fmt.Errorf("failed to apply environment overrides: %w", err)
	}

	if err := Validate(cfg); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}
	return cfg, nil
}

func loadFromFile(cfg *Config, filename string) error {
	data, err := os.ReadFile(filename)
	if err != nil {
		return err
	}
	if err := yaml.UnmarshalStrict(data, cfg); err != nil {
		return fmt.Errorf("parse: %w", err)
	}
	return nil
}

// applyEnvOverrides applies RTS_* environment variables. Malformed values are
// errors rather than being silently ignored.
func applyEnvOverrides(cfg *Config) error {
	if val := os.Getenv("RTS_PORT"); val != "" {
		cfg.Bridge.Port = val
	}
	if err := envInt("RTS_CONTROLLER_VERSION", &cfg.Bridge.ControllerVersion); err != nil {
		return err
	}
	if err := envDuration("RTS_MIN_INTERVAL", &cfg.Timing.MinInterval); err != nil {
		return err
	}
	if err := envDuration("RTS_SHUTDOWN_TIMEOUT", &cfg.Timing.ShutdownTimeout); err != nil {
		return err
	}
	if err := envDuration("RTS_AWAIT_TIMEOUT", &cfg.Timing.AwaitTimeout); err != nil {
		return err
	}
	if val := os.Getenv("RTS_ADDR"); val != "" {
		cfg.Server.Addr = val
	}
	if val := os.Getenv("RTS_AUTH_SECRET"); val != "" {
		cfg.Auth.SecretKey = val
		cfg.Auth.Enabled = true
	}
	if val := os.Getenv("RTS_LOG_DIR"); val != "" {
		cfg.Log.Dir = val
	}
	if err := envInt("RTS_EVENT_BUFFER_SIZE", &cfg.Telemetry.EventBufferSize); err != nil {
		return err
	}
	if err := envDuration("RTS_HEARTBEAT_INTERVAL", &cfg.Telemetry.HeartbeatInterval); err != nil {
		return err
	}
	return nil
}

func envInt(key string, dst *int) error {
	val := os.Getenv(key)
	if val == "" {
		return nil
	}
	n, err := strconv.Atoi(val)
	if err != nil {
		return fmt.Errorf("%s: %w", key, err)
	}
	*dst = n
	return nil
}

// envDuration accepts Go durations ("1500ms") or bare seconds ("1.5").
func envDuration(key string, dst *time.Duration) error {
	val := os.Getenv(key)
	if val == "" {
		return nil
	}
	d, err := ParseDuration(val)
	if err != nil {
		return fmt.Errorf("%s: %w", key, err)
	}
	*dst = d
	return nil
}

// ParseDuration parses a Go duration, or a plain number as seconds.
func ParseDuration(s string) (time.Duration, error) {
	if secs, err := strconv.ParseFloat(s, 64); err == nil {
		return time.Duration(secs * float64(time.Second)), nil
	}
	return time.ParseDuration(s)
}
