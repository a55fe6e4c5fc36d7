package config

import (
	"fmt"
	"time"
)

// MaxMinInterval caps the pacing interval.
const MaxMinInterval = time.Minute

// Validate checks cross-field rules.
func Validate(cfg *Config) error {
	if cfg == nil {
		return fmt.Errorf("config cannot be nil")
	}

	if err := validateBridge(&cfg.Bridge); err != nil {
		return fmt.Errorf("bridge validation failed: %w", err)
	}
	if err := validateTiming(&cfg.Timing); err != nil {
		return fmt.Errorf("timing validation failed: %w", err)
	}
	if err := validateChannels(cfg); err != nil {
		return fmt.Errorf("channel validation failed: %w", err)
	}
	if err := validateAuth(&cfg.Auth); err != nil {
		return fmt.Errorf("auth validation failed: %w", err)
	}
	if err := validateTelemetry(&cfg.Telemetry); err != nil {
		return fmt.Errorf("telemetry validation failed: %w", err)
	}
	return nil
}

func validateBridge(b *BridgeConfig) error {
	if b.Port == "" {
		return fmt.Errorf("port must be set")
	}
	if b.ControllerVersion != 1 && b.ControllerVersion != 2 {
		return fmt.Errorf("controller version must be 1 or 2, got %d", b.ControllerVersion)
	}
	if b.BaudRate <= 0 {
		return fmt.Errorf("baud rate must be positive, got %d", b.BaudRate)
	}
	if b.ReadTimeout < 0 {
		return fmt.Errorf("read timeout must be non-negative, got %v", b.ReadTimeout)
	}
	return nil
}

func validateTiming(t *TimingConfig) error {
	if t.MinInterval < 0 {
		return fmt.Errorf("min interval must be non-negative, got %v", t.MinInterval)
	}
	if t.MinInterval > MaxMinInterval {
		return fmt.Errorf("min interval %v exceeds %v", t.MinInterval, MaxMinInterval)
	}
	if t.ShutdownTimeout <= 0 {
		return fmt.Errorf("shutdown timeout must be positive, got %v", t.ShutdownTimeout)
	}
	if t.AwaitTimeout < 0 {
		return fmt.Errorf("await timeout must be non-negative, got %v", t.AwaitTimeout)
	}
	return nil
}

func validateChannels(cfg *Config) error {
	max := cfg.MaxChannel()
	for alias, n := range cfg.Channels {
		if alias == "" {
			return fmt.Errorf("empty channel alias")
		}
		if n < 1 || n > max {
			return fmt.Errorf("alias %q targets channel %d, controller v%d supports 1-%d",
				alias, n, cfg.Bridge.ControllerVersion, max)
		}
	}
	return nil
}

func validateAuth(a *AuthConfig) error {
	if !a.Enabled {
		return nil
	}
	switch a.Algorithm {
	case "HS256":
		if a.SecretKey == "" {
			return fmt.Errorf("HS256 requires secretKey")
		}
	case "RS256":
		if a.PublicKeyPEM == "" {
			return fmt.Errorf("RS256 requires publicKeyPem")
		}
	default:
		return fmt.Errorf("unsupported algorithm %q", a.Algorithm)
	}
	return nil
}

func validateTelemetry(t *TelemetryConfig) error {
	if t.EventBufferSize <= 0 {
		return fmt.Errorf("event buffer size must be positive, got %d", t.EventBufferSize)
	}
	if t.HeartbeatInterval <= 0 {
		return fmt.Errorf("heartbeat interval must be positive, got %v", t.HeartbeatInterval)
	}
	if t.HeartbeatJitter < 0 || t.HeartbeatJitter > t.HeartbeatInterval/2 {
		return fmt.Errorf("heartbeat jitter %v must be between 0 and 50%% of interval %v", t.HeartbeatJitter, t.HeartbeatInterval)
	}
	return nil
}
