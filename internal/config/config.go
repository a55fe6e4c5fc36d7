package config

import "time"

// Config is the complete runtime configuration.
type Config struct {
	Bridge    BridgeConfig    `yaml:"bridge"`
	Timing    TimingConfig    `yaml:"timing"`
	Channels  map[string]int  `yaml:"channels"`
	Server    ServerConfig    `yaml:"server"`
	Auth      AuthConfig      `yaml:"auth"`
	Telemetry TelemetryConfig `yaml:"telemetry"`
	Log       LogConfig       `yaml:"log"`
}

// BridgeConfig describes the serial link to the URTSI.
type BridgeConfig struct {
	Port              string        `yaml:"port"`
	ControllerVersion int           `yaml:"controllerVersion"`
	BaudRate          int           `yaml:"baudRate"`
	ReadTimeout       time.Duration `yaml:"readTimeout"`
}

// TimingConfig holds pacing and shutdown timing.
type TimingConfig struct {
	MinInterval     time.Duration `yaml:"minInterval"`
	ShutdownTimeout time.Duration `yaml:"shutdownTimeout"`
	AwaitTimeout    time.Duration `yaml:"awaitTimeout"`
}

// ServerConfig configures the daemon's HTTP listener.
type ServerConfig struct {
	Addr         string        `yaml:"addr"`
	ReadTimeout  time.Duration `yaml:"readTimeout"`
	WriteTimeout time.Duration `yaml:"writeTimeout"`
	IdleTimeout  time.Duration `yaml:"idleTimeout"`
}

// AuthConfig configures bearer token verification.
type AuthConfig struct {
	Enabled      bool   `yaml:"enabled"`
	Algorithm    string `yaml:"algorithm"`
	SecretKey    string `yaml:"secretKey"`
	PublicKeyPEM string `yaml:"publicKeyPem"`
}

// TelemetryConfig sizes the SSE hub.
type TelemetryConfig struct {
	EventBufferSize   int           `yaml:"eventBufferSize"`
	HeartbeatInterval time.Duration `yaml:"heartbeatInterval"`
	HeartbeatJitter   time.Duration `yaml:"heartbeatJitter"`
}

// LogConfig controls operational and audit log files. An empty Dir logs to
// stderr only and disables the audit file.
type LogConfig struct {
	Dir        string `yaml:"dir"`
	MaxSizeMB  int    `yaml:"maxSizeMb"`
	MaxBackups int    `yaml:"maxBackups"`
	MaxAgeDays int    `yaml:"maxAgeDays"`
}

// Defaults returns the baseline configuration: the TEST port, URTSI v1 and
// the controller's documented 1.5s spacing.
func Defaults() *Config {
	return &Config{
		Bridge: BridgeConfig{
			Port:              "TEST",
			ControllerVersion: 1,
			BaudRate:          9600,
			ReadTimeout:       time.Second,
		},
		Timing: TimingConfig{
			MinInterval:     1500 * time.Millisecond,
			ShutdownTimeout: 10 * time.Second,
			AwaitTimeout:    30 * time.Second,
		},
		Channels: map[string]int{},
		Server: ServerConfig{
			Addr:         ":8080",
			ReadTimeout:  30 * time.Second,
			WriteTimeout: 60 * time.Second,
			IdleTimeout:  120 * time.Second,
		},
		Auth: AuthConfig{
			Algorithm: "HS256",
		},
		Telemetry: TelemetryConfig{
			EventBufferSize:   50,
			HeartbeatInterval: 15 * time.Second,
			HeartbeatJitter:   2 * time.Second,
		},
		Log: LogConfig{
			MaxSizeMB:  10,
			MaxBackups: 5,
			MaxAgeDays: 28,
		},
	}
}

// MaxChannel returns the highest channel the configured controller addresses.
func (c *Config) MaxChannel() int {
	if c.Bridge.ControllerVersion == 2 {
		return 16
	}
	return 5
}
