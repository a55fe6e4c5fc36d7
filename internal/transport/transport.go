// Package transport opens the physical link to the RTS bridge.
package transport

import (
	"fmt"
	"log"
	"time"

	"github.com/radio-control/rtsbridge/internal/adapter"
	"github.com/radio-control/rtsbridge/internal/adapter/fake"
)

// TestPortName opens an in-memory transport instead of a device.
const TestPortName = "TEST"

// Config holds serial port configuration.
type Config struct {
	// Device path (e.g. "/dev/ttyUSB0", "COM3") or TestPortName.
	Device string

	// Baud rate; URTSI ships at 9600.
	Baud int

	// ReadTimeout bounds blocking reads (0 = blocking).
	ReadTimeout time.Duration
}

// DefaultConfig returns the URTSI factory settings for device.
func DefaultConfig(device string) Config {
	return Config{
		Device:      device,
		Baud:        9600,
		ReadTimeout: time.Second,
	}
}

// Open returns a transport for cfg.Device. Failures wrap adapter.ErrPortUnavailable.
func Open(cfg Config) (adapter.Transport, error) {
	if cfg.Device == "" {
		return nil, fmt.Errorf("%w: no device configured", adapter.ErrPortUnavailable)
	}
	if cfg.Device == TestPortName {
		log.Printf("transport: using in-memory %s port", TestPortName)
		return fake.NewTransport(), nil
	}
	if cfg.Baud <= 0 {
		cfg.Baud = DefaultConfig(cfg.Device).Baud
	}
	return openSerial(cfg)
}
