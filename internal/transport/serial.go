package transport

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"sync"

	"github.com/tarm/serial"

	"github.com/radio-control/rtsbridge/internal/adapter"
)

var errPortClosed = errors.New("serial port closed")

// SerialTransport writes frames to a serial device.
type SerialTransport struct {
	name string

	mu     sync.Mutex
	port   io.ReadWriteCloser
	closed bool
}

var _ adapter.Transport = (*SerialTransport)(nil)

func openSerial(cfg Config) (*SerialTransport, error) {
	port, err := serial.OpenPort(&serial.Config{
		Name:        cfg.Device,
		Baud:        cfg.Baud,
		ReadTimeout: cfg.ReadTimeout,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", adapter.ErrPortUnavailable, cfg.Device, err)
	}
	log.Printf("transport: opened %s at %d baud", cfg.Device, cfg.Baud)
	return newSerialTransport(cfg.Device, port), nil
}

func newSerialTransport(name string, port io.ReadWriteCloser) *SerialTransport {
	return &SerialTransport{name: name, port: port}
}

// Name returns the device path.
func (s *SerialTransport) Name() string { return s.name }

// Send writes data in full. The port's own write timeout bounds blocking;
// ctx is only checked before the write starts.
func (s *SerialTransport) Send(ctx context.Context, data []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return adapter.NormalizeTransportError(errPortClosed, s.name, data)
	}

	written := 0
	for written < len(data) {
		n, err := s.port.Write(data[written:])
		written += n
		if err != nil {
			return adapter.NormalizeTransportError(err, s.name, data)
		}
		if n == 0 {
			return adapter.NormalizeTransportError(io.ErrShortWrite, s.name, data)
		}
	}
	return nil
}

// Close releases the device. Calling it twice is harmless.
func (s *SerialTransport) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil
	}
	s.closed = true
	if err := s.port.Close(); err != nil {
		return fmt.Errorf("close %s: %w", s.name, err)
	}
	return nil
}
