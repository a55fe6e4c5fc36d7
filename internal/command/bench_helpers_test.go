package command

import (
	"testing"

	"github.com/radio-control/rtsbridge/internal/adapter/fake"
	"github.com/radio-control/rtsbridge/internal/adapter/somfy"
)

func newBenchTransport() *fake.Transport { return fake.NewTransport() }

func newBenchEncoder(b *testing.B) *somfy.Encoder {
	b.Helper()
	enc, err := somfy.NewEncoder(somfy.V2)
	if err != nil {
		b.Fatalf("NewEncoder failed: %v", err)
	}
	return enc
}
