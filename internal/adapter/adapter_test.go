package adapter

import (
	"errors"
	"testing"
)

func TestParseAction(t *testing.T) {
	tests := []struct {
		in      string
		want    Action
		wantErr bool
	}{
		{"up", ActionUp, false},
		{"UP", ActionUp, false},
		{" u ", ActionUp, false},
		{"down", ActionDown, false},
		{"D", ActionDown, false},
		{"stop", ActionStop, false},
		{"s", ActionStop, false},
		{"my", 0, true},
		{"", 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseAction(tt.in)
			if tt.wantErr {
				if !errors.Is(err, ErrUnsupportedAction) {
					t.Errorf("ParseAction(%q) error = %v, want ErrUnsupportedAction", tt.in, err)
				}
				return
			}
			if err != nil {
				t.Fatalf("ParseAction(%q) error = %v", tt.in, err)
			}
			if got != tt.want {
				t.Errorf("ParseAction(%q) = %v, want %v", tt.in, got, tt.want)
			}
		})
	}
}

func TestActionText(t *testing.T) {
	for _, a := range []Action{ActionUp, ActionDown, ActionStop} {
		text, err := a.MarshalText()
		if err != nil {
			t.Fatalf("MarshalText(%v) error = %v", a, err)
		}
		var back Action
		if err := back.UnmarshalText(text); err != nil {
			t.Fatalf("UnmarshalText(%q) error = %v", text, err)
		}
		if back != a {
			t.Errorf("round trip %v -> %q -> %v", a, text, back)
		}
	}

	if _, err := Action('X').MarshalText(); !errors.Is(err, ErrUnsupportedAction) {
		t.Errorf("MarshalText('X') error = %v, want ErrUnsupportedAction", err)
	}
	if Action('X').Valid() {
		t.Error("Action('X').Valid() = true")
	}
}
