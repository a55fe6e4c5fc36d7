// Package adaptertest provides a reusable conformance suite for command encoders.
//
// Every adapter.Encoder must map the three actions to stable frames, reject
// malformed identifiers at validation time, and report UNKNOWN_CHANNEL and
// UNSUPPORTED_ACTION from Encode.
package adaptertest

import (
	"bytes"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/radio-control/rtsbridge/internal/adapter"
)

// Capabilities describes what the encoder under test should accept.
type Capabilities struct {
	Name             string
	ValidChannels    []string
	UnknownChannels  []string
	MalformedChannel []string
	Golden           []GoldenFrame
}

// GoldenFrame pins the exact bytes expected for one command.
type GoldenFrame struct {
	Channel string
	Action  adapter.Action
	Want    []byte
}

// ConformanceResult represents the result of a conformance test.
type ConformanceResult struct {
	TestName string
	Passed   bool
	Error    string
	Duration time.Duration
	Details  map[string]interface{}
}

// ConformanceReport represents the complete conformance test report.
type ConformanceReport struct {
	EncoderName   string
	TotalTests    int
	PassedTests   int
	FailedTests   int
	Results       []ConformanceResult
	OverallPassed bool
	Duration      time.Duration
}

var actions = []adapter.Action{adapter.ActionUp, adapter.ActionDown, adapter.ActionStop}

// RunEncoderConformance runs the complete conformance suite against enc.
func RunEncoderConformance(t *testing.T, enc adapter.Encoder, caps Capabilities) *ConformanceReport {
	t.Helper()
	startTime := time.Now()

	name := caps.Name
	if name == "" {
		name = fmt.Sprintf("%T", enc)
	}
	report := &ConformanceReport{
		EncoderName:   name,
		Results:       []ConformanceResult{},
		OverallPassed: true,
	}

	runValidChannelTests(enc, caps, report)
	runGoldenTests(enc, caps, report)
	runUnknownChannelTests(enc, caps, report)
	runMalformedChannelTests(enc, caps, report)
	runUnsupportedActionTests(enc, caps, report)
	runDeterminismTests(enc, caps, report)

	report.Duration = time.Since(startTime)
	printConformanceReport(t, report)

	if !report.OverallPassed {
		t.Fatalf("Encoder conformance test failed: %d/%d tests passed", report.PassedTests, report.TotalTests)
	}
	return report
}

func runValidChannelTests(enc adapter.Encoder, caps Capabilities, report *ConformanceReport) {
	for _, ch := range caps.ValidChannels {
		for _, a := range actions {
			result := newResult(fmt.Sprintf("Encode_Valid_%s_%s", ch, a))
			start := time.Now()

			err := enc.ValidateChannel(ch)
			var frame []byte
			if err == nil {
				frame, err = enc.Encode(ch, a)
			}
			result.Duration = time.Since(start)

			switch {
			case err != nil:
				result.Error = fmt.Sprintf("Encode(%s, %s) failed: %v", ch, a, err)
			case len(frame) == 0:
				result.Error = fmt.Sprintf("Encode(%s, %s) returned empty frame", ch, a)
			case !bytes.ContainsRune(frame, rune(a)):
				result.Error = fmt.Sprintf("Encode(%s, %s) = %q does not carry action letter", ch, a, frame)
			default:
				result.Passed = true
				result.Details["frame"] = fmt.Sprintf("%q", frame)
			}
			report.addResult(result)
		}
	}
}

func runGoldenTests(enc adapter.Encoder, caps Capabilities, report *ConformanceReport) {
	for _, g := range caps.Golden {
		result := newResult(fmt.Sprintf("Golden_%s_%s", g.Channel, g.Action))
		start := time.Now()

		frame, err := enc.Encode(g.Channel, g.Action)
		result.Duration = time.Since(start)

		switch {
		case err != nil:
			result.Error = fmt.Sprintf("Encode failed: %v", err)
		case !bytes.Equal(frame, g.Want):
			result.Error = fmt.Sprintf("frame = %q, want %q", frame, g.Want)
		default:
			result.Passed = true
		}
		report.addResult(result)
	}
}

func runUnknownChannelTests(enc adapter.Encoder, caps Capabilities, report *ConformanceReport) {
	for _, ch := range caps.UnknownChannels {
		result := newResult(fmt.Sprintf("Encode_Unknown_%s", ch))
		start := time.Now()

		_, err := enc.Encode(ch, adapter.ActionUp)
		result.Duration = time.Since(start)

		if err == nil {
			result.Error = fmt.Sprintf("Encode(%s) should have failed but succeeded", ch)
		} else if !errors.Is(err, adapter.ErrUnknownChannel) {
			result.Error = fmt.Sprintf("Encode(%s) should return UNKNOWN_CHANNEL, got: %v", ch, err)
		} else {
			result.Passed = true
			result.Details["actualError"] = err.Error()
		}
		report.addResult(result)
	}
}

func runMalformedChannelTests(enc adapter.Encoder, caps Capabilities, report *ConformanceReport) {
	for _, ch := range caps.MalformedChannel {
		result := newResult(fmt.Sprintf("Validate_Malformed_%q", ch))
		start := time.Now()

		err := enc.ValidateChannel(ch)
		result.Duration = time.Since(start)

		if err == nil {
			result.Error = fmt.Sprintf("ValidateChannel(%q) should have failed but succeeded", ch)
		} else if !errors.Is(err, adapter.ErrInvalidChannel) {
			result.Error = fmt.Sprintf("ValidateChannel(%q) should return INVALID_CHANNEL, got: %v", ch, err)
		} else {
			result.Passed = true
		}
		report.addResult(result)
	}
}

func runUnsupportedActionTests(enc adapter.Encoder, caps Capabilities, report *ConformanceReport) {
	if len(caps.ValidChannels) == 0 {
		return
	}
	ch := caps.ValidChannels[0]

	for _, a := range []adapter.Action{0, 'X', 'u'} {
		result := newResult(fmt.Sprintf("Encode_UnsupportedAction_%d", byte(a)))
		start := time.Now()

		_, err := enc.Encode(ch, a)
		result.Duration = time.Since(start)

		if !errors.Is(err, adapter.ErrUnsupportedAction) {
			result.Error = fmt.Sprintf("Encode(%s, %d) should return UNSUPPORTED_ACTION, got: %v", ch, byte(a), err)
		} else {
			result.Passed = true
		}
		report.addResult(result)
	}
}

func runDeterminismTests(enc adapter.Encoder, caps Capabilities, report *ConformanceReport) {
	if len(caps.ValidChannels) == 0 {
		return
	}
	ch := caps.ValidChannels[len(caps.ValidChannels)-1]

	result := newResult("Determinism_RepeatedEncode")
	start := time.Now()

	first, err1 := enc.Encode(ch, adapter.ActionDown)
	second, err2 := enc.Encode(ch, adapter.ActionDown)
	result.Duration = time.Since(start)

	switch {
	case err1 != nil || err2 != nil:
		result.Error = fmt.Sprintf("Encode failed: %v / %v", err1, err2)
	case !bytes.Equal(first, second):
		result.Error = fmt.Sprintf("Encode not deterministic: %q vs %q", first, second)
	default:
		result.Passed = true
	}
	report.addResult(result)
}

func newResult(name string) ConformanceResult {
	return ConformanceResult{TestName: name, Details: make(map[string]interface{})}
}

func (r *ConformanceReport) addResult(result ConformanceResult) {
	r.TotalTests++
	if result.Passed {
		r.PassedTests++
	} else {
		r.FailedTests++
		r.OverallPassed = false
	}
	r.Results = append(r.Results, result)
}

func printConformanceReport(t *testing.T, report *ConformanceReport) {
	t.Logf("\n%s", strings.Repeat("=", 80))
	t.Logf("ENCODER CONFORMANCE REPORT")
	t.Logf("%s", strings.Repeat("=", 80))
	t.Logf("Encoder: %s", report.EncoderName)
	t.Logf("Passed: %d/%d (%s)", report.PassedTests, report.TotalTests,
		map[bool]string{true: "PASS", false: "FAIL"}[report.OverallPassed])
	t.Logf("%s", strings.Repeat("-", 80))

	for _, result := range report.Results {
		if result.Passed {
			continue
		}
		t.Logf("%-40s FAIL %s", result.TestName, result.Error)
	}
}
