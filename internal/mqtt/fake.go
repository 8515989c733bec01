package mqtt

import (
	"time"

	"github.com/sweeney/roboat-helm/internal/fsm"
)

// LineEvent is a log line recorded by FakePublisher.
type LineEvent struct {
	Timestamp time.Time
	Machine   string
	Line      string
}

// FakePublisher records published telemetry for test assertions.
type FakePublisher struct {
	// Transitions contains every published transition.
	Transitions []fsm.Transition

	// Lines contains every published log line.
	Lines []LineEvent

	// SystemEvents contains all system events that were published.
	SystemEvents []SystemEvent

	// SystemPayloads contains the JSON payloads for system events.
	SystemPayloads [][]byte

	// PublishError, if set, will be returned by PublishTransition and PublishLine.
	PublishError error

	// PublishSystemError, if set, will be returned by PublishSystem.
	PublishSystemError error

	// Closed tracks if Close was called.
	Closed bool

	// Connected controls the return value of IsConnected.
	Connected bool
}

// NewFakePublisher creates a FakePublisher for testing.
func NewFakePublisher() *FakePublisher {
	return &FakePublisher{}
}

// PublishTransition records the transition.
func (f *FakePublisher) PublishTransition(ts time.Time, tr fsm.Transition) error {
	if f.PublishError != nil {
		return f.PublishError
	}
	f.Transitions = append(f.Transitions, tr)
	return nil
}

// PublishLine records the log line.
func (f *FakePublisher) PublishLine(ts time.Time, machine, line string) error {
	if f.PublishError != nil {
		return f.PublishError
	}
	f.Lines = append(f.Lines, LineEvent{Timestamp: ts, Machine: machine, Line: line})
	return nil
}

// PublishSystem records the system event.
func (f *FakePublisher) PublishSystem(event SystemEvent) error {
	if f.PublishSystemError != nil {
		return f.PublishSystemError
	}

	f.SystemEvents = append(f.SystemEvents, event)

	payload, err := FormatSystemPayload(event)
	if err != nil {
		return err
	}
	f.SystemPayloads = append(f.SystemPayloads, payload)

	return nil
}

// Close marks the publisher as closed.
func (f *FakePublisher) Close() error {
	f.Closed = true
	return nil
}

// IsConnected reports whether the fake publisher is "connected".
func (f *FakePublisher) IsConnected() bool {
	return f.Connected
}

// LinesFor returns the lines published for one machine.
func (f *FakePublisher) LinesFor(machine string) []string {
	var out []string
	for _, l := range f.Lines {
		if l.Machine == machine {
			out = append(out, l.Line)
		}
	}
	return out
}

// Reset clears recorded telemetry.
func (f *FakePublisher) Reset() {
	f.Transitions = nil
	f.Lines = nil
	f.SystemEvents = nil
	f.SystemPayloads = nil
	f.Closed = false
	f.PublishError = nil
	f.PublishSystemError = nil
	f.Connected = false
}
