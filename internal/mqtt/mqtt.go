// Package mqtt publishes helm telemetry: state transitions, periodic
// subsystem log lines and daemon lifecycle events.
package mqtt

import (
	"encoding/json"
	"strings"
	"time"

	"github.com/sweeney/roboat-helm/internal/fsm"
	"github.com/sweeney/roboat-helm/internal/logline"
)

// DefaultTopicPrefix is the root of every helm topic.
const DefaultTopicPrefix = "roboat/helm"

// Publisher publishes helm telemetry.
type Publisher interface {
	// PublishTransition sends a committed state change.
	// Returns error if publishing fails (should not crash the process).
	PublishTransition(ts time.Time, tr fsm.Transition) error

	// PublishLine sends one subsystem log line.
	PublishLine(ts time.Time, machine, line string) error

	// PublishSystem sends a daemon lifecycle event.
	PublishSystem(event SystemEvent) error

	// Close disconnects from the broker.
	Close() error
}

// ConnectionStatus reports whether the MQTT connection is active.
type ConnectionStatus interface {
	IsConnected() bool
}

// Topics builds topic names under a prefix.
type Topics struct {
	Prefix string
}

// System is the lifecycle event topic.
func (t Topics) System() string {
	return t.prefix() + "/system"
}

// State is the transition topic of a machine.
func (t Topics) State(machine string) string {
	return t.prefix() + "/" + strings.ToLower(machine) + "/state"
}

// Log is the log line topic of a machine.
func (t Topics) Log(machine string) string {
	return t.prefix() + "/" + strings.ToLower(machine) + "/log"
}

func (t Topics) prefix() string {
	if t.Prefix == "" {
		return DefaultTopicPrefix
	}
	return strings.TrimSuffix(t.Prefix, "/")
}

// SystemEvent represents a daemon lifecycle event (startup, shutdown, heartbeat).
type SystemEvent struct {
	Timestamp  time.Time
	Event      string // e.g., "STARTUP", "SHUTDOWN", "HEARTBEAT"
	Reason     string // e.g., "SIGTERM", "SIGINT" (shutdown only)
	RawPayload []byte // Pre-formatted JSON payload; if set, FormatSystemPayload returns it directly
	Retained   bool
}

// TransitionPayload is the JSON body of a state topic message.
type TransitionPayload struct {
	Transition TransitionInner `json:"transition"`
}

// TransitionInner contains the transition details.
type TransitionInner struct {
	Timestamp string `json:"timestamp"`
	Machine   string `json:"machine"`
	From      string `json:"from"`
	To        string `json:"to"`
	InStateMs int64  `json:"in_state_ms"`
	AtMicros  uint64 `json:"at_us"`
}

// FormatTransitionPayload creates the JSON payload for a transition.
func FormatTransitionPayload(ts time.Time, tr fsm.Transition) ([]byte, error) {
	return json.Marshal(TransitionPayload{
		Transition: TransitionInner{
			Timestamp: ts.UTC().Format(time.RFC3339),
			Machine:   tr.Machine,
			From:      tr.From,
			To:        tr.To,
			InStateMs: tr.InState.Milliseconds(),
			AtMicros:  uint64(tr.At),
		},
	})
}

// LinePayload is the JSON body of a log topic message.
type LinePayload struct {
	Log LineInner `json:"log"`
}

// LineInner carries the raw line and its decoded state and fields.
type LineInner struct {
	Timestamp string   `json:"timestamp"`
	Machine   string   `json:"machine"`
	State     string   `json:"state"`
	Fields    []string `json:"fields"`
	Line      string   `json:"line"`
}

// FormatLinePayload creates the JSON payload for a log line.
func FormatLinePayload(ts time.Time, machine, line string) ([]byte, error) {
	rec, err := logline.Parse(line)
	if err != nil {
		return nil, err
	}
	if rec.Fields == nil {
		rec.Fields = []string{}
	}
	return json.Marshal(LinePayload{
		Log: LineInner{
			Timestamp: ts.UTC().Format(time.RFC3339),
			Machine:   machine,
			State:     rec.State,
			Fields:    rec.Fields,
			Line:      line,
		},
	})
}

// SystemPayload represents the MQTT message payload for system events.
// Used for simple events (LWT, RECONNECTED) that don't carry a full status snapshot.
type SystemPayload struct {
	System SystemPayloadInner `json:"system"`
}

// SystemPayloadInner contains the system event details.
type SystemPayloadInner struct {
	Timestamp string `json:"timestamp"`
	Event     string `json:"event"`
	Reason    string `json:"reason,omitempty"`
}

// FormatSystemPayload creates the JSON payload for a system event.
// If event.RawPayload is set, it is returned directly (used for full status snapshots).
func FormatSystemPayload(event SystemEvent) ([]byte, error) {
	if event.RawPayload != nil {
		return event.RawPayload, nil
	}

	payload := SystemPayload{
		System: SystemPayloadInner{
			Timestamp: event.Timestamp.UTC().Format(time.RFC3339),
			Event:     event.Event,
			Reason:    event.Reason,
		},
	}
	return json.Marshal(payload)
}
