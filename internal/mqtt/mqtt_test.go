package mqtt

import (
	"encoding/json"
	"errors"
	"testing"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"

	"github.com/sweeney/roboat-helm/internal/fsm"
)

var ts = time.Date(2026, 2, 10, 8, 30, 0, 0, time.UTC)

func TestTopics(t *testing.T) {
	var tp Topics
	if tp.System() != "roboat/helm/system" {
		t.Errorf("System: got %q", tp.System())
	}
	if tp.State("AHRS") != "roboat/helm/ahrs/state" {
		t.Errorf("State: got %q", tp.State("AHRS"))
	}
	tp = Topics{Prefix: "boats/alpha/"}
	if tp.Log("Captain") != "boats/alpha/captain/log" {
		t.Errorf("Log: got %q", tp.Log("Captain"))
	}
}

func TestFormatTransitionPayloadExactJSON(t *testing.T) {
	tr := fsm.Transition{Machine: "GPS", From: "SEARCHING", To: "RUNNING", InState: 1500 * time.Millisecond, At: 2_000_000}

	payload, err := FormatTransitionPayload(ts, tr)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	expected := `{"transition":{"timestamp":"2026-02-10T08:30:00Z","machine":"GPS","from":"SEARCHING","to":"RUNNING","in_state_ms":1500,"at_us":2000000}}`
	if string(payload) != expected {
		t.Errorf("unexpected payload:\ngot:  %s\nwant: %s", payload, expected)
	}
}

func TestFormatLinePayload(t *testing.T) {
	payload, err := FormatLinePayload(ts, "Power", "CHARGING,7.40,500.0,3.700")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	var parsed LinePayload
	if err := json.Unmarshal(payload, &parsed); err != nil {
		t.Fatalf("invalid JSON: %v", err)
	}
	if parsed.Log.State != "CHARGING" || len(parsed.Log.Fields) != 3 || parsed.Log.Fields[2] != "3.700" {
		t.Errorf("got %+v", parsed.Log)
	}
	if parsed.Log.Machine != "Power" || parsed.Log.Line != "CHARGING,7.40,500.0,3.700" {
		t.Errorf("got %+v", parsed.Log)
	}
}

func TestFormatLinePayloadStateOnly(t *testing.T) {
	payload, err := FormatLinePayload(ts, "Captain", "ONDECK")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	expected := `{"log":{"timestamp":"2026-02-10T08:30:00Z","machine":"Captain","state":"ONDECK","fields":[],"line":"ONDECK"}}`
	if string(payload) != expected {
		t.Errorf("unexpected payload:\ngot:  %s\nwant: %s", payload, expected)
	}
}

func TestFormatLinePayloadRejectsEmpty(t *testing.T) {
	if _, err := FormatLinePayload(ts, "GPS", ""); err == nil {
		t.Error("expected an error for an empty line")
	}
}

func TestWillPayloadFormat(t *testing.T) {
	payload, err := FormatSystemPayload(SystemEvent{Timestamp: ts, Event: "SHUTDOWN", Reason: "MQTT_DISCONNECT"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	expected := `{"system":{"timestamp":"2026-02-10T08:30:00Z","event":"SHUTDOWN","reason":"MQTT_DISCONNECT"}}`
	if string(payload) != expected {
		t.Errorf("unexpected payload:\ngot:  %s\nwant: %s", payload, expected)
	}
}

func TestFormatSystemPayloadRaw(t *testing.T) {
	raw := []byte(`{"status":{}}`)
	payload, err := FormatSystemPayload(SystemEvent{Event: "HEARTBEAT", RawPayload: raw})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if string(payload) != string(raw) {
		t.Errorf("raw payload not passed through: %s", payload)
	}
}

func TestFormatSystemPayloadOmitsEmptyReason(t *testing.T) {
	payload, _ := FormatSystemPayload(SystemEvent{Timestamp: ts, Event: "STARTUP"})
	expected := `{"system":{"timestamp":"2026-02-10T08:30:00Z","event":"STARTUP"}}`
	if string(payload) != expected {
		t.Errorf("unexpected payload:\ngot:  %s\nwant: %s", payload, expected)
	}
}

func TestFakePublisher(t *testing.T) {
	f := NewFakePublisher()
	f.PublishTransition(ts, fsm.Transition{Machine: "AHRS", From: "STARTUP", To: "DISABLED"})
	f.PublishLine(ts, "GPS", "SEARCHING,0,0,0,4294967295")
	f.PublishLine(ts, "Log", "READY,1024")
	f.PublishSystem(SystemEvent{Timestamp: ts, Event: "STARTUP"})

	if len(f.Transitions) != 1 || f.Transitions[0].To != "DISABLED" {
		t.Errorf("transitions: %+v", f.Transitions)
	}
	if got := f.LinesFor("GPS"); len(got) != 1 || got[0] != "SEARCHING,0,0,0,4294967295" {
		t.Errorf("GPS lines: %v", got)
	}
	if len(f.SystemPayloads) != 1 {
		t.Errorf("system payloads: %d", len(f.SystemPayloads))
	}

	f.Reset()
	if len(f.Transitions) != 0 || len(f.Lines) != 0 || len(f.SystemEvents) != 0 {
		t.Error("Reset left recorded telemetry")
	}
}

func TestFakePublisherErrors(t *testing.T) {
	f := NewFakePublisher()
	f.PublishError = errors.New("broker down")
	f.PublishSystemError = errors.New("broker down")

	if err := f.PublishTransition(ts, fsm.Transition{}); err == nil {
		t.Error("expected transition error")
	}
	if err := f.PublishLine(ts, "GPS", "RUNNING"); err == nil {
		t.Error("expected line error")
	}
	if err := f.PublishSystem(SystemEvent{}); err == nil {
		t.Error("expected system error")
	}
	if len(f.Transitions)+len(f.Lines)+len(f.SystemEvents) != 0 {
		t.Error("failed publishes should not be recorded")
	}
}

// --- RealPublisher with a scripted client ---

type fakeToken struct {
	done   bool
	err    error
	doneCh chan struct{}
}

func (t *fakeToken) Wait() bool                     { return t.done }
func (t *fakeToken) WaitTimeout(time.Duration) bool { return t.done }
func (t *fakeToken) Done() <-chan struct{}          { return t.doneCh }
func (t *fakeToken) Error() error                   { return t.err }

type sent struct {
	topic    string
	qos      byte
	retained bool
	payload  []byte
}

type fakeClient struct {
	open     bool
	sent     []sent
	tokenErr error
	stall    bool
	quiesce  uint
}

func (c *fakeClient) IsConnectionOpen() bool { return c.open }

func (c *fakeClient) Publish(topic string, qos byte, retained bool, payload interface{}) paho.Token {
	c.sent = append(c.sent, sent{topic: topic, qos: qos, retained: retained, payload: payload.([]byte)})
	return &fakeToken{done: !c.stall, err: c.tokenErr, doneCh: make(chan struct{})}
}

func (c *fakeClient) Disconnect(quiesce uint) { c.quiesce = quiesce }

func TestRealPublisherSendsWhenConnected(t *testing.T) {
	c := &fakeClient{open: true}
	p := newPublisherWithClient(c, DefaultConfig())

	if err := p.PublishTransition(ts, fsm.Transition{Machine: "Power", From: "ACTIVATING", To: "BATTERY"}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := p.PublishSystem(SystemEvent{Timestamp: ts, Event: "STARTUP", Retained: true}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(c.sent) != 2 {
		t.Fatalf("expected 2 messages, got %d", len(c.sent))
	}
	if c.sent[0].topic != "roboat/helm/power/state" || c.sent[0].qos != 1 {
		t.Errorf("transition message: %+v", c.sent[0])
	}
	if c.sent[1].topic != "roboat/helm/system" || !c.sent[1].retained {
		t.Errorf("system message: %+v", c.sent[1])
	}
}

func TestRealPublisherBuffersWhileOffline(t *testing.T) {
	c := &fakeClient{}
	p := newPublisherWithClient(c, DefaultConfig())

	p.PublishLine(ts, "GPS", "SEARCHING,0,0,0,0")
	p.PublishLine(ts, "GPS", "RUNNING,1,2,7,0")
	if len(c.sent) != 0 {
		t.Fatalf("sent while offline: %d", len(c.sent))
	}
	if p.Buffered() != 2 {
		t.Fatalf("buffered: got %d, want 2", p.Buffered())
	}

	c.open = true
	p.replay()
	if len(c.sent) != 2 || p.Buffered() != 0 {
		t.Fatalf("replay: sent %d, buffered %d", len(c.sent), p.Buffered())
	}
	var first LinePayload
	json.Unmarshal(c.sent[0].payload, &first)
	if first.Log.State != "SEARCHING" {
		t.Errorf("replay order: first message state %q", first.Log.State)
	}
}

func TestRealPublisherReplaysBeforeNextSend(t *testing.T) {
	c := &fakeClient{}
	p := newPublisherWithClient(c, DefaultConfig())
	p.PublishLine(ts, "Log", "READY,100")

	c.open = true
	p.PublishLine(ts, "Log", "READY,99")
	if len(c.sent) != 2 {
		t.Fatalf("expected buffered and new message, got %d", len(c.sent))
	}
	var got LinePayload
	json.Unmarshal(c.sent[1].payload, &got)
	if got.Log.Fields[0] != "99" {
		t.Errorf("new message should follow the buffered one, got %+v", got.Log)
	}
}

func TestRealPublisherTimeoutAndError(t *testing.T) {
	c := &fakeClient{open: true, stall: true}
	p := newPublisherWithClient(c, DefaultConfig())
	if err := p.PublishLine(ts, "AHRS", "RUNNING,1.00"); err == nil {
		t.Error("expected a timeout error")
	}

	c.stall = false
	c.tokenErr = errors.New("not authorized")
	if err := p.PublishLine(ts, "AHRS", "RUNNING,1.00"); err == nil {
		t.Error("expected the token error")
	}
}

func TestRealPublisherClose(t *testing.T) {
	c := &fakeClient{open: true}
	p := newPublisherWithClient(c, DefaultConfig())
	if !p.IsConnected() {
		t.Error("expected connected")
	}
	p.Close()
	if c.quiesce != 1000 {
		t.Errorf("quiesce: got %d", c.quiesce)
	}
}

func TestRealPublisherKeepsTransitionsThroughOutage(t *testing.T) {
	c := &fakeClient{}
	cfg := DefaultConfig()
	cfg.BufferSize = 3
	p := newPublisherWithClient(c, cfg)

	p.PublishTransition(ts, fsm.Transition{Machine: "GPS", From: "RUNNING", To: "REACQUIRING"})
	for i := 0; i < 10; i++ {
		p.PublishLine(ts, "GPS", "REACQUIRING,51.5,-0.1,7,3000")
	}
	p.PublishTransition(ts, fsm.Transition{Machine: "GPS", From: "REACQUIRING", To: "SEARCHING"})

	c.open = true
	p.replay()
	if len(c.sent) != 3 {
		t.Fatalf("replayed %d messages, want 3", len(c.sent))
	}
	if c.sent[0].qos != 1 || c.sent[1].qos != 0 || c.sent[2].qos != 1 {
		t.Errorf("expected transition, newest line, transition; got qos %d %d %d",
			c.sent[0].qos, c.sent[1].qos, c.sent[2].qos)
	}
}
