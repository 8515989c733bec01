package status

import (
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/sweeney/roboat-helm/internal/fsm"
)

func TestNewTracker(t *testing.T) {
	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	cfg := Config{TickMs: 1, ReportMs: 1000, Broker: "tcp://localhost:1883", HTTPAddr: ":80"}
	tr := NewTracker(start, cfg)

	snap := tr.Snapshot()
	if !snap.StartTime.Equal(start) {
		t.Errorf("StartTime: got %v, want %v", snap.StartTime, start)
	}
	if snap.Config.ReportMs != 1000 {
		t.Errorf("Config.ReportMs: got %d, want 1000", snap.Config.ReportMs)
	}
	if snap.Config.HTTPAddr != ":80" {
		t.Errorf("Config.HTTPAddr: got %q, want %q", snap.Config.HTTPAddr, ":80")
	}
	if snap.MQTTConnected {
		t.Error("expected MQTTConnected=false initially")
	}
	if snap.LastTransition != nil || snap.Transitions != 0 {
		t.Error("expected no transitions initially")
	}
}

func TestUpdateSubsystems(t *testing.T) {
	tr := NewTracker(time.Now(), Config{})

	tr.UpdateAHRS(AHRS{State: "RUNNING", Heading: 271.5, HeadingValid: true})
	tr.UpdateGPS(GPS{State: "SEARCHING", Satellites: 3})
	tr.UpdatePower(Power{State: "CHARGING", Volts: 7.4, Sampled: true})
	tr.UpdateLog(Log{State: "READY", Epoch: 12, File: "Log_12.csv"})
	tr.UpdateCaptain(Captain{State: "ONDECK", LastLine: "hello", Lines: 1})

	snap := tr.Snapshot()
	if snap.AHRS.State != "RUNNING" || snap.AHRS.Heading != 271.5 {
		t.Errorf("AHRS: %+v", snap.AHRS)
	}
	if snap.GPS.Satellites != 3 {
		t.Errorf("GPS: %+v", snap.GPS)
	}
	if snap.Power.Volts != 7.4 {
		t.Errorf("Power: %+v", snap.Power)
	}
	if snap.Log.File != "Log_12.csv" {
		t.Errorf("Log: %+v", snap.Log)
	}
	if snap.Captain.LastLine != "hello" {
		t.Errorf("Captain: %+v", snap.Captain)
	}
}

func TestRecordTransition(t *testing.T) {
	tr := NewTracker(time.Now(), Config{})
	tr.RecordTransition(fsm.Transition{Machine: "GPS", From: "STARTUP", To: "ACTIVATING"})
	tr.RecordTransition(fsm.Transition{Machine: "GPS", From: "ACTIVATING", To: "SEARCHING"})

	snap := tr.Snapshot()
	if snap.Transitions != 2 {
		t.Errorf("Transitions: got %d, want 2", snap.Transitions)
	}
	if snap.LastTransition == nil || snap.LastTransition.To != "SEARCHING" {
		t.Errorf("LastTransition: %+v", snap.LastTransition)
	}
}

func TestSetMQTTConnected(t *testing.T) {
	tr := NewTracker(time.Now(), Config{})

	tr.SetMQTTConnected(true)
	if !tr.Snapshot().MQTTConnected {
		t.Error("expected MQTTConnected=true")
	}
	tr.SetMQTTConnected(false)
	if tr.Snapshot().MQTTConnected {
		t.Error("expected MQTTConnected=false")
	}
}

func TestSetNetwork(t *testing.T) {
	tr := NewTracker(time.Now(), Config{})
	tr.SetNetwork(&NetworkInfo{Type: "wifi", IP: "10.0.0.5", Status: "connected"})

	snap := tr.Snapshot()
	if snap.Network == nil || snap.Network.IP != "10.0.0.5" {
		t.Errorf("Network: %+v", snap.Network)
	}
}

func TestSnapshotUptime(t *testing.T) {
	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	snap := Snapshot{StartTime: start, Now: start.Add(90 * time.Second)}
	if snap.Uptime() != 90*time.Second {
		t.Errorf("Uptime: got %v, want 90s", snap.Uptime())
	}
}

func TestSnapshotNowIsSet(t *testing.T) {
	tr := NewTracker(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC), Config{})

	before := time.Now()
	snap := tr.Snapshot()
	after := time.Now()

	if snap.Now.Before(before) || snap.Now.After(after) {
		t.Errorf("Now (%v) not between %v and %v", snap.Now, before, after)
	}
}

func TestSnapshotIsCopy(t *testing.T) {
	tr := NewTracker(time.Now(), Config{})
	tr.UpdateGPS(GPS{State: "RUNNING"})
	tr.RecordTransition(fsm.Transition{To: "RUNNING"})

	snap1 := tr.Snapshot()

	tr.UpdateGPS(GPS{State: "REACQUIRING"})
	tr.RecordTransition(fsm.Transition{To: "REACQUIRING"})
	snap1.LastTransition.To = "MUTATED"

	if snap1.GPS.State != "RUNNING" {
		t.Error("snapshot should be a copy; GPS was modified")
	}
	if got := tr.Snapshot().LastTransition.To; got != "REACQUIRING" {
		t.Errorf("tracker affected by snapshot mutation: %q", got)
	}
}

func TestSnapshotFaults(t *testing.T) {
	snap := Snapshot{
		AHRS:    AHRS{State: "RUNNING"},
		GPS:     GPS{State: "ERROR"},
		Power:   Power{State: "ERROR_BATT_TEMP"},
		Log:     Log{State: "READY"},
		Captain: Captain{State: ""},
	}
	got := snap.Faults()
	if len(got) != 2 || got[0] != "GPS=ERROR" || got[1] != "Power=ERROR_BATT_TEMP" {
		t.Errorf("Faults: got %v", got)
	}
	if f := (Snapshot{}).Faults(); f != nil {
		t.Errorf("empty snapshot faults: got %v, want nil", f)
	}
}

func TestFormatJSON(t *testing.T) {
	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	snap := Snapshot{
		AHRS:          AHRS{State: "RUNNING", Heading: 90.25, Roll: 1, Pitch: -2, HeadingValid: true},
		GPS:           GPS{State: "RUNNING", Lat: 51.5, Lng: -0.7, Satellites: 7, FixAgeMs: 120, PositionValid: true},
		Power:         Power{State: "BATTERY", Volts: 7.4, Milliamps: 500, Watts: 3.7, Sampled: true},
		Log:           Log{State: "READY", Epoch: 3, File: "Log_3.csv", FreeKb: 1000},
		Captain:       Captain{State: "WAKING"},
		Transitions:   9,
		StartTime:     start,
		Now:           start.Add(15 * time.Minute),
		MQTTConnected: true,
		Config:        Config{TickMs: 1, ReportMs: 1000, Broker: "tcp://localhost:1883", HTTPAddr: ":80"},
	}

	data := FormatJSON(snap)

	var parsed StatusJSON
	if err := json.Unmarshal(data, &parsed); err != nil {
		t.Fatalf("invalid JSON: %v", err)
	}

	s := parsed.Status
	if s.AHRS.Heading == nil || *s.AHRS.Heading != 90.25 {
		t.Errorf("AHRS.Heading: %v", s.AHRS.Heading)
	}
	if s.GPS.Lat == nil || *s.GPS.Lat != 51.5 || s.GPS.Satellites != 7 {
		t.Errorf("GPS: %+v", s.GPS)
	}
	if s.Power.Watts == nil || *s.Power.Watts != 3.7 {
		t.Errorf("Power: %+v", s.Power)
	}
	if s.Log.File != "Log_3.csv" || s.Captain.State != "WAKING" {
		t.Errorf("Log/Captain: %+v %+v", s.Log, s.Captain)
	}
	if s.UptimeSeconds != 900 {
		t.Errorf("UptimeSeconds: got %d, want 900", s.UptimeSeconds)
	}
	if !s.MQTT.Connected || s.Transitions != 9 {
		t.Errorf("MQTT %+v, transitions %d", s.MQTT, s.Transitions)
	}
	// Event and Reason should be omitted
	if s.Event != "" || s.Reason != "" {
		t.Errorf("expected empty event/reason for web format, got %q/%q", s.Event, s.Reason)
	}
}

func TestFormatJSONOmitsInvalidReadings(t *testing.T) {
	snap := Snapshot{
		AHRS:      AHRS{State: "SETTLING", Heading: 12},
		GPS:       GPS{State: "SEARCHING", Lat: 1, Lng: 2},
		Power:     Power{State: "STARTUP"},
		StartTime: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC),
		Now:       time.Date(2026, 1, 1, 0, 0, 1, 0, time.UTC),
	}

	var raw map[string]map[string]interface{}
	if err := json.Unmarshal(FormatJSON(snap), &raw); err != nil {
		t.Fatalf("invalid JSON: %v", err)
	}
	section := func(name string) map[string]interface{} {
		return raw["status"][name].(map[string]interface{})
	}
	if _, ok := section("ahrs")["heading"]; ok {
		t.Error("heading should be omitted while not running")
	}
	if _, ok := section("gps")["lat"]; ok {
		t.Error("lat should be omitted without a position")
	}
	if _, ok := section("power")["volts"]; ok {
		t.Error("volts should be omitted before the first sample")
	}
}

func TestFormatJSONUnknownState(t *testing.T) {
	snap := Snapshot{
		StartTime: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC),
		Now:       time.Date(2026, 1, 1, 0, 0, 1, 0, time.UTC),
	}

	var parsed StatusJSON
	json.Unmarshal(FormatJSON(snap), &parsed)

	for name, got := range map[string]string{
		"ahrs":    parsed.Status.AHRS.State,
		"gps":     parsed.Status.GPS.State,
		"power":   parsed.Status.Power.State,
		"log":     parsed.Status.Log.State,
		"captain": parsed.Status.Captain.State,
	} {
		if got != "UNKNOWN" {
			t.Errorf("%s state: got %q, want UNKNOWN", name, got)
		}
	}
}

func TestFormatStatusEvent(t *testing.T) {
	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	snap := Snapshot{
		GPS:            GPS{State: "RUNNING"},
		LastTransition: &fsm.Transition{Machine: "GPS", From: "SEARCHING", To: "RUNNING", InState: 2 * time.Second},
		StartTime:      start,
		Now:            start.Add(15 * time.Minute),
		Config:         Config{Broker: "tcp://localhost:1883"},
	}

	data := FormatStatusEvent(snap, "HEARTBEAT", "")

	var parsed StatusJSON
	if err := json.Unmarshal(data, &parsed); err != nil {
		t.Fatalf("invalid JSON: %v", err)
	}
	if parsed.Status.Event != "HEARTBEAT" || parsed.Status.Reason != "" {
		t.Errorf("event/reason: %q/%q", parsed.Status.Event, parsed.Status.Reason)
	}
	lt := parsed.Status.LastTransition
	if lt == nil || lt.Machine != "GPS" || lt.InStateMs != 2000 {
		t.Errorf("LastTransition: %+v", lt)
	}
}

func TestFormatStatusEventShutdown(t *testing.T) {
	snap := Snapshot{
		StartTime: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC),
		Now:       time.Date(2026, 1, 1, 0, 30, 0, 0, time.UTC),
	}

	var parsed StatusJSON
	if err := json.Unmarshal(FormatStatusEvent(snap, "SHUTDOWN", "SIGTERM"), &parsed); err != nil {
		t.Fatalf("invalid JSON: %v", err)
	}
	if parsed.Status.Event != "SHUTDOWN" || parsed.Status.Reason != "SIGTERM" {
		t.Errorf("event/reason: %q/%q", parsed.Status.Event, parsed.Status.Reason)
	}
}

func TestFormatStatusEventOmitsReasonWhenEmpty(t *testing.T) {
	snap := Snapshot{
		StartTime: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC),
		Now:       time.Date(2026, 1, 1, 0, 0, 1, 0, time.UTC),
	}

	var raw map[string]interface{}
	json.Unmarshal(FormatStatusEvent(snap, "STARTUP", ""), &raw)
	status := raw["status"].(map[string]interface{})
	if _, exists := status["reason"]; exists {
		t.Error("reason should be omitted when empty")
	}
	if status["event"] != "STARTUP" {
		t.Errorf("event: got %v, want STARTUP", status["event"])
	}
}

func TestFormatJSONWithNetwork(t *testing.T) {
	snap := Snapshot{
		StartTime: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC),
		Now:       time.Date(2026, 1, 1, 0, 1, 0, 0, time.UTC),
		Network:   &NetworkInfo{Type: "wifi", IP: "192.168.1.42", Status: "connected", SSID: "MyNet"},
	}

	var parsed StatusJSON
	json.Unmarshal(FormatJSON(snap), &parsed)

	if parsed.Status.Network == nil {
		t.Fatal("expected Network in JSON")
	}
	if parsed.Status.Network.IP != "192.168.1.42" || parsed.Status.Network.SSID != "MyNet" {
		t.Errorf("Network: %+v", parsed.Status.Network)
	}
}

func TestConcurrentAccess(t *testing.T) {
	tr := NewTracker(time.Now(), Config{})
	var wg sync.WaitGroup

	wg.Add(1)
	go func() {
		defer wg.Done()
		for i := 0; i < 1000; i++ {
			tr.UpdateGPS(GPS{State: "RUNNING", Satellites: uint32(i)})
			tr.RecordTransition(fsm.Transition{Machine: "GPS"})
			tr.SetMQTTConnected(i%2 == 0)
			tr.SetNetwork(&NetworkInfo{IP: "1.2.3.4"})
		}
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		for i := 0; i < 1000; i++ {
			snap := tr.Snapshot()
			_ = snap.Uptime()
			_ = FormatJSON(snap)
		}
	}()

	wg.Wait()
}
