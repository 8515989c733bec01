package internal

import (
	"encoding/json"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/sweeney/roboat-helm/internal/ahrs"
	"github.com/sweeney/roboat-helm/internal/captain"
	"github.com/sweeney/roboat-helm/internal/fsm"
	"github.com/sweeney/roboat-helm/internal/gpio"
	"github.com/sweeney/roboat-helm/internal/gps"
	"github.com/sweeney/roboat-helm/internal/imu"
	"github.com/sweeney/roboat-helm/internal/logbook"
	"github.com/sweeney/roboat-helm/internal/logline"
	"github.com/sweeney/roboat-helm/internal/mqtt"
	"github.com/sweeney/roboat-helm/internal/power"
	"github.com/sweeney/roboat-helm/internal/serialport"
)

const (
	rmcValid   = "GPRMC,220516,A,5133.82,N,00042.24,W,173.8,231.8,130694,004.2,W"
	rmcInvalid = "GPRMC,220516,V,5133.82,N,00042.24,W,173.8,231.8,130694,004.2,W"
)

func sentence(body string) string {
	var sum byte
	for i := 0; i < len(body); i++ {
		sum ^= body[i]
	}
	return fmt.Sprintf("$%s*%02X\r\n", body, sum)
}

type flakyGyro struct {
	beginErr error
	readErr  error
}

func (g *flakyGyro) Begin() error              { return g.beginErr }
func (g *flakyGyro) Read() (imu.Vector, error) { return imu.Vector{}, g.readErr }

type levelAccelMag struct{}

func (levelAccelMag) Begin(imu.Range) error { return nil }
func (levelAccelMag) Read() (imu.Vector, imu.Vector, error) {
	return imu.Vector{Z: 1}, imu.Vector{X: 20, Z: -40}, nil
}

// battery is a power monitor with adjustable readings.
type battery struct {
	volts float64
	ma    float64
}

func (b *battery) Begin() error                 { return nil }
func (b *battery) BusVoltage() (float64, error) { return b.volts, nil }
func (b *battery) Current() (float64, error)    { return -b.ma, nil }

// vessel is every controller on fakes, advanced together on a 1ms tick.
type vessel struct {
	ahrs    *ahrs.Controller
	gps     *gps.Manager
	power   *power.Manager
	log     *logbook.Manager
	captain *captain.Controller

	gyro        *flakyGyro
	gpsPort     *serialport.FakePort
	battery     *battery
	storage     *logbook.FakeStorage
	captainPort *serialport.FakePort

	now         fsm.Micros
	transitions []fsm.Transition
}

func newVessel(t *testing.T) *vessel {
	t.Helper()
	v := &vessel{
		gyro:        &flakyGyro{},
		gpsPort:     serialport.NewFakePort(),
		battery:     &battery{volts: 7.4, ma: 500},
		storage:     logbook.NewFakeStorage(),
		captainPort: serialport.NewFakePort(),
	}

	book, err := logbook.New(logbook.DefaultConfig(), v.storage, logbook.NewMemEEPROM(1024))
	if err != nil {
		t.Fatalf("logbook.New: %v", err)
	}
	lines := power.Lines{PowerGood: gpio.NewFakeInput(), Stat1: gpio.NewFakeInput(), Stat2: gpio.NewFakeInput()}

	v.ahrs = ahrs.New(ahrs.DefaultConfig(), gpio.NewFakeOutput(false), v.gyro, levelAccelMag{}, ahrs.NewMadgwick())
	v.ahrs.SetActive(true)
	v.gps = gps.New(gps.DefaultConfig(), v.gpsPort)
	v.power = power.New(power.DefaultConfig(), lines, v.battery)
	v.log = book
	v.captain = captain.New(captain.DefaultConfig(), v.captainPort, gpio.NewFakeOutput(true))

	record := func(tr fsm.Transition) { v.transitions = append(v.transitions, tr) }
	v.ahrs.OnTransition = record
	v.gps.OnTransition = record
	v.power.OnTransition = record
	v.log.OnTransition = record
	v.captain.OnTransition = record
	return v
}

func (v *vessel) run(d time.Duration) {
	end := v.now + fsm.MicrosOf(d)
	for v.now < end {
		v.now += 1000
		v.ahrs.Advance(v.now)
		v.gps.Advance(v.now)
		v.power.Advance(v.now)
		v.log.Advance(v.now)
		v.captain.Advance(v.now)
	}
}

// path returns the sequence of states machine passed through.
func (v *vessel) path(machine string) []string {
	var out []string
	for _, tr := range v.transitions {
		if tr.Machine != machine {
			continue
		}
		if len(out) == 0 {
			out = append(out, tr.From)
		}
		out = append(out, tr.To)
	}
	return out
}

func equal(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// TestIntegrationBringUp takes every subsystem from power-on to its steady state.
func TestIntegrationBringUp(t *testing.T) {
	v := newVessel(t)
	v.gpsPort.FeedString(sentence(rmcValid))
	v.captainPort.FeedString("helm ready\n")

	v.run(6 * time.Second)

	if v.ahrs.State() != ahrs.StateRunning || !v.ahrs.HeadingValid() {
		t.Errorf("AHRS: got %s", v.ahrs.State())
	}
	// No fresh sentences for ~6s: the fix has gone stale.
	if v.gps.State() != gps.StateReacquiring {
		t.Errorf("GPS: got %s, want REACQUIRING", v.gps.State())
	}
	if v.power.State() != power.StateBattery {
		t.Errorf("Power: got %s, want BATTERY", v.power.State())
	}
	if v.log.State() != logbook.StateReady {
		t.Errorf("Log: got %s, want READY", v.log.State())
	}
	if v.captain.State() != captain.StateOnDeck || v.captain.LastLine() != "helm ready" {
		t.Errorf("Captain: got %s %q", v.captain.State(), v.captain.LastLine())
	}

	want := []string{"STARTUP", "ACTIVATING", "SEARCHING", "RUNNING", "REACQUIRING"}
	if got := v.path("GPS"); !equal(got, want) {
		t.Errorf("GPS path: got %v, want %v", got, want)
	}
	want = []string{"STARTUP", "DISABLED", "ACTIVATING_1", "ACTIVATING_2", "SETTLING", "RUNNING"}
	if got := v.path("AHRS"); !equal(got, want) {
		t.Errorf("AHRS path: got %v, want %v", got, want)
	}
}

// TestIntegrationFaultsStayLocal injects a fault into each subsystem in turn
// and checks that the others keep their state.
func TestIntegrationFaultsStayLocal(t *testing.T) {
	v := newVessel(t)
	v.run(6 * time.Second)
	if v.ahrs.State() != ahrs.StateRunning {
		t.Fatalf("AHRS not running before faults: %s", v.ahrs.State())
	}

	// Bus brown-out: power goes to Error, everything else carries on.
	v.battery.volts = 0.5
	v.run(200 * time.Millisecond)
	if v.power.State() != power.StateError {
		t.Fatalf("Power: got %s, want ERROR", v.power.State())
	}
	if v.ahrs.State() != ahrs.StateRunning || v.log.State() != logbook.StateReady {
		t.Errorf("power fault spread: AHRS %s, Log %s", v.ahrs.State(), v.log.State())
	}

	// Gyro drops off the bus.
	v.gyro.readErr = errors.New("i2c nack")
	v.run(50 * time.Millisecond)
	if v.ahrs.State() != ahrs.StateError {
		t.Fatalf("AHRS: got %s, want ERROR", v.ahrs.State())
	}
	if v.log.State() != logbook.StateReady {
		t.Errorf("ahrs fault spread to log: %s", v.log.State())
	}

	// Both recover after their cooldowns once the faults clear.
	v.battery.volts = 7.4
	v.gyro.readErr = nil
	v.run(20 * time.Second)
	if v.power.State() != power.StateBattery {
		t.Errorf("Power after recovery: got %s, want BATTERY", v.power.State())
	}
	if v.ahrs.State() != ahrs.StateRunning {
		t.Errorf("AHRS after recovery: got %s, want RUNNING", v.ahrs.State())
	}
}

// TestIntegrationGPSFixLifecycle follows a fix through loss and reacquisition.
func TestIntegrationGPSFixLifecycle(t *testing.T) {
	v := newVessel(t)
	v.gpsPort.FeedString(sentence(rmcValid))
	v.run(100 * time.Millisecond)
	if !v.gps.PositionValid() {
		t.Fatalf("GPS: got %s, want RUNNING", v.gps.State())
	}

	v.run(4 * time.Second)
	if v.gps.State() != gps.StateReacquiring || v.gps.PositionValid() {
		t.Fatalf("GPS after silence: got %s", v.gps.State())
	}

	v.gpsPort.FeedString(sentence(rmcValid))
	v.run(10 * time.Millisecond)
	if v.gps.State() != gps.StateRunning {
		t.Fatalf("GPS after fresh sentence: got %s, want RUNNING", v.gps.State())
	}

	v.gpsPort.FeedString(sentence(rmcInvalid))
	v.run(10 * time.Millisecond)
	if v.gps.State() != gps.StateSearching {
		t.Errorf("GPS after no-fix sentence: got %s, want SEARCHING", v.gps.State())
	}
}

// TestIntegrationCardPulled checks the log goes terminal on a write failure
// while telemetry keeps flowing.
func TestIntegrationCardPulled(t *testing.T) {
	v := newVessel(t)
	v.run(100 * time.Millisecond)
	if v.log.State() != logbook.StateReady {
		t.Fatalf("Log: got %s, want READY", v.log.State())
	}

	v.storage.Files[v.log.FileName()].WriteError = errors.New("card removed")
	if err := v.log.Writeln(v.gps.LogString()); err != nil {
		t.Fatalf("Writeln while ready: %v", err)
	}
	v.run(20 * time.Millisecond)
	if v.log.State() != logbook.StateErrorNoCard {
		t.Fatalf("Log: got %s, want ERROR_NO_CARD", v.log.State())
	}
	if err := v.log.Writeln("late"); !errors.Is(err, logbook.ErrNotReady) {
		t.Errorf("Writeln after card loss: got %v, want ErrNotReady", err)
	}

	// No automatic recovery.
	v.run(30 * time.Second)
	if v.log.State() != logbook.StateErrorNoCard {
		t.Errorf("Log recovered on its own: %s", v.log.State())
	}
	if v.power.State() != power.StateBattery {
		t.Errorf("Power affected by card loss: %s", v.power.State())
	}
}

// TestIntegrationLogLinesKeepWidth checks every subsystem's record parses with
// its fixed field count in every state it passes through.
func TestIntegrationLogLinesKeepWidth(t *testing.T) {
	v := newVessel(t)
	v.gpsPort.FeedString(sentence(rmcValid))
	v.captainPort.FeedString("ok\n")

	check := func() {
		t.Helper()
		for kind, line := range map[logline.Kind]string{
			logline.KindAHRS:    v.ahrs.LogString(),
			logline.KindGPS:     v.gps.LogString(),
			logline.KindPower:   v.power.LogString(),
			logline.KindLog:     v.log.LogString(),
			logline.KindCaptain: v.captain.LogString(),
		} {
			if _, err := logline.ParseFor(kind, line); err != nil {
				t.Errorf("at %dus: %v", v.now, err)
			}
		}
	}

	check()
	for i := 0; i < 70; i++ {
		v.run(100 * time.Millisecond)
		check()
	}
}

// TestIntegrationTransitionPayloads formats every committed transition for MQTT.
func TestIntegrationTransitionPayloads(t *testing.T) {
	v := newVessel(t)
	v.run(time.Second)
	if len(v.transitions) == 0 {
		t.Fatal("expected transitions")
	}

	ts := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	for _, tr := range v.transitions {
		data, err := mqtt.FormatTransitionPayload(ts, tr)
		if err != nil {
			t.Fatalf("format: %v", err)
		}
		var p mqtt.TransitionPayload
		if err := json.Unmarshal(data, &p); err != nil {
			t.Fatalf("invalid JSON: %v", err)
		}
		if p.Transition.Machine != tr.Machine || p.Transition.From != tr.From || p.Transition.To != tr.To {
			t.Errorf("payload %+v does not match %+v", p.Transition, tr)
		}
		if p.Transition.AtMicros != uint64(tr.At) {
			t.Errorf("at_us: got %d, want %d", p.Transition.AtMicros, tr.At)
		}
	}

	for _, line := range []string{v.ahrs.LogString(), v.gps.LogString(), v.power.LogString()} {
		data, err := mqtt.FormatLinePayload(ts, "x", line)
		if err != nil {
			t.Fatalf("format line %q: %v", line, err)
		}
		var p mqtt.LinePayload
		if err := json.Unmarshal(data, &p); err != nil {
			t.Fatalf("invalid JSON: %v", err)
		}
		if p.Log.Line != line {
			t.Errorf("line: got %q, want %q", p.Log.Line, line)
		}
	}
}
