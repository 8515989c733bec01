// Package status provides a thread-safe snapshot of every helm subsystem.
// It is written by the control loop and read by HTTP handlers.
package status

import (
	"strings"
	"sync"
	"time"

	"github.com/sweeney/roboat-helm/internal/fsm"
)

// NetworkInfo contains network state. This is a local copy to avoid
// importing internal/mqtt from status.
type NetworkInfo struct {
	Type       string
	IP         string
	Status     string
	Gateway    string
	WifiStatus string
	SSID       string
}

// Config contains daemon configuration for display.
type Config struct {
	TickMs      int64
	ReportMs    int64
	HeartbeatMs int64
	Broker      string
	HTTPAddr    string
	LogDir      string
}

// AHRS is the attitude subsystem view.
type AHRS struct {
	State        string
	Heading      float64
	Roll         float64
	Pitch        float64
	HeadingValid bool
}

// GPS is the position subsystem view.
type GPS struct {
	State         string
	Lat           float64
	Lng           float64
	Satellites    uint32
	FixAgeMs      uint32
	PositionValid bool
}

// Power is the battery subsystem view.
type Power struct {
	State     string
	Volts     float64
	Milliamps float64
	Watts     float64
	Sampled   bool
}

// Log is the SD log subsystem view.
type Log struct {
	State      string
	Epoch      uint16
	File       string
	FreeKb     uint64
	CardBlocks uint64
	Queued     int
}

// Captain is the companion link view.
type Captain struct {
	State    string
	LastLine string
	Lines    int
}

// Snapshot is a point-in-time view of daemon state.
// It is a value type, safe to use after the lock is released.
type Snapshot struct {
	AHRS    AHRS
	GPS     GPS
	Power   Power
	Log     Log
	Captain Captain

	Transitions    int
	LastTransition *fsm.Transition

	StartTime     time.Time
	Now           time.Time
	MQTTConnected bool
	Network       *NetworkInfo
	Config        Config
}

// Uptime returns the duration since the daemon started.
func (s Snapshot) Uptime() time.Duration {
	return s.Now.Sub(s.StartTime)
}

// Faults returns "<machine>=<state>" for every subsystem in an ERROR state,
// in AHRS, GPS, Power, Log, Captain order.
func (s Snapshot) Faults() []string {
	var faults []string
	for _, sub := range []struct{ name, state string }{
		{"AHRS", s.AHRS.State},
		{"GPS", s.GPS.State},
		{"Power", s.Power.State},
		{"Log", s.Log.State},
		{"Captain", s.Captain.State},
	} {
		if strings.HasPrefix(sub.state, "ERROR") {
			faults = append(faults, sub.name+"="+sub.state)
		}
	}
	return faults
}

// Tracker holds mutable daemon state behind an RWMutex.
type Tracker struct {
	mu   sync.RWMutex
	snap Snapshot
}

// NewTracker creates a Tracker with the given start time and config.
func NewTracker(startTime time.Time, cfg Config) *Tracker {
	return &Tracker{
		snap: Snapshot{
			StartTime: startTime,
			Config:    cfg,
		},
	}
}

// UpdateAHRS replaces the attitude view.
func (t *Tracker) UpdateAHRS(v AHRS) {
	t.mu.Lock()
	t.snap.AHRS = v
	t.mu.Unlock()
}

// UpdateGPS replaces the position view.
func (t *Tracker) UpdateGPS(v GPS) {
	t.mu.Lock()
	t.snap.GPS = v
	t.mu.Unlock()
}

// UpdatePower replaces the battery view.
func (t *Tracker) UpdatePower(v Power) {
	t.mu.Lock()
	t.snap.Power = v
	t.mu.Unlock()
}

// UpdateLog replaces the SD log view.
func (t *Tracker) UpdateLog(v Log) {
	t.mu.Lock()
	t.snap.Log = v
	t.mu.Unlock()
}

// UpdateCaptain replaces the companion link view.
func (t *Tracker) UpdateCaptain(v Captain) {
	t.mu.Lock()
	t.snap.Captain = v
	t.mu.Unlock()
}

// RecordTransition counts a committed state change and keeps the latest.
func (t *Tracker) RecordTransition(tr fsm.Transition) {
	t.mu.Lock()
	t.snap.Transitions++
	t.snap.LastTransition = &tr
	t.mu.Unlock()
}

// SetMQTTConnected sets the MQTT connection status.
func (t *Tracker) SetMQTTConnected(connected bool) {
	t.mu.Lock()
	t.snap.MQTTConnected = connected
	t.mu.Unlock()
}

// SetNetwork sets the network info.
func (t *Tracker) SetNetwork(info *NetworkInfo) {
	t.mu.Lock()
	t.snap.Network = info
	t.mu.Unlock()
}

// Snapshot returns a point-in-time copy of the daemon state.
// The Now field is set to the current time at the moment of the call.
func (t *Tracker) Snapshot() Snapshot {
	t.mu.RLock()
	s := t.snap
	if s.LastTransition != nil {
		tr := *s.LastTransition
		s.LastTransition = &tr
	}
	t.mu.RUnlock()
	s.Now = time.Now()
	return s
}
