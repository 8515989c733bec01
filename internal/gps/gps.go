// Package gps manages the GPS receiver: it opens the serial link, feeds the
// stream to an NMEA parser and tracks whether the fix is current.
package gps

import (
	"errors"
	"log"
	"strconv"
	"time"

	"github.com/sweeney/roboat-helm/internal/fsm"
	"github.com/sweeney/roboat-helm/internal/logline"
	"github.com/sweeney/roboat-helm/internal/serialport"
)

// State is the GPS operating state.
type State int

const (
	StateStartup State = iota
	StateError
	StateActivating
	StateSearching
	StateReacquiring
	StateRunning
)

func (s State) String() string {
	switch s {
	case StateStartup:
		return "STARTUP"
	case StateError:
		return "ERROR"
	case StateActivating:
		return "ACTIVATING"
	case StateSearching:
		return "SEARCHING"
	case StateReacquiring:
		return "REACQUIRING"
	case StateRunning:
		return "RUNNING"
	default:
		return "<INVALID>"
	}
}

// Config holds GPS timing.
type Config struct {
	Baud          int           `yaml:"baud"`
	MaxFixAge     time.Duration `yaml:"max_fix_age"`
	RetryInterval time.Duration `yaml:"retry_interval"`
	ErrorCooldown time.Duration `yaml:"error_cooldown"`
}

// DefaultConfig returns the standard GPS configuration.
func DefaultConfig() Config {
	return Config{
		Baud:          9600,
		MaxFixAge:     3 * time.Second,
		RetryInterval: 5 * time.Second,
		ErrorCooldown: 10 * time.Second,
	}
}

// Manager is the GPS state machine.
type Manager struct {
	*fsm.Machine[State]

	cfg    Config
	port   serialport.Port
	parser *Parser
}

// New creates a GPS manager reading from port.
func New(cfg Config, port serialport.Port) *Manager {
	m := &Manager{
		cfg:    cfg,
		port:   port,
		parser: NewParser(),
	}
	m.Machine = fsm.New[State]("GPS", StateStartup, m.update)
	return m
}

func (m *Manager) update() bool {
	switch m.State() {
	case StateStartup:
		m.RequestTransition(StateActivating, 10*time.Microsecond)

	case StateError:
		m.RequestTransition(StateStartup, m.cfg.ErrorCooldown)

	case StateActivating:
		log.Printf("gps: configuring serial port for %d baud", m.cfg.Baud)
		if err := m.port.Begin(m.cfg.Baud); err != nil {
			log.Printf("gps: serial begin failed: %v, will retry", err)
			m.Remain(m.cfg.RetryInterval)
			break
		}
		m.RequestTransition(StateSearching, 0)

	case StateSearching:
		if !m.drain() {
			break
		}
		if m.parser.Location().Valid() {
			m.RequestTransition(StateRunning, 0)
		}

	case StateReacquiring:
		if !m.drain() {
			break
		}
		loc := m.parser.Location()
		switch {
		case !loc.Valid():
			m.RequestTransition(StateSearching, 0)
		case m.age() < m.maxAgeMs():
			m.RequestTransition(StateRunning, 0)
		}

	case StateRunning:
		if !m.drain() {
			break
		}
		loc := m.parser.Location()
		switch {
		case !loc.Valid():
			m.RequestTransition(StateSearching, 0)
		case m.age() > m.maxAgeMs():
			m.RequestTransition(StateReacquiring, 0)
		}
		return true

	default:
		log.Printf("gps: unexpected state %v", m.State())
		m.RequestTransition(StateError, 0)
	}

	return false
}

// drain feeds every byte the port has buffered to the parser.
func (m *Manager) drain() bool {
	now := m.LastAdvance()
	for n := m.port.Available(); n > 0; n-- {
		b, err := m.port.ReadByte()
		if errors.Is(err, serialport.ErrNoData) {
			break
		}
		if err != nil {
			log.Printf("gps: serial read: %v", err)
			m.RequestTransition(StateError, 0)
			return false
		}
		m.parser.Encode(b, now)
	}
	if err := m.port.Err(); err != nil && m.port.Available() == 0 {
		log.Printf("gps: serial receiver stopped: %v", err)
		m.RequestTransition(StateError, 0)
		return false
	}
	return true
}

func (m *Manager) age() uint32 {
	return m.parser.Location().Age(m.LastAdvance())
}

func (m *Manager) maxAgeMs() uint32 {
	return uint32(m.cfg.MaxFixAge.Milliseconds())
}

// PositionValid reports whether the position is current.
func (m *Manager) PositionValid() bool {
	return m.State() == StateRunning
}

// Lat returns the last latitude in decimal degrees.
func (m *Manager) Lat() float64 {
	return m.parser.Location().Lat()
}

// Lng returns the last longitude in decimal degrees.
func (m *Manager) Lng() float64 {
	return m.parser.Location().Lng()
}

// Satellites returns the satellites used in the last fix.
func (m *Manager) Satellites() uint32 {
	return m.parser.Satellites()
}

// FixAge returns the fix age in milliseconds as of the last advance.
func (m *Manager) FixAge() uint32 {
	return m.age()
}

// LogString returns the telemetry record: state, lat, lon, satellites, age.
// Outside Running the position is reported as 0,0.
func (m *Manager) LogString() string {
	lat, lng := "0", "0"
	if m.PositionValid() {
		lat = strconv.FormatFloat(m.Lat(), 'f', 12, 64)
		lng = strconv.FormatFloat(m.Lng(), 'f', 12, 64)
	}
	return logline.Format(m.State().String(), lat, lng,
		strconv.FormatUint(uint64(m.Satellites()), 10),
		strconv.FormatUint(uint64(m.FixAge()), 10))
}
