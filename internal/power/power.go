// Package power classifies the charger status lines and samples the battery
// bus voltage and current.
package power

import (
	"fmt"
	"log"
	"time"

	"github.com/sweeney/roboat-helm/internal/fsm"
	"github.com/sweeney/roboat-helm/internal/gpio"
	"github.com/sweeney/roboat-helm/internal/logline"
)

// State is the power subsystem state.
type State int

const (
	StateStartup State = iota
	StateError
	StateErrorBattTemp
	StateActivating
	StateNoBattery
	StateBattery
	StateCharging
	StateMaintaining
)

func (s State) String() string {
	switch s {
	case StateStartup:
		return "STARTUP"
	case StateError:
		return "ERROR"
	case StateErrorBattTemp:
		return "ERROR_BATT_TEMP"
	case StateActivating:
		return "ACTIVATING"
	case StateNoBattery:
		return "NO_BATTERY"
	case StateBattery:
		return "BATTERY"
	case StateCharging:
		return "CHARGING"
	case StateMaintaining:
		return "MAINTAINING"
	default:
		return "<INVALID>"
	}
}

// Monitor measures the battery bus.
type Monitor interface {
	Begin() error
	// BusVoltage returns volts.
	BusVoltage() (float64, error)
	// Current returns mA in the monitor's own sense.
	Current() (float64, error)
}

// Lines are the charger status inputs. All three are active-low.
type Lines struct {
	PowerGood gpio.Input
	Stat1     gpio.Input
	Stat2     gpio.Input
}

// Config holds power timing and the accepted electrical envelope.
type Config struct {
	MinVolts        float64       `yaml:"min_volts"`
	MaxVolts        float64       `yaml:"max_volts"`
	MinMilliamps    float64       `yaml:"min_milliamps"`
	MaxMilliamps    float64       `yaml:"max_milliamps"`
	RunningInterval time.Duration `yaml:"running_interval"`
	RetryInterval   time.Duration `yaml:"retry_interval"`
	ErrorCooldown   time.Duration `yaml:"error_cooldown"`
}

// DefaultConfig returns the standard power configuration.
func DefaultConfig() Config {
	return Config{
		MinVolts:        1.0,
		MaxVolts:        10.0,
		MinMilliamps:    20,
		MaxMilliamps:    2000,
		RunningInterval: 100 * time.Millisecond,
		RetryInterval:   5 * time.Second,
		ErrorCooldown:   10 * time.Second,
	}
}

// Manager is the power state machine.
type Manager struct {
	*fsm.Machine[State]

	cfg     Config
	lines   Lines
	monitor Monitor

	busVoltage float64
	currentMa  float64
	sampled    bool
}

// New creates a power manager.
func New(cfg Config, lines Lines, monitor Monitor) *Manager {
	m := &Manager{
		cfg:     cfg,
		lines:   lines,
		monitor: monitor,
	}
	m.Machine = fsm.New[State]("Power", StateStartup, m.update)
	return m
}

func (m *Manager) update() bool {
	switch m.State() {
	case StateStartup:
		m.RequestTransition(StateActivating, 10*time.Microsecond)

	case StateError:
		m.RequestTransition(StateStartup, m.cfg.ErrorCooldown)

	case StateActivating:
		if err := m.monitor.Begin(); err != nil {
			log.Printf("power: monitor begin failed: %v, will retry", err)
			m.Remain(m.cfg.RetryInterval)
			break
		}
		return m.sample()

	case StateNoBattery, StateBattery, StateCharging, StateMaintaining, StateErrorBattTemp:
		return m.sample()

	default:
		log.Printf("power: unexpected state %v", m.State())
		m.RequestTransition(StateError, 0)
	}

	return false
}

// sample classifies the charger lines, measures the bus and schedules the
// resulting state.
func (m *Manager) sample() bool {
	next, err := m.dispatch()
	if err != nil {
		log.Printf("power: %v", err)
		m.RequestTransition(StateError, 0)
		return false
	}
	if err := m.measure(); err != nil {
		log.Printf("power: %v", err)
		m.RequestTransition(StateError, 0)
		return false
	}

	// Battery over-temperature is reported whatever the readings say.
	if next != StateErrorBattTemp && !m.inRange() {
		log.Printf("power: reading out of range: %.2fV %.1fmA", m.busVoltage, m.currentMa)
		m.RequestTransition(StateError, 0)
		return true
	}

	if next == m.State() {
		m.Remain(m.cfg.RunningInterval)
	} else {
		m.RequestTransition(next, 0)
	}
	return true
}

// dispatch maps the charger status lines to a state.
func (m *Manager) dispatch() (State, error) {
	pg, err := readActiveLow(m.lines.PowerGood, "power good")
	if err != nil {
		return StateError, err
	}
	s1, err := readActiveLow(m.lines.Stat1, "stat1")
	if err != nil {
		return StateError, err
	}
	s2, err := readActiveLow(m.lines.Stat2, "stat2")
	if err != nil {
		return StateError, err
	}

	if !pg {
		return StateBattery, nil
	}
	switch {
	case !s1 && !s2:
		return StateNoBattery, nil
	case !s1 && s2:
		return StateMaintaining, nil
	case s1 && !s2:
		return StateCharging, nil
	default:
		return StateErrorBattTemp, nil
	}
}

func readActiveLow(in gpio.Input, name string) (bool, error) {
	level, err := in.Read()
	if err != nil {
		return false, fmt.Errorf("read %s line: %w", name, err)
	}
	return !level, nil
}

func (m *Manager) measure() error {
	v, err := m.monitor.BusVoltage()
	if err != nil {
		return fmt.Errorf("measure: %w", err)
	}
	i, err := m.monitor.Current()
	if err != nil {
		return fmt.Errorf("measure: %w", err)
	}
	m.busVoltage = v
	// The shunt is wired in reverse.
	m.currentMa = -i
	m.sampled = true
	return nil
}

func (m *Manager) inRange() bool {
	return m.busVoltage >= m.cfg.MinVolts && m.busVoltage <= m.cfg.MaxVolts &&
		m.currentMa >= m.cfg.MinMilliamps && m.currentMa <= m.cfg.MaxMilliamps
}

// BusVoltage returns the last bus voltage in volts.
func (m *Manager) BusVoltage() float64 {
	return m.busVoltage
}

// CurrentMa returns the last current in mA.
func (m *Manager) CurrentMa() float64 {
	return m.currentMa
}

// Power returns the last power draw in watts.
func (m *Manager) Power() float64 {
	return m.busVoltage * m.currentMa / 1000
}

// Sampled reports whether at least one measurement has been taken.
func (m *Manager) Sampled() bool {
	return m.sampled
}

// LogString returns the telemetry record: state, volts, milliamps, watts.
func (m *Manager) LogString() string {
	if !m.sampled {
		return logline.Format(m.State().String(), logline.Placeholder, logline.Placeholder, logline.Placeholder)
	}
	return logline.Format(m.State().String(),
		fmt.Sprintf("%.2f", m.busVoltage),
		fmt.Sprintf("%.1f", m.currentMa),
		fmt.Sprintf("%.3f", m.Power()))
}
