// Package logbook writes the per-boot CSV log to the SD card.
package logbook

import (
	"errors"
	"fmt"
	"io"
	"log"
	"strconv"
	"time"

	"github.com/sweeney/roboat-helm/internal/fsm"
	"github.com/sweeney/roboat-helm/internal/logline"
)

// ErrNotReady is returned by Writeln once the card has failed for good.
var ErrNotReady = errors.New("logbook: card not available")

// State is the log subsystem state.
type State int

const (
	StateStartup State = iota
	StateError
	StateActivating
	StateErrorNoCard
	StateErrorCardFull
	StateReady
)

func (s State) String() string {
	switch s {
	case StateStartup:
		return "STARTUP"
	case StateError:
		return "ERROR"
	case StateActivating:
		return "ACTIVATING"
	case StateErrorNoCard:
		return "ERROR_NO_CARD"
	case StateErrorCardFull:
		return "ERROR_CARD_FULL"
	case StateReady:
		return "READY"
	default:
		return "<INVALID>"
	}
}

// Config holds log timing and limits.
type Config struct {
	MinFreeKb         uint64        `yaml:"min_free_kb"`
	FreeCheckInterval time.Duration `yaml:"free_check_interval"`
	ReadyInterval     time.Duration `yaml:"ready_interval"`
	FaultInterval     time.Duration `yaml:"fault_interval"`
	ErrorCooldown     time.Duration `yaml:"error_cooldown"`
	QueueLen          int           `yaml:"queue_len"`
}

// DefaultConfig returns the standard log configuration.
func DefaultConfig() Config {
	return Config{
		MinFreeKb:         1024,
		FreeCheckInterval: time.Second,
		ReadyInterval:     10 * time.Millisecond,
		FaultInterval:     time.Second,
		ErrorCooldown:     10 * time.Second,
		QueueLen:          256,
	}
}

// Manager is the log state machine.
type Manager struct {
	*fsm.Machine[State]

	cfg     Config
	storage Storage

	epoch  uint16
	prefix string
	name   string

	cardSizeBlocks uint64
	freeKb         uint64
	lastFreeCheck  fsm.Micros

	file    io.WriteCloser
	queue   []string
	dropped int

	// Echo, if set, receives a copy of every line as "LOG: <line>".
	Echo io.Writer
}

// New creates a log manager and claims the next boot epoch from eeprom.
func New(cfg Config, storage Storage, eeprom EEPROM) (*Manager, error) {
	epoch, err := NextEpoch(eeprom)
	if err != nil {
		return nil, err
	}
	m := &Manager{
		cfg:     cfg,
		storage: storage,
		epoch:   epoch,
		prefix:  LinePrefix(epoch),
		name:    FileName(epoch),
	}
	m.Machine = fsm.New[State]("Log", StateStartup, m.update)
	return m, nil
}

func (m *Manager) update() bool {
	switch m.State() {
	case StateStartup:
		m.RequestTransition(StateActivating, 10*time.Microsecond)

	case StateError:
		m.RequestTransition(StateStartup, m.cfg.ErrorCooldown)

	case StateActivating:
		// Failures retry on the next tick.
		if err := m.activate(); err != nil {
			log.Printf("log: %v", err)
			break
		}
		if m.freeKb < m.cfg.MinFreeKb {
			log.Printf("log: card full (%dKB free)", m.freeKb)
			m.RequestTransition(StateErrorCardFull, 0)
			break
		}
		log.Printf("log: writing %s (%dKB free)", m.name, m.freeKb)
		m.RequestTransition(StateReady, 0)

	case StateErrorNoCard, StateErrorCardFull:
		m.Remain(m.cfg.FaultInterval)

	case StateReady:
		wrote, err := m.flush()
		if err != nil {
			log.Printf("log: write %s: %v", m.name, err)
			m.closeFile()
			m.RequestTransition(StateErrorNoCard, 0)
			break
		}
		if m.LastAdvance()-m.lastFreeCheck >= fsm.MicrosOf(m.cfg.FreeCheckInterval) {
			if err := m.measureFree(); err != nil {
				log.Printf("log: %v", err)
				m.closeFile()
				m.RequestTransition(StateErrorNoCard, 0)
				break
			}
			if m.freeKb < m.cfg.MinFreeKb {
				log.Printf("log: card full (%dKB free)", m.freeKb)
				m.closeFile()
				m.RequestTransition(StateErrorCardFull, 0)
				break
			}
		}
		m.Remain(m.cfg.ReadyInterval)
		return wrote

	default:
		log.Printf("log: unexpected state %v", m.State())
		m.RequestTransition(StateError, 0)
	}

	return false
}

func (m *Manager) activate() error {
	if err := m.storage.CardBegin(); err != nil {
		return fmt.Errorf("card begin: %w", err)
	}
	if err := m.storage.FSBegin(); err != nil {
		return fmt.Errorf("fs begin: %w", err)
	}
	m.cardSizeBlocks = m.storage.CardSize()
	if err := m.measureFree(); err != nil {
		return err
	}
	if m.file == nil {
		f, err := m.storage.Create(m.name)
		if err != nil {
			return fmt.Errorf("open log file: %w", err)
		}
		m.file = f
	}
	return nil
}

func (m *Manager) measureFree() error {
	kb, err := FreeKb(m.storage)
	if err != nil {
		return fmt.Errorf("free space: %w", err)
	}
	m.freeKb = kb
	m.lastFreeCheck = m.LastAdvance()
	return nil
}

// flush writes every queued line to the file.
func (m *Manager) flush() (bool, error) {
	if len(m.queue) == 0 {
		return false, nil
	}
	for len(m.queue) > 0 {
		if _, err := io.WriteString(m.file, m.queue[0]+"\n"); err != nil {
			return true, err
		}
		m.queue = m.queue[1:]
	}
	if m.dropped > 0 {
		log.Printf("log: dropped %d lines while the queue was full", m.dropped)
		m.dropped = 0
	}
	return true, nil
}

func (m *Manager) closeFile() {
	if m.file == nil {
		return
	}
	if err := m.file.Close(); err != nil {
		log.Printf("log: close %s: %v", m.name, err)
	}
	m.file = nil
}

// Writeln stamps line with the boot epoch and the time of the last advance
// and queues it for the next Ready tick. Lines queued before the card is up
// are kept, up to the queue length; the oldest are dropped first.
func (m *Manager) Writeln(line string) error {
	full := m.prefix + strconv.FormatUint(uint64(m.LastAdvance())/1000, 10) + "," + line
	if m.Echo != nil {
		fmt.Fprintf(m.Echo, "LOG: %s\n", full)
	}

	switch m.State() {
	case StateErrorNoCard, StateErrorCardFull:
		return ErrNotReady
	}

	if m.cfg.QueueLen > 0 && len(m.queue) >= m.cfg.QueueLen {
		if m.dropped == 0 {
			log.Printf("log: queue full, dropping oldest lines")
		}
		m.dropped++
		m.queue = m.queue[1:]
	}
	m.queue = append(m.queue, full)
	return nil
}

// Queued returns the number of lines waiting to be written.
func (m *Manager) Queued() int {
	return len(m.queue)
}

// Epoch returns the boot epoch.
func (m *Manager) Epoch() uint16 {
	return m.epoch
}

// LinePrefix returns the "<epoch>," stamp for this boot.
func (m *Manager) LinePrefix() string {
	return m.prefix
}

// FileName returns this boot's log file name.
func (m *Manager) FileName() string {
	return m.name
}

// CardSizeBlocks returns the card size captured at activation.
func (m *Manager) CardSizeBlocks() uint64 {
	return m.cardSizeBlocks
}

// FreeSpaceKb returns the last measured free space.
func (m *Manager) FreeSpaceKb() uint64 {
	return m.freeKb
}

// Close releases the log file.
func (m *Manager) Close() error {
	if m.file == nil {
		return nil
	}
	err := m.file.Close()
	m.file = nil
	return err
}

// LogString returns the telemetry record: state, free space (KB).
func (m *Manager) LogString() string {
	return logline.Format(m.State().String(), strconv.FormatUint(m.freeKb, 10))
}
