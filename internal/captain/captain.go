// Package captain runs the helm side of the handshake with the companion
// computer: it opens the link, wakes the captain and waits for it to speak.
package captain

import (
	"errors"
	"log"
	"time"

	"github.com/sweeney/roboat-helm/internal/fsm"
	"github.com/sweeney/roboat-helm/internal/gpio"
	"github.com/sweeney/roboat-helm/internal/logline"
	"github.com/sweeney/roboat-helm/internal/serialport"
)

// State is the captain link state.
type State int

const (
	StateStartup State = iota
	StateError
	StateActivating
	StateAsleep
	StateWaking
	StateOnDeck
)

func (s State) String() string {
	switch s {
	case StateStartup:
		return "STARTUP"
	case StateError:
		return "ERROR"
	case StateActivating:
		return "ACTIVATING"
	case StateAsleep:
		return "ASLEEP"
	case StateWaking:
		return "WAKING"
	case StateOnDeck:
		return "ONDECK"
	default:
		return "<INVALID>"
	}
}

// maxLine bounds a received line; longer input is split.
const maxLine = 256

// Config holds captain link settings.
type Config struct {
	Baud          int           `yaml:"baud"`
	RetryInterval time.Duration `yaml:"retry_interval"`
	ErrorCooldown time.Duration `yaml:"error_cooldown"`
}

// DefaultConfig returns the standard captain configuration.
func DefaultConfig() Config {
	return Config{
		Baud:          115200,
		RetryInterval: 5 * time.Second,
		ErrorCooldown: 10 * time.Second,
	}
}

// Controller is the captain handshake state machine.
type Controller struct {
	*fsm.Machine[State]

	cfg  Config
	port serialport.Port
	wake gpio.Output

	line     []byte
	lastLine string
	lines    int

	// OnLine, if set, receives every line read while on deck.
	OnLine func(string)
}

// New creates a captain controller. It owns port and the wake line.
func New(cfg Config, port serialport.Port, wake gpio.Output) *Controller {
	c := &Controller{
		cfg:  cfg,
		port: port,
		wake: wake,
	}
	c.Machine = fsm.New[State]("Captain", StateStartup, c.update)
	return c
}

func (c *Controller) update() bool {
	switch c.State() {
	case StateStartup:
		c.RequestTransition(StateActivating, 10*time.Microsecond)

	case StateError:
		c.RequestTransition(StateStartup, c.cfg.ErrorCooldown)

	case StateActivating:
		log.Printf("captain: configuring serial port for %d baud", c.cfg.Baud)
		if err := c.port.Begin(c.cfg.Baud); err != nil {
			log.Printf("captain: serial begin failed: %v, will retry", err)
			c.Remain(c.cfg.RetryInterval)
			break
		}
		// The companion boots with the vessel, so start by waking it.
		c.RequestTransition(StateWaking, 0)

	case StateAsleep:
		if c.port.Available() > 0 {
			log.Printf("captain: data on serial link while captain expected asleep")
			c.RequestTransition(StateError, 0)
		}

	case StateWaking:
		if err := c.wake.Low(); err != nil {
			log.Printf("captain: drive wake line: %v", err)
			c.RequestTransition(StateError, 0)
			break
		}
		if c.port.Available() > 0 {
			c.RequestTransition(StateOnDeck, 0)
			break
		}
		if err := c.port.Err(); err != nil {
			log.Printf("captain: serial receiver stopped: %v", err)
			c.RequestTransition(StateError, 0)
		}

	case StateOnDeck:
		return c.readLines()

	default:
		log.Printf("captain: unexpected state %v", c.State())
		c.RequestTransition(StateError, 0)
	}

	return false
}

// readLines drains the port, splitting on newlines.
func (c *Controller) readLines() bool {
	got := false
	for n := c.port.Available(); n > 0; n-- {
		b, err := c.port.ReadByte()
		if errors.Is(err, serialport.ErrNoData) {
			break
		}
		if err != nil {
			log.Printf("captain: serial read: %v", err)
			c.RequestTransition(StateError, 0)
			return got
		}
		got = true

		switch b {
		case '\r':
		case '\n':
			c.emit()
		default:
			c.line = append(c.line, b)
			if len(c.line) >= maxLine {
				c.emit()
			}
		}
	}
	if err := c.port.Err(); err != nil && c.port.Available() == 0 {
		log.Printf("captain: serial receiver stopped: %v", err)
		c.RequestTransition(StateError, 0)
	}
	return got
}

func (c *Controller) emit() {
	if len(c.line) == 0 {
		return
	}
	c.lastLine = string(c.line)
	c.line = c.line[:0]
	c.lines++
	log.Printf("captain: %s", c.lastLine)
	if c.OnLine != nil {
		c.OnLine(c.lastLine)
	}
}

// LastLine returns the most recent line from the captain.
func (c *Controller) LastLine() string {
	return c.lastLine
}

// Lines returns the number of lines received.
func (c *Controller) Lines() int {
	return c.lines
}

// LogString returns the telemetry record: the state alone.
func (c *Controller) LogString() string {
	return logline.Format(c.State().String())
}
