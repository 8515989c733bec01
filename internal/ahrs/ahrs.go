// Package ahrs brings up the inertial and magnetic sensors and fuses their
// samples into roll, pitch and heading.
package ahrs

import (
	"log"
	"strconv"
	"time"

	"github.com/sweeney/roboat-helm/internal/fsm"
	"github.com/sweeney/roboat-helm/internal/gpio"
	"github.com/sweeney/roboat-helm/internal/imu"
	"github.com/sweeney/roboat-helm/internal/logline"
)

// State is the AHRS operating state.
type State int

const (
	StateStartup State = iota
	StateError
	StateDisabled
	StateActivating1
	StateActivating2
	StateSettling
	StateRunning
	StateDeactivating
)

func (s State) String() string {
	switch s {
	case StateStartup:
		return "STARTUP"
	case StateError:
		return "ERROR"
	case StateDisabled:
		return "DISABLED"
	case StateActivating1:
		return "ACTIVATING_1"
	case StateActivating2:
		return "ACTIVATING_2"
	case StateSettling:
		return "SETTLING"
	case StateRunning:
		return "RUNNING"
	case StateDeactivating:
		return "DEACTIVATING"
	default:
		return "<INVALID>"
	}
}

// degPerRadGyro converts gyro samples to the filter's deg/s input.
const degPerRadGyro = 57.2958

// lineSettle is the delay after driving the reset line.
const lineSettle = 10 * time.Microsecond

// Gyro is the gyroscope driver.
type Gyro interface {
	Begin() error
	// Read returns the angular rate in rad/s.
	Read() (imu.Vector, error)
}

// AccelMag is the combined accelerometer/magnetometer driver.
type AccelMag interface {
	Begin(rng imu.Range) error
	// Read returns acceleration (m/s^2) and magnetic field (uT).
	Read() (accel, mag imu.Vector, err error)
}

// Filter is the orientation fusion filter.
type Filter interface {
	Begin(rateHz float64)
	Update(gx, gy, gz, ax, ay, az, mx, my, mz float64)
	Roll() float64
	Pitch() float64
	Yaw() float64
}

// Config holds AHRS timing and calibration.
type Config struct {
	SettlingDelay    time.Duration `yaml:"settling_delay"`
	ErrorCooldown    time.Duration `yaml:"error_cooldown"`
	RetryInterval    time.Duration `yaml:"retry_interval"`
	DisabledInterval time.Duration `yaml:"disabled_interval"`
	RunningInterval  time.Duration `yaml:"running_interval"`
	FilterRateHz     float64       `yaml:"filter_rate_hz"`
	Calibration      Calibration   `yaml:"calibration"`
}

// DefaultConfig returns the standard AHRS configuration.
func DefaultConfig() Config {
	return Config{
		SettlingDelay:    5 * time.Second,
		ErrorCooldown:    10 * time.Second,
		RetryInterval:    5 * time.Second,
		DisabledInterval: 100 * time.Millisecond,
		RunningInterval:  10 * time.Millisecond,
		FilterRateHz:     100,
		Calibration:      DefaultCalibration(),
	}
}

// Controller is the AHRS state machine.
type Controller struct {
	*fsm.Machine[State]

	cfg      Config
	reset    gpio.Output
	gyro     Gyro
	accelMag AccelMag
	filter   Filter

	roll, pitch, heading float64
	requestedActive      bool
}

// New creates an AHRS controller. It owns the reset line and the filter.
func New(cfg Config, reset gpio.Output, gyro Gyro, accelMag AccelMag, filter Filter) *Controller {
	c := &Controller{
		cfg:      cfg,
		reset:    reset,
		gyro:     gyro,
		accelMag: accelMag,
		filter:   filter,
	}
	c.Machine = fsm.New[State]("AHRS", StateStartup, c.update)
	return c
}

// SetActive requests that the AHRS be brought up (true) or shut down (false).
func (c *Controller) SetActive(active bool) {
	c.requestedActive = active
}

// Active reports the requested activation.
func (c *Controller) Active() bool {
	return c.requestedActive
}

func (c *Controller) update() bool {
	switch c.State() {
	case StateStartup:
		if !c.driveReset(false) {
			break
		}
		c.RequestTransition(StateDisabled, lineSettle)

	case StateError:
		c.RequestTransition(StateDisabled, c.cfg.ErrorCooldown)

	case StateDisabled:
		if c.requestedActive {
			if !c.driveReset(true) {
				break
			}
			c.RequestTransition(StateActivating1, lineSettle)
		} else {
			if !c.driveReset(false) {
				break
			}
			c.Remain(c.cfg.DisabledInterval)
		}

	case StateActivating1:
		if err := c.gyro.Begin(); err != nil {
			log.Printf("ahrs: gyro begin failed: %v, will retry", err)
			c.Remain(c.cfg.RetryInterval)
			break
		}
		c.RequestTransition(StateActivating2, 0)

	case StateActivating2:
		if err := c.accelMag.Begin(imu.Range2G); err != nil {
			log.Printf("ahrs: accel/mag begin failed: %v, will retry", err)
			c.Remain(c.cfg.RetryInterval)
			break
		}
		// Start the filter, then give it time to settle.
		c.filter.Begin(c.cfg.FilterRateHz)
		c.RequestTransition(StateSettling, 0)

	case StateSettling:
		if !c.fuse() {
			break
		}
		if c.TimeInState() >= c.cfg.SettlingDelay {
			c.RequestTransition(StateRunning, 0)
		}

	case StateRunning:
		if !c.requestedActive {
			c.RequestTransition(StateDeactivating, 0)
			break
		}
		if !c.fuse() {
			break
		}
		c.Remain(c.cfg.RunningInterval)
		return true

	case StateDeactivating:
		c.RequestTransition(StateDisabled, 0)

	default:
		log.Printf("ahrs: unexpected state %v", c.State())
		c.RequestTransition(StateError, 0)
	}

	return false
}

// driveReset sets the reset line, escalating to Error if the line cannot be driven.
func (c *Controller) driveReset(high bool) bool {
	var err error
	if high {
		err = c.reset.High()
	} else {
		err = c.reset.Low()
	}
	if err != nil {
		log.Printf("ahrs: drive reset line: %v", err)
		c.RequestTransition(StateError, 0)
		return false
	}
	return true
}

// fuse reads one sample from each sensor, applies calibration and updates
// the published attitude. A read failure escalates to Error.
func (c *Controller) fuse() bool {
	g, err := c.gyro.Read()
	if err != nil {
		log.Printf("ahrs: gyro read: %v", err)
		c.RequestTransition(StateError, 0)
		return false
	}
	accel, mag, err := c.accelMag.Read()
	if err != nil {
		log.Printf("ahrs: accel/mag read: %v", err)
		c.RequestTransition(StateError, 0)
		return false
	}

	m := c.cfg.Calibration.Mag(mag)
	g = c.cfg.Calibration.Gyro(g)

	// The filter expects deg/s; the driver reports rad/s.
	g.X *= degPerRadGyro
	g.Y *= degPerRadGyro
	g.Z *= degPerRadGyro

	c.filter.Update(g.X, g.Y, g.Z, accel.X, accel.Y, accel.Z, m.X, m.Y, m.Z)
	c.roll = c.filter.Roll()
	c.pitch = c.filter.Pitch()
	c.heading = c.filter.Yaw()
	return true
}

// Heading returns the last fused heading in degrees. It is stale unless
// HeadingValid reports true.
func (c *Controller) Heading() float64 {
	return c.heading
}

// Roll returns the last fused roll in degrees.
func (c *Controller) Roll() float64 {
	return c.roll
}

// Pitch returns the last fused pitch in degrees.
func (c *Controller) Pitch() float64 {
	return c.pitch
}

// HeadingValid reports whether the heading is current.
func (c *Controller) HeadingValid() bool {
	return c.State() == StateRunning
}

// LogString returns the telemetry record: state, then heading or "-".
func (c *Controller) LogString() string {
	heading := logline.Placeholder
	if c.HeadingValid() {
		heading = strconv.FormatFloat(c.heading, 'f', 2, 64)
	}
	return logline.Format(c.State().String(), heading)
}
