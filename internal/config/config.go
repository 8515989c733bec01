// Package config loads the daemon configuration from YAML.
// Every field has a default, so an empty or missing file yields a runnable setup.
package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/sweeney/roboat-helm/internal/ahrs"
	"github.com/sweeney/roboat-helm/internal/captain"
	"github.com/sweeney/roboat-helm/internal/gpio"
	"github.com/sweeney/roboat-helm/internal/gps"
	"github.com/sweeney/roboat-helm/internal/logbook"
	"github.com/sweeney/roboat-helm/internal/mqtt"
	"github.com/sweeney/roboat-helm/internal/power"
)

// Config is the full daemon configuration.
type Config struct {
	GPIOChip string      `yaml:"gpio_chip"`
	Timing   Timing      `yaml:"timing"`
	AHRS     AHRS        `yaml:"ahrs"`
	GPS      GPS         `yaml:"gps"`
	Power    Power       `yaml:"power"`
	Log      Log         `yaml:"log"`
	Captain  Captain     `yaml:"captain"`
	MQTT     mqtt.Config `yaml:"mqtt"`
	HTTP     HTTP        `yaml:"http"`
}

// Timing drives the outer loop.
type Timing struct {
	Tick      time.Duration `yaml:"tick"`
	Report    time.Duration `yaml:"report"`
	Heartbeat time.Duration `yaml:"heartbeat"` // 0 disables
}

// AHRS wires the attitude controller to its bus and reset line.
type AHRS struct {
	ahrs.Config `yaml:",inline"`
	I2CBus      string `yaml:"i2c_bus"`
	ResetPin    int    `yaml:"reset_pin"`
	Active      bool   `yaml:"active"`
}

// GPS wires the fix manager to its serial device.
type GPS struct {
	gps.Config `yaml:",inline"`
	Device     string `yaml:"device"`
}

// Power wires the power manager to the INA219 and charger status lines.
type Power struct {
	power.Config `yaml:",inline"`
	I2CBus       string `yaml:"i2c_bus"`
	Address      uint16 `yaml:"address"`
	PowerGoodPin int    `yaml:"power_good_pin"`
	Stat1Pin     int    `yaml:"stat1_pin"`
	Stat2Pin     int    `yaml:"stat2_pin"`
}

// Log wires the log manager to its directory and epoch image.
type Log struct {
	logbook.Config `yaml:",inline"`
	Dir            string `yaml:"dir"`
	EEPROMPath     string `yaml:"eeprom_path"`
	Echo           bool   `yaml:"echo"`
}

// Captain wires the handshake controller to its serial device and wake line.
type Captain struct {
	captain.Config `yaml:",inline"`
	Device         string `yaml:"device"`
	WakePin        int    `yaml:"wake_pin"`
}

// HTTP configures the status server. An empty Addr disables it.
type HTTP struct {
	Addr string `yaml:"addr"`
}

// Default returns the configuration used when no file is given.
func Default() *Config {
	return &Config{
		GPIOChip: gpio.DefaultChip,
		Timing: Timing{
			Tick:      time.Millisecond,
			Report:    time.Second,
			Heartbeat: 15 * time.Minute,
		},
		AHRS: AHRS{
			Config:   ahrs.DefaultConfig(),
			ResetPin: gpio.DefaultPinIMUReset,
			Active:   true,
		},
		GPS: GPS{
			Config: gps.DefaultConfig(),
			Device: "/dev/ttyS0",
		},
		Power: Power{
			Config:       power.DefaultConfig(),
			Address:      power.INA219Addr,
			PowerGoodPin: gpio.DefaultPinChargerPG,
			Stat1Pin:     gpio.DefaultPinChargerStat1,
			Stat2Pin:     gpio.DefaultPinChargerStat2,
		},
		Log: Log{
			Config:     logbook.DefaultConfig(),
			Dir:        "/var/lib/roboat-helm/log",
			EEPROMPath: "/var/lib/roboat-helm/eeprom.bin",
		},
		Captain: Captain{
			Config:  captain.DefaultConfig(),
			Device:  "/dev/ttyAMA1",
			WakePin: gpio.DefaultPinCaptainWake,
		},
		MQTT: mqtt.DefaultConfig(),
		HTTP: HTTP{Addr: ":80"},
	}
}

// Load reads a YAML file over the defaults. A missing file is an error;
// absent keys keep their default values.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	return Parse(data)
}

// Parse decodes YAML over the defaults and validates the result.
func Parse(data []byte) (*Config, error) {
	c := Default()
	if err := yaml.Unmarshal(data, c); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	applyDefaults(c)
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return c, nil
}

// applyDefaults restores values that were explicitly zeroed but must be set.
func applyDefaults(c *Config) {
	d := Default()
	if c.GPIOChip == "" {
		c.GPIOChip = d.GPIOChip
	}
	if c.Timing.Tick <= 0 {
		c.Timing.Tick = d.Timing.Tick
	}
	if c.Timing.Report <= 0 {
		c.Timing.Report = d.Timing.Report
	}
	if c.AHRS.FilterRateHz <= 0 {
		c.AHRS.FilterRateHz = d.AHRS.FilterRateHz
	}
	if c.GPS.Baud == 0 {
		c.GPS.Baud = d.GPS.Baud
	}
	if c.Captain.Baud == 0 {
		c.Captain.Baud = d.Captain.Baud
	}
	if c.Power.Address == 0 {
		c.Power.Address = d.Power.Address
	}
	if c.Log.QueueLen <= 0 {
		c.Log.QueueLen = d.Log.QueueLen
	}
	if c.MQTT.ClientID == "" {
		c.MQTT.ClientID = d.MQTT.ClientID
	}
	if c.MQTT.TopicPrefix == "" {
		c.MQTT.TopicPrefix = d.MQTT.TopicPrefix
	}
	if c.MQTT.BufferSize <= 0 {
		c.MQTT.BufferSize = d.MQTT.BufferSize
	}
	if c.MQTT.PublishTimeout <= 0 {
		c.MQTT.PublishTimeout = d.MQTT.PublishTimeout
	}
}

// Validate reports settings that no default can repair.
func (c *Config) Validate() error {
	var errs []error
	if c.Power.MinVolts >= c.Power.MaxVolts {
		errs = append(errs, fmt.Errorf("power: min_volts %.2f must be below max_volts %.2f", c.Power.MinVolts, c.Power.MaxVolts))
	}
	if c.Power.MinMilliamps >= c.Power.MaxMilliamps {
		errs = append(errs, fmt.Errorf("power: min_milliamps %.1f must be below max_milliamps %.1f", c.Power.MinMilliamps, c.Power.MaxMilliamps))
	}
	if c.GPS.MaxFixAge <= 0 {
		errs = append(errs, errors.New("gps: max_fix_age must be positive"))
	}
	if c.Timing.Heartbeat < 0 {
		errs = append(errs, errors.New("timing: heartbeat must not be negative"))
	}
	if c.GPS.Device != "" && c.GPS.Device == c.Captain.Device {
		errs = append(errs, fmt.Errorf("gps and captain share serial device %s", c.GPS.Device))
	}
	pins := map[int]string{}
	for _, p := range []struct {
		name string
		pin  int
	}{
		{"ahrs.reset_pin", c.AHRS.ResetPin},
		{"captain.wake_pin", c.Captain.WakePin},
		{"power.power_good_pin", c.Power.PowerGoodPin},
		{"power.stat1_pin", c.Power.Stat1Pin},
		{"power.stat2_pin", c.Power.Stat2Pin},
	} {
		if other, dup := pins[p.pin]; dup {
			errs = append(errs, fmt.Errorf("pin %d used by both %s and %s", p.pin, other, p.name))
			continue
		}
		pins[p.pin] = p.name
	}
	if len(errs) > 0 {
		return fmt.Errorf("invalid config: %w", errors.Join(errs...))
	}
	return nil
}
