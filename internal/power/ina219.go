package power

import (
	"errors"
	"fmt"
	"math"

	"periph.io/x/conn/v3/i2c"
	"periph.io/x/conn/v3/physic"
	"periph.io/x/devices/v3/ina219"
)

// INA219Addr is the default address of the INA219 (A0, A1 grounded).
const INA219Addr = 0x40

const (
	inaShunt      = 100 * physic.MilliOhm
	inaMaxCurrent = 3276800 * physic.MicroAmpere

	inaRegCalibration = 0x05
)

var errNotBegun = errors.New("ina219: Begin not called")

// INA219 is the battery bus monitor, driven through periph's ina219 package.
type INA219 struct {
	bus  i2c.Bus
	addr uint16
	dev  *ina219.Dev
	lsb  physic.ElectricCurrent
}

// NewINA219 returns a monitor for the chip at addr on bus. Nothing is sent
// until Begin.
func NewINA219(bus i2c.Bus, addr uint16) *INA219 {
	return &INA219{bus: bus, addr: addr}
}

// Begin configures and calibrates the chip for a 0.1 ohm shunt.
func (c *INA219) Begin() error {
	dev, err := ina219.New(c.bus, &ina219.Opts{
		Address:       int(c.addr),
		SenseResistor: inaShunt,
		MaxCurrent:    inaMaxCurrent,
	})
	if err != nil {
		return fmt.Errorf("ina219 begin: %w", err)
	}
	lsb, err := c.currentLSB()
	if err != nil {
		return fmt.Errorf("ina219 begin: %w", err)
	}
	c.dev = dev
	c.lsb = lsb
	return nil
}

// currentLSB derives the current register scale from the calibration the
// driver programmed: cal = 0.04096 / (LSB * Rshunt). The driver keeps its
// own LSB unexported.
func (c *INA219) currentLSB() (physic.ElectricCurrent, error) {
	var buf [2]byte
	dev := &i2c.Dev{Bus: c.bus, Addr: c.addr}
	if err := dev.Tx([]byte{inaRegCalibration}, buf[:]); err != nil {
		return 0, fmt.Errorf("read calibration: %w", err)
	}
	cal := uint16(buf[0])<<8 | uint16(buf[1])
	if cal == 0 {
		return 0, errors.New("calibration register is zero")
	}
	ohms := float64(inaShunt) / float64(physic.Ohm)
	amps := 0.04096 / (float64(cal) * ohms)
	return physic.ElectricCurrent(math.Round(amps * float64(physic.Ampere))), nil
}

// BusVoltage returns the bus voltage in volts.
func (c *INA219) BusVoltage() (float64, error) {
	if c.dev == nil {
		return 0, errNotBegun
	}
	pm, err := c.dev.Sense()
	if err != nil {
		return 0, fmt.Errorf("ina219 bus voltage: %w", err)
	}
	return float64(pm.Voltage) / float64(physic.Volt), nil
}

// Current returns the shunt current in mA.
func (c *INA219) Current() (float64, error) {
	if c.dev == nil {
		return 0, errNotBegun
	}
	// A chip reset clears the calibration; rewrite it before every read.
	if err := c.dev.Calibrate(inaShunt, inaMaxCurrent); err != nil {
		return 0, fmt.Errorf("ina219 current: %w", err)
	}
	pm, err := c.dev.Sense()
	if err != nil {
		return 0, fmt.Errorf("ina219 current: %w", err)
	}
	return float64(signedCurrent(pm.Current, c.lsb)) / float64(physic.MilliAmpere), nil
}

// signedCurrent reinterprets a current scaled by lsb as a two's complement
// register value. Readings already negative pass through unchanged.
func signedCurrent(i, lsb physic.ElectricCurrent) physic.ElectricCurrent {
	raw := int64(math.Round(float64(i) / float64(lsb)))
	if raw >= 1<<15 {
		raw -= 1 << 16
	}
	return physic.ElectricCurrent(raw) * lsb
}
