package imu

import (
	"fmt"

	"periph.io/x/conn/v3/i2c"
)

// FXOS8700 registers.
const (
	AccelMagAddr = 0x1F

	amRegStatus     = 0x00
	amRegWhoAmI     = 0x0D
	amRegXYZDataCfg = 0x0E
	amRegCtrl1      = 0x2A
	amRegCtrl2      = 0x2B
	amRegMCtrl1     = 0x5B
	amRegMCtrl2     = 0x5C
	amID            = 0xC7

	amCtrl1Standby  = 0x00
	amCtrl1Active   = 0x15 // active, low noise, 100Hz in hybrid mode
	amCtrl2HighRes  = 0x02
	amMCtrl1Hybrid  = 0x1F // accel + mag, max oversampling
	amMCtrl2AutoInc = 0x20

	magSensitivity = 0.1 // uT/LSB
)

// AccelMag is an FXOS8700 combined accelerometer and magnetometer.
type AccelMag struct {
	dev *i2c.Dev
	rng Range
}

// NewAccelMag returns the sensor on bus at addr. No I/O is done until Begin.
func NewAccelMag(bus i2c.Bus, addr uint16) *AccelMag {
	return &AccelMag{dev: &i2c.Dev{Addr: addr, Bus: bus}}
}

// Begin checks the chip ID and starts hybrid accel/mag sampling at rng.
func (a *AccelMag) Begin(rng Range) error {
	id, err := readRegs(a.dev, amRegWhoAmI, 1)
	if err != nil {
		return fmt.Errorf("accelmag: %w", err)
	}
	if id[0] != amID {
		return fmt.Errorf("accelmag: unexpected id 0x%02x", id[0])
	}
	for _, w := range [][2]byte{
		{amRegCtrl1, amCtrl1Standby},
		{amRegXYZDataCfg, byte(rng)},
		{amRegCtrl2, amCtrl2HighRes},
		{amRegCtrl1, amCtrl1Active},
		{amRegMCtrl1, amMCtrl1Hybrid},
		{amRegMCtrl2, amMCtrl2AutoInc},
	} {
		if err := writeReg(a.dev, w[0], w[1]); err != nil {
			return fmt.Errorf("accelmag: %w", err)
		}
	}
	a.rng = rng
	return nil
}

// Read returns acceleration in m/s^2 and magnetic field in uT.
func (a *AccelMag) Read() (accel, mag Vector, err error) {
	b, err := readRegs(a.dev, amRegStatus, 13)
	if err != nil {
		return Vector{}, Vector{}, fmt.Errorf("accelmag: %w", err)
	}
	// Accel samples are 14-bit, left justified.
	as := a.rng.sensitivity() * standardGravity
	accel = Vector{
		X: float64(be16(b[1], b[2])>>2) * as,
		Y: float64(be16(b[3], b[4])>>2) * as,
		Z: float64(be16(b[5], b[6])>>2) * as,
	}
	mag = Vector{
		X: float64(be16(b[7], b[8])) * magSensitivity,
		Y: float64(be16(b[9], b[10])) * magSensitivity,
		Z: float64(be16(b[11], b[12])) * magSensitivity,
	}
	return accel, mag, nil
}
