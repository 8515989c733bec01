package imu

import (
	"fmt"
	"math"

	"periph.io/x/conn/v3/i2c"
)

// FXAS21002C registers.
const (
	GyroAddr = 0x21

	gyroRegStatus = 0x00
	gyroRegWhoAmI = 0x0C
	gyroRegCtrl0  = 0x0D
	gyroRegCtrl1  = 0x13
	gyroID        = 0xD7

	gyroCtrl1Standby = 0x00
	gyroCtrl1Reset   = 0x40
	gyroCtrl1Active  = 0x0E // active, 100Hz output data rate
	gyroCtrl0Range   = 0x03 // 250 dps

	gyroSensitivity = 0.0078125 // dps/LSB at 250 dps
)

// Gyro is an FXAS21002C three-axis gyroscope.
type Gyro struct {
	dev *i2c.Dev
}

// NewGyro returns a gyroscope on bus at addr. No I/O is done until Begin.
func NewGyro(bus i2c.Bus, addr uint16) *Gyro {
	return &Gyro{dev: &i2c.Dev{Addr: addr, Bus: bus}}
}

// Begin checks the chip ID, resets the part and starts it at 250 dps, 100Hz.
// The part needs ~60ms to produce valid output after this returns.
func (g *Gyro) Begin() error {
	id, err := readRegs(g.dev, gyroRegWhoAmI, 1)
	if err != nil {
		return fmt.Errorf("gyro: %w", err)
	}
	if id[0] != gyroID {
		return fmt.Errorf("gyro: unexpected id 0x%02x", id[0])
	}
	for _, w := range [][2]byte{
		{gyroRegCtrl1, gyroCtrl1Standby},
		{gyroRegCtrl1, gyroCtrl1Reset},
		{gyroRegCtrl0, gyroCtrl0Range},
		{gyroRegCtrl1, gyroCtrl1Active},
	} {
		if err := writeReg(g.dev, w[0], w[1]); err != nil {
			return fmt.Errorf("gyro: %w", err)
		}
	}
	return nil
}

// Read returns the angular rate in rad/s.
func (g *Gyro) Read() (Vector, error) {
	b, err := readRegs(g.dev, gyroRegStatus, 7)
	if err != nil {
		return Vector{}, fmt.Errorf("gyro: %w", err)
	}
	scale := gyroSensitivity * math.Pi / 180
	return Vector{
		X: float64(be16(b[1], b[2])) * scale,
		Y: float64(be16(b[3], b[4])) * scale,
		Z: float64(be16(b[5], b[6])) * scale,
	}, nil
}
