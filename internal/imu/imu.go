// Package imu drives the NXP FXAS21002C gyroscope and FXOS8700 accelerometer/
// magnetometer over I2C. Only bring-up and sample reads are implemented.
package imu

import (
	"fmt"

	"periph.io/x/conn/v3/i2c"
)

// Vector is a three-axis sample.
type Vector struct {
	X, Y, Z float64
}

// Range is the accelerometer full-scale range.
type Range byte

const (
	Range2G Range = 0x00
	Range4G Range = 0x01
	Range8G Range = 0x02
)

const standardGravity = 9.80665

func (r Range) sensitivity() float64 {
	switch r {
	case Range4G:
		return 0.000488
	case Range8G:
		return 0.000976
	default:
		return 0.000244
	}
}

func (r Range) String() string {
	switch r {
	case Range2G:
		return "2G"
	case Range4G:
		return "4G"
	case Range8G:
		return "8G"
	default:
		return fmt.Sprintf("Range(%d)", byte(r))
	}
}

func writeReg(d *i2c.Dev, reg, v byte) error {
	if err := d.Tx([]byte{reg, v}, nil); err != nil {
		return fmt.Errorf("write reg 0x%02x: %w", reg, err)
	}
	return nil
}

func readRegs(d *i2c.Dev, reg byte, n int) ([]byte, error) {
	buf := make([]byte, n)
	if err := d.Tx([]byte{reg}, buf); err != nil {
		return nil, fmt.Errorf("read reg 0x%02x: %w", reg, err)
	}
	return buf, nil
}

func be16(hi, lo byte) int16 {
	return int16(uint16(hi)<<8 | uint16(lo))
}
