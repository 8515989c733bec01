package ahrs

import "github.com/sweeney/roboat-helm/internal/imu"

// Calibration holds the per-installation sensor corrections.
// Values come from an offline calibration run; they are never derived at runtime.
type Calibration struct {
	// MagOffsets are subtracted from the raw magnetometer vector (uT).
	MagOffsets [3]float64 `yaml:"mag_offsets"`

	// SoftIron is applied to the offset-corrected magnetometer vector.
	SoftIron [3][3]float64 `yaml:"soft_iron"`

	// FieldStrength is the expected field magnitude (uT), reported for diagnostics.
	FieldStrength float64 `yaml:"field_strength"`

	// GyroZeroOffsets are added to the raw gyro vector (rad/s).
	GyroZeroOffsets [3]float64 `yaml:"gyro_zero_offsets"`
}

// DefaultCalibration returns the constants from the reference calibration run.
func DefaultCalibration() Calibration {
	return Calibration{
		MagOffsets: [3]float64{0.93, -7.47, -35.23},
		SoftIron: [3][3]float64{
			{0.943, 0.011, 0.020},
			{0.022, 0.918, -0.008},
			{0.020, -0.008, 1.156},
		},
		FieldStrength:   50.23,
		GyroZeroOffsets: [3]float64{0, 0, 0},
	}
}

// Mag removes hard- and soft-iron distortion from a magnetometer sample.
func (c Calibration) Mag(m imu.Vector) imu.Vector {
	x := m.X - c.MagOffsets[0]
	y := m.Y - c.MagOffsets[1]
	z := m.Z - c.MagOffsets[2]
	s := c.SoftIron
	return imu.Vector{
		X: x*s[0][0] + y*s[0][1] + z*s[0][2],
		Y: x*s[1][0] + y*s[1][1] + z*s[1][2],
		Z: x*s[2][0] + y*s[2][1] + z*s[2][2],
	}
}

// Gyro applies the zero-rate offsets to a gyro sample.
func (c Calibration) Gyro(g imu.Vector) imu.Vector {
	return imu.Vector{
		X: g.X + c.GyroZeroOffsets[0],
		Y: g.Y + c.GyroZeroOffsets[1],
		Z: g.Z + c.GyroZeroOffsets[2],
	}
}
