package ahrs

import "math"

const (
	degPerRad = 57.29578
	radPerDeg = 0.0174533

	defaultBeta       = 0.1
	defaultSampleFreq = 512.0
)

// Madgwick is the gradient-descent MARG orientation filter of S. Madgwick,
// following the reference Arduino implementation: gyro input in deg/s,
// Euler outputs in degrees, yaw in [0, 360).
type Madgwick struct {
	beta           float64
	invSampleFreq  float64
	q0, q1, q2, q3 float64
}

// NewMadgwick returns a filter at the identity orientation.
func NewMadgwick() *Madgwick {
	return &Madgwick{
		beta:          defaultBeta,
		invSampleFreq: 1 / defaultSampleFreq,
		q0:            1,
	}
}

// Begin sets the update rate the filter integrates at.
func (f *Madgwick) Begin(rateHz float64) {
	if rateHz > 0 {
		f.invSampleFreq = 1 / rateHz
	}
}

// Update integrates one gyro (deg/s), accelerometer and magnetometer sample.
// Accel and mag units are arbitrary; both are normalised.
func (f *Madgwick) Update(gx, gy, gz, ax, ay, az, mx, my, mz float64) {
	// Without a magnetometer reading, fall back to the IMU-only update.
	if mx == 0 && my == 0 && mz == 0 {
		f.UpdateIMU(gx, gy, gz, ax, ay, az)
		return
	}

	gx *= radPerDeg
	gy *= radPerDeg
	gz *= radPerDeg

	q0, q1, q2, q3 := f.q0, f.q1, f.q2, f.q3

	// Rate of change of quaternion from gyroscope
	qDot1 := 0.5 * (-q1*gx - q2*gy - q3*gz)
	qDot2 := 0.5 * (q0*gx + q2*gz - q3*gy)
	qDot3 := 0.5 * (q0*gy - q1*gz + q3*gx)
	qDot4 := 0.5 * (q0*gz + q1*gy - q2*gx)

	if !(ax == 0 && ay == 0 && az == 0) {
		recipNorm := invSqrt(ax*ax + ay*ay + az*az)
		ax *= recipNorm
		ay *= recipNorm
		az *= recipNorm

		recipNorm = invSqrt(mx*mx + my*my + mz*mz)
		mx *= recipNorm
		my *= recipNorm
		mz *= recipNorm

		_2q0mx := 2 * q0 * mx
		_2q0my := 2 * q0 * my
		_2q0mz := 2 * q0 * mz
		_2q1mx := 2 * q1 * mx
		_2q0 := 2 * q0
		_2q1 := 2 * q1
		_2q2 := 2 * q2
		_2q3 := 2 * q3
		_2q0q2 := 2 * q0 * q2
		_2q2q3 := 2 * q2 * q3
		q0q0 := q0 * q0
		q0q1 := q0 * q1
		q0q2 := q0 * q2
		q0q3 := q0 * q3
		q1q1 := q1 * q1
		q1q2 := q1 * q2
		q1q3 := q1 * q3
		q2q2 := q2 * q2
		q2q3 := q2 * q3
		q3q3 := q3 * q3

		// Reference direction of Earth's magnetic field
		hx := mx*q0q0 - _2q0my*q3 + _2q0mz*q2 + mx*q1q1 + _2q1*my*q2 + _2q1*mz*q3 - mx*q2q2 - mx*q3q3
		hy := _2q0mx*q3 + my*q0q0 - _2q0mz*q1 + _2q1mx*q2 - my*q1q1 + my*q2q2 + _2q2*mz*q3 - my*q3q3
		_2bx := math.Sqrt(hx*hx + hy*hy)
		_2bz := -_2q0mx*q2 + _2q0my*q1 + mz*q0q0 + _2q1mx*q3 - mz*q1q1 + _2q2*my*q3 - mz*q2q2 + mz*q3q3
		_4bx := 2 * _2bx
		_4bz := 2 * _2bz

		// Objective function residuals
		fgx := 2*q1q3 - _2q0q2 - ax
		fgy := 2*q0q1 + _2q2q3 - ay
		fgz := 1 - 2*q1q1 - 2*q2q2 - az
		fmx := _2bx*(0.5-q2q2-q3q3) + _2bz*(q1q3-q0q2) - mx
		fmy := _2bx*(q1q2-q0q3) + _2bz*(q0q1+q2q3) - my
		fmz := _2bx*(q0q2+q1q3) + _2bz*(0.5-q1q1-q2q2) - mz

		// Gradient descent step
		s0 := -_2q2*fgx + _2q1*fgy - _2bz*q2*fmx + (-_2bx*q3+_2bz*q1)*fmy + _2bx*q2*fmz
		s1 := _2q3*fgx + _2q0*fgy - 4*q1*fgz + _2bz*q3*fmx + (_2bx*q2+_2bz*q0)*fmy + (_2bx*q3-_4bz*q1)*fmz
		s2 := -_2q0*fgx + _2q3*fgy - 4*q2*fgz + (-_4bx*q2-_2bz*q0)*fmx + (_2bx*q1+_2bz*q3)*fmy + (_2bx*q0-_4bz*q2)*fmz
		s3 := _2q1*fgx + _2q2*fgy + (-_4bx*q3+_2bz*q1)*fmx + (-_2bx*q0+_2bz*q2)*fmy + _2bx*q1*fmz

		if n := s0*s0 + s1*s1 + s2*s2 + s3*s3; n > 0 {
			recipNorm = invSqrt(n)
			qDot1 -= f.beta * s0 * recipNorm
			qDot2 -= f.beta * s1 * recipNorm
			qDot3 -= f.beta * s2 * recipNorm
			qDot4 -= f.beta * s3 * recipNorm
		}
	}

	f.integrate(qDot1, qDot2, qDot3, qDot4)
}

// UpdateIMU integrates one gyro (deg/s) and accelerometer sample.
func (f *Madgwick) UpdateIMU(gx, gy, gz, ax, ay, az float64) {
	gx *= radPerDeg
	gy *= radPerDeg
	gz *= radPerDeg

	q0, q1, q2, q3 := f.q0, f.q1, f.q2, f.q3

	qDot1 := 0.5 * (-q1*gx - q2*gy - q3*gz)
	qDot2 := 0.5 * (q0*gx + q2*gz - q3*gy)
	qDot3 := 0.5 * (q0*gy - q1*gz + q3*gx)
	qDot4 := 0.5 * (q0*gz + q1*gy - q2*gx)

	if !(ax == 0 && ay == 0 && az == 0) {
		recipNorm := invSqrt(ax*ax + ay*ay + az*az)
		ax *= recipNorm
		ay *= recipNorm
		az *= recipNorm

		_2q0 := 2 * q0
		_2q1 := 2 * q1
		_2q2 := 2 * q2
		_2q3 := 2 * q3
		_4q0 := 4 * q0
		_4q1 := 4 * q1
		_4q2 := 4 * q2
		_8q1 := 8 * q1
		_8q2 := 8 * q2
		q0q0 := q0 * q0
		q1q1 := q1 * q1
		q2q2 := q2 * q2
		q3q3 := q3 * q3

		s0 := _4q0*q2q2 + _2q2*ax + _4q0*q1q1 - _2q1*ay
		s1 := _4q1*q3q3 - _2q3*ax + 4*q0q0*q1 - _2q0*ay - _4q1 + _8q1*q1q1 + _8q1*q2q2 + _4q1*az
		s2 := 4*q0q0*q2 + _2q0*ax + _4q2*q3q3 - _2q3*ay - _4q2 + _8q2*q1q1 + _8q2*q2q2 + _4q2*az
		s3 := 4*q1q1*q3 - _2q1*ax + 4*q2q2*q3 - _2q2*ay

		if n := s0*s0 + s1*s1 + s2*s2 + s3*s3; n > 0 {
			recipNorm = invSqrt(n)
			qDot1 -= f.beta * s0 * recipNorm
			qDot2 -= f.beta * s1 * recipNorm
			qDot3 -= f.beta * s2 * recipNorm
			qDot4 -= f.beta * s3 * recipNorm
		}
	}

	f.integrate(qDot1, qDot2, qDot3, qDot4)
}

func (f *Madgwick) integrate(qDot1, qDot2, qDot3, qDot4 float64) {
	q0 := f.q0 + qDot1*f.invSampleFreq
	q1 := f.q1 + qDot2*f.invSampleFreq
	q2 := f.q2 + qDot3*f.invSampleFreq
	q3 := f.q3 + qDot4*f.invSampleFreq

	recipNorm := invSqrt(q0*q0 + q1*q1 + q2*q2 + q3*q3)
	f.q0 = q0 * recipNorm
	f.q1 = q1 * recipNorm
	f.q2 = q2 * recipNorm
	f.q3 = q3 * recipNorm
}

// Roll returns the roll angle in degrees.
func (f *Madgwick) Roll() float64 {
	return math.Atan2(f.q0*f.q1+f.q2*f.q3, 0.5-f.q1*f.q1-f.q2*f.q2) * degPerRad
}

// Pitch returns the pitch angle in degrees.
func (f *Madgwick) Pitch() float64 {
	v := -2 * (f.q1*f.q3 - f.q0*f.q2)
	return math.Asin(math.Max(-1, math.Min(1, v))) * degPerRad
}

// Yaw returns the yaw angle in degrees, offset into [0, 360).
func (f *Madgwick) Yaw() float64 {
	y := math.Atan2(f.q1*f.q2+f.q0*f.q3, 0.5-f.q2*f.q2-f.q3*f.q3)*degPerRad + 180
	if y >= 360 {
		y -= 360
	}
	return y
}

// Quaternion returns the current orientation.
func (f *Madgwick) Quaternion() (w, x, y, z float64) {
	return f.q0, f.q1, f.q2, f.q3
}

func invSqrt(x float64) float64 {
	return 1 / math.Sqrt(x)
}
