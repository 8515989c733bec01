package ahrs

import (
	"math"
	"testing"
)

func angleDiff(a, b float64) float64 {
	d := math.Mod(a-b+540, 360) - 180
	return math.Abs(d)
}

func TestMadgwickYawStaysBelow360(t *testing.T) {
	f := NewMadgwick()
	// Half a turn about Z puts atan2 at exactly +180 degrees.
	f.q0, f.q1, f.q2, f.q3 = 0, 0, 0, 1

	y := f.Yaw()
	if y < 0 || y >= 360 {
		t.Fatalf("yaw %v outside [0, 360)", y)
	}
	if angleDiff(y, 0) > 1e-9 {
		t.Errorf("yaw: got %v, want 0", y)
	}
}

func TestMadgwickLevelAtRest(t *testing.T) {
	f := NewMadgwick()
	f.Begin(100)

	for i := 0; i < 2000; i++ {
		f.Update(0, 0, 0, 0, 0, 9.8, 20, 0, -40)
	}
	if math.Abs(f.Roll()) > 0.5 || math.Abs(f.Pitch()) > 0.5 {
		t.Errorf("expected level attitude, got roll %.2f pitch %.2f", f.Roll(), f.Pitch())
	}
	if angleDiff(f.Yaw(), 180) > 0.5 {
		t.Errorf("expected yaw 180 for a field along +X, got %.2f", f.Yaw())
	}
}

func TestMadgwickConvergesOnRoll(t *testing.T) {
	f := NewMadgwick()
	f.Begin(100)

	rad := 30 * math.Pi / 180
	for i := 0; i < 3000; i++ {
		f.UpdateIMU(0, 0, 0, 0, 9.8*math.Sin(rad), 9.8*math.Cos(rad))
	}
	if math.Abs(f.Roll()-30) > 1 {
		t.Errorf("roll: got %.2f, want 30", f.Roll())
	}
}

func TestMadgwickFollowsMagneticHeading(t *testing.T) {
	f := NewMadgwick()
	f.Begin(100)

	for i := 0; i < 2000; i++ {
		f.Update(0, 0, 0, 0, 0, 9.8, 20, 0, -40)
	}
	before := f.Yaw()

	for i := 0; i < 5000; i++ {
		f.Update(0, 0, 0, 0, 0, 9.8, 0, -20, -40)
	}
	if d := angleDiff(f.Yaw(), before); math.Abs(d-90) > 2 {
		t.Errorf("heading change: got %.2f, want 90", d)
	}
}

func TestMadgwickZeroMagFallsBackToIMU(t *testing.T) {
	a := NewMadgwick()
	b := NewMadgwick()
	a.Begin(100)
	b.Begin(100)

	for i := 0; i < 50; i++ {
		a.Update(1, 2, 3, 0, 1, 9.7, 0, 0, 0)
		b.UpdateIMU(1, 2, 3, 0, 1, 9.7)
	}
	aw, ax, ay, az := a.Quaternion()
	bw, bx, by, bz := b.Quaternion()
	if aw != bw || ax != bx || ay != by || az != bz {
		t.Error("zero magnetometer should use the 6-axis update")
	}
}

func TestMadgwickIgnoresZeroAccel(t *testing.T) {
	f := NewMadgwick()
	f.Begin(100)
	f.UpdateIMU(0, 0, 0, 0, 0, 0)

	w, x, y, z := f.Quaternion()
	if w != 1 || x != 0 || y != 0 || z != 0 {
		t.Errorf("quaternion moved with no input: %v %v %v %v", w, x, y, z)
	}
}
