// Package gpio provides digital input and output lines with hardware abstraction.
// The real implementation uses Linux GPIO character device.
// The fake implementation allows testing without hardware.
package gpio

// Input is a digital input line owned by exactly one controller.
type Input interface {
	// Read returns the raw line level: true = high.
	// Active-low signals are inverted by the caller.
	Read() (bool, error)
}

// Output is a digital output line owned by exactly one controller.
type Output interface {
	High() error
	Low() error
}

// Line offsets on gpiochip0 (BCM numbering).
const (
	DefaultPinIMUReset     = 17
	DefaultPinCaptainWake  = 27
	DefaultPinChargerPG    = 5
	DefaultPinChargerStat1 = 6
	DefaultPinChargerStat2 = 13
)

// DefaultChip is the GPIO character device used on the Raspberry Pi.
const DefaultChip = "gpiochip0"
