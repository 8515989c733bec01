//go:build linux

package gpio

import (
	"fmt"

	"github.com/warthog618/go-gpiocdev"
)

// Chip hands out lines from a Linux GPIO character device and releases them on Close.
type Chip struct {
	chip  *gpiocdev.Chip
	lines []*gpiocdev.Line
}

// OpenChip opens the named GPIO chip (e.g. "gpiochip0").
func OpenChip(name string) (*Chip, error) {
	chip, err := gpiocdev.NewChip(name)
	if err != nil {
		return nil, fmt.Errorf("open gpio chip: %w", err)
	}
	return &Chip{chip: chip}, nil
}

// Input requests offset as an input. Charger status outputs are open-drain,
// so the line is pulled up.
func (c *Chip) Input(offset int) (*RealInput, error) {
	l, err := c.chip.RequestLine(offset, gpiocdev.AsInput, gpiocdev.WithPullUp)
	if err != nil {
		return nil, fmt.Errorf("request input pin %d: %w", offset, err)
	}
	c.lines = append(c.lines, l)
	return &RealInput{line: l, offset: offset}, nil
}

// Output requests offset as an output driven to the given initial level.
func (c *Chip) Output(offset int, high bool) (*RealOutput, error) {
	v := 0
	if high {
		v = 1
	}
	l, err := c.chip.RequestLine(offset, gpiocdev.AsOutput(v))
	if err != nil {
		return nil, fmt.Errorf("request output pin %d: %w", offset, err)
	}
	c.lines = append(c.lines, l)
	return &RealOutput{line: l, offset: offset}, nil
}

// Close releases all lines and the chip.
// Lines are reconfigured to input with pull-down (matching Pi boot defaults)
// before closing so nothing is left driven across a reboot.
func (c *Chip) Close() error {
	var errs []error

	for _, l := range c.lines {
		if err := l.Reconfigure(gpiocdev.AsInput, gpiocdev.WithPullDown); err != nil {
			errs = append(errs, fmt.Errorf("reconfigure pin: %w", err))
		}
		if err := l.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close pin: %w", err))
		}
	}
	c.lines = nil
	if c.chip != nil {
		if err := c.chip.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close chip: %w", err))
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("close errors: %v", errs)
	}
	return nil
}

// RealInput is an input line on a Chip.
type RealInput struct {
	line   *gpiocdev.Line
	offset int
}

// Read returns the raw line level.
func (r *RealInput) Read() (bool, error) {
	v, err := r.line.Value()
	if err != nil {
		return false, fmt.Errorf("read pin %d: %w", r.offset, err)
	}
	return v == 1, nil
}

// RealOutput is an output line on a Chip.
type RealOutput struct {
	line   *gpiocdev.Line
	offset int
}

// High drives the line high.
func (o *RealOutput) High() error {
	if err := o.line.SetValue(1); err != nil {
		return fmt.Errorf("set pin %d high: %w", o.offset, err)
	}
	return nil
}

// Low drives the line low.
func (o *RealOutput) Low() error {
	if err := o.line.SetValue(0); err != nil {
		return fmt.Errorf("set pin %d low: %w", o.offset, err)
	}
	return nil
}
