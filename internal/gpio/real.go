//go:build linux

package gpio

import (
	"fmt"

	"github.com/warthog618/go-gpiocdev"
)

// RealBoard drives GPIO on actual hardware using Linux GPIO character device.
type RealBoard struct {
	chip  *gpiocdev.Chip
	relay *gpiocdev.Line
	led   *gpiocdev.Line
	key   *gpiocdev.Line
}

// NewRealBoard requests the relay and LED as outputs driven low and the key
// as an input with pull-up.
func NewRealBoard(pins Pins) (*RealBoard, error) {
	chip, err := gpiocdev.NewChip(pins.Chip)
	if err != nil {
		return nil, fmt.Errorf("open gpio chip: %w", err)
	}

	b := &RealBoard{chip: chip}

	b.relay, err = chip.RequestLine(pins.Relay, gpiocdev.AsOutput(0))
	if err != nil {
		b.Close()
		return nil, fmt.Errorf("request relay pin %d: %w", pins.Relay, err)
	}

	b.led, err = chip.RequestLine(pins.LED, gpiocdev.AsOutput(0))
	if err != nil {
		b.Close()
		return nil, fmt.Errorf("request LED pin %d: %w", pins.LED, err)
	}

	b.key, err = chip.RequestLine(pins.Key, gpiocdev.AsInput, gpiocdev.WithPullUp)
	if err != nil {
		b.Close()
		return nil, fmt.Errorf("request key pin %d: %w", pins.Key, err)
	}

	return b, nil
}

// SetRelay drives the relay line.
func (b *RealBoard) SetRelay(closed bool) error {
	if err := b.relay.SetValue(boolToValue(closed)); err != nil {
		return fmt.Errorf("set relay pin: %w", err)
	}
	return nil
}

// SetLED drives the LED line.
func (b *RealBoard) SetLED(on bool) error {
	if err := b.led.SetValue(boolToValue(on)); err != nil {
		return fmt.Errorf("set LED pin: %w", err)
	}
	return nil
}

// KeyDown reads the key line. Inverts raw GPIO: raw 0 = pressed.
func (b *RealBoard) KeyDown() (bool, error) {
	raw, err := b.key.Value()
	if err != nil {
		return false, fmt.Errorf("read key pin: %w", err)
	}
	return raw == 0, nil
}

// Close releases GPIO resources.
// The relay is opened and the LED switched off before the lines are released
// so the extractor never stays on after shutdown.
func (b *RealBoard) Close() error {
	var errs []error

	for _, out := range []struct {
		name string
		line *gpiocdev.Line
	}{{"relay", b.relay}, {"LED", b.led}} {
		if out.line == nil {
			continue
		}
		if err := out.line.SetValue(0); err != nil {
			errs = append(errs, fmt.Errorf("reset %s pin: %w", out.name, err))
		}
		if err := out.line.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close %s pin: %w", out.name, err))
		}
	}
	if b.key != nil {
		if err := b.key.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close key pin: %w", err))
		}
	}
	if b.chip != nil {
		if err := b.chip.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close chip: %w", err))
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("close errors: %v", errs)
	}
	return nil
}
