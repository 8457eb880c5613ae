// Package gpio drives the relay, the mode LED and reads the mode key.
// The real implementation uses Linux GPIO character device.
// The fake implementation allows testing without hardware.
package gpio

// Board is the device's digital I/O.
type Board interface {
	// SetRelay closes (true) or opens (false) the extractor relay.
	SetRelay(closed bool) error

	// SetLED drives the mode indicator.
	SetLED(on bool) error

	// KeyDown reports whether the mode key is pressed.
	// The key is wired active low: raw 0 = pressed.
	KeyDown() (bool, error)

	// Close drives the outputs low and releases GPIO resources.
	Close() error
}

// Default pin definitions (BCM numbering)
const (
	PinRelay = 17
	PinLED   = 27
	PinKey   = 22
)

// Pins selects the chip and line offsets of the board.
type Pins struct {
	Chip  string
	Relay int
	LED   int
	Key   int
}

// DefaultPins returns the reference wiring on gpiochip0.
func DefaultPins() Pins {
	return Pins{Chip: "gpiochip0", Relay: PinRelay, LED: PinLED, Key: PinKey}
}

func boolToValue(b bool) int {
	if b {
		return 1
	}
	return 0
}

var (
	_ Board = (*RealBoard)(nil)
	_ Board = (*FakeBoard)(nil)
)
