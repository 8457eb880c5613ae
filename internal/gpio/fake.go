package gpio

import (
	"errors"
	"sync"
)

// FakeBoard is a test double that returns scripted key samples and records
// every output write.
type FakeBoard struct {
	mu sync.Mutex

	// KeySamples contains scripted key levels (true = pressed).
	// Each call to KeyDown() consumes the next sample.
	KeySamples []bool

	// index tracks current position in KeySamples
	index int

	// Relay and LED hold the last written levels.
	Relay bool
	LED   bool

	// RelayHistory and LEDHistory record every write in order.
	RelayHistory []bool
	LEDHistory   []bool

	// Closed tracks if Close was called
	Closed bool

	// ReadError and WriteError, if set, are returned by KeyDown and by the
	// Set methods respectively.
	ReadError  error
	WriteError error
}

// NewFakeBoard creates a FakeBoard with the given key samples.
func NewFakeBoard(keySamples []bool) *FakeBoard {
	return &FakeBoard{KeySamples: keySamples}
}

// SetRelay records the relay level.
func (f *FakeBoard) SetRelay(closed bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.WriteError != nil {
		return f.WriteError
	}
	f.Relay = closed
	f.RelayHistory = append(f.RelayHistory, closed)
	return nil
}

// SetLED records the LED level.
func (f *FakeBoard) SetLED(on bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.WriteError != nil {
		return f.WriteError
	}
	f.LED = on
	f.LEDHistory = append(f.LEDHistory, on)
	return nil
}

// KeyDown returns the next scripted key sample.
// If samples are exhausted, the key reads as released.
func (f *FakeBoard) KeyDown() (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.ReadError != nil {
		return false, f.ReadError
	}

	if f.index >= len(f.KeySamples) {
		return false, nil
	}

	down := f.KeySamples[f.index]
	f.index++
	return down, nil
}

// Close opens the relay, switches the LED off and marks the board as closed.
func (f *FakeBoard) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.Closed {
		return errors.New("already closed")
	}
	f.Relay = false
	f.LED = false
	f.Closed = true
	return nil
}

// RelayState returns the last relay level and the number of writes.
func (f *FakeBoard) RelayState() (bool, int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.Relay, len(f.RelayHistory)
}

// LEDState returns the last LED level and the number of writes.
func (f *FakeBoard) LEDState() (bool, int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.LED, len(f.LEDHistory)
}

// KeyReads returns how many scripted key samples have been consumed.
func (f *FakeBoard) KeyReads() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.index
}

// Reset rewinds the key script and clears the recorded state.
func (f *FakeBoard) Reset() {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.index = 0
	f.Relay = false
	f.LED = false
	f.RelayHistory = nil
	f.LEDHistory = nil
	f.Closed = false
}
