package adc

import (
	"fmt"
	"time"
)

// Timer limits of the sampling timer: a 10-bit compare register and
// power-of-two prescalers up to 16384.
const (
	maxCompare   = 1023
	maxPrescaler = 16384
)

// TimerConfig is the prescaler/compare pair that gives the sampling period.
type TimerConfig struct {
	SysClock  uint32
	Prescaler uint32
	Compare   uint32
}

// NewTimerConfig picks the smallest prescaler whose compare value fits the
// timer for the requested rate. It fails when no prescaler fits.
func NewTimerConfig(sysClock, rate uint32) (TimerConfig, error) {
	if sysClock == 0 || rate == 0 {
		return TimerConfig{}, fmt.Errorf("timer: invalid clock %d Hz / rate %d Hz", sysClock, rate)
	}

	for p := uint32(1); p <= maxPrescaler; p <<= 1 {
		top := uint64(sysClock) / (uint64(rate) * uint64(p))
		if top < 2 {
			break
		}
		if top-1 <= maxCompare {
			return TimerConfig{SysClock: sysClock, Prescaler: p, Compare: uint32(top - 1)}, nil
		}
	}

	return TimerConfig{}, fmt.Errorf("timer: no prescaler fits %d Hz from a %d Hz clock", rate, sysClock)
}

// Period returns the time between two timer ticks.
func (c TimerConfig) Period() time.Duration {
	ticks := uint64(c.Compare+1) * uint64(c.Prescaler)
	return time.Duration(ticks * uint64(time.Second) / uint64(c.SysClock))
}

// Rate returns the actual tick rate in Hz.
func (c TimerConfig) Rate() float64 {
	return float64(c.SysClock) / (float64(c.Compare+1) * float64(c.Prescaler))
}
