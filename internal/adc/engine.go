// Package adc implements the oversampling acquisition engine.
//
// The timer starts a burst of conversions once per sampling period. Each
// burst accumulates 16 raw conversions into one decimated sample, which is
// handed to the foreground loop through a single-slot mailbox.
//
// Tick and Complete are the interrupt handlers. TakeTick and TakeValue are
// the foreground's read-and-clear operations. All of them run inside the
// engine's critical section, the equivalent of disabling interrupts.
package adc

import "sync"

const (
	// Oversampling is the number of raw conversions per decimated sample.
	Oversampling = 16
	// DecimationShift normalises the 16-sample sum to a 12-bit result.
	DecimationShift = 2

	rawBits = 10
	signBit = 1 << (rawBits - 1)
	rawMask = 1<<rawBits - 1
)

// Engine holds the acquisition state shared between the interrupt context
// and the foreground loop.
type Engine struct {
	mu sync.Mutex

	armed    bool  // timer running
	frontEnd bool  // conversions accepted
	sum      int16 // running sum of the current burst
	count    uint8 // mod-16 burst counter

	value      int16
	newValue   bool
	newStarted bool
}

// NewEngine returns a shut-down engine. Call Init to start acquisition.
func NewEngine() *Engine {
	return &Engine{}
}

// Init clears the flags and decimation state and starts the timer.
// It may be called repeatedly and from either context.
func (e *Engine) Init() {
	e.mu.Lock()
	e.newValue = false
	e.newStarted = false
	e.sum = 0
	e.count = 0
	e.frontEnd = false
	e.armed = true
	e.mu.Unlock()
}

// Shutdown stops the timer and the front end and drops pending flags, so
// no stale completion is seen after a later Init.
func (e *Engine) Shutdown() {
	e.mu.Lock()
	e.armed = false
	e.frontEnd = false
	e.newValue = false
	e.newStarted = false
	e.mu.Unlock()
}

// Abort drops the burst in progress and closes the front end until the
// next Tick.
func (e *Engine) Abort() {
	e.mu.Lock()
	e.sum = 0
	e.count = 0
	e.frontEnd = false
	e.mu.Unlock()
}

// Running reports whether the timer is armed.
func (e *Engine) Running() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.armed
}

// Tick is the timer period handler. It powers the front end for the next
// burst and flags a new conversion start.
func (e *Engine) Tick() {
	e.mu.Lock()
	if e.armed {
		e.frontEnd = true
		e.newStarted = true
	}
	e.mu.Unlock()
}

// Converting reports whether the front end accepts conversions. A burst
// ends by itself after Oversampling completions.
func (e *Engine) Converting() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.frontEnd
}

// Complete is the conversion-complete handler. raw is the 10-bit two's
// complement result of a bipolar conversion. It reports whether this
// completion published a new decimated sample.
func (e *Engine) Complete(raw uint16) bool {
	e.mu.Lock()
	defer e.mu.Unlock()

	if !e.frontEnd {
		return false
	}

	e.sum += SignExtend(raw)
	e.count = (e.count + 1) & (Oversampling - 1)
	if e.count != 0 {
		return false
	}

	// Overwrites an unread value: the mailbox holds one sample only.
	e.value = e.sum >> DecimationShift
	e.newValue = true
	e.sum = 0
	e.frontEnd = false
	return true
}

// TakeValue returns the pending decimated sample and clears the flag.
func (e *Engine) TakeValue() (int16, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if !e.newValue {
		return 0, false
	}
	e.newValue = false
	return e.value, true
}

// TakeTick reports whether a conversion burst started since the last call
// and clears the flag.
func (e *Engine) TakeTick() bool {
	e.mu.Lock()
	defer e.mu.Unlock()

	started := e.newStarted
	e.newStarted = false
	return started
}

// SignExtend widens a 10-bit two's complement conversion to int16.
func SignExtend(raw uint16) int16 {
	raw &= rawMask
	if raw&signBit != 0 {
		return int16(raw | ^uint16(rawMask))
	}
	return int16(raw)
}

// Encode is the inverse of SignExtend, clamping v to the 10-bit range.
func Encode(v int16) uint16 {
	switch {
	case v > signBit-1:
		v = signBit - 1
	case v < -signBit:
		v = -signBit
	}
	return uint16(v) & rawMask
}
