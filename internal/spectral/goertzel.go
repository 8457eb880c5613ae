// Package spectral estimates signal amplitude at a single frequency bin.
//
// The estimator runs the Goertzel recurrence one sample at a time, so a
// window is never buffered. It holds two accumulators and a counter.
package spectral

import (
	"fmt"

	"github.com/chewxy/math32"
)

// MaxWindowBits bounds the window length to what the uint16 counter holds.
const MaxWindowBits = 15

// Estimator is a streaming single-bin filter.
type Estimator struct {
	coeff      float32
	sampleRate float32
	length     uint16

	q1, q2 float32
	n      uint16
	done   bool
	result float32
}

// New creates an estimator tuned to centerFrequency for a stream sampled
// at sampleRate, with a window of 2^windowBits samples.
func New(centerFrequency, sampleRate float32, windowBits uint) (*Estimator, error) {
	if sampleRate <= 0 {
		return nil, fmt.Errorf("spectral: invalid sample rate %v", sampleRate)
	}
	if centerFrequency <= 0 || centerFrequency >= sampleRate/2 {
		return nil, fmt.Errorf("spectral: center frequency %v Hz outside (0, %v)", centerFrequency, sampleRate/2)
	}
	if windowBits == 0 || windowBits > MaxWindowBits {
		return nil, fmt.Errorf("spectral: window bits %d outside 1..%d", windowBits, MaxWindowBits)
	}

	return &Estimator{
		coeff:      2 * math32.Cos(2*math32.Pi*centerFrequency/sampleRate),
		sampleRate: sampleRate,
		length:     1 << windowBits,
	}, nil
}

// Feed ingests one sample. It returns true exactly once per window, on the
// sample that completes it; the result is then available from Result.
// Samples fed after that are ignored until Reset.
func (e *Estimator) Feed(sample int16) bool {
	if e.done {
		return false
	}

	q0 := e.coeff*e.q1 - e.q2 + float32(sample)
	e.q2 = e.q1
	e.q1 = q0

	e.n++
	if e.n < e.length {
		return false
	}

	e.done = true
	e.result = e.magnitude()
	return true
}

// magnitude is the single-sided amplitude 2|X|/N of the bin.
func (e *Estimator) magnitude() float32 {
	p := e.q1*e.q1 + e.q2*e.q2 - e.coeff*e.q1*e.q2
	if p < 0 {
		p = 0
	}
	return 2 * math32.Sqrt(p) / float32(e.length)
}

// Reset starts a new window.
func (e *Estimator) Reset() {
	e.q1 = 0
	e.q2 = 0
	e.n = 0
	e.done = false
}

// Result returns the last finalised estimate.
func (e *Estimator) Result() float32 {
	return e.result
}

// WindowLength returns the number of samples per window.
func (e *Estimator) WindowLength() int {
	return int(e.length)
}

// WindowsPerSecond returns the estimate rate at the configured sample rate.
func (e *Estimator) WindowsPerSecond() float32 {
	return e.sampleRate / float32(e.length)
}
