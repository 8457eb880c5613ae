package adc

import (
	"encoding/binary"
	"fmt"
	"io"
	"math"
	"math/rand"
	"time"

	"go.bug.st/serial"
)

// SerialConverter reads conversions from an external analog front end that
// streams raw results as little-endian 16-bit words.
type SerialConverter struct {
	port serial.Port
	buf  [2]byte
}

// OpenSerialConverter opens the front end link at the given baud rate, 8N1.
func OpenSerialConverter(name string, baud int) (*SerialConverter, error) {
	port, err := serial.Open(name, &serial.Mode{
		BaudRate: baud,
		DataBits: 8,
		Parity:   serial.NoParity,
		StopBits: serial.OneStopBit,
	})
	if err != nil {
		return nil, fmt.Errorf("open front end %s: %w", name, err)
	}
	if err := port.SetReadTimeout(time.Second); err != nil {
		port.Close()
		return nil, fmt.Errorf("set front end timeout: %w", err)
	}
	return &SerialConverter{port: port}, nil
}

// Convert reads the next raw word from the link.
func (c *SerialConverter) Convert() (uint16, error) {
	if _, err := io.ReadFull(timeoutReader{c.port}, c.buf[:]); err != nil {
		return 0, fmt.Errorf("read front end: %w", err)
	}
	return binary.LittleEndian.Uint16(c.buf[:]) & rawMask, nil
}

// Close releases the link.
func (c *SerialConverter) Close() error {
	return c.port.Close()
}

// timeoutReader turns the zero-byte read of an expired serial timeout into
// an error, so io.ReadFull does not spin.
type timeoutReader struct {
	r io.Reader
}

func (t timeoutReader) Read(p []byte) (int, error) {
	n, err := t.r.Read(p)
	if n == 0 && err == nil {
		return 0, fmt.Errorf("front end timeout")
	}
	return n, err
}

// Synth simulates the current sensor: a sinusoid at Frequency with the
// given Amplitude and Offset in ADC counts, plus uniform Noise. The
// conversion rate is SampleRate·Oversampling.
type Synth struct {
	Frequency  float64
	Amplitude  float64
	Offset     float64
	Noise      float64
	SampleRate float64

	n   uint64
	rng *rand.Rand
}

// NewSynth creates a synthesiser for the given application sample rate.
func NewSynth(sampleRate, frequency, amplitude, noise float64) *Synth {
	return &Synth{
		Frequency:  frequency,
		Amplitude:  amplitude,
		Noise:      noise,
		SampleRate: sampleRate,
		rng:        rand.New(rand.NewSource(1)),
	}
}

// Convert returns the next simulated conversion.
func (s *Synth) Convert() (uint16, error) {
	convRate := s.SampleRate * Oversampling
	phase := 2 * math.Pi * s.Frequency * float64(s.n) / convRate
	s.n++

	v := s.Offset + s.Amplitude*math.Sin(phase)
	if s.Noise > 0 && s.rng != nil {
		v += (s.rng.Float64()*2 - 1) * s.Noise
	}
	return Encode(int16(math.Round(clamp(v, -signBit, signBit-1)))), nil
}

func clamp(v, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, v))
}
