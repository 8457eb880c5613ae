// Package key debounces a single push button and classifies pushes as
// short or long. Scan must be called at about 50 Hz.
package key

// Debounce and long-push thresholds, in scans at ScanRate Hz.
const (
	DebounceCycles = 3
	LongCycles     = 40
	ScanRate       = 50
)

// Push is a debounced key event.
type Push string

const (
	Short Push = "SHORT"
	Long  Push = "LONG"
)

// Handler receives key events.
type Handler interface {
	HandleKey(Push)
}

// HandlerFunc adapts a function to Handler.
type HandlerFunc func(Push)

// HandleKey calls f(p).
func (f HandlerFunc) HandleKey(p Push) { f(p) }

type state int

const (
	idle state = iota
	single
	long
)

// Scanner is the key debounce state machine.
type Scanner struct {
	handler Handler
	state   state
	downs   uint8
}

// NewScanner returns an idle scanner delivering events to h.
func NewScanner(h Handler) *Scanner {
	return &Scanner{handler: h}
}

// Scan samples the key once. down is the raw level, true when pressed.
func (s *Scanner) Scan(down bool) {
	if down {
		switch s.state {
		case idle:
			s.downs++
			if s.downs > DebounceCycles {
				s.state = single
			}
		case single:
			s.downs++
			if s.downs > LongCycles {
				// Fires while still held.
				s.state = long
				s.handler.HandleKey(Long)
			}
		}
		return
	}

	switch s.state {
	case idle:
	case single:
		if s.downs > DebounceCycles {
			s.handler.HandleKey(Short)
		}
		s.state = idle
	case long:
		s.state = idle
	}
	s.downs = 0
}
