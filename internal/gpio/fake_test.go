package gpio

import (
	"errors"
	"testing"
)

func TestFakeBoardKeyDown(t *testing.T) {
	f := NewFakeBoard([]bool{true, false, true})

	for i, want := range []bool{true, false, true} {
		got, err := f.KeyDown()
		if err != nil {
			t.Fatalf("sample %d: unexpected error: %v", i, err)
		}
		if got != want {
			t.Errorf("sample %d: expected %v, got %v", i, want, got)
		}
	}

	// Exhausted script reads as released
	got, err := f.KeyDown()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got {
		t.Error("expected key released after script ends")
	}
}

func TestFakeBoardReadError(t *testing.T) {
	f := NewFakeBoard([]bool{true})
	f.ReadError = errors.New("simulated error")

	_, err := f.KeyDown()
	if err == nil {
		t.Fatal("expected error to be returned")
	}
	if err.Error() != "simulated error" {
		t.Errorf("unexpected error: %v", err)
	}
}

func TestFakeBoardRecordsOutputs(t *testing.T) {
	f := NewFakeBoard(nil)

	f.SetRelay(true)
	f.SetRelay(false)
	f.SetRelay(true)
	f.SetLED(true)

	if !f.Relay {
		t.Error("expected relay closed")
	}
	if len(f.RelayHistory) != 3 {
		t.Errorf("expected 3 relay writes, got %d", len(f.RelayHistory))
	}
	if !f.LED || len(f.LEDHistory) != 1 {
		t.Errorf("expected one LED write on, got %v", f.LEDHistory)
	}

	closed, writes := f.RelayState()
	if !closed || writes != 3 {
		t.Errorf("expected (true, 3), got (%v, %d)", closed, writes)
	}
}

func TestFakeBoardWriteError(t *testing.T) {
	f := NewFakeBoard(nil)
	f.WriteError = errors.New("simulated error")

	if err := f.SetRelay(true); err == nil {
		t.Error("expected relay write error")
	}
	if err := f.SetLED(true); err == nil {
		t.Error("expected LED write error")
	}
	if f.Relay || len(f.RelayHistory) != 0 {
		t.Error("failed write must not be recorded")
	}
}

func TestFakeBoardClose(t *testing.T) {
	f := NewFakeBoard(nil)
	f.SetRelay(true)
	f.SetLED(true)

	if f.Closed {
		t.Error("should not be closed initially")
	}

	if err := f.Close(); err != nil {
		t.Errorf("unexpected error: %v", err)
	}

	if !f.Closed {
		t.Error("should be closed after Close()")
	}
	if f.Relay || f.LED {
		t.Error("outputs should be low after Close()")
	}
	if err := f.Close(); err == nil {
		t.Error("expected error on second Close()")
	}
}

func TestFakeBoardReset(t *testing.T) {
	f := NewFakeBoard([]bool{true, false})

	// Consume first sample
	f.KeyDown()
	f.SetRelay(true)

	// Reset
	f.Reset()

	// Should read first sample again
	down, _ := f.KeyDown()
	if !down {
		t.Error("after reset: expected first sample again")
	}
	if len(f.RelayHistory) != 0 {
		t.Error("after reset: expected empty relay history")
	}
}

func TestDefaultPins(t *testing.T) {
	p := DefaultPins()
	if p.Chip != "gpiochip0" {
		t.Errorf("expected gpiochip0, got %s", p.Chip)
	}
	if p.Relay == p.LED || p.LED == p.Key || p.Relay == p.Key {
		t.Errorf("pins must be distinct: %+v", p)
	}
}

func TestFakeBoardStateAccessors(t *testing.T) {
	f := NewFakeBoard([]bool{true, true, false})

	f.SetLED(true)
	f.SetLED(false)
	if on, writes := f.LEDState(); on || writes != 2 {
		t.Errorf("expected LED off after 2 writes, got %v/%d", on, writes)
	}

	f.KeyDown()
	f.KeyDown()
	if n := f.KeyReads(); n != 2 {
		t.Errorf("expected 2 key reads, got %d", n)
	}
}
