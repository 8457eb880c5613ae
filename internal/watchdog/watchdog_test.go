package watchdog

import (
	"testing"
	"time"
)

func expired(w *Watchdog, within time.Duration) bool {
	select {
	case <-w.Expired():
		return true
	case <-time.After(within):
		return false
	}
}

func TestExpiresWithoutKick(t *testing.T) {
	w := New(20 * time.Millisecond)
	w.Start()
	defer w.Stop()

	if !expired(w, time.Second) {
		t.Fatal("expected watchdog to expire")
	}
}

func TestDisarmedNeverExpires(t *testing.T) {
	w := New(10 * time.Millisecond)
	if expired(w, 50*time.Millisecond) {
		t.Fatal("watchdog expired before Start")
	}
}

func TestKickKeepsAlive(t *testing.T) {
	w := New(50 * time.Millisecond)
	w.Start()
	defer w.Stop()

	deadline := time.Now().Add(200 * time.Millisecond)
	for time.Now().Before(deadline) {
		select {
		case <-w.Expired():
			t.Fatal("watchdog expired despite kicks")
		case <-time.After(5 * time.Millisecond):
			w.Kick()
		}
	}
}

func TestStopDisarms(t *testing.T) {
	w := New(20 * time.Millisecond)
	w.Start()
	w.Stop()

	if expired(w, 80*time.Millisecond) {
		t.Fatal("stopped watchdog expired")
	}

	// Re-arming after Stop works.
	w.Start()
	if !expired(w, time.Second) {
		t.Fatal("expected re-armed watchdog to expire")
	}
}

func TestKickWhileStoppedIsIgnored(t *testing.T) {
	w := New(10 * time.Millisecond)
	w.Kick()
	if expired(w, 40*time.Millisecond) {
		t.Fatal("kick must not arm the watchdog")
	}
}

func TestDefaultTimeout(t *testing.T) {
	if got := New(0).Timeout(); got != DefaultTimeout {
		t.Errorf("expected %v, got %v", DefaultTimeout, got)
	}
	if got := New(3 * time.Second).Timeout(); got != 3*time.Second {
		t.Errorf("expected 3s, got %v", got)
	}
}
