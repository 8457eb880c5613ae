package main

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"syscall"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"github.com/sweeney/dust-relay/internal/config"
	"github.com/sweeney/dust-relay/internal/nvparam"
	"github.com/sweeney/dust-relay/internal/status"
)

// testConfig runs without hardware, persisting state under a temp dir.
func testConfig(t *testing.T) *config.Config {
	t.Helper()
	dir := t.TempDir()
	cfg := config.Default()
	cfg.GPIO.Enabled = false
	cfg.FrontEnd.Simulate = true
	cfg.FrontEnd.SynthNoise = 0
	cfg.Console.Port = ""
	cfg.EEPROM.Path = filepath.Join(dir, "eeprom.bin")
	cfg.Status.Path = filepath.Join(dir, "run", "status.json")
	return cfg
}

func TestSignalName(t *testing.T) {
	if got := signalName(syscall.SIGINT); got != "SIGINT" {
		t.Errorf("got %q, want SIGINT", got)
	}
	if got := signalName(syscall.SIGTERM); got != "SIGTERM" {
		t.Errorf("got %q, want SIGTERM", got)
	}
	if got := signalName(syscall.SIGHUP); got != "UNKNOWN" {
		t.Errorf("got %q, want UNKNOWN", got)
	}
}

func TestSignalContextCause(t *testing.T) {
	sig := make(chan os.Signal, 1)
	ctx, cancel := signalContext(sig)
	defer cancel()

	sig <- syscall.SIGTERM
	select {
	case <-ctx.Done():
	case <-time.After(time.Second):
		t.Fatal("context not cancelled on signal")
	}
	if cause := context.Cause(ctx); cause == nil || cause.Error() != "SIGTERM" {
		t.Errorf("expected cause SIGTERM, got %v", cause)
	}
}

func TestParamsListsDefaults(t *testing.T) {
	cfg := testConfig(t)
	var out bytes.Buffer
	require.NoError(t, dispatch("params", &cli{}, cfg, &out))

	lines := strings.Split(strings.TrimSpace(out.String()), "\n")
	require.Len(t, lines, len(nvparam.Table))
	assert.Contains(t, lines[0], "powerThreshold")
	assert.Contains(t, lines[0], "50  [30:9999]")
	assert.Contains(t, lines[3], "3380  [1:32767]")
}

func TestSetPersists(t *testing.T) {
	cfg := testConfig(t)
	c := &cli{}
	c.Set.Index = 1
	c.Set.Value = 120
	require.NoError(t, dispatch("set <index> <value>", c, cfg, &bytes.Buffer{}))

	var out bytes.Buffer
	require.NoError(t, dispatch("params", &cli{}, cfg, &out))
	assert.Contains(t, out.String(), "120  [30:9999]")
}

func TestSetRejectsOutOfRange(t *testing.T) {
	cfg := testConfig(t)
	tests := []struct {
		index, value int
		want         error
	}{
		{1, 10, nvparam.ErrValueTooSmall},
		{1, 10000, nvparam.ErrValueTooLarge},
		{1, 99999, nvparam.ErrValueTooLarge},
		{4, -40000, nvparam.ErrValueTooSmall},
		{9, 1, nvparam.ErrIndexOutOfRange},
		{0, 1, nvparam.ErrIndexOutOfRange},
		{0, 40000, nvparam.ErrIndexOutOfRange},
		{9, -40000, nvparam.ErrIndexOutOfRange},
	}
	for _, tt := range tests {
		c := &cli{}
		c.Set.Index = tt.index
		c.Set.Value = tt.value
		err := dispatch("set <index> <value>", c, cfg, &bytes.Buffer{})
		if !errors.Is(err, tt.want) {
			t.Errorf("set %d %d: expected %v, got %v", tt.index, tt.value, tt.want, err)
		}
	}
}

func TestResetRestoresDefaults(t *testing.T) {
	cfg := testConfig(t)
	c := &cli{}
	c.Set.Index = 3
	c.Set.Value = 30
	require.NoError(t, dispatch("set <index> <value>", c, cfg, &bytes.Buffer{}))
	require.NoError(t, dispatch("reset", &cli{}, cfg, &bytes.Buffer{}))

	var out bytes.Buffer
	require.NoError(t, dispatch("params", &cli{}, cfg, &out))
	assert.Contains(t, out.String(), "5  [0:99]")
}

func TestConfigPrintsYAML(t *testing.T) {
	cfg := testConfig(t)
	var out bytes.Buffer
	require.NoError(t, dispatch("config", &cli{}, cfg, &out))

	var got map[string]any
	require.NoError(t, yaml.Unmarshal(out.Bytes(), &got))
	assert.Contains(t, got, "device")
	assert.Contains(t, got, "frontend")
}

func TestConfigWritesFile(t *testing.T) {
	cfg := testConfig(t)
	cfg.Heartbeat.Interval = time.Minute
	path := filepath.Join(t.TempDir(), "dust-relay.yaml")

	c := &cli{}
	c.ShowConfig.Write = path
	var out bytes.Buffer
	require.NoError(t, dispatch("config", c, cfg, &out))
	assert.Empty(t, out.String())

	loaded, err := config.Load(path)
	require.NoError(t, err)
	assert.Equal(t, cfg.EEPROM.Path, loaded.EEPROM.Path)
	assert.True(t, loaded.FrontEnd.Simulate)
	assert.Equal(t, time.Minute, loaded.Heartbeat.Interval)
}

func TestStatusWithoutDaemon(t *testing.T) {
	cfg := testConfig(t)
	err := dispatch("status", &cli{}, cfg, &bytes.Buffer{})
	assert.Error(t, err)
}

func TestUnknownCommand(t *testing.T) {
	assert.Error(t, dispatch("probe", &cli{}, testConfig(t), &bytes.Buffer{}))
}

func TestRunDaemonSimulated(t *testing.T) {
	cfg := testConfig(t)
	tracker := status.NewTracker(time.Now(), status.Config{})

	ctx, cancel := context.WithCancelCause(context.Background())
	done := make(chan error, 1)
	go func() { done <- runDaemon(ctx, cfg, tracker) }()

	// The default synthesised load is well above the threshold.
	deadline := time.Now().Add(10 * time.Second)
	for tracker.Snapshot().PowerWatts == 0 {
		if time.Now().After(deadline) {
			t.Fatal("no power reading")
		}
		time.Sleep(20 * time.Millisecond)
	}
	cancel(errors.New("SIGINT"))

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("daemon did not stop")
	}

	var out bytes.Buffer
	require.NoError(t, dispatch("status", &cli{}, cfg, &out))
	assert.Contains(t, out.String(), `"event": "SHUTDOWN"`)
	assert.Contains(t, out.String(), `"reason": "SIGINT"`)
	assert.Contains(t, out.String(), `"front_end": "synth"`)
}

func TestRunDaemonMissingFrontEnd(t *testing.T) {
	cfg := testConfig(t)
	cfg.FrontEnd.Simulate = false
	cfg.FrontEnd.Port = filepath.Join(t.TempDir(), "no-such-tty")

	err := runDaemon(context.Background(), cfg, status.NewTracker(time.Now(), status.Config{}))
	assert.Error(t, err)
}
