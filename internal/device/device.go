// Package device runs the foreground loop that ties acquisition,
// estimation and control together.
package device

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/charmbracelet/log"

	"github.com/sweeney/dust-relay/internal/adc"
	"github.com/sweeney/dust-relay/internal/gpio"
	"github.com/sweeney/dust-relay/internal/key"
	"github.com/sweeney/dust-relay/internal/logic"
	"github.com/sweeney/dust-relay/internal/nvparam"
	"github.com/sweeney/dust-relay/internal/spectral"
	"github.com/sweeney/dust-relay/internal/status"
	"github.com/sweeney/dust-relay/internal/watchdog"
)

// rxQueueSize bounds console bytes waiting for the foreground.
const rxQueueSize = 64

// Options wires a device to its hardware.
type Options struct {
	Board     gpio.Board
	EEPROM    nvparam.EEPROM
	Converter adc.Converter

	// Serial carries the console and the reading stream. nil disables both.
	Serial io.ReadWriter

	// Timer paces the sampler. SampleRate is the nominal decimated rate the
	// estimator and key prescaler are computed from.
	Timer      adc.TimerConfig
	SampleRate uint32
	WindowBits uint

	WatchdogTimeout time.Duration
	Heartbeat       time.Duration

	// Tracker, if set, is updated every window and written to StatusPath.
	Tracker    *status.Tracker
	StatusPath string
	FrontEnd   string

	Version string
	Now     func() time.Time
}

// Device is one instance of the pipeline, from initialisation to either
// shutdown or a watchdog expiry.
type Device struct {
	opts Options

	store     *nvparam.Store
	estimator *spectral.Estimator
	machine   *logic.Machine
	scanner   *key.Scanner
	engine    *adc.Engine
	sampler   *adc.Sampler
	watchdog  *watchdog.Watchdog
	tracker   *status.Tracker

	wake chan struct{}
	rx   chan byte

	ratio       float32
	prescaleTop int
	ticks       int
	relay       bool
	led         bool
}

// New initialises the store, estimator, state machine, key scanner and
// engine in that order and drives the outputs to their idle levels.
func New(opts Options) (*Device, error) {
	if opts.Board == nil || opts.EEPROM == nil || opts.Converter == nil {
		return nil, errors.New("device: board, eeprom and converter are required")
	}
	if opts.Timer.SysClock == 0 {
		return nil, errors.New("device: timer not configured")
	}
	if opts.SampleRate < key.ScanRate {
		return nil, fmt.Errorf("device: sample rate %d Hz below key scan rate", opts.SampleRate)
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}

	store, err := nvparam.New(opts.EEPROM, nvparam.Table)
	if err != nil {
		return nil, fmt.Errorf("init parameters: %w", err)
	}
	if _, err := store.Init(); err != nil {
		return nil, fmt.Errorf("init parameters: %w", err)
	}

	d := &Device{
		opts:        opts,
		store:       store,
		engine:      adc.NewEngine(),
		watchdog:    watchdog.New(opts.WatchdogTimeout),
		wake:        make(chan struct{}, 1),
		rx:          make(chan byte, rxQueueSize),
		prescaleTop: int(opts.SampleRate / key.ScanRate),
	}

	if err := d.loadParams(); err != nil {
		return nil, err
	}
	d.machine = logic.NewMachine(d.settings(), logic.StartMode(store.Int(nvparam.RestartInAutoMode)), opts.Now())
	d.scanner = key.NewScanner(d.machine)
	d.sampler = adc.NewSampler(d.engine, opts.Converter, opts.Timer, d.signal)

	d.tracker = opts.Tracker
	if d.tracker == nil {
		d.tracker = status.NewTracker(opts.Now(), d.statusConfig())
	} else {
		d.tracker.SetConfig(d.statusConfig())
	}

	if err := opts.Board.SetRelay(false); err != nil {
		return nil, fmt.Errorf("init relay: %w", err)
	}
	if err := opts.Board.SetLED(false); err != nil {
		return nil, fmt.Errorf("init LED: %w", err)
	}

	log.Info("Device initialised",
		"mode", d.machine.Mode(),
		"threshold", d.machine.Settings().High,
		"center_frequency", store.Int(nvparam.CenterFrequency),
		"window", d.estimator.WindowLength(),
		"ratio", d.ratio)
	return d, nil
}

// loadParams (re)builds the estimator and the calibration ratio from the
// stored parameters.
func (d *Device) loadParams() error {
	est, err := spectral.New(
		float32(d.store.Int(nvparam.CenterFrequency)),
		float32(d.opts.SampleRate),
		d.opts.WindowBits,
	)
	if err != nil {
		return fmt.Errorf("init estimator: %w", err)
	}
	d.estimator = est
	d.ratio = float32(d.store.Int(nvparam.FFTToWattRatio)) / 1000
	return nil
}

func (d *Device) settings() logic.Settings {
	return logic.NewSettings(
		d.store.Int(nvparam.PowerThreshold),
		d.store.Int(nvparam.KeepOnAfter),
		float64(d.estimator.WindowsPerSecond()),
	)
}

func (d *Device) statusConfig() status.Config {
	return status.Config{
		SampleRate:      int(d.opts.SampleRate),
		WindowLength:    d.estimator.WindowLength(),
		CenterFrequency: d.store.Int(nvparam.CenterFrequency),
		ThresholdWatts:  d.store.Int(nvparam.PowerThreshold),
		KeepOnAfterSec:  d.store.Int(nvparam.KeepOnAfter),
		Calibration:     d.store.Int(nvparam.FFTToWattRatio),
		HeartbeatMs:     d.opts.Heartbeat.Milliseconds(),
		FrontEnd:        d.opts.FrontEnd,
	}
}

// Store returns the parameter store.
func (d *Device) Store() *nvparam.Store {
	return d.store
}

// Machine returns the control state machine.
func (d *Device) Machine() *logic.Machine {
	return d.machine
}

// signal wakes the foreground loop. It never blocks.
func (d *Device) signal() {
	select {
	case d.wake <- struct{}{}:
	default:
	}
}

// Run starts acquisition and services it until ctx is done, which returns
// nil, or the watchdog expires, which returns watchdog.ErrExpired.
func (d *Device) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	d.engine.Init()
	go d.sampler.Run(ctx)
	if d.opts.Serial != nil {
		go d.receive(ctx)
	}

	d.watchdog.Start()
	defer d.watchdog.Stop()

	d.writeStatus("STARTUP", "")
	log.Info("Acquisition started", "period", d.opts.Timer.Period(), "rate", d.opts.Timer.Rate())

	for {
		select {
		case <-ctx.Done():
			d.engine.Shutdown()
			d.writeStatus("SHUTDOWN", shutdownReason(ctx))
			return nil

		case <-d.watchdog.Expired():
			d.engine.Shutdown()
			d.tracker.AddRestart()
			d.writeStatus("WATCHDOG", "window timeout")
			return watchdog.ErrExpired

		case b := <-d.rx:
			d.excursion(ctx, b)

		case <-d.wake:
			d.service()
		}
	}
}

// service handles every pending flag: a burst start, then a sample.
func (d *Device) service() {
	if d.engine.TakeTick() {
		d.tick()
	}
	if v, ok := d.engine.TakeValue(); ok {
		d.sample(v)
	}
}

// tick prescales the acquisition tick down to the key scan rate.
func (d *Device) tick() {
	d.ticks++
	if d.ticks <= d.prescaleTop {
		return
	}
	d.ticks = 0

	down, err := d.opts.Board.KeyDown()
	if err != nil {
		log.Warn("Key read failed", "err", err)
	} else {
		before := d.machine.Mode()
		d.scanner.Scan(down)
		if mode := d.machine.Mode(); mode != before {
			log.Info("Mode changed", "from", before, "to", mode)
		}
	}

	led := d.machine.UpdateIndicator()
	if led == d.led {
		return
	}
	if err := d.opts.Board.SetLED(led); err != nil {
		log.Warn("LED write failed", "err", err)
		return
	}
	d.led = led
}

// sample feeds the estimator and, on a full window, runs the controller.
func (d *Device) sample(v int16) {
	if !d.estimator.Feed(v) {
		return
	}
	now := d.opts.Now()

	power := toWatts(d.estimator.Result(), d.ratio)
	d.estimator.Reset()

	relay, tr := d.machine.Process(power, now)
	if relay != d.relay {
		if err := d.opts.Board.SetRelay(relay); err != nil {
			log.Error("Relay write failed", "err", err)
		} else {
			d.relay = relay
		}
	}

	d.stream(power)
	d.watchdog.Kick()

	if tr != nil {
		log.Info("Relay decision", "from", tr.From, "to", tr.To, "power", tr.Power, "mode", tr.Mode)
	}
	d.tracker.Update(d.machine.Mode(), d.machine.Decision(), d.relay, power, d.machine.Counts())

	if hb := d.machine.CheckHeartbeat(now, d.opts.Heartbeat); hb != nil {
		log.Info("Heartbeat",
			"uptime", hb.Uptime.Truncate(time.Second),
			"mode", hb.Mode,
			"decision", hb.Decision,
			"closings", hb.Counts.Closings,
			"openings", hb.Counts.Openings)
		d.writeStatus("HEARTBEAT", "")
	}
}

// toWatts scales an estimate by the calibration ratio, saturating at 65535.
func toWatts(estimate, ratio float32) uint16 {
	w := estimate * ratio
	switch {
	case w <= 0:
		return 0
	case w >= 65535:
		return 65535
	}
	return uint16(w)
}

// stream writes one reading to the serial port.
func (d *Device) stream(power uint16) {
	if d.opts.Serial == nil {
		return
	}
	if _, err := fmt.Fprintf(d.opts.Serial, "%d\r\n", power); err != nil {
		log.Debug("Reading not streamed", "err", err)
	}
}

func (d *Device) writeStatus(event, reason string) {
	if d.opts.StatusPath == "" {
		return
	}
	data := status.FormatStatusEvent(d.tracker.Snapshot(), event, reason)
	if err := status.WriteFile(d.opts.StatusPath, data); err != nil {
		log.Warn("Status not written", "event", event, "err", err)
	}
}

func shutdownReason(ctx context.Context) string {
	if cause := context.Cause(ctx); cause != nil && !errors.Is(cause, context.Canceled) {
		return cause.Error()
	}
	return ""
}
