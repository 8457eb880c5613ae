// Command dust-relay switches a dust extractor on while a machine on the
// same mains circuit draws power.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/alecthomas/kong"
	"github.com/charmbracelet/log"
	"go.bug.st/serial"

	"github.com/sweeney/dust-relay/internal/adc"
	"github.com/sweeney/dust-relay/internal/config"
	"github.com/sweeney/dust-relay/internal/device"
	"github.com/sweeney/dust-relay/internal/gpio"
	"github.com/sweeney/dust-relay/internal/nvparam"
	"github.com/sweeney/dust-relay/internal/status"
	"github.com/sweeney/dust-relay/internal/watchdog"
)

var version = "1.0.0"

type cli struct {
	Verbose bool   `help:"Enable debug logging"`
	Config  string `short:"c" help:"Config file, HCL or YAML (default: search the standard locations)"`

	Run    struct{} `cmd:"" default:"1" help:"Run the relay controller"`
	Params struct{} `cmd:"" help:"List the stored parameters"`
	Set    struct {
		Index int `arg:"" help:"Parameter number as listed by params (1-based)"`
		Value int `arg:"" help:"New value"`
	} `cmd:"" help:"Change a stored parameter"`
	Reset      struct{} `cmd:"" help:"Restore all parameters to their defaults"`
	Status     struct{} `cmd:"" help:"Print the last status written by the daemon"`
	ShowConfig struct {
		Write string `help:"Write the configuration to this YAML file instead of printing it"`
	} `cmd:"" name:"config" help:"Print the effective configuration as YAML"`
}

func main() {
	var c cli
	kctx := kong.Parse(&c,
		kong.Name("dust-relay"),
		kong.Description("Dust extractor relay controller"),
	)
	if c.Verbose {
		log.SetLevel(log.DebugLevel)
	}

	path := c.Config
	if path == "" {
		path = config.FindPath()
	}
	cfg, err := config.Load(path)
	if err != nil {
		log.Fatal("Invalid configuration", "err", err)
	}

	if err := dispatch(kctx.Command(), &c, cfg, os.Stdout); err != nil {
		log.Fatal("fatal", "err", err)
	}
}

func dispatch(command string, c *cli, cfg *config.Config, out io.Writer) error {
	switch command {
	case "run":
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		defer signal.Stop(sigCh)

		ctx, cancel := signalContext(sigCh)
		defer cancel()
		return runDaemon(ctx, cfg, status.NewTracker(time.Now(), status.Config{}))

	case "params":
		return withStore(cfg, func(s *nvparam.Store) error {
			return printParams(out, s)
		})

	case "set <index> <value>":
		return withStore(cfg, func(s *nvparam.Store) error {
			return setParam(s, c.Set.Index, c.Set.Value)
		})

	case "reset":
		return withStore(cfg, func(s *nvparam.Store) error {
			if err := s.ResetAll(); err != nil {
				return err
			}
			log.Info("Parameters reset to defaults")
			return nil
		})

	case "status":
		st, err := status.ReadFile(cfg.Status.Path)
		if err != nil {
			return err
		}
		data, err := json.MarshalIndent(st, "", "  ")
		if err != nil {
			return err
		}
		_, err = fmt.Fprintf(out, "%s\n", data)
		return err

	case "config":
		if c.ShowConfig.Write != "" {
			if err := cfg.Save(c.ShowConfig.Write); err != nil {
				return err
			}
			log.Info("Configuration written", "path", c.ShowConfig.Write)
			return nil
		}
		data, err := cfg.Marshal()
		if err != nil {
			return err
		}
		_, err = out.Write(data)
		return err
	}
	return fmt.Errorf("unknown command %q", command)
}

// signalContext is cancelled on the first signal, with the signal name as
// the cause.
func signalContext(sig <-chan os.Signal) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancelCause(context.Background())
	go func() {
		select {
		case s := <-sig:
			log.Info("Shutting down", "signal", s)
			cancel(errors.New(signalName(s)))
		case <-ctx.Done():
		}
	}()
	return ctx, func() { cancel(nil) }
}

func signalName(s os.Signal) string {
	switch s {
	case syscall.SIGINT:
		return "SIGINT"
	case syscall.SIGTERM:
		return "SIGTERM"
	}
	return "UNKNOWN"
}

// runDaemon runs the pipeline and restarts it from initialisation after
// every watchdog expiry.
func runDaemon(ctx context.Context, cfg *config.Config, tracker *status.Tracker) error {
	if cfg.Status.Path != "" {
		if err := os.MkdirAll(filepath.Dir(cfg.Status.Path), 0o755); err != nil {
			log.Warn("Status directory unavailable", "err", err)
		}
	}

	log.Info("Starting dust-relay", "version", version)
	for {
		err := runOnce(ctx, cfg, tracker)
		if !errors.Is(err, watchdog.ErrExpired) {
			return err
		}
		log.Warn("watchdog reset", "restarts", tracker.Snapshot().Restarts)
	}
}

func runOnce(ctx context.Context, cfg *config.Config, tracker *status.Tracker) error {
	hw, err := openHardware(cfg)
	if err != nil {
		return err
	}
	defer hw.Close()

	timer, err := adc.NewTimerConfig(cfg.Device.SysClock, cfg.Device.SampleRate)
	if err != nil {
		return err
	}

	opts := device.Options{
		Board:           hw.board,
		EEPROM:          hw.eeprom,
		Converter:       hw.converter,
		Timer:           timer,
		SampleRate:      cfg.Device.SampleRate,
		WindowBits:      cfg.Device.WindowBits,
		WatchdogTimeout: cfg.Watchdog.Timeout,
		Heartbeat:       cfg.Heartbeat.Interval,
		Tracker:         tracker,
		StatusPath:      cfg.Status.Path,
		FrontEnd:        hw.frontEnd,
		Version:         version,
	}
	// A nil port must stay a nil interface.
	if hw.serial != nil {
		opts.Serial = hw.serial
	}

	d, err := device.New(opts)
	if err != nil {
		return err
	}
	return d.Run(ctx)
}

// hardware is one set of opened devices, released together.
type hardware struct {
	board     gpio.Board
	eeprom    nvparam.EEPROM
	converter adc.Converter
	serial    serial.Port
	frontEnd  string

	closers []io.Closer
}

func (h *hardware) Close() {
	for i := len(h.closers) - 1; i >= 0; i-- {
		if err := h.closers[i].Close(); err != nil {
			log.Warn("Close failed", "err", err)
		}
	}
}

func openHardware(cfg *config.Config) (_ *hardware, err error) {
	hw := &hardware{}
	defer func() {
		if err != nil {
			hw.Close()
		}
	}()

	eeprom, closer, err := openEEPROM(cfg.EEPROM)
	if err != nil {
		return nil, err
	}
	hw.eeprom = eeprom
	if closer != nil {
		hw.closers = append(hw.closers, closer)
	}

	if cfg.GPIO.Enabled {
		board, err := gpio.NewRealBoard(gpio.Pins{
			Chip:  cfg.GPIO.Chip,
			Relay: cfg.GPIO.RelayPin,
			LED:   cfg.GPIO.LEDPin,
			Key:   cfg.GPIO.KeyPin,
		})
		if err != nil {
			return nil, fmt.Errorf("init gpio: %w", err)
		}
		hw.board = board
	} else {
		log.Warn("GPIO disabled, relay and LED are simulated")
		hw.board = gpio.NewFakeBoard(nil)
	}
	hw.closers = append(hw.closers, hw.board)

	if cfg.FrontEnd.Simulate {
		hw.converter = adc.NewSynth(
			float64(cfg.Device.SampleRate),
			cfg.FrontEnd.SynthFrequency,
			cfg.FrontEnd.SynthAmplitude,
			cfg.FrontEnd.SynthNoise,
		)
		hw.frontEnd = "synth"
	} else {
		conv, err := adc.OpenSerialConverter(cfg.FrontEnd.Port, cfg.FrontEnd.Baud)
		if err != nil {
			return nil, err
		}
		hw.converter = conv
		hw.frontEnd = cfg.FrontEnd.Port
		hw.closers = append(hw.closers, conv)
	}

	if cfg.Console.Port != "" {
		port, err := serial.Open(cfg.Console.Port, &serial.Mode{
			BaudRate: cfg.Console.Baud,
			DataBits: 8,
			Parity:   serial.NoParity,
			StopBits: serial.OneStopBit,
		})
		if err != nil {
			return nil, fmt.Errorf("open console %s: %w", cfg.Console.Port, err)
		}
		hw.serial = port
		hw.closers = append(hw.closers, port)
	}

	return hw, nil
}

// openEEPROM opens the persisted image, or an in-memory one when no path
// is configured.
func openEEPROM(cfg config.EEPROMConfig) (nvparam.EEPROM, io.Closer, error) {
	if cfg.Path == "" {
		log.Warn("No EEPROM path, parameters will not persist")
		return nvparam.NewMemory(cfg.Size), nil, nil
	}
	if err := os.MkdirAll(filepath.Dir(cfg.Path), 0o755); err != nil {
		return nil, nil, fmt.Errorf("create eeprom directory: %w", err)
	}
	f, err := nvparam.OpenFile(cfg.Path, cfg.Size)
	if err != nil {
		return nil, nil, err
	}
	return f, f, nil
}

// withStore opens and validates the parameter store for a one-shot command.
func withStore(cfg *config.Config, fn func(*nvparam.Store) error) error {
	eeprom, closer, err := openEEPROM(cfg.EEPROM)
	if err != nil {
		return err
	}
	if closer != nil {
		defer closer.Close()
	}

	s, err := nvparam.New(eeprom, nvparam.Table)
	if err != nil {
		return err
	}
	if _, err := s.Init(); err != nil {
		return err
	}
	return fn(s)
}

func printParams(out io.Writer, s *nvparam.Store) error {
	for i := 0; i < s.Len(); i++ {
		label, min, max, err := s.Range(nvparam.Index(i))
		if err != nil {
			return err
		}
		v, err := s.Get(nvparam.Index(i))
		if err != nil {
			return err
		}
		if _, err := fmt.Fprintf(out, "%2d %-18s %-28s %6d  [%d:%d]\n", i+1, nvparam.Table[i].Name, label, v, min, max); err != nil {
			return err
		}
	}
	return nil
}

// setParam applies a 1-based index and an unbounded value the way the
// console does.
func setParam(s *nvparam.Store, index, value int) error {
	i := nvparam.Index(index - 1)
	var err error
	switch {
	case i < 0 || int(i) >= s.Len():
		err = nvparam.ErrIndexOutOfRange
	case value > math.MaxInt16:
		err = nvparam.ErrValueTooLarge
	case value < math.MinInt16:
		err = nvparam.ErrValueTooSmall
	default:
		err = s.Set(i, nvparam.Value(value))
	}
	if err != nil {
		return fmt.Errorf("set parameter %d: %w", index, err)
	}
	log.Info("Parameter set", "index", index, "name", nvparam.Table[i].Name, "value", value)
	return nil
}
