// Package config loads the daemon configuration from an HCL or YAML file
// and DUSTRELAY_* environment variables, on top of built-in defaults.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/charmbracelet/log"
	"github.com/knadh/koanf/parsers/hcl"
	koanfyaml "github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env/v2"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"

	"github.com/sweeney/dust-relay/internal/gpio"
)

// EnvPrefix is the prefix of configuration environment variables.
// DUSTRELAY_GPIO_RELAY_PIN sets gpio.relay_pin.
const EnvPrefix = "DUSTRELAY_"

// SearchPaths are tried in order when no config file is given.
var SearchPaths = []string{"/etc/dust-relay/config.hcl", "~/.config/dust-relay/config.hcl", "./config.hcl"}

// Config represents the daemon configuration.
type Config struct {
	Device    DeviceConfig    `koanf:"device" yaml:"device"`
	GPIO      GPIOConfig      `koanf:"gpio" yaml:"gpio"`
	FrontEnd  FrontEndConfig  `koanf:"frontend" yaml:"frontend"`
	Console   ConsoleConfig   `koanf:"console" yaml:"console"`
	EEPROM    EEPROMConfig    `koanf:"eeprom" yaml:"eeprom"`
	Watchdog  WatchdogConfig  `koanf:"watchdog" yaml:"watchdog"`
	Heartbeat HeartbeatConfig `koanf:"heartbeat" yaml:"heartbeat"`
	Status    StatusConfig    `koanf:"status" yaml:"status"`
}

// DeviceConfig contains the acquisition timing.
type DeviceConfig struct {
	SysClock   uint32 `koanf:"sys_clock" yaml:"sys_clock"`     // timer clock, Hz
	SampleRate uint32 `koanf:"sample_rate" yaml:"sample_rate"` // decimated rate, Hz
	WindowBits uint   `koanf:"window_bits" yaml:"window_bits"` // estimator window is 2^bits samples
}

// GPIOConfig contains the relay, LED and key wiring.
type GPIOConfig struct {
	Enabled  bool   `koanf:"enabled" yaml:"enabled"` // false uses an in-memory board
	Chip     string `koanf:"chip" yaml:"chip"`
	RelayPin int    `koanf:"relay_pin" yaml:"relay_pin"`
	LEDPin   int    `koanf:"led_pin" yaml:"led_pin"`
	KeyPin   int    `koanf:"key_pin" yaml:"key_pin"`
}

// FrontEndConfig selects where raw conversions come from.
type FrontEndConfig struct {
	Simulate       bool    `koanf:"simulate" yaml:"simulate"`
	Port           string  `koanf:"port" yaml:"port"`
	Baud           int     `koanf:"baud" yaml:"baud"`
	SynthFrequency float64 `koanf:"synth_frequency" yaml:"synth_frequency"` // Hz
	SynthAmplitude float64 `koanf:"synth_amplitude" yaml:"synth_amplitude"` // ADC counts
	SynthNoise     float64 `koanf:"synth_noise" yaml:"synth_noise"`         // ADC counts
}

// ConsoleConfig contains the parameter console port. An empty port
// disables the console and the reading stream.
type ConsoleConfig struct {
	Port string `koanf:"port" yaml:"port"`
	Baud int    `koanf:"baud" yaml:"baud"`
}

// EEPROMConfig contains the parameter image location. An empty path keeps
// the parameters in memory.
type EEPROMConfig struct {
	Path string `koanf:"path" yaml:"path"`
	Size int    `koanf:"size" yaml:"size"`
}

// WatchdogConfig contains the restart timeout.
type WatchdogConfig struct {
	Timeout time.Duration `koanf:"timeout" yaml:"timeout"`
}

// HeartbeatConfig contains the heartbeat log interval (0 disables).
type HeartbeatConfig struct {
	Interval time.Duration `koanf:"interval" yaml:"interval"`
}

// StatusConfig contains the status file location (empty disables).
type StatusConfig struct {
	Path string `koanf:"path" yaml:"path"`
}

// Default returns a default configuration with the reference hardware values.
func Default() *Config {
	pins := gpio.DefaultPins()
	return &Config{
		Device: DeviceConfig{
			SysClock:   8192000,
			SampleRate: 320,
			WindowBits: 6,
		},
		GPIO: GPIOConfig{
			Enabled:  true,
			Chip:     pins.Chip,
			RelayPin: pins.Relay,
			LEDPin:   pins.LED,
			KeyPin:   pins.Key,
		},
		FrontEnd: FrontEndConfig{
			Simulate:       false,
			Port:           "/dev/ttyAMA1",
			Baud:           115200,
			SynthFrequency: 50,
			SynthAmplitude: 40,
			SynthNoise:     2,
		},
		Console: ConsoleConfig{
			Port: "/dev/ttyAMA0",
			Baud: 9600,
		},
		EEPROM: EEPROMConfig{
			Path: "/var/lib/dust-relay/eeprom.bin",
			Size: 512,
		},
		Watchdog: WatchdogConfig{
			Timeout: time.Second,
		},
		Heartbeat: HeartbeatConfig{
			Interval: 15 * time.Minute,
		},
		Status: StatusConfig{
			Path: "/run/dust-relay/status.json",
		},
	}
}

// FindPath returns the first existing file in SearchPaths, or "".
func FindPath() string {
	for _, path := range SearchPaths {
		path = expandHome(path)
		if _, err := os.Stat(path); !errors.Is(err, os.ErrNotExist) {
			log.Info("Found config file", "path", path)
			return path
		}
	}
	log.Info("Config file not found, using defaults")
	return ""
}

// Load reads path (HCL, or YAML for .yaml/.yml) over the defaults, then
// applies environment overrides. An empty path loads the environment only.
func Load(path string) (*Config, error) {
	k := koanf.New(".")

	if path != "" {
		if err := k.Load(file.Provider(path), parserFor(path)); err != nil {
			return nil, fmt.Errorf("load config file %s: %w", path, err)
		}
	}

	if err := k.Load(env.Provider(".", env.Opt{
		Prefix:        EnvPrefix,
		TransformFunc: envKey,
	}), nil); err != nil {
		return nil, fmt.Errorf("load config environment: %w", err)
	}

	cfg := Default()
	if err := k.UnmarshalWithConf("", cfg, koanf.UnmarshalConf{Tag: "koanf"}); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// envKey maps DUSTRELAY_SECTION_SOME_KEY to section.some_key.
func envKey(k, v string) (string, any) {
	key := strings.ToLower(strings.TrimPrefix(k, EnvPrefix))
	key = strings.Replace(key, "_", ".", 1)
	log.Debug("Found config env var", "key", key, "value", v)
	return key, v
}

func parserFor(path string) koanf.Parser {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return koanfyaml.Parser()
	default:
		return hcl.Parser(true)
	}
}

func expandHome(path string) string {
	if !strings.HasPrefix(path, "~/") {
		return path
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return path
	}
	return filepath.Join(home, path[2:])
}

// Validate rejects configurations the device cannot run with.
func (c *Config) Validate() error {
	var errs []error

	if c.Device.SysClock == 0 {
		errs = append(errs, errors.New("device.sys_clock must be positive"))
	}
	if c.Device.SampleRate == 0 {
		errs = append(errs, errors.New("device.sample_rate must be positive"))
	}
	if c.Device.WindowBits == 0 || c.Device.WindowBits > 15 {
		errs = append(errs, fmt.Errorf("device.window_bits %d outside 1..15", c.Device.WindowBits))
	}
	if !c.FrontEnd.Simulate && c.FrontEnd.Port == "" {
		errs = append(errs, errors.New("frontend.port is required unless frontend.simulate is set"))
	}
	if !c.FrontEnd.Simulate && c.FrontEnd.Baud <= 0 {
		errs = append(errs, errors.New("frontend.baud must be positive"))
	}
	if c.Console.Port != "" && c.Console.Baud <= 0 {
		errs = append(errs, errors.New("console.baud must be positive"))
	}
	if c.EEPROM.Size <= 0 {
		errs = append(errs, errors.New("eeprom.size must be positive"))
	}
	if c.Watchdog.Timeout <= 0 {
		errs = append(errs, errors.New("watchdog.timeout must be positive"))
	}

	return errors.Join(errs...)
}
