package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
	"gopkg.in/yaml.v3"

	"epdacep/internal/battery"
	"epdacep/internal/epd"
	"epdacep/internal/framebuf"
	"epdacep/internal/hw"
	"epdacep/internal/render"
)

// NOTE: This file provides the configuration model and full YAML-based
// load/save behavior, including first-run config creation and 0600
// permissions.

// Frame modes.
const (
	ModeText    = "text"
	ModeStripes = "stripes"
)

// PinsConfig holds BCM GPIO numbers. rail_enable: -1 means the panel is
// always powered.
type PinsConfig struct {
	CS         int `yaml:"cs" json:"cs"`
	DC         int `yaml:"dc" json:"dc"`
	Reset      int `yaml:"reset" json:"reset"`
	Busy       int `yaml:"busy" json:"busy"`
	RailEnable int `yaml:"rail_enable" json:"rail_enable"`
}

// DeviceConfig describes the panel wiring and driver policy.
type DeviceConfig struct {
	// Backend is one of "periph" (default), "rpio", "gpiocdev" or "sim".
	Backend string `yaml:"backend" json:"backend"`
	// SPIPort is the periph spireg name ("" = first port, e.g. "/dev/spidev0.0").
	SPIPort string `yaml:"spi_port" json:"spi_port"`
	// SPIHz is the bus clock. 0 selects 2 MHz.
	SPIHz uint32     `yaml:"spi_hz" json:"spi_hz"`
	Pins  PinsConfig `yaml:"pins" json:"pins"`
	// GPIOChip is used by the gpiocdev backend only.
	GPIOChip string `yaml:"gpio_chip" json:"gpio_chip"`

	PowerOffAfterUpdate bool `yaml:"power_off_after_update" json:"power_off_after_update"`
	// StrictValidation rejects wrong-sized frames instead of warning, and
	// text frames whose lines run off the panel instead of clipping them.
	StrictValidation bool `yaml:"strict_validation" json:"strict_validation"`
	// BusyTimeoutMS bounds each BUSY wait. 0 selects 15000.
	BusyTimeoutMS int `yaml:"busy_timeout_ms" json:"busy_timeout_ms"`
}

// LineConfig is one text line of the frame.
type LineConfig struct {
	Text  string `yaml:"text" json:"text"`
	Color string `yaml:"color" json:"color"`
}

// FrameConfig selects what Update draws.
type FrameConfig struct {
	// Mode is "text" (default) or "stripes".
	Mode  string       `yaml:"mode" json:"mode"`
	Scale int          `yaml:"scale" json:"scale"`
	Lines []LineConfig `yaml:"lines" json:"lines"`
}

// BatteryConfig enables the PiSugar3 battery readout.
type BatteryConfig struct {
	Enabled bool `yaml:"enabled" json:"enabled"`
	// I2CBus is the periph i2creg name ("" = first bus).
	I2CBus string `yaml:"i2c_bus" json:"i2c_bus"`
	// Addr is the 7-bit controller address (0 = 0x57).
	Addr uint16 `yaml:"addr" json:"addr"`
}

// BasicAuthConfig holds HTTP Basic Auth credentials for the status API.
type BasicAuthConfig struct {
	Username string `yaml:"username" json:"username"`
	Password string `yaml:"password" json:"password"`
}

// Config is the top-level application configuration.
type Config struct {
	// Listen is the HTTP listen address for the status API. Empty disables it.
	Listen string `yaml:"listen" json:"listen"`

	// RefreshCron is a robfig/cron schedule ("@every 60s", "*/5 * * * *").
	RefreshCron string `yaml:"refresh" json:"refresh"`

	// LogLevel is debug, info, warn or error.
	LogLevel string `yaml:"log_level" json:"log_level"`

	// DumpDir receives frame.bin/png/bmp when dumping is enabled.
	DumpDir string `yaml:"dump_dir" json:"dump_dir"`

	Device DeviceConfig `yaml:"device" json:"device"`
	Frame  FrameConfig  `yaml:"frame" json:"frame"`

	Battery BatteryConfig `yaml:"battery" json:"battery"`

	// BasicAuth, if non-nil, enables HTTP Basic Authentication on all endpoints
	// except /health.
	BasicAuth *BasicAuthConfig `yaml:"basic_auth,omitempty" json:"basic_auth,omitempty"`
}

func defaultLines() []LineConfig {
	var out []LineConfig
	for _, l := range render.DefaultLines() {
		out = append(out, LineConfig{Text: l.Text, Color: l.Color.String()})
	}
	return out
}

// DefaultConfig returns an in-memory default configuration.
func DefaultConfig() *Config {
	return &Config{
		Listen:      "127.0.0.1:8080",
		RefreshCron: "@every 60s",
		LogLevel:    "info",
		DumpDir:     "dump",
		Device: DeviceConfig{
			Backend: "periph",
			SPIHz:   epd.DefaultSPIHz,
			Pins: PinsConfig{
				CS:         hw.DefaultPins.CS,
				DC:         hw.DefaultPins.DC,
				Reset:      hw.DefaultPins.Reset,
				Busy:       hw.DefaultPins.Busy,
				RailEnable: hw.NoRail,
			},
			GPIOChip:      "gpiochip0",
			BusyTimeoutMS: epd.DefaultBusyTimeout,
		},
		Frame: FrameConfig{
			Mode:  ModeText,
			Scale: render.DefaultScale,
			Lines: defaultLines(),
		},
		Battery:   BatteryConfig{Addr: battery.DefaultAddr},
		BasicAuth: nil,
	}
}

// Normalize fills in missing/zero values with sensible defaults so that
// partially-filled configs still behave correctly.
func (c *Config) Normalize() {
	if c.RefreshCron == "" {
		c.RefreshCron = "@every 60s"
	}
	c.LogLevel = strings.ToLower(strings.TrimSpace(c.LogLevel))
	if c.LogLevel == "" {
		c.LogLevel = "info"
	}
	if c.DumpDir == "" {
		c.DumpDir = "dump"
	}

	d := &c.Device
	if d.Backend == "" {
		d.Backend = "periph"
	}
	if d.SPIHz == 0 {
		d.SPIHz = epd.DefaultSPIHz
	}
	if d.GPIOChip == "" {
		d.GPIOChip = "gpiochip0"
	}
	if d.BusyTimeoutMS <= 0 {
		d.BusyTimeoutMS = epd.DefaultBusyTimeout
	}
	if d.Pins.RailEnable < 0 {
		d.Pins.RailEnable = hw.NoRail
	}
	if c.Battery.Addr == 0 {
		c.Battery.Addr = battery.DefaultAddr
	}

	f := &c.Frame
	switch f.Mode {
	case ModeText, ModeStripes:
		// ok
	default:
		// Unknown value; fall back to text.
		f.Mode = ModeText
	}
	if f.Scale == 0 {
		f.Scale = render.DefaultScale
	}
	if f.Lines == nil {
		f.Lines = defaultLines()
	}
}

// Validate reports settings that cannot be normalized away.
func (c *Config) Validate() error {
	var errs []error
	if _, err := cron.ParseStandard(c.RefreshCron); err != nil {
		errs = append(errs, fmt.Errorf("refresh %q: %w", c.RefreshCron, err))
	}
	switch c.Device.Backend {
	case "periph", "rpio", "gpiocdev", "sim":
	default:
		errs = append(errs, fmt.Errorf("device.backend %q: %w", c.Device.Backend, hw.ErrUnknownBackend))
	}
	if err := c.Device.HWPins().Validate(); err != nil {
		errs = append(errs, fmt.Errorf("device.pins: %w", err))
	}
	if err := render.ValidateScale(c.Frame.Scale); err != nil {
		errs = append(errs, fmt.Errorf("frame.scale: %w", err))
	}
	for i, l := range c.Frame.Lines {
		if _, err := framebuf.ParseIndex(l.Color); err != nil {
			errs = append(errs, fmt.Errorf("frame.lines[%d].color: %w", i, err))
		}
	}
	if c.BasicAuth != nil && c.BasicAuth.Username == "" {
		errs = append(errs, errors.New("basic_auth.username is empty"))
	}
	if len(errs) > 0 {
		return fmt.Errorf("config: %w", errors.Join(errs...))
	}
	return nil
}

// HWPins converts the pin section for internal/hw.
func (d DeviceConfig) HWPins() hw.Pins {
	return hw.Pins{
		CS:    d.Pins.CS,
		DC:    d.Pins.DC,
		Reset: d.Pins.Reset,
		Busy:  d.Pins.Busy,
		Rail:  d.Pins.RailEnable,
	}
}

// HWOptions selects the backend described by d.
func (d DeviceConfig) HWOptions() hw.Options {
	return hw.Options{
		Backend:  d.Backend,
		SPIPort:  d.SPIPort,
		GPIOChip: d.GPIOChip,
		Pins:     d.HWPins(),
	}
}

// Panel converts d into the controller's configuration. BUSY is polled
// every millisecond, so the timeout in ms is also the poll budget.
func (d DeviceConfig) Panel() epd.DeviceConfig {
	return epd.DeviceConfig{
		HasRail:             d.HWPins().HasRail(),
		SPIHz:               d.SPIHz,
		PowerOffAfterUpdate: d.PowerOffAfterUpdate,
		StrictLength:        d.StrictValidation,
		BusyTimeout:         d.BusyTimeoutMS,
		BusyPoll:            time.Millisecond,
	}
}

// RenderLines converts the configured lines. Colours must already have
// passed Validate.
func (f FrameConfig) RenderLines() ([]render.Line, error) {
	out := make([]render.Line, 0, len(f.Lines))
	for _, l := range f.Lines {
		idx, err := framebuf.ParseIndex(l.Color)
		if err != nil {
			return nil, err
		}
		out = append(out, render.Line{Text: l.Text, Color: idx})
	}
	return out, nil
}

// Load loads configuration from the given YAML path.
//
// Behavior:
//   - If the file does not exist:
//   - create parent directory if needed
//   - write a default config with 0600 perms
//   - return the default config
//   - If the file exists:
//   - read YAML over the defaults
//   - normalize and validate
func Load(path string) (*Config, error) {
	if path == "" {
		return nil, errors.New("config path is empty")
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			// First run: create default config file.
			cfg := DefaultConfig()
			if err := Save(path, cfg); err != nil {
				// Even if save fails, return cfg with error so caller can decide.
				return cfg, err
			}
			return cfg, nil
		}
		return nil, err
	}

	// Unmarshal over defaults so keys missing from the file (rail_enable in
	// particular, where 0 is a valid pin) keep their default.
	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("config: parse %s: %w", path, err)
	}
	cfg.Normalize()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Save writes the given configuration to the specified path.
//
// Implementation details:
//   - Ensures parent directory exists (0700).
//   - Marshals cfg to YAML.
//   - Writes atomically via a temp file + rename.
//   - Ensures final file permissions are 0600.
func Save(path string, cfg *Config) error {
	if path == "" {
		return errors.New("config path is empty")
	}
	if cfg == nil {
		return errors.New("config is nil")
	}

	cfg.Normalize()

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return err
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}

	// Atomic write: write to temp file in same directory then rename.
	tmp, err := os.CreateTemp(dir, ".epdacep-config-*.tmp")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()

	// Ensure we clean up temp file on error.
	defer os.Remove(tmpName)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}

	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}

	if err := os.Chmod(tmpName, 0o600); err != nil {
		return err
	}

	return os.Rename(tmpName, path)
}

// Save is a convenience method on Config that delegates to the package-level
// Save function.
func (c *Config) Save(path string) error {
	return Save(path, c)
}
