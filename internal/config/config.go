package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/robfig/cron/v3"
	"gopkg.in/yaml.v3"

	"unicornhat/internal/anim"
	"unicornhat/internal/model"
)

// SPIConfig names the two chip-select ports in the periph.io SPI registry.
type SPIConfig struct {
	// Left and Right are registry names, e.g. "SPI0.0" or "/dev/spidev0.0".
	Left  string `yaml:"left" json:"left"`
	Right string `yaml:"right" json:"right"`
	// SpeedHz is the maximum SPI clock.
	SpeedHz int `yaml:"speed_hz" json:"speed_hz"`
}

// ScheduleEntry sets the panel brightness whenever Cron fires.
type ScheduleEntry struct {
	// Cron is a standard 5-field cron expression or a descriptor such as
	// "@hourly", evaluated in Config.Timezone.
	Cron       string  `yaml:"cron" json:"cron"`
	Brightness float64 `yaml:"brightness" json:"brightness"`
}

// BasicAuthConfig holds HTTP Basic Auth credentials for the control API.
type BasicAuthConfig struct {
	Username string `yaml:"username" json:"username"`
	Password string `yaml:"password" json:"password"`
}

// Config is the top-level daemon configuration.
type Config struct {
	// Listen is the HTTP listen address for the control API. Empty disables
	// the API.
	Listen string `yaml:"listen" json:"listen"`

	// LogLevel is one of debug, info, warn, error.
	LogLevel string `yaml:"log_level" json:"log_level"`

	// Timezone is the IANA zone used for the brightness schedule.
	Timezone string `yaml:"timezone" json:"timezone"`

	SPI SPIConfig `yaml:"spi" json:"spi"`

	// Brightness is applied at startup, 0.0–1.0.
	Brightness float64 `yaml:"brightness" json:"brightness"`

	// Rotation in degrees: 0, 90, 180 or 270.
	Rotation int `yaml:"rotation" json:"rotation"`

	// FPS is the render rate of the built-in effects.
	FPS int `yaml:"fps" json:"fps"`

	// Mode selects the effect shown at startup: manual, solid, cycle,
	// rainbow.
	Mode string `yaml:"mode" json:"mode"`

	// Colour is used by the solid effect, as "#rrggbb".
	Colour string `yaml:"colour" json:"colour"`

	// Schedule changes the brightness over the day.
	Schedule []ScheduleEntry `yaml:"schedule" json:"schedule"`

	// BasicAuth, if non-nil, protects every endpoint except /health.
	BasicAuth *BasicAuthConfig `yaml:"basic_auth,omitempty" json:"basic_auth,omitempty"`
}

// Defaults.
const (
	DefaultListen   = "127.0.0.1:8080"
	DefaultSpeedHz  = 600_000
	DefaultFPS      = 30
	DefaultMode     = anim.ModeRainbow
	DefaultColour   = "#ffffff"
	defaultLogLevel = "info"
	defaultLeftSPI  = "SPI0.0"
	defaultRightSPI = "SPI0.1"
)

// DefaultConfig returns an in-memory default configuration.
func DefaultConfig() *Config {
	return &Config{
		Listen:     DefaultListen,
		LogLevel:   defaultLogLevel,
		Timezone:   "Local",
		SPI:        SPIConfig{Left: defaultLeftSPI, Right: defaultRightSPI, SpeedHz: DefaultSpeedHz},
		Brightness: 0.5,
		FPS:        DefaultFPS,
		Mode:       DefaultMode,
		Colour:     DefaultColour,
		Schedule: []ScheduleEntry{
			{Cron: "0 7 * * *", Brightness: 0.5},
			{Cron: "0 22 * * *", Brightness: 0.1},
		},
	}
}

// Normalize fills in missing/zero values so that partially filled files
// still behave.
func (c *Config) Normalize() {
	if c.LogLevel == "" {
		c.LogLevel = defaultLogLevel
	}
	if c.Timezone == "" {
		c.Timezone = "Local"
	}
	if c.SPI.Left == "" {
		c.SPI.Left = defaultLeftSPI
	}
	if c.SPI.Right == "" {
		c.SPI.Right = defaultRightSPI
	}
	if c.SPI.SpeedHz <= 0 {
		c.SPI.SpeedHz = DefaultSpeedHz
	}
	if c.FPS <= 0 {
		c.FPS = DefaultFPS
	}
	if c.Mode == "" {
		c.Mode = DefaultMode
	}
	if c.Colour == "" {
		c.Colour = DefaultColour
	}
	if c.Schedule == nil {
		c.Schedule = []ScheduleEntry{}
	}
}

// Validate reports the first value Normalize cannot repair.
func (c *Config) Validate() error {
	if c.Brightness < 0 || c.Brightness > 1 {
		return fmt.Errorf("config: brightness %v outside [0, 1]", c.Brightness)
	}
	switch c.Rotation {
	case 0, 90, 180, 270:
	default:
		return fmt.Errorf("config: rotation %d must be 0, 90, 180 or 270", c.Rotation)
	}
	if _, err := anim.ByName(c.Mode, model.Black); err != nil {
		return fmt.Errorf("config: mode: %w", err)
	}
	if c.FPS < 1 || c.FPS > anim.MaxFPS {
		return fmt.Errorf("config: fps %d outside [1, %d]", c.FPS, anim.MaxFPS)
	}
	if c.SPI.Left == c.SPI.Right {
		return fmt.Errorf("config: left and right SPI ports are both %q", c.SPI.Left)
	}
	if _, err := model.ParseHex(c.Colour); err != nil {
		return fmt.Errorf("config: colour: %w", err)
	}
	if _, err := c.Location(); err != nil {
		return err
	}
	for i, e := range c.Schedule {
		if _, err := cron.ParseStandard(e.Cron); err != nil {
			return fmt.Errorf("config: schedule[%d]: %w", i, err)
		}
		if e.Brightness < 0 || e.Brightness > 1 {
			return fmt.Errorf("config: schedule[%d]: brightness %v outside [0, 1]", i, e.Brightness)
		}
	}
	return nil
}

// Location resolves Timezone.
func (c *Config) Location() (*time.Location, error) {
	if c.Timezone == "" || c.Timezone == "Local" {
		return time.Local, nil
	}
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return nil, fmt.Errorf("config: timezone %q: %w", c.Timezone, err)
	}
	return loc, nil
}

// Load loads configuration from the given YAML path.
//
// Behavior:
//   - If the file does not exist, a default config is written there with
//     0600 perms and returned.
//   - Otherwise the YAML is read, normalized and validated.
func Load(path string) (*Config, error) {
	if path == "" {
		return nil, errors.New("config path is empty")
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			cfg := DefaultConfig()
			if err := Save(path, cfg); err != nil {
				// Even if save fails, return cfg with error so caller can decide.
				return cfg, err
			}
			return cfg, nil
		}
		return nil, err
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}
	cfg.Normalize()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// Save writes the given configuration to the specified path.
//
// Implementation details:
//   - Ensures parent directory exists (0700).
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

	tmp, err := os.CreateTemp(dir, ".unicornd-config-*.tmp")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
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
