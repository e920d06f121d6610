package journal

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/cowfs/cowjournal/internal/constants"
)

// DevicePath names one backing journal device and a per-device write
// concurrency value. Concurrency is loaded and saved with the config only;
// DeviceRing.Submit does not consult it and issues one write per device
// per entry.
type DevicePath struct {
	Path        string `yaml:"path"`
	Concurrency int    `yaml:"concurrency,omitempty"`
}

// Config holds the tunables for starting a journal: entry size bounds,
// timer intervals, the device path list, and the pin FIFO depth.
type Config struct {
	MinEntrySize uint32 `yaml:"min_entry_size,omitempty"`
	MaxEntrySize uint32 `yaml:"max_entry_size,omitempty"`

	ForceWriteInterval  time.Duration `yaml:"force_write_interval,omitempty"`
	ReclaimTickInterval time.Duration `yaml:"reclaim_tick_interval,omitempty"`

	PinFIFODepth int `yaml:"pin_fifo_depth,omitempty"`

	Devices []DevicePath `yaml:"devices,omitempty"`

	SuperblockPath string `yaml:"superblock_path,omitempty"`

	// EnableIOURing opts the device ring into batched io_uring submission
	// (one io_uring_enter per entry instead of one goroutine per device).
	// Ignored for devices that don't expose a file descriptor, such as
	// in-memory test devices.
	EnableIOURing bool `yaml:"enable_io_uring,omitempty"`

	// IOURingEntries sizes the submission queue when EnableIOURing is
	// set; 0 falls back to the ring implementation's own default.
	IOURingEntries uint32 `yaml:"io_uring_entries,omitempty"`
}

// DefaultConfig returns a Config with the package's default sizing and
// timing, no devices attached.
func DefaultConfig() Config {
	return Config{
		MinEntrySize:        constants.MinEntrySize,
		MaxEntrySize:        constants.MaxEntrySize,
		ForceWriteInterval:  constants.DefaultForceWriteInterval,
		ReclaimTickInterval: constants.DefaultReclaimTickInterval,
		PinFIFODepth:        constants.DefaultPinFIFODepth,
	}
}

// LoadConfig reads a Config from a YAML file, filling any unset field
// with DefaultConfig's value.
func LoadConfig(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("journal: read config %s: %w", path, err)
	}

	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("journal: parse config %s: %w", path, err)
	}
	cfg.applyDefaults()
	return cfg, nil
}

func (c *Config) applyDefaults() {
	d := DefaultConfig()
	if c.MinEntrySize == 0 {
		c.MinEntrySize = d.MinEntrySize
	}
	if c.MaxEntrySize == 0 {
		c.MaxEntrySize = d.MaxEntrySize
	}
	if c.ForceWriteInterval == 0 {
		c.ForceWriteInterval = d.ForceWriteInterval
	}
	if c.ReclaimTickInterval == 0 {
		c.ReclaimTickInterval = d.ReclaimTickInterval
	}
	if c.PinFIFODepth == 0 {
		c.PinFIFODepth = d.PinFIFODepth
	}
}

// Save writes cfg back out as YAML, e.g. after mkfs-time sizing decisions.
func (c Config) Save(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("journal: marshal config: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("journal: write config %s: %w", path, err)
	}
	return nil
}
