package config

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config models planline.yml: workspace-level scheduling defaults applied
// to users without stored preferences and to generation runs.
type Config struct {
	Calendar   string `yaml:"calendar"`
	Scheduling struct {
		DayStart            string   `yaml:"day_start"`
		DayEnd              string   `yaml:"day_end"`
		ActiveDays          []string `yaml:"active_days"`
		HorizonDays         int      `yaml:"horizon_days"`
		MinimumBlockMinutes int      `yaml:"minimum_block_minutes"`
		AutoSplit           bool     `yaml:"auto_split"`
	} `yaml:"scheduling"`
}

var weekdayNames = map[string]time.Weekday{
	"sun": time.Sunday,
	"mon": time.Monday,
	"tue": time.Tuesday,
	"wed": time.Wednesday,
	"thu": time.Thursday,
	"fri": time.Friday,
	"sat": time.Saturday,
}

// ParseWeekday maps a day name ("Mon", "monday") to its weekday.
func ParseWeekday(name string) (time.Weekday, bool) {
	key := strings.ToLower(name)
	if len(key) > 3 {
		key = key[:3]
	}
	d, ok := weekdayNames[key]
	return d, ok
}

// ParseClock parses a "HH:MM" day-time.
func ParseClock(v string) (hour, minute int, err error) {
	t, err := time.Parse("15:04", v)
	if err != nil {
		return 0, 0, fmt.Errorf("invalid clock time %q: %w", v, err)
	}
	return t.Hour(), t.Minute(), nil
}

// Validate ensures the config meets required structure.
func (c *Config) Validate() error {
	if c.Calendar == "" {
		return fmt.Errorf("config.calendar is required")
	}
	if _, _, err := ParseClock(c.Scheduling.DayStart); err != nil {
		return fmt.Errorf("config.scheduling.day_start: %w", err)
	}
	if _, _, err := ParseClock(c.Scheduling.DayEnd); err != nil {
		return fmt.Errorf("config.scheduling.day_end: %w", err)
	}
	sh, sm, _ := ParseClock(c.Scheduling.DayStart)
	eh, em, _ := ParseClock(c.Scheduling.DayEnd)
	if eh*60+em <= sh*60+sm {
		return fmt.Errorf("config.scheduling.day_end must be after day_start")
	}
	if len(c.Scheduling.ActiveDays) == 0 {
		return fmt.Errorf("config.scheduling.active_days is required")
	}
	for _, d := range c.Scheduling.ActiveDays {
		if _, ok := ParseWeekday(d); !ok {
			return fmt.Errorf("config.scheduling.active_days contains unknown day %q", d)
		}
	}
	if c.Scheduling.HorizonDays <= 0 {
		return fmt.Errorf("config.scheduling.horizon_days must be positive")
	}
	if c.Scheduling.MinimumBlockMinutes < 15 {
		return fmt.Errorf("config.scheduling.minimum_block_minutes must be at least 15")
	}
	return nil
}

// Path returns the config file path for a workspace.
func Path(workspace string) string {
	if workspace == "" {
		workspace = "."
	}
	return filepath.Join(workspace, "planline.yml")
}

// Load reads and validates config from workspace.
func Load(workspace string) (*Config, error) {
	path := Path(workspace)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("config %s not found; write one with pl config init", path)
		}
		return nil, err
	}
	return FromYAML(data)
}

// LoadOptional returns the default config if the file does not exist.
func LoadOptional(workspace string) (*Config, error) {
	data, err := os.ReadFile(Path(workspace))
	if err != nil {
		if os.IsNotExist(err) {
			return Default(), nil
		}
		return nil, err
	}
	return FromYAML(data)
}

// Default returns the default Config struct.
func Default() *Config {
	var cfg Config
	_ = yaml.NewDecoder(bytes.NewBufferString(defaultTemplate)).Decode(&cfg)
	return &cfg
}

// GenerateDefault returns default config YAML.
func GenerateDefault() string {
	return defaultTemplate
}

// FromYAML parses and validates config from raw YAML bytes.
func FromYAML(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("invalid config yaml: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// FromFile reads YAML config from the given path.
func FromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return FromYAML(data)
}

const defaultTemplate = `calendar: default

scheduling:
  day_start: "09:00"
  day_end: "17:00"
  active_days: [Mon, Tue, Wed, Thu, Fri]
  horizon_days: 14
  minimum_block_minutes: 15
  auto_split: true
`
