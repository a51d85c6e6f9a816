// Package config loads the transmitter runtime configuration from YAML.
// Default returns the built-in firmware table; a file only needs the keys it
// changes.
package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/Swind/go-txcore/core"
	"github.com/Swind/go-txcore/health"
	"github.com/Swind/go-txcore/hwtimer"
	"github.com/Swind/go-txcore/tasks"
)

// ErrInvalidConfig is wrapped by every validation failure.
var ErrInvalidConfig = errors.New("invalid configuration")

// Config is the full runtime configuration.
type Config struct {
	Timer    TimerConfig    `yaml:"timer"`
	Tasks    []TaskOverride `yaml:"tasks,omitempty"`
	Mixer    MixerConfig    `yaml:"mixer"`
	Menu     PeriodConfig   `yaml:"menu"`
	Encoder  PeriodConfig   `yaml:"encoder"`
	Audio    AudioConfig    `yaml:"audio"`
	Health   HealthConfig   `yaml:"health"`
	Metrics  MetricsConfig  `yaml:"metrics"`
	Log      LogConfig      `yaml:"log"`
	SBUS     SBUSConfig     `yaml:"sbus"`
	Watchdog WatchdogConfig `yaml:"watchdog"`

	// HeapSize bounds kernel allocations in bytes; 0 is unbounded.
	HeapSize int `yaml:"heap_size"`

	// PinThreads pins task threads to cores where the OS allows it.
	PinThreads bool `yaml:"pin_threads"`
}

// TimerConfig selects the heartbeat timer.
type TimerConfig struct {
	Group   int    `yaml:"group"`
	Channel int    `yaml:"channel"`
	Divider uint32 `yaml:"divider"`
	Hz      int    `yaml:"hz"`
}

// TaskOverride changes one entry of the task table. Nil fields keep the
// built-in value.
type TaskOverride struct {
	Name      string  `yaml:"name"`
	Priority  *int    `yaml:"priority,omitempty"`
	Core      *int    `yaml:"core,omitempty"`
	StackSize *uint32 `yaml:"stack_size,omitempty"`
}

// MixerConfig tunes the mixer wait.
type MixerConfig struct {
	Timeout time.Duration `yaml:"timeout"`
}

// PeriodConfig is a fixed task cadence.
type PeriodConfig struct {
	Period time.Duration `yaml:"period"`
}

// AudioConfig tunes the audio task.
type AudioConfig struct {
	Timeout    time.Duration `yaml:"timeout"`
	SampleRate uint32        `yaml:"sample_rate"`
}

// HealthConfig tunes the health monitor.
type HealthConfig struct {
	Interval time.Duration `yaml:"interval"`
	// ReportFile, if set, receives every report as a CBOR record.
	ReportFile string `yaml:"report_file,omitempty"`
}

// MetricsConfig controls the Prometheus endpoint.
type MetricsConfig struct {
	Listen string `yaml:"listen,omitempty"`
}

// LogConfig controls logging.
type LogConfig struct {
	Level string `yaml:"level"`
}

// SBUSConfig selects the SBUS receiver port.
type SBUSConfig struct {
	Port string `yaml:"port,omitempty"`
}

// WatchdogConfig controls the software watchdog.
type WatchdogConfig struct {
	Timeout time.Duration `yaml:"timeout"`
}

// Default returns the built-in firmware configuration.
func Default() Config {
	return Config{
		Timer: TimerConfig{
			Group:   0,
			Channel: 0,
			Divider: 16,
			Hz:      100,
		},
		Mixer:    MixerConfig{Timeout: tasks.MixerTimeout},
		Menu:     PeriodConfig{Period: tasks.MenuPeriod},
		Encoder:  PeriodConfig{Period: tasks.EncoderPeriod},
		Audio:    AudioConfig{Timeout: tasks.AudioTimeout, SampleRate: tasks.DefaultAudioConfig().SampleRate},
		Health:   HealthConfig{Interval: health.DefaultInterval},
		Log:      LogConfig{Level: "info"},
		Watchdog: WatchdogConfig{Timeout: 500 * time.Millisecond},
	}
}

// Parse decodes YAML over Default and validates the result.
func Parse(data []byte) (Config, error) {
	cfg := Default()
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("parse config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Load reads and parses the file at path.
func Load(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("read config %s: %w", path, err)
	}
	cfg, err := Parse(data)
	if err != nil {
		return Config{}, fmt.Errorf("%s: %w", path, err)
	}
	return cfg, nil
}

// Validate reports the first configuration error.
func (c Config) Validate() error {
	if err := c.TimerSettings().Validate(); err != nil {
		return fmt.Errorf("%w: timer: %w", ErrInvalidConfig, err)
	}
	if c.Timer.Hz <= 0 {
		return fmt.Errorf("%w: timer hz must be positive", ErrInvalidConfig)
	}
	if c.Timer.Channel < 0 {
		return fmt.Errorf("%w: timer channel %d", ErrInvalidConfig, c.Timer.Channel)
	}

	for _, p := range []struct {
		name string
		d    time.Duration
	}{
		{"mixer.timeout", c.Mixer.Timeout},
		{"menu.period", c.Menu.Period},
		{"encoder.period", c.Encoder.Period},
		{"audio.timeout", c.Audio.Timeout},
		{"health.interval", c.Health.Interval},
		{"watchdog.timeout", c.Watchdog.Timeout},
	} {
		if p.d <= 0 {
			return fmt.Errorf("%w: %s must be positive", ErrInvalidConfig, p.name)
		}
	}

	if c.HeapSize < 0 {
		return fmt.Errorf("%w: negative heap size", ErrInvalidConfig)
	}
	if _, err := core.ParseLevel(c.Log.Level); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}

	if _, err := c.TaskTable(); err != nil {
		return err
	}
	return nil
}

// TimerSettings returns the hardware timer configuration.
func (c Config) TimerSettings() hwtimer.Config {
	return hwtimer.Config{
		Divider:     c.Timer.Divider,
		Direction:   hwtimer.CountUp,
		AutoReload:  true,
		IntrType:    hwtimer.IntrLevel,
		AlarmEnable: true,
		AlarmValue:  hwtimer.AlarmFor(c.Timer.Divider, c.Timer.Hz),
	}
}

// TaskTable returns the built-in table with overrides and cadences applied,
// in creation order.
func (c Config) TaskTable() ([]core.TaskDescriptor, error) {
	table := tasks.DefaultTable()
	index := make(map[string]int, len(table))
	for i, d := range table {
		index[d.Name] = i
	}

	seen := make(map[string]bool, len(c.Tasks))
	for _, o := range c.Tasks {
		i, ok := index[o.Name]
		if !ok {
			return nil, fmt.Errorf("%w: unknown task %q", ErrInvalidConfig, o.Name)
		}
		if seen[o.Name] {
			return nil, fmt.Errorf("%w: task %q overridden twice", ErrInvalidConfig, o.Name)
		}
		seen[o.Name] = true

		if o.Priority != nil {
			table[i].Priority = core.TaskPriority(*o.Priority)
		}
		if o.Core != nil {
			table[i].Core = core.CoreID(*o.Core)
		}
		if o.StackSize != nil {
			if *o.StackSize == 0 {
				return nil, fmt.Errorf("%w: task %q stack size 0", ErrInvalidConfig, o.Name)
			}
			table[i].StackSize = *o.StackSize
		}
	}

	for i := range table {
		switch table[i].Name {
		case tasks.MixerTaskName:
			table[i].Timeout = c.Mixer.Timeout
		case tasks.MenuTaskName:
			table[i].Period = c.Menu.Period
		case tasks.EncoderTaskName:
			table[i].Period = c.Encoder.Period
		case tasks.AudioTaskName:
			table[i].Timeout = c.Audio.Timeout
		}
		if err := table[i].Validate(); err != nil {
			return nil, fmt.Errorf("%w: %w", ErrInvalidConfig, err)
		}
	}
	return table, nil
}
