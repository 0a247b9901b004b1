// Package config loads the controller configuration.
//
// Values come from hard-coded defaults, overlaid by an optional YAML file,
// overlaid by DISHWASHER_* environment variables. The result is validated
// once and treated as immutable afterwards.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/sweeney/dishwasher/internal/event"
)

// Config is the complete controller configuration.
type Config struct {
	Logging     LoggingConfig     `yaml:"logging"`
	Runtime     RuntimeConfig     `yaml:"runtime"`
	Water       WaterConfig       `yaml:"water"`
	Temperature TemperatureConfig `yaml:"temperature"`
	Current     CurrentConfig     `yaml:"current"`
	Spray       SprayConfig       `yaml:"spray"`
	Program     ProgramConfig     `yaml:"program"`
	Input       InputConfig       `yaml:"input"`
	GPIO        GPIOConfig        `yaml:"gpio"`
	MQTT        MQTTConfig        `yaml:"mqtt"`
}

// LoggingConfig selects log level, format (json|text) and output (stdout|stderr).
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Output string `yaml:"output"`
}

// RuntimeConfig sizes the per-component queue and timer set.
type RuntimeConfig struct {
	QueueSize     int           `yaml:"queue_size"`
	TimerCapacity int           `yaml:"timer_capacity"`
	Watchdog      time.Duration `yaml:"watchdog"`
	TimeFactor    int           `yaml:"time_factor"`
}

// WaterConfig holds water levels in millimetres.
type WaterConfig struct {
	Full       int32 `yaml:"full"`
	Half       int32 `yaml:"half"`
	Hysteresis int32 `yaml:"hysteresis"`
	Max        int32 `yaml:"max"`
	RangeMin   int32 `yaml:"range_min"`
	RangeMax   int32 `yaml:"range_max"`
}

// TemperatureConfig holds temperatures in degrees Celsius.
type TemperatureConfig struct {
	Hysteresis int32 `yaml:"hysteresis"`
	Max        int32 `yaml:"max"`
	RangeMin   int32 `yaml:"range_min"`
	RangeMax   int32 `yaml:"range_max"`
}

// CurrentConfig holds pump current limits in milliamperes.
type CurrentConfig struct {
	CircMin   int32         `yaml:"circ_min"`
	CircMax   int32         `yaml:"circ_max"`
	DrainMin  int32         `yaml:"drain_min"`
	DrainMax  int32         `yaml:"drain_max"`
	Settle    time.Duration `yaml:"settle"`
	Supervise bool          `yaml:"supervise"`
}

// SprayConfig holds the spray selector timing model. The On and Off
// durations are the contact-closed and contact-open intervals measured
// while the motor turns from one position to the next.
type SprayConfig struct {
	UpOn           time.Duration `yaml:"up_on"`
	UpOff          time.Duration `yaml:"up_off"`
	DownOn         time.Duration `yaml:"down_on"`
	DownOff        time.Duration `yaml:"down_off"`
	BothOn         time.Duration `yaml:"both_on"`
	BothOff        time.Duration `yaml:"both_off"`
	Tolerance      time.Duration `yaml:"tolerance"`
	Search         time.Duration `yaml:"search"`
	Deceleration   time.Duration `yaml:"deceleration"`
	KeepPosition   time.Duration `yaml:"keep_position"`
	MinSamples     int           `yaml:"min_samples"`
	SampleCapacity int           `yaml:"sample_capacity"`
}

// ProgramConfig holds sequencer timings and optional table overrides.
type ProgramConfig struct {
	StepDelay        time.Duration         `yaml:"step_delay"`
	AverageFillDrain time.Duration         `yaml:"average_fill_drain"`
	RegenerateValve  time.Duration         `yaml:"regenerate_valve"`
	ResinWash        time.Duration         `yaml:"resin_wash"`
	DetergentOpen    time.Duration         `yaml:"detergent_open"`
	ShutdownPulse    time.Duration         `yaml:"shutdown_pulse"`
	Tables           map[string]ProgramRow `yaml:"tables"`
}

// ProgramRow overrides one program's row in the temperature and minute
// tables. Each slice has one entry per machine state, Idle first.
type ProgramRow struct {
	Temperatures []int32 `yaml:"temperatures"`
	Minutes      []int32 `yaml:"minutes"`
}

// InputConfig controls sensor polling.
type InputConfig struct {
	Poll     time.Duration `yaml:"poll"`
	Debounce time.Duration `yaml:"debounce"`
	Simulate bool          `yaml:"simulate"`
}

// GPIOConfig maps sensors and actuators to BCM line offsets.
type GPIOConfig struct {
	Enabled bool       `yaml:"enabled"`
	Chip    string     `yaml:"chip"`
	Inputs  InputPins  `yaml:"inputs"`
	Outputs OutputPins `yaml:"outputs"`
}

// InputPins are the digital sensor lines.
type InputPins struct {
	Door         int `yaml:"door"`
	Salt         int `yaml:"salt"`
	SprayContact int `yaml:"spray_contact"`
	Leak         int `yaml:"leak"`
}

// OutputPins are the actuator relay lines.
type OutputPins struct {
	Shutdown   int `yaml:"shutdown"`
	Heat       int `yaml:"heat"`
	Drain      int `yaml:"drain"`
	Fill       int `yaml:"fill"`
	Regenerate int `yaml:"regenerate"`
	Detergent  int `yaml:"detergent"`
	Circ       int `yaml:"circ"`
	Spray      int `yaml:"spray"`
}

// Pins returns the output offsets indexed by actuator.
func (o OutputPins) Pins() [event.ActuatorCount]int {
	return [event.ActuatorCount]int{
		event.ActuatorShutdown:   o.Shutdown,
		event.ActuatorHeat:       o.Heat,
		event.ActuatorDrain:      o.Drain,
		event.ActuatorFill:       o.Fill,
		event.ActuatorRegenerate: o.Regenerate,
		event.ActuatorDetergent:  o.Detergent,
		event.ActuatorCirc:       o.Circ,
		event.ActuatorSpray:      o.Spray,
	}
}

// MQTTConfig controls telemetry publishing and the command topic.
type MQTTConfig struct {
	Enabled     bool          `yaml:"enabled"`
	Broker      string        `yaml:"broker"`
	ClientID    string        `yaml:"client_id"`
	TopicPrefix string        `yaml:"topic_prefix"`
	Heartbeat   time.Duration `yaml:"heartbeat"`
	BufferSize  int           `yaml:"buffer_size"`
}

// Load reads the configuration from path. An empty path yields the
// defaults with environment overrides applied.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parsing config file: %w", err)
		}
	}

	applyEnvOverrides(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}
	return cfg, nil
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
			Output: "stderr",
		},
		Runtime: RuntimeConfig{
			QueueSize:     128,
			TimerCapacity: 16,
			Watchdog:      100 * time.Millisecond,
			TimeFactor:    1,
		},
		Water: WaterConfig{
			Full:       100,
			Half:       50,
			Hysteresis: 5,
			Max:        110,
			RangeMin:   -1,
			RangeMax:   120,
		},
		Temperature: TemperatureConfig{
			Hysteresis: 2,
			Max:        75,
			RangeMin:   5,
			RangeMax:   100,
		},
		Current: CurrentConfig{
			CircMin:   100,
			CircMax:   400,
			DrainMin:  40,
			DrainMax:  150,
			Settle:    time.Second,
			Supervise: true,
		},
		Spray: SprayConfig{
			UpOn:           time.Second,
			UpOff:          6500 * time.Millisecond,
			DownOn:         5500 * time.Millisecond,
			DownOff:        3 * time.Second,
			BothOn:         3 * time.Second,
			BothOff:        5 * time.Second,
			Tolerance:      400 * time.Millisecond,
			Search:         90 * time.Second,
			Deceleration:   time.Second,
			KeepPosition:   20 * time.Second,
			MinSamples:     18,
			SampleCapacity: 30,
		},
		Program: ProgramConfig{
			StepDelay:        5 * time.Second,
			AverageFillDrain: 2 * time.Minute,
			RegenerateValve:  180 * time.Second,
			ResinWash:        120 * time.Second,
			DetergentOpen:    200 * time.Millisecond,
			ShutdownPulse:    50 * time.Millisecond,
		},
		Input: InputConfig{
			Poll:     100 * time.Millisecond,
			Debounce: 200 * time.Millisecond,
			Simulate: true,
		},
		GPIO: GPIOConfig{
			Enabled: false,
			Chip:    "gpiochip0",
			Inputs: InputPins{
				Door:         17,
				Salt:         27,
				SprayContact: 22,
				Leak:         23,
			},
			Outputs: OutputPins{
				Shutdown:   5,
				Heat:       6,
				Drain:      13,
				Fill:       19,
				Regenerate: 26,
				Detergent:  12,
				Circ:       16,
				Spray:      20,
			},
		},
		MQTT: MQTTConfig{
			Enabled:     false,
			Broker:      "tcp://localhost:1883",
			ClientID:    "dishwasher",
			TopicPrefix: "appliance/dishwasher",
			Heartbeat:   15 * time.Minute,
			BufferSize:  1000,
		},
	}
}

func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("DISHWASHER_LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
	if v := os.Getenv("DISHWASHER_LOG_FORMAT"); v != "" {
		cfg.Logging.Format = v
	}
	if v := os.Getenv("DISHWASHER_MQTT_BROKER"); v != "" {
		cfg.MQTT.Broker = v
	}
	if v := os.Getenv("DISHWASHER_MQTT_ENABLED"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			cfg.MQTT.Enabled = b
		}
	}
	if v := os.Getenv("DISHWASHER_GPIO_ENABLED"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			cfg.GPIO.Enabled = b
		}
	}
}

// Validate reports every invalid setting at once.
func (c *Config) Validate() error {
	var errs []string

	if c.Runtime.QueueSize < 1 {
		errs = append(errs, "runtime.queue_size must be positive")
	}
	if c.Runtime.TimerCapacity < 4 {
		errs = append(errs, "runtime.timer_capacity must be at least 4")
	}
	if c.Runtime.Watchdog <= 0 {
		errs = append(errs, "runtime.watchdog must be positive")
	}
	if c.Runtime.TimeFactor < 1 {
		errs = append(errs, "runtime.time_factor must be at least 1")
	}

	w := c.Water
	if w.Hysteresis < 0 || w.Half <= w.Hysteresis || w.Full <= w.Half || w.Max < w.Full {
		errs = append(errs, "water levels must satisfy 0 <= hysteresis < half < full <= max")
	}
	if w.RangeMin > 0 || w.RangeMax < w.Max {
		errs = append(errs, "water.range must include 0 and max")
	}
	if c.Temperature.Hysteresis < 0 || c.Temperature.RangeMin >= c.Temperature.RangeMax {
		errs = append(errs, "temperature hysteresis and range are inconsistent")
	}
	if c.Current.CircMin >= c.Current.CircMax || c.Current.DrainMin >= c.Current.DrainMax {
		errs = append(errs, "current min must be below max")
	}

	s := c.Spray
	for name, d := range map[string]time.Duration{
		"up_on": s.UpOn, "up_off": s.UpOff, "down_on": s.DownOn, "down_off": s.DownOff,
		"both_on": s.BothOn, "both_off": s.BothOff, "search": s.Search, "keep_position": s.KeepPosition,
	} {
		if d <= 0 {
			errs = append(errs, fmt.Sprintf("spray.%s must be positive", name))
		}
	}
	if s.MinSamples < 12 || s.SampleCapacity < s.MinSamples {
		errs = append(errs, "spray sample counts must satisfy 12 <= min_samples <= sample_capacity")
	}

	if c.Program.StepDelay <= 0 || c.Program.ResinWash <= 0 || c.Program.ShutdownPulse <= 0 {
		errs = append(errs, "program step_delay, resin_wash and shutdown_pulse must be positive")
	}
	for name, row := range c.Program.Tables {
		p, ok := event.ParseProgram(name)
		if !ok || p == event.ProgramNone || p == event.ProgramStop {
			errs = append(errs, fmt.Sprintf("program.tables: unknown program %q", name))
			continue
		}
		if len(row.Temperatures) != int(event.StateCount) || len(row.Minutes) != int(event.StateCount) {
			errs = append(errs, fmt.Sprintf("program.tables.%s: need %d temperatures and minutes", name, event.StateCount))
		}
	}

	if c.Input.Poll <= 0 {
		errs = append(errs, "input.poll must be positive")
	}
	if c.MQTT.Enabled && c.MQTT.Broker == "" {
		errs = append(errs, "mqtt.broker is required when mqtt is enabled")
	}
	if c.MQTT.BufferSize < 1 {
		errs = append(errs, "mqtt.buffer_size must be positive")
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration errors: %s", strings.Join(errs, "; "))
	}
	return nil
}
