// Package config loads the world configuration bundle: timing, movement,
// status decay, timezone, and the action table.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// DecayRates are per-minute status losses applied by the clock.
type DecayRates struct {
	SatietyPerMinute float64 `yaml:"satietyPerMinute"`
	BladderPerMinute float64 `yaml:"bladderPerMinute"`
	EnergyPerMinute  float64 `yaml:"energyPerMinute"`
	HygienePerMinute float64 `yaml:"hygienePerMinute"`
	MoodPerMinute    float64 `yaml:"moodPerMinute"`
}

// DurationRange bounds a variable-duration action, in minutes.
type DurationRange struct {
	Min     int `yaml:"min"`
	Max     int `yaml:"max"`
	Default int `yaml:"default"`
}

// ActionEffects are applied once when a fixed action completes.
// HourlyWage pays floor(job.hourlyWage × hoursWorked) instead of a flat sum.
type ActionEffects struct {
	Stats      map[string]float64 `yaml:"stats,omitempty"`
	Money      int                `yaml:"money,omitempty"`
	HourlyWage bool               `yaml:"hourlyWage,omitempty"`
}

// ActionDef describes one entry of the action table.
// Either Fixed (Duration + Effects) or variable (Range + PerMinute).
type ActionDef struct {
	ID           string             `yaml:"id"`
	Emoji        string             `yaml:"emoji,omitempty"`
	Fixed        bool               `yaml:"fixed"`
	Duration     int                `yaml:"duration,omitempty"` // minutes, fixed actions
	Range        *DurationRange     `yaml:"durationRange,omitempty"`
	PerMinute    map[string]float64 `yaml:"perMinute,omitempty"`
	Effects      *ActionEffects     `yaml:"effects,omitempty"`
	RequiredTags []string           `yaml:"requiredTags,omitempty"`
	RequiresJob  bool               `yaml:"requiresJob,omitempty"`
	NearNPC      bool               `yaml:"nearNpc,omitempty"`
}

// Config is the full world configuration.
type Config struct {
	TickRate          int        `yaml:"tickRate"`          // ticks per second
	MovementSpeed     float64    `yaml:"movementSpeed"`     // pixels per second
	TurnIntervalMs    int        `yaml:"turnIntervalMs"`    // pause between conversation turns
	LLMTimeoutMs      int        `yaml:"llmTimeoutMs"`      // deadline per LLM call
	SaveEveryTicks    int        `yaml:"saveEveryTicks"`    // periodic snapshot cadence
	InterruptBelow    float64    `yaml:"interruptBelow"`    // status interrupt threshold
	GridSpacing       float64    `yaml:"gridSpacing"`       // pixels between generated grid nodes
	Timezone          string     `yaml:"timezone"`          // IANA name
	Decay             DecayRates `yaml:"decayRates"`
	Actions           []ActionDef `yaml:"actions"`

	loc *time.Location
}

// Default returns the configuration used when no file is supplied.
func Default() *Config {
	cfg := &Config{
		TickRate:       20,
		MovementSpeed:  100,
		TurnIntervalMs: 60_000,
		LLMTimeoutMs:   30_000,
		SaveEveryTicks: 1200,
		InterruptBelow: 10,
		GridSpacing:    32,
		Timezone:       "Asia/Tokyo",
		Decay: DecayRates{
			SatietyPerMinute: 0.06,
			BladderPerMinute: 0.08,
			EnergyPerMinute:  0.05,
			HygienePerMinute: 0.04,
			MoodPerMinute:    0.02,
		},
		Actions: DefaultActions(),
	}
	cfg.loc, _ = time.LoadLocation(cfg.Timezone)
	return cfg
}

// DefaultActions is the built-in action table.
func DefaultActions() []ActionDef {
	return []ActionDef{
		{
			ID: "eat", Emoji: "🍚", Fixed: true, Duration: 30,
			Effects:      &ActionEffects{Stats: map[string]float64{"satiety": 40, "mood": 5}},
			RequiredTags: []string{"food"},
		},
		{
			ID: "toilet", Emoji: "🚽", Fixed: true, Duration: 5,
			Effects:      &ActionEffects{Stats: map[string]float64{"bladder": 80}},
			RequiredTags: []string{"toilet"},
		},
		{
			ID: "bathe", Emoji: "🛁", Fixed: true, Duration: 20,
			Effects:      &ActionEffects{Stats: map[string]float64{"hygiene": 60, "mood": 5}},
			RequiredTags: []string{"bath"},
		},
		{
			ID: "sleep", Emoji: "😴",
			Range:        &DurationRange{Min: 60, Max: 600, Default: 480},
			PerMinute:    map[string]float64{"energy": 0.25},
			RequiredTags: []string{"bed"},
		},
		{
			ID: "rest", Emoji: "☕",
			Range:     &DurationRange{Min: 10, Max: 120, Default: 30},
			PerMinute: map[string]float64{"energy": 0.1, "mood": 0.05},
		},
		{
			ID: "work", Emoji: "💼",
			Range:       &DurationRange{Min: 30, Max: 480, Default: 240},
			PerMinute:   map[string]float64{"energy": -0.05, "mood": -0.02},
			Effects:     &ActionEffects{HourlyWage: true},
			RequiresJob: true,
		},
		{
			ID: "talk", Emoji: "💬", Fixed: true, Duration: 0,
			NearNPC: true,
		},
		{
			ID: "thinking", Fixed: true, Duration: 0,
		},
	}
}

// Load reads a YAML config file, filling unset fields from Default.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	if len(cfg.Actions) == 0 {
		cfg.Actions = DefaultActions()
	}
	loc, err := time.LoadLocation(cfg.Timezone)
	if err != nil {
		return nil, fmt.Errorf("timezone %q: %w", cfg.Timezone, err)
	}
	cfg.loc = loc
	return cfg, nil
}

// Location returns the configured timezone, falling back to UTC.
func (c *Config) Location() *time.Location {
	if c.loc == nil {
		loc, err := time.LoadLocation(c.Timezone)
		if err != nil {
			return time.UTC
		}
		c.loc = loc
	}
	return c.loc
}

// TickInterval converts the tick rate to a duration.
func (c *Config) TickInterval() time.Duration {
	if c.TickRate <= 0 {
		return 50 * time.Millisecond
	}
	return time.Second / time.Duration(c.TickRate)
}

// TurnInterval is the pause between completed conversation turns.
func (c *Config) TurnInterval() time.Duration {
	return time.Duration(c.TurnIntervalMs) * time.Millisecond
}

// LLMTimeout is the deadline applied to each LLM call.
func (c *Config) LLMTimeout() time.Duration {
	if c.LLMTimeoutMs <= 0 {
		return 30 * time.Second
	}
	return time.Duration(c.LLMTimeoutMs) * time.Millisecond
}

// Action returns the definition for an action id, or nil.
func (c *Config) Action(id string) *ActionDef {
	for i := range c.Actions {
		if c.Actions[i].ID == id {
			return &c.Actions[i]
		}
	}
	return nil
}
