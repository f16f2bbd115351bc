// Package sim is the simulation core: the world clock, status decay,
// character movement, and the engine tick loop that drives everything.
package sim

import (
	"time"

	"github.com/talgya/lifesim/internal/config"
	"github.com/talgya/lifesim/internal/world"
)

// interruptPriority orders the stats that can force a recovery action.
// Mood never interrupts.
var interruptPriority = []string{"bladder", "satiety", "energy", "hygiene"}

// Clock derives world time from the wall clock in a fixed timezone.
// Day 1 starts at the persisted server start time.
type Clock struct {
	loc         *time.Location
	serverStart time.Time

	// nowFn is replaceable in tests.
	nowFn func() time.Time
}

// NewClock builds a Clock anchored at serverStart.
func NewClock(loc *time.Location, serverStart time.Time) *Clock {
	return &Clock{loc: loc, serverStart: serverStart, nowFn: time.Now}
}

// WallNow returns the current wall-clock instant.
func (c *Clock) WallNow() time.Time { return c.nowFn() }

// Now converts the wall clock into world time.
func (c *Clock) Now() world.WorldTime {
	now := c.nowFn().In(c.loc)
	day := int(now.Sub(c.serverStart)/(24*time.Hour)) + 1
	return world.WorldTime{Hour: now.Hour(), Minute: now.Minute(), Day: day}
}

// Interrupt reports a stat crossing below the threshold this pass.
type Interrupt struct {
	CharacterID string
	Stat        string
}

// Decay applies elapsed-time status decay plus the per-minute effects of
// active actions, clamped to [0, 100]. It returns at most one interrupt
// per character: the highest-priority stat that crossed below the
// threshold on this pass. A crossing fires once; a stat already below
// the threshold stays silent until it recovers and drops again.
func Decay(ws *world.WorldState, cfg *config.Config, perMinuteOf func(characterID string) map[string]float64, elapsedMinutes float64) []Interrupt {
	if elapsedMinutes <= 0 {
		return nil
	}
	rates := map[string]float64{
		"satiety": cfg.Decay.SatietyPerMinute,
		"bladder": cfg.Decay.BladderPerMinute,
		"energy":  cfg.Decay.EnergyPerMinute,
		"hygiene": cfg.Decay.HygienePerMinute,
		"mood":    cfg.Decay.MoodPerMinute,
	}

	var interrupts []Interrupt
	for _, c := range ws.Characters() {
		var perMinute map[string]float64
		if perMinuteOf != nil {
			perMinute = perMinuteOf(c.ID)
		}

		crossed := map[string]bool{}
		for _, name := range world.StatNames {
			old := c.Stat(name)
			delta := -rates[name] * elapsedMinutes
			if perMinute != nil {
				delta += perMinute[name] * elapsedMinutes
			}
			next := world.ClampStat(old + delta)
			c.SetStat(name, next)
			if old >= cfg.InterruptBelow && next < cfg.InterruptBelow {
				crossed[name] = true
			}
		}
		for _, name := range interruptPriority {
			if crossed[name] {
				interrupts = append(interrupts, Interrupt{CharacterID: c.ID, Stat: name})
				break
			}
		}
	}
	return interrupts
}
