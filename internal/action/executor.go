// Package action admits, starts, ticks, and completes character actions
// from the configured action table.
package action

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/talgya/lifesim/internal/config"
	"github.com/talgya/lifesim/internal/world"
)

// Executor runs the timed action lifecycle. It mutates world state only
// from the engine goroutine.
type Executor struct {
	cfg *config.Config
	ws  *world.WorldState

	// OnRecordHistory fires when an action completes, before OnActionComplete.
	OnRecordHistory func(characterID string, e world.HistoryEntry)
	// OnActionComplete fires after effects are applied and state cleared.
	OnActionComplete func(characterID, actionID string)
	// OnActionStart fires when an action begins. Not fired for thinking.
	OnActionStart func(characterID, actionID string)
}

// NewExecutor builds an Executor over the world and action table.
func NewExecutor(cfg *config.Config, ws *world.WorldState) *Executor {
	return &Executor{cfg: cfg, ws: ws}
}

// Request describes an action to start.
type Request struct {
	ActionID        string
	FacilityID      string
	TargetNpcID     string
	DurationMinutes int
	Reason          string
}

// CanExecute applies the admission rules. The returned reason is
// human-readable and empty on success.
func (e *Executor) CanExecute(characterID string, req Request) (bool, string) {
	c := e.ws.Character(characterID)
	if c == nil {
		return false, "unknown character"
	}
	def := e.cfg.Action(req.ActionID)
	if def == nil {
		return false, fmt.Sprintf("unknown action %q", req.ActionID)
	}
	if c.CurrentAction != nil {
		return false, fmt.Sprintf("already performing %s", c.CurrentAction.ActionID)
	}
	if c.Conversation.Status == world.ConvoActive {
		return false, "in a conversation"
	}

	m := e.ws.Map(c.CurrentMapID)
	if m == nil {
		return false, fmt.Sprintf("unknown map %q", c.CurrentMapID)
	}

	if len(def.RequiredTags) > 0 {
		f := e.facilityFor(m, c, def, req.FacilityID)
		if f == nil {
			return false, fmt.Sprintf("no accessible facility with tags %v here", def.RequiredTags)
		}
	}

	if def.RequiresJob {
		if c.Employment == nil {
			return false, "not employed"
		}
		job := e.findJob(c.Employment.JobID)
		if job == nil {
			return false, fmt.Sprintf("employer %q no longer exists", c.Employment.JobID)
		}
		if !job.WorkHours.Contains(e.ws.Time().Hour) {
			return false, fmt.Sprintf("outside work hours %02d:00-%02d:00", job.WorkHours.Start, job.WorkHours.End)
		}
		workplace := e.jobFacility(c.Employment.JobID)
		if workplace != nil {
			hereFacilities := m.FacilitiesAt(c.CurrentNodeID)
			present := false
			for _, f := range hereFacilities {
				if f.ID == workplace.ID {
					present = true
					break
				}
			}
			if !present {
				return false, "not at the workplace"
			}
		}
	}

	if def.NearNPC {
		npc := e.ws.NPC(req.TargetNpcID)
		if npc == nil {
			return false, fmt.Sprintf("unknown npc %q", req.TargetNpcID)
		}
		if npc.MapID != c.CurrentMapID {
			return false, "npc is on another map"
		}
		if !m.AreCardinalNeighbors(c.CurrentNodeID, npc.NodeID) {
			return false, "not adjacent to npc"
		}
	}
	return true, ""
}

// Start admits and begins the action: charges facility cost, computes
// the duration, installs the action state, and sets the display emoji.
func (e *Executor) Start(characterID string, req Request, now time.Time) error {
	if ok, reason := e.CanExecute(characterID, req); !ok {
		return fmt.Errorf("cannot start %s: %s", req.ActionID, reason)
	}
	c := e.ws.Character(characterID)
	def := e.cfg.Action(req.ActionID)
	m := e.ws.Map(c.CurrentMapID)

	facilityID := req.FacilityID
	if len(def.RequiredTags) > 0 {
		f := e.facilityFor(m, c, def, req.FacilityID)
		facilityID = f.ID
		if f.Cost > 0 {
			if !e.ws.AdjustMoney(characterID, -f.Cost) {
				return fmt.Errorf("cannot start %s: cannot afford cost %d", req.ActionID, f.Cost)
			}
		}
	}

	minutes := e.duration(def, req.DurationMinutes)
	st := &world.ActionState{
		ActionID:        req.ActionID,
		StartTime:       now,
		FacilityID:      facilityID,
		TargetNpcID:     req.TargetNpcID,
		DurationMinutes: minutes,
		Reason:          req.Reason,
	}
	if minutes > 0 {
		st.TargetEndTime = now.Add(time.Duration(minutes) * time.Minute)
	}
	if !e.ws.SetAction(characterID, st) {
		return fmt.Errorf("cannot start %s: state rejected", req.ActionID)
	}
	c.DisplayEmoji = def.Emoji

	if req.ActionID != "thinking" && e.OnActionStart != nil {
		e.OnActionStart(characterID, req.ActionID)
	}
	slog.Info("action started",
		"character", characterID, "action", req.ActionID,
		"facility", facilityID, "minutes", minutes)
	return nil
}

// Tick completes actions whose target end time has passed. The thinking
// and talk sentinels never complete on their own.
func (e *Executor) Tick(now time.Time) {
	for _, c := range e.ws.Characters() {
		a := c.CurrentAction
		if a == nil || a.ActionID == "thinking" || a.ActionID == "talk" {
			continue
		}
		if a.TargetEndTime.IsZero() || now.Before(a.TargetEndTime) {
			continue
		}
		e.Complete(c.ID)
	}
}

// Complete finishes the current action: applies one-shot effects and
// wages, records history, and clears the action state.
func (e *Executor) Complete(characterID string) {
	c := e.ws.Character(characterID)
	if c == nil || c.CurrentAction == nil {
		return
	}
	a := *c.CurrentAction
	def := e.cfg.Action(a.ActionID)

	if def != nil && def.Effects != nil {
		for stat, delta := range def.Effects.Stats {
			e.ws.AdjustStat(characterID, stat, delta)
		}
		if def.Effects.Money != 0 {
			e.ws.AdjustMoney(characterID, def.Effects.Money)
		}
		if def.Effects.HourlyWage && c.Employment != nil {
			if job := e.findJob(c.Employment.JobID); job != nil {
				hours := float64(a.DurationMinutes) / 60
				pay := int(float64(job.HourlyWage) * hours)
				if pay > 0 {
					e.ws.AdjustMoney(characterID, pay)
					slog.Info("wage paid", "character", characterID, "amount", pay, "minutes", a.DurationMinutes)
				}
			}
		}
	}

	e.ws.ClearAction(characterID)

	if e.OnRecordHistory != nil {
		target := a.FacilityID
		if target == "" {
			target = a.TargetNpcID
		}
		e.OnRecordHistory(characterID, world.HistoryEntry{
			Time:            e.ws.Time().HHMM(),
			ActionID:        a.ActionID,
			Target:          target,
			DurationMinutes: a.DurationMinutes,
			Reason:          a.Reason,
		})
	}
	if e.OnActionComplete != nil {
		e.OnActionComplete(characterID, a.ActionID)
	}
	slog.Info("action completed", "character", characterID, "action", a.ActionID)
}

// ForceComplete clears the current action without effects, history, or
// callbacks. Used when an interrupt or conversation preempts it.
func (e *Executor) ForceComplete(characterID string) {
	c := e.ws.Character(characterID)
	if c == nil || c.CurrentAction == nil {
		return
	}
	slog.Info("action force-completed", "character", characterID, "action", c.CurrentAction.ActionID)
	e.ws.ClearAction(characterID)
}

// ActivePerMinute returns the per-minute stat deltas of the character's
// current action, or nil.
func (e *Executor) ActivePerMinute(characterID string) map[string]float64 {
	c := e.ws.Character(characterID)
	if c == nil || c.CurrentAction == nil {
		return nil
	}
	def := e.cfg.Action(c.CurrentAction.ActionID)
	if def == nil {
		return nil
	}
	return def.PerMinute
}

// duration resolves the effective minutes for an action request.
func (e *Executor) duration(def *config.ActionDef, requested int) int {
	if def.Fixed {
		return def.Duration
	}
	if def.Range == nil {
		return requested
	}
	if requested <= 0 {
		return def.Range.Default
	}
	if requested < def.Range.Min {
		return def.Range.Min
	}
	if requested > def.Range.Max {
		return def.Range.Max
	}
	return requested
}

// facilityFor resolves the facility an action will use, preferring an
// explicit request, then any accessible tagged facility at the node.
func (e *Executor) facilityFor(m *world.Map, c *world.Character, def *config.ActionDef, facilityID string) *world.Facility {
	if facilityID != "" {
		f := m.Facility(facilityID)
		if f == nil || !f.AccessibleBy(c.ID, c.Money) {
			return nil
		}
		for _, t := range def.RequiredTags {
			if f.HasTag(t) {
				return f
			}
		}
		return nil
	}
	return m.FindFacility(def.RequiredTags, c.ID, c.Money, c.CurrentNodeID)
}

// findJob locates a job definition by id across all maps.
func (e *Executor) findJob(jobID string) *world.Job {
	if f := e.jobFacility(jobID); f != nil {
		return f.Job
	}
	return nil
}

// jobFacility locates the facility offering a job id.
func (e *Executor) jobFacility(jobID string) *world.Facility {
	for _, m := range e.ws.Maps() {
		for _, o := range m.Obstacles {
			if o.Facility != nil && o.Facility.Job != nil && o.Facility.Job.JobID == jobID {
				return o.Facility
			}
		}
	}
	return nil
}
