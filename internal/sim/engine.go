package sim

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/talgya/lifesim/internal/action"
	"github.com/talgya/lifesim/internal/behavior"
	"github.com/talgya/lifesim/internal/config"
	"github.com/talgya/lifesim/internal/convo"
	"github.com/talgya/lifesim/internal/schedule"
	"github.com/talgya/lifesim/internal/store"
	"github.com/talgya/lifesim/internal/world"
)

const (
	maxEvents     = 256
	queueCapacity = 64
)

// Event is one notable happening kept in the bounded engine log.
type Event struct {
	Tick        uint64    `json:"tick"`
	Time        string    `json:"time"`
	Description string    `json:"description"`
	Category    string    `json:"category"`
	At          time.Time `json:"at"`
}

type decisionResult struct {
	characterID string
	epoch       int
	intent      behavior.Intent
}

// Engine owns the tick loop. All world mutation happens on its goroutine;
// decisions and conversations run in the background and post results to
// bounded queues drained each tick.
type Engine struct {
	cfg       *config.Config
	ws        *world.WorldState
	store     store.Store
	clock     *Clock
	sim       *Simulator
	actions   *action.Executor
	decider   *behavior.Decider
	schedules *schedule.Manager
	convos    *convo.Manager
	convoExec *convo.Executor
	postProc  *convo.PostProcessor

	decisionCh chan decisionResult
	convoCh    chan *convo.Session
	inFlight   map[string]bool
	epochs     map[string]int

	tick        uint64
	lastTick    time.Time
	lastDay     int
	serverStart time.Time
	bootstrap   bool

	events []Event

	stopCh chan struct{}
}

// Deps bundles the engine's collaborators.
type Deps struct {
	Config    *config.Config
	World     *world.WorldState
	Store     store.Store
	Decider   *behavior.Decider
	Schedules *schedule.Manager
	Convos    *convo.Manager
	ConvoExec *convo.Executor
	PostProc  *convo.PostProcessor
}

// NewEngine wires the engine. Call EnsureInitialized before Run.
func NewEngine(d Deps) *Engine {
	e := &Engine{
		cfg:        d.Config,
		ws:         d.World,
		store:      d.Store,
		decider:    d.Decider,
		schedules:  d.Schedules,
		convos:     d.Convos,
		convoExec:  d.ConvoExec,
		postProc:   d.PostProc,
		decisionCh: make(chan decisionResult, queueCapacity),
		convoCh:    make(chan *convo.Session, queueCapacity),
		inFlight:   make(map[string]bool),
		epochs:     make(map[string]int),
		stopCh:     make(chan struct{}),
	}
	e.sim = NewSimulator(d.Config, d.World)
	e.sim.OnNavigationComplete = e.onNavigationComplete
	e.actions = action.NewExecutor(d.Config, d.World)
	e.actions.OnRecordHistory = e.onRecordHistory
	e.actions.OnActionComplete = e.onActionComplete
	if e.convoExec != nil {
		e.convoExec.OnResult = func(s *convo.Session) {
			select {
			case e.convoCh <- s:
			default:
				slog.Error("conversation queue full, dropping result",
					"character", s.CharacterID, "npc", s.NpcID)
			}
		}
		e.convoExec.OnMessage = e.onConversationMessage
	}
	return e
}

// onConversationMessage surfaces each utterance in the event log. Called
// from the conversation loop goroutine.
func (e *Engine) onConversationMessage(characterID, npcID string, m convo.Message) {
	e.ws.Lock()
	defer e.ws.Unlock()
	speaker := characterID
	if m.Speaker == convo.SpeakerNPC {
		speaker = npcID
		if npc := e.ws.NPC(npcID); npc != nil {
			speaker = npc.Name
		}
	} else if c := e.ws.Character(characterID); c != nil {
		speaker = c.Name
	}
	e.recordEvent("message", fmt.Sprintf("%s: %s", speaker, m.Text))
}

// EnsureInitialized restores persisted state and anchors the world
// clock. Idempotent: a second call is a no-op.
func (e *Engine) EnsureInitialized(ctx context.Context) error {
	if e.bootstrap {
		return nil
	}
	start, err := e.store.EnsureServerStart(ctx, time.Now())
	if err != nil {
		return fmt.Errorf("server start: %w", err)
	}
	e.serverStart = start
	e.clock = NewClock(e.cfg.Location(), start.In(e.cfg.Location()))

	st, err := e.store.LoadState(ctx)
	if err != nil {
		return fmt.Errorf("load state: %w", err)
	}
	e.ws.Lock()
	if st != nil {
		e.ws.RestoreCharacters(st.Characters)
		if st.CurrentMapID != "" {
			e.ws.SetCurrentMapID(st.CurrentMapID)
		}
	}
	npcs, err := e.store.LoadNPCs(ctx)
	if err != nil {
		e.ws.Unlock()
		return fmt.Errorf("load npcs: %w", err)
	}
	for id, d := range npcs {
		e.ws.UpdateNPCDynamic(id, d)
	}
	now := e.clock.Now()
	e.ws.SetTime(now)
	e.lastDay = now.Day
	full := e.ws.FullState()
	e.ws.Unlock()

	if st == nil {
		if err := e.store.SaveState(ctx, full); err != nil {
			return fmt.Errorf("initial save: %w", err)
		}
	}
	e.lastTick = e.clock.WallNow()
	e.bootstrap = true
	slog.Info("engine initialized",
		"serverStart", e.serverStart.Format(time.RFC3339),
		"day", now.Day, "time", now.HHMM(),
		"restored", st != nil)
	return nil
}

// Run drives the tick loop until the context ends, then takes a final
// snapshot.
func (e *Engine) Run(ctx context.Context) error {
	if !e.bootstrap {
		return fmt.Errorf("engine not initialized")
	}
	interval := e.cfg.TickInterval()
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			e.finalSave()
			return ctx.Err()
		case <-e.stopCh:
			e.finalSave()
			return nil
		case <-ticker.C:
			e.Step()
		}
	}
}

// Stop ends Run from another goroutine.
func (e *Engine) Stop() {
	select {
	case <-e.stopCh:
	default:
		close(e.stopCh)
	}
}

// Step executes one tick. Exported so tests can drive the engine without
// the wall-clock loop.
func (e *Engine) Step() {
	wallNow := e.clock.WallNow()
	dt := wallNow.Sub(e.lastTick).Seconds()
	elapsedMinutes := dt / 60
	e.lastTick = wallNow

	e.ws.Lock()
	defer e.ws.Unlock()

	now := e.clock.Now()
	e.ws.SetTime(now)

	if now.Day != e.lastDay {
		e.schedules.DropDay(now.Day)
		e.recordEvent("time", fmt.Sprintf("day %d begins", now.Day))
		e.lastDay = now.Day
		go func(day int) {
			n, err := e.store.PurgeExpired(context.Background(), day)
			if err != nil {
				slog.Error("memory purge failed", "day", day, "err", err)
				return
			}
			if n > 0 {
				slog.Info("expired memories purged", "day", day, "removed", n)
			}
		}(now.Day)
	}

	if !e.ws.Paused() {
		interrupts := Decay(e.ws, e.cfg, e.actions.ActivePerMinute, elapsedMinutes)
		for _, in := range interrupts {
			e.handleInterrupt(in)
		}
		e.actions.Tick(wallNow)
		e.sim.Tick(dt)
		e.dispatchDecisions(now)
	}

	e.drainQueues(now)

	e.tick++
	if e.cfg.SaveEveryTicks > 0 && e.tick%uint64(e.cfg.SaveEveryTicks) == 0 {
		e.saveAsync()
	}
}

// handleInterrupt preempts whatever the character is doing with the
// mapped recovery action. A forced action already underway is left alone.
func (e *Engine) handleInterrupt(in Interrupt) {
	c := e.ws.Character(in.CharacterID)
	if c == nil {
		return
	}
	forced := behavior.ForcedActions[in.Stat]
	if c.CurrentAction != nil && c.CurrentAction.ActionID == forced {
		return
	}
	if c.Conversation.Status == world.ConvoActive {
		// Conversations finish on their own; the need resurfaces after.
		return
	}
	slog.Info("interrupt", "character", in.CharacterID, "stat", in.Stat, "action", forced)
	e.recordEvent("interrupt", fmt.Sprintf("%s: %s critically low", c.Name, in.Stat))

	if c.CurrentAction != nil {
		e.actions.ForceComplete(in.CharacterID)
	}
	e.ws.StopNavigation(in.CharacterID)
	c.PendingAction = nil
	c.ActionCounter++

	// Interrupt mode resolves synchronously: the decider skips the LLM
	// when Forced is set.
	e.applyIntent(in.CharacterID, e.decider.Decide(context.Background(), behavior.Input{
		CharacterID: in.CharacterID,
		Forced:      in.Stat,
	}))
}

// dispatchDecisions starts a background decision for every idle
// character without one in flight.
func (e *Engine) dispatchDecisions(now world.WorldTime) {
	for _, c := range e.ws.Characters() {
		if !e.needsDecision(c) || e.inFlight[c.ID] {
			continue
		}
		if err := e.actions.Start(c.ID, action.Request{ActionID: "thinking"}, e.clock.WallNow()); err != nil {
			slog.Warn("thinking placeholder rejected", "character", c.ID, "err", err)
			continue
		}
		c.ActionCounter++
		epoch := c.ActionCounter
		e.inFlight[c.ID] = true
		e.epochs[c.ID] = epoch
		in := e.decisionInput(c, now)

		go func(in behavior.Input, epoch int) {
			ctx, cancel := context.WithTimeout(context.Background(), e.cfg.LLMTimeout())
			defer cancel()
			intent := e.decider.Decide(ctx, in)
			select {
			case e.decisionCh <- decisionResult{characterID: in.CharacterID, epoch: epoch, intent: intent}:
			default:
				slog.Error("decision queue full, dropping intent", "character", in.CharacterID)
			}
		}(in, epoch)
	}
}

func (e *Engine) needsDecision(c *world.Character) bool {
	return c.CurrentAction == nil &&
		c.PendingAction == nil &&
		!c.Navigation.IsMoving &&
		!c.CrossMapNav.IsActive &&
		!c.Transition.Active() &&
		c.Conversation.Status != world.ConvoActive
}

// decisionInput assembles the immutable decision context under the lock.
func (e *Engine) decisionInput(c *world.Character, now world.WorldTime) behavior.Input {
	in := behavior.Input{
		CharacterID: c.ID,
		Name:        c.Name,
		Profile:     c.Profile,
		Stats: map[string]float64{
			"satiety": c.Satiety, "bladder": c.Bladder,
			"energy": c.Energy, "hygiene": c.Hygiene, "mood": c.Mood,
		},
		Money:    c.Money,
		Employed: c.Employment != nil,
		MapID:    c.CurrentMapID,
		NodeID:   c.CurrentNodeID,
		Time:     now,
	}
	ctx := context.Background()
	in.Schedule = e.schedules.Schedule(ctx, c.ID, now.Day)
	history := e.schedules.History(ctx, c.ID, now.Day)
	if len(history) > 10 {
		history = history[len(history)-10:]
	}
	in.History = history
	for _, n := range e.ws.NPCsOnMap(c.CurrentMapID) {
		in.Nearby = append(in.Nearby, behavior.NearbyNPC{
			ID: n.ID, Name: n.Name, Affinity: n.Dynamic.Affinity, Mood: n.Dynamic.Mood,
		})
	}
	if mems, err := e.store.ActiveMemories(ctx, c.ID, now.Day); err == nil {
		in.Memories = mems
	}
	return in
}

// drainQueues applies a bounded batch of background results on the loop.
func (e *Engine) drainQueues(now world.WorldTime) {
	for i := 0; i < queueCapacity; i++ {
		select {
		case res := <-e.decisionCh:
			e.applyDecision(res)
		case s := <-e.convoCh:
			e.applyConversation(s, now)
		default:
			return
		}
	}
}

// applyDecision closes the thinking placeholder and acts on the intent.
// Results from a superseded epoch are dropped: an interrupt got there
// first.
func (e *Engine) applyDecision(res decisionResult) {
	delete(e.inFlight, res.characterID)
	c := e.ws.Character(res.characterID)
	if c == nil {
		return
	}
	if e.epochs[res.characterID] != res.epoch || c.ActionCounter != res.epoch {
		slog.Debug("stale decision dropped", "character", res.characterID)
		return
	}
	if c.CurrentAction != nil && c.CurrentAction.ActionID == "thinking" {
		e.actions.ForceComplete(res.characterID)
	}
	slog.Info("decision", "character", res.characterID, "intent", res.intent.String())
	e.applyIntent(res.characterID, res.intent)
}

// applyIntent executes an Intent: start the action here, or walk to
// where it can run first and queue it as pending.
func (e *Engine) applyIntent(characterID string, intent behavior.Intent) {
	c := e.ws.Character(characterID)
	if c == nil {
		return
	}
	switch intent.Kind {
	case behavior.IntentIdle:

	case behavior.IntentMoveToNode:
		if !e.sim.NavigateToNode(characterID, intent.NodeID) {
			slog.Warn("move rejected", "character", characterID, "node", intent.NodeID)
		}

	case behavior.IntentMoveToMap:
		if !e.sim.NavigateToMap(characterID, intent.MapID, intent.NodeID) {
			slog.Warn("move rejected", "character", characterID, "map", intent.MapID)
		}

	case behavior.IntentStartAction:
		req := action.Request{
			ActionID:        intent.ActionID,
			FacilityID:      intent.FacilityID,
			TargetNpcID:     intent.NpcID,
			DurationMinutes: intent.DurationMinutes,
			Reason:          intent.Reason,
		}
		if ok, _ := e.actions.CanExecute(characterID, req); ok {
			if err := e.actions.Start(characterID, req, e.clock.WallNow()); err != nil {
				slog.Warn("action start failed", "character", characterID, "err", err)
			}
			return
		}
		e.routeToAction(characterID, req)

	case behavior.IntentStartConversation:
		e.startConversation(characterID, intent)
	}
}

// routeToAction walks the character to a facility where the action can
// run, queuing the action behind the movement. Searches the current map
// first, then any map reachable through entrances.
func (e *Engine) routeToAction(characterID string, req action.Request) {
	c := e.ws.Character(characterID)
	def := e.cfg.Action(req.ActionID)
	if c == nil || def == nil {
		return
	}
	if len(def.RequiredTags) == 0 {
		slog.Warn("action not startable and has no facility to route to",
			"character", characterID, "action", req.ActionID)
		return
	}

	pending := &world.PendingAction{
		ActionID:        req.ActionID,
		DurationMinutes: req.DurationMinutes,
		Reason:          req.Reason,
	}
	here := e.ws.Map(c.CurrentMapID)
	if f := here.FindFacility(def.RequiredTags, c.ID, c.Money, c.CurrentNodeID); f != nil {
		if node := here.FacilityNode(f.ID); node != nil {
			pending.FacilityID = f.ID
			c.PendingAction = pending
			if !e.sim.NavigateToNode(characterID, node.ID) {
				c.PendingAction = nil
			}
			return
		}
	}
	for mapID, m := range e.ws.Maps() {
		if mapID == c.CurrentMapID {
			continue
		}
		f := m.FindFacility(def.RequiredTags, c.ID, c.Money, "")
		if f == nil {
			continue
		}
		node := m.FacilityNode(f.ID)
		if node == nil {
			continue
		}
		pending.FacilityID = f.ID
		c.PendingAction = pending
		if !e.sim.NavigateToMap(characterID, mapID, node.ID) {
			c.PendingAction = nil
			continue
		}
		return
	}
	slog.Warn("no facility found for action",
		"character", characterID, "action", req.ActionID, "tags", fmt.Sprint(def.RequiredTags))
}

// startConversation opens a session and launches its turn loop.
func (e *Engine) startConversation(characterID string, intent behavior.Intent) {
	c := e.ws.Character(characterID)
	npc := e.ws.NPC(intent.NpcID)
	if c == nil || npc == nil {
		return
	}
	if ok, reason := e.actions.CanExecute(characterID, action.Request{ActionID: "talk", TargetNpcID: intent.NpcID}); !ok {
		// Not adjacent yet: walk to a cardinal neighbor of the NPC first.
		if reason == "not adjacent to npc" || reason == "npc is on another map" {
			e.routeToNPC(characterID, npc)
			return
		}
		slog.Warn("conversation rejected", "character", characterID, "npc", intent.NpcID, "reason", reason)
		return
	}

	s, err := e.convos.Start(characterID, intent.NpcID, convo.Goal{Goal: intent.Goal})
	if err != nil {
		slog.Warn("conversation rejected", "character", characterID, "err", err)
		return
	}
	e.ws.SetConversation(characterID, intent.NpcID, true)
	c.DisplayEmoji = "💬"
	e.recordEvent("conversation", fmt.Sprintf("%s starts talking to %s", c.Name, npc.Name))

	p := convo.Participants{
		CharacterName:    c.Name,
		CharacterProfile: c.Profile,
		NpcName:          npc.Name,
		NpcPersona:       npc.Persona,
		NpcMood:          npc.Dynamic.Mood,
		NpcFacts:         append([]string(nil), npc.Dynamic.Facts...),
		Affinity:         npc.Dynamic.Affinity,
	}
	ctx := context.Background()
	if mems, err := e.store.ActiveMemories(ctx, characterID, e.ws.Time().Day); err == nil {
		p.Memories = mems
	}
	if sums, err := e.store.RecentSummaries(ctx, characterID, intent.NpcID, 3); err == nil {
		p.Summaries = sums
	}
	if !e.convoExec.Run(context.Background(), characterID, p) {
		slog.Warn("conversation loop already running", "character", characterID, "session", s.ID)
	}
}

// routeToNPC walks the character next to the NPC and queues the talk.
func (e *Engine) routeToNPC(characterID string, npc *world.NPC) {
	c := e.ws.Character(characterID)
	m := e.ws.Map(npc.MapID)
	if c == nil || m == nil {
		return
	}
	npcNode := m.Node(npc.NodeID)
	if npcNode == nil {
		return
	}
	// Any connected neighbor on a cardinal tile will do.
	var targetID string
	for _, nid := range m.Neighbors(npc.NodeID) {
		if m.AreCardinalNeighbors(npc.NodeID, nid) {
			targetID = nid
			break
		}
	}
	if targetID == "" {
		slog.Warn("npc has no approachable neighbor", "npc", npc.ID)
		return
	}
	c.PendingAction = &world.PendingAction{
		ActionID: "talk:" + npc.ID,
		Reason:   fmt.Sprintf("talk to %s", npc.Name),
	}
	ok := false
	if c.CurrentMapID == npc.MapID {
		ok = e.sim.NavigateToNode(characterID, targetID)
	} else {
		ok = e.sim.NavigateToMap(characterID, npc.MapID, targetID)
	}
	if !ok {
		c.PendingAction = nil
	}
}

// onNavigationComplete starts any queued pending action at the
// destination.
func (e *Engine) onNavigationComplete(characterID string) {
	c := e.ws.Character(characterID)
	if c == nil || c.PendingAction == nil {
		return
	}
	pending := *c.PendingAction
	c.PendingAction = nil

	if npcID, isTalk := talkTarget(pending.ActionID); isTalk {
		e.applyIntent(characterID, behavior.Intent{
			Kind:   behavior.IntentStartConversation,
			NpcID:  npcID,
			Reason: pending.Reason,
		})
		return
	}
	err := e.actions.Start(characterID, action.Request{
		ActionID:        pending.ActionID,
		FacilityID:      pending.FacilityID,
		DurationMinutes: pending.DurationMinutes,
		Reason:          pending.Reason,
	}, e.clock.WallNow())
	if err != nil {
		slog.Warn("pending action failed on arrival", "character", characterID, "err", err)
	}
}

func talkTarget(actionID string) (string, bool) {
	const prefix = "talk:"
	if len(actionID) > len(prefix) && actionID[:len(prefix)] == prefix {
		return actionID[len(prefix):], true
	}
	return "", false
}

// applyConversation folds a finished session back into the world: clear
// flags, post-process, persist, and back-fill the history episode.
func (e *Engine) applyConversation(s *convo.Session, now world.WorldTime) {
	c := e.ws.Character(s.CharacterID)
	npc := e.ws.NPC(s.NpcID)
	e.ws.SetConversation(s.CharacterID, s.NpcID, false)
	if c != nil {
		c.DisplayEmoji = ""
		c.ActionCounter++
	}
	if npc == nil {
		return
	}
	e.recordEvent("conversation", fmt.Sprintf("%s finished talking to %s (%d turns)",
		s.CharacterID, npc.Name, s.CurrentTurn))

	current := npc.Dynamic
	timeHHMM := now.HHMM()
	e.schedules.RecordAction(s.CharacterID, now.Day, world.HistoryEntry{
		Time:            timeHHMM,
		ActionID:        "talk",
		Target:          s.NpcID,
		DurationMinutes: int(time.Since(s.StartTime).Minutes()),
		Reason:          s.Goal.Goal,
	})

	go func(now world.WorldTime) {
		day := now.Day
		ctx, cancel := context.WithTimeout(context.Background(), e.cfg.LLMTimeout())
		defer cancel()
		ex := e.postProc.Extract(ctx, s, npc.Name, current)
		res := e.postProc.Apply(ex, s, current, day)
		e.postProc.Persist(context.Background(), s.NpcID, res)
		e.ws.Lock()
		e.ws.UpdateNPCDynamic(s.NpcID, res.Dynamic)
		e.ws.Unlock()
		if ex.Summary != "" {
			e.schedules.SetEpisode(s.CharacterID, day, timeHHMM, ex.Summary)
		}
		e.reviseSchedule(s, ex.Summary, now)
	}(now)
}

// reviseSchedule lets the conversation's outcome rewrite the rest of
// the day's plan. Runs on the post-processing goroutine.
func (e *Engine) reviseSchedule(s *convo.Session, summary string, now world.WorldTime) {
	ctx, cancel := context.WithTimeout(context.Background(), e.cfg.LLMTimeout())
	defer cancel()
	plan := e.schedules.Schedule(ctx, s.CharacterID, now.Day)
	changes := e.postProc.ReviseSchedule(ctx, s, summary, plan, now)
	if len(changes) == 0 {
		return
	}
	upd := make([]schedule.Change, 0, len(changes))
	for _, ch := range changes {
		upd = append(upd, schedule.Change{
			Op: ch.Op, Time: ch.Time, Activity: ch.Activity, MapID: ch.MapID, NodeID: ch.NodeID,
		})
	}
	e.schedules.ApplyUpdate(ctx, s.CharacterID, now.Day, upd)
	slog.Info("schedule revised after conversation",
		"character", s.CharacterID, "npc", s.NpcID, "changes", len(upd))
	e.ws.Lock()
	e.recordEvent("schedule", fmt.Sprintf("%s revised today's plan (%d changes)", s.CharacterID, len(upd)))
	e.ws.Unlock()
}

func (e *Engine) onRecordHistory(characterID string, entry world.HistoryEntry) {
	now := e.ws.Time()
	e.schedules.RecordAction(characterID, now.Day, entry)
	if entry.ActionID != "thinking" {
		c := e.ws.Character(characterID)
		name := characterID
		if c != nil {
			name = c.Name
		}
		e.recordEvent("action", fmt.Sprintf("%s finished %s", name, entry.ActionID))
	}
}

// onActionComplete bumps the decision epoch and retires the schedule
// entry the action fulfilled, if any.
func (e *Engine) onActionComplete(characterID, actionID string) {
	if c := e.ws.Character(characterID); c != nil {
		c.ActionCounter++
	}
	now := e.ws.Time()
	ctx := context.Background()
	if next := e.schedules.NextPending(ctx, characterID, now); next != nil && next.Activity == actionID {
		e.schedules.MarkDone(ctx, characterID, now.Day, next.Time)
	}
}

// recordEvent appends to the bounded event ring. Caller holds the lock.
func (e *Engine) recordEvent(category, description string) {
	e.events = append(e.events, Event{
		Tick:        e.tick,
		Time:        e.ws.Time().HHMM(),
		Description: description,
		Category:    category,
		At:          time.Now(),
	})
	if len(e.events) > maxEvents {
		e.events = e.events[len(e.events)-maxEvents:]
	}
}

// Events returns a copy of the recent event log.
func (e *Engine) Events() []Event {
	e.ws.RLock()
	defer e.ws.RUnlock()
	return append([]Event(nil), e.events...)
}

// Tick returns the tick counter.
func (e *Engine) Tick() uint64 {
	e.ws.RLock()
	defer e.ws.RUnlock()
	return e.tick
}

// ServerStart returns the persisted anchor time.
func (e *Engine) ServerStart() time.Time { return e.serverStart }

// World exposes the state for snapshot readers.
func (e *Engine) World() *world.WorldState { return e.ws }

// SetPaused toggles simulation pause.
func (e *Engine) SetPaused(p bool) {
	e.ws.Lock()
	defer e.ws.Unlock()
	e.ws.SetPaused(p)
}

// saveAsync deep-copies the state under the lock and persists it in the
// background.
func (e *Engine) saveAsync() {
	full := e.ws.FullState()
	snapshot := &world.FullState{
		Time:         full.Time,
		CurrentMapID: full.CurrentMapID,
	}
	for _, c := range full.Characters {
		cp := *c
		if c.Employment != nil {
			emp := *c.Employment
			cp.Employment = &emp
		}
		snapshot.Characters = append(snapshot.Characters, &cp)
	}
	go func() {
		if err := e.store.SaveState(context.Background(), snapshot); err != nil {
			slog.Error("periodic save failed", "err", err)
		}
	}()
}

func (e *Engine) finalSave() {
	e.ws.Lock()
	full := e.ws.FullState()
	e.ws.Unlock()
	e.schedules.Flush()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := e.store.SaveState(ctx, full); err != nil {
		slog.Error("final save failed", "err", err)
		return
	}
	slog.Info("final state saved", "tick", e.tick)
}
