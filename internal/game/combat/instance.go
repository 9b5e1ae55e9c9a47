package combat

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/kmaitland/duskhall/internal/game/dice"
)

// HostileReward is one defeated hostile's contribution to settlement.
type HostileReward struct {
	ID         string
	Experience int
	Gold       int
}

// Report summarizes a terminal instance for reward settlement.
type Report struct {
	InstanceID         string
	LocationID         string
	Result             Result
	SurvivingPlayerIDs []string
	DefeatedHostiles   []HostileReward
}

// InstanceOptions configures a new combat Instance.
type InstanceOptions struct {
	// ID uniquely identifies the instance; required.
	ID string
	// LocationID is the world location owning the fight; required.
	LocationID string
	// Src is the randomness source; required.
	Src dice.Source
	// TurnTimeout bounds how long a player turn waits for SubmitAction
	// before the default action is forced. Required (> 0).
	TurnTimeout time.Duration
	// TurnPause is an optional fixed pause between turns, purely for pacing
	// client-visible output.
	TurnPause time.Duration
	// Logger defaults to a no-op logger.
	Logger *zap.Logger
	// Broadcaster defaults to NopBroadcaster.
	Broadcaster Broadcaster
	// Hooks defaults to NopHooks.
	Hooks Hooks
	// OnEnded, if set, is called exactly once with the terminal report,
	// from the turn-loop goroutine, after the instance reaches StateEnded.
	OnEnded func(Report)
	// OnParticipantLeft, if set, is called when a combatant leaves the
	// fight before it ends (a successful flee).
	OnParticipantLeft func(participantID string)
}

// awaitState tracks the player turn the loop is currently blocked on.
type awaitState struct {
	actorID string
	ch      chan submission
}

type submission struct {
	action   Action
	targetID string // resolved explicit target, empty for default
}

// Instance is the state machine owning one fight. All mutation happens under
// mu, and only the instance's own turn loop resolves actions: turns within one
// instance are strictly sequential. External code reaches in through exactly
// two injection points, SubmitAction and AddParticipant.
type Instance struct {
	id          string
	locationID  string
	src         dice.Source
	turnTimeout time.Duration
	turnPause   time.Duration
	logger      *zap.Logger
	broadcaster Broadcaster
	hooks       Hooks
	onEnded     func(Report)
	onLeft      func(string)

	cancel context.CancelFunc
	done   chan struct{}

	mu           sync.Mutex
	state        State
	result       Result
	roster       []*Combatant          // everyone present, insertion order; fled are removed, dead retained
	participants map[string]*Combatant // id → combatant, same membership as roster
	order        []*Combatant          // living combatants in initiative order
	turnIdx      int                   // invariant while active: 0 <= turnIdx < len(order)
	turn         int                   // 1-based count of resolved turns
	log          []TurnRecord
	targets      map[string]string // actor id → last chosen target id
	await        *awaitState       // non-nil only while a player turn is pending
}

// NewInstance creates an Instance in StateInitializing. Participants are
// registered with AddParticipant; Start rolls initiative and launches the
// turn loop.
//
// Precondition: opts.ID, opts.LocationID, and opts.Src must be set;
// opts.TurnTimeout must be > 0.
func NewInstance(opts InstanceOptions) *Instance {
	if opts.ID == "" || opts.LocationID == "" || opts.Src == nil || opts.TurnTimeout <= 0 {
		panic("combat: NewInstance precondition violated: ID, LocationID, Src, and TurnTimeout are required")
	}
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	var broadcaster Broadcaster = NopBroadcaster{}
	if opts.Broadcaster != nil {
		broadcaster = opts.Broadcaster
	}
	var hooks Hooks = NopHooks{}
	if opts.Hooks != nil {
		hooks = opts.Hooks
	}
	return &Instance{
		id:           opts.ID,
		locationID:   opts.LocationID,
		src:          opts.Src,
		turnTimeout:  opts.TurnTimeout,
		turnPause:    opts.TurnPause,
		logger:       logger.With(zap.String("instance_id", opts.ID), zap.String("location_id", opts.LocationID)),
		broadcaster:  broadcaster,
		hooks:        hooks,
		onEnded:      opts.OnEnded,
		onLeft:       opts.OnParticipantLeft,
		done:         make(chan struct{}),
		state:        StateInitializing,
		result:       ResultOngoing,
		participants: make(map[string]*Combatant),
		targets:      make(map[string]string),
	}
}

// ID returns the instance id.
func (m *Instance) ID() string { return m.id }

// LocationID returns the owning location id.
func (m *Instance) LocationID() string { return m.locationID }

// Done is closed when the turn loop has exited and the instance is terminal.
func (m *Instance) Done() <-chan struct{} { return m.done }

// State returns the current lifecycle state.
func (m *Instance) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Result returns the current result (ResultOngoing until terminal).
func (m *Instance) Result() Result {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.result
}

// Log returns a copy of the append-only turn log.
func (m *Instance) Log() []TurnRecord {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]TurnRecord, len(m.log))
	copy(out, m.log)
	return out
}

// TurnOrderIDs returns the ids of living combatants in initiative order.
func (m *Instance) TurnOrderIDs() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	ids := make([]string, len(m.order))
	for i, c := range m.order {
		ids[i] = c.ID
	}
	return ids
}

// CurrentActorID returns the id of the combatant whose turn it is, or "" when
// the instance is not active.
func (m *Instance) CurrentActorID() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.state == StateEnded || m.state == StateInitializing || len(m.order) == 0 {
		return ""
	}
	return m.order[m.turnIdx].ID
}

// HasParticipant reports whether the combatant is present in the fight
// (living or dead; fled combatants are not present).
func (m *Instance) HasParticipant(id string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.participants[id]
	return ok
}

// Snapshots returns the externally visible state of every present combatant
// in insertion order.
func (m *Instance) Snapshots() []Snapshot {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.snapshotsLocked()
}

func (m *Instance) snapshotsLocked() []Snapshot {
	out := make([]Snapshot, len(m.roster))
	for i, c := range m.roster {
		out[i] = c.Snapshot()
	}
	return out
}

// AddParticipant registers a combatant. Before Start it simply joins the
// roster. During an active fight it is merged in: initiative is rolled via the
// stable late-insert rule and the currently acting combatant keeps its turn.
// The fight never restarts for a join.
//
// Precondition: c must come from NewCombatant and must not already be present.
// Postcondition: c is part of the fight, or a sentinel error is returned and
// nothing changed.
func (m *Instance) AddParticipant(c *Combatant) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.state == StateEnded {
		return ErrAlreadyEnded
	}
	if _, exists := m.participants[c.ID]; exists {
		return ErrAlreadyInCombat
	}

	m.roster = append(m.roster, c)
	m.participants[c.ID] = c

	if m.state == StateInitializing {
		return nil
	}

	m.order, m.turnIdx = InsertLate(m.order, c, m.turnIdx, m.src)
	m.logger.Info("combatant joined mid-fight",
		zap.String("combatant_id", c.ID),
		zap.Stringer("side", c.Side),
		zap.Int("initiative", c.Initiative),
	)
	m.broadcaster.BroadcastTurn(TurnEvent{
		InstanceID: m.id,
		LocationID: m.locationID,
		Turn:       m.turn,
		Message:    fmt.Sprintf("%s joins the fight", c.Name),
		Combatants: m.snapshotsLocked(),
	})
	return nil
}

// Start rolls initiative for the registered participants and launches the
// turn loop as an independent goroutine.
//
// Precondition: state must be StateInitializing with at least one living
// combatant on each side.
// Postcondition: The turn loop is running; state has left StateInitializing.
func (m *Instance) Start() error {
	m.mu.Lock()
	if m.state != StateInitializing {
		m.mu.Unlock()
		return fmt.Errorf("combat: instance %s already started (state %s)", m.id, m.state)
	}
	players, hostiles := 0, 0
	for _, c := range m.roster {
		if !c.IsAlive() {
			continue
		}
		if c.IsPlayer() {
			players++
		} else {
			hostiles++
		}
	}
	if players == 0 || hostiles == 0 {
		m.mu.Unlock()
		return fmt.Errorf("combat: instance %s needs living combatants on both sides (players %d, hostiles %d)", m.id, players, hostiles)
	}

	m.state = StateRollingInitiative
	m.order = RollOrder(m.roster, m.src)
	m.turnIdx = 0

	for _, c := range m.order {
		m.logger.Debug("initiative rolled",
			zap.String("combatant_id", c.ID),
			zap.Int("initiative", c.Initiative),
		)
	}
	m.hooks.OnCombatStart(m.locationID, m.snapshotsLocked())
	m.broadcaster.BroadcastTurn(TurnEvent{
		InstanceID: m.id,
		LocationID: m.locationID,
		Turn:       0,
		Message:    fmt.Sprintf("combat begins; %s acts first", m.order[0].Name),
		Combatants: m.snapshotsLocked(),
	})

	ctx, cancel := context.WithCancel(context.Background())
	m.cancel = cancel
	m.mu.Unlock()

	go m.run(ctx)
	return nil
}

// Stop requests cooperative cancellation. The turn loop stops at the next
// safe point, never mid-resolution, and the instance terminates as
// ResultDraw unless a natural result was already reached. Safe to call at any
// time, from any goroutine, multiple times.
func (m *Instance) Stop() {
	m.mu.Lock()
	cancel := m.cancel
	m.mu.Unlock()
	if cancel != nil {
		cancel()
	}
}

// SubmitAction delivers a player's action for their current turn. Calls
// arriving outside the actor's turn, including after the turn timeout has
// already forced a default, are rejected with ErrNotYourTurn and mutate
// nothing. Attack targets are validated here, synchronously, so the caller
// gets ErrInvalidTarget instead of a silently wasted turn.
func (m *Instance) SubmitAction(actorID string, act Action) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.state == StateEnded {
		return ErrAlreadyEnded
	}
	if m.await == nil || m.await.actorID != actorID {
		return ErrNotYourTurn
	}

	actor := m.participants[actorID]
	sub := submission{action: act}
	switch act.Kind {
	case ActionAttack:
		if act.TargetID != "" {
			target, ok := m.participants[act.TargetID]
			if !ok || !target.IsAlive() || target.Side == actor.Side {
				return ErrInvalidTarget
			}
			sub.targetID = target.ID
		}
	case ActionDefend, ActionFlee, ActionWait:
	default:
		return fmt.Errorf("combat: unknown action kind %d", act.Kind)
	}

	m.await.ch <- sub // buffered; await is cleared below so a turn accepts one submission
	m.await = nil
	return nil
}

// run is the turn loop. It owns all resolution: it blocks on the current
// player's submission up to the turn timeout, resolves hostile turns from the
// weighted policy immediately, and checks cancellation between turns. A panic
// during resolution is caught here and ends the instance as ResultDraw so one
// corrupted fight can never take down the process.
func (m *Instance) run(ctx context.Context) {
	defer close(m.done)
	defer func() {
		if r := recover(); r != nil {
			m.logger.Error("combat loop panicked", zap.Any("panic", r))
			m.mu.Lock()
			m.endLocked(ResultDraw)
			m.mu.Unlock()
		}
	}()

	for {
		if ctx.Err() != nil {
			m.mu.Lock()
			m.endLocked(ResultDraw)
			m.mu.Unlock()
			return
		}

		m.mu.Lock()
		if m.state == StateEnded {
			m.mu.Unlock()
			return
		}
		actor := m.order[m.turnIdx]

		if !actor.IsPlayer() {
			m.state = StateResolvingTurn
			act := m.hostileActionLocked(actor)
			ended := m.resolveTurnLocked(actor, act, "", false)
			m.mu.Unlock()
			if ended {
				return
			}
			m.pause(ctx)
			continue
		}

		// Player turn: expose the actor and block cooperatively for up to
		// the turn timeout, woken by SubmitAction.
		m.state = StateAwaitingAction
		ch := make(chan submission, 1)
		m.await = &awaitState{actorID: actor.ID, ch: ch}
		m.mu.Unlock()

		timer := time.NewTimer(m.turnTimeout)
		var sub submission
		timedOut := false
		select {
		case sub = <-ch:
		case <-timer.C:
			timedOut = true
		case <-ctx.Done():
			timer.Stop()
			m.mu.Lock()
			m.await = nil
			m.endLocked(ResultDraw)
			m.mu.Unlock()
			return
		}
		timer.Stop()

		m.mu.Lock()
		m.await = nil
		m.state = StateResolvingTurn
		if timedOut {
			// The timer can fire in the same instant SubmitAction accepts a
			// submission. An accepted action is never discarded: the buffered
			// channel still holds it, so prefer it over the default.
			select {
			case sub = <-ch:
				timedOut = false
			default:
				// Hard deadline: degrade to the default attack. Not an
				// error; the record carries a distinct marker.
				sub = submission{action: Action{Kind: ActionAttack}}
			}
		}
		ended := m.resolveTurnLocked(actor, sub.action, sub.targetID, timedOut)
		m.mu.Unlock()
		if ended {
			return
		}
		m.pause(ctx)
	}
}

// pause sleeps the inter-turn pacing delay, cut short by cancellation. The
// top of the loop re-checks the context, so a cancelled pause still unwinds
// through the normal terminal transition.
func (m *Instance) pause(ctx context.Context) {
	if m.turnPause <= 0 {
		return
	}
	select {
	case <-time.After(m.turnPause):
	case <-ctx.Done():
	}
}

// hostileActionLocked picks an action for a hostile from the weighted policy:
// attack with Aggression% probability, defend otherwise. Degenerate weights
// skip the roll so fully aggressive hostiles consume no randomness choosing.
//
// Precondition: mu is held; actor is a living hostile.
func (m *Instance) hostileActionLocked(actor *Combatant) Action {
	switch {
	case actor.Aggression >= 100:
		return Action{Kind: ActionAttack}
	case actor.Aggression <= 0:
		return Action{Kind: ActionDefend}
	case m.src.Intn(100) < actor.Aggression:
		return Action{Kind: ActionAttack}
	default:
		return Action{Kind: ActionDefend}
	}
}

// defaultTargetLocked resolves the actor's attack target: the explicitly
// chosen id when given, else the actor's previously selected target if it
// still lives, else the first living opponent in initiative order.
//
// Precondition: mu is held.
func (m *Instance) defaultTargetLocked(actor *Combatant, explicitID string) *Combatant {
	if explicitID != "" {
		if t, ok := m.participants[explicitID]; ok && t.IsAlive() && t.Side != actor.Side {
			return t
		}
	}
	if prevID := m.targets[actor.ID]; prevID != "" {
		if t, ok := m.participants[prevID]; ok && t.IsAlive() && t.Side != actor.Side {
			return t
		}
	}
	for _, c := range m.order {
		if c.Side != actor.Side && c.IsAlive() {
			return c
		}
	}
	return nil
}

// livingOpponentsLocked returns the actor's living opposition.
func (m *Instance) livingOpponentsLocked(actor *Combatant) []*Combatant {
	var out []*Combatant
	for _, c := range m.order {
		if c.Side != actor.Side && c.IsAlive() {
			out = append(out, c)
		}
	}
	return out
}

// resolveTurnLocked resolves one turn, appends the record, broadcasts it,
// evaluates end conditions, prunes the order, and advances the turn pointer.
// Returns true when the instance reached a terminal state.
//
// Precondition: mu is held; actor == m.order[m.turnIdx] and is alive.
func (m *Instance) resolveTurnLocked(actor *Combatant, act Action, explicitTargetID string, timedOut bool) bool {
	var target *Combatant
	if act.Kind == ActionAttack {
		target = m.defaultTargetLocked(actor, explicitTargetID)
		if target == nil {
			// No living opposition should have ended the fight already.
			m.logger.Error("no living target for attack; ending fight",
				zap.String("actor_id", actor.ID))
			m.endLocked(ResultDraw)
			return true
		}
		m.targets[actor.ID] = target.ID
	}

	m.turn++
	rec, err := Resolve(m.turn, actor, act, target, m.livingOpponentsLocked(actor), m.src, time.Now())
	if err != nil {
		// A resolution fault is caught at the instance boundary; the fight
		// ends as a draw rather than crashing unrelated instances.
		m.logger.Error("turn resolution failed",
			zap.String("actor_id", actor.ID),
			zap.Stringer("action", act.Kind),
			zap.Error(err),
		)
		m.endLocked(ResultDraw)
		return true
	}
	rec.TimedOut = timedOut
	if timedOut {
		rec.Message += " (defaulted after timeout)"
	}
	m.log = append(m.log, rec)

	m.logger.Debug("turn resolved",
		zap.Int("turn", rec.Turn),
		zap.String("actor_id", rec.ActorID),
		zap.Stringer("action", rec.Action),
		zap.Int("damage", rec.Damage),
		zap.Bool("hit", rec.Hit),
		zap.Bool("critical", rec.Critical),
		zap.Bool("timed_out", rec.TimedOut),
	)

	if target != nil && target.CurrentHP == 0 {
		m.hooks.OnCombatantDeath(m.locationID, target.Snapshot())
	}
	if rec.Fled {
		m.removeFledLocked(actor)
	}

	m.broadcaster.BroadcastTurn(TurnEvent{
		InstanceID: m.id,
		LocationID: m.locationID,
		Turn:       rec.Turn,
		Message:    rec.Message,
		Combatants: m.snapshotsLocked(),
	})

	if result, over := m.endConditionLocked(rec); over {
		m.endLocked(result)
		return true
	}

	m.advanceLocked(actor)
	return false
}

// endConditionLocked evaluates the end conditions in priority order:
// all players down → defeat; all hostiles down → victory; the acting player
// fled and no players remain → fled.
//
// Precondition: mu is held.
func (m *Instance) endConditionLocked(rec TurnRecord) (Result, bool) {
	alivePlayers, presentPlayers := 0, 0
	aliveHostiles := 0
	for _, c := range m.roster {
		if c.IsPlayer() {
			presentPlayers++
			if c.IsAlive() {
				alivePlayers++
			}
		} else if c.IsAlive() {
			aliveHostiles++
		}
	}
	switch {
	case presentPlayers > 0 && alivePlayers == 0:
		return ResultPlayerDefeat, true
	case aliveHostiles == 0:
		return ResultPlayerVictory, true
	case rec.Fled && rec.ActorSide == SidePlayers && presentPlayers == 0:
		return ResultPlayerFled, true
	default:
		return ResultOngoing, false
	}
}

// removeFledLocked removes a successfully fled combatant from both the roster
// and the participant map; unlike the dead, fled combatants are not retained
// for settlement.
//
// Precondition: mu is held; c.Fled is true.
func (m *Instance) removeFledLocked(c *Combatant) {
	delete(m.participants, c.ID)
	for i, rc := range m.roster {
		if rc == c {
			m.roster = append(m.roster[:i], m.roster[i+1:]...)
			break
		}
	}
	if m.onLeft != nil {
		m.onLeft(c.ID)
	}
}

// advanceLocked prunes combatants that can no longer act from the turn order
// (the dead stay in the roster for reward bookkeeping) and moves the turn
// pointer to the next living combatant after actor.
//
// Precondition: mu is held; the fight is not over (at least one living
// combatant remains on each side).
func (m *Instance) advanceLocked(actor *Combatant) {
	pos := 0
	for i, c := range m.order {
		if c == actor {
			pos = i
			break
		}
	}
	var next *Combatant
	n := len(m.order)
	for i := 1; i <= n; i++ {
		if cand := m.order[(pos+i)%n]; cand.IsAlive() {
			next = cand
			break
		}
	}

	alive := m.order[:0]
	for _, c := range m.order {
		if c.IsAlive() {
			alive = append(alive, c)
		}
	}
	m.order = alive

	for i, c := range m.order {
		if c == next {
			m.turnIdx = i
			return
		}
	}
	m.turnIdx = 0
}

// endLocked performs the single-entry transition into StateEnded: it records
// the result, stops the loop, fires the end hook, and hands the settlement
// report to OnEnded. Safe to call from any state; subsequent calls no-op,
// which is what makes settlement run at most once per instance.
//
// Precondition: mu is held.
func (m *Instance) endLocked(result Result) {
	if m.state == StateEnded {
		return
	}
	m.state = StateEnded
	m.result = result
	if m.cancel != nil {
		m.cancel()
	}

	m.logger.Info("combat ended",
		zap.Stringer("result", result),
		zap.Int("turns", m.turn),
	)
	m.hooks.OnCombatEnd(m.locationID, result)
	m.broadcaster.BroadcastTurn(TurnEvent{
		InstanceID: m.id,
		LocationID: m.locationID,
		Turn:       m.turn,
		Message:    fmt.Sprintf("combat over: %s", result),
		Combatants: m.snapshotsLocked(),
	})

	if m.onEnded != nil {
		m.onEnded(m.reportLocked())
	}
}

// reportLocked builds the settlement report from the terminal roster.
//
// Precondition: mu is held; state is StateEnded.
func (m *Instance) reportLocked() Report {
	rep := Report{
		InstanceID: m.id,
		LocationID: m.locationID,
		Result:     m.result,
	}
	for _, c := range m.roster {
		if c.IsPlayer() {
			if c.IsAlive() {
				rep.SurvivingPlayerIDs = append(rep.SurvivingPlayerIDs, c.ID)
			}
		} else if c.CurrentHP == 0 {
			rep.DefeatedHostiles = append(rep.DefeatedHostiles, HostileReward{
				ID:         c.ID,
				Experience: c.Experience,
				Gold:       c.Gold,
			})
		}
	}
	return rep
}
