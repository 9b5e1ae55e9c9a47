package combat_test

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kmaitland/duskhall/internal/game/combat"
	"github.com/kmaitland/duskhall/internal/game/dice"
)

// recordingBroadcaster captures every TurnEvent an instance emits.
type recordingBroadcaster struct {
	mu     sync.Mutex
	events []combat.TurnEvent
}

func (r *recordingBroadcaster) BroadcastTurn(ev combat.TurnEvent) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
}

func (r *recordingBroadcaster) all() []combat.TurnEvent {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]combat.TurnEvent, len(r.events))
	copy(out, r.events)
	return out
}

// recordingHooks captures lifecycle hook invocations.
type recordingHooks struct {
	mu     sync.Mutex
	starts int
	deaths []string
	ends   []combat.Result
}

func (r *recordingHooks) OnCombatStart(string, []combat.Snapshot) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.starts++
}

func (r *recordingHooks) OnCombatantDeath(_ string, snap combat.Snapshot) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.deaths = append(r.deaths, snap.ID)
}

func (r *recordingHooks) OnCombatEnd(_ string, result combat.Result) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.ends = append(r.ends, result)
}

// waitDone blocks until the instance's loop exits or the test deadline hits.
func waitDone(t *testing.T, inst *combat.Instance) {
	t.Helper()
	select {
	case <-inst.Done():
	case <-time.After(5 * time.Second):
		t.Fatal("instance did not terminate")
	}
}

// waitForTurn blocks until the instance is awaiting the given actor.
func waitForTurn(t *testing.T, inst *combat.Instance, actorID string) {
	t.Helper()
	require.Eventually(t, func() bool {
		return inst.State() == combat.StateAwaitingAction && inst.CurrentActorID() == actorID
	}, 2*time.Second, time.Millisecond)
}

// stripTimes zeroes record timestamps so logs can be compared for equality.
func stripTimes(log []combat.TurnRecord) []combat.TurnRecord {
	out := make([]combat.TurnRecord, len(log))
	copy(out, log)
	for i := range out {
		out[i].Timestamp = time.Time{}
	}
	return out
}

// duelPlayer is the standard player for the end-to-end scenarios.
func duelPlayer(t *testing.T) *combat.Combatant {
	t.Helper()
	return newPlayer(t, "p1", combat.Stats{
		MaxHP: 30, CurrentHP: 30, AttackBonus: 5, ArmorClass: 14,
		Damage: "1d8+2", Speed: 5,
	})
}

// duelHostile is the standard hostile for the end-to-end scenarios.
func duelHostile(t *testing.T) *combat.Combatant {
	t.Helper()
	return newHostile(t, "h1", combat.Stats{
		MaxHP: 10, CurrentHP: 10, AttackBonus: 2, ArmorClass: 12,
		Damage: "1d4", Aggression: 100, Experience: 25, Gold: 10,
	})
}

// victoryScript drives duelPlayer vs duelHostile to a three-turn player
// victory: initiative (player 21, hostile 3), player hits for 6, hostile
// rolls a natural 1, player hits for 6 and drops the hostile.
func victoryScript() *dice.ScriptedSource {
	return dice.NewScriptedSource(15, 2, 13, 3, 0, 13, 3)
}

// runVictoryDuel plays the scripted duel to completion, with the player's
// turns forced by a short timeout, and returns the instance and its report.
func runVictoryDuel(t *testing.T, opts combat.InstanceOptions) (*combat.Instance, combat.Report) {
	t.Helper()

	var (
		repMu  sync.Mutex
		report combat.Report
	)
	opts.ID = "fight-1"
	opts.LocationID = "loc-1"
	opts.Src = victoryScript()
	opts.TurnTimeout = 30 * time.Millisecond
	opts.OnEnded = func(rep combat.Report) {
		repMu.Lock()
		defer repMu.Unlock()
		report = rep
	}

	inst := combat.NewInstance(opts)
	require.NoError(t, inst.AddParticipant(duelPlayer(t)))
	require.NoError(t, inst.AddParticipant(duelHostile(t)))
	require.NoError(t, inst.Start())
	waitDone(t, inst)

	repMu.Lock()
	defer repMu.Unlock()
	return inst, report
}

// TestInstance_VictoryDuel plays a full fight to a player victory and checks
// the log, the terminal state, and the settlement report.
func TestInstance_VictoryDuel(t *testing.T) {
	hooks := &recordingHooks{}
	inst, report := runVictoryDuel(t, combat.InstanceOptions{Hooks: hooks})

	assert.Equal(t, combat.StateEnded, inst.State())
	assert.Equal(t, combat.ResultPlayerVictory, inst.Result())
	assert.Empty(t, inst.CurrentActorID())

	log := inst.Log()
	require.Len(t, log, 3)

	assert.Equal(t, "p1", log[0].ActorID)
	assert.Equal(t, combat.ActionAttack, log[0].Action)
	assert.True(t, log[0].TimedOut, "no submission arrived; the default was forced")
	assert.True(t, log[0].Hit)
	assert.Equal(t, 6, log[0].Damage)
	assert.Equal(t, "h1", log[0].TargetID)
	assert.Contains(t, log[0].Message, "(defaulted after timeout)")

	assert.Equal(t, "h1", log[1].ActorID)
	assert.False(t, log[1].Hit)
	assert.Equal(t, 0, log[1].Damage)

	assert.Equal(t, "p1", log[2].ActorID)
	assert.Equal(t, 6, log[2].Damage)
	assert.Contains(t, log[2].Message, "falls")

	assert.Equal(t, []string{"p1"}, report.SurvivingPlayerIDs)
	require.Len(t, report.DefeatedHostiles, 1)
	assert.Equal(t, combat.HostileReward{ID: "h1", Experience: 25, Gold: 10}, report.DefeatedHostiles[0])
	assert.Equal(t, combat.ResultPlayerVictory, report.Result)

	assert.Equal(t, 1, hooks.starts)
	assert.Equal(t, []string{"h1"}, hooks.deaths)
	assert.Equal(t, []combat.Result{combat.ResultPlayerVictory}, hooks.ends)
}

// TestInstance_BroadcastsEveryTransition verifies the event stream: one start
// event, one per resolved turn, one terminal event, each carrying snapshots of
// everyone present.
func TestInstance_BroadcastsEveryTransition(t *testing.T) {
	b := &recordingBroadcaster{}
	_, _ = runVictoryDuel(t, combat.InstanceOptions{Broadcaster: b})

	events := b.all()
	require.Len(t, events, 5)
	assert.Equal(t, 0, events[0].Turn)
	assert.Contains(t, events[0].Message, "combat begins")
	assert.Contains(t, events[4].Message, "combat over: player_victory")
	for _, ev := range events {
		assert.Equal(t, "fight-1", ev.InstanceID)
		assert.Equal(t, "loc-1", ev.LocationID)
		assert.Len(t, ev.Combatants, 2)
	}
}

// TestInstance_DeterministicReplay verifies the same script over the same
// combatants reproduces an identical turn log.
func TestInstance_DeterministicReplay(t *testing.T) {
	first, _ := runVictoryDuel(t, combat.InstanceOptions{})
	second, _ := runVictoryDuel(t, combat.InstanceOptions{})
	assert.Equal(t, stripTimes(first.Log()), stripTimes(second.Log()))
}

// TestInstance_FleeEndsTheFight plays the escape scenario: the lone player
// flees on turn one and the fight ends as player_fled with nothing settled.
func TestInstance_FleeEndsTheFight(t *testing.T) {
	var (
		repMu  sync.Mutex
		report combat.Report
		left   []string
	)
	inst := combat.NewInstance(combat.InstanceOptions{
		ID:         "fight-flee",
		LocationID: "loc-1",
		// Initiative: player 40, hostile 1. Flee roll 89 under the clamped
		// 0.90 threshold.
		Src:         dice.NewScriptedSource(19, 0, 89),
		TurnTimeout: 5 * time.Second,
		OnEnded: func(rep combat.Report) {
			repMu.Lock()
			defer repMu.Unlock()
			report = rep
		},
		OnParticipantLeft: func(id string) {
			repMu.Lock()
			defer repMu.Unlock()
			left = append(left, id)
		},
	})

	player := newPlayer(t, "p1", combat.Stats{
		MaxHP: 30, CurrentHP: 30, ArmorClass: 14, Damage: "1d8+2", Speed: 20,
	})
	hostile := newHostile(t, "h1", combat.Stats{
		MaxHP: 10, CurrentHP: 10, ArmorClass: 12, Damage: "1d4",
	})
	require.NoError(t, inst.AddParticipant(player))
	require.NoError(t, inst.AddParticipant(hostile))
	require.NoError(t, inst.Start())

	waitForTurn(t, inst, "p1")
	require.NoError(t, inst.SubmitAction("p1", combat.Action{Kind: combat.ActionFlee}))
	waitDone(t, inst)

	assert.Equal(t, combat.ResultPlayerFled, inst.Result())
	log := inst.Log()
	require.Len(t, log, 1)
	assert.True(t, log[0].Fled)
	assert.False(t, log[0].TimedOut)
	assert.Equal(t, 0, log[0].Damage)

	assert.False(t, inst.HasParticipant("p1"), "fled combatants leave the fight")
	assert.True(t, inst.HasParticipant("h1"))

	repMu.Lock()
	defer repMu.Unlock()
	assert.Equal(t, []string{"p1"}, left)
	assert.Empty(t, report.SurvivingPlayerIDs)
	assert.Empty(t, report.DefeatedHostiles)
}

// TestInstance_DefeatDuel plays the hostile side to victory: a single hit
// drops the low-HP player before they ever act.
func TestInstance_DefeatDuel(t *testing.T) {
	hooks := &recordingHooks{}
	var (
		repMu  sync.Mutex
		report combat.Report
	)
	inst := combat.NewInstance(combat.InstanceOptions{
		ID:         "fight-defeat",
		LocationID: "loc-1",
		// Initiative: player 1, hostile 30. Hostile hits for 7 vs 5 HP.
		Src:         dice.NewScriptedSource(0, 19, 14, 2),
		TurnTimeout: 5 * time.Second,
		Hooks:       hooks,
		OnEnded: func(rep combat.Report) {
			repMu.Lock()
			defer repMu.Unlock()
			report = rep
		},
	})

	player := newPlayer(t, "p1", combat.Stats{
		MaxHP: 5, CurrentHP: 5, ArmorClass: 10, Damage: "1d4",
	})
	hostile := newHostile(t, "h1", combat.Stats{
		MaxHP: 20, CurrentHP: 20, AttackBonus: 5, ArmorClass: 12,
		Damage: "1d6+4", Speed: 10, Aggression: 100,
	})
	require.NoError(t, inst.AddParticipant(player))
	require.NoError(t, inst.AddParticipant(hostile))
	require.NoError(t, inst.Start())
	waitDone(t, inst)

	assert.Equal(t, combat.ResultPlayerDefeat, inst.Result())
	log := inst.Log()
	require.Len(t, log, 1)
	assert.Equal(t, "h1", log[0].ActorID)
	assert.Equal(t, 7, log[0].Damage)

	assert.Equal(t, []string{"p1"}, hooks.deaths)

	repMu.Lock()
	defer repMu.Unlock()
	assert.Empty(t, report.SurvivingPlayerIDs)
	assert.Empty(t, report.DefeatedHostiles, "the hostile survived; nothing to settle")
}

// TestInstance_LateSubmissionRejected verifies the hard-deadline rule: once
// the timeout has forced the default action, the actor's submission for that
// turn is rejected and resolves nothing twice.
func TestInstance_LateSubmissionRejected(t *testing.T) {
	inst := combat.NewInstance(combat.InstanceOptions{
		ID:         "fight-late",
		LocationID: "loc-1",
		// Initiative: player 25, hostile 1. Player's forced attack hits.
		Src:         dice.NewScriptedSource(19, 0, 9, 3),
		TurnTimeout: 40 * time.Millisecond,
		TurnPause:   400 * time.Millisecond,
	})

	require.NoError(t, inst.AddParticipant(duelPlayer(t)))
	require.NoError(t, inst.AddParticipant(newHostile(t, "h1", combat.Stats{
		MaxHP: 50, CurrentHP: 50, ArmorClass: 12, Damage: "1d4",
	})))
	require.NoError(t, inst.Start())

	// Wait for the timeout to resolve turn one, then submit during the
	// inter-turn pause.
	require.Eventually(t, func() bool {
		return len(inst.Log()) == 1
	}, 2*time.Second, time.Millisecond)

	err := inst.SubmitAction("p1", combat.Action{Kind: combat.ActionAttack})
	assert.True(t, errors.Is(err, combat.ErrNotYourTurn))

	log := inst.Log()
	require.Len(t, log, 1)
	assert.True(t, log[0].TimedOut)

	inst.Stop()
	waitDone(t, inst)
	assert.Equal(t, combat.ResultDraw, inst.Result())
}

// TestInstance_AcceptedSubmissionIsNeverDiscarded hammers SubmitAction against
// a very short turn timeout: whenever a submission is accepted, even in the
// same instant the deadline fires, the resolved turn must carry that action
// rather than the forced default. Every accepted defend must therefore appear
// in the log as a non-timed-out defend record.
func TestInstance_AcceptedSubmissionIsNeverDiscarded(t *testing.T) {
	inst := combat.NewInstance(combat.InstanceOptions{
		ID:          "fight-deadline",
		LocationID:  "loc-1",
		Src:         dice.NewCryptoSource(),
		TurnTimeout: time.Millisecond,
	})

	// Both sides are too sturdy for the fight to end on its own: the player
	// mostly defends and the hostile needs a natural 20 to land a hit.
	require.NoError(t, inst.AddParticipant(newPlayer(t, "p1", combat.Stats{
		MaxHP: 200, CurrentHP: 200, ArmorClass: 30, Damage: "1d4", Speed: 5,
	})))
	require.NoError(t, inst.AddParticipant(newHostile(t, "h1", combat.Stats{
		MaxHP: 400, CurrentHP: 400, ArmorClass: 10, Damage: "1d4", Aggression: 100,
	})))
	require.NoError(t, inst.Start())

	accepted := 0
	for accepted < 25 {
		select {
		case <-inst.Done():
			t.Fatal("fight ended before enough submissions were accepted")
		default:
		}
		err := inst.SubmitAction("p1", combat.Action{Kind: combat.ActionDefend})
		if err == nil {
			accepted++
		} else {
			require.True(t, errors.Is(err, combat.ErrNotYourTurn), "unexpected error: %v", err)
		}
	}

	// Let the last accepted submission resolve before tearing the fight
	// down; cancellation is allowed to discard an unresolved turn.
	countDefends := func() int {
		defends := 0
		for _, rec := range inst.Log() {
			if rec.ActorID == "p1" && rec.Action == combat.ActionDefend {
				defends++
			}
		}
		return defends
	}
	require.Eventually(t, func() bool {
		return countDefends() >= accepted
	}, 2*time.Second, time.Millisecond, "an accepted defend was resolved as something else")

	inst.Stop()
	waitDone(t, inst)

	for _, rec := range inst.Log() {
		if rec.ActorID == "p1" && rec.Action == combat.ActionDefend {
			assert.False(t, rec.TimedOut, "turn %d: submitted defend marked as forced", rec.Turn)
		}
	}
	assert.Equal(t, accepted, countDefends(), "every accepted defend must be resolved as a defend")
}

// TestInstance_SubmitValidation covers the rejection matrix for SubmitAction:
// wrong actor, unknown actor, friendly or unknown targets, unknown kinds.
func TestInstance_SubmitValidation(t *testing.T) {
	inst := combat.NewInstance(combat.InstanceOptions{
		ID:         "fight-submit",
		LocationID: "loc-1",
		// Initiative: p1 20, p2 11, hostile 1.
		Src:         dice.NewScriptedSource(19, 10, 0),
		TurnTimeout: 5 * time.Second,
	})

	p1 := newPlayer(t, "p1", combat.Stats{MaxHP: 30, CurrentHP: 30, ArmorClass: 14, Damage: "1d8"})
	p2 := newPlayer(t, "p2", combat.Stats{MaxHP: 30, CurrentHP: 30, ArmorClass: 14, Damage: "1d8"})
	h1 := newHostile(t, "h1", combat.Stats{MaxHP: 20, CurrentHP: 20, ArmorClass: 12, Damage: "1d4"})
	require.NoError(t, inst.AddParticipant(p1))
	require.NoError(t, inst.AddParticipant(p2))
	require.NoError(t, inst.AddParticipant(h1))
	require.NoError(t, inst.Start())

	waitForTurn(t, inst, "p1")

	attack := combat.Action{Kind: combat.ActionAttack}
	assert.ErrorIs(t, inst.SubmitAction("h1", attack), combat.ErrNotYourTurn)
	assert.ErrorIs(t, inst.SubmitAction("p2", attack), combat.ErrNotYourTurn)
	assert.ErrorIs(t, inst.SubmitAction("ghost", attack), combat.ErrNotYourTurn)

	assert.ErrorIs(t,
		inst.SubmitAction("p1", combat.Action{Kind: combat.ActionAttack, TargetID: "p2"}),
		combat.ErrInvalidTarget, "allies are not attackable")
	assert.ErrorIs(t,
		inst.SubmitAction("p1", combat.Action{Kind: combat.ActionAttack, TargetID: "nobody"}),
		combat.ErrInvalidTarget)
	assert.Error(t, inst.SubmitAction("p1", combat.Action{Kind: combat.ActionUnknown}))

	// None of the rejected calls consumed the turn.
	assert.Empty(t, inst.Log())
	require.NoError(t, inst.SubmitAction("p1", combat.Action{Kind: combat.ActionWait}))

	inst.Stop()
	waitDone(t, inst)
	assert.ErrorIs(t,
		inst.SubmitAction("p1", combat.Action{Kind: combat.ActionWait}),
		combat.ErrAlreadyEnded)
	assert.ErrorIs(t, inst.AddParticipant(newHostile(t, "h9", baseStats())), combat.ErrAlreadyEnded)
}

// TestInstance_MidFightJoin verifies a hostile joining an ongoing fight slots
// into the turn order by initiative without disturbing the acting combatant.
func TestInstance_MidFightJoin(t *testing.T) {
	inst := combat.NewInstance(combat.InstanceOptions{
		ID:         "fight-join",
		LocationID: "loc-1",
		// Initiative: p1 20, h1 1; the joiner rolls 20 + speed 3 = 23.
		Src:         dice.NewScriptedSource(19, 0, 19),
		TurnTimeout: 5 * time.Second,
	})

	p1 := newPlayer(t, "p1", combat.Stats{MaxHP: 30, CurrentHP: 30, ArmorClass: 14, Damage: "1d8"})
	h1 := newHostile(t, "h1", combat.Stats{MaxHP: 20, CurrentHP: 20, ArmorClass: 12, Damage: "1d4"})
	require.NoError(t, inst.AddParticipant(p1))
	require.NoError(t, inst.AddParticipant(h1))
	require.NoError(t, inst.Start())
	waitForTurn(t, inst, "p1")

	joiner := newHostile(t, "h2", combat.Stats{
		MaxHP: 20, CurrentHP: 20, ArmorClass: 12, Damage: "1d4", Speed: 3,
	})
	require.NoError(t, inst.AddParticipant(joiner))

	assert.Equal(t, []string{"h2", "p1", "h1"}, inst.TurnOrderIDs(),
		"the joiner outrolled everyone")
	assert.Equal(t, "p1", inst.CurrentActorID(),
		"the acting combatant keeps its turn across a join")
	assert.True(t, inst.HasParticipant("h2"))

	dupe := newHostile(t, "h2", baseStats())
	assert.ErrorIs(t, inst.AddParticipant(dupe), combat.ErrAlreadyInCombat)

	inst.Stop()
	waitDone(t, inst)
}

// TestInstance_StartValidation verifies a fight cannot start one-sided or
// twice.
func TestInstance_StartValidation(t *testing.T) {
	newInst := func() *combat.Instance {
		return combat.NewInstance(combat.InstanceOptions{
			ID:          "fight-start",
			LocationID:  "loc-1",
			Src:         dice.NewScriptedSource(10),
			TurnTimeout: 5 * time.Second,
		})
	}

	t.Run("no participants", func(t *testing.T) {
		require.Error(t, newInst().Start())
	})

	t.Run("players only", func(t *testing.T) {
		inst := newInst()
		require.NoError(t, inst.AddParticipant(newPlayer(t, "p1", baseStats())))
		require.Error(t, inst.Start())
	})

	t.Run("hostiles only", func(t *testing.T) {
		inst := newInst()
		require.NoError(t, inst.AddParticipant(newHostile(t, "h1", baseStats())))
		require.Error(t, inst.Start())
	})

	t.Run("double start", func(t *testing.T) {
		inst := newInst()
		require.NoError(t, inst.AddParticipant(newPlayer(t, "p1", baseStats())))
		require.NoError(t, inst.AddParticipant(newHostile(t, "h1", baseStats())))
		require.NoError(t, inst.Start())
		require.Error(t, inst.Start())
		inst.Stop()
		waitDone(t, inst)
	})
}

// TestInstance_StopIsIdempotentDraw verifies cooperative cancellation ends an
// active fight as a draw, from any goroutine, any number of times.
func TestInstance_StopIsIdempotentDraw(t *testing.T) {
	inst := combat.NewInstance(combat.InstanceOptions{
		ID:          "fight-stop",
		LocationID:  "loc-1",
		Src:         dice.NewScriptedSource(19, 0),
		TurnTimeout: 5 * time.Second,
	})
	require.NoError(t, inst.AddParticipant(duelPlayer(t)))
	require.NoError(t, inst.AddParticipant(duelHostile(t)))
	require.NoError(t, inst.Start())

	inst.Stop()
	inst.Stop()
	waitDone(t, inst)

	assert.Equal(t, combat.StateEnded, inst.State())
	assert.Equal(t, combat.ResultDraw, inst.Result())
	inst.Stop() // still safe after termination
}

// TestInstance_DeadCombatantsLeaveTheOrder verifies the turn order prunes the
// dead while the roster retains them.
func TestInstance_DeadCombatantsLeaveTheOrder(t *testing.T) {
	inst := combat.NewInstance(combat.InstanceOptions{
		ID:         "fight-prune",
		LocationID: "loc-1",
		// Initiative: h1 30, p1 10, p2 5. h1's default target is the first
		// living opponent in the order, p1, who drops to a 7-damage hit.
		Src:         dice.NewScriptedSource(9, 4, 19, 14, 2),
		TurnTimeout: 5 * time.Second,
	})

	p1 := newPlayer(t, "p1", combat.Stats{MaxHP: 5, CurrentHP: 5, ArmorClass: 10, Damage: "1d4"})
	p2 := newPlayer(t, "p2", combat.Stats{MaxHP: 30, CurrentHP: 30, ArmorClass: 14, Damage: "1d8"})
	h1 := newHostile(t, "h1", combat.Stats{
		MaxHP: 20, CurrentHP: 20, AttackBonus: 5, ArmorClass: 12,
		Damage: "1d6+4", Speed: 10, Aggression: 100,
	})
	require.NoError(t, inst.AddParticipant(p1))
	require.NoError(t, inst.AddParticipant(p2))
	require.NoError(t, inst.AddParticipant(h1))
	require.NoError(t, inst.Start())

	// h1 acts first and kills p1; p2 is then awaited.
	waitForTurn(t, inst, "p2")

	assert.Equal(t, []string{"h1", "p2"}, inst.TurnOrderIDs(), "the dead leave the order")
	assert.True(t, inst.HasParticipant("p1"), "the dead stay in the fight roster")

	inst.Stop()
	waitDone(t, inst)
}
