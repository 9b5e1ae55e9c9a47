package combat

import "time"

// State is the lifecycle state of a combat instance.
type State int

const (
	StateInitializing State = iota
	StateRollingInitiative
	StateAwaitingAction
	StateResolvingTurn
	StateEnded
)

// String returns a human-readable state label.
func (s State) String() string {
	switch s {
	case StateInitializing:
		return "initializing"
	case StateRollingInitiative:
		return "rolling_initiative"
	case StateAwaitingAction:
		return "awaiting_action"
	case StateResolvingTurn:
		return "resolving_turn"
	case StateEnded:
		return "ended"
	default:
		return "unknown"
	}
}

// Result is the terminal outcome of a combat instance.
type Result int

const (
	ResultOngoing Result = iota
	// ResultPlayerVictory: the hostile side was eliminated.
	ResultPlayerVictory
	// ResultPlayerDefeat: the player side was eliminated.
	ResultPlayerDefeat
	// ResultPlayerFled: the last player left the fight by fleeing.
	ResultPlayerFled
	// ResultDraw: abnormal termination (cancellation or a resolution fault).
	ResultDraw
)

// String returns a human-readable result label.
func (r Result) String() string {
	switch r {
	case ResultOngoing:
		return "ongoing"
	case ResultPlayerVictory:
		return "player_victory"
	case ResultPlayerDefeat:
		return "player_defeat"
	case ResultPlayerFled:
		return "player_fled"
	case ResultDraw:
		return "draw"
	default:
		return "unknown"
	}
}

// TurnRecord is one immutable entry in an instance's append-only log. History
// is reconstructed from these records, never re-derived from mutable state.
type TurnRecord struct {
	// Turn is the 1-based sequence number of the resolved turn.
	Turn int
	// ActorID and ActorSide identify who acted.
	ActorID   string
	ActorSide Side
	// Action is what they did.
	Action ActionKind
	// TargetID is empty for non-targeted actions.
	TargetID string
	// Damage is the amount applied to the target after all reductions.
	Damage int
	// Hit reports whether an attack connected.
	Hit bool
	// Critical reports a natural-20 attack.
	Critical bool
	// Fled reports a successful flee attempt.
	Fled bool
	// TimedOut marks a turn whose action was forced by the turn timeout
	// rather than submitted explicitly.
	TimedOut bool
	// Message is the free-text description of the resolved action.
	Message string
	// Timestamp is when the turn was resolved.
	Timestamp time.Time
}
