package combat

import "errors"

// Caller-facing sentinels. Misuse of the combat API is rejected with one of
// these without mutating instance state, so client-facing code can render a
// user message with errors.Is instead of special-casing failures.
var (
	// ErrInvalidTarget means the target was not found, is already dead, or
	// is not a legal target of the action.
	ErrInvalidTarget = errors.New("combat: invalid target")
	// ErrNotYourTurn means the caller submitted an action outside their turn,
	// including after a timeout already forced their default action.
	ErrNotYourTurn = errors.New("combat: not your turn")
	// ErrNotInCombat means the participant has no active instance.
	ErrNotInCombat = errors.New("combat: not in combat")
	// ErrAlreadyEnded means the operation targeted a terminal instance.
	ErrAlreadyEnded = errors.New("combat: instance already ended")
	// ErrAlreadyInCombat means a participant is already bound to another
	// active instance; a combatant belongs to at most one fight.
	ErrAlreadyInCombat = errors.New("combat: participant already in combat")
)
