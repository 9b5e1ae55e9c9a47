package combat

// TurnEvent is the structured per-turn event emitted to the surrounding
// system for client delivery. The engine produces the fields; rendering them
// into user-facing text is the caller's concern.
type TurnEvent struct {
	InstanceID string     `json:"instance_id"`
	LocationID string     `json:"location_id"`
	Turn       int        `json:"turn"`
	Message    string     `json:"message"`
	Combatants []Snapshot `json:"combatants"`
}

// Broadcaster receives turn events for delivery to clients.
//
// Implementations must not call back into the emitting instance and should
// return quickly; the turn loop emits while holding the instance lock.
type Broadcaster interface {
	BroadcastTurn(ev TurnEvent)
}

// Hooks receives combat lifecycle notifications (used for scripted content).
// The same re-entrancy rules as Broadcaster apply.
type Hooks interface {
	OnCombatStart(locationID string, combatants []Snapshot)
	OnCombatantDeath(locationID string, victim Snapshot)
	OnCombatEnd(locationID string, result Result)
}

// NopBroadcaster discards all events.
type NopBroadcaster struct{}

// BroadcastTurn discards ev.
func (NopBroadcaster) BroadcastTurn(TurnEvent) {}

// NopHooks ignores all lifecycle notifications.
type NopHooks struct{}

// OnCombatStart is a no-op.
func (NopHooks) OnCombatStart(string, []Snapshot) {}

// OnCombatantDeath is a no-op.
func (NopHooks) OnCombatantDeath(string, Snapshot) {}

// OnCombatEnd is a no-op.
func (NopHooks) OnCombatEnd(string, Result) {}
