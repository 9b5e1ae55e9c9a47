// Package combat implements the turn-based combat engine for Duskhall:
// combatant modeling, initiative ordering, action resolution, the per-fight
// state machine, the process-wide coordinator, and reward settlement.
package combat

import (
	"fmt"

	"github.com/kmaitland/duskhall/internal/game/dice"
)

// Side distinguishes the player side of a fight from the hostile side.
type Side int

const (
	SidePlayers Side = iota
	SideHostiles
)

// String returns a human-readable side label.
func (s Side) String() string {
	switch s {
	case SidePlayers:
		return "players"
	case SideHostiles:
		return "hostiles"
	default:
		return "unknown"
	}
}

// ActionKind identifies what a combatant does on their turn.
// The zero value (ActionUnknown) is intentionally invalid.
type ActionKind int

const (
	ActionUnknown ActionKind = iota // zero value; intentionally invalid
	ActionAttack
	ActionDefend
	ActionFlee
	ActionWait
)

// String returns the human-readable name of the ActionKind.
func (a ActionKind) String() string {
	switch a {
	case ActionAttack:
		return "attack"
	case ActionDefend:
		return "defend"
	case ActionFlee:
		return "flee"
	case ActionWait:
		return "wait"
	default:
		return "unknown"
	}
}

// Action is one submitted or chosen action. TargetID is required only for
// ActionAttack; when empty the instance picks the actor's default target.
type Action struct {
	Kind     ActionKind
	TargetID string
}

// Stats holds the combat-relevant numbers read from an external record
// (player character or hostile template) when a combatant is constructed.
type Stats struct {
	MaxHP       int
	CurrentHP   int
	AttackBonus int
	ArmorClass  int
	// Damage is the dice expression rolled on a hit, e.g. "1d6+2".
	Damage string
	// Defense is the flat amount subtracted from incoming damage.
	Defense int
	// Speed feeds the initiative bonus and the flee-chance formula.
	Speed int
	// Aggression is the percent chance [0, 100] that a hostile attacks on
	// its turn rather than defending. Ignored for players.
	Aggression int
	// Experience and Gold are the rewards this combatant yields when
	// defeated. Zero for players.
	Experience int
	Gold       int
}

// Combatant is the engine-internal snapshot of one fighting entity. It is
// built once when the entity enters a fight and owned exclusively by that
// fight's instance; HP is mutated only by the action resolver.
type Combatant struct {
	ID   string
	Name string
	Side Side

	MaxHP       int
	CurrentHP   int
	AttackBonus int
	ArmorClass  int
	Damage      dice.Expression
	Defense     int
	Speed       int
	Aggression  int
	Experience  int
	Gold        int

	// Initiative is rolled once per fight, and re-rolled for newcomers
	// joining an ongoing fight.
	Initiative int
	// Defending is set by ActionDefend and consumed by the next incoming
	// hit against this combatant.
	Defending bool
	// Fled is set when a flee attempt succeeds; the instance then removes
	// the combatant from the fight.
	Fled bool
}

// NewCombatant validates stats and builds a Combatant. Malformed records are
// rejected here, before combat math can ever see them: a bad damage expression
// or out-of-range HP is a construction error, not a mid-fight default.
//
// Precondition: id and name must be non-empty.
// Postcondition: Returns a Combatant satisfying 0 <= CurrentHP <= MaxHP with a
// parsed damage expression, or a non-nil error.
func NewCombatant(id, name string, side Side, stats Stats) (*Combatant, error) {
	if id == "" {
		return nil, fmt.Errorf("combatant: id must not be empty")
	}
	if name == "" {
		return nil, fmt.Errorf("combatant %q: name must not be empty", id)
	}
	if stats.MaxHP < 1 {
		return nil, fmt.Errorf("combatant %q: max hp must be >= 1, got %d", id, stats.MaxHP)
	}
	if stats.CurrentHP < 0 || stats.CurrentHP > stats.MaxHP {
		return nil, fmt.Errorf("combatant %q: current hp %d must be in [0, %d]", id, stats.CurrentHP, stats.MaxHP)
	}
	if stats.ArmorClass < 1 {
		return nil, fmt.Errorf("combatant %q: armor class must be >= 1, got %d", id, stats.ArmorClass)
	}
	if stats.Defense < 0 {
		return nil, fmt.Errorf("combatant %q: defense must be >= 0, got %d", id, stats.Defense)
	}
	if stats.Aggression < 0 || stats.Aggression > 100 {
		return nil, fmt.Errorf("combatant %q: aggression %d must be in [0, 100]", id, stats.Aggression)
	}
	dmg, err := dice.Parse(stats.Damage)
	if err != nil {
		return nil, fmt.Errorf("combatant %q: damage expression: %w", id, err)
	}
	return &Combatant{
		ID:          id,
		Name:        name,
		Side:        side,
		MaxHP:       stats.MaxHP,
		CurrentHP:   stats.CurrentHP,
		AttackBonus: stats.AttackBonus,
		ArmorClass:  stats.ArmorClass,
		Damage:      dmg,
		Defense:     stats.Defense,
		Speed:       stats.Speed,
		Aggression:  stats.Aggression,
		Experience:  stats.Experience,
		Gold:        stats.Gold,
	}, nil
}

// IsPlayer reports whether this combatant fights on the player side.
func (c *Combatant) IsPlayer() bool { return c.Side == SidePlayers }

// IsAlive reports whether this combatant can still act.
func (c *Combatant) IsAlive() bool { return c.CurrentHP > 0 && !c.Fled }

// ApplyDamage reduces CurrentHP by amount, flooring at zero.
//
// Precondition: amount must be >= 0.
// Postcondition: CurrentHP >= 0.
func (c *Combatant) ApplyDamage(amount int) {
	c.CurrentHP -= amount
	if c.CurrentHP < 0 {
		c.CurrentHP = 0
	}
}

// Snapshot is an immutable view of one combatant for broadcast events.
type Snapshot struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Side      string `json:"side"`
	CurrentHP int    `json:"current_hp"`
	MaxHP     int    `json:"max_hp"`
	Defending bool   `json:"defending"`
}

// Snapshot captures the combatant's externally visible state.
func (c *Combatant) Snapshot() Snapshot {
	return Snapshot{
		ID:        c.ID,
		Name:      c.Name,
		Side:      c.Side.String(),
		CurrentHP: c.CurrentHP,
		MaxHP:     c.MaxHP,
		Defending: c.Defending,
	}
}
