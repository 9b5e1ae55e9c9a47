package hostile

import (
	"fmt"

	"github.com/kmaitland/duskhall/internal/game/combat"
)

// Instance is a live hostile occupying a world location. HP carries across
// fights at the same location until the instance dies or is removed.
type Instance struct {
	// ID uniquely identifies this runtime instance.
	ID string
	// TemplateID is the source template's ID.
	TemplateID string
	// Name is copied from the template for display.
	Name string
	// Description is copied from the template.
	Description string
	// LocationID is the location this instance currently occupies.
	LocationID string
	// CurrentHP is the instance's current hit points.
	CurrentHP int
	// Dead marks an instance defeated in combat; dead instances no longer
	// enter fights.
	Dead bool

	tmpl *Template
}

// NewInstance creates a live hostile from a template, placed in locationID.
//
// Precondition: id must be non-empty; tmpl must be validated; locationID must
// be non-empty.
// Postcondition: CurrentHP equals tmpl.MaxHP.
func NewInstance(id string, tmpl *Template, locationID string) *Instance {
	return &Instance{
		ID:          id,
		TemplateID:  tmpl.ID,
		Name:        tmpl.Name,
		Description: tmpl.Description,
		LocationID:  locationID,
		CurrentHP:   tmpl.MaxHP,
		tmpl:        tmpl,
	}
}

// Combatant builds the engine-side combatant for this instance, carrying its
// current HP into the fight.
//
// Postcondition: Returns a hostile-side *combat.Combatant, or an error when
// the instance is dead or its stats no longer validate.
func (i *Instance) Combatant() (*combat.Combatant, error) {
	if i.IsDead() {
		return nil, fmt.Errorf("hostile %q is dead", i.ID)
	}
	return combat.NewCombatant(i.ID, i.Name, combat.SideHostiles, combat.Stats{
		MaxHP:       i.tmpl.MaxHP,
		CurrentHP:   i.CurrentHP,
		AttackBonus: i.tmpl.AttackBonus,
		ArmorClass:  i.tmpl.ArmorClass,
		Damage:      i.tmpl.Damage,
		Defense:     i.tmpl.Defense,
		Speed:       i.tmpl.Speed,
		Aggression:  i.tmpl.Aggression,
		Experience:  i.tmpl.Experience,
		Gold:        i.tmpl.Gold,
	})
}

// MaxHP returns the template's maximum hit points.
func (i *Instance) MaxHP() int { return i.tmpl.MaxHP }

// IsDead reports whether the instance has been defeated.
func (i *Instance) IsDead() bool { return i.Dead || i.CurrentHP <= 0 }

// HealthDescription returns a visible health state string suitable for
// examine output.
//
// Postcondition: Returns a non-empty string.
func (i *Instance) HealthDescription() string {
	if i.IsDead() {
		return "dead"
	}
	pct := float64(i.CurrentHP) / float64(i.tmpl.MaxHP)
	switch {
	case pct >= 1.0:
		return "unharmed"
	case pct >= 0.85:
		return "barely scratched"
	case pct >= 0.60:
		return "lightly wounded"
	case pct >= 0.40:
		return "moderately wounded"
	case pct >= 0.20:
		return "heavily wounded"
	default:
		return "critically wounded"
	}
}
