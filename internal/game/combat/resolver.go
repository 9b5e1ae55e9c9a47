package combat

import (
	"fmt"
	"time"

	"github.com/kmaitland/duskhall/internal/game/dice"
)

// Flee-chance clamp bounds. Even extreme speed differentials leave escape
// possible but never certain.
const (
	fleeChanceFloor = 0.10
	fleeChanceCeil  = 0.90
)

// FleeChance returns the probability that a combatant with actorSpeed escapes
// from the fastest opponent with opponentSpeed.
//
// Postcondition: Returns 0.5 + 0.02*(actorSpeed-opponentSpeed) clamped to
// [0.10, 0.90].
func FleeChance(actorSpeed, opponentSpeed int) float64 {
	chance := 0.5 + 0.02*float64(actorSpeed-opponentSpeed)
	if chance < fleeChanceFloor {
		return fleeChanceFloor
	}
	if chance > fleeChanceCeil {
		return fleeChanceCeil
	}
	return chance
}

// Resolve computes the mechanical outcome of one action and applies its
// mutations: HP loss on the target, the actor's defending flag, the fled flag
// on a successful escape. It is pure computation over the combatants it is
// given: no suspension, no shared state.
//
// opponents is the actor's living opposition, consulted only by ActionFlee
// (the escape is contested by the fastest opponent).
//
// Precondition: actor must be non-nil and alive; src must be non-nil; for
// ActionAttack, target must be the resolved target combatant.
// Postcondition: Returns a fully populated TurnRecord, or ErrInvalidTarget
// with no state mutated.
func Resolve(turn int, actor *Combatant, act Action, target *Combatant, opponents []*Combatant, src dice.Source, now time.Time) (TurnRecord, error) {
	rec := TurnRecord{
		Turn:      turn,
		ActorID:   actor.ID,
		ActorSide: actor.Side,
		Action:    act.Kind,
		Timestamp: now,
	}

	switch act.Kind {
	case ActionAttack:
		if target == nil || !target.IsAlive() {
			return TurnRecord{}, ErrInvalidTarget
		}
		// Taking any action drops the actor's own guard.
		actor.Defending = false
		rec.TargetID = target.ID

		natural := dice.D20(src)
		total := natural + actor.AttackBonus
		rec.Critical = natural == 20
		// A natural 20 always hits; a natural 1 always misses.
		rec.Hit = rec.Critical || (natural != 1 && total >= target.ArmorClass)
		if !rec.Hit {
			rec.Message = fmt.Sprintf("%s misses %s (rolled %d%+d=%d vs AC %d)",
				actor.Name, target.Name, natural, actor.AttackBonus, total, target.ArmorClass)
			return rec, nil
		}

		damage := dice.Roll(actor.Damage, src).Total()
		if rec.Critical {
			// Crit damage is the expression rolled twice and summed, not a
			// flat doubling of one roll.
			damage += dice.Roll(actor.Damage, src).Total()
		}
		wasDefending := target.Defending
		if wasDefending {
			damage /= 2
		}
		damage -= target.Defense
		if damage < 1 {
			damage = 1
		}
		target.ApplyDamage(damage)
		if wasDefending {
			// The defended hit has been consumed.
			target.Defending = false
		}
		rec.Damage = damage

		verb := "hits"
		if rec.Critical {
			verb = "critically hits"
		}
		rec.Message = fmt.Sprintf("%s %s %s for %d damage (rolled %d%+d=%d vs AC %d)",
			actor.Name, verb, target.Name, damage, natural, actor.AttackBonus, total, target.ArmorClass)
		if target.CurrentHP == 0 {
			rec.Message += fmt.Sprintf("; %s falls", target.Name)
		}
		return rec, nil

	case ActionDefend:
		actor.Defending = true
		rec.Message = fmt.Sprintf("%s takes a defensive stance", actor.Name)
		return rec, nil

	case ActionFlee:
		actor.Defending = false
		chance := FleeChance(actor.Speed, fastestSpeed(opponents))
		threshold := int(chance*100 + 0.5)
		if src.Intn(100) < threshold {
			actor.Fled = true
			rec.Fled = true
			rec.Message = fmt.Sprintf("%s breaks away and escapes", actor.Name)
		} else {
			rec.Message = fmt.Sprintf("%s tries to flee but cannot break away", actor.Name)
		}
		return rec, nil

	case ActionWait:
		actor.Defending = false
		rec.Message = fmt.Sprintf("%s holds back", actor.Name)
		return rec, nil

	default:
		return TurnRecord{}, fmt.Errorf("combat: unknown action kind %d", act.Kind)
	}
}

// fastestSpeed returns the highest speed among living opponents, or 0 when
// none remain (a flee with nobody left to contest it still rolls, clamped).
func fastestSpeed(opponents []*Combatant) int {
	best := 0
	first := true
	for _, o := range opponents {
		if !o.IsAlive() {
			continue
		}
		if first || o.Speed > best {
			best = o.Speed
			first = false
		}
	}
	return best
}
