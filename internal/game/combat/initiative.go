package combat

import (
	"sort"

	"github.com/kmaitland/duskhall/internal/game/dice"
)

// RollOrder rolls initiative (d20 + speed bonus) for every combatant and
// returns them ordered by initiative descending. The sort is stable: equal
// initiatives keep their insertion order, which keeps turn order deterministic
// and testable.
//
// Precondition: src must be non-nil.
// Postcondition: The returned slice is a permutation of combatants with each
// Initiative field set.
func RollOrder(combatants []*Combatant, src dice.Source) []*Combatant {
	for _, c := range combatants {
		c.Initiative = dice.Initiative(src, c.Speed)
	}
	order := make([]*Combatant, len(combatants))
	copy(order, combatants)
	sortByInitiative(order)
	return order
}

// InsertLate rolls initiative for a combatant joining an ongoing fight,
// appends it to the order, and re-sorts the entire order with the same stable
// rule. activeIdx identifies the combatant currently acting; the returned
// index points at that same combatant in the new order, so a resort never
// skips or repeats the active turn.
//
// Precondition: 0 <= activeIdx < len(order); newcomer must not already be in order.
// Postcondition: Returns the new order containing newcomer and the relocated
// index of the previously active combatant.
func InsertLate(order []*Combatant, newcomer *Combatant, activeIdx int, src dice.Source) ([]*Combatant, int) {
	active := order[activeIdx]
	newcomer.Initiative = dice.Initiative(src, newcomer.Speed)

	next := make([]*Combatant, len(order), len(order)+1)
	copy(next, order)
	next = append(next, newcomer)
	sortByInitiative(next)

	for i, c := range next {
		if c == active {
			return next, i
		}
	}
	// Unreachable: active was in order and the sort only permutes.
	return next, 0
}

// sortByInitiative sorts in place, highest initiative first, ties stable.
func sortByInitiative(order []*Combatant) {
	sort.SliceStable(order, func(i, j int) bool {
		return order[i].Initiative > order[j].Initiative
	})
}
