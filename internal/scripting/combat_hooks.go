package scripting

import (
	lua "github.com/yuin/gopher-lua"

	"github.com/kmaitland/duskhall/internal/game/combat"
)

// Lua hook names fired at combat lifecycle points.
const (
	hookCombatStart    = "on_combat_start"
	hookCombatantDeath = "on_combatant_death"
	hookCombatEnd      = "on_combat_end"
)

// CombatHooks adapts the Manager to the combat engine's lifecycle hook
// interface: each callback dispatches to the matching Lua global in the VM of
// the area the fight is in. Hook errors never reach the combat loop.
type CombatHooks struct {
	mgr *Manager
}

// NewCombatHooks creates a CombatHooks dispatcher over mgr.
//
// Precondition: mgr must be non-nil.
func NewCombatHooks(mgr *Manager) *CombatHooks {
	return &CombatHooks{mgr: mgr}
}

// OnCombatStart calls on_combat_start(location_id, combatants).
func (h *CombatHooks) OnCombatStart(locationID string, combatants []combat.Snapshot) {
	h.mgr.dispatch(locationID, hookCombatStart, func(L *lua.LState) []lua.LValue {
		list := L.NewTable()
		for _, snap := range combatants {
			list.Append(snapshotTable(L, snap))
		}
		return []lua.LValue{lua.LString(locationID), list}
	})
}

// OnCombatantDeath calls on_combatant_death(location_id, combatant).
func (h *CombatHooks) OnCombatantDeath(locationID string, snap combat.Snapshot) {
	h.mgr.dispatch(locationID, hookCombatantDeath, func(L *lua.LState) []lua.LValue {
		return []lua.LValue{lua.LString(locationID), snapshotTable(L, snap)}
	})
}

// OnCombatEnd calls on_combat_end(location_id, result).
func (h *CombatHooks) OnCombatEnd(locationID string, result combat.Result) {
	h.mgr.dispatch(locationID, hookCombatEnd, func(L *lua.LState) []lua.LValue {
		return []lua.LValue{lua.LString(locationID), lua.LString(result.String())}
	})
}

// snapshotTable converts a combatant snapshot into a Lua table.
func snapshotTable(L *lua.LState, snap combat.Snapshot) *lua.LTable {
	tbl := L.NewTable()
	L.SetField(tbl, "id", lua.LString(snap.ID))
	L.SetField(tbl, "name", lua.LString(snap.Name))
	L.SetField(tbl, "side", lua.LString(snap.Side))
	L.SetField(tbl, "current_hp", lua.LNumber(snap.CurrentHP))
	L.SetField(tbl, "max_hp", lua.LNumber(snap.MaxHP))
	L.SetField(tbl, "defending", lua.LBool(snap.Defending))
	return tbl
}
