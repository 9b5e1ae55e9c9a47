package scripting

import (
	lua "github.com/yuin/gopher-lua"
	"go.uber.org/zap"
)

// RegisterModules registers the engine.* Lua API into L:
//
//	engine.log.debug/info/warn/error(msg)  -- structured logging
//	engine.roll(expr)                      -- dice roll, returns
//	                                         {total, dice, modifier} or
//	                                         nil, err for a bad expression
//
// Precondition: L must be from NewSandboxedState.
// Postcondition: The engine global is defined in L.
func (m *Manager) RegisterModules(L *lua.LState) {
	engine := L.NewTable()

	logTable := L.NewTable()
	logFn := func(level func(string, ...zap.Field)) lua.LGFunction {
		return func(L *lua.LState) int {
			level(L.CheckString(1), zap.String("source", "lua"))
			return 0
		}
	}
	L.SetField(logTable, "debug", L.NewFunction(logFn(m.logger.Debug)))
	L.SetField(logTable, "info", L.NewFunction(logFn(m.logger.Info)))
	L.SetField(logTable, "warn", L.NewFunction(logFn(m.logger.Warn)))
	L.SetField(logTable, "error", L.NewFunction(logFn(m.logger.Error)))
	L.SetField(engine, "log", logTable)

	L.SetField(engine, "roll", L.NewFunction(func(L *lua.LState) int {
		expr := L.CheckString(1)
		result, err := m.roller.RollExpr(expr)
		if err != nil {
			L.Push(lua.LNil)
			L.Push(lua.LString(err.Error()))
			return 2
		}
		tbl := L.NewTable()
		L.SetField(tbl, "total", lua.LNumber(result.Total()))
		diceSum := 0
		for _, d := range result.Dice {
			diceSum += d
		}
		L.SetField(tbl, "dice", lua.LNumber(diceSum))
		L.SetField(tbl, "modifier", lua.LNumber(result.Modifier))
		L.Push(tbl)
		return 1
	}))

	L.SetGlobal("engine", engine)
}
