package scripting

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"

	lua "github.com/yuin/gopher-lua"
	"go.uber.org/zap"

	"github.com/kmaitland/duskhall/internal/game/dice"
)

// globalAreaID is the reserved key for shared scripts loaded via LoadGlobal.
// CallHook falls back to this VM when no area VM is found.
const globalAreaID = "__global__"

// Manager owns one sandboxed LState per area and exposes hook dispatch.
//
// Each area's LState is single-threaded; CallHook serializes calls into the
// same area VM while allowing different areas to run concurrently.
type Manager struct {
	mu      sync.Mutex
	states  map[string]*lua.LState
	cancels map[string]func()
	roller  *dice.Roller
	logger  *zap.Logger
}

// NewManager creates a Manager.
//
// Precondition: roller and logger must be non-nil.
// Postcondition: Returns a non-nil Manager with an empty area map.
func NewManager(roller *dice.Roller, logger *zap.Logger) *Manager {
	return &Manager{
		states:  make(map[string]*lua.LState),
		cancels: make(map[string]func()),
		roller:  roller,
		logger:  logger,
	}
}

// LoadArea creates a sandboxed VM for areaID, registers the engine.* modules,
// then executes every *.lua file in scriptDir in lexicographic order.
//
// Precondition: areaID must be non-empty; scriptDir must be a readable
// directory.
// Postcondition: The area VM is registered; returns an error on Lua load
// failure.
func (m *Manager) LoadArea(areaID, scriptDir string, instLimit int) error {
	return m.loadInto(areaID, scriptDir, instLimit)
}

// LoadGlobal creates the "__global__" VM for shared scripts reachable as a
// CallHook fallback from any area.
//
// Precondition: scriptDir must be a readable directory.
// Postcondition: The global VM is registered; returns an error on Lua load
// failure.
func (m *Manager) LoadGlobal(scriptDir string, instLimit int) error {
	return m.loadInto(globalAreaID, scriptDir, instLimit)
}

func (m *Manager) loadInto(key, scriptDir string, instLimit int) error {
	L, cancel := NewSandboxedState(instLimit)
	m.RegisterModules(L)

	entries, err := os.ReadDir(scriptDir)
	if err != nil {
		cancel()
		L.Close()
		return fmt.Errorf("scripting: reading script dir %q for %q: %w", scriptDir, key, err)
	}

	var luaFiles []string
	for _, e := range entries {
		if !e.IsDir() && filepath.Ext(e.Name()) == ".lua" {
			luaFiles = append(luaFiles, filepath.Join(scriptDir, e.Name()))
		}
	}
	sort.Strings(luaFiles)

	for _, path := range luaFiles {
		if err := L.DoFile(path); err != nil {
			cancel()
			L.Close()
			return fmt.Errorf("scripting: loading %q for %q: %w", path, key, err)
		}
	}

	m.mu.Lock()
	if old, ok := m.states[key]; ok {
		if oldCancel := m.cancels[key]; oldCancel != nil {
			oldCancel()
		}
		old.Close()
	}
	m.states[key] = L
	m.cancels[key] = cancel
	m.mu.Unlock()
	return nil
}

// CallHook calls the named Lua global function in areaID's VM. If the area
// has no VM, the __global__ VM is tried as a fallback. Returns (LNil, nil) if
// the hook is not defined or no VM exists. Lua runtime errors are logged at
// Warn level and never propagated: a broken script cannot break a fight.
//
// Precondition: args must be valid lua.LValue instances.
// Postcondition: Returns the first return value of the hook, or LNil.
func (m *Manager) CallHook(areaID, hook string, args ...lua.LValue) (lua.LValue, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.callLocked(areaID, hook, args)
}

// dispatch resolves areaID's VM, builds the hook arguments inside that VM via
// buildArgs, and calls the hook, all under one lock acquisition so the VM
// cannot be swapped out between argument construction and the call.
func (m *Manager) dispatch(areaID, hook string, buildArgs func(L *lua.LState) []lua.LValue) {
	m.mu.Lock()
	defer m.mu.Unlock()

	L := m.states[areaID]
	if L == nil {
		L = m.states[globalAreaID]
	}
	if L == nil {
		return
	}
	_, _ = m.callLocked(areaID, hook, buildArgs(L))
}

// callLocked performs the hook call.
//
// Precondition: m.mu is held.
func (m *Manager) callLocked(areaID, hook string, args []lua.LValue) (lua.LValue, error) {
	L, ok := m.states[areaID]
	if !ok {
		L = m.states[globalAreaID]
	}
	if L == nil {
		m.logger.Debug("scripting: no VM for area",
			zap.String("area", areaID),
			zap.String("hook", hook),
		)
		return lua.LNil, nil
	}

	fn := L.GetGlobal(hook)
	if fn == lua.LNil {
		return lua.LNil, nil
	}

	if err := L.CallByParam(lua.P{
		Fn:      fn,
		NRet:    1,
		Protect: true,
	}, args...); err != nil {
		m.logger.Warn("scripting: Lua runtime error",
			zap.String("area", areaID),
			zap.String("hook", hook),
			zap.Error(err),
		)
		return lua.LNil, nil
	}

	ret := L.Get(-1)
	L.Pop(1)
	return ret, nil
}

// Close shuts down every VM. The Manager is unusable afterwards.
func (m *Manager) Close() {
	m.mu.Lock()
	defer m.mu.Unlock()
	for key, L := range m.states {
		if cancel := m.cancels[key]; cancel != nil {
			cancel()
		}
		L.Close()
		delete(m.states, key)
		delete(m.cancels, key)
	}
}
