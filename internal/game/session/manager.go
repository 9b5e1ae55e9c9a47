package session

import (
	"fmt"
	"sync"

	"github.com/kmaitland/duskhall/internal/game/combat"
)

// PlayerSession tracks a connected player's state.
type PlayerSession struct {
	// UID is the unique player identifier (player record ID as string).
	UID string
	// Username is the account username (for logging).
	Username string
	// CharName is the character display name shown in-game.
	CharName string
	// LocationID is the current location the player occupies.
	LocationID string
	// Level is the character's current level.
	Level int
	// MaxHP and CurrentHP are the character's hit points.
	MaxHP     int
	CurrentHP int
	// AttackBonus, ArmorClass, Damage, Defense, and Speed are the combat
	// stats carried into a fight. Damage is a dice expression.
	AttackBonus int
	ArmorClass  int
	Damage      string
	Defense     int
	Speed       int
	// Experience and Gold are the character's accumulated rewards.
	Experience int
	Gold       int
	// Entity is the bridge entity for pushing events to the player.
	Entity *BridgeEntity
}

// Combatant builds the engine-side combatant for this session, carrying its
// current HP into the fight.
//
// Postcondition: Returns a player-side *combat.Combatant, or an error when
// the session's stats do not validate.
func (s *PlayerSession) Combatant() (*combat.Combatant, error) {
	return combat.NewCombatant(s.UID, s.CharName, combat.SidePlayers, combat.Stats{
		MaxHP:       s.MaxHP,
		CurrentHP:   s.CurrentHP,
		AttackBonus: s.AttackBonus,
		ArmorClass:  s.ArmorClass,
		Damage:      s.Damage,
		Defense:     s.Defense,
		Speed:       s.Speed,
	})
}

// PlayerParams carries the fields needed to register a session.
type PlayerParams struct {
	UID         string
	Username    string
	CharName    string
	LocationID  string
	Level       int
	MaxHP       int
	CurrentHP   int
	AttackBonus int
	ArmorClass  int
	Damage      string
	Defense     int
	Speed       int
	Experience  int
	Gold        int
	// EventBufferSize sizes the bridge entity's channel; <= 0 uses the
	// default.
	EventBufferSize int
}

// Manager tracks all active player sessions and location occupancy.
// All methods are safe for concurrent use.
type Manager struct {
	mu           sync.RWMutex
	players      map[string]*PlayerSession  // uid → session
	locationSets map[string]map[string]bool // locationID → set of UIDs
}

// NewManager creates an empty session Manager.
func NewManager() *Manager {
	return &Manager{
		players:      make(map[string]*PlayerSession),
		locationSets: make(map[string]map[string]bool),
	}
}

// AddPlayer registers a new player session in the given location.
//
// Precondition: p.UID, p.CharName, and p.LocationID must be non-empty; HP and
// stat fields must describe a valid combatant if the player is to fight.
// Postcondition: Returns the created PlayerSession with an open bridge
// entity, or an error if the UID is already registered.
func (m *Manager) AddPlayer(p PlayerParams) (*PlayerSession, error) {
	if p.UID == "" || p.CharName == "" || p.LocationID == "" {
		return nil, fmt.Errorf("session: uid, char name, and location id must not be empty")
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.players[p.UID]; exists {
		return nil, fmt.Errorf("player %q already connected", p.UID)
	}

	sess := &PlayerSession{
		UID:         p.UID,
		Username:    p.Username,
		CharName:    p.CharName,
		LocationID:  p.LocationID,
		Level:       p.Level,
		MaxHP:       p.MaxHP,
		CurrentHP:   p.CurrentHP,
		AttackBonus: p.AttackBonus,
		ArmorClass:  p.ArmorClass,
		Damage:      p.Damage,
		Defense:     p.Defense,
		Speed:       p.Speed,
		Experience:  p.Experience,
		Gold:        p.Gold,
		Entity:      NewBridgeEntity(p.UID, p.EventBufferSize),
	}

	m.players[p.UID] = sess
	if m.locationSets[p.LocationID] == nil {
		m.locationSets[p.LocationID] = make(map[string]bool)
	}
	m.locationSets[p.LocationID][p.UID] = true

	return sess, nil
}

// RemovePlayer removes a player session and cleans up location occupancy.
//
// Precondition: uid must be non-empty.
// Postcondition: The player is removed from all tracking and their entity is
// closed. Returns an error if not found.
func (m *Manager) RemovePlayer(uid string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	sess, exists := m.players[uid]
	if !exists {
		return fmt.Errorf("player %q not found", uid)
	}

	if ls, ok := m.locationSets[sess.LocationID]; ok {
		delete(ls, uid)
		if len(ls) == 0 {
			delete(m.locationSets, sess.LocationID)
		}
	}

	_ = sess.Entity.Close()

	delete(m.players, uid)
	return nil
}

// MovePlayer moves a player from their current location to a new one.
//
// Precondition: uid and newLocationID must be non-empty.
// Postcondition: Returns the old location ID, or an error if the player is
// not found.
func (m *Manager) MovePlayer(uid, newLocationID string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	sess, exists := m.players[uid]
	if !exists {
		return "", fmt.Errorf("player %q not found", uid)
	}

	oldLocationID := sess.LocationID

	if ls, ok := m.locationSets[oldLocationID]; ok {
		delete(ls, uid)
		if len(ls) == 0 {
			delete(m.locationSets, oldLocationID)
		}
	}

	sess.LocationID = newLocationID
	if m.locationSets[newLocationID] == nil {
		m.locationSets[newLocationID] = make(map[string]bool)
	}
	m.locationSets[newLocationID][uid] = true

	return oldLocationID, nil
}

// ApplyRewards credits experience and gold to the in-memory session, keeping
// it consistent with the persisted record after settlement.
//
// Postcondition: Returns an error if the player is not found.
func (m *Manager) ApplyRewards(uid string, experience, gold int) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	sess, exists := m.players[uid]
	if !exists {
		return fmt.Errorf("player %q not found", uid)
	}
	sess.Experience += experience
	sess.Gold += gold
	return nil
}

// SetCurrentHP updates a player's hit points from a combat outcome, clamped
// to [0, MaxHP].
//
// Postcondition: Returns an error if the player is not found.
func (m *Manager) SetCurrentHP(uid string, hp int) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	sess, exists := m.players[uid]
	if !exists {
		return fmt.Errorf("player %q not found", uid)
	}
	if hp < 0 {
		hp = 0
	}
	if hp > sess.MaxHP {
		hp = sess.MaxHP
	}
	sess.CurrentHP = hp
	return nil
}

// PlayersAt returns the character display names of all players in the given
// location.
//
// Postcondition: Returns a slice of character names (may be empty).
func (m *Manager) PlayersAt(locationID string) []string {
	m.mu.RLock()
	defer m.mu.RUnlock()

	uids, ok := m.locationSets[locationID]
	if !ok {
		return nil
	}

	names := make([]string, 0, len(uids))
	for uid := range uids {
		if sess, ok := m.players[uid]; ok {
			names = append(names, sess.CharName)
		}
	}
	return names
}

// PlayerUIDsAt returns the UIDs of all players in the given location.
//
// Postcondition: Returns a slice of UIDs (may be empty).
func (m *Manager) PlayerUIDsAt(locationID string) []string {
	m.mu.RLock()
	defer m.mu.RUnlock()

	uids, ok := m.locationSets[locationID]
	if !ok {
		return nil
	}

	result := make([]string, 0, len(uids))
	for uid := range uids {
		result = append(result, uid)
	}
	return result
}

// GetPlayer returns the session for the given UID.
//
// Postcondition: Returns (session, true) if found, or (nil, false) otherwise.
func (m *Manager) GetPlayer(uid string) (*PlayerSession, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	sess, ok := m.players[uid]
	return sess, ok
}

// GetPlayerByCharName returns the session for the player with the given
// character name.
//
// Postcondition: Returns (session, true) if found, or (nil, false) otherwise.
func (m *Manager) GetPlayerByCharName(charName string) (*PlayerSession, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, sess := range m.players {
		if sess.CharName == charName {
			return sess, true
		}
	}
	return nil, false
}

// PlayerCount returns the total number of connected players.
func (m *Manager) PlayerCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.players)
}
