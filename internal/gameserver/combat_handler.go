package gameserver

import (
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/kmaitland/duskhall/internal/game/combat"
	"github.com/kmaitland/duskhall/internal/game/hostile"
	"github.com/kmaitland/duskhall/internal/game/session"
)

// CombatHandler is the command surface mapping player combat commands onto
// the coordinator. It resolves display names to engine identities; all combat
// rules live in the combat package.
type CombatHandler struct {
	coordinator *combat.Coordinator
	hostiles    *hostile.Manager
	sessions    *session.Manager
	logger      *zap.Logger
}

// NewCombatHandler creates a CombatHandler.
//
// Precondition: all arguments must be non-nil.
func NewCombatHandler(
	coordinator *combat.Coordinator,
	hostiles *hostile.Manager,
	sessions *session.Manager,
	logger *zap.Logger,
) *CombatHandler {
	return &CombatHandler{
		coordinator: coordinator,
		hostiles:    hostiles,
		sessions:    sessions,
		logger:      logger,
	}
}

// Attack attacks target. If the player is not yet fighting, a new fight is
// started at their location against the named hostile; otherwise the attack
// is submitted as this turn's action. An empty target inside an ongoing
// fight attacks the player's default target.
//
// Precondition: uid must be a connected player.
// Postcondition: Returns a confirmation line for the requesting player, or an
// error (including ErrNotYourTurn when submitted off-turn).
func (h *CombatHandler) Attack(uid, target string) (string, error) {
	sess, ok := h.sessions.GetPlayer(uid)
	if !ok {
		return "", fmt.Errorf("player %q not found", uid)
	}

	if _, fighting := h.coordinator.InstanceFor(uid); !fighting {
		return h.engage(sess, target)
	}

	act := combat.Action{Kind: combat.ActionAttack}
	label := "their foe"
	if target != "" {
		inst := h.hostiles.FindAt(sess.LocationID, target)
		if inst == nil {
			return "", fmt.Errorf("you don't see %q here", target)
		}
		act.TargetID = inst.ID
		label = inst.Name
	}

	if err := h.coordinator.SubmitAction(uid, act); err != nil {
		return "", err
	}
	return fmt.Sprintf("%s presses the attack against %s.", sess.CharName, label), nil
}

// engage starts a new fight between sess and the named hostile.
func (h *CombatHandler) engage(sess *session.PlayerSession, target string) (string, error) {
	if target == "" {
		return "", errors.New("attack what?")
	}
	inst := h.hostiles.FindAt(sess.LocationID, target)
	if inst == nil {
		return "", fmt.Errorf("you don't see %q here", target)
	}

	playerC, err := sess.Combatant()
	if err != nil {
		return "", fmt.Errorf("building combatant for %s: %w", sess.UID, err)
	}

	// A hostile already fighting is merged by location, not re-added.
	joining := []*combat.Combatant{playerC}
	if _, fighting := h.coordinator.InstanceFor(inst.ID); !fighting {
		hostileC, err := inst.Combatant()
		if err != nil {
			return "", fmt.Errorf("building combatant for %s: %w", inst.ID, err)
		}
		joining = append(joining, hostileC)
	}

	fight, err := h.coordinator.StartOrJoin(sess.LocationID, joining...)
	if err != nil {
		return "", err
	}

	h.logger.Info("fight engaged",
		zap.String("instance_id", fight.ID()),
		zap.String("location_id", sess.LocationID),
		zap.String("uid", sess.UID),
		zap.String("hostile_id", inst.ID),
	)
	return fmt.Sprintf("%s engages %s!", sess.CharName, inst.Name), nil
}

// Defend takes a defensive stance for the current turn.
//
// Precondition: uid must be a connected player in combat.
func (h *CombatHandler) Defend(uid string) (string, error) {
	sess, ok := h.sessions.GetPlayer(uid)
	if !ok {
		return "", fmt.Errorf("player %q not found", uid)
	}
	if err := h.coordinator.SubmitAction(uid, combat.Action{Kind: combat.ActionDefend}); err != nil {
		return "", err
	}
	return fmt.Sprintf("%s braces behind their guard.", sess.CharName), nil
}

// Flee attempts to escape the current fight.
//
// Precondition: uid must be a connected player in combat.
func (h *CombatHandler) Flee(uid string) (string, error) {
	sess, ok := h.sessions.GetPlayer(uid)
	if !ok {
		return "", fmt.Errorf("player %q not found", uid)
	}
	if err := h.coordinator.SubmitAction(uid, combat.Action{Kind: combat.ActionFlee}); err != nil {
		return "", err
	}
	return fmt.Sprintf("%s looks for a way out.", sess.CharName), nil
}

// Wait passes the current turn.
//
// Precondition: uid must be a connected player in combat.
func (h *CombatHandler) Wait(uid string) (string, error) {
	sess, ok := h.sessions.GetPlayer(uid)
	if !ok {
		return "", fmt.Errorf("player %q not found", uid)
	}
	if err := h.coordinator.SubmitAction(uid, combat.Action{Kind: combat.ActionWait}); err != nil {
		return "", err
	}
	return fmt.Sprintf("%s holds back, watching.", sess.CharName), nil
}

// Status reports the player's current fight, if any.
//
// Postcondition: Returns the fight's snapshots and whose turn it is, or
// combat.ErrNotInCombat.
func (h *CombatHandler) Status(uid string) ([]combat.Snapshot, string, error) {
	fight, ok := h.coordinator.InstanceFor(uid)
	if !ok {
		return nil, "", combat.ErrNotInCombat
	}
	return fight.Snapshots(), fight.CurrentActorID(), nil
}
