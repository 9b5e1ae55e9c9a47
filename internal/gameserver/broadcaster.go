// Package gameserver wires the combat engine to player sessions: the command
// surface a transport calls into, and the event fan-out back to clients.
package gameserver

import (
	"encoding/json"

	"go.uber.org/zap"

	"github.com/kmaitland/duskhall/internal/game/combat"
	"github.com/kmaitland/duskhall/internal/game/hostile"
	"github.com/kmaitland/duskhall/internal/game/session"
)

// combatTurnEnvelope is the wire shape pushed to bridge entities.
type combatTurnEnvelope struct {
	Type  string           `json:"type"`
	Event combat.TurnEvent `json:"event"`
}

// RoomBroadcaster fans combat turn events out to every player at the fight's
// location, and mirrors combatant HP from the event snapshots back into the
// session records and the hostile roster so the rest of the server sees
// post-hit vitals: a hostile damaged in a fight the players abandon stays
// wounded.
//
// BroadcastTurn is called from the instance's turn loop while it holds its
// lock, so this type never calls back into the combat package.
type RoomBroadcaster struct {
	sessions *session.Manager
	hostiles *hostile.Manager
	logger   *zap.Logger
}

var _ combat.Broadcaster = (*RoomBroadcaster)(nil)

// NewRoomBroadcaster creates a RoomBroadcaster over the given sessions and
// hostile roster.
//
// Precondition: sessions, hostiles, and logger must be non-nil.
func NewRoomBroadcaster(sessions *session.Manager, hostiles *hostile.Manager, logger *zap.Logger) *RoomBroadcaster {
	return &RoomBroadcaster{sessions: sessions, hostiles: hostiles, logger: logger}
}

// BroadcastTurn delivers ev to every occupant of ev.LocationID. Delivery is
// best-effort: a full or closed bridge entity drops the event.
func (b *RoomBroadcaster) BroadcastTurn(ev combat.TurnEvent) {
	for _, snap := range ev.Combatants {
		switch snap.Side {
		case combat.SidePlayers.String():
			if err := b.sessions.SetCurrentHP(snap.ID, snap.CurrentHP); err != nil {
				b.logger.Debug("hp sync skipped",
					zap.String("uid", snap.ID),
					zap.Error(err),
				)
			}
		case combat.SideHostiles.String():
			if err := b.hostiles.SetCurrentHP(snap.ID, snap.CurrentHP); err != nil {
				b.logger.Debug("hp sync skipped",
					zap.String("hostile_id", snap.ID),
					zap.Error(err),
				)
			}
		}
	}

	payload, err := json.Marshal(combatTurnEnvelope{Type: "combat_turn", Event: ev})
	if err != nil {
		b.logger.Error("encoding turn event",
			zap.String("instance_id", ev.InstanceID),
			zap.Error(err),
		)
		return
	}

	for _, uid := range b.sessions.PlayerUIDsAt(ev.LocationID) {
		sess, ok := b.sessions.GetPlayer(uid)
		if !ok {
			continue
		}
		if err := sess.Entity.Push(payload); err != nil {
			b.logger.Debug("turn event dropped",
				zap.String("uid", uid),
				zap.String("instance_id", ev.InstanceID),
				zap.Error(err),
			)
		}
	}
}
