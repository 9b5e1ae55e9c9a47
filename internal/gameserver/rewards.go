package gameserver

import (
	"context"

	"go.uber.org/zap"

	"github.com/kmaitland/duskhall/internal/game/combat"
	"github.com/kmaitland/duskhall/internal/game/hostile"
	"github.com/kmaitland/duskhall/internal/game/session"
)

// RewardFanout applies combat settlement to the live in-memory state (player
// sessions, hostile roster) and then to the persistent sink. In-memory
// applications are best-effort: a player who disconnected between the kill
// and settlement still gets the persistent credit.
type RewardFanout struct {
	sessions   *session.Manager
	hostiles   *hostile.Manager
	persistent combat.RewardSink
	logger     *zap.Logger
}

var _ combat.RewardSink = (*RewardFanout)(nil)

// NewRewardFanout creates a RewardFanout. persistent may be nil, in which
// case only the in-memory state is updated.
//
// Precondition: sessions, hostiles, and logger must be non-nil.
func NewRewardFanout(
	sessions *session.Manager,
	hostiles *hostile.Manager,
	persistent combat.RewardSink,
	logger *zap.Logger,
) *RewardFanout {
	if persistent == nil {
		persistent = combat.NopRewardSink{}
	}
	return &RewardFanout{
		sessions:   sessions,
		hostiles:   hostiles,
		persistent: persistent,
		logger:     logger,
	}
}

// ApplyRewards credits the live session, then the persistent record.
func (r *RewardFanout) ApplyRewards(ctx context.Context, playerID string, experience, gold int) error {
	if err := r.sessions.ApplyRewards(playerID, experience, gold); err != nil {
		r.logger.Debug("session reward skipped",
			zap.String("uid", playerID),
			zap.Error(err),
		)
	}
	return r.persistent.ApplyRewards(ctx, playerID, experience, gold)
}

// MarkDead flags the live hostile instance, then the persistent record.
func (r *RewardFanout) MarkDead(ctx context.Context, hostileID string) error {
	if err := r.hostiles.MarkDead(hostileID); err != nil {
		r.logger.Debug("hostile death mark skipped",
			zap.String("hostile_id", hostileID),
			zap.Error(err),
		)
	}
	return r.persistent.MarkDead(ctx, hostileID)
}
