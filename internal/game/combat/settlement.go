package combat

import (
	"context"
	"fmt"

	"go.uber.org/zap"
)

// RewardSink is the narrow persistence interface settlement writes through.
// The engine never touches persistent state anywhere else, and only after an
// instance is terminal, so concurrently ending fights cannot race on the same
// records (the coordinator's exclusivity rule means a hostile is settled by
// exactly one instance).
type RewardSink interface {
	// ApplyRewards credits experience and gold to a player's record.
	ApplyRewards(ctx context.Context, playerID string, experience, gold int) error
	// MarkDead flags a hostile's record as dead.
	MarkDead(ctx context.Context, hostileID string) error
}

// NopRewardSink discards all settlement writes.
type NopRewardSink struct{}

// ApplyRewards discards the write.
func (NopRewardSink) ApplyRewards(context.Context, string, int, int) error { return nil }

// MarkDead discards the write.
func (NopRewardSink) MarkDead(context.Context, string) error { return nil }

// Settle applies a terminal instance's rewards. On a player victory it sums
// experience and gold over the defeated hostiles, credits the full total to
// every surviving player, and marks each defeated hostile dead. Any other
// result settles nothing. Contribution is not weighted: all survivors receive
// the full reward.
//
// Settlement runs at most once per instance: the instance's terminal
// transition is single-entry and is the only caller path.
//
// Postcondition: Returns the first sink error, after attempting every write.
func Settle(ctx context.Context, rep Report, sink RewardSink, logger *zap.Logger) error {
	if rep.Result != ResultPlayerVictory {
		return nil
	}

	totalExp, totalGold := 0, 0
	for _, h := range rep.DefeatedHostiles {
		totalExp += h.Experience
		totalGold += h.Gold
	}

	var firstErr error
	for _, h := range rep.DefeatedHostiles {
		if err := sink.MarkDead(ctx, h.ID); err != nil && firstErr == nil {
			firstErr = fmt.Errorf("marking hostile %q dead: %w", h.ID, err)
		}
	}
	for _, playerID := range rep.SurvivingPlayerIDs {
		if err := sink.ApplyRewards(ctx, playerID, totalExp, totalGold); err != nil && firstErr == nil {
			firstErr = fmt.Errorf("applying rewards to %q: %w", playerID, err)
		}
	}

	logger.Info("rewards settled",
		zap.String("instance_id", rep.InstanceID),
		zap.Int("experience", totalExp),
		zap.Int("gold", totalGold),
		zap.Int("survivors", len(rep.SurvivingPlayerIDs)),
		zap.Int("defeated", len(rep.DefeatedHostiles)),
	)
	return firstErr
}
