package postgres

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/kmaitland/duskhall/internal/game/combat"
)

// RewardRepository is the persistence sink combat settlement writes through.
// It narrows the player and hostile repositories to the two writes settlement
// needs.
type RewardRepository struct {
	players  *PlayerRepository
	hostiles *HostileRepository
}

var _ combat.RewardSink = (*RewardRepository)(nil)

// NewRewardRepository creates a RewardRepository backed by the given pool.
//
// Precondition: db must be a valid, open connection pool.
func NewRewardRepository(db *pgxpool.Pool) *RewardRepository {
	return &RewardRepository{
		players:  NewPlayerRepository(db),
		hostiles: NewHostileRepository(db),
	}
}

// ApplyRewards credits experience and gold to a player's record.
func (r *RewardRepository) ApplyRewards(ctx context.Context, playerID string, experience, gold int) error {
	return r.players.ApplyRewards(ctx, playerID, experience, gold)
}

// MarkDead flags a hostile's record as dead.
func (r *RewardRepository) MarkDead(ctx context.Context, hostileID string) error {
	return r.hostiles.MarkDead(ctx, hostileID)
}
