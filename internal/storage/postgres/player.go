package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// ErrPlayerNotFound is returned when a player lookup yields no results.
var ErrPlayerNotFound = errors.New("player not found")

// ErrPlayerExists is returned when attempting to create a duplicate player.
var ErrPlayerExists = errors.New("player already exists")

// Player is a persisted player record. UID is the stable player identity the
// engine uses; CharName is the display name shown in combat output.
type Player struct {
	UID         string
	Username    string
	CharName    string
	Location    string
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
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

const playerColumns = `uid, username, char_name, location, level,
	       max_hp, current_hp, attack_bonus, armor_class, damage, defense, speed,
	       experience, gold, created_at, updated_at`

// PlayerRepository provides player persistence operations.
type PlayerRepository struct {
	db *pgxpool.Pool
}

// NewPlayerRepository creates a PlayerRepository backed by the given pool.
//
// Precondition: db must be a valid, open connection pool.
func NewPlayerRepository(db *pgxpool.Pool) *PlayerRepository {
	return &PlayerRepository{db: db}
}

// Create inserts a new player record.
//
// Precondition: p.UID and p.Username must be non-empty and unused.
// Postcondition: Returns the created Player with timestamps set, or
// ErrPlayerExists on a duplicate uid or username.
func (r *PlayerRepository) Create(ctx context.Context, p Player) (Player, error) {
	var out Player
	err := r.db.QueryRow(ctx, `
		INSERT INTO players
			(uid, username, char_name, location, level,
			 max_hp, current_hp, attack_bonus, armor_class, damage, defense, speed,
			 experience, gold)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14)
		RETURNING `+playerColumns,
		p.UID, p.Username, p.CharName, p.Location, p.Level,
		p.MaxHP, p.CurrentHP, p.AttackBonus, p.ArmorClass, p.Damage, p.Defense, p.Speed,
		p.Experience, p.Gold,
	).Scan(
		&out.UID, &out.Username, &out.CharName, &out.Location, &out.Level,
		&out.MaxHP, &out.CurrentHP, &out.AttackBonus, &out.ArmorClass, &out.Damage, &out.Defense, &out.Speed,
		&out.Experience, &out.Gold, &out.CreatedAt, &out.UpdatedAt,
	)
	if err != nil {
		if isDuplicateKeyError(err) {
			return Player{}, ErrPlayerExists
		}
		return Player{}, fmt.Errorf("inserting player: %w", err)
	}
	return out, nil
}

// GetByUID retrieves a player by its stable identity.
//
// Precondition: uid must be non-empty.
// Postcondition: Returns the Player or ErrPlayerNotFound.
func (r *PlayerRepository) GetByUID(ctx context.Context, uid string) (Player, error) {
	var p Player
	err := r.db.QueryRow(ctx, `
		SELECT `+playerColumns+`
		FROM players WHERE uid = $1`,
		uid,
	).Scan(
		&p.UID, &p.Username, &p.CharName, &p.Location, &p.Level,
		&p.MaxHP, &p.CurrentHP, &p.AttackBonus, &p.ArmorClass, &p.Damage, &p.Defense, &p.Speed,
		&p.Experience, &p.Gold, &p.CreatedAt, &p.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Player{}, ErrPlayerNotFound
		}
		return Player{}, fmt.Errorf("querying player: %w", err)
	}
	return p, nil
}

// ApplyRewards credits experience and gold to a player's record.
//
// Precondition: experience and gold must be >= 0.
// Postcondition: Returns nil on success, ErrPlayerNotFound if no row updated.
func (r *PlayerRepository) ApplyRewards(ctx context.Context, uid string, experience, gold int) error {
	tag, err := r.db.Exec(ctx, `
		UPDATE players
		SET experience = experience + $2, gold = gold + $3, updated_at = NOW()
		WHERE uid = $1`,
		uid, experience, gold,
	)
	if err != nil {
		return fmt.Errorf("applying rewards: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrPlayerNotFound
	}
	return nil
}

// SaveState persists a player's current location and HP after a session.
//
// Precondition: uid must be non-empty.
// Postcondition: Returns nil on success, ErrPlayerNotFound if no row updated.
func (r *PlayerRepository) SaveState(ctx context.Context, uid, location string, currentHP int) error {
	tag, err := r.db.Exec(ctx, `
		UPDATE players SET location = $2, current_hp = $3, updated_at = NOW()
		WHERE uid = $1`,
		uid, location, currentHP,
	)
	if err != nil {
		return fmt.Errorf("saving player state: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrPlayerNotFound
	}
	return nil
}

// isDuplicateKeyError checks if a pgx error is a unique constraint violation.
func isDuplicateKeyError(err error) bool {
	// pgx wraps PostgreSQL errors; check for SQLSTATE 23505 (unique_violation)
	var pgErr interface{ SQLState() string }
	if errors.As(err, &pgErr) {
		return pgErr.SQLState() == "23505"
	}
	return false
}
