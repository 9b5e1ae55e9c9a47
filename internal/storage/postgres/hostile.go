package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// ErrHostileNotFound is returned when a hostile lookup yields no results.
var ErrHostileNotFound = errors.New("hostile not found")

// Hostile is a persisted spawned hostile. The row outlives the in-memory
// instance so a restarted server does not resurrect defeated spawns.
type Hostile struct {
	ID         string
	TemplateID string
	Name       string
	Location   string
	CurrentHP  int
	Dead       bool
	CreatedAt  time.Time
}

// HostileRepository provides spawned-hostile persistence operations.
type HostileRepository struct {
	db *pgxpool.Pool
}

// NewHostileRepository creates a HostileRepository backed by the given pool.
//
// Precondition: db must be a valid, open connection pool.
func NewHostileRepository(db *pgxpool.Pool) *HostileRepository {
	return &HostileRepository{db: db}
}

// Create records a newly spawned hostile.
//
// Precondition: h.ID, h.TemplateID, and h.Location must be non-empty.
// Postcondition: Returns the created Hostile with CreatedAt set.
func (r *HostileRepository) Create(ctx context.Context, h Hostile) (Hostile, error) {
	var out Hostile
	err := r.db.QueryRow(ctx, `
		INSERT INTO hostiles (id, template_id, name, location, current_hp, dead)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id, template_id, name, location, current_hp, dead, created_at`,
		h.ID, h.TemplateID, h.Name, h.Location, h.CurrentHP, h.Dead,
	).Scan(&out.ID, &out.TemplateID, &out.Name, &out.Location, &out.CurrentHP, &out.Dead, &out.CreatedAt)
	if err != nil {
		return Hostile{}, fmt.Errorf("inserting hostile: %w", err)
	}
	return out, nil
}

// GetByID retrieves a hostile by its spawn id.
//
// Precondition: id must be non-empty.
// Postcondition: Returns the Hostile or ErrHostileNotFound.
func (r *HostileRepository) GetByID(ctx context.Context, id string) (Hostile, error) {
	var h Hostile
	err := r.db.QueryRow(ctx, `
		SELECT id, template_id, name, location, current_hp, dead, created_at
		FROM hostiles WHERE id = $1`,
		id,
	).Scan(&h.ID, &h.TemplateID, &h.Name, &h.Location, &h.CurrentHP, &h.Dead, &h.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Hostile{}, ErrHostileNotFound
		}
		return Hostile{}, fmt.Errorf("querying hostile: %w", err)
	}
	return h, nil
}

// ListAliveAt returns the living hostiles at the given location, oldest first.
//
// Precondition: location must be non-empty.
// Postcondition: Returns a slice (may be empty) or a non-nil error.
func (r *HostileRepository) ListAliveAt(ctx context.Context, location string) ([]Hostile, error) {
	rows, err := r.db.Query(ctx, `
		SELECT id, template_id, name, location, current_hp, dead, created_at
		FROM hostiles WHERE location = $1 AND NOT dead
		ORDER BY created_at ASC`,
		location,
	)
	if err != nil {
		return nil, fmt.Errorf("listing hostiles: %w", err)
	}
	defer rows.Close()

	hostiles := make([]Hostile, 0)
	for rows.Next() {
		var h Hostile
		if err := rows.Scan(&h.ID, &h.TemplateID, &h.Name, &h.Location, &h.CurrentHP, &h.Dead, &h.CreatedAt); err != nil {
			return nil, fmt.Errorf("scanning hostile row: %w", err)
		}
		hostiles = append(hostiles, h)
	}
	return hostiles, rows.Err()
}

// MarkDead flags a hostile's record as dead and zeroes its HP.
//
// Precondition: id must be non-empty.
// Postcondition: Returns nil on success, ErrHostileNotFound if no row updated.
func (r *HostileRepository) MarkDead(ctx context.Context, id string) error {
	tag, err := r.db.Exec(ctx, `
		UPDATE hostiles SET dead = TRUE, current_hp = 0 WHERE id = $1`,
		id,
	)
	if err != nil {
		return fmt.Errorf("marking hostile dead: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrHostileNotFound
	}
	return nil
}

// SaveHP persists a hostile's current HP after a fight it survived.
//
// Precondition: id must be non-empty; currentHP must be >= 0.
// Postcondition: Returns nil on success, ErrHostileNotFound if no row updated.
func (r *HostileRepository) SaveHP(ctx context.Context, id string, currentHP int) error {
	tag, err := r.db.Exec(ctx, `
		UPDATE hostiles SET current_hp = $2 WHERE id = $1`,
		id, currentHP,
	)
	if err != nil {
		return fmt.Errorf("saving hostile hp: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrHostileNotFound
	}
	return nil
}
