package postgres_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kmaitland/duskhall/internal/storage/postgres"
	"github.com/kmaitland/duskhall/internal/testutil"
)

func makeTestHostile(id, location string) postgres.Hostile {
	return postgres.Hostile{
		ID:         id,
		TemplateID: "sewer-rat",
		Name:       "Sewer Rat",
		Location:   location,
		CurrentHP:  8,
	}
}

func TestHostileRepository_CreateAndGet(t *testing.T) {
	repo := postgres.NewHostileRepository(testutil.NewPool(t))
	ctx := context.Background()

	created, err := repo.Create(ctx, makeTestHostile("h1", "sewer-1"))
	require.NoError(t, err)
	assert.Equal(t, "h1", created.ID)
	assert.False(t, created.Dead)
	assert.False(t, created.CreatedAt.IsZero())

	got, err := repo.GetByID(ctx, "h1")
	require.NoError(t, err)
	assert.Equal(t, "sewer-rat", got.TemplateID)
	assert.Equal(t, 8, got.CurrentHP)

	_, err = repo.GetByID(ctx, "nope")
	assert.ErrorIs(t, err, postgres.ErrHostileNotFound)
}

func TestHostileRepository_ListAliveAt(t *testing.T) {
	repo := postgres.NewHostileRepository(testutil.NewPool(t))
	ctx := context.Background()

	for _, id := range []string{"h1", "h2"} {
		_, err := repo.Create(ctx, makeTestHostile(id, "sewer-1"))
		require.NoError(t, err)
	}
	_, err := repo.Create(ctx, makeTestHostile("h3", "crypt-2"))
	require.NoError(t, err)
	require.NoError(t, repo.MarkDead(ctx, "h2"))

	alive, err := repo.ListAliveAt(ctx, "sewer-1")
	require.NoError(t, err)
	require.Len(t, alive, 1)
	assert.Equal(t, "h1", alive[0].ID)
}

func TestHostileRepository_MarkDead(t *testing.T) {
	repo := postgres.NewHostileRepository(testutil.NewPool(t))
	ctx := context.Background()

	_, err := repo.Create(ctx, makeTestHostile("h1", "sewer-1"))
	require.NoError(t, err)

	require.NoError(t, repo.MarkDead(ctx, "h1"))

	got, err := repo.GetByID(ctx, "h1")
	require.NoError(t, err)
	assert.True(t, got.Dead)
	assert.Equal(t, 0, got.CurrentHP)

	assert.ErrorIs(t, repo.MarkDead(ctx, "ghost"), postgres.ErrHostileNotFound)
}

func TestHostileRepository_SaveHP(t *testing.T) {
	repo := postgres.NewHostileRepository(testutil.NewPool(t))
	ctx := context.Background()

	_, err := repo.Create(ctx, makeTestHostile("h1", "sewer-1"))
	require.NoError(t, err)

	require.NoError(t, repo.SaveHP(ctx, "h1", 3))

	got, err := repo.GetByID(ctx, "h1")
	require.NoError(t, err)
	assert.Equal(t, 3, got.CurrentHP)

	assert.ErrorIs(t, repo.SaveHP(ctx, "ghost", 3), postgres.ErrHostileNotFound)
}
