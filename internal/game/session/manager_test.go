package session

import (
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"

	"github.com/kmaitland/duskhall/internal/game/combat"
)

func aliceParams() PlayerParams {
	return PlayerParams{
		UID:        "u1",
		Username:   "alice",
		CharName:   "Alice",
		LocationID: "loc_a",
		Level:      3,
		MaxHP:      30,
		CurrentHP:  30,
		ArmorClass: 14,
		Damage:     "1d8+2",
		Speed:      5,
	}
}

func TestBridgeEntity_Push(t *testing.T) {
	e := NewBridgeEntity("test", 4)
	require.NoError(t, e.Push([]byte("hello")))

	data := <-e.Events()
	assert.Equal(t, []byte("hello"), data)
}

func TestBridgeEntity_PushClosed(t *testing.T) {
	e := NewBridgeEntity("test", 4)
	require.NoError(t, e.Close())
	assert.True(t, e.IsClosed())
	assert.Error(t, e.Push([]byte("fail")))
}

func TestBridgeEntity_PushFull(t *testing.T) {
	e := NewBridgeEntity("test", 1)
	require.NoError(t, e.Push([]byte("first")))
	err := e.Push([]byte("overflow"))
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "buffer full")
}

func TestBridgeEntity_CloseIdempotent(t *testing.T) {
	e := NewBridgeEntity("test", 4)
	require.NoError(t, e.Close())
	require.NoError(t, e.Close())
	assert.True(t, e.IsClosed())
}

func TestManager_AddPlayer(t *testing.T) {
	m := NewManager()
	sess, err := m.AddPlayer(aliceParams())
	require.NoError(t, err)

	assert.Equal(t, "alice", sess.Username)
	assert.Equal(t, "loc_a", sess.LocationID)
	assert.Equal(t, 30, sess.CurrentHP)
	require.NotNil(t, sess.Entity)
	assert.Equal(t, "u1", sess.Entity.UID())
	assert.Equal(t, 1, m.PlayerCount())
}

func TestManager_AddPlayerValidation(t *testing.T) {
	m := NewManager()
	p := aliceParams()
	p.UID = ""
	_, err := m.AddPlayer(p)
	assert.Error(t, err)

	p = aliceParams()
	p.LocationID = ""
	_, err = m.AddPlayer(p)
	assert.Error(t, err)
}

func TestManager_AddPlayerDuplicate(t *testing.T) {
	m := NewManager()
	_, err := m.AddPlayer(aliceParams())
	require.NoError(t, err)

	dup := aliceParams()
	dup.CharName = "Alice2"
	_, err = m.AddPlayer(dup)
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "already connected")
}

func TestManager_RemovePlayer(t *testing.T) {
	m := NewManager()
	sess, err := m.AddPlayer(aliceParams())
	require.NoError(t, err)

	require.NoError(t, m.RemovePlayer("u1"))
	assert.Equal(t, 0, m.PlayerCount())
	assert.True(t, sess.Entity.IsClosed(), "removal closes the bridge entity")
	assert.Empty(t, m.PlayersAt("loc_a"))

	assert.Error(t, m.RemovePlayer("u1"))
}

func TestManager_MovePlayer(t *testing.T) {
	m := NewManager()
	_, err := m.AddPlayer(aliceParams())
	require.NoError(t, err)

	old, err := m.MovePlayer("u1", "loc_b")
	require.NoError(t, err)
	assert.Equal(t, "loc_a", old)
	assert.Empty(t, m.PlayerUIDsAt("loc_a"))
	assert.Equal(t, []string{"u1"}, m.PlayerUIDsAt("loc_b"))

	_, err = m.MovePlayer("ghost", "loc_b")
	assert.Error(t, err)
}

func TestManager_ApplyRewards(t *testing.T) {
	m := NewManager()
	sess, err := m.AddPlayer(aliceParams())
	require.NoError(t, err)

	require.NoError(t, m.ApplyRewards("u1", 25, 10))
	assert.Equal(t, 25, sess.Experience)
	assert.Equal(t, 10, sess.Gold)

	require.NoError(t, m.ApplyRewards("u1", 5, 0))
	assert.Equal(t, 30, sess.Experience)

	assert.Error(t, m.ApplyRewards("ghost", 1, 1))
}

func TestManager_SetCurrentHP(t *testing.T) {
	m := NewManager()
	sess, err := m.AddPlayer(aliceParams())
	require.NoError(t, err)

	require.NoError(t, m.SetCurrentHP("u1", 12))
	assert.Equal(t, 12, sess.CurrentHP)

	require.NoError(t, m.SetCurrentHP("u1", -4))
	assert.Equal(t, 0, sess.CurrentHP)

	require.NoError(t, m.SetCurrentHP("u1", 99))
	assert.Equal(t, 30, sess.CurrentHP, "clamped to MaxHP")

	assert.Error(t, m.SetCurrentHP("ghost", 10))
}

func TestManager_Lookups(t *testing.T) {
	m := NewManager()
	_, err := m.AddPlayer(aliceParams())
	require.NoError(t, err)

	sess, ok := m.GetPlayer("u1")
	require.True(t, ok)
	assert.Equal(t, "Alice", sess.CharName)

	byName, ok := m.GetPlayerByCharName("Alice")
	require.True(t, ok)
	assert.Same(t, sess, byName)

	_, ok = m.GetPlayer("ghost")
	assert.False(t, ok)
	_, ok = m.GetPlayerByCharName("Nobody")
	assert.False(t, ok)

	assert.Equal(t, []string{"Alice"}, m.PlayersAt("loc_a"))
	assert.Nil(t, m.PlayersAt("loc_z"))
}

func TestPlayerSession_Combatant(t *testing.T) {
	m := NewManager()
	sess, err := m.AddPlayer(aliceParams())
	require.NoError(t, err)
	sess.CurrentHP = 21

	cbt, err := sess.Combatant()
	require.NoError(t, err)
	assert.Equal(t, "u1", cbt.ID)
	assert.Equal(t, "Alice", cbt.Name)
	assert.Equal(t, combat.SidePlayers, cbt.Side)
	assert.Equal(t, 21, cbt.CurrentHP)
	assert.Equal(t, 14, cbt.ArmorClass)

	sess.Damage = "bogus"
	_, err = sess.Combatant()
	assert.Error(t, err)
}

func TestManager_ConcurrentAddRemove(t *testing.T) {
	m := NewManager()
	var wg sync.WaitGroup
	for i := 0; i < 32; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			p := aliceParams()
			p.UID = fmt.Sprintf("u%d", i)
			p.CharName = fmt.Sprintf("Char%d", i)
			if _, err := m.AddPlayer(p); err != nil {
				t.Error(err)
				return
			}
			if _, err := m.MovePlayer(p.UID, "loc_b"); err != nil {
				t.Error(err)
				return
			}
			if err := m.RemovePlayer(p.UID); err != nil {
				t.Error(err)
			}
		}(i)
	}
	wg.Wait()
	assert.Equal(t, 0, m.PlayerCount())
}

func TestManager_OccupancyProperties(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		m := NewManager()
		n := rapid.IntRange(1, 10).Draw(t, "n")
		locs := []string{"loc_a", "loc_b", "loc_c"}
		want := make(map[string]int)
		for i := 0; i < n; i++ {
			p := aliceParams()
			p.UID = fmt.Sprintf("u%d", i)
			p.LocationID = locs[rapid.IntRange(0, len(locs)-1).Draw(t, "loc")]
			want[p.LocationID]++
			if _, err := m.AddPlayer(p); err != nil {
				t.Fatalf("add: %v", err)
			}
		}

		if m.PlayerCount() != n {
			t.Fatalf("count %d, want %d", m.PlayerCount(), n)
		}
		total := 0
		for _, loc := range locs {
			got := len(m.PlayerUIDsAt(loc))
			if got != want[loc] {
				t.Fatalf("location %s has %d players, want %d", loc, got, want[loc])
			}
			total += got
		}
		if total != n {
			t.Fatalf("occupancy sums to %d, want %d", total, n)
		}
	})
}
