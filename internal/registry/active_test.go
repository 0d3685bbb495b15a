package registry

import (
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"
)

func TestTryActivate(t *testing.T) {
	a := NewActiveGames()

	require.True(t, a.TryActivate("g1", []string{"u1", "u2"}))
	assert.True(t, a.IsActive("u1"))
	assert.True(t, a.IsActive("u2"))

	// Any overlapping participant blocks the whole claim.
	assert.False(t, a.TryActivate("g2", []string{"u3", "u2"}))
	assert.False(t, a.IsActive("u3"), "failed activation must not claim anyone")

	assert.True(t, a.TryActivate("g2", []string{"u3"}))
}

func TestTryActivateDedupes(t *testing.T) {
	a := NewActiveGames()

	require.True(t, a.TryActivate("g1", []string{"u1", "u1", "u2"}))
	assert.Equal(t, []string{"u1", "u2"}, a.Participants("g1"))
}

func TestTryAdd(t *testing.T) {
	a := NewActiveGames()
	require.True(t, a.TryActivate("g1", []string{"u1"}))
	require.True(t, a.TryActivate("g2", []string{"u9"}))

	// Merging a free participant succeeds.
	assert.True(t, a.TryAdd("g1", []string{"u2"}))
	assert.Equal(t, []string{"u1", "u2"}, a.Participants("g1"))

	// Re-adding an existing member is accepted and does not duplicate.
	assert.True(t, a.TryAdd("g1", []string{"u1"}))
	assert.Equal(t, []string{"u1", "u2"}, a.Participants("g1"))

	// A participant claimed by another game blocks the merge.
	assert.False(t, a.TryAdd("g1", []string{"u3", "u9"}))
	assert.False(t, a.IsActive("u3"))
}

func TestRemove(t *testing.T) {
	a := NewActiveGames()
	require.True(t, a.TryActivate("g1", []string{"u1", "u2", "u3"}))

	a.Remove("g1", []string{"u2"})
	assert.False(t, a.IsActive("u2"))
	assert.Equal(t, []string{"u1", "u3"}, a.Participants("g1"))

	// Removing the rest destroys the claim entirely.
	a.Remove("g1", []string{"u1", "u3"})
	assert.Empty(t, a.Participants("g1"))
	assert.True(t, a.TryActivate("g1", []string{"u1"}), "destroyed claim is reusable")
}

func TestRemoveUnknownGame(t *testing.T) {
	a := NewActiveGames()
	a.Remove("nope", []string{"u1"})
}

func TestClear(t *testing.T) {
	a := NewActiveGames()
	require.True(t, a.TryActivate("g1", []string{"u1", "u2"}))

	a.Clear("g1")
	assert.False(t, a.IsActive("u1"))
	assert.False(t, a.IsActive("u2"))

	// Idempotent.
	a.Clear("g1")
	a.Clear("never-existed")
}

func TestConcurrentActivation(t *testing.T) {
	a := NewActiveGames()

	const goroutines = 32
	var wg sync.WaitGroup
	wins := make(chan string, goroutines)

	for i := 0; i < goroutines; i++ {
		gameID := fmt.Sprintf("g%d", i)
		wg.Add(1)
		go func() {
			defer wg.Done()
			if a.TryActivate(gameID, []string{"contested"}) {
				wins <- gameID
			}
		}()
	}
	wg.Wait()
	close(wins)

	var winners []string
	for id := range wins {
		winners = append(winners, id)
	}
	require.Len(t, winners, 1, "exactly one game may claim a contested participant")
	assert.Equal(t, []string{"contested"}, a.Participants(winners[0]))
}

// TestClaimExclusivityProperty drives random operation sequences and checks
// that a participant is never a member of two games at once and that the
// forward and reverse maps stay consistent.
func TestClaimExclusivityProperty(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		a := NewActiveGames()
		games := []string{"g1", "g2", "g3"}
		users := []string{"u1", "u2", "u3", "u4", "u5"}

		steps := rapid.IntRange(1, 60).Draw(t, "steps")
		for i := 0; i < steps; i++ {
			game := rapid.SampledFrom(games).Draw(t, "game")
			n := rapid.IntRange(1, 3).Draw(t, "n")
			picked := make([]string, 0, n)
			for j := 0; j < n; j++ {
				picked = append(picked, rapid.SampledFrom(users).Draw(t, "user"))
			}

			switch rapid.IntRange(0, 3).Draw(t, "op") {
			case 0:
				a.TryActivate(game, picked)
			case 1:
				a.TryAdd(game, picked)
			case 2:
				a.Remove(game, picked)
			case 3:
				a.Clear(game)
			}

			// Each user appears in at most one game's member set, and only
			// in the game the forward map points at.
			owners := make(map[string]string)
			for _, g := range games {
				for _, u := range a.Participants(g) {
					if prev, dup := owners[u]; dup {
						t.Fatalf("user %s in both %s and %s", u, prev, g)
					}
					owners[u] = g
				}
			}
			for _, u := range users {
				if g, ok := owners[u]; ok && !a.IsActive(u) {
					t.Fatalf("user %s is a member of %s but not active", u, g)
				}
				if !a.IsActive(u) {
					continue
				}
				if _, ok := owners[u]; !ok {
					t.Fatalf("user %s active but in no member set", u)
				}
			}
		}
	})
}
