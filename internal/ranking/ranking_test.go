package ranking

import (
	"fmt"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func userIDs(r []Ranked) []string {
	out := make([]string, 0, len(r))
	for _, x := range r {
		out = append(out, x.UserID)
	}
	return out
}

func TestRankPrefersLevelThenLoad(t *testing.T) {
	candidates := []Candidate{
		{UserID: "A", Experience: map[string]int{"frontend": 250}, OpenTasks: 1},
		{UserID: "B", Experience: map[string]int{"frontend": 200}, OpenTasks: 3},
		{UserID: "C", Experience: map[string]int{"frontend": 310, "backend": 900}, OpenTasks: 5},
	}
	got := Rank(candidates, "frontend", 100)
	require.Equal(t, []string{"C", "A", "B"}, userIDs(got))
	assert.True(t, got[0].Recommended)
	assert.False(t, got[1].Recommended)
	assert.Equal(t, 3, got[0].Level)
}

func TestRankMissingRecordIsLevelZero(t *testing.T) {
	got := Rank([]Candidate{{UserID: "x", OpenTasks: 0}, {UserID: "y", Experience: map[string]int{"mobile developer": 100}, OpenTasks: 9}}, "mobile developer", 100)
	assert.Equal(t, []string{"y", "x"}, userIDs(got))
	assert.Zero(t, got[1].Level)
}

func TestRankEmpty(t *testing.T) {
	assert.Empty(t, Rank(nil, "frontend", 100))
}

func TestRankIsOrderIndependent(t *testing.T) {
	rng := rand.New(rand.NewSource(42))
	for round := 0; round < 100; round++ {
		var candidates []Candidate
		for i := 0; i < 1+rng.Intn(12); i++ {
			candidates = append(candidates, Candidate{
				UserID:     fmt.Sprintf("u%02d", i),
				Experience: map[string]int{"backend": rng.Intn(400)},
				OpenTasks:  rng.Intn(4),
			})
		}
		forward := Rank(candidates, "backend", 100)
		reversed := make([]Candidate, len(candidates))
		for i, c := range candidates {
			reversed[len(candidates)-1-i] = c
		}
		backward := Rank(reversed, "backend", 100)
		require.Equal(t, forward, backward)

		for i := 1; i < len(forward); i++ {
			prev, cur := forward[i-1], forward[i]
			if prev.Level == cur.Level {
				require.LessOrEqual(t, prev.OpenTasks, cur.OpenTasks)
			} else {
				require.Greater(t, prev.Level, cur.Level)
			}
		}
	}
}
