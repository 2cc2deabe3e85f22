// Package matchmaking splits a roster into two balanced teams by
// randomized search over shuffled splits, scored by predicted match
// quality.
package matchmaking

import (
	"math/rand"
	"sort"
	"sync"
	"time"

	"scrim-rating-server/rating"
)

// Balancer searches for the fairest split of a roster into two teams.
type Balancer struct {
	env rating.Env

	mu  sync.Mutex // rnd is not safe for concurrent use
	rnd *rand.Rand
}

// New creates a Balancer. Pass a fixed rand.Source for deterministic
// searches in tests; nil seeds from the clock.
func New(env rating.Env, src rand.Source) *Balancer {
	if src == nil {
		src = rand.NewSource(time.Now().UnixNano())
	}
	return &Balancer{env: env, rnd: rand.New(src)}
}

// TeamSplit is a proposed pairing: both rosters (sorted ascending by mu for
// stable display), the predicted closeness of the match, and each side's
// win probability.
type TeamSplit struct {
	TeamA    []string `json:"team_a"`
	TeamB    []string `json:"team_b"`
	Quality  float64  `json:"quality"`
	WinProbA float64  `json:"win_prob_a"`
	WinProbB float64  `json:"win_prob_b"`
}

// MakeTeams samples poolSize random shuffles of the roster, splits each at
// the midpoint (an odd roster puts the extra player on team A), and keeps
// the split with the strictly highest quality seen. At least one
// arrangement is always sampled, so poolSize <= 1 degrades to a single
// sampled split. The returned quality is the maximum over the pool, never
// worse than any individual sampled split.
func (b *Balancer) MakeTeams(ratings map[string]rating.Rating, poolSize int) TeamSplit {
	ids := make([]string, 0, len(ratings))
	for id := range ratings {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	if len(ids) == 0 {
		return TeamSplit{TeamA: []string{}, TeamB: []string{}}
	}
	if poolSize < 1 {
		poolSize = 1
	}

	half := (len(ids) + 1) / 2
	var bestA, bestB []string
	best := -1.0

	b.mu.Lock()
	for i := 0; i < poolSize; i++ {
		b.rnd.Shuffle(len(ids), func(x, y int) {
			ids[x], ids[y] = ids[y], ids[x]
		})
		q := b.env.Quality(pick(ratings, ids[:half]), pick(ratings, ids[half:]))
		if q > best {
			best = q
			bestA = append([]string{}, ids[:half]...)
			bestB = append([]string{}, ids[half:]...)
		}
	}
	b.mu.Unlock()

	sortByMu(bestA, ratings)
	sortByMu(bestB, ratings)

	return TeamSplit{
		TeamA:    bestA,
		TeamB:    bestB,
		Quality:  best,
		WinProbA: b.env.WinProbability(pick(ratings, bestA), pick(ratings, bestB)),
		WinProbB: b.env.WinProbability(pick(ratings, bestB), pick(ratings, bestA)),
	}
}

func pick(ratings map[string]rating.Rating, ids []string) []rating.Rating {
	out := make([]rating.Rating, len(ids))
	for i, id := range ids {
		out[i] = ratings[id]
	}
	return out
}

func sortByMu(ids []string, ratings map[string]rating.Rating) {
	sort.Slice(ids, func(i, j int) bool {
		ri, rj := ratings[ids[i]], ratings[ids[j]]
		if ri.Mu != rj.Mu {
			return ri.Mu < rj.Mu
		}
		return ids[i] < ids[j]
	})
}
