// Package skill is the core service facade: it owns the read path (lazy
// uncertainty decay, auto-initialized defaults), the record/undo write path
// with its per-guild exclusion, team balancing, leaderboards and ranks.
package skill

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand"
	"sync"
	"time"

	"github.com/google/uuid"

	"scrim-rating-server/config"
	"scrim-rating-server/matchmaking"
	"scrim-rating-server/rating"
	"scrim-rating-server/skillerrors"
	"scrim-rating-server/storage"
)

// Service wires the rating environment, decay model, balancer and store
// into the operations the front-end calls. All operations are synchronous;
// the only blocking is storage I/O.
type Service struct {
	store    storage.Store
	env      rating.Env
	decay    DecayModel
	balancer *matchmaking.Balancer

	factor    float64 // margin-of-victory weight
	exposureK float64
	rankTol   float64
	poolSize  int

	now func() time.Time

	mu         sync.Mutex
	guildLocks map[string]*sync.Mutex
}

// New creates a Service on the given store with the configured constants.
func New(store storage.Store, cfg *config.Config) *Service {
	return NewWithSource(store, cfg, nil)
}

// NewWithSource is New with an explicit random source for the team
// balancer, for deterministic tests.
func NewWithSource(store storage.Store, cfg *config.Config, src rand.Source) *Service {
	env := cfg.Env()
	return &Service{
		store:      store,
		env:        env,
		decay:      DecayModel{K: cfg.Decay.K, Scale: cfg.Decay.ScaleSeconds},
		balancer:   matchmaking.New(env, src),
		factor:     cfg.Rating.MarginFactor,
		exposureK:  cfg.Rating.ExposureK,
		rankTol:    cfg.RankTolerance,
		poolSize:   cfg.TeamPoolSize,
		now:        time.Now,
		guildLocks: make(map[string]*sync.Mutex),
	}
}

// guildLock returns the mutex serializing multi-step operations on one
// guild. Operations on different guilds run in parallel.
func (s *Service) guildLock(guildID string) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.guildLocks[guildID]
	if !ok {
		l = &sync.Mutex{}
		s.guildLocks[guildID] = l
	}
	return l
}

// getRating reads one rating at the given instant: a previously-unseen
// player gets the default persisted immediately (so leaderboards can
// enumerate known players), and idle-time decay is applied lazily, capped
// at the default sigma. Decayed sigma is never written back.
func (s *Service) getRating(ctx context.Context, guildID, playerID string, now time.Time) (rating.Rating, error) {
	r, ok, err := s.store.GetRating(ctx, guildID, playerID)
	if err != nil {
		return rating.Rating{}, err
	}
	if !ok {
		r = s.env.NewRating()
		if err := s.store.UpsertRating(ctx, guildID, playerID, r); err != nil {
			return rating.Rating{}, err
		}
		return r, nil
	}
	last, played, err := s.store.LastPlayedAt(ctx, guildID, playerID)
	if err != nil {
		return rating.Rating{}, err
	}
	if played {
		r.Sigma += s.decay.Delta(now.Sub(last))
		if r.Sigma > s.env.Sigma {
			r.Sigma = s.env.Sigma
		}
	}
	return r, nil
}

func (s *Service) getRatings(ctx context.Context, guildID string, playerIDs []string, now time.Time) (map[string]rating.Rating, error) {
	out := make(map[string]rating.Rating, len(playerIDs))
	for _, id := range playerIDs {
		r, err := s.getRating(ctx, guildID, id, now)
		if err != nil {
			return nil, err
		}
		out[id] = r
	}
	return out, nil
}

// GetRating returns the player's current rating with decay applied,
// initializing the default if the player is unknown.
func (s *Service) GetRating(ctx context.Context, playerID, guildID string) (rating.Rating, error) {
	return s.getRating(ctx, guildID, playerID, s.now())
}

// GetRatings returns current ratings for several players at one instant.
func (s *Service) GetRatings(ctx context.Context, playerIDs []string, guildID string) (map[string]rating.Rating, error) {
	return s.getRatings(ctx, guildID, playerIDs, s.now())
}

// SetRating overwrites the player's stored rating. Used for administrative
// imports; normal updates go through RecordResult.
func (s *Service) SetRating(ctx context.Context, playerID string, r rating.Rating, guildID string) error {
	return s.store.UpsertRating(ctx, guildID, playerID, r)
}

// Result reports a recorded match: the appended record plus both teams'
// ratings immediately before and after the update.
type Result struct {
	Record storage.MatchRecord      `json:"record"`
	OldA   map[string]rating.Rating `json:"old_a"`
	OldB   map[string]rating.Rating `json:"old_b"`
	NewA   map[string]rating.Rating `json:"new_a"`
	NewB   map[string]rating.Rating `json:"new_b"`
}

// RecordResult updates ratings for a finished match and appends a history
// record, atomically per guild. Scores are validated before anything is
// read or written; a tie or a non-positive winning score is rejected with
// ErrInvalidScore.
func (s *Service) RecordResult(ctx context.Context, teamA, teamB []string, scoreA, scoreB int, guildID string) (*Result, error) {
	if len(teamA) == 0 || len(teamB) == 0 {
		return nil, fmt.Errorf("both teams need players: %d vs %d", len(teamA), len(teamB))
	}
	if scoreA < 0 || scoreB < 0 || scoreA == scoreB {
		return nil, fmt.Errorf("%w: %d-%d", skillerrors.ErrInvalidScore, scoreA, scoreB)
	}

	lock := s.guildLock(guildID)
	lock.Lock()
	defer lock.Unlock()

	now := s.now()
	oldA, err := s.getRatings(ctx, guildID, teamA, now)
	if err != nil {
		return nil, err
	}
	oldB, err := s.getRatings(ctx, guildID, teamB, now)
	if err != nil {
		return nil, err
	}

	var newA, newB map[string]rating.Rating
	if scoreA > scoreB {
		newA, newB, err = s.env.Rate(oldA, oldB, scoreA, scoreB, s.factor)
	} else {
		newB, newA, err = s.env.Rate(oldB, oldA, scoreB, scoreA, s.factor)
	}
	if err != nil {
		return nil, err
	}

	before := make(map[string]rating.Rating, len(oldA)+len(oldB))
	after := make(map[string]rating.Rating, len(newA)+len(newB))
	for id, r := range oldA {
		before[id] = r
	}
	for id, r := range oldB {
		before[id] = r
	}
	for id, r := range newA {
		after[id] = r
	}
	for id, r := range newB {
		after[id] = r
	}

	rec := storage.MatchRecord{
		ID:            uuid.NewString(),
		TeamA:         append([]string{}, teamA...),
		TeamB:         append([]string{}, teamB...),
		ScoreA:        scoreA,
		ScoreB:        scoreB,
		PlayedAt:      now,
		RatingsBefore: before,
		RatingsAfterA: newA,
		RatingsAfterB: newB,
	}
	if err := s.store.RecordMatch(ctx, guildID, rec, after); err != nil {
		return nil, err
	}
	slog.Info("result recorded", "tag", "skill", "guild", guildID, "match", rec.ID, "score", fmt.Sprintf("%d-%d", scoreA, scoreB))
	return &Result{Record: rec, OldA: oldA, OldB: oldB, NewA: newA, NewB: newB}, nil
}

// MakeTeams balances the roster into two teams. poolSize <= 0 falls back
// to the configured default pool size.
func (s *Service) MakeTeams(ctx context.Context, playerIDs []string, guildID string, poolSize int) (*matchmaking.TeamSplit, error) {
	if poolSize <= 0 {
		poolSize = s.poolSize
	}
	ratings, err := s.getRatings(ctx, guildID, playerIDs, s.now())
	if err != nil {
		return nil, err
	}
	split := s.balancer.MakeTeams(ratings, poolSize)
	return &split, nil
}

// UndoLastMatch removes the guild's most recent match and restores every
// participant's exact pre-match rating. Only one step back is recorded, so
// repeated calls peel records one at a time. Returns ErrNoHistory when
// there is nothing to undo.
func (s *Service) UndoLastMatch(ctx context.Context, guildID string) (*storage.MatchRecord, error) {
	lock := s.guildLock(guildID)
	lock.Lock()
	defer lock.Unlock()

	rec, err := s.store.UndoLastMatch(ctx, guildID)
	if err != nil {
		return nil, err
	}
	slog.Info("match undone", "tag", "skill", "guild", guildID, "match", rec.ID)
	return rec, nil
}

// History returns the guild's match records, most recent first, optionally
// filtered to the given player. No history is an empty slice, not an
// error.
func (s *Service) History(ctx context.Context, guildID, playerID string) ([]storage.MatchRecord, error) {
	if playerID == "" {
		return s.store.ListMatches(ctx, guildID)
	}
	return s.store.ListMatchesFor(ctx, guildID, playerID)
}

// WinLoss counts the player's wins and losses from the recorded history.
func (s *Service) WinLoss(ctx context.Context, playerID, guildID string) (wins, losses int, err error) {
	matches, err := s.store.ListMatchesFor(ctx, guildID, playerID)
	if err != nil {
		return 0, 0, err
	}
	for i := range matches {
		if won, played := matches[i].WonBy(playerID); played {
			if won {
				wins++
			} else {
				losses++
			}
		}
	}
	return wins, losses, nil
}

// PastRatings returns the player's historical mu values oldest-first, with
// the current mu appended last. With pad, every guild match contributes a
// point: matches the player sat out repeat the previous value (or the
// default mu before the player's first appearance), so several players'
// series line up for charting.
func (s *Service) PastRatings(ctx context.Context, playerID, guildID string, pad bool) ([]float64, error) {
	var matches []storage.MatchRecord
	var err error
	if pad {
		matches, err = s.store.ListMatches(ctx, guildID)
	} else {
		matches, err = s.store.ListMatchesFor(ctx, guildID, playerID)
	}
	if err != nil {
		return nil, err
	}

	out := []float64{}
	// Records arrive most-recent-first; walk backwards for chronology.
	for i := len(matches) - 1; i >= 0; i-- {
		if r, ok := matches[i].RatingsBefore[playerID]; ok {
			out = append(out, r.Mu)
		} else if len(out) > 0 {
			out = append(out, out[len(out)-1])
		} else {
			out = append(out, s.env.Mu)
		}
	}
	current, err := s.GetRating(ctx, playerID, guildID)
	if err != nil {
		return nil, err
	}
	return append(out, current.Mu), nil
}

// DeleteGuild removes all rating and history state for the guild.
func (s *Service) DeleteGuild(ctx context.Context, guildID string) error {
	lock := s.guildLock(guildID)
	lock.Lock()
	defer lock.Unlock()
	if err := s.store.DeleteGuild(ctx, guildID); err != nil {
		return err
	}
	slog.Info("guild deleted", "tag", "skill", "guild", guildID)
	return nil
}

// GuildDump is the raw stored state of one guild, for debugging.
type GuildDump struct {
	Ratings map[string]rating.Rating `json:"ratings"`
	History []storage.MatchRecord    `json:"history"`
}

// Dump returns the guild's raw stored state (no decay applied).
func (s *Service) Dump(ctx context.Context, guildID string) (*GuildDump, error) {
	ratings, err := s.store.ListRatings(ctx, guildID)
	if err != nil {
		return nil, err
	}
	history, err := s.store.ListMatches(ctx, guildID)
	if err != nil {
		return nil, err
	}
	return &GuildDump{Ratings: ratings, History: history}, nil
}
