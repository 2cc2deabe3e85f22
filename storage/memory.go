package storage

import (
	"context"
	"sync"
	"time"

	"scrim-rating-server/rating"
	"scrim-rating-server/skillerrors"
)

// Memory is an in-process Store used by tests and when no DATABASE_URL is
// configured. It keeps the same shape as the Postgres schema: a per-guild
// ratings map and an ordered (oldest-first) history list.
type Memory struct {
	mu     sync.Mutex
	guilds map[string]*memGuild
}

type memGuild struct {
	ratings map[string]rating.Rating
	history []MatchRecord
}

// NewMemory returns an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{guilds: make(map[string]*memGuild)}
}

// Close is a no-op for the in-memory store.
func (s *Memory) Close() {}

func (s *Memory) guild(guildID string) *memGuild {
	g, ok := s.guilds[guildID]
	if !ok {
		g = &memGuild{ratings: make(map[string]rating.Rating)}
		s.guilds[guildID] = g
	}
	return g
}

// GetRating returns the stored rating for (guild, player), if any.
func (s *Memory) GetRating(_ context.Context, guildID, playerID string) (rating.Rating, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.guild(guildID).ratings[playerID]
	return r, ok, nil
}

// UpsertRating writes the rating for (guild, player).
func (s *Memory) UpsertRating(_ context.Context, guildID, playerID string, r rating.Rating) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.guild(guildID).ratings[playerID] = r
	return nil
}

// ListRatings returns a copy of all stored ratings for the guild.
func (s *Memory) ListRatings(_ context.Context, guildID string) (map[string]rating.Rating, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	g := s.guild(guildID)
	out := make(map[string]rating.Rating, len(g.ratings))
	for id, r := range g.ratings {
		out[id] = r
	}
	return out, nil
}

// LastPlayedAt returns the timestamp of the player's most recent match.
func (s *Memory) LastPlayedAt(_ context.Context, guildID, playerID string) (time.Time, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	g := s.guild(guildID)
	for i := len(g.history) - 1; i >= 0; i-- {
		if g.history[i].Involves(playerID) {
			return g.history[i].PlayedAt, true, nil
		}
	}
	return time.Time{}, false, nil
}

// RecordMatch appends the record and writes the new ratings. The single
// store mutex makes the two steps atomic with respect to other callers.
func (s *Memory) RecordMatch(_ context.Context, guildID string, rec MatchRecord, newRatings map[string]rating.Rating) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	g := s.guild(guildID)
	g.history = append(g.history, cloneRecord(rec))
	for id, r := range newRatings {
		g.ratings[id] = r
	}
	return nil
}

// ListMatches returns all the guild's matches, most recent first.
func (s *Memory) ListMatches(_ context.Context, guildID string) ([]MatchRecord, error) {
	return s.listMatches(guildID, "")
}

// ListMatchesFor returns the guild's matches the player took part in, most
// recent first.
func (s *Memory) ListMatchesFor(_ context.Context, guildID, playerID string) ([]MatchRecord, error) {
	return s.listMatches(guildID, playerID)
}

func (s *Memory) listMatches(guildID, playerID string) ([]MatchRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	g := s.guild(guildID)
	out := []MatchRecord{}
	for i := len(g.history) - 1; i >= 0; i-- {
		if playerID != "" && !g.history[i].Involves(playerID) {
			continue
		}
		out = append(out, cloneRecord(g.history[i]))
	}
	return out, nil
}

// UndoLastMatch pops the most recent record and restores the participants'
// before-snapshots.
func (s *Memory) UndoLastMatch(_ context.Context, guildID string) (*MatchRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	g := s.guild(guildID)
	if len(g.history) == 0 {
		return nil, skillerrors.ErrNoHistory
	}
	rec := g.history[len(g.history)-1]
	g.history = g.history[:len(g.history)-1]
	for id, prior := range rec.RatingsBefore {
		g.ratings[id] = prior
	}
	out := cloneRecord(rec)
	return &out, nil
}

// DeleteGuild removes all state for the guild.
func (s *Memory) DeleteGuild(_ context.Context, guildID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.guilds, guildID)
	return nil
}

func cloneRecord(rec MatchRecord) MatchRecord {
	out := rec
	out.TeamA = append([]string{}, rec.TeamA...)
	out.TeamB = append([]string{}, rec.TeamB...)
	out.RatingsBefore = cloneRatings(rec.RatingsBefore)
	out.RatingsAfterA = cloneRatings(rec.RatingsAfterA)
	out.RatingsAfterB = cloneRatings(rec.RatingsAfterB)
	return out
}

func cloneRatings(m map[string]rating.Rating) map[string]rating.Rating {
	out := make(map[string]rating.Rating, len(m))
	for id, r := range m {
		out[id] = r
	}
	return out
}
