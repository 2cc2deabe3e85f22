package storage

import (
	"context"
	"time"

	"scrim-rating-server/rating"
)

// MatchRecord is one completed match. Records are immutable once written;
// the only removal path is UndoLastMatch, which also restores the
// participants' RatingsBefore snapshots.
type MatchRecord struct {
	ID            string                   `json:"id"`
	TeamA         []string                 `json:"team_a"`
	TeamB         []string                 `json:"team_b"`
	ScoreA        int                      `json:"score_a"`
	ScoreB        int                      `json:"score_b"`
	PlayedAt      time.Time                `json:"played_at"`
	RatingsBefore map[string]rating.Rating `json:"ratings_before"`
	RatingsAfterA map[string]rating.Rating `json:"ratings_after_a"`
	RatingsAfterB map[string]rating.Rating `json:"ratings_after_b"`
}

// Involves reports whether the player took part in the match.
func (m *MatchRecord) Involves(playerID string) bool {
	for _, id := range m.TeamA {
		if id == playerID {
			return true
		}
	}
	for _, id := range m.TeamB {
		if id == playerID {
			return true
		}
	}
	return false
}

// WonBy reports whether the player was on the winning side. The second
// return is false when the player did not take part.
func (m *MatchRecord) WonBy(playerID string) (won, played bool) {
	for _, id := range m.TeamA {
		if id == playerID {
			return m.ScoreA > m.ScoreB, true
		}
	}
	for _, id := range m.TeamB {
		if id == playerID {
			return m.ScoreB > m.ScoreA, true
		}
	}
	return false, false
}

// Store abstracts persistence for ratings and match history. All state is
// scoped by guild; rating state is never shared across guilds. A guild
// that has never been written to reads as empty, not as an error.
// Implementations can be swapped for testing (Memory) or different
// backends (Postgres).
type Store interface {
	// Ratings. GetRating returns the raw stored value (no decay) and
	// whether it exists; auto-initialization is the caller's concern.
	GetRating(ctx context.Context, guildID, playerID string) (rating.Rating, bool, error)
	UpsertRating(ctx context.Context, guildID, playerID string, r rating.Rating) error
	ListRatings(ctx context.Context, guildID string) (map[string]rating.Rating, error)

	// History. ListMatches and ListMatchesFor return records
	// most-recent-first; an empty guild yields an empty slice.
	LastPlayedAt(ctx context.Context, guildID, playerID string) (time.Time, bool, error)
	ListMatches(ctx context.Context, guildID string) ([]MatchRecord, error)
	ListMatchesFor(ctx context.Context, guildID, playerID string) ([]MatchRecord, error)

	// RecordMatch appends the record and writes every participant's new
	// rating in one atomic step per guild.
	RecordMatch(ctx context.Context, guildID string, rec MatchRecord, newRatings map[string]rating.Rating) error

	// UndoLastMatch atomically pops the most recent record and restores
	// every participant's RatingsBefore snapshot. Returns
	// skillerrors.ErrNoHistory when the guild has no matches.
	UndoLastMatch(ctx context.Context, guildID string) (*MatchRecord, error)

	// Lifecycle
	DeleteGuild(ctx context.Context, guildID string) error
	Close()
}

// Compile-time interface checks.
var (
	_ Store = (*Postgres)(nil)
	_ Store = (*Memory)(nil)
)
