package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"scrim-rating-server/rating"
	"scrim-rating-server/skillerrors"
)

const createTableSQL = `
CREATE TABLE IF NOT EXISTS player_ratings (
	guild_id   TEXT NOT NULL,
	player_id  TEXT NOT NULL,
	mu         DOUBLE PRECISION NOT NULL,
	sigma      DOUBLE PRECISION NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	PRIMARY KEY (guild_id, player_id)
);
CREATE TABLE IF NOT EXISTS match_history (
	id              UUID PRIMARY KEY,
	guild_id        TEXT NOT NULL,
	team_a          TEXT[] NOT NULL,
	team_b          TEXT[] NOT NULL,
	score_a         INT NOT NULL,
	score_b         INT NOT NULL,
	played_at       TIMESTAMPTZ NOT NULL,
	ratings_before  JSONB NOT NULL,
	ratings_after_a JSONB NOT NULL,
	ratings_after_b JSONB NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_match_history_guild ON match_history(guild_id, played_at DESC);
CREATE INDEX IF NOT EXISTS idx_match_history_players ON match_history USING GIN ((team_a || team_b));
`

// Postgres persists ratings and match history in Postgres. Multi-step
// writes (RecordMatch, UndoLastMatch) run in one transaction under a
// per-guild advisory lock, so concurrent callers on the same guild
// serialize and a crash can never leave ratings inconsistent with history.
type Postgres struct {
	pool *pgxpool.Pool
}

// NewPostgres connects to Postgres and ensures the schema exists.
func NewPostgres(ctx context.Context, databaseURL string) (*Postgres, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, &skillerrors.StorageError{Op: "connect", Err: err}
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, &skillerrors.StorageError{Op: "ping", Err: err}
	}
	if _, err := pool.Exec(ctx, createTableSQL); err != nil {
		pool.Close()
		return nil, &skillerrors.StorageError{Op: "migrate", Err: err}
	}
	slog.Info("connected to Postgres", "tag", "storage")
	return &Postgres{pool: pool}, nil
}

// Close closes the connection pool.
func (s *Postgres) Close() {
	if s != nil && s.pool != nil {
		s.pool.Close()
	}
}

// GetRating returns the stored rating for (guild, player), if any.
func (s *Postgres) GetRating(ctx context.Context, guildID, playerID string) (rating.Rating, bool, error) {
	var r rating.Rating
	err := s.pool.QueryRow(ctx,
		`SELECT mu, sigma FROM player_ratings WHERE guild_id = $1 AND player_id = $2`,
		guildID, playerID).Scan(&r.Mu, &r.Sigma)
	if errors.Is(err, pgx.ErrNoRows) {
		return rating.Rating{}, false, nil
	}
	if err != nil {
		return rating.Rating{}, false, &skillerrors.StorageError{Op: "get rating", Err: err}
	}
	return r, true, nil
}

// UpsertRating writes the rating for (guild, player), creating the row if
// needed.
func (s *Postgres) UpsertRating(ctx context.Context, guildID, playerID string, r rating.Rating) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO player_ratings (guild_id, player_id, mu, sigma)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (guild_id, player_id) DO UPDATE
		  SET mu = EXCLUDED.mu, sigma = EXCLUDED.sigma, updated_at = now()`,
		guildID, playerID, r.Mu, r.Sigma)
	if err != nil {
		return &skillerrors.StorageError{Op: "upsert rating", Err: err}
	}
	return nil
}

// ListRatings returns all stored ratings for the guild.
func (s *Postgres) ListRatings(ctx context.Context, guildID string) (map[string]rating.Rating, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT player_id, mu, sigma FROM player_ratings WHERE guild_id = $1`, guildID)
	if err != nil {
		return nil, &skillerrors.StorageError{Op: "list ratings", Err: err}
	}
	defer rows.Close()
	out := make(map[string]rating.Rating)
	for rows.Next() {
		var id string
		var r rating.Rating
		if err := rows.Scan(&id, &r.Mu, &r.Sigma); err != nil {
			return nil, &skillerrors.StorageError{Op: "list ratings", Err: err}
		}
		out[id] = r
	}
	if err := rows.Err(); err != nil {
		return nil, &skillerrors.StorageError{Op: "list ratings", Err: err}
	}
	return out, nil
}

// LastPlayedAt returns the timestamp of the player's most recent match in
// the guild, if any.
func (s *Postgres) LastPlayedAt(ctx context.Context, guildID, playerID string) (time.Time, bool, error) {
	var t *time.Time
	err := s.pool.QueryRow(ctx, `
		SELECT max(played_at) FROM match_history
		WHERE guild_id = $1 AND $2 = ANY(team_a || team_b)`,
		guildID, playerID).Scan(&t)
	if err != nil {
		return time.Time{}, false, &skillerrors.StorageError{Op: "last played", Err: err}
	}
	if t == nil {
		return time.Time{}, false, nil
	}
	return *t, true, nil
}

// RecordMatch appends the record and writes every participant's new rating
// in one transaction under the guild's advisory lock.
func (s *Postgres) RecordMatch(ctx context.Context, guildID string, rec MatchRecord, newRatings map[string]rating.Rating) error {
	before, err := json.Marshal(rec.RatingsBefore)
	if err != nil {
		return &skillerrors.StorageError{Op: "record match", Err: err}
	}
	afterA, err := json.Marshal(rec.RatingsAfterA)
	if err != nil {
		return &skillerrors.StorageError{Op: "record match", Err: err}
	}
	afterB, err := json.Marshal(rec.RatingsAfterB)
	if err != nil {
		return &skillerrors.StorageError{Op: "record match", Err: err}
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return &skillerrors.StorageError{Op: "record match", Err: err}
	}
	defer tx.Rollback(ctx)

	if err := lockGuild(ctx, tx, guildID); err != nil {
		return err
	}
	if _, err := tx.Exec(ctx, `
		INSERT INTO match_history (id, guild_id, team_a, team_b, score_a, score_b, played_at, ratings_before, ratings_after_a, ratings_after_b)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		rec.ID, guildID, rec.TeamA, rec.TeamB, rec.ScoreA, rec.ScoreB, rec.PlayedAt, before, afterA, afterB); err != nil {
		return &skillerrors.StorageError{Op: "record match", Err: err}
	}
	for id, r := range newRatings {
		if _, err := tx.Exec(ctx, `
			INSERT INTO player_ratings (guild_id, player_id, mu, sigma)
			VALUES ($1, $2, $3, $4)
			ON CONFLICT (guild_id, player_id) DO UPDATE
			  SET mu = EXCLUDED.mu, sigma = EXCLUDED.sigma, updated_at = now()`,
			guildID, id, r.Mu, r.Sigma); err != nil {
			return &skillerrors.StorageError{Op: "record match", Err: err}
		}
	}
	if err := tx.Commit(ctx); err != nil {
		return &skillerrors.StorageError{Op: "record match", Err: err}
	}
	return nil
}

// ListMatches returns all the guild's matches, most recent first.
func (s *Postgres) ListMatches(ctx context.Context, guildID string) ([]MatchRecord, error) {
	return s.listMatches(ctx, guildID, "")
}

// ListMatchesFor returns the guild's matches the player took part in, most
// recent first.
func (s *Postgres) ListMatchesFor(ctx context.Context, guildID, playerID string) ([]MatchRecord, error) {
	return s.listMatches(ctx, guildID, playerID)
}

func (s *Postgres) listMatches(ctx context.Context, guildID, playerID string) ([]MatchRecord, error) {
	query := `
		SELECT id, team_a, team_b, score_a, score_b, played_at, ratings_before, ratings_after_a, ratings_after_b
		FROM match_history
		WHERE guild_id = $1`
	args := []any{guildID}
	if playerID != "" {
		query += ` AND $2 = ANY(team_a || team_b)`
		args = append(args, playerID)
	}
	query += ` ORDER BY played_at DESC, id DESC`

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, &skillerrors.StorageError{Op: "list matches", Err: err}
	}
	defer rows.Close()

	out := []MatchRecord{}
	for rows.Next() {
		rec, err := scanMatch(rows)
		if err != nil {
			return nil, &skillerrors.StorageError{Op: "list matches", Err: err}
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, &skillerrors.StorageError{Op: "list matches", Err: err}
	}
	return out, nil
}

// UndoLastMatch pops the guild's most recent record and restores every
// participant's before-snapshot, in one transaction under the guild's
// advisory lock.
func (s *Postgres) UndoLastMatch(ctx context.Context, guildID string) (*MatchRecord, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, &skillerrors.StorageError{Op: "undo match", Err: err}
	}
	defer tx.Rollback(ctx)

	if err := lockGuild(ctx, tx, guildID); err != nil {
		return nil, err
	}

	row := tx.QueryRow(ctx, `
		SELECT id, team_a, team_b, score_a, score_b, played_at, ratings_before, ratings_after_a, ratings_after_b
		FROM match_history
		WHERE guild_id = $1
		ORDER BY played_at DESC, id DESC
		LIMIT 1`, guildID)
	rec, err := scanMatch(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, skillerrors.ErrNoHistory
	}
	if err != nil {
		return nil, &skillerrors.StorageError{Op: "undo match", Err: err}
	}

	if _, err := tx.Exec(ctx, `DELETE FROM match_history WHERE id = $1`, rec.ID); err != nil {
		return nil, &skillerrors.StorageError{Op: "undo match", Err: err}
	}
	for _, id := range append(append([]string{}, rec.TeamA...), rec.TeamB...) {
		prior, ok := rec.RatingsBefore[id]
		if !ok {
			return nil, &skillerrors.StorageError{Op: "undo match", Err: fmt.Errorf("record %s has no before-snapshot for %s", rec.ID, id)}
		}
		if _, err := tx.Exec(ctx, `
			INSERT INTO player_ratings (guild_id, player_id, mu, sigma)
			VALUES ($1, $2, $3, $4)
			ON CONFLICT (guild_id, player_id) DO UPDATE
			  SET mu = EXCLUDED.mu, sigma = EXCLUDED.sigma, updated_at = now()`,
			guildID, id, prior.Mu, prior.Sigma); err != nil {
			return nil, &skillerrors.StorageError{Op: "undo match", Err: err}
		}
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, &skillerrors.StorageError{Op: "undo match", Err: err}
	}
	return &rec, nil
}

// DeleteGuild removes all rating and history state for the guild.
func (s *Postgres) DeleteGuild(ctx context.Context, guildID string) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return &skillerrors.StorageError{Op: "delete guild", Err: err}
	}
	defer tx.Rollback(ctx)

	if err := lockGuild(ctx, tx, guildID); err != nil {
		return err
	}
	if _, err := tx.Exec(ctx, `DELETE FROM match_history WHERE guild_id = $1`, guildID); err != nil {
		return &skillerrors.StorageError{Op: "delete guild", Err: err}
	}
	if _, err := tx.Exec(ctx, `DELETE FROM player_ratings WHERE guild_id = $1`, guildID); err != nil {
		return &skillerrors.StorageError{Op: "delete guild", Err: err}
	}
	if err := tx.Commit(ctx); err != nil {
		return &skillerrors.StorageError{Op: "delete guild", Err: err}
	}
	return nil
}

// lockGuild takes the guild's transaction-scoped advisory lock, released
// automatically at commit or rollback.
func lockGuild(ctx context.Context, tx pgx.Tx, guildID string) error {
	if _, err := tx.Exec(ctx, `SELECT pg_advisory_xact_lock(hashtext($1))`, guildID); err != nil {
		return &skillerrors.StorageError{Op: "lock guild", Err: err}
	}
	return nil
}

func scanMatch(row pgx.Row) (MatchRecord, error) {
	var rec MatchRecord
	var before, afterA, afterB []byte
	var playedAt time.Time
	if err := row.Scan(&rec.ID, &rec.TeamA, &rec.TeamB, &rec.ScoreA, &rec.ScoreB, &playedAt, &before, &afterA, &afterB); err != nil {
		return MatchRecord{}, err
	}
	rec.PlayedAt = playedAt
	if err := json.Unmarshal(before, &rec.RatingsBefore); err != nil {
		return MatchRecord{}, err
	}
	if err := json.Unmarshal(afterA, &rec.RatingsAfterA); err != nil {
		return MatchRecord{}, err
	}
	if err := json.Unmarshal(afterB, &rec.RatingsAfterB); err != nil {
		return MatchRecord{}, err
	}
	return rec, nil
}
