package storage

import (
	"context"
	"errors"
	"testing"
	"time"

	"scrim-rating-server/rating"
	"scrim-rating-server/skillerrors"
)

func record(id string, playedAt time.Time, teamA, teamB []string, scoreA, scoreB int, before map[string]rating.Rating) MatchRecord {
	return MatchRecord{
		ID:            id,
		TeamA:         teamA,
		TeamB:         teamB,
		ScoreA:        scoreA,
		ScoreB:        scoreB,
		PlayedAt:      playedAt,
		RatingsBefore: before,
		RatingsAfterA: map[string]rating.Rating{},
		RatingsAfterB: map[string]rating.Rating{},
	}
}

func TestMemoryRatingRoundTrip(t *testing.T) {
	ctx := context.Background()
	s := NewMemory()

	if _, ok, err := s.GetRating(ctx, "g", "alice"); err != nil || ok {
		t.Fatalf("missing rating: ok=%v err=%v", ok, err)
	}
	want := rating.Rating{Mu: 27.5, Sigma: 6.1}
	if err := s.UpsertRating(ctx, "g", "alice", want); err != nil {
		t.Fatalf("UpsertRating: %v", err)
	}
	got, ok, err := s.GetRating(ctx, "g", "alice")
	if err != nil || !ok || got != want {
		t.Errorf("GetRating = %v ok=%v err=%v, want %v", got, ok, err, want)
	}

	// Same player in another guild is a different key entirely.
	if _, ok, _ := s.GetRating(ctx, "other", "alice"); ok {
		t.Error("rating leaked across guilds")
	}
}

func TestMemoryMatchOrderAndFilter(t *testing.T) {
	ctx := context.Background()
	s := NewMemory()
	t0 := time.Now()

	recs := []MatchRecord{
		record("m1", t0, []string{"a"}, []string{"b"}, 13, 2, map[string]rating.Rating{}),
		record("m2", t0.Add(time.Minute), []string{"a"}, []string{"c"}, 5, 13, map[string]rating.Rating{}),
		record("m3", t0.Add(2*time.Minute), []string{"b"}, []string{"c"}, 13, 11, map[string]rating.Rating{}),
	}
	for _, rec := range recs {
		if err := s.RecordMatch(ctx, "g", rec, nil); err != nil {
			t.Fatalf("RecordMatch: %v", err)
		}
	}

	all, err := s.ListMatches(ctx, "g")
	if err != nil {
		t.Fatalf("ListMatches: %v", err)
	}
	if len(all) != 3 || all[0].ID != "m3" || all[2].ID != "m1" {
		t.Errorf("want most-recent-first m3..m1, got %v", ids(all))
	}

	forA, err := s.ListMatchesFor(ctx, "g", "a")
	if err != nil {
		t.Fatalf("ListMatchesFor: %v", err)
	}
	if len(forA) != 2 || forA[0].ID != "m2" || forA[1].ID != "m1" {
		t.Errorf("filter by player: got %v", ids(forA))
	}

	last, ok, err := s.LastPlayedAt(ctx, "g", "a")
	if err != nil || !ok || !last.Equal(t0.Add(time.Minute)) {
		t.Errorf("LastPlayedAt(a) = %v ok=%v err=%v", last, ok, err)
	}
	if _, ok, _ := s.LastPlayedAt(ctx, "g", "nobody"); ok {
		t.Error("LastPlayedAt for unseen player should report no match")
	}
}

func TestMemoryUndoRestoresSnapshots(t *testing.T) {
	ctx := context.Background()
	s := NewMemory()

	before := map[string]rating.Rating{
		"a": {Mu: 25, Sigma: 8},
		"b": {Mu: 25, Sigma: 8},
	}
	s.UpsertRating(ctx, "g", "a", rating.Rating{Mu: 30, Sigma: 7})
	s.UpsertRating(ctx, "g", "b", rating.Rating{Mu: 20, Sigma: 7})
	rec := record("m1", time.Now(), []string{"a"}, []string{"b"}, 13, 2, before)
	if err := s.RecordMatch(ctx, "g", rec, map[string]rating.Rating{
		"a": {Mu: 31, Sigma: 6},
		"b": {Mu: 19, Sigma: 6},
	}); err != nil {
		t.Fatalf("RecordMatch: %v", err)
	}

	popped, err := s.UndoLastMatch(ctx, "g")
	if err != nil {
		t.Fatalf("UndoLastMatch: %v", err)
	}
	if popped.ID != "m1" {
		t.Errorf("popped record = %s, want m1", popped.ID)
	}
	for id, want := range before {
		got, _, _ := s.GetRating(ctx, "g", id)
		if got != want {
			t.Errorf("rating %s = %v, want restored %v", id, got, want)
		}
	}
	if remaining, _ := s.ListMatches(ctx, "g"); len(remaining) != 0 {
		t.Errorf("undone record still listed: %v", ids(remaining))
	}

	if _, err := s.UndoLastMatch(ctx, "g"); !errors.Is(err, skillerrors.ErrNoHistory) {
		t.Errorf("second undo err = %v, want ErrNoHistory", err)
	}
}

func TestMemoryDeleteGuild(t *testing.T) {
	ctx := context.Background()
	s := NewMemory()
	s.UpsertRating(ctx, "g", "a", rating.Rating{Mu: 30, Sigma: 5})
	s.RecordMatch(ctx, "g", record("m1", time.Now(), []string{"a"}, []string{"b"}, 2, 1, map[string]rating.Rating{}), nil)
	s.UpsertRating(ctx, "keep", "a", rating.Rating{Mu: 11, Sigma: 5})

	if err := s.DeleteGuild(ctx, "g"); err != nil {
		t.Fatalf("DeleteGuild: %v", err)
	}
	if ratings, _ := s.ListRatings(ctx, "g"); len(ratings) != 0 {
		t.Errorf("ratings survived delete: %v", ratings)
	}
	if matches, _ := s.ListMatches(ctx, "g"); len(matches) != 0 {
		t.Errorf("history survived delete: %v", ids(matches))
	}
	if _, ok, _ := s.GetRating(ctx, "keep", "a"); !ok {
		t.Error("delete wiped an unrelated guild")
	}
}

func TestMemoryRecordsAreIsolatedCopies(t *testing.T) {
	ctx := context.Background()
	s := NewMemory()
	before := map[string]rating.Rating{"a": {Mu: 25, Sigma: 8}}
	rec := record("m1", time.Now(), []string{"a"}, []string{"b"}, 2, 1, before)
	s.RecordMatch(ctx, "g", rec, nil)

	// Mutating what the caller handed in must not affect stored state.
	before["a"] = rating.Rating{Mu: 0, Sigma: 0}
	rec.TeamA[0] = "tampered"

	stored, _ := s.ListMatches(ctx, "g")
	if stored[0].RatingsBefore["a"].Mu != 25 || stored[0].TeamA[0] != "a" {
		t.Error("stored record shares memory with caller data")
	}
}

func ids(recs []MatchRecord) []string {
	out := make([]string, len(recs))
	for i, r := range recs {
		out[i] = r.ID
	}
	return out
}
