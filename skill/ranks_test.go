package skill

import (
	"context"
	"errors"
	"testing"

	"scrim-rating-server/rating"
	"scrim-rating-server/skillerrors"
)

func TestParseMetric(t *testing.T) {
	if m, err := ParseMetric(""); err != nil || m != MetricExposure {
		t.Errorf(`ParseMetric("") = (%v, %v), want exposure`, m, err)
	}
	if m, err := ParseMetric("mean"); err != nil || m != MetricMean {
		t.Errorf(`ParseMetric("mean") = (%v, %v)`, m, err)
	}
	if _, err := ParseMetric("elo"); !errors.Is(err, skillerrors.ErrUnknownMetric) {
		t.Errorf(`ParseMetric("elo") err = %v, want ErrUnknownMetric`, err)
	}
}

func TestLeaderboardExcludesDefaults(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()

	if _, err := svc.RecordResult(ctx, []string{"a"}, []string{"b"}, 13, 2, "g"); err != nil {
		t.Fatalf("RecordResult: %v", err)
	}
	// Reading a fresh player persists the default but must not surface
	// them on the board.
	if _, err := svc.GetRating(ctx, "lurker", "g"); err != nil {
		t.Fatalf("GetRating: %v", err)
	}

	board, err := svc.Leaderboard(ctx, "g", MetricExposure)
	if err != nil {
		t.Fatalf("Leaderboard: %v", err)
	}
	if len(board) != 2 {
		t.Fatalf("board size = %d, want 2 (lurker excluded)", len(board))
	}
	if board[0].PlayerID != "a" || board[1].PlayerID != "b" {
		t.Errorf("order = [%s %s], want winner first", board[0].PlayerID, board[1].PlayerID)
	}
}

func TestLeaderboardMeanOrder(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()

	set := func(id string, mu, sigma float64) {
		if err := svc.SetRating(ctx, id, rating.Rating{Mu: mu, Sigma: sigma}, "g"); err != nil {
			t.Fatalf("SetRating(%s): %v", id, err)
		}
	}
	set("a", 30, 5)
	set("b", 30, 3) // same mu, lower sigma ranks higher
	set("c", 32, 7)

	board, err := svc.Leaderboard(ctx, "g", MetricMean)
	if err != nil {
		t.Fatalf("Leaderboard: %v", err)
	}
	got := []string{board[0].PlayerID, board[1].PlayerID, board[2].PlayerID}
	want := []string{"c", "b", "a"}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("mean order = %v, want %v", got, want)
		}
	}
}

func TestLeaderboardRejectsUnknownMetric(t *testing.T) {
	svc, _, _ := newTestService(t)
	if _, err := svc.Leaderboard(context.Background(), "g", Metric("elo")); !errors.Is(err, skillerrors.ErrUnknownMetric) {
		t.Errorf("err = %v, want ErrUnknownMetric", err)
	}
}

func TestRanksCompetitionStyle(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()

	set := func(id string, mu float64) {
		if err := svc.SetRating(ctx, id, rating.Rating{Mu: mu, Sigma: 2}, "g"); err != nil {
			t.Fatalf("SetRating(%s): %v", id, err)
		}
	}
	set("a", 40)
	set("b", 30)
	set("c", 30)
	set("d", 20)

	ranks, err := svc.Ranks(ctx, []string{"a", "b", "c", "d"}, "g", MetricMean)
	if err != nil {
		t.Fatalf("Ranks: %v", err)
	}
	want := map[string]int{"a": 1, "b": 2, "c": 2, "d": 4}
	for id, r := range want {
		if ranks[id] != r {
			t.Errorf("rank[%s] = %d, want %d (full: %v)", id, ranks[id], r, ranks)
		}
	}
}

func TestRanksToleranceGroupsNearTies(t *testing.T) {
	svc, _, _ := newTestService(t)
	svc.rankTol = 1e-6
	ctx := context.Background()

	set := func(id string, mu float64) {
		if err := svc.SetRating(ctx, id, rating.Rating{Mu: mu, Sigma: 2}, "g"); err != nil {
			t.Fatalf("SetRating(%s): %v", id, err)
		}
	}
	set("a", 30)
	set("b", 30+1e-9) // within relative tolerance of a
	set("c", 25)

	ranks, err := svc.Ranks(ctx, []string{"a", "b", "c"}, "g", MetricMean)
	if err != nil {
		t.Fatalf("Ranks: %v", err)
	}
	if ranks["a"] != 1 || ranks["b"] != 1 {
		t.Errorf("near-tied players should share rank 1: %v", ranks)
	}
	if ranks["c"] != 3 {
		t.Errorf("rank[c] = %d, want 3 after a two-way tie", ranks["c"])
	}
}

func TestRanksOnlyRequestedPlayers(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()

	set := func(id string, mu float64) {
		if err := svc.SetRating(ctx, id, rating.Rating{Mu: mu, Sigma: 2}, "g"); err != nil {
			t.Fatalf("SetRating(%s): %v", id, err)
		}
	}
	set("a", 40)
	set("b", 30)
	set("c", 20)

	ranks, err := svc.Ranks(ctx, []string{"b", "ghost"}, "g", MetricMean)
	if err != nil {
		t.Fatalf("Ranks: %v", err)
	}
	if len(ranks) != 1 || ranks["b"] != 2 {
		t.Errorf("ranks = %v, want only b at 2", ranks)
	}
}
