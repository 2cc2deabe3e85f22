package rating

import (
	"errors"
	"math"
	"testing"

	"scrim-rating-server/skillerrors"
)

func freshTeams(env Env) (map[string]Rating, map[string]Rating) {
	return map[string]Rating{"a": env.NewRating()}, map[string]Rating{"b": env.NewRating()}
}

func TestRateRejectsInvalidScores(t *testing.T) {
	env := DefaultEnv()
	cases := []struct {
		name           string
		winner, loser  int
	}{
		{"zero winner", 0, 0},
		{"negative winner", -1, -2},
		{"tie", 5, 5},
		{"loser ahead", 3, 7},
		{"negative loser", 5, -1},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			w, l := freshTeams(env)
			_, _, err := env.Rate(w, l, c.winner, c.loser, 0.7)
			if !errors.Is(err, skillerrors.ErrInvalidScore) {
				t.Errorf("Rate(%d, %d) err = %v, want ErrInvalidScore", c.winner, c.loser, err)
			}
		})
	}
}

func TestRateWinnerGainsLoserDrops(t *testing.T) {
	env := DefaultEnv()
	w, l := freshTeams(env)
	wAfter, lAfter, err := env.Rate(w, l, 13, 2, 0.7)
	if err != nil {
		t.Fatalf("Rate: %v", err)
	}
	if wAfter["a"].Mu <= env.Mu {
		t.Errorf("winner mu should increase: %v", wAfter["a"].Mu)
	}
	if lAfter["b"].Mu >= env.Mu {
		t.Errorf("loser mu should decrease: %v", lAfter["b"].Mu)
	}
	if wAfter["a"].Sigma >= env.Sigma || lAfter["b"].Sigma >= env.Sigma {
		t.Errorf("both sigmas should shrink from the default: %v, %v", wAfter["a"].Sigma, lAfter["b"].Sigma)
	}
}

func TestRateDoesNotMutateInputs(t *testing.T) {
	env := DefaultEnv()
	w, l := freshTeams(env)
	if _, _, err := env.Rate(w, l, 13, 7, 0.7); err != nil {
		t.Fatalf("Rate: %v", err)
	}
	if w["a"] != env.NewRating() || l["b"] != env.NewRating() {
		t.Error("Rate mutated its input maps")
	}
}

func TestRateEvenMarginMatchesBaseline(t *testing.T) {
	// A margin ratio of exactly 0.5 (e.g. 2-1) means weightChange = 1 for
	// any factor, so wildly different factors give identical results.
	env := DefaultEnv()
	w1, l1 := freshTeams(env)
	w2, l2 := freshTeams(env)
	a1, b1, err := env.Rate(w1, l1, 2, 1, 0.0)
	if err != nil {
		t.Fatalf("Rate: %v", err)
	}
	a2, b2, err := env.Rate(w2, l2, 2, 1, 100.0)
	if err != nil {
		t.Fatalf("Rate: %v", err)
	}
	if math.Abs(a1["a"].Mu-a2["a"].Mu) > 1e-12 || math.Abs(b1["b"].Mu-b2["b"].Mu) > 1e-12 {
		t.Errorf("factor must not matter at margin ratio 0.5: %v vs %v", a1["a"].Mu, a2["a"].Mu)
	}
}

func TestRateBlowoutMovesMuMore(t *testing.T) {
	env := DefaultEnv()
	w1, l1 := freshTeams(env)
	w2, l2 := freshTeams(env)
	blowout, _, err := env.Rate(w1, l1, 13, 0, 0.7)
	if err != nil {
		t.Fatalf("Rate: %v", err)
	}
	narrow, _, err := env.Rate(w2, l2, 13, 11, 0.7)
	if err != nil {
		t.Fatalf("Rate: %v", err)
	}
	dBlowout := math.Abs(blowout["a"].Mu - env.Mu)
	dNarrow := math.Abs(narrow["a"].Mu - env.Mu)
	if dBlowout <= dNarrow {
		t.Errorf("13-0 should move mu strictly more than 13-11: %v vs %v", dBlowout, dNarrow)
	}
}

func TestRateSigmaStaysInBounds(t *testing.T) {
	// Sigma must stay within [0, default] across a long chain of updates,
	// including the tau nudge on already-settled ratings.
	env := DefaultEnv()
	w, l := freshTeams(env)
	for i := 0; i < 200; i++ {
		var err error
		w, l, err = env.Rate(w, l, 13, 11, 0.7)
		if err != nil {
			t.Fatalf("Rate round %d: %v", i, err)
		}
		for id, r := range w {
			if r.Sigma < 0 || r.Sigma > env.Sigma {
				t.Fatalf("round %d: sigma out of bounds for %s: %v", i, id, r.Sigma)
			}
		}
		for id, r := range l {
			if r.Sigma < 0 || r.Sigma > env.Sigma {
				t.Fatalf("round %d: sigma out of bounds for %s: %v", i, id, r.Sigma)
			}
		}
	}
}

func TestRateUnevenTeams(t *testing.T) {
	// N vs M team sizes are supported; every member moves in the team's
	// direction.
	env := DefaultEnv()
	winners := map[string]Rating{"a": env.NewRating(), "b": env.NewRating(), "c": env.NewRating()}
	losers := map[string]Rating{"d": env.NewRating(), "e": env.NewRating()}
	wAfter, lAfter, err := env.Rate(winners, losers, 13, 5, 0.7)
	if err != nil {
		t.Fatalf("Rate: %v", err)
	}
	for id := range winners {
		if wAfter[id].Mu <= winners[id].Mu {
			t.Errorf("winner %s should gain mu", id)
		}
	}
	for id := range losers {
		if lAfter[id].Mu >= losers[id].Mu {
			t.Errorf("loser %s should lose mu", id)
		}
	}
}

func TestRateUpsetMovesMoreThanExpectedWin(t *testing.T) {
	env := DefaultEnv()
	strong := map[string]Rating{"s": {Mu: 35, Sigma: 4}}
	weak := map[string]Rating{"w": {Mu: 15, Sigma: 4}}

	upset, _, err := env.Rate(cloneMap(weak), cloneMap(strong), 13, 7, 0.7)
	if err != nil {
		t.Fatalf("Rate: %v", err)
	}
	expected, _, err := env.Rate(cloneMap(strong), cloneMap(weak), 13, 7, 0.7)
	if err != nil {
		t.Fatalf("Rate: %v", err)
	}
	upsetGain := upset["w"].Mu - 15
	expectedGain := expected["s"].Mu - 35
	if upsetGain <= expectedGain {
		t.Errorf("an upset should move mu more than an expected win: %v vs %v", upsetGain, expectedGain)
	}
}

func cloneMap(m map[string]Rating) map[string]Rating {
	out := make(map[string]Rating, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}
