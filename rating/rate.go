package rating

import (
	"fmt"
	"math"

	"scrim-rating-server/skillerrors"
)

// vWin is the mean-shift correction for a win outcome: the expected value
// of a standard Gaussian truncated below at eps, evaluated at t.
func vWin(t, eps float64) float64 {
	denom := normCDF(t - eps)
	if denom < 1e-300 {
		// Far tail: the exact limit of pdf/cdf.
		return eps - t
	}
	return normPDF(t-eps) / denom
}

// wWin is the matching variance-shrink correction, in (0, 1).
func wWin(t, eps float64) float64 {
	v := vWin(t, eps)
	return v * (v + t - eps)
}

// drawMargin converts the environment draw probability into the epsilon
// used by the win functions, scaled for n total players.
func (e Env) drawMargin(n int) float64 {
	return normPPF((e.DrawProb+1)/2) * math.Sqrt(float64(n)) * e.Beta
}

// Rate computes new ratings for a two-team match that the winners won by
// winnerScore to loserScore rounds. The baseline is the closed-form
// two-team Bayesian update treating the winners as strictly beating the
// losers; the round-score margin then scales each player's mu movement:
//
//	marginRatio  = (winnerScore - loserScore) / winnerScore
//	weightChange = 1 + (marginRatio - 0.5) * factor
//
// A near-even score (ratio 0.5) leaves the baseline untouched; blowouts
// amplify mu movement and narrow wins dampen it. Sigma shrinkage from the
// baseline update is kept unscaled. Inputs are not mutated and nothing is
// persisted here; factor is an externally supplied tuning parameter.
func (e Env) Rate(winners, losers map[string]Rating, winnerScore, loserScore int, factor float64) (map[string]Rating, map[string]Rating, error) {
	if loserScore < 0 || winnerScore <= 0 || winnerScore <= loserScore {
		return nil, nil, fmt.Errorf("%w: winner %d, loser %d", skillerrors.ErrInvalidScore, winnerScore, loserScore)
	}

	winnersBase, losersBase := e.rateTwoTeams(winners, losers)

	marginRatio := float64(winnerScore-loserScore) / float64(winnerScore)
	weight := 1 + (marginRatio-0.5)*factor

	winnersAfter := make(map[string]Rating, len(winners))
	for id, prior := range winners {
		base := winnersBase[id]
		winnersAfter[id] = Rating{Mu: prior.Mu + (base.Mu-prior.Mu)*weight, Sigma: base.Sigma}
	}
	losersAfter := make(map[string]Rating, len(losers))
	for id, prior := range losers {
		base := losersBase[id]
		losersAfter[id] = Rating{Mu: prior.Mu + (base.Mu-prior.Mu)*weight, Sigma: base.Sigma}
	}
	return winnersAfter, losersAfter, nil
}

// rateTwoTeams is the standard closed-form two-team skill update for a
// strict win. Each player's variance first absorbs the dynamics factor tau,
// then shifts toward the outcome by v and shrinks by w, weighted by the
// player's share of the combined uncertainty c.
func (e Env) rateTwoTeams(winners, losers map[string]Rating) (map[string]Rating, map[string]Rating) {
	n := len(winners) + len(losers)
	tau2 := e.Tau * e.Tau

	var muW, muL, varSum float64
	for _, r := range winners {
		muW += r.Mu
		varSum += r.Sigma*r.Sigma + tau2
	}
	for _, r := range losers {
		muL += r.Mu
		varSum += r.Sigma*r.Sigma + tau2
	}

	c2 := varSum + float64(n)*e.Beta*e.Beta
	c := math.Sqrt(c2)
	t := (muW - muL) / c
	eps := e.drawMargin(n) / c
	v := vWin(t, eps)
	w := wWin(t, eps)

	update := func(r Rating, sign float64) Rating {
		s2 := r.Sigma*r.Sigma + tau2
		mu := r.Mu + sign*(s2/c)*v
		sig2 := s2 * (1 - (s2/c2)*w)
		if sig2 < 0 {
			sig2 = 0
		}
		sigma := math.Sqrt(sig2)
		// Tau can nudge sigma past the environment ceiling on a
		// no-information result; the ceiling wins.
		if sigma > e.Sigma {
			sigma = e.Sigma
		}
		return Rating{Mu: mu, Sigma: sigma}
	}

	winnersBase := make(map[string]Rating, len(winners))
	for id, r := range winners {
		winnersBase[id] = update(r, 1)
	}
	losersBase := make(map[string]Rating, len(losers))
	for id, r := range losers {
		losersBase[id] = update(r, -1)
	}
	return winnersBase, losersBase
}
