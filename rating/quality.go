package rating

import "math"

// WinProbability returns the probability that team a beats team b: the
// standard-normal cdf of the mu difference over the combined uncertainty
// sqrt(n*beta^2 + sum sigma^2). Pure function; WinProbability(a,b) and
// WinProbability(b,a) sum to at most 1, the remainder being the implicit
// draw mass.
func (e Env) WinProbability(a, b []Rating) float64 {
	var deltaMu, varSum float64
	for _, r := range a {
		deltaMu += r.Mu
		varSum += r.Sigma * r.Sigma
	}
	for _, r := range b {
		deltaMu -= r.Mu
		varSum += r.Sigma * r.Sigma
	}
	n := float64(len(a) + len(b))
	denom := math.Sqrt(n*e.Beta*e.Beta + varSum)
	return normCDF(deltaMu / denom)
}

// Quality estimates how close a match between a and b would be, in (0, 1].
// It is the draw-probability-derived score sqrt(n*beta^2/c^2) *
// exp(-deltaMu^2 / 2c^2) with c^2 = n*beta^2 + sum sigma^2. Symmetric:
// Quality(a, b) == Quality(b, a).
func (e Env) Quality(a, b []Rating) float64 {
	var deltaMu, varSum float64
	for _, r := range a {
		deltaMu += r.Mu
		varSum += r.Sigma * r.Sigma
	}
	for _, r := range b {
		deltaMu -= r.Mu
		varSum += r.Sigma * r.Sigma
	}
	nb2 := float64(len(a)+len(b)) * e.Beta * e.Beta
	c2 := nb2 + varSum
	return math.Sqrt(nb2/c2) * math.Exp(-(deltaMu*deltaMu)/(2*c2))
}
