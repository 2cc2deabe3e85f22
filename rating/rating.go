// Package rating implements the skill-rating mathematics: Gaussian skill
// beliefs, the closed-form two-team Bayesian update with margin-of-victory
// weighting, match quality, and win probability.
package rating

// Rating is a Gaussian belief about a player's skill: Mu is the estimated
// mean, Sigma the uncertainty of that estimate.
type Rating struct {
	Mu    float64 `json:"mu"`
	Sigma float64 `json:"sigma"`
}

// Exposure returns the conservative skill estimate mu - k*sigma, used for
// risk-averse ranking.
func (r Rating) Exposure(k float64) float64 {
	return r.Mu - k*r.Sigma
}

// Env holds the process-wide rating constants. They are fixed at startup;
// changing them during a guild's lifetime invalidates historical quality
// comparisons.
type Env struct {
	Mu       float64 // default mean for a fresh player
	Sigma    float64 // default uncertainty for a fresh player
	Beta     float64 // skill-to-performance noise
	Tau      float64 // dynamics factor added to variance before each update
	DrawProb float64 // prior probability of a draw
}

// DefaultEnv returns the standard environment: mu=25, sigma=mu/3,
// beta=sigma/2, tau=sigma/100, 10% draw probability.
func DefaultEnv() Env {
	const mu = 25.0
	sigma := mu / 3.0
	return Env{
		Mu:       mu,
		Sigma:    sigma,
		Beta:     sigma / 2.0,
		Tau:      sigma / 100.0,
		DrawProb: 0.10,
	}
}

// NewRating returns the default rating assigned to a player on first sight.
func (e Env) NewRating() Rating {
	return Rating{Mu: e.Mu, Sigma: e.Sigma}
}

// IsDefault reports whether r is exactly the untouched default rating.
// Leaderboards use this to exclude players who never played.
func (e Env) IsDefault(r Rating) bool {
	return r.Mu == e.Mu && r.Sigma == e.Sigma
}
