package skill

import "time"

// DecayModel grows a player's rating uncertainty with idle time, so
// long-absent players are treated as less certainly rated. Growth is
// quadratic in idle time; the read path caps the decayed sigma at the
// environment default, so decay can neither make the system more confident
// than a brand-new player nor unboundedly uncertain.
type DecayModel struct {
	K     float64 // growth constant
	Scale float64 // idle-time scale in seconds
}

// Delta returns the sigma increase for a player idle for the given
// duration. A player with no recorded match gets zero decay.
func (d DecayModel) Delta(idle time.Duration) float64 {
	if idle <= 0 || d.Scale <= 0 {
		return 0
	}
	x := idle.Seconds() / d.Scale
	return d.K * x * x
}
