package skill

import (
	"context"
	"fmt"
	"math"
	"sort"

	"scrim-rating-server/rating"
	"scrim-rating-server/skillerrors"
)

// Metric selects how leaderboards and ranks order players.
type Metric string

const (
	// MetricMean orders by raw mu, tie-broken by ascending sigma.
	MetricMean Metric = "mean"
	// MetricExposure orders by the conservative estimate mu - k*sigma.
	MetricExposure Metric = "exposure"
)

// ParseMetric validates a metric name from an external caller.
func ParseMetric(s string) (Metric, error) {
	switch Metric(s) {
	case MetricMean, MetricExposure:
		return Metric(s), nil
	case "":
		return MetricExposure, nil
	}
	return "", fmt.Errorf("%w: %q", skillerrors.ErrUnknownMetric, s)
}

// Entry is one leaderboard row.
type Entry struct {
	PlayerID string        `json:"player_id"`
	Rating   rating.Rating `json:"rating"`
}

// Leaderboard returns the guild's players sorted descending under the
// metric, with decay applied. Players whose rating still equals the
// untouched default (never having played) are excluded.
func (s *Service) Leaderboard(ctx context.Context, guildID string, metric Metric) ([]Entry, error) {
	stored, err := s.store.ListRatings(ctx, guildID)
	if err != nil {
		return nil, err
	}
	now := s.now()
	entries := make([]Entry, 0, len(stored))
	for id := range stored {
		r, err := s.getRating(ctx, guildID, id, now)
		if err != nil {
			return nil, err
		}
		if s.env.IsDefault(r) {
			continue
		}
		entries = append(entries, Entry{PlayerID: id, Rating: r})
	}

	switch metric {
	case MetricMean:
		sort.Slice(entries, func(i, j int) bool {
			if entries[i].Rating.Mu != entries[j].Rating.Mu {
				return entries[i].Rating.Mu > entries[j].Rating.Mu
			}
			if entries[i].Rating.Sigma != entries[j].Rating.Sigma {
				return entries[i].Rating.Sigma < entries[j].Rating.Sigma
			}
			return entries[i].PlayerID < entries[j].PlayerID
		})
	case MetricExposure:
		sort.Slice(entries, func(i, j int) bool {
			ei := entries[i].Rating.Exposure(s.exposureK)
			ej := entries[j].Rating.Exposure(s.exposureK)
			if ei != ej {
				return ei > ej
			}
			return entries[i].PlayerID < entries[j].PlayerID
		})
	default:
		return nil, fmt.Errorf("%w: %q", skillerrors.ErrUnknownMetric, metric)
	}
	return entries, nil
}

// Ranks assigns competition-style ranks to the requested players: metric
// values within tolerance share a rank, and the next strictly different
// value takes the running 1-based position (1,2,2,4 - ties do not compress
// subsequent ranks). Players absent from the leaderboard get no entry.
func (s *Service) Ranks(ctx context.Context, playerIDs []string, guildID string, metric Metric) (map[string]int, error) {
	board, err := s.Leaderboard(ctx, guildID, metric)
	if err != nil {
		return nil, err
	}
	requested := make(map[string]bool, len(playerIDs))
	for _, id := range playerIDs {
		requested[id] = true
	}

	out := make(map[string]int)
	last := math.NaN()
	lastRank := 0
	for i, e := range board {
		val := s.metricValue(e.Rating, metric)
		if !s.isClose(val, last) {
			last = val
			lastRank = i + 1
		}
		if requested[e.PlayerID] {
			out[e.PlayerID] = lastRank
		}
	}
	return out, nil
}

func (s *Service) metricValue(r rating.Rating, metric Metric) float64 {
	if metric == MetricExposure {
		return r.Exposure(s.exposureK)
	}
	return r.Mu
}

// isClose is a relative-tolerance comparison; NaN compares unequal so the
// first leaderboard row always starts a new rank.
func (s *Service) isClose(a, b float64) bool {
	if math.IsNaN(a) || math.IsNaN(b) {
		return false
	}
	if a == b {
		return true
	}
	return math.Abs(a-b) <= s.rankTol*math.Max(math.Abs(a), math.Abs(b))
}
