// Package cluster groups CanonicalEvents that likely describe the same
// physical earthquake, using a greedy chronological match against each
// existing cluster's anchor member.
package cluster

import (
	"math"
	"sort"

	"github.com/couchcryptid/seismic-ingest/internal/domain"
)

// Matching thresholds. Differences beyond any one of these zero the whole
// score regardless of how close the other two dimensions are.
const (
	MaxTimeDiffSec = 30.0
	MaxDistanceKM  = 100.0
	MaxMagDiff     = 0.5
	MatchThreshold = 0.6
)

// MatchScore returns the similarity between two events in [0, 1]. Any
// dimension exceeding its threshold forces the score to zero.
func MatchScore(a, b domain.CanonicalEvent) float64 {
	dt := math.Abs(a.OriginTimeUTC.Sub(b.OriginTimeUTC).Seconds())
	if dt > MaxTimeDiffSec {
		return 0
	}

	dist := domain.HaversineKM(a.Latitude, a.Longitude, b.Latitude, b.Longitude)
	if dist > MaxDistanceKM {
		return 0
	}

	dmag := math.Abs(a.MagnitudeValue - b.MagnitudeValue)
	if dmag > MaxMagDiff {
		return 0
	}

	return 0.4*math.Max(0, 1-dt/MaxTimeDiffSec) +
		0.4*math.Max(0, 1-dist/MaxDistanceKM) +
		0.2*math.Max(0, 1-dmag/MaxMagDiff)
}

// Cluster groups CanonicalEvents. Every member pairwise satisfies
// match-eligibility with the anchor (the first event that formed it).
func Cluster(events []domain.CanonicalEvent) []*domain.Cluster {
	sorted := make([]domain.CanonicalEvent, len(events))
	copy(sorted, events)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].OriginTimeUTC.Before(sorted[j].OriginTimeUTC)
	})

	var clusters []*domain.Cluster

	for _, event := range sorted {
		var best *domain.Cluster
		bestScore := 0.0

		for _, c := range clusters {
			score := MatchScore(event, c.Anchor())
			if score >= MatchThreshold && score > bestScore {
				best = c
				bestScore = score
			}
		}

		if best != nil {
			best.Members = append(best.Members, event)
		} else {
			clusters = append(clusters, &domain.Cluster{Members: []domain.CanonicalEvent{event}})
		}
	}

	return clusters
}
