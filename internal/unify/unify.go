// Package unify folds a domain.Cluster into a domain.UnifiedEvent: selecting
// the preferred member, deriving a stable identity, computing the weighted
// spatial estimate, and scoring cross-catalog agreement.
package unify

import (
	"crypto/sha256"
	"encoding/hex"
	"math"
	"sort"
	"strings"

	"github.com/couchcryptid/seismic-ingest/internal/cluster"
	"github.com/couchcryptid/seismic-ingest/internal/domain"
	"github.com/couchcryptid/seismic-ingest/internal/registry"
)

// Unifier turns clusters into UnifiedEvents using a fixed source priority
// order for preferred-member selection and weighted spatial aggregation.
type Unifier struct {
	priority []string
}

// New builds a Unifier from the registry's configured source priority.
func New(reg *registry.Registry) *Unifier {
	return &Unifier{priority: reg.Priority()}
}

func (u *Unifier) rank(source string) int {
	for i, p := range u.priority {
		if p == source {
			return i
		}
	}
	return len(u.priority)
}

// Unify computes the UnifiedEvent and per-member crosswalk entries for one
// cluster. CreatedAt/UpdatedAt are left zero for the caller to stamp, so
// this function's output stays deterministic across cycles.
func (u *Unifier) Unify(c *domain.Cluster) (domain.UnifiedEvent, []domain.EventCrosswalkEntry) {
	preferred := u.selectPreferred(c)
	unifiedID := u.unifiedEventID(c)
	lat, lon, depth := u.weightedMean(c)

	distinctSources := c.NumSources()
	agreement := 1.0
	if len(c.Members) > 1 {
		agreement = float64(distinctSources) / float64(len(c.Members))
	}

	unified := domain.UnifiedEvent{
		UnifiedEventID:       unifiedID,
		OriginTimeUTC:        preferred.OriginTimeUTC,
		Latitude:             lat,
		Longitude:            lon,
		DepthKM:              depth,
		MagnitudeValue:       preferred.MagnitudeValue,
		MagnitudeType:        preferred.MagnitudeType,
		Place:                preferred.Place,
		Region:               preferred.Region,
		Status:               preferred.Status,
		NumSources:           distinctSources,
		PreferredSource:      preferred.Source,
		SourceEventUIDs:      memberUIDs(c),
		MagnitudeStd:         magnitudeStddev(c.Members),
		LocationSpreadKM:     locationSpreadKM(c.Members),
		SourceAgreementScore: agreement,
	}

	crosswalk := make([]domain.EventCrosswalkEntry, 0, len(c.Members))
	for _, m := range c.Members {
		score := 1.0
		if m.EventUID != preferred.EventUID {
			score = cluster.MatchScore(m, preferred)
		}
		crosswalk = append(crosswalk, domain.EventCrosswalkEntry{
			EventUID:       m.EventUID,
			UnifiedEventID: unifiedID,
			MatchScore:     score,
			IsPreferred:    m.EventUID == preferred.EventUID,
		})
	}

	return unified, crosswalk
}

// selectPreferred picks reviewed members over automatic ones, then the
// highest-priority source among the surviving candidates. Ties within a
// priority rank break on the lexicographically smallest event_uid so
// selection stays deterministic.
func (u *Unifier) selectPreferred(c *domain.Cluster) domain.CanonicalEvent {
	candidates := c.Members
	var reviewed []domain.CanonicalEvent
	for _, m := range c.Members {
		if m.Status == domain.StatusReviewed {
			reviewed = append(reviewed, m)
		}
	}
	if len(reviewed) > 0 {
		candidates = reviewed
	}

	best := candidates[0]
	bestRank := u.rank(best.Source)
	for _, cand := range candidates[1:] {
		r := u.rank(cand.Source)
		if r < bestRank || (r == bestRank && cand.EventUID < best.EventUID) {
			best = cand
			bestRank = r
		}
	}
	return best
}

// unifiedEventID derives a deterministic identity from sorted member
// event_uids, so re-running unification over the same membership set
// always produces the same id.
func (u *Unifier) unifiedEventID(c *domain.Cluster) string {
	uids := memberUIDs(c)
	sorted := make([]string, len(uids))
	copy(sorted, uids)
	sort.Strings(sorted)

	sum := sha256.Sum256([]byte(strings.Join(sorted, "|")))
	return "UE-" + hex.EncodeToString(sum[:])[:16]
}

func (u *Unifier) weightedMean(c *domain.Cluster) (lat, lon, depth float64) {
	var totalWeight, latSum, lonSum, depthSum float64
	for _, m := range c.Members {
		weight := math.Max(1, float64(len(u.priority)-u.rank(m.Source)))
		latSum += m.Latitude * weight
		lonSum += m.Longitude * weight
		depthSum += m.DepthKM * weight
		totalWeight += weight
	}
	if totalWeight == 0 {
		anchor := c.Anchor()
		return anchor.Latitude, anchor.Longitude, anchor.DepthKM
	}
	return latSum / totalWeight, lonSum / totalWeight, depthSum / totalWeight
}

func memberUIDs(c *domain.Cluster) []string {
	uids := make([]string, len(c.Members))
	for i, m := range c.Members {
		uids[i] = m.EventUID
	}
	return uids
}

func magnitudeStddev(members []domain.CanonicalEvent) float64 {
	if len(members) <= 1 {
		return 0
	}
	var sum float64
	for _, m := range members {
		sum += m.MagnitudeValue
	}
	mean := sum / float64(len(members))

	var variance float64
	for _, m := range members {
		d := m.MagnitudeValue - mean
		variance += d * d
	}
	variance /= float64(len(members))

	return math.Sqrt(variance)
}

func locationSpreadKM(members []domain.CanonicalEvent) float64 {
	if len(members) <= 1 {
		return 0
	}
	var maxDist float64
	for i := 0; i < len(members); i++ {
		for j := i + 1; j < len(members); j++ {
			d := domain.HaversineKM(members[i].Latitude, members[i].Longitude, members[j].Latitude, members[j].Longitude)
			if d > maxDist {
				maxDist = d
			}
		}
	}
	return maxDist
}
