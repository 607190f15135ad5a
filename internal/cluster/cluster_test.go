package cluster

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/couchcryptid/seismic-ingest/internal/domain"
)

func TestMatchScore_CrossSourceMatch(t *testing.T) {
	a := domain.CanonicalEvent{
		OriginTimeUTC:  time.Date(2024, 1, 15, 12, 0, 0, 0, time.UTC),
		Latitude:       35.0,
		Longitude:      -120.0,
		MagnitudeValue: 5.0,
	}
	b := domain.CanonicalEvent{
		OriginTimeUTC:  time.Date(2024, 1, 15, 12, 0, 10, 0, time.UTC),
		Latitude:       35.05,
		Longitude:      -120.02,
		MagnitudeValue: 5.1,
	}
	score := MatchScore(a, b)
	assert.InDelta(t, 0.806, score, 0.02)
	assert.GreaterOrEqual(t, score, MatchThreshold)
}

func TestMatchScore_TimeBeyondThresholdIsZero(t *testing.T) {
	a := domain.CanonicalEvent{OriginTimeUTC: time.Unix(0, 0).UTC()}
	b := domain.CanonicalEvent{OriginTimeUTC: time.Unix(31, 0).UTC()}
	assert.Equal(t, 0.0, MatchScore(a, b))
}

func TestMatchScore_DistanceBeyondThresholdIsZero(t *testing.T) {
	a := domain.CanonicalEvent{OriginTimeUTC: time.Unix(0, 0).UTC(), Latitude: 0, Longitude: 0}
	b := domain.CanonicalEvent{OriginTimeUTC: time.Unix(0, 0).UTC(), Latitude: 5, Longitude: 5}
	assert.Equal(t, 0.0, MatchScore(a, b))
}

func TestMatchScore_MagnitudeBeyondThresholdIsZero(t *testing.T) {
	a := domain.CanonicalEvent{OriginTimeUTC: time.Unix(0, 0).UTC(), MagnitudeValue: 5.0}
	b := domain.CanonicalEvent{OriginTimeUTC: time.Unix(0, 0).UTC(), MagnitudeValue: 6.0}
	assert.Equal(t, 0.0, MatchScore(a, b))
}

func TestMatchScore_IdenticalEventsScoreOne(t *testing.T) {
	e := domain.CanonicalEvent{
		OriginTimeUTC:  time.Unix(100, 0).UTC(),
		Latitude:       10,
		Longitude:      10,
		MagnitudeValue: 4.0,
	}
	assert.InDelta(t, 1.0, MatchScore(e, e), 1e-9)
}

func TestCluster_SingleEventSingleCluster(t *testing.T) {
	events := []domain.CanonicalEvent{
		{EventUID: "usgs:us7000test", OriginTimeUTC: time.Unix(0, 0).UTC()},
	}
	clusters := Cluster(events)
	require.Len(t, clusters, 1)
	assert.Len(t, clusters[0].Members, 1)
}

func TestCluster_TwoSourcesMergeIntoOneCluster(t *testing.T) {
	events := []domain.CanonicalEvent{
		{
			EventUID:       "usgs:us1",
			Source:         "usgs",
			OriginTimeUTC:  time.Date(2024, 1, 15, 12, 0, 0, 0, time.UTC),
			Latitude:       35.0,
			Longitude:      -120.0,
			DepthKM:        10,
			MagnitudeValue: 5.0,
			Status:         domain.StatusAutomatic,
		},
		{
			EventUID:       "emsc:e1",
			Source:         "emsc",
			OriginTimeUTC:  time.Date(2024, 1, 15, 12, 0, 10, 0, time.UTC),
			Latitude:       35.05,
			Longitude:      -120.02,
			DepthKM:        11,
			MagnitudeValue: 5.1,
			Status:         domain.StatusAutomatic,
		},
	}
	clusters := Cluster(events)
	require.Len(t, clusters, 1)
	assert.Len(t, clusters[0].Members, 2)
	assert.Equal(t, 2, clusters[0].NumSources())
}

func TestCluster_RejectionByTimeProducesTwoClusters(t *testing.T) {
	events := []domain.CanonicalEvent{
		{EventUID: "usgs:a", OriginTimeUTC: time.Unix(0, 0).UTC(), Latitude: 10, Longitude: 10, MagnitudeValue: 5.0},
		{EventUID: "emsc:b", OriginTimeUTC: time.Unix(60, 0).UTC(), Latitude: 10, Longitude: 10, MagnitudeValue: 5.0},
	}
	clusters := Cluster(events)
	assert.Len(t, clusters, 2)
}

func TestCluster_ThreeSourcesConverge(t *testing.T) {
	base := time.Date(2024, 1, 15, 12, 0, 0, 0, time.UTC)
	events := []domain.CanonicalEvent{
		{EventUID: "usgs:a", Source: "usgs", OriginTimeUTC: base, Latitude: 35.0, Longitude: -120.0, MagnitudeValue: 5.0},
		{EventUID: "emsc:b", Source: "emsc", OriginTimeUTC: base.Add(5 * time.Second), Latitude: 35.02, Longitude: -120.01, MagnitudeValue: 5.05},
		{EventUID: "gfz:c", Source: "gfz", OriginTimeUTC: base.Add(8 * time.Second), Latitude: 35.01, Longitude: -120.02, MagnitudeValue: 5.1},
	}
	clusters := Cluster(events)
	require.Len(t, clusters, 1)
	assert.Equal(t, 3, clusters[0].NumSources())
}

func TestCluster_ChronologicalOrderIndependentOfInputOrder(t *testing.T) {
	base := time.Date(2024, 1, 15, 12, 0, 0, 0, time.UTC)
	later := domain.CanonicalEvent{EventUID: "usgs:later", OriginTimeUTC: base.Add(10 * time.Second), Latitude: 1, Longitude: 1, MagnitudeValue: 3}
	earlier := domain.CanonicalEvent{EventUID: "usgs:earlier", OriginTimeUTC: base, Latitude: 1, Longitude: 1, MagnitudeValue: 3}

	clusters := Cluster([]domain.CanonicalEvent{later, earlier})
	require.Len(t, clusters, 1)
	assert.Equal(t, "usgs:earlier", clusters[0].Anchor().EventUID)
}
