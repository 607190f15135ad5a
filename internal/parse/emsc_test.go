package parse

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const emscFixture = `{
  "type": "FeatureCollection",
  "features": [
    {
      "type": "Feature",
      "id": "20240115_0000042",
      "properties": {
        "unid": "20240115_0000042",
        "mag": 5.1,
        "magtype": "mw",
        "time": "2024-01-15T12:00:10.000Z",
        "lastupdate": "2024-01-15T12:05:00.000Z",
        "flynn_region": "OFF COAST OF CALIFORNIA",
        "auth": "EMSC",
        "status": "automatic"
      },
      "geometry": {
        "type": "Point",
        "coordinates": [-120.02, 35.05, 11.0]
      }
    }
  ]
}`

func TestEMSCGeoJSONParser_ParsesFeature(t *testing.T) {
	events, err := EMSCGeoJSONParser{}.Parse(emscFixture, "emsc", time.Date(2024, 1, 15, 12, 6, 0, 0, time.UTC))
	require.NoError(t, err)
	require.Len(t, events, 1)

	e := events[0]
	assert.Equal(t, "emsc:20240115_0000042", e.EventUID)
	assert.Equal(t, "emsc", e.Source)
	assert.Equal(t, time.Date(2024, 1, 15, 12, 0, 10, 0, time.UTC), e.OriginTimeUTC)
	assert.Equal(t, 35.05, e.Latitude)
	assert.Equal(t, -120.02, e.Longitude)
	assert.Equal(t, 11.0, e.DepthKM)
	assert.Equal(t, 5.1, e.MagnitudeValue)
	assert.Equal(t, "mw", e.MagnitudeType)
	assert.Equal(t, "OFF COAST OF CALIFORNIA", e.Place)
	assert.Equal(t, "OFF COAST OF CALIFORNIA", e.Region)
	assert.Equal(t, "EMSC", e.Author)
	require.NotNil(t, e.UpdatedAt)
}

func TestEMSCGeoJSONParser_TimeAsEpochMillis(t *testing.T) {
	fixture := `{"features":[{"id":"e1","properties":{"unid":"e1","mag":4.0,"time":1705312800000},"geometry":{"coordinates":[10,20,5]}}]}`
	events, err := EMSCGeoJSONParser{}.Parse(fixture, "emsc", time.Now())
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, time.UnixMilli(1705312800000).UTC(), events[0].OriginTimeUTC)
}

func TestEMSCGeoJSONParser_FallsBackToSourceIDThenFeatureID(t *testing.T) {
	fixture := `{"features":[{"id":"fallback-id","properties":{"mag":4.0,"time":1705312800000},"geometry":{"coordinates":[10,20,5]}}]}`
	events, err := EMSCGeoJSONParser{}.Parse(fixture, "emsc", time.Now())
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, "fallback-id", events[0].SourceEventID)
}

func TestEMSCGeoJSONParser_SkipsFeatureMissingIdentity(t *testing.T) {
	fixture := `{"features":[{"id":"","properties":{"mag":4.0,"time":1705312800000},"geometry":{"coordinates":[10,20,5]}}]}`
	events, err := EMSCGeoJSONParser{}.Parse(fixture, "emsc", time.Now())
	require.NoError(t, err)
	assert.Empty(t, events)
}
