package parse

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/couchcryptid/seismic-ingest/internal/domain"
)

// USGSGeoJSONParser parses the USGS FDSN event web service's GeoJSON
// feature collection format.
type USGSGeoJSONParser struct{}

func (USGSGeoJSONParser) Parse(rawPayload string, _ string, fetchedAt time.Time) ([]domain.CanonicalEvent, error) {
	var fc geoJSONFeatureCollection
	if err := json.Unmarshal([]byte(rawPayload), &fc); err != nil {
		return nil, fmt.Errorf("usgs geojson: %w", err)
	}

	events := make([]domain.CanonicalEvent, 0, len(fc.Features))
	for _, feat := range fc.Features {
		e, ok := parseUSGSFeature(feat, fetchedAt)
		if !ok {
			continue
		}
		events = append(events, e)
	}
	return events, nil
}

func parseUSGSFeature(feat geoJSONFeature, fetchedAt time.Time) (domain.CanonicalEvent, bool) {
	if feat.ID == "" || len(feat.Geometry.Coordinates) < 3 {
		return domain.CanonicalEvent{}, false
	}
	props := feat.Properties

	timeMS, ok := props["time"].(float64)
	if !ok {
		return domain.CanonicalEvent{}, false
	}
	originTime := time.UnixMilli(int64(timeMS)).UTC()

	var updatedAt *time.Time
	if updatedMS, ok := props["updated"].(float64); ok && updatedMS != 0 {
		t := time.UnixMilli(int64(updatedMS)).UTC()
		updatedAt = &t
	}

	status := strings.ToLower(propString(props, "status"))
	if status == "" {
		status = domain.StatusAutomatic
	}
	switch status {
	case domain.StatusAutomatic, domain.StatusReviewed, domain.StatusDeleted:
	default:
		status = domain.StatusAutomatic
	}

	magType := strings.ToLower(propString(props, "magType"))
	if magType == "" {
		magType = "ml"
	}

	place := propString(props, "place")

	return domain.CanonicalEvent{
		EventUID:       "usgs:" + feat.ID,
		Source:         "usgs",
		SourceEventID:  feat.ID,
		OriginTimeUTC:  originTime,
		Latitude:       feat.Geometry.Coordinates[1],
		Longitude:      domain.NormalizeLongitude(feat.Geometry.Coordinates[0]),
		DepthKM:        feat.Geometry.Coordinates[2],
		MagnitudeValue: propFloat(props, "mag"),
		MagnitudeType:  magType,
		Place:          place,
		Region:         extractRegion(place),
		LatErrorKM:     propFloatPtr(props, "horizontalError"),
		LonErrorKM:     propFloatPtr(props, "horizontalError"),
		DepthErrorKM:   propFloatPtr(props, "depthError"),
		MagError:       propFloatPtr(props, "magError"),
		TimeErrorSec:   propFloatPtr(props, "timeError"),
		Status:         status,
		NumPhases:      propIntPtr(props, "nph"),
		AzimuthalGap:   propFloatPtr(props, "gap"),
		Author:         propString(props, "net"),
		URL:            propString(props, "url"),
		FetchedAt:      fetchedAt,
		UpdatedAt:      updatedAt,
	}, true
}

// extractRegion takes the last comma-separated token of a USGS "place"
// string, e.g. "10km NW of Ridgecrest, CA" -> "CA".
func extractRegion(place string) string {
	if place == "" {
		return ""
	}
	parts := strings.Split(place, ", ")
	if len(parts) > 1 {
		return parts[len(parts)-1]
	}
	return place
}
