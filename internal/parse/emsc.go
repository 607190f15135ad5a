package parse

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/couchcryptid/seismic-ingest/internal/domain"
)

// EMSCGeoJSONParser parses the EMSC/SeismicPortal FDSN event web service's
// GeoJSON feature collection format.
type EMSCGeoJSONParser struct{}

func (EMSCGeoJSONParser) Parse(rawPayload string, _ string, fetchedAt time.Time) ([]domain.CanonicalEvent, error) {
	var fc geoJSONFeatureCollection
	if err := json.Unmarshal([]byte(rawPayload), &fc); err != nil {
		return nil, fmt.Errorf("emsc geojson: %w", err)
	}

	events := make([]domain.CanonicalEvent, 0, len(fc.Features))
	for _, feat := range fc.Features {
		e, ok := parseEMSCFeature(feat, fetchedAt)
		if !ok {
			continue
		}
		events = append(events, e)
	}
	return events, nil
}

func parseEMSCFeature(feat geoJSONFeature, fetchedAt time.Time) (domain.CanonicalEvent, bool) {
	props := feat.Properties
	if len(feat.Geometry.Coordinates) < 3 {
		return domain.CanonicalEvent{}, false
	}

	sourceEventID := propString(props, "unid")
	if sourceEventID == "" {
		sourceEventID = propString(props, "source_id")
	}
	if sourceEventID == "" {
		sourceEventID = feat.ID
	}
	if sourceEventID == "" {
		return domain.CanonicalEvent{}, false
	}

	originTime, ok := parseEMSCTime(props["time"])
	if !ok {
		return domain.CanonicalEvent{}, false
	}

	magType := strings.ToLower(propString(props, "magtype"))
	if magType == "" {
		magType = strings.ToLower(propString(props, "magType"))
	}
	if magType == "" {
		magType = "ml"
	}

	flynnRegion := propString(props, "flynn_region")
	place := flynnRegion
	if place == "" {
		place = propString(props, "place")
	}

	var updatedAt *time.Time
	if raw, ok := props["lastupdate"]; ok && raw != nil {
		if t, ok := parseEMSCTime(raw); ok {
			updatedAt = &t
		}
	} else if raw, ok := props["updated"]; ok && raw != nil {
		if t, ok := parseEMSCTime(raw); ok {
			updatedAt = &t
		}
	}

	status := strings.ToLower(propString(props, "status"))
	switch status {
	case domain.StatusAutomatic, domain.StatusReviewed, domain.StatusDeleted:
	default:
		status = domain.StatusAutomatic
	}

	author := propString(props, "auth")
	if author == "" {
		author = propString(props, "net")
	}

	return domain.CanonicalEvent{
		EventUID:       "emsc:" + sourceEventID,
		Source:         "emsc",
		SourceEventID:  sourceEventID,
		OriginTimeUTC:  originTime,
		Latitude:       feat.Geometry.Coordinates[1],
		Longitude:      domain.NormalizeLongitude(feat.Geometry.Coordinates[0]),
		DepthKM:        feat.Geometry.Coordinates[2],
		MagnitudeValue: propFloat(props, "mag"),
		MagnitudeType:  magType,
		Place:          place,
		Region:         flynnRegion,
		LatErrorKM:     propFloatPtr(props, "horizontalError"),
		LonErrorKM:     propFloatPtr(props, "horizontalError"),
		DepthErrorKM:   propFloatPtr(props, "depthError"),
		MagError:       propFloatPtr(props, "magError"),
		TimeErrorSec:   propFloatPtr(props, "timeError"),
		Status:         status,
		NumPhases:      propIntPtr(props, "nph"),
		AzimuthalGap:   propFloatPtr(props, "gap"),
		Author:         author,
		URL:            propString(props, "url"),
		FetchedAt:      fetchedAt,
		UpdatedAt:      updatedAt,
	}, true
}

// parseEMSCTime accepts either an ISO 8601 string or milliseconds-since-epoch
// number, matching the two shapes EMSC has shipped in its "time" property.
func parseEMSCTime(v any) (time.Time, bool) {
	switch t := v.(type) {
	case string:
		parsed, err := time.Parse(time.RFC3339Nano, strings.Replace(t, "Z", "+00:00", 1))
		if err != nil {
			return time.Time{}, false
		}
		return parsed.UTC(), true
	case float64:
		return time.UnixMilli(int64(t)).UTC(), true
	default:
		return time.Time{}, false
	}
}
