package parse

import (
	"strconv"
	"strings"
	"time"

	"github.com/couchcryptid/seismic-ingest/internal/domain"
)

// FDSN text columns (pipe-delimited):
// EventID|Time|Latitude|Longitude|Depth/km|Author|Catalog|Contributor|
// ContributorID|MagType|Magnitude|MagAuthor|EventLocationName
const (
	colEventID = 0
	colTime    = 1
	colLat     = 2
	colLon     = 3
	colDepth   = 4
	colAuthor  = 5
	colMagType = 9
	colMag     = 10
	colPlace   = 12
)

// FDSNTextParser parses the pipe-delimited text format shared by FDSN
// services that do not publish GeoJSON (GFZ GEOFON, ISC, GeoNet, and
// similar). The text format carries no source tag of its own, so the
// caller's source name becomes both CanonicalEvent.Source and the
// event_uid prefix.
type FDSNTextParser struct{}

func (p FDSNTextParser) Parse(rawPayload string, source string, fetchedAt time.Time) ([]domain.CanonicalEvent, error) {
	if source == "" {
		source = "gfz"
	}

	lines := strings.Split(strings.TrimSpace(rawPayload), "\n")
	events := make([]domain.CanonicalEvent, 0, len(lines))

	for _, line := range lines {
		trimmed := strings.TrimSpace(line)
		if trimmed == "" || strings.HasPrefix(trimmed, "EventID") || strings.HasPrefix(trimmed, "#") {
			continue
		}
		e, ok := parseFDSNTextLine(trimmed, source, fetchedAt)
		if !ok {
			continue
		}
		events = append(events, e)
	}
	return events, nil
}

func parseFDSNTextLine(line, source string, fetchedAt time.Time) (domain.CanonicalEvent, bool) {
	cols := strings.Split(line, "|")
	for i := range cols {
		cols[i] = strings.TrimSpace(cols[i])
	}
	if len(cols) <= colMag {
		return domain.CanonicalEvent{}, false
	}

	sourceEventID := cols[colEventID]
	if sourceEventID == "" {
		return domain.CanonicalEvent{}, false
	}

	originTime, err := time.Parse(time.RFC3339Nano, normalizeFDSNTimestamp(cols[colTime]))
	if err != nil {
		return domain.CanonicalEvent{}, false
	}

	lat, err := strconv.ParseFloat(cols[colLat], 64)
	if err != nil {
		return domain.CanonicalEvent{}, false
	}
	lon, err := strconv.ParseFloat(cols[colLon], 64)
	if err != nil {
		return domain.CanonicalEvent{}, false
	}

	var depth float64
	if cols[colDepth] != "" {
		depth, err = strconv.ParseFloat(cols[colDepth], 64)
		if err != nil {
			return domain.CanonicalEvent{}, false
		}
	}

	magType := "ml"
	if len(cols) > colMagType && cols[colMagType] != "" {
		magType = strings.ToLower(cols[colMagType])
	}

	var mag float64
	if len(cols) > colMag && cols[colMag] != "" {
		mag, err = strconv.ParseFloat(cols[colMag], 64)
		if err != nil {
			return domain.CanonicalEvent{}, false
		}
	}

	var author string
	if len(cols) > colAuthor {
		author = cols[colAuthor]
	}

	var place string
	if len(cols) > colPlace {
		place = cols[colPlace]
	}

	return domain.CanonicalEvent{
		EventUID:       source + ":" + sourceEventID,
		Source:         source,
		SourceEventID:  sourceEventID,
		OriginTimeUTC:  originTime.UTC(),
		Latitude:       lat,
		Longitude:      domain.NormalizeLongitude(lon),
		DepthKM:        depth,
		MagnitudeValue: mag,
		MagnitudeType:  magType,
		Place:          place,
		Region:         place,
		Status:         domain.StatusAutomatic,
		Author:         author,
		FetchedAt:      fetchedAt,
	}, true
}

// normalizeFDSNTimestamp rewrites the "Z" suffix FDSN text emits into an
// explicit offset so time.Parse(time.RFC3339Nano, ...) accepts it uniformly.
func normalizeFDSNTimestamp(ts string) string {
	if strings.HasSuffix(ts, "Z") {
		return strings.TrimSuffix(ts, "Z") + "+00:00"
	}
	return ts
}
