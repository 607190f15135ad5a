package domain

import (
	"fmt"
	"time"
)

// Validate applies the fixed set of range/format checks to a CanonicalEvent.
// An empty return value means the event is valid; otherwise each element
// names the field and the rule it violated, and the caller must divert the
// record to dead-letter.
func Validate(e CanonicalEvent) []string {
	var errs []string

	if e.Latitude < -90 || e.Latitude > 90 {
		errs = append(errs, fmt.Sprintf("latitude %g out of range [-90, 90]", e.Latitude))
	}
	if e.Longitude < -180 || e.Longitude > 180 {
		errs = append(errs, fmt.Sprintf("longitude %g out of range [-180, 180]", e.Longitude))
	}
	if e.DepthKM < -10 || e.DepthKM > 800 {
		errs = append(errs, fmt.Sprintf("depth_km %g out of range [-10, 800]", e.DepthKM))
	}
	if e.MagnitudeValue < -2 || e.MagnitudeValue > 10 {
		errs = append(errs, fmt.Sprintf("magnitude_value %g out of range [-2, 10]", e.MagnitudeValue))
	}

	if e.OriginTimeUTC.IsZero() {
		errs = append(errs, "origin_time_utc is zero")
	} else {
		if e.OriginTimeUTC.Location() != time.UTC {
			errs = append(errs, "origin_time_utc is not timezone-aware UTC")
		}
		future := clock.Now().UTC().Add(futureTolerance)
		if e.OriginTimeUTC.After(future) {
			errs = append(errs, fmt.Sprintf("origin_time_utc %s is in the future", e.OriginTimeUTC))
		}
	}

	switch e.Status {
	case StatusAutomatic, StatusReviewed, StatusDeleted:
	default:
		errs = append(errs, fmt.Sprintf("status %q not in (automatic, reviewed, deleted)", e.Status))
	}

	if e.EventUID == "" {
		errs = append(errs, "event_uid is empty")
	}
	if e.Source == "" {
		errs = append(errs, "source is empty")
	}
	if e.SourceEventID == "" {
		errs = append(errs, "source_event_id is empty")
	}

	return errs
}

// futureTolerance absorbs clock skew between this process and the catalogs,
// per spec: "not in the future (with ~1 h tolerance)".
const futureTolerance = time.Hour
