// Package parse converts raw catalog payloads into domain.CanonicalEvent
// values. One Parser implementation exists per payload dialect; a whole-
// payload parse failure is the only error a Parser returns, since per-record
// issues are skipped silently and caught downstream by domain.Validate.
package parse

import (
	"time"

	"github.com/couchcryptid/seismic-ingest/internal/domain"
	"github.com/couchcryptid/seismic-ingest/internal/registry"
)

// Parser turns one source's raw response body into canonical events. source
// is the registry name of the catalog the payload came from; GeoJSON
// parsers are tied to one specific catalog and ignore it, while the FDSN
// text parser is reusable across any number of text-dialect peers and uses
// it as the event_uid prefix.
type Parser interface {
	Parse(rawPayload string, source string, fetchedAt time.Time) ([]domain.CanonicalEvent, error)
}

// Registry maps a format tag to the Parser that understands it.
type Registry map[string]Parser

// DefaultRegistry returns the parser set for the three built-in format tags.
func DefaultRegistry() Registry {
	return Registry{
		registry.FormatGeoJSONUSGS: USGSGeoJSONParser{},
		registry.FormatGeoJSONEMSC: EMSCGeoJSONParser{},
		registry.FormatFDSNText:    FDSNTextParser{},
	}
}

// Lookup returns the parser registered for format, if any.
func (r Registry) Lookup(format string) (Parser, bool) {
	p, ok := r[format]
	return p, ok
}
