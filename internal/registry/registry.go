// Package registry holds the static, process-wide table of earthquake data
// sources and their per-source operational parameters. It is populated once
// at startup and never mutated afterward.
package registry

import "fmt"

// Format tags a parser can be registered against.
const (
	FormatGeoJSONUSGS = "geojson-usgs"
	FormatGeoJSONEMSC = "geojson-emsc"
	FormatFDSNText    = "fdsn-text"
)

// SourceConfig is the static configuration for one earthquake catalog.
type SourceConfig struct {
	Name              string
	BaseURL           string
	PollIntervalSec   int
	MaxRetries        int
	RetryBackoffBase  float64
	RateLimitRPM      int
	TimeoutSec        int
	Format            string
	Enabled           bool
}

// Registry is an immutable, name-keyed table of SourceConfig entries.
type Registry struct {
	sources  map[string]SourceConfig
	priority []string
}

// New builds a Registry from the given configs and priority order. It
// returns an error if names collide or the priority list references an
// unknown source.
func New(sources []SourceConfig, priority []string) (*Registry, error) {
	m := make(map[string]SourceConfig, len(sources))
	for _, s := range sources {
		if s.Name == "" {
			return nil, fmt.Errorf("registry: source with empty name")
		}
		if _, exists := m[s.Name]; exists {
			return nil, fmt.Errorf("registry: duplicate source name %q", s.Name)
		}
		m[s.Name] = s
	}
	for _, p := range priority {
		if _, ok := m[p]; !ok {
			return nil, fmt.Errorf("registry: priority list references unknown source %q", p)
		}
	}
	return &Registry{sources: m, priority: priority}, nil
}

// Lookup returns the named source's config.
func (r *Registry) Lookup(name string) (SourceConfig, bool) {
	s, ok := r.sources[name]
	return s, ok
}

// Enabled returns the enabled sources, in priority order first, followed by
// any enabled sources absent from the priority list.
func (r *Registry) Enabled() []SourceConfig {
	var out []SourceConfig
	seen := make(map[string]struct{}, len(r.sources))
	for _, name := range r.priority {
		s := r.sources[name]
		if s.Enabled {
			out = append(out, s)
		}
		seen[name] = struct{}{}
	}
	for name, s := range r.sources {
		if _, ok := seen[name]; ok {
			continue
		}
		if s.Enabled {
			out = append(out, s)
		}
	}
	return out
}

// Priority returns the source priority order used to select a cluster's
// preferred member and to weight spatial aggregation.
func (r *Registry) Priority() []string {
	out := make([]string, len(r.priority))
	copy(out, r.priority)
	return out
}

// PriorityRank returns the index of name in the priority list, or -1 if
// name is absent (treated as lowest priority by callers).
func (r *Registry) PriorityRank(name string) int {
	for i, p := range r.priority {
		if p == name {
			return i
		}
	}
	return -1
}

// Default returns the built-in registry matching the USGS, EMSC and GFZ
// FDSN event web services.
func Default() *Registry {
	sources := []SourceConfig{
		{
			Name:             "usgs",
			BaseURL:          "https://earthquake.usgs.gov/fdsnws/event/1/query",
			PollIntervalSec:  60,
			MaxRetries:       3,
			RetryBackoffBase: 2.0,
			RateLimitRPM:     30,
			TimeoutSec:       15,
			Format:           FormatGeoJSONUSGS,
			Enabled:          true,
		},
		{
			Name:             "emsc",
			BaseURL:          "https://seismicportal.eu/fdsnws/event/1/query",
			PollIntervalSec:  120,
			MaxRetries:       3,
			RetryBackoffBase: 2.0,
			RateLimitRPM:     20,
			TimeoutSec:       20,
			Format:           FormatGeoJSONEMSC,
			Enabled:          true,
		},
		{
			Name:             "gfz",
			BaseURL:          "https://geofon.gfz.de/fdsnws/event/1/query",
			PollIntervalSec:  180,
			MaxRetries:       3,
			RetryBackoffBase: 2.0,
			RateLimitRPM:     10,
			TimeoutSec:       20,
			Format:           FormatFDSNText,
			Enabled:          true,
		},
	}
	r, err := New(sources, []string{"usgs", "emsc", "gfz"})
	if err != nil {
		// The built-in table is a compile-time constant; a failure here
		// indicates a programming error, not a runtime condition.
		panic(err)
	}
	return r
}
