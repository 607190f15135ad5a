// Command seed runs a single fetch-parse-validate pass against one
// configured source and prints the resulting canonical events and dead
// letters as JSON, for local development without a warehouse connection.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	flag "github.com/spf13/pflag"

	"github.com/couchcryptid/seismic-ingest/internal/domain"
	"github.com/couchcryptid/seismic-ingest/internal/fetch"
	"github.com/couchcryptid/seismic-ingest/internal/observability"
	"github.com/couchcryptid/seismic-ingest/internal/parse"
	"github.com/couchcryptid/seismic-ingest/internal/registry"
)

func main() {
	source := flag.String("source", "usgs", "registry source name to fetch (usgs, emsc, gfz)")
	window := flag.Duration("window", time.Hour, "time window to fetch, ending now")
	minMag := flag.Float64("min-mag", 0.0, "minimum magnitude filter")
	flag.Parse()

	if err := run(*source, *window, *minMag); err != nil {
		fmt.Fprintln(os.Stderr, "seed:", err)
		os.Exit(1)
	}
}

func run(source string, window time.Duration, minMag float64) error {
	reg := registry.Default()
	src, ok := reg.Lookup(source)
	if !ok {
		return fmt.Errorf("unknown source %q", source)
	}

	parser, ok := parse.DefaultRegistry().Lookup(src.Format)
	if !ok {
		return fmt.Errorf("no parser registered for format %q", src.Format)
	}

	f := fetch.New(reg, observability.NewMetricsForTesting())

	windowEnd := time.Now().UTC()
	windowStart := windowEnd.Add(-window)

	body, err := f.Fetch(context.Background(), src, windowStart, windowEnd, minMag)
	if err != nil {
		return fmt.Errorf("fetch: %w", err)
	}

	events, err := parser.Parse(body, source, windowEnd)
	if err != nil {
		return printJSON(map[string]any{
			"source": source,
			"events": []domain.CanonicalEvent{},
			"dead_letters": []domain.DeadLetterRecord{{
				Source:        source,
				RawPayload:    body,
				ErrorMessages: []string{err.Error()},
				CreatedAt:     time.Now().UTC(),
			}},
		})
	}

	var valid []domain.CanonicalEvent
	var deadLetters []domain.DeadLetterRecord
	for _, e := range events {
		if errs := domain.Validate(e); len(errs) > 0 {
			deadLetters = append(deadLetters, domain.DeadLetterRecord{
				Source:        e.Source,
				SourceEventID: e.SourceEventID,
				RawPayload:    e.RawPayload,
				ErrorMessages: errs,
				CreatedAt:     time.Now().UTC(),
			})
			continue
		}
		valid = append(valid, e)
	}

	return printJSON(map[string]any{
		"source":       source,
		"events":       valid,
		"dead_letters": deadLetters,
	})
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
