// Package pipeline orchestrates one ingestion cycle: fetch every enabled
// source, parse and validate the payloads, cluster and unify the surviving
// events, and persist the result to the warehouse.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/couchcryptid/seismic-ingest/internal/cluster"
	"github.com/couchcryptid/seismic-ingest/internal/domain"
	"github.com/couchcryptid/seismic-ingest/internal/fetch"
	"github.com/couchcryptid/seismic-ingest/internal/observability"
	"github.com/couchcryptid/seismic-ingest/internal/parse"
	"github.com/couchcryptid/seismic-ingest/internal/registry"
	"github.com/couchcryptid/seismic-ingest/internal/unify"
)

// Fetcher retrieves the payload of every given source for a time window.
type Fetcher interface {
	FetchAll(ctx context.Context, sources []registry.SourceConfig, windowStart, windowEnd time.Time, minMagnitude float64) []fetch.Result
}

// Warehouse is the storage surface the pipeline writes a cycle's output to.
type Warehouse interface {
	AppendRaw(ctx context.Context, events []domain.CanonicalEvent) error
	AppendDeadLetters(ctx context.Context, records []domain.DeadLetterRecord) error
	UpsertUnified(ctx context.Context, events []domain.UnifiedEvent) error
	UpsertCrosswalk(ctx context.Context, entries []domain.EventCrosswalkEntry) error
	WriteRunLog(ctx context.Context, log domain.RunLog) error
	RecentRawEvents(ctx context.Context, lookback time.Duration) ([]domain.CanonicalEvent, error)
}

// Result is what one RunCycle invocation reports back to its caller (the
// HTTP trigger handler).
type Result struct {
	RunID         string
	Sources       []string
	RawEvents     int
	UnifiedEvents int
	DeadLetters   int
	DurationSec   float64
}

// Pipeline wires the fetch, parse, validate, cluster, unify and warehouse
// stages into one cycle.
type Pipeline struct {
	reg        *registry.Registry
	fetcher    Fetcher
	parsers    parse.Registry
	unifier    *unify.Unifier
	warehouse  Warehouse
	logger     *slog.Logger
	metrics    *observability.Metrics

	fetchWindow  time.Duration
	dedupLookback time.Duration
	minMagnitude float64

	ready atomic.Bool
}

// CheckReadiness returns nil once the pipeline has completed at least one
// cycle, or an error describing why the service is not yet ready.
func (p *Pipeline) CheckReadiness(_ context.Context) error {
	if !p.ready.Load() {
		return errors.New("pipeline has not completed a cycle yet")
	}
	return nil
}

// New creates a Pipeline with the given stages and observability.
func New(reg *registry.Registry, f Fetcher, parsers parse.Registry, wh Warehouse, logger *slog.Logger, metrics *observability.Metrics, fetchWindow, dedupLookback time.Duration, minMagnitude float64) *Pipeline {
	return &Pipeline{
		reg:           reg,
		fetcher:       f,
		parsers:       parsers,
		unifier:       unify.New(reg),
		warehouse:     wh,
		logger:        logger,
		metrics:       metrics,
		fetchWindow:   fetchWindow,
		dedupLookback: dedupLookback,
		minMagnitude:  minMagnitude,
	}
}

// RunCycle executes one fetch-parse-validate-cluster-unify-upsert pass and
// reports its outcome. A cycle fails only if every enabled source's fetch
// failed, or if the raw append, the recent-window read or the unified upsert
// errors; dead-letter, crosswalk and run-log write failures are logged and
// swallowed, never turned into a cycle failure.
func (p *Pipeline) RunCycle(ctx context.Context) (Result, error) {
	runID := "run-" + uuid.NewString()
	started := time.Now().UTC()
	start := time.Now()

	p.logger.Info("cycle started", "run_id", runID)
	p.metrics.CyclesRun.Inc()

	sources := p.reg.Enabled()
	windowEnd := time.Now().UTC()
	windowStart := windowEnd.Add(-p.fetchWindow)

	fetchResults := p.fetcher.FetchAll(ctx, sources, windowStart, windowEnd, p.minMagnitude)

	var (
		validated    []domain.CanonicalEvent
		deadLetters  []domain.DeadLetterRecord
		fetchedNames []string
		anySucceeded bool
	)

	for _, res := range fetchResults {
		if res.Err != nil {
			p.metrics.SourceFetches.WithLabelValues(res.Source, "error").Inc()
			p.logger.Error("fetch failed", "run_id", runID, "source", res.Source, "error", res.Err)
			continue
		}
		anySucceeded = true
		fetchedNames = append(fetchedNames, res.Source)
		p.metrics.SourceFetches.WithLabelValues(res.Source, "success").Inc()

		src, _ := p.reg.Lookup(res.Source)
		parser, ok := p.parsers.Lookup(src.Format)
		if !ok {
			p.logger.Error("no parser for format", "run_id", runID, "source", res.Source, "format", src.Format)
			continue
		}

		events, err := parser.Parse(res.Body, res.Source, windowEnd)
		if err != nil {
			p.logger.Error("parse failed, diverting payload to dead letter", "run_id", runID, "source", res.Source, "error", err)
			deadLetters = append(deadLetters, domain.DeadLetterRecord{
				Source:        res.Source,
				RawPayload:    res.Body,
				ErrorMessages: []string{err.Error()},
				CreatedAt:     time.Now().UTC(),
			})
			continue
		}

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
			validated = append(validated, e)
		}
	}

	if !anySucceeded && len(sources) > 0 {
		p.metrics.CyclesFailed.Inc()
		err := fmt.Errorf("pipeline: all %d enabled source(s) failed to fetch", len(sources))
		p.writeRunLog(ctx, domain.RunLog{
			RunID:          runID,
			StartedAt:      started,
			FinishedAt:     time.Now().UTC(),
			Status:         domain.RunStatusFailed,
			SourcesFetched: fetchedNames,
			DurationSec:    time.Since(start).Seconds(),
			ErrorMessage:   err.Error(),
		})
		return Result{}, err
	}

	if err := p.warehouse.AppendRaw(ctx, validated); err != nil {
		p.metrics.CyclesFailed.Inc()
		wrapped := fmt.Errorf("pipeline: append raw events: %w", err)
		p.writeRunLog(ctx, domain.RunLog{
			RunID: runID, StartedAt: started, FinishedAt: time.Now().UTC(),
			Status: domain.RunStatusFailed, SourcesFetched: fetchedNames,
			DurationSec: time.Since(start).Seconds(), ErrorMessage: wrapped.Error(),
		})
		return Result{}, wrapped
	}
	p.metrics.RawEventsIngested.Add(float64(len(validated)))

	if err := p.warehouse.AppendDeadLetters(ctx, deadLetters); err != nil {
		p.logger.Error("dead letter append failed", "run_id", runID, "error", err)
	}
	p.metrics.DeadLetterEvents.Add(float64(len(deadLetters)))

	recent, err := p.warehouse.RecentRawEvents(ctx, p.dedupLookback)
	if err != nil {
		p.metrics.CyclesFailed.Inc()
		wrapped := fmt.Errorf("pipeline: load recent raw events: %w", err)
		p.writeRunLog(ctx, domain.RunLog{
			RunID: runID, StartedAt: started, FinishedAt: time.Now().UTC(),
			Status: domain.RunStatusFailed, SourcesFetched: fetchedNames,
			RawEvents: len(validated), DurationSec: time.Since(start).Seconds(), ErrorMessage: wrapped.Error(),
		})
		return Result{}, wrapped
	}

	clusters := cluster.Cluster(recent)
	p.metrics.ClustersFormed.Observe(float64(len(clusters)))

	unifiedEvents := make([]domain.UnifiedEvent, 0, len(clusters))
	crosswalkEntries := make([]domain.EventCrosswalkEntry, 0, len(clusters))
	now := time.Now().UTC()
	for _, c := range clusters {
		unified, crosswalk := p.unifier.Unify(c)
		unified.CreatedAt = now
		unified.UpdatedAt = now
		unifiedEvents = append(unifiedEvents, unified)
		crosswalkEntries = append(crosswalkEntries, crosswalk...)
	}

	if err := p.warehouse.UpsertUnified(ctx, unifiedEvents); err != nil {
		p.metrics.CyclesFailed.Inc()
		wrapped := fmt.Errorf("pipeline: upsert unified events: %w", err)
		p.writeRunLog(ctx, domain.RunLog{
			RunID: runID, StartedAt: started, FinishedAt: time.Now().UTC(),
			Status: domain.RunStatusFailed, SourcesFetched: fetchedNames,
			RawEvents: len(validated), DurationSec: time.Since(start).Seconds(), ErrorMessage: wrapped.Error(),
		})
		return Result{}, wrapped
	}
	if err := p.warehouse.UpsertCrosswalk(ctx, crosswalkEntries); err != nil {
		p.logger.Error("crosswalk upsert failed", "run_id", runID, "error", err)
	}
	p.metrics.UnifiedEventsUpserted.Add(float64(len(unifiedEvents)))

	duration := time.Since(start).Seconds()
	p.metrics.CycleDuration.Observe(duration)
	p.metrics.PipelineReady.Set(1)
	p.ready.Store(true)

	result := Result{
		RunID:         runID,
		Sources:       fetchedNames,
		RawEvents:     len(validated),
		UnifiedEvents: len(unifiedEvents),
		DeadLetters:   len(deadLetters),
		DurationSec:   duration,
	}

	p.writeRunLog(ctx, domain.RunLog{
		RunID:          runID,
		StartedAt:      started,
		FinishedAt:     time.Now().UTC(),
		Status:         domain.RunStatusOK,
		SourcesFetched: fetchedNames,
		RawEvents:      result.RawEvents,
		UnifiedEvents:  result.UnifiedEvents,
		DeadLetters:    result.DeadLetters,
		DurationSec:    duration,
	})

	p.logger.Info("cycle finished", "run_id", runID,
		"raw_events", result.RawEvents, "unified_events", result.UnifiedEvents,
		"dead_letters", result.DeadLetters, "duration_s", duration)

	return result, nil
}

// writeRunLog persists the run log, logging and swallowing any failure: a
// failure to record history must never fail the cycle it is recording.
func (p *Pipeline) writeRunLog(ctx context.Context, log domain.RunLog) {
	if err := p.warehouse.WriteRunLog(ctx, log); err != nil {
		p.logger.Error("run log write failed", "run_id", log.RunID, "error", err)
	}
}
