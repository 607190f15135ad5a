// Command ingest runs the seismic ingestion HTTP service: POST /ingest
// triggers one fetch-parse-cluster-unify-upsert cycle against every
// enabled source.
package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/couchcryptid/seismic-ingest/internal/config"
	"github.com/couchcryptid/seismic-ingest/internal/domain"
	"github.com/couchcryptid/seismic-ingest/internal/fetch"
	"github.com/couchcryptid/seismic-ingest/internal/httpapi"
	"github.com/couchcryptid/seismic-ingest/internal/observability"
	"github.com/couchcryptid/seismic-ingest/internal/parse"
	"github.com/couchcryptid/seismic-ingest/internal/pipeline"
	"github.com/couchcryptid/seismic-ingest/internal/registry"
	"github.com/couchcryptid/seismic-ingest/internal/warehouse"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger := observability.NewLogger(cfg.LogLevel, cfg.LogFormat)
	metrics := observability.NewMetrics()

	wh, err := warehouse.New(cfg.WarehouseDSN)
	if err != nil {
		logger.Error("failed to connect to warehouse", "error", err)
		os.Exit(1)
	}

	reg := registry.Default()
	fetcher := fetch.New(reg, metrics)
	parsers := parse.DefaultRegistry()

	p := pipeline.New(
		reg, fetcher, parsers, wh, logger, metrics,
		time.Duration(cfg.FetchWindowMinutes)*time.Minute,
		time.Duration(cfg.DedupLookbackHours)*time.Hour,
		cfg.MinMagnitude,
	)

	cache := warehouse.NewCachedReader(wh, cfg.WarehouseCacheSize, metrics)

	srv := httpapi.NewServer(cfg.HTTPAddr, &cycleRunnerAdapter{p: p}, p, &sourceHealthAdapter{wh: wh}, &eventReaderAdapter{cache: cache}, logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	go func() {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server error", "error", err)
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("http server shutdown error", "error", err)
	}
	if err := wh.Close(); err != nil {
		logger.Error("warehouse close error", "error", err)
	}

	logger.Info("shutdown complete")
}

// cycleRunnerAdapter adapts *pipeline.Pipeline's RunCycle result type to
// httpapi.CycleResult so internal/httpapi need not import internal/pipeline.
type cycleRunnerAdapter struct {
	p *pipeline.Pipeline
}

func (a *cycleRunnerAdapter) RunCycle(ctx context.Context) (httpapi.CycleResult, error) {
	result, err := a.p.RunCycle(ctx)
	if err != nil {
		return httpapi.CycleResult{}, err
	}
	return httpapi.CycleResult{
		RunID:         result.RunID,
		Sources:       result.Sources,
		RawEvents:     result.RawEvents,
		UnifiedEvents: result.UnifiedEvents,
		DeadLetters:   result.DeadLetters,
		DurationSec:   result.DurationSec,
	}, nil
}

// sourceHealthAdapter adapts *warehouse.Client's SourceHealth row type to
// httpapi.SourceHealthRow for the same reason.
type sourceHealthAdapter struct {
	wh *warehouse.Client
}

func (a *sourceHealthAdapter) SourceHealth(ctx context.Context, since time.Time) ([]httpapi.SourceHealthRow, error) {
	rows, err := a.wh.SourceHealth(ctx, since)
	if err != nil {
		return nil, err
	}
	out := make([]httpapi.SourceHealthRow, len(rows))
	for i, r := range rows {
		out[i] = httpapi.SourceHealthRow{
			Source:      r.Source,
			EventCount:  r.EventCount,
			LastFetchAt: r.LastFetchAt,
		}
	}
	return out, nil
}

// eventReaderAdapter adapts *warehouse.CachedReader's domain.UnifiedEvent
// to httpapi.UnifiedEvent for the same reason as the adapters above.
type eventReaderAdapter struct {
	cache *warehouse.CachedReader
}

func (a *eventReaderAdapter) GetUnifiedEvent(ctx context.Context, unifiedEventID string) (httpapi.UnifiedEvent, bool, error) {
	e, found, err := a.cache.GetUnifiedEvent(ctx, unifiedEventID)
	if err != nil || !found {
		return httpapi.UnifiedEvent{}, found, err
	}
	return toHTTPUnifiedEvent(e), true, nil
}

func toHTTPUnifiedEvent(e domain.UnifiedEvent) httpapi.UnifiedEvent {
	return httpapi.UnifiedEvent{
		UnifiedEventID:       e.UnifiedEventID,
		OriginTimeUTC:        e.OriginTimeUTC,
		Latitude:             e.Latitude,
		Longitude:            e.Longitude,
		DepthKM:              e.DepthKM,
		MagnitudeValue:       e.MagnitudeValue,
		MagnitudeType:        e.MagnitudeType,
		Place:                e.Place,
		Region:               e.Region,
		Status:               e.Status,
		NumSources:           e.NumSources,
		PreferredSource:      e.PreferredSource,
		SourceEventUIDs:      e.SourceEventUIDs,
		MagnitudeStd:         e.MagnitudeStd,
		LocationSpreadKM:     e.LocationSpreadKM,
		SourceAgreementScore: e.SourceAgreementScore,
	}
}
