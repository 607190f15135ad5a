// Package warehouse persists pipeline output to a Postgres-compatible
// analytical store: append-only raw and dead-letter logs, idempotently
// upserted unified events and crosswalk entries, and per-run audit rows.
package warehouse

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/couchcryptid/seismic-ingest/internal/domain"
)

// Client is a process-wide handle to the warehouse. The pipeline owns all
// writes; readers (the cache, the dashboard) only ever query committed rows.
type Client struct {
	db *sqlx.DB
}

// New opens a connection pool against dsn and verifies it is reachable.
func New(dsn string) (*Client, error) {
	db, err := sqlx.Connect("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("warehouse: connect: %w", err)
	}
	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("warehouse: ping: %w", err)
	}
	return &Client{db: db}, nil
}

// Close releases the connection pool.
func (c *Client) Close() error {
	return c.db.Close()
}

// Schema is the DDL this client expects to already exist. Migrations are
// applied out of band; this constant documents the contract for operators
// bootstrapping a fresh instance.
const Schema = `
CREATE TABLE IF NOT EXISTS raw_events (
	id              BIGSERIAL PRIMARY KEY,
	event_uid       TEXT NOT NULL,
	source          TEXT NOT NULL,
	source_event_id TEXT NOT NULL,
	origin_time_utc TIMESTAMPTZ NOT NULL,
	latitude        DOUBLE PRECISION NOT NULL,
	longitude       DOUBLE PRECISION NOT NULL,
	depth_km        DOUBLE PRECISION NOT NULL,
	magnitude_value DOUBLE PRECISION NOT NULL,
	magnitude_type  TEXT NOT NULL,
	place           TEXT,
	region          TEXT,
	status          TEXT NOT NULL,
	author          TEXT,
	url             TEXT,
	fetched_at      TIMESTAMPTZ NOT NULL,
	updated_at      TIMESTAMPTZ,
	raw_payload     TEXT
);

CREATE TABLE IF NOT EXISTS dead_letter_events (
	id              BIGSERIAL PRIMARY KEY,
	source          TEXT NOT NULL,
	source_event_id TEXT,
	raw_payload     TEXT,
	error_messages  TEXT[] NOT NULL,
	created_at      TIMESTAMPTZ NOT NULL
);

CREATE TABLE IF NOT EXISTS unified_events (
	unified_event_id       TEXT PRIMARY KEY,
	origin_time_utc        TIMESTAMPTZ NOT NULL,
	latitude               DOUBLE PRECISION NOT NULL,
	longitude              DOUBLE PRECISION NOT NULL,
	depth_km               DOUBLE PRECISION NOT NULL,
	magnitude_value        DOUBLE PRECISION NOT NULL,
	magnitude_type         TEXT NOT NULL,
	place                  TEXT,
	region                 TEXT,
	status                 TEXT NOT NULL,
	num_sources            INT NOT NULL,
	preferred_source       TEXT NOT NULL,
	source_event_uids      TEXT[] NOT NULL,
	magnitude_std          DOUBLE PRECISION NOT NULL,
	location_spread_km     DOUBLE PRECISION NOT NULL,
	source_agreement_score DOUBLE PRECISION NOT NULL,
	created_at             TIMESTAMPTZ NOT NULL,
	updated_at             TIMESTAMPTZ NOT NULL
);

CREATE TABLE IF NOT EXISTS event_crosswalk (
	event_uid        TEXT NOT NULL,
	unified_event_id TEXT NOT NULL REFERENCES unified_events(unified_event_id),
	match_score      DOUBLE PRECISION NOT NULL,
	is_preferred     BOOLEAN NOT NULL,
	PRIMARY KEY (event_uid, unified_event_id)
);

CREATE TABLE IF NOT EXISTS pipeline_runs (
	run_id          TEXT PRIMARY KEY,
	started_at      TIMESTAMPTZ NOT NULL,
	finished_at     TIMESTAMPTZ NOT NULL,
	status          TEXT NOT NULL,
	sources_fetched TEXT[] NOT NULL,
	raw_events      INT NOT NULL,
	unified_events  INT NOT NULL,
	dead_letters    INT NOT NULL,
	duration_sec    DOUBLE PRECISION NOT NULL,
	error_message   TEXT
);
`

// AppendRaw writes validated events to the append-only raw log. It is safe
// to call with an empty slice.
func (c *Client) AppendRaw(ctx context.Context, events []domain.CanonicalEvent) error {
	if len(events) == 0 {
		return nil
	}

	tx, err := c.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("warehouse: begin tx: %w", err)
	}
	defer tx.Rollback()

	const query = `
		INSERT INTO raw_events (
			event_uid, source, source_event_id, origin_time_utc, latitude, longitude,
			depth_km, magnitude_value, magnitude_type, place, region, status, author,
			url, fetched_at, updated_at, raw_payload
		) VALUES (
			:event_uid, :source, :source_event_id, :origin_time_utc, :latitude, :longitude,
			:depth_km, :magnitude_value, :magnitude_type, :place, :region, :status, :author,
			:url, :fetched_at, :updated_at, :raw_payload
		)`

	for _, e := range events {
		_, err := tx.NamedExecContext(ctx, query, rawEventParams(e))
		if err != nil {
			return fmt.Errorf("warehouse: insert raw event %s: %w", e.EventUID, err)
		}
	}

	return tx.Commit()
}

func rawEventParams(e domain.CanonicalEvent) map[string]any {
	return map[string]any{
		"event_uid":       e.EventUID,
		"source":          e.Source,
		"source_event_id": e.SourceEventID,
		"origin_time_utc": e.OriginTimeUTC,
		"latitude":        e.Latitude,
		"longitude":       e.Longitude,
		"depth_km":        e.DepthKM,
		"magnitude_value": e.MagnitudeValue,
		"magnitude_type":  e.MagnitudeType,
		"place":           e.Place,
		"region":          e.Region,
		"status":          e.Status,
		"author":          e.Author,
		"url":             e.URL,
		"fetched_at":      e.FetchedAt,
		"updated_at":      e.UpdatedAt,
		"raw_payload":     e.TruncatedRawPayload(),
	}
}

// AppendDeadLetters writes rejected/malformed records to the dead-letter
// log. Safe to call with an empty slice.
func (c *Client) AppendDeadLetters(ctx context.Context, records []domain.DeadLetterRecord) error {
	if len(records) == 0 {
		return nil
	}

	tx, err := c.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("warehouse: begin tx: %w", err)
	}
	defer tx.Rollback()

	const query = `
		INSERT INTO dead_letter_events (source, source_event_id, raw_payload, error_messages, created_at)
		VALUES ($1, $2, $3, $4, $5)`

	for _, r := range records {
		payload := r.RawPayload
		if len(payload) > domain.MaxRawPayloadLen {
			payload = payload[:domain.MaxRawPayloadLen]
		}
		_, err := tx.ExecContext(ctx, query, r.Source, r.SourceEventID, payload, sqlxStringArray(r.ErrorMessages), r.CreatedAt)
		if err != nil {
			return fmt.Errorf("warehouse: insert dead letter for %s: %w", r.Source, err)
		}
	}

	return tx.Commit()
}

// UpsertUnified idempotently writes unified events: inserting first-seen
// clusters, refreshing membership and quality metrics for clusters seen
// before.
func (c *Client) UpsertUnified(ctx context.Context, events []domain.UnifiedEvent) error {
	if len(events) == 0 {
		return nil
	}

	tx, err := c.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("warehouse: begin tx: %w", err)
	}
	defer tx.Rollback()

	const query = `
		INSERT INTO unified_events (
			unified_event_id, origin_time_utc, latitude, longitude, depth_km,
			magnitude_value, magnitude_type, place, region, status,
			num_sources, preferred_source, source_event_uids,
			magnitude_std, location_spread_km, source_agreement_score,
			created_at, updated_at
		) VALUES (
			$1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18
		) ON CONFLICT (unified_event_id) DO UPDATE SET
			origin_time_utc = EXCLUDED.origin_time_utc,
			latitude = EXCLUDED.latitude,
			longitude = EXCLUDED.longitude,
			depth_km = EXCLUDED.depth_km,
			magnitude_value = EXCLUDED.magnitude_value,
			magnitude_type = EXCLUDED.magnitude_type,
			place = EXCLUDED.place,
			region = EXCLUDED.region,
			status = EXCLUDED.status,
			num_sources = EXCLUDED.num_sources,
			preferred_source = EXCLUDED.preferred_source,
			source_event_uids = EXCLUDED.source_event_uids,
			magnitude_std = EXCLUDED.magnitude_std,
			location_spread_km = EXCLUDED.location_spread_km,
			source_agreement_score = EXCLUDED.source_agreement_score,
			updated_at = EXCLUDED.updated_at`

	now := time.Now().UTC()
	for _, e := range events {
		_, err := tx.ExecContext(ctx, query,
			e.UnifiedEventID, e.OriginTimeUTC, e.Latitude, e.Longitude, e.DepthKM,
			e.MagnitudeValue, e.MagnitudeType, e.Place, e.Region, e.Status,
			e.NumSources, e.PreferredSource, sqlxStringArray(e.SourceEventUIDs),
			e.MagnitudeStd, e.LocationSpreadKM, e.SourceAgreementScore,
			now, now,
		)
		if err != nil {
			return fmt.Errorf("warehouse: upsert unified event %s: %w", e.UnifiedEventID, err)
		}
	}

	return tx.Commit()
}

// UpsertCrosswalk idempotently records, for each cluster member, its match
// score against the cluster's preferred member.
func (c *Client) UpsertCrosswalk(ctx context.Context, entries []domain.EventCrosswalkEntry) error {
	if len(entries) == 0 {
		return nil
	}

	tx, err := c.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("warehouse: begin tx: %w", err)
	}
	defer tx.Rollback()

	const query = `
		INSERT INTO event_crosswalk (event_uid, unified_event_id, match_score, is_preferred)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (event_uid, unified_event_id) DO UPDATE SET
			match_score = EXCLUDED.match_score,
			is_preferred = EXCLUDED.is_preferred`

	for _, e := range entries {
		_, err := tx.ExecContext(ctx, query, e.EventUID, e.UnifiedEventID, e.MatchScore, e.IsPreferred)
		if err != nil {
			return fmt.Errorf("warehouse: upsert crosswalk for %s: %w", e.EventUID, err)
		}
	}

	return tx.Commit()
}

// WriteRunLog records one invocation's outcome. Callers must not let a
// failure here fail the cycle: a run log write failure is logged and
// swallowed, never propagated as a cycle failure.
func (c *Client) WriteRunLog(ctx context.Context, log domain.RunLog) error {
	const query = `
		INSERT INTO pipeline_runs (
			run_id, started_at, finished_at, status, sources_fetched,
			raw_events, unified_events, dead_letters, duration_sec, error_message
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`

	_, err := c.db.ExecContext(ctx, query,
		log.RunID, log.StartedAt, log.FinishedAt, log.Status, sqlxStringArray(log.SourcesFetched),
		log.RawEvents, log.UnifiedEvents, log.DeadLetters, log.DurationSec, log.TruncatedErrorMessage(),
	)
	if err != nil {
		return fmt.Errorf("warehouse: write run log %s: %w", log.RunID, err)
	}
	return nil
}

// RecentRawEvents returns raw events whose origin time falls within the
// lookback window, deduplicated by event_uid keeping the latest fetched_at, ordered by origin
// time, for the clusterer to re-examine each cycle.
func (c *Client) RecentRawEvents(ctx context.Context, lookback time.Duration) ([]domain.CanonicalEvent, error) {
	const query = `
		WITH ranked AS (
			SELECT event_uid, source, source_event_id, origin_time_utc, latitude, longitude,
			       depth_km, magnitude_value, magnitude_type, place, region, status, author,
			       url, fetched_at, updated_at,
			       ROW_NUMBER() OVER (PARTITION BY event_uid ORDER BY fetched_at DESC) AS rn
			FROM raw_events
			WHERE origin_time_utc >= $1
		)
		SELECT event_uid, source, source_event_id, origin_time_utc, latitude, longitude,
		       depth_km, magnitude_value, magnitude_type, place, region, status, author,
		       url, fetched_at, updated_at
		FROM ranked
		WHERE rn = 1
		ORDER BY origin_time_utc`

	since := time.Now().UTC().Add(-lookback)

	rows, err := c.db.QueryxContext(ctx, query, since)
	if err != nil {
		return nil, fmt.Errorf("warehouse: query recent raw events: %w", err)
	}
	defer rows.Close()

	var events []domain.CanonicalEvent
	for rows.Next() {
		var row rawEventRow
		if err := rows.StructScan(&row); err != nil {
			return nil, fmt.Errorf("warehouse: scan raw event: %w", err)
		}
		events = append(events, row.toDomain())
	}
	return events, rows.Err()
}

type rawEventRow struct {
	EventUID       string     `db:"event_uid"`
	Source         string     `db:"source"`
	SourceEventID  string     `db:"source_event_id"`
	OriginTimeUTC  time.Time  `db:"origin_time_utc"`
	Latitude       float64    `db:"latitude"`
	Longitude      float64    `db:"longitude"`
	DepthKM        float64    `db:"depth_km"`
	MagnitudeValue float64    `db:"magnitude_value"`
	MagnitudeType  string     `db:"magnitude_type"`
	Place          *string    `db:"place"`
	Region         *string    `db:"region"`
	Status         string     `db:"status"`
	Author         *string    `db:"author"`
	URL            *string    `db:"url"`
	FetchedAt      time.Time  `db:"fetched_at"`
	UpdatedAt      *time.Time `db:"updated_at"`
}

func (r rawEventRow) toDomain() domain.CanonicalEvent {
	return domain.CanonicalEvent{
		EventUID:       r.EventUID,
		Source:         r.Source,
		SourceEventID:  r.SourceEventID,
		OriginTimeUTC:  r.OriginTimeUTC,
		Latitude:       r.Latitude,
		Longitude:      r.Longitude,
		DepthKM:        r.DepthKM,
		MagnitudeValue: r.MagnitudeValue,
		MagnitudeType:  r.MagnitudeType,
		Place:          derefString(r.Place),
		Region:         derefString(r.Region),
		Status:         r.Status,
		Author:         derefString(r.Author),
		URL:            derefString(r.URL),
		FetchedAt:      r.FetchedAt,
		UpdatedAt:      r.UpdatedAt,
	}
}

func derefString(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

// SourceHealthRow summarizes the raw events one source produced recently
// (count and latest fetched_at), backing the supplemented /sources/health
// endpoint.
type SourceHealthRow struct {
	Source       string     `db:"source"`
	EventCount   int        `db:"event_count"`
	LastFetchAt  *time.Time `db:"last_fetch_at"`
}

// SourceHealth aggregates raw_events by source since the given time,
// giving an operator visibility into which catalogs are actively producing
// data without needing the full run log.
func (c *Client) SourceHealth(ctx context.Context, since time.Time) ([]SourceHealthRow, error) {
	const query = `
		SELECT source, COUNT(*) AS event_count, MAX(fetched_at) AS last_fetch_at
		FROM raw_events
		WHERE fetched_at >= $1
		GROUP BY source
		ORDER BY source`

	var rows []SourceHealthRow
	if err := c.db.SelectContext(ctx, &rows, query, since); err != nil {
		return nil, fmt.Errorf("warehouse: query source health: %w", err)
	}
	return rows, nil
}

// GetUnifiedEvent looks up one unified event by id, used by the warehouse
// read cache on a miss.
func (c *Client) GetUnifiedEvent(ctx context.Context, unifiedEventID string) (domain.UnifiedEvent, bool, error) {
	const query = `
		SELECT unified_event_id, origin_time_utc, latitude, longitude, depth_km,
		       magnitude_value, magnitude_type, place, region, status,
		       num_sources, preferred_source, source_event_uids,
		       magnitude_std, location_spread_km, source_agreement_score,
		       created_at, updated_at
		FROM unified_events WHERE unified_event_id = $1`

	var row unifiedEventRow
	err := c.db.GetContext(ctx, &row, query, unifiedEventID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.UnifiedEvent{}, false, nil
		}
		return domain.UnifiedEvent{}, false, fmt.Errorf("warehouse: get unified event %s: %w", unifiedEventID, err)
	}
	return row.toDomain(), true, nil
}

type unifiedEventRow struct {
	UnifiedEventID       string    `db:"unified_event_id"`
	OriginTimeUTC        time.Time `db:"origin_time_utc"`
	Latitude             float64   `db:"latitude"`
	Longitude            float64   `db:"longitude"`
	DepthKM              float64   `db:"depth_km"`
	MagnitudeValue       float64   `db:"magnitude_value"`
	MagnitudeType        string    `db:"magnitude_type"`
	Place                *string   `db:"place"`
	Region               *string   `db:"region"`
	Status               string    `db:"status"`
	NumSources           int            `db:"num_sources"`
	PreferredSource      string         `db:"preferred_source"`
	SourceEventUIDs      pq.StringArray `db:"source_event_uids"`
	MagnitudeStd         float64        `db:"magnitude_std"`
	LocationSpreadKM     float64   `db:"location_spread_km"`
	SourceAgreementScore float64   `db:"source_agreement_score"`
	CreatedAt            time.Time `db:"created_at"`
	UpdatedAt            time.Time `db:"updated_at"`
}

func (r unifiedEventRow) toDomain() domain.UnifiedEvent {
	return domain.UnifiedEvent{
		UnifiedEventID:       r.UnifiedEventID,
		OriginTimeUTC:        r.OriginTimeUTC,
		Latitude:             r.Latitude,
		Longitude:            r.Longitude,
		DepthKM:              r.DepthKM,
		MagnitudeValue:       r.MagnitudeValue,
		MagnitudeType:        r.MagnitudeType,
		Place:                derefString(r.Place),
		Region:               derefString(r.Region),
		Status:               r.Status,
		NumSources:           r.NumSources,
		PreferredSource:      r.PreferredSource,
		SourceEventUIDs:      []string(r.SourceEventUIDs),
		MagnitudeStd:         r.MagnitudeStd,
		LocationSpreadKM:     r.LocationSpreadKM,
		SourceAgreementScore: r.SourceAgreementScore,
		CreatedAt:            r.CreatedAt,
		UpdatedAt:            r.UpdatedAt,
	}
}

// sqlxStringArray adapts a []string for the lib/pq TEXT[] driver value.
func sqlxStringArray(ss []string) interface{} {
	return pq.Array(ss)
}
