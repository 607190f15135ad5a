// Package domain holds the canonical data model shared by every stage of the
// ingestion pipeline: parsers produce CanonicalEvent values, the validator
// screens them, the clusterer groups them, and the unifier folds a Cluster
// into a UnifiedEvent.
package domain

import "time"

// Status values a CanonicalEvent or UnifiedEvent may carry.
const (
	StatusAutomatic = "automatic"
	StatusReviewed  = "reviewed"
	StatusDeleted   = "deleted"
)

// CanonicalEvent is one normalized observation of one earthquake by one
// catalog. It is immutable once constructed by a parser.
type CanonicalEvent struct {
	EventUID       string // "{source}:{source_event_id}"
	Source         string
	SourceEventID  string

	OriginTimeUTC time.Time
	Latitude      float64
	Longitude     float64
	DepthKM       float64

	MagnitudeValue float64
	MagnitudeType  string // lowercase: "mw", "ml", "mb", "ms", "md"

	Place  string
	Region string

	// Uncertainty, all optional (nil = not reported by the source).
	LatErrorKM   *float64
	LonErrorKM   *float64
	DepthErrorKM *float64
	MagError     *float64
	TimeErrorSec *float64

	Status       string
	NumPhases    *int
	AzimuthalGap *float64

	Author string
	URL    string

	FetchedAt  time.Time
	UpdatedAt  *time.Time
	RawPayload string // truncated to MaxRawPayloadLen before persistence
}

// MaxRawPayloadLen is the character cap applied to raw payload fields before
// they are written to the warehouse (spec: dead-letter/raw rows truncate to
// 10,000 characters).
const MaxRawPayloadLen = 10000

// TruncatedRawPayload returns RawPayload capped to MaxRawPayloadLen.
func (e CanonicalEvent) TruncatedRawPayload() string {
	return truncate(e.RawPayload, MaxRawPayloadLen)
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}

// DeadLetterRecord is a terminal record of a malformed or rejected event.
type DeadLetterRecord struct {
	Source        string
	SourceEventID string // may be empty for whole-payload parse failures
	RawPayload    string
	ErrorMessages []string
	CreatedAt     time.Time
}

// Cluster is a transient group of CanonicalEvents believed to describe one
// physical earthquake. Rebuilt every cycle by the clusterer; never persisted.
type Cluster struct {
	Members []CanonicalEvent
}

// Anchor returns the first member inserted into the cluster — the member
// every subsequent candidate is scored against.
func (c *Cluster) Anchor() CanonicalEvent {
	return c.Members[0]
}

// NumSources returns the count of distinct source catalogs represented.
func (c *Cluster) NumSources() int {
	seen := map[string]struct{}{}
	for _, m := range c.Members {
		seen[m.Source] = struct{}{}
	}
	return len(seen)
}

// UnifiedEvent is the deduplicated, cross-catalog best estimate of one
// physical earthquake. Persistent; re-upserted every cycle under the same
// UnifiedEventID as membership evolves.
type UnifiedEvent struct {
	UnifiedEventID string

	OriginTimeUTC time.Time
	Latitude      float64
	Longitude     float64
	DepthKM       float64

	MagnitudeValue float64
	MagnitudeType  string
	Place          string
	Region         string
	Status         string

	NumSources       int
	PreferredSource  string
	SourceEventUIDs  []string

	MagnitudeStd         float64
	LocationSpreadKM     float64
	SourceAgreementScore float64

	CreatedAt time.Time
	UpdatedAt time.Time
}

// EventCrosswalkEntry records, per cluster member, how strongly it matched
// the cluster's preferred member and whether it was the one chosen. This is
// an auditability supplement (see DESIGN.md) not present in the distilled
// spec's UnifiedEvent alone.
type EventCrosswalkEntry struct {
	EventUID       string
	UnifiedEventID string
	MatchScore     float64
	IsPreferred    bool
}

// RunLog records the outcome of a single pipeline invocation.
type RunLog struct {
	RunID          string
	StartedAt      time.Time
	FinishedAt     time.Time
	Status         string // "ok" or "failed"
	SourcesFetched []string
	RawEvents      int
	UnifiedEvents  int
	DeadLetters    int
	DurationSec    float64
	ErrorMessage   string
}

// RunLogStatus values.
const (
	RunStatusOK     = "ok"
	RunStatusFailed = "failed"
)

// MaxRunLogErrorLen bounds the error message persisted with a failed run.
const MaxRunLogErrorLen = 2000

// TruncatedErrorMessage returns ErrorMessage capped to MaxRunLogErrorLen.
func (r RunLog) TruncatedErrorMessage() string {
	return truncate(r.ErrorMessage, MaxRunLogErrorLen)
}
