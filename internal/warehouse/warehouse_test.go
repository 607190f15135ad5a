package warehouse

import (
	"context"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/couchcryptid/seismic-ingest/internal/domain"
)

func newMockClient(t *testing.T) (*Client, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.MonitorPingsOption(true))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	return &Client{db: sqlx.NewDb(db, "postgres")}, mock
}

func TestClient_AppendRaw_Empty(t *testing.T) {
	client, mock := newMockClient(t)
	require.NoError(t, client.AppendRaw(context.Background(), nil))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestClient_AppendRaw_InsertsEachEvent(t *testing.T) {
	client, mock := newMockClient(t)

	events := []domain.CanonicalEvent{
		{EventUID: "usgs:us1", Source: "usgs", SourceEventID: "us1", OriginTimeUTC: time.Now().UTC(), Status: domain.StatusAutomatic},
		{EventUID: "emsc:em1", Source: "emsc", SourceEventID: "em1", OriginTimeUTC: time.Now().UTC(), Status: domain.StatusAutomatic},
	}

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO raw_events").WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec("INSERT INTO raw_events").WillReturnResult(sqlmock.NewResult(2, 1))
	mock.ExpectCommit()

	require.NoError(t, client.AppendRaw(context.Background(), events))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestClient_AppendDeadLetters_InsertsEachRecord(t *testing.T) {
	client, mock := newMockClient(t)

	records := []domain.DeadLetterRecord{
		{Source: "usgs", ErrorMessages: []string{"latitude 95 out of range"}, CreatedAt: time.Now().UTC()},
	}

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO dead_letter_events").WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit()

	require.NoError(t, client.AppendDeadLetters(context.Background(), records))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestClient_UpsertUnified_UsesOnConflict(t *testing.T) {
	client, mock := newMockClient(t)

	events := []domain.UnifiedEvent{
		{UnifiedEventID: "UE-abc123", OriginTimeUTC: time.Now().UTC(), PreferredSource: "usgs", SourceEventUIDs: []string{"usgs:us1"}},
	}

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO unified_events").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	require.NoError(t, client.UpsertUnified(context.Background(), events))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestClient_UpsertCrosswalk_InsertsEachEntry(t *testing.T) {
	client, mock := newMockClient(t)

	entries := []domain.EventCrosswalkEntry{
		{EventUID: "usgs:us1", UnifiedEventID: "UE-abc123", MatchScore: 1.0, IsPreferred: true},
	}

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO event_crosswalk").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	require.NoError(t, client.UpsertCrosswalk(context.Background(), entries))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestClient_WriteRunLog_Succeeds(t *testing.T) {
	client, mock := newMockClient(t)

	log := domain.RunLog{
		RunID:          "run-1",
		StartedAt:      time.Now().UTC(),
		FinishedAt:     time.Now().UTC(),
		Status:         domain.RunStatusOK,
		SourcesFetched: []string{"usgs", "emsc"},
	}

	mock.ExpectExec("INSERT INTO pipeline_runs").WillReturnResult(sqlmock.NewResult(1, 1))

	require.NoError(t, client.WriteRunLog(context.Background(), log))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestClient_SourceHealth_ReturnsRows(t *testing.T) {
	client, mock := newMockClient(t)

	rows := sqlmock.NewRows([]string{"source", "event_count", "last_fetch_at"}).
		AddRow("usgs", 42, time.Now().UTC()).
		AddRow("emsc", 17, time.Now().UTC())

	mock.ExpectQuery("SELECT source, COUNT").WillReturnRows(rows)

	result, err := client.SourceHealth(context.Background(), time.Now().Add(-time.Hour))
	require.NoError(t, err)
	require.Len(t, result, 2)
	assert.Equal(t, "usgs", result[0].Source)
	assert.Equal(t, 42, result[0].EventCount)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestClient_RecentRawEvents_DedupesByEventUIDViaRowNumber(t *testing.T) {
	client, mock := newMockClient(t)

	cols := []string{
		"event_uid", "source", "source_event_id", "origin_time_utc", "latitude", "longitude",
		"depth_km", "magnitude_value", "magnitude_type", "place", "region", "status", "author",
		"url", "fetched_at", "updated_at",
	}
	rows := sqlmock.NewRows(cols).
		AddRow("usgs:us1", "usgs", "us1", time.Now().UTC(), 35.0, -120.0, 10.0, 5.0, "ml", "", "", "automatic", "", "", time.Now().UTC(), time.Now().UTC())

	mock.ExpectQuery(`(?s)ROW_NUMBER\(\) OVER \(PARTITION BY event_uid ORDER BY fetched_at DESC\).*WHERE rn = 1`).
		WillReturnRows(rows)

	events, err := client.RecentRawEvents(context.Background(), 6*time.Hour)
	require.NoError(t, err)
	require.Len(t, events, 1, "the rn = 1 filter must collapse a re-fetched event_uid to its latest row")
	assert.Equal(t, "usgs:us1", events[0].EventUID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestClient_GetUnifiedEvent_NotFound(t *testing.T) {
	client, mock := newMockClient(t)

	mock.ExpectQuery("SELECT unified_event_id").WillReturnRows(sqlmock.NewRows(nil))

	_, found, err := client.GetUnifiedEvent(context.Background(), "UE-missing")
	require.NoError(t, err)
	assert.False(t, found)
	assert.NoError(t, mock.ExpectationsWereMet())
}
