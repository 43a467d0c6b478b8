package database

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/factchecker/citecheck/internal/models"
)

func newTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	store, err := NewSQLiteStore(filepath.Join(t.TempDir(), "nested", "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func TestMigrateIsIdempotent(t *testing.T) {
	store := newTestStore(t)
	require.NoError(t, store.Migrate())
}

func TestSaveAndGetRun(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	summary := &models.RunSummary{
		ID:        "run-1",
		Total:     2,
		Processed: 2,
		Verified:  1,
		NotFound:  1,
		Status:    "completed",
		CreatedAt: time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC),
	}
	results := []models.VerificationResult{
		{Index: 1, ReferenceText: "b", Status: models.StatusNotFound, Source: models.SourceWebEvidence, Message: "Not found or low confidence"},
		{Index: 0, ReferenceText: "a", Status: models.StatusVerified, Confidence: 1, Source: models.SourceIdentifierRegistry, Identifier: "10.1/x",
			SupportingDetails: &models.SupportingDetails{Title: "A", Year: 2020}},
	}
	require.NoError(t, store.SaveRun(ctx, summary, results))

	got, err := store.GetRun(ctx, "run-1")
	require.NoError(t, err)
	require.NotNil(t, got)

	assert.Equal(t, "completed", got.Summary.Status)
	assert.Equal(t, 1, got.Summary.Verified)
	assert.True(t, summary.CreatedAt.Equal(got.Summary.CreatedAt))
	require.Len(t, got.Results, 2)
	assert.Equal(t, 0, got.Results[0].Index)
	assert.Equal(t, "10.1/x", got.Results[0].Identifier)
	assert.Equal(t, 2020, got.Results[0].SupportingDetails.Year)
	assert.Equal(t, 1, got.Results[1].Index)
}

func TestGetRunMissing(t *testing.T) {
	store := newTestStore(t)
	got, err := store.GetRun(context.Background(), "nope")
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestListRunsNewestFirst(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	for i, id := range []string{"old", "mid", "new"} {
		require.NoError(t, store.SaveRun(ctx, &models.RunSummary{
			ID: id, Status: "completed", CreatedAt: base.Add(time.Duration(i) * time.Hour),
		}, nil))
	}

	runs, err := store.ListRuns(ctx, 2, 0)
	require.NoError(t, err)
	require.Len(t, runs, 2)
	assert.Equal(t, "new", runs[0].ID)
	assert.Equal(t, "mid", runs[1].ID)

	runs, err = store.ListRuns(ctx, 10, 2)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, "old", runs[0].ID)
}

func TestCacheEntries(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	now := time.Now()

	require.NoError(t, store.PutCacheEntry(ctx, "k1", []byte(`{"status":"verified"}`), now.Add(time.Hour)))
	require.NoError(t, store.PutCacheEntry(ctx, "k2", []byte(`{}`), now.Add(-time.Minute)))

	v, err := store.GetCacheEntry(ctx, "k1", now)
	require.NoError(t, err)
	assert.JSONEq(t, `{"status":"verified"}`, string(v))

	v, err = store.GetCacheEntry(ctx, "k2", now)
	require.NoError(t, err)
	assert.Nil(t, v)

	// Upsert replaces the value and expiry.
	require.NoError(t, store.PutCacheEntry(ctx, "k2", []byte(`{"status":"ambiguous"}`), now.Add(time.Hour)))
	n, err := store.CountCacheEntries(ctx, now)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	purged, err := store.PurgeExpiredCache(ctx, now.Add(2*time.Hour))
	require.NoError(t, err)
	assert.EqualValues(t, 2, purged)

	require.NoError(t, store.PutCacheEntry(ctx, "k3", []byte(`{}`), now.Add(time.Hour)))
	deleted, err := store.DeleteCacheEntries(ctx)
	require.NoError(t, err)
	assert.EqualValues(t, 1, deleted)
}

func TestAuditLogs(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.LogRequest(ctx, &models.AuditLog{
		ID: "a1", KeyID: "abc", Endpoint: "/api/v1/verify", Method: "POST",
		ResponseCode: 200, DurationMs: 12, Timestamp: time.Now().UTC(),
	}))

	logs, err := store.GetAuditLogs(ctx, 10, 0)
	require.NoError(t, err)
	require.Len(t, logs, 1)
	assert.Equal(t, "abc", logs[0].KeyID)
	assert.Equal(t, 200, logs[0].ResponseCode)
}
