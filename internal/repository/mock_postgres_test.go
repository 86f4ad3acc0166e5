package repository

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMockSaveDownload(t *testing.T) {
	m := NewMockDownloadRepository()

	err := m.SaveDownload(context.Background(), sampleEntry(), "task-1")
	require.NoError(t, err)

	assert.Equal(t, 1, m.SaveDownloadCalls)
	assert.True(t, m.WasDownloadSaved("abc123"))
	assert.False(t, m.WasDownloadSaved("missing"))
}

func TestMockSaveDownload_InjectedError(t *testing.T) {
	m := NewMockDownloadRepository()
	m.SaveDownloadError = errors.New("boom")

	err := m.SaveDownload(context.Background(), sampleEntry(), "task-1")
	assert.Error(t, err)
	assert.Equal(t, 1, m.SaveDownloadCalls)
	assert.False(t, m.WasDownloadSaved("abc123"))
}

func TestMockFailureLifecycle(t *testing.T) {
	m := NewMockDownloadRepository()
	ctx := context.Background()

	rec := FailureRecord{URL: "https://youtu.be/bad", Error: "boom", RetryCount: 3, FailedAt: time.Now()}
	require.NoError(t, m.LogFailure(ctx, rec))
	require.NoError(t, m.LogFailure(ctx, FailureRecord{URL: "https://youtu.be/other", FailedAt: time.Now()}))

	records, err := m.ListFailures(ctx, 10)
	require.NoError(t, err)
	assert.Len(t, records, 2)

	limited, err := m.ListFailures(ctx, 1)
	require.NoError(t, err)
	assert.Len(t, limited, 1)

	require.NoError(t, m.ClearFailure(ctx, "https://youtu.be/bad"))

	records, err = m.ListFailures(ctx, 10)
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, "https://youtu.be/other", records[0].URL)
}

func TestMockGetStats(t *testing.T) {
	m := NewMockDownloadRepository()
	ctx := context.Background()

	require.NoError(t, m.SaveDownload(ctx, sampleEntry(), "task-1"))
	require.NoError(t, m.LogFailure(ctx, FailureRecord{URL: "https://youtu.be/bad", FailedAt: time.Now()}))

	stats, err := m.GetStats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, stats.TotalDownloads)
	assert.Equal(t, 1, stats.CompletedCount)
	assert.Equal(t, 0, stats.FailedCount)
	assert.Equal(t, 1, stats.PendingFailures)
}
