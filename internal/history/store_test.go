package history

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func completedEntry(videoID, title, uploader string, duration int) *Entry {
	return &Entry{
		VideoID:         videoID,
		URL:             "https://youtu.be/" + videoID,
		Title:           title,
		Uploader:        uploader,
		DurationSeconds: duration,
		FilePath:        "downloads/" + videoID + ".mp3",
		ContentHash:     "hash-" + videoID,
		DownloadedAt:    time.Now(),
		Status:          StatusCompleted,
	}
}

func TestRecordAndLookup(t *testing.T) {
	s := NewStore(nil)

	entry := completedEntry("abc123", "Song X", "Uploader One", 200)
	s.Record(entry)

	found, ok := s.Lookup("abc123")
	require.True(t, ok)
	assert.Equal(t, entry.Title, found.Title)
	assert.Equal(t, entry.FilePath, found.FilePath)

	_, ok = s.Lookup("missing")
	assert.False(t, ok)
}

func TestLookup_ReturnsCopy(t *testing.T) {
	s := NewStore(nil)
	s.Record(completedEntry("abc123", "Song X", "Uploader One", 200))

	found, ok := s.Lookup("abc123")
	require.True(t, ok)

	found.Title = "mutated"

	again, ok := s.Lookup("abc123")
	require.True(t, ok)
	assert.Equal(t, "Song X", again.Title)
}

func TestLookupByFingerprint(t *testing.T) {
	s := NewStore(nil)
	entry := completedEntry("abc123", "Song X", "Uploader One", 200)
	s.Record(entry)

	found, ok := s.LookupByFingerprint("hash-abc123")
	require.True(t, ok)
	assert.Equal(t, "abc123", found.VideoID)

	_, ok = s.LookupByFingerprint("unknown-hash")
	assert.False(t, ok)
}

func TestLookupByFingerprint_IgnoresFailedEntries(t *testing.T) {
	s := NewStore(nil)
	entry := completedEntry("abc123", "Song X", "Uploader One", 200)
	entry.Status = StatusFailed
	s.Record(entry)

	_, ok := s.LookupByFingerprint("hash-abc123")
	assert.False(t, ok)
}

func TestRecord_Upserts(t *testing.T) {
	s := NewStore(nil)

	s.Record(completedEntry("abc123", "Song X", "Uploader One", 200))
	updated := completedEntry("abc123", "Song X (fixed)", "Uploader One", 200)
	s.Record(updated)

	assert.Equal(t, 1, s.Len())

	found, ok := s.Lookup("abc123")
	require.True(t, ok)
	assert.Equal(t, "Song X (fixed)", found.Title)
}

func TestFindSimilar(t *testing.T) {
	s := NewStore(nil)
	s.Record(completedEntry("abc123", "Never Gonna Give You Up Official", "Uploader One", 200))

	found, ok := s.FindSimilar("Never Gonna Give You Up Official Video", 210, "Uploader Two")
	require.True(t, ok)
	assert.Equal(t, "abc123", found.VideoID)
}

func TestFindSimilar_SameUploaderNeverMatches(t *testing.T) {
	s := NewStore(nil)
	s.Record(completedEntry("abc123", "Song X", "Uploader One", 200))

	_, ok := s.FindSimilar("Song X", 210, "uploader one")
	assert.False(t, ok)
}

func TestFindSimilar_DurationOutOfTolerance(t *testing.T) {
	s := NewStore(nil)
	s.Record(completedEntry("abc123", "Song X", "Uploader One", 200))

	_, ok := s.FindSimilar("Song X", 260, "Uploader Two")
	assert.False(t, ok)
}

func TestFindSimilar_UnknownDurationNeverMatches(t *testing.T) {
	s := NewStore(nil)
	s.Record(completedEntry("abc123", "Song X", "Uploader One", 0))

	_, ok := s.FindSimilar("Song X", 200, "Uploader Two")
	assert.False(t, ok)

	s.Record(completedEntry("def456", "Song Y", "Uploader One", 180))
	_, ok = s.FindSimilar("Song Y", 0, "Uploader Two")
	assert.False(t, ok)
}

func TestFindSimilar_DissimilarTitles(t *testing.T) {
	s := NewStore(nil)
	s.Record(completedEntry("abc123", "Completely Different Thing", "Uploader One", 200))

	_, ok := s.FindSimilar("Song X", 200, "Uploader Two")
	assert.False(t, ok)
}

func TestFindSimilar_ReturnsOldestMatch(t *testing.T) {
	s := NewStore(nil)
	s.Record(completedEntry("first", "Song X", "Uploader One", 200))
	s.Record(completedEntry("second", "Song X", "Uploader Two", 202))

	found, ok := s.FindSimilar("Song X", 201, "Uploader Three")
	require.True(t, ok)
	assert.Equal(t, "first", found.VideoID)
}

func TestFavorites(t *testing.T) {
	s := NewStore(nil)

	s.AddFavorite("zzz")
	s.AddFavorite("aaa")
	s.AddFavorite("zzz")

	assert.Equal(t, []string{"aaa", "zzz"}, s.Favorites())
}

func TestLoad_NilSnapshotterIsNoop(t *testing.T) {
	s := NewStore(nil)
	s.Load(context.Background())

	assert.Equal(t, 0, s.Len())
}

func TestPersist_NilSnapshotterIsNoop(t *testing.T) {
	s := NewStore(nil)
	s.Record(completedEntry("abc123", "Song X", "Uploader One", 200))

	s.Persist(context.Background())

	assert.Equal(t, 1, s.Len())
}

// emptySnapshotter returns a zero-value snapshot, as a backend with no
// persisted maps would.
type emptySnapshotter struct{}

func (emptySnapshotter) Save(ctx context.Context, snap *Snapshot) error { return nil }

func (emptySnapshotter) Load(ctx context.Context) (*Snapshot, error) { return &Snapshot{}, nil }

func TestLoad_ZeroValueSnapshotLeavesStoreUsable(t *testing.T) {
	s := NewStore(emptySnapshotter{})
	s.Load(context.Background())

	assert.Equal(t, 0, s.Len())

	s.Record(completedEntry("abc123", "Song X", "Uploader One", 200))

	found, ok := s.Lookup("abc123")
	require.True(t, ok)
	assert.Equal(t, "Song X", found.Title)

	_, ok = s.LookupByFingerprint("hash-abc123")
	assert.True(t, ok)
}
