package registry

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ripqueue/ripqueue/internal/task"
)

func newTask(urls ...string) *task.Task {
	return task.New(urls, 192, "smart", "downloads", 3)
}

func TestAddAndGet(t *testing.T) {
	r := New(0)

	tsk := newTask("https://youtu.be/abc123")
	r.Add(tsk)

	got, err := r.Get(tsk.ID)
	require.NoError(t, err)
	assert.Equal(t, tsk.ID, got.ID)
	assert.Equal(t, tsk.URLs, got.URLs)
	assert.Equal(t, task.StatusPending, got.Status)
}

func TestGet_NotFound(t *testing.T) {
	r := New(0)

	_, err := r.Get("non-existent-id")

	assert.ErrorIs(t, err, ErrNotFound)
}

func TestGet_ReturnsCopy(t *testing.T) {
	r := New(0)
	tsk := newTask("https://youtu.be/abc123")
	r.Add(tsk)

	got, err := r.Get(tsk.ID)
	require.NoError(t, err)

	got.Status = task.StatusFailed
	got.DownloadedFiles = append(got.DownloadedFiles, "stray.mp3")

	again, err := r.Get(tsk.ID)
	require.NoError(t, err)
	assert.Equal(t, task.StatusPending, again.Status)
	assert.Empty(t, again.DownloadedFiles)
}

func TestUpdate(t *testing.T) {
	r := New(0)
	tsk := newTask("https://youtu.be/abc123")
	r.Add(tsk)

	err := r.Update(tsk.ID, func(t *task.Task) {
		t.Status = task.StatusDownloading
		t.Progress = 50
	})
	require.NoError(t, err)

	got, err := r.Get(tsk.ID)
	require.NoError(t, err)
	assert.Equal(t, task.StatusDownloading, got.Status)
	assert.Equal(t, 50.0, got.Progress)
}

func TestUpdate_NotFound(t *testing.T) {
	r := New(0)

	err := r.Update("non-existent-id", func(t *task.Task) {})

	assert.ErrorIs(t, err, ErrNotFound)
}

func TestListAll_InsertionOrder(t *testing.T) {
	r := New(0)

	first := newTask("https://youtu.be/one")
	second := newTask("https://youtu.be/two")
	third := newTask("https://youtu.be/three")

	r.Add(first)
	r.Add(second)
	r.Add(third)

	all := r.ListAll()
	require.Len(t, all, 3)
	assert.Equal(t, first.ID, all[0].ID)
	assert.Equal(t, second.ID, all[1].ID)
	assert.Equal(t, third.ID, all[2].ID)
}

func TestListAll_Empty(t *testing.T) {
	r := New(0)

	assert.Empty(t, r.ListAll())
}

func TestEvictExpired(t *testing.T) {
	r := New(time.Hour)

	old := time.Now().Add(-2 * time.Hour)
	expired := newTask("https://youtu.be/old")
	expired.Status = task.StatusCompleted
	expired.CompletedAt = &old

	recent := time.Now()
	fresh := newTask("https://youtu.be/fresh")
	fresh.Status = task.StatusCompleted
	fresh.CompletedAt = &recent

	active := newTask("https://youtu.be/active")
	active.Status = task.StatusDownloading

	r.Add(expired)
	r.Add(fresh)
	r.Add(active)

	evicted := r.evictExpired()
	assert.Equal(t, 1, evicted)

	_, err := r.Get(expired.ID)
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = r.Get(fresh.ID)
	assert.NoError(t, err)

	_, err = r.Get(active.ID)
	assert.NoError(t, err)
}

func TestEvictExpired_NeverEvictsActiveTasks(t *testing.T) {
	r := New(time.Nanosecond)

	active := newTask("https://youtu.be/active")
	active.Status = task.StatusDownloading
	r.Add(active)

	assert.Equal(t, 0, r.evictExpired())

	_, err := r.Get(active.ID)
	assert.NoError(t, err)
}

func TestStartJanitor_DisabledRetention(t *testing.T) {
	r := New(0)

	// Must not panic or leak; with retention disabled nothing starts.
	r.StartJanitor(time.Millisecond)
	r.Stop()
}

func TestStop_Idempotent(t *testing.T) {
	r := New(time.Hour)
	r.StartJanitor(time.Hour)

	r.Stop()
	r.Stop()
}
