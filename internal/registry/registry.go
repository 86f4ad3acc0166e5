// Package registry is the authoritative map from task ID to live task state.
// All access is serialized through one mutex; readers get defensive copies so
// polling callers never observe a task mid-mutation.
package registry

import (
	"errors"
	"log"
	"sync"
	"time"

	"github.com/ripqueue/ripqueue/internal/task"
)

// ErrNotFound is returned for unknown task IDs and surfaces as a 404.
var ErrNotFound = errors.New("task not found")

// DefaultRetention is how long terminal tasks stay visible before the
// janitor evicts them.
const DefaultRetention = 24 * time.Hour

type Registry struct {
	mu        sync.Mutex
	tasks     map[string]*task.Task
	order     []string
	retention time.Duration

	stopOnce sync.Once
	stop     chan struct{}
}

// New creates a registry. retention <= 0 disables eviction.
func New(retention time.Duration) *Registry {
	return &Registry{
		tasks:     make(map[string]*task.Task),
		retention: retention,
		stop:      make(chan struct{}),
	}
}

// Add registers a new task. The registry owns its copy from here on; callers
// mutate only through Update.
func (r *Registry) Add(t *task.Task) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.tasks[t.ID]; !exists {
		r.order = append(r.order, t.ID)
	}
	r.tasks[t.ID] = clone(t)
}

// Get returns a copy of the task, or ErrNotFound.
func (r *Registry) Get(id string) (*task.Task, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	t, ok := r.tasks[id]
	if !ok {
		return nil, ErrNotFound
	}

	return clone(t), nil
}

// Update applies mutate to the task under the registry lock.
func (r *Registry) Update(id string, mutate func(*task.Task)) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	t, ok := r.tasks[id]
	if !ok {
		return ErrNotFound
	}

	mutate(t)
	return nil
}

// ListAll returns copies of every task in insertion order.
func (r *Registry) ListAll() []*task.Task {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]*task.Task, 0, len(r.order))
	for _, id := range r.order {
		if t, ok := r.tasks[id]; ok {
			out = append(out, clone(t))
		}
	}

	return out
}

// StartJanitor begins periodic eviction of terminal tasks older than the
// retention window. No-op when retention is disabled.
func (r *Registry) StartJanitor(interval time.Duration) {
	if r.retention <= 0 {
		return
	}

	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
				if n := r.evictExpired(); n > 0 {
					log.Printf("registry: evicted %d expired tasks", n)
				}
			case <-r.stop:
				return
			}
		}
	}()
}

// Stop halts the janitor.
func (r *Registry) Stop() {
	r.stopOnce.Do(func() { close(r.stop) })
}

func (r *Registry) evictExpired() int {
	cutoff := time.Now().Add(-r.retention)

	r.mu.Lock()
	defer r.mu.Unlock()

	kept := r.order[:0]
	evicted := 0
	for _, id := range r.order {
		t, ok := r.tasks[id]
		if ok && t.Status.IsTerminal() && t.CompletedAt != nil && t.CompletedAt.Before(cutoff) {
			delete(r.tasks, id)
			evicted++
			continue
		}
		kept = append(kept, id)
	}
	r.order = kept

	return evicted
}

func clone(t *task.Task) *task.Task {
	copied := *t
	copied.URLs = append([]string(nil), t.URLs...)
	copied.DownloadedFiles = append([]string{}, t.DownloadedFiles...)
	copied.FailedDownloads = append([]task.FailedDownload(nil), t.FailedDownloads...)
	if t.CompletedAt != nil {
		at := *t.CompletedAt
		copied.CompletedAt = &at
	}

	return &copied
}
