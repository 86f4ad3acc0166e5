// Package history keeps the durable record of processed downloads and
// answers duplicate-detection queries against it. The in-memory state is
// guarded by a single mutex; persistence goes through a Snapshotter.
package history

import (
	"context"
	"log"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/ripqueue/ripqueue/internal/fingerprint"
)

const (
	StatusCompleted = "completed"
	StatusFailed    = "failed"
)

// Duplicate-detection thresholds for near-match titles.
const (
	similarityThreshold = 0.8
	durationTolerance   = 30 // seconds
)

// Entry records one successfully processed source item.
type Entry struct {
	VideoID         string    `json:"video_id"`
	URL             string    `json:"url"`
	Title           string    `json:"title"`
	Uploader        string    `json:"uploader"`
	DurationSeconds int       `json:"duration_seconds"`
	FilePath        string    `json:"file_path"`
	ContentHash     string    `json:"content_hash"`
	DownloadedAt    time.Time `json:"downloaded_at"`
	Status          string    `json:"status"`
}

// Snapshot is the persisted shape of the store.
type Snapshot struct {
	Downloads     map[string]*Entry
	ContentHashes map[string]string
	Favorites     []string
	LastUpdated   time.Time
}

// Snapshotter persists and restores store snapshots.
type Snapshotter interface {
	Save(ctx context.Context, snap *Snapshot) error
	Load(ctx context.Context) (*Snapshot, error)
}

// Store is the process-wide download history. All mutation paths hold the
// store lock across the full read-modify-write.
type Store struct {
	mu            sync.Mutex
	downloads     map[string]*Entry
	contentHashes map[string]string
	favorites     map[string]struct{}
	order         []string
	snap          Snapshotter
}

// NewStore creates an empty store. snap may be nil for a purely in-memory
// store (used by tests and by the CLI when no Redis is configured).
func NewStore(snap Snapshotter) *Store {
	return &Store{
		downloads:     make(map[string]*Entry),
		contentHashes: make(map[string]string),
		favorites:     make(map[string]struct{}),
		snap:          snap,
	}
}

// Lookup returns the entry recorded under the given identity.
func (s *Store) Lookup(videoID string) (*Entry, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.downloads[videoID]
	if !ok {
		return nil, false
	}

	copied := *e
	return &copied, true
}

// LookupByFingerprint returns the completed entry whose content hash matches.
func (s *Store) LookupByFingerprint(hash string) (*Entry, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	id, ok := s.contentHashes[hash]
	if !ok {
		return nil, false
	}

	e, ok := s.downloads[id]
	if !ok || e.Status != StatusCompleted {
		return nil, false
	}

	copied := *e
	return &copied, true
}

// FindSimilar scans completed entries in insertion order and returns the
// first one whose title similarity exceeds the threshold and whose duration
// is within tolerance. Entries from the same uploader are skipped: a
// near-match from the same channel is treated as a distinct release.
// Unknown durations on either side never match.
func (s *Store) FindSimilar(title string, durationSeconds int, uploader string) (*Entry, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, id := range s.order {
		e, ok := s.downloads[id]
		if !ok || e.Status != StatusCompleted {
			continue
		}

		if strings.EqualFold(uploader, e.Uploader) {
			continue
		}

		if durationSeconds == 0 || e.DurationSeconds == 0 {
			continue
		}

		diff := durationSeconds - e.DurationSeconds
		if diff < 0 {
			diff = -diff
		}

		if fingerprint.Similarity(title, e.Title) > similarityThreshold && diff < durationTolerance {
			copied := *e
			return &copied, true
		}
	}

	return nil, false
}

// Record upserts an entry keyed by identity and indexes its content hash.
func (s *Store) Record(e *Entry) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.downloads[e.VideoID]; !exists {
		s.order = append(s.order, e.VideoID)
	}

	copied := *e
	s.downloads[e.VideoID] = &copied
	if e.ContentHash != "" {
		s.contentHashes[e.ContentHash] = e.VideoID
	}
}

// AddFavorite marks an identity as a favorite.
func (s *Store) AddFavorite(videoID string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.favorites[videoID] = struct{}{}
}

// Favorites returns the favorite identities, sorted.
func (s *Store) Favorites() []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]string, 0, len(s.favorites))
	for id := range s.favorites {
		out = append(out, id)
	}
	sort.Strings(out)

	return out
}

// Len returns the number of recorded entries.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	return len(s.downloads)
}

// Load restores state from the snapshotter. A missing or corrupt snapshot
// degrades to an empty store with a warning; startup never fails on it.
func (s *Store) Load(ctx context.Context) {
	if s.snap == nil {
		return
	}

	snap, err := s.snap.Load(ctx)
	if err != nil {
		log.Printf("history: could not load snapshot, starting empty: %v", err)
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.downloads = snap.Downloads
	if s.downloads == nil {
		s.downloads = make(map[string]*Entry)
	}
	s.contentHashes = snap.ContentHashes
	if s.contentHashes == nil {
		s.contentHashes = make(map[string]string)
	}
	s.favorites = make(map[string]struct{}, len(snap.Favorites))
	for _, id := range snap.Favorites {
		s.favorites[id] = struct{}{}
	}

	s.order = s.order[:0]
	for id := range s.downloads {
		s.order = append(s.order, id)
	}
	sort.Slice(s.order, func(i, j int) bool {
		return s.downloads[s.order[i]].DownloadedAt.Before(s.downloads[s.order[j]].DownloadedAt)
	})
}

// Persist writes the current state through the snapshotter. Failures are
// logged and swallowed; a missed snapshot costs duplicate detection across
// restarts, not correctness.
func (s *Store) Persist(ctx context.Context) {
	if s.snap == nil {
		return
	}

	s.mu.Lock()
	snap := &Snapshot{
		Downloads:     make(map[string]*Entry, len(s.downloads)),
		ContentHashes: make(map[string]string, len(s.contentHashes)),
		LastUpdated:   time.Now(),
	}
	for id, e := range s.downloads {
		copied := *e
		snap.Downloads[id] = &copied
	}
	for h, id := range s.contentHashes {
		snap.ContentHashes[h] = id
	}
	for id := range s.favorites {
		snap.Favorites = append(snap.Favorites, id)
	}
	s.mu.Unlock()

	if err := s.snap.Save(ctx, snap); err != nil {
		log.Printf("history: could not persist snapshot: %v", err)
	}
}
