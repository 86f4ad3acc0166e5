package history

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	downloadsKey     = "history:downloads"
	contentHashesKey = "history:content_hashes"
	favoritesKey     = "history:favorites"
	lastUpdatedKey   = "history:last_updated"
)

// RedisSnapshotter persists history snapshots in Redis: one hash of
// identity -> entry JSON, one hash of content hash -> identity, and a set
// of favorite identities.
type RedisSnapshotter struct {
	client *redis.Client
}

func NewRedisSnapshotter(addr string) (*RedisSnapshotter, error) {
	client := redis.NewClient(&redis.Options{
		Addr: addr,
	})

	if err := client.Ping(context.Background()).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	return &RedisSnapshotter{client: client}, nil
}

func (r *RedisSnapshotter) Save(ctx context.Context, snap *Snapshot) error {
	pipe := r.client.TxPipeline()
	pipe.Del(ctx, downloadsKey, contentHashesKey, favoritesKey)

	for id, e := range snap.Downloads {
		data, err := json.Marshal(e)
		if err != nil {
			return fmt.Errorf("marshal entry %s: %w", id, err)
		}
		pipe.HSet(ctx, downloadsKey, id, string(data))
	}

	for hash, id := range snap.ContentHashes {
		pipe.HSet(ctx, contentHashesKey, hash, id)
	}

	for _, id := range snap.Favorites {
		pipe.SAdd(ctx, favoritesKey, id)
	}

	pipe.Set(ctx, lastUpdatedKey, snap.LastUpdated.Format(time.RFC3339), 0)

	_, err := pipe.Exec(ctx)
	return err
}

func (r *RedisSnapshotter) Load(ctx context.Context) (*Snapshot, error) {
	downloads, err := r.client.HGetAll(ctx, downloadsKey).Result()
	if err != nil {
		return nil, err
	}

	hashes, err := r.client.HGetAll(ctx, contentHashesKey).Result()
	if err != nil {
		return nil, err
	}

	favorites, err := r.client.SMembers(ctx, favoritesKey).Result()
	if err != nil {
		return nil, err
	}

	snap := &Snapshot{
		Downloads:     make(map[string]*Entry, len(downloads)),
		ContentHashes: hashes,
		Favorites:     favorites,
	}

	for id, raw := range downloads {
		var e Entry
		if err := json.Unmarshal([]byte(raw), &e); err != nil {
			log.Printf("history: skipping corrupt entry %s: %v", id, err)
			continue
		}
		snap.Downloads[id] = &e
	}

	if snap.ContentHashes == nil {
		snap.ContentHashes = make(map[string]string)
	}

	if raw, err := r.client.Get(ctx, lastUpdatedKey).Result(); err == nil {
		if ts, err := time.Parse(time.RFC3339, raw); err == nil {
			snap.LastUpdated = ts
		}
	}

	return snap, nil
}

func (r *RedisSnapshotter) Close() error {
	return r.client.Close()
}
