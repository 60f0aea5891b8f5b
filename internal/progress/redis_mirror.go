package progress

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
)

const keyPrefix = "adrender:progress:"

// RedisMirror keeps snapshots as JSON strings with an expiry.
type RedisMirror struct {
	rdb *redis.Client
}

func NewRedisMirror(rdb *redis.Client) *RedisMirror {
	return &RedisMirror{rdb: rdb}
}

func Key(jobID string) string { return keyPrefix + jobID }

func (m *RedisMirror) Save(ctx context.Context, snap Snapshot, ttl time.Duration) error {
	b, err := json.Marshal(snap)
	if err != nil {
		return err
	}
	return m.rdb.Set(ctx, Key(snap.JobID), b, ttl).Err()
}

func (m *RedisMirror) Load(ctx context.Context, jobID string) (Snapshot, bool, error) {
	b, err := m.rdb.Get(ctx, Key(jobID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return Snapshot{}, false, nil
	}
	if err != nil {
		return Snapshot{}, false, err
	}
	var snap Snapshot
	if err := json.Unmarshal(b, &snap); err != nil {
		return Snapshot{}, false, err
	}
	return snap, true, nil
}
