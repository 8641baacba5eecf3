package redisrepo

import (
	"context"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/milad/metermon/internal/repo"
)

var _ repo.CountStore = (*Repo)(nil)

const DefaultKey = "metermon:pulse_count"

// Repo keeps the pulse count under a single Redis key as decimal ASCII.
type Repo struct {
	rdb *redis.Client
	key string
}

func New(rdb *redis.Client, key string) *Repo {
	if key == "" {
		key = DefaultKey
	}
	return &Repo{rdb: rdb, key: key}
}

// NewFromURL parses a redis:// URL and connects lazily.
func NewFromURL(url, key string) (*Repo, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	return New(redis.NewClient(opts), key), nil
}

func (r *Repo) Load(ctx context.Context) (uint64, error) {
	raw, err := r.rdb.Get(ctx, r.key).Bytes()
	if errors.Is(err, redis.Nil) {
		return 0, fmt.Errorf("get %q: %w", r.key, repo.ErrNotFound)
	}
	if err != nil {
		return 0, fmt.Errorf("get %q: %w", r.key, err)
	}
	n, err := repo.ParseCount(raw)
	if err != nil {
		return 0, fmt.Errorf("get %q: %w", r.key, err)
	}
	return n, nil
}

func (r *Repo) Save(ctx context.Context, count uint64) error {
	if err := r.rdb.Set(ctx, r.key, repo.FormatCount(count), 0).Err(); err != nil {
		return fmt.Errorf("set %q: %w", r.key, err)
	}
	return nil
}

func (r *Repo) Close() error {
	return r.rdb.Close()
}
