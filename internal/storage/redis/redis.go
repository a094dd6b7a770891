// Package redis is the Redis cutscene backend. Durability depends on the
// server's persistence settings; without them data is lost on restart.
package redis

import (
	"context"
	"fmt"
	"strings"

	"github.com/nonxedy/nonscenes/internal/storage"
	"github.com/nonxedy/nonscenes/internal/storage/kv"
	goredis "github.com/redis/go-redis/v9"
)

const scanCount = 200

// Config selects a Redis server. URL, when set, wins over Addr.
type Config struct {
	URL      string
	Addr     string
	Username string
	Password string
	DB       int
	Prefix   string
}

// Open returns an uninitialized store for cfg.
func Open(cfg Config, opts storage.Options) *kv.Store {
	return kv.New("redis", func(context.Context) (kv.Backend, error) {
		client, err := NewClient(cfg)
		if err != nil {
			return nil, err
		}
		return NewBackend(client), nil
	}, cfg.Prefix, opts)
}

// NewClient builds a client from cfg without connecting.
func NewClient(cfg Config) (*goredis.Client, error) {
	if u := strings.TrimSpace(cfg.URL); u != "" {
		opt, err := goredis.ParseURL(u)
		if err != nil {
			return nil, fmt.Errorf("parse redis url: %w", err)
		}
		return goredis.NewClient(opt), nil
	}
	if strings.TrimSpace(cfg.Addr) == "" {
		return nil, fmt.Errorf("redis address is required")
	}
	return goredis.NewClient(&goredis.Options{
		Addr:     strings.TrimSpace(cfg.Addr),
		Username: cfg.Username,
		Password: cfg.Password,
		DB:       cfg.DB,
	}), nil
}

// Backend adapts a go-redis client to kv.Backend.
type Backend struct {
	client *goredis.Client
}

// NewBackend wraps client.
func NewBackend(client *goredis.Client) *Backend {
	return &Backend{client: client}
}

func (b *Backend) Ping(ctx context.Context) error {
	return b.client.Ping(ctx).Err()
}

func (b *Backend) Close() error {
	return b.client.Close()
}

func (b *Backend) HashSet(ctx context.Context, key string, fields map[string]string) error {
	if len(fields) == 0 {
		return nil
	}
	args := make([]any, 0, len(fields)*2)
	for k, v := range fields {
		args = append(args, k, v)
	}
	return b.client.HSet(ctx, key, args...).Err()
}

func (b *Backend) HashGetAll(ctx context.Context, key string) (map[string]string, error) {
	return b.client.HGetAll(ctx, key).Result()
}

func (b *Backend) Exists(ctx context.Context, key string) (bool, error) {
	n, err := b.client.Exists(ctx, key).Result()
	return n > 0, err
}

// Keys walks the keyspace with SCAN; KEYS would block the server.
func (b *Backend) Keys(ctx context.Context, prefix, suffix string) ([]string, error) {
	var out []string
	iter := b.client.Scan(ctx, 0, escapeGlob(prefix)+"*"+escapeGlob(suffix), scanCount).Iterator()
	for iter.Next(ctx) {
		key := iter.Val()
		if strings.HasPrefix(key, prefix) && strings.HasSuffix(key, suffix) {
			out = append(out, key)
		}
	}
	return out, iter.Err()
}

func (b *Backend) Delete(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	return b.client.Del(ctx, keys...).Err()
}

func escapeGlob(s string) string {
	var sb strings.Builder
	for _, r := range s {
		switch r {
		case '*', '?', '[', ']', '\\':
			sb.WriteByte('\\')
		}
		sb.WriteRune(r)
	}
	return sb.String()
}

var _ kv.Backend = (*Backend)(nil)
