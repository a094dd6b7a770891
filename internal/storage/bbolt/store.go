// Package bbolt is the embedded key-value cutscene backend. It shares the
// key layout of the Redis backend; each hash is a nested bucket.
package bbolt

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/nonxedy/nonscenes/internal/storage"
	"github.com/nonxedy/nonscenes/internal/storage/kv"
	"go.etcd.io/bbolt"
)

const hashBucket = "hashes"

// Config locates the database file.
type Config struct {
	Path   string
	Prefix string
}

// Open returns an uninitialized store for cfg.
func Open(cfg Config, opts storage.Options) *kv.Store {
	return kv.New("bbolt", func(context.Context) (kv.Backend, error) {
		return OpenBackend(cfg.Path)
	}, cfg.Prefix, opts)
}

// Backend provides BoltDB-backed hashes.
type Backend struct {
	db *bbolt.DB
}

// OpenBackend opens a BoltDB file at the provided path.
func OpenBackend(path string) (*Backend, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("storage path is required")
	}

	cleanPath := filepath.Clean(path)
	if dir := filepath.Dir(cleanPath); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create storage dir: %w", err)
		}
	}
	db, err := bbolt.Open(cleanPath, 0o600, &bbolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, fmt.Errorf("open storage db: %w", err)
	}

	b := &Backend{db: db}
	if err := b.ensureBuckets(); err != nil {
		_ = db.Close()
		return nil, err
	}

	return b, nil
}

// Close closes the underlying BoltDB database.
func (b *Backend) Close() error {
	if b == nil || b.db == nil {
		return nil
	}
	return b.db.Close()
}

// Ping checks that the root bucket is readable.
func (b *Backend) Ping(ctx context.Context) error {
	return b.view(ctx, func(*bbolt.Bucket) error { return nil })
}

// HashSet writes fields into the nested bucket named key.
func (b *Backend) HashSet(ctx context.Context, key string, fields map[string]string) error {
	return b.update(ctx, func(root *bbolt.Bucket) error {
		hash, err := root.CreateBucketIfNotExists([]byte(key))
		if err != nil {
			return fmt.Errorf("create hash %q: %w", key, err)
		}
		for k, v := range fields {
			if err := hash.Put([]byte(k), []byte(v)); err != nil {
				return fmt.Errorf("put %s.%s: %w", key, k, err)
			}
		}
		return nil
	})
}

// HashGetAll returns every field of key, empty when key is missing.
func (b *Backend) HashGetAll(ctx context.Context, key string) (map[string]string, error) {
	out := map[string]string{}
	err := b.view(ctx, func(root *bbolt.Bucket) error {
		hash := root.Bucket([]byte(key))
		if hash == nil {
			return nil
		}
		return hash.ForEach(func(k, v []byte) error {
			out[string(k)] = string(v)
			return nil
		})
	})
	return out, err
}

// Exists reports whether key is a stored hash.
func (b *Backend) Exists(ctx context.Context, key string) (bool, error) {
	var ok bool
	err := b.view(ctx, func(root *bbolt.Bucket) error {
		ok = root.Bucket([]byte(key)) != nil
		return nil
	})
	return ok, err
}

// Keys seeks to prefix and walks forward while keys still match it.
func (b *Backend) Keys(ctx context.Context, prefix, suffix string) ([]string, error) {
	var out []string
	err := b.view(ctx, func(root *bbolt.Bucket) error {
		p := []byte(prefix)
		c := root.Cursor()
		for k, v := c.Seek(p); k != nil && bytes.HasPrefix(k, p); k, v = c.Next() {
			if v == nil && bytes.HasSuffix(k, []byte(suffix)) {
				out = append(out, string(k))
			}
		}
		return nil
	})
	return out, err
}

// Delete drops the nested buckets named by keys.
func (b *Backend) Delete(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	return b.update(ctx, func(root *bbolt.Bucket) error {
		for _, key := range keys {
			if root.Bucket([]byte(key)) == nil {
				continue
			}
			if err := root.DeleteBucket([]byte(key)); err != nil {
				return fmt.Errorf("delete hash %q: %w", key, err)
			}
		}
		return nil
	})
}

func (b *Backend) view(ctx context.Context, fn func(root *bbolt.Bucket) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if b == nil || b.db == nil {
		return fmt.Errorf("storage is not configured")
	}
	return b.db.View(func(tx *bbolt.Tx) error {
		root := tx.Bucket([]byte(hashBucket))
		if root == nil {
			return fmt.Errorf("hash bucket is missing")
		}
		return fn(root)
	})
}

func (b *Backend) update(ctx context.Context, fn func(root *bbolt.Bucket) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if b == nil || b.db == nil {
		return fmt.Errorf("storage is not configured")
	}
	return b.db.Update(func(tx *bbolt.Tx) error {
		root := tx.Bucket([]byte(hashBucket))
		if root == nil {
			return fmt.Errorf("hash bucket is missing")
		}
		return fn(root)
	})
}

func (b *Backend) ensureBuckets() error {
	return b.db.Update(func(tx *bbolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists([]byte(hashBucket))
		if err != nil {
			return fmt.Errorf("create hash bucket: %w", err)
		}
		return nil
	})
}

var _ kv.Backend = (*Backend)(nil)
