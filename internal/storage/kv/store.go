// Package kv maps cutscenes onto flat hash keys so any key-value engine that
// can store string hashes can serve as a backend.
package kv

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/nonxedy/nonscenes/internal/cutscene"
	"github.com/nonxedy/nonscenes/internal/storage"
	"go.uber.org/zap"
)

// Backend is the hash primitive set the layout needs.
type Backend interface {
	Ping(ctx context.Context) error
	Close() error
	// HashSet writes fields into the hash at key, creating it if needed.
	HashSet(ctx context.Context, key string, fields map[string]string) error
	// HashGetAll returns the hash at key; a missing key yields an empty map.
	HashGetAll(ctx context.Context, key string) (map[string]string, error)
	// Exists reports whether key holds a hash.
	Exists(ctx context.Context, key string) (bool, error)
	// Keys lists keys starting with prefix and ending with suffix.
	Keys(ctx context.Context, prefix, suffix string) ([]string, error)
	// Delete removes keys; missing keys are ignored.
	Delete(ctx context.Context, keys ...string) error
}

// Dialer opens a Backend during Initialize.
type Dialer func(ctx context.Context) (Backend, error)

// Store implements storage.Store over a Backend.
type Store struct {
	name   string
	dial   Dialer
	layout Layout
	opts   storage.Options
	now    func() time.Time

	mu      sync.RWMutex
	backend Backend
}

// New returns an uninitialized store. name labels logs.
func New(name string, dial Dialer, prefix string, opts storage.Options) *Store {
	if prefix == "" {
		prefix = DefaultPrefix
	}
	return &Store{
		name:   name,
		dial:   dial,
		layout: Layout{Prefix: prefix},
		opts:   opts,
		now:    time.Now,
	}
}

// Layout returns the key layout in use.
func (s *Store) Layout() Layout {
	return s.layout
}

// Backend exposes the connected backend, nil before Initialize.
func (s *Store) Backend() Backend {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.backend
}

// Initialize dials and pings the backend.
func (s *Store) Initialize(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if s.dial == nil {
		return storage.Unavailable(s.name+" backend is not configured", nil)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.backend != nil {
		return nil
	}
	b, err := s.dial(ctx)
	if err != nil {
		return storage.Unavailable("open "+s.name, err)
	}
	if err := b.Ping(ctx); err != nil {
		_ = b.Close()
		return storage.Unavailable("ping "+s.name, err)
	}
	s.backend = b
	s.opts.Log().Info("key-value storage initialized",
		zap.String("backend", s.name),
		zap.String("prefix", s.layout.Prefix))
	return nil
}

// Shutdown closes the backend.
func (s *Store) Shutdown(context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.backend == nil {
		return nil
	}
	err := s.backend.Close()
	s.backend = nil
	return err
}

func (s *Store) conn(ctx context.Context) (Backend, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	b := s.Backend()
	if b == nil {
		return nil, storage.ErrNotInitialized
	}
	return b, nil
}

// Save clears the cutscene's keys and writes the metadata and frame hashes
// one by one. A failure part way leaves a partial record.
func (s *Store) Save(ctx context.Context, c cutscene.Cutscene) error {
	b, err := s.conn(ctx)
	if err != nil {
		return err
	}
	if c.IsZero() {
		return storage.Transaction("save cutscene", cutscene.ErrNoFrames)
	}
	if err := s.clear(ctx, b, c.Name()); err != nil {
		return storage.Transaction(fmt.Sprintf("clear cutscene %q", c.Name()), err)
	}
	if err := b.HashSet(ctx, s.layout.Meta(c.Name()), map[string]string{
		FieldName:       c.Name(),
		FieldFrameCount: strconv.Itoa(c.Len()),
		FieldUpdatedAt:  strconv.FormatInt(s.now().UnixMilli(), 10),
	}); err != nil {
		return storage.Transaction(fmt.Sprintf("write cutscene %q", c.Name()), err)
	}
	for i, p := range c.Frames() {
		if err := b.HashSet(ctx, s.layout.Frame(c.Name(), i), encodeFrame(p)); err != nil {
			return storage.Transaction(fmt.Sprintf("write frame %d of %q", i, c.Name()), err)
		}
	}
	return nil
}

// LoadAll enumerates metadata keys and reads each cutscene's frames in
// order. Unreadable frames are skipped.
func (s *Store) LoadAll(ctx context.Context) ([]cutscene.Cutscene, error) {
	b, err := s.conn(ctx)
	if err != nil {
		return nil, err
	}
	keys, err := b.Keys(ctx, s.layout.Root(), MetaSuffix)
	if err != nil {
		return nil, storage.Unavailable("list cutscenes", err)
	}
	sort.Strings(keys)

	log := s.opts.Log()
	var out []cutscene.Cutscene
	for _, key := range keys {
		meta, err := b.HashGetAll(ctx, key)
		if err != nil {
			return nil, storage.Unavailable("read "+key, err)
		}
		name := meta[FieldName]
		count, convErr := strconv.Atoi(meta[FieldFrameCount])
		if strings.TrimSpace(name) == "" || convErr != nil || count < 0 {
			log.Warn("skipping malformed cutscene metadata",
				zap.String("key", key),
				zap.Error(storage.Malformed("decode metadata", convErr)))
			continue
		}

		poses := make([]cutscene.Pose, 0, count)
		for i := range count {
			fields, err := b.HashGetAll(ctx, s.layout.Frame(name, i))
			if err != nil {
				return nil, storage.Unavailable(fmt.Sprintf("read frame %d of %q", i, name), err)
			}
			p, ok := decodeFrame(fields)
			if !ok {
				log.Debug("skipping unreadable frame", zap.String("cutscene", name), zap.Int("frame", i))
				continue
			}
			poses = append(poses, p)
		}
		if c, ok := storage.Assemble(name, poses, s.opts.Resolver); ok {
			out = append(out, c)
		} else {
			log.Warn("skipping cutscene without loadable frames", zap.String("cutscene", name))
		}
	}
	return out, nil
}

// Delete removes every key of name.
func (s *Store) Delete(ctx context.Context, name string) error {
	b, err := s.conn(ctx)
	if err != nil {
		return err
	}
	if err := s.clear(ctx, b, name); err != nil {
		return storage.Transaction(fmt.Sprintf("delete cutscene %q", name), err)
	}
	return nil
}

// clear deletes the metadata key and the frame keys it counts. Keys are
// removed exactly rather than by prefix so "a" never touches "a:b".
func (s *Store) clear(ctx context.Context, b Backend, name string) error {
	meta := s.layout.Meta(name)
	fields, err := b.HashGetAll(ctx, meta)
	if err != nil {
		return err
	}
	count, _ := strconv.Atoi(fields[FieldFrameCount])
	keys := make([]string, 0, count+1)
	keys = append(keys, meta)
	for i := range count {
		keys = append(keys, s.layout.Frame(name, i))
	}
	return b.Delete(ctx, keys...)
}

// Exists reports whether the metadata key of name exists.
func (s *Store) Exists(ctx context.Context, name string) (bool, error) {
	b, err := s.conn(ctx)
	if err != nil {
		return false, err
	}
	ok, err := b.Exists(ctx, s.layout.Meta(name))
	if err != nil {
		return false, storage.Unavailable("check cutscene", err)
	}
	return ok, nil
}

var _ storage.Store = (*Store)(nil)
