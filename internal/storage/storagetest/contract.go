// Package storagetest holds the behaviour every storage backend must share.
package storagetest

import (
	"context"
	"sort"
	"testing"

	"github.com/nonxedy/nonscenes/internal/cutscene"
	"github.com/nonxedy/nonscenes/internal/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Factory returns a fresh, uninitialized store backed by empty storage.
type Factory func(t *testing.T, opts storage.Options) storage.Store

// Cutscene builds a cutscene with n poses in world "world".
func Cutscene(t *testing.T, name string, n int) cutscene.Cutscene {
	t.Helper()
	frames := make([]cutscene.Pose, n)
	for i := range frames {
		frames[i] = cutscene.Pose{
			World: "world",
			X:     float64(i) + 0.25,
			Y:     64 + float64(i),
			Z:     -float64(i) * 1.5,
			Yaw:   float32(i*10) - 175.5,
			Pitch: float32(i) - 12.25,
		}
	}
	c, err := cutscene.New(name, frames)
	require.NoError(t, err)
	return c
}

// Run exercises factory against the storage contract.
func Run(t *testing.T, factory Factory) {
	t.Run("round trip", func(t *testing.T) {
		ctx := context.Background()
		s := open(t, factory, storage.Options{})

		want := Cutscene(t, "Intro", 5)
		require.NoError(t, s.Save(ctx, want))

		got, err := s.LoadAll(ctx)
		require.NoError(t, err)
		require.Len(t, got, 1)
		assert.Equal(t, "Intro", got[0].Name())
		assert.Equal(t, want.Frames(), got[0].Frames())
	})

	t.Run("exists is case insensitive", func(t *testing.T) {
		ctx := context.Background()
		s := open(t, factory, storage.Options{})
		require.NoError(t, s.Save(ctx, Cutscene(t, "Intro", 1)))

		ok, err := s.Exists(ctx, "INTRO")
		require.NoError(t, err)
		assert.True(t, ok)

		ok, err = s.Exists(ctx, "outro")
		require.NoError(t, err)
		assert.False(t, ok)
	})

	t.Run("save replaces", func(t *testing.T) {
		ctx := context.Background()
		s := open(t, factory, storage.Options{})
		require.NoError(t, s.Save(ctx, Cutscene(t, "intro", 6)))
		require.NoError(t, s.Save(ctx, Cutscene(t, "INTRO", 2)))

		got, err := s.LoadAll(ctx)
		require.NoError(t, err)
		require.Len(t, got, 1)
		assert.Equal(t, 2, got[0].Len())
		assert.Equal(t, "INTRO", got[0].Name())
	})

	t.Run("delete", func(t *testing.T) {
		ctx := context.Background()
		s := open(t, factory, storage.Options{})
		require.NoError(t, s.Save(ctx, Cutscene(t, "intro", 3)))
		require.NoError(t, s.Save(ctx, Cutscene(t, "outro", 2)))

		require.NoError(t, s.Delete(ctx, "Intro"))
		require.NoError(t, s.Delete(ctx, "missing"))

		ok, err := s.Exists(ctx, "intro")
		require.NoError(t, err)
		assert.False(t, ok)

		got, err := s.LoadAll(ctx)
		require.NoError(t, err)
		require.Len(t, got, 1)
		assert.Equal(t, "outro", got[0].Name())
	})

	t.Run("many cutscenes keep frame order", func(t *testing.T) {
		ctx := context.Background()
		s := open(t, factory, storage.Options{})
		names := []string{"alpha", "bravo", "charlie"}
		for i, name := range names {
			require.NoError(t, s.Save(ctx, Cutscene(t, name, 12+i)))
		}

		got, err := s.LoadAll(ctx)
		require.NoError(t, err)
		require.Len(t, got, len(names))
		sort.Slice(got, func(i, j int) bool { return got[i].Key() < got[j].Key() })
		for i, c := range got {
			assert.Equal(t, names[i], c.Name())
			assert.Equal(t, Cutscene(t, names[i], 12+i).Frames(), c.Frames())
		}
	})

	t.Run("unknown worlds are skipped", func(t *testing.T) {
		ctx := context.Background()
		resolver := cutscene.WorldResolverFunc(func(name string) bool { return name == "world" })
		s := open(t, factory, storage.Options{Resolver: resolver})

		mixed, err := cutscene.New("mixed", []cutscene.Pose{
			{World: "world", X: 1},
			{World: "gone", X: 2},
			{World: "world", X: 3},
		})
		require.NoError(t, err)
		lost, err := cutscene.New("lost", []cutscene.Pose{{World: "gone"}})
		require.NoError(t, err)
		require.NoError(t, s.Save(ctx, mixed))
		require.NoError(t, s.Save(ctx, lost))

		got, err := s.LoadAll(ctx)
		require.NoError(t, err)
		require.Len(t, got, 1)
		assert.Equal(t, "mixed", got[0].Name())
		assert.Equal(t, []cutscene.Pose{{World: "world", X: 1}, {World: "world", X: 3}}, got[0].Frames())
	})

	t.Run("empty store", func(t *testing.T) {
		s := open(t, factory, storage.Options{})
		got, err := s.LoadAll(context.Background())
		require.NoError(t, err)
		assert.Empty(t, got)
	})
}

func open(t *testing.T, factory Factory, opts storage.Options) storage.Store {
	t.Helper()
	s := factory(t, opts)
	require.NoError(t, s.Initialize(context.Background()))
	t.Cleanup(func() {
		assert.NoError(t, s.Shutdown(context.Background()))
		assert.NoError(t, s.Shutdown(context.Background()))
	})
	return s
}

// Resetting wraps a store on shared infrastructure so Initialize also wipes
// whatever earlier runs left behind.
func Resetting(s storage.Store, reset func(ctx context.Context) error) storage.Store {
	return &resetting{Store: s, reset: reset}
}

type resetting struct {
	storage.Store
	reset func(ctx context.Context) error
}

func (r *resetting) Initialize(ctx context.Context) error {
	if err := r.Store.Initialize(ctx); err != nil {
		return err
	}
	return r.reset(ctx)
}
