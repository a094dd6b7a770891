package preload

import (
	"errors"
	"sort"
	"sync"
	"testing"

	"github.com/nonxedy/nonscenes/internal/cutscene"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeLoader struct {
	mu     sync.Mutex
	loaded map[Key]bool
	calls  []Key
	fail   bool
}

func newFakeLoader() *fakeLoader {
	return &fakeLoader{loaded: make(map[Key]bool)}
}

func (f *fakeLoader) ChunkLoaded(world string, cell Cell) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.loaded[Key{World: world, Cell: cell}]
}

func (f *fakeLoader) LoadChunk(world string, cell Cell) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	k := Key{World: world, Cell: cell}
	f.calls = append(f.calls, k)
	if f.fail {
		return errors.New("boom")
	}
	f.loaded[k] = true
	return nil
}

func (f *fakeLoader) sortedCalls() []Key {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := append([]Key(nil), f.calls...)
	sort.Slice(out, func(i, j int) bool {
		if out[i].Cell.X != out[j].Cell.X {
			return out[i].Cell.X < out[j].Cell.X
		}
		return out[i].Cell.Z < out[j].Cell.Z
	})
	return out
}

func TestCellOf(t *testing.T) {
	cases := []struct {
		x, z float64
		want Cell
	}{
		{0, 0, Cell{0, 0}},
		{15.9, 15.9, Cell{0, 0}},
		{16, 31, Cell{1, 1}},
		{-0.5, -1, Cell{-1, -1}},
		{-16, -17, Cell{-1, -2}},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, CellOf(cutscene.Pose{X: tc.x, Z: tc.z}), "x=%v z=%v", tc.x, tc.z)
	}
}

func TestPreloadSinglePoseRequestsNeighborhood(t *testing.T) {
	loader := newFakeLoader()
	p := New(loader, Inline)

	candidates := p.Preload([]cutscene.Pose{{World: "world", X: 1, Z: 1}})
	require.Equal(t, 9, candidates.Size())

	calls := loader.sortedCalls()
	require.Len(t, calls, 9)
	i := 0
	for dx := -1; dx <= 1; dx++ {
		for dz := -1; dz <= 1; dz++ {
			assert.Equal(t, Key{World: "world", Cell: Cell{dx, dz}}, calls[i])
			i++
		}
	}
}

func TestPreloadSkipsLoadedCellsAndDeduplicates(t *testing.T) {
	loader := newFakeLoader()
	loader.loaded[Key{World: "world", Cell: Cell{0, 0}}] = true
	p := New(loader, Inline)

	candidates := p.Preload([]cutscene.Pose{
		{World: "world", X: 1, Z: 1},
		{World: "world", X: 2, Z: 2},
		{World: "world", X: 17, Z: 1},
	})
	assert.Equal(t, 12, candidates.Size())
	assert.Len(t, loader.sortedCalls(), 11)
}

func TestPreloadRunsOnExecutor(t *testing.T) {
	loader := newFakeLoader()
	var queued []func()
	p := New(loader, ExecutorFunc(func(fn func()) { queued = append(queued, fn) }))

	p.Preload([]cutscene.Pose{{World: "world"}})
	assert.Empty(t, loader.sortedCalls())
	require.Len(t, queued, 1)

	queued[0]()
	assert.Len(t, loader.sortedCalls(), 9)
}

func TestPreloadFailuresAreNotSurfaced(t *testing.T) {
	loader := newFakeLoader()
	loader.fail = true
	p := New(loader, Inline, WithConcurrency(2))

	candidates := p.Preload([]cutscene.Pose{{World: "world"}})
	assert.Equal(t, 9, candidates.Size())
	assert.Len(t, loader.sortedCalls(), 9)
}

func TestEnsureLoadedOncePerCell(t *testing.T) {
	loader := newFakeLoader()
	p := New(loader, Inline)
	var cache Cache

	pose := cutscene.Pose{World: "world", X: 3, Z: 3}
	for range 5 {
		p.EnsureLoaded(pose, &cache)
	}
	p.EnsureLoaded(cutscene.Pose{World: "world", X: 4, Z: 4}, &cache)
	assert.Len(t, loader.sortedCalls(), 1)
	assert.Equal(t, 1, cache.Size())

	p.EnsureLoaded(cutscene.Pose{World: "nether", X: 3, Z: 3}, &cache)
	assert.Len(t, loader.sortedCalls(), 2)
	assert.Equal(t, 2, cache.Size())
}

func TestEnsureLoadedSkipsAlreadyLoadedCells(t *testing.T) {
	loader := newFakeLoader()
	loader.loaded[Key{World: "world", Cell: Cell{0, 0}}] = true
	p := New(loader, Inline)
	var cache Cache

	p.EnsureLoaded(cutscene.Pose{World: "world"}, &cache)
	assert.Empty(t, loader.sortedCalls())
	assert.True(t, cache.Contains(Key{World: "world", Cell: Cell{0, 0}}))
}
