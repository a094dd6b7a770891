// Package preload warms up the locality cells ("chunks") a cutscene touches so
// playback does not stall on terrain loading.
//
// Two entry points exist. Preload runs once at playback start and fans out
// asynchronous, best-effort load requests for every cell around every pose.
// EnsureLoaded runs on each playback tick and loads a cell synchronously at
// most once per distinct cell per session, guarded by a Cache.
package preload

import (
	"math"

	"github.com/ErikKalkoken/go-set"
	"github.com/nonxedy/nonscenes/internal/cutscene"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// CellShift converts block coordinates into cell coordinates (16 units).
const CellShift = 4

const defaultConcurrency = 4

// Cell is a locality cell coordinate.
type Cell struct {
	X int
	Z int
}

// Key identifies a cell inside a world.
type Key struct {
	World string
	Cell  Cell
}

// CellOf returns the cell containing p.
func CellOf(p cutscene.Pose) Cell {
	return Cell{
		X: int(math.Floor(p.X)) >> CellShift,
		Z: int(math.Floor(p.Z)) >> CellShift,
	}
}

// KeyOf returns the world-qualified cell containing p.
func KeyOf(p cutscene.Pose) Key {
	return Key{World: p.World, Cell: CellOf(p)}
}

// Neighborhood returns c and its eight neighbours.
func Neighborhood(c Cell) []Cell {
	cells := make([]Cell, 0, 9)
	for dx := -1; dx <= 1; dx++ {
		for dz := -1; dz <= 1; dz++ {
			cells = append(cells, Cell{X: c.X + dx, Z: c.Z + dz})
		}
	}
	return cells
}

// ChunkLoader is the host's cell loading primitive.
type ChunkLoader interface {
	ChunkLoaded(world string, cell Cell) bool
	LoadChunk(world string, cell Cell) error
}

// Executor runs work off the tick loop.
type Executor interface {
	Go(fn func())
}

// ExecutorFunc adapts a function to Executor.
type ExecutorFunc func(fn func())

// Go implements Executor.
func (f ExecutorFunc) Go(fn func()) {
	f(fn)
}

// Inline runs work on the calling goroutine.
var Inline Executor = ExecutorFunc(func(fn func()) { fn() })

// Option configures a Preloader.
type Option func(*Preloader)

// WithLogger sets the logger used for best-effort failures.
func WithLogger(logger *zap.Logger) Option {
	return func(p *Preloader) {
		if logger != nil {
			p.log = logger
		}
	}
}

// WithConcurrency caps concurrent asynchronous loads.
func WithConcurrency(n int) Option {
	return func(p *Preloader) {
		if n > 0 {
			p.concurrency = n
		}
	}
}

// Preloader issues cell loads through a ChunkLoader.
type Preloader struct {
	loader      ChunkLoader
	exec        Executor
	concurrency int
	log         *zap.Logger
}

// New creates a Preloader. A nil executor runs loads inline.
func New(loader ChunkLoader, exec Executor, opts ...Option) *Preloader {
	if exec == nil {
		exec = Inline
	}
	p := &Preloader{
		loader:      loader,
		exec:        exec,
		concurrency: defaultConcurrency,
		log:         zap.NewNop(),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(p)
		}
	}
	return p
}

// Cells returns the union of every pose's cell and its neighbours.
func Cells(poses []cutscene.Pose) set.Set[Key] {
	var keys set.Set[Key]
	for _, p := range poses {
		for _, c := range Neighborhood(CellOf(p)) {
			keys.Add(Key{World: p.World, Cell: c})
		}
	}
	return keys
}

// Preload requests an asynchronous load of every cell around poses that the
// host does not already have loaded. It returns the candidate cell set and
// never blocks on the loads themselves; failures are only logged.
func (p *Preloader) Preload(poses []cutscene.Pose) set.Set[Key] {
	candidates := Cells(poses)
	if p == nil || p.loader == nil || candidates.Size() == 0 {
		return candidates
	}
	var pending []Key
	for k := range candidates.All() {
		if !p.loader.ChunkLoaded(k.World, k.Cell) {
			pending = append(pending, k)
		}
	}
	if len(pending) == 0 {
		return candidates
	}
	p.exec.Go(func() {
		var g errgroup.Group
		g.SetLimit(p.concurrency)
		for _, k := range pending {
			g.Go(func() error {
				if err := p.loader.LoadChunk(k.World, k.Cell); err != nil {
					p.log.Debug("preload cell",
						zap.String("world", k.World),
						zap.Int("x", k.Cell.X),
						zap.Int("z", k.Cell.Z),
						zap.Error(err))
					return err
				}
				return nil
			})
		}
		if err := g.Wait(); err != nil {
			p.log.Warn("preload finished with failures", zap.Int("cells", len(pending)), zap.Error(err))
		}
	})
	return candidates
}

// Cache records cells already confirmed loaded during one playback session.
type Cache struct {
	seen set.Set[Key]
}

// Contains reports whether k was already confirmed.
func (c *Cache) Contains(k Key) bool {
	return c.seen.Contains(k)
}

// Size returns the number of confirmed cells.
func (c *Cache) Size() int {
	return c.seen.Size()
}

// EnsureLoaded loads the cell containing pose synchronously unless the cache
// already holds it, then records it. A failed load is logged and still
// recorded so the tick loop does not retry every step.
func (p *Preloader) EnsureLoaded(pose cutscene.Pose, cache *Cache) {
	if p == nil || p.loader == nil || cache == nil {
		return
	}
	k := KeyOf(pose)
	if cache.Contains(k) {
		return
	}
	if !p.loader.ChunkLoaded(k.World, k.Cell) {
		if err := p.loader.LoadChunk(k.World, k.Cell); err != nil {
			p.log.Warn("load cell",
				zap.String("world", k.World),
				zap.Int("x", k.Cell.X),
				zap.Int("z", k.Cell.Z),
				zap.Error(err))
		}
	}
	cache.seen.Add(k)
}
