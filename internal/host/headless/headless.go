// Package headless is an in-memory game host. It keeps actor state and
// loaded cells in process and logs every side effect, so the daemon can run
// with no game server attached.
//
// The host starts with no actors. A game adapter embedding the runtime
// reports presence through Join, Move and Leave and issues commands on the
// runtime's Coordinator. The standalone daemon has no such adapter, so it
// keeps cutscenes loaded and persisted but runs no sessions of its own.
package headless

import (
	"fmt"
	"slices"
	"strings"
	"sync"

	"github.com/ErikKalkoken/go-set"
	"github.com/google/uuid"
	"github.com/nonxedy/nonscenes/internal/cutscene"
	"github.com/nonxedy/nonscenes/internal/motion"
	"github.com/nonxedy/nonscenes/internal/preload"
	"github.com/nonxedy/nonscenes/internal/session"
	"go.uber.org/zap"
)

// ActorState is a snapshot of one actor as the host sees it.
type ActorState struct {
	Pose         cutscene.Pose
	Detached     bool
	Hidden       bool
	Invulnerable bool
}

// Host implements session.Host, session.Notifier and cutscene.WorldResolver.
type Host struct {
	log *zap.Logger

	mu        sync.Mutex
	worlds    set.Set[string]
	actors    map[uuid.UUID]*ActorState
	loaded    set.Set[preload.Key]
	particles int
}

var (
	_ session.Host           = (*Host)(nil)
	_ session.Notifier       = (*Host)(nil)
	_ cutscene.WorldResolver = (*Host)(nil)
)

// New returns a host that knows the given worlds.
func New(logger *zap.Logger, worlds ...string) *Host {
	if logger == nil {
		logger = zap.NewNop()
	}
	h := &Host{
		log:    logger,
		actors: make(map[uuid.UUID]*ActorState),
	}
	for _, w := range worlds {
		if w = strings.TrimSpace(w); w != "" {
			h.worlds.Add(w)
		}
	}
	return h
}

// WorldExists implements cutscene.WorldResolver.
func (h *Host) WorldExists(name string) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.worlds.Contains(name)
}

// Worlds returns the known world names, sorted.
func (h *Host) Worlds() []string {
	h.mu.Lock()
	defer h.mu.Unlock()
	names := slices.Collect(h.worlds.All())
	slices.Sort(names)
	return names
}

// Join places a new actor at pose.
func (h *Host) Join(actor uuid.UUID, pose cutscene.Pose) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if !h.worlds.Contains(pose.World) {
		return fmt.Errorf("unknown world %q", pose.World)
	}
	h.actors[actor] = &ActorState{Pose: pose}
	h.log.Info("actor joined", zap.Stringer("actor", actor), zap.String("world", pose.World))
	return nil
}

// Leave forgets the actor. Later Pose calls report it gone.
func (h *Host) Leave(actor uuid.UUID) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.actors, actor)
	h.log.Info("actor left", zap.Stringer("actor", actor))
}

// Move updates the actor's pose as if it walked there.
func (h *Host) Move(actor uuid.UUID, pose cutscene.Pose) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	a, err := h.actor(actor)
	if err != nil {
		return err
	}
	if !h.worlds.Contains(pose.World) {
		return fmt.Errorf("unknown world %q", pose.World)
	}
	a.Pose = pose
	return nil
}

// State returns a copy of the actor's state.
func (h *Host) State(actor uuid.UUID) (ActorState, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	a, ok := h.actors[actor]
	if !ok {
		return ActorState{}, false
	}
	return *a, true
}

func (h *Host) actor(id uuid.UUID) (*ActorState, error) {
	a, ok := h.actors[id]
	if !ok {
		return nil, fmt.Errorf("actor %s is not online", id)
	}
	return a, nil
}

// Pose implements session.Host.
func (h *Host) Pose(actor uuid.UUID) (cutscene.Pose, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	a, ok := h.actors[actor]
	if !ok {
		return cutscene.Pose{}, false
	}
	return a.Pose, true
}

// Teleport implements session.Host.
func (h *Host) Teleport(actor uuid.UUID, pose cutscene.Pose) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	a, err := h.actor(actor)
	if err != nil {
		return err
	}
	if !h.worlds.Contains(pose.World) {
		return fmt.Errorf("teleport: unknown world %q", pose.World)
	}
	a.Pose = pose
	h.log.Debug("teleport",
		zap.Stringer("actor", actor),
		zap.String("world", pose.World),
		zap.Float64("x", pose.X),
		zap.Float64("y", pose.Y),
		zap.Float64("z", pose.Z))
	return nil
}

// Detached implements session.Host.
func (h *Host) Detached(actor uuid.UUID) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	a, ok := h.actors[actor]
	return ok && a.Detached
}

// SetDetached implements session.Host.
func (h *Host) SetDetached(actor uuid.UUID, detached bool) error {
	return h.set(actor, "detached", detached, func(a *ActorState) { a.Detached = detached })
}

// SetHidden implements session.Host.
func (h *Host) SetHidden(actor uuid.UUID, hidden bool) error {
	return h.set(actor, "hidden", hidden, func(a *ActorState) { a.Hidden = hidden })
}

// SetInvulnerable implements session.Host.
func (h *Host) SetInvulnerable(actor uuid.UUID, invulnerable bool) error {
	return h.set(actor, "invulnerable", invulnerable, func(a *ActorState) { a.Invulnerable = invulnerable })
}

func (h *Host) set(actor uuid.UUID, flag string, v bool, apply func(*ActorState)) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	a, err := h.actor(actor)
	if err != nil {
		return err
	}
	apply(a)
	h.log.Debug("actor flag", zap.Stringer("actor", actor), zap.String("flag", flag), zap.Bool("value", v))
	return nil
}

// SpawnParticle implements session.Host. Particles are counted, not drawn.
func (h *Host) SpawnParticle(viewer uuid.UUID, particle session.Particle, _ motion.Point) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, err := h.actor(viewer); err != nil {
		return err
	}
	h.particles++
	return nil
}

// Particles returns how many particles were spawned so far.
func (h *Host) Particles() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.particles
}

// ChunkLoaded implements preload.ChunkLoader.
func (h *Host) ChunkLoaded(world string, cell preload.Cell) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.loaded.Contains(preload.Key{World: world, Cell: cell})
}

// LoadChunk implements preload.ChunkLoader.
func (h *Host) LoadChunk(world string, cell preload.Cell) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if !h.worlds.Contains(world) {
		return fmt.Errorf("load chunk: unknown world %q", world)
	}
	h.loaded.Add(preload.Key{World: world, Cell: cell})
	return nil
}

// LoadedChunks returns the number of loaded cells across all worlds.
func (h *Host) LoadedChunks() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.loaded.Size()
}

// Notify implements session.Notifier by logging the notice.
func (h *Host) Notify(actor uuid.UUID, n session.Notice) {
	fields := []zap.Field{
		zap.Stringer("actor", actor),
		zap.Stringer("kind", n.Kind),
	}
	if n.Name != "" {
		fields = append(fields, zap.String("name", n.Name))
	}
	if n.Total > 0 {
		fields = append(fields, zap.Int("current", n.Current), zap.Int("total", n.Total))
	}
	if n.Seconds > 0 {
		fields = append(fields, zap.Int("seconds", n.Seconds))
	}
	if n.Err != nil {
		h.log.Warn("notice", append(fields, zap.Error(n.Err))...)
		return
	}
	h.log.Info("notice", fields...)
}
