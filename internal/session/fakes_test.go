package session

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/nonxedy/nonscenes/internal/cutscene"
	"github.com/nonxedy/nonscenes/internal/motion"
	"github.com/nonxedy/nonscenes/internal/preload"
	"github.com/nonxedy/nonscenes/internal/registry"
	"github.com/nonxedy/nonscenes/internal/scheduler"
	"github.com/nonxedy/nonscenes/internal/storage"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

type fakeHost struct {
	mu           sync.Mutex
	poses        map[uuid.UUID]cutscene.Pose
	gone         map[uuid.UUID]bool
	walk         bool
	detached     map[uuid.UUID]bool
	hidden       map[uuid.UUID]bool
	invulnerable map[uuid.UUID]bool
	teleports    []cutscene.Pose
	particles    map[Particle]int
	loaded       map[preload.Key]bool
	loads        int
}

func newFakeHost() *fakeHost {
	return &fakeHost{
		poses:        make(map[uuid.UUID]cutscene.Pose),
		gone:         make(map[uuid.UUID]bool),
		detached:     make(map[uuid.UUID]bool),
		hidden:       make(map[uuid.UUID]bool),
		invulnerable: make(map[uuid.UUID]bool),
		particles:    make(map[Particle]int),
		loaded:       make(map[preload.Key]bool),
	}
}

func (h *fakeHost) place(actor uuid.UUID, p cutscene.Pose) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.poses[actor] = p
}

func (h *fakeHost) leave(actor uuid.UUID) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.gone[actor] = true
}

func (h *fakeHost) Pose(actor uuid.UUID) (cutscene.Pose, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.gone[actor] {
		return cutscene.Pose{}, false
	}
	p, ok := h.poses[actor]
	if ok && h.walk {
		next := p
		next.X++
		h.poses[actor] = next
	}
	return p, ok
}

func (h *fakeHost) Teleport(actor uuid.UUID, p cutscene.Pose) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.gone[actor] {
		return errors.New("actor offline")
	}
	h.teleports = append(h.teleports, p)
	h.poses[actor] = p
	return nil
}

func (h *fakeHost) Detached(actor uuid.UUID) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.detached[actor]
}

func (h *fakeHost) SetDetached(actor uuid.UUID, v bool) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.detached[actor] = v
	return nil
}

func (h *fakeHost) SetHidden(actor uuid.UUID, v bool) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.hidden[actor] = v
	return nil
}

func (h *fakeHost) SetInvulnerable(actor uuid.UUID, v bool) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.invulnerable[actor] = v
	return nil
}

func (h *fakeHost) SpawnParticle(_ uuid.UUID, p Particle, _ motion.Point) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.particles[p]++
	return nil
}

func (h *fakeHost) ChunkLoaded(world string, cell preload.Cell) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.loaded[preload.Key{World: world, Cell: cell}]
}

func (h *fakeHost) LoadChunk(world string, cell preload.Cell) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.loaded[preload.Key{World: world, Cell: cell}] = true
	h.loads++
	return nil
}

func (h *fakeHost) snapshot() (teleports []cutscene.Pose, detached, hidden, invulnerable map[uuid.UUID]bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	teleports = append([]cutscene.Pose(nil), h.teleports...)
	detached, hidden, invulnerable = map[uuid.UUID]bool{}, map[uuid.UUID]bool{}, map[uuid.UUID]bool{}
	for k, v := range h.detached {
		detached[k] = v
	}
	for k, v := range h.hidden {
		hidden[k] = v
	}
	for k, v := range h.invulnerable {
		invulnerable[k] = v
	}
	return
}

func (h *fakeHost) particleCount(p Particle) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.particles[p]
}

type recorder struct {
	mu      sync.Mutex
	notices []Notice
}

func (r *recorder) Notify(_ uuid.UUID, n Notice) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.notices = append(r.notices, n)
}

func (r *recorder) of(kind NoticeKind) []Notice {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []Notice
	for _, n := range r.notices {
		if n.Kind == kind {
			out = append(out, n)
		}
	}
	return out
}

type memStore struct {
	mu        sync.Mutex
	items     map[string]cutscene.Cutscene
	saveErr   error
	deleteErr error
	deadlines []time.Time
}

func newMemStore() *memStore {
	return &memStore{items: make(map[string]cutscene.Cutscene)}
}

func (m *memStore) Initialize(context.Context) error { return nil }
func (m *memStore) Shutdown(context.Context) error   { return nil }

func (m *memStore) Save(ctx context.Context, c cutscene.Cutscene) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if d, ok := ctx.Deadline(); ok {
		m.deadlines = append(m.deadlines, d)
	}
	if m.saveErr != nil {
		return m.saveErr
	}
	m.items[c.Key()] = c
	return nil
}

func (m *memStore) LoadAll(context.Context) ([]cutscene.Cutscene, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]cutscene.Cutscene, 0, len(m.items))
	for _, c := range m.items {
		out = append(out, c)
	}
	return out, nil
}

func (m *memStore) Delete(_ context.Context, name string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.deleteErr != nil {
		return m.deleteErr
	}
	delete(m.items, cutscene.Key(name))
	return nil
}

func (m *memStore) Exists(_ context.Context, name string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.items[cutscene.Key(name)]
	return ok, nil
}

var _ storage.Store = (*memStore)(nil)

type harness struct {
	loop  *scheduler.Loop
	host  *fakeHost
	notes *recorder
	reg   *registry.Registry
	store *memStore
	c     *Coordinator
	actor uuid.UUID
}

func newHarness(t *testing.T, cfg Config) *harness {
	t.Helper()
	h := &harness{
		loop:  scheduler.NewLoop(),
		host:  newFakeHost(),
		notes: &recorder{},
		reg:   registry.New(),
		store: newMemStore(),
		actor: uuid.New(),
	}
	t.Cleanup(h.loop.Wait)
	c, err := New(Deps{
		Host:      h.host,
		Notifier:  h.notes,
		Registry:  h.reg,
		Scheduler: h.loop,
		Store:     h.store,
		Logger:    zaptest.NewLogger(t),
	}, cfg)
	require.NoError(t, err)
	h.c = c
	h.host.place(h.actor, cutscene.Pose{World: "world", X: 100, Y: 70, Z: 100, Yaw: 45})
	return h
}

func (h *harness) add(t *testing.T, name string, frames ...cutscene.Pose) cutscene.Cutscene {
	t.Helper()
	cs, err := cutscene.New(name, frames)
	require.NoError(t, err)
	h.reg.Put(cs)
	return cs
}

func (h *harness) recording(t *testing.T) *Recording {
	t.Helper()
	s, ok := h.c.Session(h.actor, KindRecording)
	require.True(t, ok, "no recording session")
	return s.(*Recording)
}
