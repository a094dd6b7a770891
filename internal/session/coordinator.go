// Package session arbitrates per-actor recording, playback and path
// visualization. Every session advances on scheduler ticks; start and cancel
// calls may arrive from any goroutine.
//
// Lock order: a session's own mutex may be held while taking the
// coordinator's map lock, never the reverse.
package session

import (
	"context"
	stderrors "errors"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"github.com/nonxedy/nonscenes/internal/cutscene"
	apperrors "github.com/nonxedy/nonscenes/internal/platform/errors"
	"github.com/nonxedy/nonscenes/internal/platform/timeouts"
	"github.com/nonxedy/nonscenes/internal/preload"
	"github.com/nonxedy/nonscenes/internal/registry"
	"github.com/nonxedy/nonscenes/internal/scheduler"
	"github.com/nonxedy/nonscenes/internal/storage"
	"go.uber.org/zap"
)

// Deps are the collaborators of a Coordinator. Host, Registry and Scheduler
// are required.
type Deps struct {
	Host      Host
	Notifier  Notifier
	Registry  *registry.Registry
	Scheduler scheduler.Scheduler
	// Store receives finished recordings, deletes and the shutdown flush.
	// Nil keeps cutscenes in memory only.
	Store storage.Store
	// Legacy is cleared on delete so removed cutscenes do not come back
	// through the legacy import.
	Legacy    storage.Store
	Preloader *preload.Preloader
	Logger    *zap.Logger
}

// Coordinator owns every active session.
type Coordinator struct {
	host     Host
	notifier Notifier
	registry *registry.Registry
	sched    scheduler.Scheduler
	store    storage.Store
	legacy   storage.Store
	preload  *preload.Preloader
	log      *zap.Logger
	cfg      Config

	mu       sync.Mutex
	sessions map[uuid.UUID]*slots
}

// New builds a Coordinator. cfg is normalized first.
func New(deps Deps, cfg Config) (*Coordinator, error) {
	if deps.Host == nil {
		return nil, apperrors.New(apperrors.CodeInvalidArgument, "session host is required")
	}
	if deps.Registry == nil {
		return nil, apperrors.New(apperrors.CodeInvalidArgument, "session registry is required")
	}
	if deps.Scheduler == nil {
		return nil, apperrors.New(apperrors.CodeInvalidArgument, "session scheduler is required")
	}
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	notifier := deps.Notifier
	if notifier == nil {
		notifier = Discard
	}
	pre := deps.Preloader
	if pre == nil {
		pre = preload.New(deps.Host, deps.Scheduler, preload.WithLogger(logger))
	}
	return &Coordinator{
		host:     deps.Host,
		notifier: notifier,
		registry: deps.Registry,
		sched:    deps.Scheduler,
		store:    deps.Store,
		legacy:   deps.Legacy,
		preload:  pre,
		log:      logger.Named("session"),
		cfg:      cfg.Normalize(),
		sessions: make(map[uuid.UUID]*slots),
	}, nil
}

// Config returns the normalized configuration in use.
func (c *Coordinator) Config() Config {
	return c.cfg
}

// Session returns the actor's session of the given kind.
func (c *Coordinator) Session(actor uuid.UUID, kind Kind) (Session, bool) {
	s := c.lookup(actor, kind)
	return s, s != nil
}

// IsRecording reports whether the actor has a recording session, countdown
// included.
func (c *Coordinator) IsRecording(actor uuid.UUID) bool {
	return c.lookup(actor, KindRecording) != nil
}

// IsWatching reports whether the actor is watching a playback.
func (c *Coordinator) IsWatching(actor uuid.UUID) bool {
	return c.lookup(actor, KindPlayback) != nil
}

// IsVisualizing reports whether a path is being shown to the actor.
func (c *Coordinator) IsVisualizing(actor uuid.UUID) bool {
	return c.lookup(actor, KindPath) != nil
}

// Active counts sessions of every kind across all actors.
func (c *Coordinator) Active() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := 0
	for _, sl := range c.sessions {
		for _, s := range sl {
			if s != nil {
				n++
			}
		}
	}
	return n
}

// ListAllCutscenes returns name and frame count of every cutscene, sorted by
// name.
func (c *Coordinator) ListAllCutscenes() []cutscene.Summary {
	return c.registry.Summaries()
}

// GetCutsceneNames returns every display name, sorted.
func (c *Coordinator) GetCutsceneNames() []string {
	return c.registry.Names()
}

// GetCutscene looks a cutscene up by case-insensitive name.
func (c *Coordinator) GetCutscene(name string) (cutscene.Cutscene, error) {
	cs, ok := c.registry.Get(name)
	if !ok {
		return cutscene.Cutscene{}, notFound(name)
	}
	return cs, nil
}

// DeleteCutscene removes a cutscene from the store, the legacy directory
// and the registry. A store failure leaves the registry untouched.
func (c *Coordinator) DeleteCutscene(ctx context.Context, name string) error {
	cs, ok := c.registry.Get(name)
	if !ok {
		return notFound(name)
	}
	if c.store != nil {
		if err := c.store.Delete(ctx, cs.Name()); err != nil {
			c.log.Error("delete cutscene", zap.String("name", cs.Name()), zap.Error(err))
			return err
		}
	}
	if c.legacy != nil && c.legacy != c.store {
		if err := c.legacy.Delete(ctx, cs.Name()); err != nil {
			c.log.Warn("delete legacy cutscene file", zap.String("name", cs.Name()), zap.Error(err))
		}
	}
	c.registry.Delete(cs.Name())
	c.log.Info("cutscene deleted", zap.String("name", cs.Name()))
	return nil
}

// CancelRecording stops the actor's recording and discards its frames.
func (c *Coordinator) CancelRecording(actor uuid.UUID) error {
	return c.cancelOne(actor, KindRecording)
}

// CancelPlayback stops the actor's playback and restores the state saved
// when it began.
func (c *Coordinator) CancelPlayback(actor uuid.UUID) error {
	return c.cancelOne(actor, KindPlayback)
}

// CancelPathVisualization stops drawing the actor's path.
func (c *Coordinator) CancelPathVisualization(actor uuid.UUID) error {
	return c.cancelOne(actor, KindPath)
}

// CancelAllSessions cancels every session the actor has and returns the
// kinds that were active.
func (c *Coordinator) CancelAllSessions(actor uuid.UUID) ([]Kind, error) {
	var cancelled []Kind
	for _, kind := range Kinds {
		if c.cancel(actor, kind, true) {
			cancelled = append(cancelled, kind)
		}
	}
	if len(cancelled) == 0 {
		return nil, nothingToCancel(actor, "")
	}
	return cancelled, nil
}

// HandleActorQuit tears down whatever the departing actor had running.
func (c *Coordinator) HandleActorQuit(actor uuid.UUID) {
	for _, kind := range Kinds {
		if c.cancel(actor, kind, false) {
			c.log.Debug("session ended on quit", zap.Stringer("actor", actor), zap.Stringer("kind", kind))
		}
	}
}

// Cleanup stops every session, writes every cutscene to the store and
// forgets all session state. It is safe to call more than once and never
// panics; persistence failures are logged and returned joined. Each save is
// capped by timeouts.Persist; ctx bounds the flush as a whole.
func (c *Coordinator) Cleanup(ctx context.Context) (err error) {
	defer func() {
		if r := recover(); r != nil {
			c.log.Error("cleanup panicked", zap.Any("panic", r))
			err = fmt.Errorf("cleanup panicked: %v", r)
		}
	}()

	c.mu.Lock()
	all := c.sessions
	c.sessions = make(map[uuid.UUID]*slots)
	c.mu.Unlock()

	stopped := 0
	for _, sl := range all {
		for _, s := range sl {
			if s != nil && c.teardown(s) {
				stopped++
			}
		}
	}
	if stopped > 0 {
		c.log.Info("sessions stopped", zap.Int("count", stopped))
	}
	return c.flush(ctx)
}

func (c *Coordinator) flush(ctx context.Context) error {
	if c.store == nil {
		return nil
	}
	var errs []error
	saved := 0
	for _, cs := range c.registry.List() {
		if err := c.save(ctx, cs); err != nil {
			c.log.Error("save cutscene", zap.String("name", cs.Name()), zap.Error(err))
			errs = append(errs, err)
			continue
		}
		saved++
	}
	c.log.Info("cutscenes flushed", zap.Int("saved", saved), zap.Int("failed", len(errs)))
	return stderrors.Join(errs...)
}

// save stores one cutscene, capped by timeouts.Persist.
func (c *Coordinator) save(ctx context.Context, cs cutscene.Cutscene) error {
	ctx, cancel := context.WithTimeout(ctx, timeouts.Persist)
	defer cancel()
	return c.store.Save(ctx, cs)
}

func (c *Coordinator) cancelOne(actor uuid.UUID, kind Kind) error {
	if !c.cancel(actor, kind, true) {
		return nothingToCancel(actor, kind.String())
	}
	return nil
}

// cancel removes and tears down the actor's session of kind. It reports
// false when there was none or it finished before teardown got to it.
func (c *Coordinator) cancel(actor uuid.UUID, kind Kind, notify bool) bool {
	s := c.take(actor, kind)
	if s == nil || !c.teardown(s) {
		return false
	}
	if notify {
		c.notify(actor, Notice{Kind: cancelNotice[kind], Name: s.Name()})
	}
	return true
}

var cancelNotice = [kindCount]NoticeKind{
	KindRecording: NoticeRecordingCancelled,
	KindPlayback:  NoticePlaybackCancelled,
	KindPath:      NoticePathCancelled,
}

// teardown stops a session already removed from its slot and reports
// whether it was still running.
func (c *Coordinator) teardown(s Session) bool {
	b := s.sealed()
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.done {
		return false
	}
	b.stop()
	switch s := s.(type) {
	case *Recording:
		s.frames = nil
	case *Playback:
		c.restore(s)
	}
	return true
}

func (c *Coordinator) lookup(actor uuid.UUID, kind Kind) Session {
	c.mu.Lock()
	defer c.mu.Unlock()
	if sl := c.sessions[actor]; sl != nil {
		return sl[kind]
	}
	return nil
}

// claim puts s in its slot unless the slot is taken.
func (c *Coordinator) claim(s Session) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	sl := c.sessions[s.Actor()]
	if sl == nil {
		sl = &slots{}
		c.sessions[s.Actor()] = sl
	}
	if sl[s.Kind()] != nil {
		return false
	}
	sl[s.Kind()] = s
	return true
}

// release clears s from its slot if it is still the occupant.
func (c *Coordinator) release(s Session) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	sl := c.sessions[s.Actor()]
	if sl == nil || sl[s.Kind()] != s {
		return false
	}
	sl[s.Kind()] = nil
	if sl.empty() {
		delete(c.sessions, s.Actor())
	}
	return true
}

// take empties the actor's slot of kind and returns what was there.
func (c *Coordinator) take(actor uuid.UUID, kind Kind) Session {
	c.mu.Lock()
	defer c.mu.Unlock()
	sl := c.sessions[actor]
	if sl == nil {
		return nil
	}
	s := sl[kind]
	sl[kind] = nil
	if sl.empty() {
		delete(c.sessions, actor)
	}
	return s
}

func (c *Coordinator) notify(actor uuid.UUID, n Notice) {
	c.notifier.Notify(actor, n)
}

// hostErr logs a failed host call. Host failures never end a session.
func (c *Coordinator) hostErr(op string, actor uuid.UUID, err error) bool {
	if err == nil {
		return false
	}
	wrapped := apperrors.WrapWithMetadata(apperrors.CodeHostInteraction, op,
		map[string]string{"actor": actor.String()}, err)
	c.log.Warn("host call failed", zap.String("op", op), zap.Stringer("actor", actor), zap.Error(wrapped))
	return true
}

func notFound(name string) error {
	return apperrors.WithMetadata(apperrors.CodeNotFound,
		fmt.Sprintf("cutscene %q not found", name),
		map[string]string{"name": name})
}

func nothingToCancel(actor uuid.UUID, kind string) error {
	md := map[string]string{"actor": actor.String()}
	if kind != "" {
		md["kind"] = kind
	}
	return apperrors.WithMetadata(apperrors.CodeNothingToCancel, "nothing to cancel", md)
}
