package session

import (
	"sync"

	"github.com/google/uuid"
	"github.com/nonxedy/nonscenes/internal/cutscene"
	"github.com/nonxedy/nonscenes/internal/motion"
	"github.com/nonxedy/nonscenes/internal/preload"
	"github.com/nonxedy/nonscenes/internal/scheduler"
)

// Kind is one of the three session slots an actor has.
type Kind int

const (
	KindRecording Kind = iota
	KindPlayback
	KindPath

	kindCount
)

// Kinds lists every session kind in cancellation order.
var Kinds = [kindCount]Kind{KindRecording, KindPlayback, KindPath}

func (k Kind) String() string {
	switch k {
	case KindRecording:
		return "recording"
	case KindPlayback:
		return "playback"
	case KindPath:
		return "path"
	default:
		return "unknown"
	}
}

// Phase is the recording sub-state.
type Phase int

const (
	PhaseCountdown Phase = iota
	PhaseActive
)

func (p Phase) String() string {
	if p == PhaseActive {
		return "active"
	}
	return "countdown"
}

// Session is an in-progress Recording, Playback or PathVisualization.
type Session interface {
	Kind() Kind
	Actor() uuid.UUID
	Name() string

	sealed() *base
}

// base is shared by every variant. mu guards the variant's mutable fields
// and orders ticks against cancellation.
type base struct {
	mu    sync.Mutex
	actor uuid.UUID
	name  string
	task  scheduler.Task
	done  bool
}

func (b *base) Actor() uuid.UUID { return b.actor }
func (b *base) Name() string     { return b.name }
func (b *base) sealed() *base    { return b }

// stop ends the session and its task. Callers hold b.mu.
func (b *base) stop() {
	b.done = true
	if b.task != nil {
		b.task.Cancel()
	}
}

// Recording collects poses into a new cutscene.
type Recording struct {
	base
	target    int
	frames    []cutscene.Pose
	phase     Phase
	remaining int
}

func (r *Recording) Kind() Kind { return KindRecording }

// Target is the number of frames to collect.
func (r *Recording) Target() int { return r.target }

// Phase reports whether the countdown is still running.
func (r *Recording) Phase() Phase {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.phase
}

// Collected is the number of frames sampled so far.
func (r *Recording) Collected() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.frames)
}

// Remaining is the number of countdown seconds left.
func (r *Recording) Remaining() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.remaining
}

// savedState is what playback restores when it ends.
type savedState struct {
	pose         cutscene.Pose
	detached     bool
	hidden       bool
	invulnerable bool
}

// Playback moves an actor along a cutscene.
type Playback struct {
	base
	frames []cutscene.Pose
	steps  int
	index  int
	step   int
	saved  savedState
	cells  preload.Cache
}

func (p *Playback) Kind() Kind { return KindPlayback }

// Total is the number of frames being played.
func (p *Playback) Total() int { return len(p.frames) }

// Frame is the index of the frame the actor is leaving.
func (p *Playback) Frame() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.index
}

// Step is the interpolation step within the current frame pair.
func (p *Playback) Step() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.step
}

// PathVisualization draws a cutscene's route for a while.
type PathVisualization struct {
	base
	points  []motion.Point
	markers []motion.Point
	period  int
	elapsed int
	total   int
}

func (v *PathVisualization) Kind() Kind { return KindPath }

// Total is the display duration in ticks.
func (v *PathVisualization) Total() int { return v.total }

// Elapsed is the number of ticks already shown.
func (v *PathVisualization) Elapsed() int {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.elapsed
}

// slots holds at most one session of each kind for an actor.
type slots [kindCount]Session

func (s *slots) empty() bool {
	for _, v := range s {
		if v != nil {
			return false
		}
	}
	return true
}
