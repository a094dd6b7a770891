// Package scheduler provides the cooperative tick loop that drives every
// session. All repeating tasks run on one goroutine, one after another, in
// the order they were scheduled; blocking or heavy work is handed to Go.
package scheduler

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
)

// DefaultTicksPerSecond matches the host's native tick rate.
const DefaultTicksPerSecond = 20

// Task is a handle to a scheduled repeating callback.
type Task interface {
	Cancel()
	Cancelled() bool
}

// Scheduler is what sessions need from the tick loop.
type Scheduler interface {
	// ScheduleRepeating runs fn after delay ticks and then every period
	// ticks until the returned task is cancelled.
	ScheduleRepeating(delay, period int, fn func(Task)) Task
	// Go runs fn off the tick loop.
	Go(fn func())
	// TicksPerSecond reports the loop rate.
	TicksPerSecond() int
}

type task struct {
	id        uint64
	next      int64
	period    int64
	fn        func(Task)
	cancelled atomic.Bool
}

func (t *task) Cancel() {
	t.cancelled.Store(true)
}

func (t *task) Cancelled() bool {
	return t.cancelled.Load()
}

// Option configures a Loop.
type Option func(*Loop)

// WithTicksPerSecond overrides the loop rate.
func WithTicksPerSecond(n int) Option {
	return func(l *Loop) {
		if n > 0 {
			l.tps = n
		}
	}
}

// WithLogger sets the logger used for recovered task panics.
func WithLogger(logger *zap.Logger) Option {
	return func(l *Loop) {
		if logger != nil {
			l.log = logger
		}
	}
}

// Loop is the concrete Scheduler. Run drives it from a wall-clock ticker;
// tests drive it with Step and Advance.
type Loop struct {
	tps int
	log *zap.Logger

	// stepMu serializes task execution.
	stepMu sync.Mutex

	mu     sync.Mutex
	tick   int64
	nextID uint64
	tasks  []*task

	wg sync.WaitGroup
}

// NewLoop creates a stopped loop.
func NewLoop(opts ...Option) *Loop {
	l := &Loop{tps: DefaultTicksPerSecond, log: zap.NewNop()}
	for _, opt := range opts {
		if opt != nil {
			opt(l)
		}
	}
	return l
}

// TicksPerSecond implements Scheduler.
func (l *Loop) TicksPerSecond() int {
	return l.tps
}

// ScheduleRepeating implements Scheduler. A delay below one runs fn on the
// next step; a period below one is treated as one.
func (l *Loop) ScheduleRepeating(delay, period int, fn func(Task)) Task {
	if delay < 1 {
		delay = 1
	}
	if period < 1 {
		period = 1
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	l.nextID++
	t := &task{
		id:     l.nextID,
		next:   l.tick + int64(delay),
		period: int64(period),
		fn:     fn,
	}
	l.tasks = append(l.tasks, t)
	return t
}

// Go implements Scheduler. Wait blocks until every fn started here returns.
func (l *Loop) Go(fn func()) {
	l.wg.Add(1)
	go func() {
		defer l.wg.Done()
		defer l.recoverPanic("async task")
		fn()
	}()
}

// Wait blocks until all work started with Go has finished.
func (l *Loop) Wait() {
	l.wg.Wait()
}

// Tick returns the number of completed steps.
func (l *Loop) Tick() int64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.tick
}

// Pending returns the number of tasks not yet cancelled.
func (l *Loop) Pending() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	n := 0
	for _, t := range l.tasks {
		if !t.Cancelled() {
			n++
		}
	}
	return n
}

// CancelAll cancels every scheduled task.
func (l *Loop) CancelAll() {
	l.mu.Lock()
	defer l.mu.Unlock()
	for _, t := range l.tasks {
		t.Cancel()
	}
	l.tasks = nil
}

// Step advances the loop by one tick and runs every task that is due.
// Tasks scheduled during a step first run on a later step.
func (l *Loop) Step() {
	l.stepMu.Lock()
	defer l.stepMu.Unlock()

	l.mu.Lock()
	l.tick++
	now := l.tick
	var due []*task
	live := l.tasks[:0]
	for _, t := range l.tasks {
		if t.Cancelled() {
			continue
		}
		live = append(live, t)
		if t.next <= now {
			due = append(due, t)
		}
	}
	clear(l.tasks[len(live):])
	l.tasks = live
	l.mu.Unlock()

	for _, t := range due {
		if t.Cancelled() {
			continue
		}
		l.runTask(t)
		t.next = now + t.period
	}
}

// Advance runs n steps.
func (l *Loop) Advance(n int) {
	for range n {
		l.Step()
	}
}

// Run steps the loop at its tick rate until ctx is done.
func (l *Loop) Run(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}
	ticker := time.NewTicker(time.Second / time.Duration(l.tps))
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			l.Step()
		}
	}
}

func (l *Loop) runTask(t *task) {
	defer func() {
		if r := recover(); r != nil {
			t.Cancel()
			l.log.Error("scheduled task panicked", zap.Uint64("task", t.id), zap.Any("panic", r))
		}
	}()
	t.fn(t)
}

func (l *Loop) recoverPanic(what string) {
	if r := recover(); r != nil {
		l.log.Error(what+" panicked", zap.Any("panic", r))
	}
}
