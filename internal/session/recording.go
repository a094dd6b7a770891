package session

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"github.com/nonxedy/nonscenes/internal/cutscene"
	apperrors "github.com/nonxedy/nonscenes/internal/platform/errors"
	"github.com/nonxedy/nonscenes/internal/scheduler"
	"github.com/nonxedy/nonscenes/internal/storage"
	"go.uber.org/zap"
)

// maxPrealloc bounds the frame buffer reserved up front.
const maxPrealloc = 4096

// StartRecording counts down and then samples the actor's pose until
// frameCount frames are collected, storing the result as name.
func (c *Coordinator) StartRecording(actor uuid.UUID, name string, frameCount int) error {
	name = strings.TrimSpace(name)
	if err := storage.ValidName(name); err != nil {
		return err
	}
	if frameCount < 1 {
		return apperrors.WithMetadata(apperrors.CodeInvalidArgument,
			"frame count must be at least 1",
			map[string]string{"frames": strconv.Itoa(frameCount)})
	}
	if c.IsRecording(actor) {
		return alreadyRecording(actor)
	}
	if c.registry.Contains(name) {
		return apperrors.WithMetadata(apperrors.CodeNameConflict,
			fmt.Sprintf("cutscene %q already exists", name),
			map[string]string{"name": name})
	}

	r := &Recording{
		base:      base{actor: actor, name: name},
		target:    frameCount,
		frames:    make([]cutscene.Pose, 0, min(frameCount, maxPrealloc)),
		phase:     PhaseCountdown,
		remaining: c.cfg.CountdownSeconds,
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if !c.claim(r) {
		return alreadyRecording(actor)
	}
	c.notify(actor, Notice{Kind: NoticeCountdownStarted, Name: name, Seconds: c.cfg.CountdownSeconds})
	r.task = c.sched.ScheduleRepeating(1, c.sched.TicksPerSecond(), func(t scheduler.Task) {
		c.countdownTick(r, t)
	})
	c.log.Info("recording scheduled",
		zap.Stringer("actor", actor),
		zap.String("name", name),
		zap.Int("frames", frameCount))
	return nil
}

func (c *Coordinator) countdownTick(r *Recording, t scheduler.Task) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.done || r.phase != PhaseCountdown {
		t.Cancel()
		return
	}
	if r.remaining > 0 {
		c.notify(r.actor, Notice{Kind: NoticeCountdown, Name: r.name, Seconds: r.remaining})
		r.remaining--
		return
	}

	t.Cancel()
	r.phase = PhaseActive
	c.notify(r.actor, Notice{Kind: NoticeRecordingStarted, Name: r.name, Total: r.target})
	r.task = c.sched.ScheduleRepeating(1, c.cfg.RecordInterval(c.sched.TicksPerSecond()), func(t scheduler.Task) {
		c.recordTick(r, t)
	})
}

func (c *Coordinator) recordTick(r *Recording, t scheduler.Task) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.done {
		t.Cancel()
		return
	}

	pose, ok := c.host.Pose(r.actor)
	if !ok {
		r.stop()
		r.frames = nil
		c.release(r)
		c.log.Warn("actor unavailable, recording cancelled",
			zap.Stringer("actor", r.actor),
			zap.String("name", r.name))
		c.notify(r.actor, Notice{Kind: NoticeRecordingCancelled, Name: r.name})
		return
	}

	r.frames = append(r.frames, pose)
	n := len(r.frames)
	if n%c.cfg.SamplesPerSecond == 0 || n == r.target {
		c.notify(r.actor, Notice{Kind: NoticeRecordingProgress, Name: r.name, Current: n, Total: r.target})
	}
	if n < r.target {
		return
	}

	r.stop()
	c.release(r)
	c.finishRecording(r)
}

// finishRecording stores the collected frames. A failed save keeps the
// cutscene in memory; Cleanup retries it.
func (c *Coordinator) finishRecording(r *Recording) {
	cs, err := cutscene.New(r.name, r.frames)
	r.frames = nil
	if err != nil {
		c.log.Error("build cutscene", zap.String("name", r.name), zap.Error(err))
		c.notify(r.actor, Notice{Kind: NoticeRecordingFinished, Name: r.name, Err: err})
		return
	}
	c.registry.Put(cs)

	notice := Notice{Kind: NoticeRecordingFinished, Name: cs.Name(), Total: cs.Len()}
	if c.store != nil {
		if err := c.save(context.Background(), cs); err != nil {
			c.log.Error("save recorded cutscene", zap.String("name", cs.Name()), zap.Error(err))
			notice.Err = err
		}
	}
	c.log.Info("recording finished",
		zap.Stringer("actor", r.actor),
		zap.String("name", cs.Name()),
		zap.Int("frames", cs.Len()))
	c.notify(r.actor, notice)
}

func alreadyRecording(actor uuid.UUID) error {
	return apperrors.WithMetadata(apperrors.CodeAlreadyRecording,
		"actor is already recording",
		map[string]string{"actor": actor.String()})
}
