package session

import (
	"github.com/google/uuid"
	"github.com/nonxedy/nonscenes/internal/cutscene"
	"github.com/nonxedy/nonscenes/internal/motion"
	apperrors "github.com/nonxedy/nonscenes/internal/platform/errors"
	"github.com/nonxedy/nonscenes/internal/scheduler"
	"go.uber.org/zap"
)

// PlayCutscene detaches the actor and moves it along the named cutscene,
// blending InterpolationSteps poses between each recorded pair.
func (c *Coordinator) PlayCutscene(actor uuid.UUID, name string) error {
	if c.IsWatching(actor) {
		return alreadyPlaying(actor)
	}
	cs, ok := c.registry.Get(name)
	if !ok || cs.Len() == 0 {
		return notFound(name)
	}

	p := &Playback{
		base:   base{actor: actor, name: cs.Name()},
		frames: cs.Frames(),
		steps:  c.cfg.InterpolationSteps,
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if !c.claim(p) {
		return alreadyPlaying(actor)
	}

	origin, ok := c.host.Pose(actor)
	if !ok {
		p.done = true
		c.release(p)
		return apperrors.WithMetadata(apperrors.CodeHostInteraction,
			"actor is not available",
			map[string]string{"actor": actor.String()})
	}
	p.saved = savedState{pose: origin, detached: c.host.Detached(actor)}

	c.hostErr("detach", actor, c.host.SetDetached(actor, true))
	if c.cfg.HideActor {
		p.saved.hidden = !c.hostErr("hide", actor, c.host.SetHidden(actor, true))
	}
	if c.cfg.Invulnerable {
		p.saved.invulnerable = !c.hostErr("invulnerable", actor, c.host.SetInvulnerable(actor, true))
	}

	cells := c.preload.Preload(p.frames)
	c.notify(actor, Notice{Kind: NoticePlaybackStarted, Name: p.name, Total: len(p.frames)})
	p.task = c.sched.ScheduleRepeating(1, c.cfg.PlaybackInterval(c.sched.TicksPerSecond()), func(t scheduler.Task) {
		c.playTick(p, t)
	})
	c.log.Info("playback started",
		zap.Stringer("actor", actor),
		zap.String("name", p.name),
		zap.Int("frames", len(p.frames)),
		zap.Int("cells", cells.Size()))
	return nil
}

func (c *Coordinator) playTick(p *Playback, t scheduler.Task) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.done {
		t.Cancel()
		return
	}
	if _, ok := c.host.Pose(p.actor); !ok {
		p.stop()
		c.release(p)
		c.restore(p)
		c.log.Warn("actor unavailable, playback cancelled",
			zap.Stringer("actor", p.actor),
			zap.String("name", p.name))
		c.notify(p.actor, Notice{Kind: NoticePlaybackCancelled, Name: p.name})
		return
	}

	total := len(p.frames)
	last := total - 1
	if p.index >= last {
		final := p.frames[last]
		c.preload.EnsureLoaded(final, &p.cells)
		c.teleport(p.actor, final)
		c.notify(p.actor, Notice{Kind: NoticePlaybackProgress, Name: p.name, Current: total, Total: total})

		p.stop()
		c.release(p)
		c.restore(p)
		c.log.Info("playback finished", zap.Stringer("actor", p.actor), zap.String("name", p.name))
		c.notify(p.actor, Notice{Kind: NoticePlaybackFinished, Name: p.name, Total: total})
		return
	}

	from, to := p.frames[p.index], p.frames[p.index+1]
	c.preload.EnsureLoaded(from, &p.cells)
	c.preload.EnsureLoaded(to, &p.cells)
	c.teleport(p.actor, motion.Interpolate(from, to, float64(p.step)/float64(p.steps)))
	c.notify(p.actor, Notice{Kind: NoticePlaybackProgress, Name: p.name, Current: p.index + 1, Total: total})

	p.step++
	if p.step >= p.steps {
		p.index++
		p.step = 0
	}
}

// restore undoes what PlayCutscene applied. Callers hold p.mu.
func (c *Coordinator) restore(p *Playback) {
	if p.saved.hidden {
		c.hostErr("show", p.actor, c.host.SetHidden(p.actor, false))
	}
	if p.saved.invulnerable {
		c.hostErr("vulnerable", p.actor, c.host.SetInvulnerable(p.actor, false))
	}
	c.hostErr("attach", p.actor, c.host.SetDetached(p.actor, p.saved.detached))
	c.preload.EnsureLoaded(p.saved.pose, &p.cells)
	c.teleport(p.actor, p.saved.pose)
}

func (c *Coordinator) teleport(actor uuid.UUID, pose cutscene.Pose) {
	c.hostErr("teleport", actor, c.host.Teleport(actor, pose))
}

func alreadyPlaying(actor uuid.UUID) error {
	return apperrors.WithMetadata(apperrors.CodeAlreadyPlaying,
		"actor is already watching a cutscene",
		map[string]string{"actor": actor.String()})
}
