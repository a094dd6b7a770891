package session

import (
	"github.com/google/uuid"
	"github.com/nonxedy/nonscenes/internal/motion"
	apperrors "github.com/nonxedy/nonscenes/internal/platform/errors"
	"github.com/nonxedy/nonscenes/internal/scheduler"
	"go.uber.org/zap"
)

// ShowCutscenePath draws the named cutscene's route to the actor every
// PathPeriodTicks for PathDurationSeconds.
func (c *Coordinator) ShowCutscenePath(actor uuid.UUID, name string) error {
	if c.IsVisualizing(actor) {
		return alreadyVisualizing(actor)
	}
	cs, ok := c.registry.Get(name)
	if !ok || cs.Len() == 0 {
		return notFound(name)
	}

	frames := cs.Frames()
	markers := make([]motion.Point, len(frames))
	for i, f := range frames {
		markers[i] = motion.PointOf(f)
	}
	v := &PathVisualization{
		base:    base{actor: actor, name: cs.Name()},
		points:  motion.Path(frames, c.cfg.TrailSpacing),
		markers: markers,
		period:  c.cfg.PathPeriodTicks,
		total:   c.cfg.PathDurationSeconds * c.sched.TicksPerSecond(),
	}
	v.mu.Lock()
	defer v.mu.Unlock()
	if !c.claim(v) {
		return alreadyVisualizing(actor)
	}
	c.notify(actor, Notice{Kind: NoticePathShown, Name: v.name, Seconds: c.cfg.PathDurationSeconds})
	v.task = c.sched.ScheduleRepeating(1, v.period, func(t scheduler.Task) {
		c.pathTick(v, t)
	})
	c.log.Debug("path shown",
		zap.Stringer("actor", actor),
		zap.String("name", v.name),
		zap.Int("points", len(v.points)))
	return nil
}

func (c *Coordinator) pathTick(v *PathVisualization, t scheduler.Task) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.done {
		t.Cancel()
		return
	}
	if v.elapsed >= v.total {
		v.stop()
		c.release(v)
		c.notify(v.actor, Notice{Kind: NoticePathFinished, Name: v.name})
		return
	}

	failed := 0
	var firstErr error
	spawn := func(particle Particle, at motion.Point) {
		if err := c.host.SpawnParticle(v.actor, particle, at); err != nil {
			failed++
			if firstErr == nil {
				firstErr = err
			}
		}
	}
	for _, pt := range v.points {
		spawn(ParticleTrail, pt)
	}
	for _, pt := range v.markers {
		spawn(ParticleMarker, pt)
	}
	if failed > 0 {
		c.log.Debug("path particles failed",
			zap.Stringer("actor", v.actor),
			zap.Int("failed", failed),
			zap.Error(firstErr))
	}
	v.elapsed += v.period
}

func alreadyVisualizing(actor uuid.UUID) error {
	return apperrors.WithMetadata(apperrors.CodeAlreadyVisualizing,
		"path is already shown to actor",
		map[string]string{"actor": actor.String()})
}
