package session

import (
	"github.com/google/uuid"
	"github.com/nonxedy/nonscenes/internal/cutscene"
	"github.com/nonxedy/nonscenes/internal/motion"
	"github.com/nonxedy/nonscenes/internal/preload"
)

// Particle selects how a path point is drawn.
type Particle int

const (
	// ParticleTrail marks a point between two recorded poses.
	ParticleTrail Particle = iota
	// ParticleMarker marks a recorded pose.
	ParticleMarker
)

func (p Particle) String() string {
	switch p {
	case ParticleTrail:
		return "trail"
	case ParticleMarker:
		return "marker"
	default:
		return "unknown"
	}
}

// Host is the game server seen from the coordinator. Every method is best
// effort; errors are logged and never stop a session. Implementations must
// not call back into the Coordinator synchronously.
type Host interface {
	preload.ChunkLoader

	// Pose returns where the actor is, or false when the actor is gone.
	Pose(actor uuid.UUID) (cutscene.Pose, bool)
	Teleport(actor uuid.UUID, pose cutscene.Pose) error

	// Detached reports whether the actor is already out of normal control
	// (spectating).
	Detached(actor uuid.UUID) bool
	SetDetached(actor uuid.UUID, detached bool) error
	SetHidden(actor uuid.UUID, hidden bool) error
	SetInvulnerable(actor uuid.UUID, invulnerable bool) error

	SpawnParticle(viewer uuid.UUID, particle Particle, at motion.Point) error
}
