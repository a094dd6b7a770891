// Package cutscene defines the recorded motion asset and its poses.
//
// A cutscene is a named, ordered sequence of poses sampled from a moving actor.
// Values are immutable once built: re-saving a cutscene replaces it wholesale.
package cutscene

import (
	"errors"
	"fmt"
	"slices"
	"strings"
)

// Pose is one world-qualified position plus yaw/pitch orientation in degrees.
type Pose struct {
	World string
	X     float64
	Y     float64
	Z     float64
	Yaw   float32
	Pitch float32
}

// SameWorld reports whether both poses live in the same world.
func (p Pose) SameWorld(other Pose) bool {
	return p.World == other.World
}

// String implements fmt.Stringer.
func (p Pose) String() string {
	return fmt.Sprintf("%s(%.2f, %.2f, %.2f; yaw %.1f, pitch %.1f)", p.World, p.X, p.Y, p.Z, p.Yaw, p.Pitch)
}

// Cutscene is a named, ordered pose sequence.
type Cutscene struct {
	name   string
	frames []Pose
}

// ErrEmptyName is returned when a cutscene is built without a name.
var ErrEmptyName = errors.New("cutscene name is required")

// ErrNoFrames is returned when a cutscene is built without frames.
var ErrNoFrames = errors.New("cutscene has no frames")

// New builds a cutscene, copying frames so later changes to the input slice
// cannot leak into the asset.
func New(name string, frames []Pose) (Cutscene, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return Cutscene{}, ErrEmptyName
	}
	if len(frames) == 0 {
		return Cutscene{}, fmt.Errorf("%w: %s", ErrNoFrames, name)
	}
	return Cutscene{name: name, frames: slices.Clone(frames)}, nil
}

// Name returns the display name as stored at creation.
func (c Cutscene) Name() string {
	return c.name
}

// Key returns the case-folded lookup key.
func (c Cutscene) Key() string {
	return Key(c.name)
}

// Len returns the number of frames.
func (c Cutscene) Len() int {
	return len(c.frames)
}

// Frame returns the pose at index i.
func (c Cutscene) Frame(i int) Pose {
	return c.frames[i]
}

// Frames returns a copy of the frame sequence.
func (c Cutscene) Frames() []Pose {
	return slices.Clone(c.frames)
}

// IsZero reports whether c is the zero value.
func (c Cutscene) IsZero() bool {
	return c.name == "" && len(c.frames) == 0
}

// Summary is a light listing entry.
type Summary struct {
	Name       string
	FrameCount int
}

// Summary returns the listing entry for c.
func (c Cutscene) Summary() Summary {
	return Summary{Name: c.name, FrameCount: len(c.frames)}
}

// Key case-folds a cutscene name for lookups.
func Key(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}

// WorldResolver reports whether a world name is known to the host.
type WorldResolver interface {
	WorldExists(name string) bool
}

// WorldResolverFunc adapts a function to WorldResolver.
type WorldResolverFunc func(name string) bool

// WorldExists implements WorldResolver.
func (f WorldResolverFunc) WorldExists(name string) bool {
	return f(name)
}

// AnyWorld accepts every non-empty world name.
var AnyWorld WorldResolver = WorldResolverFunc(func(name string) bool {
	return strings.TrimSpace(name) != ""
})

// KnownWorld checks name against r, treating a nil resolver as AnyWorld.
func KnownWorld(r WorldResolver, name string) bool {
	if r == nil {
		r = AnyWorld
	}
	return r.WorldExists(name)
}
