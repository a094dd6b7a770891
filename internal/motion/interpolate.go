// Package motion blends poses for smooth playback and samples points along
// recorded paths.
package motion

import (
	"math"

	"github.com/nonxedy/nonscenes/internal/cutscene"
)

// Interpolate returns the pose at fraction t between from and to.
//
// Poses in different worlds are never blended: from is returned unchanged and
// the caller treats the pair as a discontinuity. Yaw follows the shortest
// angular path so crossing the ±180° seam does not spin the long way round.
func Interpolate(from, to cutscene.Pose, t float64) cutscene.Pose {
	if !from.SameWorld(to) {
		return from
	}
	return cutscene.Pose{
		World: from.World,
		X:     from.X + (to.X-from.X)*t,
		Y:     from.Y + (to.Y-from.Y)*t,
		Z:     from.Z + (to.Z-from.Z)*t,
		Yaw:   from.Yaw + float32(float64(YawDelta(from.Yaw, to.Yaw))*t),
		Pitch: from.Pitch + float32(float64(to.Pitch-from.Pitch)*t),
	}
}

// YawDelta returns to-from folded once into (-180, 180].
func YawDelta(from, to float32) float32 {
	delta := to - from
	if delta > 180 {
		delta -= 360
	} else if delta <= -180 {
		delta += 360
	}
	return delta
}

// Distance is the euclidean distance between two poses, ignoring world.
func Distance(a, b cutscene.Pose) float64 {
	dx := b.X - a.X
	dy := b.Y - a.Y
	dz := b.Z - a.Z
	return math.Sqrt(dx*dx + dy*dy + dz*dz)
}
