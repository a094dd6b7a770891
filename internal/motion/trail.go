package motion

import "github.com/nonxedy/nonscenes/internal/cutscene"

// Point is a position in a world without orientation.
type Point struct {
	World string
	X     float64
	Y     float64
	Z     float64
}

// PointOf drops the orientation of p.
func PointOf(p cutscene.Pose) Point {
	return Point{World: p.World, X: p.X, Y: p.Y, Z: p.Z}
}

// Trail returns evenly spaced points from a toward b, starting at a and
// stopping before b. Pairs in different worlds, coincident poses and
// non-positive spacing yield no points.
func Trail(a, b cutscene.Pose, spacing float64) []Point {
	if !a.SameWorld(b) || spacing <= 0 {
		return nil
	}
	distance := Distance(a, b)
	if distance == 0 {
		return nil
	}
	ux := (b.X - a.X) / distance
	uy := (b.Y - a.Y) / distance
	uz := (b.Z - a.Z) / distance

	points := make([]Point, 0, int(distance/spacing)+1)
	for d := 0.0; d < distance; d += spacing {
		points = append(points, Point{
			World: a.World,
			X:     a.X + ux*d,
			Y:     a.Y + uy*d,
			Z:     a.Z + uz*d,
		})
	}
	return points
}

// Path returns the trail points along every consecutive same-world pair of
// frames.
func Path(frames []cutscene.Pose, spacing float64) []Point {
	var points []Point
	for i := 0; i+1 < len(frames); i++ {
		points = append(points, Trail(frames[i], frames[i+1], spacing)...)
	}
	return points
}
