package kv

import (
	"strconv"

	"github.com/nonxedy/nonscenes/internal/cutscene"
)

// DefaultPrefix namespaces every key.
const DefaultPrefix = "nonscenes:"

// Field names inside the metadata hash.
const (
	FieldName       = "name"
	FieldFrameCount = "frame_count"
	FieldUpdatedAt  = "updated_at"
)

// Field names inside a frame hash.
const (
	FieldWorld = "world"
	FieldX     = "x"
	FieldY     = "y"
	FieldZ     = "z"
	FieldYaw   = "yaw"
	FieldPitch = "pitch"
)

// Layout derives key names from a prefix:
//
//	<prefix>cutscene:<key>:meta       name, frame_count, updated_at
//	<prefix>cutscene:<key>:frames:<i> world, x, y, z, yaw, pitch
type Layout struct {
	Prefix string
}

// Root is the prefix shared by every cutscene key.
func (l Layout) Root() string {
	return l.Prefix + "cutscene:"
}

// Namespace is the prefix of the frame keys of name.
func (l Layout) Namespace(name string) string {
	return l.Root() + cutscene.Key(name) + ":"
}

// MetaSuffix ends every metadata key.
const MetaSuffix = ":meta"

// Meta is the metadata key for name.
func (l Layout) Meta(name string) string {
	return l.Root() + cutscene.Key(name) + MetaSuffix
}

// Frame is the key of frame i of name.
func (l Layout) Frame(name string, i int) string {
	return l.Namespace(name) + "frames:" + strconv.Itoa(i)
}

func encodeFrame(p cutscene.Pose) map[string]string {
	return map[string]string{
		FieldWorld: p.World,
		FieldX:     strconv.FormatFloat(p.X, 'g', -1, 64),
		FieldY:     strconv.FormatFloat(p.Y, 'g', -1, 64),
		FieldZ:     strconv.FormatFloat(p.Z, 'g', -1, 64),
		FieldYaw:   strconv.FormatFloat(float64(p.Yaw), 'g', -1, 32),
		FieldPitch: strconv.FormatFloat(float64(p.Pitch), 'g', -1, 32),
	}
}

// decodeFrame parses a frame hash; ok is false when any field is missing or
// not numeric.
func decodeFrame(fields map[string]string) (cutscene.Pose, bool) {
	world, ok := fields[FieldWorld]
	if !ok || world == "" {
		return cutscene.Pose{}, false
	}
	var p cutscene.Pose
	p.World = world
	for _, f := range []struct {
		name string
		dst  *float64
	}{
		{FieldX, &p.X},
		{FieldY, &p.Y},
		{FieldZ, &p.Z},
	} {
		v, err := strconv.ParseFloat(fields[f.name], 64)
		if err != nil {
			return cutscene.Pose{}, false
		}
		*f.dst = v
	}
	for _, f := range []struct {
		name string
		dst  *float32
	}{
		{FieldYaw, &p.Yaw},
		{FieldPitch, &p.Pitch},
	} {
		v, err := strconv.ParseFloat(fields[f.name], 32)
		if err != nil {
			return cutscene.Pose{}, false
		}
		*f.dst = float32(v)
	}
	return p, true
}
