package cutscene

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewCopiesFrames(t *testing.T) {
	frames := []Pose{{World: "world", X: 1}, {World: "world", X: 2}}
	c, err := New("  Intro ", frames)
	require.NoError(t, err)

	frames[0].X = 99
	assert.Equal(t, 1.0, c.Frame(0).X)
	assert.Equal(t, "Intro", c.Name())
	assert.Equal(t, "intro", c.Key())
	assert.Equal(t, 2, c.Len())

	out := c.Frames()
	out[1].X = 42
	assert.Equal(t, 2.0, c.Frame(1).X)
}

func TestNewRejectsInvalidInput(t *testing.T) {
	_, err := New(" ", []Pose{{World: "world"}})
	assert.ErrorIs(t, err, ErrEmptyName)

	_, err = New("intro", nil)
	assert.True(t, errors.Is(err, ErrNoFrames))
}

func TestKnownWorld(t *testing.T) {
	assert.True(t, KnownWorld(nil, "world"))
	assert.False(t, KnownWorld(nil, ""))

	only := WorldResolverFunc(func(name string) bool { return name == "nether" })
	assert.True(t, KnownWorld(only, "nether"))
	assert.False(t, KnownWorld(only, "world"))
}

func TestSummary(t *testing.T) {
	c, err := New("Tour", []Pose{{World: "w"}, {World: "w"}, {World: "w"}})
	require.NoError(t, err)
	assert.Equal(t, Summary{Name: "Tour", FrameCount: 3}, c.Summary())
	assert.True(t, Cutscene{}.IsZero())
	assert.False(t, c.IsZero())
}
