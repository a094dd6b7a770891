package session

// Limits applied by Config.Normalize.
const (
	MinSamplesPerSecond   = 1
	MaxSamplesPerSecond   = 60
	MinInterpolationSteps = 1
	MaxInterpolationSteps = 100
)

// Config tunes recording, playback and path rendering. Field tags let the
// runtime load it from the environment.
type Config struct {
	CountdownSeconds    int     `env:"NONSCENES_COUNTDOWN_SECONDS" envDefault:"3"`
	SamplesPerSecond    int     `env:"NONSCENES_SAMPLES_PER_SECOND" envDefault:"30"`
	InterpolationSteps  int     `env:"NONSCENES_INTERPOLATION_STEPS" envDefault:"10"`
	PathDurationSeconds int     `env:"NONSCENES_PATH_DURATION_SECONDS" envDefault:"30"`
	PathPeriodTicks     int     `env:"NONSCENES_PATH_PERIOD_TICKS" envDefault:"5"`
	TrailSpacing        float64 `env:"NONSCENES_TRAIL_SPACING" envDefault:"0.5"`
	HideActor           bool    `env:"NONSCENES_HIDE_ACTOR" envDefault:"true"`
	Invulnerable        bool    `env:"NONSCENES_INVULNERABLE" envDefault:"true"`
}

// DefaultConfig returns the stock settings.
func DefaultConfig() Config {
	return Config{
		CountdownSeconds:    3,
		SamplesPerSecond:    30,
		InterpolationSteps:  10,
		PathDurationSeconds: 30,
		PathPeriodTicks:     5,
		TrailSpacing:        0.5,
		HideActor:           true,
		Invulnerable:        true,
	}
}

// Normalize clamps out-of-range values.
func (c Config) Normalize() Config {
	def := DefaultConfig()
	if c.CountdownSeconds < 0 {
		c.CountdownSeconds = 0
	}
	c.SamplesPerSecond = clamp(c.SamplesPerSecond, MinSamplesPerSecond, MaxSamplesPerSecond)
	c.InterpolationSteps = clamp(c.InterpolationSteps, MinInterpolationSteps, MaxInterpolationSteps)
	if c.PathDurationSeconds < 1 {
		c.PathDurationSeconds = def.PathDurationSeconds
	}
	if c.PathPeriodTicks < 1 {
		c.PathPeriodTicks = def.PathPeriodTicks
	}
	if c.TrailSpacing <= 0 {
		c.TrailSpacing = def.TrailSpacing
	}
	return c
}

// RecordInterval is the number of ticks between two samples.
func (c Config) RecordInterval(ticksPerSecond int) int {
	return max(1, ticksPerSecond/c.SamplesPerSecond)
}

// PlaybackInterval is the number of ticks between two playback updates.
func (c Config) PlaybackInterval(ticksPerSecond int) int {
	return max(1, ticksPerSecond/(c.SamplesPerSecond*c.InterpolationSteps))
}

func clamp(v, lo, hi int) int {
	return min(max(v, lo), hi)
}
