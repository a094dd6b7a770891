package scheduler

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func TestScheduleRepeatingHonoursDelayAndPeriod(t *testing.T) {
	l := NewLoop()
	var runs []int64
	l.ScheduleRepeating(3, 2, func(Task) {
		runs = append(runs, l.Tick())
	})

	l.Advance(8)
	assert.Equal(t, []int64{3, 5, 7}, runs)
}

func TestZeroDelayRunsOnNextStep(t *testing.T) {
	l := NewLoop()
	count := 0
	l.ScheduleRepeating(0, 1, func(Task) { count++ })

	assert.Equal(t, 0, count)
	l.Step()
	assert.Equal(t, 1, count)
	l.Step()
	assert.Equal(t, 2, count)
}

func TestTaskCancelsItself(t *testing.T) {
	l := NewLoop()
	count := 0
	l.ScheduleRepeating(0, 1, func(task Task) {
		count++
		if count == 3 {
			task.Cancel()
		}
	})

	l.Advance(10)
	assert.Equal(t, 3, count)
	assert.Equal(t, 0, l.Pending())
}

func TestTasksRunInScheduleOrder(t *testing.T) {
	l := NewLoop()
	var order []string
	l.ScheduleRepeating(1, 1, func(Task) { order = append(order, "a") })
	l.ScheduleRepeating(1, 1, func(Task) { order = append(order, "b") })

	l.Step()
	assert.Equal(t, []string{"a", "b"}, order)
}

func TestTaskScheduledDuringStepWaitsForNextStep(t *testing.T) {
	l := NewLoop()
	inner := 0
	l.ScheduleRepeating(0, 100, func(Task) {
		l.ScheduleRepeating(0, 1, func(Task) { inner++ })
	})

	l.Step()
	assert.Equal(t, 0, inner)
	l.Step()
	assert.Equal(t, 1, inner)
}

func TestCancelAll(t *testing.T) {
	l := NewLoop()
	a := l.ScheduleRepeating(0, 1, func(Task) {})
	b := l.ScheduleRepeating(0, 1, func(Task) {})
	require.Equal(t, 2, l.Pending())

	l.CancelAll()
	assert.True(t, a.Cancelled())
	assert.True(t, b.Cancelled())
	assert.Equal(t, 0, l.Pending())
}

func TestPanickingTaskIsCancelled(t *testing.T) {
	l := NewLoop()
	other := 0
	bad := l.ScheduleRepeating(0, 1, func(Task) { panic("boom") })
	l.ScheduleRepeating(0, 1, func(Task) { other++ })

	l.Advance(2)
	assert.True(t, bad.Cancelled())
	assert.Equal(t, 2, other)
}

func TestGoAndWait(t *testing.T) {
	l := NewLoop()
	var done atomic.Int32
	for range 4 {
		l.Go(func() { done.Add(1) })
	}
	l.Go(func() { panic("ignored") })
	l.Wait()
	assert.Equal(t, int32(4), done.Load())
}

func TestRunStepsUntilCancelled(t *testing.T) {
	l := NewLoop(WithTicksPerSecond(200))
	var count atomic.Int32
	l.ScheduleRepeating(0, 1, func(Task) { count.Add(1) })

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() { errCh <- l.Run(ctx) }()

	require.Eventually(t, func() bool { return count.Load() >= 3 }, 2*time.Second, 5*time.Millisecond)
	cancel()
	require.NoError(t, <-errCh)
}

func TestTicksPerSecond(t *testing.T) {
	assert.Equal(t, DefaultTicksPerSecond, NewLoop().TicksPerSecond())
	assert.Equal(t, 40, NewLoop(WithTicksPerSecond(40)).TicksPerSecond())
	assert.Equal(t, DefaultTicksPerSecond, NewLoop(WithTicksPerSecond(0)).TicksPerSecond())
}
