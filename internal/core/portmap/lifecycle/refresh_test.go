package lifecycle

import (
	"sync/atomic"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestScheduler_Fires(t *testing.T) {
	mock := clock.NewMock()
	s := NewScheduler(mock)

	var fired atomic.Int32
	require.True(t, s.Schedule(4001, 240*time.Second, func() { fired.Add(1) }))
	assert.True(t, s.Has(4001))

	mock.Add(239 * time.Second)
	time.Sleep(10 * time.Millisecond)
	assert.Zero(t, fired.Load(), "到期前不应触发")

	mock.Add(time.Second)
	require.Eventually(t, func() bool { return fired.Load() == 1 }, time.Second, 5*time.Millisecond)
	assert.True(t, s.Has(4001), "触发后端口仍保留")
}

func TestScheduler_Replace(t *testing.T) {
	mock := clock.NewMock()
	s := NewScheduler(mock)

	var first, second atomic.Int32
	s.Schedule(4001, 10*time.Second, func() { first.Add(1) })
	s.Schedule(4001, 20*time.Second, func() { second.Add(1) })

	mock.Add(30 * time.Second)
	require.Eventually(t, func() bool { return second.Load() == 1 }, time.Second, 5*time.Millisecond)
	assert.Zero(t, first.Load(), "被替换的定时器不应触发")
	assert.Equal(t, []int{4001}, s.Ports())
}

func TestScheduler_Cancel(t *testing.T) {
	mock := clock.NewMock()
	s := NewScheduler(mock)

	var fired atomic.Int32
	s.Schedule(4001, time.Second, func() { fired.Add(1) })
	assert.True(t, s.Cancel(4001))
	assert.False(t, s.Cancel(4001))
	assert.False(t, s.Has(4001))

	mock.Add(time.Minute)
	time.Sleep(10 * time.Millisecond)
	assert.Zero(t, fired.Load())
}

func TestScheduler_Close(t *testing.T) {
	mock := clock.NewMock()
	s := NewScheduler(mock)

	var fired atomic.Int32
	s.Schedule(5000, time.Second, func() { fired.Add(1) })
	s.Schedule(4001, time.Second, func() { fired.Add(1) })

	assert.Equal(t, []int{4001, 5000}, s.Close())
	assert.Empty(t, s.Ports())
	assert.False(t, s.Schedule(4002, time.Second, func() { fired.Add(1) }), "关闭后拒绝调度")

	mock.Add(time.Minute)
	time.Sleep(10 * time.Millisecond)
	assert.Zero(t, fired.Load())
}
