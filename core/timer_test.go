package core

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type firedTimer struct {
	handle Handle
	msg    Message
}

func newTestWheel(clock *fakeClock) (*TimerWheel, *[]firedTimer, *[]string) {
	var fired []firedTimer
	var reports []string
	w := NewTimerWheel(clock.now, func(h Handle, msg Message) error {
		if h == 0 {
			return ErrDestinationNotFound
		}
		fired = append(fired, firedTimer{handle: h, msg: msg})
		return nil
	}, func(format string, args ...any) {
		reports = append(reports, fmt.Sprintf(format, args...))
	})
	return w, &fired, &reports
}

func TestTimerImmediate(t *testing.T) {
	w, fired, _ := newTestWheel(&fakeClock{})

	require.NoError(t, w.Timeout(7, 0, 3))
	require.Len(t, *fired, 1)
	assert.Equal(t, Handle(7), (*fired)[0].handle)
	assert.Equal(t, Message{Session: 3, Type: MessageTypeResponse}, (*fired)[0].msg)

	assert.ErrorIs(t, w.Timeout(0, -5, 1), ErrDestinationNotFound)
}

func TestTimerExactTick(t *testing.T) {
	w, fired, _ := newTestWheel(&fakeClock{})

	require.NoError(t, w.Timeout(7, 250, 42))
	for i := 0; i < 249; i++ {
		w.Tick()
	}
	assert.Empty(t, *fired)

	w.Tick()
	require.Len(t, *fired, 1)
	assert.Equal(t, int32(42), (*fired)[0].msg.Session)
	assert.Equal(t, MessageTypeResponse, (*fired)[0].msg.Type)
	assert.Zero(t, (*fired)[0].msg.Source)
	assert.Nil(t, (*fired)[0].msg.Data)
}

func TestTimerCascade(t *testing.T) {
	for _, delay := range []int{256, 300, 16384, 70000} {
		t.Run(fmt.Sprint(delay), func(t *testing.T) {
			w, fired, _ := newTestWheel(&fakeClock{})
			require.NoError(t, w.Timeout(1, delay, 9))

			for i := 0; i < delay-1; i++ {
				w.Tick()
			}
			assert.Empty(t, *fired)
			w.Tick()
			assert.Len(t, *fired, 1)
		})
	}
}

func TestTimerOrder(t *testing.T) {
	w, fired, _ := newTestWheel(&fakeClock{})
	require.NoError(t, w.Timeout(1, 5, 1))
	require.NoError(t, w.Timeout(1, 3, 2))
	require.NoError(t, w.Timeout(1, 5, 3))

	for i := 0; i < 5; i++ {
		w.Tick()
	}
	require.Len(t, *fired, 3)
	assert.Equal(t, int32(2), (*fired)[0].msg.Session)
	assert.Equal(t, int32(1), (*fired)[1].msg.Session)
	assert.Equal(t, int32(3), (*fired)[2].msg.Session)
}

func TestTimerUpdate(t *testing.T) {
	clock := &fakeClock{}
	clock.cs.Store(100)
	w, fired, reports := newTestWheel(clock)
	start := w.Now()

	require.NoError(t, w.Timeout(1, 3, 1))
	clock.cs.Store(105)
	w.Update()
	assert.Equal(t, start+5, w.Now())
	assert.Len(t, *fired, 1)

	// backwards jump is reported and rebased
	clock.cs.Store(50)
	w.Update()
	assert.Equal(t, start+5, w.Now())
	assert.Len(t, *reports, 1)

	clock.cs.Store(52)
	w.Update()
	assert.Equal(t, start+7, w.Now())
}
