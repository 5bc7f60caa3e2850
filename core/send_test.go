package core

import (
	"errors"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSendToZeroAllocatesSessions(t *testing.T) {
	n, _ := newTestNode(t, NodeOptions{})
	ctx, rec := launchRecorder(t, n)

	s1, err := ctx.Send(0, MessageTypeText, FlagAllocSession, 0, []byte("x"))
	require.NoError(t, err)
	s2, err := ctx.Send(0, MessageTypeText, FlagAllocSession, 0, []byte("x"))
	require.NoError(t, err)

	assert.Positive(t, s1)
	assert.Greater(t, s2, s1)
	assert.Equal(t, 0, ctx.MQLen())

	dispatchAll(n)
	assert.Empty(t, rec.messages())
}

func TestSessionWraps(t *testing.T) {
	n, _ := newTestNode(t, NodeOptions{})
	ctx, _ := launchRecorder(t, n)

	ctx.session.Store(math.MaxInt32)
	assert.Equal(t, int32(1), ctx.NewSession())
	assert.Equal(t, int32(2), ctx.NewSession())
}

func TestSendErrors(t *testing.T) {
	n, _ := newTestNode(t, NodeOptions{})
	ctx, _ := launchRecorder(t, n)

	_, err := ctx.Send(ctx.Handle(), MessageTypeText, 0, 0, make([]byte, MaxMessageSize+1))
	assert.ErrorIs(t, err, ErrMessageTooLarge)

	_, err = ctx.Send(0xfff, MessageTypeText, 0, 0, []byte("x"))
	assert.ErrorIs(t, err, ErrDestinationNotFound)

	_, err = ctx.SendName(".nobody", MessageTypeText, 0, 0, nil)
	assert.ErrorIs(t, err, ErrDestinationNotFound)

	_, err = ctx.SendName("nobody", MessageTypeText, 0, 0, nil)
	assert.ErrorIs(t, err, ErrInvalidAddress)

	_, err = ctx.SendName(":xyz", MessageTypeText, 0, 0, nil)
	assert.ErrorIs(t, err, ErrInvalidAddress)
}

func TestSendSelf(t *testing.T) {
	n, _ := newTestNode(t, NodeOptions{})
	ctx, rec := launchRecorder(t, n)

	payload := []byte("hello")
	session, err := ctx.Send(ctx.Handle(), MessageTypeText, 0, 5, payload)
	require.NoError(t, err)
	assert.Equal(t, int32(5), session)
	copy(payload, "HELLO")

	dispatchAll(n)
	assert.Equal(t, []received{{Type: MessageTypeText, Session: 5, Source: ctx.Handle(), Data: "hello"}}, rec.messages())
	assert.Equal(t, "1", ctx.Command("STAT", "message"))
}

func TestSendName(t *testing.T) {
	n, _ := newTestNode(t, NodeOptions{})
	a, _ := launchRecorder(t, n)
	b, rec := launchRecorder(t, n)
	require.Equal(t, "target", b.Command("REG", ".target"))

	_, err := a.SendName(".target", MessageTypeClient, FlagDontCopy, 1, []byte("by name"))
	require.NoError(t, err)
	_, err = a.SendName(b.Handle().String(), MessageTypeClient, 0, 2, []byte("by handle"))
	require.NoError(t, err)

	dispatchAll(n)
	msgs := rec.messages()
	require.Len(t, msgs, 2)
	assert.Equal(t, "by name", msgs[0].Data)
	assert.Equal(t, "by handle", msgs[1].Data)
	assert.Equal(t, a.Handle(), msgs[1].Source)
}

func TestSendRedirectSource(t *testing.T) {
	n, _ := newTestNode(t, NodeOptions{})
	a, _ := launchRecorder(t, n)
	b, rec := launchRecorder(t, n)

	_, err := n.Send(a, 0x42, b.Handle(), MessageTypeText, 0, 0, nil)
	require.NoError(t, err)
	dispatchAll(n)
	require.Len(t, rec.messages(), 1)
	assert.Equal(t, Handle(0x42), rec.messages()[0].Source)
}

func TestDropBouncesError(t *testing.T) {
	n, _ := newTestNode(t, NodeOptions{})
	a, rec := launchRecorder(t, n)
	b, _ := launchRecorder(t, n)

	_, err := a.Send(b.Handle(), MessageTypeText, 0, 7, []byte("lost"))
	require.NoError(t, err)
	require.True(t, n.Handles().Retire(b.Handle()))

	dispatchAll(n)
	assert.Equal(t, []received{{Type: MessageTypeError, Source: b.Handle()}}, rec.messages())
}

func TestLaunchFailures(t *testing.T) {
	n, _ := newTestNode(t, NodeOptions{})

	_, err := n.Launch("missing", "")
	assert.ErrorIs(t, err, ErrModuleNotFound)

	require.NoError(t, n.Modules().Register("nil", ModuleFunc(func() Instance { return nil })))
	_, err = n.Launch("nil", "")
	assert.ErrorIs(t, err, ErrModuleCreate)

	boom := errors.New("boom")
	require.NoError(t, n.Modules().Register("failing", InitFunc(func(ctx *Context, args string) error {
		return boom
	})))
	_, err = n.Launch("failing", "")
	assert.ErrorIs(t, err, ErrModuleInit)
	assert.ErrorIs(t, err, boom)

	assert.Equal(t, 0, n.Total())
	assert.Empty(t, n.Handles().Handles())
}

func TestLaunchReleasedDuringInit(t *testing.T) {
	n, _ := newTestNode(t, NodeOptions{})
	require.NoError(t, n.Modules().Register("suicide", InitFunc(func(ctx *Context, args string) error {
		ctx.Command("EXIT", "")
		return nil
	})))

	_, err := n.Launch("suicide", "")
	assert.ErrorIs(t, err, ErrContextReleased)
	assert.Equal(t, 0, n.Total())
}

func TestErrorGoesToLogger(t *testing.T) {
	n, _ := newTestNode(t, NodeOptions{})
	logger, rec := launchRecorder(t, n)
	require.Equal(t, "logger", logger.Command("REG", ".logger"))

	n.Error(nil, "hello %d", 1)
	dispatchAll(n)
	assert.Equal(t, []received{{Type: MessageTypeText, Data: "hello 1"}}, rec.messages())

	// falls back to the framework logger once the service is gone
	n.Handles().Retire(logger.Handle())
	n.Error(nil, "after")
}
