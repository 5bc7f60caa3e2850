package echo

import (
	"sync"
	"testing"

	"github.com/najoast/uboss/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type reply struct {
	typ     core.MessageType
	session int32
	source  core.Handle
	data    string
}

func TestEchoReplies(t *testing.T) {
	n := core.NewNode(core.DefaultNodeOptions())
	require.NoError(t, n.Modules().Register(Name, Module))

	var mu sync.Mutex
	var replies []reply
	require.NoError(t, n.Modules().Register("client", core.InitFunc(func(ctx *core.Context, args string) error {
		ctx.Callback(nil, func(ctx *core.Context, ud any, typ core.MessageType, session int32, source core.Handle, data []byte) bool {
			mu.Lock()
			replies = append(replies, reply{typ, session, source, string(data)})
			mu.Unlock()
			return false
		})
		return nil
	})))

	srv, err := n.Launch(Name, ".echo")
	require.NoError(t, err)
	assert.Equal(t, srv.Handle(), n.Handles().FindName("echo"))
	client, err := n.Launch("client", "")
	require.NoError(t, err)

	session, err := client.SendName(".echo", core.MessageTypeText, core.FlagAllocSession, 0, []byte("ping"))
	require.NoError(t, err)

	m := core.NewMonitor()
	var q *core.MessageQueue
	for {
		q = n.DispatchMessage(m, q, -1)
		if q == nil && n.GlobalQueue().Len() == 0 {
			break
		}
	}

	assert.Equal(t, []reply{{core.MessageTypeResponse, session, srv.Handle(), "ping"}}, replies)
}
