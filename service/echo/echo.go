// Package echo implements a service that answers every request with its
// own payload.
package echo

import (
	"strings"

	"github.com/najoast/uboss/core"
)

// Name is the module name of the echo service.
const Name = "echo"

// Module creates echo service instances. The launch args may name the
// service, e.g. ".echo".
var Module core.Module = core.InitFunc(func(ctx *core.Context, args string) error {
	for _, name := range strings.Fields(args) {
		if strings.HasPrefix(name, ".") {
			ctx.Command("REG", name)
		}
	}
	ctx.Callback(nil, callback)
	return nil
})

func callback(ctx *core.Context, ud any, typ core.MessageType, session int32, source core.Handle, data []byte) bool {
	if source == 0 || typ == core.MessageTypeResponse || typ == core.MessageTypeError {
		return false
	}
	// hand the received payload over instead of copying it
	if _, err := ctx.Send(source, core.MessageTypeResponse, core.FlagDontCopy, session, data); err != nil {
		ctx.Error("echo reply to %s: %v", source, err)
		return false
	}
	return true
}
