package core

import (
	"fmt"
	"strconv"
	"strings"
)

type commandFunc func(ctx *Context, param string) string

// commands is the fixed text command table. A command returns "" when it
// has no result.
var commands = map[string]commandFunc{
	"TIMEOUT":   cmdTimeout,
	"REG":       cmdReg,
	"QUERY":     cmdQuery,
	"NAME":      cmdName,
	"EXIT":      cmdExit,
	"KILL":      cmdKill,
	"LAUNCH":    cmdLaunch,
	"GETENV":    cmdGetenv,
	"SETENV":    cmdSetenv,
	"STARTTIME": cmdStarttime,
	"ENDLESS":   cmdEndless,
	"ABORT":     cmdAbort,
	"MONITOR":   cmdMonitor,
	"STAT":      cmdStat,
	"MQLEN":     cmdMqlen,
	"LOGON":     cmdLogon,
	"LOGOFF":    cmdLogoff,
	"SIGNAL":    cmdSignal,
}

// Command runs a text command on behalf of the service. Unknown commands
// and commands without a result return "".
func (c *Context) Command(cmd, param string) string {
	fn, ok := commands[cmd]
	if !ok {
		return ""
	}
	return fn(c, param)
}

func (n *Node) handleExit(ctx *Context, handle Handle) {
	if handle == 0 {
		handle = ctx.handle
		n.Error(ctx, "KILL self")
	} else {
		n.Error(ctx, "KILL %s", handle)
	}
	if monitor := Handle(n.monitorExit.Load()); monitor != 0 {
		_, _ = n.Send(ctx, handle, monitor, MessageTypeClient, 0, 0, nil)
	}
	n.handles.Retire(handle)
}

// toHandle resolves ":hex" or ".name"; the first field of param is used.
func (n *Node) toHandle(ctx *Context, param string) Handle {
	addr, _, _ := strings.Cut(strings.TrimSpace(param), " ")
	switch {
	case strings.HasPrefix(addr, ":"):
		h, _ := ParseHandle(addr)
		return h
	case strings.HasPrefix(addr, "."):
		return n.handles.FindName(addr[1:])
	}
	n.Error(ctx, "Can't convert %s to handle", param)
	return 0
}

func cmdTimeout(ctx *Context, param string) string {
	ti, _ := strconv.Atoi(strings.TrimSpace(param))
	session := ctx.NewSession()
	_ = ctx.node.timer.Timeout(ctx.handle, ti, session)
	return strconv.Itoa(int(session))
}

func cmdReg(ctx *Context, param string) string {
	switch {
	case param == "":
		return fmt.Sprintf(":%x", uint32(ctx.handle))
	case strings.HasPrefix(param, "."):
		name, _ := ctx.node.handles.BindName(ctx.handle, param[1:])
		return name
	}
	ctx.Error("Can't register global name %s", param)
	return ""
}

func cmdQuery(ctx *Context, param string) string {
	if strings.HasPrefix(param, ".") {
		if h := ctx.node.handles.FindName(param[1:]); h != 0 {
			return fmt.Sprintf(":%x", uint32(h))
		}
	}
	return ""
}

func cmdName(ctx *Context, param string) string {
	fields := strings.Fields(param)
	if len(fields) < 2 || !strings.HasPrefix(fields[1], ":") {
		return ""
	}
	h, err := ParseHandle(fields[1])
	if err != nil || h == 0 {
		return ""
	}
	name := fields[0]
	if strings.HasPrefix(name, ".") {
		bound, _ := ctx.node.handles.BindName(h, name[1:])
		return bound
	}
	ctx.Error("Can't set global name %s", name)
	return ""
}

func cmdExit(ctx *Context, _ string) string {
	ctx.node.handleExit(ctx, 0)
	return ""
}

func cmdKill(ctx *Context, param string) string {
	if h := ctx.node.toHandle(ctx, param); h != 0 {
		ctx.node.handleExit(ctx, h)
	}
	return ""
}

func cmdLaunch(ctx *Context, param string) string {
	mod, args, _ := strings.Cut(strings.TrimLeft(param, " \t\r\n"), " ")
	mod = strings.TrimRight(mod, "\t\r\n")
	args, _, _ = strings.Cut(args, "\n")
	args = strings.TrimRight(args, "\r")

	inst, err := ctx.node.Launch(mod, args)
	if err != nil {
		return ""
	}
	return fmt.Sprintf(":%08X", uint32(inst.handle))
}

func cmdGetenv(ctx *Context, param string) string {
	v, _ := ctx.node.env.Get(param)
	return v
}

func cmdSetenv(ctx *Context, param string) string {
	key, value, ok := strings.Cut(param, " ")
	if !ok {
		return ""
	}
	if err := ctx.node.env.Set(key, value); err != nil {
		ctx.Error("SETENV %s: %v", key, err)
	}
	return ""
}

func cmdStarttime(ctx *Context, _ string) string {
	return strconv.FormatUint(uint64(ctx.node.timer.StartTime()), 10)
}

func cmdEndless(ctx *Context, _ string) string {
	if ctx.endless.CompareAndSwap(true, false) {
		return "1"
	}
	return ""
}

func cmdAbort(ctx *Context, _ string) string {
	ctx.node.handles.RetireAll()
	return ""
}

func cmdMonitor(ctx *Context, param string) string {
	if param == "" {
		if h := ctx.node.monitorExit.Load(); h != 0 {
			return fmt.Sprintf(":%x", h)
		}
		return ""
	}
	ctx.node.monitorExit.Store(uint32(ctx.node.toHandle(ctx, param)))
	return ""
}

func cmdStat(ctx *Context, param string) string {
	switch param {
	case "mqlen":
		return strconv.Itoa(ctx.queue.Len())
	case "endless":
		if ctx.endless.CompareAndSwap(true, false) {
			return "1"
		}
		return "0"
	case "cpu":
		return fmt.Sprintf("%f", float64(ctx.cpuCost.Load())/1000000.0)
	case "time":
		if !ctx.profile {
			return "0"
		}
		ti := threadTime() - ctx.cpuStart.Load()
		return fmt.Sprintf("%f", float64(ti)/1000000.0)
	case "message":
		return strconv.FormatInt(ctx.messageCount.Load(), 10)
	}
	return ""
}

func cmdMqlen(ctx *Context, _ string) string {
	return strconv.Itoa(ctx.queue.Len())
}

func cmdLogon(ctx *Context, param string) string {
	h := ctx.node.toHandle(ctx, param)
	if h == 0 {
		return ""
	}
	target := ctx.node.handles.Grab(h)
	if target == nil {
		return ""
	}
	defer target.Release()

	if target.logfile.Load() == nil {
		if f := ctx.node.logOpen(ctx, h); f != nil {
			if !target.logfile.CompareAndSwap(nil, f) {
				_ = f.Close()
			}
		}
	}
	return ""
}

func cmdLogoff(ctx *Context, param string) string {
	h := ctx.node.toHandle(ctx, param)
	if h == 0 {
		return ""
	}
	target := ctx.node.handles.Grab(h)
	if target == nil {
		return ""
	}
	defer target.Release()

	if f := target.logfile.Load(); f != nil {
		if target.logfile.CompareAndSwap(f, nil) {
			ctx.node.logClose(ctx, f, h)
		}
	}
	return ""
}

func cmdSignal(ctx *Context, param string) string {
	h := ctx.node.toHandle(ctx, param)
	if h == 0 {
		return ""
	}

	sig := 0
	if _, rest, ok := strings.Cut(strings.TrimSpace(param), " "); ok {
		if v, err := strconv.ParseInt(strings.TrimSpace(rest), 0, 32); err == nil {
			sig = int(v)
		}
	}
	ctx.node.Signal(h, sig)
	return ""
}

// Signal delivers sig to the instance of handle if it implements
// Signaler. It reports whether the service exists.
func (n *Node) Signal(handle Handle, sig int) bool {
	target := n.handles.Grab(handle)
	if target == nil {
		return false
	}
	defer target.Release()

	if s, ok := target.instance.(Signaler); ok {
		s.Signal(sig)
	}
	return true
}
