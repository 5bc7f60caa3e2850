package core

import (
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// logOpen opens the message log of handle under the "logpath" env
// directory. It returns nil when logging is not configured or the file
// cannot be opened.
func (n *Node) logOpen(ctx *Context, handle Handle) *os.File {
	logpath, ok := n.env.Get("logpath")
	if !ok {
		return nil
	}

	name := filepath.Join(logpath, fmt.Sprintf("%08x.log", uint32(handle)))
	f, err := os.OpenFile(name, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		n.Error(ctx, "Open log file %s fail", name)
		return nil
	}

	current := n.timer.Now()
	ti := time.Unix(int64(n.timer.StartTime())+int64(current/100), 0)
	n.Error(ctx, "Open log file %s", name)
	fmt.Fprintf(f, "open time: %d %s\n", uint32(current), ti.Format(time.ANSIC))
	return f
}

func (n *Node) logClose(ctx *Context, f *os.File, handle Handle) {
	n.Error(ctx, "Close log file %s", handle)
	fmt.Fprintf(f, "close time: %d\n", uint32(n.timer.Now()))
	_ = f.Close()
}

// logOutput appends one message record: source, type, session, time and
// the payload in hex. Socket messages are not recorded.
func logOutput(f *os.File, msg *Message, now uint64) {
	if msg.Type == MessageTypeSocket {
		return
	}
	fmt.Fprintf(f, "%s %d %d %d %x\n", msg.Source, msg.Type, msg.Session, uint32(now), msg.Data)
}
