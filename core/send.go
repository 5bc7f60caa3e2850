package core

import (
	"fmt"
	"strings"

	"go.uber.org/zap"
)

// Send delivers a message to destination. A zero source means ctx itself.
// With FlagAllocSession a new session is allocated from ctx and returned;
// otherwise session is returned as given. Unless FlagDontCopy is set the
// payload is copied. Sending to handle 0 delivers nothing.
func (n *Node) Send(ctx *Context, source, destination Handle, typ MessageType, flags SendFlags, session int32, data []byte) (int32, error) {
	if len(data) > MaxMessageSize {
		n.Error(ctx, "The message to %s is too large", destination)
		return 0, ErrMessageTooLarge
	}

	if flags&FlagAllocSession != 0 {
		if ctx == nil {
			panic("core: session allocation without a context")
		}
		session = ctx.NewSession()
	}

	if source == 0 && ctx != nil {
		source = ctx.handle
	}

	msg := Message{Source: source, Session: session, Type: typ}
	if flags&FlagDontCopy != 0 {
		msg.Data = data
	} else {
		msg.copyPayload(data)
	}

	if destination == 0 {
		msg.free()
		return session, nil
	}

	if err := n.Push(destination, msg); err != nil {
		msg.free()
		return 0, err
	}
	return session, nil
}

// SendName resolves addr and sends to it. addr is ":hex" for a numeric
// handle or ".name" for a local name.
func (n *Node) SendName(ctx *Context, source Handle, addr string, typ MessageType, flags SendFlags, session int32, data []byte) (int32, error) {
	var destination Handle
	switch {
	case strings.HasPrefix(addr, ":"):
		h, err := ParseHandle(addr)
		if err != nil {
			return 0, fmt.Errorf("%w: %w", ErrInvalidAddress, err)
		}
		destination = h
	case strings.HasPrefix(addr, "."):
		destination = n.handles.FindName(addr[1:])
		if destination == 0 {
			return 0, fmt.Errorf("%s: %w", addr, ErrDestinationNotFound)
		}
	default:
		return 0, fmt.Errorf("%q: %w", addr, ErrInvalidAddress)
	}
	return n.Send(ctx, source, destination, typ, flags, session, data)
}

// QueryName resolves ":hex" or ".name" to a handle, or 0.
func (n *Node) QueryName(ctx *Context, name string) Handle {
	switch {
	case strings.HasPrefix(name, ":"):
		h, err := ParseHandle(name)
		if err != nil {
			return 0
		}
		return h
	case strings.HasPrefix(name, "."):
		return n.handles.FindName(name[1:])
	}
	n.Error(ctx, "Don't support query global name %s", name)
	return 0
}

// Error formats a diagnostic and sends it as a text message to the
// service named "logger", with the handle of ctx as source. Without a
// logger service the text goes to the framework logger.
func (n *Node) Error(ctx *Context, format string, args ...any) {
	text := fmt.Sprintf(format, args...)
	var source Handle
	if ctx != nil {
		source = ctx.handle
	}

	logger := Handle(n.loggerHandle.Load())
	if logger == 0 {
		logger = n.handles.FindName("logger")
		if logger != 0 {
			n.loggerHandle.Store(uint32(logger))
		}
	}

	if logger != 0 {
		msg := Message{Source: source, Type: MessageTypeText}
		msg.copyPayload([]byte(text))
		if err := n.Push(logger, msg); err == nil {
			return
		}
		msg.free()
		n.loggerHandle.CompareAndSwap(uint32(logger), 0)
	}

	n.log.Info(text, zap.Stringer("source", source))
}
