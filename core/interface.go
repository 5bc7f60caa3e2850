package core

// Callback handles one message for a service. It returns true when it
// keeps the payload, in which case the runtime does not recycle it.
type Callback func(ctx *Context, ud any, typ MessageType, session int32, source Handle, data []byte) bool

// Module is a named capability provider. Create returns a fresh instance
// for each launched service; a nil instance fails the launch.
type Module interface {
	Create() Instance
}

// Instance backs one service. Init runs on the launching goroutine with the
// new context; returning an error tears the service down before it becomes
// visible to dispatch.
type Instance interface {
	Init(ctx *Context, args string) error
}

// Releaser is implemented by instances that need cleanup when their
// service is deleted.
type Releaser interface {
	Release()
}

// Signaler is implemented by instances that accept SIGNAL commands.
// Signal may be called from any goroutine.
type Signaler interface {
	Signal(sig int)
}

// ModuleFunc adapts a constructor to Module.
type ModuleFunc func() Instance

// Create calls f.
func (f ModuleFunc) Create() Instance {
	return f()
}

// InitFunc is a module without per-service state: it is its own instance.
type InitFunc func(ctx *Context, args string) error

// Create returns f itself.
func (f InitFunc) Create() Instance {
	return f
}

// Init calls f.
func (f InitFunc) Init(ctx *Context, args string) error {
	return f(ctx, args)
}
