package core

import (
	"sort"
	"sync"
)

const (
	defaultSlotSize = 4
	maxSlotSize     = 0x40000000
)

type handleName struct {
	name   string
	handle Handle
}

// HandleTable maps handles to live contexts and keeps the sorted
// name directory.
type HandleTable struct {
	mu sync.RWMutex

	harbor uint32
	index  uint32
	slot   []*Context

	// names is kept sorted by name
	names []handleName
}

// NewHandleTable creates a table whose handles carry the given harbor id.
// Handle 0 is reserved for the framework.
func NewHandleTable(harbor uint8) *HandleTable {
	return &HandleTable{
		harbor: uint32(harbor) << HandleRemoteShift,
		index:  1,
		slot:   make([]*Context, defaultSlotSize),
		names:  make([]handleName, 0, 2),
	}
}

// Register stores ctx in a free slot and assigns its handle, to ctx and to
// its queue, before the context becomes visible to Grab. The slot array
// doubles when full; running out of 24-bit handles panics.
func (t *HandleTable) Register(ctx *Context) Handle {
	t.mu.Lock()
	defer t.mu.Unlock()

	for {
		size := uint32(len(t.slot))
		for i := uint32(0); i < size; i++ {
			handle := (i + t.index) & HandleMask
			if handle == 0 {
				continue
			}
			hash := handle & (size - 1)
			if t.slot[hash] == nil {
				t.slot[hash] = ctx
				t.index = handle + 1
				h := Handle(handle | t.harbor)
				ctx.handle = h
				if ctx.queue != nil {
					ctx.queue.handle = h
				}
				return h
			}
		}

		if size*2-1 > HandleMask {
			panic("core: handle table is full")
		}
		slot := make([]*Context, size*2)
		for _, c := range t.slot {
			if c == nil {
				continue
			}
			hash := uint32(c.handle) & (size*2 - 1)
			if slot[hash] != nil {
				panic("core: handle table rehash collision")
			}
			slot[hash] = c
		}
		t.slot = slot
	}
}

// Retire removes the context owning handle and all names bound to it.
// The table's reference is released after the lock is dropped, since
// deleting the context may call back into the table.
func (t *HandleTable) Retire(handle Handle) bool {
	t.mu.Lock()
	hash := uint32(handle) & uint32(len(t.slot)-1)
	ctx := t.slot[hash]
	if ctx == nil || ctx.handle != handle {
		t.mu.Unlock()
		return false
	}
	t.slot[hash] = nil

	j := 0
	for _, n := range t.names {
		if n.handle == handle {
			continue
		}
		t.names[j] = n
		j++
	}
	for i := j; i < len(t.names); i++ {
		t.names[i] = handleName{}
	}
	t.names = t.names[:j]
	t.mu.Unlock()

	ctx.Release()
	return true
}

// RetireAll retires every handle, rescanning until a full pass finds
// nothing left so that contexts created meanwhile are also retired.
func (t *HandleTable) RetireAll() {
	for {
		n := 0
		t.mu.RLock()
		size := len(t.slot)
		t.mu.RUnlock()

		for i := 0; i < size; i++ {
			var handle Handle
			t.mu.RLock()
			if i < len(t.slot) {
				if ctx := t.slot[i]; ctx != nil {
					handle = ctx.handle
				}
			}
			t.mu.RUnlock()

			if handle != 0 && t.Retire(handle) {
				n++
			}
		}
		if n == 0 {
			return
		}
	}
}

// Grab returns the context owning handle with its reference count
// incremented, or nil. The caller must Release the context.
func (t *HandleTable) Grab(handle Handle) *Context {
	t.mu.RLock()
	defer t.mu.RUnlock()

	hash := uint32(handle) & uint32(len(t.slot)-1)
	ctx := t.slot[hash]
	if ctx == nil || ctx.handle != handle {
		return nil
	}
	ctx.grab()
	return ctx
}

// FindName returns the handle bound to name, or 0.
func (t *HandleTable) FindName(name string) Handle {
	t.mu.RLock()
	defer t.mu.RUnlock()

	i := sort.Search(len(t.names), func(i int) bool { return t.names[i].name >= name })
	if i < len(t.names) && t.names[i].name == name {
		return t.names[i].handle
	}
	return 0
}

// BindName binds name to handle. It reports false if the name is taken.
func (t *HandleTable) BindName(handle Handle, name string) (string, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	i := sort.Search(len(t.names), func(i int) bool { return t.names[i].name >= name })
	if i < len(t.names) && t.names[i].name == name {
		return "", false
	}

	if len(t.names) == cap(t.names) {
		if cap(t.names)*2 > maxSlotSize {
			panic("core: name table is full")
		}
		names := make([]handleName, len(t.names), cap(t.names)*2)
		copy(names, t.names)
		t.names = names
	}
	t.names = append(t.names, handleName{})
	copy(t.names[i+1:], t.names[i:])
	t.names[i] = handleName{name: name, handle: handle}

	return name, true
}

// Handles returns a snapshot of the live handles.
func (t *HandleTable) Handles() []Handle {
	t.mu.RLock()
	defer t.mu.RUnlock()

	handles := make([]Handle, 0, len(t.slot))
	for _, ctx := range t.slot {
		if ctx != nil {
			handles = append(handles, ctx.handle)
		}
	}
	sort.Slice(handles, func(i, j int) bool { return handles[i] < handles[j] })
	return handles
}

// Names returns the names bound to handle.
func (t *HandleTable) Names(handle Handle) []string {
	t.mu.RLock()
	defer t.mu.RUnlock()

	var names []string
	for _, n := range t.names {
		if n.handle == handle {
			names = append(names, n.name)
		}
	}
	return names
}
