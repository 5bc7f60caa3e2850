package core

import "github.com/valyala/bytebufferpool"

// copyPayload duplicates data into a pooled buffer owned by msg.
func (m *Message) copyPayload(data []byte) {
	if data == nil {
		m.Data = nil
		return
	}
	buf := bytebufferpool.Get()
	_, _ = buf.Write(data)
	m.buf = buf
	m.Data = buf.B
}

// free returns a runtime-owned payload to the pool. Payloads that were sent
// with FlagDontCopy are left to the garbage collector.
func (m *Message) free() {
	if m.buf != nil {
		bytebufferpool.Put(m.buf)
		m.buf = nil
	}
	m.Data = nil
}
