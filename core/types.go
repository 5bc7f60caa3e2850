package core

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/valyala/bytebufferpool"
)

// Handle identifies a live service. The low 24 bits are the local id and
// the high 8 bits carry the harbor (node) id.
type Handle uint32

const (
	// HandleMask selects the local part of a handle.
	HandleMask = 0xffffff

	// HandleRemoteShift is the bit offset of the harbor id.
	HandleRemoteShift = 24
)

// String returns the handle in its ":%08x" form.
func (h Handle) String() string {
	return fmt.Sprintf(":%08x", uint32(h))
}

// Harbor returns the harbor id encoded in the handle.
func (h Handle) Harbor() uint8 {
	return uint8(h >> HandleRemoteShift)
}

// ParseHandle parses the ":hex" form of a handle.
func ParseHandle(s string) (Handle, error) {
	if !strings.HasPrefix(s, ":") {
		return 0, fmt.Errorf("invalid handle %q", s)
	}
	v, err := strconv.ParseUint(s[1:], 16, 32)
	if err != nil {
		return 0, fmt.Errorf("invalid handle %q: %w", s, err)
	}
	return Handle(v), nil
}

// MessageType defines the protocol of a message.
type MessageType uint8

// Message types. Values up to 255 are available; the reserved ranges are
// owned by the framework.
const (
	// MessageTypeText for plain text messages
	MessageTypeText MessageType = 0

	// MessageTypeResponse for responses and timer expirations
	MessageTypeResponse MessageType = 1

	// MessageTypeMulticast for multicast messages
	MessageTypeMulticast MessageType = 2

	// MessageTypeClient for client messages
	MessageTypeClient MessageType = 3

	// MessageTypeSystem for system control messages
	MessageTypeSystem MessageType = 4

	// MessageTypeHarbor for cluster messages
	MessageTypeHarbor MessageType = 5

	// MessageTypeSocket for socket messages
	MessageTypeSocket MessageType = 6

	// MessageTypeError for error notifications
	MessageTypeError MessageType = 7

	MessageTypeReservedQueue MessageType = 8
	MessageTypeReservedDebug MessageType = 9
	MessageTypeReservedLua   MessageType = 10
	MessageTypeReservedSnax  MessageType = 11
)

// String returns the string representation of MessageType.
func (t MessageType) String() string {
	switch t {
	case MessageTypeText:
		return "text"
	case MessageTypeResponse:
		return "response"
	case MessageTypeMulticast:
		return "multicast"
	case MessageTypeClient:
		return "client"
	case MessageTypeSystem:
		return "system"
	case MessageTypeHarbor:
		return "harbor"
	case MessageTypeSocket:
		return "socket"
	case MessageTypeError:
		return "error"
	case MessageTypeReservedQueue, MessageTypeReservedDebug, MessageTypeReservedLua, MessageTypeReservedSnax:
		return "reserved"
	default:
		return "type(" + strconv.Itoa(int(t)) + ")"
	}
}

// SendFlags alter how Send treats the payload and the session.
type SendFlags uint8

const (
	// FlagDontCopy transfers ownership of the payload to the runtime
	// instead of copying it.
	FlagDontCopy SendFlags = 1 << iota

	// FlagAllocSession allocates a new session for the message.
	FlagAllocSession
)

// MaxMessageSize is the largest payload Send accepts.
const MaxMessageSize = 1<<24 - 1

// Message is the unit queued for a service.
type Message struct {
	// Source is the handle of the sender, 0 for the framework
	Source Handle

	// Session correlates requests and responses, 0 when no reply is expected
	Session int32

	// Type is the message protocol
	Type MessageType

	// Data is the payload, may be nil
	Data []byte

	// buf is the pooled buffer backing Data, if the runtime copied it
	buf *bytebufferpool.ByteBuffer
}
