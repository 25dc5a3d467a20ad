// Package wire implements the fixed-header, text-payload datagram shared by
// the Shell Server and the Control Client (spec section "Wire Message and
// Transport Framing").
package wire

import (
	"encoding/binary"
	"errors"
	"fmt"
)

// MsgType enumerates the wire message types. Values are part of the wire
// contract and must never be renumbered.
type MsgType byte

const (
	QueryVersion MsgType = iota + 1
	QueryPayloadSize
	QueryName
	QueryCommands1 // for `help`
	QueryCommands2 // for tab completion, keyword list delimited by '/'
	UpdatePayloadSize
	UserCommand
	CommandComplete
	QueryBanner
	QueryTitle
	QueryPrompt
	ControlCommand
)

func (t MsgType) String() string {
	switch t {
	case QueryVersion:
		return "QUERY_VERSION"
	case QueryPayloadSize:
		return "QUERY_PAYLOAD_SIZE"
	case QueryName:
		return "QUERY_NAME"
	case QueryCommands1:
		return "QUERY_COMMANDS1"
	case QueryCommands2:
		return "QUERY_COMMANDS2"
	case UpdatePayloadSize:
		return "UPDATE_PAYLOAD_SIZE"
	case UserCommand:
		return "USER_COMMAND"
	case CommandComplete:
		return "COMMAND_COMPLETE"
	case QueryBanner:
		return "QUERY_BANNER"
	case QueryTitle:
		return "QUERY_TITLE"
	case QueryPrompt:
		return "QUERY_PROMPT"
	case ControlCommand:
		return "CONTROL_COMMAND"
	default:
		return fmt.Sprintf("MsgType(%d)", byte(t))
	}
}

const (
	// HeaderSize is the fixed 8-byte header: type, respNeeded, dataNeeded,
	// pad, then a 4-byte little-endian sequence number.
	HeaderSize = 8

	// DefaultPayloadSize is the conservative initial payload size, per
	// spec section "Wire Message and Transport Framing".
	DefaultPayloadSize = 4 * 1024

	// MaxPayloadSize is the fixed negotiation ceiling.
	MaxPayloadSize = 64 * 1024
)

var (
	ErrTruncated = errors.New("wire: truncated frame")
	ErrTooLarge  = errors.New("wire: payload exceeds maximum size")
)

// Message is one Wire Message: header plus text payload.
type Message struct {
	Type       MsgType
	RespNeeded bool
	DataNeeded bool
	Seq        uint32
	Payload    string
}

// Marshal encodes m into its on-the-wire byte layout. Compatibility is
// defined by this field order, not by host endianness.
func (m *Message) Marshal() []byte {
	buf := make([]byte, HeaderSize+len(m.Payload))

	buf[0] = byte(m.Type)
	if m.RespNeeded {
		buf[1] = 1
	}
	if m.DataNeeded {
		buf[2] = 1
	}
	buf[3] = 0 // pad
	binary.LittleEndian.PutUint32(buf[4:8], m.Seq)
	copy(buf[HeaderSize:], m.Payload)

	return buf
}

// Unmarshal decodes buf (a full datagram, or a stream frame with the length
// prefix already stripped) into a Message. The payload is bounded by
// whichever is smaller: the buffer's remaining length, or the first NUL
// byte, matching the "NUL-terminated in-buffer" rule for datagram framing.
func Unmarshal(buf []byte) (*Message, error) {
	if len(buf) < HeaderSize {
		return nil, ErrTruncated
	}

	m := &Message{
		Type:       MsgType(buf[0]),
		RespNeeded: buf[1] != 0,
		DataNeeded: buf[2] != 0,
		Seq:        binary.LittleEndian.Uint32(buf[4:8]),
	}

	payload := buf[HeaderSize:]
	if i := indexByte(payload, 0); i >= 0 {
		payload = payload[:i]
	}
	m.Payload = string(payload)

	return m, nil
}

func indexByte(b []byte, c byte) int {
	for i, v := range b {
		if v == c {
			return i
		}
	}
	return -1
}

// FramedSize returns the total byte count (header+payload) used by the
// stream-transport length prefix.
func (m *Message) FramedSize() int {
	return HeaderSize + len(m.Payload)
}

// WriteFrame writes the 4-byte little-endian length prefix followed by the
// marshaled message, for stream (TCP) transports.
func WriteFrame(m *Message) []byte {
	body := m.Marshal()

	out := make([]byte, 4+len(body))
	binary.LittleEndian.PutUint32(out[0:4], uint32(len(body)))
	copy(out[4:], body)

	return out
}

// ReadFrameLength decodes the 4-byte length prefix used by stream
// transports.
func ReadFrameLength(prefix []byte) (uint32, error) {
	if len(prefix) < 4 {
		return 0, ErrTruncated
	}
	n := binary.LittleEndian.Uint32(prefix[:4])
	if n > MaxPayloadSize+HeaderSize {
		return 0, ErrTooLarge
	}
	return n, nil
}
