package ipc

import (
	"fmt"
	"io"
)

// Message is one framed unit. It owns a single buffer holding the header
// followed by the payload; the parsed header is kept as a copy.
//
// The zero Message is not materialized. Messages come from Encode or
// ReadMessage only.
type Message struct {
	header Header
	buf    []byte
}

// Encode builds an outgoing message from h and v. The size field of the
// returned header is the computed total; h.Size is ignored.
func Encode[T any](h Header, v T, codec Codec[T]) (Message, error) {
	payloadLen := codec.Size(v)
	if payloadLen < 0 || payloadLen > MaxPayloadSize {
		return Message{}, fmt.Errorf("%w: payload=%d header=%d", ErrSizeOverflow, payloadLen, HeaderSize)
	}
	total := HeaderSize + payloadLen

	buf := make([]byte, total)
	h.Size = uint16(total)
	h.Reserved = 0
	PutHeader(buf, h)
	if err := codec.Flatten(buf[HeaderSize:], v); err != nil {
		return Message{}, err
	}
	return Message{header: h, buf: buf}, nil
}

// ReadMessage reads one incoming message from r. The magic and the declared
// size are validated before any payload byte is read.
func ReadMessage(r io.Reader) (Message, error) {
	var head [HeaderSize]byte
	if _, err := io.ReadFull(r, head[:]); err != nil {
		return Message{}, fmt.Errorf("%w: %w", ErrShortHeader, err)
	}
	h, err := DecodeHeader(head[:])
	if err != nil {
		return Message{}, err
	}
	if !h.HasValidMagic() {
		return Message{}, fmt.Errorf("%w: magic=%q", ErrProtocolVersionMismatch, h.Magic[:])
	}
	payloadLen, err := h.PayloadLen()
	if err != nil {
		return Message{}, err
	}

	buf := make([]byte, h.Size)
	copy(buf, head[:])
	if payloadLen > 0 {
		if _, err := io.ReadFull(r, buf[HeaderSize:]); err != nil {
			return Message{}, fmt.Errorf("%w: want %d bytes: %w", ErrShortPayload, payloadLen, err)
		}
	}
	return Message{header: h, buf: buf}, nil
}

// Flusher is implemented by writers that buffer, such as transport
// connections.
type Flusher interface {
	Flush() error
}

// WriteMessage writes the message buffer to w and flushes it when w buffers.
func WriteMessage(w io.Writer, m Message) error {
	m.mustBeMaterialized()
	if _, err := w.Write(m.buf); err != nil {
		return err
	}
	if f, ok := w.(Flusher); ok {
		return f.Flush()
	}
	return nil
}

// ExtractPayload interprets the payload region of m as a T. The result never
// aliases the message buffer.
func ExtractPayload[T any](m Message, codec Codec[T]) (T, error) {
	m.mustBeMaterialized()
	return codec.Parse(m.buf[HeaderSize:])
}

func (m Message) Header() Header {
	return m.header
}

func (m Message) CommandSet() uint8 { return m.header.CommandSet }
func (m Message) Command() uint8    { return m.header.Command }

// Size is the total message length, header included.
func (m Message) Size() int {
	return len(m.buf)
}

// Bytes returns the wire form of the message. The slice is the message's own
// buffer; callers must not keep it past the message.
func (m Message) Bytes() []byte {
	m.mustBeMaterialized()
	return m.buf
}

// Payload returns a copy of the raw payload bytes.
func (m Message) Payload() []byte {
	m.mustBeMaterialized()
	out := make([]byte, len(m.buf)-HeaderSize)
	copy(out, m.buf[HeaderSize:])
	return out
}

func (m Message) IsMaterialized() bool {
	return len(m.buf) >= HeaderSize
}

func (m Message) mustBeMaterialized() {
	if !m.IsMaterialized() {
		panic("ipc: message used before it was encoded or read")
	}
}
