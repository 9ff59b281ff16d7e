package ipc

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"math"
)

const (
	HeaderSize = 20
	MagicLen   = 14

	// MaxMessageSize is the largest total size the uint16 size field can declare.
	MaxMessageSize = math.MaxUint16
	// MaxPayloadSize is what remains for a payload once the header is accounted for.
	MaxPayloadSize = MaxMessageSize - HeaderSize
)

// Magic is "DOTNET_IPC_V1" zero-padded to MagicLen.
var Magic = [MagicLen]byte{'D', 'O', 'T', 'N', 'E', 'T', '_', 'I', 'P', 'C', '_', 'V', '1', 0}

// Header is the fixed wire header that prefixes every message.
type Header struct {
	Magic      [MagicLen]byte
	Size       uint16
	CommandSet uint8
	Command    uint8
	Reserved   uint16
}

// NewHeader returns a header carrying the current magic. Size is filled in by
// the encoder.
func NewHeader(commandSet, command uint8) Header {
	return Header{Magic: Magic, CommandSet: commandSet, Command: command}
}

// PayloadLen is the number of bytes the header says follow it on the wire.
func (h Header) PayloadLen() (int, error) {
	if h.Size < HeaderSize {
		return 0, fmt.Errorf("%w: size=%d", ErrInvalidSize, h.Size)
	}
	return int(h.Size) - HeaderSize, nil
}

func (h Header) HasValidMagic() bool {
	return h.Magic == Magic
}

func (h Header) String() string {
	return fmt.Sprintf("magic=%q size=%d command_set=0x%02x command=0x%02x",
		bytes.TrimRight(h.Magic[:], "\x00"), h.Size, h.CommandSet, h.Command)
}

// PutHeader writes h into the first HeaderSize bytes of dst. Reserved is
// always written as zero.
func PutHeader(dst []byte, h Header) {
	_ = dst[HeaderSize-1]
	copy(dst[0:MagicLen], h.Magic[:])
	binary.LittleEndian.PutUint16(dst[14:16], h.Size)
	dst[16] = h.CommandSet
	dst[17] = h.Command
	binary.LittleEndian.PutUint16(dst[18:20], 0)
}

func EncodeHeader(h Header) []byte {
	buf := make([]byte, HeaderSize)
	PutHeader(buf, h)
	return buf
}

// DecodeHeader parses a header without validating it. Reserved is carried
// through as read but never checked.
func DecodeHeader(b []byte) (Header, error) {
	if len(b) < HeaderSize {
		return Header{}, fmt.Errorf("%w: got %d bytes", ErrShortHeader, len(b))
	}
	var h Header
	copy(h.Magic[:], b[0:MagicLen])
	h.Size = binary.LittleEndian.Uint16(b[14:16])
	h.CommandSet = b[16]
	h.Command = b[17]
	h.Reserved = binary.LittleEndian.Uint16(b[18:20])
	return h, nil
}
