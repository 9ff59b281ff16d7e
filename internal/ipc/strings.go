package ipc

import (
	"encoding/binary"
	"fmt"
	"unicode/utf8"

	"golang.org/x/text/encoding/unicode"
)

// Strings travel as a uint32 count of UTF-16 code units (terminator included)
// followed by UTF-16LE text and a zero terminator. The empty string is a bare
// zero count.

var utf16le = unicode.UTF16(unicode.LittleEndian, unicode.IgnoreBOM)

func encodeUTF16(s string) ([]byte, error) {
	if !utf8.ValidString(s) {
		return nil, fmt.Errorf("ipc: string is not valid utf-8")
	}
	return utf16le.NewEncoder().Bytes([]byte(s))
}

// StringSize is the wire size of s.
func StringSize(s string) int {
	if s == "" {
		return 4
	}
	units := 0
	for _, r := range s {
		if r >= 0x10000 {
			units += 2
		} else {
			units++
		}
	}
	return 4 + 2*(units+1)
}

// PayloadWriter flattens fields into a fixed destination in order.
type PayloadWriter struct {
	buf []byte
	off int
}

func NewPayloadWriter(dst []byte) *PayloadWriter {
	return &PayloadWriter{buf: dst}
}

func (w *PayloadWriter) reserve(n int) ([]byte, error) {
	if len(w.buf)-w.off < n {
		return nil, fmt.Errorf("ipc: payload buffer full: need %d bytes at offset %d of %d", n, w.off, len(w.buf))
	}
	b := w.buf[w.off : w.off+n]
	w.off += n
	return b, nil
}

func (w *PayloadWriter) PutUint8(v uint8) error {
	b, err := w.reserve(1)
	if err != nil {
		return err
	}
	b[0] = v
	return nil
}

func (w *PayloadWriter) PutUint32(v uint32) error {
	b, err := w.reserve(4)
	if err != nil {
		return err
	}
	binary.LittleEndian.PutUint32(b, v)
	return nil
}

func (w *PayloadWriter) PutUint64(v uint64) error {
	b, err := w.reserve(8)
	if err != nil {
		return err
	}
	binary.LittleEndian.PutUint64(b, v)
	return nil
}

func (w *PayloadWriter) PutString(s string) error {
	if s == "" {
		return w.PutUint32(0)
	}
	text, err := encodeUTF16(s)
	if err != nil {
		return err
	}
	units := len(text)/2 + 1
	if err := w.PutUint32(uint32(units)); err != nil {
		return err
	}
	b, err := w.reserve(2 * units)
	if err != nil {
		return err
	}
	copy(b, text)
	b[len(b)-2], b[len(b)-1] = 0, 0
	return nil
}

// Len is the number of bytes written so far.
func (w *PayloadWriter) Len() int {
	return w.off
}

// PayloadReader parses fields from a payload region in order. Every read
// past the end reports ErrPayloadMalformed.
type PayloadReader struct {
	buf []byte
	off int
}

func NewPayloadReader(src []byte) *PayloadReader {
	return &PayloadReader{buf: src}
}

func (r *PayloadReader) take(n int) ([]byte, error) {
	if n < 0 || len(r.buf)-r.off < n {
		return nil, fmt.Errorf("%w: need %d bytes at offset %d of %d", ErrPayloadMalformed, n, r.off, len(r.buf))
	}
	b := r.buf[r.off : r.off+n]
	r.off += n
	return b, nil
}

func (r *PayloadReader) ReadUint8() (uint8, error) {
	b, err := r.take(1)
	if err != nil {
		return 0, err
	}
	return b[0], nil
}

func (r *PayloadReader) ReadUint32() (uint32, error) {
	b, err := r.take(4)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint32(b), nil
}

func (r *PayloadReader) ReadUint64() (uint64, error) {
	b, err := r.take(8)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint64(b), nil
}

func (r *PayloadReader) ReadString() (string, error) {
	units, err := r.ReadUint32()
	if err != nil {
		return "", err
	}
	if units == 0 {
		return "", nil
	}
	if uint64(units)*2 > uint64(r.Remaining()) {
		return "", fmt.Errorf("%w: string of %d units exceeds payload", ErrPayloadMalformed, units)
	}
	b, err := r.take(int(units) * 2)
	if err != nil {
		return "", err
	}
	if b[len(b)-2] != 0 || b[len(b)-1] != 0 {
		return "", fmt.Errorf("%w: string missing terminator", ErrPayloadMalformed)
	}
	text, err := utf16le.NewDecoder().Bytes(b[:len(b)-2])
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrPayloadMalformed, err)
	}
	return string(text), nil
}

// Remaining is the number of unread payload bytes.
func (r *PayloadReader) Remaining() int {
	return len(r.buf) - r.off
}
