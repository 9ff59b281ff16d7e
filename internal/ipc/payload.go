package ipc

import (
	"encoding/binary"
	"errors"
	"fmt"
	"reflect"
)

// Codec serializes one payload type. Fixed and Custom are the two
// implementations; the choice is made once per type when the codec is built.
type Codec[T any] interface {
	// Size reports the flattened size of v in bytes.
	Size(v T) int
	// Flatten writes v into dst, which is exactly Size(v) bytes long.
	Flatten(dst []byte, v T) error
	// Parse reads a value from the payload region of a message.
	Parse(src []byte) (T, error)
}

// SelfDescribing is implemented by variable-size payloads that own their
// wire layout. Flatten reports how many bytes of dst it wrote; anything
// short of PayloadSize() is rejected.
type SelfDescribing interface {
	PayloadSize() int
	Flatten(dst []byte) (int, error)
}

// Parser is the pointer-receiver half of a SelfDescribing payload.
type Parser[T any] interface {
	*T
	TryParse(src []byte) error
}

type fixedCodec[T any] struct {
	size int
}

// Fixed returns the codec for a plain fixed-layout type: numbers, bools,
// arrays and structs built only from those. The layout is the field order
// with no padding, little-endian. It panics when T has no fixed size or has
// unexported fields, which could be written but never read back.
func Fixed[T any]() Codec[T] {
	var zero T
	size := binary.Size(zero)
	if size < 0 {
		panic(fmt.Errorf("%w: %T", ErrNotFixedSize, zero))
	}
	if field, ok := unexportedField(reflect.TypeFor[T]()); ok {
		panic(fmt.Errorf("%w: %T has unexported field %s", ErrNotFixedSize, zero, field))
	}
	return fixedCodec[T]{size: size}
}

// unexportedField finds the first non-blank unexported field reachable
// through nested structs and arrays.
func unexportedField(t reflect.Type) (string, bool) {
	switch t.Kind() {
	case reflect.Array:
		return unexportedField(t.Elem())
	case reflect.Struct:
		for i := 0; i < t.NumField(); i++ {
			f := t.Field(i)
			if f.Name == "_" {
				continue
			}
			if !f.IsExported() {
				return f.Name, true
			}
			if name, ok := unexportedField(f.Type); ok {
				return f.Name + "." + name, true
			}
		}
	}
	return "", false
}

func (c fixedCodec[T]) Size(T) int {
	return c.size
}

func (c fixedCodec[T]) Flatten(dst []byte, v T) error {
	if _, err := binary.Encode(dst, binary.LittleEndian, v); err != nil {
		return fmt.Errorf("ipc: flatten fixed payload: %w", err)
	}
	return nil
}

func (c fixedCodec[T]) Parse(src []byte) (T, error) {
	var v T
	if len(src) < c.size {
		return v, fmt.Errorf("%w: need %d bytes, have %d", ErrPayloadTooSmall, c.size, len(src))
	}
	if _, err := binary.Decode(src[:c.size], binary.LittleEndian, &v); err != nil {
		return v, fmt.Errorf("%w: %w", ErrPayloadMalformed, err)
	}
	return v, nil
}

type customCodec[T SelfDescribing, PT Parser[T]] struct{}

// Custom returns the codec for a SelfDescribing payload type. PT is inferred,
// so callers write Custom[MyPayload]().
func Custom[T SelfDescribing, PT Parser[T]]() Codec[T] {
	return customCodec[T, PT]{}
}

func (customCodec[T, PT]) Size(v T) int {
	return v.PayloadSize()
}

func (customCodec[T, PT]) Flatten(dst []byte, v T) error {
	n, err := v.Flatten(dst)
	if err != nil {
		return err
	}
	if n != len(dst) {
		return fmt.Errorf("%w: wrote %d of %d bytes", ErrShortFlatten, n, len(dst))
	}
	return nil
}

func (customCodec[T, PT]) Parse(src []byte) (T, error) {
	var v T
	if err := PT(&v).TryParse(src); err != nil {
		var zero T
		if errors.Is(err, ErrPayloadMalformed) {
			return zero, err
		}
		return zero, fmt.Errorf("%w: %w", ErrPayloadMalformed, err)
	}
	return v, nil
}

// Empty is the payload of messages that carry nothing after the header.
type Empty struct{}

func (Empty) PayloadSize() int            { return 0 }
func (Empty) Flatten([]byte) (int, error) { return 0, nil }
func (*Empty) TryParse([]byte) error      { return nil }
