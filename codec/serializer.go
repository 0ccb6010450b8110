package codec

import (
	msgpack "github.com/hashicorp/go-msgpack/v2/codec"
)

// Serializer turns keys or values into bytes and back.
// Keys are compared by their serialized form, so a key serializer must be deterministic.
type Serializer[T any] interface {
	Marshal(T) ([]byte, error)
	Unmarshal([]byte) (T, error)
}

var (
	_ Serializer[int]    = (*Msgpack[int])(nil)
	_ Serializer[string] = String{}
	_ Serializer[[]byte] = Bytes{}
)

// Msgpack is the default serializer, it works for any type msgpack can encode
type Msgpack[T any] struct {
	handle *msgpack.MsgpackHandle
}

func NewMsgpack[T any]() *Msgpack[T] {
	handle := &msgpack.MsgpackHandle{}
	handle.WriteExt = true
	handle.Canonical = true
	return &Msgpack[T]{handle: handle}
}

func (m *Msgpack[T]) Marshal(v T) ([]byte, error) {
	var data []byte
	if err := msgpack.NewEncoderBytes(&data, m.handle).Encode(v); err != nil {
		return nil, err
	}
	return data, nil
}

func (m *Msgpack[T]) Unmarshal(data []byte) (T, error) {
	var v T
	err := msgpack.NewDecoderBytes(data, m.handle).Decode(&v)
	return v, err
}

// String stores strings as raw bytes
type String struct{}

func (String) Marshal(s string) ([]byte, error) {
	return []byte(s), nil
}

func (String) Unmarshal(data []byte) (string, error) {
	return string(data), nil
}

// Bytes stores byte slices as they are, a copy is returned on both sides
type Bytes struct{}

func (Bytes) Marshal(b []byte) ([]byte, error) {
	return append([]byte(nil), b...), nil
}

func (Bytes) Unmarshal(data []byte) ([]byte, error) {
	return append([]byte(nil), data...), nil
}
