package codec

import "errors"

var (
	ErrRecordTooLarge = errors.New("heapkv err: record is too large")
	ErrCorruptPage    = errors.New("heapkv err: page may be corrupted")
)
