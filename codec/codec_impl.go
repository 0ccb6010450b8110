package codec

import (
	"encoding/binary"
	"fmt"
	"math"

	"github.com/cqkv/heapkv/model"
)

const (
	deletedFalse byte = 0
	deletedTrue  byte = 1

	endMarkerNotFound = -1
)

var _ Codec = (*CodecImpl)(nil)

type CodecImpl struct{}

func NewCodecImpl() *CodecImpl {
	return &CodecImpl{}
}

/*
default codec:
	- payload: keySize(uvarint) + key + value
	- metadata: isDelete(1) + payloadSize(2, big endian) + end marker(1)
	payload | isDelete | payloadSize | 0xFF

records are written forward from the start of the page and read backward from the end,
every end marker is the byte right before the next record's payload.
*/

// MarshalRecord return the record, the payload size must fit in two bytes
func (cl *CodecImpl) MarshalRecord(key, value []byte) (*model.Record, error) {
	prefix := make([]byte, binary.MaxVarintLen64)
	n := binary.PutUvarint(prefix, uint64(len(key)))

	size := n + len(key) + len(value)
	if size > math.MaxUint16 {
		return nil, fmt.Errorf("%w: payload of %d bytes, max %d", ErrRecordTooLarge, size, math.MaxUint16)
	}

	payload := make([]byte, 0, size)
	payload = append(payload, prefix[:n]...)
	payload = append(payload, key...)
	payload = append(payload, value...)

	return &model.Record{
		Payload: payload,
		Key:     payload[n : n+len(key)],
		Value:   payload[n+len(key):],
	}, nil
}

func (cl *CodecImpl) UnmarshalRecord(page []byte, pos int) (*model.PageRecord, error) {
	marker := findEndMarker(page, pos)
	if marker == endMarkerNotFound {
		return nil, nil
	}
	if marker < model.DeletedFlagSize+model.PayloadLenSize {
		return nil, fmt.Errorf("%w: end marker at %d has no room for metadata", ErrCorruptPage, marker)
	}

	idx := marker - model.PayloadLenSize
	size := int(binary.BigEndian.Uint16(page[idx:marker]))
	// incomplete trailing write
	if size == 0 {
		return nil, nil
	}

	idx -= model.DeletedFlagSize
	var isDelete bool
	switch page[idx] {
	case deletedFalse:
	case deletedTrue:
		isDelete = true
	default:
		return nil, fmt.Errorf("%w: invalid deleted flag %d at %d", ErrCorruptPage, page[idx], idx)
	}

	offset := idx - size
	if offset < 0 {
		return nil, fmt.Errorf("%w: payload of %d bytes before offset %d", ErrCorruptPage, size, idx)
	}

	payload := make([]byte, size)
	copy(payload, page[offset:idx])

	keySize, n := binary.Uvarint(payload)
	if n <= 0 || uint64(n)+keySize > uint64(size) {
		return nil, fmt.Errorf("%w: invalid key size in record at %d", ErrCorruptPage, offset)
	}
	keyEnd := n + int(keySize)

	return &model.PageRecord{
		Record: model.Record{
			IsDelete: isDelete,
			Payload:  payload,
			Key:      payload[n:keyEnd],
			Value:    payload[keyEnd:],
		},
		Offset: offset,
	}, nil
}

func (cl *CodecImpl) WriteRecord(page []byte, record *model.PageRecord) error {
	if record.Offset < 0 || record.End() > len(page) {
		return fmt.Errorf("%w: record of %d bytes at %d, page size %d",
			ErrRecordTooLarge, record.Size(), record.Offset, len(page))
	}

	idx := record.Offset
	idx += copy(page[idx:], record.Payload)

	if record.IsDelete {
		page[idx] = deletedTrue
	} else {
		page[idx] = deletedFalse
	}
	idx += model.DeletedFlagSize

	binary.BigEndian.PutUint16(page[idx:], uint16(len(record.Payload)))
	idx += model.PayloadLenSize

	page[idx] = model.EndMarker
	return nil
}

func (cl *CodecImpl) RemainingSpace(page []byte, pageSize int) int {
	marker := findEndMarker(page, pageSize)
	if marker == endMarkerNotFound {
		return pageSize
	}
	return pageSize - (marker + model.EndMarkerSize)
}

// findEndMarker scans backward from pos, pos itself is excluded
func findEndMarker(page []byte, pos int) int {
	if pos > len(page) {
		pos = len(page)
	}
	for pos > 0 {
		pos -= model.EndMarkerSize
		if page[pos] == model.EndMarker {
			return pos
		}
	}
	return endMarkerNotFound
}
