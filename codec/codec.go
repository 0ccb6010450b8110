package codec

import "github.com/cqkv/heapkv/model"

// Codec translates records to and from the bytes of a page.
// you can implement your own codec once the page stays scannable backward.
type Codec interface {
	// MarshalRecord builds a live record from the serialized key and value
	MarshalRecord(key, value []byte) (*model.Record, error)

	// UnmarshalRecord decodes the nearest record that ends before pos.
	// It returns nil when there are no more records toward the start of the page.
	UnmarshalRecord(page []byte, pos int) (*model.PageRecord, error)

	// WriteRecord writes the record at its offset
	WriteRecord(page []byte, record *model.PageRecord) error

	// RemainingSpace return the free bytes after the last record of the page
	RemainingSpace(page []byte, pageSize int) int
}
