package model

const (
	// EndMarker terminates the metadata of every record on a page
	EndMarker byte = 0xFF

	DeletedFlagSize = 1
	PayloadLenSize  = 2
	EndMarkerSize   = 1

	// MetadataSize is the fixed per-record overhead: flag + payload length + end marker
	MetadataSize = DeletedFlagSize + PayloadLenSize + EndMarkerSize
)

// Record is the physical form of an entry.
// Key and Value are sub slices of Payload.
type Record struct {
	IsDelete bool
	Payload  []byte
	Key      []byte
	Value    []byte
}

// Size return the bytes the record takes on a page
func (r *Record) Size() int {
	return MetadataSize + len(r.Payload)
}

// ToDeleted return a tombstone with the same payload, so it can be written over the original bytes
func (r *Record) ToDeleted() Record {
	return Record{
		IsDelete: true,
		Payload:  r.Payload,
		Key:      r.Key,
		Value:    r.Value,
	}
}

// PageRecord is a record together with the offset of its payload inside the page
type PageRecord struct {
	Record
	Offset int
}

// ToDeleted keeps the offset so the tombstone overwrites the record in place
func (pr *PageRecord) ToDeleted() *PageRecord {
	return &PageRecord{
		Record: pr.Record.ToDeleted(),
		Offset: pr.Offset,
	}
}

// End return the offset right after the record's end marker
func (pr *PageRecord) End() int {
	return pr.Offset + pr.Size()
}

type RecordPos struct {
	Page   uint32 // page number
	Offset int    // payload offset inside the page
	Size   int    // record size including metadata
}
