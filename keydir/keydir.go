package keydir

import (
	"github.com/cqkv/heapkv/model"
)

// Keydir maps serialized keys to the position of their live record.
// you can use some other data structure once you implement this interface
type Keydir interface {
	// Put return the item that was replaced, nil if the key was absent
	Put(key []byte, pos *model.RecordPos, value []byte) *Item
	Size() int
	Iterator() Iterator
	Close() error
}

// Iterator walks the keydir in key order
type Iterator interface {
	Rewind()
	Next()
	Valid() bool
	Key() []byte
	Value() []byte
	Close()
}

// Item is one entry of the keydir
type Item struct {
	Key   []byte
	Pos   *model.RecordPos
	Value []byte
}
