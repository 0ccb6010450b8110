package keydir

import (
	"bytes"
	"sync"

	"github.com/cqkv/heapkv/model"
	"github.com/google/btree"
)

var _ Keydir = (*BTree)(nil)

const defaultDegree = 32

// BTree implement the keydir
type BTree struct {
	tree *btree.BTreeG[*Item]
	lock *sync.RWMutex
}

func less(a, b *Item) bool {
	return bytes.Compare(a.Key, b.Key) == -1
}

func NewBTree(degree int) *BTree {
	if degree <= 0 {
		degree = defaultDegree
	}
	return &BTree{
		tree: btree.NewG(degree, less),
		lock: &sync.RWMutex{},
	}
}

func (bt *BTree) Put(key []byte, pos *model.RecordPos, value []byte) *Item {
	item := &Item{
		Key:   key,
		Pos:   pos,
		Value: value,
	}
	bt.lock.Lock()
	defer bt.lock.Unlock()
	old, ok := bt.tree.ReplaceOrInsert(item)
	if !ok {
		return nil
	}
	return old
}

func (bt *BTree) Size() int {
	bt.lock.RLock()
	defer bt.lock.RUnlock()
	return bt.tree.Len()
}

func (bt *BTree) Close() error {
	bt.lock.Lock()
	bt.tree.Clear(false)
	bt.lock.Unlock()
	return nil
}

func (bt *BTree) Iterator() Iterator {
	return bt.newBtreeIterator()
}

// btreeIterator iterates a snapshot of the items taken when it was created
type btreeIterator struct {
	values []*Item
	curIdx int
}

func (bt *BTree) newBtreeIterator() *btreeIterator {
	bt.lock.RLock()
	defer bt.lock.RUnlock()

	iterator := &btreeIterator{
		values: make([]*Item, 0, bt.tree.Len()),
		curIdx: 0,
	}
	bt.tree.Ascend(func(item *Item) bool {
		iterator.values = append(iterator.values, item)
		return true
	})

	return iterator
}

func (bti *btreeIterator) Rewind() {
	bti.curIdx = 0
}

func (bti *btreeIterator) Next() {
	bti.curIdx++
}

func (bti *btreeIterator) Valid() bool {
	return bti.curIdx < len(bti.values)
}

func (bti *btreeIterator) Key() []byte {
	return bti.values[bti.curIdx].Key
}

func (bti *btreeIterator) Value() []byte {
	return bti.values[bti.curIdx].Value
}

func (bti *btreeIterator) Close() {
	bti.values = nil
}
