package pagestore

import "github.com/cqkv/heapkv/model"

// Iterator walks pages from the last committed one down to page 0.
// Pages committed after the iterator was created are not visited.
type Iterator struct {
	ps        *PageStore
	remaining uint32
	current   uint32
}

// Next moves to the previous page, it return false once page 0 was visited
func (it *Iterator) Next() bool {
	if it.remaining == 0 {
		return false
	}
	it.remaining--
	it.current = it.remaining
	return true
}

// Number return the current page number
func (it *Iterator) Number() uint32 {
	return it.current
}

// Page reads the current page
func (it *Iterator) Page() (*model.Page, error) {
	return it.ps.ReadPage(it.current)
}
