package heapkv

import (
	"errors"
	"fmt"
	"sync"

	"github.com/cqkv/heapkv/model"
)

// WriteBatch buffers puts and removes and applies them under one acquisition of the store lock.
// Other writers can not interleave with a commit, but there is no log: a commit interrupted by
// an error or a crash leaves the entries written so far in place.
type WriteBatch[K any, V any] struct {
	mu *sync.Mutex

	hf            *HeapFile[K, V]
	options       *writeBatchOptions
	pendingWrites map[string]*model.Record
}

func (hf *HeapFile[K, V]) NewWriteBatch(options ...WriteBatchOption) *WriteBatch[K, V] {
	opts := &writeBatchOptions{maxBatchNum: defaultMaxBatchNum}
	for _, opt := range options {
		opt(opts)
	}

	return &WriteBatch[K, V]{
		mu:            new(sync.Mutex),
		options:       opts,
		hf:            hf,
		pendingWrites: make(map[string]*model.Record),
	}
}

func (wb *WriteBatch[K, V]) Put(key K, value V) error {
	// records that do not fit on a page are rejected here, before commit
	record, err := wb.hf.marshalRecord(key, value)
	if err != nil {
		return err
	}

	wb.mu.Lock()
	defer wb.mu.Unlock()
	return wb.add(record)
}

func (wb *WriteBatch[K, V]) Remove(key K) error {
	keyBytes, err := wb.hf.marshalKey(key)
	if err != nil {
		return err
	}

	wb.mu.Lock()
	defer wb.mu.Unlock()
	return wb.add(&model.Record{Key: keyBytes, IsDelete: true})
}

func (wb *WriteBatch[K, V]) add(record *model.Record) error {
	k := string(record.Key)
	if _, ok := wb.pendingWrites[k]; !ok && len(wb.pendingWrites) >= wb.options.maxBatchNum {
		return ErrExceedMaxBatchNum
	}
	wb.pendingWrites[k] = record
	return nil
}

// Commit applies the buffered writes, removing an absent key is not an error
func (wb *WriteBatch[K, V]) Commit() error {
	wb.mu.Lock()
	defer wb.mu.Unlock()

	if len(wb.pendingWrites) == 0 {
		return nil
	}

	hf := wb.hf
	if hf.closed.Load() {
		return ErrClosed
	}
	hf.mu.Lock()
	defer hf.mu.Unlock()
	if hf.closed.Load() {
		return ErrClosed
	}

	// nothing is applied unless every record fits on a page
	for _, record := range wb.pendingWrites {
		if !record.IsDelete && record.Size() > hf.pages.PageSize() {
			return fmt.Errorf("%w: record of %d bytes, page size %d",
				ErrRecordTooLarge, record.Size(), hf.pages.PageSize())
		}
	}

	for k, record := range wb.pendingWrites {
		if record.IsDelete {
			if _, err := hf.remove(record.Key); err != nil && !errors.Is(err, ErrKeyNotFound) {
				return err
			}
			if hf.cache != nil {
				hf.cache.put(record.Key, nil)
			}
		} else {
			if err := hf.put(record); err != nil {
				return err
			}
			if hf.cache != nil {
				hf.cache.put(record.Key, record.Value)
			}
		}
		delete(wb.pendingWrites, k)
	}

	hf.metrics.observe(opBatch)
	return nil
}

// Len return the number of buffered writes
func (wb *WriteBatch[K, V]) Len() int {
	wb.mu.Lock()
	defer wb.mu.Unlock()
	return len(wb.pendingWrites)
}
