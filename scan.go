package heapkv

import (
	"fmt"

	"github.com/cqkv/heapkv/keydir"
	"github.com/cqkv/heapkv/model"
	"go.uber.org/zap"
)

// Keys return every live key ordered by its serialized form
func (hf *HeapFile[K, V]) Keys() ([]K, error) {
	dir, err := hf.readKeydir(false)
	if err != nil {
		return nil, err
	}
	defer dir.Close()

	keys := make([]K, 0, dir.Size())
	it := dir.Iterator()
	defer it.Close()
	for it.Rewind(); it.Valid(); it.Next() {
		key, err := hf.unmarshalKey(it.Key())
		if err != nil {
			return nil, err
		}
		keys = append(keys, key)
	}
	return keys, nil
}

// Fold calls fn for every live entry ordered by serialized key, it stops at the first error
func (hf *HeapFile[K, V]) Fold(fn func(key K, value V) error) error {
	dir, err := hf.readKeydir(false)
	if err != nil {
		return err
	}
	defer dir.Close()

	it := dir.Iterator()
	defer it.Close()
	for it.Rewind(); it.Valid(); it.Next() {
		key, err := hf.unmarshalKey(it.Key())
		if err != nil {
			return err
		}
		value, err := hf.unmarshalValue(it.Value())
		if err != nil {
			return err
		}
		if err = fn(key, value); err != nil {
			return err
		}
	}
	return nil
}

// Len return the number of live keys
func (hf *HeapFile[K, V]) Len() (int, error) {
	dir, err := hf.readKeydir(false)
	if err != nil {
		return 0, err
	}
	defer dir.Close()
	return dir.Size(), nil
}

// Check reads the whole file and verifies that no key has more than one live record
func (hf *HeapFile[K, V]) Check() error {
	dir, err := hf.readKeydir(true)
	if err != nil {
		return err
	}
	return dir.Close()
}

// readKeydir scans every page and indexes live records, the newest record of a key wins.
// In strict mode a second live record of a key is an error.
func (hf *HeapFile[K, V]) readKeydir(strict bool) (keydir.Keydir, error) {
	if hf.closed.Load() {
		return nil, ErrClosed
	}

	hf.mu.RLock()
	defer hf.mu.RUnlock()
	if hf.closed.Load() {
		return nil, ErrClosed
	}

	dir := keydir.NewBTree(0)
	it := hf.pages.Iterator()
	for it.Next() {
		var duplicate error
		err := hf.withPageLock(it.Number(), false, func() error {
			page, err := it.Page()
			if err != nil {
				return err
			}
			return hf.pages.Records(page, func(record *model.PageRecord) bool {
				if record.IsDelete {
					return true
				}
				pos := &model.RecordPos{Page: page.Number, Offset: record.Offset, Size: record.Size()}
				newer := dir.Put(record.Key, pos, record.Value)
				if newer == nil {
					return true
				}
				// pages are read newest first, the record already indexed stays
				dir.Put(newer.Key, newer.Pos, newer.Value)
				duplicate = fmt.Errorf("%w: page %d offset %d and page %d offset %d",
					ErrDuplicateLive, newer.Pos.Page, newer.Pos.Offset, pos.Page, pos.Offset)
				return !strict
			})
		})
		if err != nil {
			return nil, err
		}
		if duplicate != nil {
			if strict {
				return nil, duplicate
			}
			hf.logger.Warn("duplicate live record ignored", zap.Error(duplicate))
		}
	}
	return dir, nil
}
