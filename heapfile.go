// Package heapkv is an embedded key-value store kept in a single heap file.
//
// The file is a sequence of fixed size pages. Records are only ever appended to the last
// page, an update tombstones the live record of the key and appends a new one, a lookup
// scans pages from the newest to the oldest and returns the first live match.
package heapkv

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/cqkv/heapkv/codec"
	"github.com/cqkv/heapkv/fio"
	"github.com/cqkv/heapkv/lock"
	"github.com/cqkv/heapkv/model"
	"github.com/cqkv/heapkv/pagestore"
	"github.com/gofrs/flock"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
)

// HeapFile stores entries of type K -> V.
// Writes are serialized by mu, reads only take the read lock of the page they look at.
type HeapFile[K any, V any] struct {
	// write side for put/remove/batch, read side for full scans
	mu sync.RWMutex

	path     string
	pages    *pagestore.PageStore
	locks    *lock.Manager
	codec    codec.Codec
	keys     codec.Serializer[K]
	values   codec.Serializer[V]
	cache    *frontCache // nil when disabled
	metrics  *metrics
	fileLock *flock.Flock

	closed atomic.Bool
	logger *zap.Logger
}

// Open opens or creates the heap file at path. Nil serializers default to msgpack.
func Open[K any, V any](path string, keys codec.Serializer[K], values codec.Serializer[V], opts ...Option) (*HeapFile[K, V], error) {
	o := defaultOptions()
	for _, opt := range opts {
		opt(o)
	}
	if keys == nil {
		keys = codec.NewMsgpack[K]()
	}
	if values == nil {
		values = codec.NewMsgpack[V]()
	}

	fileLock := fio.NewFlock(path)
	hold, err := fileLock.TryLock()
	if err != nil {
		return nil, fmt.Errorf("%w: lock %s: %w", ErrIO, path, err)
	}
	if !hold {
		return nil, ErrFileInUse
	}

	ioManager, err := fio.NewFileIO(path)
	if err != nil {
		_ = fileLock.Unlock()
		return nil, fmt.Errorf("%w: open %s: %w", ErrIO, path, err)
	}

	pages, err := pagestore.New(ioManager,
		pagestore.WithPageSize(o.pageSize),
		pagestore.WithMaxNrPages(o.maxNrPages),
		pagestore.WithCache(o.pageCacheSize),
		pagestore.WithSyncWrites(o.syncWrites),
		pagestore.WithCodec(o.codec),
		pagestore.WithLogger(o.logger),
	)
	if err != nil {
		_ = ioManager.Close()
		_ = fileLock.Unlock()
		return nil, err
	}

	hf := &HeapFile[K, V]{
		path:     path,
		pages:    pages,
		locks:    lock.NewManager(lock.WithPoolSize(o.poolSize), lock.WithLogger(o.logger)),
		codec:    o.codec,
		keys:     keys,
		values:   values,
		fileLock: fileLock,
		logger:   o.logger,
	}
	if o.cacheSize > 0 {
		if hf.cache, err = newFrontCache(o.cacheSize); err != nil {
			_ = pages.Close()
			_ = fileLock.Unlock()
			return nil, err
		}
	}
	hf.metrics = newMetrics(
		func() float64 { return float64(hf.pages.PageCount()) },
		func() float64 { return float64(hf.locks.PoolSize()) },
		func() float64 { return float64(hf.locks.InUse()) },
	)

	hf.logger.Info("heap file opened",
		zap.String("path", path),
		zap.Uint32("pages", pages.PageCount()),
		zap.Int("pageSize", pages.PageSize()))
	return hf, nil
}

// Put stores the entry, replacing the previous value of key
func (hf *HeapFile[K, V]) Put(key K, value V) error {
	if hf.closed.Load() {
		return ErrClosed
	}

	record, err := hf.marshalRecord(key, value)
	if err != nil {
		return err
	}

	hf.mu.Lock()
	defer hf.mu.Unlock()
	if hf.closed.Load() {
		return ErrClosed
	}

	if err = hf.put(record); err != nil {
		return err
	}
	if hf.cache != nil {
		hf.cache.put(record.Key, record.Value)
	}
	hf.metrics.observe(opPut)
	return nil
}

// Get return the value of key, ErrKeyNotFound if there is none
func (hf *HeapFile[K, V]) Get(key K) (V, error) {
	var zero V
	if hf.closed.Load() {
		return zero, ErrClosed
	}

	keyBytes, err := hf.marshalKey(key)
	if err != nil {
		return zero, err
	}

	var stamp uint64
	if hf.cache != nil {
		if value, ok := hf.cache.get(keyBytes); ok {
			hf.metrics.cacheHits.Inc()
			hf.metrics.observe(opGet)
			return hf.unmarshalValue(value)
		}
		stamp = hf.cache.stamp()
	}

	_, record, err := hf.search(keyBytes)
	if err != nil {
		return zero, hf.closedOr(err)
	}
	if record == nil {
		return zero, ErrKeyNotFound
	}

	if hf.cache != nil {
		hf.cache.fill(keyBytes, record.Value, stamp)
	}
	hf.metrics.observe(opGet)
	return hf.unmarshalValue(record.Value)
}

// Remove deletes key and return the value it had, ErrKeyNotFound if there was none
func (hf *HeapFile[K, V]) Remove(key K) (V, error) {
	var zero V
	if hf.closed.Load() {
		return zero, ErrClosed
	}

	keyBytes, err := hf.marshalKey(key)
	if err != nil {
		return zero, err
	}

	hf.mu.Lock()
	defer hf.mu.Unlock()
	if hf.closed.Load() {
		return zero, ErrClosed
	}

	value, err := hf.remove(keyBytes)
	if err != nil {
		return zero, err
	}
	if hf.cache != nil {
		hf.cache.put(keyBytes, nil)
	}
	hf.metrics.observe(opRemove)
	return hf.unmarshalValue(value)
}

// Sync flushes the heap file to disk
func (hf *HeapFile[K, V]) Sync() error {
	if hf.closed.Load() {
		return ErrClosed
	}
	return hf.pages.Sync()
}

// Collector exposes the heap file metrics, register it to a prometheus registry
func (hf *HeapFile[K, V]) Collector() prometheus.Collector {
	return hf.metrics
}

// Close waits for running writes, then releases the file. Calling it again is a no-op.
func (hf *HeapFile[K, V]) Close() error {
	if hf.closed.Swap(true) {
		return nil
	}

	hf.mu.Lock()
	defer hf.mu.Unlock()

	hf.locks.Close()
	if hf.cache != nil {
		hf.cache.purge()
	}

	err := hf.pages.Close()
	if unlockErr := hf.fileLock.Unlock(); unlockErr != nil {
		err = errors.Join(err, fmt.Errorf("%w: unlock %s: %w", ErrIO, hf.path, unlockErr))
	}

	hf.logger.Info("heap file closed", zap.String("path", hf.path), zap.Error(err))
	return err
}

// put must be called with mu held.
// The target page is picked first, so a full store fails before the old record is touched.
func (hf *HeapFile[K, V]) put(record *model.Record) error {
	target, err := hf.pages.PageForAppending(record.Size())
	if err != nil {
		return err
	}

	located, old, err := hf.search(record.Key)
	if err != nil {
		return err
	}
	if old != nil {
		if err = hf.withPageLock(located.Number, true, func() error {
			if err := hf.pages.Delete(located, old); err != nil {
				return err
			}
			return hf.pages.Save(located)
		}); err != nil {
			return err
		}
		// keep the tombstone when appending to the same page
		if located.Number == target.Number {
			target = located
		}
	}

	return hf.withPageLock(target.Number, true, func() error {
		if _, err := hf.pages.Append(target, record); err != nil {
			return err
		}
		return hf.pages.Save(target)
	})
}

// remove must be called with mu held
func (hf *HeapFile[K, V]) remove(key []byte) ([]byte, error) {
	page, record, err := hf.search(key)
	if err != nil {
		return nil, err
	}
	if record == nil {
		return nil, ErrKeyNotFound
	}

	err = hf.withPageLock(page.Number, true, func() error {
		if err := hf.pages.Delete(page, record); err != nil {
			return err
		}
		return hf.pages.Save(page)
	})
	if err != nil {
		return nil, err
	}
	return record.Value, nil
}

// search return the newest live record of key and the page holding it
func (hf *HeapFile[K, V]) search(key []byte) (*model.Page, *model.PageRecord, error) {
	it := hf.pages.Iterator()
	for it.Next() {
		var (
			page   *model.Page
			record *model.PageRecord
		)
		err := hf.withPageLock(it.Number(), false, func() error {
			var err error
			if page, err = it.Page(); err != nil {
				return err
			}
			record, err = hf.pages.Search(page, key)
			return err
		})
		if err != nil {
			return nil, nil, err
		}
		if record != nil {
			return page, record, nil
		}
	}
	return nil, nil, nil
}

func (hf *HeapFile[K, V]) withPageLock(page uint32, write bool, fn func() error) error {
	h, err := hf.locks.LockForPage(context.Background(), page)
	if err != nil {
		return err
	}
	defer h.Release()

	if write {
		h.Lock()
		defer h.Unlock()
	} else {
		h.RLock()
		defer h.RUnlock()
	}
	return fn()
}

func (hf *HeapFile[K, V]) marshalKey(key K) ([]byte, error) {
	data, err := hf.keys.Marshal(key)
	if err != nil {
		return nil, fmt.Errorf("%w: key: %w", ErrEncode, err)
	}
	return data, nil
}

func (hf *HeapFile[K, V]) marshalRecord(key K, value V) (*model.Record, error) {
	keyBytes, err := hf.marshalKey(key)
	if err != nil {
		return nil, err
	}
	valueBytes, err := hf.values.Marshal(value)
	if err != nil {
		return nil, fmt.Errorf("%w: value: %w", ErrEncode, err)
	}
	record, err := hf.codec.MarshalRecord(keyBytes, valueBytes)
	if err != nil {
		return nil, err
	}
	if record.Size() > hf.pages.PageSize() {
		return nil, fmt.Errorf("%w: record of %d bytes, page size %d",
			ErrRecordTooLarge, record.Size(), hf.pages.PageSize())
	}
	return record, nil
}

func (hf *HeapFile[K, V]) unmarshalKey(data []byte) (K, error) {
	key, err := hf.keys.Unmarshal(data)
	if err != nil {
		return key, fmt.Errorf("%w: key: %w", ErrDecode, err)
	}
	return key, nil
}

func (hf *HeapFile[K, V]) unmarshalValue(data []byte) (V, error) {
	value, err := hf.values.Unmarshal(data)
	if err != nil {
		return value, fmt.Errorf("%w: value: %w", ErrDecode, err)
	}
	return value, nil
}

// closedOr maps failures caused by a concurrent Close to ErrClosed
func (hf *HeapFile[K, V]) closedOr(err error) error {
	if hf.closed.Load() {
		return ErrClosed
	}
	return err
}
