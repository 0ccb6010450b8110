// Package pagestore maps fixed size pages to offsets of the heap file.
//
// Records are appended to the last page only, a new page is allocated when the last one
// has no room left. Pages are read back newest first.
package pagestore

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"sync/atomic"

	"github.com/cqkv/heapkv/codec"
	"github.com/cqkv/heapkv/fio"
	"github.com/cqkv/heapkv/model"
	"go.uber.org/zap"
)

var (
	ErrStoreFull       = errors.New("heapkv err: max number of pages reached")
	ErrPageFull        = errors.New("heapkv err: not enough space on page")
	ErrPageOutOfRange  = errors.New("heapkv err: page number out of range")
	ErrInvalidPageSize = errors.New("heapkv err: invalid page size")
	ErrIO              = errors.New("heapkv err: io failure")
)

type PageStore struct {
	io    fio.IOManager
	codec codec.Codec
	cache *pageCache // nil when disabled

	pageSize   int
	maxNrPages uint32
	pageCount  atomic.Uint32
	syncWrites bool

	logger *zap.Logger
}

// New creates a page store over io, the file size must be a multiple of the page size
func New(ioManager fio.IOManager, opts ...Option) (*PageStore, error) {
	o := defaultOptions()
	for _, opt := range opts {
		opt(o)
	}

	if o.pageSize <= model.MetadataSize {
		return nil, fmt.Errorf("%w: %d", ErrInvalidPageSize, o.pageSize)
	}

	size, err := ioManager.Size()
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrIO, err)
	}
	if size%int64(o.pageSize) != 0 {
		return nil, fmt.Errorf("%w: file size %d is not a multiple of page size %d",
			codec.ErrCorruptPage, size, o.pageSize)
	}

	ps := &PageStore{
		io:         ioManager,
		codec:      o.codec,
		pageSize:   o.pageSize,
		maxNrPages: o.maxNrPages,
		syncWrites: o.syncWrites,
		logger:     o.logger,
	}
	ps.pageCount.Store(uint32(size / int64(o.pageSize)))

	if o.cacheSize > 0 {
		if ps.cache, err = newPageCache(o.cacheSize, o.pageSize); err != nil {
			return nil, err
		}
	}

	return ps, nil
}

func (ps *PageStore) PageSize() int {
	return ps.pageSize
}

func (ps *PageStore) MaxNrPages() uint32 {
	return ps.maxNrPages
}

// PageCount return the number of committed pages
func (ps *PageStore) PageCount() uint32 {
	return ps.pageCount.Load()
}

// PageForAppending return the page the record should be appended to:
// the last page when it has room, otherwise a new empty page.
func (ps *PageStore) PageForAppending(recordSize int) (*model.Page, error) {
	if recordSize > ps.pageSize {
		return nil, fmt.Errorf("%w: record of %d bytes, page size %d",
			codec.ErrRecordTooLarge, recordSize, ps.pageSize)
	}

	count := ps.pageCount.Load()
	if count == 0 {
		if ps.maxNrPages == 0 {
			return nil, ErrStoreFull
		}
		return model.NewPage(0, ps.pageSize), nil
	}

	last, err := ps.ReadPage(count - 1)
	if err != nil {
		return nil, err
	}
	if ps.codec.RemainingSpace(last.Data, ps.pageSize) >= recordSize {
		return last, nil
	}

	if count >= ps.maxNrPages {
		return nil, fmt.Errorf("%w: %d pages", ErrStoreFull, count)
	}
	ps.logger.Debug("allocating page", zap.Uint32("page", count))
	return model.NewPage(count, ps.pageSize), nil
}

// ReadPage return a private copy of the page, callers may mutate it
func (ps *PageStore) ReadPage(number uint32) (*model.Page, error) {
	if number >= ps.pageCount.Load() {
		return nil, fmt.Errorf("%w: page %d", ErrPageOutOfRange, number)
	}

	var version uint64
	if ps.cache != nil {
		if data, ok := ps.cache.get(number); ok {
			page := &model.Page{Number: number, Data: data}
			return page.Clone(), nil
		}
		version = ps.cache.version(number)
	}

	page := model.NewPage(number, ps.pageSize)
	n, err := ps.io.ReadAt(page.Data, page.FileOffset())
	if err != nil {
		// short read at the end of the file, the rest stays zeroed
		if !errors.Is(err, io.EOF) || n == 0 {
			return nil, fmt.Errorf("%w: read page %d: %w", ErrIO, number, err)
		}
	}

	if ps.cache != nil {
		ps.cache.put(number, version, page.Clone().Data)
	}
	return page, nil
}

// Save writes the whole page at its offset. A page may only be new if it directly follows the last one.
func (ps *PageStore) Save(page *model.Page) error {
	if len(page.Data) != ps.pageSize {
		return fmt.Errorf("%w: page %d has %d bytes, page size %d",
			ErrInvalidPageSize, page.Number, len(page.Data), ps.pageSize)
	}

	count := ps.pageCount.Load()
	if page.Number > count {
		return fmt.Errorf("%w: cannot save page %d, there are %d pages", ErrPageOutOfRange, page.Number, count)
	}
	isNew := page.Number == count
	if isNew && count >= ps.maxNrPages {
		return fmt.Errorf("%w: %d pages", ErrStoreFull, count)
	}

	if _, err := ps.io.WriteAt(page.Data, page.FileOffset()); err != nil {
		return fmt.Errorf("%w: write page %d: %w", ErrIO, page.Number, err)
	}
	if ps.syncWrites {
		if err := ps.io.Sync(); err != nil {
			return fmt.Errorf("%w: sync: %w", ErrIO, err)
		}
	}

	if ps.cache != nil {
		ps.cache.invalidate(page.Number)
	}
	if isNew {
		ps.pageCount.CompareAndSwap(count, count+1)
	}
	return nil
}

// Append writes the record right after the last record of the page
func (ps *PageStore) Append(page *model.Page, record *model.Record) (*model.PageRecord, error) {
	remaining := ps.codec.RemainingSpace(page.Data, ps.pageSize)
	if record.Size() > remaining {
		return nil, fmt.Errorf("%w: record of %d bytes, %d bytes left on page %d",
			ErrPageFull, record.Size(), remaining, page.Number)
	}

	pageRecord := &model.PageRecord{
		Record: *record,
		Offset: ps.pageSize - remaining,
	}
	if err := ps.codec.WriteRecord(page.Data, pageRecord); err != nil {
		return nil, err
	}
	return pageRecord, nil
}

// Search return the newest live record of the page with the given serialized key
func (ps *PageStore) Search(page *model.Page, key []byte) (*model.PageRecord, error) {
	var found *model.PageRecord
	err := ps.Records(page, func(record *model.PageRecord) bool {
		if !record.IsDelete && bytes.Equal(record.Key, key) {
			found = record
			return false
		}
		return true
	})
	return found, err
}

// Records walks the records of the page newest to oldest until fn return false
func (ps *PageStore) Records(page *model.Page, fn func(*model.PageRecord) bool) error {
	pos := ps.pageSize
	for {
		record, err := ps.codec.UnmarshalRecord(page.Data, pos)
		if err != nil {
			return fmt.Errorf("page %d: %w", page.Number, err)
		}
		if record == nil || !fn(record) {
			return nil
		}
		pos = record.Offset
	}
}

// Delete overwrites the record with its tombstone
func (ps *PageStore) Delete(page *model.Page, record *model.PageRecord) error {
	deleted := record.ToDeleted()
	if err := ps.codec.WriteRecord(page.Data, deleted); err != nil {
		return err
	}
	record.IsDelete = true
	return nil
}

// Iterator return the pages committed so far, newest first
func (ps *PageStore) Iterator() *Iterator {
	return &Iterator{
		ps:        ps,
		remaining: ps.pageCount.Load(),
	}
}

func (ps *PageStore) Sync() error {
	if err := ps.io.Sync(); err != nil {
		return fmt.Errorf("%w: sync: %w", ErrIO, err)
	}
	return nil
}

func (ps *PageStore) Close() error {
	if ps.cache != nil {
		ps.cache.close()
	}
	if err := ps.io.Close(); err != nil {
		return fmt.Errorf("%w: close: %w", ErrIO, err)
	}
	return nil
}
