package pagestore

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/cqkv/heapkv/codec"
	"github.com/cqkv/heapkv/fio"
	"github.com/cqkv/heapkv/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	testPageSize   = 4 * 1024
	testMaxNrPages = 10
)

// mockFile creates a zeroed file of length bytes, with an end marker at each of markers
func mockFile(t *testing.T, length int64, markers ...int64) string {
	path := filepath.Join(t.TempDir(), "heap.data")
	f, err := os.Create(path)
	require.Nil(t, err)
	require.Nil(t, f.Truncate(length))
	for _, m := range markers {
		_, err = f.WriteAt([]byte{model.EndMarker}, m)
		require.Nil(t, err)
	}
	require.Nil(t, f.Close())
	return path
}

func openStore(t *testing.T, path string, opts ...Option) *PageStore {
	ioManager, err := fio.NewFileIO(path)
	require.Nil(t, err)

	opts = append([]Option{WithPageSize(testPageSize), WithMaxNrPages(testMaxNrPages)}, opts...)
	ps, err := New(ioManager, opts...)
	require.Nil(t, err)
	t.Cleanup(func() { _ = ps.Close() })
	return ps
}

func marshal(t *testing.T, key, value string) *model.Record {
	record, err := codec.NewCodecImpl().MarshalRecord([]byte(key), []byte(value))
	require.Nil(t, err)
	return record
}

func TestNew_FileSizeNotDivisibleByPageSize(t *testing.T) {
	path := mockFile(t, testPageSize*3/2)
	ioManager, err := fio.NewFileIO(path)
	require.Nil(t, err)
	defer ioManager.Close()

	_, err = New(ioManager, WithPageSize(testPageSize))
	assert.True(t, errors.Is(err, codec.ErrCorruptPage))
}

func TestNew_InvalidPageSize(t *testing.T) {
	ioManager, err := fio.NewFileIO(mockFile(t, 0))
	require.Nil(t, err)
	defer ioManager.Close()

	_, err = New(ioManager, WithPageSize(model.MetadataSize))
	assert.True(t, errors.Is(err, ErrInvalidPageSize))
}

func TestPageForAppending_RecordTooLarge(t *testing.T) {
	ps := openStore(t, mockFile(t, testPageSize*10))

	_, err := ps.PageForAppending(testPageSize * 2)
	assert.True(t, errors.Is(err, codec.ErrRecordTooLarge))
}

func TestPageForAppending_EmptyFile(t *testing.T) {
	ps := openStore(t, mockFile(t, 0))

	page, err := ps.PageForAppending(1024)
	require.Nil(t, err)
	assert.Equal(t, uint32(0), page.Number)
	assert.Equal(t, int64(0), page.FileOffset())
}

func TestPageForAppending_LastPageFull(t *testing.T) {
	length := int64(4 * testPageSize)
	ps := openStore(t, mockFile(t, length, length-1))

	page, err := ps.PageForAppending(1024)
	require.Nil(t, err)
	assert.Equal(t, length, page.FileOffset())
	assert.Equal(t, uint32(4), page.Number)
}

func TestPageForAppending_SpaceOnLastPage(t *testing.T) {
	length := int64(4 * testPageSize)
	ps := openStore(t, mockFile(t, length, length-testPageSize/2))

	page, err := ps.PageForAppending(1024)
	require.Nil(t, err)
	assert.Equal(t, length-testPageSize, page.FileOffset())
	assert.Equal(t, testPageSize/2-1, codec.NewCodecImpl().RemainingSpace(page.Data, testPageSize))
}

func TestPageForAppending_StoreFull(t *testing.T) {
	length := int64(testMaxNrPages * testPageSize)
	ps := openStore(t, mockFile(t, length, length-1))

	_, err := ps.PageForAppending(1024)
	assert.True(t, errors.Is(err, ErrStoreFull))

	_, err = ps.PageForAppending(1)
	assert.True(t, errors.Is(err, ErrStoreFull))
}

func TestPageForAppending_ZeroMaxNrPages(t *testing.T) {
	ps := openStore(t, mockFile(t, 0), WithMaxNrPages(0))

	_, err := ps.PageForAppending(1)
	assert.True(t, errors.Is(err, ErrStoreFull))
}

func TestIterator_EmptyFile(t *testing.T) {
	ps := openStore(t, mockFile(t, 0))

	it := ps.Iterator()
	assert.False(t, it.Next())
}

func TestIterator_Backward(t *testing.T) {
	ps := openStore(t, mockFile(t, 3*testPageSize))

	var offsets []int64
	it := ps.Iterator()
	for it.Next() {
		page, err := it.Page()
		require.Nil(t, err)
		assert.Equal(t, it.Number(), page.Number)
		offsets = append(offsets, page.FileOffset())
	}
	assert.Equal(t, []int64{2 * testPageSize, testPageSize, 0}, offsets)
}

func TestIterator_Snapshot(t *testing.T) {
	ps := openStore(t, mockFile(t, testPageSize))

	it := ps.Iterator()
	require.Nil(t, ps.Save(model.NewPage(1, testPageSize)))
	assert.Equal(t, uint32(2), ps.PageCount())

	assert.True(t, it.Next())
	assert.Equal(t, uint32(0), it.Number())
	assert.False(t, it.Next())
}

func TestAppend_NotEnoughSpace(t *testing.T) {
	ps := openStore(t, mockFile(t, 0))
	page := model.NewPage(0, testPageSize)

	_, err := ps.Append(page, marshal(t, "abc", string(make([]byte, 3*1024))))
	require.Nil(t, err)

	_, err = ps.Append(page, marshal(t, "abc", string(make([]byte, 2*1024))))
	assert.True(t, errors.Is(err, ErrPageFull))
}

func TestSearch_EmptyPage(t *testing.T) {
	ps := openStore(t, mockFile(t, 0))

	record, err := ps.Search(model.NewPage(0, testPageSize), []byte("record 1"))
	assert.Nil(t, err)
	assert.Nil(t, record)
}

func TestAppend_GoesForward(t *testing.T) {
	ps := openStore(t, mockFile(t, 0))
	page := model.NewPage(0, testPageSize)

	record1 := marshal(t, "record 1", "content 1")
	record2 := marshal(t, "record 2", "content 2")
	_, err := ps.Append(page, record1)
	require.Nil(t, err)
	_, err = ps.Append(page, record2)
	require.Nil(t, err)

	found1, err := ps.Search(page, []byte("record 1"))
	require.Nil(t, err)
	require.NotNil(t, found1)
	assert.Equal(t, 0, found1.Offset)

	found2, err := ps.Search(page, []byte("record 2"))
	require.Nil(t, err)
	require.NotNil(t, found2)
	assert.Equal(t, record1.Size(), found2.Offset)
	assert.Equal(t, []byte("content 2"), found2.Value)
}

func TestSearch_GoesBackward(t *testing.T) {
	ps := openStore(t, mockFile(t, 0))
	page := model.NewPage(0, testPageSize)

	record := marshal(t, "record 1", "content 1")
	_, err := ps.Append(page, record)
	require.Nil(t, err)
	_, err = ps.Append(page, marshal(t, "record 1", "content 2"))
	require.Nil(t, err)

	found, err := ps.Search(page, []byte("record 1"))
	require.Nil(t, err)
	require.NotNil(t, found)
	assert.Equal(t, record.Size(), found.Offset)
	assert.Equal(t, []byte("content 2"), found.Value)
}

func TestDelete_SkippedBySearch(t *testing.T) {
	ps := openStore(t, mockFile(t, 0))
	page := model.NewPage(0, testPageSize)

	_, err := ps.Append(page, marshal(t, "record 1", "content 1"))
	require.Nil(t, err)

	found, err := ps.Search(page, []byte("record 1"))
	require.Nil(t, err)
	require.Nil(t, ps.Delete(page, found))
	assert.True(t, found.IsDelete)

	found, err = ps.Search(page, []byte("record 1"))
	assert.Nil(t, err)
	assert.Nil(t, found)

	// the tombstone stays on the page
	var records []*model.PageRecord
	require.Nil(t, ps.Records(page, func(r *model.PageRecord) bool {
		records = append(records, r)
		return true
	}))
	require.Len(t, records, 1)
	assert.True(t, records[0].IsDelete)
	assert.Equal(t, []byte("record 1"), records[0].Key)
	assert.Equal(t, []byte("content 1"), records[0].Value)
}

func TestRecords_StopsEarly(t *testing.T) {
	ps := openStore(t, mockFile(t, 0))
	page := model.NewPage(0, testPageSize)
	for _, key := range []string{"a", "b", "c"} {
		_, err := ps.Append(page, marshal(t, key, key))
		require.Nil(t, err)
	}

	var keys []string
	require.Nil(t, ps.Records(page, func(r *model.PageRecord) bool {
		keys = append(keys, string(r.Key))
		return len(keys) < 2
	}))
	assert.Equal(t, []string{"c", "b"}, keys)
}

func TestRecords_CorruptPage(t *testing.T) {
	ps := openStore(t, mockFile(t, 0))
	page := model.NewPage(0, testPageSize)
	page.Data[1] = model.EndMarker

	err := ps.Records(page, func(*model.PageRecord) bool { return true })
	assert.True(t, errors.Is(err, codec.ErrCorruptPage))
}

func TestSave_ReadPage(t *testing.T) {
	path := mockFile(t, 0)
	ps := openStore(t, path)

	page, err := ps.PageForAppending(64)
	require.Nil(t, err)
	_, err = ps.Append(page, marshal(t, "k", "v"))
	require.Nil(t, err)
	require.Nil(t, ps.Save(page))
	assert.Equal(t, uint32(1), ps.PageCount())

	read, err := ps.ReadPage(0)
	require.Nil(t, err)
	assert.Equal(t, page.Data, read.Data)

	// a read page is a private copy
	read.Data[0] ^= 1
	again, err := ps.ReadPage(0)
	require.Nil(t, err)
	assert.Equal(t, page.Data, again.Data)

	info, err := os.Stat(path)
	require.Nil(t, err)
	assert.Equal(t, int64(testPageSize), info.Size())
}

func TestSave_Rejects(t *testing.T) {
	ps := openStore(t, mockFile(t, 0))

	err := ps.Save(model.NewPage(1, testPageSize))
	assert.True(t, errors.Is(err, ErrPageOutOfRange))

	err = ps.Save(model.NewPage(0, testPageSize/2))
	assert.True(t, errors.Is(err, ErrInvalidPageSize))

	_, err = ps.ReadPage(0)
	assert.True(t, errors.Is(err, ErrPageOutOfRange))
}

func TestSave_StoreFull(t *testing.T) {
	ps := openStore(t, mockFile(t, 0), WithMaxNrPages(1))

	require.Nil(t, ps.Save(model.NewPage(0, testPageSize)))
	err := ps.Save(model.NewPage(1, testPageSize))
	assert.True(t, errors.Is(err, ErrStoreFull))
}

func TestPageCache_ServesSavedPages(t *testing.T) {
	ps := openStore(t, mockFile(t, 0), WithCache(1<<20), WithSyncWrites(true))
	require.NotNil(t, ps.cache)

	page := model.NewPage(0, testPageSize)
	_, err := ps.Append(page, marshal(t, "k", "v1"))
	require.Nil(t, err)
	require.Nil(t, ps.Save(page))

	for i := 0; i < 3; i++ {
		read, err := ps.ReadPage(0)
		require.Nil(t, err)
		assert.Equal(t, page.Data, read.Data)
		ps.cache.cache.Wait()
	}

	found, err := ps.Search(page, []byte("k"))
	require.Nil(t, err)
	require.Nil(t, ps.Delete(page, found))
	_, err = ps.Append(page, marshal(t, "k", "v2"))
	require.Nil(t, err)
	require.Nil(t, ps.Save(page))

	read, err := ps.ReadPage(0)
	require.Nil(t, err)
	assert.True(t, bytes.Equal(page.Data, read.Data))

	found, err = ps.Search(read, []byte("k"))
	require.Nil(t, err)
	require.NotNil(t, found)
	assert.Equal(t, []byte("v2"), found.Value)
}

func TestPageCache_StaleVersionIgnored(t *testing.T) {
	c, err := newPageCache(1<<20, testPageSize)
	require.Nil(t, err)
	defer c.close()

	before := c.version(0)
	c.invalidate(0)

	// bytes read before the invalidation land late
	c.put(0, before, []byte("old"))
	c.cache.Wait()
	_, ok := c.get(0)
	assert.False(t, ok)

	c.put(0, c.version(0), []byte("new"))
	c.cache.Wait()
	data, ok := c.get(0)
	assert.True(t, ok)
	assert.Equal(t, []byte("new"), data)
}
