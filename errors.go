package heapkv

import (
	"fmt"

	"github.com/cqkv/heapkv/codec"
	"github.com/cqkv/heapkv/pagestore"
)

var (
	ErrKeyNotFound   = addPrefix("key not found")
	ErrClosed        = addPrefix("heap file is closed")
	ErrFileInUse     = addPrefix("heap file is used by another process")
	ErrEncode        = addPrefix("encode entry failed")
	ErrDecode        = addPrefix("decode entry failed")
	ErrDuplicateLive = addPrefix("more than one live record for a key")

	ErrExceedMaxBatchNum = addPrefix("exceed the max batch num")

	ErrRecordTooLarge = codec.ErrRecordTooLarge
	ErrCorruptPage    = codec.ErrCorruptPage
	ErrStoreFull      = pagestore.ErrStoreFull
	ErrIO             = pagestore.ErrIO
)

func addPrefix(errStr string) error {
	return fmt.Errorf("heapkv err: %s", errStr)
}
