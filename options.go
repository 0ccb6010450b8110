package heapkv

import (
	"github.com/cqkv/heapkv/codec"
	"github.com/cqkv/heapkv/pagestore"
	"go.uber.org/zap"
)

const (
	DefaultPageSize   = pagestore.DefaultPageSize
	DefaultMaxNrPages = pagestore.DefaultMaxNrPages
)

type options struct {
	pageSize   int
	maxNrPages uint32
	syncWrites bool

	// lock pool size, 0 keeps the pool default
	poolSize int
	// front cache entries, 0 disables it
	cacheSize int
	// page cache bytes, 0 disables it
	pageCacheSize int64

	codec  codec.Codec
	logger *zap.Logger
}

type Option func(*options)

func WithPageSize(size int) Option {
	return func(o *options) {
		o.pageSize = size
	}
}

func WithMaxNrPages(n uint32) Option {
	return func(o *options) {
		o.maxNrPages = n
	}
}

// WithPoolSize bounds the number of page locks alive at the same time
func WithPoolSize(size int) Option {
	return func(o *options) {
		o.poolSize = size
	}
}

// WithCacheSize keeps the values of the most recently used keys in memory
func WithCacheSize(entries int) Option {
	return func(o *options) {
		o.cacheSize = entries
	}
}

func WithPageCache(maxBytes int64) Option {
	return func(o *options) {
		o.pageCacheSize = maxBytes
	}
}

func WithSyncWrites(sync bool) Option {
	return func(o *options) {
		o.syncWrites = sync
	}
}

func WithCodec(codec codec.Codec) Option {
	return func(o *options) {
		o.codec = codec
	}
}

func WithLogger(logger *zap.Logger) Option {
	return func(o *options) {
		o.logger = logger
	}
}

func defaultOptions() *options {
	return &options{
		pageSize:   DefaultPageSize,
		maxNrPages: DefaultMaxNrPages,
		codec:      codec.NewCodecImpl(),
		logger:     zap.NewNop(),
	}
}

// writeBatchOptions is the options for write batch
type writeBatchOptions struct {
	maxBatchNum int
}

type WriteBatchOption func(*writeBatchOptions)

const defaultMaxBatchNum = 10000

func WithMaxBatchNum(n int) WriteBatchOption {
	return func(o *writeBatchOptions) {
		o.maxBatchNum = n
	}
}
