package pagestore

import (
	"github.com/cqkv/heapkv/codec"
	"go.uber.org/zap"
)

const (
	DefaultPageSize   = 4 * 1024
	DefaultMaxNrPages = 1 << 20
)

type options struct {
	pageSize   int
	maxNrPages uint32
	cacheSize  int64
	syncWrites bool

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

// WithCache keeps up to maxBytes of page copies in memory, 0 disables it
func WithCache(maxBytes int64) Option {
	return func(o *options) {
		o.cacheSize = maxBytes
	}
}

// WithSyncWrites fsyncs the file after every saved page
func WithSyncWrites(sync bool) Option {
	return func(o *options) {
		o.syncWrites = sync
	}
}

func WithCodec(c codec.Codec) Option {
	return func(o *options) {
		o.codec = c
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
