// Package pool provides a bounded pool of reusable objects.
//
// Borrowing never fails for lack of objects: when the pool is at its max size the
// request is queued and served, oldest first, by the next Return.
package pool

import (
	"container/list"
	"context"
	"errors"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"
)

const defaultMaxPoolSize = 25

var ErrShutdown = errors.New("heapkv err: object pool is shut down")

type options struct {
	maxPoolSize int
	logger      *zap.Logger
}

type Option func(*options)

func WithMaxPoolSize(size int) Option {
	return func(o *options) {
		o.maxPoolSize = size
	}
}

func WithLogger(logger *zap.Logger) Option {
	return func(o *options) {
		o.logger = logger
	}
}

type ObjectPool[T any] struct {
	create   func() T
	validate func(T) bool
	maxSize  uint32

	counters counters
	idle     chan T

	// mu guards pending and orders idle pushes against queued borrows
	mu      sync.Mutex
	pending *list.List

	isShutdown atomic.Bool
	logger     *zap.Logger
}

// New creates a pool, create builds a new object and validate decides
// whether a returned object may be reused.
func New[T any](create func() T, validate func(T) bool, opts ...Option) *ObjectPool[T] {
	o := &options{
		maxPoolSize: defaultMaxPoolSize,
		logger:      zap.NewNop(),
	}
	for _, opt := range opts {
		opt(o)
	}
	if o.maxPoolSize <= 0 {
		o.maxPoolSize = defaultMaxPoolSize
	}

	return &ObjectPool[T]{
		create:   create,
		validate: validate,
		maxSize:  uint32(o.maxPoolSize),
		idle:     make(chan T, o.maxPoolSize),
		pending:  list.New(),
		logger:   o.logger,
	}
}

// BorrowAsync return a completed future when an object is idle or the pool can grow,
// otherwise a future completed by a later Return.
func (p *ObjectPool[T]) BorrowAsync() (*Future[T], error) {
	if p.isShutdown.Load() {
		return nil, ErrShutdown
	}

	if obj, ok := p.takeIdle(); ok {
		return completedFuture(obj), nil
	}
	if p.counters.grow(p.maxSize) {
		return completedFuture(p.create()), nil
	}

	p.mu.Lock()
	// an object may have come back since the first attempt
	if obj, ok := p.takeIdle(); ok {
		p.mu.Unlock()
		return completedFuture(obj), nil
	}
	if p.counters.grow(p.maxSize) {
		p.mu.Unlock()
		return completedFuture(p.create()), nil
	}
	f := newFuture[T]()
	p.pending.PushBack(f)
	p.mu.Unlock()

	return f, nil
}

// Borrow blocks until an object is available or ctx is done.
// When ctx ends first the queued request still gets served, and the object goes back to the pool.
func (p *ObjectPool[T]) Borrow(ctx context.Context) (T, error) {
	f, err := p.BorrowAsync()
	if err != nil {
		var zero T
		return zero, err
	}

	obj, err := f.Get(ctx)
	if err != nil {
		go func() {
			<-f.Done()
			p.Return(f.obj)
		}()
		return obj, err
	}
	return obj, nil
}

// Return hands the object to the oldest pending borrow, or puts it back to the idle set.
// An object failing validation is dropped and a new one takes its slot.
func (p *ObjectPool[T]) Return(obj T) {
	if !p.validate(obj) {
		p.logger.Warn("returned object failed validation, replacing it")
		obj = p.create()
	}

	p.mu.Lock()
	if e := p.pending.Front(); e != nil {
		p.pending.Remove(e)
		p.mu.Unlock()
		e.Value.(*Future[T]).complete(obj)
		return
	}

	if !p.counters.giveBack() {
		p.mu.Unlock()
		p.logger.Warn("object returned while none is in use, dropping it")
		return
	}
	select {
	case p.idle <- obj:
	default:
		p.logger.Warn("idle set is full, dropping returned object")
	}
	p.mu.Unlock()
}

// Shutdown rejects new borrows. Pending borrows are left to be served by returns.
func (p *ObjectPool[T]) Shutdown() {
	if p.isShutdown.Swap(true) {
		return
	}
	p.logger.Debug("object pool shut down", zap.Int("pending", p.Pending()))
}

func (p *ObjectPool[T]) takeIdle() (T, bool) {
	select {
	case obj := <-p.idle:
		p.counters.borrowIdle()
		return obj, true
	default:
		var zero T
		return zero, false
	}
}

// PoolSize return the number of objects created and not discarded
func (p *ObjectPool[T]) PoolSize() int {
	_, inPool := p.counters.load()
	return int(inPool)
}

func (p *ObjectPool[T]) InUse() int {
	inUse, _ := p.counters.load()
	return int(inUse)
}

func (p *ObjectPool[T]) Idle() int {
	return len(p.idle)
}

func (p *ObjectPool[T]) Pending() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.pending.Len()
}

func (p *ObjectPool[T]) MaxSize() int {
	return int(p.maxSize)
}
