// Package lock hands out one read/write lock per page.
//
// Locks are borrowed from an object pool when a page is first locked and go back to
// the pool once every handle for that page is released.
package lock

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/cqkv/heapkv/pool"
	"go.uber.org/zap"
)

type options struct {
	poolSize int
	logger   *zap.Logger
}

type Option func(*options)

func WithPoolSize(size int) Option {
	return func(o *options) {
		o.poolSize = size
	}
}

func WithLogger(logger *zap.Logger) Option {
	return func(o *options) {
		o.logger = logger
	}
}

// lockRef ties a page to its pooled lock, refs is guarded by Manager.mu
type lockRef struct {
	page   uint32
	refs   int
	future *pool.Future[*RWLock]
}

type Manager struct {
	mu    sync.Mutex
	locks map[uint32]*lockRef

	pool   *pool.ObjectPool[*RWLock]
	logger *zap.Logger
}

func NewManager(opts ...Option) *Manager {
	o := &options{
		logger: zap.NewNop(),
	}
	for _, opt := range opts {
		opt(o)
	}

	poolOpts := []pool.Option{pool.WithLogger(o.logger)}
	if o.poolSize > 0 {
		poolOpts = append(poolOpts, pool.WithMaxPoolSize(o.poolSize))
	}

	return &Manager{
		locks:  make(map[uint32]*lockRef),
		pool:   pool.New(NewRWLock, isFree, poolOpts...),
		logger: o.logger,
	}
}

// LockForPage return a handle on the page's lock, callers of the same page share one lock.
// The handle must be released once the caller is done with the page.
func (m *Manager) LockForPage(ctx context.Context, page uint32) (*Handle, error) {
	m.mu.Lock()
	ref, ok := m.locks[page]
	if !ok {
		// the borrow may stay pending, it is awaited outside the map lock
		future, err := m.pool.BorrowAsync()
		if err != nil {
			m.mu.Unlock()
			return nil, err
		}
		ref = &lockRef{page: page, future: future}
		m.locks[page] = ref
	}
	ref.refs++
	m.mu.Unlock()

	l, err := ref.future.Get(ctx)
	if err != nil {
		m.release(ref)
		return nil, err
	}

	return &Handle{
		manager: m,
		ref:     ref,
		lock:    l,
	}, nil
}

func (m *Manager) release(ref *lockRef) {
	m.mu.Lock()
	ref.refs--
	if ref.refs > 0 {
		m.mu.Unlock()
		return
	}
	if m.locks[ref.page] == ref {
		delete(m.locks, ref.page)
	}
	m.mu.Unlock()

	m.logger.Debug("lock for page reclaimed", zap.Uint32("page", ref.page))

	if l, ok := ref.future.Value(); ok {
		m.pool.Return(l)
		return
	}
	go func() {
		<-ref.future.Done()
		l, _ := ref.future.Value()
		m.pool.Return(l)
	}()
}

// Size return the number of pages with live handles
func (m *Manager) Size() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.locks)
}

func (m *Manager) PoolSize() int {
	return m.pool.PoolSize()
}

func (m *Manager) InUse() int {
	return m.pool.InUse()
}

// Close stops handing out new locks, handles already given keep working
func (m *Manager) Close() {
	m.pool.Shutdown()
}

// Handle grants access to a page lock
type Handle struct {
	manager  *Manager
	ref      *lockRef
	lock     *RWLock
	released atomic.Bool
}

func (h *Handle) Page() uint32 {
	return h.ref.page
}

func (h *Handle) RLock() {
	h.lock.RLock()
}

func (h *Handle) RUnlock() {
	h.lock.RUnlock()
}

func (h *Handle) Lock() {
	h.lock.Lock()
}

func (h *Handle) Unlock() {
	h.lock.Unlock()
}

// Release drops the handle, calling it more than once is a no-op
func (h *Handle) Release() {
	if h.released.Swap(true) {
		return
	}
	h.manager.release(h.ref)
}
