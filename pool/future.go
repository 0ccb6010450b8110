package pool

import "context"

// Future is the eventual result of a borrow.
// It is completed exactly once, either at borrow time or by a later Return.
type Future[T any] struct {
	done chan struct{}
	obj  T
}

func newFuture[T any]() *Future[T] {
	return &Future[T]{done: make(chan struct{})}
}

func completedFuture[T any](obj T) *Future[T] {
	f := newFuture[T]()
	f.complete(obj)
	return f
}

func (f *Future[T]) complete(obj T) {
	f.obj = obj
	close(f.done)
}

// Done is closed once the object is available
func (f *Future[T]) Done() <-chan struct{} {
	return f.done
}

func (f *Future[T]) IsDone() bool {
	select {
	case <-f.done:
		return true
	default:
		return false
	}
}

// Value return the object without waiting, false if the future is not completed
func (f *Future[T]) Value() (T, bool) {
	if !f.IsDone() {
		var zero T
		return zero, false
	}
	return f.obj, true
}

// Get waits for the object. A canceled ctx does not withdraw the request.
func (f *Future[T]) Get(ctx context.Context) (T, error) {
	select {
	case <-f.done:
		return f.obj, nil
	case <-ctx.Done():
		var zero T
		return zero, ctx.Err()
	}
}
