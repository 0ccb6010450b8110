package fio

// IOManager can be custom in options
type IOManager interface {
	ReadAt([]byte, int64) (int, error)
	WriteAt([]byte, int64) (int, error)
	Size() (int64, error)
	Sync() error
	Close() error
}

type FileLocker interface {
	TryLock() (bool, error)
	Unlock() error
}
