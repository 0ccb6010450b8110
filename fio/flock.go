package fio

import (
	"github.com/gofrs/flock"
)

const flockSuffix = ".lock"

var _ FileLocker = (*flock.Flock)(nil)

// NewFlock return the inter-process lock guarding the heap file at path
func NewFlock(path string) *flock.Flock {
	return flock.New(path + flockSuffix)
}
