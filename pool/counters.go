package pool

import "sync/atomic"

// counters packs (inUse, inPool) in a single word so both change together.
// inUse takes the high 32 bits, inPool the low 32 bits.
type counters struct {
	state atomic.Uint64
}

const inPoolMask = 1<<32 - 1

func pack(inUse, inPool uint32) uint64 {
	return uint64(inUse)<<32 | uint64(inPool)
}

func unpack(state uint64) (inUse, inPool uint32) {
	return uint32(state >> 32), uint32(state & inPoolMask)
}

func (c *counters) load() (inUse, inPool uint32) {
	return unpack(c.state.Load())
}

// borrowIdle accounts an idle object handed out
func (c *counters) borrowIdle() {
	for {
		old := c.state.Load()
		inUse, inPool := unpack(old)
		if c.state.CompareAndSwap(old, pack(inUse+1, inPool)) {
			return
		}
	}
}

// grow reserves a new slot, false when the pool is at max size
func (c *counters) grow(max uint32) bool {
	for {
		old := c.state.Load()
		inUse, inPool := unpack(old)
		if inPool >= max {
			return false
		}
		if c.state.CompareAndSwap(old, pack(inUse+1, inPool+1)) {
			return true
		}
	}
}

// giveBack accounts an object going back to the idle set, false when nothing is in use
func (c *counters) giveBack() bool {
	for {
		old := c.state.Load()
		inUse, inPool := unpack(old)
		if inUse == 0 {
			return false
		}
		if c.state.CompareAndSwap(old, pack(inUse-1, inPool)) {
			return true
		}
	}
}
