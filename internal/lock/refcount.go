package locking

import (
	"fmt"
	"sync/atomic"
)

// Refs counts the holders of a shared handle. The creator holds the first
// reference; whoever releases the last one closes the handle.
type Refs struct {
	n atomic.Int32
}

func NewRefs() *Refs {
	r := &Refs{}
	r.n.Store(1)
	return r
}

// Acquire adds a holder. Acquiring a handle that was already released to
// zero is a bug in the caller.
func (r *Refs) Acquire() {
	if r.n.Add(1) <= 1 {
		panic("locking: acquire after last release")
	}
}

// Release drops one holder and reports whether it was the last one.
func (r *Refs) Release() bool {
	n := r.n.Add(-1)
	if n < 0 {
		panic("locking: released more than acquired")
	}
	return n == 0
}

func (r *Refs) Held() int32 { return r.n.Load() }

func (r *Refs) String() string {
	return fmt.Sprintf("refs=%d", r.Held())
}
