package clockx

// Clock implements CLOCK (second-chance) replacement over slot ids
// [0..capacity). A slot is either free or occupied; occupied slots carry a
// reference bit that Touch sets and the sweeping hand clears.
// Clock is not safe for concurrent use; callers hold their own lock.
type Clock struct {
	ref     []bool
	present []bool
	free    []int
	hand    int
}

func New(capacity int) *Clock {
	if capacity <= 0 {
		capacity = 1
	}
	c := &Clock{
		ref:     make([]bool, capacity),
		present: make([]bool, capacity),
		free:    make([]int, 0, capacity),
	}
	for id := capacity - 1; id >= 0; id-- {
		c.free = append(c.free, id)
	}
	return c
}

func (c *Clock) Capacity() int { return len(c.ref) }

// Len is the number of occupied slots.
func (c *Clock) Len() int { return len(c.ref) - len(c.free) }

// Acquire occupies a free slot, lowest id first. ok is false when every slot
// is taken and the caller must Evict.
func (c *Clock) Acquire() (id int, ok bool) {
	n := len(c.free)
	if n == 0 {
		return -1, false
	}
	id = c.free[n-1]
	c.free = c.free[:n-1]
	c.present[id] = true
	c.ref[id] = true
	return id, true
}

// Touch marks an occupied slot as recently used.
func (c *Clock) Touch(id int) {
	if id < 0 || id >= len(c.ref) || !c.present[id] {
		return
	}
	c.ref[id] = true
}

// Evict picks a victim among occupied slots and keeps it occupied for the
// caller to reuse: the victim's reference bit is set again.
func (c *Clock) Evict() (id int, ok bool) {
	n := len(c.ref)
	if c.Len() == 0 {
		return -1, false
	}
	// two sweeps always find a victim: the first clears every bit it passes
	for range 2 * n {
		idx := c.hand
		c.hand = (c.hand + 1) % n
		if !c.present[idx] {
			continue
		}
		if !c.ref[idx] {
			c.ref[idx] = true
			return idx, true
		}
		c.ref[idx] = false
	}
	return -1, false
}

// Remove frees an occupied slot.
func (c *Clock) Remove(id int) {
	if id < 0 || id >= len(c.ref) || !c.present[id] {
		return
	}
	c.present[id] = false
	c.ref[id] = false
	c.free = append(c.free, id)
}

// Reset frees every slot.
func (c *Clock) Reset() {
	*c = *New(len(c.ref))
}
