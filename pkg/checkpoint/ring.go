package checkpoint

// incrementModulo returns the channel after index in a ring of size channels
func incrementModulo(index, size int) int {
	if size > 1 {
		return (index + 1) % size
	}
	return 0
}

// Channels returns the ring size
func (c *Checkpoint) Channels() int {
	return c.channels
}

// StartIndex returns the channel this checkpoint started its ring pass at
func (c *Checkpoint) StartIndex() int {
	return c.start
}

// NextIndex returns the channel Advance will move to
func (c *Checkpoint) NextIndex() int {
	return c.next
}

// Advance moves to the next channel of the ring, creating an empty slot for
// a channel that has never been visited, and makes the current state the
// restore point. It reports whether the ring is back at the channel the
// checkpoint started on, meaning every channel has been visited once.
func (c *Checkpoint) Advance() bool {
	c.index = c.next
	for c.index >= len(c.inserts) {
		c.inserts = append(c.inserts, Mark{})
	}
	c.next = incrementModulo(c.index, c.channels)
	c.rebaseline()

	return c.index == c.start
}
