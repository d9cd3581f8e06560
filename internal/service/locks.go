package service

import "sync"

// consumerLocks serializes cart mutations per consumer. Entries are
// reference counted and dropped when the last holder unlocks.
type consumerLocks struct {
	mu    sync.Mutex
	locks map[int64]*consumerLock
}

type consumerLock struct {
	mu   sync.Mutex
	refs int
}

func newConsumerLocks() *consumerLocks {
	return &consumerLocks{locks: make(map[int64]*consumerLock)}
}

// Lock blocks until the consumer's lock is held and returns its release func.
func (c *consumerLocks) Lock(consumerID int64) func() {
	c.mu.Lock()
	l, ok := c.locks[consumerID]
	if !ok {
		l = &consumerLock{}
		c.locks[consumerID] = l
	}
	l.refs++
	c.mu.Unlock()

	l.mu.Lock()

	return func() {
		l.mu.Unlock()

		c.mu.Lock()
		l.refs--
		if l.refs == 0 {
			delete(c.locks, consumerID)
		}
		c.mu.Unlock()
	}
}

func (c *consumerLocks) size() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.locks)
}
