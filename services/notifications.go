// Package services holds the client-side chat components: directory,
// session, resolver, notification counting and read-receipt rules.
package services

import "sync"

// NotificationCounter is the process-wide unseen-conversation tally.
//
// It is never incremented one-by-one by local logic: the value is set
// from directory snapshots and decremented on session open, which
// avoids double counting when the same unseen state is reported by
// both a snapshot and a live event.
type NotificationCounter struct {
	mu    sync.Mutex
	count int
}

func NewNotificationCounter() *NotificationCounter {
	return &NotificationCounter{}
}

// Decrease decrements the tally, floored at zero.
func (c *NotificationCounter) Decrease() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.count > 0 {
		c.count--
	}
}

// SetFromSnapshot replaces the tally with the number of conversations
// the current user has not yet seen, as computed from the directory.
func (c *NotificationCounter) SetFromSnapshot(n int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if n < 0 {
		n = 0
	}
	c.count = n
}

func (c *NotificationCounter) Count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.count
}
