// Package inflight counts work that must finish before the server may stop.
package inflight

import (
	"context"
	"sync"
)

// Counter tracks in-flight inbound OCPP calls.
type Counter struct {
	mu     sync.Mutex
	count  int64
	zeroCh chan struct{}
}

func (c *Counter) ensure() {
	if c.zeroCh == nil {
		c.zeroCh = make(chan struct{})
		if c.count == 0 {
			close(c.zeroCh)
		}
	}
}

// Inc increments the counter.
func (c *Counter) Inc() {
	c.mu.Lock()
	c.ensure()
	if c.count == 0 {
		c.zeroCh = make(chan struct{})
	}
	c.count++
	c.mu.Unlock()
}

// Dec decrements the counter.
func (c *Counter) Dec() {
	c.mu.Lock()
	c.ensure()
	if c.count > 0 {
		c.count--
		if c.count == 0 {
			close(c.zeroCh)
		}
	}
	c.mu.Unlock()
}

// Track increments the counter and returns the matching decrement.
func (c *Counter) Track() func() {
	c.Inc()
	var once sync.Once
	return func() { once.Do(c.Dec) }
}

// Load returns the current count.
func (c *Counter) Load() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.count
}

// WaitForZero blocks until the count is zero or ctx is done.
func (c *Counter) WaitForZero(ctx context.Context) bool {
	c.mu.Lock()
	c.ensure()
	ch := c.zeroCh
	c.mu.Unlock()
	select {
	case <-ch:
		return true
	case <-ctx.Done():
		return false
	}
}
