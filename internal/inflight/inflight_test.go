package inflight

import (
	"context"
	"testing"
	"time"
)

func TestWaitForZero(t *testing.T) {
	var c Counter
	if !c.WaitForZero(context.Background()) {
		t.Fatalf("empty counter should be zero")
	}
	done := c.Track()
	c.Inc()
	if c.Load() != 2 {
		t.Fatalf("count = %d", c.Load())
	}
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if c.WaitForZero(ctx) {
		t.Fatalf("wait returned before zero")
	}
	go func() {
		done()
		done()
		c.Dec()
	}()
	ctx2, cancel2 := context.WithTimeout(context.Background(), time.Second)
	defer cancel2()
	if !c.WaitForZero(ctx2) {
		t.Fatalf("counter did not reach zero")
	}
	c.Dec()
	if c.Load() != 0 {
		t.Fatalf("counter went negative: %d", c.Load())
	}
}
