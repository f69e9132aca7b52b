package ws

import (
	"sync"
	"testing"
	"time"
)

// The read loop and the heartbeat goroutine touch the activity timestamp
// from different goroutines; both directions must be safe under -race.
func TestConnectionPingConcurrentAccess(t *testing.T) {
	c := &Connection{ID: "conn-1", UserID: "alice"}
	c.TouchPing()

	var wg sync.WaitGroup
	start := make(chan struct{})

	wg.Add(2)
	go func() {
		defer wg.Done()
		<-start
		for i := 0; i < 1000; i++ {
			c.TouchPing()
		}
	}()
	go func() {
		defer wg.Done()
		<-start
		for i := 0; i < 1000; i++ {
			if c.LastPing().IsZero() {
				t.Error("LastPing returned zero time after TouchPing")
				return
			}
		}
	}()

	close(start)
	wg.Wait()
}

func TestConnectionPingAdvances(t *testing.T) {
	c := &Connection{ID: "conn-1", UserID: "alice"}

	if !c.LastPing().IsZero() {
		t.Fatalf("expected zero last ping before first touch, got %v", c.LastPing())
	}

	before := time.Now()
	c.TouchPing()
	got := c.LastPing()
	if got.Before(before) {
		t.Fatalf("last ping %v is before touch time %v", got, before)
	}

	first := got
	time.Sleep(time.Millisecond)
	c.TouchPing()
	if !c.LastPing().After(first) {
		t.Fatalf("expected last ping to advance past %v, got %v", first, c.LastPing())
	}
}
