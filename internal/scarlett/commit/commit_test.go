package commit

import (
	"sync/atomic"
	"testing"
	"time"
)

func TestArmFiresAfterQuiescence(t *testing.T) {
	var calls int32
	c := New(func() error { atomic.AddInt32(&calls, 1); return nil })
	c.duration = 10 * time.Millisecond

	c.Arm()
	time.Sleep(50 * time.Millisecond)

	if got := atomic.LoadInt32(&calls); got != 1 {
		t.Errorf("save called %d times, want 1", got)
	}
}

func TestArmCoalescesRepeatedCalls(t *testing.T) {
	var calls int32
	c := New(func() error { atomic.AddInt32(&calls, 1); return nil })
	c.duration = 30 * time.Millisecond

	for i := 0; i < 5; i++ {
		c.Arm()
		time.Sleep(5 * time.Millisecond)
	}
	time.Sleep(60 * time.Millisecond)

	if got := atomic.LoadInt32(&calls); got != 1 {
		t.Errorf("save called %d times across coalesced Arm calls, want 1", got)
	}
}

func TestCancelPreventsSave(t *testing.T) {
	var calls int32
	c := New(func() error { atomic.AddInt32(&calls, 1); return nil })
	c.duration = 10 * time.Millisecond

	c.Arm()
	c.Cancel()
	time.Sleep(30 * time.Millisecond)

	if got := atomic.LoadInt32(&calls); got != 0 {
		t.Errorf("save called %d times after Cancel, want 0", got)
	}
}

func TestFlushSyncRunsPendingSaveImmediately(t *testing.T) {
	var calls int32
	c := New(func() error { atomic.AddInt32(&calls, 1); return nil })
	c.duration = time.Hour // would not fire on its own within the test

	c.Arm()
	if err := c.FlushSync(); err != nil {
		t.Fatalf("FlushSync: %v", err)
	}
	if got := atomic.LoadInt32(&calls); got != 1 {
		t.Errorf("save called %d times after FlushSync, want 1", got)
	}

	// A second FlushSync with nothing pending must not save again.
	if err := c.FlushSync(); err != nil {
		t.Fatalf("second FlushSync: %v", err)
	}
	if got := atomic.LoadInt32(&calls); got != 1 {
		t.Errorf("save called %d times after second FlushSync, want 1", got)
	}
}

func TestFlushSyncNoopWhenNothingPending(t *testing.T) {
	var calls int32
	c := New(func() error { atomic.AddInt32(&calls, 1); return nil })

	if err := c.FlushSync(); err != nil {
		t.Fatalf("FlushSync: %v", err)
	}
	if got := atomic.LoadInt32(&calls); got != 0 {
		t.Errorf("save called %d times with nothing pending, want 0", got)
	}
}
