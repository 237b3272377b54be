// Package commit is the Deferred Commit (spec.md §4.9, C11): a cancellable
// 2-second timer that coalesces config changes into a single CONFIG_SAVE.
package commit

import (
	"log"
	"sync"
	"time"
)

// Duration is the quiescence window before a SAVE is issued (spec.md §4.9).
const Duration = 2 * time.Second

// Committer arms and cancels the deferred-commit timer. New mutations
// cancel a pending timer first, then re-arm (spec.md §5 cancellation); a
// failed SAVE is logged but does not mark the mirror inconsistent (spec.md
// §7): the next successful SAVE supersedes it.
type Committer struct {
	mu       sync.Mutex
	timer    *time.Timer
	pending  bool
	fireMu   sync.Mutex // serialises overlapping save() invocations
	duration time.Duration
	save     func() error
}

// New constructs a Committer that calls save after Duration of quiescence.
func New(save func() error) *Committer {
	return &Committer{duration: Duration, save: save}
}

// Arm cancels any pending timer and starts a fresh one (spec.md §4.9,
// §8 property 7).
func (c *Committer) Arm() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.timer != nil {
		c.timer.Stop()
	}
	c.pending = true
	c.timer = time.AfterFunc(c.duration, c.fire)
}

// Cancel stops a pending timer without saving.
func (c *Committer) Cancel() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.timer != nil {
		c.timer.Stop()
	}
	c.pending = false
}

// FlushSync cancels a pending timer and, if one was pending, runs the save
// synchronously now (spec.md §5: "On device suspend, if the timer was
// pending, save synchronously before suspending").
func (c *Committer) FlushSync() error {
	c.mu.Lock()
	wasPending := c.pending
	if c.timer != nil {
		c.timer.Stop()
	}
	c.pending = false
	c.mu.Unlock()

	if !wasPending {
		return nil
	}
	c.fireMu.Lock()
	defer c.fireMu.Unlock()
	return c.save()
}

func (c *Committer) fire() {
	c.mu.Lock()
	c.pending = false
	c.mu.Unlock()

	c.fireMu.Lock()
	defer c.fireMu.Unlock()
	if err := c.save(); err != nil {
		log.Printf("scarlett: deferred SAVE failed: %v", err)
	}
}
