package boardsync

import (
	"context"
	"sync"
)

// Trigger is the one-shot start signal shared by the boards of a rig.
// Fire latches: waiters that arrive after the pulse return immediately,
// matching an edge-latched hardware trigger line.
type Trigger struct {
	mu    sync.Mutex
	cond  sync.Cond
	fired bool
}

func NewTrigger() *Trigger {
	t := &Trigger{}
	t.cond.L = &t.mu
	return t
}

// Fire latches the trigger and releases every waiter. Firing an already
// fired trigger is a no-op.
func (t *Trigger) Fire() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.fired {
		return
	}
	t.fired = true
	t.cond.Broadcast()
}

func (t *Trigger) Fired() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.fired
}

// Wait suspends the caller until the trigger fires or ctx ends. The
// condition loop rechecks after every wakeup, so a cancellation broadcast
// cannot be mistaken for the pulse.
func (t *Trigger) Wait(ctx context.Context) error {
	stop := context.AfterFunc(ctx, func() {
		// Taking the lock guarantees the waiter is either suspended in
		// Wait below or has not entered the loop yet, so the broadcast
		// cannot fall between its ctx check and its suspend.
		t.mu.Lock()
		defer t.mu.Unlock()
		t.cond.Broadcast()
	})
	defer stop()

	t.mu.Lock()
	defer t.mu.Unlock()
	for !t.fired {
		if err := ctx.Err(); err != nil {
			return err
		}
		t.cond.Wait()
	}
	return nil
}
