package boardsync

import (
	"context"
	"fmt"
	"sync"
)

// SoftBoard propagates the trigger in process. It stands in for real
// acquisition hardware in tests and in single-host rigs where every
// stream is produced by the same process.
type SoftBoard struct {
	name string
	trig *Trigger

	mu    sync.Mutex
	state BoardState
}

// NewSoftBoard returns a board wired to trig. Boards of the same rig
// share one Trigger.
func NewSoftBoard(name string, trig *Trigger) *SoftBoard {
	return &SoftBoard{name: name, trig: trig}
}

func (b *SoftBoard) Name() string { return b.name }

func (b *SoftBoard) Configure(ctx context.Context, role Role, clock ClockSource) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if role == RoleSlave && clock != ClockExternal {
		return fmt.Errorf("%s: a slave must lock to the external clock", b.name)
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.state = BoardState{Role: role, Clock: clock, Configured: true}
	return nil
}

func (b *SoftBoard) Arm(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if !b.state.Configured {
		return fmt.Errorf("%s: %w", b.name, errNotConfigured)
	}
	b.state.Armed = true
	return nil
}

func (b *SoftBoard) Fire(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.state.Role != RoleMaster {
		return fmt.Errorf("%s: %w", b.name, errNotMaster)
	}
	if !b.state.Armed {
		return fmt.Errorf("%s: %w", b.name, errNotArmed)
	}
	if b.state.Fired {
		return fmt.Errorf("%s: %w", b.name, errAlreadyFired)
	}
	b.trig.Fire()
	b.state.Fired = true
	return nil
}

// StartOnTrigger suspends until the rig trigger fires. On the master this
// returns immediately once Fire has run.
func (b *SoftBoard) StartOnTrigger(ctx context.Context) error {
	b.mu.Lock()
	armed := b.state.Armed
	b.mu.Unlock()
	if !armed {
		return fmt.Errorf("%s: %w", b.name, errNotArmed)
	}
	if err := b.trig.Wait(ctx); err != nil {
		return fmt.Errorf("%s: %w", b.name, err)
	}
	b.mu.Lock()
	b.state.Fired = true
	b.mu.Unlock()
	return nil
}

func (b *SoftBoard) State() BoardState {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

func (b *SoftBoard) Close() error { return nil }
