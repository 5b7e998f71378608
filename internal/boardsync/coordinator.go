package boardsync

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
)

// Coordinator drives the two-phase start of a rig: configure every
// board, arm the slaves and then the master, suspend the slaves on the
// trigger, and let the master fire. One master and any number of slaves
// wired to the same clock and trigger distribution.
type Coordinator struct {
	master      Board
	slaves      []Board
	masterClock ClockSource
	logger      *slog.Logger
}

type CoordinatorOption func(*Coordinator)

func WithLogger(l *slog.Logger) CoordinatorOption {
	return func(c *Coordinator) {
		if l != nil {
			c.logger = l
		}
	}
}

// WithMasterClock selects the master's own reference, for rigs where the
// master is disciplined by an external standard such as a GPSDO.
func WithMasterClock(src ClockSource) CoordinatorOption {
	return func(c *Coordinator) { c.masterClock = src }
}

func NewCoordinator(master Board, slaves []Board, opts ...CoordinatorOption) (*Coordinator, error) {
	if master == nil {
		return nil, errors.New("coordinator needs a master board")
	}
	for i, s := range slaves {
		if s == nil {
			return nil, fmt.Errorf("slave board %d is nil", i)
		}
	}
	c := &Coordinator{
		master:      master,
		slaves:      slaves,
		masterClock: ClockInternal,
		logger:      slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// Start runs the bring-up sequence. Any failure aborts the rig; a rig
// that starts partially is worse than one that does not start, since the
// aligner would pair samples from different instants.
func (c *Coordinator) Start(ctx context.Context) error {
	// Phase one: roles and clocks, master first so the reference clock
	// is present before the slaves try to lock to it.
	if err := c.master.Configure(ctx, RoleMaster, c.masterClock); err != nil {
		return fmt.Errorf("configure %s: %w", c.master.Name(), err)
	}
	for _, s := range c.slaves {
		if err := s.Configure(ctx, RoleSlave, ClockExternal); err != nil {
			return fmt.Errorf("configure %s: %w", s.Name(), err)
		}
	}

	// Phase two: arm the slaves before the master so no board can see
	// the pulse unarmed.
	for _, s := range c.slaves {
		if err := s.Arm(ctx); err != nil {
			return fmt.Errorf("arm %s: %w", s.Name(), err)
		}
	}
	if err := c.master.Arm(ctx); err != nil {
		return fmt.Errorf("arm %s: %w", c.master.Name(), err)
	}

	waitCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	errs := make([]error, len(c.slaves))
	var wg sync.WaitGroup
	for i, s := range c.slaves {
		i, s := i, s
		wg.Add(1)
		go func() {
			defer wg.Done()
			errs[i] = s.StartOnTrigger(waitCtx)
		}()
	}

	if err := c.master.Fire(ctx); err != nil {
		cancel()
		wg.Wait()
		return fmt.Errorf("fire %s: %w", c.master.Name(), err)
	}
	if err := c.master.StartOnTrigger(ctx); err != nil {
		cancel()
		wg.Wait()
		return fmt.Errorf("start %s: %w", c.master.Name(), err)
	}

	wg.Wait()
	for i, err := range errs {
		if err != nil {
			errs[i] = fmt.Errorf("start %s: %w", c.slaves[i].Name(), err)
		}
	}
	if err := errors.Join(errs...); err != nil {
		return err
	}
	c.logger.Info("rig started", "boards", 1+len(c.slaves))
	return nil
}

// Close closes every board, master last.
func (c *Coordinator) Close() error {
	var errs []error
	for _, s := range c.slaves {
		if err := s.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close %s: %w", s.Name(), err))
		}
	}
	if err := c.master.Close(); err != nil {
		errs = append(errs, fmt.Errorf("close %s: %w", c.master.Name(), err))
	}
	return errors.Join(errs...)
}
