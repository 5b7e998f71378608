// Package boardsync coordinates the clock and trigger bring-up of a
// multi-board receiver rig. One board drives the shared reference clock
// and emits a one-shot trigger pulse; the remaining boards lock to the
// external clock and hold their first sample until the pulse arrives.
// After a successful start, sample index zero on every channel of every
// board corresponds to the same physical instant up to propagation skew.
package boardsync

import (
	"context"
	"errors"
	"fmt"
)

type Role int

const (
	RoleMaster Role = iota
	RoleSlave
)

func (r Role) String() string {
	switch r {
	case RoleMaster:
		return "master"
	case RoleSlave:
		return "slave"
	}
	return fmt.Sprintf("role(%d)", int(r))
}

// ParseRole maps the configuration spelling of a role onto its constant.
func ParseRole(s string) (Role, error) {
	switch s {
	case "master":
		return RoleMaster, nil
	case "slave":
		return RoleSlave, nil
	}
	return 0, fmt.Errorf("unknown board role %q", s)
}

type ClockSource int

const (
	ClockInternal ClockSource = iota
	ClockExternal
)

func (c ClockSource) String() string {
	switch c {
	case ClockInternal:
		return "internal"
	case ClockExternal:
		return "external"
	}
	return fmt.Sprintf("clock(%d)", int(c))
}

// ParseClockSource maps the configuration spelling of a clock source onto
// its constant.
func ParseClockSource(s string) (ClockSource, error) {
	switch s {
	case "internal":
		return ClockInternal, nil
	case "external":
		return ClockExternal, nil
	}
	return 0, fmt.Errorf("unknown clock source %q", s)
}

// BoardState is a snapshot of one board's position in the start sequence.
type BoardState struct {
	Role       Role
	Clock      ClockSource
	Configured bool
	Armed      bool
	Fired      bool
}

var (
	errNotConfigured = errors.New("board not configured")
	errNotArmed      = errors.New("board not armed")
	errAlreadyFired  = errors.New("trigger already fired")
	errNotMaster     = errors.New("not the trigger master")
	errNotConnected  = errors.New("not connected")
)

// Board is one receiver in the rig. Calls follow the fixed sequence
// Configure, Arm, then either Fire (master) or StartOnTrigger (all
// boards); StartOnTrigger blocks until the trigger has been observed.
type Board interface {
	Name() string
	Configure(ctx context.Context, role Role, clock ClockSource) error
	Arm(ctx context.Context) error
	Fire(ctx context.Context) error
	StartOnTrigger(ctx context.Context) error
	State() BoardState
	Close() error
}
