package boardsync

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"strconv"
	"sync"
	"time"
)

const defaultControlTimeout = 5 * time.Second

// ControlBoard drives a remote board server over its line-oriented
// control protocol: one CRLF-terminated command per exchange, answered
// by an ASCII status integer where zero is success and negative values
// carry the server's errno.
type ControlBoard struct {
	name    string
	addr    string
	timeout time.Duration
	logger  *slog.Logger

	connMu sync.Mutex
	conn   net.Conn

	stateMu sync.Mutex
	state   BoardState
}

func NewControlBoard(name, addr string) *ControlBoard {
	return &ControlBoard{
		name:    name,
		addr:    addr,
		timeout: defaultControlTimeout,
		logger:  slog.Default(),
	}
}

// SetTimeout bounds dialing, writes, and ordinary command reads. Trigger
// waits are exempt; only their context bounds them.
func (b *ControlBoard) SetTimeout(d time.Duration) { b.timeout = d }

func (b *ControlBoard) SetLogger(l *slog.Logger) {
	if l != nil {
		b.logger = l
	}
}

func (b *ControlBoard) Name() string { return b.name }

func (b *ControlBoard) Dial() error {
	c, err := net.DialTimeout("tcp", b.addr, b.timeout)
	if err != nil {
		return fmt.Errorf("connect %s: %w", b.addr, err)
	}
	b.SetConn(c)
	return nil
}

// SetConn injects an established connection (tests, tunnels).
func (b *ControlBoard) SetConn(conn net.Conn) {
	b.connMu.Lock()
	defer b.connMu.Unlock()
	if b.conn != nil {
		_ = b.conn.Close()
	}
	b.conn = conn
}

func (b *ControlBoard) Configure(ctx context.Context, role Role, clock ClockSource) error {
	if role == RoleSlave && clock != ClockExternal {
		return fmt.Errorf("%s: a slave must lock to the external clock", b.name)
	}
	if err := b.exec(ctx, "ROLE "+role.String(), false); err != nil {
		return err
	}
	if err := b.exec(ctx, "CLOCK "+clock.String(), false); err != nil {
		return err
	}
	b.stateMu.Lock()
	b.state = BoardState{Role: role, Clock: clock, Configured: true}
	b.stateMu.Unlock()
	b.logger.Debug("board configured", "board", b.name, "role", role.String(), "clock", clock.String())
	return nil
}

func (b *ControlBoard) Arm(ctx context.Context) error {
	b.stateMu.Lock()
	configured := b.state.Configured
	b.stateMu.Unlock()
	if !configured {
		return fmt.Errorf("%s: %w", b.name, errNotConfigured)
	}
	if err := b.exec(ctx, "ARM", false); err != nil {
		return err
	}
	b.stateMu.Lock()
	b.state.Armed = true
	b.stateMu.Unlock()
	b.logger.Debug("board armed", "board", b.name)
	return nil
}

func (b *ControlBoard) Fire(ctx context.Context) error {
	b.stateMu.Lock()
	st := b.state
	b.stateMu.Unlock()
	if st.Role != RoleMaster {
		return fmt.Errorf("%s: %w", b.name, errNotMaster)
	}
	if !st.Armed {
		return fmt.Errorf("%s: %w", b.name, errNotArmed)
	}
	if st.Fired {
		return fmt.Errorf("%s: %w", b.name, errAlreadyFired)
	}
	if err := b.exec(ctx, "FIRE", false); err != nil {
		return err
	}
	b.stateMu.Lock()
	b.state.Fired = true
	b.stateMu.Unlock()
	b.logger.Info("trigger fired", "board", b.name)
	return nil
}

// StartOnTrigger asks the server to begin streaming on the trigger edge.
// The server holds its status reply until the edge is observed, so the
// call suspends for as long as the trigger takes to arrive.
func (b *ControlBoard) StartOnTrigger(ctx context.Context) error {
	b.stateMu.Lock()
	armed := b.state.Armed
	b.stateMu.Unlock()
	if !armed {
		return fmt.Errorf("%s: %w", b.name, errNotArmed)
	}
	if err := b.exec(ctx, "START", true); err != nil {
		return err
	}
	b.stateMu.Lock()
	b.state.Fired = true
	b.stateMu.Unlock()
	b.logger.Info("board streaming", "board", b.name)
	return nil
}

func (b *ControlBoard) State() BoardState {
	b.stateMu.Lock()
	defer b.stateMu.Unlock()
	return b.state
}

func (b *ControlBoard) Close() error {
	b.connMu.Lock()
	defer b.connMu.Unlock()
	if b.conn == nil {
		return nil
	}
	err := b.conn.Close()
	b.conn = nil
	return err
}

func (b *ControlBoard) exec(ctx context.Context, cmd string, wait bool) error {
	status, err := b.roundTrip(ctx, cmd, wait)
	if err != nil {
		return fmt.Errorf("%s: %s: %w", b.name, cmd, err)
	}
	if status != 0 {
		return fmt.Errorf("%s: %s: board returned %d", b.name, cmd, status)
	}
	return nil
}

func (b *ControlBoard) roundTrip(ctx context.Context, cmd string, wait bool) (int, error) {
	b.connMu.Lock()
	defer b.connMu.Unlock()
	conn := b.conn
	if conn == nil {
		return 0, errNotConnected
	}
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	if wait {
		_ = conn.SetReadDeadline(time.Time{})
	} else if b.timeout > 0 {
		_ = conn.SetReadDeadline(time.Now().Add(b.timeout))
	}
	// A cancelled context snaps the read deadline so a suspended read
	// returns. Registered after the deadline above so the snap cannot be
	// overwritten.
	stop := context.AfterFunc(ctx, func() {
		_ = conn.SetReadDeadline(time.Now())
	})
	defer stop()

	if b.timeout > 0 {
		_ = conn.SetWriteDeadline(time.Now().Add(b.timeout))
	}
	if _, err := conn.Write([]byte(cmd + "\r\n")); err != nil {
		return 0, fmt.Errorf("write: %w", err)
	}

	status, err := readStatus(conn)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return 0, ctxErr
		}
		return 0, fmt.Errorf("read status: %w", err)
	}
	return status, nil
}

// readStatus reads the ASCII status integer byte by byte so no read-ahead
// steals bytes that may follow the line. Carriage returns and junk bytes
// are skipped; a newline terminates the integer once digits have been
// seen.
func readStatus(conn net.Conn) (int, error) {
	var digits []byte
	var one [1]byte
	started := false
	for {
		if _, err := conn.Read(one[:]); err != nil {
			return 0, err
		}
		switch c := one[0]; {
		case c == '\n':
			if started {
				val, err := strconv.Atoi(string(digits))
				if err != nil {
					return 0, fmt.Errorf("parse status %q: %w", digits, err)
				}
				return val, nil
			}
		case c == '\r':
		case c >= '0' && c <= '9', c == '-':
			started = true
			digits = append(digits, c)
		}
	}
}
