// Package archive persists validated frames to SQLite so a receiving
// run can be queried after the fact.
package archive

import (
	"database/sql"
	_ "embed"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"

	"github.com/rjboer/beam1090/internal/modes"
)

//go:embed schema.sql
var schemaSQL string

const (
	insertSessionSQL = `
INSERT INTO sessions (id, started_at)
VALUES (?, ?)`

	insertFramesSQL = `
INSERT INTO frames (session_id,
                    received_at,
                    df,
                    icao,
                    long,
                    repaired,
                    score,
                    payload)
VALUES `

	frameValuesSQL = `(?, ?, ?, ?, ?, ?, ?, ?)`

	selectFramesSQL = `
SELECT
    received_at,
    df,
    icao,
    long,
    repaired,
    score,
    payload
FROM frames
WHERE
    session_id = ?
ORDER BY id`

	selectSessionsSQL = `
SELECT
    id,
    started_at
FROM sessions
ORDER BY started_at`
)

// Config describes the archive store.
type Config struct {
	Path      string
	SessionID string // defaults to a fresh UUID
	BatchSize int    // frames per insert, default 32
}

// Session is one recorded run.
type Session struct {
	ID        string
	StartedAt time.Time
}

// Store writes frames to SQLite in batches. Publish buffers in memory
// and flushes full batches, so the pipeline never waits on disk per
// frame. It satisfies the dispatch sink contract.
type Store struct {
	cfg Config

	dbOnce sync.Once
	db     *sql.DB
	dbErr  error

	sessionOnce sync.Once
	sessionErr  error

	closeOnce sync.Once
	closeErr  error

	mu    sync.Mutex
	batch []*modes.Frame
}

// New prepares a store. The database opens lazily on first use.
func New(cfg Config) (*Store, error) {
	if cfg.Path == "" {
		return nil, errors.New("archive path is required")
	}
	if cfg.SessionID == "" {
		cfg.SessionID = uuid.NewString()
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 32
	}
	return &Store{cfg: cfg, batch: make([]*modes.Frame, 0, cfg.BatchSize)}, nil
}

// SessionID reports the identifier frames are filed under.
func (s *Store) SessionID() string { return s.cfg.SessionID }

func (s *Store) getDB() (*sql.DB, error) {
	s.dbOnce.Do(func() {
		db, err := sql.Open("sqlite3",
			fmt.Sprintf("file:%s?%s", s.cfg.Path, "_journal_mode=WAL&_synchronous=NORMAL&_busy_timeout=5000"))
		if err != nil {
			s.dbErr = fmt.Errorf("opening archive: %w", err)
			return
		}
		if _, err = db.Exec(schemaSQL); err != nil {
			_ = db.Close()
			s.dbErr = fmt.Errorf("initializing schema: %w", err)
			return
		}
		s.db = db
	})
	return s.db, s.dbErr
}

// ensureSession records the session row before its first frame batch.
func (s *Store) ensureSession(db *sql.DB) error {
	s.sessionOnce.Do(func() {
		if _, err := db.Exec(insertSessionSQL, s.cfg.SessionID, time.Now().UTC()); err != nil {
			s.sessionErr = fmt.Errorf("recording session: %w", err)
		}
	})
	return s.sessionErr
}

// Publish buffers the frame and flushes once a batch is full.
func (s *Store) Publish(f *modes.Frame) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.batch = append(s.batch, f)
	if len(s.batch) < s.cfg.BatchSize {
		return nil
	}
	return s.flushLocked()
}

// Flush writes any buffered frames immediately.
func (s *Store) Flush() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.flushLocked()
}

func (s *Store) flushLocked() (err error) {
	if len(s.batch) == 0 {
		return nil
	}
	db, err := s.getDB()
	if err != nil {
		return err
	}
	if err = s.ensureSession(db); err != nil {
		return err
	}

	var sb strings.Builder
	sb.WriteString(insertFramesSQL)
	args := make([]any, 0, len(s.batch)*8)
	for i, f := range s.batch {
		if i > 0 {
			sb.WriteString(", ")
		}
		sb.WriteString(frameValuesSQL)
		long := 0
		if f.Long {
			long = 1
		}
		args = append(args,
			s.cfg.SessionID, f.Timestamp.UTC(), f.DF, int64(f.ICAO), long, f.Repaired, f.Score, f.Hex())
	}

	tx, err := db.Begin()
	if err != nil {
		return fmt.Errorf("beginning batch: %w", err)
	}
	if _, err = tx.Exec(sb.String(), args...); err != nil {
		err = fmt.Errorf("inserting frames: %w", err)
		rollbackWithError(tx, &err)
		return err
	}
	if err = tx.Commit(); err != nil {
		return fmt.Errorf("committing batch: %w", err)
	}
	s.batch = s.batch[:0]
	return nil
}

// Frames returns a session's frames in insertion order.
func (s *Store) Frames(sessionID string) (frames []modes.Frame, err error) {
	db, err := s.getDB()
	if err != nil {
		return nil, err
	}
	rows, err := db.Query(selectFramesSQL, sessionID)
	if err != nil {
		return nil, fmt.Errorf("querying frames: %w", err)
	}
	defer closeWithError(rows, &err)

	for rows.Next() {
		var (
			f       modes.Frame
			icao    int64
			long    int
			payload string
		)
		if err = rows.Scan(&f.Timestamp, &f.DF, &icao, &long, &f.Repaired, &f.Score, &payload); err != nil {
			return nil, fmt.Errorf("scanning frame: %w", err)
		}
		if f.Payload, err = hex.DecodeString(payload); err != nil {
			return nil, fmt.Errorf("decoding payload: %w", err)
		}
		f.ICAO = uint32(icao)
		f.Long = long != 0
		f.Valid = true
		frames = append(frames, f)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating frames: %w", err)
	}
	return frames, nil
}

// Sessions lists recorded runs, oldest first.
func (s *Store) Sessions() (sessions []Session, err error) {
	db, err := s.getDB()
	if err != nil {
		return nil, err
	}
	rows, err := db.Query(selectSessionsSQL)
	if err != nil {
		return nil, fmt.Errorf("querying sessions: %w", err)
	}
	defer closeWithError(rows, &err)

	for rows.Next() {
		var sess Session
		if err = rows.Scan(&sess.ID, &sess.StartedAt); err != nil {
			return nil, fmt.Errorf("scanning session: %w", err)
		}
		sessions = append(sessions, sess)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating sessions: %w", err)
	}
	return sessions, nil
}

// Close flushes buffered frames and closes the database. Further use
// of the store fails cleanly.
func (s *Store) Close() error {
	s.closeOnce.Do(func() {
		s.closeErr = s.Flush()
		s.mu.Lock()
		defer s.mu.Unlock()
		if s.db != nil {
			closeWithError(s.db, &s.closeErr)
			s.db = nil
			s.dbErr = errors.New("archive closed")
		}
	})
	return s.closeErr
}
