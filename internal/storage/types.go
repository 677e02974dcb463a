package storage

import (
	"errors"
	"time"
)

var ErrClosed = errors.New("storage closed")

// Config configures storage.
//
// Driver values:
//   - "sqlite" / "sqlite3": SQLite database file (Path)
//   - "mysql": MySQL server (DSN)
//   - "bolt" / "bbolt": bbolt database file (Path)
//
// An empty Driver selects sqlite.
type Config struct {
	Driver      string
	Path        string
	DSN         string
	BusyTimeout time.Duration // sqlite only; 0 means default
}

// Reminder is one pending reminder as stored.
type Reminder struct {
	ID       int64
	Owner    int64 // chat id; scope for list/cancel
	ThreadID int   // forum topic for delivery, 0 if none
	Text     string
	RemindAt time.Time
	// CreatedAt is informational.
	CreatedAt time.Time
}

func fromMillis(ms int64) time.Time { return time.UnixMilli(ms).UTC() }
