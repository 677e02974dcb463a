package storage

import (
	"context"
	"errors"
	"strings"
	"time"

	logx "remindbot/pkg/logx"
)

// Store is the durable reminder set.
//
// ListByOwner and ListPendingAsOf return reminders ordered by RemindAt, then
// ID. DeleteExpired and ListPendingAsOf split the set at now: RemindAt <= now
// is expired, RemindAt > now is pending.
type Store interface {
	Insert(ctx context.Context, r Reminder) (int64, error)
	ListByOwner(ctx context.Context, owner int64) ([]Reminder, error)
	DeleteOwned(ctx context.Context, id, owner int64) (bool, error)
	DeleteByID(ctx context.Context, id int64) error
	DeleteExpired(ctx context.Context, now time.Time) (int64, error)
	ListPendingAsOf(ctx context.Context, now time.Time) ([]Reminder, error)
	Ping(ctx context.Context) error
	Close() error
}

// Open initializes the configured store.
func Open(cfg Config, log logx.Logger) (Store, error) {
	if log.IsZero() {
		log = logx.Nop()
	}
	driver := strings.ToLower(strings.TrimSpace(cfg.Driver))
	log = log.With(logx.String("comp", "storage"), logx.String("driver", driver))

	switch driver {
	case "", "sqlite", "sqlite3":
		return openSQLite(cfg, log)
	case "mysql":
		return openMySQL(cfg, log)
	case "bolt", "bbolt":
		return openBolt(cfg, log)
	default:
		return nil, errors.New("unknown storage driver: " + driver)
	}
}
