package storage

import (
	"context"
	"database/sql"
	"embed"
	"strings"
	"time"

	logx "remindbot/pkg/logx"
)

//go:embed migrations_sqlite.sql migrations_mysql.sql
var migrationsFS embed.FS

// sqlStore implements Store over database/sql. sqlite and mysql share the
// queries; only opening and the migration file differ.
type sqlStore struct {
	db  *sql.DB
	log logx.Logger
}

func (s *sqlStore) migrate(ctx context.Context, file string) error {
	b, err := migrationsFS.ReadFile(file)
	if err != nil {
		return err
	}
	// mysql rejects multi-statement Exec unless the DSN opts in.
	for _, stmt := range strings.Split(string(b), ";") {
		if strings.TrimSpace(stmt) == "" {
			continue
		}
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return err
		}
	}
	return nil
}

func (s *sqlStore) Insert(ctx context.Context, r Reminder) (int64, error) {
	if r.CreatedAt.IsZero() {
		r.CreatedAt = time.Now()
	}
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO reminders(chat_id, thread_id, text, remind_at_ms, created_at_ms) VALUES(?,?,?,?,?)`,
		r.Owner, r.ThreadID, r.Text, r.RemindAt.UnixMilli(), r.CreatedAt.UnixMilli(),
	)
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

const selectReminder = `SELECT id, chat_id, thread_id, text, remind_at_ms, created_at_ms FROM reminders`

func (s *sqlStore) query(ctx context.Context, q string, args ...any) ([]Reminder, error) {
	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Reminder
	for rows.Next() {
		var (
			r                 Reminder
			remindAt, created int64
		)
		if err := rows.Scan(&r.ID, &r.Owner, &r.ThreadID, &r.Text, &remindAt, &created); err != nil {
			return nil, err
		}
		r.RemindAt = fromMillis(remindAt)
		r.CreatedAt = fromMillis(created)
		out = append(out, r)
	}
	return out, rows.Err()
}

func (s *sqlStore) ListByOwner(ctx context.Context, owner int64) ([]Reminder, error) {
	return s.query(ctx, selectReminder+` WHERE chat_id = ? ORDER BY remind_at_ms, id`, owner)
}

func (s *sqlStore) ListPendingAsOf(ctx context.Context, now time.Time) ([]Reminder, error) {
	return s.query(ctx, selectReminder+` WHERE remind_at_ms > ? ORDER BY remind_at_ms, id`, now.UnixMilli())
}

func (s *sqlStore) DeleteOwned(ctx context.Context, id, owner int64) (bool, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM reminders WHERE id = ? AND chat_id = ?`, id, owner)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n > 0, err
}

func (s *sqlStore) DeleteByID(ctx context.Context, id int64) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM reminders WHERE id = ?`, id)
	return err
}

func (s *sqlStore) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM reminders WHERE remind_at_ms <= ?`, now.UnixMilli())
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func (s *sqlStore) Ping(ctx context.Context) error { return s.db.PingContext(ctx) }

func (s *sqlStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}
