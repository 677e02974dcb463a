package reminder

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"remindbot/internal/storage"
)

var errBoom = errors.New("boom")

// memStore is an in-memory storage.Store with per-operation failure
// injection.
type memStore struct {
	mu     sync.Mutex
	nextID int64
	rows   map[int64]storage.Reminder

	failInsert, failList, failDeleteOwned, failDeleteByID, failDeleteExpired bool
	deleteByIDCalls                                                           int
}

func newMemStore() *memStore { return &memStore{rows: map[int64]storage.Reminder{}} }

func (m *memStore) Insert(ctx context.Context, r storage.Reminder) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failInsert {
		return 0, errBoom
	}
	m.nextID++
	r.ID = m.nextID
	m.rows[r.ID] = r
	return r.ID, nil
}

func (m *memStore) sorted(keep func(storage.Reminder) bool) []storage.Reminder {
	var out []storage.Reminder
	for _, r := range m.rows {
		if keep(r) {
			out = append(out, r)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].RemindAt.Equal(out[j].RemindAt) {
			return out[i].RemindAt.Before(out[j].RemindAt)
		}
		return out[i].ID < out[j].ID
	})
	return out
}

func (m *memStore) ListByOwner(ctx context.Context, owner int64) ([]storage.Reminder, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failList {
		return nil, errBoom
	}
	return m.sorted(func(r storage.Reminder) bool { return r.Owner == owner }), nil
}

func (m *memStore) DeleteOwned(ctx context.Context, id, owner int64) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failDeleteOwned {
		return false, errBoom
	}
	r, ok := m.rows[id]
	if !ok || r.Owner != owner {
		return false, nil
	}
	delete(m.rows, id)
	return true, nil
}

func (m *memStore) DeleteByID(ctx context.Context, id int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.deleteByIDCalls++
	if m.failDeleteByID {
		return errBoom
	}
	delete(m.rows, id)
	return nil
}

func (m *memStore) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failDeleteExpired {
		return 0, errBoom
	}
	var n int64
	for id, r := range m.rows {
		if !r.RemindAt.After(now) {
			delete(m.rows, id)
			n++
		}
	}
	return n, nil
}

func (m *memStore) ListPendingAsOf(ctx context.Context, now time.Time) ([]storage.Reminder, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failList {
		return nil, errBoom
	}
	return m.sorted(func(r storage.Reminder) bool { return r.RemindAt.After(now) }), nil
}

func (m *memStore) Ping(ctx context.Context) error { return nil }
func (m *memStore) Close() error                   { return nil }

func (m *memStore) has(id int64) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.rows[id]
	return ok
}

func (m *memStore) len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.rows)
}

func (m *memStore) set(fn func(m *memStore)) {
	m.mu.Lock()
	fn(m)
	m.mu.Unlock()
}

// recorder is a Deliverer that records every call.
type recorder struct {
	mu   sync.Mutex
	got  []storage.Reminder
	fail bool
}

func (r *recorder) Deliver(ctx context.Context, rem storage.Reminder) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.got = append(r.got, rem)
	if r.fail {
		return errBoom
	}
	return nil
}

func (r *recorder) calls() []storage.Reminder {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]storage.Reminder(nil), r.got...)
}
