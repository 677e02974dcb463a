package storage

import (
	"bytes"
	"context"
	"encoding/binary"
	"encoding/gob"
	"errors"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"go.etcd.io/bbolt"

	logx "remindbot/pkg/logx"
)

var remindersBucket = []byte("reminders")

type boltStore struct {
	db  *bbolt.DB
	log logx.Logger
}

// boltRecord is the gob-encoded value; times are unix milliseconds like the
// SQL drivers.
type boltRecord struct {
	ID          int64
	ChatID      int64
	ThreadID    int
	Text        string
	RemindAtMS  int64
	CreatedAtMS int64
}

func openBolt(cfg Config, log logx.Logger) (Store, error) {
	path := strings.TrimSpace(cfg.Path)
	if path == "" {
		return nil, errors.New("bolt path is required")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}
	db, err := bbolt.Open(path, 0o600, &bbolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, err
	}
	err = db.Update(func(tx *bbolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(remindersBucket)
		return err
	})
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	log.Info("bolt store opened", logx.String("path", path))
	return &boltStore{db: db, log: log}, nil
}

func idKey(id int64) []byte {
	k := make([]byte, 8)
	binary.BigEndian.PutUint64(k, uint64(id))
	return k
}

func encodeRecord(rec boltRecord) ([]byte, error) {
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(rec); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func decodeRecord(data []byte) (boltRecord, error) {
	var rec boltRecord
	err := gob.NewDecoder(bytes.NewReader(data)).Decode(&rec)
	return rec, err
}

func (rec boltRecord) reminder() Reminder {
	return Reminder{
		ID:        rec.ID,
		Owner:     rec.ChatID,
		ThreadID:  rec.ThreadID,
		Text:      rec.Text,
		RemindAt:  fromMillis(rec.RemindAtMS),
		CreatedAt: fromMillis(rec.CreatedAtMS),
	}
}

func (s *boltStore) Insert(ctx context.Context, r Reminder) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	if r.CreatedAt.IsZero() {
		r.CreatedAt = time.Now()
	}
	var id int64
	err := s.db.Update(func(tx *bbolt.Tx) error {
		b := tx.Bucket(remindersBucket)
		// NextSequence is persisted with the transaction, so ids are never
		// handed out twice even after deletes.
		seq, err := b.NextSequence()
		if err != nil {
			return err
		}
		id = int64(seq)
		data, err := encodeRecord(boltRecord{
			ID:          id,
			ChatID:      r.Owner,
			ThreadID:    r.ThreadID,
			Text:        r.Text,
			RemindAtMS:  r.RemindAt.UnixMilli(),
			CreatedAtMS: r.CreatedAt.UnixMilli(),
		})
		if err != nil {
			return err
		}
		return b.Put(idKey(id), data)
	})
	if err != nil {
		return 0, err
	}
	return id, nil
}

// scan collects the records matching keep, ordered by RemindAt then ID.
func (s *boltStore) scan(ctx context.Context, keep func(boltRecord) bool) ([]Reminder, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var out []Reminder
	err := s.db.View(func(tx *bbolt.Tx) error {
		return tx.Bucket(remindersBucket).ForEach(func(k, v []byte) error {
			rec, err := decodeRecord(v)
			if err != nil {
				s.log.Warn("skipping undecodable reminder", logx.Uint64("key", binary.BigEndian.Uint64(k)), logx.Err(err))
				return nil
			}
			if keep(rec) {
				out = append(out, rec.reminder())
			}
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].RemindAt.Equal(out[j].RemindAt) {
			return out[i].RemindAt.Before(out[j].RemindAt)
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

func (s *boltStore) ListByOwner(ctx context.Context, owner int64) ([]Reminder, error) {
	return s.scan(ctx, func(rec boltRecord) bool { return rec.ChatID == owner })
}

func (s *boltStore) ListPendingAsOf(ctx context.Context, now time.Time) ([]Reminder, error) {
	ms := now.UnixMilli()
	return s.scan(ctx, func(rec boltRecord) bool { return rec.RemindAtMS > ms })
}

func (s *boltStore) DeleteOwned(ctx context.Context, id, owner int64) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	var deleted bool
	err := s.db.Update(func(tx *bbolt.Tx) error {
		b := tx.Bucket(remindersBucket)
		v := b.Get(idKey(id))
		if v == nil {
			return nil
		}
		rec, err := decodeRecord(v)
		if err != nil {
			return err
		}
		if rec.ChatID != owner {
			return nil
		}
		deleted = true
		return b.Delete(idKey(id))
	})
	return deleted, err
}

func (s *boltStore) DeleteByID(ctx context.Context, id int64) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return s.db.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket(remindersBucket).Delete(idKey(id))
	})
}

func (s *boltStore) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	ms := now.UnixMilli()
	var n int64
	err := s.db.Update(func(tx *bbolt.Tx) error {
		b := tx.Bucket(remindersBucket)
		// Deleting while iterating a cursor skips keys; collect first.
		var expired [][]byte
		err := b.ForEach(func(k, v []byte) error {
			rec, err := decodeRecord(v)
			if err != nil {
				return nil
			}
			if rec.RemindAtMS <= ms {
				expired = append(expired, append([]byte(nil), k...))
			}
			return nil
		})
		if err != nil {
			return err
		}
		for _, k := range expired {
			if err := b.Delete(k); err != nil {
				return err
			}
		}
		n = int64(len(expired))
		return nil
	})
	return n, err
}

func (s *boltStore) Ping(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return s.db.View(func(tx *bbolt.Tx) error {
		if tx.Bucket(remindersBucket) == nil {
			return ErrClosed
		}
		return nil
	})
}

func (s *boltStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}
