// Package storage persists reminders.
//
// Drivers:
//   - "sqlite" (default): modernc.org/sqlite, WAL, one writer connection
//   - "mysql": github.com/go-sql-driver/mysql
//   - "bolt": go.etcd.io/bbolt, gob-encoded records keyed by big-endian id
//
// Every mutation is a single atomic statement (or one bolt transaction).
// Ids are assigned by the store and never reused.
package storage
