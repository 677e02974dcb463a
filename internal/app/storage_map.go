package app

import (
	"fmt"
	"strings"
	"time"

	"remindbot/internal/config"
	"remindbot/internal/storage"
)

const defaultSQLitePath = "./data/reminders.db"

func mapStorageConfig(cfg *config.Config) (storage.Config, error) {
	if cfg == nil {
		return storage.Config{}, fmt.Errorf("config is nil")
	}
	sc := cfg.Storage
	driver := strings.ToLower(strings.TrimSpace(sc.Driver))
	path := strings.TrimSpace(sc.Path)

	switch driver {
	case "", "sqlite", "sqlite3":
		if path == "" {
			path = defaultSQLitePath
		}
		busy, err := config.ParseDurationOrDefault("storage.busy_timeout", sc.BusyTimeout, 5*time.Second)
		if err != nil {
			return storage.Config{}, err
		}
		return storage.Config{Driver: "sqlite", Path: path, BusyTimeout: busy}, nil
	case "bolt", "bbolt":
		if path == "" {
			path = "./data/reminders.bolt"
		}
		return storage.Config{Driver: "bolt", Path: path}, nil
	case "mysql":
		dsn := strings.TrimSpace(sc.DSN)
		if dsn == "" {
			return storage.Config{}, fmt.Errorf("storage.dsn is required when storage.driver=mysql")
		}
		return storage.Config{Driver: "mysql", DSN: dsn}, nil
	default:
		return storage.Config{}, fmt.Errorf("unknown storage.driver: %s", sc.Driver)
	}
}
