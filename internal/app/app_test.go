package app

import (
	"context"
	"testing"
	"time"

	"remindbot/internal/config"
	"remindbot/internal/reminder"
	"remindbot/internal/storage"
	"remindbot/internal/transport/telegram/router"
	logx "remindbot/pkg/logx"
)

func TestMapStorageConfig(t *testing.T) {
	tests := []struct {
		name    string
		in      config.StorageConfig
		want    storage.Config
		wantErr bool
	}{
		{"default sqlite", config.StorageConfig{}, storage.Config{Driver: "sqlite", Path: defaultSQLitePath, BusyTimeout: 5 * time.Second}, false},
		{"sqlite3 alias", config.StorageConfig{Driver: "SQLite3", Path: "x.db", BusyTimeout: "2s"}, storage.Config{Driver: "sqlite", Path: "x.db", BusyTimeout: 2 * time.Second}, false},
		{"bolt", config.StorageConfig{Driver: "bbolt", Path: "r.bolt"}, storage.Config{Driver: "bolt", Path: "r.bolt"}, false},
		{"mysql", config.StorageConfig{Driver: "mysql", DSN: "u:p@tcp(db)/r"}, storage.Config{Driver: "mysql", DSN: "u:p@tcp(db)/r"}, false},
		{"mysql without dsn", config.StorageConfig{Driver: "mysql"}, storage.Config{}, true},
		{"bad busy timeout", config.StorageConfig{BusyTimeout: "soon"}, storage.Config{}, true},
		{"unknown", config.StorageConfig{Driver: "redis"}, storage.Config{}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := mapStorageConfig(&config.Config{Storage: tt.in})
			if (err != nil) != tt.wantErr {
				t.Fatalf("err = %v, wantErr %v", err, tt.wantErr)
			}
			if got != tt.want {
				t.Fatalf("got %+v, want %+v", got, tt.want)
			}
		})
	}
}

func TestMapLogConfigHoldsOpsUntilTargetSet(t *testing.T) {
	cfg := &config.Config{Logging: config.LoggingConfig{
		Level:    "debug",
		Telegram: config.LoggingTelegram{Enabled: true, ThreadID: 7, RatePerSec: 2},
	}}
	if mapLogConfig(cfg, false).OpsChat.Enabled {
		t.Fatal("ops chat enabled during bootstrap")
	}
	lc := mapLogConfig(cfg, true)
	if !lc.OpsChat.Enabled || lc.OpsChat.ThreadID != 7 || lc.Level != "debug" {
		t.Fatalf("got %+v", lc)
	}
}

func TestMapHTTPConfigDefaultsAddr(t *testing.T) {
	if got := mapHTTPConfig(&config.Config{}).Addr; got != config.DefaultHTTPAddr {
		t.Fatalf("addr = %q", got)
	}
}

func TestApplyConfigUpdatesLimits(t *testing.T) {
	store, err := storage.Open(storage.Config{Driver: "sqlite", Path: ":memory:"}, logx.Nop())
	if err != nil {
		t.Fatal(err)
	}
	defer store.Close()

	logs, _ := logx.New(logx.Config{Level: "error"}, nil)
	defer logs.Close()

	rem := reminder.NewService(store, reminder.DelivererFunc(func(context.Context, storage.Reminder) error { return nil }), reminder.Options{})
	a := &App{
		log:     logx.Nop(),
		logs:    logs,
		rem:     rem,
		router:  router.New(router.Options{Service: rem}),
		janitor: reminder.NewJanitor(rem, logx.Nop()),
	}

	oldCfg := &config.Config{}
	newCfg := &config.Config{Reminders: config.RemindersConfig{MaxPerOwner: 4, DeliveryTimeout: "3s", SweepGrace: "2h"}}
	a.applyConfig(oldCfg, newCfg)

	got := rem.Limits()
	if got.MaxPerOwner != 4 || got.DeliveryTimeout != 3*time.Second || got.SweepGrace != 2*time.Hour {
		t.Fatalf("limits = %+v", got)
	}
	if a.remCfg.MaxPerOwner != 4 {
		t.Fatalf("remCfg not recorded: %+v", a.remCfg)
	}

	// invalid section keeps the previous limits
	bad := &config.Config{Reminders: config.RemindersConfig{MaxPerOwner: 9, Timezone: "Nowhere/Atlantis"}}
	a.applyConfig(newCfg, bad)
	if rem.Limits().MaxPerOwner != 4 {
		t.Fatal("invalid config was applied")
	}
}
