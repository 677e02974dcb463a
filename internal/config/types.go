package config

type Config struct {
	Telegram  TelegramConfig  `json:"telegram"`
	Logging   LoggingConfig   `json:"logging"`
	Storage   StorageConfig   `json:"storage"`
	Reminders RemindersConfig `json:"reminders"`
	HTTP      HTTPConfig      `json:"http,omitempty"`
}

type TelegramConfig struct {
	Token string `json:"token"`
	// GroupLog is the chat id ("-100123" or "-100123:45" for a forum topic)
	// receiving mirrored warnings when logging.telegram is enabled.
	GroupLog string `json:"group_log"`
	// PollTimeout is a Go duration string (e.g. "10s", "2m").
	PollTimeout string `json:"poll_timeout"`
}

type LoggingConfig struct {
	Level    string          `json:"level"`
	Console  bool            `json:"console"`
	File     LoggingFile     `json:"file"`
	Telegram LoggingTelegram `json:"telegram"`
}

type LoggingFile struct {
	Enabled bool   `json:"enabled"`
	Path    string `json:"path"`
}

type LoggingTelegram struct {
	Enabled    bool   `json:"enabled"`
	ThreadID   int    `json:"thread_id"`
	MinLevel   string `json:"min_level"`
	RatePerSec int    `json:"rate_per_sec"`
}

// StorageConfig selects the reminder store.
//
// Example:
//
//	"storage": { "driver": "sqlite", "path": "./data/reminders.db" }
//	"storage": { "driver": "mysql", "dsn": "bot:pw@tcp(127.0.0.1:3306)/remindbot" }
//	"storage": { "driver": "bolt", "path": "./data/reminders.bolt" }
type StorageConfig struct {
	Driver      string `json:"driver"`
	Path        string `json:"path,omitempty"`
	DSN         string `json:"dsn,omitempty"`          // mysql only (do not log)
	BusyTimeout string `json:"busy_timeout,omitempty"` // Go duration string (sqlite)
}

// RemindersConfig tunes the reminder service.
//
// Defaults (when fields are omitted/zero):
//   - timezone: "Local"
//   - max_per_owner: 0 (unlimited)
//   - create_rate_per_min: 0 (unlimited)
//   - delivery_timeout: "15s"
//   - sweep_schedule: "@every 10m" ("off" disables)
//   - sweep_grace: "1h"
type RemindersConfig struct {
	Timezone         string `json:"timezone,omitempty"`
	MaxPerOwner      int    `json:"max_per_owner,omitempty"`
	CreateRatePerMin int    `json:"create_rate_per_min,omitempty"`
	DeliveryTimeout  string `json:"delivery_timeout,omitempty"`
	SweepSchedule    string `json:"sweep_schedule,omitempty"`
	SweepGrace       string `json:"sweep_grace,omitempty"`
}

// HTTPConfig controls the optional operational HTTP server.
//
// Prefer binding to localhost; the debug endpoints expose reminder counters
// and goroutine state.
type HTTPConfig struct {
	Enabled bool   `json:"enabled"`
	Addr    string `json:"addr,omitempty"` // default: "127.0.0.1:8089"
	// Token is required when Addr is not a loopback address.
	Token string `json:"token,omitempty"`
}
