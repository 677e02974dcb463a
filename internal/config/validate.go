package config

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

const (
	DefaultDeliveryTimeout = 15 * time.Second
	DefaultSweepSchedule   = "@every 10m"
	DefaultSweepGrace      = time.Hour
	DefaultHTTPAddr        = "127.0.0.1:8089"
	DefaultPollTimeout     = 10 * time.Second
)

// Reminders is the typed form of RemindersConfig with defaults applied.
type Reminders struct {
	Location         *time.Location
	MaxPerOwner      int
	CreateRatePerMin int
	DeliveryTimeout  time.Duration
	SweepSchedule    string // empty = janitor disabled
	SweepGrace       time.Duration
}

// ResolveReminders parses durations and the timezone of the reminders
// section.
func ResolveReminders(rc RemindersConfig) (Reminders, error) {
	out := Reminders{
		MaxPerOwner:      rc.MaxPerOwner,
		CreateRatePerMin: rc.CreateRatePerMin,
	}
	if rc.MaxPerOwner < 0 {
		return out, errors.New("reminders.max_per_owner: must be >= 0")
	}
	if rc.CreateRatePerMin < 0 {
		return out, errors.New("reminders.create_rate_per_min: must be >= 0")
	}

	tz := strings.TrimSpace(rc.Timezone)
	if tz == "" {
		tz = "Local"
	}
	loc, err := time.LoadLocation(tz)
	if err != nil {
		return out, fmt.Errorf("reminders.timezone: %w", err)
	}
	out.Location = loc

	if out.DeliveryTimeout, err = ParseDurationOrDefault("reminders.delivery_timeout", rc.DeliveryTimeout, DefaultDeliveryTimeout); err != nil {
		return out, err
	}
	if out.SweepGrace, err = ParseDurationOrDefault("reminders.sweep_grace", rc.SweepGrace, DefaultSweepGrace); err != nil {
		return out, err
	}

	switch s := strings.TrimSpace(rc.SweepSchedule); strings.ToLower(s) {
	case "":
		out.SweepSchedule = DefaultSweepSchedule
	case "off", "disabled", "none":
		out.SweepSchedule = ""
	default:
		out.SweepSchedule = s
	}
	return out, nil
}

// ParseChatTarget parses "chatID" or "chatID:threadID".
func ParseChatTarget(s string) (chatID int64, threadID int, err error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, 0, nil
	}
	chatPart, threadPart, hasThread := strings.Cut(s, ":")
	chatID, err = strconv.ParseInt(strings.TrimSpace(chatPart), 10, 64)
	if err != nil {
		return 0, 0, fmt.Errorf("invalid chat id %q", chatPart)
	}
	if hasThread {
		threadID, err = strconv.Atoi(strings.TrimSpace(threadPart))
		if err != nil || threadID < 0 {
			return 0, 0, fmt.Errorf("invalid thread id %q", threadPart)
		}
	}
	return chatID, threadID, nil
}

// Validate checks everything that can be checked without touching the
// network or the disk.
func Validate(cfg *Config) error {
	if cfg == nil {
		return errors.New("config is nil")
	}
	if strings.TrimSpace(cfg.Telegram.Token) == "" {
		return errors.New("telegram.token is required")
	}
	if _, err := ParseDurationField("telegram.poll_timeout", cfg.Telegram.PollTimeout); err != nil {
		return err
	}
	if _, _, err := ParseChatTarget(cfg.Telegram.GroupLog); err != nil {
		return fmt.Errorf("telegram.group_log: %w", err)
	}
	if _, err := ParseDurationField("storage.busy_timeout", cfg.Storage.BusyTimeout); err != nil {
		return err
	}
	switch strings.ToLower(strings.TrimSpace(cfg.Storage.Driver)) {
	case "", "sqlite", "sqlite3", "bolt", "bbolt":
	case "mysql":
		if strings.TrimSpace(cfg.Storage.DSN) == "" {
			return errors.New("storage.dsn is required for the mysql driver")
		}
	default:
		return fmt.Errorf("storage.driver: unsupported %q", cfg.Storage.Driver)
	}
	if _, err := ResolveReminders(cfg.Reminders); err != nil {
		return err
	}
	return nil
}
