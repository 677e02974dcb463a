package app

import (
	"strings"

	"remindbot/internal/config"
	"remindbot/internal/observability/httpapi"
	"remindbot/internal/reminder"
	logx "remindbot/pkg/logx"
)

// mapLogConfig converts the logging section. The ops chat is left disabled
// when withOps is false so the target can be set before it is enabled.
func mapLogConfig(cfg *config.Config, withOps bool) logx.Config {
	lc := cfg.Logging
	return logx.Config{
		Level:   lc.Level,
		Console: lc.Console,
		File: logx.FileConfig{
			Enabled: lc.File.Enabled,
			Path:    lc.File.Path,
		},
		OpsChat: logx.OpsChatConfig{
			Enabled:    withOps && lc.Telegram.Enabled,
			ThreadID:   lc.Telegram.ThreadID,
			MinLevel:   lc.Telegram.MinLevel,
			RatePerSec: lc.Telegram.RatePerSec,
		},
	}
}

// applyOpsTarget points the log mirror at telegram.group_log. An empty
// value clears it.
func applyOpsTarget(logs *logx.Service, cfg *config.Config) {
	chatID, threadID, err := config.ParseChatTarget(cfg.Telegram.GroupLog)
	if err != nil {
		return
	}
	if cfg.Logging.Telegram.ThreadID != 0 {
		threadID = cfg.Logging.Telegram.ThreadID
	}
	logs.SetOpsTarget(chatID, threadID)
}

func mapLimits(r config.Reminders) reminder.Limits {
	return reminder.Limits{
		MaxPerOwner:     r.MaxPerOwner,
		DeliveryTimeout: r.DeliveryTimeout,
		SweepGrace:      r.SweepGrace,
	}
}

func mapHTTPConfig(cfg *config.Config) httpapi.Config {
	addr := strings.TrimSpace(cfg.HTTP.Addr)
	if addr == "" {
		addr = config.DefaultHTTPAddr
	}
	return httpapi.Config{Addr: addr, Token: strings.TrimSpace(cfg.HTTP.Token)}
}
