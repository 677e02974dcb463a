// Package logx configures remindbot's structured logging.
//
// A small value-type wrapper (logx.Logger) sits on top of zerolog to keep:
//   - Console output readable (short timestamp + short caller)
//   - File output JSON-structured
//   - An optional Telegram ops-chat sink (min-level + rate limiting)
package logx
