package router

import (
	"context"
	"fmt"
	"runtime/debug"
	"time"

	logx "remindbot/pkg/logx"
)

type HandlerFunc func(ctx context.Context, req *Request) error

type Middleware func(next HandlerFunc) HandlerFunc

// Chain wraps h so that m[0] runs first.
func Chain(h HandlerFunc, m ...Middleware) HandlerFunc {
	for i := len(m) - 1; i >= 0; i-- {
		h = m[i](h)
	}
	return h
}

func MWTimeout(d time.Duration) Middleware {
	return func(next HandlerFunc) HandlerFunc {
		if d <= 0 {
			return next
		}
		return func(ctx context.Context, req *Request) error {
			cctx, cancel := context.WithTimeout(ctx, d)
			defer cancel()
			return next(cctx, req)
		}
	}
}

// MWRecover turns a handler panic into an error and a generic reply, so a
// bad command never takes a worker down silently.
func MWRecover(reply func(ctx context.Context, req *Request)) Middleware {
	return func(next HandlerFunc) HandlerFunc {
		return func(ctx context.Context, req *Request) (err error) {
			defer func() {
				if r := recover(); r != nil {
					req.Logger.Error("command panicked",
						logx.Any("panic", r),
						logx.String("stack", string(debug.Stack())),
					)
					err = fmt.Errorf("panic in /%s: %v", req.Command, r)
					if reply != nil {
						reply(ctx, req)
					}
				}
			}()
			return next(ctx, req)
		}
	}
}

// MWRateLimit runs denied instead of next when allow rejects the chat.
func MWRateLimit(allow func(chatID int64) bool, denied HandlerFunc) Middleware {
	return func(next HandlerFunc) HandlerFunc {
		return func(ctx context.Context, req *Request) error {
			if !allow(req.Chat.ChatID) {
				req.Logger.Debug("command rate limited")
				return denied(ctx, req)
			}
			return next(ctx, req)
		}
	}
}

// MWRequestLog logs every command once with its outcome and latency.
func MWRequestLog(slow time.Duration) Middleware {
	return func(next HandlerFunc) HandlerFunc {
		return func(ctx context.Context, req *Request) error {
			start := time.Now()
			err := next(ctx, req)
			took := time.Since(start)

			fields := []logx.Field{logx.Duration("took", took), logx.Int("args_len", len(req.Args))}
			switch {
			case err != nil:
				req.Logger.Warn("command failed", append(fields, logx.Err(err))...)
			case took >= slow:
				req.Logger.Info("command ok (slow)", fields...)
			default:
				req.Logger.Debug("command ok", fields...)
			}
			return err
		}
	}
}
