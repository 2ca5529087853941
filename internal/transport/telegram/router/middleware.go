package router

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"time"

	logx "github.com/shcheglovnd/us-visa-scheduler-telegram/pkg/logx"
)

// slowCommand is the duration above which a successful command logs at INFO.
const slowCommand = 750 * time.Millisecond

type HandlerFunc func(ctx context.Context, req *Request) error

type Middleware func(next HandlerFunc) HandlerFunc

// wrap applies m outermost first.
func wrap(h HandlerFunc, m ...Middleware) HandlerFunc {
	for i := len(m) - 1; i >= 0; i-- {
		h = m[i](h)
	}
	return h
}

// withReplyOnError tells the chat a command failed. Handlers only reply on success.
func withReplyOnError() Middleware {
	return func(next HandlerFunc) HandlerFunc {
		return func(ctx context.Context, req *Request) error {
			err := next(ctx, req)
			if err == nil {
				return nil
			}
			msg := "command failed (ref " + req.ReqID + ")"
			if errors.Is(err, context.DeadlineExceeded) {
				msg = "command timed out (ref " + req.ReqID + ")"
			}
			// The handler ctx may be spent already.
			rctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
			defer cancel()
			_ = req.Reply(rctx, msg)
			return err
		}
	}
}

func withRecover() Middleware {
	return func(next HandlerFunc) HandlerFunc {
		return func(ctx context.Context, req *Request) (err error) {
			defer func() {
				if r := recover(); r != nil {
					req.Logger.Error("command panicked",
						logx.Any("panic", r),
						logx.String("stack", string(debug.Stack())),
					)
					err = fmt.Errorf("/%s panicked: %v", req.Command, r)
				}
			}()
			return next(ctx, req)
		}
	}
}

func withLog() Middleware {
	return func(next HandlerFunc) HandlerFunc {
		return func(ctx context.Context, req *Request) error {
			start := time.Now()
			err := next(ctx, req)
			d := time.Since(start)
			dur := logx.Duration("dur", d)
			switch {
			case err != nil:
				req.Logger.Warn("command failed", dur, logx.Err(err))
			case d >= slowCommand:
				req.Logger.Info("command ok", dur)
			default:
				req.Logger.Debug("command ok", dur)
			}
			return err
		}
	}
}

func withTimeout(d time.Duration) Middleware {
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
