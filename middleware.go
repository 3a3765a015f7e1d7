package pojie

import (
	"context"
	"sync"
	"time"

	"github.com/Pojie/pojie-go/internal/attempt"
)

// Connector is the network-control collaborator the engine delegates to.
type Connector = attempt.Connector

// Handle identifies one in-flight connection attempt.
type Handle = attempt.Handle

// BeginFunc is the function signature for starting one connection attempt.
type BeginFunc func(ctx context.Context, target, credential string) (Handle, error)

// ConnectorMiddleware wraps a BeginFunc to provide cross-cutting concerns.
type ConnectorMiddleware func(BeginFunc) BeginFunc

// ConnectorFuncs adapts two plain functions to Connector. A nil CancelFn is a no-op.
type ConnectorFuncs struct {
	BeginFn  BeginFunc
	CancelFn func(ctx context.Context, h Handle) error
}

func (c ConnectorFuncs) Begin(ctx context.Context, target, credential string) (Handle, error) {
	return c.BeginFn(ctx, target, credential)
}

func (c ConnectorFuncs) Cancel(ctx context.Context, h Handle) error {
	if c.CancelFn == nil {
		return nil
	}
	return c.CancelFn(ctx, h)
}

type wrappedConnector struct {
	Connector
	begin BeginFunc
}

func (w *wrappedConnector) Begin(ctx context.Context, target, credential string) (Handle, error) {
	return w.begin(ctx, target, credential)
}

// wrapConnector applies mws so the first registered middleware is the outermost.
func wrapConnector(c Connector, mws []ConnectorMiddleware) Connector {
	if len(mws) == 0 {
		return c
	}
	h := BeginFunc(c.Begin)
	for i := len(mws) - 1; i >= 0; i-- {
		h = mws[i](h)
	}
	return &wrappedConnector{Connector: c, begin: h}
}

// LogAttempts logs every Begin call with its latency.
func LogAttempts(lg Logger) ConnectorMiddleware {
	return func(next BeginFunc) BeginFunc {
		return func(ctx context.Context, target, credential string) (Handle, error) {
			start := time.Now()
			h, err := next(ctx, target, credential)
			if err != nil {
				lg.Warnf("connect failed: target=%s took=%s err=%v", target, time.Since(start), err)
				return h, err
			}
			lg.Debugf("connect issued: target=%s id=%s took=%s", target, h.ID, time.Since(start))
			return h, nil
		}
	}
}

// Throttle keeps at least min between the starts of consecutive Begin calls.
// Waiting honours ctx.
func Throttle(min time.Duration) ConnectorMiddleware {
	var mu sync.Mutex
	var last time.Time
	return func(next BeginFunc) BeginFunc {
		return func(ctx context.Context, target, credential string) (Handle, error) {
			mu.Lock()
			wait := time.Until(last.Add(min))
			if wait < 0 {
				wait = 0
			}
			last = time.Now().Add(wait)
			mu.Unlock()
			if wait > 0 {
				t := time.NewTimer(wait)
				select {
				case <-ctx.Done():
					t.Stop()
					return Handle{}, ctx.Err()
				case <-t.C:
				}
			}
			return next(ctx, target, credential)
		}
	}
}
