package server

import (
	"context"
	"sync"
)

// requestLog accumulates access-log fields over the life of one request and
// is flushed as a single log line when the response is written. It is
// carried in the request context, never in a global.
type requestLog struct {
	mu        sync.Mutex
	requestID string
	fields    []interface{}
}

type requestLogKey struct{}

func withRequestLog(ctx context.Context, requestID string) (context.Context, *requestLog) {
	rl := &requestLog{requestID: requestID}
	return context.WithValue(ctx, requestLogKey{}, rl), rl
}

func requestLogFrom(ctx context.Context) *requestLog {
	rl, _ := ctx.Value(requestLogKey{}).(*requestLog)
	return rl
}

// QueueLogFields attaches slog-style key-value pairs to the request's
// access-log line. Outside a request context it is a no-op.
func QueueLogFields(ctx context.Context, args ...interface{}) {
	rl := requestLogFrom(ctx)
	if rl == nil {
		return
	}
	rl.mu.Lock()
	rl.fields = append(rl.fields, args...)
	rl.mu.Unlock()
}

// RequestID returns the request id assigned by the middleware, or "" outside
// a request context.
func RequestID(ctx context.Context) string {
	rl := requestLogFrom(ctx)
	if rl == nil {
		return ""
	}
	return rl.requestID
}

func (rl *requestLog) snapshot() []interface{} {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	out := make([]interface{}, len(rl.fields))
	copy(out, rl.fields)
	return out
}
