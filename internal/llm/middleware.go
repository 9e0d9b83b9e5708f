package llm

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Middleware decorates a Client to inject cross-cutting concerns
// (rate limiting, retries, logging).
type Middleware func(Client) Client

// Wrap applies middlewares in left-to-right order.
// Example: Wrap(inner, A, B) => A(B(inner))
func Wrap(inner Client, mws ...Middleware) Client {
	out := inner
	for i := len(mws) - 1; i >= 0; i-- {
		if mws[i] != nil {
			out = mws[i](out)
		}
	}
	return out
}

// -------- Logging --------

// Logging records model, latency, turn kind and error for every call.
func Logging(logger *zap.Logger) Middleware {
	if logger == nil {
		logger = zap.NewNop()
	}
	return func(next Client) Client {
		return &logged{next: next, log: logger}
	}
}

type logged struct {
	next Client
	log  *zap.Logger
}

func (c *logged) Name() string { return c.next.Name() }
func (c *logged) Close() error { return c.next.Close() }
func (c *logged) Complete(ctx context.Context, msgs []Message, tools []ToolSpec) (*Response, error) {
	start := time.Now()
	resp, err := c.next.Complete(ctx, msgs, tools)
	fields := []zap.Field{
		zap.String("model", c.next.Name()),
		zap.Int("messages", len(msgs)),
		zap.Int("tools", len(tools)),
		zap.Duration("latency", time.Since(start)),
	}
	if err != nil {
		c.log.Warn("llm call failed", append(fields, zap.Error(err))...)
		return nil, err
	}
	c.log.Debug("llm call", append(fields, zap.String("turn", KindOf(resp.Turn)), zap.Int("total_tokens", resp.TotalTokens))...)
	return resp, nil
}

// -------- Retry --------

// Retry retries Complete up to maxAttempts with exponential backoff
// starting at baseDelay. If context is canceled, it stops immediately.
func Retry(maxAttempts int, baseDelay time.Duration) Middleware {
	if maxAttempts < 1 {
		maxAttempts = 1
	}
	if baseDelay <= 0 {
		baseDelay = 300 * time.Millisecond
	}
	return func(next Client) Client {
		return &retrying{next: next, max: maxAttempts, base: baseDelay}
	}
}

type retrying struct {
	next Client
	max  int
	base time.Duration
}

func (r *retrying) Name() string { return r.next.Name() }
func (r *retrying) Close() error { return r.next.Close() }

func (r *retrying) Complete(ctx context.Context, msgs []Message, tools []ToolSpec) (*Response, error) {
	var last error
	for i := 0; i < r.max; i++ {
		resp, err := r.next.Complete(ctx, msgs, tools)
		if err == nil {
			return resp, nil
		}
		var pErr *PermanentError
		if errors.As(err, &pErr) {
			return nil, err
		}
		last = err
		if i == r.max-1 {
			break
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(r.base * time.Duration(1<<i)):
		}
	}
	return nil, last
}

// -------- Rate limiting --------

// RateLimit throttles calls to rps with a bucket of burst tokens. rps <= 0
// leaves the client unwrapped. Closing the returned client stops the refill.
func RateLimit(rps float64, burst int) Middleware {
	return func(next Client) Client {
		if rps <= 0 {
			return next
		}
		if burst <= 0 {
			burst = 1
		}
		c := &rateLimited{
			next:   next,
			bucket: make(chan struct{}, burst),
			done:   make(chan struct{}),
		}
		for range burst {
			c.bucket <- struct{}{}
		}
		period := time.Duration(float64(time.Second) / rps)
		go c.refill(max(period, time.Millisecond))
		return c
	}
}

type rateLimited struct {
	next   Client
	bucket chan struct{}
	done   chan struct{}
	once   sync.Once
}

func (c *rateLimited) refill(period time.Duration) {
	t := time.NewTicker(period)
	defer t.Stop()
	for {
		select {
		case <-t.C:
			select {
			case c.bucket <- struct{}{}:
			default:
			}
		case <-c.done:
			return
		}
	}
}

func (c *rateLimited) Name() string { return c.next.Name() }

func (c *rateLimited) Close() error {
	c.once.Do(func() { close(c.done) })
	return c.next.Close()
}

func (c *rateLimited) Complete(ctx context.Context, msgs []Message, tools []ToolSpec) (*Response, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-c.done:
		return nil, ErrClientClosed
	case <-c.bucket:
	}
	return c.next.Complete(ctx, msgs, tools)
}
