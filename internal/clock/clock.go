// Package clock provides monotonic time sources in unix seconds.
package clock

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/avast/retry-go/v4"
	"go.uber.org/zap"
)

// Clock returns the current time in unix seconds. Successive calls never go
// backwards.
type Clock interface {
	Now(ctx context.Context) (uint64, error)
}

// monotonic clamps a time source so it never returns less than a value it
// already returned.
type monotonic struct {
	mu   sync.Mutex
	last uint64
}

func (m *monotonic) clamp(ts uint64) uint64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	if ts < m.last {
		return m.last
	}
	m.last = ts
	return ts
}

// System reads the wall clock.
type System struct {
	monotonic
	now func() time.Time
}

func NewSystem() *System {
	return &System{now: time.Now}
}

func (s *System) Now(ctx context.Context) (uint64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	return s.clamp(uint64(s.now().Unix())), nil
}

// Manual is a clock moved by hand.
type Manual struct {
	mu sync.Mutex
	ts uint64
}

func NewManual(ts uint64) *Manual {
	return &Manual{ts: ts}
}

func (m *Manual) Now(context.Context) (uint64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.ts, nil
}

// Set moves the clock to ts. Earlier values are ignored.
func (m *Manual) Set(ts uint64) {
	m.mu.Lock()
	if ts > m.ts {
		m.ts = ts
	}
	m.mu.Unlock()
}

// Advance moves the clock forward by d seconds.
func (m *Manual) Advance(d uint64) {
	m.mu.Lock()
	m.ts += d
	m.mu.Unlock()
}

// HeaderSource reports the timestamp of the chain head.
type HeaderSource interface {
	LatestBlockTime(ctx context.Context) (uint64, error)
}

// Chain uses the latest block timestamp as the current time. Reorgs can move the
// head timestamp backwards; the clock holds its last value until the chain catches up.
//
// Now is called inside a ledger unit, so the RPC and every retry run while the
// pool lock is held. Worst case that is maxRetries+1 calls plus backoff doubling
// from the initial delay.
type Chain struct {
	monotonic
	source     HeaderSource
	maxRetries uint
	backoff    time.Duration
	logger     *zap.Logger
}

func NewChain(source HeaderSource, maxRetries uint, backoff time.Duration, logger *zap.Logger) *Chain {
	if logger == nil {
		logger = zap.NewNop()
	}
	if backoff <= 0 {
		backoff = 100 * time.Millisecond
	}
	return &Chain{
		source:     source,
		maxRetries: maxRetries,
		backoff:    backoff,
		logger:     logger,
	}
}

func (c *Chain) Now(ctx context.Context) (uint64, error) {
	ts, err := retry.DoWithData(
		func() (uint64, error) {
			return c.source.LatestBlockTime(ctx)
		},
		retry.Context(ctx),
		retry.Attempts(c.maxRetries+1),
		retry.Delay(c.backoff),
		retry.DelayType(retry.BackOffDelay),
		retry.LastErrorOnly(true),
		retry.OnRetry(func(n uint, err error) {
			c.logger.Warn("block time fetch failed", zap.Uint("attempt", n+1), zap.Error(err))
		}),
	)
	if err != nil {
		return 0, fmt.Errorf("latest block time: %w", err)
	}
	return c.clamp(ts), nil
}
