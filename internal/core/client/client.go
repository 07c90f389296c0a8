// Package client implements the rate-limited marketplace API client: the
// single owner of the outbound rate budget and the FIFO wait queue.
// Callers hand it logical operations; it guarantees outbound traffic never
// exceeds the configured per-second and per-day ceilings, retries
// transient failures with jittered exponential backoff, and resolves every
// dispatch exactly once.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/fulmenhq/gofulmen/logging"
	"go.uber.org/zap"

	"github.com/sellerdesk/sellerdesk/internal/core"
)

// ErrClientClosed rejects dispatches issued after Close.
var ErrClientClosed = errors.New("marketplace client is closed")

// Config carries the rate and retry policy for one marketplace account.
type Config struct {
	// Account keys persisted day-budget state.
	Account string

	PerSecond int
	PerDay    int

	Backoff BackoffPolicy
	Headers HeaderConfig

	// AttemptTimeout bounds a single attempt so one hung call cannot
	// starve the queue. Zero disables the per-attempt bound.
	AttemptTimeout time.Duration
}

// DayBudgetStore persists the day window across restarts. Optional; a nil
// store keeps the day window in memory only.
type DayBudgetStore interface {
	GetDayBudget(ctx context.Context, account string) (*core.DayBudgetState, error)
	SaveDayBudget(ctx context.Context, state *core.DayBudgetState) error
}

// Options carries the client's collaborators. All fields are optional.
type Options struct {
	Store  DayBudgetStore
	Logger *logging.Logger
	Clock  func() time.Time
}

// Client coordinates concurrent callers against the marketplace's quota.
// The budget and queue are the only shared mutable state; mu guards both.
type Client struct {
	cfg    Config
	exec   Executor
	store  DayBudgetStore
	logger *logging.Logger
	clock  func() time.Time

	mu     sync.Mutex
	budget *rateBudget
	queue  waitQueue
	timer  *time.Timer
	closed bool

	// persistMu serializes store writes, which happen outside mu so a
	// slow store never blocks dispatch. persisted is the last state
	// written, used to drop stale snapshots that arrive out of order.
	persistMu sync.Mutex
	persisted core.DayBudgetState
}

// New builds a client and, when a store is configured, restores the
// current UTC day window so a restart cannot re-spend today's quota.
func New(cfg Config, exec Executor, opts Options) *Client {
	clock := opts.Clock
	if clock == nil {
		clock = func() time.Time { return time.Now().UTC() }
	}

	c := &Client{
		cfg:    cfg,
		exec:   exec,
		store:  opts.Store,
		logger: opts.Logger,
		clock:  clock,
	}
	c.budget = newRateBudget(cfg.PerSecond, cfg.PerDay, clock())
	c.restoreDayBudget()

	return c
}

// Dispatch executes one operation under the rate budget. The call parks in
// FIFO order while the budget is exhausted, consumes budget per attempt,
// and retries retryable failures per the backoff policy. Transport-level
// failures are only retried for operations that are safe to repeat
// (Operation.RetrySafe); throttling statuses retry regardless of method.
// It returns:
//   - the result on success,
//   - *core.OperationError / *ValidationError without any retry,
//   - *RetryExhaustedError after MaxRetries retryable failures,
//   - ctx.Err() if the caller gives up while parked or sleeping. A parked
//     entry withdrawn by cancellation frees its queue slot without
//     consuming budget; a grant that raced the cancellation stays counted
//     against the window it was drawn from.
func (c *Client) Dispatch(ctx context.Context, op core.Operation) (*core.Result, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	if err := op.Validate(); err != nil {
		return nil, err
	}

	start := c.clock()
	maxAttempts := c.cfg.Backoff.retries()

	var last *ThrottledError
	for attempt := 0; attempt < maxAttempts; attempt++ {
		if err := c.acquire(ctx); err != nil {
			return nil, err
		}

		result, err := c.attempt(ctx, op)
		if err == nil {
			result.Attempts = attempt + 1
			result.Elapsed = c.clock().Sub(start)
			return result, nil
		}

		var throttled *ThrottledError
		if !errors.As(err, &throttled) {
			return nil, err
		}
		last = throttled

		if attempt+1 >= maxAttempts {
			break
		}

		delay := c.cfg.Backoff.Jittered(c.cfg.Backoff.Delay(attempt))
		if throttled.RetryAfter > delay {
			// Server hint is a floor, never shortened by jitter.
			delay = throttled.RetryAfter
		}

		if c.logger != nil {
			c.logger.Debug("retrying marketplace call",
				zap.String("path", op.Path),
				zap.Int("attempt", attempt+1),
				zap.Duration("delay", delay),
				zap.Error(throttled))
		}

		if err := sleep(ctx, delay); err != nil {
			return nil, err
		}
	}

	return nil, &RetryExhaustedError{Attempts: maxAttempts, Last: last}
}

// attempt performs one bounded execution and classifies the outcome.
func (c *Client) attempt(ctx context.Context, op core.Operation) (*core.Result, error) {
	attemptCtx := ctx
	if c.cfg.AttemptTimeout > 0 {
		var cancel context.CancelFunc
		attemptCtx, cancel = context.WithTimeout(ctx, c.cfg.AttemptTimeout)
		defer cancel()
	}

	resp, err := c.exec.Do(attemptCtx, op)
	if err != nil {
		// The caller walking away is not a marketplace failure.
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		// A transport failure is ambiguous: the request may have executed
		// remotely. Only operations safe to repeat are retried; an HTTP
		// error status (429/503/504) means the request was not executed,
		// so classifyStatus below applies to every method.
		if sig := classifyNetError(err); sig.Retryable && op.RetrySafe() {
			return nil, &ThrottledError{Err: err}
		}
		return nil, err
	}

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return decodeResult(resp), nil
	}

	sig := classifyStatus(resp.StatusCode, resp.Header, c.cfg.Headers, c.clock())
	if sig.Retryable {
		return nil, &ThrottledError{StatusCode: resp.StatusCode, RetryAfter: sig.RetryAfter}
	}

	return nil, &ValidationError{
		StatusCode: resp.StatusCode,
		Body:       resp.Body,
		Message:    remoteMessage(resp.Body),
	}
}

// acquire claims one unit of budget, parking the caller FIFO when both
// windows are spent or older callers are already waiting.
func (c *Client) acquire(ctx context.Context) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrClientClosed
	}

	now := c.clock()
	if c.queue.depth() == 0 && c.budget.available(now) {
		c.budget.consume(now)
		snapshot := c.daySnapshotLocked()
		c.mu.Unlock()
		c.persistDayBudget(snapshot)
		return nil
	}

	entry := c.queue.push(now)
	c.armTimerLocked(now)
	c.mu.Unlock()

	select {
	case <-entry.ready:
		if entry.err != nil {
			return entry.err
		}
		return nil
	case <-ctx.Done():
		c.mu.Lock()
		select {
		case <-entry.ready:
			// Grant raced the cancellation; the consumed unit stays
			// counted. Nothing to withdraw.
		default:
			c.queue.remove(entry)
		}
		c.mu.Unlock()
		return ctx.Err()
	}
}

// release runs when a window boundary passes: it grants budget to parked
// entries in FIFO order and re-arms itself while any remain.
func (c *Client) release() {
	c.mu.Lock()
	c.timer = nil
	if c.closed {
		c.mu.Unlock()
		return
	}

	now := c.clock()
	var granted []*queueEntry
	for c.budget.available(now) {
		entry := c.queue.pop()
		if entry == nil {
			break
		}
		c.budget.consume(now)
		granted = append(granted, entry)
	}

	if c.queue.depth() > 0 {
		c.armTimerLocked(now)
	}
	snapshot := c.daySnapshotLocked()
	c.mu.Unlock()

	for _, entry := range granted {
		close(entry.ready)
	}
	if len(granted) > 0 {
		c.persistDayBudget(snapshot)
	}
}

// armTimerLocked schedules the next release. Caller holds mu.
func (c *Client) armTimerLocked(now time.Time) {
	if c.timer != nil || c.closed {
		return
	}

	wait := c.budget.nextReset(now).Sub(now)
	if wait < time.Millisecond {
		wait = time.Millisecond
	}
	c.timer = time.AfterFunc(wait, c.release)
}

// QueueStats reports current queue depth and the head entry's wait time.
func (c *Client) QueueStats() core.QueueStats {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.clock()
	return core.QueueStats{
		Depth:        c.queue.depth(),
		OldestWaitMs: c.queue.oldestWait(now).Milliseconds(),
	}
}

// RateLimitInfo reports the remaining budget in both windows.
func (c *Client) RateLimitInfo() core.RateLimitInfo {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.clock()
	return core.RateLimitInfo{
		RemainingThisSecond: c.budget.remainingSecond(now),
		RemainingToday:      c.budget.remainingDay(now),
		NextResetAt:         c.budget.nextReset(now),
	}
}

// Close stops the release scheduler and rejects every parked entry.
// Dispatches already executing finish normally.
func (c *Client) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	if c.timer != nil {
		c.timer.Stop()
		c.timer = nil
	}
	c.queue.fail(ErrClientClosed)
	c.mu.Unlock()
}

func (c *Client) daySnapshotLocked() core.DayBudgetState {
	return core.DayBudgetState{
		Account:  c.cfg.Account,
		Used:     c.budget.dayUsed,
		DayStart: c.budget.dayStart,
	}
}

func (c *Client) restoreDayBudget() {
	if c.store == nil {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	state, err := c.store.GetDayBudget(ctx, c.cfg.Account)
	if err != nil {
		if c.logger != nil {
			c.logger.Warn("could not restore day budget", zap.Error(err))
		}
		return
	}
	if state == nil {
		return
	}

	c.mu.Lock()
	c.budget.restoreDay(state.Used, state.DayStart, c.clock())
	c.mu.Unlock()
}

func (c *Client) persistDayBudget(state core.DayBudgetState) {
	if c.store == nil {
		return
	}

	c.persistMu.Lock()
	defer c.persistMu.Unlock()

	// Used only moves forward within a day window; a snapshot at or below
	// the last write is stale and must not overwrite the newer count.
	if state.DayStart.Equal(c.persisted.DayStart) && state.Used <= c.persisted.Used {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := c.store.SaveDayBudget(ctx, &state); err != nil {
		if c.logger != nil {
			c.logger.Warn("could not persist day budget", zap.Error(err))
		}
		return
	}
	c.persisted = state
}

func decodeResult(resp *Response) *core.Result {
	result := &core.Result{
		StatusCode: resp.StatusCode,
		Body:       resp.Body,
	}

	trimmed := bytes.TrimSpace(resp.Body)
	if len(trimmed) > 0 && trimmed[0] == '{' {
		var parsed map[string]any
		if err := json.Unmarshal(trimmed, &parsed); err == nil {
			result.JSON = parsed
		}
	}

	return result
}

// remoteMessage pulls a human-readable message out of a JSON error body.
func remoteMessage(body []byte) string {
	trimmed := bytes.TrimSpace(body)
	if len(trimmed) == 0 || trimmed[0] != '{' {
		return ""
	}

	var payload struct {
		Message string `json:"message"`
		Error   struct {
			Message string `json:"message"`
		} `json:"error"`
	}
	if err := json.Unmarshal(trimmed, &payload); err != nil {
		return ""
	}
	if payload.Error.Message != "" {
		return payload.Error.Message
	}
	return payload.Message
}
