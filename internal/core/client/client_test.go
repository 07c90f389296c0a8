package client

import (
	"context"
	"net"
	"net/http"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/sellerdesk/sellerdesk/internal/core"
)

type stubCall struct {
	At   time.Time
	Path string
}

// stubExecutor scripts attempt outcomes and records execution order.
type stubExecutor struct {
	mu    sync.Mutex
	calls []stubCall
	fn    func(attempt int, op core.Operation) (*Response, error)
}

func (s *stubExecutor) Do(ctx context.Context, op core.Operation) (*Response, error) {
	s.mu.Lock()
	attempt := len(s.calls)
	s.calls = append(s.calls, stubCall{At: time.Now(), Path: op.Path})
	s.mu.Unlock()

	if s.fn != nil {
		return s.fn(attempt, op)
	}
	return &Response{StatusCode: http.StatusOK, Header: http.Header{}, Body: []byte(`{"ok":true}`)}, nil
}

func (s *stubExecutor) recorded() []stubCall {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]stubCall, len(s.calls))
	copy(out, s.calls)
	return out
}

func fastBackoff(maxRetries int) BackoffPolicy {
	return BackoffPolicy{
		Initial:    time.Millisecond,
		Max:        5 * time.Millisecond,
		Factor:     2.0,
		MaxRetries: maxRetries,
	}
}

func testConfig() Config {
	return Config{
		Account:   "test",
		PerSecond: 100,
		PerDay:    100000,
		Backoff:   fastBackoff(3),
		Headers:   DefaultHeaders(),
	}
}

func getOp(path string) core.Operation {
	return core.Operation{Method: http.MethodGet, Path: path}
}

func TestDispatchSuccess(t *testing.T) {
	exec := &stubExecutor{}
	c := New(testConfig(), exec, Options{})
	defer c.Close()

	result, err := c.Dispatch(context.Background(), getOp("/listings"))
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, result.StatusCode)
	require.Equal(t, 1, result.Attempts)
	require.Equal(t, true, result.JSON["ok"])
	require.Len(t, exec.recorded(), 1)
}

func TestDispatchRejectsMalformedOperation(t *testing.T) {
	exec := &stubExecutor{}
	c := New(testConfig(), exec, Options{})
	defer c.Close()

	_, err := c.Dispatch(context.Background(), core.Operation{Method: "FETCH", Path: "/x"})
	var opErr *core.OperationError
	require.ErrorAs(t, err, &opErr)

	_, err = c.Dispatch(context.Background(), core.Operation{Method: "GET", Path: "listings"})
	require.ErrorAs(t, err, &opErr)

	// Malformed operations never reach the executor or consume budget.
	require.Empty(t, exec.recorded())
	require.Equal(t, 100, c.RateLimitInfo().RemainingThisSecond)
}

// Eight instant calls against a 5/second ceiling: five run in the first
// window, three park and run FIFO in the next window.
func TestDispatchBurstQueuesFIFO(t *testing.T) {
	exec := &stubExecutor{}
	cfg := testConfig()
	cfg.PerSecond = 5
	c := New(cfg, exec, Options{})
	defer c.Close()

	// Align to a bucket boundary so the whole burst lands in one window.
	boundary := time.Now().Truncate(time.Second).Add(time.Second)
	time.Sleep(time.Until(boundary.Add(50 * time.Millisecond)))

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := c.Dispatch(context.Background(), getOp("/op/"+strconv.Itoa(i)))
			require.NoError(t, err)
		}(i)
		// Stagger so enqueue order is deterministic.
		time.Sleep(5 * time.Millisecond)
	}
	wg.Wait()

	calls := exec.recorded()
	require.Len(t, calls, 8)

	window := boundary.Add(time.Second)
	firstWindow := 0
	var queued []stubCall
	for _, call := range calls {
		if call.At.Before(window) {
			firstWindow++
		} else {
			queued = append(queued, call)
		}
	}
	require.Equal(t, 5, firstWindow)
	require.Len(t, queued, 3)

	// The queued three are the last three issued, released in FIFO order.
	require.Equal(t, []string{"/op/5", "/op/6", "/op/7"},
		[]string{queued[0].Path, queued[1].Path, queued[2].Path})
}

func TestDispatchHonorsRetryAfterHint(t *testing.T) {
	exec := &stubExecutor{}
	exec.fn = func(attempt int, op core.Operation) (*Response, error) {
		if attempt == 0 {
			header := http.Header{}
			header.Set("Retry-After", "2")
			return &Response{StatusCode: http.StatusTooManyRequests, Header: header}, nil
		}
		return &Response{StatusCode: http.StatusOK, Header: http.Header{}, Body: []byte(`{}`)}, nil
	}

	c := New(testConfig(), exec, Options{})
	defer c.Close()

	start := time.Now()
	result, err := c.Dispatch(context.Background(), getOp("/orders"))
	require.NoError(t, err)
	require.Equal(t, 2, result.Attempts)
	require.GreaterOrEqual(t, time.Since(start), 2*time.Second)
	require.Len(t, exec.recorded(), 2)
}

func TestDispatchValidationFailureNotRetried(t *testing.T) {
	exec := &stubExecutor{}
	exec.fn = func(attempt int, op core.Operation) (*Response, error) {
		return &Response{
			StatusCode: http.StatusNotFound,
			Header:     http.Header{},
			Body:       []byte(`{"error":{"message":"listing not found"}}`),
		}, nil
	}

	c := New(testConfig(), exec, Options{})
	defer c.Close()

	_, err := c.Dispatch(context.Background(), getOp("/listings/42"))

	var validation *ValidationError
	require.ErrorAs(t, err, &validation)
	require.Equal(t, http.StatusNotFound, validation.StatusCode)
	require.Equal(t, "listing not found", validation.Message)
	require.Len(t, exec.recorded(), 1, "validation failures get exactly one attempt")
}

func TestDispatchRetryExhausted(t *testing.T) {
	exec := &stubExecutor{}
	exec.fn = func(attempt int, op core.Operation) (*Response, error) {
		return &Response{StatusCode: http.StatusServiceUnavailable, Header: http.Header{}}, nil
	}

	c := New(testConfig(), exec, Options{})
	defer c.Close()

	_, err := c.Dispatch(context.Background(), getOp("/inventory"))

	var exhausted *RetryExhaustedError
	require.ErrorAs(t, err, &exhausted)
	require.Equal(t, 3, exhausted.Attempts)
	require.Len(t, exec.recorded(), 3)

	var throttled *ThrottledError
	require.ErrorAs(t, exhausted.Last, &throttled)
	require.Equal(t, http.StatusServiceUnavailable, throttled.StatusCode)
}

func TestRateLimitInfoRoundTrip(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	var mu sync.Mutex
	clock := func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		return now
	}

	exec := &stubExecutor{}
	cfg := testConfig()
	cfg.PerSecond = 3
	c := New(cfg, exec, Options{Clock: clock})
	defer c.Close()

	for i := 0; i < 3; i++ {
		_, err := c.Dispatch(context.Background(), getOp("/listings"))
		require.NoError(t, err)
	}

	info := c.RateLimitInfo()
	require.Equal(t, 0, info.RemainingThisSecond)
	require.Equal(t, cfg.PerDay-3, info.RemainingToday)
	require.Equal(t, now.Add(time.Second), info.NextResetAt)

	mu.Lock()
	now = now.Add(1100 * time.Millisecond)
	mu.Unlock()

	info = c.RateLimitInfo()
	require.Equal(t, 3, info.RemainingThisSecond)
	require.Equal(t, cfg.PerDay-3, info.RemainingToday)
}

func TestDispatchDayCeilingParksAndCancels(t *testing.T) {
	exec := &stubExecutor{}
	cfg := testConfig()
	cfg.PerDay = 1
	c := New(cfg, exec, Options{})
	defer c.Close()

	_, err := c.Dispatch(context.Background(), getOp("/listings"))
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() {
		_, err := c.Dispatch(ctx, getOp("/orders"))
		errCh <- err
	}()

	require.Eventually(t, func() bool {
		return c.QueueStats().Depth == 1
	}, time.Second, 5*time.Millisecond)

	cancel()
	require.ErrorIs(t, <-errCh, context.Canceled)

	// Withdrawing a parked call frees its queue slot without touching
	// the budget.
	require.Equal(t, 0, c.QueueStats().Depth)
	require.Equal(t, 0, c.RateLimitInfo().RemainingToday)
	require.Len(t, exec.recorded(), 1)
}

func TestCloseRejectsParkedAndNewCalls(t *testing.T) {
	exec := &stubExecutor{}
	cfg := testConfig()
	cfg.PerDay = 1
	c := New(cfg, exec, Options{})

	_, err := c.Dispatch(context.Background(), getOp("/listings"))
	require.NoError(t, err)

	errCh := make(chan error, 1)
	go func() {
		_, err := c.Dispatch(context.Background(), getOp("/orders"))
		errCh <- err
	}()

	require.Eventually(t, func() bool {
		return c.QueueStats().Depth == 1
	}, time.Second, 5*time.Millisecond)

	c.Close()
	require.ErrorIs(t, <-errCh, ErrClientClosed)

	_, err = c.Dispatch(context.Background(), getOp("/listings"))
	require.ErrorIs(t, err, ErrClientClosed)
}

type memoryDayStore struct {
	mu    sync.Mutex
	state map[string]core.DayBudgetState
}

func (m *memoryDayStore) GetDayBudget(ctx context.Context, account string) (*core.DayBudgetState, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if state, ok := m.state[account]; ok {
		copied := state
		return &copied, nil
	}
	return nil, nil
}

func (m *memoryDayStore) SaveDayBudget(ctx context.Context, state *core.DayBudgetState) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.state == nil {
		m.state = make(map[string]core.DayBudgetState)
	}
	m.state[state.Account] = *state
	return nil
}

func TestDayBudgetSurvivesRestart(t *testing.T) {
	store := &memoryDayStore{}
	exec := &stubExecutor{}
	cfg := testConfig()

	c := New(cfg, exec, Options{Store: store})
	for i := 0; i < 4; i++ {
		_, err := c.Dispatch(context.Background(), getOp("/listings"))
		require.NoError(t, err)
	}
	c.Close()

	restarted := New(cfg, exec, Options{Store: store})
	defer restarted.Close()

	require.Equal(t, cfg.PerDay-4, restarted.RateLimitInfo().RemainingToday)
}

type recordingDayStore struct {
	mu     sync.Mutex
	states []core.DayBudgetState
}

func (r *recordingDayStore) GetDayBudget(ctx context.Context, account string) (*core.DayBudgetState, error) {
	return nil, nil
}

func (r *recordingDayStore) SaveDayBudget(ctx context.Context, state *core.DayBudgetState) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.states = append(r.states, *state)
	return nil
}

func (r *recordingDayStore) saved() []core.DayBudgetState {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]core.DayBudgetState, len(r.states))
	copy(out, r.states)
	return out
}

// Snapshots are written outside the dispatch lock, so two concurrent
// acquires can hand them to the store out of order. A stale lower count
// must never overwrite a newer one, or a crash-restart re-spends quota.
func TestPersistDayBudgetDropsStaleSnapshots(t *testing.T) {
	store := &recordingDayStore{}
	c := New(testConfig(), &stubExecutor{}, Options{Store: store})
	defer c.Close()

	day := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
	c.persistDayBudget(core.DayBudgetState{Account: "test", Used: 5, DayStart: day})
	c.persistDayBudget(core.DayBudgetState{Account: "test", Used: 3, DayStart: day})
	c.persistDayBudget(core.DayBudgetState{Account: "test", Used: 5, DayStart: day})
	c.persistDayBudget(core.DayBudgetState{Account: "test", Used: 6, DayStart: day})

	saved := store.saved()
	require.Len(t, saved, 2)
	require.Equal(t, 5, saved[0].Used)
	require.Equal(t, 6, saved[1].Used)

	// A fresh day starts over; its lower count is not stale.
	nextDay := day.Add(24 * time.Hour)
	c.persistDayBudget(core.DayBudgetState{Account: "test", Used: 1, DayStart: nextDay})

	saved = store.saved()
	require.Equal(t, 1, saved[len(saved)-1].Used)
	require.Equal(t, nextDay, saved[len(saved)-1].DayStart)
}

func TestDispatchAttemptTimeout(t *testing.T) {
	exec := &stubExecutor{}
	exec.fn = func(attempt int, op core.Operation) (*Response, error) {
		return nil, context.DeadlineExceeded
	}

	cfg := testConfig()
	cfg.Backoff = fastBackoff(2)
	cfg.AttemptTimeout = 10 * time.Millisecond
	c := New(cfg, exec, Options{})
	defer c.Close()

	_, err := c.Dispatch(context.Background(), getOp("/slow"))

	var exhausted *RetryExhaustedError
	require.ErrorAs(t, err, &exhausted)
	require.Equal(t, 2, exhausted.Attempts)
}

func TestDispatchNetworkFailureWriteNotRetried(t *testing.T) {
	netErr := &net.OpError{Op: "read", Net: "tcp", Err: context.DeadlineExceeded}
	exec := &stubExecutor{}
	exec.fn = func(attempt int, op core.Operation) (*Response, error) {
		return nil, netErr
	}

	c := New(testConfig(), exec, Options{})
	defer c.Close()

	// The connection dropped mid-exchange: the order may or may not have
	// been created remotely. An unmarked write must not be re-sent.
	_, err := c.Dispatch(context.Background(), core.Operation{
		Method: http.MethodPost,
		Path:   "/orders",
		Body:   []byte(`{"sku":"A-1"}`),
	})
	require.ErrorIs(t, err, netErr.Err)
	require.Len(t, exec.recorded(), 1, "ambiguous write failures get exactly one attempt")
}

func TestDispatchNetworkFailureRetriesWhenSafe(t *testing.T) {
	exec := &stubExecutor{}
	exec.fn = func(attempt int, op core.Operation) (*Response, error) {
		if attempt == 0 {
			return nil, &net.OpError{Op: "read", Net: "tcp", Err: context.DeadlineExceeded}
		}
		return &Response{StatusCode: http.StatusOK, Header: http.Header{}, Body: []byte(`{}`)}, nil
	}

	// Reads are always safe to repeat.
	c := New(testConfig(), exec, Options{})
	result, err := c.Dispatch(context.Background(), getOp("/listings"))
	require.NoError(t, err)
	require.Equal(t, 2, result.Attempts)
	c.Close()

	// A write marked idempotent (e.g. a PUT keyed by SKU) is too.
	exec2 := &stubExecutor{}
	exec2.fn = func(attempt int, op core.Operation) (*Response, error) {
		if attempt == 0 {
			return nil, &net.OpError{Op: "write", Net: "tcp", Err: context.DeadlineExceeded}
		}
		return &Response{StatusCode: http.StatusOK, Header: http.Header{}, Body: []byte(`{}`)}, nil
	}
	c2 := New(testConfig(), exec2, Options{})
	defer c2.Close()

	result, err = c2.Dispatch(context.Background(), core.Operation{
		Method:     http.MethodPut,
		Path:       "/inventory/A-1",
		Body:       []byte(`{"qty":3}`),
		Idempotent: true,
	})
	require.NoError(t, err)
	require.Equal(t, 2, result.Attempts)
}

func TestDispatchThrottledWriteStillRetried(t *testing.T) {
	exec := &stubExecutor{}
	exec.fn = func(attempt int, op core.Operation) (*Response, error) {
		if attempt == 0 {
			return &Response{StatusCode: http.StatusTooManyRequests, Header: http.Header{}}, nil
		}
		return &Response{StatusCode: http.StatusOK, Header: http.Header{}, Body: []byte(`{}`)}, nil
	}

	c := New(testConfig(), exec, Options{})
	defer c.Close()

	// A 429 means the request was rejected before execution, so even an
	// unmarked write is safe to resubmit.
	result, err := c.Dispatch(context.Background(), core.Operation{
		Method: http.MethodPost,
		Path:   "/orders",
		Body:   []byte(`{"sku":"A-1"}`),
	})
	require.NoError(t, err)
	require.Equal(t, 2, result.Attempts)
}

func TestDispatchCallerCancellationDuringAttempt(t *testing.T) {
	release := make(chan struct{})
	exec := &stubExecutor{}
	exec.fn = func(attempt int, op core.Operation) (*Response, error) {
		<-release
		return nil, context.Canceled
	}

	c := New(testConfig(), exec, Options{})
	defer c.Close()

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() {
		_, err := c.Dispatch(ctx, getOp("/orders"))
		errCh <- err
	}()

	time.Sleep(20 * time.Millisecond)
	cancel()
	close(release)

	require.ErrorIs(t, <-errCh, context.Canceled)
	require.Len(t, exec.recorded(), 1, "a cancelled caller is never retried")
}
