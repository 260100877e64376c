package dispatch

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/numgate/numgate/pkg/config"
	"github.com/numgate/numgate/pkg/provider/sms"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testConfig() *config.SMSProvider {
	return &config.SMSProvider{
		ReadConcurrency: 3,
		ReadSpacing:     time.Millisecond,
		WriteSpacing:    time.Millisecond,
		MaxAttempts:     5,
		BackoffCap:      6.0,
		BackoffDecay:    0.25,
		JitterFraction:  0, // deterministic waits in tests
		SevereCooldown:  30 * time.Second,
	}
}

// fakeTransport scripts provider responses and records calls.
type fakeTransport struct {
	mu      sync.Mutex
	calls   []string
	handler func(call int, action string) (any, error)
}

func (f *fakeTransport) Call(_ context.Context, action string, _ []sms.Param) (any, error) {
	f.mu.Lock()
	call := len(f.calls)
	f.calls = append(f.calls, action)
	f.mu.Unlock()
	return f.handler(call, action)
}

func (f *fakeTransport) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

func (f *fakeTransport) callOrder() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, len(f.calls))
	copy(out, f.calls)
	return out
}

// newTestDispatcher builds a dispatcher whose sleeps complete instantly but
// are recorded, so backoff behavior is observable without wall-clock waits.
// The clock is frozen alongside: with real time, the nanoseconds elapsing
// between a retry-after being recorded and the queue computing its wait are
// shaved off the recorded sleep, and exact-duration assertions flake.
func newTestDispatcher(t *testing.T, transport Transport, cfg *config.SMSProvider) (*Dispatcher, *atomic.Int64) {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
	d := New(transport, cfg, logger)
	start := time.Now()
	d.now = func() time.Time { return start }
	var slept atomic.Int64
	d.sleep = func(ctx context.Context, dur time.Duration) error {
		if err := ctx.Err(); err != nil {
			return err
		}
		if dur > 0 {
			slept.Add(int64(dur))
		}
		return nil
	}
	t.Cleanup(d.Close)
	return d, &slept
}

func TestSubmit_ReadSuccess(t *testing.T) {
	ft := &fakeTransport{handler: func(int, string) (any, error) {
		return sms.Activation{State: sms.StateWaiting}, nil
	}}
	d, _ := newTestDispatcher(t, ft, testConfig())

	res, err := d.Submit(context.Background(), Request{Action: sms.ActionGetStatus, Kind: Read})
	require.NoError(t, err)
	assert.Equal(t, sms.Activation{State: sms.StateWaiting}, res)
	assert.Equal(t, 1, ft.callCount())
}

func TestSubmit_NonThrottlingErrorIsNotRetried(t *testing.T) {
	ft := &fakeTransport{handler: func(int, string) (any, error) {
		return nil, &sms.ProviderError{Kind: sms.KindNoInventory, Token: "NO_NUMBERS"}
	}}
	d, _ := newTestDispatcher(t, ft, testConfig())

	_, err := d.Submit(context.Background(), Request{Action: sms.ActionGetNumber, Kind: Write})
	pe, ok := sms.AsProviderError(err)
	require.True(t, ok)
	assert.Equal(t, sms.KindNoInventory, pe.Kind)
	assert.Equal(t, 1, ft.callCount(), "business rejections must not be retried")
}

func TestSubmit_ThrottledThenSucceeds(t *testing.T) {
	for _, k := range []int{1, 2, 3} {
		throttled := k
		ft := &fakeTransport{handler: func(call int, _ string) (any, error) {
			if call < throttled {
				return nil, &sms.ProviderError{Kind: sms.KindRateLimited, Token: "TOO_MANY_REQUESTS"}
			}
			return sms.Lease{ActivationID: "1", PhoneNumber: "555"}, nil
		}}
		d, _ := newTestDispatcher(t, ft, testConfig())

		res, err := d.Submit(context.Background(), Request{Action: sms.ActionGetNumber, Kind: Write})
		require.NoError(t, err, "k=%d: throttling must not surface to the caller", k)
		assert.Equal(t, sms.Lease{ActivationID: "1", PhoneNumber: "555"}, res)
		assert.Equal(t, k+1, ft.callCount())
	}
}

func TestSubmit_WaitGrowsWithThrottleCount(t *testing.T) {
	sleptFor := func(k int) time.Duration {
		ft := &fakeTransport{handler: func(call int, _ string) (any, error) {
			if call < k {
				return nil, &sms.ProviderError{Kind: sms.KindRateLimited}
			}
			return sms.Ack{Token: "ACCESS_CANCEL"}, nil
		}}
		cfg := testConfig()
		cfg.MaxAttempts = 10
		d, slept := newTestDispatcher(t, ft, cfg)
		_, err := d.Submit(context.Background(), Request{Action: sms.ActionSetStatus, Kind: Write})
		require.NoError(t, err)
		return time.Duration(slept.Load())
	}

	prev := sleptFor(0)
	for k := 1; k <= 4; k++ {
		cur := sleptFor(k)
		assert.GreaterOrEqual(t, cur, prev, "total wait must be monotonically non-decreasing with k=%d", k)
		prev = cur
	}
}

func TestSubmit_RetriesExhausted(t *testing.T) {
	ft := &fakeTransport{handler: func(int, string) (any, error) {
		return nil, &sms.ProviderError{Kind: sms.KindRateLimited, Token: "TOO_MANY_REQUESTS"}
	}}
	cfg := testConfig()
	cfg.MaxAttempts = 3
	d, _ := newTestDispatcher(t, ft, cfg)

	_, err := d.Submit(context.Background(), Request{Action: sms.ActionGetNumber, Kind: Write})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrRetriesExhausted)
	assert.Equal(t, 3, ft.callCount())
}

func TestSubmit_RetryAfterHonoredExactly(t *testing.T) {
	const retryAfter = 5 * time.Second
	ft := &fakeTransport{handler: func(call int, _ string) (any, error) {
		if call == 0 {
			return nil, &sms.ProviderError{Kind: sms.KindRateLimited, RetryAfter: retryAfter}
		}
		return sms.Ack{Token: "ACCESS_CANCEL"}, nil
	}}
	d, slept := newTestDispatcher(t, ft, testConfig())

	_, err := d.Submit(context.Background(), Request{Action: sms.ActionSetStatus, Kind: Write})
	require.NoError(t, err)
	assert.GreaterOrEqual(t, time.Duration(slept.Load()), retryAfter,
		"provider-supplied retry-after must be honored in full")
}

func TestSubmit_SevereThrottleOpensGlobalCooldown(t *testing.T) {
	ft := &fakeTransport{handler: func(call int, action string) (any, error) {
		if action == sms.ActionGetNumber && call == 0 {
			return nil, &sms.ProviderError{Kind: sms.KindRateLimited, Token: "BANNED", Severe: true}
		}
		return sms.Activation{State: sms.StateWaiting}, nil
	}}
	cfg := testConfig()
	d, slept := newTestDispatcher(t, ft, cfg)

	_, err := d.Submit(context.Background(), Request{Action: sms.ActionGetNumber, Kind: Write})
	require.NoError(t, err)
	before := slept.Load()

	// The cooldown gates the read queue as well, not just the throttled lane.
	_, err = d.Submit(context.Background(), Request{Action: sms.ActionGetStatus, Kind: Read})
	require.NoError(t, err)
	assert.GreaterOrEqual(t, time.Duration(slept.Load()-before), cfg.SevereCooldown/2,
		"read lane should have waited out part of the global cooldown")
}

func TestSubmit_WritesAreSerialized(t *testing.T) {
	var inFlight, maxInFlight atomic.Int64
	ft := &fakeTransport{handler: func(int, string) (any, error) {
		cur := inFlight.Add(1)
		defer inFlight.Add(-1)
		for {
			prev := maxInFlight.Load()
			if cur <= prev || maxInFlight.CompareAndSwap(prev, cur) {
				break
			}
		}
		time.Sleep(2 * time.Millisecond)
		return sms.Ack{Token: "ACCESS_CANCEL"}, nil
	}}
	d, _ := newTestDispatcher(t, ft, testConfig())

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := d.Submit(context.Background(), Request{Action: sms.ActionSetStatus, Kind: Write})
			assert.NoError(t, err)
		}()
	}
	wg.Wait()
	assert.Equal(t, int64(1), maxInFlight.Load(), "write concurrency must be exactly 1")
}

func TestSubmit_ThrottledWriteRetriesBeforeNewerWrites(t *testing.T) {
	release := make(chan struct{})
	ft := &fakeTransport{handler: func(call int, action string) (any, error) {
		if call == 0 {
			// Block until the second write is queued behind us, then throttle.
			<-release
			return nil, &sms.ProviderError{Kind: sms.KindRateLimited}
		}
		return sms.Ack{Token: "ACCESS_" + action}, nil
	}}
	d, _ := newTestDispatcher(t, ft, testConfig())

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		_, err := d.Submit(context.Background(), Request{Action: "first", Kind: Write})
		assert.NoError(t, err)
	}()

	time.Sleep(5 * time.Millisecond) // first write is in flight
	wg.Add(1)
	go func() {
		defer wg.Done()
		_, err := d.Submit(context.Background(), Request{Action: "second", Kind: Write})
		assert.NoError(t, err)
	}()
	time.Sleep(5 * time.Millisecond) // second write is queued
	close(release)
	wg.Wait()

	// The throttled first write re-enters at the head: first, first, second.
	assert.Equal(t, []string{"first", "first", "second"}, ft.callOrder())
}

func TestSubmit_ContextCancelled(t *testing.T) {
	ft := &fakeTransport{handler: func(int, string) (any, error) {
		return sms.Ack{}, nil
	}}
	d, _ := newTestDispatcher(t, ft, testConfig())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := d.Submit(ctx, Request{Action: sms.ActionGetStatus, Kind: Read})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestClose_FailsPendingRequests(t *testing.T) {
	blocked := make(chan struct{})
	ft := &fakeTransport{handler: func(int, string) (any, error) {
		<-blocked
		return sms.Ack{}, nil
	}}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
	d := New(ft, testConfig(), logger)

	done := make(chan error, 1)
	go func() {
		_, err := d.Submit(context.Background(), Request{Action: sms.ActionSetStatus, Kind: Write})
		done <- err
	}()
	time.Sleep(5 * time.Millisecond)

	go func() {
		time.Sleep(5 * time.Millisecond)
		close(blocked)
	}()
	d.Close()

	_, err := d.Submit(context.Background(), Request{Action: sms.ActionSetStatus, Kind: Write})
	assert.ErrorIs(t, err, ErrClosed)

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("in-flight submit did not finish after Close")
	}
}

func TestBackoffMultiplierCapsAndDecays(t *testing.T) {
	ft := &fakeTransport{handler: func(call int, _ string) (any, error) {
		if call < 6 {
			return nil, &sms.ProviderError{Kind: sms.KindRateLimited}
		}
		return sms.Ack{}, nil
	}}
	cfg := testConfig()
	cfg.MaxAttempts = 10
	d, _ := newTestDispatcher(t, ft, cfg)

	_, err := d.Submit(context.Background(), Request{Action: sms.ActionSetStatus, Kind: Write})
	require.NoError(t, err)

	d.writeQ.mu.Lock()
	mult := d.writeQ.multiplier
	d.writeQ.mu.Unlock()
	// Six doublings cap at 6.0; the final success decays one step.
	assert.InDelta(t, cfg.BackoffCap-cfg.BackoffDecay, mult, 0.001)
}

func TestSubmit_ErrorsDoNotWrapForeignFailures(t *testing.T) {
	sentinel := errors.New("wire snapped")
	ft := &fakeTransport{handler: func(int, string) (any, error) {
		return nil, sentinel
	}}
	d, _ := newTestDispatcher(t, ft, testConfig())

	_, err := d.Submit(context.Background(), Request{Action: sms.ActionGetStatus, Kind: Read})
	assert.ErrorIs(t, err, sentinel)
	assert.Equal(t, 1, ft.callCount())
}
