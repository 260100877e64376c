// Package dispatch multiplexes concurrent provider calls onto bounded,
// rate-limited outbound queues. Reads run in parallel up to a cap; writes are
// strictly serialized so stateful provider actions never race each other.
// Throttling responses are retried internally with adaptive backoff and are
// only surfaced to callers once attempts or the caller's deadline run out.
package dispatch

import (
	"context"
	"errors"
	"log/slog"
	"math/rand"
	"sync"
	"time"

	"github.com/numgate/numgate/pkg/config"
	"github.com/numgate/numgate/pkg/provider/sms"
)

// Kind routes a request to the read or the write queue.
type Kind int

const (
	// Read requests are side-effect free and may run concurrently.
	Read Kind = iota
	// Write requests mutate provider state and are strictly serialized.
	Write
)

// State is the lifecycle of one in-flight request.
type State int

const (
	StateQueued State = iota
	StateDispatching
	StateRetryScheduled
	StateSucceeded
	StateFailed
)

// Request is one outbound provider call.
type Request struct {
	Action string
	Params []sms.Param
	Kind   Kind
}

// Transport performs the actual provider call. Implemented by *sms.Client.
type Transport interface {
	Call(ctx context.Context, action string, params []sms.Param) (any, error)
}

// ErrClosed is returned for submissions after Close.
var ErrClosed = errors.New("dispatcher closed")

// ErrRetriesExhausted wraps the final throttling error once attempts run out.
var ErrRetriesExhausted = errors.New("provider retries exhausted")

type outcome struct {
	result any
	err    error
}

type item struct {
	req      Request
	ctx      context.Context
	done     chan outcome
	attempts int
	state    State
}

// queue is one FIFO lane with its own spacing and backoff state.
// Retries re-enter at the front so a throttled request is served before
// newer requests once the backoff window elapses.
type queue struct {
	mu         sync.Mutex
	cond       *sync.Cond
	items      []*item
	spacing    time.Duration
	multiplier float64
	nextAt     time.Time // earliest instant the next dispatch may start
	closed     bool
}

func newQueue(spacing time.Duration) *queue {
	q := &queue{spacing: spacing, multiplier: 1.0}
	q.cond = sync.NewCond(&q.mu)
	return q
}

func (q *queue) push(it *item) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return false
	}
	it.state = StateQueued
	q.items = append(q.items, it)
	q.cond.Signal()
	return true
}

func (q *queue) pushFront(it *item) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return false
	}
	it.state = StateQueued
	q.items = append([]*item{it}, q.items...)
	q.cond.Signal()
	return true
}

// pop blocks until an item is available or the queue closes.
func (q *queue) pop() (*item, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	for len(q.items) == 0 && !q.closed {
		q.cond.Wait()
	}
	if len(q.items) == 0 {
		return nil, false
	}
	it := q.items[0]
	q.items = q.items[1:]
	return it, true
}

func (q *queue) close() []*item {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.closed = true
	pending := q.items
	q.items = nil
	q.cond.Broadcast()
	return pending
}

// Dispatcher owns the two provider-facing queues. Callers interact only
// through Submit; queue internals are never exposed.
type Dispatcher struct {
	transport Transport
	logger    *slog.Logger
	cfg       *config.SMSProvider

	readQ  *queue
	writeQ *queue

	cooldownMu    sync.Mutex
	cooldownUntil time.Time

	wg      sync.WaitGroup
	stopped chan struct{}
	rng     *rand.Rand
	rngMu   sync.Mutex

	// now and sleep are swapped out in tests.
	now   func() time.Time
	sleep func(ctx context.Context, d time.Duration) error
}

// New creates a dispatcher and starts its workers.
func New(transport Transport, cfg *config.SMSProvider, logger *slog.Logger) *Dispatcher {
	d := &Dispatcher{
		transport: transport,
		logger:    logger.With("component", "dispatcher"),
		cfg:       cfg,
		readQ:     newQueue(cfg.ReadSpacing),
		writeQ:    newQueue(cfg.WriteSpacing),
		stopped:   make(chan struct{}),
		rng:       rand.New(rand.NewSource(time.Now().UnixNano())),
		now:       time.Now,
		sleep:     sleepCtx,
	}
	readers := cfg.ReadConcurrency
	if readers < 1 {
		readers = 1
	}
	for i := 0; i < readers; i++ {
		d.wg.Add(1)
		go d.worker(d.readQ)
	}
	d.wg.Add(1)
	go d.worker(d.writeQ)
	return d
}

// Submit enqueues one provider request and blocks until it succeeds, fails
// terminally, or ctx is done. Throttling is absorbed internally.
func (d *Dispatcher) Submit(ctx context.Context, req Request) (any, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	it := &item{req: req, ctx: ctx, done: make(chan outcome, 1)}
	q := d.readQ
	if req.Kind == Write {
		q = d.writeQ
	}
	if !q.push(it) {
		return nil, ErrClosed
	}
	select {
	case out := <-it.done:
		return out.result, out.err
	case <-ctx.Done():
		// The worker will notice the dead context and drop the item.
		return nil, ctx.Err()
	}
}

// Close stops the workers and fails all pending requests with ErrClosed.
func (d *Dispatcher) Close() {
	close(d.stopped)
	for _, q := range []*queue{d.readQ, d.writeQ} {
		for _, it := range q.close() {
			it.state = StateFailed
			it.done <- outcome{err: ErrClosed}
		}
	}
	d.wg.Wait()
}

func (d *Dispatcher) worker(q *queue) {
	defer d.wg.Done()
	for {
		it, ok := q.pop()
		if !ok {
			return
		}
		if it.ctx.Err() != nil {
			it.state = StateFailed
			continue // submitter already returned
		}
		if err := d.waitTurn(it.ctx, q); err != nil {
			it.state = StateFailed
			it.done <- outcome{err: err}
			continue
		}
		select {
		case <-d.stopped:
			it.state = StateFailed
			it.done <- outcome{err: ErrClosed}
			return
		default:
		}
		d.dispatch(q, it)
	}
}

// waitTurn enforces the queue's minimum spacing (scaled by the backoff
// multiplier, plus jitter), any provider-supplied retry-after, and the global
// cooldown window.
func (d *Dispatcher) waitTurn(ctx context.Context, q *queue) error {
	q.mu.Lock()
	now := d.now()
	earliest := q.nextAt
	if cd := d.cooldownDeadline(); cd.After(earliest) {
		earliest = cd
	}
	if earliest.Before(now) {
		earliest = now
	}
	delay := time.Duration(float64(q.spacing) * q.multiplier)
	delay += d.jitter(delay)
	// Reserve the slot before sleeping so concurrent readers space out too.
	q.nextAt = earliest.Add(delay)
	q.mu.Unlock()

	return d.sleep(ctx, earliest.Sub(now))
}

func (d *Dispatcher) dispatch(q *queue, it *item) {
	it.state = StateDispatching
	it.attempts++

	result, err := d.transport.Call(it.ctx, it.req.Action, it.req.Params)
	if err == nil {
		it.state = StateSucceeded
		d.decayBackoff(q)
		it.done <- outcome{result: result}
		return
	}

	pe, ok := sms.AsProviderError(err)
	if !ok || !pe.IsRetryable() {
		it.state = StateFailed
		it.done <- outcome{err: err}
		return
	}

	// Throttled. Raise the pressure valve before deciding whether to retry.
	d.raiseBackoff(q, pe)
	if pe.Severe {
		d.setCooldown(d.cfg.SevereCooldown)
		d.logger.Warn("severe throttle, global cooldown opened",
			"token", pe.Token, "cooldown", d.cfg.SevereCooldown)
	}

	if it.attempts >= d.cfg.MaxAttempts || it.ctx.Err() != nil {
		it.state = StateFailed
		it.done <- outcome{err: errors.Join(ErrRetriesExhausted, err)}
		return
	}

	it.state = StateRetryScheduled
	d.logger.Debug("throttled, re-queued at front",
		"action", it.req.Action, "attempt", it.attempts, "retry_after", pe.RetryAfter)
	if !q.pushFront(it) {
		it.state = StateFailed
		it.done <- outcome{err: ErrClosed}
	}
}

// raiseBackoff doubles the queue's delay multiplier up to the configured cap.
// A provider-supplied retry-after is honored exactly via the queue's nextAt.
func (d *Dispatcher) raiseBackoff(q *queue, pe *sms.ProviderError) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if pe.RetryAfter > 0 {
		at := d.now().Add(pe.RetryAfter)
		if at.After(q.nextAt) {
			q.nextAt = at
		}
	} else {
		q.multiplier *= 2
		if q.multiplier > d.cfg.BackoffCap {
			q.multiplier = d.cfg.BackoffCap
		}
	}
}

// decayBackoff steps the multiplier back toward 1x after a success. Gradual
// decay avoids oscillating between full speed and full backoff under
// sustained load.
func (d *Dispatcher) decayBackoff(q *queue) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.multiplier > 1.0 {
		q.multiplier -= d.cfg.BackoffDecay
		if q.multiplier < 1.0 {
			q.multiplier = 1.0
		}
	}
}

func (d *Dispatcher) setCooldown(window time.Duration) {
	d.cooldownMu.Lock()
	defer d.cooldownMu.Unlock()
	until := d.now().Add(window)
	if until.After(d.cooldownUntil) {
		d.cooldownUntil = until
	}
}

func (d *Dispatcher) cooldownDeadline() time.Time {
	d.cooldownMu.Lock()
	defer d.cooldownMu.Unlock()
	return d.cooldownUntil
}

func (d *Dispatcher) jitter(base time.Duration) time.Duration {
	if base <= 0 || d.cfg.JitterFraction <= 0 {
		return 0
	}
	d.rngMu.Lock()
	defer d.rngMu.Unlock()
	return time.Duration(d.rng.Float64() * d.cfg.JitterFraction * float64(base))
}

func sleepCtx(ctx context.Context, dur time.Duration) error {
	if dur <= 0 {
		return nil
	}
	timer := time.NewTimer(dur)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
