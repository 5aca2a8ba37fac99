package notification

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/oklog/ulid/v2"
	"github.com/sony/gobreaker"
	"golang.org/x/time/rate"

	"libradesk/internal/clock"
)

var (
	ErrQueueFull         = errors.New("notification queue is full")
	ErrDispatcherStopped = errors.New("notification dispatcher is stopped")
)

// Recorder persists the outcome of each delivery.
type Recorder interface {
	Save(ctx context.Context, rec *Record) error
}

type dispatcherOptions struct {
	workers   int
	queueSize int
	limit     rate.Limit
	burst     int
	maxTries  uint
	backoff   func() backoff.BackOff
}

// Option tunes a Dispatcher.
type Option func(*dispatcherOptions)

// WithWorkers sets the number of delivery goroutines.
func WithWorkers(n int) Option {
	return func(o *dispatcherOptions) {
		if n > 0 {
			o.workers = n
		}
	}
}

// WithQueueSize sets the buffer between Notify and the workers.
func WithQueueSize(n int) Option {
	return func(o *dispatcherOptions) {
		if n > 0 {
			o.queueSize = n
		}
	}
}

// WithRateLimit caps deliveries per second across all workers.
// A non-positive rate disables the limiter.
func WithRateLimit(perSecond float64, burst int) Option {
	return func(o *dispatcherOptions) {
		if perSecond <= 0 {
			o.limit = rate.Inf
		} else {
			o.limit = rate.Limit(perSecond)
		}
		if burst > 0 {
			o.burst = burst
		}
	}
}

// WithRetry sets how many attempts a message gets and the backoff between them.
func WithRetry(maxTries uint, policy func() backoff.BackOff) Option {
	return func(o *dispatcherOptions) {
		if maxTries > 0 {
			o.maxTries = maxTries
		}
		if policy != nil {
			o.backoff = policy
		}
	}
}

// Dispatcher queues messages and delivers them on background workers.
// Delivery goes through a rate limiter, a circuit breaker and a bounded retry;
// the final outcome is recorded and never reported back to the caller.
type Dispatcher struct {
	sender   Sender
	recorder Recorder
	clock    clock.Clock
	log      *slog.Logger
	opts     dispatcherOptions
	limiter  *rate.Limiter
	breaker  *gobreaker.CircuitBreaker

	mu      sync.RWMutex
	queue   chan Message
	started bool
	stopped bool
	wg      sync.WaitGroup

	entropyMu sync.Mutex
	entropy   *ulid.MonotonicEntropy
}

func NewDispatcher(sender Sender, recorder Recorder, clk clock.Clock, log *slog.Logger, opts ...Option) *Dispatcher {
	o := dispatcherOptions{
		workers:   2,
		queueSize: 256,
		limit:     rate.Limit(5),
		burst:     1,
		maxTries:  3,
		backoff: func() backoff.BackOff {
			b := backoff.NewExponentialBackOff()
			b.InitialInterval = 200 * time.Millisecond
			b.MaxInterval = 5 * time.Second
			return b
		},
	}
	for _, opt := range opts {
		opt(&o)
	}

	d := &Dispatcher{
		sender:   sender,
		recorder: recorder,
		clock:    clk,
		log:      log.With("component", "notification_dispatcher"),
		opts:     o,
		limiter:  rate.NewLimiter(o.limit, o.burst),
		queue:    make(chan Message, o.queueSize),
		entropy:  ulid.Monotonic(rand.Reader, 0),
	}
	d.breaker = gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "notification-sender",
		MaxRequests: 1,
		Interval:    time.Minute,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			d.log.Warn("circuit breaker state changed", "name", name, "from", from.String(), "to", to.String())
		},
	})
	return d
}

// Start launches the workers. Calling it again is a no-op.
func (d *Dispatcher) Start() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.started || d.stopped {
		return
	}
	d.started = true
	for i := 0; i < d.opts.workers; i++ {
		d.wg.Add(1)
		go d.worker(i)
	}
	d.log.Info("dispatcher started", "workers", d.opts.workers, "queue_size", d.opts.queueSize)
}

// Stop closes the queue, lets the workers drain it and waits for them.
func (d *Dispatcher) Stop() {
	d.mu.Lock()
	if d.stopped {
		d.mu.Unlock()
		return
	}
	d.stopped = true
	close(d.queue)
	d.mu.Unlock()

	d.wg.Wait()
	d.log.Info("dispatcher stopped")
}

// Notify enqueues a free-form message without blocking.
func (d *Dispatcher) Notify(ctx context.Context, recipient, subject, body string) error {
	return d.enqueue(ctx, Message{To: recipient, Subject: subject, Body: body, Category: CategoryGeneral})
}

// Dispatch composes the reminder for ev and enqueues it.
func (d *Dispatcher) Dispatch(ctx context.Context, ev Event) error {
	if ev.Recipient == "" {
		return fmt.Errorf("issue %s: student has no email address", ev.IssueID)
	}
	return d.enqueue(ctx, Compose(ev))
}

func (d *Dispatcher) enqueue(ctx context.Context, msg Message) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.stopped {
		return ErrDispatcherStopped
	}
	select {
	case d.queue <- msg:
		return nil
	default:
		return ErrQueueFull
	}
}

func (d *Dispatcher) worker(id int) {
	defer d.wg.Done()
	for msg := range d.queue {
		d.deliver(context.Background(), msg)
	}
	d.log.Debug("worker exiting", "worker", id)
}

func (d *Dispatcher) deliver(ctx context.Context, msg Message) {
	if err := d.limiter.Wait(ctx); err != nil {
		d.record(ctx, msg, err)
		return
	}

	_, err := backoff.Retry(ctx, func() (struct{}, error) {
		_, err := d.breaker.Execute(func() (interface{}, error) {
			return nil, d.sender.Send(ctx, msg)
		})
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return struct{}{}, backoff.Permanent(err)
		}
		return struct{}{}, err
	}, backoff.WithBackOff(d.opts.backoff()), backoff.WithMaxTries(d.opts.maxTries))

	if err != nil {
		d.log.Error("notification delivery failed", "to", msg.To, "issue_id", msg.IssueID, "error", err)
	} else {
		d.log.Debug("notification delivered", "to", msg.To, "issue_id", msg.IssueID)
	}
	d.record(ctx, msg, err)
}

func (d *Dispatcher) record(ctx context.Context, msg Message, sendErr error) {
	if d.recorder == nil {
		return
	}
	status := StatusSent
	if sendErr != nil {
		status = StatusFailed
	}
	now := d.clock.Now()
	rec := newRecord(d.newID(now), msg, status, sendErr, now)
	if err := d.recorder.Save(ctx, rec); err != nil {
		d.log.Error("failed to record notification", "to", msg.To, "error", err)
	}
}

func (d *Dispatcher) newID(at time.Time) string {
	d.entropyMu.Lock()
	defer d.entropyMu.Unlock()
	return ulid.MustNew(ulid.Timestamp(at), d.entropy).String()
}
