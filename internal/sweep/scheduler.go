// Package sweep runs the recurring overdue check: it reads overdue and
// due-soon issues from the ledger and hands reminders to the notifier.
package sweep

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"libradesk/internal/circulation"
	"libradesk/internal/clock"
	"libradesk/internal/notification"
)

// DueSoonCooldown is the minimum gap between two due-soon reminders for the
// same issue.
const DueSoonCooldown = 24 * time.Hour

// Ledger is the part of the circulation service the sweep reads and stamps.
type Ledger interface {
	ListOverdue(ctx context.Context) ([]circulation.IssueDetail, error)
	ListDueSoon(ctx context.Context, windowDays int) ([]circulation.IssueDetail, error)
	RecordNoticeSent(ctx context.Context, issueID uuid.UUID, at time.Time) error
	RecordOverdueNotice(ctx context.Context, issueID uuid.UUID, at time.Time) error
}

// Notifier accepts reminders for delivery.
type Notifier interface {
	Dispatch(ctx context.Context, ev notification.Event) error
}

// Report summarizes one run.
type Report struct {
	Overdue    int       `json:"overdue"`
	DueSoon    int       `json:"due_soon"`
	Dispatched int       `json:"dispatched"`
	Skipped    int       `json:"skipped"`
	Failed     int       `json:"failed"`
	Error      string    `json:"error,omitempty"`
	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`
}

type options struct {
	interval        time.Duration
	dueSoonDays     int
	overdueCooldown time.Duration
	meterProvider   metric.MeterProvider
}

// Option tunes a Scheduler.
type Option func(*options)

func WithInterval(d time.Duration) Option {
	return func(o *options) {
		if d > 0 {
			o.interval = d
		}
	}
}

func WithDueSoonWindow(days int) Option {
	return func(o *options) {
		if days > 0 {
			o.dueSoonDays = days
		}
	}
}

// WithOverdueCooldown suppresses overdue reminders for issues notified less
// than d ago. Zero re-notifies on every run.
func WithOverdueCooldown(d time.Duration) Option {
	return func(o *options) {
		if d >= 0 {
			o.overdueCooldown = d
		}
	}
}

// WithMeterProvider sets where the dispatch counters are registered.
// Defaults to the global provider.
func WithMeterProvider(mp metric.MeterProvider) Option {
	return func(o *options) {
		if mp != nil {
			o.meterProvider = mp
		}
	}
}

// Scheduler owns the recurring sweep. Runs never overlap.
type Scheduler struct {
	ledger   Ledger
	notifier Notifier
	clock    clock.Clock
	log      *slog.Logger
	opts     options
	tracer   trace.Tracer

	dispatched metric.Int64Counter
	failed     metric.Int64Counter

	mu      sync.Mutex
	cancel  context.CancelFunc
	done    chan struct{}
	running bool

	runMu sync.Mutex

	reportMu sync.RWMutex
	last     *Report
}

func New(ledger Ledger, notifier Notifier, clk clock.Clock, log *slog.Logger, opts ...Option) *Scheduler {
	o := options{interval: 6 * time.Hour, dueSoonDays: 5}
	for _, opt := range opts {
		opt(&o)
	}
	if o.meterProvider == nil {
		o.meterProvider = otel.GetMeterProvider()
	}

	meter := o.meterProvider.Meter("libradesk/sweep")
	dispatched, _ := meter.Int64Counter("sweep.notifications.dispatched",
		metric.WithDescription("Reminders handed to the notifier"))
	failed, _ := meter.Int64Counter("sweep.notifications.failed",
		metric.WithDescription("Reminders the notifier rejected"))

	return &Scheduler{
		ledger:     ledger,
		notifier:   notifier,
		clock:      clk,
		log:        log.With("component", "sweep"),
		opts:       o,
		tracer:     otel.Tracer("libradesk/sweep"),
		dispatched: dispatched,
		failed:     failed,
	}
}

// Start registers the recurring run. Starting a running scheduler is a no-op.
func (s *Scheduler) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel
	s.done = make(chan struct{})
	s.running = true
	go s.loop(ctx, s.done)

	s.log.Info("sweep scheduler started", "interval", s.opts.interval.String(), "due_soon_days", s.opts.dueSoonDays)
}

// Stop cancels future runs. A run already in progress finishes on its own.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.running {
		return
	}
	s.cancel()
	<-s.done
	s.running = false
	s.log.Info("sweep scheduler stopped")
}

func (s *Scheduler) IsRunning() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

// LastReport returns the report of the most recent run, if any.
func (s *Scheduler) LastReport() *Report {
	s.reportMu.RLock()
	defer s.reportMu.RUnlock()
	if s.last == nil {
		return nil
	}
	r := *s.last
	return &r
}

func (s *Scheduler) loop(ctx context.Context, done chan struct{}) {
	defer close(done)
	ticker := time.NewTicker(s.opts.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			// Detached so Stop does not interrupt the run.
			go s.TriggerNow(context.WithoutCancel(ctx))
		}
	}
}

// TriggerNow runs one sweep synchronously and returns its report. A trigger
// that arrives while another run is in progress waits for it to finish.
// A run that panics still returns its partial report with Error set.
func (s *Scheduler) TriggerNow(ctx context.Context) (report Report) {
	s.runMu.Lock()
	defer s.runMu.Unlock()

	report = Report{StartedAt: s.clock.Now()}
	defer func() {
		if r := recover(); r != nil {
			s.log.Error("sweep run panicked", "panic", fmt.Sprint(r))
			report.Error = fmt.Sprintf("panic: %v", r)
		}
		report.FinishedAt = s.clock.Now()
		s.storeReport(report)
	}()

	ctx, span := s.tracer.Start(ctx, "sweep.run")
	defer span.End()

	s.run(ctx, &report)

	span.SetAttributes(
		attribute.Int("sweep.overdue", report.Overdue),
		attribute.Int("sweep.due_soon", report.DueSoon),
		attribute.Int("sweep.dispatched", report.Dispatched),
		attribute.Int("sweep.failed", report.Failed),
	)
	s.log.Info("sweep run finished",
		"overdue", report.Overdue,
		"due_soon", report.DueSoon,
		"dispatched", report.Dispatched,
		"skipped", report.Skipped,
		"failed", report.Failed,
	)
	return report
}

func (s *Scheduler) storeReport(r Report) {
	s.reportMu.Lock()
	s.last = &r
	s.reportMu.Unlock()
}

func (s *Scheduler) run(ctx context.Context, report *Report) {
	// Notice stamps are stored at second precision.
	now := report.StartedAt.UTC().Truncate(time.Second)

	overdue, err := s.ledger.ListOverdue(ctx)
	if err != nil {
		s.log.Error("failed to list overdue issues", "error", err)
		report.Error = err.Error()
		return
	}
	report.Overdue = len(overdue)
	for i := range overdue {
		s.notifyOverdue(ctx, &overdue[i], now, report)
	}

	dueSoon, err := s.ledger.ListDueSoon(ctx, s.opts.dueSoonDays)
	if err != nil {
		s.log.Error("failed to list due-soon issues", "error", err)
		report.Error = err.Error()
		return
	}
	report.DueSoon = len(dueSoon)
	for i := range dueSoon {
		s.notifyDueSoon(ctx, &dueSoon[i], now, report)
	}
}

func (s *Scheduler) notifyOverdue(ctx context.Context, issue *circulation.IssueDetail, now time.Time, report *Report) {
	if s.opts.overdueCooldown > 0 && !cooledDown(issue.LastOverdueNotice, now, s.opts.overdueCooldown) {
		report.Skipped++
		return
	}

	s.dispatch(ctx, issue, notification.CategoryOverdue, issue.DaysOverdue(now), report)
	if err := s.ledger.RecordOverdueNotice(ctx, issue.ID, now); err != nil {
		s.log.Error("failed to record overdue notice", "issue_id", issue.ID, "error", err)
	}
}

func (s *Scheduler) notifyDueSoon(ctx context.Context, issue *circulation.IssueDetail, now time.Time, report *Report) {
	if !cooledDown(issue.LastNoticeSent, now, DueSoonCooldown) {
		report.Skipped++
		return
	}

	s.dispatch(ctx, issue, notification.CategoryDueSoon, issue.DaysRemaining(now), report)
	if err := s.ledger.RecordNoticeSent(ctx, issue.ID, now); err != nil {
		s.log.Error("failed to record notice", "issue_id", issue.ID, "error", err)
	}
}

// dispatch hands one reminder to the notifier. Failures are counted and
// logged but never stop the run.
func (s *Scheduler) dispatch(ctx context.Context, issue *circulation.IssueDetail, category notification.Category, days int, report *Report) {
	err := s.safeDispatch(ctx, notification.Event{
		IssueID:     issue.ID,
		StudentID:   issue.StudentID,
		Category:    category,
		Days:        days,
		Recipient:   issue.StudentEmail,
		StudentName: issue.StudentName,
		BookTitle:   issue.BookTitle,
		BookAuthor:  issue.BookAuthor,
		DueDate:     issue.DueDate,
	})
	attrs := metric.WithAttributes(attribute.String("category", string(category)))
	if err != nil {
		report.Failed++
		s.failed.Add(ctx, 1, attrs)
		s.log.Error("failed to dispatch notification", "issue_id", issue.ID, "category", category, "error", err)
		return
	}
	report.Dispatched++
	s.dispatched.Add(ctx, 1, attrs)
}

func (s *Scheduler) safeDispatch(ctx context.Context, ev notification.Event) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("notifier panicked: %v", r)
		}
	}()
	return s.notifier.Dispatch(ctx, ev)
}

// cooledDown reports whether more than cooldown has passed since last.
func cooledDown(last *time.Time, now time.Time, cooldown time.Duration) bool {
	return last == nil || now.Sub(*last) > cooldown
}
