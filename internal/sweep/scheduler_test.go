package sweep

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"

	"libradesk/internal/circulation"
	"libradesk/internal/clock"
	"libradesk/internal/logger"
	"libradesk/internal/notification"
)

var epoch = time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)

type fakeLedger struct {
	mu          sync.Mutex
	overdue     []circulation.IssueDetail
	dueSoon     []circulation.IssueDetail
	overdueErr  error
	dueSoonErr  error
	windowDays  int
	noticeSent  map[uuid.UUID]time.Time
	overdueHits map[uuid.UUID]int
	runs        int
	panics      bool
}

func newFakeLedger() *fakeLedger {
	return &fakeLedger{noticeSent: map[uuid.UUID]time.Time{}, overdueHits: map[uuid.UUID]int{}}
}

func (l *fakeLedger) ListOverdue(context.Context) ([]circulation.IssueDetail, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.runs++
	if l.panics {
		panic("driver bug")
	}
	return append([]circulation.IssueDetail(nil), l.overdue...), l.overdueErr
}

func (l *fakeLedger) ListDueSoon(_ context.Context, windowDays int) ([]circulation.IssueDetail, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.windowDays = windowDays
	return append([]circulation.IssueDetail(nil), l.dueSoon...), l.dueSoonErr
}

func (l *fakeLedger) RecordNoticeSent(_ context.Context, id uuid.UUID, at time.Time) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.noticeSent[id] = at
	return nil
}

func (l *fakeLedger) RecordOverdueNotice(_ context.Context, id uuid.UUID, at time.Time) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.overdueHits[id]++
	l.noticeSent[id] = at
	return nil
}

func (l *fakeLedger) runCount() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.runs
}

type fakeNotifier struct {
	mu     sync.Mutex
	events []notification.Event
	failOn map[uuid.UUID]bool
	panics bool
}

func (n *fakeNotifier) Dispatch(_ context.Context, ev notification.Event) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.panics {
		panic("smtp client exploded")
	}
	if n.failOn[ev.IssueID] {
		return notification.ErrQueueFull
	}
	n.events = append(n.events, ev)
	return nil
}

func (n *fakeNotifier) sent() []notification.Event {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]notification.Event(nil), n.events...)
}

func issue(due time.Time, lastNotice *time.Time) circulation.IssueDetail {
	return circulation.IssueDetail{
		Issue: circulation.Issue{
			ID:             uuid.New(),
			BookID:         uuid.New(),
			StudentID:      uuid.New(),
			IssueDate:      due.AddDate(0, 0, -14),
			DueDate:        due,
			LastNoticeSent: lastNotice,
		},
		BookTitle:    "Dune",
		BookAuthor:   "Frank Herbert",
		StudentName:  "Ana",
		StudentEmail: "ana@example.com",
	}
}

func at(t time.Time) *time.Time { return &t }

func newScheduler(l Ledger, n Notifier, opts ...Option) *Scheduler {
	return New(l, n, clock.NewFake(epoch), logger.Discard(), opts...)
}

func TestOverdueIssuesAreNotifiedEveryRun(t *testing.T) {
	ledger := newFakeLedger()
	od := issue(epoch.Add(-3*24*time.Hour-time.Hour), at(epoch.Add(-time.Hour)))
	ledger.overdue = []circulation.IssueDetail{od}
	notifier := &fakeNotifier{}
	s := newScheduler(ledger, notifier)

	report := s.TriggerNow(context.Background())
	s.TriggerNow(context.Background())

	assert.Equal(t, 1, report.Overdue)
	assert.Equal(t, 1, report.Dispatched)
	events := notifier.sent()
	require.Len(t, events, 2)
	assert.Equal(t, notification.CategoryOverdue, events[0].Category)
	assert.Equal(t, 3, events[0].Days)
	assert.Equal(t, "ana@example.com", events[0].Recipient)
	assert.Equal(t, 2, ledger.overdueHits[od.ID])
}

func TestOverdueCooldownSuppressesRecentNotices(t *testing.T) {
	ledger := newFakeLedger()
	recent := issue(epoch.Add(-48*time.Hour), nil)
	recent.LastOverdueNotice = at(epoch.Add(-2 * time.Hour))
	stale := issue(epoch.Add(-48*time.Hour), nil)
	stale.LastOverdueNotice = at(epoch.Add(-26 * time.Hour))
	ledger.overdue = []circulation.IssueDetail{recent, stale}
	notifier := &fakeNotifier{}

	report := newScheduler(ledger, notifier, WithOverdueCooldown(24*time.Hour)).TriggerNow(context.Background())

	assert.Equal(t, 1, report.Dispatched)
	assert.Equal(t, 1, report.Skipped)
	require.Len(t, notifier.sent(), 1)
	assert.Equal(t, stale.ID, notifier.sent()[0].IssueID)
}

func TestDueSoonNoticeDoesNotSuppressOverdueReminder(t *testing.T) {
	ledger := newFakeLedger()
	// Reminded as due-soon two hours ago, then fell overdue.
	od := issue(epoch.Add(-time.Hour), at(epoch.Add(-2*time.Hour)))
	ledger.overdue = []circulation.IssueDetail{od}
	notifier := &fakeNotifier{}

	report := newScheduler(ledger, notifier, WithOverdueCooldown(24*time.Hour)).TriggerNow(context.Background())

	assert.Equal(t, 1, report.Dispatched)
	assert.Equal(t, 0, report.Skipped)
	require.Len(t, notifier.sent(), 1)
	assert.Equal(t, notification.CategoryOverdue, notifier.sent()[0].Category)
	assert.Equal(t, 1, ledger.overdueHits[od.ID])
}

func TestDueSoonHonoursOneDayCooldown(t *testing.T) {
	ledger := newFakeLedger()
	recent := issue(epoch.Add(2*24*time.Hour), at(epoch.Add(-2*time.Hour)))
	stale := issue(epoch.Add(3*24*time.Hour), at(epoch.Add(-26*time.Hour)))
	fresh := issue(epoch.Add(4*24*time.Hour), nil)
	ledger.dueSoon = []circulation.IssueDetail{recent, stale, fresh}
	notifier := &fakeNotifier{}

	report := newScheduler(ledger, notifier, WithDueSoonWindow(5)).TriggerNow(context.Background())

	assert.Equal(t, 5, ledger.windowDays)
	assert.Equal(t, 3, report.DueSoon)
	assert.Equal(t, 2, report.Dispatched)
	assert.Equal(t, 1, report.Skipped)

	events := notifier.sent()
	require.Len(t, events, 2)
	assert.Equal(t, stale.ID, events[0].IssueID)
	assert.Equal(t, notification.CategoryDueSoon, events[0].Category)
	assert.Equal(t, 3, events[0].Days)
	assert.Equal(t, fresh.ID, events[1].IssueID)

	assert.NotContains(t, ledger.noticeSent, recent.ID)
	assert.Equal(t, epoch, ledger.noticeSent[stale.ID])
	assert.Equal(t, epoch, ledger.noticeSent[fresh.ID])
}

func TestExactlyOneDayIsStillCoolingDown(t *testing.T) {
	ledger := newFakeLedger()
	ledger.dueSoon = []circulation.IssueDetail{issue(epoch.Add(24*time.Hour), at(epoch.Add(-24*time.Hour)))}

	report := newScheduler(ledger, &fakeNotifier{}).TriggerNow(context.Background())
	assert.Equal(t, 0, report.Dispatched)
	assert.Equal(t, 1, report.Skipped)
}

func TestCooldownIgnoresSubSecondClock(t *testing.T) {
	ledger := newFakeLedger()
	// The stored stamp has second precision; the clock does not.
	ledger.dueSoon = []circulation.IssueDetail{issue(epoch.Add(24*time.Hour), at(epoch.Add(-24*time.Hour)))}
	s := New(ledger, &fakeNotifier{}, clock.NewFake(epoch.Add(750*time.Millisecond)), logger.Discard())

	report := s.TriggerNow(context.Background())
	assert.Equal(t, 0, report.Dispatched)
	assert.Equal(t, 1, report.Skipped)
}

func TestDispatchFailureDoesNotStopRun(t *testing.T) {
	ledger := newFakeLedger()
	bad := issue(epoch.Add(-48*time.Hour), nil)
	good := issue(epoch.Add(-72*time.Hour), nil)
	soon := issue(epoch.Add(48*time.Hour), nil)
	ledger.overdue = []circulation.IssueDetail{bad, good}
	ledger.dueSoon = []circulation.IssueDetail{soon}
	notifier := &fakeNotifier{failOn: map[uuid.UUID]bool{bad.ID: true, soon.ID: true}}

	report := newScheduler(ledger, notifier).TriggerNow(context.Background())

	assert.Equal(t, 1, report.Dispatched)
	assert.Equal(t, 2, report.Failed)
	require.Len(t, notifier.sent(), 1)
	assert.Equal(t, good.ID, notifier.sent()[0].IssueID)
	assert.Contains(t, ledger.noticeSent, soon.ID, "a failed dispatch still counts as notified")
}

func TestLedgerFailureEndsRunQuietly(t *testing.T) {
	ledger := newFakeLedger()
	ledger.overdueErr = errors.New("connection reset")
	ledger.dueSoon = []circulation.IssueDetail{issue(epoch.Add(48*time.Hour), nil)}
	notifier := &fakeNotifier{}
	s := newScheduler(ledger, notifier)

	report := s.TriggerNow(context.Background())
	assert.Equal(t, "connection reset", report.Error)
	assert.Empty(t, notifier.sent())

	ledger.mu.Lock()
	ledger.overdueErr = nil
	ledger.mu.Unlock()
	report = s.TriggerNow(context.Background())
	assert.Empty(t, report.Error)
	assert.Equal(t, 1, report.Dispatched)
}

func TestNotifierPanicIsContained(t *testing.T) {
	ledger := newFakeLedger()
	ledger.overdue = []circulation.IssueDetail{issue(epoch.Add(-48*time.Hour), nil), issue(epoch.Add(-48*time.Hour), nil)}
	s := newScheduler(ledger, &fakeNotifier{panics: true})

	var report Report
	require.NotPanics(t, func() { report = s.TriggerNow(context.Background()) })
	assert.Equal(t, 2, report.Failed)
	require.NotNil(t, s.LastReport())
	assert.Equal(t, 2, s.LastReport().Failed)
}

func TestLedgerPanicStillReturnsFinishedReport(t *testing.T) {
	ledger := newFakeLedger()
	ledger.panics = true
	s := newScheduler(ledger, &fakeNotifier{})

	var report Report
	require.NotPanics(t, func() { report = s.TriggerNow(context.Background()) })
	assert.Equal(t, "panic: driver bug", report.Error)
	assert.Equal(t, epoch, report.StartedAt)
	assert.Equal(t, epoch, report.FinishedAt)

	last := s.LastReport()
	require.NotNil(t, last)
	assert.Equal(t, report, *last)
}

func TestDispatchCountersByCategory(t *testing.T) {
	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	t.Cleanup(func() { _ = mp.Shutdown(context.Background()) })

	ledger := newFakeLedger()
	bad := issue(epoch.Add(-48*time.Hour), nil)
	ledger.overdue = []circulation.IssueDetail{bad, issue(epoch.Add(-72*time.Hour), nil)}
	ledger.dueSoon = []circulation.IssueDetail{issue(epoch.Add(48*time.Hour), nil)}
	notifier := &fakeNotifier{failOn: map[uuid.UUID]bool{bad.ID: true}}

	newScheduler(ledger, notifier, WithMeterProvider(mp)).TriggerNow(context.Background())

	var rm metricdata.ResourceMetrics
	require.NoError(t, reader.Collect(context.Background(), &rm))

	counts := map[string]map[string]int64{}
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			sum, ok := m.Data.(metricdata.Sum[int64])
			if !ok {
				continue
			}
			for _, dp := range sum.DataPoints {
				category, _ := dp.Attributes.Value(attribute.Key("category"))
				if counts[m.Name] == nil {
					counts[m.Name] = map[string]int64{}
				}
				counts[m.Name][category.AsString()] += dp.Value
			}
		}
	}

	assert.Equal(t, map[string]int64{"overdue": 1, "due_soon": 1}, counts["sweep.notifications.dispatched"])
	assert.Equal(t, map[string]int64{"overdue": 1}, counts["sweep.notifications.failed"])
}

func TestStartStopAreIdempotent(t *testing.T) {
	s := newScheduler(newFakeLedger(), &fakeNotifier{})
	assert.False(t, s.IsRunning())

	s.Start()
	s.Start()
	assert.True(t, s.IsRunning())

	s.Stop()
	s.Stop()
	assert.False(t, s.IsRunning())

	s.Start()
	assert.True(t, s.IsRunning())
	s.Stop()
}

func TestScheduledRunsFire(t *testing.T) {
	ledger := newFakeLedger()
	s := newScheduler(ledger, &fakeNotifier{}, WithInterval(10*time.Millisecond))
	s.Start()
	defer s.Stop()

	require.Eventually(t, func() bool { return ledger.runCount() >= 2 }, 2*time.Second, 5*time.Millisecond)
}

func TestHandlerTriggerAndStatus(t *testing.T) {
	ledger := newFakeLedger()
	ledger.overdue = []circulation.IssueDetail{issue(epoch.Add(-48*time.Hour), nil)}
	s := newScheduler(ledger, &fakeNotifier{})
	r := chi.NewRouter()
	NewHandler(s, logger.Discard()).RegisterRoutes(r)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/issues/trigger-overdue-check", nil))
	assert.Equal(t, http.StatusAccepted, w.Code)

	require.Eventually(t, func() bool { return s.LastReport() != nil }, time.Second, 5*time.Millisecond)

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/sweep/status", nil))
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"running":false`)
	assert.Contains(t, w.Body.String(), `"dispatched":1`)
}
