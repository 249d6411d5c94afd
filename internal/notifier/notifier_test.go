package notifier

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Awuah-B/report-bot/internal/domain"
	"github.com/Awuah-B/report-bot/internal/logger"
)

func TestMain(m *testing.M) {
	// Initialize logger for tests
	if err := logger.Initialize(logger.Config{Debug: false}); err != nil {
		panic(err)
	}

	code := m.Run()
	os.Exit(code)
}

// fakeMessenger records sends and fails per chat on demand
type fakeMessenger struct {
	mu        sync.Mutex
	sent      map[string][]string
	failures  map[string]error
	failTimes map[string]int // fail this many attempts, then succeed
}

func newFakeMessenger() *fakeMessenger {
	return &fakeMessenger{
		sent:      map[string][]string{},
		failures:  map[string]error{},
		failTimes: map[string]int{},
	}
}

func (f *fakeMessenger) Send(_ context.Context, chatID, text string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if err, ok := f.failures[chatID]; ok {
		return err
	}
	if n := f.failTimes[chatID]; n > 0 {
		f.failTimes[chatID] = n - 1
		return errors.New("transient network error")
	}

	f.sent[chatID] = append(f.sent[chatID], text)
	return nil
}

func (f *fakeMessenger) sentTo(chatID string) []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.sent[chatID]
}

// fakeEvictor records evictions
type fakeEvictor struct {
	mu      sync.Mutex
	evicted []string
}

func (f *fakeEvictor) Evict(_ context.Context, chatID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.evicted = append(f.evicted, chatID)
	return nil
}

func testEvents(stage domain.Stage, n int) []domain.NewRecordEvent {
	events := make([]domain.NewRecordEvent, 0, n)
	for i := 0; i < n; i++ {
		rec := domain.StageRecord{
			OrderNumber: fmt.Sprintf("ORD-%03d", i),
			Products:    "PREMIUM MOTOR SPIRIT",
			Volume:      18000,
			ExRefPrice:  11.23,
			BRVNumber:   fmt.Sprintf("GT-%04d-20", i),
			BDC:         "BDC ALPHA",
		}
		rec.ContentHash = rec.Fingerprint()
		events = append(events, domain.NewRecordEvent{
			EventID:    fmt.Sprintf("01J0000000000000000000000%d", i),
			Stage:      stage,
			Record:     rec,
			DetectedAt: time.Date(2026, 8, 24, 10, 5, 0, 0, time.UTC),
		})
	}
	return events
}

func targets(chatIDs ...string) []domain.SubscriptionTarget {
	out := make([]domain.SubscriptionTarget, 0, len(chatIDs))
	for _, id := range chatIDs {
		out = append(out, domain.SubscriptionTarget{ChatID: id})
	}
	return out
}

func testConfig() Config {
	return Config{
		WorkerPoolSize:     4,
		DeliveryTimeout:    time.Second,
		MaxRetries:         2,
		InitialBackoff:     time.Millisecond,
		MaxDetailedRecords: 5,
	}
}

func TestBroadcast(t *testing.T) {
	ctx := context.Background()

	t.Run("delivers one message per target", func(t *testing.T) {
		messenger := newFakeMessenger()
		n := New(messenger, &fakeEvictor{}, testConfig())
		defer n.StopAndWait()

		report := n.Broadcast(ctx, domain.StageDepotManager, testEvents(domain.StageDepotManager, 3), targets("-1", "-2", "-3"))

		assert.Equal(t, 3, report.Events)
		assert.Equal(t, 3, report.Delivered)
		assert.Zero(t, report.Failed)
		for _, chatID := range []string{"-1", "-2", "-3"} {
			require.Len(t, messenger.sentTo(chatID), 1)
		}
	})

	t.Run("one failing target does not block the others", func(t *testing.T) {
		messenger := newFakeMessenger()
		messenger.failures["-2"] = errors.New("telegram unavailable")
		n := New(messenger, &fakeEvictor{}, testConfig())
		defer n.StopAndWait()

		report := n.Broadcast(ctx, domain.StageLoaded, testEvents(domain.StageLoaded, 1), targets("-1", "-2", "-3"))

		assert.Equal(t, 2, report.Delivered)
		assert.Equal(t, 1, report.Failed)
		assert.Len(t, messenger.sentTo("-1"), 1)
		assert.Len(t, messenger.sentTo("-3"), 1)
	})

	t.Run("transient failures are retried", func(t *testing.T) {
		messenger := newFakeMessenger()
		messenger.failTimes["-1"] = 2
		n := New(messenger, &fakeEvictor{}, testConfig())
		defer n.StopAndWait()

		report := n.Broadcast(ctx, domain.StageLoaded, testEvents(domain.StageLoaded, 1), targets("-1"))

		assert.Equal(t, 1, report.Delivered)
		require.Len(t, report.Outcomes, 1)
		assert.Equal(t, 3, report.Outcomes[0].Attempts)
	})

	t.Run("gone target is evicted without retrying", func(t *testing.T) {
		messenger := newFakeMessenger()
		messenger.failures["-9"] = fmt.Errorf("%w: chat -9", domain.ErrTargetGone)
		evictor := &fakeEvictor{}
		n := New(messenger, evictor, testConfig())
		defer n.StopAndWait()

		report := n.Broadcast(ctx, domain.StageLoaded, testEvents(domain.StageLoaded, 1), targets("-9"))

		assert.Equal(t, 1, report.Failed)
		require.Len(t, report.Outcomes, 1)
		assert.Equal(t, 1, report.Outcomes[0].Attempts)
		assert.True(t, report.Outcomes[0].Evicted)
		assert.Equal(t, []string{"-9"}, evictor.evicted)
	})

	t.Run("no events or no targets is a no-op", func(t *testing.T) {
		messenger := newFakeMessenger()
		n := New(messenger, &fakeEvictor{}, testConfig())
		defer n.StopAndWait()

		report := n.Broadcast(ctx, domain.StageLoaded, nil, targets("-1"))
		assert.Zero(t, report.Delivered)

		report = n.Broadcast(ctx, domain.StageLoaded, testEvents(domain.StageLoaded, 1), nil)
		assert.Zero(t, report.Delivered)
		assert.Empty(t, messenger.sentTo("-1"))
	})
}

func TestFormatMessage(t *testing.T) {
	n := New(newFakeMessenger(), &fakeEvictor{}, testConfig())
	defer n.StopAndWait()

	t.Run("details the first five records and counts the rest", func(t *testing.T) {
		msg := n.formatMessage(domain.StageDepotManager, testEvents(domain.StageDepotManager, 8))

		assert.Contains(t, msg, "New Depot Manager Records Detected!")
		assert.Contains(t, msg, "Count: 8")
		assert.Contains(t, msg, "2026-08-24 10:05:00 UTC")
		assert.Contains(t, msg, "ORD-000")
		assert.Contains(t, msg, "ORD-004")
		assert.NotContains(t, msg, "ORD-005")
		assert.Contains(t, msg, "... and 3 more")
	})

	t.Run("records appear in detection order", func(t *testing.T) {
		msg := n.formatMessage(domain.StageOrdered, testEvents(domain.StageOrdered, 3))

		first := strings.Index(msg, "ORD-000")
		second := strings.Index(msg, "ORD-001")
		third := strings.Index(msg, "ORD-002")
		assert.True(t, first < second && second < third)
		assert.NotContains(t, msg, "more")
	})
}
