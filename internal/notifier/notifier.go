// Package notifier fans new-record broadcasts out to every subscribed chat.
package notifier

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/alitto/pond/v2"
	"github.com/cenkalti/backoff/v4"
	"go.uber.org/zap"

	"github.com/Awuah-B/report-bot/internal/domain"
	"github.com/Awuah-B/report-bot/internal/logger"
)

// Messenger delivers one text message to one chat. Implementations report
// permanently unreachable chats as domain.ErrTargetGone.
type Messenger interface {
	Send(ctx context.Context, chatID, text string) error
}

// Evictor retires a notification target that is permanently unreachable.
type Evictor interface {
	Evict(ctx context.Context, chatID string) error
}

// Config bounds delivery retries and message detail
type Config struct {
	WorkerPoolSize     int
	DeliveryTimeout    time.Duration
	MaxRetries         uint64
	InitialBackoff     time.Duration
	MaxDetailedRecords int
}

// Notifier broadcasts the events of one poll cycle to all targets. Targets
// are independent: one failing chat never blocks or fails the others, and
// each target receives its events in detection order inside one message.
type Notifier struct {
	messenger Messenger
	evictor   Evictor
	pool      pond.Pool
	cfg       Config
}

// New creates a notifier with its own delivery worker pool
func New(messenger Messenger, evictor Evictor, cfg Config) *Notifier {
	if cfg.WorkerPoolSize <= 0 {
		cfg.WorkerPoolSize = 10
	}
	if cfg.MaxDetailedRecords <= 0 {
		cfg.MaxDetailedRecords = 5
	}
	return &Notifier{
		messenger: messenger,
		evictor:   evictor,
		pool:      pond.NewPool(cfg.WorkerPoolSize),
		cfg:       cfg,
	}
}

// Broadcast delivers the stage's new-record events to every target
// concurrently and reports the per-target outcomes. An empty event batch or
// an empty target list is a no-op.
func (n *Notifier) Broadcast(ctx context.Context, stage domain.Stage, events []domain.NewRecordEvent, targets []domain.SubscriptionTarget) domain.DeliveryReport {
	report := domain.DeliveryReport{
		Stage:  stage,
		Events: len(events),
	}
	if len(events) == 0 || len(targets) == 0 {
		return report
	}

	message := n.formatMessage(stage, events)

	var mu sync.Mutex
	group := n.pool.NewGroup()
	for _, target := range targets {
		chatID := target.ChatID
		group.Submit(func() {
			outcome := n.deliver(ctx, chatID, message)

			mu.Lock()
			defer mu.Unlock()
			report.Outcomes = append(report.Outcomes, outcome)
			if outcome.Err == "" {
				report.Delivered++
			} else {
				report.Failed++
			}
		})
	}
	group.Wait()

	logger.InfoCtx(ctx, "broadcast finished",
		zap.String("stage", string(stage)),
		zap.Int("events", report.Events),
		zap.Int("delivered", report.Delivered),
		zap.Int("failed", report.Failed))

	return report
}

// deliver sends one message to one chat with bounded retries. Transient
// failures back off exponentially; domain.ErrTargetGone stops retrying and
// evicts the chat from the registry.
func (n *Notifier) deliver(ctx context.Context, chatID, message string) domain.DeliveryOutcome {
	outcome := domain.DeliveryOutcome{ChatID: chatID}

	operation := func() error {
		outcome.Attempts++

		sendCtx := ctx
		if n.cfg.DeliveryTimeout > 0 {
			var cancel context.CancelFunc
			sendCtx, cancel = context.WithTimeout(ctx, n.cfg.DeliveryTimeout)
			defer cancel()
		}

		err := n.messenger.Send(sendCtx, chatID, message)
		if err != nil && errors.Is(err, domain.ErrTargetGone) {
			return backoff.Permanent(err)
		}
		return err
	}

	b := backoff.NewExponentialBackOff()
	if n.cfg.InitialBackoff > 0 {
		b.InitialInterval = n.cfg.InitialBackoff
	}
	b.MaxElapsedTime = 0

	err := backoff.Retry(operation, backoff.WithContext(backoff.WithMaxRetries(b, n.cfg.MaxRetries), ctx))
	if err == nil {
		return outcome
	}

	outcome.Err = err.Error()

	if errors.Is(err, domain.ErrTargetGone) {
		if evictErr := n.evictor.Evict(ctx, chatID); evictErr != nil {
			logger.ErrorCtx(ctx, fmt.Errorf("failed to evict unreachable chat: %w", evictErr),
				zap.String("chatID", chatID))
		} else {
			outcome.Evicted = true
		}
	} else {
		logger.WarnCtx(ctx, "delivery failed",
			zap.String("chatID", chatID),
			zap.Int("attempts", outcome.Attempts),
			zap.Error(err))
	}

	return outcome
}

// StopAndWait drains in-flight deliveries and releases the pool.
func (n *Notifier) StopAndWait() {
	n.pool.StopAndWait()
}

// formatMessage renders one broadcast: a headline with the count and
// detection time, the first MaxDetailedRecords records in full, and a
// trailing count for the rest.
func (n *Notifier) formatMessage(stage domain.Stage, events []domain.NewRecordEvent) string {
	var b strings.Builder

	fmt.Fprintf(&b, "🚨 <b>New %s Records Detected!</b>\n\n", stage.Display())
	fmt.Fprintf(&b, "📊 Count: %d\n", len(events))
	fmt.Fprintf(&b, "🕐 Detected: %s\n", events[0].DetectedAt.UTC().Format("2006-01-02 15:04:05 MST"))

	detailed := len(events)
	if detailed > n.cfg.MaxDetailedRecords {
		detailed = n.cfg.MaxDetailedRecords
	}

	for i := 0; i < detailed; i++ {
		rec := events[i].Record
		fmt.Fprintf(&b, "\n%d. Order: <code>%s</code>\n", i+1, rec.OrderNumber)
		fmt.Fprintf(&b, "   Product: %s\n", rec.Products)
		fmt.Fprintf(&b, "   Volume: %d\n", rec.Volume)
		fmt.Fprintf(&b, "   BRV: %s\n", rec.BRVNumber)
		fmt.Fprintf(&b, "   BDC: %s\n", rec.BDC)
	}

	if rest := len(events) - detailed; rest > 0 {
		fmt.Fprintf(&b, "\n... and %d more\n", rest)
	}

	return b.String()
}
