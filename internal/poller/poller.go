// Package poller drives the monitoring loop: on every tick each stage runs a
// fetch, normalize, diff, persist, archive, notify cycle.
package poller

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/alitto/pond/v2"
	"github.com/oklog/ulid/v2"
	"go.uber.org/zap"

	"github.com/Awuah-B/report-bot/internal/adapter"
	"github.com/Awuah-B/report-bot/internal/config"
	"github.com/Awuah-B/report-bot/internal/diff"
	"github.com/Awuah-B/report-bot/internal/domain"
	"github.com/Awuah-B/report-bot/internal/feed"
	"github.com/Awuah-B/report-bot/internal/logger"
	"github.com/Awuah-B/report-bot/internal/messaging"
	"github.com/Awuah-B/report-bot/internal/normalize"
	"github.com/Awuah-B/report-bot/internal/notifier"
	"github.com/Awuah-B/report-bot/internal/registry"
	"github.com/Awuah-B/report-bot/internal/store"
)

// Trigger is the narrow surface the HTTP API uses to request an immediate
// cycle for one stage.
type Trigger interface {
	TriggerNow(ctx context.Context, stage domain.Stage) error
}

// Monitor is the poll scheduler. Each stage's cycle is mutually exclusive
// with itself via a one-slot token channel: a tick or manual trigger that
// finds a cycle in flight is skipped, never queued, so triggers coalesce.
type Monitor struct {
	cfg       config.PollerConfig
	source    feed.Source
	store     store.Store
	differ    *diff.Engine
	registry  *registry.Registry
	notifier  *notifier.Notifier
	publisher messaging.Publisher
	clock     adapter.Clock

	pool      pond.Pool
	slots     map[domain.Stage]chan struct{}
	running   atomic.Bool
	stopChan  chan struct{}
	stoppedCh chan struct{}
}

// NewMonitor creates the poll scheduler
func NewMonitor(
	cfg config.PollerConfig,
	source feed.Source,
	st store.Store,
	differ *diff.Engine,
	reg *registry.Registry,
	ntf *notifier.Notifier,
	publisher messaging.Publisher,
	clock adapter.Clock,
) *Monitor {
	slots := make(map[domain.Stage]chan struct{}, len(domain.Stages()))
	for _, stage := range domain.Stages() {
		slots[stage] = make(chan struct{}, 1)
	}
	return &Monitor{
		cfg:       cfg,
		source:    source,
		store:     st,
		differ:    differ,
		registry:  reg,
		notifier:  ntf,
		publisher: publisher,
		clock:     clock,
		slots:     slots,
		stopChan:  make(chan struct{}),
		stoppedCh: make(chan struct{}),
	}
}

// Start begins the poll loop. This is a blocking call that runs until the
// context is canceled or Stop is called. The first sweep runs immediately;
// subsequent sweeps follow the configured interval.
func (m *Monitor) Start(ctx context.Context) error {
	if !m.running.CompareAndSwap(false, true) {
		return fmt.Errorf("poller already running")
	}
	defer func() {
		m.running.Store(false)
		close(m.stoppedCh)
	}()

	logger.InfoCtx(ctx, "Starting order report poller",
		zap.Duration("interval", m.cfg.Interval),
		zap.Int("worker_pool_size", m.cfg.WorkerPoolSize),
		zap.Int("stages", len(domain.Stages())),
	)

	m.pool = pond.NewPool(m.cfg.WorkerPoolSize, pond.WithContext(ctx))

	for {
		select {
		case <-ctx.Done():
			logger.InfoCtx(ctx, "Poller stopping due to context cancellation", zap.Error(ctx.Err()))
			m.cleanup()
			return nil
		case <-m.stopChan:
			logger.InfoCtx(ctx, "Poller stop requested")
			m.cleanup()
			return nil
		default:
			m.runSweep(ctx)
			if !m.sleep(ctx, m.cfg.Interval) {
				m.cleanup()
				return nil
			}
		}
	}
}

// Stop gracefully stops the poller, waiting for in-flight cycles.
func (m *Monitor) Stop(ctx context.Context) error {
	if !m.running.CompareAndSwap(true, false) {
		return nil
	}

	logger.InfoCtx(ctx, "Stopping order report poller")
	close(m.stopChan)

	select {
	case <-m.stoppedCh:
		logger.InfoCtx(ctx, "Poller stopped gracefully")
		return nil
	case <-ctx.Done():
		logger.WarnCtx(ctx, "Poller stop interrupted by context timeout")
		return ctx.Err()
	}
}

// TriggerNow runs one stage's cycle outside the schedule. Returns
// domain.ErrCycleInFlight when a cycle for the stage is already running.
func (m *Monitor) TriggerNow(ctx context.Context, stage domain.Stage) error {
	if !stage.Valid() {
		return domain.ErrStageUnknown
	}

	select {
	case m.slots[stage] <- struct{}{}:
	default:
		return domain.ErrCycleInFlight
	}
	defer func() { <-m.slots[stage] }()

	return m.runCycle(ctx, stage)
}

// runSweep fans one cycle per stage out on the worker pool and waits for the
// whole sweep to finish. Stages whose previous cycle is still in flight are
// skipped; the next sweep covers them.
func (m *Monitor) runSweep(ctx context.Context) {
	start := m.clock.Now()

	group := m.pool.NewGroup()
	for _, stage := range domain.Stages() {
		group.Submit(func() {
			select {
			case m.slots[stage] <- struct{}{}:
			default:
				logger.WarnCtx(ctx, "skipping stage, cycle still in flight", zap.String("stage", string(stage)))
				return
			}
			defer func() { <-m.slots[stage] }()

			if err := m.runCycle(ctx, stage); err != nil && !errors.Is(err, context.Canceled) {
				logger.ErrorCtx(ctx, fmt.Errorf("stage cycle failed: %w", err), zap.String("stage", string(stage)))
			}
		})
	}
	group.Wait()

	logger.InfoCtx(ctx, "Sweep completed", zap.Duration("duration", m.clock.Since(start)))
}

// runCycle executes one stage's full cycle. Any step failure aborts this
// stage's cycle only; the poll cursor advances only on full success.
func (m *Monitor) runCycle(ctx context.Context, stage domain.Stage) error {
	rows, err := m.source.Fetch(ctx, stage)
	if err != nil {
		return fmt.Errorf("fetch failed: %w", err)
	}

	records := m.normalizeRows(ctx, stage, rows)

	fresh, err := m.differ.FindNew(ctx, stage, records)
	if err != nil {
		return fmt.Errorf("diff failed: %w", err)
	}

	inserted, err := m.store.InsertNewRecords(ctx, stage, fresh)
	if err != nil {
		return fmt.Errorf("persist failed: %w", err)
	}

	// Live rows absent from a successful non-empty fetch have moved on to
	// another stage; archive them. An empty fetch proves nothing, so it
	// archives nothing.
	archived := int64(0)
	if len(records) > 0 {
		archived, err = m.archiveStale(ctx, stage, records)
		if err != nil {
			return fmt.Errorf("archive failed: %w", err)
		}
	}

	if len(inserted) > 0 {
		if err := m.emitEvents(ctx, stage, inserted); err != nil {
			return err
		}
	}

	if err := m.store.SetPollCursor(ctx, stage, m.clock.Now()); err != nil {
		return fmt.Errorf("failed to update poll cursor: %w", err)
	}

	if len(inserted) > 0 || archived > 0 {
		logger.InfoCtx(ctx, "Stage cycle completed",
			zap.String("stage", string(stage)),
			zap.Int("fetched", len(records)),
			zap.Int("new", len(inserted)),
			zap.Int64("archived", archived))
	}

	return nil
}

// normalizeRows converts raw rows to records, dropping and counting
// malformed ones.
func (m *Monitor) normalizeRows(ctx context.Context, stage domain.Stage, rows []feed.RawRow) []domain.StageRecord {
	records := make([]domain.StageRecord, 0, len(rows))
	rejected := 0
	for _, row := range rows {
		rec, err := normalize.Normalize(row)
		if err != nil {
			rejected++
			logger.WarnCtx(ctx, "rejecting malformed row",
				zap.String("stage", string(stage)),
				zap.String("order_number", row.OrderNumber),
				zap.Error(err))
			continue
		}
		records = append(records, rec)
	}
	if rejected > 0 {
		logger.WarnCtx(ctx, "malformed rows rejected",
			zap.String("stage", string(stage)), zap.Int("count", rejected))
	}
	return records
}

// archiveStale moves live rows whose content hash is absent from the fetched
// set into the stage's history table.
func (m *Monitor) archiveStale(ctx context.Context, stage domain.Stage, fetched []domain.StageRecord) (int64, error) {
	fetchedHashes := make(map[string]struct{}, len(fetched))
	for _, rec := range fetched {
		fetchedHashes[rec.ContentHash] = struct{}{}
	}

	live, err := m.store.LiveRecords(ctx, stage)
	if err != nil {
		return 0, fmt.Errorf("failed to load live records: %w", err)
	}

	var staleIDs []uint64
	for _, row := range live {
		if _, ok := fetchedHashes[row.ContentHash]; !ok {
			staleIDs = append(staleIDs, row.ID)
		}
	}
	if len(staleIDs) == 0 {
		return 0, nil
	}

	return m.store.ArchiveRecords(ctx, stage, staleIDs)
}

// emitEvents records the cycle's new-record events in the rolling feed,
// publishes them for external consumers, and broadcasts to subscribers.
// Publish failures are logged but never fail the cycle; the events are
// already persisted.
func (m *Monitor) emitEvents(ctx context.Context, stage domain.Stage, inserted []domain.StageRecord) error {
	detectedAt := m.clock.Now()
	events := make([]domain.NewRecordEvent, 0, len(inserted))
	for _, rec := range inserted {
		events = append(events, domain.NewRecordEvent{
			EventID:    ulid.Make().String(),
			Stage:      stage,
			Record:     rec,
			DetectedAt: detectedAt,
		})
	}

	if err := m.store.AppendRecentEvents(ctx, events, m.cfg.RecentEventKeep); err != nil {
		return fmt.Errorf("failed to append recent events: %w", err)
	}

	for _, event := range events {
		if err := m.publisher.PublishNewRecord(ctx, event); err != nil {
			logger.ErrorCtx(ctx, fmt.Errorf("failed to publish event: %w", err),
				zap.String("event_id", event.EventID),
				zap.String("stage", string(stage)))
		}
	}

	targets, err := m.registry.Targets(ctx)
	if err != nil {
		return fmt.Errorf("failed to load notification targets: %w", err)
	}

	report := m.notifier.Broadcast(ctx, stage, events, targets)
	if report.Failed > 0 {
		logger.WarnCtx(ctx, "broadcast finished with failures",
			zap.String("stage", string(stage)),
			zap.Int("failed", report.Failed),
			zap.Int("delivered", report.Delivered))
	}

	return nil
}

func (m *Monitor) cleanup() {
	if m.pool != nil {
		m.pool.StopAndWait()
	}
}

// sleep waits for the duration but can be interrupted by context
// cancellation or a stop request. Returns false when interrupted.
func (m *Monitor) sleep(ctx context.Context, duration time.Duration) bool {
	select {
	case <-m.clock.After(duration):
		return true
	case <-ctx.Done():
		return false
	case <-m.stopChan:
		return false
	}
}
