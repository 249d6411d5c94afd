package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/Awuah-B/report-bot/internal/domain"
	"github.com/Awuah-B/report-bot/internal/store/schema"
)

type pgStore struct {
	db *gorm.DB
}

// NewPGStore creates a new PostgreSQL store instance
func NewPGStore(db *gorm.DB) Store {
	return &pgStore{db: db}
}

// ConfigureConnectionPool configures the connection pool settings for a GORM
// database connection. Zero values fall back to reasonable defaults.
func ConfigureConnectionPool(db *gorm.DB, maxOpenConns, maxIdleConns int, connMaxLifetime, connMaxIdleTime time.Duration) error {
	sqlDB, err := db.DB()
	if err != nil {
		return fmt.Errorf("failed to get underlying sql.DB: %w", err)
	}

	maxOpenConns, maxIdleConns, connMaxLifetime, connMaxIdleTime =
		NormalizeConnectionPoolSettings(maxOpenConns, maxIdleConns, connMaxLifetime, connMaxIdleTime)

	sqlDB.SetMaxOpenConns(maxOpenConns)
	sqlDB.SetMaxIdleConns(maxIdleConns)
	sqlDB.SetConnMaxLifetime(connMaxLifetime)
	sqlDB.SetConnMaxIdleTime(connMaxIdleTime)

	return nil
}

// NormalizeConnectionPoolSettings applies defaults and clamps pool settings
// into safe values.
//
// Notes:
//   - database/sql treats MaxOpenConns=0 as "unlimited"
//   - database/sql treats MaxIdleConns=0 as "no idle connections"
func NormalizeConnectionPoolSettings(maxOpenConns, maxIdleConns int, connMaxLifetime, connMaxIdleTime time.Duration) (int, int, time.Duration, time.Duration) {
	if maxOpenConns == 0 {
		maxOpenConns = 20
	}
	if maxIdleConns == 0 {
		maxIdleConns = 5
	}
	if connMaxLifetime == 0 {
		connMaxLifetime = 5 * time.Minute
	}
	if connMaxIdleTime == 0 {
		connMaxIdleTime = 10 * time.Minute
	}

	if maxIdleConns > maxOpenConns {
		maxIdleConns = maxOpenConns
	}

	return maxOpenConns, maxIdleConns, connMaxLifetime, connMaxIdleTime
}

// Migrate creates or updates every per-stage table pair and the shared tables
func (s *pgStore) Migrate(ctx context.Context) error {
	db := s.db.WithContext(ctx)

	for _, stage := range domain.Stages() {
		if err := db.Table(stage.LiveTable()).AutoMigrate(&schema.LiveRecord{}); err != nil {
			return fmt.Errorf("failed to migrate %s: %w", stage.LiveTable(), err)
		}
		if err := db.Table(stage.HistoryTable()).AutoMigrate(&schema.HistoryRecord{}); err != nil {
			return fmt.Errorf("failed to migrate %s: %w", stage.HistoryTable(), err)
		}
	}

	if err := db.AutoMigrate(&schema.Subscription{}, &schema.RecentEvent{}, &schema.KeyValueStore{}); err != nil {
		return fmt.Errorf("failed to migrate shared tables: %w", err)
	}

	return nil
}

// InsertNewRecords inserts records into the stage's live table, one statement
// per record inside a single transaction so that RowsAffected tells us exactly
// which rows survived the ON CONFLICT gate. Batches are small (one report
// section per poll), so per-row inserts are fine here.
func (s *pgStore) InsertNewRecords(ctx context.Context, stage domain.Stage, records []domain.StageRecord) ([]domain.StageRecord, error) {
	if len(records) == 0 {
		return nil, nil
	}

	var inserted []domain.StageRecord
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for _, rec := range records {
			row := toLiveRecord(rec)
			res := tx.Table(stage.LiveTable()).
				Clauses(clause.OnConflict{
					Columns:   []clause.Column{{Name: "content_hash"}},
					DoNothing: true,
				}).
				Create(&row)
			if res.Error != nil {
				return fmt.Errorf("failed to insert record %s: %w", rec.ContentHash, res.Error)
			}
			if res.RowsAffected == 1 {
				inserted = append(inserted, rec)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	return inserted, nil
}

// LiveHashes returns the set of content hashes present in the stage's live table
func (s *pgStore) LiveHashes(ctx context.Context, stage domain.Stage) (map[string]struct{}, error) {
	var hashes []string
	err := s.db.WithContext(ctx).
		Table(stage.LiveTable()).
		Pluck("content_hash", &hashes).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list live hashes for %s: %w", stage, err)
	}

	set := make(map[string]struct{}, len(hashes))
	for _, h := range hashes {
		set[h] = struct{}{}
	}
	return set, nil
}

// LiveRecords returns all rows of the stage's live table
func (s *pgStore) LiveRecords(ctx context.Context, stage domain.Stage) ([]schema.LiveRecord, error) {
	var rows []schema.LiveRecord
	err := s.db.WithContext(ctx).
		Table(stage.LiveTable()).
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list live records for %s: %w", stage, err)
	}
	return rows, nil
}

// ArchiveRecords moves the given live rows into the stage's history table and
// deletes them from the live table, atomically.
func (s *pgStore) ArchiveRecords(ctx context.Context, stage domain.Stage, ids []uint64) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}

	var archived int64
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var rows []schema.LiveRecord
		if err := tx.Table(stage.LiveTable()).Where("id IN ?", ids).Find(&rows).Error; err != nil {
			return fmt.Errorf("failed to load rows for archival: %w", err)
		}
		if len(rows) == 0 {
			return nil
		}

		now := time.Now()
		history := make([]schema.HistoryRecord, 0, len(rows))
		for _, row := range rows {
			history = append(history, schema.HistoryRecord{
				OrderDate:   row.OrderDate,
				OrderNumber: row.OrderNumber,
				Products:    row.Products,
				Volume:      row.Volume,
				ExRefPrice:  row.ExRefPrice,
				BRVNumber:   row.BRVNumber,
				BDC:         row.BDC,
				ContentHash: row.ContentHash,
				CreatedAt:   row.CreatedAt,
				ArchivedAt:  now,
			})
		}

		if err := tx.Table(stage.HistoryTable()).Create(&history).Error; err != nil {
			return fmt.Errorf("failed to write history rows: %w", err)
		}

		res := tx.Table(stage.LiveTable()).Where("id IN ?", ids).Delete(&schema.LiveRecord{})
		if res.Error != nil {
			return fmt.Errorf("failed to delete archived live rows: %w", res.Error)
		}
		archived = res.RowsAffected
		return nil
	})
	if err != nil {
		return 0, err
	}

	return archived, nil
}

// ListRecent returns up to n live records for the stage, newest first
func (s *pgStore) ListRecent(ctx context.Context, stage domain.Stage, n int) ([]schema.LiveRecord, error) {
	var rows []schema.LiveRecord
	err := s.db.WithContext(ctx).
		Table(stage.LiveTable()).
		Order("created_at DESC").
		Limit(n).
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list recent records for %s: %w", stage, err)
	}
	return rows, nil
}

// SearchBRV looks a BRV number up across every stage's live table
func (s *pgStore) SearchBRV(ctx context.Context, brvNumber string) (map[domain.Stage][]schema.LiveRecord, error) {
	results := make(map[domain.Stage][]schema.LiveRecord)
	for _, stage := range domain.Stages() {
		var rows []schema.LiveRecord
		err := s.db.WithContext(ctx).
			Table(stage.LiveTable()).
			Where("brv_number = ?", brvNumber).
			Find(&rows).Error
		if err != nil {
			return nil, fmt.Errorf("failed to search %s: %w", stage, err)
		}
		if len(rows) > 0 {
			results[stage] = rows
		}
	}
	return results, nil
}

// CountAll returns the live row count per stage
func (s *pgStore) CountAll(ctx context.Context) (map[domain.Stage]int64, error) {
	counts := make(map[domain.Stage]int64, len(domain.Stages()))
	for _, stage := range domain.Stages() {
		var count int64
		err := s.db.WithContext(ctx).
			Table(stage.LiveTable()).
			Count(&count).Error
		if err != nil {
			return nil, fmt.Errorf("failed to count %s: %w", stage, err)
		}
		counts[stage] = count
	}
	return counts, nil
}

// CreateSubscription registers a chat for notifications
func (s *pgStore) CreateSubscription(ctx context.Context, chatID, actorID string) error {
	sub := schema.Subscription{
		ChatID:       chatID,
		SubscribedBy: actorID,
	}
	res := s.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "chat_id"}},
			DoNothing: true,
		}).
		Create(&sub)
	if res.Error != nil {
		return fmt.Errorf("failed to create subscription: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return domain.ErrAlreadySubscribed
	}
	return nil
}

// DeleteSubscription removes a chat from the registry
func (s *pgStore) DeleteSubscription(ctx context.Context, chatID string) error {
	res := s.db.WithContext(ctx).
		Where("chat_id = ?", chatID).
		Delete(&schema.Subscription{})
	if res.Error != nil {
		return fmt.Errorf("failed to delete subscription: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return domain.ErrNotSubscribed
	}
	return nil
}

// ListSubscriptions returns all subscriptions
func (s *pgStore) ListSubscriptions(ctx context.Context) ([]schema.Subscription, error) {
	var subs []schema.Subscription
	err := s.db.WithContext(ctx).
		Order("created_at ASC").
		Find(&subs).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list subscriptions: %w", err)
	}
	return subs, nil
}

// IsSubscribed reports whether the chat is subscribed
func (s *pgStore) IsSubscribed(ctx context.Context, chatID string) (bool, error) {
	var count int64
	err := s.db.WithContext(ctx).
		Model(&schema.Subscription{}).
		Where("chat_id = ?", chatID).
		Count(&count).Error
	if err != nil {
		return false, fmt.Errorf("failed to check subscription: %w", err)
	}
	return count > 0, nil
}

// AppendRecentEvents appends events to the rolling feed and prunes beyond keep
func (s *pgStore) AppendRecentEvents(ctx context.Context, events []domain.NewRecordEvent, keep int) error {
	if len(events) == 0 {
		return nil
	}

	rows := make([]schema.RecentEvent, 0, len(events))
	for _, ev := range events {
		payload, err := json.Marshal(ev)
		if err != nil {
			return fmt.Errorf("failed to marshal event %s: %w", ev.EventID, err)
		}
		rows = append(rows, schema.RecentEvent{
			EventID:    ev.EventID,
			Stage:      string(ev.Stage),
			Payload:    datatypes.JSON(payload),
			DetectedAt: ev.DetectedAt,
		})
	}

	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "event_id"}},
			DoNothing: true,
		}).Create(&rows).Error; err != nil {
			return fmt.Errorf("failed to append recent events: %w", err)
		}

		if keep > 0 {
			err := tx.Exec(
				"DELETE FROM recent_events WHERE id NOT IN (SELECT id FROM recent_events ORDER BY id DESC LIMIT ?)",
				keep,
			).Error
			if err != nil {
				return fmt.Errorf("failed to prune recent events: %w", err)
			}
		}
		return nil
	})
}

// ListRecentEvents returns up to limit recent events, newest first
func (s *pgStore) ListRecentEvents(ctx context.Context, limit int) ([]schema.RecentEvent, error) {
	var rows []schema.RecentEvent
	err := s.db.WithContext(ctx).
		Order("id DESC").
		Limit(limit).
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list recent events: %w", err)
	}
	return rows, nil
}

// GetPollCursor returns the stage's last successful poll time (zero if never)
func (s *pgStore) GetPollCursor(ctx context.Context, stage domain.Stage) (time.Time, error) {
	key := fmt.Sprintf("poll_cursor:%s", stage)

	var kv schema.KeyValueStore
	err := s.db.WithContext(ctx).Where("key = ?", key).First(&kv).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return time.Time{}, nil
		}
		return time.Time{}, fmt.Errorf("failed to get poll cursor: %w", err)
	}

	t, err := time.Parse(time.RFC3339Nano, kv.Value)
	if err != nil {
		return time.Time{}, fmt.Errorf("failed to parse poll cursor: %w", err)
	}

	return t, nil
}

// SetPollCursor stores the stage's last successful poll time
func (s *pgStore) SetPollCursor(ctx context.Context, stage domain.Stage, t time.Time) error {
	kv := schema.KeyValueStore{
		Key:   fmt.Sprintf("poll_cursor:%s", stage),
		Value: t.Format(time.RFC3339Nano),
	}

	err := s.db.WithContext(ctx).Save(&kv).Error
	if err != nil {
		return fmt.Errorf("failed to set poll cursor: %w", err)
	}

	return nil
}

// toLiveRecord maps a domain record onto the live table row model
func toLiveRecord(rec domain.StageRecord) schema.LiveRecord {
	return schema.LiveRecord{
		OrderDate:   rec.OrderDate,
		OrderNumber: rec.OrderNumber,
		Products:    rec.Products,
		Volume:      rec.Volume,
		ExRefPrice:  rec.ExRefPrice,
		BRVNumber:   rec.BRVNumber,
		BDC:         rec.BDC,
		ContentHash: rec.ContentHash,
	}
}

// ToDomainRecord maps a live table row back onto the domain record
func ToDomainRecord(row schema.LiveRecord) domain.StageRecord {
	return domain.StageRecord{
		OrderDate:   row.OrderDate,
		OrderNumber: row.OrderNumber,
		Products:    row.Products,
		Volume:      row.Volume,
		ExRefPrice:  row.ExRefPrice,
		BRVNumber:   row.BRVNumber,
		BDC:         row.BDC,
		ContentHash: row.ContentHash,
	}
}
