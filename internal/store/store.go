package store

import (
	"context"
	"time"

	"github.com/Awuah-B/report-bot/internal/domain"
	"github.com/Awuah-B/report-bot/internal/store/schema"
)

// Store defines the interface for database operations.
//
// Each stage's live/history table pair is mutated only through this interface
// and only by that stage's own poll cycle; the content-hash uniqueness
// constraint on every live table is the authoritative dedup gate.
type Store interface {
	// Migrate creates or updates every per-stage table pair and the shared tables
	Migrate(ctx context.Context) error

	// InsertNewRecords inserts records into the stage's live table, skipping
	// any whose content hash already exists. Returns the records that were
	// actually inserted, in input order.
	InsertNewRecords(ctx context.Context, stage domain.Stage, records []domain.StageRecord) ([]domain.StageRecord, error)
	// LiveHashes returns the set of content hashes present in the stage's live table
	LiveHashes(ctx context.Context, stage domain.Stage) (map[string]struct{}, error)
	// LiveRecords returns all rows of the stage's live table
	LiveRecords(ctx context.Context, stage domain.Stage) ([]schema.LiveRecord, error)
	// ArchiveRecords moves the given live rows verbatim into the stage's
	// history table with an archival timestamp, then deletes them from the
	// live table. Returns the number of rows archived.
	ArchiveRecords(ctx context.Context, stage domain.Stage, ids []uint64) (int64, error)
	// ListRecent returns up to n live records for the stage, newest first
	ListRecent(ctx context.Context, stage domain.Stage, n int) ([]schema.LiveRecord, error)
	// SearchBRV looks a BRV number up across every stage's live table
	SearchBRV(ctx context.Context, brvNumber string) (map[domain.Stage][]schema.LiveRecord, error)
	// CountAll returns the live row count per stage
	CountAll(ctx context.Context) (map[domain.Stage]int64, error)

	// CreateSubscription registers a chat; domain.ErrAlreadySubscribed if present
	CreateSubscription(ctx context.Context, chatID, actorID string) error
	// DeleteSubscription removes a chat; domain.ErrNotSubscribed if absent
	DeleteSubscription(ctx context.Context, chatID string) error
	// ListSubscriptions returns all subscriptions
	ListSubscriptions(ctx context.Context) ([]schema.Subscription, error)
	// IsSubscribed reports whether the chat is subscribed
	IsSubscribed(ctx context.Context, chatID string) (bool, error)

	// AppendRecentEvents appends events to the rolling recent-events feed and
	// prunes rows beyond the keep bound, oldest first
	AppendRecentEvents(ctx context.Context, events []domain.NewRecordEvent, keep int) error
	// ListRecentEvents returns up to limit recent events, newest first
	ListRecentEvents(ctx context.Context, limit int) ([]schema.RecentEvent, error)

	// GetPollCursor returns the stage's last successful poll time (zero if never)
	GetPollCursor(ctx context.Context, stage domain.Stage) (time.Time, error)
	// SetPollCursor stores the stage's last successful poll time
	SetPollCursor(ctx context.Context, stage domain.Stage, t time.Time) error
}
