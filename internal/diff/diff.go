// Package diff determines which freshly fetched records are new for a stage.
package diff

import (
	"context"
	"fmt"

	"github.com/Awuah-B/report-bot/internal/domain"
	"github.com/Awuah-B/report-bot/internal/store"
)

// Engine computes the new-record set for a poll cycle. Its live-hash check is
// an optimization only: the store's content-hash uniqueness constraint is the
// authoritative gate, so a record admitted here but raced by a concurrent
// insert is still dropped at persist time.
type Engine struct {
	store store.Store
}

// NewEngine creates a diff engine backed by the given store
func NewEngine(st store.Store) *Engine {
	return &Engine{store: st}
}

// FindNew returns the fetched records whose content hash is absent from the
// stage's live table, in input order. Duplicate hashes within the batch are
// collapsed deterministically: the first occurrence wins.
func (e *Engine) FindNew(ctx context.Context, stage domain.Stage, fetched []domain.StageRecord) ([]domain.StageRecord, error) {
	if len(fetched) == 0 {
		return nil, nil
	}

	existing, err := e.store.LiveHashes(ctx, stage)
	if err != nil {
		return nil, fmt.Errorf("failed to load live hashes: %w", err)
	}

	seen := make(map[string]struct{}, len(fetched))
	var fresh []domain.StageRecord
	for _, rec := range fetched {
		if _, dup := seen[rec.ContentHash]; dup {
			continue
		}
		seen[rec.ContentHash] = struct{}{}

		if _, known := existing[rec.ContentHash]; known {
			continue
		}
		fresh = append(fresh, rec)
	}

	return fresh, nil
}

// Dedup collapses duplicate content hashes within a batch, first occurrence
// wins, preserving input order. Exposed for callers that need the in-batch
// set semantics without a store lookup.
func Dedup(records []domain.StageRecord) []domain.StageRecord {
	seen := make(map[string]struct{}, len(records))
	out := records[:0:0]
	for _, rec := range records {
		if _, dup := seen[rec.ContentHash]; dup {
			continue
		}
		seen[rec.ContentHash] = struct{}{}
		out = append(out, rec)
	}
	return out
}
