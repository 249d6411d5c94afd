// Package feed retrieves the upstream daily order report and splits it into
// per-stage row sections.
package feed

import (
	"context"

	"github.com/Awuah-B/report-bot/internal/domain"
)

// RawRow is a single report row exactly as the export renders it. All fields
// are strings; the normalizer owns parsing and validation.
type RawRow struct {
	OrderDate   string
	OrderNumber string
	Products    string
	Volume      string
	ExRefPrice  string
	BRVNumber   string
	BDC         string
}

// Source produces the current set of raw rows for a processing stage.
//
// A nil result with nil error means the report carried no section for the
// stage (or an empty one); callers treat that as "no rows right now", not as
// a failure.
type Source interface {
	Fetch(ctx context.Context, stage domain.Stage) ([]RawRow, error)
}
