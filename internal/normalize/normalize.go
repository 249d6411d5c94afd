// Package normalize is the validation boundary between the loosely-typed
// upstream report rows and the typed storage model. Malformed rows fail
// closed: they are rejected and reported, never silently defaulted.
package normalize

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/Awuah-B/report-bot/internal/domain"
	"github.com/Awuah-B/report-bot/internal/feed"
)

// dateLayouts are the order-date formats the upstream feed emits. The export
// uses dd-mm-yyyy; re-fetched rows occasionally arrive RFC3339-formatted.
var dateLayouts = []string{
	"02-01-2006",
	"02-01-2006 15:04:05",
	time.RFC3339,
}

// Normalize canonicalizes a raw feed row into a StageRecord and computes its
// content fingerprint.
//
// Policy: missing or unparseable order_date, volume, or ex_ref_price reject
// the row as malformed (wrapped domain.ErrMalformedRow); negative volume is
// rejected too. The caller reports rejects and continues with the rest of
// the batch.
func Normalize(row feed.RawRow) (domain.StageRecord, error) {
	orderNumber := canonical(row.OrderNumber)
	if orderNumber == "" {
		return domain.StageRecord{}, fmt.Errorf("%w: empty order_number", domain.ErrMalformedRow)
	}

	orderDate, err := parseDate(row.OrderDate)
	if err != nil {
		return domain.StageRecord{}, fmt.Errorf("%w: order_date %q: %v", domain.ErrMalformedRow, row.OrderDate, err)
	}

	volume, err := parseVolume(row.Volume)
	if err != nil {
		return domain.StageRecord{}, fmt.Errorf("%w: volume %q: %v", domain.ErrMalformedRow, row.Volume, err)
	}

	price, err := parsePrice(row.ExRefPrice)
	if err != nil {
		return domain.StageRecord{}, fmt.Errorf("%w: ex_ref_price %q: %v", domain.ErrMalformedRow, row.ExRefPrice, err)
	}

	rec := domain.StageRecord{
		OrderDate:   orderDate,
		OrderNumber: orderNumber,
		Products:    canonical(row.Products),
		Volume:      volume,
		ExRefPrice:  price,
		BRVNumber:   canonical(row.BRVNumber),
		BDC:         canonical(row.BDC),
	}
	rec.ContentHash = rec.Fingerprint()

	return rec, nil
}

// canonical trims and collapses internal whitespace so incidental formatting
// differences do not change the content fingerprint.
func canonical(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

func parseDate(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, fmt.Errorf("missing")
	}

	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized date format")
}

func parseVolume(s string) (int64, error) {
	s = strings.TrimSpace(strings.ReplaceAll(s, ",", ""))
	if s == "" {
		return 0, fmt.Errorf("missing")
	}

	// The feed sometimes renders integral volumes as "18000.0"
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, fmt.Errorf("not numeric")
	}
	if f < 0 {
		return 0, fmt.Errorf("negative")
	}
	if f != float64(int64(f)) {
		return 0, fmt.Errorf("not integral")
	}

	return int64(f), nil
}

func parsePrice(s string) (float64, error) {
	s = strings.TrimSpace(strings.ReplaceAll(s, ",", ""))
	if s == "" {
		return 0, fmt.Errorf("missing")
	}

	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, fmt.Errorf("not numeric")
	}
	if f < 0 {
		return 0, fmt.Errorf("negative")
	}

	return f, nil
}
