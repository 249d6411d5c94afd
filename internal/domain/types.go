package domain

import (
	"crypto/sha256"
	"encoding/hex"
	"strconv"
	"strings"
	"time"
)

// StageRecord is one normalized order observation for a stage.
// OrderDate is the upstream business date; it is deliberately excluded from
// the content fingerprint so re-fetches with re-formatted metadata collapse
// onto the same record.
type StageRecord struct {
	OrderDate   time.Time `json:"order_date"`
	OrderNumber string    `json:"order_number"`
	Products    string    `json:"products"`
	Volume      int64     `json:"volume"`
	ExRefPrice  float64   `json:"ex_ref_price"`
	BRVNumber   string    `json:"brv_number"`
	BDC         string    `json:"bdc"`
	ContentHash string    `json:"content_hash"`
}

// Fingerprint computes the record's content hash: a SHA-256 digest over the
// canonical concatenation of the semantically meaningful fields. Volume and
// price are formatted canonically so incidental formatting differences in the
// source ("1200.50" vs "1200.5") do not produce distinct fingerprints.
func (r StageRecord) Fingerprint() string {
	parts := []string{
		r.OrderNumber,
		r.Products,
		strconv.FormatInt(r.Volume, 10),
		strconv.FormatFloat(r.ExRefPrice, 'f', -1, 64),
		r.BRVNumber,
		r.BDC,
	}
	sum := sha256.Sum256([]byte(strings.Join(parts, "|")))
	return hex.EncodeToString(sum[:])
}

// NewRecordEvent is emitted once per newly detected record in a poll cycle.
type NewRecordEvent struct {
	EventID    string      `json:"event_id"`
	Stage      Stage       `json:"stage"`
	Record     StageRecord `json:"record"`
	DetectedAt time.Time   `json:"detected_at"`
}

// SubscriptionTarget is a notification destination.
type SubscriptionTarget struct {
	ChatID       string    `json:"chat_id"`
	SubscribedBy string    `json:"subscribed_by"`
	SubscribedAt time.Time `json:"subscribed_at"`
}

// DeliveryOutcome is the result of delivering one broadcast to one target.
type DeliveryOutcome struct {
	ChatID   string `json:"chat_id"`
	Attempts int    `json:"attempts"`
	Err      string `json:"error,omitempty"`
	Evicted  bool   `json:"evicted,omitempty"`
}

// DeliveryReport summarizes one broadcast across all subscribed targets.
type DeliveryReport struct {
	Stage     Stage             `json:"stage"`
	Events    int               `json:"events"`
	Delivered int               `json:"delivered"`
	Failed    int               `json:"failed"`
	Outcomes  []DeliveryOutcome `json:"outcomes"`
}
