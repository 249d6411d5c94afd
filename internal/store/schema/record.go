package schema

import (
	"time"
)

// LiveRecord represents a row of a stage's live table. Every stage owns one
// structurally identical live table; the table name is injected at query time
// via gorm's Table() since the stage set is fixed but the model is shared.
//
// ContentHash is unique within a live table: the database constraint is the
// authoritative dedup gate for idempotent ingestion.
type LiveRecord struct {
	// ID is the internal database primary key
	ID uint64 `gorm:"column:id;primaryKey;autoIncrement"`
	// OrderDate is the upstream business date of the order
	OrderDate time.Time `gorm:"column:order_date;not null;index;type:timestamptz"`
	// OrderNumber is the upstream order identifier
	OrderNumber string `gorm:"column:order_number;not null;type:text"`
	// Products is the ordered product description
	Products string `gorm:"column:products;not null;type:text"`
	// Volume is the ordered volume in litres
	Volume int64 `gorm:"column:volume;not null"`
	// ExRefPrice is the ex-refinery reference price
	ExRefPrice float64 `gorm:"column:ex_ref_price;not null"`
	// BRVNumber is the bulk road vehicle number
	BRVNumber string `gorm:"column:brv_number;not null;index;type:text"`
	// BDC is the bulk distribution company
	BDC string `gorm:"column:bdc;not null;type:text"`
	// ContentHash is the content fingerprint over the semantic fields
	ContentHash string `gorm:"column:content_hash;not null;uniqueIndex;type:varchar(64)"`
	// CreatedAt is the timestamp when this record was first ingested
	CreatedAt time.Time `gorm:"column:created_at;not null;default:now();type:timestamptz"`
	// UpdatedAt is the timestamp when this record was last touched
	UpdatedAt time.Time `gorm:"column:updated_at;not null;default:now();type:timestamptz"`
}

// HistoryRecord represents a row of a stage's history table: an archived copy
// of a live record, immutable once written. Mirrors LiveRecord minus the
// mutable updated_at, plus the archival timestamp.
type HistoryRecord struct {
	// ID is the internal database primary key
	ID uint64 `gorm:"column:id;primaryKey;autoIncrement"`
	// OrderDate is the upstream business date of the order
	OrderDate time.Time `gorm:"column:order_date;not null;type:timestamptz"`
	// OrderNumber is the upstream order identifier
	OrderNumber string `gorm:"column:order_number;not null;type:text"`
	// Products is the ordered product description
	Products string `gorm:"column:products;not null;type:text"`
	// Volume is the ordered volume in litres
	Volume int64 `gorm:"column:volume;not null"`
	// ExRefPrice is the ex-refinery reference price
	ExRefPrice float64 `gorm:"column:ex_ref_price;not null"`
	// BRVNumber is the bulk road vehicle number
	BRVNumber string `gorm:"column:brv_number;not null;type:text"`
	// BDC is the bulk distribution company
	BDC string `gorm:"column:bdc;not null;type:text"`
	// ContentHash is the content fingerprint carried over verbatim from the live row
	ContentHash string `gorm:"column:content_hash;not null;index;type:varchar(64)"`
	// CreatedAt is carried over from the live row
	CreatedAt time.Time `gorm:"column:created_at;not null;type:timestamptz"`
	// ArchivedAt is the timestamp when the live row was moved here
	ArchivedAt time.Time `gorm:"column:archived_at;not null;index;default:now();type:timestamptz"`
}
