package schema

import "time"

// Subscription represents the subscriptions table - chats registered to
// receive new-record notifications. Uniqueness by chat_id.
type Subscription struct {
	// ID is an auto-incrementing sequence number
	ID uint64 `gorm:"column:id;primaryKey;autoIncrement"`
	// ChatID is the opaque chat identifier of the destination
	ChatID string `gorm:"column:chat_id;not null;uniqueIndex;type:text"`
	// SubscribedBy is the actor that performed the subscribe action
	SubscribedBy string `gorm:"column:subscribed_by;not null;type:text"`
	// CreatedAt is the timestamp when the subscription was created
	CreatedAt time.Time `gorm:"column:created_at;not null;default:now();type:timestamptz"`
}

// TableName specifies the table name for the Subscription model
func (Subscription) TableName() string {
	return "subscriptions"
}
