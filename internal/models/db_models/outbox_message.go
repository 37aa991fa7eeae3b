package db_models

import (
	"time"

	"gorm.io/datatypes"
)

// OutboxMessage is a notification obligation written in the same transaction
// as the subscriber/token mutation it belongs to. A relay worker drains
// undelivered rows to the queue, so the commit and the obligation to email
// the subscriber succeed or fail together.
type OutboxMessage struct {
	BaseModel
	EventType    string         `gorm:"size:50;not null"`
	QueueName    string         `gorm:"size:100;not null"`
	Email        string         `gorm:"size:255;not null"`
	Payload      datatypes.JSON `gorm:"type:jsonb;not null"`
	DispatchedAt *time.Time     `gorm:"index"`
}
