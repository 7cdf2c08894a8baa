package domain

import "time"

// DeliveryAttempt is an append-only audit record of one delivery attempt.
type DeliveryAttempt struct {
	ID             string         `gorm:"type:uuid;primaryKey"`
	NotificationID string         `gorm:"type:uuid;not null"`
	AttemptNumber  int            `gorm:"not null"`
	Method         DeliveryMethod `gorm:"type:varchar(8);not null"`
	Success        bool           `gorm:"not null"`
	SentCount      int            `gorm:"not null;default:0"`
	FailedCount    int            `gorm:"not null;default:0"`
	Reason         *string        `gorm:"type:text"`
	CreatedAt      time.Time
}
