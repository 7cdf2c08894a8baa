package domain

import "time"

// DeviceToken is a registered push endpoint for a user. Registration itself
// happens outside this engine; the engine only reads active tokens and
// deactivates the ones the transport reports as unregistered.
type DeviceToken struct {
	ID        string `gorm:"type:uuid;primaryKey"`
	UserID    string `gorm:"type:varchar(64);not null"`
	Token     string `gorm:"type:varchar(512);not null"`
	Platform  string `gorm:"type:varchar(16);not null"`
	Active    bool   `gorm:"not null;default:true"`
	CreatedAt time.Time
	UpdatedAt time.Time
}
