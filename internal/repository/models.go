package repository

import (
	"time"

	"gorm.io/datatypes"

	"github.com/loopmarket/push-relay/internal/domain"
)

// NotificationModel is the persistence model for the notifications table.
type NotificationModel struct {
	ID          string                  `gorm:"type:uuid;primaryKey"`
	RecipientID string                  `gorm:"type:varchar(64);not null"`
	Type        domain.NotificationType `gorm:"type:varchar(32);not null"`
	Title       string                  `gorm:"type:varchar(255);not null"`
	Body        string                  `gorm:"type:text;not null"`
	Payload     datatypes.JSONMap       `gorm:"type:jsonb"`
	DedupeKey   string                  `gorm:"type:varchar(512);not null"`
	Read        bool                    `gorm:"not null;default:false"`
	Status      domain.DeliveryStatus   `gorm:"type:varchar(16);not null"`
	Method      domain.DeliveryMethod   `gorm:"type:varchar(8);not null"`
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

func (NotificationModel) TableName() string {
	return "notifications"
}

// DeliveryAttemptModel is the persistence model for delivery_attempts.
type DeliveryAttemptModel struct {
	ID             string                `gorm:"type:uuid;primaryKey"`
	NotificationID string                `gorm:"type:uuid;not null"`
	AttemptNumber  int                   `gorm:"not null"`
	Method         domain.DeliveryMethod `gorm:"type:varchar(8);not null"`
	Success        bool                  `gorm:"not null"`
	SentCount      int                   `gorm:"not null;default:0"`
	FailedCount    int                   `gorm:"not null;default:0"`
	Reason         *string               `gorm:"type:text"`
	CreatedAt      time.Time
}

func (DeliveryAttemptModel) TableName() string {
	return "delivery_attempts"
}

// DeviceTokenModel is the persistence model for device_tokens.
type DeviceTokenModel struct {
	ID        string `gorm:"type:uuid;primaryKey"`
	UserID    string `gorm:"type:varchar(64);not null"`
	Token     string `gorm:"type:varchar(512);not null"`
	Platform  string `gorm:"type:varchar(16);not null"`
	Active    bool   `gorm:"not null;default:true"`
	CreatedAt time.Time
	UpdatedAt time.Time
}

func (DeviceTokenModel) TableName() string {
	return "device_tokens"
}

func notificationModelFromDomain(n *domain.Notification) *NotificationModel {
	if n == nil {
		return nil
	}

	return &NotificationModel{
		ID:          n.ID,
		RecipientID: n.RecipientID,
		Type:        n.Type,
		Title:       n.Title,
		Body:        n.Body,
		Payload:     n.Payload,
		DedupeKey:   n.DedupeKey,
		Read:        n.Read,
		Status:      n.Status,
		Method:      n.Method,
		CreatedAt:   n.CreatedAt,
		UpdatedAt:   n.UpdatedAt,
	}
}

func notificationModelToDomain(m *NotificationModel) *domain.Notification {
	if m == nil {
		return nil
	}

	return &domain.Notification{
		ID:          m.ID,
		RecipientID: m.RecipientID,
		Type:        m.Type,
		Title:       m.Title,
		Body:        m.Body,
		Payload:     m.Payload,
		DedupeKey:   m.DedupeKey,
		Read:        m.Read,
		Status:      m.Status,
		Method:      m.Method,
		CreatedAt:   m.CreatedAt,
		UpdatedAt:   m.UpdatedAt,
	}
}

func attemptModelFromDomain(a *domain.DeliveryAttempt) *DeliveryAttemptModel {
	if a == nil {
		return nil
	}

	return &DeliveryAttemptModel{
		ID:             a.ID,
		NotificationID: a.NotificationID,
		AttemptNumber:  a.AttemptNumber,
		Method:         a.Method,
		Success:        a.Success,
		SentCount:      a.SentCount,
		FailedCount:    a.FailedCount,
		Reason:         a.Reason,
		CreatedAt:      a.CreatedAt,
	}
}

func attemptModelToDomain(m *DeliveryAttemptModel) *domain.DeliveryAttempt {
	if m == nil {
		return nil
	}

	return &domain.DeliveryAttempt{
		ID:             m.ID,
		NotificationID: m.NotificationID,
		AttemptNumber:  m.AttemptNumber,
		Method:         m.Method,
		Success:        m.Success,
		SentCount:      m.SentCount,
		FailedCount:    m.FailedCount,
		Reason:         m.Reason,
		CreatedAt:      m.CreatedAt,
	}
}

func deviceTokenModelToDomain(m *DeviceTokenModel) *domain.DeviceToken {
	if m == nil {
		return nil
	}

	return &domain.DeviceToken{
		ID:        m.ID,
		UserID:    m.UserID,
		Token:     m.Token,
		Platform:  m.Platform,
		Active:    m.Active,
		CreatedAt: m.CreatedAt,
		UpdatedAt: m.UpdatedAt,
	}
}
