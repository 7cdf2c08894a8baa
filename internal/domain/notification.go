package domain

import (
	"fmt"
	"strings"
	"time"

	"gorm.io/datatypes"
)

// NotificationType identifies the business event a notification was raised for.
type NotificationType string

const (
	TypeChatMessage         NotificationType = "CHAT_MESSAGE"
	TypeApplicationCreated  NotificationType = "APPLICATION_CREATED"
	TypeApplicationAccepted NotificationType = "APPLICATION_ACCEPTED"
	TypeApplicationRejected NotificationType = "APPLICATION_REJECTED"
	TypePaymentCompleted    NotificationType = "PAYMENT_COMPLETED"
	TypePayoutReleased      NotificationType = "PAYOUT_RELEASED"
	TypeWorkSubmitted       NotificationType = "WORK_SUBMITTED"
	TypeReviewReceived      NotificationType = "REVIEW_RECEIVED"
)

func (t NotificationType) String() string { return string(t) }

func (t NotificationType) IsValid() bool {
	switch t {
	case TypeChatMessage, TypeApplicationCreated, TypeApplicationAccepted,
		TypeApplicationRejected, TypePaymentCompleted, TypePayoutReleased,
		TypeWorkSubmitted, TypeReviewReceived:
		return true
	}
	return false
}

func ParseTypeFromString(s string) (NotificationType, error) {
	t := NotificationType(strings.ToUpper(strings.TrimSpace(s)))
	if !t.IsValid() {
		return "", fmt.Errorf("%w: invalid notification type %q", ErrValidation, s)
	}
	return t, nil
}

// DeliveryStatus represents the delivery lifecycle state of a notification.
type DeliveryStatus string

const (
	StatusPending   DeliveryStatus = "PENDING"
	StatusDelivered DeliveryStatus = "DELIVERED"
	StatusFailed    DeliveryStatus = "FAILED"
	// StatusSkipped is the terminal state for a recipient with no active
	// device endpoints: nothing was delivered and nothing went wrong.
	StatusSkipped DeliveryStatus = "SKIPPED"
)

func (s DeliveryStatus) String() string { return string(s) }

func (s DeliveryStatus) IsValid() bool {
	switch s {
	case StatusPending, StatusDelivered, StatusFailed, StatusSkipped:
		return true
	}
	return false
}

// IsTerminal reports whether no automatic transition ever leaves s. FAILED
// is not terminal here: the retry scheduler may still move it to DELIVERED.
func (s DeliveryStatus) IsTerminal() bool {
	return s == StatusDelivered || s == StatusSkipped
}

// CanTransition reports whether the delivery state machine permits s -> next.
func (s DeliveryStatus) CanTransition(next DeliveryStatus) bool {
	switch s {
	case StatusPending:
		return next == StatusDelivered || next == StatusFailed || next == StatusSkipped
	case StatusFailed:
		return next == StatusDelivered || next == StatusFailed
	default:
		return false
	}
}

func ParseStatusFromString(s string) (DeliveryStatus, error) {
	st := DeliveryStatus(strings.ToUpper(strings.TrimSpace(s)))
	if !st.IsValid() {
		return "", fmt.Errorf("%w: invalid delivery status %q", ErrValidation, s)
	}
	return st, nil
}

// DeliveryMethod records how a notification was (or was not) delivered.
type DeliveryMethod string

const (
	MethodNone DeliveryMethod = "NONE"
	MethodPush DeliveryMethod = "PUSH"
)

func (m DeliveryMethod) String() string { return string(m) }

func (m DeliveryMethod) IsValid() bool {
	return m == MethodNone || m == MethodPush
}

// Rendered content limits (in characters).
const (
	MaxTitleLength = 255
	MaxBodyLength  = 1024
)

// Notification is the durable, delivery-tracked unit.
type Notification struct {
	ID          string            `gorm:"type:uuid;primaryKey"`
	RecipientID string            `gorm:"type:varchar(64);not null"`
	Type        NotificationType  `gorm:"type:varchar(32);not null"`
	Title       string            `gorm:"type:varchar(255);not null"`
	Body        string            `gorm:"type:text;not null"`
	Payload     datatypes.JSONMap `gorm:"type:jsonb"`
	DedupeKey   string            `gorm:"type:varchar(512);not null"`
	Read        bool              `gorm:"not null;default:false"`
	Status      DeliveryStatus    `gorm:"type:varchar(16);not null"`
	Method      DeliveryMethod    `gorm:"type:varchar(8);not null"`
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

func (n *Notification) Validate() error {
	if strings.TrimSpace(n.RecipientID) == "" {
		return fmt.Errorf("%w: recipient id is required", ErrValidation)
	}
	if !n.Type.IsValid() {
		return fmt.Errorf("%w: invalid notification type %q", ErrValidation, n.Type)
	}
	if strings.TrimSpace(n.Title) == "" {
		return fmt.Errorf("%w: title is required", ErrValidation)
	}
	if titleLen := len([]rune(n.Title)); titleLen > MaxTitleLength {
		return fmt.Errorf("%w: title exceeds %d characters (got %d)", ErrValidation, MaxTitleLength, titleLen)
	}
	if bodyLen := len([]rune(n.Body)); bodyLen > MaxBodyLength {
		return fmt.Errorf("%w: body exceeds %d characters (got %d)", ErrValidation, MaxBodyLength, bodyLen)
	}
	if !n.Status.IsValid() {
		return fmt.Errorf("%w: invalid delivery status %q", ErrValidation, n.Status)
	}
	if !n.Method.IsValid() {
		return fmt.Errorf("%w: invalid delivery method %q", ErrValidation, n.Method)
	}
	return nil
}
