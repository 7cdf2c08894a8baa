package queue

import (
	"fmt"
	"strings"

	"github.com/loopmarket/push-relay/internal/domain"
)

// RequestMessage is the broker envelope for a raw notification request.
type RequestMessage struct {
	RecipientID   string                  `json:"recipientId"`
	Type          domain.NotificationType `json:"type"`
	Title         string                  `json:"title"`
	Body          string                  `json:"body"`
	Payload       map[string]any          `json:"payload,omitempty"`
	Route         string                  `json:"route,omitempty"`
	CorrelationID string                  `json:"correlationId,omitempty"`
}

func (m RequestMessage) Validate() error {
	if strings.TrimSpace(m.RecipientID) == "" {
		return fmt.Errorf("recipientId is required")
	}
	if !m.Type.IsValid() {
		return fmt.Errorf("invalid notification type %q", m.Type)
	}
	if strings.TrimSpace(m.Title) == "" {
		return fmt.Errorf("title is required")
	}
	return nil
}

// ToRequest converts the envelope into the domain request handed to the
// delivery orchestrator.
func (m RequestMessage) ToRequest() domain.Request {
	return domain.Request{
		Type:    m.Type,
		Title:   m.Title,
		Body:    m.Body,
		Payload: m.Payload,
		Route:   m.Route,
	}
}
