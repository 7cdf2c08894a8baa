package push

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
)

const defaultWebhookTimeout = 10 * time.Second

type webhookRequest struct {
	RecipientID string            `json:"recipient_id"`
	Title       string            `json:"title"`
	Body        string            `json:"body"`
	Data        map[string]string `json:"data,omitempty"`
}

type webhookResponse struct {
	Sent   int `json:"sent"`
	Failed int `json:"failed"`
}

// WebhookTransport posts notifications to an HTTP push gateway that owns the
// device fan-out. Used in development and as a fallback when FCM credentials
// are absent.
type WebhookTransport struct {
	client   *resty.Client
	endpoint string
}

func NewWebhookTransport(endpoint string) (*WebhookTransport, error) {
	client := resty.New()
	client.SetTimeout(defaultWebhookTimeout)
	client.SetRetryCount(0)

	return NewWebhookTransportWithClient(endpoint, client)
}

func NewWebhookTransportWithClient(endpoint string, client *resty.Client) (*WebhookTransport, error) {
	trimmedEndpoint := strings.TrimSpace(endpoint)
	if trimmedEndpoint == "" {
		return nil, fmt.Errorf("webhook endpoint is required")
	}
	if _, err := url.ParseRequestURI(trimmedEndpoint); err != nil {
		return nil, fmt.Errorf("invalid webhook endpoint: %w", err)
	}
	if client == nil {
		return nil, fmt.Errorf("resty client is required")
	}

	if client.GetClient().Timeout == 0 {
		client.SetTimeout(defaultWebhookTimeout)
	}
	client.SetRetryCount(0)

	return &WebhookTransport{
		client:   client,
		endpoint: trimmedEndpoint,
	}, nil
}

func (t *WebhookTransport) IsAvailable() bool {
	return t != nil && t.client != nil
}

func (t *WebhookTransport) SendToUser(ctx context.Context, recipientID string, n RenderedNotification) (*SendResult, error) {
	if !t.IsAvailable() {
		return nil, &TransportError{Message: "webhook transport is not initialized", Transient: false}
	}

	reqBody := webhookRequest{
		RecipientID: recipientID,
		Title:       n.Title,
		Body:        n.Body,
		Data:        n.Data,
	}

	response, err := t.client.R().
		SetContext(ctx).
		SetHeader("Content-Type", "application/json").
		SetBody(reqBody).
		Post(t.endpoint)
	if err != nil {
		return nil, &TransportError{
			Message:   "webhook request failed",
			Transient: !errors.Is(err, context.Canceled),
			Cause:     err,
		}
	}
	if response == nil {
		return nil, &TransportError{
			Message:   "webhook returned empty response",
			Transient: true,
		}
	}

	statusCode := response.StatusCode()
	responseBody := strings.TrimSpace(response.String())

	if statusCode < http.StatusOK || statusCode >= http.StatusMultipleChoices {
		return nil, &TransportError{
			StatusCode: statusCode,
			Message:    webhookErrorMessage(statusCode, responseBody),
			Transient:  isTransientHTTPStatus(statusCode),
		}
	}

	// The gateway may report its fan-out counts; default to one endpoint.
	result := &SendResult{SentCount: 1}
	var parsed webhookResponse
	if err := json.Unmarshal(response.Body(), &parsed); err == nil && parsed.Sent+parsed.Failed > 0 {
		result.SentCount = parsed.Sent
		result.FailedCount = parsed.Failed
		if result.SentCount == 0 {
			result.Reason = ReasonAllEndpointsFailed
		}
	}

	return result, nil
}

func isTransientHTTPStatus(statusCode int) bool {
	return statusCode == http.StatusTooManyRequests || (statusCode >= http.StatusInternalServerError && statusCode <= 599)
}

func webhookErrorMessage(statusCode int, body string) string {
	base := fmt.Sprintf("push gateway returned status %d", statusCode)
	if body == "" {
		return base
	}
	return fmt.Sprintf("%s: %s", base, body)
}
