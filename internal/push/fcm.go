package push

import (
	"context"
	"fmt"

	firebase "firebase.google.com/go/v4"
	"firebase.google.com/go/v4/messaging"
	"go.uber.org/zap"
	"google.golang.org/api/option"

	"github.com/loopmarket/push-relay/internal/repository"
)

// FCMTransport delivers notifications through Firebase Cloud Messaging,
// fanning out to every active device token the recipient has registered.
type FCMTransport struct {
	client  *messaging.Client
	devices repository.DeviceTokenRepository
	logger  *zap.Logger
}

func NewFCMClient(ctx context.Context, credentialsFile string) (*messaging.Client, error) {
	app, err := firebase.NewApp(ctx, nil, option.WithCredentialsFile(credentialsFile))
	if err != nil {
		return nil, fmt.Errorf("failed to initialize firebase app: %w", err)
	}

	client, err := app.Messaging(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize fcm client: %w", err)
	}

	return client, nil
}

func NewFCMTransport(client *messaging.Client, devices repository.DeviceTokenRepository, logger *zap.Logger) (*FCMTransport, error) {
	if devices == nil {
		return nil, fmt.Errorf("device token repository is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &FCMTransport{
		client:  client,
		devices: devices,
		logger:  logger,
	}, nil
}

func (t *FCMTransport) IsAvailable() bool {
	return t != nil && t.client != nil
}

func (t *FCMTransport) SendToUser(ctx context.Context, recipientID string, n RenderedNotification) (*SendResult, error) {
	if !t.IsAvailable() {
		return nil, &TransportError{Message: "fcm client is not initialized", Transient: false}
	}

	tokens, err := t.devices.GetActiveByUser(ctx, recipientID)
	if err != nil {
		return nil, &TransportError{Message: "failed to load device tokens", Transient: true, Cause: err}
	}
	if len(tokens) == 0 {
		return &SendResult{Reason: ReasonNoActiveEndpoints}, nil
	}

	messages := make([]*messaging.Message, 0, len(tokens))
	for _, token := range tokens {
		messages = append(messages, &messaging.Message{
			Token: token.Token,
			Notification: &messaging.Notification{
				Title: n.Title,
				Body:  n.Body,
			},
			Data: n.Data,
		})
	}

	batch, err := t.client.SendEach(ctx, messages)
	if err != nil {
		return nil, &TransportError{
			Message:   "fcm batch send failed",
			Transient: ctx.Err() == nil,
			Cause:     err,
		}
	}

	result := &SendResult{}
	for i, resp := range batch.Responses {
		if resp.Error == nil {
			result.SentCount++
			continue
		}

		result.FailedCount++
		result.TokenErrors = append(result.TokenErrors, TokenError{
			Token: tokens[i].Token,
			Code:  fcmErrorCode(resp.Error),
		})

		if messaging.IsUnregistered(resp.Error) {
			if err := t.devices.Deactivate(ctx, tokens[i].Token); err != nil {
				t.logger.Warn("failed to deactivate unregistered token",
					zap.String("recipientId", recipientID),
					zap.Error(err),
				)
			}
		}
	}

	if result.SentCount == 0 {
		result.Reason = ReasonAllEndpointsFailed
	}

	return result, nil
}

func fcmErrorCode(err error) string {
	switch {
	case messaging.IsUnregistered(err):
		return "unregistered"
	case messaging.IsInvalidArgument(err):
		return "invalid_argument"
	case messaging.IsQuotaExceeded(err):
		return "quota_exceeded"
	case messaging.IsUnavailable(err):
		return "unavailable"
	case messaging.IsInternal(err):
		return "internal"
	default:
		return "unknown"
	}
}
