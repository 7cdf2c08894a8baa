package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/datatypes"

	"github.com/loopmarket/push-relay/internal/cache"
	"github.com/loopmarket/push-relay/internal/domain"
	"github.com/loopmarket/push-relay/internal/observability"
	"github.com/loopmarket/push-relay/internal/push"
	"github.com/loopmarket/push-relay/internal/ratelimit"
	"github.com/loopmarket/push-relay/internal/repository"
)

const (
	defaultDedupeWindow = 30 * time.Second
	sendLimiterKey      = "push"
)

// DeliveryResult reports how a submitted request was handled.
type DeliveryResult struct {
	NotificationID string
	Stored         bool
	Delivered      bool
	Duplicate      bool
	Batched        bool
	Status         domain.DeliveryStatus
}

/// Orchestrator is the delivery façade: it applies duplicate suppression,
// batching, persistence, transport dispatch, attempt logging, and retry
// scheduling in order.
type Orchestrator struct {
	notifications repository.NotificationRepository
	attempts      AttemptWriter
	transport     push.Transport
	dedupe        *cache.DedupeCache
	limiter       ratelimit.RateLimiter
	logger        *zap.Logger
	metrics       *observability.Metrics

	batcher *Batcher
	retries *RetryScheduler

	dedupeWindow time.Duration
	now          func() time.Time
}

func NewOrchestrator(
	notifications repository.NotificationRepository,
	attempts AttemptWriter,
	transport push.Transport,
	dedupe *cache.DedupeCache,
	limiter ratelimit.RateLimiter,
	dedupeWindow time.Duration,
	logger *zap.Logger,
) (*Orchestrator, error) {
	if notifications == nil {
		return nil, fmt.Errorf("notification repository is required")
	}
	if attempts == nil {
		return nil, fmt.Errorf("attempt writer is required")
	}
	if transport == nil {
		return nil, fmt.Errorf("push transport is required")
	}
	if dedupe == nil {
		return nil, fmt.Errorf("dedupe cache is required")
	}
	if dedupeWindow <= 0 {
		dedupeWindow = defaultDedupeWindow
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Orchestrator{
		notifications: notifications,
		attempts:      attempts,
		transport:     transport,
		dedupe:        dedupe,
		limiter:       limiter,
		logger:        logger,
		dedupeWindow:  dedupeWindow,
		now:           time.Now,
	}, nil
}

// SetBatcher wires the batching aggregator. Without one every request is
// delivered directly.
func (o *Orchestrator) SetBatcher(b *Batcher) {
	if o == nil {
		return
	}
	o.batcher = b
}

// SetRetryScheduler wires the retry scheduler. Without one failed
// deliveries are terminal.
func (o *Orchestrator) SetRetryScheduler(r *RetryScheduler) {
	if o == nil {
		return
	}
	o.retries = r
}

func (o *Orchestrator) SetMetrics(metrics *observability.Metrics) {
	if o == nil {
		return
	}
	o.metrics = metrics
}

// Submit accepts a raw notification request for a recipient. Store failures
// are the only hard errors: transport failures resolve into a FAILED status
// plus retry scheduling and are never surfaced to the event producer.
func (o *Orchestrator) Submit(ctx context.Context, recipientID string, req domain.Request) (DeliveryResult, error) {
	if ctx == nil {
		ctx = context.Background()
	}

	recipientID = strings.TrimSpace(recipientID)
	if recipientID == "" {
		return DeliveryResult{}, fmt.Errorf("%w: recipient id is required", domain.ErrValidation)
	}
	if err := req.Validate(); err != nil {
		return DeliveryResult{}, err
	}

	key := domain.DedupeKey(recipientID, &req)

	// Batchable types skip the suppression gate: repeats of the same key
	// inside the window are absorbed into the open batch, and the flush
	// still produces exactly one record.
	if o.batcher != nil && o.batcher.CanBatch(req.Type) {
		if err := o.batcher.Enqueue(recipientID, req); err == nil {
			o.dedupe.Remember(key)
			// Accepted for delivery; transport happens at flush time.
			return DeliveryResult{Batched: true, Delivered: true}, nil
		}
		// Batcher shut down; fall through to direct delivery.
	}

	if o.dedupe.ShouldSuppress(key) {
		o.metrics.IncSuppressed(req.Type.String())
		return DeliveryResult{Duplicate: true}, nil
	}

	// Cold-cache defense: the in-memory cache is lost on restart, so consult
	// the store over a trailing window before accepting the request as new.
	since := o.now().Add(-o.dedupeWindow)
	existing, err := o.notifications.FindRecentByKey(ctx, key, since)
	if err == nil {
		o.dedupe.Remember(key)
		o.metrics.IncSuppressed(req.Type.String())
		return DeliveryResult{NotificationID: existing.ID, Duplicate: true}, nil
	}
	if !errors.Is(err, domain.ErrNotFound) {
		o.logger.Warn("durable duplicate check failed, treating request as new",
			zap.String("recipientId", recipientID),
			zap.Error(err),
		)
	}

	n, err := o.persist(ctx, recipientID, req, key)
	if err != nil {
		return DeliveryResult{}, err
	}

	// A cache entry marks an accepted request; a failed store write must
	// leave the key free for the producer's re-submission.
	o.dedupe.Remember(key)

	out := o.deliver(ctx, n, 1)
	if out.status == domain.StatusFailed && out.retriable && o.retries != nil {
		o.retries.Schedule(*n)
	}

	return DeliveryResult{
		NotificationID: n.ID,
		Stored:         true,
		Delivered:      out.status == domain.StatusDelivered,
		Status:         out.status,
	}, nil
}

// FlushBatch is the batcher's flush target: synthesize the queued requests
// and run them through the same persist->dispatch->record pipeline. A
// flushed batch is final; on store failure the queued requests are dropped.
func (o *Orchestrator) FlushBatch(ctx context.Context, recipientID string, requests []domain.Request) {
	if len(requests) == 0 {
		return
	}

	req := SynthesizeBatch(requests)
	key := domain.DedupeKey(recipientID, &req)

	n, err := o.persist(ctx, recipientID, req, key)
	if err != nil {
		o.logger.Error("failed to persist flushed batch, dropping it",
			zap.String("recipientId", recipientID),
			zap.String("type", req.Type.String()),
			zap.Int("size", len(requests)),
			zap.Error(err),
		)
		return
	}

	out := o.deliver(ctx, n, 1)
	if out.status == domain.StatusFailed && out.retriable && o.retries != nil {
		o.retries.Schedule(*n)
	}
}

// RetryAttempt performs one retry for the scheduler, bypassing suppression
// and batching.
func (o *Orchestrator) RetryAttempt(ctx context.Context, n *domain.Notification, attemptNumber int) RetryOutcome {
	out := o.deliver(ctx, n, attemptNumber)
	return RetryOutcome{
		Delivered: out.status == domain.StatusDelivered,
		Retriable: out.status == domain.StatusFailed && out.retriable,
	}
}

func (o *Orchestrator) persist(ctx context.Context, recipientID string, req domain.Request, key string) (*domain.Notification, error) {
	payload := make(map[string]any, len(req.Payload)+1)
	for k, v := range req.Payload {
		payload[k] = v
	}
	if req.Route != "" {
		payload["route"] = req.Route
	}

	n := &domain.Notification{
		ID:          uuid.NewString(),
		RecipientID: recipientID,
		Type:        req.Type,
		Title:       req.Title,
		Body:        req.Body,
		Payload:     datatypes.JSONMap(payload),
		DedupeKey:   key,
		Status:      domain.StatusPending,
		Method:      domain.MethodNone,
	}

	if err := n.Validate(); err != nil {
		return nil, err
	}

	if err := o.notifications.Create(ctx, n); err != nil {
		return nil, fmt.Errorf("failed to persist notification: %w", err)
	}

	return n, nil
}

type deliverOutcome struct {
	status    domain.DeliveryStatus
	retriable bool
}

// deliver performs one transport attempt for a persisted notification and
// records its outcome. It never returns an error: transport failures become
// status transitions.
func (o *Orchestrator) deliver(ctx context.Context, n *domain.Notification, attemptNumber int) deliverOutcome {
	typeName := n.Type.String()

	if !o.transport.IsAvailable() {
		reason := push.ReasonTransportUnavailable
		o.recordAttempt(n, attemptNumber, domain.MethodNone, false, nil, &reason)
		o.updateStatus(ctx, n, domain.StatusFailed, domain.MethodNone)
		o.metrics.IncFailed(typeName, reason)
		o.logger.Error("push transport unavailable",
			zap.String("notificationId", n.ID),
			zap.String("recipientId", n.RecipientID),
		)
		return deliverOutcome{status: domain.StatusFailed, retriable: false}
	}

	if o.limiter != nil {
		if err := o.limiter.Wait(ctx, sendLimiterKey); err != nil {
			o.logger.Warn("send rate limiter wait failed",
				zap.String("notificationId", n.ID),
				zap.Error(err),
			)
		}
	}

	o.metrics.IncDeliveryInflight()
	sendStart := o.now()
	result, err := o.transport.SendToUser(ctx, n.RecipientID, renderNotification(n))
	o.metrics.ObserveSendDuration(typeName, o.now().Sub(sendStart))
	o.metrics.DecDeliveryInflight()

	if err != nil {
		reason := err.Error()
		o.recordAttempt(n, attemptNumber, domain.MethodPush, false, nil, &reason)
		o.updateStatus(ctx, n, domain.StatusFailed, domain.MethodPush)
		o.metrics.IncFailed(typeName, "transport_error")
		o.logger.Warn("push transport call failed",
			zap.String("notificationId", n.ID),
			zap.String("recipientId", n.RecipientID),
			zap.Int("attempt", attemptNumber),
			zap.Error(err),
		)
		return deliverOutcome{status: domain.StatusFailed, retriable: push.IsTransient(err)}
	}

	if result.Reason == push.ReasonNoActiveEndpoints {
		// Terminal non-error: recipient has no registered device. On a retry
		// the row is already FAILED and SKIPPED is unreachable; either way
		// the entry is discarded.
		status := domain.StatusSkipped
		if n.Status == domain.StatusFailed {
			status = domain.StatusFailed
		}
		o.recordAttempt(n, attemptNumber, domain.MethodNone, false, result, &result.Reason)
		o.updateStatus(ctx, n, status, domain.MethodNone)
		o.metrics.IncSkipped(typeName)
		return deliverOutcome{status: status, retriable: false}
	}

	if result.SentCount > 0 {
		o.recordAttempt(n, attemptNumber, domain.MethodPush, true, result, nil)
		o.updateStatus(ctx, n, domain.StatusDelivered, domain.MethodPush)
		o.metrics.IncDelivered(typeName)
		return deliverOutcome{status: domain.StatusDelivered, retriable: false}
	}

	reason := push.ReasonAllEndpointsFailed
	o.recordAttempt(n, attemptNumber, domain.MethodPush, false, result, &reason)
	o.updateStatus(ctx, n, domain.StatusFailed, domain.MethodPush)
	o.metrics.IncFailed(typeName, reason)
	return deliverOutcome{status: domain.StatusFailed, retriable: true}
}

func (o *Orchestrator) recordAttempt(
	n *domain.Notification,
	attemptNumber int,
	method domain.DeliveryMethod,
	success bool,
	result *push.SendResult,
	reason *string,
) {
	attempt := domain.DeliveryAttempt{
		ID:             uuid.NewString(),
		NotificationID: n.ID,
		AttemptNumber:  attemptNumber,
		Method:         method,
		Success:        success,
		Reason:         reason,
		CreatedAt:      o.now().UTC(),
	}
	if result != nil {
		attempt.SentCount = result.SentCount
		attempt.FailedCount = result.FailedCount
	}

	o.attempts.Record(attempt)
}

// updateStatus applies the transition to the row and mirrors it onto n.
// Conflicts mean the row is already terminal; those are ignored so a DELIVERED
// row can never regress.
func (o *Orchestrator) updateStatus(ctx context.Context, n *domain.Notification, status domain.DeliveryStatus, method domain.DeliveryMethod) {
	if !n.Status.CanTransition(status) && n.Status != status {
		o.logger.Warn("rejected delivery status transition",
			zap.String("notificationId", n.ID),
			zap.String("from", n.Status.String()),
			zap.String("to", status.String()),
		)
		return
	}

	if err := o.notifications.UpdateDelivery(ctx, n.ID, status, method); err != nil {
		if errors.Is(err, domain.ErrConflict) {
			return
		}
		o.logger.Error("failed to update delivery status",
			zap.String("notificationId", n.ID),
			zap.String("status", status.String()),
			zap.Error(err),
		)
		return
	}

	n.Status = status
	n.Method = method
}

// renderNotification flattens the stored payload into the string-valued data
// map push transports require.
func renderNotification(n *domain.Notification) push.RenderedNotification {
	data := make(map[string]string, len(n.Payload)+2)
	for k, v := range n.Payload {
		data[k] = fmt.Sprint(v)
	}
	data["notification_id"] = n.ID
	data["type"] = n.Type.String()

	return push.RenderedNotification{
		Title: n.Title,
		Body:  n.Body,
		Data:  data,
	}
}
