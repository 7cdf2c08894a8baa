package service

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/loopmarket/push-relay/internal/domain"
	"github.com/loopmarket/push-relay/internal/observability"
)

const (
	defaultBatchWindow  = 5 * time.Second
	defaultBatchMaxSize = 10
)

// FlushFunc receives the queued requests of one recipient's batch, oldest
// first, exactly once per flush.
type FlushFunc func(ctx context.Context, recipientID string, requests []domain.Request)

type pendingBatch struct {
	recipientID string
	requestType domain.NotificationType
	requests    []domain.Request
	timer       *time.Timer
}

// Batcher groups rapid-fire requests of a batchable type per recipient into
// one synthesized notification within a bounded time/size window.
type Batcher struct {
	window    time.Duration
	maxSize   int
	batchable map[domain.NotificationType]bool
	flushFn   FlushFunc
	logger    *zap.Logger
	metrics   *observability.Metrics

	mu      sync.Mutex
	batches map[string]*pendingBatch
	closed  bool

	// flushMu serializes flushes per recipient so a window flush and a
	// size-cap flush can never run concurrently for the same user.
	flushMuMu sync.Mutex
	flushMu   map[string]*sync.Mutex
}

func NewBatcher(
	window time.Duration,
	maxSize int,
	batchable map[domain.NotificationType]bool,
	flushFn FlushFunc,
	logger *zap.Logger,
) (*Batcher, error) {
	if flushFn == nil {
		return nil, fmt.Errorf("flush func is required")
	}
	if window <= 0 {
		window = defaultBatchWindow
	}
	if maxSize <= 0 {
		maxSize = defaultBatchMaxSize
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Batcher{
		window:    window,
		maxSize:   maxSize,
		batchable: batchable,
		flushFn:   flushFn,
		logger:    logger,
		batches:   make(map[string]*pendingBatch),
		flushMu:   make(map[string]*sync.Mutex),
	}, nil
}

func (b *Batcher) SetMetrics(metrics *observability.Metrics) {
	if b == nil {
		return
	}
	b.metrics = metrics
}

// CanBatch reports whether requests of type t are batchable.
func (b *Batcher) CanBatch(t domain.NotificationType) bool {
	return b != nil && b.batchable[t]
}

// Enqueue appends a request to the recipient's open batch, opening one (and
// arming its window timer) when none exists. Reaching the size cap flushes
// immediately and cancels the timer.
func (b *Batcher) Enqueue(recipientID string, req domain.Request) error {
	if !b.CanBatch(req.Type) {
		return fmt.Errorf("%w: type %s is not batchable", domain.ErrValidation, req.Type)
	}

	key := batchKey(recipientID, req.Type)

	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return fmt.Errorf("batcher is shut down")
	}

	batch, ok := b.batches[key]
	if !ok {
		batch = &pendingBatch{
			recipientID: recipientID,
			requestType: req.Type,
		}
		batch.timer = time.AfterFunc(b.window, func() {
			b.flushKey(context.Background(), key)
		})
		b.batches[key] = batch
	}

	batch.requests = append(batch.requests, req)
	b.metrics.IncBatched(req.Type.String())

	full := len(batch.requests) >= b.maxSize
	if full {
		batch.timer.Stop()
		delete(b.batches, key)
	}
	b.mu.Unlock()

	if full {
		go b.flushBatch(context.Background(), batch)
	}

	return nil
}

// PendingCount returns the number of requests queued for a recipient+type,
// zero when no batch is open.
func (b *Batcher) PendingCount(recipientID string, t domain.NotificationType) int {
	b.mu.Lock()
	defer b.mu.Unlock()

	if batch, ok := b.batches[batchKey(recipientID, t)]; ok {
		return len(batch.requests)
	}
	return 0
}

// FlushAll flushes every open batch and refuses further enqueues. Called on
// graceful shutdown; best-effort by design.
func (b *Batcher) FlushAll(ctx context.Context) {
	b.mu.Lock()
	b.closed = true
	open := make([]*pendingBatch, 0, len(b.batches))
	for key, batch := range b.batches {
		batch.timer.Stop()
		delete(b.batches, key)
		open = append(open, batch)
	}
	b.mu.Unlock()

	for _, batch := range open {
		b.flushBatch(ctx, batch)
	}
}

func (b *Batcher) flushKey(ctx context.Context, key string) {
	b.mu.Lock()
	batch, ok := b.batches[key]
	if ok {
		delete(b.batches, key)
	}
	b.mu.Unlock()

	if !ok {
		// Already flushed by the size cap or FlushAll.
		return
	}

	b.flushBatch(ctx, batch)
}

func (b *Batcher) flushBatch(ctx context.Context, batch *pendingBatch) {
	if len(batch.requests) == 0 {
		return
	}

	mu := b.recipientFlushMu(batch.recipientID)
	mu.Lock()
	defer mu.Unlock()

	b.metrics.ObserveBatchFlushSize(len(batch.requests))
	b.logger.Debug("flushing batch",
		zap.String("recipientId", batch.recipientID),
		zap.String("type", batch.requestType.String()),
		zap.Int("size", len(batch.requests)),
	)

	b.flushFn(ctx, batch.recipientID, batch.requests)
}

func (b *Batcher) recipientFlushMu(recipientID string) *sync.Mutex {
	b.flushMuMu.Lock()
	defer b.flushMuMu.Unlock()

	mu, ok := b.flushMu[recipientID]
	if !ok {
		mu = &sync.Mutex{}
		b.flushMu[recipientID] = mu
	}
	return mu
}

func batchKey(recipientID string, t domain.NotificationType) string {
	return recipientID + ":" + t.String()
}

// SynthesizeBatch collapses queued requests into the single outgoing
// request: a lone request passes through unchanged, two or more produce a
// summary with an aggregate payload.
func SynthesizeBatch(requests []domain.Request) domain.Request {
	if len(requests) == 1 {
		return requests[0]
	}

	first := requests[0]
	count := len(requests)

	summary := domain.Request{
		Type:  first.Type,
		Route: first.Route,
		Payload: map[string]any{
			"count": count,
			"type":  first.Type.String(),
		},
	}

	switch first.Type {
	case domain.TypeChatMessage:
		summary.Title = fmt.Sprintf("%d New Messages", count)
		summary.Body = fmt.Sprintf("you have %d new messages", count)
		summary.Payload["conversation_ids"] = collectDistinct(requests, domain.PayloadConversationID)
	case domain.TypeApplicationCreated:
		summary.Title = fmt.Sprintf("%d New Applications", count)
		summary.Body = fmt.Sprintf("you have %d new applications", count)
		summary.Payload["application_ids"] = collectDistinct(requests, domain.PayloadApplicationID)
	default:
		summary.Title = fmt.Sprintf("%d New Notifications", count)
		summary.Body = fmt.Sprintf("you have %d new notifications", count)
	}

	return summary
}

// collectDistinct gathers the named payload field across requests in
// insertion order, dropping empties and duplicates.
func collectDistinct(requests []domain.Request, field string) []any {
	seen := make(map[string]bool, len(requests))
	values := make([]any, 0, len(requests))
	for i := range requests {
		v := requests[i].PayloadString(field)
		if v == "" || seen[v] {
			continue
		}
		seen[v] = true
		values = append(values, v)
	}
	return values
}
