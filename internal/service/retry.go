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
	defaultRetryInitialDelay = 2 * time.Second
	defaultRetryMaxDelay     = 30 * time.Second
	defaultRetryCeiling      = 5
	defaultRetryTick         = time.Second
)

// RetryOutcome reports the result of one retry attempt.
type RetryOutcome struct {
	Delivered bool
	Retriable bool
}

// RetryAttemptFunc performs exactly one delivery attempt for a previously
// failed notification. Suppression and batching are bypassed: the original
// request already passed those gates.
type RetryAttemptFunc func(ctx context.Context, n *domain.Notification, attemptNumber int) RetryOutcome

// RetryEntry is the in-memory state for one failed delivery awaiting
// re-attempt. Attempts counts retries already performed.
type RetryEntry struct {
	NotificationID string
	RecipientID    string
	Notification   domain.Notification
	Attempts       int
	NextAttemptAt  time.Time
}

// RetryScheduler re-attempts failed deliveries on an exponential-backoff
// schedule up to a retry ceiling. Entries are volatile: a process restart
// loses them.
type RetryScheduler struct {
	mu      sync.Mutex
	entries map[string]*RetryEntry

	initial time.Duration
	max     time.Duration
	tick    time.Duration
	ceiling int

	attempt RetryAttemptFunc
	logger  *zap.Logger
	metrics *observability.Metrics
	now     func() time.Time
}

func NewRetryScheduler(
	initial time.Duration,
	maxDelay time.Duration,
	tick time.Duration,
	ceiling int,
	attempt RetryAttemptFunc,
	logger *zap.Logger,
) (*RetryScheduler, error) {
	if attempt == nil {
		return nil, fmt.Errorf("retry attempt func is required")
	}
	if initial <= 0 {
		initial = defaultRetryInitialDelay
	}
	if maxDelay <= 0 {
		maxDelay = defaultRetryMaxDelay
	}
	if tick <= 0 {
		tick = defaultRetryTick
	}
	if ceiling <= 0 {
		ceiling = defaultRetryCeiling
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &RetryScheduler{
		entries: make(map[string]*RetryEntry),
		initial: initial,
		max:     maxDelay,
		tick:    tick,
		ceiling: ceiling,
		attempt: attempt,
		logger:  logger,
		now:     time.Now,
	}, nil
}

func (s *RetryScheduler) SetMetrics(metrics *observability.Metrics) {
	if s == nil {
		return
	}
	s.metrics = metrics
}

// Schedule enqueues a failed delivery for its first retry. A notification
// already pending a retry is left untouched so attempts for one id stay
// strictly sequential.
func (s *RetryScheduler) Schedule(n domain.Notification) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.entries[n.ID]; exists {
		return
	}

	s.entries[n.ID] = &RetryEntry{
		NotificationID: n.ID,
		RecipientID:    n.RecipientID,
		Notification:   n,
		Attempts:       0,
		NextAttemptAt:  s.now().Add(s.delay(0)),
	}
	s.metrics.IncRetryScheduled()

	s.logger.Info("delivery scheduled for retry",
		zap.String("notificationId", n.ID),
		zap.String("recipientId", n.RecipientID),
		zap.Duration("delay", s.delay(0)),
	)
}

// PendingCount returns the number of entries awaiting a retry.
func (s *RetryScheduler) PendingCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}

// Start drives the periodic scan until ctx is canceled.
func (s *RetryScheduler) Start(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}

	ticker := time.NewTicker(s.tick)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			s.tickOnce(ctx)
		}
	}
}

// tickOnce retries every due entry exactly once. Due entries are removed
// from the pending set before the attempt and re-inserted only when another
// retry is warranted.
func (s *RetryScheduler) tickOnce(ctx context.Context) {
	now := s.now()

	s.mu.Lock()
	due := make([]*RetryEntry, 0)
	for id, entry := range s.entries {
		if !entry.NextAttemptAt.After(now) {
			due = append(due, entry)
			delete(s.entries, id)
		}
	}
	s.mu.Unlock()

	for _, entry := range due {
		if ctx.Err() != nil {
			return
		}
		s.retryEntry(ctx, entry)
	}
}

func (s *RetryScheduler) retryEntry(ctx context.Context, entry *RetryEntry) {
	attemptNumber := entry.Attempts + 2 // the initial attempt was number 1
	outcome := s.attempt(ctx, &entry.Notification, attemptNumber)

	if outcome.Delivered {
		s.logger.Info("retry delivered",
			zap.String("notificationId", entry.NotificationID),
			zap.Int("retries", entry.Attempts+1),
		)
		return
	}

	if !outcome.Retriable {
		s.logger.Info("retry ended in terminal state, dropping entry",
			zap.String("notificationId", entry.NotificationID),
		)
		return
	}

	entry.Attempts++
	if entry.Attempts >= s.ceiling {
		s.metrics.IncRetryExhausted()
		s.logger.Warn("retry ceiling exhausted, delivery remains failed",
			zap.String("notificationId", entry.NotificationID),
			zap.String("recipientId", entry.RecipientID),
			zap.Int("retries", entry.Attempts),
		)
		return
	}

	entry.NextAttemptAt = s.now().Add(s.delay(entry.Attempts))

	s.mu.Lock()
	s.entries[entry.NotificationID] = entry
	s.mu.Unlock()
}

// delay computes min(initial * 2^attempts, max).
func (s *RetryScheduler) delay(attempts int) time.Duration {
	if attempts < 0 {
		attempts = 0
	}

	delay := s.initial
	for i := 0; i < attempts; i++ {
		delay *= 2
		if delay >= s.max {
			return s.max
		}
	}
	if delay > s.max {
		return s.max
	}
	return delay
}
