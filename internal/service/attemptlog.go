package service

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/loopmarket/push-relay/internal/domain"
	"github.com/loopmarket/push-relay/internal/repository"
)

const (
	defaultAttemptBuffer = 256
	attemptDrainTimeout  = 5 * time.Second
)

// AttemptWriter accepts delivery-attempt records without blocking the
// delivery path.
type AttemptWriter interface {
	Record(a domain.DeliveryAttempt)
}

// AttemptLog persists delivery attempts from a buffered channel so the
// primary delivery outcome never waits on audit I/O. Records are dropped
// with a warning when the buffer is full.
type AttemptLog struct {
	attempts repository.AttemptRepository
	ch       chan domain.DeliveryAttempt
	logger   *zap.Logger
}

func NewAttemptLog(attempts repository.AttemptRepository, buffer int, logger *zap.Logger) (*AttemptLog, error) {
	if attempts == nil {
		return nil, fmt.Errorf("attempt repository is required")
	}
	if buffer <= 0 {
		buffer = defaultAttemptBuffer
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &AttemptLog{
		attempts: attempts,
		ch:       make(chan domain.DeliveryAttempt, buffer),
		logger:   logger,
	}, nil
}

// Record enqueues an attempt for persistence. Never blocks.
func (l *AttemptLog) Record(a domain.DeliveryAttempt) {
	select {
	case l.ch <- a:
	default:
		l.logger.Warn("attempt log buffer full, dropping record",
			zap.String("notificationId", a.NotificationID),
			zap.Int("attemptNumber", a.AttemptNumber),
		)
	}
}

// Start drains the channel until ctx is canceled, then flushes whatever is
// still buffered on a short deadline.
func (l *AttemptLog) Start(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}

	for {
		select {
		case <-ctx.Done():
			l.drain()
			return nil
		case a := <-l.ch:
			l.write(ctx, a)
		}
	}
}

func (l *AttemptLog) drain() {
	drainCtx, cancel := context.WithTimeout(context.Background(), attemptDrainTimeout)
	defer cancel()

	for {
		select {
		case a := <-l.ch:
			l.write(drainCtx, a)
		default:
			return
		}
	}
}

func (l *AttemptLog) write(ctx context.Context, a domain.DeliveryAttempt) {
	if err := l.attempts.Create(ctx, &a); err != nil {
		l.logger.Error("failed to persist delivery attempt",
			zap.String("notificationId", a.NotificationID),
			zap.Int("attemptNumber", a.AttemptNumber),
			zap.Error(err),
		)
	}
}
