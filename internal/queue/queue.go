package queue

import "context"

// Queue topology for inbound notification requests.
const (
	// RequestQueueName receives raw notification requests from the
	// business-event producers.
	RequestQueueName = "notify.requests"
	// RequestDLQName collects requests the engine could not persist, so the
	// producing event can be replayed.
	RequestDLQName = "dlq.notify.requests"

	dlxExchangeName   = "notify.dlx"
	requestRoutingKey = "requests"
)

// Publisher publishes request messages to a queue.
type Publisher interface {
	Publish(ctx context.Context, queue string, msg RequestMessage) error
	Close() error
}

// MessageHandler handles a consumed request message.
type MessageHandler func(ctx context.Context, msg RequestMessage) error

// Consumer consumes request messages from a queue.
type Consumer interface {
	Consume(ctx context.Context, queue string, handler MessageHandler) error
	Close() error
}
