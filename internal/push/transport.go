package push

import "context"

// Reasons recorded on attempts and send results.
const (
	// ReasonNoActiveEndpoints means the recipient has no registered active
	// device. Terminal non-error: the delivery is skipped, never retried.
	ReasonNoActiveEndpoints    = "no_active_endpoints"
	ReasonAllEndpointsFailed   = "all_endpoints_failed"
	ReasonTransportUnavailable = "transport_unavailable"
)

// RenderedNotification is the final content handed to the transport.
type RenderedNotification struct {
	Title string
	Body  string
	// Data is the client-side routing payload; FCM requires string values.
	Data map[string]string
}

// TokenError describes a per-endpoint send failure.
type TokenError struct {
	Token string
	Code  string
}

// SendResult summarizes one transport call across the recipient's endpoints.
type SendResult struct {
	SentCount   int
	FailedCount int
	TokenErrors []TokenError
	// Reason is set for terminal non-error outcomes, e.g. no endpoints.
	Reason string
}

// Transport delivers rendered notifications to a user's active device
// endpoints. A returned error means the call as a whole failed; per-endpoint
// failures are reported inside SendResult.
type Transport interface {
	IsAvailable() bool
	SendToUser(ctx context.Context, recipientID string, n RenderedNotification) (*SendResult, error)
}
