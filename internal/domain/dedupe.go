package domain

import (
	"fmt"
	"sort"
	"strings"
)

// Payload fields used as duplicate-key discriminators.
const (
	PayloadConversationID = "conversation_id"
	PayloadSenderID       = "sender_id"
	PayloadApplicationID  = "application_id"
	PayloadPayoutID       = "payout_id"
	PayloadWorkID         = "work_id"
	PayloadReviewID       = "review_id"
)

type keyBuilder func(recipientID string, req *Request) string

// dedupeKeyBuilders is the closed dispatch table from notification type to
// duplicate-key derivation. Chat-like types fold in the conversation and
// sender; single-instance-per-context types fold in their context id; every
// other type falls back to a stable payload serialization.
var dedupeKeyBuilders = map[NotificationType]keyBuilder{
	TypeChatMessage: func(recipientID string, req *Request) string {
		return joinKey(recipientID, req.Type.String(),
			req.PayloadString(PayloadConversationID),
			req.PayloadString(PayloadSenderID))
	},
	TypeApplicationCreated:  contextKey(PayloadApplicationID),
	TypeApplicationAccepted: contextKey(PayloadApplicationID),
	TypeApplicationRejected: contextKey(PayloadApplicationID),
	TypePayoutReleased:      contextKey(PayloadPayoutID),
	TypeWorkSubmitted:       contextKey(PayloadWorkID),
	TypeReviewReceived:      contextKey(PayloadReviewID),
}

func contextKey(field string) keyBuilder {
	return func(recipientID string, req *Request) string {
		return joinKey(recipientID, req.Type.String(), req.PayloadString(field))
	}
}

// DedupeKey derives the duplicate-suppression key for a request.
func DedupeKey(recipientID string, req *Request) string {
	if req == nil {
		return ""
	}
	if build, ok := dedupeKeyBuilders[req.Type]; ok {
		return build(recipientID, req)
	}
	return joinKey(recipientID, req.Type.String(), canonicalPayload(req.Payload))
}

func joinKey(parts ...string) string {
	return strings.Join(parts, ":")
}

// canonicalPayload renders a payload deterministically: sorted keys, each
// value through fmt. Good enough as a discriminator; never parsed back.
func canonicalPayload(payload map[string]any) string {
	if len(payload) == 0 {
		return ""
	}

	keys := make([]string, 0, len(payload))
	for k := range payload {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, fmt.Sprintf("%s=%v", k, payload[k]))
	}
	return strings.Join(parts, "&")
}
