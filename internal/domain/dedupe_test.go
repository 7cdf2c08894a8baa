package domain

import "testing"

func TestDedupeKeyChatMessage(t *testing.T) {
	t.Parallel()

	req := &Request{
		Type:  TypeChatMessage,
		Title: "New Message",
		Payload: map[string]any{
			"conversation_id": "conv-42",
			"sender_id":       "user-9",
			"preview":         "ignored by the key",
		},
	}

	want := "user-1:CHAT_MESSAGE:conv-42:user-9"
	if got := DedupeKey("user-1", req); got != want {
		t.Fatalf("DedupeKey = %q, want %q", got, want)
	}
}

func TestDedupeKeyContextTypes(t *testing.T) {
	t.Parallel()

	testCases := []struct {
		name  string
		typ   NotificationType
		field string
	}{
		{name: "application created", typ: TypeApplicationCreated, field: PayloadApplicationID},
		{name: "application accepted", typ: TypeApplicationAccepted, field: PayloadApplicationID},
		{name: "application rejected", typ: TypeApplicationRejected, field: PayloadApplicationID},
		{name: "payout released", typ: TypePayoutReleased, field: PayloadPayoutID},
		{name: "work submitted", typ: TypeWorkSubmitted, field: PayloadWorkID},
		{name: "review received", typ: TypeReviewReceived, field: PayloadReviewID},
	}

	for _, tc := range testCases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			req := &Request{
				Type:    tc.typ,
				Title:   "t",
				Payload: map[string]any{tc.field: "ctx-7", "noise": "x"},
			}

			want := "user-1:" + tc.typ.String() + ":ctx-7"
			if got := DedupeKey("user-1", req); got != want {
				t.Fatalf("DedupeKey = %q, want %q", got, want)
			}
		})
	}
}

func TestDedupeKeyFallbackSerializesPayload(t *testing.T) {
	t.Parallel()

	req := &Request{
		Type:  TypePaymentCompleted,
		Title: "Payment Received",
		Payload: map[string]any{
			"payment_id": "pay-3",
			"amount":     12.5,
		},
	}

	want := "user-1:PAYMENT_COMPLETED:amount=12.5&payment_id=pay-3"
	if got := DedupeKey("user-1", req); got != want {
		t.Fatalf("DedupeKey = %q, want %q", got, want)
	}
}

func TestDedupeKeyFallbackIsOrderIndependent(t *testing.T) {
	t.Parallel()

	a := &Request{Type: TypePaymentCompleted, Title: "t", Payload: map[string]any{"a": 1, "b": 2, "c": 3}}
	b := &Request{Type: TypePaymentCompleted, Title: "t", Payload: map[string]any{"c": 3, "a": 1, "b": 2}}

	if DedupeKey("user-1", a) != DedupeKey("user-1", b) {
		t.Fatal("payload insertion order must not change the key")
	}
}

func TestDedupeKeyDistinguishesRecipients(t *testing.T) {
	t.Parallel()

	req := &Request{
		Type:    TypeChatMessage,
		Title:   "t",
		Payload: map[string]any{"conversation_id": "conv-1", "sender_id": "user-2"},
	}

	if DedupeKey("user-1", req) == DedupeKey("user-3", req) {
		t.Fatal("same event for different recipients must produce distinct keys")
	}
}

func TestDedupeKeyEmptyPayload(t *testing.T) {
	t.Parallel()

	req := &Request{Type: TypePaymentCompleted, Title: "t"}

	want := "user-1:PAYMENT_COMPLETED:"
	if got := DedupeKey("user-1", req); got != want {
		t.Fatalf("DedupeKey = %q, want %q", got, want)
	}

	if got := DedupeKey("user-1", nil); got != "" {
		t.Fatalf("DedupeKey(nil request) = %q, want empty", got)
	}
}
