package push

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
)

func TestIsTransientClassification(t *testing.T) {
	t.Parallel()

	testCases := []struct {
		name string
		err  error
		want bool
	}{
		{name: "nil", err: nil, want: false},
		{name: "deadline exceeded", err: context.DeadlineExceeded, want: true},
		{name: "canceled", err: context.Canceled, want: false},
		{name: "transient transport error", err: &TransportError{Message: "gateway busy", Transient: true}, want: true},
		{name: "permanent transport error", err: &TransportError{StatusCode: 400, Transient: false}, want: false},
		{name: "wrapped transient", err: fmt.Errorf("send: %w", &TransportError{Transient: true}), want: true},
		{name: "plain error", err: errors.New("boom"), want: false},
	}

	for _, tc := range testCases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			if got := IsTransient(tc.err); got != tc.want {
				t.Fatalf("IsTransient() = %v, want %v", got, tc.want)
			}
		})
	}
}

func TestTransportErrorMessage(t *testing.T) {
	t.Parallel()

	err := &TransportError{
		StatusCode: 502,
		Message:    "push gateway returned status 502",
		Cause:      errors.New("upstream reset"),
	}

	msg := err.Error()
	for _, want := range []string{"transport error", "status=502", "upstream reset"} {
		if !strings.Contains(msg, want) {
			t.Fatalf("Error() = %q, want it to contain %q", msg, want)
		}
	}

	if !errors.Is(err, err.Cause) {
		t.Fatal("Unwrap must expose the cause")
	}
}
