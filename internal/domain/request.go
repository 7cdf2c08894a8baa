package domain

import (
	"fmt"
	"strconv"
	"strings"
)

// Request is a raw notification request as produced by a business event,
// before suppression, batching, and persistence.
type Request struct {
	Type    NotificationType
	Title   string
	Body    string
	Payload map[string]any
	// Route is an optional client-side routing hint carried into the payload.
	Route string
}

func (r *Request) Validate() error {
	if !r.Type.IsValid() {
		return fmt.Errorf("%w: invalid notification type %q", ErrValidation, r.Type)
	}
	if strings.TrimSpace(r.Title) == "" {
		return fmt.Errorf("%w: title is required", ErrValidation)
	}
	return nil
}

// PayloadString returns the payload value for key as a string, or "" when
// absent or not string-like.
func (r *Request) PayloadString(key string) string {
	if r.Payload == nil {
		return ""
	}
	switch v := r.Payload[key].(type) {
	case string:
		return v
	case fmt.Stringer:
		return v.String()
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	case int:
		return strconv.Itoa(v)
	case int64:
		return strconv.FormatInt(v, 10)
	default:
		return ""
	}
}
