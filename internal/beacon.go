// Package beacon defines domain types and interfaces for the beacon analytics
// client. This package has no project imports -- it is the dependency root.
package beacon

import (
	"context"
	"time"
)

// --- Events ---

// EventType names a tracking API call.
type EventType string

// Supported event types.
const (
	TypeAlias    EventType = "alias"
	TypeIdentify EventType = "identify"
	TypeTrack    EventType = "track"
)

// Common holds fields shared by every event. MessageID and Timestamp are
// filled in by the client when left empty.
type Common struct {
	MessageID string         `json:"messageId,omitempty"`
	Timestamp time.Time      `json:"timestamp,omitzero"`
	Context   map[string]any `json:"context,omitempty"`
}

// Alias links a previous identity to a user ID.
type Alias struct {
	Common
	PreviousID string `json:"previousId"`
	UserID     string `json:"userId"`
}

// Identify ties a user to their traits. At least one of AnonymousID and
// UserID is required.
type Identify struct {
	Common
	AnonymousID string         `json:"anonymousId,omitempty"`
	UserID      string         `json:"userId,omitempty"`
	Traits      map[string]any `json:"traits,omitempty"`
}

// Track records an action performed by a user. Event is required, as is at
// least one of AnonymousID and UserID.
type Track struct {
	Common
	AnonymousID string         `json:"anonymousId,omitempty"`
	UserID      string         `json:"userId,omitempty"`
	Event       string         `json:"event"`
	Properties  map[string]any `json:"properties,omitempty"`
}

// --- Delivery ---

// Payload is a ready-to-send request: where it goes and the encoded body.
// It is the work item carried by the client's background worker.
type Payload struct {
	Type       EventType
	MessageID  string
	Endpoint   string // absolute URL
	Body       []byte // JSON without sentAt; added at delivery time
	EnqueuedAt time.Time
}

// Failure is a delivery that did not succeed. Failures are recorded for
// inspection only; they are never redelivered.
type Failure struct {
	ID         string    `json:"id"`
	MessageID  string    `json:"message_id"`
	Type       EventType `json:"type"`
	Endpoint   string    `json:"endpoint"`
	StatusCode int       `json:"status_code,omitempty"` // 0 when no response was received
	Error      string    `json:"error"`
	Body       string    `json:"body"`
	CreatedAt  time.Time `json:"created_at"`
}

// FailureFilter narrows a failure listing.
type FailureFilter struct {
	Type   EventType
	Since  time.Time
	Offset int
	Limit  int
}

// --- Context keys ---

type contextKey int

const ctxKeyRequestID contextKey = 0

// RequestIDFromContext extracts the request ID from context.
func RequestIDFromContext(ctx context.Context) string {
	id, _ := ctx.Value(ctxKeyRequestID).(string)
	return id
}

// ContextWithRequestID returns a context carrying the given request ID.
func ContextWithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, ctxKeyRequestID, id)
}
