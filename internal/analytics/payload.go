package analytics

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	beacon "github.com/eugener/beacon/internal"
)

// header is the envelope every outbound message starts with. sentAt is not
// part of it; it is spliced in at delivery time.
type header struct {
	Type      beacon.EventType `json:"type"`
	MessageID string           `json:"messageId"`
	Timestamp time.Time        `json:"timestamp"`
	Context   map[string]any   `json:"context,omitempty"`
}

type aliasMessage struct {
	header
	PreviousID string `json:"previousId"`
	UserID     string `json:"userId"`
}

type identifyMessage struct {
	header
	AnonymousID string         `json:"anonymousId,omitempty"`
	UserID      string         `json:"userId,omitempty"`
	Traits      map[string]any `json:"traits,omitempty"`
}

type trackMessage struct {
	header
	AnonymousID string         `json:"anonymousId,omitempty"`
	UserID      string         `json:"userId,omitempty"`
	Event       string         `json:"event"`
	Properties  map[string]any `json:"properties,omitempty"`
}

// newHeader fills the envelope from c, generating a message ID and timestamp
// when absent. explicit reports whether the caller supplied the ID.
func newHeader(typ beacon.EventType, c beacon.Common, now time.Time) (h header, explicit bool) {
	h = header{
		Type:      typ,
		MessageID: c.MessageID,
		Timestamp: c.Timestamp,
		Context:   c.Context,
	}
	explicit = h.MessageID != ""
	if !explicit {
		h.MessageID = uuid.Must(uuid.NewV7()).String()
	}
	if h.Timestamp.IsZero() {
		h.Timestamp = now
	}
	h.Timestamp = h.Timestamp.UTC()
	return h, explicit
}

func validateAlias(ev beacon.Alias) error {
	if ev.PreviousID == "" {
		return beacon.ErrMissingPreviousID
	}
	if ev.UserID == "" {
		return beacon.ErrMissingIdentity
	}
	return nil
}

func validateIdentify(ev beacon.Identify) error {
	if ev.UserID == "" && ev.AnonymousID == "" {
		return beacon.ErrMissingIdentity
	}
	return nil
}

func validateTrack(ev beacon.Track) error {
	if ev.UserID == "" && ev.AnonymousID == "" {
		return beacon.ErrMissingIdentity
	}
	if ev.Event == "" {
		return beacon.ErrMissingEvent
	}
	return nil
}

func encode(msg any) ([]byte, error) {
	body, err := json.Marshal(msg)
	if err != nil {
		return nil, fmt.Errorf("analytics: marshal message: %w", err)
	}
	return body, nil
}

// withSentAt returns a copy of the JSON object body with a sentAt member
// appended. body must be a non-empty JSON object.
func withSentAt(body []byte, at time.Time) []byte {
	stamp, _ := at.UTC().MarshalJSON()
	out := make([]byte, 0, len(body)+len(stamp)+10)
	out = append(out, body[:len(body)-1]...)
	out = append(out, `,"sentAt":`...)
	out = append(out, stamp...)
	out = append(out, '}')
	return out
}
