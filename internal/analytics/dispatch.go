package analytics

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/tidwall/gjson"

	beacon "github.com/eugener/beacon/internal"
)

// Sink accepts tracking calls.
type Sink interface {
	Alias(ctx context.Context, ev beacon.Alias) error
	Identify(ctx context.Context, ev beacon.Identify) error
	Track(ctx context.Context, ev beacon.Track) error
}

var _ Sink = (*Client)(nil)

// Event is one decoded and validated tracking call. Exactly the field
// matching Type is set.
type Event struct {
	Type     beacon.EventType
	Alias    beacon.Alias
	Identify beacon.Identify
	Track    beacon.Track
}

// Decode parses one JSON event by its "type" field and validates it.
// Unknown types return ErrUnknownType; malformed bodies ErrBadRequest.
func Decode(raw []byte) (Event, error) {
	ev := Event{Type: beacon.EventType(gjson.GetBytes(raw, "type").String())}
	var err error
	switch ev.Type {
	case beacon.TypeAlias:
		if err = decodeEvent(raw, ev.Type, &ev.Alias); err == nil {
			err = validateAlias(ev.Alias)
		}
	case beacon.TypeIdentify:
		if err = decodeEvent(raw, ev.Type, &ev.Identify); err == nil {
			err = validateIdentify(ev.Identify)
		}
	case beacon.TypeTrack:
		if err = decodeEvent(raw, ev.Type, &ev.Track); err == nil {
			err = validateTrack(ev.Track)
		}
	case "":
		err = fmt.Errorf("%w: missing type", beacon.ErrUnknownType)
	default:
		err = fmt.Errorf("%w: %q", beacon.ErrUnknownType, ev.Type)
	}
	if err != nil {
		return Event{}, err
	}
	return ev, nil
}

// Send forwards the event to sink.
func (e Event) Send(ctx context.Context, sink Sink) error {
	switch e.Type {
	case beacon.TypeAlias:
		return sink.Alias(ctx, e.Alias)
	case beacon.TypeIdentify:
		return sink.Identify(ctx, e.Identify)
	case beacon.TypeTrack:
		return sink.Track(ctx, e.Track)
	default:
		return fmt.Errorf("%w: %q", beacon.ErrUnknownType, e.Type)
	}
}

// Dispatch decodes raw and forwards it to sink.
func Dispatch(ctx context.Context, sink Sink, raw []byte) error {
	ev, err := Decode(raw)
	if err != nil {
		return err
	}
	return ev.Send(ctx, sink)
}

func decodeEvent(raw []byte, typ beacon.EventType, v any) error {
	if err := json.Unmarshal(raw, v); err != nil {
		return fmt.Errorf("%w: invalid %s event: %v", beacon.ErrBadRequest, typ, err)
	}
	return nil
}
