package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"

	"github.com/tidwall/gjson"

	beacon "github.com/eugener/beacon/internal"
	"github.com/eugener/beacon/internal/analytics"
)

// maxEventBody is the maximum allowed event request body size (512 KB).
const maxEventBody = 512 << 10

// maxBatchBody is the maximum allowed batch request body size (4 MB).
const maxBatchBody = 4 << 20

type apiError struct {
	Error struct {
		Message string `json:"message"`
		Type    string `json:"type"`
	} `json:"error"`
}

func errorResponse(msg string) apiError {
	var e apiError
	e.Error.Message = msg
	e.Error.Type = "invalid_request_error"
	return e
}

type acceptedResponse struct {
	Success  bool   `json:"success"`
	Accepted int    `json:"accepted,omitempty"`
	Error    string `json:"error,omitempty"` // set when a batch was cut short
}

func errorStatus(err error) int {
	switch {
	case errors.Is(err, beacon.ErrMissingIdentity),
		errors.Is(err, beacon.ErrMissingEvent),
		errors.Is(err, beacon.ErrMissingPreviousID),
		errors.Is(err, beacon.ErrUnknownType),
		errors.Is(err, beacon.ErrBadRequest):
		return http.StatusBadRequest
	case errors.Is(err, beacon.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, beacon.ErrClosed):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

var jsonCT = []string{"application/json"}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header()["Content-Type"] = jsonCT
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("failed to encode response", "error", err)
	}
}

// writeError maps err to a status and writes it. Internal errors are logged
// and replaced with a generic message.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := errorStatus(err)
	if status == http.StatusInternalServerError {
		slog.LogAttrs(r.Context(), slog.LevelError, "request failed",
			slog.String("error", err.Error()),
			slog.String("request_id", beacon.RequestIDFromContext(r.Context())),
		)
		writeJSON(w, status, errorResponse("internal error"))
		return
	}
	writeJSON(w, status, errorResponse(err.Error()))
}

func (s *server) handleAlias(w http.ResponseWriter, r *http.Request) {
	var ev beacon.Alias
	if !decodeJSON(w, r, &ev) {
		return
	}
	s.accept(w, r, s.deps.Events.Alias(r.Context(), ev))
}

func (s *server) handleIdentify(w http.ResponseWriter, r *http.Request) {
	var ev beacon.Identify
	if !decodeJSON(w, r, &ev) {
		return
	}
	s.accept(w, r, s.deps.Events.Identify(r.Context(), ev))
}

func (s *server) handleTrack(w http.ResponseWriter, r *http.Request) {
	var ev beacon.Track
	if !decodeJSON(w, r, &ev) {
		return
	}
	s.accept(w, r, s.deps.Events.Track(r.Context(), ev))
}

// handleEvent accepts any event type, dispatching on its "type" field.
func (s *server) handleEvent(w http.ResponseWriter, r *http.Request) {
	body, ok := readBody(w, r, maxEventBody)
	if !ok {
		return
	}
	s.accept(w, r, analytics.Dispatch(r.Context(), s.deps.Events, body))
}

// handleBatch accepts {"batch":[event, ...]}. Every event is decoded and
// validated before any is enqueued, so an invalid item rejects the whole
// batch. If the client closes part way through, the response reports how
// many events were taken.
func (s *server) handleBatch(w http.ResponseWriter, r *http.Request) {
	body, ok := readBody(w, r, maxBatchBody)
	if !ok {
		return
	}
	batch := gjson.GetBytes(body, "batch")
	if !batch.IsArray() {
		writeJSON(w, http.StatusBadRequest, errorResponse("batch must be an array"))
		return
	}
	items := batch.Array()
	if !s.admit(w, r, int64(len(items))) {
		return
	}

	events := make([]analytics.Event, len(items))
	for i, item := range items {
		ev, err := analytics.Decode([]byte(item.Raw))
		if err != nil {
			writeError(w, r, fmt.Errorf("batch item %d: %w", i, err))
			return
		}
		events[i] = ev
	}

	for n, ev := range events {
		err := ev.Send(r.Context(), s.deps.Events)
		if err == nil {
			continue
		}
		err = fmt.Errorf("batch item %d: %w", n, err)
		if n == 0 {
			writeError(w, r, err)
			return
		}
		slog.LogAttrs(r.Context(), slog.LevelWarn, "batch partially accepted",
			slog.Int("accepted", n),
			slog.Int("total", len(events)),
			slog.String("error", err.Error()),
		)
		msg := err.Error()
		if errorStatus(err) == http.StatusInternalServerError {
			msg = "internal error"
		}
		writeJSON(w, http.StatusAccepted, acceptedResponse{Accepted: n, Error: msg})
		return
	}
	writeJSON(w, http.StatusAccepted, acceptedResponse{Success: true, Accepted: len(events)})
}

func (s *server) accept(w http.ResponseWriter, r *http.Request, err error) {
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusAccepted, acceptedResponse{Success: true})
}

// decodeJSON limits body size, decodes JSON into v, and writes a 400 on error.
// Returns true if decoding succeeded.
func decodeJSON(w http.ResponseWriter, r *http.Request, v any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxEventBody)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse("invalid request body"))
		return false
	}
	return true
}

func readBody(w http.ResponseWriter, r *http.Request, limit int64) ([]byte, bool) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, limit))
	if err != nil {
		writeJSON(w, http.StatusRequestEntityTooLarge, errorResponse("request body too large"))
		return nil, false
	}
	if !gjson.ValidBytes(body) {
		writeJSON(w, http.StatusBadRequest, errorResponse("invalid request body"))
		return nil, false
	}
	return body, true
}
