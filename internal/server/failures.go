package server

import (
	"net/http"
	"strconv"
	"time"

	beacon "github.com/eugener/beacon/internal"
)

type pagination struct {
	Offset int `json:"offset"`
	Limit  int `json:"limit"`
	Total  int `json:"total"`
}

type listResponse struct {
	Data       any        `json:"data"`
	Pagination pagination `json:"pagination"`
}

func parsePagination(r *http.Request) (offset, limit int) {
	offset, _ = strconv.Atoi(r.URL.Query().Get("offset"))
	limit, _ = strconv.Atoi(r.URL.Query().Get("limit"))
	if limit <= 0 || limit > 100 {
		limit = 50
	}
	if offset < 0 {
		offset = 0
	}
	return
}

// handleListFailures lists recorded delivery failures, newest first.
// Query: type, since (RFC 3339), offset, limit.
func (s *server) handleListFailures(w http.ResponseWriter, r *http.Request) {
	if s.deps.Failures == nil {
		writeError(w, r, beacon.ErrNotFound)
		return
	}

	offset, limit := parsePagination(r)
	filter := beacon.FailureFilter{
		Type:   beacon.EventType(r.URL.Query().Get("type")),
		Offset: offset,
		Limit:  limit,
	}
	if v := r.URL.Query().Get("since"); v != "" {
		since, err := time.Parse(time.RFC3339, v)
		if err != nil {
			writeJSON(w, http.StatusBadRequest, errorResponse("since must be RFC 3339"))
			return
		}
		filter.Since = since
	}

	rows, err := s.deps.Failures.ListFailures(r.Context(), filter)
	if err != nil {
		writeError(w, r, err)
		return
	}
	total, err := s.deps.Failures.CountFailures(r.Context(), filter)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if rows == nil {
		rows = []beacon.Failure{}
	}
	writeJSON(w, http.StatusOK, listResponse{
		Data:       rows,
		Pagination: pagination{Offset: offset, Limit: limit, Total: total},
	})
}
