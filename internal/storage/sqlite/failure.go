package sqlite

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"

	beacon "github.com/eugener/beacon/internal"
)

// InsertFailure records a failed delivery. An empty ID is assigned a UUIDv7
// and a zero CreatedAt is set to now.
func (s *Store) InsertFailure(ctx context.Context, f *beacon.Failure) error {
	if f.ID == "" {
		f.ID = uuid.Must(uuid.NewV7()).String()
	}
	if f.CreatedAt.IsZero() {
		f.CreatedAt = time.Now()
	}
	_, err := s.write.ExecContext(ctx,
		`INSERT INTO failures (id, message_id, type, endpoint, status_code, error, body, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		f.ID, f.MessageID, string(f.Type), f.Endpoint, f.StatusCode, f.Error, f.Body,
		f.CreatedAt.UTC().Format(time.RFC3339),
	)
	return err
}

// ListFailures returns failures matching the filter, newest first.
func (s *Store) ListFailures(ctx context.Context, f beacon.FailureFilter) ([]beacon.Failure, error) {
	where, args := failureWhere(f)
	limit := f.Limit
	if limit <= 0 {
		limit = 50
	}
	args = append(args, limit, f.Offset)

	// UUIDv7 IDs sort by creation time, breaking same-second ties.
	rows, err := s.read.QueryContext(ctx,
		`SELECT id, message_id, type, endpoint, status_code, error, body, created_at
		 FROM failures`+where+` ORDER BY created_at DESC, id DESC LIMIT ? OFFSET ?`,
		args...,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []beacon.Failure
	for rows.Next() {
		var r beacon.Failure
		var typ, createdAt string
		if err := rows.Scan(&r.ID, &r.MessageID, &typ, &r.Endpoint, &r.StatusCode,
			&r.Error, &r.Body, &createdAt); err != nil {
			return nil, err
		}
		r.Type = beacon.EventType(typ)
		if t, e := time.Parse(time.RFC3339, createdAt); e == nil {
			r.CreatedAt = t
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// CountFailures returns the number of failures matching the filter.
// Offset and Limit are ignored.
func (s *Store) CountFailures(ctx context.Context, f beacon.FailureFilter) (int, error) {
	where, args := failureWhere(f)
	var n int
	err := s.read.QueryRowContext(ctx, `SELECT COUNT(*) FROM failures`+where, args...).Scan(&n)
	return n, err
}

// DeleteFailuresBefore removes failures created before cutoff and returns
// how many were removed.
func (s *Store) DeleteFailuresBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := s.write.ExecContext(ctx,
		`DELETE FROM failures WHERE created_at < ?`, cutoff.UTC().Format(time.RFC3339))
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func failureWhere(f beacon.FailureFilter) (string, []any) {
	var clauses []string
	var args []any
	if f.Type != "" {
		clauses = append(clauses, "type = ?")
		args = append(args, string(f.Type))
	}
	if !f.Since.IsZero() {
		clauses = append(clauses, "created_at >= ?")
		args = append(args, f.Since.UTC().Format(time.RFC3339))
	}
	if len(clauses) == 0 {
		return "", nil
	}
	return " WHERE " + strings.Join(clauses, " AND "), args
}
