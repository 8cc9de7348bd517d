package sqlite

import (
	"context"
	"fmt"
	"time"

	"github.com/example/campus-events/internal/persistence"
)

// RSVPRepository implements persistence.RSVPRepository using SQLite
type RSVPRepository struct {
	helper *QueryHelper
	mapper *ErrorMapper
	retry  *RetryHelper
	now    func() time.Time
}

// NewRSVPRepository creates a new SQLite RSVP repository
func NewRSVPRepository(pool *ConnectionPool) *RSVPRepository {
	return &RSVPRepository{
		helper: NewQueryHelper(pool),
		mapper: NewErrorMapper(),
		retry:  NewRetryHelper(DefaultRetryConfig()),
		now:    time.Now,
	}
}

// UpsertRSVP records or changes a user's RSVP status for an event. The
// original creation time is kept when the RSVP already exists.
func (r *RSVPRepository) UpsertRSVP(ctx context.Context, rsvp persistence.RSVP) error {
	if rsvp.EventID == "" || rsvp.UserID == "" {
		return persistence.ErrConstraintViolation
	}
	if rsvp.CreatedAt.IsZero() {
		rsvp.CreatedAt = r.now().UTC()
	}
	return r.retry.WithRetry(ctx, func() error {
		_, err := r.helper.Exec(ctx, `
			INSERT INTO rsvps (event_id, user_id, status, created_at)
			VALUES (?, ?, ?, ?)
			ON CONFLICT (event_id, user_id) DO UPDATE SET status = excluded.status
		`, rsvp.EventID, rsvp.UserID, rsvp.Status, formatTime(rsvp.CreatedAt))
		return err
	})
}

// DeleteRSVP removes a user's RSVP for an event.
func (r *RSVPRepository) DeleteRSVP(ctx context.Context, eventID, userID string) error {
	result, err := r.helper.Exec(ctx, `DELETE FROM rsvps WHERE event_id = ? AND user_id = ?`, eventID, userID)
	if err != nil {
		return r.mapper.MapError(err)
	}
	return requireAffected(result)
}

// ListRSVPsForUser returns a user's RSVPs, newest first.
func (r *RSVPRepository) ListRSVPsForUser(ctx context.Context, userID string) ([]persistence.RSVP, error) {
	rows, err := r.helper.Query(ctx, `
		SELECT event_id, user_id, status, created_at
		FROM rsvps
		WHERE user_id = ?
		ORDER BY created_at DESC, event_id ASC
	`, userID)
	if err != nil {
		return nil, r.mapper.MapError(err)
	}
	defer rows.Close()

	var rsvps []persistence.RSVP
	for rows.Next() {
		var rsvp persistence.RSVP
		var createdAt string
		if err := rows.Scan(&rsvp.EventID, &rsvp.UserID, &rsvp.Status, &createdAt); err != nil {
			return nil, r.mapper.MapError(err)
		}
		if rsvp.CreatedAt, err = parseTime(createdAt); err != nil {
			return nil, fmt.Errorf("failed to parse created_at: %w", err)
		}
		rsvps = append(rsvps, rsvp)
	}
	if err := rows.Err(); err != nil {
		return nil, r.mapper.MapError(err)
	}
	return rsvps, nil
}
