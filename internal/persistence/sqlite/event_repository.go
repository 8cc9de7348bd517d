package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/example/campus-events/internal/calendar"
	"github.com/example/campus-events/internal/persistence"
)

const eventColumns = `events.id, events.name, events.description, events.start_at, events.end_at,
	events.is_all_day, events.location_name, events.address, events.url, events.type, events.status,
	events.organizer_id, events.created_by, events.post_id, events.image_path, events.recurrence,
	events.created_at, events.updated_at`

// EventRepository implements persistence.EventRepository using SQLite
type EventRepository struct {
	pool   *ConnectionPool
	helper *QueryHelper
	mapper *ErrorMapper
	retry  *RetryHelper
	now    func() time.Time
	logger *slog.Logger
}

// NewEventRepository creates a new SQLite event repository. A nil logger
// uses slog.Default.
func NewEventRepository(pool *ConnectionPool, logger *slog.Logger) *EventRepository {
	if logger == nil {
		logger = slog.Default()
	}
	return &EventRepository{
		logger: logger,
		pool:   pool,
		helper: NewQueryHelper(pool),
		mapper: NewErrorMapper(),
		retry:  NewRetryHelper(DefaultRetryConfig()),
		now:    time.Now,
	}
}

// CreateEvent inserts an event with its categories and tags.
func (r *EventRepository) CreateEvent(ctx context.Context, event persistence.Event) error {
	if event.ID == "" || strings.TrimSpace(event.Name) == "" {
		return persistence.ErrConstraintViolation
	}
	now := r.now().UTC()
	if event.CreatedAt.IsZero() {
		event.CreatedAt = now
	}
	if event.UpdatedAt.IsZero() {
		event.UpdatedAt = event.CreatedAt
	}
	applyEventDefaults(&event)

	return r.retry.WithRetry(ctx, func() error {
		return r.pool.WithTransaction(ctx, func(tx *sql.Tx) error {
			_, err := tx.ExecContext(ctx, `
				INSERT INTO events (id, name, description, start_at, end_at, is_all_day, location_name, address,
					url, type, status, organizer_id, created_by, post_id, image_path, recurrence, created_at, updated_at)
				VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
			`,
				event.ID,
				event.Name,
				event.Description,
				nullableTime(event.StartAt),
				nullableTime(event.EndAt),
				event.IsAllDay,
				event.LocationName,
				event.Address,
				event.URL,
				event.Type,
				event.Status,
				nullableString(event.OrganizerID),
				nullableString(event.CreatedBy),
				nullableString(event.PostID),
				event.ImagePath,
				event.Recurrence,
				formatTime(event.CreatedAt),
				formatTime(event.UpdatedAt),
			)
			if err != nil {
				return r.mapper.MapError(err)
			}
			return r.writeLabels(ctx, tx, event)
		})
	})
}

// UpdateEvent replaces the mutable fields, categories and tags of an event.
func (r *EventRepository) UpdateEvent(ctx context.Context, event persistence.Event) error {
	if event.ID == "" || strings.TrimSpace(event.Name) == "" {
		return persistence.ErrConstraintViolation
	}
	if event.UpdatedAt.IsZero() {
		event.UpdatedAt = r.now().UTC()
	}
	applyEventDefaults(&event)

	return r.retry.WithRetry(ctx, func() error {
		return r.pool.WithTransaction(ctx, func(tx *sql.Tx) error {
			result, err := tx.ExecContext(ctx, `
				UPDATE events
				SET name = ?, description = ?, start_at = ?, end_at = ?, is_all_day = ?, location_name = ?,
					address = ?, url = ?, type = ?, status = ?, organizer_id = ?, post_id = ?, image_path = ?,
					recurrence = ?, updated_at = ?
				WHERE id = ?
			`,
				event.Name,
				event.Description,
				nullableTime(event.StartAt),
				nullableTime(event.EndAt),
				event.IsAllDay,
				event.LocationName,
				event.Address,
				event.URL,
				event.Type,
				event.Status,
				nullableString(event.OrganizerID),
				nullableString(event.PostID),
				event.ImagePath,
				event.Recurrence,
				formatTime(event.UpdatedAt),
				event.ID,
			)
			if err != nil {
				return r.mapper.MapError(err)
			}
			if err := requireAffected(result); err != nil {
				return err
			}
			if _, err := tx.ExecContext(ctx, `DELETE FROM event_categories WHERE event_id = ?`, event.ID); err != nil {
				return r.mapper.MapError(err)
			}
			if _, err := tx.ExecContext(ctx, `DELETE FROM event_tags WHERE event_id = ?`, event.ID); err != nil {
				return r.mapper.MapError(err)
			}
			return r.writeLabels(ctx, tx, event)
		})
	})
}

// GetEvent retrieves an event by ID.
func (r *EventRepository) GetEvent(ctx context.Context, id string) (persistence.Event, error) {
	if id == "" {
		return persistence.Event{}, persistence.ErrNotFound
	}
	event, err := r.scanEvent(r.helper.QueryRow(ctx, `SELECT `+eventColumns+` FROM events WHERE events.id = ?`, id))
	if err != nil {
		return persistence.Event{}, err
	}
	events := []persistence.Event{event}
	if err := r.attachLabels(ctx, events); err != nil {
		return persistence.Event{}, err
	}
	return events[0], nil
}

// ListEvents returns events matching filter ordered by start, undated last.
func (r *EventRepository) ListEvents(ctx context.Context, filter persistence.EventFilter) ([]persistence.Event, error) {
	where, args := eventFilterClause(filter)
	query := `SELECT ` + eventColumns + ` FROM events`
	if len(where) > 0 {
		query += ` WHERE ` + strings.Join(where, ` AND `)
	}
	query += ` ORDER BY events.start_at IS NULL, events.start_at ASC, events.id ASC`
	if filter.Limit > 0 {
		query += ` LIMIT ?`
		args = append(args, filter.Limit)
	}

	rows, err := r.helper.Query(ctx, query, args...)
	if err != nil {
		return nil, r.mapper.MapError(err)
	}
	defer rows.Close()

	var events []persistence.Event
	for rows.Next() {
		event, err := r.scanEvent(rows)
		if err != nil {
			return nil, err
		}
		events = append(events, event)
	}
	if err := rows.Err(); err != nil {
		return nil, r.mapper.MapError(err)
	}
	if err := r.attachLabels(ctx, events); err != nil {
		return nil, err
	}
	return events, nil
}

// DeleteEvent removes an event; categories, tags and RSVPs cascade.
func (r *EventRepository) DeleteEvent(ctx context.Context, id string) error {
	if id == "" {
		return persistence.ErrNotFound
	}
	return r.retry.WithRetry(ctx, func() error {
		result, err := r.helper.Exec(ctx, `DELETE FROM events WHERE id = ?`, id)
		if err != nil {
			return r.mapper.MapError(err)
		}
		return requireAffected(result)
	})
}

// DeleteExtractedEvents removes every event created from an Instagram post.
// Events entered by organizers are kept.
func (r *EventRepository) DeleteExtractedEvents(ctx context.Context) (int64, error) {
	var affected int64
	err := r.retry.WithRetry(ctx, func() error {
		result, err := r.helper.Exec(ctx, `DELETE FROM events WHERE post_id IS NOT NULL`)
		if err != nil {
			return r.mapper.MapError(err)
		}
		affected, err = result.RowsAffected()
		return err
	})
	return affected, err
}

// ListTrending returns active events starting in [from, to) ordered by RSVP count.
func (r *EventRepository) ListTrending(ctx context.Context, from, to time.Time, limit int) ([]persistence.TrendingEvent, error) {
	if limit <= 0 {
		limit = 10
	}
	rows, err := r.helper.Query(ctx, `
		SELECT `+eventColumns+`, COUNT(rsvps.user_id) AS rsvp_count
		FROM events
		LEFT JOIN rsvps ON rsvps.event_id = events.id
		WHERE events.status = 'active' AND events.start_at >= ? AND events.start_at < ?
		GROUP BY events.id
		ORDER BY rsvp_count DESC, events.start_at ASC, events.id ASC
		LIMIT ?
	`, formatTime(from), formatTime(to), limit)
	if err != nil {
		return nil, r.mapper.MapError(err)
	}
	defer rows.Close()

	var trending []persistence.TrendingEvent
	var events []persistence.Event
	for rows.Next() {
		var count int
		event, err := r.scanEventWith(rows, &count)
		if err != nil {
			return nil, err
		}
		events = append(events, event)
		trending = append(trending, persistence.TrendingEvent{RSVPCount: count})
	}
	if err := rows.Err(); err != nil {
		return nil, r.mapper.MapError(err)
	}
	if err := r.attachLabels(ctx, events); err != nil {
		return nil, err
	}
	for i := range trending {
		trending[i].Event = events[i]
	}
	return trending, nil
}

func (r *EventRepository) writeLabels(ctx context.Context, tx *sql.Tx, event persistence.Event) error {
	for _, name := range event.Categories {
		result, err := tx.ExecContext(ctx, `
			INSERT OR IGNORE INTO event_categories (event_id, category_id)
			SELECT ?, id FROM categories WHERE name = ?
		`, event.ID, name)
		if err != nil {
			return r.mapper.MapError(err)
		}
		if affected, _ := result.RowsAffected(); affected == 0 {
			var exists int
			if err := tx.QueryRowContext(ctx, `SELECT COUNT(*) FROM categories WHERE name = ?`, name).Scan(&exists); err != nil {
				return r.mapper.MapError(err)
			}
			if exists == 0 {
				return fmt.Errorf("%w: unknown category %q", persistence.ErrConstraintViolation, name)
			}
		}
	}
	for i, tag := range event.Tags {
		if _, err := tx.ExecContext(ctx, `INSERT OR IGNORE INTO event_tags (event_id, position, tag) VALUES (?, ?, ?)`,
			event.ID, i, tag); err != nil {
			return r.mapper.MapError(err)
		}
	}
	return nil
}

// attachLabels loads categories and tags for events in two queries.
func (r *EventRepository) attachLabels(ctx context.Context, events []persistence.Event) error {
	if len(events) == 0 {
		return nil
	}
	index := make(map[string]int, len(events))
	placeholders := make([]string, len(events))
	args := make([]any, len(events))
	for i, event := range events {
		index[event.ID] = i
		placeholders[i] = "?"
		args[i] = event.ID
	}
	in := strings.Join(placeholders, ", ")

	rows, err := r.helper.Query(ctx, `
		SELECT ec.event_id, c.name
		FROM event_categories ec
		JOIN categories c ON c.id = ec.category_id
		WHERE ec.event_id IN (`+in+`)
		ORDER BY ec.event_id, c.id
	`, args...)
	if err != nil {
		return r.mapper.MapError(err)
	}
	for rows.Next() {
		var eventID, name string
		if err := rows.Scan(&eventID, &name); err != nil {
			rows.Close()
			return r.mapper.MapError(err)
		}
		i := index[eventID]
		events[i].Categories = append(events[i].Categories, name)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return r.mapper.MapError(err)
	}
	rows.Close()

	rows, err = r.helper.Query(ctx, `
		SELECT event_id, tag FROM event_tags WHERE event_id IN (`+in+`) ORDER BY event_id, position
	`, args...)
	if err != nil {
		return r.mapper.MapError(err)
	}
	defer rows.Close()
	for rows.Next() {
		var eventID, tag string
		if err := rows.Scan(&eventID, &tag); err != nil {
			return r.mapper.MapError(err)
		}
		i := index[eventID]
		events[i].Tags = append(events[i].Tags, tag)
	}
	return r.mapper.MapError(rows.Err())
}

func (r *EventRepository) scanEvent(row scanner) (persistence.Event, error) {
	return r.scanEventWith(row)
}

func (r *EventRepository) scanEventWith(row scanner, extra ...any) (persistence.Event, error) {
	var event persistence.Event
	var startAt, endAt, organizerID, createdBy, postID sql.NullString
	var createdAt, updatedAt string

	dest := []any{
		&event.ID,
		&event.Name,
		&event.Description,
		&startAt,
		&endAt,
		&event.IsAllDay,
		&event.LocationName,
		&event.Address,
		&event.URL,
		&event.Type,
		&event.Status,
		&organizerID,
		&createdBy,
		&postID,
		&event.ImagePath,
		&event.Recurrence,
		&createdAt,
		&updatedAt,
	}
	if err := row.Scan(append(dest, extra...)...); err != nil {
		return persistence.Event{}, r.mapper.MapError(err)
	}

	event.StartAt = r.eventTime(event.ID, "start_at", startAt)
	event.EndAt = r.eventTime(event.ID, "end_at", endAt)

	var err error
	if event.CreatedAt, err = parseTime(createdAt); err != nil {
		return persistence.Event{}, fmt.Errorf("failed to parse created_at: %w", err)
	}
	if event.UpdatedAt, err = parseTime(updatedAt); err != nil {
		return persistence.Event{}, fmt.Errorf("failed to parse updated_at: %w", err)
	}
	event.OrganizerID = stringPtr(organizerID)
	event.CreatedBy = stringPtr(createdBy)
	event.PostID = stringPtr(postID)
	return event, nil
}

// eventTime reads a stored event boundary. A value that does not parse is
// treated as absent so the row is listed as undated instead of failing the
// whole query.
func (r *EventRepository) eventTime(eventID, column string, value sql.NullString) *time.Time {
	if !value.Valid || strings.TrimSpace(value.String) == "" {
		return nil
	}
	ts := calendar.ParseTimestamp(value.String)
	if ts == nil {
		r.logger.Warn("ignoring unparsable event timestamp", "event_id", eventID, "column", column, "value", value.String)
		return nil
	}
	utc := ts.UTC()
	return &utc
}

func applyEventDefaults(event *persistence.Event) {
	if event.Type == "" {
		event.Type = "in-person"
	}
	if event.Status == "" {
		event.Status = "active"
	}
}

func eventFilterClause(filter persistence.EventFilter) ([]string, []any) {
	var where []string
	var args []any

	if !filter.IncludeCancelled {
		where = append(where, `events.status = 'active'`)
	}

	dated := `events.start_at IS NOT NULL`
	if filter.From != nil || filter.To != nil {
		var bounds []string
		var recurring []string
		if filter.From != nil {
			bounds = append(bounds, `events.start_at >= ?`)
			args = append(args, formatTime(*filter.From))
		}
		if filter.To != nil {
			bounds = append(bounds, `events.start_at < ?`)
			args = append(args, formatTime(*filter.To))
			recurring = append(recurring, `events.start_at < ?`)
			args = append(args, formatTime(*filter.To))
		}
		clause := `(` + strings.Join(bounds, ` AND `) + `)`
		if len(recurring) > 0 {
			clause = `(` + clause + ` OR (events.recurrence != '' AND ` + strings.Join(recurring, ` AND `) + `))`
		}
		dated = `(events.start_at IS NOT NULL AND ` + clause + `)`
	}
	if filter.IncludeUndated {
		where = append(where, `(`+dated+` OR events.start_at IS NULL)`)
	} else {
		where = append(where, dated)
	}

	if category := strings.TrimSpace(filter.Category); category != "" {
		where = append(where, `EXISTS (
			SELECT 1 FROM event_categories ec JOIN categories c ON c.id = ec.category_id
			WHERE ec.event_id = events.id AND c.name = ?)`)
		args = append(args, strings.ToLower(category))
	}
	if tag := strings.TrimSpace(filter.Tag); tag != "" {
		where = append(where, `EXISTS (SELECT 1 FROM event_tags t WHERE t.event_id = events.id AND t.tag = ? COLLATE NOCASE)`)
		args = append(args, tag)
	}
	if query := strings.TrimSpace(filter.Query); query != "" {
		pattern := "%" + escapeLike(query) + "%"
		where = append(where, `(events.name LIKE ? ESCAPE '\' OR events.description LIKE ? ESCAPE '\' OR events.location_name LIKE ? ESCAPE '\')`)
		args = append(args, pattern, pattern, pattern)
	}
	if filter.OrganizerID != "" {
		where = append(where, `events.organizer_id = ?`)
		args = append(args, filter.OrganizerID)
	}
	if filter.CreatedBy != "" {
		where = append(where, `events.created_by = ?`)
		args = append(args, filter.CreatedBy)
	}
	return where, args
}

func escapeLike(value string) string {
	replacer := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return replacer.Replace(value)
}
