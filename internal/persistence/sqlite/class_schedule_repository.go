package sqlite

import (
	"context"
	"database/sql"

	"github.com/example/campus-events/internal/persistence"
)

// ClassScheduleRepository implements persistence.ClassScheduleRepository using SQLite
type ClassScheduleRepository struct {
	pool   *ConnectionPool
	helper *QueryHelper
	mapper *ErrorMapper
}

// NewClassScheduleRepository creates a new SQLite class schedule repository
func NewClassScheduleRepository(pool *ConnectionPool) *ClassScheduleRepository {
	return &ClassScheduleRepository{
		pool:   pool,
		helper: NewQueryHelper(pool),
		mapper: NewErrorMapper(),
	}
}

// ReplaceClassSchedule swaps a user's whole schedule in one transaction.
func (r *ClassScheduleRepository) ReplaceClassSchedule(ctx context.Context, userID string, entries []persistence.ClassEntry) error {
	if userID == "" {
		return persistence.ErrConstraintViolation
	}
	return r.pool.WithTransaction(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `DELETE FROM class_schedules WHERE user_id = ?`, userID); err != nil {
			return r.mapper.MapError(err)
		}
		for _, entry := range entries {
			if _, err := tx.ExecContext(ctx, `
				INSERT INTO class_schedules (user_id, period, course, teacher, room, course_key, teacher_key)
				VALUES (?, ?, ?, ?, ?, ?, ?)
			`, userID, entry.Period, entry.Course, entry.Teacher, entry.Room, entry.CourseKey, entry.TeacherKey); err != nil {
				return r.mapper.MapError(err)
			}
		}
		return nil
	})
}

// ListClassSchedule returns a user's schedule ordered by period.
func (r *ClassScheduleRepository) ListClassSchedule(ctx context.Context, userID string) ([]persistence.ClassEntry, error) {
	rows, err := r.helper.Query(ctx, `
		SELECT user_id, period, course, teacher, room, course_key, teacher_key
		FROM class_schedules
		WHERE user_id = ?
		ORDER BY period ASC
	`, userID)
	if err != nil {
		return nil, r.mapper.MapError(err)
	}
	defer rows.Close()

	var entries []persistence.ClassEntry
	for rows.Next() {
		var entry persistence.ClassEntry
		if err := rows.Scan(&entry.UserID, &entry.Period, &entry.Course, &entry.Teacher, &entry.Room,
			&entry.CourseKey, &entry.TeacherKey); err != nil {
			return nil, r.mapper.MapError(err)
		}
		entries = append(entries, entry)
	}
	return entries, r.mapper.MapError(rows.Err())
}

// FindClassmates returns other users sharing a period, course and teacher
// with userID, ordered by period then display name.
func (r *ClassScheduleRepository) FindClassmates(ctx context.Context, userID string) ([]persistence.ClassmateMatch, error) {
	rows, err := r.helper.Query(ctx, `
		SELECT other.user_id, u.display_name, u.grade, mine.period, mine.course, mine.teacher
		FROM class_schedules mine
		JOIN class_schedules other
			ON other.period = mine.period
			AND other.course_key = mine.course_key
			AND other.teacher_key = mine.teacher_key
			AND other.user_id != mine.user_id
		JOIN users u ON u.id = other.user_id
		WHERE mine.user_id = ?
		ORDER BY mine.period ASC, u.display_name ASC, other.user_id ASC
	`, userID)
	if err != nil {
		return nil, r.mapper.MapError(err)
	}
	defer rows.Close()

	var matches []persistence.ClassmateMatch
	for rows.Next() {
		var match persistence.ClassmateMatch
		if err := rows.Scan(&match.UserID, &match.DisplayName, &match.Grade, &match.Period,
			&match.Course, &match.Teacher); err != nil {
			return nil, r.mapper.MapError(err)
		}
		matches = append(matches, match)
	}
	return matches, r.mapper.MapError(rows.Err())
}
