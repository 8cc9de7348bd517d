package application

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"unicode"
)

const (
	minPeriod = 1
	maxPeriod = 12
)

var honorifics = map[string]bool{"mr": true, "mrs": true, "ms": true, "miss": true, "mx": true, "dr": true, "prof": true}

// ClassScheduleRepository captures the persistence operations needed by the classmate service.
type ClassScheduleRepository interface {
	ReplaceClassSchedule(ctx context.Context, userID string, entries []ClassEntry) error
	ListClassSchedule(ctx context.Context, userID string) ([]ClassEntry, error)
	FindClassmates(ctx context.Context, userID string) ([]Classmate, error)
}

// ClassmateService stores class schedules and finds students sharing a class.
type ClassmateService struct {
	schedules ClassScheduleRepository
	logger    *slog.Logger
}

// NewClassmateService wires dependencies for class schedule operations.
func NewClassmateService(schedules ClassScheduleRepository) *ClassmateService {
	return NewClassmateServiceWithLogger(schedules, nil)
}

// NewClassmateServiceWithLogger wires dependencies with a specific logger.
func NewClassmateServiceWithLogger(schedules ClassScheduleRepository, logger *slog.Logger) *ClassmateService {
	return &ClassmateService{schedules: schedules, logger: defaultLogger(logger)}
}

// ReplaceSchedule swaps the principal's schedule for entries. Each period may
// appear once.
func (s *ClassmateService) ReplaceSchedule(ctx context.Context, principal Principal, entries []ClassEntry) ([]ClassEntry, error) {
	if s == nil {
		return nil, fmt.Errorf("ClassmateService is nil")
	}
	if s.schedules == nil {
		return nil, fmt.Errorf("class schedule repository not configured")
	}
	if principal.UserID == "" {
		return nil, ErrUnauthorized
	}

	normalized, vErr := normalizeClassEntries(entries)
	if vErr.HasErrors() {
		return nil, vErr
	}
	if err := s.schedules.ReplaceClassSchedule(ctx, principal.UserID, normalized); err != nil {
		return nil, mapRepoError(err, "entries")
	}
	serviceLogger(ctx, s.logger, "ClassmateService", "ReplaceSchedule", "principal_id", principal.UserID).
		InfoContext(ctx, "class schedule replaced", "periods", len(normalized))
	return normalized, nil
}

// Schedule returns the principal's class schedule ordered by period.
func (s *ClassmateService) Schedule(ctx context.Context, principal Principal) ([]ClassEntry, error) {
	if s == nil {
		return nil, fmt.Errorf("ClassmateService is nil")
	}
	if principal.UserID == "" {
		return nil, ErrUnauthorized
	}
	if s.schedules == nil {
		return nil, nil
	}
	return s.schedules.ListClassSchedule(ctx, principal.UserID)
}

// Classmates lists other students with the same period, course and teacher as
// the principal.
func (s *ClassmateService) Classmates(ctx context.Context, principal Principal) ([]Classmate, error) {
	if s == nil {
		return nil, fmt.Errorf("ClassmateService is nil")
	}
	if principal.UserID == "" {
		return nil, ErrUnauthorized
	}
	if s.schedules == nil {
		return nil, nil
	}
	return s.schedules.FindClassmates(ctx, principal.UserID)
}

func normalizeClassEntries(entries []ClassEntry) ([]ClassEntry, *ValidationError) {
	vErr := &ValidationError{}
	seen := make(map[int]bool, len(entries))
	out := make([]ClassEntry, 0, len(entries))
	for _, entry := range entries {
		field := fmt.Sprintf("entries[%d]", entry.Period)
		if entry.Period < minPeriod || entry.Period > maxPeriod {
			vErr.add(field, fmt.Sprintf("period must be between %d and %d", minPeriod, maxPeriod))
			continue
		}
		if seen[entry.Period] {
			vErr.add(field, "period listed twice")
			continue
		}
		seen[entry.Period] = true

		entry.Course = strings.TrimSpace(entry.Course)
		entry.Teacher = strings.TrimSpace(entry.Teacher)
		entry.Room = strings.TrimSpace(entry.Room)
		entry.CourseKey = ClassKey(entry.Course, false)
		entry.TeacherKey = ClassKey(entry.Teacher, true)
		if entry.CourseKey == "" || entry.TeacherKey == "" {
			vErr.add(field, "course and teacher are required")
			continue
		}
		out = append(out, entry)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Period < out[j].Period })
	return out, vErr
}

// ClassKey lower-cases value, drops punctuation and collapses whitespace so
// "AP Bio." and "ap  bio" match. With teacher set, leading honorifics are
// removed: "Mrs. Smith" becomes "smith".
func ClassKey(value string, teacher bool) string {
	cleaned := strings.Map(func(r rune) rune {
		if unicode.IsPunct(r) || unicode.IsSymbol(r) {
			return ' '
		}
		return unicode.ToLower(r)
	}, value)
	words := strings.Fields(cleaned)
	if teacher {
		for len(words) > 1 && honorifics[words[0]] {
			words = words[1:]
		}
	}
	return strings.Join(words, " ")
}
