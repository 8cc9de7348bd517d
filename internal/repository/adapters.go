// Package repository adapts the persistence repositories to the interfaces
// the application services consume. Both commands share it.
package repository

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/example/campus-events/internal/application"
	"github.com/example/campus-events/internal/persistence"
)

// Users presents persistence users as application users and credentials.
type Users struct {
	repo persistence.UserRepository
}

func NewUsers(repo persistence.UserRepository) *Users {
	return &Users{repo: repo}
}

func (a *Users) CreateUser(ctx context.Context, user application.User, passwordHash string) (application.User, error) {
	if err := a.repo.CreateUser(ctx, toPersistenceUser(user, passwordHash)); err != nil {
		return application.User{}, err
	}
	return a.GetUser(ctx, user.ID)
}

func (a *Users) GetUser(ctx context.Context, id string) (application.User, error) {
	stored, err := a.repo.GetUser(ctx, id)
	if err != nil {
		return application.User{}, err
	}
	return toApplicationUser(stored), nil
}

// UpdateUser keeps the stored password hash.
func (a *Users) UpdateUser(ctx context.Context, user application.User) (application.User, error) {
	current, err := a.repo.GetUser(ctx, user.ID)
	if err != nil {
		return application.User{}, err
	}
	if err := a.repo.UpdateUser(ctx, toPersistenceUser(user, current.PasswordHash)); err != nil {
		return application.User{}, err
	}
	return a.GetUser(ctx, user.ID)
}

func (a *Users) DeleteUser(ctx context.Context, id string) error {
	return a.repo.DeleteUser(ctx, id)
}

func (a *Users) ListUsers(ctx context.Context) ([]application.User, error) {
	models, err := a.repo.ListUsers(ctx)
	if err != nil {
		return nil, err
	}
	users := make([]application.User, 0, len(models))
	for _, model := range models {
		users = append(users, toApplicationUser(model))
	}
	return users, nil
}

// GetUserCredentialsByEmail reports unknown addresses as application.ErrNotFound.
func (a *Users) GetUserCredentialsByEmail(ctx context.Context, email string) (application.UserCredentials, error) {
	stored, err := a.repo.GetUserByEmail(ctx, email)
	if errors.Is(err, persistence.ErrNotFound) {
		return application.UserCredentials{}, application.ErrNotFound
	}
	if err != nil {
		return application.UserCredentials{}, err
	}
	return application.UserCredentials{
		User:         toApplicationUser(stored),
		PasswordHash: stored.PasswordHash,
	}, nil
}

type Sessions struct {
	repo persistence.SessionRepository
}

func NewSessions(repo persistence.SessionRepository) *Sessions {
	return &Sessions{repo: repo}
}

func (a *Sessions) CreateSession(ctx context.Context, session application.Session) (application.Session, error) {
	stored, err := a.repo.CreateSession(ctx, toPersistenceSession(session))
	if err != nil {
		return application.Session{}, err
	}
	return toApplicationSession(stored), nil
}

func (a *Sessions) GetSession(ctx context.Context, token string) (application.Session, error) {
	stored, err := a.repo.GetSession(ctx, token)
	if err != nil {
		return application.Session{}, err
	}
	return toApplicationSession(stored), nil
}

func (a *Sessions) UpdateSession(ctx context.Context, session application.Session) (application.Session, error) {
	stored, err := a.repo.UpdateSession(ctx, toPersistenceSession(session))
	if err != nil {
		return application.Session{}, err
	}
	return toApplicationSession(stored), nil
}

func (a *Sessions) RevokeSession(ctx context.Context, token string, revokedAt time.Time) (application.Session, error) {
	stored, err := a.repo.RevokeSession(ctx, token, revokedAt)
	if err != nil {
		return application.Session{}, err
	}
	return toApplicationSession(stored), nil
}

func (a *Sessions) DeleteExpiredSessions(ctx context.Context, reference time.Time) (int64, error) {
	return a.repo.DeleteExpiredSessions(ctx, reference)
}

// Events presents stored events to the event, RSVP and calendar services.
type Events struct {
	repo persistence.EventRepository
}

func NewEvents(repo persistence.EventRepository) *Events {
	return &Events{repo: repo}
}

func (a *Events) CreateEvent(ctx context.Context, event application.Event) (application.Event, error) {
	if err := a.repo.CreateEvent(ctx, ToPersistenceEvent(event)); err != nil {
		return application.Event{}, err
	}
	return a.GetEvent(ctx, event.ID)
}

func (a *Events) UpdateEvent(ctx context.Context, event application.Event) (application.Event, error) {
	if err := a.repo.UpdateEvent(ctx, ToPersistenceEvent(event)); err != nil {
		return application.Event{}, err
	}
	return a.GetEvent(ctx, event.ID)
}

func (a *Events) GetEvent(ctx context.Context, id string) (application.Event, error) {
	stored, err := a.repo.GetEvent(ctx, id)
	if err != nil {
		return application.Event{}, err
	}
	return ToApplicationEvent(stored), nil
}

func (a *Events) DeleteEvent(ctx context.Context, id string) error {
	return a.repo.DeleteEvent(ctx, id)
}

func (a *Events) ListEvents(ctx context.Context, filter application.EventFilter) ([]application.Event, error) {
	models, err := a.repo.ListEvents(ctx, persistence.EventFilter{
		From:             cloneTime(filter.From),
		To:               cloneTime(filter.To),
		Category:         filter.Category,
		Tag:              filter.Tag,
		Query:            filter.Query,
		OrganizerID:      filter.OrganizerID,
		CreatedBy:        filter.CreatedBy,
		IncludeUndated:   filter.IncludeUndated,
		IncludeCancelled: filter.IncludeCancelled,
		Limit:            filter.Limit,
	})
	if err != nil {
		return nil, err
	}
	events := make([]application.Event, 0, len(models))
	for _, model := range models {
		events = append(events, ToApplicationEvent(model))
	}
	return events, nil
}

func (a *Events) ListTrending(ctx context.Context, from, to time.Time, limit int) ([]application.TrendingEvent, error) {
	models, err := a.repo.ListTrending(ctx, from, to, limit)
	if err != nil {
		return nil, err
	}
	out := make([]application.TrendingEvent, 0, len(models))
	for _, model := range models {
		out = append(out, application.TrendingEvent{Event: ToApplicationEvent(model.Event), RSVPCount: model.RSVPCount})
	}
	return out, nil
}

type RSVPs struct {
	repo persistence.RSVPRepository
}

func NewRSVPs(repo persistence.RSVPRepository) *RSVPs {
	return &RSVPs{repo: repo}
}

func (a *RSVPs) UpsertRSVP(ctx context.Context, rsvp application.RSVP) (application.RSVP, error) {
	err := a.repo.UpsertRSVP(ctx, persistence.RSVP{
		EventID:   rsvp.EventID,
		UserID:    rsvp.UserID,
		Status:    string(rsvp.Status),
		CreatedAt: rsvp.CreatedAt,
	})
	if err != nil {
		return application.RSVP{}, err
	}
	return rsvp, nil
}

func (a *RSVPs) DeleteRSVP(ctx context.Context, eventID, userID string) error {
	return a.repo.DeleteRSVP(ctx, eventID, userID)
}

func (a *RSVPs) ListRSVPsForUser(ctx context.Context, userID string) ([]application.RSVP, error) {
	models, err := a.repo.ListRSVPsForUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	out := make([]application.RSVP, 0, len(models))
	for _, model := range models {
		out = append(out, application.RSVP{
			EventID:   model.EventID,
			UserID:    model.UserID,
			Status:    application.RSVPStatus(model.Status),
			CreatedAt: model.CreatedAt,
		})
	}
	return out, nil
}

type ClassSchedules struct {
	repo persistence.ClassScheduleRepository
}

func NewClassSchedules(repo persistence.ClassScheduleRepository) *ClassSchedules {
	return &ClassSchedules{repo: repo}
}

func (a *ClassSchedules) ReplaceClassSchedule(ctx context.Context, userID string, entries []application.ClassEntry) error {
	models := make([]persistence.ClassEntry, 0, len(entries))
	for _, entry := range entries {
		models = append(models, persistence.ClassEntry{
			UserID:     userID,
			Period:     entry.Period,
			Course:     entry.Course,
			Teacher:    entry.Teacher,
			Room:       entry.Room,
			CourseKey:  entry.CourseKey,
			TeacherKey: entry.TeacherKey,
		})
	}
	return a.repo.ReplaceClassSchedule(ctx, userID, models)
}

func (a *ClassSchedules) ListClassSchedule(ctx context.Context, userID string) ([]application.ClassEntry, error) {
	models, err := a.repo.ListClassSchedule(ctx, userID)
	if err != nil {
		return nil, err
	}
	out := make([]application.ClassEntry, 0, len(models))
	for _, model := range models {
		out = append(out, application.ClassEntry{
			Period:     model.Period,
			Course:     model.Course,
			Teacher:    model.Teacher,
			Room:       model.Room,
			CourseKey:  model.CourseKey,
			TeacherKey: model.TeacherKey,
		})
	}
	return out, nil
}

func (a *ClassSchedules) FindClassmates(ctx context.Context, userID string) ([]application.Classmate, error) {
	models, err := a.repo.FindClassmates(ctx, userID)
	if err != nil {
		return nil, err
	}
	out := make([]application.Classmate, 0, len(models))
	for _, model := range models {
		out = append(out, application.Classmate{
			UserID:      model.UserID,
			DisplayName: model.DisplayName,
			Grade:       model.Grade,
			Period:      model.Period,
			Course:      model.Course,
			Teacher:     model.Teacher,
		})
	}
	return out, nil
}

func toApplicationUser(model persistence.User) application.User {
	return application.User{
		ID:          model.ID,
		Email:       model.Email,
		DisplayName: model.DisplayName,
		Grade:       model.Grade,
		IsAdmin:     model.IsAdmin,
		CreatedAt:   model.CreatedAt,
		UpdatedAt:   model.UpdatedAt,
	}
}

func toPersistenceUser(user application.User, passwordHash string) persistence.User {
	return persistence.User{
		ID:           user.ID,
		Email:        user.Email,
		DisplayName:  user.DisplayName,
		Grade:        user.Grade,
		PasswordHash: passwordHash,
		IsAdmin:      user.IsAdmin,
		CreatedAt:    user.CreatedAt,
		UpdatedAt:    user.UpdatedAt,
	}
}

// ToApplicationEvent converts a stored event. Empty optional references
// become empty strings.
func ToApplicationEvent(model persistence.Event) application.Event {
	return application.Event{
		ID:           model.ID,
		Name:         model.Name,
		Description:  model.Description,
		Start:        cloneTime(model.StartAt),
		End:          cloneTime(model.EndAt),
		AllDay:       model.IsAllDay,
		LocationName: model.LocationName,
		Address:      model.Address,
		URL:          model.URL,
		Type:         application.EventType(model.Type),
		Status:       application.EventStatus(model.Status),
		OrganizerID:  deref(model.OrganizerID),
		CreatedBy:    deref(model.CreatedBy),
		PostID:       deref(model.PostID),
		ImagePath:    model.ImagePath,
		Recurrence:   model.Recurrence,
		Categories:   append([]string(nil), model.Categories...),
		Tags:         append([]string(nil), model.Tags...),
		CreatedAt:    model.CreatedAt,
		UpdatedAt:    model.UpdatedAt,
	}
}

// ToPersistenceEvent converts an event for storage. Empty references are
// stored as NULL so foreign keys are not checked against them.
func ToPersistenceEvent(event application.Event) persistence.Event {
	return persistence.Event{
		ID:           event.ID,
		Name:         event.Name,
		Description:  event.Description,
		StartAt:      cloneTime(event.Start),
		EndAt:        cloneTime(event.End),
		IsAllDay:     event.AllDay,
		LocationName: event.LocationName,
		Address:      event.Address,
		URL:          event.URL,
		Type:         string(event.Type),
		Status:       string(event.Status),
		OrganizerID:  optional(event.OrganizerID),
		CreatedBy:    optional(event.CreatedBy),
		PostID:       optional(event.PostID),
		ImagePath:    event.ImagePath,
		Recurrence:   event.Recurrence,
		Categories:   append([]string(nil), event.Categories...),
		Tags:         append([]string(nil), event.Tags...),
		CreatedAt:    event.CreatedAt,
		UpdatedAt:    event.UpdatedAt,
	}
}

func toApplicationSession(model persistence.Session) application.Session {
	return application.Session{
		ID:          model.ID,
		UserID:      model.UserID,
		Token:       model.Token,
		Fingerprint: model.Fingerprint,
		ExpiresAt:   model.ExpiresAt,
		CreatedAt:   model.CreatedAt,
		UpdatedAt:   model.UpdatedAt,
		RevokedAt:   cloneTime(model.RevokedAt),
	}
}

func toPersistenceSession(session application.Session) persistence.Session {
	return persistence.Session{
		ID:          session.ID,
		UserID:      session.UserID,
		Token:       session.Token,
		Fingerprint: session.Fingerprint,
		ExpiresAt:   session.ExpiresAt,
		CreatedAt:   session.CreatedAt,
		UpdatedAt:   session.UpdatedAt,
		RevokedAt:   cloneTime(session.RevokedAt),
	}
}

func optional(value string) *string {
	if strings.TrimSpace(value) == "" {
		return nil
	}
	return &value
}

func deref(value *string) string {
	if value == nil {
		return ""
	}
	return *value
}

func cloneTime(value *time.Time) *time.Time {
	if value == nil {
		return nil
	}
	clone := *value
	return &clone
}
