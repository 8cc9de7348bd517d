package application

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/example/campus-events/internal/scheduler"
)

// RSVPRepository captures the persistence operations needed by the RSVP service.
type RSVPRepository interface {
	UpsertRSVP(ctx context.Context, rsvp RSVP) (RSVP, error)
	DeleteRSVP(ctx context.Context, eventID, userID string) error
	ListRSVPsForUser(ctx context.Context, userID string) ([]RSVP, error)
}

// EventReader looks up single events.
type EventReader interface {
	GetEvent(ctx context.Context, id string) (Event, error)
}

// RSVPService records attendance intents and warns about overlapping plans.
type RSVPService struct {
	rsvps    RSVPRepository
	events   EventReader
	location *time.Location
	now      func() time.Time
	logger   *slog.Logger
}

// NewRSVPService wires dependencies for RSVP operations. All-day events are
// compared by date in loc.
func NewRSVPService(rsvps RSVPRepository, events EventReader, loc *time.Location, now func() time.Time) *RSVPService {
	return NewRSVPServiceWithLogger(rsvps, events, loc, now, nil)
}

// NewRSVPServiceWithLogger wires dependencies for RSVP operations with a specific logger.
func NewRSVPServiceWithLogger(rsvps RSVPRepository, events EventReader, loc *time.Location, now func() time.Time, logger *slog.Logger) *RSVPService {
	if loc == nil {
		loc = time.Local
	}
	if now == nil {
		now = time.Now
	}
	return &RSVPService{rsvps: rsvps, events: events, location: loc, now: now, logger: defaultLogger(logger)}
}

// SetRSVP stores the principal's intent for an event. When the status is
// going, the result lists the principal's other going events that overlap.
func (s *RSVPService) SetRSVP(ctx context.Context, params SetRSVPParams) (result SetRSVPResult, err error) {
	if s == nil {
		return SetRSVPResult{}, fmt.Errorf("RSVPService is nil")
	}
	if s.rsvps == nil || s.events == nil {
		return SetRSVPResult{}, fmt.Errorf("rsvp dependencies not configured")
	}

	logger := serviceLogger(ctx, s.logger, "RSVPService", "SetRSVP", "principal_id", params.Principal.UserID, "event_id", params.EventID)
	defer func() {
		if err != nil {
			logger.WarnContext(ctx, "rsvp failed", "error", err, "error_kind", ErrorKind(err))
			return
		}
		logger.InfoContext(ctx, "rsvp stored", "status", result.RSVP.Status, "warnings", len(result.Warnings))
	}()

	if params.Principal.UserID == "" {
		return SetRSVPResult{}, ErrUnauthorized
	}
	status, vErr := parseRSVPStatus(params.Status)
	if vErr.HasErrors() {
		return SetRSVPResult{}, vErr
	}

	event, err := s.events.GetEvent(ctx, params.EventID)
	if err != nil {
		return SetRSVPResult{}, mapRepoError(err, "event_id")
	}
	if event.Status == EventStatusCancelled {
		return SetRSVPResult{}, fieldError("event_id", "event is cancelled")
	}

	rsvp, err := s.rsvps.UpsertRSVP(ctx, RSVP{
		EventID:   event.ID,
		UserID:    params.Principal.UserID,
		Status:    status,
		CreatedAt: s.now(),
	})
	if err != nil {
		return SetRSVPResult{}, mapRepoError(err, "event_id")
	}
	result.RSVP = rsvp

	if status != RSVPGoing {
		return result, nil
	}
	result.Warnings, err = s.conflictsFor(ctx, params.Principal.UserID, event)
	if err != nil {
		return SetRSVPResult{}, err
	}
	return result, nil
}

// CancelRSVP removes the principal's RSVP for an event.
func (s *RSVPService) CancelRSVP(ctx context.Context, principal Principal, eventID string) error {
	if s == nil {
		return fmt.Errorf("RSVPService is nil")
	}
	if s.rsvps == nil {
		return fmt.Errorf("rsvp repository not configured")
	}
	if principal.UserID == "" {
		return ErrUnauthorized
	}
	if err := s.rsvps.DeleteRSVP(ctx, eventID, principal.UserID); err != nil {
		return mapRepoError(err, "event_id")
	}
	serviceLogger(ctx, s.logger, "RSVPService", "CancelRSVP", "principal_id", principal.UserID, "event_id", eventID).InfoContext(ctx, "rsvp cancelled")
	return nil
}

// ListForUser returns the principal's RSVPs with their events, newest first.
// RSVPs whose event disappeared are skipped.
func (s *RSVPService) ListForUser(ctx context.Context, principal Principal) ([]UserRSVP, error) {
	if s == nil {
		return nil, fmt.Errorf("RSVPService is nil")
	}
	if principal.UserID == "" {
		return nil, ErrUnauthorized
	}
	if s.rsvps == nil || s.events == nil {
		return nil, nil
	}

	rsvps, err := s.rsvps.ListRSVPsForUser(ctx, principal.UserID)
	if err != nil {
		return nil, err
	}
	out := make([]UserRSVP, 0, len(rsvps))
	for _, rsvp := range rsvps {
		event, err := s.events.GetEvent(ctx, rsvp.EventID)
		if err != nil {
			if isNotFound(mapRepoError(err, "event_id")) {
				continue
			}
			return nil, err
		}
		out = append(out, UserRSVP{RSVP: rsvp, Event: event})
	}
	return out, nil
}

func (s *RSVPService) conflictsFor(ctx context.Context, userID string, candidate Event) ([]ConflictWarning, error) {
	rsvps, err := s.rsvps.ListRSVPsForUser(ctx, userID)
	if err != nil {
		return nil, err
	}

	names := make(map[string]string)
	var slots []scheduler.Slot
	for _, rsvp := range rsvps {
		if rsvp.Status != RSVPGoing || rsvp.EventID == candidate.ID {
			continue
		}
		event, err := s.events.GetEvent(ctx, rsvp.EventID)
		if err != nil {
			if isNotFound(mapRepoError(err, "event_id")) {
				continue
			}
			return nil, err
		}
		if event.Status == EventStatusCancelled {
			continue
		}
		names[event.ID] = event.Name
		slots = append(slots, toSlot(event))
	}

	conflicts := scheduler.DetectConflicts(slots, toSlot(candidate), s.location)
	if len(conflicts) == 0 {
		return nil, nil
	}
	warnings := make([]ConflictWarning, 0, len(conflicts))
	for _, conflict := range conflicts {
		warnings = append(warnings, ConflictWarning{
			EventID:   conflict.WithEventID,
			EventName: names[conflict.WithEventID],
			Type:      string(conflict.Type),
		})
	}
	return warnings, nil
}

func toSlot(event Event) scheduler.Slot {
	return scheduler.Slot{EventID: event.ID, Start: event.Start, End: event.End, AllDay: event.AllDay}
}

func parseRSVPStatus(value string) (RSVPStatus, *ValidationError) {
	vErr := &ValidationError{}
	status := RSVPStatus(strings.ToLower(strings.TrimSpace(value)))
	switch status {
	case RSVPGoing, RSVPInterested:
	case "":
		status = RSVPGoing
	default:
		vErr.add("status", "status must be going or interested")
	}
	return status, vErr
}
