package testfixtures

import (
	"io"
	"log/slog"
	"time"

	"github.com/example/campus-events/internal/application"
	"github.com/example/campus-events/internal/repository"
)

// ServiceFactory builds application services on top of a SQLiteHarness with
// deterministic ids and a controllable clock.
type ServiceFactory struct {
	Harness     *SQLiteHarness
	Clock       *Clock
	IDGenerator *IDGenerator
	Location    *time.Location
	Logger      *slog.Logger
}

// ServiceFactoryOption configures a ServiceFactory.
type ServiceFactoryOption func(*ServiceFactory)

// NewServiceFactory defaults to ReferenceTime, "id" prefixed identifiers, UTC
// and a discarding logger.
func NewServiceFactory(harness *SQLiteHarness, opts ...ServiceFactoryOption) *ServiceFactory {
	factory := &ServiceFactory{
		Harness:     harness,
		Clock:       NewClock(time.Time{}),
		IDGenerator: NewIDGenerator("id"),
		Location:    time.UTC,
		Logger:      slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	for _, opt := range opts {
		opt(factory)
	}
	return factory
}

func WithClock(clock *Clock) ServiceFactoryOption {
	return func(f *ServiceFactory) { f.Clock = clock }
}

func WithIDGenerator(generator *IDGenerator) ServiceFactoryOption {
	return func(f *ServiceFactory) { f.IDGenerator = generator }
}

func WithLocation(loc *time.Location) ServiceFactoryOption {
	return func(f *ServiceFactory) { f.Location = loc }
}

// Users registers with a fast password hash so tests stay quick.
func (f *ServiceFactory) Users() *application.UserService {
	return application.NewUserServiceWithLogger(
		repository.NewUsers(f.Harness.Store.Users),
		fastHash,
		f.IDGenerator.NextFunc(),
		f.Clock.NowFunc(),
		f.Logger,
	)
}

// Auth accepts passwords hashed by Users.
func (f *ServiceFactory) Auth(sessionTTL time.Duration) *application.AuthService {
	return application.NewAuthServiceWithLogger(
		repository.NewUsers(f.Harness.Store.Users),
		repository.NewSessions(f.Harness.Store.Sessions),
		fastVerify,
		f.IDGenerator.NextFunc(),
		f.Clock.NowFunc(),
		sessionTTL,
		f.Logger,
	)
}

func (f *ServiceFactory) Events(cache *application.EventCache) *application.EventService {
	return application.NewEventServiceWithLogger(
		repository.NewEvents(f.Harness.Store.Events),
		cache,
		f.IDGenerator.NextFunc(),
		f.Clock.NowFunc(),
		f.Logger,
	)
}

func (f *ServiceFactory) RSVPs() *application.RSVPService {
	return application.NewRSVPServiceWithLogger(
		repository.NewRSVPs(f.Harness.Store.RSVPs),
		repository.NewEvents(f.Harness.Store.Events),
		f.Location,
		f.Clock.NowFunc(),
		f.Logger,
	)
}

func (f *ServiceFactory) Calendar(cache *application.EventCache, maxOccurrences int) *application.CalendarService {
	return application.NewCalendarServiceWithLogger(
		repository.NewEvents(f.Harness.Store.Events),
		cache,
		f.Location,
		maxOccurrences,
		f.Clock.NowFunc(),
		f.Logger,
	)
}

func (f *ServiceFactory) Classmates() *application.ClassmateService {
	return application.NewClassmateServiceWithLogger(repository.NewClassSchedules(f.Harness.Store.Classes), f.Logger)
}

func fastHash(password string) (string, error) {
	return "plain:" + password, nil
}

func fastVerify(hash, password string) error {
	if hash != "plain:"+password {
		return application.ErrInvalidCredentials
	}
	return nil
}
