package application

import (
	"context"
	"errors"
	"testing"
	"time"
)

func plainVerifier(hash, password string) error {
	if hash != password {
		return ErrInvalidCredentials
	}
	return nil
}

func sequence(values ...string) func() string {
	return func() string {
		if len(values) == 0 {
			return ""
		}
		next := values[0]
		values = values[1:]
		return next
	}
}

func TestAuthService_Authenticate(t *testing.T) {
	t.Parallel()

	t.Run("issues sessions for valid credentials", func(t *testing.T) {
		t.Parallel()

		now := time.Date(2024, 3, 10, 12, 0, 0, 0, time.UTC)
		creds := &credentialStoreStub{
			credentials: UserCredentials{
				User:         User{ID: "user-1", Email: "user@example.com"},
				PasswordHash: "secret",
			},
		}
		repo := newSessionRepositoryStub()
		svc := NewAuthService(creds, repo, plainVerifier, sequence("session-id", "session-token"), func() time.Time { return now }, time.Hour)

		result, err := svc.Authenticate(context.Background(), AuthenticateParams{Email: "User@example.com", Password: "secret", Fingerprint: " device "})
		if err != nil {
			t.Fatalf("Authenticate failed: %v", err)
		}
		if result.Session.Token != "session-token" || result.Session.ID != "session-id" {
			t.Fatalf("unexpected session: %+v", result.Session)
		}
		if result.Session.Fingerprint != "device" {
			t.Fatalf("expected fingerprint to be trimmed, got %q", result.Session.Fingerprint)
		}
		if !result.Session.ExpiresAt.Equal(now.Add(time.Hour)) {
			t.Fatalf("unexpected expiry %v", result.Session.ExpiresAt)
		}
		if len(repo.deleteCalls) != 1 || !repo.deleteCalls[0].Equal(now) {
			t.Fatalf("expected DeleteExpiredSessions to be called with now, got %#v", repo.deleteCalls)
		}
	})

	t.Run("rejects unknown emails and wrong passwords alike", func(t *testing.T) {
		t.Parallel()

		creds := &credentialStoreStub{credentials: UserCredentials{User: User{ID: "user"}, PasswordHash: "expected"}}
		svc := NewAuthService(creds, nil, plainVerifier, nil, time.Now, time.Hour)

		for _, params := range []AuthenticateParams{
			{Email: "user@example.com", Password: "wrong"},
			{Email: "", Password: "expected"},
			{Email: "user@example.com", Password: ""},
		} {
			if _, err := svc.Authenticate(context.Background(), params); !errors.Is(err, ErrInvalidCredentials) {
				t.Fatalf("expected ErrInvalidCredentials for %+v, got %v", params, err)
			}
		}

		missing := NewAuthService(&credentialStoreStub{}, nil, plainVerifier, nil, time.Now, time.Hour)
		if _, err := missing.Authenticate(context.Background(), AuthenticateParams{Email: "x@example.com", Password: "p"}); !errors.Is(err, ErrInvalidCredentials) {
			t.Fatalf("expected ErrInvalidCredentials for unknown email, got %v", err)
		}
	})

	t.Run("propagates repository failures", func(t *testing.T) {
		t.Parallel()

		expected := errors.New("boom")
		creds := &credentialStoreStub{credentials: UserCredentials{User: User{ID: "user"}, PasswordHash: "secret"}}
		repo := newSessionRepositoryStub()
		repo.createErr = expected
		svc := NewAuthService(creds, repo, plainVerifier, func() string { return "token" }, time.Now, time.Hour)

		if _, err := svc.Authenticate(context.Background(), AuthenticateParams{Email: "user@example.com", Password: "secret"}); !errors.Is(err, expected) {
			t.Fatalf("expected error %v, got %v", expected, err)
		}
	})
}

func TestAuthService_RefreshSession(t *testing.T) {
	t.Parallel()

	now := time.Date(2024, 3, 10, 12, 0, 0, 0, time.UTC)
	clock := func() time.Time { return now }

	t.Run("rotates token and extends expiry", func(t *testing.T) {
		t.Parallel()

		repo := newSessionRepositoryStub()
		repo.seed(Session{ID: "s1", UserID: "user", Token: "old", ExpiresAt: now.Add(time.Minute)})
		svc := NewAuthService(nil, repo, nil, sequence("new"), clock, time.Hour)

		result, err := svc.RefreshSession(context.Background(), RefreshSessionParams{Token: "old", Fingerprint: "fp"})
		if err != nil {
			t.Fatalf("RefreshSession failed: %v", err)
		}
		if result.Session.Token != "new" || !result.Session.ExpiresAt.Equal(now.Add(time.Hour)) || result.Session.Fingerprint != "fp" {
			t.Fatalf("unexpected session: %+v", result.Session)
		}
		if _, err := repo.GetSession(context.Background(), "old"); !errors.Is(err, ErrNotFound) {
			t.Fatalf("old token should be replaced")
		}
	})

	t.Run("rejects expired and revoked sessions", func(t *testing.T) {
		t.Parallel()

		revokedAt := now.Add(-time.Minute)
		repo := newSessionRepositoryStub()
		repo.seed(Session{ID: "s1", UserID: "user", Token: "expired", ExpiresAt: now})
		repo.seed(Session{ID: "s2", UserID: "user", Token: "revoked", ExpiresAt: now.Add(time.Hour), RevokedAt: &revokedAt})
		svc := NewAuthService(nil, repo, nil, nil, clock, time.Hour)

		if _, err := svc.RefreshSession(context.Background(), RefreshSessionParams{Token: "expired"}); !errors.Is(err, ErrSessionExpired) {
			t.Fatalf("expected ErrSessionExpired, got %v", err)
		}
		if _, err := svc.RefreshSession(context.Background(), RefreshSessionParams{Token: "revoked"}); !errors.Is(err, ErrSessionRevoked) {
			t.Fatalf("expected ErrSessionRevoked, got %v", err)
		}
		if _, err := svc.RefreshSession(context.Background(), RefreshSessionParams{Token: "unknown"}); !errors.Is(err, ErrInvalidCredentials) {
			t.Fatalf("expected ErrInvalidCredentials, got %v", err)
		}
	})
}

func TestAuthService_ValidateSession(t *testing.T) {
	t.Parallel()

	now := time.Date(2024, 3, 10, 12, 0, 0, 0, time.UTC)
	creds := &credentialStoreStub{credentials: UserCredentials{User: User{ID: "admin", IsAdmin: true}}}
	repo := newSessionRepositoryStub()
	repo.seed(Session{ID: "s1", UserID: "admin", Token: "live", ExpiresAt: now.Add(time.Hour)})
	repo.seed(Session{ID: "s2", UserID: "ghost", Token: "orphan", ExpiresAt: now.Add(time.Hour)})
	svc := NewAuthService(creds, repo, nil, nil, func() time.Time { return now }, time.Hour)

	principal, err := svc.ValidateSession(context.Background(), " live ")
	if err != nil {
		t.Fatalf("ValidateSession failed: %v", err)
	}
	if principal.UserID != "admin" || !principal.IsAdmin {
		t.Fatalf("unexpected principal %+v", principal)
	}

	for _, token := range []string{"", "unknown", "orphan"} {
		if _, err := svc.ValidateSession(context.Background(), token); !errors.Is(err, ErrUnauthorized) {
			t.Fatalf("expected ErrUnauthorized for %q, got %v", token, err)
		}
	}
}

func TestAuthService_RevokeAndPurge(t *testing.T) {
	t.Parallel()

	now := time.Date(2024, 3, 10, 12, 0, 0, 0, time.UTC)
	repo := newSessionRepositoryStub()
	repo.seed(Session{ID: "s1", UserID: "user", Token: "live", ExpiresAt: now.Add(time.Hour)})
	repo.seed(Session{ID: "s2", UserID: "user", Token: "stale", ExpiresAt: now.Add(-time.Hour)})
	svc := NewAuthService(nil, repo, nil, nil, func() time.Time { return now }, time.Hour)

	if err := svc.RevokeSession(context.Background(), "live"); err != nil {
		t.Fatalf("RevokeSession failed: %v", err)
	}
	if session, _ := repo.GetSession(context.Background(), "live"); session.RevokedAt == nil {
		t.Fatalf("expected session to be revoked")
	}
	if err := svc.RevokeSession(context.Background(), "missing"); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("expected ErrInvalidCredentials, got %v", err)
	}

	removed, err := svc.PurgeExpiredSessions(context.Background())
	if err != nil {
		t.Fatalf("PurgeExpiredSessions failed: %v", err)
	}
	if removed != 1 {
		t.Fatalf("expected 1 removed session, got %d", removed)
	}
}

// credentialStoreStub implements CredentialStore for tests.
type credentialStoreStub struct {
	credentials UserCredentials
	err         error
}

func (c *credentialStoreStub) GetUserCredentialsByEmail(ctx context.Context, email string) (UserCredentials, error) {
	if c.err != nil {
		return UserCredentials{}, c.err
	}
	if c.credentials.User.ID == "" {
		return UserCredentials{}, ErrNotFound
	}
	return c.credentials, nil
}

func (c *credentialStoreStub) GetUser(ctx context.Context, id string) (User, error) {
	if c.err != nil {
		return User{}, c.err
	}
	if c.credentials.User.ID == id {
		return c.credentials.User, nil
	}
	return User{}, ErrNotFound
}

// sessionRepositoryStub provides an in-memory implementation of SessionRepository for tests.
type sessionRepositoryStub struct {
	sessionsByID map[string]Session
	tokenToID    map[string]string

	createErr error
	deleteErr error

	deleteCalls []time.Time
}

func newSessionRepositoryStub() *sessionRepositoryStub {
	return &sessionRepositoryStub{
		sessionsByID: make(map[string]Session),
		tokenToID:    make(map[string]string),
	}
}

func (s *sessionRepositoryStub) seed(session Session) {
	s.sessionsByID[session.ID] = session
	s.tokenToID[session.Token] = session.ID
}

func (s *sessionRepositoryStub) CreateSession(ctx context.Context, session Session) (Session, error) {
	if s.createErr != nil {
		return Session{}, s.createErr
	}
	s.seed(session)
	return session, nil
}

func (s *sessionRepositoryStub) GetSession(ctx context.Context, token string) (Session, error) {
	id, ok := s.tokenToID[token]
	if !ok {
		return Session{}, ErrNotFound
	}
	return s.sessionsByID[id], nil
}

func (s *sessionRepositoryStub) UpdateSession(ctx context.Context, session Session) (Session, error) {
	current, ok := s.sessionsByID[session.ID]
	if !ok {
		return Session{}, ErrNotFound
	}
	delete(s.tokenToID, current.Token)
	s.seed(session)
	return session, nil
}

func (s *sessionRepositoryStub) RevokeSession(ctx context.Context, token string, revokedAt time.Time) (Session, error) {
	id, ok := s.tokenToID[token]
	if !ok {
		return Session{}, ErrNotFound
	}
	session := s.sessionsByID[id]
	revoked := revokedAt.UTC()
	session.RevokedAt = &revoked
	s.sessionsByID[id] = session
	return session, nil
}

func (s *sessionRepositoryStub) DeleteExpiredSessions(ctx context.Context, reference time.Time) (int64, error) {
	if s.deleteErr != nil {
		return 0, s.deleteErr
	}
	s.deleteCalls = append(s.deleteCalls, reference)
	var removed int64
	for id, session := range s.sessionsByID {
		if !session.ExpiresAt.After(reference) {
			delete(s.sessionsByID, id)
			delete(s.tokenToID, session.Token)
			removed++
		}
	}
	return removed, nil
}
