package guard_test

import (
	"context"
	"sync"

	guard "github.com/quillworks/go-guard"
	"github.com/stretchr/testify/mock"
)

// MockUserTracker implements guard.UserTracker
type MockUserTracker struct {
	mock.Mock
}

func (m *MockUserTracker) GetByUsername(ctx context.Context, username string) (*guard.User, error) {
	args := m.Called(ctx, username)
	user, _ := args.Get(0).(*guard.User)
	return user, args.Error(1)
}

func (m *MockUserTracker) TrackAttemptedLogin(ctx context.Context, user *guard.User) error {
	args := m.Called(ctx, user)
	return args.Error(0)
}

func (m *MockUserTracker) TrackSuccessfulLogin(ctx context.Context, user *guard.User) error {
	args := m.Called(ctx, user)
	return args.Error(0)
}

// MockIdentityProvider implements guard.IdentityProvider
type MockIdentityProvider struct {
	mock.Mock
}

func (m *MockIdentityProvider) VerifyIdentity(ctx context.Context, identifier, password string) (guard.Identity, error) {
	args := m.Called(ctx, identifier, password)
	identity, _ := args.Get(0).(guard.Identity)
	return identity, args.Error(1)
}

func (m *MockIdentityProvider) FindIdentityByIdentifier(ctx context.Context, identifier string) (guard.Identity, error) {
	args := m.Called(ctx, identifier)
	identity, _ := args.Get(0).(guard.Identity)
	return identity, args.Error(1)
}

// MockPermissionLoader implements guard.PermissionLoader
type MockPermissionLoader struct {
	mock.Mock
}

func (m *MockPermissionLoader) PermissionsForUser(ctx context.Context, username string) (map[string][]string, error) {
	args := m.Called(ctx, username)
	perms, _ := args.Get(0).(map[string][]string)
	return perms, args.Error(1)
}

// MockGrantReader implements guard.GrantReader
type MockGrantReader struct {
	mock.Mock
}

func (m *MockGrantReader) GrantedPermissions(ctx context.Context, username string) ([]guard.GrantedPermission, error) {
	args := m.Called(ctx, username)
	granted, _ := args.Get(0).([]guard.GrantedPermission)
	return granted, args.Error(1)
}

func (m *MockGrantReader) HasGrant(ctx context.Context, username, resource, action string) (bool, error) {
	args := m.Called(ctx, username, resource, action)
	return args.Bool(0), args.Error(1)
}

// MockTokenCleaner implements guard.TokenCleaner
type MockTokenCleaner struct {
	mock.Mock
}

func (m *MockTokenCleaner) CleanUpTokens(ctx context.Context) (int64, error) {
	args := m.Called(ctx)
	return args.Get(0).(int64), args.Error(1)
}

// MockNotifier implements guard.Notifier
type MockNotifier struct {
	mock.Mock
}

func (m *MockNotifier) SendRecoveryMessage(ctx context.Context, email, username, token string) error {
	args := m.Called(ctx, email, username, token)
	return args.Error(0)
}

func (m *MockNotifier) SendActivationMessage(ctx context.Context, email, username, token string) error {
	args := m.Called(ctx, email, username, token)
	return args.Error(0)
}

// mockIdentity is a plain value identity for orchestrator tests.
type mockIdentity struct {
	id       string
	username string
	email    string
}

func (m mockIdentity) ID() string       { return m.id }
func (m mockIdentity) Username() string { return m.username }
func (m mockIdentity) Email() string    { return m.email }

// noopLogger satisfies guard.Logger for builder tests.
type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// plainHasher compares passwords verbatim so tests avoid bcrypt cost.
type plainHasher struct{}

func (plainHasher) HashPassword(password string) (string, error) {
	return "plain:" + password, nil
}

func (plainHasher) ComparePasswordAndHash(password, hash string) error {
	if "plain:"+password != hash {
		return guard.ErrMismatchedHashAndPassword
	}
	return nil
}

// recordingSink collects activity events for assertions.
type recordingSink struct {
	mu     sync.Mutex
	events []guard.ActivityEvent
}

func (s *recordingSink) Record(_ context.Context, event guard.ActivityEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, event)
	return nil
}

func (s *recordingSink) Events() []guard.ActivityEvent {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]guard.ActivityEvent, len(s.events))
	copy(out, s.events)
	return out
}

func (s *recordingSink) ByType(eventType guard.ActivityEventType) []guard.ActivityEvent {
	var out []guard.ActivityEvent
	for _, e := range s.Events() {
		if e.EventType == eventType {
			out = append(out, e)
		}
	}
	return out
}
