package todoapp

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	stdjwt "github.com/dgrijalva/jwt-go"
	kitjwt "github.com/go-kit/kit/auth/jwt"
	"github.com/go-kit/kit/log"
	"github.com/ichigozero/taskhaven/authsvc"
	"github.com/ichigozero/taskhaven/usersvc"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var epoch = time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

func issueToken(t *testing.T, userID uint64, exp time.Time) string {
	t.Helper()
	token := stdjwt.NewWithClaims(stdjwt.SigningMethodHS256, stdjwt.MapClaims{
		"uuid":    "uuid",
		"user_id": userID,
		"exp":     exp.Unix(),
	})
	signed, err := token.SignedString([]byte("test-secret"))
	require.NoError(t, err)
	return signed
}

type fakeAuth struct {
	calls      []string
	tokens     map[string]string
	signInErr  error
	signUpErr  error
	signOutErr error
	refreshErr error
	lastToken  string
	refreshed  map[string]string
}

func (a *fakeAuth) SignIn(_ context.Context, email, password string) (map[string]string, error) {
	a.calls = append(a.calls, "signin")
	if a.signInErr != nil {
		return nil, a.signInErr
	}
	return a.tokens, nil
}

func (a *fakeAuth) SignUp(_ context.Context, email, password string) (uint64, error) {
	a.calls = append(a.calls, "signup")
	if a.signUpErr != nil {
		return 0, a.signUpErr
	}
	return 7, nil
}

func (a *fakeAuth) SignOut(ctx context.Context, _ string) (bool, error) {
	a.calls = append(a.calls, "signout")
	a.lastToken, _ = ctx.Value(kitjwt.JWTContextKey).(string)
	if a.signOutErr != nil {
		return false, a.signOutErr
	}
	return true, nil
}

func (a *fakeAuth) Refresh(ctx context.Context, _, _ string, _ uint64) (map[string]string, error) {
	a.calls = append(a.calls, "refresh")
	a.lastToken, _ = ctx.Value(kitjwt.JWTContextKey).(string)
	if a.refreshErr != nil {
		return nil, a.refreshErr
	}
	return a.refreshed, nil
}

func (a *fakeAuth) Validate(context.Context, string) (bool, error) {
	a.calls = append(a.calls, "validate")
	return true, nil
}

func newFakeAuth(t *testing.T) *fakeAuth {
	return &fakeAuth{
		tokens: map[string]string{
			"access":  issueToken(t, 7, epoch.Add(30*time.Minute)),
			"refresh": "refresh-1",
		},
	}
}

func TestSessionValidationMakesNoRemoteCall(t *testing.T) {
	tests := []struct {
		email, password, want string
	}{
		{"", "secret1", "Please fill in all fields"},
		{"alice@example.com", "", "Please fill in all fields"},
		{"alice.example.com", "secret1", "Please enter a valid email address"},
		{"alice@example.com", "12345", "Password must be at least 6 characters long"},
	}

	for _, tt := range tests {
		auth := newFakeAuth(t)
		s := NewSession(auth)

		err := s.SignIn(context.Background(), tt.email, tt.password)
		require.Error(t, err)
		assert.Equal(t, tt.want, Message(err))

		err = s.SignUp(context.Background(), tt.email, tt.password)
		require.Error(t, err)
		assert.Equal(t, tt.want, Message(err))

		assert.Empty(t, auth.calls)
		assert.Zero(t, s.UserID())
	}
}

func TestSessionSignInAndRestore(t *testing.T) {
	auth := newFakeAuth(t)
	path := filepath.Join(t.TempDir(), "taskhaven", "session.json")
	s := NewSession(auth, WithSessionFile(path), WithClock(func() time.Time { return epoch }))

	var seen []uint64
	s.Watch(func(id uint64) { seen = append(seen, id) })

	require.NoError(t, s.SignIn(context.Background(), "alice@example.com", "secret1"))
	assert.Equal(t, uint64(7), s.UserID())
	assert.Equal(t, []uint64{7}, seen)

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())

	restored := NewSession(auth, WithSessionFile(path), WithClock(func() time.Time { return epoch }))
	require.NoError(t, restored.Restore())
	assert.Equal(t, uint64(7), restored.UserID())

	token, err := restored.Token(context.Background())
	require.NoError(t, err)
	assert.Equal(t, auth.tokens["access"], token)
}

func TestSessionRestoreWithoutFile(t *testing.T) {
	s := NewSession(newFakeAuth(t), WithSessionFile(filepath.Join(t.TempDir(), "missing.json")))
	require.NoError(t, s.Restore())
	assert.Zero(t, s.UserID())

	_, err := s.Token(context.Background())
	assert.Equal(t, ErrNotSignedIn, err)
}

func TestSessionSignInFailures(t *testing.T) {
	auth := newFakeAuth(t)
	auth.signInErr = usersvc.ErrUserNotFound
	s := NewSession(auth)

	err := s.SignIn(context.Background(), "alice@example.com", "wrong-password")
	assert.Equal(t, "Invalid login credentials", Message(err))
	assert.Zero(t, s.UserID())
}

func TestSessionSignUpSignsIn(t *testing.T) {
	auth := newFakeAuth(t)
	s := NewSession(auth)

	require.NoError(t, s.SignUp(context.Background(), "bob@example.com", "secret1"))
	assert.Equal(t, []string{"signup", "signin"}, auth.calls)
	assert.Equal(t, uint64(7), s.UserID())
}

func TestSessionSignUpEmailTaken(t *testing.T) {
	auth := newFakeAuth(t)
	auth.signUpErr = usersvc.ErrEmailTaken
	s := NewSession(auth)

	err := s.SignUp(context.Background(), "alice@example.com", "secret1")
	assert.Equal(t, "User already registered", Message(err))
	assert.Equal(t, []string{"signup"}, auth.calls)
}

func TestSessionSignOut(t *testing.T) {
	auth := newFakeAuth(t)
	path := filepath.Join(t.TempDir(), "session.json")
	s := NewSession(auth, WithSessionFile(path))
	require.NoError(t, s.SignIn(context.Background(), "alice@example.com", "secret1"))

	var seen []uint64
	s.Watch(func(id uint64) { seen = append(seen, id) })

	require.NoError(t, s.SignOut(context.Background()))
	assert.Equal(t, auth.tokens["access"], auth.lastToken)
	assert.Zero(t, s.UserID())
	assert.Equal(t, []uint64{0}, seen)

	_, err := os.Stat(path)
	assert.True(t, os.IsNotExist(err))

	// Signing out twice is a no-op.
	require.NoError(t, s.SignOut(context.Background()))
	assert.Equal(t, []uint64{0}, seen)
}

func TestSessionSignOutFailureStillEndsSession(t *testing.T) {
	auth := newFakeAuth(t)
	auth.signOutErr = errRemote
	s := NewSession(auth)
	require.NoError(t, s.SignIn(context.Background(), "alice@example.com", "secret1"))

	err := s.SignOut(context.Background())
	assert.Equal(t, "Error signing out", Message(err))
	assert.Zero(t, s.UserID())
}

func TestSessionTokenRefreshesNearExpiry(t *testing.T) {
	auth := newFakeAuth(t)
	now := epoch
	s := NewSession(auth, WithClock(func() time.Time { return now }))
	require.NoError(t, s.SignIn(context.Background(), "alice@example.com", "secret1"))

	auth.refreshed = map[string]string{
		"access":  issueToken(t, 7, epoch.Add(time.Hour)),
		"refresh": "refresh-2",
	}

	now = epoch.Add(29*time.Minute + 30*time.Second)
	token, err := s.Token(context.Background())
	require.NoError(t, err)
	assert.Equal(t, auth.refreshed["access"], token)
	assert.Equal(t, "refresh-1", auth.lastToken)
	assert.Equal(t, uint64(7), s.UserID())
}

func TestSessionRevokedRefreshEndsSession(t *testing.T) {
	auth := newFakeAuth(t)
	now := epoch
	s := NewSession(auth, WithClock(func() time.Time { return now }))
	require.NoError(t, s.SignIn(context.Background(), "alice@example.com", "secret1"))

	var seen []uint64
	s.Watch(func(id uint64) { seen = append(seen, id) })

	auth.refreshErr = authsvc.ErrTokenRevoked
	now = epoch.Add(time.Hour)

	_, err := s.Token(context.Background())
	require.Error(t, err)
	assert.Zero(t, s.UserID())
	assert.Equal(t, []uint64{0}, seen)
}

func TestSessionFailedWriteKeepsSignedOut(t *testing.T) {
	auth := newFakeAuth(t)
	// A regular file where the session directory should be.
	blocker := filepath.Join(t.TempDir(), "blocker")
	require.NoError(t, os.WriteFile(blocker, nil, 0o600))
	s := NewSession(auth, WithSessionFile(filepath.Join(blocker, "session.json")))

	var seen []uint64
	s.Watch(func(id uint64) { seen = append(seen, id) })

	err := s.SignIn(context.Background(), "alice@example.com", "secret1")
	require.Error(t, err)
	assert.Equal(t, "Error signing in", Message(err))
	assert.Zero(t, s.UserID())
	assert.Empty(t, seen)

	_, err = s.Token(context.Background())
	assert.Equal(t, ErrNotSignedIn, err)
}

func TestSessionLogsFailedFileRemoval(t *testing.T) {
	auth := newFakeAuth(t)
	path := filepath.Join(t.TempDir(), "session.json")
	var buf bytes.Buffer
	s := NewSession(auth, WithSessionFile(path), WithSessionLogger(log.NewLogfmtLogger(&buf)))
	require.NoError(t, s.SignIn(context.Background(), "alice@example.com", "secret1"))

	// A non-empty directory cannot be removed.
	require.NoError(t, os.Remove(path))
	require.NoError(t, os.MkdirAll(filepath.Join(path, "child"), 0o700))

	require.NoError(t, s.SignOut(context.Background()))
	assert.Zero(t, s.UserID())
	assert.Contains(t, buf.String(), "during=Remove")
}

func TestSessionSignOutWithoutFileLogsNothing(t *testing.T) {
	auth := newFakeAuth(t)
	path := filepath.Join(t.TempDir(), "session.json")
	var buf bytes.Buffer
	s := NewSession(auth, WithSessionFile(path), WithSessionLogger(log.NewLogfmtLogger(&buf)))
	require.NoError(t, s.SignIn(context.Background(), "alice@example.com", "secret1"))
	require.NoError(t, os.Remove(path))

	require.NoError(t, s.SignOut(context.Background()))
	assert.Empty(t, buf.String())
}
