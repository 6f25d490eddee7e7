package todoapp

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	stdjwt "github.com/dgrijalva/jwt-go"
	kitjwt "github.com/go-kit/kit/auth/jwt"
	"github.com/go-kit/kit/log"
	"github.com/ichigozero/taskhaven/authsvc"
	"github.com/ichigozero/taskhaven/authsvc/pkg/authservice"
	"github.com/ichigozero/taskhaven/usersvc"
	"github.com/pkg/errors"
)

const (
	minPasswordLength = usersvc.MinPasswordLength
	refreshLeeway     = time.Minute
)

var (
	ErrNotSignedIn    = errors.New("not signed in")
	ErrTokenMalformed = errors.New("token carries no user identity")
)

// Failure is an error with a message meant for the user.
type Failure struct {
	Message string
	Err     error
}

func (f *Failure) Error() string {
	if f.Err == nil {
		return f.Message
	}
	return f.Message + ": " + f.Err.Error()
}

func (f *Failure) Cause() error { return f.Err }

// Message returns the user facing text of err.
func Message(err error) string {
	var f *Failure
	if errors.As(err, &f) {
		return f.Message
	}
	return errors.Cause(err).Error()
}

func validateCredentials(email, password string) error {
	switch {
	case email == "" || password == "":
		return &Failure{Message: "Please fill in all fields"}
	case !strings.Contains(email, "@"):
		return &Failure{Message: "Please enter a valid email address"}
	case len(password) < minPasswordLength:
		return &Failure{Message: "Password must be at least 6 characters long"}
	}
	return nil
}

func remoteFailure(err error) error {
	if err == nil {
		return nil
	}
	switch errors.Cause(err) {
	case usersvc.ErrUserNotFound:
		return &Failure{Message: "Invalid login credentials", Err: err}
	case usersvc.ErrEmailTaken:
		return &Failure{Message: "User already registered", Err: err}
	case usersvc.ErrInvalidEmail:
		return &Failure{Message: "Please enter a valid email address", Err: err}
	case usersvc.ErrPasswordTooShort:
		return &Failure{Message: "Password must be at least 6 characters long", Err: err}
	}
	return &Failure{Message: errors.Cause(err).Error(), Err: err}
}

type SessionOption func(*Session)

// WithSessionFile persists the tokens at path so that a session outlives
// the process.
func WithSessionFile(path string) SessionOption {
	return func(s *Session) { s.path = path }
}

func WithClock(now func() time.Time) SessionOption {
	return func(s *Session) { s.now = now }
}

// WithSessionLogger sets where failures to clean up the session file go.
func WithSessionLogger(logger log.Logger) SessionOption {
	return func(s *Session) { s.logger = logger }
}

type tokens struct {
	Access  string `json:"access"`
	Refresh string `json:"refresh"`
}

// Session holds the identity of the signed-in user and the tokens proving
// it. Watchers are told about every identity change, 0 meaning signed out.
type Session struct {
	auth   authservice.Service
	path   string
	now    func() time.Time
	logger log.Logger

	// refreshing serializes token rotation.
	refreshing sync.Mutex

	mtx      sync.RWMutex
	tokens   tokens
	userID   uint64
	expires  time.Time
	watchers []func(userID uint64)
}

func NewSession(auth authservice.Service, opts ...SessionOption) *Session {
	s := &Session{
		auth:   auth,
		now:    time.Now,
		logger: log.NewNopLogger(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Watch registers fn for identity changes.
func (s *Session) Watch(fn func(userID uint64)) {
	s.mtx.Lock()
	defer s.mtx.Unlock()
	s.watchers = append(s.watchers, fn)
}

func (s *Session) UserID() uint64 {
	s.mtx.RLock()
	defer s.mtx.RUnlock()
	return s.userID
}

// Restore loads a persisted session. A missing file is not an error.
func (s *Session) Restore() error {
	if s.path == "" {
		return nil
	}

	b, err := os.ReadFile(s.path)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return errors.Wrap(err, "read session file")
	}

	var t tokens
	if err := json.Unmarshal(b, &t); err != nil {
		return errors.Wrap(err, "decode session file")
	}

	return s.set(t)
}

func (s *Session) SignIn(ctx context.Context, email, password string) error {
	if err := validateCredentials(email, password); err != nil {
		return err
	}

	issued, err := s.auth.SignIn(ctx, email, password)
	if err != nil {
		return remoteFailure(err)
	}

	if err := s.set(tokens{Access: issued["access"], Refresh: issued["refresh"]}); err != nil {
		return &Failure{Message: "Error signing in", Err: err}
	}
	return nil
}

// SignUp creates the account and signs in with it.
func (s *Session) SignUp(ctx context.Context, email, password string) error {
	if err := validateCredentials(email, password); err != nil {
		return err
	}

	if _, err := s.auth.SignUp(ctx, email, password); err != nil {
		return remoteFailure(err)
	}

	return s.SignIn(ctx, email, password)
}

// SignOut revokes the tokens remotely and forgets them locally. The local
// session ends even when the remote call fails.
func (s *Session) SignOut(ctx context.Context) error {
	s.mtx.RLock()
	access := s.tokens.Access
	s.mtx.RUnlock()

	if access == "" {
		return nil
	}

	_, err := s.auth.SignOut(context.WithValue(ctx, kitjwt.JWTContextKey, access), "")
	s.clear()

	if err != nil {
		return &Failure{Message: "Error signing out", Err: err}
	}
	return nil
}

// Token returns the access token, rotating the pair first when it is about
// to expire. A rejected rotation ends the session.
func (s *Session) Token(ctx context.Context) (string, error) {
	s.mtx.RLock()
	t, expires := s.tokens, s.expires
	s.mtx.RUnlock()

	if t.Access == "" {
		return "", ErrNotSignedIn
	}
	if s.now().Add(refreshLeeway).Before(expires) {
		return t.Access, nil
	}

	s.refreshing.Lock()
	defer s.refreshing.Unlock()

	s.mtx.RLock()
	if s.tokens != t {
		// Rotated by someone else meanwhile.
		access := s.tokens.Access
		s.mtx.RUnlock()
		if access == "" {
			return "", ErrNotSignedIn
		}
		return access, nil
	}
	s.mtx.RUnlock()

	issued, err := s.auth.Refresh(context.WithValue(ctx, kitjwt.JWTContextKey, t.Refresh), "", "", 0)
	if err != nil {
		switch errors.Cause(err) {
		case authsvc.ErrTokenRevoked, kitjwt.ErrTokenExpired:
			s.clear()
		}
		return "", errors.Wrap(err, "refresh tokens")
	}

	next := tokens{Access: issued["access"], Refresh: issued["refresh"]}
	if err := s.set(next); err != nil {
		return "", err
	}
	return next.Access, nil
}

func (s *Session) set(t tokens) error {
	userID, expires, err := parseAccessToken(t.Access)
	if err != nil {
		return err
	}

	// Nothing changes in memory unless the tokens are on disk, so that a
	// failed write leaves the previous session intact.
	if err := s.persist(t); err != nil {
		return err
	}

	s.mtx.Lock()
	changed := s.userID != userID
	s.tokens = t
	s.userID = userID
	s.expires = expires
	watchers := s.watchers
	s.mtx.Unlock()

	if changed {
		for _, fn := range watchers {
			fn(userID)
		}
	}
	return nil
}

func (s *Session) clear() {
	s.mtx.Lock()
	changed := s.userID != 0
	s.tokens = tokens{}
	s.userID = 0
	s.expires = time.Time{}
	watchers := s.watchers
	s.mtx.Unlock()

	if s.path != "" {
		if err := os.Remove(s.path); err != nil && !os.IsNotExist(err) {
			s.logger.Log("during", "Remove", "path", s.path, "err", err)
		}
	}

	if changed {
		for _, fn := range watchers {
			fn(0)
		}
	}
}

func (s *Session) persist(t tokens) error {
	if s.path == "" {
		return nil
	}

	if err := os.MkdirAll(filepath.Dir(s.path), 0o700); err != nil {
		return errors.Wrap(err, "create session directory")
	}

	b, err := json.Marshal(t)
	if err != nil {
		return err
	}
	return errors.Wrap(os.WriteFile(s.path, b, 0o600), "write session file")
}

// parseAccessToken reads the user and expiry out of an access token. The
// signature is checked by the services, not here.
func parseAccessToken(token string) (uint64, time.Time, error) {
	claims := stdjwt.MapClaims{}
	if _, _, err := new(stdjwt.Parser).ParseUnverified(token, claims); err != nil {
		return 0, time.Time{}, errors.Wrap(err, "parse access token")
	}

	userID, ok := claims["user_id"].(float64)
	if !ok || userID <= 0 {
		return 0, time.Time{}, ErrTokenMalformed
	}

	var expires time.Time
	if exp, ok := claims["exp"].(float64); ok {
		expires = time.Unix(int64(exp), 0)
	}

	return uint64(userID), expires, nil
}
