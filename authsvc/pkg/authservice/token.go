package authservice

import (
	"time"

	"github.com/dgrijalva/jwt-go"
	"github.com/ichigozero/taskhaven/authsvc"
	"github.com/twinj/uuid"
)

const (
	DefaultAccessTTL  = 30 * time.Minute
	DefaultRefreshTTL = 7 * 24 * time.Hour
)

// TokenPair is a freshly signed access and refresh token for one user.
type TokenPair struct {
	AccessUUID  string
	RefreshUUID string
	Access      string
	Refresh     string
	AccessTTL   time.Duration
	RefreshTTL  time.Duration
}

// Map is the wire form handed to clients.
func (p TokenPair) Map() map[string]string {
	return map[string]string{
		"access":  p.Access,
		"refresh": p.Refresh,
	}
}

type Tokenizer interface {
	Issue(userID uint64) (TokenPair, error)
}

type TokenizerOption func(*tokenizer)

// WithTTL overrides how long issued tokens stay valid.
func WithTTL(access, refresh time.Duration) TokenizerOption {
	return func(t *tokenizer) {
		t.accessTTL = access
		t.refreshTTL = refresh
	}
}

func WithSecrets(access, refresh string) TokenizerOption {
	return func(t *tokenizer) {
		t.accessSecret = []byte(access)
		t.refreshSecret = []byte(refresh)
	}
}

type tokenizer struct {
	accessSecret  []byte
	refreshSecret []byte
	accessTTL     time.Duration
	refreshTTL    time.Duration
	now           func() time.Time
}

func NewTokenizer(opts ...TokenizerOption) Tokenizer {
	t := &tokenizer{
		accessSecret:  []byte(authsvc.AccessSecret),
		refreshSecret: []byte(authsvc.RefreshSecret),
		accessTTL:     DefaultAccessTTL,
		refreshTTL:    DefaultRefreshTTL,
		now:           time.Now,
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

func (t *tokenizer) Issue(userID uint64) (TokenPair, error) {
	now := t.now()
	accessUUID := uuid.NewV4().String()
	refreshUUID := refreshUUIDFor(accessUUID)

	access, err := sign(t.accessSecret, jwt.MapClaims{
		"uuid":    accessUUID,
		"user_id": userID,
		"exp":     now.Add(t.accessTTL).Unix(),
	})
	if err != nil {
		return TokenPair{}, err
	}

	refresh, err := sign(t.refreshSecret, jwt.MapClaims{
		"access_uuid":  accessUUID,
		"refresh_uuid": refreshUUID,
		"user_id":      userID,
		"exp":          now.Add(t.refreshTTL).Unix(),
	})
	if err != nil {
		return TokenPair{}, err
	}

	return TokenPair{
		AccessUUID:  accessUUID,
		RefreshUUID: refreshUUID,
		Access:      access,
		Refresh:     refresh,
		AccessTTL:   t.accessTTL,
		RefreshTTL:  t.refreshTTL,
	}, nil
}

func sign(secret []byte, claims jwt.MapClaims) (string, error) {
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(secret)
}

// refreshUUIDFor derives the refresh token UUID from its access token UUID,
// so that signing out with only the access token revokes both.
func refreshUUIDFor(accessUUID string) string {
	return uuid.NewV5(uuid.NameSpaceURL, accessUUID).String()
}
