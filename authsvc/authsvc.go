// Package authsvc holds what the auth service shares with its callers: the
// signing secrets, context keys and errors.
package authsvc

import (
	"context"
	"errors"

	"github.com/ichigozero/taskhaven/internal/kitutil"
)

// Secrets signing access and refresh tokens. Every service verifying tokens
// must run with the same values.
var (
	AccessSecret  = kitutil.Getenv("ACCESS_SECRET", "access-secret")
	RefreshSecret = kitutil.Getenv("REFRESH_SECRET", "refresh-secret")
)

type contextKey string

const (
	UserIDContextKey  contextKey = "UserID"
	JWTUUIDContextKey contextKey = "JWTUUID"
)

// AccessUUID returns the UUID of the access token that was checked against
// the token store for this request.
func AccessUUID(ctx context.Context) (string, bool) {
	uuid, ok := ctx.Value(JWTUUIDContextKey).(string)
	return uuid, ok && uuid != ""
}

var (
	ErrInvalidArgument      = errors.New("invalid argument")
	ErrUserIDContextMissing = errors.New("user ID was not passed through the context")
	ErrClaimsMissing        = errors.New("JWT claims was not passed through the context")
	ErrClaimsInvalid        = errors.New("JWT claims was invalid")
	ErrUUIDMissing          = errors.New("JWT claims carry no token UUID")
	ErrTokenRevoked         = errors.New("token has been revoked")
)
