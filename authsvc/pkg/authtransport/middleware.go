package authtransport

import (
	"context"

	stdjwt "github.com/dgrijalva/jwt-go"
	kitjwt "github.com/go-kit/kit/auth/jwt"
	"github.com/go-kit/kit/endpoint"
	"github.com/ichigozero/taskhaven/authsvc"
	"github.com/ichigozero/taskhaven/authsvc/inmem"
)

// NewAuthenticater lets a request through only while its access token is
// live in the token store, and records the token UUID for authsvc.AccessUUID.
// It runs inside the kitjwt parser.
func NewAuthenticater(store inmem.Client) endpoint.Middleware {
	return func(next endpoint.Endpoint) endpoint.Endpoint {
		return func(ctx context.Context, request interface{}) (interface{}, error) {
			uuid, err := claimedUUID(ctx)
			if err != nil {
				return nil, err
			}
			if err := store.Get(ctx, uuid); err != nil {
				return nil, err
			}
			return next(context.WithValue(ctx, authsvc.JWTUUIDContextKey, uuid), request)
		}
	}
}

func claimedUUID(ctx context.Context) (string, error) {
	claims, ok := ctx.Value(kitjwt.JWTClaimsContextKey).(stdjwt.MapClaims)
	if !ok {
		return "", authsvc.ErrClaimsMissing
	}
	uuid, _ := claims["uuid"].(string)
	if uuid == "" {
		return "", authsvc.ErrUUIDMissing
	}
	return uuid, nil
}
