package authtransport

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/alicebob/miniredis/v2"
	stdjwt "github.com/dgrijalva/jwt-go"
	kitjwt "github.com/go-kit/kit/auth/jwt"
	"github.com/go-kit/kit/log"
	"github.com/ichigozero/taskhaven/authsvc"
	"github.com/ichigozero/taskhaven/authsvc/inmem"
	"github.com/ichigozero/taskhaven/authsvc/pkg/authendpoint"
	"github.com/ichigozero/taskhaven/authsvc/pkg/authservice"
	"github.com/ichigozero/taskhaven/usersvc"
	"github.com/ichigozero/taskhaven/usersvc/pkg/userendpoint"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestServer(t *testing.T) *httptest.Server {
	t.Helper()
	endpoints, store := newTestEndpoints(t)
	srv := httptest.NewServer(NewHTTPHandler(endpoints, store, log.NewNopLogger()))
	t.Cleanup(srv.Close)
	return srv
}

func newTestEndpoints(t *testing.T) (authendpoint.Set, inmem.Client) {
	t.Helper()

	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { rdb.Close() })
	store := inmem.NewRedisClient(rdb)

	users := map[string]uint64{}
	userID := func(_ context.Context, request interface{}) (interface{}, error) {
		req := request.(userendpoint.UserIDRequest)
		id, ok := users[req.Email]
		if !ok {
			return userendpoint.UserIDResponse{Err: usersvc.ErrUserNotFound}, nil
		}
		return userendpoint.UserIDResponse{ID: id}, nil
	}
	createUser := func(_ context.Context, request interface{}) (interface{}, error) {
		req := request.(userendpoint.CreateUserRequest)
		if err := usersvc.ValidateCredentials(req.Email, req.Password); err != nil {
			return userendpoint.CreateUserResponse{Err: err}, nil
		}
		if _, ok := users[req.Email]; ok {
			return userendpoint.CreateUserResponse{Err: usersvc.ErrEmailTaken}, nil
		}
		users[req.Email] = uint64(len(users) + 1)
		return userendpoint.CreateUserResponse{ID: users[req.Email]}, nil
	}

	logger := log.NewNopLogger()
	var svc authservice.Service
	{
		svc = authservice.New(authservice.NewTokenizer(), store, logger)
		svc = authservice.ProxingMiddleware(context.Background(), userID, createUser)(svc)
	}

	return authendpoint.New(svc, logger), store
}

func withToken(token string) context.Context {
	return context.WithValue(context.Background(), kitjwt.JWTContextKey, token)
}

func accessUUID(t *testing.T, token string) string {
	t.Helper()
	claims := stdjwt.MapClaims{}
	_, _, err := new(stdjwt.Parser).ParseUnverified(token, claims)
	require.NoError(t, err)
	return claims["uuid"].(string)
}

func TestSessionLifecycle(t *testing.T) {
	srv := newTestServer(t)
	client, err := NewHTTPClient(srv.URL, log.NewNopLogger())
	require.NoError(t, err)
	ctx := context.Background()

	id, err := client.SignUp(ctx, "alice@example.com", "secret1")
	require.NoError(t, err)
	assert.Equal(t, uint64(1), id)

	tokens, err := client.SignIn(ctx, "alice@example.com", "secret1")
	require.NoError(t, err)
	require.NotEmpty(t, tokens["access"])
	require.NotEmpty(t, tokens["refresh"])

	v, err := client.Validate(ctx, accessUUID(t, tokens["access"]))
	require.NoError(t, err)
	assert.True(t, v)

	rotated, err := client.Refresh(withToken(tokens["refresh"]), "", "", 0)
	require.NoError(t, err)
	assert.NotEqual(t, tokens["access"], rotated["access"])

	// Rotation revoked the first access token.
	_, err = client.SignOut(withToken(tokens["access"]), "")
	assert.Equal(t, inmem.ErrKeyNotFound, err)

	ok, err := client.SignOut(withToken(rotated["access"]), "")
	require.NoError(t, err)
	assert.True(t, ok)

	v, err = client.Validate(ctx, accessUUID(t, rotated["access"]))
	require.NoError(t, err)
	assert.False(t, v)

	_, err = client.Refresh(withToken(rotated["refresh"]), "", "", 0)
	assert.Equal(t, authsvc.ErrTokenRevoked, err)
}

func TestSignInAndSignUpErrors(t *testing.T) {
	srv := newTestServer(t)
	client, err := NewHTTPClient(srv.URL, log.NewNopLogger())
	require.NoError(t, err)
	ctx := context.Background()

	_, err = client.SignIn(ctx, "nobody@example.com", "secret1")
	assert.Equal(t, usersvc.ErrUserNotFound, err)

	_, err = client.SignUp(ctx, "not-an-email", "secret1")
	assert.Equal(t, usersvc.ErrInvalidEmail, err)

	_, err = client.SignUp(ctx, "alice@example.com", "secret1")
	require.NoError(t, err)
	_, err = client.SignUp(ctx, "alice@example.com", "secret1")
	assert.Equal(t, usersvc.ErrEmailTaken, err)
}

func TestSignOutRequiresToken(t *testing.T) {
	srv := newTestServer(t)

	resp, err := http.Post(srv.URL+"/signout", "application/json", nil)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestRefreshRejectsAccessToken(t *testing.T) {
	srv := newTestServer(t)
	client, err := NewHTTPClient(srv.URL, log.NewNopLogger())
	require.NoError(t, err)
	ctx := context.Background()

	_, err = client.SignUp(ctx, "alice@example.com", "secret1")
	require.NoError(t, err)
	tokens, err := client.SignIn(ctx, "alice@example.com", "secret1")
	require.NoError(t, err)

	// Access tokens are signed with a different secret.
	_, err = client.Refresh(withToken(tokens["access"]), "", "", 0)
	assert.Error(t, err)
}

func TestPublicHandlerHidesValidate(t *testing.T) {
	endpoints, store := newTestEndpoints(t)
	public := httptest.NewServer(NewPublicHTTPHandler(endpoints, store, log.NewNopLogger()))
	defer public.Close()

	for _, path := range []string{"/validate", "/metrics"} {
		resp, err := http.Post(public.URL+path, "application/json", strings.NewReader(`{"access_uuid":"x"}`))
		require.NoError(t, err)
		resp.Body.Close()
		assert.Equal(t, http.StatusNotFound, resp.StatusCode, path)
	}

	client, err := NewHTTPClient(public.URL, log.NewNopLogger())
	require.NoError(t, err)
	_, err = client.SignUp(context.Background(), "alice@example.com", "secret1")
	require.NoError(t, err)
	_, err = client.SignIn(context.Background(), "alice@example.com", "secret1")
	require.NoError(t, err)

	internal := newTestServer(t)
	resp, err := http.Post(internal.URL+"/validate", "application/json", strings.NewReader(`{"access_uuid":"x"}`))
	require.NoError(t, err)
	resp.Body.Close()
	assert.NotEqual(t, http.StatusNotFound, resp.StatusCode)
}
