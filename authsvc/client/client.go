// Package client resolves authsvc instances through consul.
package client

import (
	"io"
	"time"

	"github.com/go-kit/kit/endpoint"
	"github.com/go-kit/kit/log"
	"github.com/go-kit/kit/sd"
	consulsd "github.com/go-kit/kit/sd/consul"
	"github.com/ichigozero/taskhaven/authsvc/pkg/authendpoint"
	"github.com/ichigozero/taskhaven/authsvc/pkg/authservice"
	"github.com/ichigozero/taskhaven/authsvc/pkg/authtransport"
	"github.com/ichigozero/taskhaven/internal/kitutil"
)

func New(apiclient consulsd.Client, logger log.Logger, retryMax int, retryTimeout time.Duration) (authendpoint.Set, error) {
	b := kitutil.NewBalancer(apiclient, "authsvc", logger, retryMax, retryTimeout)
	return authendpoint.Set{
		SignInEndpoint:   b.Endpoint(factoryFor(authendpoint.MakeSignInEndpoint, logger)),
		SignUpEndpoint:   b.Endpoint(factoryFor(authendpoint.MakeSignUpEndpoint, logger)),
		SignOutEndpoint:  b.Endpoint(factoryFor(authendpoint.MakeSignOutEndpoint, logger)),
		RefreshEndpoint:  b.Endpoint(factoryFor(authendpoint.MakeRefreshEndpoint, logger)),
		ValidateEndpoint: b.Endpoint(factoryFor(authendpoint.MakeValidateEndpoint, logger)),
	}, nil
}

func factoryFor(makeEndpoint func(authservice.Service) endpoint.Endpoint, logger log.Logger) sd.Factory {
	return func(instance string) (endpoint.Endpoint, io.Closer, error) {
		service, err := authtransport.NewHTTPClient(instance, logger)
		if err != nil {
			return nil, nil, err
		}
		return makeEndpoint(service), nil, nil
	}
}
