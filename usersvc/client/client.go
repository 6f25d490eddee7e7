// Package client resolves usersvc instances through consul.
package client

import (
	"io"
	"time"

	"github.com/go-kit/kit/endpoint"
	"github.com/go-kit/kit/log"
	"github.com/go-kit/kit/sd"
	consulsd "github.com/go-kit/kit/sd/consul"
	"github.com/ichigozero/taskhaven/internal/kitutil"
	"github.com/ichigozero/taskhaven/usersvc/pkg/userendpoint"
	"github.com/ichigozero/taskhaven/usersvc/pkg/userservice"
	"github.com/ichigozero/taskhaven/usersvc/pkg/usertransport"
)

func New(apiclient consulsd.Client, logger log.Logger, retryMax int, retryTimeout time.Duration) (userendpoint.Set, error) {
	b := kitutil.NewBalancer(apiclient, "usersvc", logger, retryMax, retryTimeout)
	return userendpoint.Set{
		CreateUserEndpoint: b.Endpoint(factoryFor(userendpoint.MakeCreateUserEndpoint, logger)),
		UserIDEndpoint:     b.Endpoint(factoryFor(userendpoint.MakeUserIDEndpoint, logger)),
		IsExistsEndpoint:   b.Endpoint(factoryFor(userendpoint.MakeIsExistsEndpoint, logger)),
	}, nil
}

func factoryFor(makeEndpoint func(userservice.Service) endpoint.Endpoint, logger log.Logger) sd.Factory {
	return func(instance string) (endpoint.Endpoint, io.Closer, error) {
		service, err := usertransport.NewHTTPClient(instance, logger)
		if err != nil {
			return nil, nil, err
		}
		return makeEndpoint(service), nil, nil
	}
}
