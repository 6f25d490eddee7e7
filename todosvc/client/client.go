package client

import (
	"io"
	"time"

	"github.com/go-kit/kit/endpoint"
	"github.com/go-kit/kit/log"
	"github.com/go-kit/kit/sd"
	consulsd "github.com/go-kit/kit/sd/consul"
	"github.com/ichigozero/taskhaven/internal/kitutil"
	"github.com/ichigozero/taskhaven/todosvc/pkg/todoendpoint"
	"github.com/ichigozero/taskhaven/todosvc/pkg/todoservice"
	"github.com/ichigozero/taskhaven/todosvc/pkg/todotransport"
)

// New returns an endpoint set whose endpoints are load balanced across the
// todosvc instances registered in consul. The caller's JWT claims must be in
// ctx, as they are behind a kitjwt parser.
func New(apiclient consulsd.Client, logger log.Logger, retryMax int, retryTimeout time.Duration) (todoendpoint.Set, error) {
	b := kitutil.NewBalancer(apiclient, "todosvc", logger, retryMax, retryTimeout)
	return todoendpoint.Set{
		CreateTodoEndpoint: b.Endpoint(factoryFor(todoendpoint.MakeCreateTodoEndpoint, logger)),
		TodosEndpoint:      b.Endpoint(factoryFor(todoendpoint.MakeTodosEndpoint, logger)),
		TodoEndpoint:       b.Endpoint(factoryFor(todoendpoint.MakeTodoEndpoint, logger)),
		UpdateTodoEndpoint: b.Endpoint(factoryFor(todoendpoint.MakeUpdateTodoEndpoint, logger)),
		DeleteTodoEndpoint: b.Endpoint(factoryFor(todoendpoint.MakeDeleteTodoEndpoint, logger)),
	}, nil
}

func factoryFor(makeEndpoint func(todoservice.Service) endpoint.Endpoint, logger log.Logger) sd.Factory {
	return func(instance string) (endpoint.Endpoint, io.Closer, error) {
		service, err := todotransport.NewHTTPClient(instance, logger)
		if err != nil {
			return nil, nil, err
		}
		return makeEndpoint(service), nil, nil
	}
}
