package kitutil

import (
	"context"
	"io"
	"time"

	"github.com/go-kit/kit/endpoint"
	"github.com/go-kit/kit/log"
	"github.com/go-kit/kit/sd"
	consulsd "github.com/go-kit/kit/sd/consul"
	"github.com/go-kit/kit/sd/lb"
)

// Balancer turns per-instance endpoint factories into endpoints that round
// robin over the live instances of one service, retrying on failure.
type Balancer struct {
	Instancer sd.Instancer
	Logger    log.Logger
	Max       int
	Timeout   time.Duration
}

// NewBalancer watches the passing consul instances of service.
func NewBalancer(client consulsd.Client, service string, logger log.Logger, retryMax int, timeout time.Duration) Balancer {
	return Balancer{
		Instancer: consulsd.NewInstancer(client, logger, service, []string{}, true),
		Logger:    logger,
		Max:       retryMax,
		Timeout:   timeout,
	}
}

func (b Balancer) Endpoint(factory sd.Factory) endpoint.Endpoint {
	endpointer := sd.NewEndpointer(b.Instancer, factory, b.Logger)
	return lb.Retry(b.Max, b.Timeout, lb.NewRoundRobin(endpointer))
}

// Instances round robins over the instance addresses themselves, for callers
// that talk to an instance directly rather than through an endpoint.
func (b Balancer) Instances() lb.Balancer {
	factory := func(instance string) (endpoint.Endpoint, io.Closer, error) {
		return func(context.Context, interface{}) (interface{}, error) {
			return instance, nil
		}, nil, nil
	}
	return lb.NewRoundRobin(sd.NewEndpointer(b.Instancer, factory, b.Logger))
}
