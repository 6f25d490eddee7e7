package kitutil

import (
	"net"
	"strconv"

	"github.com/go-kit/kit/log"
	consulsd "github.com/go-kit/kit/sd/consul"
	"github.com/hashicorp/consul/api"
	"github.com/pkg/errors"
	"github.com/twinj/uuid"
)

// NewConsul connects to the agent at addr, or the consul default when addr
// is empty.
func NewConsul(addr string) (*api.Client, error) {
	config := api.DefaultConfig()
	if addr != "" {
		config.Address = addr
	}
	return api.NewClient(config)
}

// Registration builds the agent registration of one instance of name
// listening on httpAddr. An empty host registers as localhost.
func Registration(name, httpAddr string) (*api.AgentServiceRegistration, error) {
	host, port, err := net.SplitHostPort(httpAddr)
	if err != nil {
		return nil, errors.Wrap(err, "split http address")
	}
	if host == "" {
		host = "localhost"
	}

	p, err := strconv.Atoi(port)
	if err != nil {
		return nil, errors.Wrap(err, "parse http port")
	}

	return &api.AgentServiceRegistration{
		ID:      uuid.NewV4().String(),
		Name:    name,
		Address: host,
		Port:    p,
	}, nil
}

// Register announces the instance. Callers Deregister on shutdown.
func Register(client consulsd.Client, name, httpAddr string, logger log.Logger) (*consulsd.Registrar, error) {
	asr, err := Registration(name, httpAddr)
	if err != nil {
		return nil, err
	}

	registrar := consulsd.NewRegistrar(client, asr, logger)
	registrar.Register()
	return registrar, nil
}
