package main

import (
	"context"
	"flag"
	"os"

	consulsd "github.com/go-kit/kit/sd/consul"
	"github.com/ichigozero/taskhaven/authsvc/inmem"
	"github.com/ichigozero/taskhaven/authsvc/pkg/authendpoint"
	"github.com/ichigozero/taskhaven/authsvc/pkg/authservice"
	"github.com/ichigozero/taskhaven/authsvc/pkg/authtransport"
	"github.com/ichigozero/taskhaven/internal/kitutil"
	userclient "github.com/ichigozero/taskhaven/usersvc/client"
	"github.com/oklog/oklog/pkg/group"
	"github.com/redis/go-redis/v9"
)

func main() {
	fs := flag.NewFlagSet("authsvc", flag.ExitOnError)
	var (
		httpAddr   = fs.String("http.addr", kitutil.Getenv("HTTP_ADDR", ":8081"), "HTTP listen address")
		consulAddr = fs.String("consul.addr", kitutil.Getenv("CONSUL_ADDR", ""), "Consul agent address")
		redisAddr  = fs.String("redis.addr", kitutil.Getenv("REDIS_ADDR", ""), "Redis address for the token store; consul KV when empty")
		accessTTL  = fs.Duration("token.access-ttl", authservice.DefaultAccessTTL, "access token lifetime")
		refreshTTL = fs.Duration("token.refresh-ttl", authservice.DefaultRefreshTTL, "refresh token lifetime")
		debug      = fs.Bool("log.debug", false, "log debug records")

		retryMax, retryTimeout = kitutil.Retry(fs)
	)
	fs.Usage = kitutil.UsageFor(fs, os.Stderr, os.Args[0]+" [flags]")
	fs.Parse(os.Args[1:])

	logger := kitutil.NewLogger(os.Stderr, *debug)

	consulClient, err := kitutil.NewConsul(*consulAddr)
	if err != nil {
		logger.Log("during", "NewConsul", "err", err)
		os.Exit(1)
	}
	client := consulsd.NewClient(consulClient)

	// Revocations must be visible to every instance, so the token store
	// lives outside the process either way.
	var store inmem.Client = inmem.NewClient(consulClient)
	if *redisAddr != "" {
		store = inmem.NewRedisClient(redis.NewClient(&redis.Options{Addr: *redisAddr}))
	}

	registrar, err := kitutil.Register(client, "authsvc", *httpAddr, logger)
	if err != nil {
		logger.Log("during", "Register", "err", err)
		os.Exit(1)
	}
	defer registrar.Deregister()

	userEndpoints, _ := userclient.New(client, logger, *retryMax, *retryTimeout)

	var service authservice.Service
	{
		tokenizer := authservice.NewTokenizer(authservice.WithTTL(*accessTTL, *refreshTTL))
		service = authservice.New(tokenizer, store, logger)
		service = authservice.InstrumentingMiddleware(kitutil.RequestMetrics("auth_service"))(service)
		service = authservice.ProxingMiddleware(
			context.Background(),
			userEndpoints.UserIDEndpoint,
			userEndpoints.CreateUserEndpoint,
		)(service)
	}
	handler := authtransport.NewHTTPHandler(authendpoint.New(service, logger), store, logger)

	var g group.Group
	if err := kitutil.ServeHTTP(&g, *httpAddr, handler, logger); err != nil {
		logger.Log("transport", "HTTP", "during", "Listen", "err", err)
		registrar.Deregister()
		os.Exit(1)
	}
	kitutil.Interrupt(&g)
	logger.Log("exit", g.Run())
}
