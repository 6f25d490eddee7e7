package main

import (
	"flag"
	"net/http"
	"os"

	"github.com/go-kit/kit/log"
	consulsd "github.com/go-kit/kit/sd/consul"
	authclient "github.com/ichigozero/taskhaven/authsvc/client"
	"github.com/ichigozero/taskhaven/authsvc/inmem"
	"github.com/ichigozero/taskhaven/internal/kitutil"
	"github.com/ichigozero/taskhaven/todosvc/changefeed"
	todoclient "github.com/ichigozero/taskhaven/todosvc/client"
	"github.com/ichigozero/taskhaven/todosvc/pkg/todotransport"
	"github.com/oklog/oklog/pkg/group"
	"github.com/redis/go-redis/v9"
)

func main() {
	fs := flag.NewFlagSet("apigateway", flag.ExitOnError)
	var (
		httpAddr   = fs.String("http.addr", kitutil.Getenv("HTTP_ADDR", ":8000"), "Address for HTTP (JSON) server")
		consulAddr = fs.String("consul.addr", kitutil.Getenv("CONSUL_ADDR", ""), "Consul agent address")
		redisAddr  = fs.String("redis.addr", kitutil.Getenv("REDIS_ADDR", ""), "Redis address shared with todosvc and authsvc; change streams are proxied to todosvc when empty")
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

	var (
		rdb   *redis.Client
		store inmem.Client = inmem.NewClient(consulClient)
	)
	if *redisAddr != "" {
		rdb = redis.NewClient(&redis.Options{Addr: *redisAddr})
		store = inmem.NewRedisClient(rdb)
	}

	authEndpoints, _ := authclient.New(client, logger, *retryMax, *retryTimeout)
	todoEndpoints, _ := todoclient.New(client, logger, *retryMax, *retryTimeout)

	// With a shared redis feed the gateway serves change streams itself.
	// Otherwise they are proxied to a todosvc instance, which serves them
	// from its own broker.
	var changes http.Handler
	if rdb != nil {
		changes = todotransport.NewChangesHandler(
			changefeed.NewRedisFeed(rdb),
			todotransport.MakeAuthenticateEndpoint(authEndpoints.ValidateEndpoint),
			log.With(logger, "component", "changes"),
		)
	} else {
		todosvc := kitutil.NewBalancer(client, "todosvc", logger, *retryMax, *retryTimeout)
		changes = todotransport.NewChangesProxy(todosvc.Instances(), log.With(logger, "component", "changes"))
	}

	r := newRouter(authEndpoints, store, todoEndpoints, changes, logger)

	var g group.Group
	if err := kitutil.ServeHTTP(&g, *httpAddr, r, logger); err != nil {
		logger.Log("transport", "HTTP", "during", "Listen", "err", err)
		os.Exit(1)
	}
	kitutil.Interrupt(&g)
	logger.Log("exit", g.Run())
}
