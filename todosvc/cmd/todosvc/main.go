package main

import (
	"context"
	"flag"
	"os"

	"github.com/go-kit/kit/log"
	consulsd "github.com/go-kit/kit/sd/consul"
	authclient "github.com/ichigozero/taskhaven/authsvc/client"
	"github.com/ichigozero/taskhaven/internal/kitutil"
	"github.com/ichigozero/taskhaven/todosvc"
	"github.com/ichigozero/taskhaven/todosvc/changefeed"
	"github.com/ichigozero/taskhaven/todosvc/db/gorm"
	"github.com/ichigozero/taskhaven/todosvc/pkg/todoendpoint"
	"github.com/ichigozero/taskhaven/todosvc/pkg/todoservice"
	"github.com/ichigozero/taskhaven/todosvc/pkg/todotransport"
	userclient "github.com/ichigozero/taskhaven/usersvc/client"
	"github.com/oklog/oklog/pkg/group"
	"github.com/redis/go-redis/v9"
)

func main() {
	fs := flag.NewFlagSet("todosvc", flag.ExitOnError)
	var (
		httpAddr    = fs.String("http.addr", kitutil.Getenv("HTTP_ADDR", ":8082"), "HTTP listen address")
		consulAddr  = fs.String("consul.addr", kitutil.Getenv("CONSUL_ADDR", ""), "Consul agent address")
		databaseURL = fs.String("database.url", kitutil.Getenv("DATABASE_URL", ""), "Database URL (postgres://, mysql://, sqlite://); defaults to a local sqlite file")
		redisAddr   = fs.String("redis.addr", kitutil.Getenv("REDIS_ADDR", ""), "Redis address for the shared change feed; in-process when empty")
		debug       = fs.Bool("log.debug", false, "log debug records")

		retryMax, retryTimeout = kitutil.Retry(fs)
	)
	fs.Usage = kitutil.UsageFor(fs, os.Stderr, os.Args[0]+" [flags]")
	fs.Parse(os.Args[1:])

	logger := kitutil.NewLogger(os.Stderr, *debug)

	db, err := kitutil.OpenDB(*databaseURL, "todosvc.db", &todosvc.Todo{})
	if err != nil {
		logger.Log("during", "OpenDB", "err", err)
		os.Exit(1)
	}

	var feed changefeed.Feed = changefeed.NewBroker()
	if *redisAddr != "" {
		feed = changefeed.NewRedisFeed(redis.NewClient(&redis.Options{Addr: *redisAddr}))
	}

	consulClient, err := kitutil.NewConsul(*consulAddr)
	if err != nil {
		logger.Log("during", "NewConsul", "err", err)
		os.Exit(1)
	}
	client := consulsd.NewClient(consulClient)

	registrar, err := kitutil.Register(client, "todosvc", *httpAddr, logger)
	if err != nil {
		logger.Log("during", "Register", "err", err)
		os.Exit(1)
	}
	defer registrar.Deregister()

	authEndpoints, _ := authclient.New(client, logger, *retryMax, *retryTimeout)
	userEndpoints, _ := userclient.New(client, logger, *retryMax, *retryTimeout)

	var service todoservice.Service
	{
		service = todoservice.New(gorm.NewTodoRepository(db), feed, logger)
		service = todoservice.InstrumentingMiddleware(kitutil.RequestMetrics("todo_service"))(service)
		service = todoservice.ProxingMiddleware(
			context.Background(),
			authEndpoints.ValidateEndpoint,
			userEndpoints.IsExistsEndpoint,
		)(service)
	}

	changes := todotransport.NewChangesHandler(
		feed,
		todotransport.MakeAuthenticateEndpoint(authEndpoints.ValidateEndpoint),
		log.With(logger, "component", "changes"),
	)
	handler := todotransport.NewHTTPHandler(todoendpoint.New(service, logger), changes, logger)

	var g group.Group
	if err := kitutil.ServeHTTP(&g, *httpAddr, handler, logger); err != nil {
		logger.Log("transport", "HTTP", "during", "Listen", "err", err)
		registrar.Deregister()
		os.Exit(1)
	}
	kitutil.Interrupt(&g)
	logger.Log("exit", g.Run())
}
