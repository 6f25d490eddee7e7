package main

import (
	"flag"
	"os"

	consulsd "github.com/go-kit/kit/sd/consul"
	"github.com/ichigozero/taskhaven/internal/kitutil"
	"github.com/ichigozero/taskhaven/usersvc"
	"github.com/ichigozero/taskhaven/usersvc/db/gorm"
	"github.com/ichigozero/taskhaven/usersvc/pkg/userendpoint"
	"github.com/ichigozero/taskhaven/usersvc/pkg/userservice"
	"github.com/ichigozero/taskhaven/usersvc/pkg/usertransport"
	"github.com/oklog/oklog/pkg/group"
)

func main() {
	fs := flag.NewFlagSet("usersvc", flag.ExitOnError)
	var (
		httpAddr    = fs.String("http.addr", kitutil.Getenv("HTTP_ADDR", ":8080"), "HTTP listen address")
		consulAddr  = fs.String("consul.addr", kitutil.Getenv("CONSUL_ADDR", ""), "Consul agent address")
		databaseURL = fs.String("database.url", kitutil.Getenv("DATABASE_URL", ""), "Database URL (postgres://, mysql://, sqlite://)")
		debug       = fs.Bool("log.debug", false, "log debug records")
	)
	fs.Usage = kitutil.UsageFor(fs, os.Stderr, os.Args[0]+" [flags]")
	fs.Parse(os.Args[1:])

	logger := kitutil.NewLogger(os.Stderr, *debug)

	db, err := kitutil.OpenDB(*databaseURL, "usersvc.db", &usersvc.User{})
	if err != nil {
		logger.Log("during", "OpenDB", "err", err)
		os.Exit(1)
	}

	var service userservice.Service
	{
		service = userservice.New(gorm.NewUserRepository(db), logger)
		service = userservice.InstrumentingMiddleware(kitutil.RequestMetrics("user_service"))(service)
	}
	handler := usertransport.NewHTTPHandler(userendpoint.New(service, logger), logger)

	consulClient, err := kitutil.NewConsul(*consulAddr)
	if err != nil {
		logger.Log("during", "NewConsul", "err", err)
		os.Exit(1)
	}
	registrar, err := kitutil.Register(consulsd.NewClient(consulClient), "usersvc", *httpAddr, logger)
	if err != nil {
		logger.Log("during", "Register", "err", err)
		os.Exit(1)
	}
	defer registrar.Deregister()

	var g group.Group
	if err := kitutil.ServeHTTP(&g, *httpAddr, handler, logger); err != nil {
		logger.Log("transport", "HTTP", "during", "Listen", "err", err)
		registrar.Deregister()
		os.Exit(1)
	}
	kitutil.Interrupt(&g)
	logger.Log("exit", g.Run())
}
