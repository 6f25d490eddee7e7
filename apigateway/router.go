package main

import (
	"net/http"

	"github.com/go-kit/kit/log"
	"github.com/gorilla/mux"
	"github.com/ichigozero/taskhaven/authsvc/inmem"
	"github.com/ichigozero/taskhaven/authsvc/pkg/authendpoint"
	"github.com/ichigozero/taskhaven/authsvc/pkg/authtransport"
	"github.com/ichigozero/taskhaven/todosvc/pkg/todoendpoint"
	"github.com/ichigozero/taskhaven/todosvc/pkg/todotransport"
)

// newRouter mounts the public auth routes under /auth/v1 and the todo routes,
// change stream included, under /todo/v1.
func newRouter(auth authendpoint.Set, store inmem.Client, todos todoendpoint.Set, changes http.Handler, logger log.Logger) *mux.Router {
	r := mux.NewRouter()
	r.PathPrefix("/auth/v1").Handler(http.StripPrefix("/auth/v1",
		authtransport.NewPublicHTTPHandler(auth, store, log.With(logger, "route", "auth"))))
	r.PathPrefix("/todo/v1").Handler(http.StripPrefix("/todo/v1",
		todotransport.NewHTTPHandler(todos, changes, log.With(logger, "route", "todo"))))
	return r
}
