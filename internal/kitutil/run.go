package kitutil

import (
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/go-kit/kit/log"
	"github.com/oklog/oklog/pkg/group"
)

// ServeHTTP adds an actor serving handler on addr. The listener is opened
// right away so that a taken port fails before anything else runs.
func ServeHTTP(g *group.Group, addr string, handler http.Handler, logger log.Logger) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}

	g.Add(func() error {
		logger.Log("transport", "HTTP", "addr", ln.Addr().String())
		return http.Serve(ln, handler)
	}, func(error) {
		ln.Close()
	})
	return nil
}

// Interrupt adds an actor that returns on SIGINT or SIGTERM.
func Interrupt(g *group.Group) {
	cancel := make(chan struct{})
	g.Add(func() error {
		c := make(chan os.Signal, 1)
		signal.Notify(c, syscall.SIGINT, syscall.SIGTERM)
		select {
		case sig := <-c:
			return fmt.Errorf("received signal %s", sig)
		case <-cancel:
			return nil
		}
	}, func(error) {
		close(cancel)
	})
}
