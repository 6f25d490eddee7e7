package todotransport

import (
	"net/http"
	"net/http/httputil"

	"github.com/go-kit/kit/log"
	"github.com/go-kit/kit/sd/lb"
	"github.com/pkg/errors"
)

// ErrNoInstance is returned when no todosvc instance can take a change
// stream.
var ErrNoInstance = errors.New("no todo service instance available")

// NewChangesProxy forwards change stream requests, websocket upgrade
// included, to a todosvc instance. The endpoints of instances must return
// the instance address. Streams opened this way only see the changes made
// through the instance they land on.
func NewChangesProxy(instances lb.Balancer, logger log.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		e, err := instances.Endpoint()
		if err != nil {
			logger.Log("during", "Endpoint", "err", err)
			errorEncoder(ctx, ErrNoInstance, w)
			return
		}
		instance, err := e(ctx, nil)
		if err != nil {
			logger.Log("during", "Endpoint", "err", err)
			errorEncoder(ctx, ErrNoInstance, w)
			return
		}
		target, err := parseInstance(instance.(string))
		if err != nil {
			logger.Log("during", "parseInstance", "instance", instance, "err", err)
			errorEncoder(ctx, ErrNoInstance, w)
			return
		}

		proxy := httputil.NewSingleHostReverseProxy(target)
		proxy.ErrorHandler = func(w http.ResponseWriter, r *http.Request, err error) {
			logger.Log("during", "Proxy", "instance", target.Host, "err", err)
			errorEncoder(r.Context(), ErrNoInstance, w)
		}
		proxy.ServeHTTP(w, r)
	})
}
