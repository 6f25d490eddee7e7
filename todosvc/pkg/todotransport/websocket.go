package todotransport

import (
	"context"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	kitjwt "github.com/go-kit/kit/auth/jwt"
	"github.com/go-kit/kit/endpoint"
	"github.com/go-kit/kit/log"
	"github.com/gorilla/websocket"
	"github.com/ichigozero/taskhaven/authsvc/pkg/authendpoint"
	"github.com/ichigozero/taskhaven/todosvc"
	"github.com/ichigozero/taskhaven/todosvc/changefeed"
	"github.com/ichigozero/taskhaven/todosvc/pkg/todoendpoint"
	"github.com/pkg/errors"
)

const (
	changedMessage = "changed"
	pingPeriod     = 30 * time.Second
	writeWait      = 10 * time.Second
)

// MakeAuthenticateEndpoint resolves the caller of a change stream from the
// JWT in ctx. When validateUUID is not nil the access token must also still
// be live in the auth service, i.e. not signed out.
func MakeAuthenticateEndpoint(validateUUID endpoint.Endpoint) endpoint.Endpoint {
	var e endpoint.Endpoint = func(ctx context.Context, _ interface{}) (interface{}, error) {
		auth, err := todoendpoint.Claims(ctx)
		if err != nil {
			return nil, err
		}

		if validateUUID != nil {
			response, err := validateUUID(ctx, authendpoint.ValidateRequest{AccessUUID: auth.AccessUUID})
			if err != nil {
				return nil, err
			}
			resp := response.(authendpoint.ValidateResponse)
			if resp.Err != nil {
				return nil, resp.Err
			}
			if !resp.V {
				return nil, todosvc.ErrClaimsInvalid
			}
		}

		return auth, nil
	}
	return jwtParser()(e)
}

// NewChangesHandler upgrades to a websocket and writes one text frame per
// change of the authenticated user's todos. Frames carry no payload; they
// only tell the client to fetch again.
func NewChangesHandler(feed changefeed.Feed, authenticate endpoint.Endpoint, logger log.Logger) http.Handler {
	upgrader := websocket.Upgrader{
		CheckOrigin: func(*http.Request) bool { return true },
	}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := kitjwt.HTTPToContext()(r.Context(), r)

		response, err := authenticate(ctx, nil)
		if err != nil {
			errorEncoder(ctx, err, w)
			return
		}
		auth := response.(todosvc.Auth)

		if owner := r.URL.Query().Get("owner"); owner != "" && owner != strconv.FormatUint(auth.UserID, 10) {
			errorEncoder(ctx, todosvc.ErrForbidden, w)
			return
		}

		ctx, cancel := context.WithCancel(r.Context())
		defer cancel()

		changes, err := feed.Subscribe(ctx, auth.UserID)
		if err != nil {
			logger.Log("during", "Subscribe", "user_id", auth.UserID, "err", err)
			errorEncoder(ctx, err, w)
			return
		}

		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			// Upgrade has already replied to the client.
			logger.Log("during", "Upgrade", "user_id", auth.UserID, "err", err)
			return
		}
		defer conn.Close()

		logger.Log("stream", "open", "user_id", auth.UserID)
		defer logger.Log("stream", "closed", "user_id", auth.UserID)

		// The client never sends data frames; reading is what notices it
		// going away and keeps control frames flowing.
		go func() {
			defer cancel()
			for {
				if _, _, err := conn.ReadMessage(); err != nil {
					return
				}
			}
		}()

		ticker := time.NewTicker(pingPeriod)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case _, ok := <-changes:
				if !ok {
					return
				}
				conn.SetWriteDeadline(time.Now().Add(writeWait))
				if err := conn.WriteMessage(websocket.TextMessage, []byte(changedMessage)); err != nil {
					return
				}
			case <-ticker.C:
				if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
					return
				}
			}
		}
	})
}

// Subscription is an open change stream. onChange runs on the stream's own
// goroutine, once per received frame, until Unsubscribe is called or the
// stream breaks.
type Subscription struct {
	conn *websocket.Conn
	done chan struct{}
	once sync.Once
}

// SubscribeChanges dials the change stream of the todo API at instance,
// authenticating with token.
func SubscribeChanges(ctx context.Context, instance, token string, owner uint64, onChange func()) (*Subscription, error) {
	u, err := parseInstance(instance)
	if err != nil {
		return nil, err
	}
	u = copyURL(u, "/changes")
	u.Scheme = strings.Replace(u.Scheme, "http", "ws", 1)
	if owner != 0 {
		u.RawQuery = "owner=" + strconv.FormatUint(owner, 10)
	}

	header := http.Header{}
	header.Set("Authorization", "Bearer "+token)

	conn, resp, err := websocket.DefaultDialer.DialContext(ctx, u.String(), header)
	if err != nil {
		if resp != nil {
			defer resp.Body.Close()
			if resp.StatusCode != http.StatusSwitchingProtocols {
				return nil, decodeError(resp)
			}
		}
		return nil, errors.Wrap(err, "dial change stream")
	}

	s := &Subscription{conn: conn, done: make(chan struct{})}
	go func() {
		defer close(s.done)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
			onChange()
		}
	}()

	return s, nil
}

// Done is closed once the stream has ended for any reason.
func (s *Subscription) Done() <-chan struct{} {
	return s.done
}

// Unsubscribe closes the stream and waits until onChange can no longer run.
func (s *Subscription) Unsubscribe() error {
	var err error
	s.once.Do(func() {
		s.conn.WriteControl(
			websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(writeWait),
		)
		err = s.conn.Close()
		<-s.done
	})
	return err
}
