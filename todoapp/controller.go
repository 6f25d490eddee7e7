package todoapp

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/go-kit/kit/log"
	"github.com/ichigozero/taskhaven/todosvc"
	"github.com/twinj/uuid"
)

// EmptyMessage is shown when the signed-in user has no todos.
const EmptyMessage = "No todos yet. Add one above!"

// DefaultResubscribeDelay is the pause between attempts to restore a lost
// change subscription.
const DefaultResubscribeDelay = 2 * time.Second

// Option configures a Controller.
type Option func(*Controller)

// WithRefreshHook registers fn to run after the local collection changed.
func WithRefreshHook(fn func()) Option {
	return func(c *Controller) { c.refresh = fn }
}

// WithIDGenerator replaces the generator of new todo ids.
func WithIDGenerator(fn func() string) Option {
	return func(c *Controller) { c.newID = fn }
}

// WithLogger sets the logger remote failures are reported to. The default
// discards everything.
func WithLogger(logger log.Logger) Option {
	return func(c *Controller) { c.logger = logger }
}

// WithResubscribeDelay replaces DefaultResubscribeDelay.
func WithResubscribeDelay(d time.Duration) Option {
	return func(c *Controller) { c.retryDelay = d }
}

// Controller mirrors the signed-in user's todos. Writes are never applied
// locally; the collection only changes through Fetch, which runs on every
// change notification. A subscription that fails or ends while its user is
// still signed in is retried until it is restored, then followed by a Fetch.
type Controller struct {
	store      Store
	notifier   Notifier
	refresh    func()
	newID      func() string
	logger     log.Logger
	retryDelay time.Duration

	// init serializes identity changes so that at most one subscription
	// is held at a time.
	init sync.Mutex

	mtx   sync.RWMutex
	owner uint64
	todos []todosvc.Todo
	sub   Subscription
	// gen counts Initialize calls, so that background resubscription
	// gives up once the identity it served was replaced.
	gen uint64
}

// NewController returns a signed-out controller. Call Initialize once the
// user is known.
func NewController(store Store, notifier Notifier, opts ...Option) *Controller {
	c := &Controller{
		store:      store,
		notifier:   notifier,
		refresh:    func() {},
		newID:      func() string { return uuid.NewV4().String() },
		logger:     log.NewNopLogger(),
		retryDelay: DefaultResubscribeDelay,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Initialize switches the controller to userID. Zero means signed out: the
// subscription is released and no todos are kept. Otherwise the previous
// subscription is released before subscribing for userID and fetching.
func (c *Controller) Initialize(ctx context.Context, userID uint64) error {
	c.init.Lock()
	defer c.init.Unlock()

	c.mtx.Lock()
	prev := c.sub
	c.sub = nil
	c.owner = userID
	c.todos = nil
	c.gen++
	gen := c.gen
	c.mtx.Unlock()

	if prev != nil {
		if err := prev.Unsubscribe(); err != nil {
			c.logger.Log("during", "Unsubscribe", "err", err)
		}
	}

	if userID == 0 {
		c.refresh()
		return nil
	}

	sub, err := c.subscribe(ctx, userID)
	if err != nil {
		c.logger.Log("during", "Subscribe", "user_id", userID, "err", err)
		c.notifier.Notify("Error subscribing to todos", SeverityDestructive)
		go c.resubscribe(gen, userID, nil, true)
	} else {
		c.mtx.Lock()
		c.sub = sub
		c.mtx.Unlock()
		go c.watch(gen, userID, sub)
	}

	return c.Fetch(ctx)
}

func (c *Controller) subscribe(ctx context.Context, owner uint64) (Subscription, error) {
	return c.store.Subscribe(ctx, Filter{Owner: owner}, func() {
		c.onChange(owner)
	})
}

// current reports whether sub is still the subscription of generation gen.
func (c *Controller) current(gen uint64, sub Subscription) bool {
	c.mtx.RLock()
	defer c.mtx.RUnlock()
	return c.gen == gen && c.sub == sub
}

func (c *Controller) watch(gen, owner uint64, sub Subscription) {
	<-sub.Done()
	if !c.current(gen, sub) {
		// Released by Initialize.
		return
	}
	c.logger.Log("during", "Subscribe", "user_id", owner, "err", "change stream ended")
	c.notifier.Notify("Error subscribing to todos", SeverityDestructive)
	c.resubscribe(gen, owner, sub, false)
}

// resubscribe replaces dead, which may be nil, with a fresh subscription and
// fetches whatever was missed meanwhile. Failed attempts are only logged;
// the user was told when the subscription was lost.
func (c *Controller) resubscribe(gen, owner uint64, dead Subscription, wait bool) {
	for {
		if wait {
			time.Sleep(c.retryDelay)
		}
		wait = true

		c.init.Lock()
		if !c.current(gen, dead) {
			c.init.Unlock()
			return
		}
		sub, err := c.subscribe(context.Background(), owner)
		if err != nil {
			c.init.Unlock()
			c.logger.Log("during", "Resubscribe", "user_id", owner, "err", err)
			continue
		}
		c.mtx.Lock()
		c.sub = sub
		c.mtx.Unlock()
		c.init.Unlock()

		if dead != nil {
			if err := dead.Unsubscribe(); err != nil {
				c.logger.Log("during", "Unsubscribe", "err", err)
			}
		}
		go c.watch(gen, owner, sub)
		c.Fetch(context.Background())
		return
	}
}

func (c *Controller) onChange(owner uint64) {
	if c.currentOwner() != owner {
		return
	}
	c.Fetch(context.Background())
}

func (c *Controller) currentOwner() uint64 {
	c.mtx.RLock()
	defer c.mtx.RUnlock()
	return c.owner
}

// Fetch replaces the local collection with the owner's rows. On failure the
// previous collection is kept.
func (c *Controller) Fetch(ctx context.Context) error {
	owner := c.currentOwner()
	if owner == 0 {
		return nil
	}

	todos, err := c.store.Select(ctx, Filter{Owner: owner})
	if err != nil {
		c.logger.Log("during", "Select", "user_id", owner, "err", err)
		c.notifier.Notify("Error fetching todos", SeverityDestructive)
		return err
	}

	c.mtx.Lock()
	if c.owner != owner {
		// Signed out or switched user while the request was in flight.
		c.mtx.Unlock()
		return nil
	}
	c.todos = todos
	c.mtx.Unlock()

	c.refresh()
	return nil
}

// NewTodo builds an incomplete todo for owner with a fresh id. text is
// trimmed; ok is false when nothing is left.
func NewTodo(id string, owner uint64, text string, priority todosvc.Priority) (todo todosvc.Todo, ok bool) {
	text = strings.TrimSpace(text)
	if text == "" {
		return todosvc.Todo{}, false
	}
	return todosvc.Todo{
		ID:        id,
		Text:      text,
		Completed: false,
		Priority:  priority,
		UserID:    owner,
	}, true
}

// Add inserts a new todo. Empty text or a missing user is ignored without
// a remote call.
func (c *Controller) Add(ctx context.Context, text string, priority todosvc.Priority) error {
	owner := c.currentOwner()
	if owner == 0 {
		return nil
	}

	todo, ok := NewTodo(c.newID(), owner, text, priority)
	if !ok {
		return nil
	}

	if err := c.store.Insert(ctx, todo); err != nil {
		c.logger.Log("during", "Insert", "todo_id", todo.ID, "err", err)
		c.notifier.Notify("Error adding todo", SeverityDestructive)
		return err
	}

	c.notifier.Notify("Todo added successfully!", SeverityDefault)
	return nil
}

func (c *Controller) cached(id string) (todosvc.Todo, bool) {
	c.mtx.RLock()
	defer c.mtx.RUnlock()
	for _, t := range c.todos {
		if t.ID == id {
			return t, true
		}
	}
	return todosvc.Todo{}, false
}

// Toggle flips the completion of a cached todo. Unknown ids are ignored.
func (c *Controller) Toggle(ctx context.Context, id string) error {
	if c.currentOwner() == 0 {
		return nil
	}

	todo, ok := c.cached(id)
	if !ok {
		return nil
	}

	completed := !todo.Completed
	if err := c.store.Update(ctx, id, todosvc.Patch{Completed: &completed}); err != nil {
		c.logger.Log("during", "Update", "todo_id", id, "err", err)
		c.notifier.Notify("Error updating todo", SeverityDestructive)
		return err
	}
	return nil
}

// Delete removes a todo. The success notice is destructive, like the
// action.
func (c *Controller) Delete(ctx context.Context, id string) error {
	if c.currentOwner() == 0 {
		return nil
	}

	if err := c.store.Delete(ctx, id); err != nil {
		c.logger.Log("during", "Delete", "todo_id", id, "err", err)
		c.notifier.Notify("Error deleting todo", SeverityDestructive)
		return err
	}

	c.notifier.Notify("Todo deleted successfully!", SeverityDestructive)
	return nil
}

// ChangePriority sets the priority of a todo to next. Callers compute next
// with todosvc.Priority.Next.
func (c *Controller) ChangePriority(ctx context.Context, id string, next todosvc.Priority) error {
	if c.currentOwner() == 0 {
		return nil
	}

	if err := c.store.Update(ctx, id, todosvc.Patch{Priority: &next}); err != nil {
		c.logger.Log("during", "Update", "todo_id", id, "err", err)
		c.notifier.Notify("Error updating priority", SeverityDestructive)
		return err
	}

	c.notifier.Notify(fmt.Sprintf("Priority changed to %s!", next), SeverityDefault)
	return nil
}

// Todos returns a copy of the local collection in fetch order.
func (c *Controller) Todos() []todosvc.Todo {
	c.mtx.RLock()
	defer c.mtx.RUnlock()
	todos := make([]todosvc.Todo, len(c.todos))
	copy(todos, c.todos)
	return todos
}

// SortedView returns the collection ordered by SortTodos: incomplete todos
// first, then by priority, ties kept in fetch order. It works on a copy and
// never reorders the collection itself.
func (c *Controller) SortedView() []todosvc.Todo {
	c.mtx.RLock()
	defer c.mtx.RUnlock()
	return SortTodos(c.todos)
}

// Empty reports whether there is nothing to list, in which case the view
// shows EmptyMessage.
func (c *Controller) Empty() bool {
	c.mtx.RLock()
	defer c.mtx.RUnlock()
	return len(c.todos) == 0
}

// Close releases the current subscription, if any.
func (c *Controller) Close() error {
	return c.Initialize(context.Background(), 0)
}
