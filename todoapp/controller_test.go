package todoapp

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/ichigozero/taskhaven/todosvc"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var errRemote = errors.New("remote unavailable")

type fakeSubscription struct {
	mtx          sync.Mutex
	unsubscribed bool
	done         chan struct{}
	once         sync.Once
}

func newFakeSubscription() *fakeSubscription {
	return &fakeSubscription{done: make(chan struct{})}
}

func (s *fakeSubscription) Unsubscribe() error {
	s.mtx.Lock()
	s.unsubscribed = true
	s.mtx.Unlock()
	s.end()
	return nil
}

func (s *fakeSubscription) Done() <-chan struct{} { return s.done }

// end closes the stream without Unsubscribe, as a dropped connection does.
func (s *fakeSubscription) end() {
	s.once.Do(func() { close(s.done) })
}

func (s *fakeSubscription) active() bool {
	s.mtx.Lock()
	defer s.mtx.Unlock()
	return !s.unsubscribed
}

func (s *fakeSubscription) live() bool {
	select {
	case <-s.done:
		return false
	default:
		return true
	}
}

// fakeStore applies writes to rows but, like the real store, only reports
// them through onChange.
type fakeStore struct {
	mtx       sync.Mutex
	rows      []todosvc.Todo
	calls     []string
	filters   []Filter
	onChange  func()
	subs      []*fakeSubscription
	selectErr error
	insertErr error
	updateErr error
	deleteErr error
	subErr    error
}

func (s *fakeStore) record(call string) {
	s.calls = append(s.calls, call)
}

func (s *fakeStore) Calls() []string {
	s.mtx.Lock()
	defer s.mtx.Unlock()
	return append([]string(nil), s.calls...)
}

func (s *fakeStore) Select(_ context.Context, f Filter) ([]todosvc.Todo, error) {
	s.mtx.Lock()
	defer s.mtx.Unlock()
	s.record("select")
	s.filters = append(s.filters, f)
	if s.selectErr != nil {
		return nil, s.selectErr
	}
	var rows []todosvc.Todo
	for _, r := range s.rows {
		if r.UserID == f.Owner {
			rows = append(rows, r)
		}
	}
	return rows, nil
}

func (s *fakeStore) Insert(_ context.Context, todo todosvc.Todo) error {
	s.mtx.Lock()
	defer s.mtx.Unlock()
	s.record("insert")
	if s.insertErr != nil {
		return s.insertErr
	}
	s.rows = append(s.rows, todo)
	return nil
}

func (s *fakeStore) Update(_ context.Context, id string, patch todosvc.Patch) error {
	s.mtx.Lock()
	defer s.mtx.Unlock()
	s.record("update")
	if s.updateErr != nil {
		return s.updateErr
	}
	for i := range s.rows {
		if s.rows[i].ID != id {
			continue
		}
		if patch.Completed != nil {
			s.rows[i].Completed = *patch.Completed
		}
		if patch.Priority != nil {
			s.rows[i].Priority = *patch.Priority
		}
	}
	return nil
}

func (s *fakeStore) Delete(_ context.Context, id string) error {
	s.mtx.Lock()
	defer s.mtx.Unlock()
	s.record("delete")
	if s.deleteErr != nil {
		return s.deleteErr
	}
	for i := range s.rows {
		if s.rows[i].ID == id {
			s.rows = append(s.rows[:i], s.rows[i+1:]...)
			break
		}
	}
	return nil
}

func (s *fakeStore) Subscribe(_ context.Context, f Filter, onChange func()) (Subscription, error) {
	s.mtx.Lock()
	defer s.mtx.Unlock()
	s.record("subscribe")
	s.filters = append(s.filters, f)
	if s.subErr != nil {
		return nil, s.subErr
	}
	sub := newFakeSubscription()
	s.subs = append(s.subs, sub)
	s.onChange = onChange
	return sub, nil
}

// change fires the last registered onChange, as the server would after a
// write, unless that stream has ended.
func (s *fakeStore) change() {
	s.mtx.Lock()
	fn := s.onChange
	live := len(s.subs) > 0 && s.subs[len(s.subs)-1].live()
	s.mtx.Unlock()
	if fn != nil && live {
		fn()
	}
}

func (s *fakeStore) setSubErr(err error) {
	s.mtx.Lock()
	defer s.mtx.Unlock()
	s.subErr = err
}

func (s *fakeStore) subscriptions() []*fakeSubscription {
	s.mtx.Lock()
	defer s.mtx.Unlock()
	return append([]*fakeSubscription(nil), s.subs...)
}

type notice struct {
	Message  string
	Severity Severity
}

type recorder struct {
	mtx     sync.Mutex
	notices []notice
}

func (r *recorder) Notify(message string, severity Severity) {
	r.mtx.Lock()
	defer r.mtx.Unlock()
	r.notices = append(r.notices, notice{message, severity})
}

func (r *recorder) Notices() []notice {
	r.mtx.Lock()
	defer r.mtx.Unlock()
	return append([]notice(nil), r.notices...)
}

func sequentialIDs() func() string {
	var n int
	return func() string {
		n++
		return fmt.Sprintf("todo-%d", n)
	}
}

func newTestController(store *fakeStore, opts ...Option) (*Controller, *recorder) {
	notifier := &recorder{}
	opts = append([]Option{WithIDGenerator(sequentialIDs()), WithResubscribeDelay(time.Hour)}, opts...)
	return NewController(store, notifier, opts...), notifier
}

func texts(todos []todosvc.Todo) []string {
	var out []string
	for _, t := range todos {
		out = append(out, t.Text)
	}
	return out
}

func TestInitializeEmptyCollection(t *testing.T) {
	store := &fakeStore{}
	c, notifier := newTestController(store)

	require.NoError(t, c.Initialize(context.Background(), 1))

	assert.Equal(t, []string{"subscribe", "select"}, store.Calls())
	assert.Equal(t, []Filter{{Owner: 1}, {Owner: 1}}, store.filters)
	assert.True(t, c.Empty())
	assert.Empty(t, c.SortedView())
	assert.Empty(t, notifier.Notices())
	assert.Equal(t, "No todos yet. Add one above!", EmptyMessage)
}

func TestAddThenChangeNotificationShowsSortedRows(t *testing.T) {
	store := &fakeStore{}
	refreshed := 0
	c, notifier := newTestController(store, WithRefreshHook(func() { refreshed++ }))
	ctx := context.Background()

	require.NoError(t, c.Initialize(ctx, 1))
	require.NoError(t, c.Add(ctx, "Read book", todosvc.PriorityLow))
	require.NoError(t, c.Add(ctx, "Buy milk", todosvc.PriorityHigh))

	// Writes are not applied locally.
	assert.True(t, c.Empty())

	before := refreshed
	store.change()
	assert.Equal(t, before+1, refreshed)

	view := c.SortedView()
	assert.Equal(t, []string{"Buy milk", "Read book"}, texts(view))
	assert.Equal(t, todosvc.PriorityHigh, view[0].Priority)
	assert.Equal(t, todosvc.PriorityLow, view[1].Priority)
	for _, todo := range view {
		assert.False(t, todo.Completed)
		assert.Equal(t, uint64(1), todo.UserID)
	}

	assert.Equal(t, []notice{
		{"Todo added successfully!", SeverityDefault},
		{"Todo added successfully!", SeverityDefault},
	}, notifier.Notices())
}

func TestAddIgnoresBlankText(t *testing.T) {
	store := &fakeStore{}
	c, notifier := newTestController(store)
	ctx := context.Background()
	require.NoError(t, c.Initialize(ctx, 1))

	for _, text := range []string{"", "   ", "\t\n"} {
		require.NoError(t, c.Add(ctx, text, todosvc.PriorityLow))
	}

	assert.NotContains(t, store.Calls(), "insert")
	assert.Empty(t, notifier.Notices())
}

func TestAddTrimsText(t *testing.T) {
	store := &fakeStore{}
	c, _ := newTestController(store)
	ctx := context.Background()
	require.NoError(t, c.Initialize(ctx, 1))

	require.NoError(t, c.Add(ctx, "  Buy milk  ", todosvc.PriorityMedium))

	require.Len(t, store.rows, 1)
	assert.Equal(t, todosvc.Todo{
		ID:       "todo-1",
		Text:     "Buy milk",
		Priority: todosvc.PriorityMedium,
		UserID:   1,
	}, store.rows[0])
}

func TestOperationsRequireIdentity(t *testing.T) {
	store := &fakeStore{rows: []todosvc.Todo{{ID: "a", Text: "x", UserID: 1}}}
	c, notifier := newTestController(store)
	ctx := context.Background()

	require.NoError(t, c.Fetch(ctx))
	require.NoError(t, c.Add(ctx, "Buy milk", todosvc.PriorityLow))
	require.NoError(t, c.Toggle(ctx, "a"))
	require.NoError(t, c.Delete(ctx, "a"))
	require.NoError(t, c.ChangePriority(ctx, "a", todosvc.PriorityHigh))

	assert.Empty(t, store.Calls())
	assert.Empty(t, notifier.Notices())
}

func TestAddFailure(t *testing.T) {
	store := &fakeStore{insertErr: errRemote}
	c, notifier := newTestController(store)
	ctx := context.Background()
	require.NoError(t, c.Initialize(ctx, 1))

	err := c.Add(ctx, "Buy milk", todosvc.PriorityLow)
	assert.Equal(t, errRemote, err)
	assert.True(t, c.Empty())
	assert.Equal(t, []notice{{"Error adding todo", SeverityDestructive}}, notifier.Notices())
}

func TestToggle(t *testing.T) {
	store := &fakeStore{rows: []todosvc.Todo{{ID: "a", Text: "x", UserID: 1}}}
	c, notifier := newTestController(store)
	ctx := context.Background()
	require.NoError(t, c.Initialize(ctx, 1))

	require.NoError(t, c.Toggle(ctx, "a"))
	assert.True(t, store.rows[0].Completed)
	// Not applied locally until the change arrives.
	assert.False(t, c.Todos()[0].Completed)

	store.change()
	assert.True(t, c.Todos()[0].Completed)

	require.NoError(t, c.Toggle(ctx, "a"))
	assert.False(t, store.rows[0].Completed)
	assert.Empty(t, notifier.Notices())
}

func TestToggleUnknownID(t *testing.T) {
	store := &fakeStore{rows: []todosvc.Todo{{ID: "a", Text: "x", UserID: 1}}}
	c, notifier := newTestController(store)
	ctx := context.Background()
	require.NoError(t, c.Initialize(ctx, 1))
	calls := len(store.Calls())

	require.NoError(t, c.Toggle(ctx, "missing"))

	assert.Len(t, store.Calls(), calls)
	assert.Empty(t, notifier.Notices())
}

func TestToggleFailure(t *testing.T) {
	store := &fakeStore{rows: []todosvc.Todo{{ID: "a", Text: "x", UserID: 1}}, updateErr: errRemote}
	c, notifier := newTestController(store)
	ctx := context.Background()
	require.NoError(t, c.Initialize(ctx, 1))

	assert.Equal(t, errRemote, c.Toggle(ctx, "a"))
	assert.Equal(t, []notice{{"Error updating todo", SeverityDestructive}}, notifier.Notices())
}

func TestDelete(t *testing.T) {
	store := &fakeStore{rows: []todosvc.Todo{{ID: "a", Text: "x", UserID: 1}}}
	c, notifier := newTestController(store)
	ctx := context.Background()
	require.NoError(t, c.Initialize(ctx, 1))

	require.NoError(t, c.Delete(ctx, "a"))
	assert.Len(t, c.Todos(), 1)

	store.change()
	assert.True(t, c.Empty())
	assert.Equal(t, []notice{{"Todo deleted successfully!", SeverityDestructive}}, notifier.Notices())
}

func TestDeleteFailureKeepsCollection(t *testing.T) {
	rows := []todosvc.Todo{
		{ID: "a", Text: "Buy milk", Priority: todosvc.PriorityHigh, UserID: 1},
		{ID: "b", Text: "Read book", Priority: todosvc.PriorityLow, UserID: 1},
	}
	store := &fakeStore{rows: rows, deleteErr: errRemote}
	c, notifier := newTestController(store)
	ctx := context.Background()
	require.NoError(t, c.Initialize(ctx, 1))
	before := c.Todos()

	assert.Equal(t, errRemote, c.Delete(ctx, "a"))

	assert.Equal(t, before, c.Todos())
	notices := notifier.Notices()
	require.Len(t, notices, 1)
	assert.Equal(t, "Error deleting todo", notices[0].Message)
	assert.Equal(t, SeverityDestructive, notices[0].Severity)
}

func TestChangePriority(t *testing.T) {
	store := &fakeStore{rows: []todosvc.Todo{{ID: "a", Text: "x", Priority: todosvc.PriorityLow, UserID: 1}}}
	c, notifier := newTestController(store)
	ctx := context.Background()
	require.NoError(t, c.Initialize(ctx, 1))

	seen := []todosvc.Priority{}
	for i := 0; i < 4; i++ {
		next := c.Todos()[0].Priority.Next()
		require.NoError(t, c.ChangePriority(ctx, "a", next))
		store.change()
		seen = append(seen, c.Todos()[0].Priority)
	}

	assert.Equal(t, []todosvc.Priority{
		todosvc.PriorityMedium,
		todosvc.PriorityHigh,
		todosvc.PriorityLow,
		todosvc.PriorityMedium,
	}, seen)
	assert.Equal(t, notice{"Priority changed to medium!", SeverityDefault}, notifier.Notices()[0])
	assert.Equal(t, notice{"Priority changed to high!", SeverityDefault}, notifier.Notices()[1])
}

func TestChangePriorityFailure(t *testing.T) {
	store := &fakeStore{rows: []todosvc.Todo{{ID: "a", Text: "x", UserID: 1}}, updateErr: errRemote}
	c, notifier := newTestController(store)
	ctx := context.Background()
	require.NoError(t, c.Initialize(ctx, 1))

	assert.Equal(t, errRemote, c.ChangePriority(ctx, "a", todosvc.PriorityHigh))
	assert.Equal(t, []notice{{"Error updating priority", SeverityDestructive}}, notifier.Notices())
}

func TestFetchFailureKeepsCollection(t *testing.T) {
	store := &fakeStore{rows: []todosvc.Todo{{ID: "a", Text: "x", UserID: 1}}}
	c, notifier := newTestController(store)
	ctx := context.Background()
	require.NoError(t, c.Initialize(ctx, 1))

	store.selectErr = errRemote
	assert.Equal(t, errRemote, c.Fetch(ctx))

	assert.Equal(t, []string{"x"}, texts(c.Todos()))
	assert.Equal(t, []notice{{"Error fetching todos", SeverityDestructive}}, notifier.Notices())
}

func TestSignOutTearsDownSubscription(t *testing.T) {
	store := &fakeStore{rows: []todosvc.Todo{{ID: "a", Text: "x", UserID: 1}}}
	refreshed := 0
	c, _ := newTestController(store, WithRefreshHook(func() { refreshed++ }))
	ctx := context.Background()
	require.NoError(t, c.Initialize(ctx, 1))
	require.Len(t, store.subs, 1)

	require.NoError(t, c.Initialize(ctx, 0))
	assert.False(t, store.subs[0].active())
	assert.True(t, c.Empty())

	selects := len(store.Calls())
	before := refreshed

	// A late notification on the released stream must not fetch.
	store.change()
	assert.Len(t, store.Calls(), selects)
	assert.Equal(t, before, refreshed)
	assert.True(t, c.Empty())
}

func TestReinitializeReleasesPreviousSubscription(t *testing.T) {
	store := &fakeStore{rows: []todosvc.Todo{
		{ID: "a", Text: "mine", UserID: 1},
		{ID: "b", Text: "theirs", UserID: 2},
	}}
	c, _ := newTestController(store)
	ctx := context.Background()

	require.NoError(t, c.Initialize(ctx, 1))
	require.NoError(t, c.Initialize(ctx, 2))

	require.Len(t, store.subs, 2)
	assert.False(t, store.subs[0].active())
	assert.True(t, store.subs[1].active())
	assert.Equal(t, []string{"theirs"}, texts(c.Todos()))
}

func TestSubscribeFailureStillFetches(t *testing.T) {
	store := &fakeStore{rows: []todosvc.Todo{{ID: "a", Text: "x", UserID: 1}}, subErr: errRemote}
	c, notifier := newTestController(store)

	require.NoError(t, c.Initialize(context.Background(), 1))

	assert.Equal(t, []string{"x"}, texts(c.Todos()))
	assert.Equal(t, []notice{{"Error subscribing to todos", SeverityDestructive}}, notifier.Notices())
}

func TestNewTodo(t *testing.T) {
	todo, ok := NewTodo("id", 3, " Buy milk ", todosvc.PriorityHigh)
	require.True(t, ok)
	assert.Equal(t, "Buy milk", todo.Text)
	assert.False(t, todo.Completed)
	assert.Equal(t, uint64(3), todo.UserID)

	_, ok = NewTodo("id", 3, "  ", todosvc.PriorityHigh)
	assert.False(t, ok)
}

// refreshCounter counts completed fetches.
type refreshCounter struct {
	mtx sync.Mutex
	n   int
}

func (r *refreshCounter) hook() {
	r.mtx.Lock()
	defer r.mtx.Unlock()
	r.n++
}

func (r *refreshCounter) atLeast(n int) func() bool {
	return func() bool {
		r.mtx.Lock()
		defer r.mtx.Unlock()
		return r.n >= n
	}
}

func TestEndedSubscriptionIsRestored(t *testing.T) {
	store := &fakeStore{}
	var refreshes refreshCounter
	c, notifier := newTestController(store, WithResubscribeDelay(10*time.Millisecond), WithRefreshHook(refreshes.hook))
	require.NoError(t, c.Initialize(context.Background(), 1))

	first := store.subscriptions()[0]
	first.end()

	require.Eventually(t, func() bool {
		return len(store.subscriptions()) == 2
	}, time.Second, 5*time.Millisecond)
	// Catch-up fetch after the new subscription.
	require.Eventually(t, refreshes.atLeast(2), time.Second, 5*time.Millisecond)
	assert.Equal(t, []notice{{"Error subscribing to todos", SeverityDestructive}}, notifier.Notices())
	assert.False(t, first.active(), "the dead subscription is released")

	// Later changes reach the controller again.
	require.NoError(t, c.Add(context.Background(), "Buy milk", todosvc.PriorityHigh))
	store.change()
	assert.Equal(t, []string{"Buy milk"}, texts(c.Todos()))
}

func TestEndedSubscriptionRetriesUntilRestored(t *testing.T) {
	store := &fakeStore{rows: []todosvc.Todo{{ID: "a", Text: "x", UserID: 1}}}
	c, notifier := newTestController(store, WithResubscribeDelay(10*time.Millisecond))
	require.NoError(t, c.Initialize(context.Background(), 1))

	store.setSubErr(errRemote)
	store.subscriptions()[0].end()
	time.Sleep(50 * time.Millisecond)
	store.setSubErr(nil)

	require.Eventually(t, func() bool {
		return len(store.subscriptions()) == 2
	}, time.Second, 5*time.Millisecond)
	// One notice for the loss, none for the failed attempts.
	assert.Equal(t, []notice{{"Error subscribing to todos", SeverityDestructive}}, notifier.Notices())
	assert.Equal(t, []string{"x"}, texts(c.Todos()))
}

func TestFailedSubscribeIsRetried(t *testing.T) {
	store := &fakeStore{subErr: errRemote}
	var refreshes refreshCounter
	c, _ := newTestController(store, WithResubscribeDelay(10*time.Millisecond), WithRefreshHook(refreshes.hook))
	require.NoError(t, c.Initialize(context.Background(), 1))

	store.setSubErr(nil)
	require.Eventually(t, func() bool {
		return len(store.subscriptions()) == 1
	}, time.Second, 5*time.Millisecond)
	require.Eventually(t, refreshes.atLeast(2), time.Second, 5*time.Millisecond)

	require.NoError(t, c.Add(context.Background(), "Read book", todosvc.PriorityLow))
	store.change()
	assert.Equal(t, []string{"Read book"}, texts(c.Todos()))
}

func TestNoResubscribeAfterSignOut(t *testing.T) {
	store := &fakeStore{}
	c, notifier := newTestController(store, WithResubscribeDelay(10*time.Millisecond))
	require.NoError(t, c.Initialize(context.Background(), 1))
	require.NoError(t, c.Close())

	store.subscriptions()[0].end()
	time.Sleep(50 * time.Millisecond)

	assert.Len(t, store.subscriptions(), 1)
	assert.Empty(t, notifier.Notices())
}

func TestSortedViewLeavesCollectionInFetchOrder(t *testing.T) {
	store := &fakeStore{rows: []todosvc.Todo{
		{ID: "a", Text: "done", Completed: true, Priority: todosvc.PriorityHigh, UserID: 1},
		{ID: "b", Text: "low", Priority: todosvc.PriorityLow, UserID: 1},
		{ID: "c", Text: "high", Priority: todosvc.PriorityHigh, UserID: 1},
	}}
	c, _ := newTestController(store)
	require.NoError(t, c.Initialize(context.Background(), 1))

	assert.Equal(t, []string{"high", "low", "done"}, texts(c.SortedView()))
	assert.Equal(t, []string{"done", "low", "high"}, texts(c.Todos()))
	assert.Equal(t, texts(c.SortedView()), texts(c.SortedView()))
	assert.False(t, c.Empty())
}
